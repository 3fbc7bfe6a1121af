package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Draft field names, as bound to the form inputs.
const (
	FieldName        = "Name"
	FieldAmount      = "Amount__c"
	FieldPrice       = "Price__c"
	FieldProductType = "ProductType__c"
	FieldReleaseDate = "ReleaseDate__c"
)

// ReleaseDateLayout is the calendar date format exchanged with the record service.
const ReleaseDateLayout = "2006-01-02"

var ErrUnknownField = errors.New("unknown product field")

// Product is one record of the remote record service. Numeric fields keep the
// raw input text so that a draft can hold values that do not parse yet.
type Product struct {
	ID          string      `json:"Id,omitempty" yaml:"Id,omitempty"`
	Name        string      `json:"Name,omitempty" yaml:"Name,omitempty" validate:"required"`
	Amount      json.Number `json:"Amount__c,omitempty" yaml:"Amount__c,omitempty" validate:"required,amount"`
	Price       json.Number `json:"Price__c,omitempty" yaml:"Price__c,omitempty" validate:"required,price"`
	ProductType string      `json:"ProductType__c,omitempty" yaml:"ProductType__c,omitempty" validate:"required"`
	ReleaseDate string      `json:"ReleaseDate__c,omitempty" yaml:"ReleaseDate__c,omitempty" validate:"required,not_after_today"`
}

// Set assigns one field by its bound name.
func (p *Product) Set(field, value string) error {
	switch field {
	case FieldName:
		p.Name = value
	case FieldAmount:
		p.Amount = json.Number(value)
	case FieldPrice:
		p.Price = json.Number(value)
	case FieldProductType:
		p.ProductType = value
	case FieldReleaseDate:
		p.ReleaseDate = value
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return nil
}

// Fields returns the editable fields keyed by bound name. Empty fields are omitted.
func (p Product) Fields() map[string]string {
	fields := make(map[string]string, 5)
	add := func(name, value string) {
		if value != "" {
			fields[name] = value
		}
	}
	add(FieldName, p.Name)
	add(FieldAmount, p.Amount.String())
	add(FieldPrice, p.Price.String())
	add(FieldProductType, p.ProductType)
	add(FieldReleaseDate, p.ReleaseDate)
	return fields
}

func (p Product) IsZero() bool {
	return p == Product{}
}

type TypeOption struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

func NewTypeOptions(types []string) []TypeOption {
	options := make([]TypeOption, 0, len(types))
	for _, t := range types {
		options = append(options, TypeOption{Label: t, Value: t})
	}
	return options
}

// FindByID returns the product with the given id from an already loaded list.
func FindByID(products []Product, id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}
