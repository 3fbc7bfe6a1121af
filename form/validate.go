package form

import (
	"strings"
	"time"

	"github.com/mixa1334/ProductApp/models"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorMessage is shown for any draft that fails validation.
const ErrorMessage = "Please fill in the required fields (amount, price must be greater than 0 and releaseDate must be <= today)."

// Validator checks a draft against every field rule at once.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      now,
	}

	// Registration only fails for empty tags or nil functions.
	_ = v.validate.RegisterValidation("amount", validateAmount)
	_ = v.validate.RegisterValidation("price", validatePrice)
	_ = v.validate.RegisterValidation("not_after_today", v.validateNotAfterToday)
	return v
}

// Validate returns validator.ValidationErrors listing every failing field.
func (v *Validator) Validate(p models.Product) error {
	return v.validate.Struct(p)
}

func validateAmount(fl validator.FieldLevel) bool {
	amount, err := parseNumber(fl.Field().String())
	return err == nil && !amount.IsNegative()
}

func validatePrice(fl validator.FieldLevel) bool {
	price, err := parseNumber(fl.Field().String())
	return err == nil && price.IsPositive()
}

func (v *Validator) validateNotAfterToday(fl validator.FieldLevel) bool {
	now := v.now()
	date, err := parseReleaseDate(fl.Field().String(), now.Location())
	if err != nil {
		return false
	}
	return !date.After(midnight(now))
}

func parseNumber(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// parseReleaseDate accepts a calendar date, read in loc, or a full RFC 3339 timestamp.
func parseReleaseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if date, err := time.ParseInLocation(models.ReleaseDateLayout, s, loc); err == nil {
		return date, nil
	}
	return time.Parse(time.RFC3339, s)
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
