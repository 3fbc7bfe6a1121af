package remote

import (
	"context"

	"github.com/mixa1334/ProductApp/models"
)

// Operation names of the record service.
const (
	OpGetProducts     = "getProducts"
	OpCreateProduct   = "createProduct"
	OpEditProduct     = "editProduct"
	OpDeleteProduct   = "deleteProduct"
	OpGetProductTypes = "getProductTypes"
)

// RecordService is the call contract of the remote product record service.
type RecordService interface {
	GetProducts(ctx context.Context, searchName string) ([]models.Product, error)
	CreateProduct(ctx context.Context, newProduct models.Product) error
	EditProduct(ctx context.Context, editedProduct models.Product) error
	DeleteProduct(ctx context.Context, productID string) error
	GetProductTypes(ctx context.Context) ([]string, error)
}

type getProductsRequest struct {
	SearchName string `json:"searchName"`
}

type createProductRequest struct {
	NewProduct models.Product `json:"newProduct"`
}

type editProductRequest struct {
	EditedProduct models.Product `json:"editedProduct"`
}

type deleteProductRequest struct {
	ProductID string `json:"productId"`
}
