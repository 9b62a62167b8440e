package handler

import (
	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/interfaces/http/dto"
	"github.com/shopspring/decimal"
)

// CreateItemRequest is the body of POST /items
type CreateItemRequest struct {
	Title       string          `json:"title" binding:"required,max=255"`
	Description string          `json:"description" binding:"max=10000"`
	Price       decimal.Decimal `json:"price" binding:"required,gt=0"`
	Currency    string          `json:"currency" binding:"omitempty,len=3"`
	Quantity    *int            `json:"quantity" binding:"omitempty,gte=0"`
	SKU         string          `json:"sku" binding:"max=100"`
	Condition   string          `json:"condition" binding:"max=50"`
	Brand       string          `json:"brand" binding:"max=100"`
	CategoryID  string          `json:"category_id" binding:"max=50"`
	ImageURLs   []string        `json:"image_urls" binding:"omitempty,max=24,dive,url"`
}

func (r CreateItemRequest) toApp() marketplaceapp.CreateItemRequest {
	return marketplaceapp.CreateItemRequest{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Currency:    r.Currency,
		Quantity:    r.Quantity,
		SKU:         r.SKU,
		Condition:   r.Condition,
		Brand:       r.Brand,
		CategoryID:  r.CategoryID,
		ImageURLs:   r.ImageURLs,
	}
}

// UpdateItemRequest is the body of PUT /items/:id. Omitted fields are unchanged.
type UpdateItemRequest struct {
	Title       *string          `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string          `json:"description" binding:"omitempty,max=10000"`
	Price       *decimal.Decimal `json:"price" binding:"omitempty,gt=0"`
	Quantity    *int             `json:"quantity" binding:"omitempty,gte=0"`
	SKU         *string          `json:"sku" binding:"omitempty,max=100"`
	Condition   *string          `json:"condition" binding:"omitempty,max=50"`
	Brand       *string          `json:"brand" binding:"omitempty,max=100"`
	CategoryID  *string          `json:"category_id" binding:"omitempty,max=50"`
}

func (r UpdateItemRequest) toApp() marketplaceapp.UpdateItemRequest {
	return marketplaceapp.UpdateItemRequest{
		Title:       r.Title,
		Description: r.Description,
		Price:       r.Price,
		Quantity:    r.Quantity,
		SKU:         r.SKU,
		Condition:   r.Condition,
		Brand:       r.Brand,
		CategoryID:  r.CategoryID,
	}
}

// ListItemsRequest is the query of GET /items
type ListItemsRequest struct {
	dto.ListRequest
	Status   string `form:"status" binding:"omitempty,max=20"`
	OrderBy  string `form:"order_by" binding:"omitempty,max=30"`
	OrderDir string `form:"order_dir" binding:"omitempty,oneof=asc desc ASC DESC"`
}
