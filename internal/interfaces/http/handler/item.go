package handler

import (
	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// ItemHandler handles inventory item endpoints
type ItemHandler struct {
	BaseHandler
	items *marketplaceapp.ItemService
}

// NewItemHandler creates a new ItemHandler
func NewItemHandler(items *marketplaceapp.ItemService) *ItemHandler {
	return &ItemHandler{items: items}
}

// Create handles POST /items
func (h *ItemHandler) Create(c *gin.Context) {
	var req CreateItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.items.Create(c.Request.Context(), req.toApp())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, item)
}

// List handles GET /items with paging, title search and listing status filter
func (h *ItemHandler) List(c *gin.Context) {
	var req ListItemsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}
	req.Normalize()

	page, err := h.items.List(c.Request.Context(), marketplaceapp.ListItemsQuery{
		Search:   req.Search,
		Status:   req.Status,
		OrderBy:  req.OrderBy,
		OrderDir: req.OrderDir,
		Page:     req.Page,
		PageSize: req.PageSize,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Items, page.Total, page.Page, page.PageSize)
}

// Get handles GET /items/:id
func (h *ItemHandler) Get(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	item, err := h.items.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// Update handles PUT /items/:id
func (h *ItemHandler) Update(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req UpdateItemRequest
	if !h.bindJSON(c, &req) {
		return
	}

	item, err := h.items.Update(c.Request.Context(), id, req.toApp())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// Delete handles DELETE /items/:id. Items with live listings are refused.
func (h *ItemHandler) Delete(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.items.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// AddImage handles POST /items/:id/images with a multipart "file" field
func (h *ItemHandler) AddImage(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.BadRequest(c, "Multipart field \"file\" is required")
		return
	}
	if fh.Size > marketplaceapp.MaxImageSize {
		h.HandleError(c, marketplaceapp.ErrImageTooLarge)
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.BadRequest(c, "Uploaded file could not be read")
		return
	}
	defer f.Close()

	img, err := h.items.AddImage(c.Request.Context(), id, marketplaceapp.ImageUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, img)
}

// RemoveImage handles DELETE /items/:id/images/:image_id
func (h *ItemHandler) RemoveImage(c *gin.Context) {
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	imageID, ok := h.parseUUIDParam(c, "image_id")
	if !ok {
		return
	}
	if err := h.items.RemoveImage(c.Request.Context(), id, imageID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}
