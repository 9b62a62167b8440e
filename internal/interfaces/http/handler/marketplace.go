package handler

import (
	"encoding/json"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// EbayCallbackRequest is the body of POST /marketplaces/ebay/callback
type EbayCallbackRequest struct {
	Code string `json:"code" binding:"required,max=4096"`
}

// PoshmarkCookiesRequest is the body of POST /marketplaces/poshmark/cookies.
// Cookies holds the JSON array exported from a logged-in browser.
type PoshmarkCookiesRequest struct {
	Cookies json.RawMessage `json:"cookies" binding:"required"`
}

// MarketplaceURI carries the :marketplace path parameter
type MarketplaceURI struct {
	Marketplace string `uri:"marketplace" binding:"required,marketplace"`
}

// InventoryQuery pages the remote eBay inventory
type InventoryQuery struct {
	Limit  int `form:"limit" binding:"omitempty,min=1,max=200"`
	Offset int `form:"offset" binding:"omitempty,min=0"`
}

// MarketplaceHandler handles marketplace account endpoints
type MarketplaceHandler struct {
	BaseHandler
	accounts *marketplaceapp.AccountService
}

// NewMarketplaceHandler creates a new MarketplaceHandler
func NewMarketplaceHandler(accounts *marketplaceapp.AccountService) *MarketplaceHandler {
	return &MarketplaceHandler{accounts: accounts}
}

// EbayConnect handles GET /marketplaces/ebay/connect
func (h *MarketplaceHandler) EbayConnect(c *gin.Context) {
	u, err := h.accounts.EbayConnectURL()
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, u)
}

// EbayCallback handles POST /marketplaces/ebay/callback
func (h *MarketplaceHandler) EbayCallback(c *gin.Context) {
	var req EbayCallbackRequest
	if !h.bindJSON(c, &req) {
		return
	}

	status, err := h.accounts.EbayCallback(c.Request.Context(), req.Code)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// PoshmarkCookies handles POST /marketplaces/poshmark/cookies
func (h *MarketplaceHandler) PoshmarkCookies(c *gin.Context) {
	var req PoshmarkCookiesRequest
	if !h.bindJSON(c, &req) {
		return
	}

	status, err := h.accounts.ConnectPoshmark(c.Request.Context(), cookieJar(req.Cookies))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// cookieJar accepts the cookie array either inline or as a JSON-encoded string
func cookieJar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Status handles GET /marketplaces/:marketplace/status
func (h *MarketplaceHandler) Status(c *gin.Context) {
	var uri MarketplaceURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	status, err := h.accounts.Status(c.Request.Context(), uri.Marketplace)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, status)
}

// Disconnect handles DELETE /marketplaces/:marketplace
func (h *MarketplaceHandler) Disconnect(c *gin.Context) {
	var uri MarketplaceURI
	if err := c.ShouldBindUri(&uri); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	if err := h.accounts.Disconnect(c.Request.Context(), uri.Marketplace); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// EbayInventory handles GET /marketplaces/ebay/inventory
func (h *MarketplaceHandler) EbayInventory(c *gin.Context) {
	var q InventoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.accounts.EbayInventory(c.Request.Context(), q.Limit, q.Offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, page)
}
