package router

import (
	"time"

	"github.com/crosslist/backend/internal/interfaces/http/handler"
	"github.com/crosslist/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// APIHandlers are the handlers served under the versioned API prefix
type APIHandlers struct {
	System       *handler.SystemHandler
	Items        *handler.ItemHandler
	Sync         *handler.SyncHandler
	Marketplaces *handler.MarketplaceHandler
}

// APIOptions tune per-group middleware
type APIOptions struct {
	// RequestTimeout bounds every route except the synchronous sync routes,
	// which may drive a browser for minutes. Zero disables it.
	RequestTimeout time.Duration
	// UploadLimit caps image upload bodies in bytes
	UploadLimit int64
	// SyncLimiter throttles sync requests; nil disables throttling
	SyncLimiter *middleware.RateLimiter
}

// RegisterAPI builds the domain groups of the service and registers them on r
func RegisterAPI(r *Router, h APIHandlers, opts APIOptions) {
	bounded := func(dg *DomainGroup) *DomainGroup {
		if opts.RequestTimeout > 0 {
			dg.Use(middleware.Timeout(opts.RequestTimeout))
		}
		return dg
	}

	system := NewDomainGroup("system", "")
	system.GET("/health", h.System.Health)
	system.GET("/system/info", h.System.GetSystemInfo)
	system.GET("/system/ping", h.System.Ping)
	r.Register(bounded(system))

	items := bounded(NewDomainGroup("items", "/items"))
	items.POST("", h.Items.Create)
	items.GET("", h.Items.List)
	items.GET("/:id", h.Items.Get)
	items.PUT("/:id", h.Items.Update)
	items.DELETE("/:id", h.Items.Delete)
	upload := []gin.HandlerFunc{h.Items.AddImage}
	if opts.UploadLimit > 0 {
		upload = append([]gin.HandlerFunc{middleware.BodyLimit(opts.UploadLimit)}, upload...)
	}
	items.POST("/:id/images", upload...)
	items.DELETE("/:id/images/:image_id", h.Items.RemoveImage)
	r.Register(items)

	sync := NewDomainGroup("sync", "")
	if opts.SyncLimiter != nil {
		sync.Use(middleware.RateLimit(opts.SyncLimiter))
	}
	sync.POST("/items/:id/sync", h.Sync.Sync)
	sync.GET("/items/:id/listings", h.Sync.Listings)
	sync.GET("/sync-jobs/:id", h.Sync.GetJob)
	r.Register(sync)

	accounts := bounded(NewDomainGroup("marketplaces", "/marketplaces"))
	accounts.GET("/ebay/connect", h.Marketplaces.EbayConnect)
	accounts.POST("/ebay/callback", h.Marketplaces.EbayCallback)
	accounts.GET("/ebay/inventory", h.Marketplaces.EbayInventory)
	accounts.POST("/poshmark/cookies", h.Marketplaces.PoshmarkCookies)
	accounts.GET("/:marketplace/status", h.Marketplaces.Status)
	accounts.DELETE("/:marketplace", h.Marketplaces.Disconnect)
	r.Register(accounts)
}
