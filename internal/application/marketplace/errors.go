package marketplace

import "errors"

var (
	// ErrInvalidAction is returned for an unknown sync action
	ErrInvalidAction = errors.New("marketplace: invalid sync action")
	// ErrNoMarketplaces is returned when a sync request resolves to no marketplace
	ErrNoMarketplaces = errors.New("marketplace: no marketplaces requested")
	// ErrQueueFull is returned when the async sync queue cannot take more jobs
	ErrQueueFull = errors.New("marketplace: sync queue is full")
	// ErrOAuthNotConfigured is returned when eBay OAuth credentials are missing
	ErrOAuthNotConfigured = errors.New("marketplace: ebay oauth is not configured")
	// ErrInvalidStatusFilter is returned for an unknown listing status filter
	ErrInvalidStatusFilter = errors.New("marketplace: invalid listing status filter")

	ErrStorageNotConfigured = errors.New("marketplace: object storage is not configured")
	ErrImageTooLarge        = errors.New("marketplace: image exceeds 10MB")
	ErrUnsupportedImage     = errors.New("marketplace: unsupported image content type")
)
