package marketplace

import "errors"

var (
	// Marketplace errors
	ErrUnknownMarketplace  = errors.New("marketplace: unknown marketplace")
	ErrAdapterNotAvailable = errors.New("marketplace: adapter not available")

	// Item errors
	ErrItemNotFound        = errors.New("marketplace: inventory item not found")
	ErrItemTitleRequired   = errors.New("marketplace: item title is required")
	ErrItemTitleTooLong    = errors.New("marketplace: item title exceeds 255 characters")
	ErrItemInvalidPrice    = errors.New("marketplace: item price must be greater than zero")
	ErrItemInvalidQuantity = errors.New("marketplace: item quantity cannot be negative")
	ErrItemInvalidCurrency = errors.New("marketplace: item currency must be a 3-letter code")
	ErrItemHasLiveListings = errors.New("marketplace: item still has active or pending listings")
	ErrImageNotFound       = errors.New("marketplace: item image not found")

	// Listing errors
	ErrListingNotFound     = errors.New("marketplace: listing not found")
	ErrInvalidTransition   = errors.New("marketplace: invalid listing status transition")
	ErrListingNotListed    = errors.New("marketplace: listing has no remote listing to update")
	ErrInvalidListingOwner = errors.New("marketplace: listing requires an item and a marketplace")

	// Account errors
	ErrAccountNotFound       = errors.New("marketplace: account not connected")
	ErrAccountInvalidToken   = errors.New("marketplace: access token is required")
	ErrInvalidSessionCookies = errors.New("marketplace: session cookies must be a non-empty JSON array of named cookies")
)
