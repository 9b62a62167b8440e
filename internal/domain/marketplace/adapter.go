package marketplace

import (
	"context"
	"io"
	"sort"
	"sync"
)

// ---------------------------------------------------------------------------
// Adapter (Port Interface)
// ---------------------------------------------------------------------------

// Adapter translates the generic listing operations into one marketplace's
// mechanism. Implementations never return raw transport errors: every call
// yields a classified SyncResult.
type Adapter interface {
	// Marketplace returns the marketplace this adapter serves
	Marketplace() Code

	// Mechanism returns how the adapter reaches the marketplace
	Mechanism() Mechanism

	// CreateListing publishes the item. Calling it twice for an item without
	// a remote listing must not produce two remote listings.
	CreateListing(ctx context.Context, item *InventoryItem) SyncResult

	// UpdateListing pushes the item's current data to an existing listing.
	// Returns NOT_FOUND when the remote listing is gone.
	UpdateListing(ctx context.Context, ref RemoteRef, item *InventoryItem) SyncResult

	// DeleteListing removes the remote listing. A listing that is already
	// gone counts as success.
	DeleteListing(ctx context.Context, ref RemoteRef) SyncResult

	// FetchListingStatus is a read-only reconciliation probe
	FetchListingStatus(ctx context.Context, ref RemoteRef) SyncResult
}

// ListingLocator is implemented by adapters that can find a remote listing
// for an item without knowing its remote id. It is used to reconcile a pair
// whose create was interrupted before the remote id was stored.
// Returns NOT_FOUND when the marketplace has no such listing.
type ListingLocator interface {
	FindListing(ctx context.Context, item *InventoryItem) SyncResult
}

// ImageSource resolves item images for adapters. API adapters hand the
// marketplace a URL; browser adapters upload the bytes.
type ImageSource interface {
	ImageURL(ctx context.Context, img ItemImage) (string, error)
	OpenImage(ctx context.Context, img ItemImage) (io.ReadCloser, error)
}

// RemoteInventoryItem is one entry of a marketplace's own inventory
type RemoteInventoryItem struct {
	SKU       string   `json:"sku"`
	Title     string   `json:"title"`
	Quantity  int      `json:"quantity"`
	Condition string   `json:"condition,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
}

// RemoteInventoryPage is one page of a marketplace inventory listing
type RemoteInventoryPage struct {
	Items  []RemoteInventoryItem `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// InventoryBrowser is implemented by adapters that can page through the
// marketplace-side inventory of the connected account
type InventoryBrowser interface {
	ListInventory(ctx context.Context, limit, offset int) (*RemoteInventoryPage, error)
}

// ---------------------------------------------------------------------------
// AdapterRegistry
// ---------------------------------------------------------------------------

// AdapterRegistry resolves the adapter for a marketplace
type AdapterRegistry interface {
	// Adapter returns the adapter for code, or ErrAdapterNotAvailable
	Adapter(code Code) (Adapter, error)

	// Marketplaces lists the marketplaces with a registered adapter
	Marketplaces() []Code
}

// Registry is a concurrency-safe AdapterRegistry
type Registry struct {
	mu       sync.RWMutex
	adapters map[Code]Adapter
}

// NewRegistry creates a registry holding the given adapters
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Code]Adapter)}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its marketplace
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Marketplace()] = a
}

// Adapter implements AdapterRegistry
func (r *Registry) Adapter(code Code) (Adapter, error) {
	if !code.IsValid() {
		return nil, ErrUnknownMarketplace
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[code]
	if !ok {
		return nil, ErrAdapterNotAvailable
	}
	return a, nil
}

// Marketplaces implements AdapterRegistry
func (r *Registry) Marketplaces() []Code {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]Code, 0, len(r.adapters))
	for c := range r.adapters {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

var _ AdapterRegistry = (*Registry)(nil)
