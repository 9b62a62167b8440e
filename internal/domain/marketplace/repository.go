package marketplace

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// InventoryStore is the persistence port consumed by the sync orchestrator
type InventoryStore interface {
	// GetItem returns the item with its images, or ErrItemNotFound
	GetItem(ctx context.Context, id uuid.UUID) (*InventoryItem, error)

	// GetListing returns the pair's listing, or ErrListingNotFound
	GetListing(ctx context.Context, itemID uuid.UUID, code Code) (*MarketplaceListing, error)

	// UpsertListing inserts or replaces the pair's listing.
	// Implementations must keep at most one row per (item, marketplace).
	UpsertListing(ctx context.Context, listing *MarketplaceListing) error

	// ListListings returns every listing of an item
	ListListings(ctx context.Context, itemID uuid.UUID) ([]MarketplaceListing, error)
}

// ItemFilter narrows item listings
type ItemFilter struct {
	Search   string
	Status   ListingStatus
	OrderBy  string // column name; unknown names fall back to created_at
	OrderDir string // asc or desc
	Page     int
	PageSize int
}

// ItemRepository persists inventory items and their images
type ItemRepository interface {
	Create(ctx context.Context, item *InventoryItem) error
	Update(ctx context.Context, item *InventoryItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*InventoryItem, error)
	List(ctx context.Context, filter ItemFilter) ([]InventoryItem, int64, error)
	AddImage(ctx context.Context, itemID uuid.UUID, image *ItemImage) error
	DeleteImage(ctx context.Context, itemID, imageID uuid.UUID) error
}

// ListingQuery finds listings that need background reconciliation
type ListingQuery interface {
	// FindStale returns listings in one of statuses whose last sync is older
	// than before (or never happened), oldest first.
	FindStale(ctx context.Context, statuses []ListingStatus, before time.Time, limit int) ([]MarketplaceListing, error)
}

// AccountRepository persists marketplace accounts
type AccountRepository interface {
	// FindByMarketplace returns the account, or ErrAccountNotFound
	FindByMarketplace(ctx context.Context, code Code) (*MarketplaceAccount, error)
	Save(ctx context.Context, account *MarketplaceAccount) error
	Delete(ctx context.Context, code Code) error
}
