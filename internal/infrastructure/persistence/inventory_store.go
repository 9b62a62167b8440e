package persistence

import (
	"context"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormInventoryStore is the orchestrator's view of items and listings
type GormInventoryStore struct {
	items    *GormItemRepository
	listings *GormListingRepository
}

// NewGormInventoryStore creates a store over one GORM connection
func NewGormInventoryStore(db *gorm.DB) *GormInventoryStore {
	return &GormInventoryStore{
		items:    NewGormItemRepository(db),
		listings: NewGormListingRepository(db),
	}
}

// GetItem returns the item with its images
func (s *GormInventoryStore) GetItem(ctx context.Context, id uuid.UUID) (*marketplace.InventoryItem, error) {
	return s.items.FindByID(ctx, id)
}

// GetListing returns the listing of one pair
func (s *GormInventoryStore) GetListing(ctx context.Context, itemID uuid.UUID, code marketplace.Code) (*marketplace.MarketplaceListing, error) {
	return s.listings.GetListing(ctx, itemID, code)
}

// UpsertListing writes the pair's listing
func (s *GormInventoryStore) UpsertListing(ctx context.Context, listing *marketplace.MarketplaceListing) error {
	return s.listings.UpsertListing(ctx, listing)
}

// ListListings returns the item's listings
func (s *GormInventoryStore) ListListings(ctx context.Context, itemID uuid.UUID) ([]marketplace.MarketplaceListing, error) {
	return s.listings.ListListings(ctx, itemID)
}

var _ marketplace.InventoryStore = (*GormInventoryStore)(nil)
