package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// listingUpsertColumns are overwritten when a (item_id, marketplace) row already exists
var listingUpsertColumns = []string{
	"remote_id",
	"sku",
	"offer_id",
	"external_url",
	"status",
	"last_sync_at",
	"last_error",
	"last_error_kind",
	"attempts",
	"updated_at",
}

// GormListingRepository persists marketplace listings using GORM
type GormListingRepository struct {
	db *gorm.DB
}

// NewGormListingRepository creates a new GormListingRepository
func NewGormListingRepository(db *gorm.DB) *GormListingRepository {
	return &GormListingRepository{db: db}
}

// GetListing returns the listing of one (item, marketplace) pair
func (r *GormListingRepository) GetListing(ctx context.Context, itemID uuid.UUID, code marketplace.Code) (*marketplace.MarketplaceListing, error) {
	var model models.MarketplaceListingModel
	if err := r.db.WithContext(ctx).
		Where("item_id = ? AND marketplace = ?", itemID, string(code)).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplace.ErrListingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpsertListing inserts the listing or replaces the mutable columns of the existing pair row.
// The row ID of an existing pair is preserved.
func (r *GormListingRepository) UpsertListing(ctx context.Context, listing *marketplace.MarketplaceListing) error {
	model := &models.MarketplaceListingModel{}
	model.FromDomain(listing)
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
		listing.ID = model.ID
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}, {Name: "marketplace"}},
			DoUpdates: clause.AssignmentColumns(listingUpsertColumns),
		}).
		Create(model).Error
}

// ListListings returns every listing of an item ordered by marketplace
func (r *GormListingRepository) ListListings(ctx context.Context, itemID uuid.UUID) ([]marketplace.MarketplaceListing, error) {
	var rows []models.MarketplaceListingModel
	if err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("marketplace ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toListings(rows), nil
}

// FindStale returns listings in the given statuses not synced since before, oldest first
func (r *GormListingRepository) FindStale(ctx context.Context, statuses []marketplace.ListingStatus, before time.Time, limit int) ([]marketplace.MarketplaceListing, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query := r.db.WithContext(ctx).
		Where("status IN ?", names).
		Where("last_sync_at IS NULL OR last_sync_at < ?", before).
		Order("last_sync_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []models.MarketplaceListingModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return toListings(rows), nil
}

// CountByStatus returns the number of listings per status
func (r *GormListingRepository) CountByStatus(ctx context.Context) (map[marketplace.ListingStatus]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.MarketplaceListingModel{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[marketplace.ListingStatus]int64, len(rows))
	for _, row := range rows {
		counts[marketplace.ListingStatus(row.Status)] = row.Count
	}
	return counts, nil
}

func toListings(rows []models.MarketplaceListingModel) []marketplace.MarketplaceListing {
	listings := make([]marketplace.MarketplaceListing, 0, len(rows))
	for i := range rows {
		listings = append(listings, *rows[i].ToDomain())
	}
	return listings
}

var _ marketplace.ListingQuery = (*GormListingRepository)(nil)
