package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultItemPageSize = 20
	maxItemPageSize     = 100
)

// GormItemRepository implements marketplace.ItemRepository using GORM
type GormItemRepository struct {
	db *gorm.DB
}

// NewGormItemRepository creates a new GormItemRepository
func NewGormItemRepository(db *gorm.DB) *GormItemRepository {
	return &GormItemRepository{db: db}
}

func preloadImages(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC, created_at ASC")
}

// Create inserts an item together with any images it already carries
func (r *GormItemRepository) Create(ctx context.Context, item *marketplace.InventoryItem) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := &models.InventoryItemModel{}
		model.FromDomain(item)
		if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
			return err
		}
		for i := range item.Images {
			img := &models.ItemImageModel{}
			img.FromDomain(item.ID, &item.Images[i])
			if err := tx.Create(img).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Update saves the item's scalar fields. Images are managed through AddImage and DeleteImage.
func (r *GormItemRepository) Update(ctx context.Context, item *marketplace.InventoryItem) error {
	model := &models.InventoryItemModel{}
	model.FromDomain(item)
	result := r.db.WithContext(ctx).Omit(clause.Associations).Save(model)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// Delete removes an item with its images and listings
func (r *GormItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("item_id = ?", id).Delete(&models.MarketplaceListingModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("item_id = ?", id).Delete(&models.ItemImageModel{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.InventoryItemModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return marketplace.ErrItemNotFound
		}
		return nil
	})
}

// FindByID finds an item by its ID, images ordered by sort order
func (r *GormItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*marketplace.InventoryItem, error) {
	var model models.InventoryItemModel
	if err := r.db.WithContext(ctx).
		Preload("Images", preloadImages).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplace.ErrItemNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// List returns a page of items matching the filter, newest first unless the
// filter orders otherwise, and the total count
func (r *GormItemRepository) List(ctx context.Context, filter marketplace.ItemFilter) ([]marketplace.InventoryItem, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryItemModel{})

	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(sku) LIKE ? OR LOWER(brand) LIKE ?", like, like, like)
	}
	if filter.Status != "" {
		query = query.Where(
			"EXISTS (SELECT 1 FROM marketplace_listings ml WHERE ml.item_id = inventory_items.id AND ml.status = ?)",
			string(filter.Status),
		)
	}

	// share the filtered statement between the count and the page query
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)

	var rows []models.InventoryItemModel
	if err := query.
		Preload("Images", preloadImages).
		Order(orderClause(filter.OrderBy, filter.OrderDir, ItemSortFields, "created_at")).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	items := make([]marketplace.InventoryItem, 0, len(rows))
	for i := range rows {
		items = append(items, *rows[i].ToDomain())
	}
	return items, total, nil
}

// AddImage attaches an image to an existing item
func (r *GormItemRepository) AddImage(ctx context.Context, itemID uuid.UUID, image *marketplace.ItemImage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.InventoryItemModel{}).Where("id = ?", itemID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return marketplace.ErrItemNotFound
		}
		model := &models.ItemImageModel{}
		model.FromDomain(itemID, image)
		return tx.Create(model).Error
	})
}

// DeleteImage removes one image of an item
func (r *GormItemRepository) DeleteImage(ctx context.Context, itemID, imageID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND item_id = ?", imageID, itemID).
		Delete(&models.ItemImageModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplace.ErrImageNotFound
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultItemPageSize
	}
	if pageSize > maxItemPageSize {
		pageSize = maxItemPageSize
	}
	return page, pageSize
}

// Ensure GormItemRepository implements the interface
var _ marketplace.ItemRepository = (*GormItemRepository)(nil)
