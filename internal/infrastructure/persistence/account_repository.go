package persistence

import (
	"context"
	"errors"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountRepository implements marketplace.AccountRepository using GORM
type GormAccountRepository struct {
	db *gorm.DB
}

// NewGormAccountRepository creates a new GormAccountRepository
func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

// FindByMarketplace returns the single account connected for a marketplace
func (r *GormAccountRepository) FindByMarketplace(ctx context.Context, code marketplace.Code) (*marketplace.MarketplaceAccount, error) {
	var model models.MarketplaceAccountModel
	if err := r.db.WithContext(ctx).First(&model, "marketplace = ?", string(code)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, marketplace.ErrAccountNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save inserts the account or overwrites the stored credentials of its marketplace
func (r *GormAccountRepository) Save(ctx context.Context, account *marketplace.MarketplaceAccount) error {
	model := &models.MarketplaceAccountModel{}
	model.FromDomain(account)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "marketplace"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"username", "access_token", "refresh_token", "token_expires_at", "session_cookies", "updated_at",
			}),
		}).
		Create(model).Error
}

// Delete removes the marketplace's account
func (r *GormAccountRepository) Delete(ctx context.Context, code marketplace.Code) error {
	result := r.db.WithContext(ctx).Where("marketplace = ?", string(code)).Delete(&models.MarketplaceAccountModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return marketplace.ErrAccountNotFound
	}
	return nil
}

var _ marketplace.AccountRepository = (*GormAccountRepository)(nil)
