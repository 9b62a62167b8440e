package models

import (
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryItemModel is the persistence model for the InventoryItem entity.
type InventoryItemModel struct {
	ID          uuid.UUID        `gorm:"type:uuid;primary_key"`
	Title       string           `gorm:"type:varchar(255);not null"`
	Description string           `gorm:"type:text"`
	Price       decimal.Decimal  `gorm:"type:decimal(10,2);not null"`
	Currency    string           `gorm:"type:varchar(3);not null;default:'USD'"`
	Quantity    int              `gorm:"not null;default:1"`
	SKU         string           `gorm:"type:varchar(100);index"`
	Condition   string           `gorm:"type:varchar(30);not null;default:'USED_GOOD'"`
	Brand       string           `gorm:"type:varchar(255)"`
	CategoryID  string           `gorm:"type:varchar(50)"`
	Images      []ItemImageModel `gorm:"foreignKey:ItemID"`
	CreatedAt   time.Time        `gorm:"not null"`
	UpdatedAt   time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InventoryItemModel) TableName() string {
	return "inventory_items"
}

// ToDomain converts the persistence model to a domain InventoryItem.
func (m *InventoryItemModel) ToDomain() *marketplace.InventoryItem {
	item := &marketplace.InventoryItem{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Price:       m.Price,
		Currency:    m.Currency,
		Quantity:    m.Quantity,
		SKU:         m.SKU,
		Condition:   marketplace.Condition(m.Condition),
		Brand:       m.Brand,
		CategoryID:  m.CategoryID,
		Images:      make([]marketplace.ItemImage, 0, len(m.Images)),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	for i := range m.Images {
		item.Images = append(item.Images, m.Images[i].ToDomain())
	}
	return item
}

// FromDomain populates the model from a domain InventoryItem. Images are
// persisted separately.
func (m *InventoryItemModel) FromDomain(item *marketplace.InventoryItem) {
	m.ID = item.ID
	m.Title = item.Title
	m.Description = item.Description
	m.Price = item.Price
	m.Currency = item.Currency
	m.Quantity = item.Quantity
	m.SKU = item.SKU
	m.Condition = string(item.Condition)
	m.Brand = item.Brand
	m.CategoryID = item.CategoryID
	m.CreatedAt = item.CreatedAt
	m.UpdatedAt = item.UpdatedAt
}

// ItemImageModel is the persistence model for an ItemImage.
type ItemImageModel struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	ItemID      uuid.UUID `gorm:"type:uuid;not null;index:idx_item_images_item_order,priority:1"`
	StorageKey  string    `gorm:"type:varchar(512)"`
	URL         string    `gorm:"type:varchar(1024)"`
	ContentType string    `gorm:"type:varchar(100)"`
	SortOrder   int       `gorm:"not null;default:0;index:idx_item_images_item_order,priority:2"`
	CreatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ItemImageModel) TableName() string {
	return "item_images"
}

// ToDomain converts the model to a domain ItemImage
func (m *ItemImageModel) ToDomain() marketplace.ItemImage {
	return marketplace.ItemImage{
		ID:          m.ID,
		StorageKey:  m.StorageKey,
		URL:         m.URL,
		ContentType: m.ContentType,
		SortOrder:   m.SortOrder,
		CreatedAt:   m.CreatedAt,
	}
}

// FromDomain populates the model from a domain ItemImage
func (m *ItemImageModel) FromDomain(itemID uuid.UUID, img *marketplace.ItemImage) {
	m.ID = img.ID
	m.ItemID = itemID
	m.StorageKey = img.StorageKey
	m.URL = img.URL
	m.ContentType = img.ContentType
	m.SortOrder = img.SortOrder
	m.CreatedAt = img.CreatedAt
}

// MarketplaceListingModel is the persistence model for a MarketplaceListing.
// The unique index on (item_id, marketplace) keeps one row per pair.
type MarketplaceListingModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	ItemID        uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:uq_marketplace_listings_pair,priority:1"`
	Marketplace   string     `gorm:"type:varchar(20);not null;uniqueIndex:uq_marketplace_listings_pair,priority:2"`
	RemoteID      string     `gorm:"type:varchar(100)"`
	SKU           string     `gorm:"type:varchar(100)"`
	OfferID       string     `gorm:"type:varchar(100)"`
	ExternalURL   string     `gorm:"type:varchar(512)"`
	Status        string     `gorm:"type:varchar(20);not null;default:'UNLISTED';index:idx_marketplace_listings_status_sync,priority:1"`
	LastSyncAt    *time.Time `gorm:"index:idx_marketplace_listings_status_sync,priority:2"`
	LastError     string     `gorm:"type:text"`
	LastErrorKind string     `gorm:"type:varchar(40)"`
	Attempts      int        `gorm:"not null;default:0"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceListingModel) TableName() string {
	return "marketplace_listings"
}

// ToDomain converts the model to a domain MarketplaceListing
func (m *MarketplaceListingModel) ToDomain() *marketplace.MarketplaceListing {
	return &marketplace.MarketplaceListing{
		ID:            m.ID,
		ItemID:        m.ItemID,
		Marketplace:   marketplace.Code(m.Marketplace),
		RemoteID:      m.RemoteID,
		SKU:           m.SKU,
		OfferID:       m.OfferID,
		ExternalURL:   m.ExternalURL,
		Status:        marketplace.ListingStatus(m.Status),
		LastSyncAt:    m.LastSyncAt,
		LastError:     m.LastError,
		LastErrorKind: marketplace.FailureKind(m.LastErrorKind),
		Attempts:      m.Attempts,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain MarketplaceListing
func (m *MarketplaceListingModel) FromDomain(l *marketplace.MarketplaceListing) {
	m.ID = l.ID
	m.ItemID = l.ItemID
	m.Marketplace = string(l.Marketplace)
	m.RemoteID = l.RemoteID
	m.SKU = l.SKU
	m.OfferID = l.OfferID
	m.ExternalURL = l.ExternalURL
	m.Status = string(l.Status)
	m.LastSyncAt = l.LastSyncAt
	m.LastError = l.LastError
	m.LastErrorKind = string(l.LastErrorKind)
	m.Attempts = l.Attempts
	m.CreatedAt = l.CreatedAt
	m.UpdatedAt = l.UpdatedAt
}

// MarketplaceAccountModel is the persistence model for a MarketplaceAccount.
type MarketplaceAccountModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	Marketplace    string    `gorm:"type:varchar(20);not null;uniqueIndex"`
	Username       string    `gorm:"type:varchar(255)"`
	AccessToken    string    `gorm:"type:text"`
	RefreshToken   string    `gorm:"type:text"`
	TokenExpiresAt *time.Time
	SessionCookies string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (MarketplaceAccountModel) TableName() string {
	return "marketplace_accounts"
}

// ToDomain converts the model to a domain MarketplaceAccount
func (m *MarketplaceAccountModel) ToDomain() *marketplace.MarketplaceAccount {
	return &marketplace.MarketplaceAccount{
		ID:             m.ID,
		Marketplace:    marketplace.Code(m.Marketplace),
		Username:       m.Username,
		AccessToken:    m.AccessToken,
		RefreshToken:   m.RefreshToken,
		TokenExpiresAt: m.TokenExpiresAt,
		SessionCookies: m.SessionCookies,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the model from a domain MarketplaceAccount
func (m *MarketplaceAccountModel) FromDomain(a *marketplace.MarketplaceAccount) {
	m.ID = a.ID
	m.Marketplace = string(a.Marketplace)
	m.Username = a.Username
	m.AccessToken = a.AccessToken
	m.RefreshToken = a.RefreshToken
	m.TokenExpiresAt = a.TokenExpiresAt
	m.SessionCookies = a.SessionCookies
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// AllModels lists every model for AutoMigrate
func AllModels() []any {
	return []any{
		&InventoryItemModel{},
		&ItemImageModel{},
		&MarketplaceListingModel{},
		&MarketplaceAccountModel{},
	}
}
