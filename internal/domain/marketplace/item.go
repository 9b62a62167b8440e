package marketplace

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an item is created without a currency
const DefaultCurrency = "USD"

// DefaultCategoryID is the eBay leaf category used when an item has none
const DefaultCategoryID = "11450"

// ---------------------------------------------------------------------------
// Condition
// ---------------------------------------------------------------------------

// Condition describes the physical condition of an item
type Condition string

const (
	ConditionNew      Condition = "NEW"
	ConditionLikeNew  Condition = "LIKE_NEW"
	ConditionUsedGood Condition = "USED_GOOD"
	ConditionUsedFair Condition = "USED_FAIR"
	ConditionForParts Condition = "FOR_PARTS"
)

// IsValid returns true if the condition is a known value
func (c Condition) IsValid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionUsedGood, ConditionUsedFair, ConditionForParts:
		return true
	default:
		return false
	}
}

// ParseCondition maps free-form seller input onto a Condition.
// Unrecognized input falls back to USED_GOOD.
func ParseCondition(s string) Condition {
	c := Condition(strings.ToUpper(strings.TrimSpace(s)))
	if c.IsValid() {
		return c
	}

	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "like"):
		return ConditionLikeNew
	case strings.Contains(lower, "new"):
		return ConditionNew
	case strings.Contains(lower, "parts"), strings.Contains(lower, "broken"):
		return ConditionForParts
	case strings.Contains(lower, "fair"):
		return ConditionUsedFair
	default:
		return ConditionUsedGood
	}
}

// ---------------------------------------------------------------------------
// ItemImage
// ---------------------------------------------------------------------------

// ItemImage is an ordered image reference attached to an item.
// Either StorageKey (object storage) or URL (externally hosted) is set.
type ItemImage struct {
	ID          uuid.UUID
	StorageKey  string
	URL         string
	ContentType string
	SortOrder   int
	CreatedAt   time.Time
}

// ---------------------------------------------------------------------------
// InventoryItem
// ---------------------------------------------------------------------------

// InventoryItem represents one sellable unit in the local inventory
type InventoryItem struct {
	ID          uuid.UUID
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Quantity    int
	SKU         string
	Condition   Condition
	Brand       string
	CategoryID  string
	Images      []ItemImage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewInventoryItem creates a new item with defaults applied
func NewInventoryItem(title string, price decimal.Decimal, quantity int) (*InventoryItem, error) {
	now := time.Now().UTC()
	item := &InventoryItem{
		ID:         uuid.New(),
		Title:      strings.TrimSpace(title),
		Price:      price,
		Currency:   DefaultCurrency,
		Quantity:   quantity,
		Condition:  ConditionUsedGood,
		CategoryID: DefaultCategoryID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks the item invariants
func (i *InventoryItem) Validate() error {
	if i.Title == "" {
		return ErrItemTitleRequired
	}
	if len(i.Title) > 255 {
		return ErrItemTitleTooLong
	}
	if !i.Price.IsPositive() {
		return ErrItemInvalidPrice
	}
	if i.Quantity < 0 {
		return ErrItemInvalidQuantity
	}
	if len(i.Currency) != 3 {
		return ErrItemInvalidCurrency
	}
	return nil
}

// ItemPatch carries optional field updates for an item
type ItemPatch struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Currency    *string
	Quantity    *int
	SKU         *string
	Condition   *Condition
	Brand       *string
	CategoryID  *string
}

// Apply applies the patch and re-validates the item
func (i *InventoryItem) Apply(p ItemPatch) error {
	updated := *i
	if p.Title != nil {
		updated.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		updated.Description = *p.Description
	}
	if p.Price != nil {
		updated.Price = *p.Price
	}
	if p.Currency != nil {
		updated.Currency = strings.ToUpper(*p.Currency)
	}
	if p.Quantity != nil {
		updated.Quantity = *p.Quantity
	}
	if p.SKU != nil {
		updated.SKU = strings.TrimSpace(*p.SKU)
	}
	if p.Condition != nil {
		updated.Condition = *p.Condition
	}
	if p.Brand != nil {
		updated.Brand = *p.Brand
	}
	if p.CategoryID != nil {
		updated.CategoryID = *p.CategoryID
	}
	if err := updated.Validate(); err != nil {
		return err
	}
	updated.UpdatedAt = time.Now().UTC()
	*i = updated
	return nil
}

// ListingSKU returns the marketplace-safe SKU for this item
func (i *InventoryItem) ListingSKU() string {
	if strings.TrimSpace(i.SKU) != "" {
		return SanitizeSKU(i.SKU)
	}
	return DefaultSKU(i.ID)
}

// SortedImages returns the images ordered by SortOrder
func (i *InventoryItem) SortedImages() []ItemImage {
	images := make([]ItemImage, len(i.Images))
	copy(images, i.Images)
	sort.SliceStable(images, func(a, b int) bool {
		return images[a].SortOrder < images[b].SortOrder
	})
	return images
}

// NextImageOrder returns the sort order for a newly appended image
func (i *InventoryItem) NextImageOrder() int {
	next := 0
	for _, img := range i.Images {
		if img.SortOrder >= next {
			next = img.SortOrder + 1
		}
	}
	return next
}

// FindImage returns the image with the given id
func (i *InventoryItem) FindImage(id uuid.UUID) (*ItemImage, error) {
	for idx := range i.Images {
		if i.Images[idx].ID == id {
			return &i.Images[idx], nil
		}
	}
	return nil, ErrImageNotFound
}
