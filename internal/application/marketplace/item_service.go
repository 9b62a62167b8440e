package marketplace

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxImageSize is the largest image accepted for upload
const MaxImageSize = 10 << 20

// ObjectStorage defines the object storage operations used for item images
// and automation artifacts. It is implemented by the infrastructure layer.
type ObjectStorage interface {
	PutObject(ctx context.Context, storageKey, contentType string, body io.Reader, size int64) error
	GetObject(ctx context.Context, storageKey string) (io.ReadCloser, error)
	GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error)
	DeleteObject(ctx context.Context, storageKey string) error
}

// ImageUpload is one uploaded image file
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ItemService handles inventory item management
type ItemService struct {
	items   marketplace.ItemRepository
	store   marketplace.InventoryStore
	storage ObjectStorage
	urlTTL  time.Duration
	logger  *zap.Logger
}

// NewItemService creates a new ItemService
func NewItemService(items marketplace.ItemRepository, store marketplace.InventoryStore, storage ObjectStorage, logger *zap.Logger) *ItemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ItemService{
		items:   items,
		store:   store,
		storage: storage,
		urlTTL:  time.Hour,
		logger:  logger,
	}
}

// Create creates a new inventory item
func (s *ItemService) Create(ctx context.Context, req CreateItemRequest) (*ItemResponse, error) {
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	item, err := marketplace.NewInventoryItem(req.Title, req.Price, quantity)
	if err != nil {
		return nil, err
	}
	item.Description = req.Description
	item.SKU = strings.TrimSpace(req.SKU)
	item.Brand = req.Brand
	if req.Currency != "" {
		item.Currency = strings.ToUpper(req.Currency)
	}
	if req.Condition != "" {
		item.Condition = marketplace.ParseCondition(req.Condition)
	}
	if req.CategoryID != "" {
		item.CategoryID = req.CategoryID
	}
	for i, raw := range req.ImageURLs {
		u := strings.TrimSpace(raw)
		if u == "" {
			continue
		}
		item.Images = append(item.Images, marketplace.ItemImage{
			ID:        uuid.New(),
			URL:       u,
			SortOrder: i,
			CreatedAt: item.CreatedAt,
		})
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	s.logger.Info("Inventory item created",
		logger.ItemID(item.ID.String()),
		zap.String("sku", item.ListingSKU()),
	)

	resp := s.toResponse(ctx, item, nil)
	return &resp, nil
}

// Get retrieves an item with its marketplace listings
func (s *ItemService) Get(ctx context.Context, id uuid.UUID) (*ItemResponse, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	listings, err := s.store.ListListings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	resp := s.toResponse(ctx, item, listings)
	return &resp, nil
}

// List returns a page of items
func (s *ItemService) List(ctx context.Context, q ListItemsQuery) (*ItemPage, error) {
	filter := marketplace.ItemFilter{
		Search:   strings.TrimSpace(q.Search),
		OrderBy:  q.OrderBy,
		OrderDir: q.OrderDir,
		Page:     q.Page,
		PageSize: q.PageSize,
	}
	if q.Status != "" {
		status := marketplace.ListingStatus(strings.ToUpper(q.Status))
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatusFilter, q.Status)
		}
		filter.Status = status
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	if filter.PageSize > 100 {
		filter.PageSize = 100
	}

	items, total, err := s.items.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}

	page := &ItemPage{
		Items:    make([]ItemResponse, 0, len(items)),
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	for i := range items {
		page.Items = append(page.Items, s.toResponse(ctx, &items[i], nil))
	}
	return page, nil
}

// Update applies a partial update to an item
func (s *ItemService) Update(ctx context.Context, id uuid.UUID, req UpdateItemRequest) (*ItemResponse, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	patch := marketplace.ItemPatch{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
		Quantity:    req.Quantity,
		SKU:         req.SKU,
		Brand:       req.Brand,
		CategoryID:  req.CategoryID,
	}
	if req.Condition != nil {
		c := marketplace.ParseCondition(*req.Condition)
		patch.Condition = &c
	}
	if err := item.Apply(patch); err != nil {
		return nil, err
	}

	if err := s.items.Update(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}

	listings, err := s.store.ListListings(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}
	resp := s.toResponse(ctx, item, listings)
	return &resp, nil
}

// Delete removes an item that has no live marketplace listings
func (s *ItemService) Delete(ctx context.Context, id uuid.UUID) error {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return err
	}
	listings, err := s.store.ListListings(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load listings: %w", err)
	}
	for _, l := range listings {
		if l.Status.IsLive() {
			return fmt.Errorf("%w: %s is %s", marketplace.ErrItemHasLiveListings, l.Marketplace, l.Status)
		}
	}

	if err := s.items.Delete(ctx, id); err != nil {
		return err
	}

	for _, img := range item.Images {
		s.deleteStoredImage(ctx, img)
	}
	s.logger.Info("Inventory item deleted", logger.ItemID(id.String()))
	return nil
}

// AddImage stores an uploaded image and appends it to the item
func (s *ItemService) AddImage(ctx context.Context, id uuid.UUID, upload ImageUpload) (*ImageResponse, error) {
	if s.storage == nil {
		return nil, ErrStorageNotConfigured
	}
	if upload.Size > MaxImageSize {
		return nil, ErrImageTooLarge
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImage, upload.ContentType)
	}

	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	imageID := uuid.New()
	key := imageStorageKey(item.ID, imageID, upload.Filename)
	if err := s.storage.PutObject(ctx, key, contentType, upload.Body, upload.Size); err != nil {
		return nil, fmt.Errorf("failed to store image: %w", err)
	}

	img := marketplace.ItemImage{
		ID:          imageID,
		StorageKey:  key,
		ContentType: contentType,
		SortOrder:   item.NextImageOrder(),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.items.AddImage(ctx, item.ID, &img); err != nil {
		s.deleteStoredImage(ctx, img)
		return nil, fmt.Errorf("failed to save image: %w", err)
	}

	s.logger.Info("Item image added",
		logger.ItemID(item.ID.String()),
		zap.String("storage_key", key),
		zap.Int64("size", upload.Size),
	)

	resp := s.imageResponse(ctx, img)
	return &resp, nil
}

// RemoveImage deletes an image from an item and from storage
func (s *ItemService) RemoveImage(ctx context.Context, itemID, imageID uuid.UUID) error {
	item, err := s.items.FindByID(ctx, itemID)
	if err != nil {
		return err
	}
	img, err := item.FindImage(imageID)
	if err != nil {
		return err
	}
	if err := s.items.DeleteImage(ctx, itemID, imageID); err != nil {
		return err
	}
	s.deleteStoredImage(ctx, *img)
	return nil
}

func (s *ItemService) deleteStoredImage(ctx context.Context, img marketplace.ItemImage) {
	if img.StorageKey == "" || s.storage == nil {
		return
	}
	if err := s.storage.DeleteObject(ctx, img.StorageKey); err != nil {
		s.logger.Warn("Failed to delete image object",
			zap.String("storage_key", img.StorageKey),
			zap.Error(err),
		)
	}
}

func (s *ItemService) toResponse(ctx context.Context, item *marketplace.InventoryItem, listings []marketplace.MarketplaceListing) ItemResponse {
	resp := ToItemResponse(item, listings)
	for i, img := range item.SortedImages() {
		resp.Images[i] = s.imageResponse(ctx, img)
	}
	return resp
}

func (s *ItemService) imageResponse(ctx context.Context, img marketplace.ItemImage) ImageResponse {
	resp := ImageResponse{
		ID:          img.ID,
		URL:         img.URL,
		ContentType: img.ContentType,
		SortOrder:   img.SortOrder,
	}
	if img.StorageKey != "" && s.storage != nil {
		u, _, err := s.storage.GenerateDownloadURL(ctx, img.StorageKey, s.urlTTL)
		if err != nil {
			s.logger.Warn("Failed to sign image URL", zap.String("storage_key", img.StorageKey), zap.Error(err))
		} else {
			resp.URL = u
		}
	}
	return resp
}

// imageStorageKey builds items/<item>/<image><ext>
func imageStorageKey(itemID, imageID uuid.UUID, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif", ".heic":
	default:
		ext = ".jpg"
	}
	return fmt.Sprintf("items/%s/%s%s", itemID, imageID, ext)
}
