package marketplace

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Mocks
// ============================================================================

// MockItemRepository is a mock implementation of marketplace.ItemRepository
type MockItemRepository struct {
	mock.Mock
}

func (m *MockItemRepository) Create(ctx context.Context, item *marketplace.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockItemRepository) Update(ctx context.Context, item *marketplace.InventoryItem) error {
	return m.Called(ctx, item).Error(0)
}

func (m *MockItemRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*marketplace.InventoryItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*marketplace.InventoryItem), args.Error(1)
}

func (m *MockItemRepository) List(ctx context.Context, filter marketplace.ItemFilter) ([]marketplace.InventoryItem, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]marketplace.InventoryItem), args.Get(1).(int64), args.Error(2)
}

func (m *MockItemRepository) AddImage(ctx context.Context, itemID uuid.UUID, image *marketplace.ItemImage) error {
	return m.Called(ctx, itemID, image).Error(0)
}

func (m *MockItemRepository) DeleteImage(ctx context.Context, itemID, imageID uuid.UUID) error {
	return m.Called(ctx, itemID, imageID).Error(0)
}

// MockObjectStorage is a mock implementation of ObjectStorage
type MockObjectStorage struct {
	mock.Mock
}

func (m *MockObjectStorage) PutObject(ctx context.Context, storageKey, contentType string, body io.Reader, size int64) error {
	return m.Called(ctx, storageKey, contentType, body, size).Error(0)
}

func (m *MockObjectStorage) GetObject(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	args := m.Called(ctx, storageKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockObjectStorage) GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	args := m.Called(ctx, storageKey, expiresIn)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockObjectStorage) DeleteObject(ctx context.Context, storageKey string) error {
	return m.Called(ctx, storageKey).Error(0)
}

func newItemServiceUnderTest() (*ItemService, *MockItemRepository, *memoryStore, *MockObjectStorage) {
	repo := new(MockItemRepository)
	store := newMemoryStore()
	storage := new(MockObjectStorage)
	return NewItemService(repo, store, storage, nil), repo, store, storage
}

// ============================================================================
// Tests
// ============================================================================

func TestItemService_Create(t *testing.T) {
	svc, repo, _, _ := newItemServiceUnderTest()
	repo.On("Create", mock.Anything, mock.AnythingOfType("*marketplace.InventoryItem")).Return(nil)

	qty := 2
	resp, err := svc.Create(context.Background(), CreateItemRequest{
		Title:     "  Coach Tabby Bag ",
		Price:     decimal.NewFromFloat(120.5),
		Quantity:  &qty,
		SKU:       "coach tabby #1",
		Condition: "like new",
		Brand:     "Coach",
		ImageURLs: []string{"https://img.example.com/a.jpg", " ", "https://img.example.com/b.jpg"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Coach Tabby Bag", resp.Title)
	assert.Equal(t, 2, resp.Quantity)
	assert.Equal(t, "USD", resp.Currency)
	assert.Equal(t, "LIKE_NEW", resp.Condition)
	assert.Equal(t, "coach-tabby-1", resp.ListingSKU)
	require.Len(t, resp.Images, 2)
	assert.Equal(t, "https://img.example.com/a.jpg", resp.Images[0].URL)
	repo.AssertExpectations(t)
}

func TestItemService_Create_DefaultsQuantityToOne(t *testing.T) {
	svc, repo, _, _ := newItemServiceUnderTest()
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	resp, err := svc.Create(context.Background(), CreateItemRequest{Title: "Scarf", Price: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Quantity)
}

func TestItemService_Create_Validation(t *testing.T) {
	svc, repo, _, _ := newItemServiceUnderTest()

	_, err := svc.Create(context.Background(), CreateItemRequest{Title: "", Price: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, marketplace.ErrItemTitleRequired)

	_, err = svc.Create(context.Background(), CreateItemRequest{Title: "Hat", Price: decimal.Zero})
	assert.ErrorIs(t, err, marketplace.ErrItemInvalidPrice)

	_, err = svc.Create(context.Background(), CreateItemRequest{Title: "Hat", Price: decimal.NewFromInt(5), Currency: "EURO"})
	assert.ErrorIs(t, err, marketplace.ErrItemInvalidCurrency)

	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestItemService_Get_IncludesListingsAndSignedURLs(t *testing.T) {
	svc, repo, store, storage := newItemServiceUnderTest()
	item := testItem(t)
	item.Images = []marketplace.ItemImage{{ID: uuid.New(), StorageKey: "items/x/1.jpg", SortOrder: 0}}
	repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)
	store.putListing(listingWith(t, item.ID, marketplace.CodeEbay, marketplace.StatusActive, "E1"))
	storage.On("GenerateDownloadURL", mock.Anything, "items/x/1.jpg", time.Hour).
		Return("https://s3.example.com/items/x/1.jpg?sig=1", time.Now().Add(time.Hour), nil)

	resp, err := svc.Get(context.Background(), item.ID)
	require.NoError(t, err)
	require.Len(t, resp.Listings, 1)
	assert.Equal(t, "E1", resp.Listings[0].RemoteID)
	assert.Equal(t, "https://s3.example.com/items/x/1.jpg?sig=1", resp.Images[0].URL)
}

func TestItemService_Get_NotFound(t *testing.T) {
	svc, repo, _, _ := newItemServiceUnderTest()
	id := uuid.New()
	repo.On("FindByID", mock.Anything, id).Return(nil, marketplace.ErrItemNotFound)

	_, err := svc.Get(context.Background(), id)
	assert.ErrorIs(t, err, marketplace.ErrItemNotFound)
}

func TestItemService_List(t *testing.T) {
	svc, repo, _, _ := newItemServiceUnderTest()
	item := testItem(t)
	repo.On("List", mock.Anything, marketplace.ItemFilter{Search: "levi", Status: marketplace.StatusActive, Page: 1, PageSize: 100}).
		Return([]marketplace.InventoryItem{*item}, int64(1), nil)

	page, err := svc.List(context.Background(), ListItemsQuery{Search: " levi ", Status: "active", PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total)
	assert.Equal(t, 100, page.PageSize)
	assert.Len(t, page.Items, 1)

	_, err = svc.List(context.Background(), ListItemsQuery{Status: "sold"})
	assert.ErrorIs(t, err, ErrInvalidStatusFilter)
}

func TestItemService_Update(t *testing.T) {
	svc, repo, _, _ := newItemServiceUnderTest()
	item := testItem(t)
	repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)
	repo.On("Update", mock.Anything, item).Return(nil)

	price := decimal.NewFromFloat(39.99)
	cond := "new with tags"
	resp, err := svc.Update(context.Background(), item.ID, UpdateItemRequest{Price: &price, Condition: &cond})
	require.NoError(t, err)
	assert.True(t, resp.Price.Equal(price))
	assert.Equal(t, "NEW", resp.Condition)

	negative := -1
	_, err = svc.Update(context.Background(), item.ID, UpdateItemRequest{Quantity: &negative})
	assert.ErrorIs(t, err, marketplace.ErrItemInvalidQuantity)
}

func TestItemService_Delete_RefusesLiveListings(t *testing.T) {
	for _, status := range []marketplace.ListingStatus{marketplace.StatusActive, marketplace.StatusPending} {
		t.Run(string(status), func(t *testing.T) {
			svc, repo, store, _ := newItemServiceUnderTest()
			item := testItem(t)
			repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)
			store.putListing(listingWith(t, item.ID, marketplace.CodePoshmark, status, "P1"))

			err := svc.Delete(context.Background(), item.ID)
			assert.ErrorIs(t, err, marketplace.ErrItemHasLiveListings)
			repo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		})
	}
}

func TestItemService_Delete_RemovesStoredImages(t *testing.T) {
	svc, repo, store, storage := newItemServiceUnderTest()
	item := testItem(t)
	item.Images = []marketplace.ItemImage{
		{ID: uuid.New(), StorageKey: "items/a.jpg"},
		{ID: uuid.New(), URL: "https://img.example.com/b.jpg"},
	}
	repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)
	repo.On("Delete", mock.Anything, item.ID).Return(nil)
	store.putListing(listingWith(t, item.ID, marketplace.CodeEbay, marketplace.StatusRemoved, ""))
	storage.On("DeleteObject", mock.Anything, "items/a.jpg").Return(errors.New("access denied"))

	require.NoError(t, svc.Delete(context.Background(), item.ID))
	storage.AssertNumberOfCalls(t, "DeleteObject", 1)
}

func TestItemService_AddImage(t *testing.T) {
	svc, repo, _, storage := newItemServiceUnderTest()
	item := testItem(t)
	item.Images = []marketplace.ItemImage{{ID: uuid.New(), URL: "https://img.example.com/a.jpg", SortOrder: 0}}
	repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)

	keyPrefix := "items/" + item.ID.String() + "/"
	storage.On("PutObject", mock.Anything, mock.MatchedBy(func(k string) bool {
		return strings.HasPrefix(k, keyPrefix) && strings.HasSuffix(k, ".png")
	}), "image/png", mock.Anything, int64(4)).Return(nil)
	repo.On("AddImage", mock.Anything, item.ID, mock.MatchedBy(func(img *marketplace.ItemImage) bool {
		return img.SortOrder == 1 && img.ContentType == "image/png"
	})).Return(nil)
	storage.On("GenerateDownloadURL", mock.Anything, mock.Anything, time.Hour).
		Return("https://s3.example.com/signed", time.Now().Add(time.Hour), nil)

	resp, err := svc.AddImage(context.Background(), item.ID, ImageUpload{
		Filename: "front.PNG", ContentType: "image/png", Size: 4, Body: strings.NewReader("\x89PNG"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SortOrder)
	assert.Equal(t, "https://s3.example.com/signed", resp.URL)
}

func TestItemService_AddImage_Rejections(t *testing.T) {
	svc, _, _, storage := newItemServiceUnderTest()
	id := uuid.New()

	_, err := svc.AddImage(context.Background(), id, ImageUpload{ContentType: "image/jpeg", Size: MaxImageSize + 1})
	assert.ErrorIs(t, err, ErrImageTooLarge)

	_, err = svc.AddImage(context.Background(), id, ImageUpload{ContentType: "application/pdf", Size: 10})
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	storage.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	noStorage := NewItemService(new(MockItemRepository), newMemoryStore(), nil, nil)
	_, err = noStorage.AddImage(context.Background(), id, ImageUpload{ContentType: "image/jpeg", Size: 1})
	assert.ErrorIs(t, err, ErrStorageNotConfigured)
}

func TestItemService_AddImage_RollsBackObjectOnSaveFailure(t *testing.T) {
	svc, repo, _, storage := newItemServiceUnderTest()
	item := testItem(t)
	repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)
	storage.On("PutObject", mock.Anything, mock.Anything, "image/jpeg", mock.Anything, int64(3)).Return(nil)
	repo.On("AddImage", mock.Anything, item.ID, mock.Anything).Return(errors.New("disk full"))
	storage.On("DeleteObject", mock.Anything, mock.Anything).Return(nil)

	_, err := svc.AddImage(context.Background(), item.ID, ImageUpload{
		Filename: "a.jpg", ContentType: "image/jpeg", Size: 3, Body: strings.NewReader("abc"),
	})
	require.Error(t, err)
	storage.AssertNumberOfCalls(t, "DeleteObject", 1)
}

func TestItemService_RemoveImage(t *testing.T) {
	svc, repo, _, storage := newItemServiceUnderTest()
	item := testItem(t)
	imgID := uuid.New()
	item.Images = []marketplace.ItemImage{{ID: imgID, StorageKey: "items/a.jpg"}}
	repo.On("FindByID", mock.Anything, item.ID).Return(item, nil)
	repo.On("DeleteImage", mock.Anything, item.ID, imgID).Return(nil)
	storage.On("DeleteObject", mock.Anything, "items/a.jpg").Return(nil)

	require.NoError(t, svc.RemoveImage(context.Background(), item.ID, imgID))

	err := svc.RemoveImage(context.Background(), item.ID, uuid.New())
	assert.ErrorIs(t, err, marketplace.ErrImageNotFound)
}

func TestImageStorageKey(t *testing.T) {
	itemID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	imageID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	assert.Equal(t, "items/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.webp",
		imageStorageKey(itemID, imageID, "shot.WEBP"))
	assert.Equal(t, "items/11111111-1111-1111-1111-111111111111/22222222-2222-2222-2222-222222222222.jpg",
		imageStorageKey(itemID, imageID, "payload.exe"))
}
