package persistence

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(context.Background(), &config.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "crosslist.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.AutoMigrate())
	return db.DB
}

func newTestItem(t *testing.T, title string) *marketplace.InventoryItem {
	t.Helper()
	item, err := marketplace.NewInventoryItem(title, decimal.RequireFromString("49.99"), 1)
	require.NoError(t, err)
	return item
}

func TestGormItemRepository_CreateAndFind(t *testing.T) {
	repo := NewGormItemRepository(setupSQLite(t))
	ctx := context.Background()

	item := newTestItem(t, "Patagonia Synchilla Fleece")
	item.SKU = "PAT-001"
	now := time.Now().UTC()
	item.Images = []marketplace.ItemImage{
		{ID: uuid.New(), URL: "https://cdn.example/2.jpg", SortOrder: 1, CreatedAt: now},
		{ID: uuid.New(), StorageKey: "items/1.jpg", SortOrder: 0, CreatedAt: now},
	}
	require.NoError(t, repo.Create(ctx, item))

	found, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Patagonia Synchilla Fleece", found.Title)
	assert.Equal(t, "PAT-001", found.SKU)
	assert.True(t, found.Price.Equal(decimal.RequireFromString("49.99")))
	require.Len(t, found.Images, 2)
	assert.Equal(t, "items/1.jpg", found.Images[0].StorageKey)
	assert.Equal(t, "https://cdn.example/2.jpg", found.Images[1].URL)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, marketplace.ErrItemNotFound)
}

func TestGormItemRepository_UpdateAndDelete(t *testing.T) {
	db := setupSQLite(t)
	repo := NewGormItemRepository(db)
	listings := NewGormListingRepository(db)
	ctx := context.Background()

	item := newTestItem(t, "Nike Dunk Low")
	require.NoError(t, repo.Create(ctx, item))

	item.Title = "Nike Dunk Low Panda"
	item.Quantity = 3
	require.NoError(t, repo.Update(ctx, item))

	found, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nike Dunk Low Panda", found.Title)
	assert.Equal(t, 3, found.Quantity)

	listing, err := marketplace.NewMarketplaceListing(item.ID, marketplace.CodeEbay)
	require.NoError(t, err)
	require.NoError(t, listings.UpsertListing(ctx, listing))

	require.NoError(t, repo.Delete(ctx, item.ID))
	_, err = repo.FindByID(ctx, item.ID)
	assert.ErrorIs(t, err, marketplace.ErrItemNotFound)
	_, err = listings.GetListing(ctx, item.ID, marketplace.CodeEbay)
	assert.ErrorIs(t, err, marketplace.ErrListingNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, item.ID), marketplace.ErrItemNotFound)
}

func TestGormItemRepository_Images(t *testing.T) {
	repo := NewGormItemRepository(setupSQLite(t))
	ctx := context.Background()

	item := newTestItem(t, "Carhartt Detroit Jacket")
	require.NoError(t, repo.Create(ctx, item))

	img := &marketplace.ItemImage{ID: uuid.New(), StorageKey: "items/front.jpg", ContentType: "image/jpeg", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.AddImage(ctx, item.ID, img))
	assert.ErrorIs(t, repo.AddImage(ctx, uuid.New(), img), marketplace.ErrItemNotFound)

	found, err := repo.FindByID(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, found.Images, 1)
	assert.Equal(t, "image/jpeg", found.Images[0].ContentType)

	require.NoError(t, repo.DeleteImage(ctx, item.ID, img.ID))
	assert.ErrorIs(t, repo.DeleteImage(ctx, item.ID, img.ID), marketplace.ErrImageNotFound)
}

func TestGormItemRepository_List(t *testing.T) {
	db := setupSQLite(t)
	repo := NewGormItemRepository(db)
	listings := NewGormListingRepository(db)
	ctx := context.Background()

	titles := []string{"Levi's 501 Jeans", "Levi's Trucker Jacket", "Coach Tabby Bag"}
	prices := []string{"40.00", "85.00", "250.00"}
	created := make([]*marketplace.InventoryItem, 0, len(titles))
	for i, title := range titles {
		item := newTestItem(t, title)
		item.Price = decimal.RequireFromString(prices[i])
		item.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, item))
		created = append(created, item)
	}

	active, err := marketplace.NewMarketplaceListing(created[2].ID, marketplace.CodePoshmark)
	require.NoError(t, err)
	active.Status = marketplace.StatusActive
	require.NoError(t, listings.UpsertListing(ctx, active))

	t.Run("newest first by default", func(t *testing.T) {
		items, total, err := repo.List(ctx, marketplace.ItemFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, items, 3)
		assert.Equal(t, "Coach Tabby Bag", items[0].Title)
	})

	t.Run("search is case insensitive", func(t *testing.T) {
		items, total, err := repo.List(ctx, marketplace.ItemFilter{Search: "LEVI", OrderBy: "price", OrderDir: "asc"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, items, 2)
		assert.Equal(t, "Levi's 501 Jeans", items[0].Title)
	})

	t.Run("status filter", func(t *testing.T) {
		items, total, err := repo.List(ctx, marketplace.ItemFilter{Status: marketplace.StatusActive})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, items, 1)
		assert.Equal(t, created[2].ID, items[0].ID)
	})

	t.Run("pagination keeps total", func(t *testing.T) {
		items, total, err := repo.List(ctx, marketplace.ItemFilter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		require.Len(t, items, 1)
		assert.Equal(t, "Levi's 501 Jeans", items[0].Title)
	})

	t.Run("unknown order column falls back", func(t *testing.T) {
		items, _, err := repo.List(ctx, marketplace.ItemFilter{OrderBy: "title; DROP TABLE inventory_items"})
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})
}

func TestGormInventoryStore_UpsertKeepsOneListingPerPair(t *testing.T) {
	db := setupSQLite(t)
	items := NewGormItemRepository(db)
	store := NewGormInventoryStore(db)
	ctx := context.Background()

	item := newTestItem(t, "Arc'teryx Atom Hoody")
	require.NoError(t, items.Create(ctx, item))

	first, err := marketplace.NewMarketplaceListing(item.ID, marketplace.CodeEbay)
	require.NoError(t, err)
	first.Status = marketplace.StatusPending
	require.NoError(t, store.UpsertListing(ctx, first))

	second, err := marketplace.NewMarketplaceListing(item.ID, marketplace.CodeEbay)
	require.NoError(t, err)
	second.Status = marketplace.StatusActive
	second.RemoteID = "R1"
	second.OfferID = "O1"
	require.NoError(t, store.UpsertListing(ctx, second))

	got, err := store.GetListing(ctx, item.ID, marketplace.CodeEbay)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, marketplace.StatusActive, got.Status)
	assert.Equal(t, "R1", got.RemoteID)
	assert.Equal(t, "O1", got.OfferID)

	loaded, err := store.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.Title, loaded.Title)
}

func TestGormInventoryStore_ConcurrentUpsert(t *testing.T) {
	db := setupSQLite(t)
	items := NewGormItemRepository(db)
	store := NewGormInventoryStore(db)
	ctx := context.Background()

	item := newTestItem(t, "Dr. Martens 1460")
	require.NoError(t, items.Create(ctx, item))

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for _, code := range []marketplace.Code{marketplace.CodeEbay, marketplace.CodePoshmark, marketplace.CodeEbay, marketplace.CodePoshmark, marketplace.CodeEbay, marketplace.CodePoshmark} {
		wg.Add(1)
		go func(code marketplace.Code) {
			defer wg.Done()
			listing, err := marketplace.NewMarketplaceListing(item.ID, code)
			if err != nil {
				errs <- err
				return
			}
			errs <- store.UpsertListing(ctx, listing)
		}(code)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	listings, err := store.ListListings(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	assert.Equal(t, marketplace.CodeEbay, listings[0].Marketplace)
	assert.Equal(t, marketplace.CodePoshmark, listings[1].Marketplace)
}

func TestGormListingRepository_FindStaleAndCount(t *testing.T) {
	db := setupSQLite(t)
	items := NewGormItemRepository(db)
	repo := NewGormListingRepository(db)
	ctx := context.Background()

	item := newTestItem(t, "Pendleton Board Shirt")
	require.NoError(t, items.Create(ctx, item))

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	recent := now.Add(-time.Minute)

	stale, err := marketplace.NewMarketplaceListing(item.ID, marketplace.CodeEbay)
	require.NoError(t, err)
	stale.Status = marketplace.StatusActive
	stale.LastSyncAt = &old
	require.NoError(t, repo.UpsertListing(ctx, stale))

	fresh, err := marketplace.NewMarketplaceListing(item.ID, marketplace.CodePoshmark)
	require.NoError(t, err)
	fresh.Status = marketplace.StatusActive
	fresh.LastSyncAt = &recent
	require.NoError(t, repo.UpsertListing(ctx, fresh))

	found, err := repo.FindStale(ctx, []marketplace.ListingStatus{marketplace.StatusActive}, now.Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, marketplace.CodeEbay, found[0].Marketplace)

	none, err := repo.FindStale(ctx, nil, now, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[marketplace.StatusActive])
}

func TestGormAccountRepository(t *testing.T) {
	repo := NewGormAccountRepository(setupSQLite(t))
	ctx := context.Background()

	_, err := repo.FindByMarketplace(ctx, marketplace.CodeEbay)
	assert.ErrorIs(t, err, marketplace.ErrAccountNotFound)

	account, err := marketplace.NewMarketplaceAccount(marketplace.CodeEbay)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, account.SetTokens("access-1", "refresh-1", 2*time.Hour, now))
	require.NoError(t, repo.Save(ctx, account))

	reconnected, err := marketplace.NewMarketplaceAccount(marketplace.CodeEbay)
	require.NoError(t, err)
	require.NoError(t, reconnected.SetTokens("access-2", "refresh-2", 2*time.Hour, now))
	require.NoError(t, repo.Save(ctx, reconnected))

	found, err := repo.FindByMarketplace(ctx, marketplace.CodeEbay)
	require.NoError(t, err)
	assert.Equal(t, "access-2", found.AccessToken)
	assert.Equal(t, "refresh-2", found.RefreshToken)
	require.NotNil(t, found.TokenExpiresAt)
	assert.True(t, found.TokenValid(now, 5*time.Minute))

	require.NoError(t, repo.Delete(ctx, marketplace.CodeEbay))
	assert.ErrorIs(t, repo.Delete(ctx, marketplace.CodeEbay), marketplace.ErrAccountNotFound)
}
