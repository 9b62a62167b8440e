package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/persistence"
	"github.com/crosslist/backend/internal/infrastructure/persistence/models"
	"github.com/crosslist/backend/internal/infrastructure/storage"
	"github.com/crosslist/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type itemTestEnv struct {
	router  *gin.Engine
	store   *persistence.GormInventoryStore
	storage *storage.MemoryObjectStorage
}

func newItemTestEnv(t *testing.T) *itemTestEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(models.AllModels()...))

	store := persistence.NewGormInventoryStore(db)
	objects := storage.NewMemoryObjectStorage("http://objects.test")
	svc := marketplaceapp.NewItemService(persistence.NewGormItemRepository(db), store, objects, nil)
	h := NewItemHandler(svc)

	r := gin.New()
	r.POST("/items", h.Create)
	r.GET("/items", h.List)
	r.GET("/items/:id", h.Get)
	r.PUT("/items/:id", h.Update)
	r.DELETE("/items/:id", h.Delete)
	r.POST("/items/:id/images", h.AddImage)
	r.DELETE("/items/:id/images/:image_id", h.RemoveImage)

	return &itemTestEnv{router: r, store: store, storage: objects}
}

func (e *itemTestEnv) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *itemTestEnv) create(t *testing.T, title string) marketplaceapp.ItemResponse {
	t.Helper()
	w := e.do(http.MethodPost, "/items", map[string]any{"title": title, "price": "19.99", "quantity": 3})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeItem(t, w)
}

func (e *itemTestEnv) upload(itemID, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", contentType)
	part, _ := mw.CreatePart(header)
	_, _ = part.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/items/"+itemID+"/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeItem(t *testing.T, w *httptest.ResponseRecorder) marketplaceapp.ItemResponse {
	t.Helper()
	var env struct {
		Data marketplaceapp.ItemResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env.Data
}

func TestItemHandler_Create(t *testing.T) {
	env := newItemTestEnv(t)

	t.Run("creates with defaults", func(t *testing.T) {
		w := env.do(http.MethodPost, "/items", map[string]any{
			"title":      "Vintage Levi's 501",
			"price":      45.5,
			"brand":      "Levi's",
			"image_urls": []string{"https://cdn.example.com/a.jpg"},
		})

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		item := decodeItem(t, w)
		assert.NotEqual(t, uuid.Nil, item.ID)
		assert.Equal(t, "Vintage Levi's 501", item.Title)
		assert.Equal(t, "45.5", item.Price.String())
		assert.Equal(t, 1, item.Quantity)
		assert.Equal(t, marketplace.DefaultCurrency, item.Currency)
		require.Len(t, item.Images, 1)
		assert.Equal(t, "https://cdn.example.com/a.jpg", item.Images[0].URL)
	})

	t.Run("binding validation reports each field", func(t *testing.T) {
		w := env.do(http.MethodPost, "/items", map[string]any{"price": 0, "quantity": -1})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		fields := make([]string, 0, len(resp.Error.Details))
		for _, d := range resp.Error.Details {
			fields = append(fields, d.Field)
		}
		assert.ElementsMatch(t, []string{"title", "price", "quantity"}, fields)
	})

	t.Run("malformed json", func(t *testing.T) {
		w := env.do(http.MethodPost, "/items", `{"title": "x",`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
	})

	t.Run("bad image url", func(t *testing.T) {
		w := env.do(http.MethodPost, "/items", map[string]any{"title": "Hat", "price": 5, "image_urls": []string{"not a url"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestItemHandler_GetAndList(t *testing.T) {
	env := newItemTestEnv(t)
	jacket := env.create(t, "Denim Jacket")
	env.create(t, "Wool Sweater")

	t.Run("get includes listings", func(t *testing.T) {
		listing, err := marketplace.NewMarketplaceListing(jacket.ID, marketplace.CodeEbay)
		require.NoError(t, err)
		listing.Status = marketplace.StatusActive
		listing.RemoteID = "1100"
		require.NoError(t, env.store.UpsertListing(context.Background(), listing))

		w := env.do(http.MethodGet, "/items/"+jacket.ID.String(), nil)

		require.Equal(t, http.StatusOK, w.Code)
		item := decodeItem(t, w)
		require.Len(t, item.Listings, 1)
		assert.Equal(t, "EBAY", item.Listings[0].Marketplace)
		assert.Equal(t, marketplace.StatusActive, item.Listings[0].Status)
	})

	t.Run("get missing item", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, dto.ErrCodeNotFound, decodeResponse(t, w).Error.Code)
	})

	t.Run("list pages with meta", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items?page=1&page_size=1", nil)

		require.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(2), resp.Meta.Total)
		assert.Len(t, resp.Data.([]any), 1)
	})

	t.Run("list searches titles", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items?search=wool", nil)

		require.Equal(t, http.StatusOK, w.Code)
		items := decodeResponse(t, w).Data.([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "Wool Sweater", items[0].(map[string]any)["title"])
	})

	t.Run("list rejects unknown status", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items?status=sold_out", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, dto.ErrCodeInvalidInput, decodeResponse(t, w).Error.Code)
	})

	t.Run("list rejects oversized page", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items?page_size=500", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("list orders by title", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items?order_by=title&order_dir=desc", nil)

		require.Equal(t, http.StatusOK, w.Code)
		items := decodeResponse(t, w).Data.([]any)
		require.Len(t, items, 2)
		assert.Equal(t, "Wool Sweater", items[0].(map[string]any)["title"])
	})

	t.Run("list rejects unknown order direction", func(t *testing.T) {
		w := env.do(http.MethodGet, "/items?order_dir=sideways", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestItemHandler_Update(t *testing.T) {
	env := newItemTestEnv(t)
	item := env.create(t, "Leather Boots")

	w := env.do(http.MethodPut, "/items/"+item.ID.String(), map[string]any{"price": "89.00", "quantity": 0})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeItem(t, w)
	assert.Equal(t, "Leather Boots", updated.Title)
	assert.Equal(t, "89", updated.Price.String())
	assert.Equal(t, 0, updated.Quantity)

	t.Run("rejects negative price", func(t *testing.T) {
		w := env.do(http.MethodPut, "/items/"+item.ID.String(), map[string]any{"price": "-1"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing item", func(t *testing.T) {
		w := env.do(http.MethodPut, "/items/"+uuid.NewString(), map[string]any{"title": "x"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestItemHandler_Delete(t *testing.T) {
	env := newItemTestEnv(t)

	t.Run("refuses while a listing is live", func(t *testing.T) {
		item := env.create(t, "Listed Bag")
		listing, err := marketplace.NewMarketplaceListing(item.ID, marketplace.CodePoshmark)
		require.NoError(t, err)
		listing.Status = marketplace.StatusPending
		require.NoError(t, env.store.UpsertListing(context.Background(), listing))

		w := env.do(http.MethodDelete, "/items/"+item.ID.String(), nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, dto.ErrCodeConflict, decodeResponse(t, w).Error.Code)
	})

	t.Run("deletes an unlisted item", func(t *testing.T) {
		item := env.create(t, "Plain Tee")

		w := env.do(http.MethodDelete, "/items/"+item.ID.String(), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = env.do(http.MethodGet, "/items/"+item.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestItemHandler_Images(t *testing.T) {
	env := newItemTestEnv(t)
	item := env.create(t, "Silk Scarf")

	var imageID uuid.UUID
	t.Run("upload stores the file", func(t *testing.T) {
		w := env.upload(item.ID.String(), "front.png", "image/png", []byte("\x89PNG fake"))

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var resp struct {
			Data marketplaceapp.ImageResponse `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		imageID = resp.Data.ID
		assert.Equal(t, "image/png", resp.Data.ContentType)
		assert.True(t, strings.HasPrefix(resp.Data.URL, "http://objects.test/items/"+item.ID.String()+"/"))

		keys := env.storage.Keys()
		require.Len(t, keys, 1)
		assert.Equal(t, fmt.Sprintf("items/%s/%s.png", item.ID, imageID), keys[0])
	})

	t.Run("rejects non-image uploads", func(t *testing.T) {
		w := env.upload(item.ID.String(), "notes.txt", "text/plain", []byte("hello"))
		assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
		assert.Equal(t, dto.ErrCodeUnsupportedMedia, decodeResponse(t, w).Error.Code)
	})

	t.Run("requires the file field", func(t *testing.T) {
		w := env.do(http.MethodPost, "/items/"+item.ID.String()+"/images", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("remove deletes the stored object", func(t *testing.T) {
		require.NotEqual(t, uuid.Nil, imageID)
		w := env.do(http.MethodDelete, "/items/"+item.ID.String()+"/images/"+imageID.String(), nil)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, env.storage.Keys())
	})

	t.Run("remove unknown image", func(t *testing.T) {
		w := env.do(http.MethodDelete, "/items/"+item.ID.String()+"/images/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}
