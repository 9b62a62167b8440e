package marketplace

import (
	"fmt"
	"strings"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Sync DTOs
// ---------------------------------------------------------------------------

// SyncAction is the operation requested for a set of pairs
type SyncAction string

const (
	ActionPublish   SyncAction = "PUBLISH"
	ActionUpdate    SyncAction = "UPDATE"
	ActionDelist    SyncAction = "DELIST"
	ActionReconcile SyncAction = "RECONCILE"
)

// ParseSyncAction converts a case-insensitive action name
func ParseSyncAction(s string) (SyncAction, error) {
	a := SyncAction(strings.ToUpper(strings.TrimSpace(s)))
	switch a {
	case ActionPublish, ActionUpdate, ActionDelist, ActionReconcile:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

// OutcomeStatus summarizes what happened to one pair
type OutcomeStatus string

const (
	// OutcomeSucceeded means the adapter call (or local transition) succeeded
	OutcomeSucceeded OutcomeStatus = "SUCCESS"
	// OutcomeFailed means the adapter reported a classified failure
	OutcomeFailed OutcomeStatus = "FAILED"
	// OutcomeSkipped means the pair was already in the requested state
	OutcomeSkipped OutcomeStatus = "SKIPPED"
	// OutcomeRejected means the request entry was refused before any remote work
	OutcomeRejected OutcomeStatus = "REJECTED"
	// OutcomeCancelled means the caller went away; see Listing status for what was persisted
	OutcomeCancelled OutcomeStatus = "CANCELLED"
	// OutcomeQueued means the pair was handed to the async worker pool
	OutcomeQueued OutcomeStatus = "QUEUED"
)

// Reject codes for request entries refused by the orchestrator itself
const (
	CodeUnknownMarketplace = "UNKNOWN_MARKETPLACE"
	CodeAdapterUnavailable = "ADAPTER_UNAVAILABLE"
	CodeNotListed          = "NOT_LISTED"
	CodeCancelled          = "CANCELLED"
	CodeStoreFailure       = "STORE_FAILURE"
)

// SyncRequest asks the orchestrator to apply one action to several marketplaces
type SyncRequest struct {
	ItemID       uuid.UUID
	Action       SyncAction
	Marketplaces []string
	// RequestID correlates queued work with the API request that queued it
	RequestID string
}

// SyncErrorDTO is the user-visible part of a failure
type SyncErrorDTO struct {
	Kind    string `json:"kind,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Drift describes a remote listing that no longer matches the local item
type Drift struct {
	LocalPrice     decimal.Decimal  `json:"local_price"`
	RemotePrice    *decimal.Decimal `json:"remote_price,omitempty"`
	LocalQuantity  int              `json:"local_quantity"`
	RemoteQuantity *int             `json:"remote_quantity,omitempty"`
}

// SyncOutcome is the per-marketplace result of a sync request
type SyncOutcome struct {
	Marketplace string                    `json:"marketplace"`
	Action      SyncAction                `json:"action"`
	Outcome     OutcomeStatus             `json:"outcome"`
	Status      marketplace.ListingStatus `json:"status,omitempty"`
	RemoteID    string                    `json:"remote_id,omitempty"`
	ExternalURL string                    `json:"external_url,omitempty"`
	Attempts    int                       `json:"attempts"`
	Error       *SyncErrorDTO             `json:"error,omitempty"`
	Drift       *Drift                    `json:"drift,omitempty"`
}

// Succeeded reports whether the pair ended in the requested state
func (o SyncOutcome) Succeeded() bool {
	return o.Outcome == OutcomeSucceeded || o.Outcome == OutcomeSkipped || o.Outcome == OutcomeQueued
}

func outcomeFromListing(l *marketplace.MarketplaceListing, action SyncAction, outcome OutcomeStatus) SyncOutcome {
	return SyncOutcome{
		Marketplace: string(l.Marketplace),
		Action:      action,
		Outcome:     outcome,
		Status:      l.Status,
		RemoteID:    l.RemoteID,
		ExternalURL: l.ExternalURL,
		Attempts:    l.Attempts,
	}
}

func rejected(code string, action SyncAction, errCode, msg string) SyncOutcome {
	return SyncOutcome{
		Marketplace: code,
		Action:      action,
		Outcome:     OutcomeRejected,
		Error:       &SyncErrorDTO{Code: errCode, Message: msg},
	}
}

func syncErrorDTO(err *marketplace.SyncError) *SyncErrorDTO {
	if err == nil {
		return nil
	}
	return &SyncErrorDTO{Kind: string(err.Kind), Code: err.Code, Message: err.Message}
}

// ---------------------------------------------------------------------------
// Listing DTOs
// ---------------------------------------------------------------------------

// ListingResponse represents a marketplace listing in API responses
type ListingResponse struct {
	ID            uuid.UUID                 `json:"id"`
	ItemID        uuid.UUID                 `json:"item_id"`
	Marketplace   string                    `json:"marketplace"`
	Status        marketplace.ListingStatus `json:"status"`
	RemoteID      string                    `json:"remote_id,omitempty"`
	SKU           string                    `json:"sku,omitempty"`
	OfferID       string                    `json:"offer_id,omitempty"`
	ExternalURL   string                    `json:"external_url,omitempty"`
	LastSyncAt    *time.Time                `json:"last_sync_at,omitempty"`
	LastError     string                    `json:"last_error,omitempty"`
	LastErrorKind string                    `json:"last_error_kind,omitempty"`
	Attempts      int                       `json:"attempts"`
	UpdatedAt     time.Time                 `json:"updated_at"`
}

// ToListingResponse converts a domain listing to a response DTO
func ToListingResponse(l *marketplace.MarketplaceListing) ListingResponse {
	return ListingResponse{
		ID:            l.ID,
		ItemID:        l.ItemID,
		Marketplace:   string(l.Marketplace),
		Status:        l.Status,
		RemoteID:      l.RemoteID,
		SKU:           l.SKU,
		OfferID:       l.OfferID,
		ExternalURL:   l.ExternalURL,
		LastSyncAt:    l.LastSyncAt,
		LastError:     l.LastError,
		LastErrorKind: string(l.LastErrorKind),
		Attempts:      l.Attempts,
		UpdatedAt:     l.UpdatedAt,
	}
}

// ---------------------------------------------------------------------------
// Item DTOs
// ---------------------------------------------------------------------------

// ImageResponse represents an item image in API responses
type ImageResponse struct {
	ID          uuid.UUID `json:"id"`
	URL         string    `json:"url"`
	ContentType string    `json:"content_type,omitempty"`
	SortOrder   int       `json:"sort_order"`
}

// ItemResponse represents an inventory item in API responses
type ItemResponse struct {
	ID          uuid.UUID         `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Price       decimal.Decimal   `json:"price"`
	Currency    string            `json:"currency"`
	Quantity    int               `json:"quantity"`
	SKU         string            `json:"sku,omitempty"`
	ListingSKU  string            `json:"listing_sku"`
	Condition   string            `json:"condition"`
	Brand       string            `json:"brand,omitempty"`
	CategoryID  string            `json:"category_id,omitempty"`
	Images      []ImageResponse   `json:"images"`
	Listings    []ListingResponse `json:"listings,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// ToItemResponse converts a domain item (and optionally its listings) to a response DTO
func ToItemResponse(item *marketplace.InventoryItem, listings []marketplace.MarketplaceListing) ItemResponse {
	resp := ItemResponse{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		Currency:    item.Currency,
		Quantity:    item.Quantity,
		SKU:         item.SKU,
		ListingSKU:  item.ListingSKU(),
		Condition:   string(item.Condition),
		Brand:       item.Brand,
		CategoryID:  item.CategoryID,
		Images:      make([]ImageResponse, 0, len(item.Images)),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}
	for _, img := range item.SortedImages() {
		resp.Images = append(resp.Images, ImageResponse{
			ID:          img.ID,
			URL:         img.URL,
			ContentType: img.ContentType,
			SortOrder:   img.SortOrder,
		})
	}
	for i := range listings {
		resp.Listings = append(resp.Listings, ToListingResponse(&listings[i]))
	}
	return resp
}

// CreateItemRequest carries the fields of a new item
type CreateItemRequest struct {
	Title       string
	Description string
	Price       decimal.Decimal
	Currency    string
	Quantity    *int
	SKU         string
	Condition   string
	Brand       string
	CategoryID  string
	ImageURLs   []string
}

// UpdateItemRequest carries a partial item update; nil fields are left unchanged
type UpdateItemRequest struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int
	SKU         *string
	Condition   *string
	Brand       *string
	CategoryID  *string
}

// ListItemsQuery is the paging and filtering input of ListItems
type ListItemsQuery struct {
	Search   string
	Status   string
	OrderBy  string
	OrderDir string
	Page     int
	PageSize int
}

// ItemPage is one page of items with the total count
type ItemPage struct {
	Items    []ItemResponse
	Total    int64
	Page     int
	PageSize int
}

// ---------------------------------------------------------------------------
// Account DTOs
// ---------------------------------------------------------------------------

// AccountStatus describes how a marketplace is connected
type AccountStatus struct {
	Marketplace    string     `json:"marketplace"`
	DisplayName    string     `json:"display_name"`
	Mechanism      string     `json:"mechanism"`
	Connected      bool       `json:"connected"`
	Username       string     `json:"username,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty"`
	HasSession     bool       `json:"has_session"`
}
