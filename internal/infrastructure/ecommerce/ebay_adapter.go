package ecommerce

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ebayInventoryPath = "/sell/inventory/v1"
	ebayAccountPath   = "/sell/account/v1"

	// ebayMaxImages is the most pictures an eBay listing accepts through the API
	ebayMaxImages = 12
)

// ebayStoreLocation is the merchant location registered for offers
var ebayStoreLocation = EbayInventoryLocation{
	Location: EbayLocation{Address: EbayAddress{
		AddressLine1:    "2055 Hamilton Ave",
		City:            "San Jose",
		StateOrProvince: "CA",
		PostalCode:      "95125",
		Country:         "US",
	}},
	Name:                   "Main Store",
	MerchantLocationStatus: "ENABLED",
	LocationTypes:          []string{"STORE"},
}

// ebayConditions maps item conditions onto eBay condition enums
var ebayConditions = map[marketplace.Condition]string{
	marketplace.ConditionNew:      "NEW",
	marketplace.ConditionLikeNew:  "LIKE_NEW",
	marketplace.ConditionUsedGood: "USED_GOOD",
	marketplace.ConditionUsedFair: "USED_ACCEPTABLE",
	marketplace.ConditionForParts: "FOR_PARTS_OR_NOT_WORKING",
}

// EbayAdapter implements marketplace.Adapter on the eBay Sell Inventory API
type EbayAdapter struct {
	config *EbayConfig
	client *ebayClient
	images marketplace.ImageSource
	logger *zap.Logger

	mu            sync.Mutex
	policies      *EbayListingPolicies
	locationReady bool
}

// EbayAdapterOption configures an EbayAdapter
type EbayAdapterOption func(*ebayAdapterOptions)

type ebayAdapterOptions struct {
	httpClient *http.Client
	images     marketplace.ImageSource
	logger     *zap.Logger
	oauth      tokenRefresher
	now        func() time.Time
}

// WithEbayHTTPClient sets the HTTP client used for API calls
func WithEbayHTTPClient(c *http.Client) EbayAdapterOption {
	return func(o *ebayAdapterOptions) { o.httpClient = c }
}

// WithEbayImageSource sets how item images become public URLs
func WithEbayImageSource(s marketplace.ImageSource) EbayAdapterOption {
	return func(o *ebayAdapterOptions) { o.images = s }
}

// WithEbayLogger sets the logger
func WithEbayLogger(l *zap.Logger) EbayAdapterOption {
	return func(o *ebayAdapterOptions) { o.logger = l }
}

// WithEbayClock sets the clock used for token expiry
func WithEbayClock(now func() time.Time) EbayAdapterOption {
	return func(o *ebayAdapterOptions) { o.now = now }
}

// NewEbayAdapter creates an eBay adapter. Tokens are read from and written
// back to the EBAY account in accounts.
func NewEbayAdapter(config *EbayConfig, accounts marketplace.AccountRepository, opts ...EbayAdapterOption) (*EbayAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	o := &ebayAdapterOptions{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: time.Duration(config.TimeoutSeconds) * time.Second}
	}
	if o.oauth == nil {
		o.oauth = NewEbayOAuthClient(config, o.httpClient)
	}

	log := o.logger.With(logger.Marketplace(string(marketplace.CodeEbay)))
	tokens := &ebayTokenSource{
		accounts: accounts,
		oauth:    o.oauth,
		now:      o.now,
		logger:   log,
	}
	return &EbayAdapter{
		config: config,
		client: newEbayClient(config, o.httpClient, tokens, log),
		images: o.images,
		logger: log,
	}, nil
}

// Marketplace implements marketplace.Adapter
func (a *EbayAdapter) Marketplace() marketplace.Code { return marketplace.CodeEbay }

// Mechanism implements marketplace.Adapter
func (a *EbayAdapter) Mechanism() marketplace.Mechanism { return marketplace.MechanismAPI }

// CreateListing stores the inventory item, creates (or recovers) its offer
// and publishes it
func (a *EbayAdapter) CreateListing(ctx context.Context, item *marketplace.InventoryItem) marketplace.SyncResult {
	sku := item.ListingSKU()

	policies, serr := a.listingPolicies(ctx)
	if serr != nil {
		return marketplace.Failed(serr)
	}
	a.ensureLocation(ctx)

	if err := a.putInventoryItem(ctx, sku, item); err != nil {
		return marketplace.Failed(classifyEbayError(err))
	}

	offer := a.buildOffer(sku, item, policies)
	offerID, err := a.createOffer(ctx, offer)
	if err != nil {
		return marketplace.Failed(classifyEbayError(err))
	}

	var published EbayPublishResponse
	if err := a.client.call(ctx, http.MethodPost, ebayInventoryPath+"/offer/"+url.PathEscape(offerID)+"/publish", nil, nil, &published); err != nil {
		return marketplace.Failed(classifyEbayError(err))
	}
	if published.ListingID == "" {
		return marketplace.Failed(marketplace.Transient(marketplace.CodeInvalidResponse, "eBay publish returned no listing id"))
	}

	a.logger.Info("eBay listing published",
		zap.String("sku", sku),
		zap.String("offer_id", offerID),
		zap.String("listing_id", published.ListingID),
	)
	return marketplace.Succeeded(a.ref(published.ListingID, sku, offerID))
}

// UpdateListing pushes the item's data to the inventory item and its offer
func (a *EbayAdapter) UpdateListing(ctx context.Context, ref marketplace.RemoteRef, item *marketplace.InventoryItem) marketplace.SyncResult {
	current, serr := a.offerFor(ctx, ref)
	if serr != nil {
		return marketplace.Failed(serr)
	}
	sku := current.SKU
	if sku == "" {
		sku = ref.SKU
	}

	policies, serr := a.listingPolicies(ctx)
	if serr != nil {
		return marketplace.Failed(serr)
	}

	if err := a.putInventoryItem(ctx, sku, item); err != nil {
		return marketplace.Failed(classifyEbayError(err))
	}
	offer := a.buildOffer(sku, item, policies)
	if err := a.client.call(ctx, http.MethodPut, ebayInventoryPath+"/offer/"+url.PathEscape(current.OfferID), nil, offer, nil); err != nil {
		return marketplace.Failed(classifyEbayError(err))
	}

	listingID := ref.ID
	if current.Listing != nil && current.Listing.ListingID != "" {
		listingID = current.Listing.ListingID
	}
	return marketplace.Succeeded(a.ref(listingID, sku, current.OfferID))
}

// DeleteListing deletes the inventory item, which withdraws its offers.
// An item that is already gone counts as success.
func (a *EbayAdapter) DeleteListing(ctx context.Context, ref marketplace.RemoteRef) marketplace.SyncResult {
	sku := ref.SKU
	if sku == "" {
		current, serr := a.offerFor(ctx, ref)
		if serr != nil {
			if serr.Kind == marketplace.FailureNotFound {
				return marketplace.Succeeded(ref)
			}
			return marketplace.Failed(serr)
		}
		sku = current.SKU
	}

	err := a.client.call(ctx, http.MethodDelete, ebayInventoryPath+"/inventory_item/"+url.PathEscape(sku), nil, nil, nil)
	if err != nil {
		serr := classifyEbayError(err)
		if serr.Kind != marketplace.FailureNotFound {
			return marketplace.Failed(serr)
		}
		a.logger.Info("eBay inventory item already gone", zap.String("sku", sku))
	}
	return marketplace.Succeeded(ref)
}

// FetchListingStatus reads the offer behind a listing
func (a *EbayAdapter) FetchListingStatus(ctx context.Context, ref marketplace.RemoteRef) marketplace.SyncResult {
	offer, serr := a.offerFor(ctx, ref)
	if serr != nil {
		return marketplace.Failed(serr)
	}

	listingID := ref.ID
	if offer.Listing != nil && offer.Listing.ListingID != "" {
		listingID = offer.Listing.ListingID
	}

	snapshot := marketplace.RemoteSnapshot{State: offerState(offer)}
	qty := offer.AvailableQuantity
	snapshot.Quantity = &qty
	if price, err := decimal.NewFromString(offer.PricingSummary.Price.Value); err == nil {
		snapshot.Price = &price
	}
	return marketplace.Observed(a.ref(listingID, offer.SKU, offer.OfferID), snapshot)
}

// FindListing looks up a published offer by the item's SKU
func (a *EbayAdapter) FindListing(ctx context.Context, item *marketplace.InventoryItem) marketplace.SyncResult {
	sku := item.ListingSKU()
	offers, err := a.offersBySKU(ctx, sku)
	if err != nil {
		return marketplace.Failed(classifyEbayError(err))
	}
	for _, o := range offers {
		if o.Listing != nil && o.Listing.ListingID != "" {
			return marketplace.Succeeded(a.ref(o.Listing.ListingID, sku, o.OfferID))
		}
	}
	return marketplace.Failed(marketplace.NotFound("no published eBay offer for SKU %s", sku))
}

// ListInventory pages through the inventory items of the connected account
func (a *EbayAdapter) ListInventory(ctx context.Context, limit, offset int) (*marketplace.RemoteInventoryPage, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var resp EbayInventoryItemsResponse
	if err := a.client.call(ctx, http.MethodGet, ebayInventoryPath+"/inventory_item", q, nil, &resp); err != nil {
		return nil, classifyEbayError(err)
	}

	page := &marketplace.RemoteInventoryPage{
		Items:  make([]marketplace.RemoteInventoryItem, 0, len(resp.InventoryItems)),
		Total:  resp.Total,
		Limit:  limit,
		Offset: offset,
	}
	for _, it := range resp.InventoryItems {
		remote := marketplace.RemoteInventoryItem{
			SKU:       it.SKU,
			Title:     it.Product.Title,
			Condition: it.Condition,
			ImageURLs: it.Product.ImageURLs,
		}
		if it.Availability != nil {
			remote.Quantity = it.Availability.ShipToLocationAvailability.Quantity
		}
		page.Items = append(page.Items, remote)
	}
	return page, nil
}

// ---------------------------------------------------------------------------
// Helper methods
// ---------------------------------------------------------------------------

func (a *EbayAdapter) ref(listingID, sku, offerID string) marketplace.RemoteRef {
	return marketplace.RemoteRef{
		ID:      listingID,
		SKU:     sku,
		OfferID: offerID,
		URL:     a.config.ItemURL(listingID),
	}
}

func (a *EbayAdapter) putInventoryItem(ctx context.Context, sku string, item *marketplace.InventoryItem) error {
	body := EbayInventoryItem{
		SKU:    sku,
		Locale: "en_US",
		Product: EbayProduct{
			Title:       item.Title,
			Description: item.Description,
			Brand:       item.Brand,
			ImageURLs:   a.imageURLs(ctx, item),
		},
		Condition: ebayCondition(item.Condition),
		Availability: &EbayAvailability{
			ShipToLocationAvailability: EbayShipToLocationAvailability{Quantity: item.Quantity},
		},
	}
	if item.Brand != "" {
		body.Product.Aspects = map[string][]string{"Brand": {item.Brand}}
	}
	return a.client.call(ctx, http.MethodPut, ebayInventoryPath+"/inventory_item/"+url.PathEscape(sku), nil, body, nil)
}

func (a *EbayAdapter) buildOffer(sku string, item *marketplace.InventoryItem, policies *EbayListingPolicies) EbayOffer {
	category := item.CategoryID
	if category == "" {
		category = a.config.CategoryID
	}
	currency := item.Currency
	if currency == "" {
		currency = a.config.Currency
	}
	return EbayOffer{
		SKU:                 sku,
		MarketplaceID:       a.config.MarketplaceID,
		Format:              "FIXED_PRICE",
		AvailableQuantity:   item.Quantity,
		CategoryID:          category,
		ListingDescription:  item.Description,
		MerchantLocationKey: a.config.MerchantLocationKey,
		ListingPolicies:     policies,
		ListingDuration:     "GTC",
		PricingSummary: EbayPricingSummary{Price: EbayAmount{
			Currency: currency,
			Value:    item.Price.StringFixed(2),
		}},
	}
}

// createOffer posts a new offer. When eBay reports that the SKU already has
// one, that offer is overwritten instead.
func (a *EbayAdapter) createOffer(ctx context.Context, offer EbayOffer) (string, error) {
	var created EbayOfferCreated
	err := a.client.call(ctx, http.MethodPost, ebayInventoryPath+"/offer", nil, offer, &created)
	if err == nil {
		if created.OfferID == "" {
			return "", fmt.Errorf("ebay: offer created without an id")
		}
		return created.OfferID, nil
	}

	var apiErr *EbayAPIError
	if !errors.As(err, &apiErr) {
		return "", err
	}
	offerID, ok := apiErr.ExistingOfferID()
	if !ok {
		return "", err
	}

	a.logger.Info("eBay offer already exists, updating it",
		zap.String("sku", offer.SKU),
		zap.String("offer_id", offerID),
	)
	if err := a.client.call(ctx, http.MethodPut, ebayInventoryPath+"/offer/"+url.PathEscape(offerID), nil, offer, nil); err != nil {
		return "", err
	}
	return offerID, nil
}

// offerFor resolves the offer of a listing by offer id, falling back to SKU
func (a *EbayAdapter) offerFor(ctx context.Context, ref marketplace.RemoteRef) (*EbayOffer, *marketplace.SyncError) {
	if ref.OfferID != "" {
		var offer EbayOffer
		if err := a.client.call(ctx, http.MethodGet, ebayInventoryPath+"/offer/"+url.PathEscape(ref.OfferID), nil, nil, &offer); err != nil {
			return nil, classifyEbayError(err)
		}
		if offer.OfferID == "" {
			offer.OfferID = ref.OfferID
		}
		return &offer, nil
	}
	if ref.SKU == "" {
		return nil, marketplace.Rejected(marketplace.CodeInvalidRequest, "eBay listing %q has neither offer id nor SKU", ref.ID)
	}

	offers, err := a.offersBySKU(ctx, ref.SKU)
	if err != nil {
		return nil, classifyEbayError(err)
	}
	for i := range offers {
		if ref.ID == "" || (offers[i].Listing != nil && offers[i].Listing.ListingID == ref.ID) {
			return &offers[i], nil
		}
	}
	if len(offers) > 0 {
		return &offers[0], nil
	}
	return nil, marketplace.NotFound("no eBay offer for SKU %s", ref.SKU)
}

func (a *EbayAdapter) offersBySKU(ctx context.Context, sku string) ([]EbayOffer, error) {
	q := url.Values{}
	q.Set("sku", sku)
	q.Set("marketplace_id", a.config.MarketplaceID)

	var resp EbayOffersResponse
	if err := a.client.call(ctx, http.MethodGet, ebayInventoryPath+"/offer", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Offers, nil
}

// listingPolicies returns the configured policy ids, or discovers them from
// the account once and caches the result
func (a *EbayAdapter) listingPolicies(ctx context.Context) (*EbayListingPolicies, *marketplace.SyncError) {
	if a.config.HasPolicies() {
		return &EbayListingPolicies{
			FulfillmentPolicyID: a.config.FulfillmentPolicyID,
			PaymentPolicyID:     a.config.PaymentPolicyID,
			ReturnPolicyID:      a.config.ReturnPolicyID,
		}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.policies != nil {
		return a.policies, nil
	}

	found := &EbayListingPolicies{}
	for _, kind := range []string{"fulfillment", "payment", "return"} {
		q := url.Values{}
		q.Set("marketplace_id", a.config.MarketplaceID)
		var resp EbayPoliciesResponse
		if err := a.client.call(ctx, http.MethodGet, ebayAccountPath+"/"+kind+"_policy", q, nil, &resp); err != nil {
			serr := classifyEbayError(err)
			if serr.Kind == marketplace.FailureNotFound {
				return nil, marketplace.Rejected(marketplace.CodeMissingPolicies, "eBay account has no %s policy", kind)
			}
			return nil, serr
		}

		var list []EbayPolicy
		switch kind {
		case "fulfillment":
			list = resp.FulfillmentPolicies
		case "payment":
			list = resp.PaymentPolicies
		default:
			list = resp.ReturnPolicies
		}
		id := pickPolicy(list)
		if id == "" {
			return nil, marketplace.Rejected(marketplace.CodeMissingPolicies, "eBay account has no %s policy", kind)
		}
		switch kind {
		case "fulfillment":
			found.FulfillmentPolicyID = id
		case "payment":
			found.PaymentPolicyID = id
		default:
			found.ReturnPolicyID = id
		}
	}

	a.policies = found
	a.logger.Info("eBay business policies resolved",
		zap.String("fulfillment_policy_id", found.FulfillmentPolicyID),
		zap.String("payment_policy_id", found.PaymentPolicyID),
		zap.String("return_policy_id", found.ReturnPolicyID),
	)
	return found, nil
}

// ensureLocation registers the merchant location once per process.
// Failures are logged; a missing location surfaces when the offer is published.
func (a *EbayAdapter) ensureLocation(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locationReady {
		return
	}

	err := a.client.call(ctx, http.MethodPost, ebayInventoryPath+"/location/"+url.PathEscape(a.config.MerchantLocationKey), nil, ebayStoreLocation, nil)
	var apiErr *EbayAPIError
	switch {
	case err == nil:
		a.locationReady = true
	case errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusConflict || strings.Contains(strings.ToLower(apiErr.Message()), "exist")):
		a.locationReady = true
	default:
		a.logger.Warn("Failed to register eBay merchant location",
			zap.String("location_key", a.config.MerchantLocationKey),
			zap.Error(err),
		)
	}
}

// imageURLs resolves up to ebayMaxImages public image URLs in sort order
func (a *EbayAdapter) imageURLs(ctx context.Context, item *marketplace.InventoryItem) []string {
	urls := make([]string, 0, ebayMaxImages)
	for _, img := range item.SortedImages() {
		if len(urls) == ebayMaxImages {
			break
		}
		u := img.URL
		if a.images != nil {
			resolved, err := a.images.ImageURL(ctx, img)
			if err != nil {
				a.logger.Warn("Skipping unresolvable image",
					zap.String("image_id", img.ID.String()),
					zap.Error(err),
				)
				continue
			}
			u = resolved
		}
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			urls = append(urls, u)
		}
	}
	return urls
}

// pickPolicy prefers a policy named default or standard, else the first one
func pickPolicy(policies []EbayPolicy) string {
	for _, p := range policies {
		name := strings.ToLower(p.Name)
		if strings.Contains(name, "default") || strings.Contains(name, "standard") {
			return p.ID()
		}
	}
	if len(policies) > 0 {
		return policies[0].ID()
	}
	return ""
}

func ebayCondition(c marketplace.Condition) string {
	if v, ok := ebayConditions[c]; ok {
		return v
	}
	return "USED_GOOD"
}

func offerState(offer *EbayOffer) marketplace.RemoteState {
	if offer.Status != EbayOfferStatusPublished {
		return marketplace.RemoteEnded
	}
	if offer.Listing != nil {
		switch strings.ToUpper(offer.Listing.ListingStatus) {
		case "ENDED", "OUT_OF_STOCK", "INACTIVE":
			return marketplace.RemoteEnded
		}
	}
	return marketplace.RemoteLive
}

// Ensure EbayAdapter implements the marketplace ports
var (
	_ marketplace.Adapter          = (*EbayAdapter)(nil)
	_ marketplace.ListingLocator   = (*EbayAdapter)(nil)
	_ marketplace.InventoryBrowser = (*EbayAdapter)(nil)
)
