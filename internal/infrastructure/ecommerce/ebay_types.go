package ecommerce

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Common eBay API Response Types
// ---------------------------------------------------------------------------

// EbayErrorResponse is the error body returned by the Sell APIs
type EbayErrorResponse struct {
	Errors []EbayError `json:"errors"`
}

// EbayError is one entry of an eBay error response
type EbayError struct {
	ErrorID     int                  `json:"errorId"`
	Domain      string               `json:"domain,omitempty"`
	Category    string               `json:"category,omitempty"`
	Message     string               `json:"message"`
	LongMessage string               `json:"longMessage,omitempty"`
	Parameters  []EbayErrorParameter `json:"parameters,omitempty"`
}

// EbayErrorParameter carries additional context for an error
type EbayErrorParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// EbayAPIError is a non-2xx response from the eBay API
type EbayAPIError struct {
	StatusCode int
	Errors     []EbayError
	Body       string
}

// Error implements the error interface
func (e *EbayAPIError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("ebay: HTTP %d: %s", e.StatusCode, e.Message())
	}
	return fmt.Sprintf("ebay: HTTP %d", e.StatusCode)
}

// Message joins the error messages of the response
func (e *EbayAPIError) Message() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, er := range e.Errors {
		msg := er.Message
		if er.LongMessage != "" && er.LongMessage != er.Message {
			msg = er.LongMessage
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return strings.TrimSpace(e.Body)
	}
	return strings.Join(msgs, "; ")
}

// ExistingOfferID returns the offer id eBay reports when an offer for the
// SKU already exists
func (e *EbayAPIError) ExistingOfferID() (string, bool) {
	for _, er := range e.Errors {
		if !strings.Contains(strings.ToLower(er.Message), "offer entity already exists") {
			continue
		}
		for _, p := range er.Parameters {
			if p.Value != "" && (p.Name == "offerId" || len(er.Parameters) == 1) {
				return p.Value, true
			}
		}
		if len(er.Parameters) > 0 && er.Parameters[0].Value != "" {
			return er.Parameters[0].Value, true
		}
	}
	return "", false
}

// ---------------------------------------------------------------------------
// OAuth Types
// ---------------------------------------------------------------------------

// EbayTokenResponse is returned by the identity token endpoint
type EbayTokenResponse struct {
	AccessToken           string `json:"access_token"`
	ExpiresIn             int    `json:"expires_in"`
	RefreshToken          string `json:"refresh_token,omitempty"`
	RefreshTokenExpiresIn int    `json:"refresh_token_expires_in,omitempty"`
	TokenType             string `json:"token_type"`
}

// EbayOAuthError is the error body of the identity token endpoint
type EbayOAuthError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// Error implements the error interface
func (e *EbayOAuthError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("ebay oauth: HTTP %d: %s: %s", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("ebay oauth: HTTP %d: %s", e.StatusCode, e.Code)
}

// ---------------------------------------------------------------------------
// Inventory Types
// ---------------------------------------------------------------------------

// EbayInventoryItem is the body of the inventory_item resource
type EbayInventoryItem struct {
	SKU          string            `json:"sku,omitempty"`
	Locale       string            `json:"locale,omitempty"`
	Product      EbayProduct       `json:"product"`
	Condition    string            `json:"condition,omitempty"`
	Availability *EbayAvailability `json:"availability,omitempty"`
}

// EbayProduct describes the product of an inventory item
type EbayProduct struct {
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Brand       string              `json:"brand,omitempty"`
	ImageURLs   []string            `json:"imageUrls,omitempty"`
	Aspects     map[string][]string `json:"aspects,omitempty"`
}

// EbayAvailability holds the available quantity
type EbayAvailability struct {
	ShipToLocationAvailability EbayShipToLocationAvailability `json:"shipToLocationAvailability"`
}

// EbayShipToLocationAvailability is the quantity available to ship
type EbayShipToLocationAvailability struct {
	Quantity int `json:"quantity"`
}

// EbayInventoryItemsResponse is one page of inventory items
type EbayInventoryItemsResponse struct {
	Total          int                 `json:"total"`
	Size           int                 `json:"size"`
	Limit          int                 `json:"limit"`
	Offset         int                 `json:"offset"`
	InventoryItems []EbayInventoryItem `json:"inventoryItems"`
}

// ---------------------------------------------------------------------------
// Offer Types
// ---------------------------------------------------------------------------

// EbayOffer is the body of the offer resource
type EbayOffer struct {
	OfferID             string               `json:"offerId,omitempty"`
	SKU                 string               `json:"sku"`
	MarketplaceID       string               `json:"marketplaceId"`
	Format              string               `json:"format"`
	AvailableQuantity   int                  `json:"availableQuantity"`
	CategoryID          string               `json:"categoryId"`
	ListingDescription  string               `json:"listingDescription,omitempty"`
	MerchantLocationKey string               `json:"merchantLocationKey"`
	ListingPolicies     *EbayListingPolicies `json:"listingPolicies,omitempty"`
	ListingDuration     string               `json:"listingDuration,omitempty"`
	PricingSummary      EbayPricingSummary   `json:"pricingSummary"`
	Status              string               `json:"status,omitempty"`
	Listing             *EbayOfferListing    `json:"listing,omitempty"`
}

// EbayListingPolicies references the seller's business policies
type EbayListingPolicies struct {
	FulfillmentPolicyID string `json:"fulfillmentPolicyId"`
	PaymentPolicyID     string `json:"paymentPolicyId"`
	ReturnPolicyID      string `json:"returnPolicyId"`
}

// EbayPricingSummary holds the offer price
type EbayPricingSummary struct {
	Price EbayAmount `json:"price"`
}

// EbayAmount is a monetary amount
type EbayAmount struct {
	Currency string `json:"currency"`
	Value    string `json:"value"`
}

// EbayOfferListing links a published offer to its listing
type EbayOfferListing struct {
	ListingID     string `json:"listingId"`
	ListingStatus string `json:"listingStatus,omitempty"`
}

// EbayOfferCreated is returned by POST /offer
type EbayOfferCreated struct {
	OfferID string `json:"offerId"`
}

// EbayPublishResponse is returned by POST /offer/{id}/publish
type EbayPublishResponse struct {
	ListingID string `json:"listingId"`
}

// EbayOffersResponse is returned by GET /offer?sku=
type EbayOffersResponse struct {
	Total  int         `json:"total"`
	Offers []EbayOffer `json:"offers"`
}

// Offer status values
const (
	EbayOfferStatusPublished   = "PUBLISHED"
	EbayOfferStatusUnpublished = "UNPUBLISHED"
)

// ---------------------------------------------------------------------------
// Account Types
// ---------------------------------------------------------------------------

// EbayPolicy is the common part of fulfillment, payment and return policies
type EbayPolicy struct {
	Name                string `json:"name"`
	FulfillmentPolicyID string `json:"fulfillmentPolicyId,omitempty"`
	PaymentPolicyID     string `json:"paymentPolicyId,omitempty"`
	ReturnPolicyID      string `json:"returnPolicyId,omitempty"`
}

// ID returns whichever policy id is set
func (p EbayPolicy) ID() string {
	switch {
	case p.FulfillmentPolicyID != "":
		return p.FulfillmentPolicyID
	case p.PaymentPolicyID != "":
		return p.PaymentPolicyID
	default:
		return p.ReturnPolicyID
	}
}

// EbayPoliciesResponse is returned by the policy list endpoints
type EbayPoliciesResponse struct {
	Total               int          `json:"total"`
	FulfillmentPolicies []EbayPolicy `json:"fulfillmentPolicies,omitempty"`
	PaymentPolicies     []EbayPolicy `json:"paymentPolicies,omitempty"`
	ReturnPolicies      []EbayPolicy `json:"returnPolicies,omitempty"`
}

// EbayInventoryLocation is the body of the location resource
type EbayInventoryLocation struct {
	Location               EbayLocation `json:"location"`
	Name                   string       `json:"name"`
	MerchantLocationStatus string       `json:"merchantLocationStatus"`
	LocationTypes          []string     `json:"locationTypes"`
}

// EbayLocation wraps a postal address
type EbayLocation struct {
	Address EbayAddress `json:"address"`
}

// EbayAddress is a postal address
type EbayAddress struct {
	AddressLine1    string `json:"addressLine1"`
	City            string `json:"city"`
	StateOrProvince string `json:"stateOrProvince"`
	PostalCode      string `json:"postalCode"`
	Country         string `json:"country"`
}
