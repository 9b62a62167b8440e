package marketplace

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// ListingStatus
// ---------------------------------------------------------------------------

// ListingStatus is the local synchronization state of one pair
type ListingStatus string

const (
	StatusUnlisted ListingStatus = "UNLISTED"
	StatusPending  ListingStatus = "PENDING"
	StatusActive   ListingStatus = "ACTIVE"
	StatusFailed   ListingStatus = "FAILED"
	StatusRemoved  ListingStatus = "REMOVED"
)

// IsValid returns true if the status is a known value
func (s ListingStatus) IsValid() bool {
	_, ok := allowedTransitions[s]
	return ok
}

// String returns the string representation of the status
func (s ListingStatus) String() string {
	return string(s)
}

// IsLive reports whether the pair may currently have a listing for sale
func (s ListingStatus) IsLive() bool {
	return s == StatusActive || s == StatusPending
}

// CanTransitionTo reports whether moving to next is a legal transition
func (s ListingStatus) CanTransitionTo(next ListingStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

var allowedTransitions = map[ListingStatus][]ListingStatus{
	StatusUnlisted: {StatusPending, StatusRemoved},
	StatusPending:  {StatusActive, StatusFailed, StatusRemoved, StatusUnlisted},
	StatusActive:   {StatusPending, StatusActive, StatusRemoved},
	StatusFailed:   {StatusPending, StatusRemoved},
	StatusRemoved:  {StatusPending, StatusRemoved},
}

// ---------------------------------------------------------------------------
// MarketplaceListing
// ---------------------------------------------------------------------------

// MarketplaceListing is the projection of one InventoryItem onto one
// marketplace. At most one exists per (ItemID, Marketplace).
type MarketplaceListing struct {
	ID            uuid.UUID
	ItemID        uuid.UUID
	Marketplace   Code
	RemoteID      string
	SKU           string
	OfferID       string
	ExternalURL   string
	Status        ListingStatus
	LastSyncAt    *time.Time
	LastError     string
	LastErrorKind FailureKind
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewMarketplaceListing creates an UNLISTED listing for a pair
func NewMarketplaceListing(itemID uuid.UUID, code Code) (*MarketplaceListing, error) {
	if itemID == uuid.Nil {
		return nil, ErrInvalidListingOwner
	}
	if !code.IsValid() {
		return nil, ErrUnknownMarketplace
	}
	now := time.Now().UTC()
	return &MarketplaceListing{
		ID:          uuid.New(),
		ItemID:      itemID,
		Marketplace: code,
		Status:      StatusUnlisted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Ref returns the remote reference stored on the listing
func (l *MarketplaceListing) Ref() RemoteRef {
	return RemoteRef{
		ID:      l.RemoteID,
		SKU:     l.SKU,
		OfferID: l.OfferID,
		URL:     l.ExternalURL,
	}
}

// HasRemote reports whether a remote listing id is known
func (l *MarketplaceListing) HasRemote() bool {
	return l.RemoteID != ""
}

func (l *MarketplaceListing) transition(next ListingStatus, now time.Time) error {
	if !l.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, next)
	}
	l.Status = next
	l.UpdatedAt = now
	return nil
}

// BeginSync moves the pair to PENDING ahead of an adapter write
func (l *MarketplaceListing) BeginSync(now time.Time) error {
	if err := l.transition(StatusPending, now); err != nil {
		return err
	}
	l.Attempts = 0
	return nil
}

// MarkActive records a successful write or a live status probe
func (l *MarketplaceListing) MarkActive(ref RemoteRef, attempts int, now time.Time) error {
	if err := l.transition(StatusActive, now); err != nil {
		return err
	}
	l.applyRef(ref)
	l.Attempts = attempts
	l.LastSyncAt = &now
	l.LastError = ""
	l.LastErrorKind = ""
	return nil
}

// MarkFailed records a failed write. The remote reference is retained, the
// listing may still exist remotely in a stale state.
func (l *MarketplaceListing) MarkFailed(err *SyncError, attempts int, now time.Time) error {
	if terr := l.transition(StatusFailed, now); terr != nil {
		return terr
	}
	l.Attempts = attempts
	l.LastSyncAt = &now
	l.recordError(err)
	return nil
}

// MarkRemoved records that no remote listing exists any more
func (l *MarketplaceListing) MarkRemoved(now time.Time) error {
	if err := l.transition(StatusRemoved, now); err != nil {
		return err
	}
	l.RemoteID = ""
	l.OfferID = ""
	l.ExternalURL = ""
	l.LastSyncAt = &now
	l.LastError = ""
	l.LastErrorKind = ""
	return nil
}

// MarkUnlisted rolls an interrupted create back when the remote never saw it
func (l *MarketplaceListing) MarkUnlisted(now time.Time) error {
	if err := l.transition(StatusUnlisted, now); err != nil {
		return err
	}
	l.LastSyncAt = &now
	return nil
}

// RecordProbeError stores a failed read without changing status
func (l *MarketplaceListing) RecordProbeError(err *SyncError, now time.Time) {
	l.LastSyncAt = &now
	l.UpdatedAt = now
	l.recordError(err)
}

func (l *MarketplaceListing) applyRef(ref RemoteRef) {
	if ref.ID != "" {
		l.RemoteID = ref.ID
	}
	if ref.SKU != "" {
		l.SKU = ref.SKU
	}
	if ref.OfferID != "" {
		l.OfferID = ref.OfferID
	}
	if ref.URL != "" {
		l.ExternalURL = ref.URL
	}
}

func (l *MarketplaceListing) recordError(err *SyncError) {
	if err == nil {
		return
	}
	l.LastError = err.Error()
	l.LastErrorKind = err.Kind
}
