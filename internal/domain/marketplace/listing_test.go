package marketplace

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// MarketplaceListing Tests
// ---------------------------------------------------------------------------

func TestNewMarketplaceListing(t *testing.T) {
	itemID := uuid.New()

	t.Run("Valid listing starts unlisted", func(t *testing.T) {
		l, err := NewMarketplaceListing(itemID, CodeEbay)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, l.ID)
		assert.Equal(t, itemID, l.ItemID)
		assert.Equal(t, CodeEbay, l.Marketplace)
		assert.Equal(t, StatusUnlisted, l.Status)
		assert.False(t, l.HasRemote())
		assert.Nil(t, l.LastSyncAt)
	})

	t.Run("Nil item ID", func(t *testing.T) {
		_, err := NewMarketplaceListing(uuid.Nil, CodeEbay)
		assert.ErrorIs(t, err, ErrInvalidListingOwner)
	})

	t.Run("Unknown marketplace", func(t *testing.T) {
		_, err := NewMarketplaceListing(itemID, Code("ETSY"))
		assert.ErrorIs(t, err, ErrUnknownMarketplace)
	})
}

func TestMarketplaceListing_Lifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Create success becomes active with remote id", func(t *testing.T) {
		l, _ := NewMarketplaceListing(uuid.New(), CodeEbay)
		require.NoError(t, l.BeginSync(now))
		assert.Equal(t, StatusPending, l.Status)

		ref := RemoteRef{ID: "R1", SKU: "SKU-1", OfferID: "O1", URL: "https://www.ebay.com/itm/R1"}
		require.NoError(t, l.MarkActive(ref, 1, now))
		assert.Equal(t, StatusActive, l.Status)
		assert.Equal(t, "R1", l.RemoteID)
		assert.Equal(t, "O1", l.OfferID)
		assert.Equal(t, 1, l.Attempts)
		require.NotNil(t, l.LastSyncAt)
		assert.Equal(t, now, *l.LastSyncAt)
	})

	t.Run("Failed update retains remote id", func(t *testing.T) {
		l, _ := NewMarketplaceListing(uuid.New(), CodeEbay)
		require.NoError(t, l.BeginSync(now))
		require.NoError(t, l.MarkActive(RemoteRef{ID: "R1"}, 1, now))

		require.NoError(t, l.BeginSync(now))
		require.NoError(t, l.MarkFailed(Rejected(CodeInvalidRequest, "bad category"), 1, now))
		assert.Equal(t, StatusFailed, l.Status)
		assert.Equal(t, "R1", l.RemoteID)
		assert.Equal(t, FailureRejected, l.LastErrorKind)
		assert.Contains(t, l.LastError, "bad category")
	})

	t.Run("Removed clears the remote reference", func(t *testing.T) {
		l, _ := NewMarketplaceListing(uuid.New(), CodePoshmark)
		require.NoError(t, l.BeginSync(now))
		require.NoError(t, l.MarkActive(RemoteRef{ID: "abc123", URL: "https://poshmark.com/listing/x-abc123"}, 1, now))
		require.NoError(t, l.MarkRemoved(now))
		assert.Equal(t, StatusRemoved, l.Status)
		assert.False(t, l.HasRemote())
		assert.Empty(t, l.ExternalURL)

		// removing again is allowed
		require.NoError(t, l.MarkRemoved(now))
		assert.Equal(t, StatusRemoved, l.Status)
	})

	t.Run("Success clears the previous error", func(t *testing.T) {
		l, _ := NewMarketplaceListing(uuid.New(), CodeEbay)
		require.NoError(t, l.BeginSync(now))
		require.NoError(t, l.MarkFailed(Transient(CodeServerError, "503"), 3, now))
		require.NoError(t, l.BeginSync(now))
		require.NoError(t, l.MarkActive(RemoteRef{ID: "R2"}, 1, now))
		assert.Empty(t, l.LastError)
		assert.Empty(t, l.LastErrorKind)
	})

	t.Run("Probe error keeps status", func(t *testing.T) {
		l, _ := NewMarketplaceListing(uuid.New(), CodeEbay)
		require.NoError(t, l.BeginSync(now))
		require.NoError(t, l.MarkActive(RemoteRef{ID: "R1"}, 1, now))
		l.RecordProbeError(Transient(CodeTimeout, "timeout"), now)
		assert.Equal(t, StatusActive, l.Status)
		assert.Equal(t, FailureTransient, l.LastErrorKind)
	})
}

func TestListingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from ListingStatus
		to   ListingStatus
		want bool
	}{
		{StatusUnlisted, StatusPending, true},
		{StatusUnlisted, StatusActive, false},
		{StatusPending, StatusActive, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusPending, false},
		{StatusActive, StatusPending, true},
		{StatusActive, StatusFailed, false},
		{StatusFailed, StatusActive, false},
		{StatusFailed, StatusPending, true},
		{StatusRemoved, StatusRemoved, true},
		{StatusRemoved, StatusPending, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestMarketplaceListing_InvalidTransition(t *testing.T) {
	l, _ := NewMarketplaceListing(uuid.New(), CodeEbay)
	err := l.MarkActive(RemoteRef{ID: "R1"}, 1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusUnlisted, l.Status)
	assert.False(t, l.HasRemote())
}

func TestListingStatus_IsValid(t *testing.T) {
	assert.True(t, StatusActive.IsValid())
	assert.False(t, ListingStatus("SOLD").IsValid())
	assert.True(t, StatusPending.IsLive())
	assert.False(t, StatusFailed.IsLive())
}
