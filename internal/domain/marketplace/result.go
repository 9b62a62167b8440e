package marketplace

import (
	"github.com/shopspring/decimal"
)

// Outcome is the top-level result of an adapter call
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// RemoteState is the lifecycle state a marketplace reports for a listing
type RemoteState string

const (
	// RemoteLive means the listing is visible and purchasable
	RemoteLive RemoteState = "LIVE"
	// RemoteEnded means the listing exists but is sold, ended or unpublished
	RemoteEnded RemoteState = "ENDED"
)

// RemoteRef identifies a listing on a marketplace.
// ID is the marketplace listing id; SKU and OfferID are eBay handles.
type RemoteRef struct {
	ID      string
	SKU     string
	OfferID string
	URL     string
}

// IsZero returns true if no remote listing is referenced
func (r RemoteRef) IsZero() bool {
	return r.ID == "" && r.OfferID == ""
}

// RemoteSnapshot is what a status probe observed remotely.
// Price and Quantity are nil when the marketplace does not report them.
type RemoteSnapshot struct {
	State    RemoteState
	Price    *decimal.Decimal
	Quantity *int
}

// SyncResult is the ephemeral value every adapter call returns
type SyncResult struct {
	Outcome  Outcome
	Remote   RemoteRef
	Snapshot *RemoteSnapshot
	Err      *SyncError
}

// Succeeded builds a successful result for a write operation
func Succeeded(ref RemoteRef) SyncResult {
	return SyncResult{Outcome: OutcomeSuccess, Remote: ref}
}

// Observed builds a successful result for a status probe
func Observed(ref RemoteRef, snapshot RemoteSnapshot) SyncResult {
	return SyncResult{Outcome: OutcomeSuccess, Remote: ref, Snapshot: &snapshot}
}

// Failed builds a failed result. A nil error is reported as a transient
// failure so that a failure is never mistaken for success.
func Failed(err *SyncError) SyncResult {
	if err == nil {
		err = Transient(CodeInvalidResponse, "adapter reported failure without detail")
	}
	return SyncResult{Outcome: OutcomeFailure, Err: err}
}

// IsSuccess reports whether the call succeeded
func (r SyncResult) IsSuccess() bool {
	return r.Outcome == OutcomeSuccess && r.Err == nil
}

// Kind returns the failure kind, or an empty kind for successes
func (r SyncResult) Kind() FailureKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}
