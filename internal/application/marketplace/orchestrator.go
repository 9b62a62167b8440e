package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/crosslist/backend/sync"

// SyncRecorder receives one observation per processed pair
type SyncRecorder interface {
	RecordSync(ctx context.Context, marketplace, action, outcome string, attempts int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordSync(context.Context, string, string, string, int, time.Duration) {}

// Orchestrator drives every (item, marketplace) pair through the listing
// state machine. Work on one pair is serialized by the PairLocker; pairs of
// one request run concurrently and never affect each other.
type Orchestrator struct {
	store       marketplace.InventoryStore
	adapters    marketplace.AdapterRegistry
	locker      PairLocker
	policy      RetryPolicy
	maxParallel int
	recorder    SyncRecorder
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// OrchestratorOption configures an Orchestrator
type OrchestratorOption func(*Orchestrator)

// WithPairLocker replaces the in-process lock arena
func WithPairLocker(l PairLocker) OrchestratorOption {
	return func(o *Orchestrator) { o.locker = l }
}

// WithRetryPolicy sets the transient retry policy
func WithRetryPolicy(p RetryPolicy) OrchestratorOption {
	return func(o *Orchestrator) { o.policy = p }
}

// WithMaxParallel bounds how many marketplaces of one request run at once
func WithMaxParallel(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// WithSyncRecorder attaches a metrics recorder
func WithSyncRecorder(r SyncRecorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithOrchestratorLogger sets the logger
func WithOrchestratorLogger(l *zap.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider sources the sync spans from tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) OrchestratorOption {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an Orchestrator
func NewOrchestrator(store marketplace.InventoryStore, adapters marketplace.AdapterRegistry, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		adapters:    adapters,
		locker:      NewPairLockArena(),
		policy:      DefaultRetryPolicy(),
		maxParallel: 4,
		recorder:    nopRecorder{},
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(tracerName),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync applies req.Action to every requested marketplace. An empty
// marketplace list means every registered marketplace. Entries naming an
// unknown or unavailable marketplace are rejected individually; a missing
// item fails the whole request with ErrItemNotFound.
func (o *Orchestrator) Sync(ctx context.Context, req SyncRequest) ([]SyncOutcome, error) {
	action, err := ParseSyncAction(string(req.Action))
	if err != nil {
		return nil, err
	}

	names := req.Marketplaces
	if len(names) == 0 {
		for _, code := range o.adapters.Marketplaces() {
			names = append(names, string(code))
		}
	}
	if len(names) == 0 {
		return nil, ErrNoMarketplaces
	}

	item, err := o.store.GetItem(ctx, req.ItemID)
	if err != nil {
		return nil, err
	}

	type entry struct {
		name    string
		adapter marketplace.Adapter
		reject  *SyncOutcome
	}
	entries := make([]entry, 0, len(names))
	seen := make(map[marketplace.Code]bool, len(names))
	for _, name := range names {
		code, err := marketplace.ParseCode(name)
		if err != nil {
			out := rejected(strings.ToUpper(strings.TrimSpace(name)), action, CodeUnknownMarketplace, "unknown marketplace "+name)
			entries = append(entries, entry{name: name, reject: &out})
			continue
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		adapter, err := o.adapters.Adapter(code)
		if err != nil {
			errCode := CodeAdapterUnavailable
			if errors.Is(err, marketplace.ErrUnknownMarketplace) {
				errCode = CodeUnknownMarketplace
			}
			out := rejected(string(code), action, errCode, err.Error())
			entries = append(entries, entry{name: name, reject: &out})
			continue
		}
		entries = append(entries, entry{name: name, adapter: adapter})
	}

	results := make([]SyncOutcome, len(entries))
	g := new(errgroup.Group)
	g.SetLimit(o.maxParallel)
	for i, e := range entries {
		if e.reject != nil {
			results[i] = *e.reject
			continue
		}
		g.Go(func() error {
			results[i] = o.SyncPair(ctx, item, e.adapter, action)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

// pairRun carries the state of one pair through an action
type pairRun struct {
	item    *marketplace.InventoryItem
	adapter marketplace.Adapter
	action  SyncAction
	listing *marketplace.MarketplaceListing
	stored  bool
	log     *logger.ContextLogger
}

// SyncPair runs one action for one pair while holding the pair lock
func (o *Orchestrator) SyncPair(ctx context.Context, item *marketplace.InventoryItem, adapter marketplace.Adapter, action SyncAction) SyncOutcome {
	code := adapter.Marketplace()
	start := o.now()

	ctx, span := o.tracer.Start(ctx, "sync."+strings.ToLower(string(action)),
		trace.WithAttributes(
			attribute.String("item.id", item.ID.String()),
			attribute.String("marketplace", string(code)),
			attribute.String("mechanism", string(adapter.Mechanism())),
		),
	)
	defer span.End()

	ctx = logger.WithMarketplace(ctx, string(code))
	log := logger.WithLogger(ctx, o.logger).With(
		logger.ItemID(item.ID.String()),
		logger.Action(string(action)),
	)

	out := o.syncLocked(ctx, &pairRun{item: item, adapter: adapter, action: action, log: log})

	span.SetAttributes(
		attribute.String("sync.outcome", string(out.Outcome)),
		attribute.String("listing.status", string(out.Status)),
		attribute.Int("sync.attempts", out.Attempts),
	)
	if out.Outcome == OutcomeFailed && out.Error != nil {
		span.SetStatus(codes.Error, out.Error.Message)
	}

	elapsed := o.now().Sub(start)
	o.recorder.RecordSync(ctx, string(code), string(action), string(out.Outcome), out.Attempts, elapsed)

	fields := []zap.Field{logger.Status(string(out.Status)), logger.Attempt(out.Attempts), logger.Elapsed(elapsed)}
	if out.Error != nil {
		fields = append(fields, logger.FailureKind(out.Error.Kind), zap.String("code", out.Error.Code), zap.String("error", out.Error.Message))
	}
	switch out.Outcome {
	case OutcomeFailed:
		log.Warn("pair sync failed", fields...)
	case OutcomeCancelled:
		log.Info("pair sync cancelled", fields...)
	default:
		log.Info("pair sync finished", append(fields, zap.String("outcome", string(out.Outcome)))...)
	}
	return out
}

func (o *Orchestrator) syncLocked(ctx context.Context, p *pairRun) SyncOutcome {
	code := p.adapter.Marketplace()

	unlock, err := o.locker.Lock(ctx, PairKey(p.item.ID, code))
	if err != nil {
		if ctx.Err() != nil {
			return cancelledBeforeCall(code, p.action, "")
		}
		out := rejected(string(code), p.action, CodeStoreFailure, "acquire pair lock: "+err.Error())
		out.Outcome = OutcomeFailed
		return out
	}
	defer unlock()

	if ctx.Err() != nil {
		return cancelledBeforeCall(code, p.action, "")
	}

	// re-read under the lock, another request may have just finished this pair
	listing, err := o.store.GetListing(ctx, p.item.ID, code)
	switch {
	case err == nil:
		p.listing = listing
		p.stored = true
	case errors.Is(err, marketplace.ErrListingNotFound):
		p.listing, err = marketplace.NewMarketplaceListing(p.item.ID, code)
		if err != nil {
			return rejected(string(code), p.action, CodeUnknownMarketplace, err.Error())
		}
	default:
		return o.storeFailure(p, err)
	}

	switch p.action {
	case ActionPublish:
		return o.publish(ctx, p)
	case ActionUpdate:
		return o.update(ctx, p)
	case ActionDelist:
		return o.delist(ctx, p)
	default:
		return o.reconcile(ctx, p)
	}
}

// ---------------------------------------------------------------------------
// Actions
// ---------------------------------------------------------------------------

func (o *Orchestrator) publish(ctx context.Context, p *pairRun) SyncOutcome {
	if out, done := o.resolvePending(ctx, p); done {
		return out
	}

	switch {
	case p.listing.Status == marketplace.StatusActive:
		return outcomeFromListing(p.listing, p.action, OutcomeSkipped)
	case p.listing.HasRemote():
		// FAILED (or unresolved PENDING) with a remote listing: refresh it instead of duplicating
		out := o.writeUpdate(ctx, p)
		if !remoteGone(out) || ctx.Err() != nil {
			return out
		}
		p.log.Info("remote listing is gone, publishing a new one")
		return o.writeCreate(ctx, p)
	default:
		return o.writeCreate(ctx, p)
	}
}

func (o *Orchestrator) update(ctx context.Context, p *pairRun) SyncOutcome {
	if out, done := o.resolvePending(ctx, p); done {
		return out
	}
	if !p.listing.HasRemote() {
		out := outcomeFromListing(p.listing, p.action, OutcomeRejected)
		out.Error = &SyncErrorDTO{Code: CodeNotListed, Message: "item is not listed on " + p.adapter.Marketplace().DisplayName()}
		return out
	}
	return o.writeUpdate(ctx, p)
}

func (o *Orchestrator) delist(ctx context.Context, p *pairRun) SyncOutcome {
	if !p.stored {
		return outcomeFromListing(p.listing, p.action, OutcomeSkipped)
	}
	if out, done := o.resolvePending(ctx, p); done {
		return out
	}

	if !p.listing.HasRemote() {
		if p.listing.Status == marketplace.StatusRemoved {
			return outcomeFromListing(p.listing, p.action, OutcomeSkipped)
		}
		if err := p.listing.MarkRemoved(o.now()); err != nil {
			return o.storeFailure(p, err)
		}
		if err := o.store.UpsertListing(ctx, p.listing); err != nil {
			return o.storeFailure(p, err)
		}
		return outcomeFromListing(p.listing, p.action, OutcomeSucceeded)
	}

	if out, ok := o.begin(ctx, p); !ok {
		return out
	}
	ref := p.listing.Ref()
	res, attempts := o.policy.run(ctx, func(c context.Context) marketplace.SyncResult {
		return p.adapter.DeleteListing(c, ref)
	}, o.notifier(p))
	if ctx.Err() != nil {
		return cancelledAfterCall(p, attempts)
	}

	now := o.now()
	var err error
	if res.IsSuccess() || res.Kind() == marketplace.FailureNotFound {
		err = p.listing.MarkRemoved(now)
	} else {
		err = p.listing.MarkFailed(res.Err, attempts, now)
	}
	return o.finish(ctx, p, res, attempts, err)
}

func (o *Orchestrator) reconcile(ctx context.Context, p *pairRun) SyncOutcome {
	if !p.stored {
		return outcomeFromListing(p.listing, p.action, OutcomeSkipped)
	}

	switch {
	case p.listing.HasRemote():
		ref := p.listing.Ref()
		res, attempts := o.policy.run(ctx, func(c context.Context) marketplace.SyncResult {
			return p.adapter.FetchListingStatus(c, ref)
		}, o.notifier(p))
		if ctx.Err() != nil {
			return cancelledAfterCall(p, attempts)
		}
		drift, perr := o.applyProbe(p, res)
		out := o.persistOutcome(ctx, p, perr)
		out.Attempts = attempts
		out.Drift = drift
		return out
	case p.listing.Status == marketplace.StatusPending:
		res := o.locate(ctx, p)
		if ctx.Err() != nil {
			return cancelledAfterCall(p, 1)
		}
		return o.persistOutcome(ctx, p, res)
	default:
		return outcomeFromListing(p.listing, p.action, OutcomeSkipped)
	}
}

// ---------------------------------------------------------------------------
// Write paths
// ---------------------------------------------------------------------------

func (o *Orchestrator) writeCreate(ctx context.Context, p *pairRun) SyncOutcome {
	if out, ok := o.begin(ctx, p); !ok {
		return out
	}
	res, attempts := o.policy.run(ctx, func(c context.Context) marketplace.SyncResult {
		return p.adapter.CreateListing(c, p.item)
	}, o.notifier(p))
	if ctx.Err() != nil {
		return cancelledAfterCall(p, attempts)
	}

	now := o.now()
	var err error
	if res.IsSuccess() {
		err = p.listing.MarkActive(res.Remote, attempts, now)
	} else {
		err = p.listing.MarkFailed(res.Err, attempts, now)
	}
	return o.finish(ctx, p, res, attempts, err)
}

func (o *Orchestrator) writeUpdate(ctx context.Context, p *pairRun) SyncOutcome {
	if out, ok := o.begin(ctx, p); !ok {
		return out
	}
	ref := p.listing.Ref()
	res, attempts := o.policy.run(ctx, func(c context.Context) marketplace.SyncResult {
		return p.adapter.UpdateListing(c, ref, p.item)
	}, o.notifier(p))
	if ctx.Err() != nil {
		return cancelledAfterCall(p, attempts)
	}

	now := o.now()
	var err error
	switch {
	case res.IsSuccess():
		err = p.listing.MarkActive(res.Remote, attempts, now)
	case res.Kind() == marketplace.FailureNotFound:
		p.log.Info("remote listing is gone, marking removed", logger.RemoteID(ref.ID))
		err = p.listing.MarkRemoved(now)
	default:
		err = p.listing.MarkFailed(res.Err, attempts, now)
	}
	return o.finish(ctx, p, res, attempts, err)
}

// remoteGone reports an update that found no remote listing and was saved as REMOVED
func remoteGone(out SyncOutcome) bool {
	return out.Status == marketplace.StatusRemoved &&
		out.Error != nil && out.Error.Kind == string(marketplace.FailureNotFound)
}

// begin persists PENDING ahead of an adapter write. A pair that is already
// PENDING (an unresolved interrupted operation) stays as is.
func (o *Orchestrator) begin(ctx context.Context, p *pairRun) (SyncOutcome, bool) {
	if ctx.Err() != nil {
		return cancelledBeforeCall(p.adapter.Marketplace(), p.action, p.listing.Status), false
	}
	if p.listing.Status != marketplace.StatusPending {
		if err := p.listing.BeginSync(o.now()); err != nil {
			return o.storeFailure(p, err), false
		}
	}
	if err := o.store.UpsertListing(ctx, p.listing); err != nil {
		if ctx.Err() != nil {
			return cancelledBeforeCall(p.adapter.Marketplace(), p.action, p.listing.Status), false
		}
		return o.storeFailure(p, err), false
	}
	p.stored = true
	return SyncOutcome{}, true
}

func (o *Orchestrator) finish(ctx context.Context, p *pairRun, res marketplace.SyncResult, attempts int, transitionErr error) SyncOutcome {
	if transitionErr != nil {
		return o.storeFailure(p, transitionErr)
	}
	if err := o.store.UpsertListing(ctx, p.listing); err != nil {
		return o.storeFailure(p, err)
	}
	status := OutcomeSucceeded
	if !res.IsSuccess() && !(res.Kind() == marketplace.FailureNotFound && p.listing.Status == marketplace.StatusRemoved && p.action == ActionDelist) {
		status = OutcomeFailed
	}
	out := outcomeFromListing(p.listing, p.action, status)
	out.Attempts = attempts
	if status == OutcomeFailed {
		out.Error = syncErrorDTO(res.Err)
	}
	return out
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

// resolvePending reconciles a pair left PENDING by an interrupted operation.
// It reports done when the caller must stop: the request was cancelled, or
// the pair has no remote id and its remote existence could not be decided.
func (o *Orchestrator) resolvePending(ctx context.Context, p *pairRun) (SyncOutcome, bool) {
	if p.listing.Status != marketplace.StatusPending {
		return SyncOutcome{}, false
	}
	p.log.Warn("pair was left pending by an interrupted sync, reconciling first")

	var perr *marketplace.SyncError
	if p.listing.HasRemote() {
		ref := p.listing.Ref()
		res := p.adapter.FetchListingStatus(ctx, ref)
		if ctx.Err() != nil {
			return cancelledAfterCall(p, 1), true
		}
		_, perr = o.applyProbe(p, res)
	} else {
		perr = o.locate(ctx, p)
		if ctx.Err() != nil {
			return cancelledAfterCall(p, 1), true
		}
	}

	if err := o.store.UpsertListing(ctx, p.listing); err != nil {
		return o.storeFailure(p, err), true
	}
	if perr != nil && p.listing.Status == marketplace.StatusPending && !p.listing.HasRemote() {
		out := outcomeFromListing(p.listing, p.action, OutcomeFailed)
		out.Error = syncErrorDTO(perr)
		return out, true
	}
	return SyncOutcome{}, false
}

// applyProbe folds a status probe into the listing
func (o *Orchestrator) applyProbe(p *pairRun, res marketplace.SyncResult) (*Drift, *marketplace.SyncError) {
	now := o.now()
	l := p.listing

	if !res.IsSuccess() {
		if res.Kind() == marketplace.FailureNotFound {
			if err := l.MarkRemoved(now); err != nil {
				return nil, marketplace.Rejected(CodeStoreFailure, "%v", err)
			}
			return nil, nil
		}
		l.RecordProbeError(res.Err, now)
		return nil, res.Err
	}

	if res.Snapshot != nil && res.Snapshot.State == marketplace.RemoteEnded {
		if err := l.MarkRemoved(now); err != nil {
			return nil, marketplace.Rejected(CodeStoreFailure, "%v", err)
		}
		return nil, nil
	}

	switch l.Status {
	case marketplace.StatusPending, marketplace.StatusActive:
		_ = l.MarkActive(res.Remote, l.Attempts, now)
	default:
		// a FAILED write keeps its status until the next successful write
		l.RecordProbeError(nil, now)
	}

	drift := detectDrift(p.item, res.Snapshot)
	if drift != nil {
		p.log.Warn("remote listing drifted from local item",
			zap.String("local_price", drift.LocalPrice.StringFixed(2)),
			zap.Int("local_quantity", drift.LocalQuantity),
		)
	}
	return drift, nil
}

// locate asks the marketplace whether an interrupted create went through
func (o *Orchestrator) locate(ctx context.Context, p *pairRun) *marketplace.SyncError {
	now := o.now()
	locator, ok := p.adapter.(marketplace.ListingLocator)
	if !ok {
		_ = p.listing.MarkUnlisted(now)
		return nil
	}

	res := locator.FindListing(ctx, p.item)
	switch {
	case res.IsSuccess():
		p.log.Info("interrupted create found on marketplace", logger.RemoteID(res.Remote.ID))
		_ = p.listing.MarkActive(res.Remote, p.listing.Attempts, now)
		return nil
	case res.Kind() == marketplace.FailureNotFound:
		_ = p.listing.MarkUnlisted(now)
		return nil
	default:
		p.listing.RecordProbeError(res.Err, now)
		return res.Err
	}
}

func (o *Orchestrator) persistOutcome(ctx context.Context, p *pairRun, perr *marketplace.SyncError) SyncOutcome {
	if err := o.store.UpsertListing(ctx, p.listing); err != nil {
		return o.storeFailure(p, err)
	}
	if perr != nil {
		out := outcomeFromListing(p.listing, p.action, OutcomeFailed)
		out.Error = syncErrorDTO(perr)
		return out
	}
	return outcomeFromListing(p.listing, p.action, OutcomeSucceeded)
}

func detectDrift(item *marketplace.InventoryItem, snap *marketplace.RemoteSnapshot) *Drift {
	if snap == nil {
		return nil
	}
	priceDrift := snap.Price != nil && !snap.Price.Equal(item.Price)
	qtyDrift := snap.Quantity != nil && *snap.Quantity != item.Quantity
	if !priceDrift && !qtyDrift {
		return nil
	}
	return &Drift{
		LocalPrice:     item.Price,
		RemotePrice:    snap.Price,
		LocalQuantity:  item.Quantity,
		RemoteQuantity: snap.Quantity,
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (o *Orchestrator) notifier(p *pairRun) retryNotify {
	return func(attempt int, err *marketplace.SyncError, wait time.Duration) {
		p.log.Info("transient marketplace failure, retrying",
			logger.Attempt(attempt),
			zap.String("code", err.Code),
			zap.Duration("wait", wait),
		)
	}
}

func (o *Orchestrator) storeFailure(p *pairRun, err error) SyncOutcome {
	p.log.Error("failed to persist listing state", zap.Error(err))
	out := outcomeFromListing(p.listing, p.action, OutcomeFailed)
	out.Error = &SyncErrorDTO{Code: CodeStoreFailure, Message: "listing state could not be saved"}
	return out
}

func cancelledBeforeCall(code marketplace.Code, action SyncAction, status marketplace.ListingStatus) SyncOutcome {
	return SyncOutcome{
		Marketplace: string(code),
		Action:      action,
		Outcome:     OutcomeCancelled,
		Status:      status,
		Error:       &SyncErrorDTO{Code: CodeCancelled, Message: "request cancelled before any marketplace call"},
	}
}

func cancelledAfterCall(p *pairRun, attempts int) SyncOutcome {
	out := outcomeFromListing(p.listing, p.action, OutcomeCancelled)
	out.Attempts = attempts
	out.Error = &SyncErrorDTO{
		Code:    CodeCancelled,
		Message: "request cancelled during the marketplace call; the pair stays pending until the next sync",
	}
	return out
}

// ListingsOf returns the stored listings of an item
func (o *Orchestrator) ListingsOf(ctx context.Context, itemID uuid.UUID) ([]marketplace.MarketplaceListing, error) {
	if _, err := o.store.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return o.store.ListListings(ctx, itemID)
}
