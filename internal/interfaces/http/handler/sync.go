package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/crosslist/backend/internal/infrastructure/scheduler"
	"github.com/crosslist/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncService runs sync requests in the request goroutine
type SyncService interface {
	Sync(ctx context.Context, req marketplaceapp.SyncRequest) ([]marketplaceapp.SyncOutcome, error)
	ListingsOf(ctx context.Context, itemID uuid.UUID) ([]marketplace.MarketplaceListing, error)
}

// SyncJobQueue hands sync requests to background workers
type SyncJobQueue interface {
	Submit(req marketplaceapp.SyncRequest, source string) (*scheduler.SyncJob, error)
	Job(id uuid.UUID) (*scheduler.SyncJob, error)
}

// SyncItemRequest is the body of POST /items/:id/sync
type SyncItemRequest struct {
	Action       string   `json:"action" binding:"required,sync_action"`
	Marketplaces []string `json:"marketplaces" binding:"omitempty,max=10"`
	Async        bool     `json:"async"`
}

// SyncResponse reports the per-marketplace outcome of a sync request
type SyncResponse struct {
	ItemID   uuid.UUID                    `json:"item_id"`
	Action   marketplaceapp.SyncAction    `json:"action"`
	JobID    *uuid.UUID                   `json:"job_id,omitempty"`
	Status   scheduler.JobStatus          `json:"status,omitempty"`
	Outcomes []marketplaceapp.SyncOutcome `json:"outcomes"`
}

// SyncJobResponse represents an asynchronous sync job
type SyncJobResponse struct {
	ID           uuid.UUID                    `json:"id"`
	ItemID       uuid.UUID                    `json:"item_id"`
	Action       marketplaceapp.SyncAction    `json:"action"`
	Marketplaces []string                     `json:"marketplaces"`
	Source       string                       `json:"source"`
	Status       scheduler.JobStatus          `json:"status"`
	Error        string                       `json:"error,omitempty"`
	Outcomes     []marketplaceapp.SyncOutcome `json:"outcomes"`
	CreatedAt    time.Time                    `json:"created_at"`
	StartedAt    *time.Time                   `json:"started_at,omitempty"`
	CompletedAt  *time.Time                   `json:"completed_at,omitempty"`
}

func toSyncJobResponse(job *scheduler.SyncJob) SyncJobResponse {
	outcomes := job.Outcomes
	if outcomes == nil {
		outcomes = []marketplaceapp.SyncOutcome{}
	}
	return SyncJobResponse{
		ID:           job.ID,
		ItemID:       job.ItemID,
		Action:       job.Action,
		Marketplaces: job.Marketplaces,
		Source:       job.Source,
		Status:       job.Status,
		Error:        job.Error,
		Outcomes:     outcomes,
		CreatedAt:    job.CreatedAt,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
	}
}

// SyncHandler handles marketplace synchronization endpoints
type SyncHandler struct {
	BaseHandler
	sync     SyncService
	jobs     SyncJobQueue
	adapters marketplace.AdapterRegistry
}

// NewSyncHandler creates a new SyncHandler. jobs may be nil, in which case
// async requests are refused.
func NewSyncHandler(sync SyncService, jobs SyncJobQueue, adapters marketplace.AdapterRegistry) *SyncHandler {
	return &SyncHandler{sync: sync, jobs: jobs, adapters: adapters}
}

// Sync handles POST /items/:id/sync.
// Synchronous requests answer 200 with one outcome per marketplace, whatever
// those outcomes are. Async requests answer 202 with the queued job.
func (h *SyncHandler) Sync(c *gin.Context) {
	itemID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}
	var req SyncItemRequest
	if !h.bindJSON(c, &req) {
		return
	}
	action, err := marketplaceapp.ParseSyncAction(req.Action)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	syncReq := marketplaceapp.SyncRequest{
		ItemID:       itemID,
		Action:       action,
		Marketplaces: req.Marketplaces,
	}
	if req.Async {
		h.enqueue(c, syncReq)
		return
	}

	outcomes, err := h.sync.Sync(c.Request.Context(), syncReq)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, SyncResponse{ItemID: itemID, Action: action, Outcomes: outcomes})
}

// enqueue validates the request entries up front so the caller learns about
// unknown marketplaces immediately, then queues the remaining ones as one job.
func (h *SyncHandler) enqueue(c *gin.Context, req marketplaceapp.SyncRequest) {
	if h.jobs == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeNotConfigured, "Asynchronous sync is not enabled")
		return
	}
	ctx := c.Request.Context()

	if _, err := h.sync.ListingsOf(ctx, req.ItemID); err != nil {
		h.HandleError(c, err)
		return
	}

	accepted, outcomes := h.resolve(req)
	if len(accepted) == 0 && len(outcomes) == 0 {
		h.HandleError(c, marketplaceapp.ErrNoMarketplaces)
		return
	}
	if len(accepted) == 0 {
		h.Success(c, SyncResponse{ItemID: req.ItemID, Action: req.Action, Outcomes: outcomes})
		return
	}

	req.Marketplaces = accepted
	req.RequestID = logger.GetRequestID(ctx)
	job, err := h.jobs.Submit(req, scheduler.SourceAPI)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	for _, name := range accepted {
		outcomes = append(outcomes, marketplaceapp.SyncOutcome{
			Marketplace: name,
			Action:      req.Action,
			Outcome:     marketplaceapp.OutcomeQueued,
		})
	}

	logger.L(ctx).Info("Sync job queued",
		zap.String("job_id", job.ID.String()),
		logger.ItemID(req.ItemID.String()),
		logger.Action(string(req.Action)),
		zap.Strings("marketplaces", accepted),
	)
	jobID := job.ID
	h.Accepted(c, SyncResponse{
		ItemID:   req.ItemID,
		Action:   req.Action,
		JobID:    &jobID,
		Status:   job.Status,
		Outcomes: outcomes,
	})
}

// resolve splits the requested marketplaces into the codes that have an
// adapter and rejection outcomes for the rest. An empty request selects every
// registered marketplace.
func (h *SyncHandler) resolve(req marketplaceapp.SyncRequest) ([]string, []marketplaceapp.SyncOutcome) {
	names := req.Marketplaces
	if len(names) == 0 {
		for _, code := range h.adapters.Marketplaces() {
			names = append(names, string(code))
		}
	}

	var accepted []string
	outcomes := []marketplaceapp.SyncOutcome{}
	seen := make(map[marketplace.Code]bool, len(names))
	for _, name := range names {
		code, err := marketplace.ParseCode(name)
		if err != nil {
			outcomes = append(outcomes, rejectedOutcome(strings.ToUpper(strings.TrimSpace(name)), req.Action,
				marketplaceapp.CodeUnknownMarketplace, "unknown marketplace "+name))
			continue
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		if _, err := h.adapters.Adapter(code); err != nil {
			outcomes = append(outcomes, rejectedOutcome(string(code), req.Action,
				marketplaceapp.CodeAdapterUnavailable, err.Error()))
			continue
		}
		accepted = append(accepted, string(code))
	}
	return accepted, outcomes
}

func rejectedOutcome(name string, action marketplaceapp.SyncAction, code, message string) marketplaceapp.SyncOutcome {
	return marketplaceapp.SyncOutcome{
		Marketplace: name,
		Action:      action,
		Outcome:     marketplaceapp.OutcomeRejected,
		Error:       &marketplaceapp.SyncErrorDTO{Code: code, Message: message},
	}
}

// Listings handles GET /items/:id/listings
func (h *SyncHandler) Listings(c *gin.Context) {
	itemID, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	listings, err := h.sync.ListingsOf(c.Request.Context(), itemID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	resp := make([]marketplaceapp.ListingResponse, 0, len(listings))
	for i := range listings {
		resp = append(resp, marketplaceapp.ToListingResponse(&listings[i]))
	}
	h.Success(c, resp)
}

// GetJob handles GET /sync-jobs/:id
func (h *SyncHandler) GetJob(c *gin.Context) {
	if h.jobs == nil {
		h.Error(c, http.StatusServiceUnavailable, dto.ErrCodeNotConfigured, "Asynchronous sync is not enabled")
		return
	}
	id, ok := h.parseUUIDParam(c, "id")
	if !ok {
		return
	}

	job, err := h.jobs.Job(id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, toSyncJobResponse(job))
}
