// Package httptransport is the thin HTTP layer over the engine. Handlers
// delegate to services and translate sentinel errors into status codes;
// business logic stays out of this package.
package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attest/internal/refresh"
	"attest/internal/scoring"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

// ScoreService is the scoring surface the handlers consume.
type ScoreService interface {
	ScoreFor(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (scoring.ComplianceScore, error)
	BundleFulfillment(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]scoring.BundleDetail, error)
}

// RunTrigger is the refresh surface the handlers consume.
type RunTrigger interface {
	Trigger(ctx context.Context, req refresh.TriggerRequest) (refresh.RunResult, error)
	Progress() refresh.Progress
}

// Handler handles engine endpoints.
type Handler struct {
	scores ScoreService
	runs   RunTrigger
	logger *slog.Logger
}

func NewHandler(scores ScoreService, runs RunTrigger, logger *slog.Logger) *Handler {
	return &Handler{scores: scores, runs: runs, logger: logger}
}

type triggerRequest struct {
	TenantID string `json:"tenant_id,omitempty"`
	Source   string `json:"source,omitempty"`
}

type runResponse struct {
	RunID            string            `json:"run_id"`
	Status           string            `json:"status"`
	TenantsProcessed int               `json:"tenants_processed"`
	ClientsUpdated   int               `json:"clients_updated"`
	DurationMS       int64             `json:"duration_ms"`
	Errors           map[string]string `json:"errors,omitempty"`
}

func (h *Handler) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Body != nil {
		// An empty body triggers a full sweep.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	trigger := refresh.TriggerRequest{Source: req.Source}
	if trigger.Source == "" {
		trigger.Source = "manual"
	}
	if req.TenantID != "" {
		tenantID, err := id.ParseTenantID(req.TenantID)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		trigger.TenantID = &tenantID
	}

	result, err := h.runs.Trigger(r.Context(), trigger)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := runResponse{
		RunID:            result.RunID.String(),
		Status:           string(result.Status),
		TenantsProcessed: result.TenantsProcessed,
		ClientsUpdated:   result.ClientsUpdated,
		DurationMS:       result.Duration.Milliseconds(),
	}
	if len(result.Errors) > 0 {
		resp.Errors = make(map[string]string, len(result.Errors))
		for tenantID, msg := range result.Errors {
			resp.Errors[tenantID.String()] = msg
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.runs.Progress())
}

type scoreResponse struct {
	ClientID      string                            `json:"client_id"`
	Level         string                            `json:"level"`
	Score         float64                           `json:"score"`
	MissingCount  int                               `json:"missing_count"`
	ExpiringCount int                               `json:"expiring_count"`
	OverdueCount  int                               `json:"overdue_count"`
	Breakdown     map[string]scoring.AuthorityScore `json:"breakdown,omitempty"`
	CalculatedAt  time.Time                         `json:"calculated_at"`
}

func (h *Handler) handleGetScore(w http.ResponseWriter, r *http.Request) {
	tenantID, clientID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	score, err := h.scores.ScoreFor(r.Context(), tenantID, clientID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scoreResponse{
		ClientID:      score.ClientID.String(),
		Level:         string(score.Level),
		Score:         score.Score,
		MissingCount:  score.MissingCount,
		ExpiringCount: score.ExpiringCount,
		OverdueCount:  score.OverdueCount,
		Breakdown:     score.Breakdown,
		CalculatedAt:  score.CalculatedAt,
	})
}

type itemDetailResponse struct {
	ItemID          string `json:"item_id"`
	Description     string `json:"description,omitempty"`
	Required        bool   `json:"required"`
	Satisfied       bool   `json:"satisfied"`
	Invalid         bool   `json:"invalid,omitempty"`
	MatchedDocument string `json:"matched_document,omitempty"`
	MatchedFiling   string `json:"matched_filing,omitempty"`
}

type bundleDetailResponse struct {
	BundleID  string               `json:"bundle_id"`
	Name      string               `json:"name"`
	Authority string               `json:"authority"`
	Category  string               `json:"category"`
	Items     []itemDetailResponse `json:"items"`
}

func (h *Handler) handleGetFulfillment(w http.ResponseWriter, r *http.Request) {
	tenantID, clientID, ok := h.pathIDs(w, r)
	if !ok {
		return
	}
	details, err := h.scores.BundleFulfillment(r.Context(), tenantID, clientID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := make([]bundleDetailResponse, 0, len(details))
	for _, d := range details {
		bd := bundleDetailResponse{
			BundleID:  d.Bundle.ID.String(),
			Name:      d.Bundle.Name,
			Authority: d.Bundle.Authority,
			Category:  d.Bundle.Category,
		}
		for _, item := range d.Items {
			ir := itemDetailResponse{
				ItemID:      item.Item.ID.String(),
				Description: item.Item.Description,
				Required:    item.Item.Required,
				Satisfied:   item.Satisfied,
				Invalid:     item.Invalid,
			}
			if item.MatchedDocument != nil {
				ir.MatchedDocument = item.MatchedDocument.ID.String()
			}
			if item.MatchedFiling != nil {
				ir.MatchedFiling = item.MatchedFiling.ID.String()
			}
			bd.Items = append(bd.Items, ir)
		}
		resp = append(resp, bd)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) pathIDs(w http.ResponseWriter, r *http.Request) (id.TenantID, id.ClientID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return id.TenantID{}, id.ClientID{}, false
	}
	clientID, err := id.ParseClientID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return id.TenantID{}, id.ClientID{}, false
	}
	return tenantID, clientID, true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, sentinel.ErrUnavailable):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.Is(err, sentinel.ErrConflict):
		writeError(w, http.StatusConflict, err)
	default:
		if h.logger != nil {
			h.logger.ErrorContext(r.Context(), "request failed",
				"path", r.URL.Path,
				"request_id", requestcontext.RequestID(r.Context()),
				"error", err,
			)
		}
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
