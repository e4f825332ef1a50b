package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"attest/internal/catalog"
	"attest/internal/refresh"
	"attest/internal/scoring"
	id "attest/pkg/domain"
	"attest/pkg/platform/sentinel"
	"attest/pkg/requestcontext"
)

type fakeScores struct {
	score         scoring.ComplianceScore
	details       []scoring.BundleDetail
	err           error
	lastTenant    id.TenantID
	lastClient    id.ClientID
	lastRequestID string
}

func (f *fakeScores) ScoreFor(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) (scoring.ComplianceScore, error) {
	f.lastTenant, f.lastClient = tenantID, clientID
	f.lastRequestID = requestcontext.RequestID(ctx)
	return f.score, f.err
}

func (f *fakeScores) BundleFulfillment(ctx context.Context, tenantID id.TenantID, clientID id.ClientID) ([]scoring.BundleDetail, error) {
	f.lastTenant, f.lastClient = tenantID, clientID
	return f.details, f.err
}

type fakeRuns struct {
	result   refresh.RunResult
	err      error
	lastReq  refresh.TriggerRequest
	progress refresh.Progress
}

func (f *fakeRuns) Trigger(ctx context.Context, req refresh.TriggerRequest) (refresh.RunResult, error) {
	f.lastReq = req
	return f.result, f.err
}

func (f *fakeRuns) Progress() refresh.Progress { return f.progress }

type HandlerSuite struct {
	suite.Suite
	scores *fakeScores
	runs   *fakeRuns
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.scores = &fakeScores{}
	s.runs = &fakeRuns{}
	s.router = NewRouter(NewHandler(s.scores, s.runs, nil), nil)
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) TestTriggerRun() {
	s.Run("empty body triggers a full sweep", func() {
		s.runs.result = refresh.RunResult{
			RunID:            id.NewRunID(),
			Status:           refresh.StatusCompleted,
			TenantsProcessed: 3,
			ClientsUpdated:   12,
			Duration:         1500 * time.Millisecond,
		}

		rec := s.do(http.MethodPost, "/v1/compliance/runs", "")
		s.Equal(http.StatusOK, rec.Code)
		s.Nil(s.runs.lastReq.TenantID)
		s.Equal("manual", s.runs.lastReq.Source)

		var resp runResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("completed", resp.Status)
		s.Equal(3, resp.TenantsProcessed)
		s.Equal(12, resp.ClientsUpdated)
		s.EqualValues(1500, resp.DurationMS)
	})

	s.Run("tenant scoped trigger parses the id", func() {
		tenantID := id.NewTenantID()
		body := fmt.Sprintf(`{"tenant_id":%q,"source":"operator"}`, tenantID)

		rec := s.do(http.MethodPost, "/v1/compliance/runs", body)
		s.Equal(http.StatusOK, rec.Code)
		s.Require().NotNil(s.runs.lastReq.TenantID)
		s.Equal(tenantID, *s.runs.lastReq.TenantID)
		s.Equal("operator", s.runs.lastReq.Source)
	})

	s.Run("per tenant errors surface in the response", func() {
		badTenant := id.NewTenantID()
		s.runs.result = refresh.RunResult{
			Status: refresh.StatusCompletedWithErrors,
			Errors: map[id.TenantID]string{badTenant: "catalog unavailable"},
		}

		rec := s.do(http.MethodPost, "/v1/compliance/runs", "")
		s.Equal(http.StatusOK, rec.Code)

		var resp runResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("completed_with_errors", resp.Status)
		s.Equal("catalog unavailable", resp.Errors[badTenant.String()])
	})

	s.Run("malformed tenant id is a bad request", func() {
		rec := s.do(http.MethodPost, "/v1/compliance/runs", `{"tenant_id":"not-a-uuid"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("rate limited runs map to 429", func() {
		s.runs.err = fmt.Errorf("%w: refresh run rate limit exceeded", sentinel.ErrUnavailable)
		rec := s.do(http.MethodPost, "/v1/compliance/runs", "")
		s.Equal(http.StatusTooManyRequests, rec.Code)
	})
}

func (s *HandlerSuite) TestGetScore() {
	tenantID := id.NewTenantID()
	clientID := id.NewClientID()
	path := fmt.Sprintf("/v1/tenants/%s/clients/%s/score", tenantID, clientID)

	s.Run("returns the persisted score", func() {
		s.scores.score = scoring.ComplianceScore{
			ClientID:      clientID,
			TenantID:      tenantID,
			Level:         scoring.LevelAmber,
			Score:         62.5,
			MissingCount:  2,
			ExpiringCount: 1,
			Breakdown:     map[string]scoring.AuthorityScore{"SEC": {Satisfied: 1, Total: 2, Score: 50}},
		}

		rec := s.do(http.MethodGet, path, "")
		s.Equal(http.StatusOK, rec.Code)
		s.Equal(tenantID, s.scores.lastTenant)
		s.Equal(clientID, s.scores.lastClient)

		var resp scoreResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Equal("amber", resp.Level)
		s.Equal(62.5, resp.Score)
		s.Equal(2, resp.MissingCount)
		s.Contains(resp.Breakdown, "SEC")
	})

	s.Run("unknown client maps to 404", func() {
		s.scores.err = sentinel.ErrNotFound
		rec := s.do(http.MethodGet, path, "")
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("malformed ids are a bad request", func() {
		rec := s.do(http.MethodGet, "/v1/tenants/nope/clients/"+clientID.String()+"/score", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("internal failures are opaque 500s", func() {
		s.scores.err = errors.New("connection refused to 10.0.0.5")
		rec := s.do(http.MethodGet, path, "")
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "10.0.0.5")
	})
}

func (s *HandlerSuite) TestGetFulfillment() {
	tenantID := id.NewTenantID()
	clientID := id.NewClientID()
	path := fmt.Sprintf("/v1/tenants/%s/clients/%s/fulfillment", tenantID, clientID)

	s.Run("renders bundle detail", func() {
		s.scores.details = []scoring.BundleDetail{
			{
				Bundle: catalog.RequirementBundle{
					ID:        id.NewBundleID(),
					Name:      "KYB onboarding",
					Authority: "SEC",
				},
				Items: []scoring.ItemDetail{
					{Satisfied: true},
					{Satisfied: false, Invalid: true},
				},
			},
		}

		rec := s.do(http.MethodGet, path, "")
		s.Equal(http.StatusOK, rec.Code)

		var resp []bundleDetailResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
		s.Require().Len(resp, 1)
		s.Equal("KYB onboarding", resp[0].Name)
		s.Equal("SEC", resp[0].Authority)
		s.Require().Len(resp[0].Items, 2)
		s.True(resp[0].Items[0].Satisfied)
		s.True(resp[0].Items[1].Invalid)
	})

	s.Run("unknown tenant maps to 404", func() {
		s.scores.details = nil
		s.scores.err = sentinel.ErrNotFound
		rec := s.do(http.MethodGet, path, "")
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("ok", rec.Body.String())
}

func (s *HandlerSuite) TestRunProgress() {
	s.runs.progress = refresh.Progress{Running: true, TenantsProcessed: 2, TenantsTotal: 5}
	rec := s.do(http.MethodGet, "/v1/compliance/runs/progress", "")
	s.Equal(http.StatusOK, rec.Code)

	var p refresh.Progress
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &p))
	s.Equal(s.runs.progress, p)
}

func (s *HandlerSuite) TestCorrelationIDReachesServices() {
	tenantID, clientID := id.NewTenantID(), id.NewClientID()
	s.scores.score = scoring.ComplianceScore{ClientID: clientID, TenantID: tenantID, Level: scoring.LevelGreen, Score: 100}
	path := fmt.Sprintf("/v1/tenants/%s/clients/%s/score", tenantID, clientID)

	s.Run("caller-supplied id is propagated", func() {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Request-Id", "corr-1234")
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)

		s.Equal(http.StatusOK, rec.Code)
		s.Equal("corr-1234", s.scores.lastRequestID)
	})

	s.Run("generated id is propagated when none supplied", func() {
		rec := s.do(http.MethodGet, path, "")
		s.Equal(http.StatusOK, rec.Code)
		s.NotEmpty(s.scores.lastRequestID)
	})
}
