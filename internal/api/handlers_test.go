package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpilot/internal/db"
	"postpilot/internal/types"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// mockPlannerService implements PlannerService for testing.
type mockPlannerService struct {
	planFn      func(ctx context.Context, date time.Time) (*types.PlanSummary, error)
	immediateFn func(ctx context.Context, accountID string, platform types.Platform) (*types.Job, error)

	capturedDate time.Time
}

func (m *mockPlannerService) PlanForDate(ctx context.Context, date time.Time) (*types.PlanSummary, error) {
	m.capturedDate = date
	if m.planFn != nil {
		return m.planFn(ctx, date)
	}
	return &types.PlanSummary{Date: date.Format("2006-01-02")}, nil
}

func (m *mockPlannerService) ScheduleImmediate(ctx context.Context, accountID string, platform types.Platform) (*types.Job, error) {
	if m.immediateFn != nil {
		return m.immediateFn(ctx, accountID, platform)
	}
	return &types.Job{ID: "job_1", AccountID: accountID, Status: types.JobPending}, nil
}

// mockDispatcherService implements DispatcherService for testing.
type mockDispatcherService struct {
	dispatchFn func(ctx context.Context, now time.Time) (*types.DispatchSummary, error)
}

func (m *mockDispatcherService) DispatchDueAsOf(ctx context.Context, now time.Time) (*types.DispatchSummary, error) {
	if m.dispatchFn != nil {
		return m.dispatchFn(ctx, now)
	}
	return &types.DispatchSummary{}, nil
}

// mockJobReader implements JobReader for testing.
type mockJobReader struct {
	getFn  func(ctx context.Context, id string) (*types.Job, error)
	listFn func(ctx context.Context, filter db.JobListFilter) ([]*types.Job, error)

	capturedFilter db.JobListFilter
}

func (m *mockJobReader) GetByID(ctx context.Context, id string) (*types.Job, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return &types.Job{ID: id, Status: types.JobPending}, nil
}

func (m *mockJobReader) List(ctx context.Context, filter db.JobListFilter) ([]*types.Job, error) {
	m.capturedFilter = filter
	if m.listFn != nil {
		return m.listFn(ctx, filter)
	}
	return []*types.Job{}, nil
}

type testDeps struct {
	planner    *mockPlannerService
	dispatcher *mockDispatcherService
	jobs       *mockJobReader
	handler    http.Handler
}

func newTestServer(t *testing.T) *testDeps {
	t.Helper()
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	deps := &testDeps{
		planner:    &mockPlannerService{},
		dispatcher: &mockDispatcherService{},
		jobs:       &mockJobReader{},
	}
	h := NewHandler(HandlerConfig{
		Planner:     deps.planner,
		Dispatcher:  deps.dispatcher,
		Jobs:        deps.jobs,
		PlanningLoc: la,
		Now:         func() time.Time { return time.Date(2025, 6, 15, 20, 0, 0, 0, time.UTC) },
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		Version:     "test",
	})
	deps.handler = Routes(h)
	return deps
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Tests
// =============================================================================

func TestHealth(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Data["status"])
	assert.Equal(t, "test", resp.Data["version"])
}

func TestRequestIDEchoed(t *testing.T) {
	deps := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rec := httptest.NewRecorder()
	deps.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-abc", rec.Header().Get("X-Request-ID"))
}

func TestRequestIDGenerated(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRunPlanner_DefaultToday(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/planner/run", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	// 2025-06-15 20:00Z is 13:00 Pacific, still June 15 locally.
	assert.Equal(t, "2025-06-15", deps.planner.capturedDate.Format("2006-01-02"))
}

func TestRunPlanner_ExplicitDate(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/planner/run", map[string]string{"date": "2025-07-01"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-07-01", deps.planner.capturedDate.Format("2006-01-02"))
	// The date must be interpreted in the planning timezone.
	assert.Equal(t, "America/Los_Angeles", deps.planner.capturedDate.Location().String())
}

func TestRunPlanner_MalformedDate(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/planner/run", map[string]string{"date": "July 1st"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeValidationInvalidDate), resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestRunPlanner_InfrastructureFailure(t *testing.T) {
	deps := newTestServer(t)
	deps.planner.planFn = func(context.Context, time.Time) (*types.PlanSummary, error) {
		return nil, types.NewAppError(types.ErrCodeUpstreamBroker, "broker unreachable", nil)
	}

	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/planner/run", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestRunPlanner_PartialFailureIsStillOK(t *testing.T) {
	deps := newTestServer(t)
	deps.planner.planFn = func(_ context.Context, date time.Time) (*types.PlanSummary, error) {
		return &types.PlanSummary{
			Date:      date.Format("2006-01-02"),
			TotalJobs: 2,
			Failures:  []types.PlanFailure{{AccountID: "bad", Error: "unknown timezone"}},
		}, nil
	}

	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/planner/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data types.PlanSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Failures, 1)
}

func TestRunDispatcher(t *testing.T) {
	deps := newTestServer(t)
	deps.dispatcher.dispatchFn = func(context.Context, time.Time) (*types.DispatchSummary, error) {
		return &types.DispatchSummary{Dispatched: 3, Skipped: 1}, nil
	}

	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/dispatcher/run", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data types.DispatchSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Data.Dispatched)
	assert.Equal(t, 1, resp.Data.Skipped)
}

func TestPublishNow(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/accounts/a1/publish-now", nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Data types.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "a1", resp.Data.AccountID)
}

func TestPublishNow_UnknownAccount(t *testing.T) {
	deps := newTestServer(t)
	deps.planner.immediateFn = func(_ context.Context, accountID string, _ types.Platform) (*types.Job, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundAccount, "account not found: "+accountID, nil)
	}

	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/accounts/missing/publish-now", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishNow_BadPlatform(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodPost, "/v1/accounts/a1/publish-now", map[string]string{"platform": "myspace"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJob(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodGet, "/v1/jobs/job_42", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data types.Job `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job_42", resp.Data.ID)
}

func TestGetJob_NotFound(t *testing.T) {
	deps := newTestServer(t)
	deps.jobs.getFn = func(_ context.Context, id string) (*types.Job, error) {
		return nil, types.NewAppError(types.ErrCodeNotFoundJob, "job not found: "+id, nil)
	}

	rec := doJSON(t, deps.handler, http.MethodGet, "/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListJobs_DateBounds(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodGet, "/v1/jobs?date=2025-06-15&account_id=a1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	// June 15 Pacific spans 07:00Z June 15 to 07:00Z June 16.
	assert.Equal(t, "a1", deps.jobs.capturedFilter.AccountID)
	assert.Equal(t, time.Date(2025, 6, 15, 7, 0, 0, 0, time.UTC), deps.jobs.capturedFilter.From)
	assert.Equal(t, time.Date(2025, 6, 16, 7, 0, 0, 0, time.UTC), deps.jobs.capturedFilter.To)
}

func TestListJobs_StatusFilter(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodGet, "/v1/jobs?status=PENDING", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, deps.jobs.capturedFilter.Status)
	assert.Equal(t, types.JobPending, *deps.jobs.capturedFilter.Status)
}

func TestListJobs_UnknownStatus(t *testing.T) {
	deps := newTestServer(t)
	rec := doJSON(t, deps.handler, http.MethodGet, "/v1/jobs?status=QUEUED", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorResponse_GenericErrorHidden(t *testing.T) {
	deps := newTestServer(t)
	deps.jobs.getFn = func(context.Context, string) (*types.Job, error) {
		return nil, assert.AnError
	}

	rec := doJSON(t, deps.handler, http.MethodGet, "/v1/jobs/job_1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, assert.AnError.Error())
}
