package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/orchestrator"
	"github.com/JakeFAU/newsarchive-crawler/internal/store"
)

type fakeRuns struct {
	mu      sync.Mutex
	status  orchestrator.Status
	stops   int
	stopErr error
}

func (f *fakeRuns) Snapshot() orchestrator.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeRuns) RequestStop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return f.stopErr
}

type fakeLedger struct {
	runs    map[uuid.UUID]store.Run
	listErr error
}

func (f *fakeLedger) StartRun(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (f *fakeLedger) CompleteRun(context.Context, uuid.UUID, store.Completion) error { return nil }

func (f *fakeLedger) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	run, ok := f.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

func (f *fakeLedger) ListRuns(_ context.Context, limit, _ int) ([]store.Run, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]store.Run, 0, len(f.runs))
	for _, run := range f.runs {
		if len(out) == limit {
			break
		}
		out = append(out, run)
	}
	return out, nil
}

func serve(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRuns{}, nil, zap.NewNop()), http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ReadyzWithoutRun(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, zap.NewNop()), http.MethodGet, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	srv := NewServer(&fakeRuns{}, nil, zap.NewNop())
	_ = serve(t, srv, http.MethodGet, "/healthz")
	rec := serve(t, srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestServer_GetRunSnapshot(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{status: orchestrator.Status{
		RunID:        "0190b8d2-7a4e-7c3a-9f3e-1c2d3e4f5a6b",
		State:        orchestrator.StateRunning,
		Query:        "Frauenstimmrecht",
		Period:       "1970-1979",
		PeriodIndex:  1,
		TotalPeriods: 2,
		Article:      4,
		ArticleLimit: 20,
		Saved:        3,
	}}
	rec := serve(t, NewServer(runs, nil, zap.NewNop()), http.MethodGet, "/v1/run")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Run orchestrator.Status `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, orchestrator.StateRunning, body.Run.State)
	require.Equal(t, "1970-1979", body.Run.Period)
	require.Equal(t, 4, body.Run.Article)
	require.Equal(t, 3, body.Run.Saved)
}

func TestServer_StopRun(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{status: orchestrator.Status{RunID: "run-1", State: orchestrator.StateRunning}}
	rec := serve(t, NewServer(runs, nil, zap.NewNop()), http.MethodPost, "/v1/run/stop")
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "run-1")
	require.Equal(t, 1, runs.stops)
}

func TestServer_StopRunFailure(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{stopErr: errors.New("read-only filesystem")}
	rec := serve(t, NewServer(runs, nil, zap.NewNop()), http.MethodPost, "/v1/run/stop")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_LedgerUnavailable(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(&fakeRuns{}, nil, zap.NewNop()), http.MethodGet, "/v1/runs")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_ListRuns(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ledger := &fakeLedger{runs: map[uuid.UUID]store.Run{
		id: {ID: id, Query: "Jura", State: store.RunCompleted, ArticlesSaved: 12},
	}}
	srv := NewServer(&fakeRuns{}, ledger, zap.NewNop())

	rec := serve(t, srv, http.MethodGet, "/v1/runs?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), id.String())
	require.Contains(t, rec.Body.String(), `"articles_saved":12`)

	rec = serve(t, srv, http.MethodGet, "/v1/runs?limit=abc")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, srv, http.MethodGet, "/v1/runs?offset=-1")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListRunsError(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{listErr: errors.New("connection refused")}
	rec := serve(t, NewServer(&fakeRuns{}, ledger, zap.NewNop()), http.MethodGet, "/v1/runs")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_GetRun(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	ledger := &fakeLedger{runs: map[uuid.UUID]store.Run{
		id: {ID: id, Query: "Jura", State: store.RunStopped},
	}}
	srv := NewServer(&fakeRuns{}, ledger, zap.NewNop())

	rec := serve(t, srv, http.MethodGet, "/v1/runs/"+id.String())
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"stopped"`)

	rec = serve(t, srv, http.MethodGet, "/v1/runs/"+uuid.NewString())
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(t, srv, http.MethodGet, "/v1/runs/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseLimitOffset(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=9999&offset=5", nil)
	limit, offset, err := parseLimitOffset(req, defaultRunLimit, maxRunLimit)
	require.NoError(t, err)
	require.Equal(t, maxRunLimit, limit)
	require.Equal(t, 5, offset)
}

func TestServer_ListenAndServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewServer(&fakeRuns{}, nil, zap.NewNop()).ListenAndServe(ctx, "127.0.0.1:0")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
