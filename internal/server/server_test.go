package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/fleetmon/internal/metrics"
	"github.com/dwsmith1983/fleetmon/internal/scheduler"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type call struct {
	method, endpoint string
	status           int
	userID           string
}

type recorder struct {
	mu    sync.Mutex
	calls []call
}

func (r *recorder) RecordAPIRequest(method, endpoint string, status int, _ time.Duration, userID string) {
	r.mu.Lock()
	r.calls = append(r.calls, call{method, endpoint, status, userID})
	r.mu.Unlock()
}

func (r *recorder) all() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

func setupTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	srv := New(opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestMetricsEndpoint(t *testing.T) {
	promReg := prometheus.NewRegistry()
	reg := metrics.New(promReg)
	require.NoError(t, reg.RecordCounter(metrics.APIRequestsTotal, map[string]string{
		"method": "GET", "endpoint": "/vehicles", "status_code": "200",
	}))
	require.NoError(t, reg.SetGauge(metrics.DBConnectionsActive, nil, 12))

	ts := setupTestServer(t, Options{Gatherer: promReg})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `fleet_api_requests_total{endpoint="/vehicles",method="GET",status_code="200"} 1`)
	assert.Contains(t, text, "fleet_db_connections_active 12")
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestHealthEndpoint(t *testing.T) {
	ts := setupTestServer(t, Options{
		Gatherer: prometheus.NewRegistry(),
		Stores:   map[string]Pinger{"redis": pinger{}},
		Tasks: func() map[string]scheduler.TaskStatus {
			return map[string]scheduler.TaskStatus{"metric_flush": {Runs: 3}}
		},
		Buffered: func() int { return 7 },
	})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "ok", body.Stores["redis"])
	assert.Equal(t, int64(3), body.Tasks["metric_flush"].Runs)
	require.NotNil(t, body.Buffered)
	assert.Equal(t, 7, *body.Buffered)
}

func TestHealthEndpoint_Degraded(t *testing.T) {
	ts := setupTestServer(t, Options{
		Gatherer: prometheus.NewRegistry(),
		Stores: map[string]Pinger{
			"redis":    pinger{err: errors.New("dial tcp: connection refused")},
			"postgres": pinger{},
		},
	})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unreachable", body.Stores["redis"])
	assert.Equal(t, "ok", body.Stores["postgres"])
}

func TestServer_RecordsOwnRequests(t *testing.T) {
	rec := &recorder{}
	ts := setupTestServer(t, Options{Gatherer: prometheus.NewRegistry(), Recorder: rec})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()

	calls := rec.all()
	require.Len(t, calls, 1)
	assert.Equal(t, call{"GET", "/health", http.StatusOK, ""}, calls[0])
}

func TestRecordRequests_RoutePatternAndStatus(t *testing.T) {
	rec := &recorder{}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(WithUserID(req.Context(), "u-42")))
		})
	})
	r.Use(RecordRequests(rec))
	r.Get("/vehicles/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Post("/repairs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	for _, path := range []string{"/vehicles/1", "/vehicles/2"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	resp, err := http.Post(ts.URL+"/repairs", "text/plain", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	resp, err = http.Get(ts.URL + "/nowhere")
	require.NoError(t, err)
	_ = resp.Body.Close()

	calls := rec.all()
	require.Len(t, calls, 4)
	assert.Equal(t, call{"GET", "/vehicles/{id}", 404, "u-42"}, calls[0])
	assert.Equal(t, call{"GET", "/vehicles/{id}", 404, "u-42"}, calls[1])
	assert.Equal(t, call{"POST", "/repairs", 200, "u-42"}, calls[2])
	assert.Equal(t, "unmatched", calls[3].endpoint)
	assert.Equal(t, http.StatusNotFound, calls[3].status)
}

func TestRecordRequests_PanickingHandler(t *testing.T) {
	tests := []struct {
		name          string
		recorderFirst bool
	}{
		{"recorder outside recoverer", true},
		{"recoverer outside recorder", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			r := chi.NewRouter()
			if tt.recorderFirst {
				r.Use(RecordRequests(rec), middleware.Recoverer)
			} else {
				r.Use(middleware.Recoverer, RecordRequests(rec))
			}
			r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
			ts := httptest.NewServer(r)
			t.Cleanup(ts.Close)

			resp, err := http.Get(ts.URL + "/boom")
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

			calls := rec.all()
			require.Len(t, calls, 1)
			assert.Equal(t, call{"GET", "/boom", http.StatusInternalServerError, ""}, calls[0])
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "abc123", seen)
	assert.Equal(t, "abc123", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 16)
}

func TestStopWithoutStart(t *testing.T) {
	assert.NoError(t, New(Options{}).Stop(context.Background()))
}
