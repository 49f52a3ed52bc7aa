package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stone-age-io/sysmetrics/internal/sampler"
	"github.com/stone-age-io/sysmetrics/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeCollector struct {
	snap  sampler.Snapshot
	err   error
	panic bool
}

func (f *fakeCollector) Collect(context.Context) (sampler.Snapshot, error) {
	if f.panic {
		panic("sampler exploded")
	}
	return f.snap, f.err
}

type fakeRepo struct {
	saved   []sampler.Snapshot
	saveErr error
	latest  store.LatestMetrics
	readErr error
}

func (f *fakeRepo) Save(_ context.Context, snap sampler.Snapshot) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeRepo) Latest(context.Context) (store.LatestMetrics, error) {
	return f.latest, f.readErr
}

func testSnapshot() sampler.Snapshot {
	return sampler.Snapshot{
		Timestamp: time.Date(2025, 5, 6, 7, 8, 9, 0, time.Local),
		CPU:       &sampler.CPUStats{TotalCores: 2, UsagePercent: 10},
	}
}

func newTestServer(c Collector, r Repository, cfg Config) *Server {
	gin.SetMode(gin.TestMode)
	return New(cfg, c, r, zap.NewNop())
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHandleLatest(t *testing.T) {
	tests := []struct {
		name       string
		repo       *fakeRepo
		wantStatus int
		wantKey    string
	}{
		{
			name:       "empty store",
			repo:       &fakeRepo{},
			wantStatus: http.StatusOK,
			wantKey:    "message",
		},
		{
			name: "rows present",
			repo: &fakeRepo{latest: store.LatestMetrics{
				CPU: &store.CPURecord{Timestamp: "2025-05-06 07:08:09", CPUStats: sampler.CPUStats{TotalCores: 4}},
			}},
			wantStatus: http.StatusOK,
			wantKey:    "cpu",
		},
		{
			name:       "store error is generic",
			repo:       &fakeRepo{readErr: errors.New("dial tcp 10.0.0.5:3306: connection refused")},
			wantStatus: http.StatusInternalServerError,
			wantKey:    "error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(&fakeCollector{}, tt.repo, Config{})
			w := do(t, s, http.MethodGet, "/metrics")

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			assert.Contains(t, body, tt.wantKey)
			assert.NotContains(t, w.Body.String(), "10.0.0.5")
		})
	}
}

func TestHandleLatest_EmptyMessage(t *testing.T) {
	s := newTestServer(&fakeCollector{}, &fakeRepo{}, Config{})
	w := do(t, s, http.MethodGet, "/metrics")
	assert.JSONEq(t, `{"message":"No resources found"}`, w.Body.String())
}

func TestHandleStore(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestServer(&fakeCollector{snap: testSnapshot()}, repo, Config{})

	w := do(t, s, http.MethodPost, "/store")
	require.Equal(t, http.StatusCreated, w.Code)

	body := decode(t, w)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "2025-05-06 07:08:09", body["timestamp"])
	require.Len(t, repo.saved, 1)
}

func TestHandleStore_Failures(t *testing.T) {
	tests := []struct {
		name       string
		collector  *fakeCollector
		repo       *fakeRepo
		wantStatus int
	}{
		{
			name:       "nothing collected",
			collector:  &fakeCollector{err: sampler.ErrNoData},
			repo:       &fakeRepo{},
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "save fails",
			collector:  &fakeCollector{snap: testSnapshot()},
			repo:       &fakeRepo{saveErr: errors.New("Table 'x' is read only")},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(tt.collector, tt.repo, Config{})
			w := do(t, s, http.MethodPost, "/store")

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decode(t, w)
			assert.Equal(t, "error", body["status"])
			assert.Equal(t, noDataMessage, body["error"])
			assert.NotEmpty(t, body["timestamp"])
		})
	}
}

func TestHandleStore_RateLimited(t *testing.T) {
	s := newTestServer(&fakeCollector{snap: testSnapshot()}, &fakeRepo{}, Config{
		StoreRateLimit: rate.Every(time.Hour),
		StoreRateBurst: 1,
	})

	first := do(t, s, http.MethodPost, "/store")
	assert.Equal(t, http.StatusCreated, first.Code)

	second := do(t, s, http.MethodPost, "/store")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))

	// Reads are not limited
	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/health").Code)
}

func TestHandleSnapshot(t *testing.T) {
	repo := &fakeRepo{}
	s := newTestServer(&fakeCollector{snap: testSnapshot()}, repo, Config{})

	w := do(t, s, http.MethodGet, "/snapshot")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, "2025-05-06 07:08:09", body["timestamp"])
	assert.Contains(t, body, "memory")
	assert.Nil(t, body["memory"])
	assert.Empty(t, repo.saved)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(&fakeCollector{}, &fakeRepo{}, Config{})

	t.Run("generated", func(t *testing.T) {
		w := do(t, s, http.MethodGet, "/health")
		_, err := uuid.Parse(w.Header().Get(headerRequestID))
		assert.NoError(t, err)
	})

	t.Run("propagated", func(t *testing.T) {
		id := uuid.New().String()
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(headerRequestID, id)
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, id, w.Header().Get(headerRequestID))
	})

	t.Run("invalid replaced", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(headerRequestID, "not-a-uuid")
		s.Handler().ServeHTTP(w, req)
		assert.NotEqual(t, "not-a-uuid", w.Header().Get(headerRequestID))
	})
}

func TestRecovery(t *testing.T) {
	s := newTestServer(&fakeCollector{panic: true}, &fakeRepo{}, Config{})

	w := do(t, s, http.MethodGet, "/snapshot")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", decode(t, w)["status"])
}

func TestDebugMetrics(t *testing.T) {
	s := newTestServer(&fakeCollector{}, &fakeRepo{}, Config{})

	w := do(t, s, http.MethodGet, "/debug/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}
