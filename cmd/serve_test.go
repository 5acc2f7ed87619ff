package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/store"
)

func newServeStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	now := time.Now().UTC().Truncate(time.Second)
	mk := func(seq int64, stage model.SelectionStage, reason model.ExclusionReason, score float64) string {
		p := &model.Paper{
			ID:              uuid.NewString(),
			Title:           "served paper",
			NormalizedTitle: "served paper",
			NormalizedDOI:   uuid.NewString(),
			SourceAPI:       "openalex",
			Seq:             seq,
			RetrievedAt:     now,
			SelectionStage:  model.StageScreening,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		require.NoError(t, st.CreatePaper(ctx, p))
		p.SelectionStage = stage
		p.ExclusionReason = reason
		p.RelevanceScore = score
		require.NoError(t, st.UpdateDerived(ctx, p))
		return p.ID
	}

	mk(1, model.StageIncluded, "", 8)
	mk(2, model.StageExcluded, model.ExcludedOffTopic, 2)
	mk(3, model.StageIncluded, "", 5)
	return st
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServe_Health(t *testing.T) {
	r := newRouter(newServeStore(t), 0)

	rec := get(t, r, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServe_Stats(t *testing.T) {
	r := newRouter(newServeStore(t), 0)

	rec := get(t, r, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats struct {
		TotalRecords int `json:"total_records"`
		Included     int `json:"included"`
		Excluded     int `json:"excluded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalRecords)
	assert.Equal(t, 2, stats.Included)
	assert.Equal(t, 1, stats.Excluded)
}

func TestServe_ListPapers(t *testing.T) {
	r := newRouter(newServeStore(t), 0)

	rec := get(t, r, "/api/papers?stage=included&min_score=6")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count  int           `json:"count"`
		Papers []model.Paper `json:"papers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.InDelta(t, 8.0, resp.Papers[0].RelevanceScore, 1e-9)
}

func TestServe_ListPapers_EmptyResult(t *testing.T) {
	r := newRouter(newServeStore(t), 0)

	rec := get(t, r, "/api/papers?stage=eligibility")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"papers":[]`)
}

func TestServe_ListPapers_BadQuery(t *testing.T) {
	r := newRouter(newServeStore(t), 0)

	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/papers?canonical=maybe").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/papers?min_score=high").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, r, "/api/papers?limit=-1").Code)
}

func TestServe_GetPaper_NotFound(t *testing.T) {
	r := newRouter(newServeStore(t), 0)

	rec := get(t, r, "/api/papers/no-such-id")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_RateLimit(t *testing.T) {
	r := newRouter(newServeStore(t), 2)

	codes := make(map[int]int)
	for i := 0; i < 10; i++ {
		codes[get(t, r, "/health").Code]++
	}
	assert.Positive(t, codes[http.StatusOK])
	assert.Positive(t, codes[http.StatusTooManyRequests])
}

func TestServe_RateLimitFractionalRateAdmitsFirstRequest(t *testing.T) {
	// A sub-1 req/s limit still needs a burst of one token or the
	// limiter would reject every request outright.
	r := newRouter(newServeStore(t), 0.5)

	assert.Equal(t, http.StatusOK, get(t, r, "/health").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(t, r, "/health").Code)
}
