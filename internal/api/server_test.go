package api

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seihrd/internal/config"
	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/persistence"
	"github.com/talgya/seihrd/internal/population"
	"github.com/talgya/seihrd/internal/report"
)

const testKey = "s3cret"

func testServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := config.Default()
	base.Population = population.Spec{
		FamilyCounts: []int{30, 20, 10},
		SeedCount:    3,
		SeedState:    disease.Infected,
	}
	base.Steps = 12
	base.Seed = 42
	base.Progression.HospitalCapacity = 1

	s := &Server{DB: db, Base: base, AdminKey: testKey}
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if auth {
		req.Header.Set("Authorization", "Bearer "+testKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type createdRun struct {
	Run     persistence.Run `json:"run"`
	Summary report.Summary  `json:"summary"`
}

func createRun(t *testing.T, h http.Handler, body string) createdRun {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/runs", body, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var out createdRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "/api/v1/runs/"+out.Run.ID, rec.Header().Get("Location"))
	return out
}

func TestCreateRun_RequiresAdmin(t *testing.T) {
	_, h := testServer(t)
	rec := do(t, h, http.MethodPost, "/api/v1/runs", `{}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	disabled := &Server{}
	rec = do(t, disabled.Handler(), http.MethodPost, "/api/v1/runs", `{}`, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAndReadRun(t *testing.T) {
	_, h := testServer(t)
	out := createRun(t, h, `{"name":"trial","preset":"harsh-isolation","steps":8}`)
	assert.Equal(t, "trial", out.Run.Name)
	assert.Equal(t, 8, out.Run.Steps)
	assert.Equal(t, int64(42), out.Run.Seed)
	assert.Equal(t, 30+40+30, out.Run.Population)
	assert.Equal(t, 8, out.Summary.Steps)

	rec := do(t, h, http.MethodGet, "/api/v1/runs/"+out.Run.ID, "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Run     persistence.Run `json:"run"`
		Summary report.Summary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, out.Run.ID, detail.Run.ID)
	assert.Equal(t, out.Summary, detail.Summary)

	var sc config.Scenario
	require.NoError(t, json.Unmarshal(detail.Run.Config, &sc))
	assert.Equal(t, 2, sc.Engine.Contact.Count)
	assert.Equal(t, 8, sc.Engine.Steps)

	rec = do(t, h, http.MethodGet, "/api/v1/runs", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []persistence.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, out.Run.ID, runs[0].ID)

	rec = do(t, h, http.MethodGet, "/api/v1/status", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), out.Run.ID)
}

func TestCreateRun_SameSeedSameResult(t *testing.T) {
	_, h := testServer(t)
	a := createRun(t, h, `{"seed":7}`)
	b := createRun(t, h, `{"seed":7}`)
	assert.NotEqual(t, a.Run.ID, b.Run.ID)
	assert.Equal(t, a.Run.Final, b.Run.Final)
	assert.Equal(t, a.Summary, b.Summary)
}

func TestCreateRun_BadRequests(t *testing.T) {
	_, h := testServer(t)
	for name, body := range map[string]string{
		"json":        `{"name":`,
		"preset":      `{"preset":"lockdown"}`,
		"probability": `{"transmission_probability":1.5}`,
		"contacts":    `{"contact_count":1000}`,
		"too long":    `{"steps":50000}`,
		"zero steps":  `{"steps":0}`,
	} {
		rec := do(t, h, http.MethodPost, "/api/v1/runs", body, true)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
	}
}

func TestSeries(t *testing.T) {
	_, h := testServer(t)
	out := createRun(t, h, `{}`)

	rec := do(t, h, http.MethodGet, "/api/v1/runs/"+out.Run.ID+"/series", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var series []disease.Counts
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	require.Len(t, series, 13)
	assert.Equal(t, 0, series[0].Step)
	assert.Equal(t, out.Run.Final, series[12])

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+out.Run.ID+"/series?from=2&to=4&format=csv", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	rows, err := csv.NewReader(bytes.NewReader(rec.Body.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, report.CSVHeader, rows[0])
	assert.Equal(t, "2", rows[1][0])
}

func TestOutcomes(t *testing.T) {
	_, h := testServer(t)
	out := createRun(t, h, `{}`)

	rec := do(t, h, http.MethodGet, "/api/v1/runs/"+out.Run.ID+"/outcomes?state=S&limit=500", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var outcomes []population.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcomes))
	assert.Len(t, outcomes, out.Run.Final.Susceptible)
	for _, o := range outcomes {
		assert.Equal(t, disease.Susceptible, o.FinalState)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+out.Run.ID+"/outcomes?state=zombie", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotFoundAndDelete(t *testing.T) {
	_, h := testServer(t)
	for _, path := range []string{"/api/v1/runs/nope", "/api/v1/runs/nope/series", "/api/v1/runs/nope/outcomes"} {
		rec := do(t, h, http.MethodGet, path, "", false)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	out := createRun(t, h, `{}`)
	rec := do(t, h, http.MethodDelete, "/api/v1/runs/"+out.Run.ID, "", false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/runs/"+out.Run.ID, "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/runs/"+out.Run.ID, "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoDatabase(t *testing.T) {
	s := &Server{}
	rec := do(t, s.Handler(), http.MethodGet, "/api/v1/runs", "", false)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, s.Handler(), http.MethodGet, "/api/v1/status", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPresets(t *testing.T) {
	_, h := testServer(t)
	rec := do(t, h, http.MethodGet, "/api/v1/presets", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var presets []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &presets))
	assert.Len(t, presets, len(config.Presets()))
}

func TestCORS(t *testing.T) {
	_, h := testServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/runs", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
	assert.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.Equal(t, 0, rl.RetryAfter("unknown"))
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour)
	h := RateLimitMiddleware(rl, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	send := func(xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h(rec, req)
		return rec
	}
	assert.Equal(t, http.StatusOK, send("").Code)
	limited := send("")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.NotEmpty(t, limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, send("192.0.2.7, 10.0.0.1").Code)
}
