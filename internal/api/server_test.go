package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cropsense/internal/agro"
	"github.com/sells-group/cropsense/internal/assess"
	"github.com/sells-group/cropsense/internal/geo"
	"github.com/sells-group/cropsense/internal/observability"
	"github.com/sells-group/cropsense/internal/raster"
	"github.com/sells-group/cropsense/internal/sample"
	"github.com/sells-group/cropsense/internal/store"
)

func testLayer(t *testing.T, name string, data []float64) sample.Layer {
	t.Helper()
	nodata := -9999.0
	g, err := raster.NewGrid(2, 2, data, raster.NorthUp(10, 22, 1, 1), "EPSG:4326", &nodata)
	require.NoError(t, err)
	return sample.Layer{Name: name, Path: name + ".asc", Grid: g}
}

// newTestEngine covers lon 10..12, lat 20..22. Top-left cell (21.5, 10.5)
// is Sandy with NDVI 0.15, top-right (21.5, 11.5) Loamy with NDVI 0.8, and
// bottom-left (20.5, 10.5) has no data in any layer.
func newTestEngine(t *testing.T, metrics *observability.Metrics) *assess.Engine {
	t.Helper()
	e, err := assess.New(assess.Layers{
		NDVI:      testLayer(t, "NDVI", []float64{1500, 8000, -9999, 3500}),
		NDVIScale: agro.ScaleMODIS,
		SoilType: []sample.Layer{
			testLayer(t, "Sandy", []float64{0.7, 0.1, -9999, 0.1}),
			testLayer(t, "Loamy", []float64{0.2, 0.9, -9999, 0.2}),
			testLayer(t, "Clayey", []float64{0.1, 0, -9999, 0.7}),
		},
		SoilDepth: []sample.Layer{
			testLayer(t, "0-25 cm", []float64{0.6, 0.2, -9999, 0.5}),
			testLayer(t, "25-50 cm", []float64{0.4, 0.8, -9999, 0.4}),
		},
	}, assess.Options{Metrics: metrics})
	require.NoError(t, err)
	return e
}

func newTestRecorder(t *testing.T) *store.Recorder {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return store.NewRecorder(st, nil)
}

func newTestServer(t *testing.T, recorder *store.Recorder) *Server {
	t.Helper()
	return NewServer(Config{Concurrency: 2}, newTestEngine(t, nil), recorder)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(6), body["layers"])
	assert.Equal(t, false, body["history"])
}

func TestSample(t *testing.T) {
	srv := newTestServer(t, nil)

	tests := []struct {
		name      string
		query     string
		wantStage string
		wantYield string
		wantSoil  string
		wantNDVI  *float64
	}{
		{"sandy early", "lat=21.5&lon=10.5", agro.StageEarly, agro.YieldVeryLow, agro.SoilSandy, ptr(0.15)},
		{"loamy healthy", "lat=21.5&lon=11.5", agro.StageHealthy, agro.YieldHigh, agro.SoilLoamy, ptr(0.8)},
		{"all nodata", "lat=20.5&lon=10.5", agro.Unknown, agro.Unknown, agro.Unknown, nil},
		{"outside rasters", "lat=-33.9&lon=18.4", agro.Unknown, agro.Unknown, agro.Unknown, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodGet, "/api/sample?"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			out := decode[assess.Outcome](t, rec)
			assert.Equal(t, tt.wantStage, out.GrowthStage)
			assert.Equal(t, tt.wantYield, out.YieldPotential)
			assert.Equal(t, tt.wantSoil, out.SoilType)
			if tt.wantNDVI == nil {
				assert.Nil(t, out.NDVI)
			} else {
				require.NotNil(t, out.NDVI)
				assert.InDelta(t, *tt.wantNDVI, *out.NDVI, 1e-9)
			}
			assert.NotEmpty(t, out.ID)
		})
	}
}

func TestSample_BadInput(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, q := range []string{"", "lat=abc&lon=1", "lat=1", "lat=91&lon=0", "lat=0&lon=181"} {
		rec := do(t, srv, http.MethodGet, "/api/sample?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.NotEmpty(t, decode[errorResponse](t, rec).Error, q)
	}
}

func TestSampleGeoJSON(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/sample.geojson?lat=21.5&lon=11.5", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

	var f struct {
		Type     string `json:"type"`
		Geometry struct {
			Type        string    `json:"type"`
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties map[string]any `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &f))
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "Point", f.Geometry.Type)
	assert.Equal(t, []float64{11.5, 21.5}, f.Geometry.Coordinates)
	assert.Equal(t, agro.StageHealthy, f.Properties["growth_stage"])
	assert.Equal(t, agro.YieldHigh, f.Properties["yield_potential"])
}

func TestSampleBatch(t *testing.T) {
	srv := newTestServer(t, nil)
	body := `{"points":[{"lat":21.5,"lon":10.5},{"lat":95,"lon":0},{"lat":20.5,"lon":11.5}]}`
	rec := do(t, srv, http.MethodPost, "/api/sample", body)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[sampleResponse](t, rec)
	require.Len(t, resp.Results, 3)

	assert.Equal(t, 0, resp.Results[0].Index)
	require.NotNil(t, resp.Results[0].Outcome)
	assert.Equal(t, agro.SoilSandy, resp.Results[0].Outcome.SoilType)

	assert.Nil(t, resp.Results[1].Outcome)
	assert.Contains(t, resp.Results[1].Error, "invalid coordinate")

	require.NotNil(t, resp.Results[2].Outcome)
	assert.Equal(t, agro.StageActive, resp.Results[2].Outcome.GrowthStage)
	assert.Equal(t, agro.YieldMediumHigh, resp.Results[2].Outcome.YieldPotential)
}

func TestSampleBatch_Rejects(t *testing.T) {
	srv := newTestServer(t, nil)

	many := make([]geo.Coordinate, MaxBatchPoints+1)
	tooMany, err := json.Marshal(sampleRequest{Points: many})
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"points":`, http.StatusBadRequest},
		{"empty", `{"points":[]}`, http.StatusBadRequest},
		{"too many", string(tooMany), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/sample", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestLayers(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := do(t, srv, http.MethodGet, "/api/layers", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Layers []assess.LayerInfo `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Layers, 6)
	assert.Equal(t, "NDVI", body.Layers[0].Name)
	assert.Equal(t, 2, body.Layers[0].Cols)
}

func TestHistory_Disabled(t *testing.T) {
	srv := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/history", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/history/abc", "").Code)
}

func TestHistory_RecordsSamples(t *testing.T) {
	srv := newTestServer(t, newTestRecorder(t))

	first := decode[assess.Outcome](t, do(t, srv, http.MethodGet, "/api/sample?lat=21.5&lon=10.5", ""))
	do(t, srv, http.MethodPost, "/api/sample", `{"points":[{"lat":21.5,"lon":11.5},{"lat":20.5,"lon":10.5}]}`)

	rec := do(t, srv, http.MethodGet, "/api/history?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[historyResponse](t, rec).Outcomes, 3)

	rec = do(t, srv, http.MethodGet, "/api/history?limit=1", "")
	assert.Len(t, decode[historyResponse](t, rec).Outcomes, 1)

	rec = do(t, srv, http.MethodGet, "/api/history/"+first.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[assess.Outcome](t, rec)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, agro.SoilSandy, got.SoilType)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/history/nope", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/history?limit=x", "").Code)
}

type failingStore struct{ store.Store }

func (failingStore) SaveOutcome(context.Context, *assess.Outcome) error {
	return errors.New("disk full")
}

func TestSample_HistoryFailureDoesNotFailRequest(t *testing.T) {
	srv := newTestServer(t, store.NewRecorder(failingStore{}, nil))
	rec := do(t, srv, http.MethodGet, "/api/sample?lat=21.5&lon=10.5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	clock := clockwork.NewFakeClock()
	srv := NewServer(Config{RateLimit: 1, Burst: 2, Clock: clock}, newTestEngine(t, nil), nil)

	get := func() int {
		req := httptest.NewRequest(http.MethodGet, "/api/layers", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusOK, get())
	assert.Equal(t, http.StatusTooManyRequests, get())

	clock.Advance(time.Second)
	assert.Equal(t, http.StatusOK, get())

	// Other clients have their own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/layers", nil)
	req.RemoteAddr = "192.0.2.11:5555"
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health is never limited.
	for range 5 {
		assert.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/health", "").Code)
	}
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := newClientLimiter(1, 1, clock)
	assert.True(t, l.allow("a"))
	assert.True(t, l.allow("b"))

	clock.Advance(idleTTL + time.Second)
	assert.True(t, l.allow("c"))
	assert.Len(t, l.clients, 1)
}

func TestCORS(t *testing.T) {
	srv := NewServer(Config{AllowedOrigins: []string{"https://map.example.com"}}, newTestEngine(t, nil), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/sample", nil)
	req.Header.Set("Origin", "https://map.example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://map.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetricsForTesting()
	reg.MustRegister(metrics.Evaluations)

	srv := NewServer(Config{Gatherer: reg}, newTestEngine(t, metrics), nil)
	do(t, srv, http.MethodGet, "/api/sample?lat=21.5&lon=10.5", "")

	rec := do(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cropsense_evaluations_total{outcome="classified"} 1`)
}

func ptr(v float64) *float64 { return &v }
