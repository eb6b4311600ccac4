package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/engine"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/internal/swisstopo"
	"github.com/RX12/RF-LOS-CH/internal/terrain"
	"github.com/RX12/RF-LOS-CH/model"
)

type profileFn func(ctx context.Context, a, b model.PlanarPoint, nb int) ([]model.ElevationSample, error)

func (f profileFn) Profile(ctx context.Context, a, b model.PlanarPoint, nb int) ([]model.ElevationSample, error) {
	return f(ctx, a, b, nb)
}

type heightFn func(ctx context.Context, p model.PlanarPoint) (float64, error)

func (f heightFn) Height(ctx context.Context, p model.PlanarPoint) (float64, error) {
	return f(ctx, p)
}

func flatProfile(elev float64) profileFn {
	return func(context.Context, model.PlanarPoint, model.PlanarPoint, int) ([]model.ElevationSample, error) {
		samples := make([]model.ElevationSample, 10)
		for i := range samples {
			samples[i] = model.ElevationSample{
				DistanceMeters:         5000 * float64(i) / 9,
				TerrainElevationMeters: elev,
			}
		}
		return samples, nil
	}
}

func fixedHeight(h float64) heightFn {
	return func(context.Context, model.PlanarPoint) (float64, error) { return h, nil }
}

// newTestRouter builds the full middleware+route stack over a real
// engine and, when upstream is non-nil, a real geodata client talking
// to it through a fast queue.
func newTestRouter(t *testing.T, eng *engine.Engine, upstream http.Handler) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := fetch.NewQueue(fetch.WithDispatchDelays(time.Millisecond, time.Millisecond))
	cfg := swisstopo.Config{}
	if upstream != nil {
		srv := httptest.NewServer(upstream)
		t.Cleanup(srv.Close)
		cfg = swisstopo.Config{
			ProfileURL:  srv.URL + "/profile.json",
			HeightURL:   srv.URL + "/height",
			SearchURL:   srv.URL + "/search",
			TileURLBase: srv.URL + "/tiles",
		}
	}
	geo := swisstopo.NewClient(cfg, queue, nil)
	return NewServer(eng, geo, queue).Router()
}

func analysisBody(t *testing.T) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(model.AnalysisRequest{
		Tx:           model.LinkEndpoint{Position: model.GeoPoint{Lat: 46.818, Lng: 8.227}, HeightAboveGround: 30},
		Rx:           model.LinkEndpoint{Position: model.GeoPoint{Lat: 46.858, Lng: 8.267}, HeightAboveGround: 10},
		FrequencyGHz: 5.8,
		SampleCount:  10,
	})
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func TestAnalysisRoundTrip(t *testing.T) {
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", analysisBody(t))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res model.AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Superseded)
	require.NotNil(t, res.Profile)
	assert.False(t, res.Profile.IsObstructed)
	assert.Greater(t, res.Profile.ReportedMarginMeters, 0.0)
	require.NotNil(t, res.Heatmap)
	assert.Len(t, res.Heatmap.Points, 9)

	// The committed results are now served on their own routes.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profile", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var profile model.PathProfile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.InDelta(t, res.Profile.ReportedMarginMeters, profile.ReportedMarginMeters, 1e-9)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/heatmap", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestAnalysisRejectsBadRequests(t *testing.T) {
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/analysis", bytes.NewReader([]byte("{not json")))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	body, err := json.Marshal(model.AnalysisRequest{
		Tx:           model.LinkEndpoint{Position: model.GeoPoint{Lat: 46.8, Lng: 8.2}},
		Rx:           model.LinkEndpoint{Position: model.GeoPoint{Lat: 46.9, Lng: 8.3}},
		FrequencyGHz: 0,
	})
	require.NoError(t, err)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/analysis", bytes.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid input")
}

func TestAnalysisMapsUpstreamFailure(t *testing.T) {
	failing := profileFn(func(context.Context, model.PlanarPoint, model.PlanarPoint, int) ([]model.ElevationSample, error) {
		return nil, fmt.Errorf("%w: profile request returned HTTP 503", core.ErrExternalService)
	})
	eng := engine.New(failing, fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/analysis", analysisBody(t)))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	// The failure lands in the bounded error log.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/errors", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Errors []engine.ErrorEntry `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "profile", resp.Errors[0].Category)
}

func TestLatestResultsNotFoundBeforeFirstRun(t *testing.T) {
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	for _, path := range []string{"/api/v1/profile", "/api/v1/heatmap"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestInvalidateEndpoint(t *testing.T) {
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/invalidate", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"invalidated": true}`, w.Body.String())
}

func TestSearchEndpoint(t *testing.T) {
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "bern", r.URL.Query().Get("searchText"))
		w.Write([]byte(`{"results": [
			{"attrs": {"label": "<b>Zürich</b>", "lat": 47.3769, "lon": 8.5417}},
			{"attrs": {"label": "<b>Bern</b>", "lat": 46.9481, "lon": 7.4474}}
		]}`))
	})
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, upstream)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=bern&lat=46.95&lng=7.44", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Results []model.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "Bern", resp.Results[0].Label)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?q=bern&lat=north", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHeightEndpoint(t *testing.T) {
	var gotEasting string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEasting = r.URL.Query().Get("easting")
		w.Write([]byte(`{"height": "430.6"}`))
	})
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, upstream)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/height?easting=600000&northing=200000", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "430.6")
	assert.Equal(t, "600000", gotEasting)

	// WGS84 input goes through the LV03 transform before hitting the
	// height service: Bern lands within a metre of the grid origin.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/height?lat=46.95108&lng=7.438637", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var easting float64
	_, err := fmt.Sscanf(gotEasting, "%f", &easting)
	require.NoError(t, err)
	assert.InDelta(t, 600000, easting, 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/height", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/height?lat=x&lng=y", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTileEndpoint(t *testing.T) {
	tileBytes := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tiles/25/94/132.jpeg", r.URL.Path)
		w.Write(tileBytes)
	})
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, upstream)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tiles/25/94/132", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, tileBytes, w.Body.Bytes())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/tiles/a/b/c", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueStatsEndpoint(t *testing.T) {
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/queue", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats fetch.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.GreaterOrEqual(t, stats.Depth, 0)
	assert.False(t, stats.Draining)
}

func TestTerrainStatsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := terrain.NewService(fixedHeight(430.5), terrain.NewCache(1, time.Minute), nil, nil)
	_, err := svc.Height(context.Background(), model.PlanarPoint{E: 600000, N: 200000})
	require.NoError(t, err)
	_, err = svc.Height(context.Background(), model.PlanarPoint{E: 600000, N: 200000})
	require.NoError(t, err)

	eng := engine.New(flatProfile(600), svc)
	queue := fetch.NewQueue(fetch.WithDispatchDelays(time.Millisecond, time.Millisecond))
	geo := swisstopo.NewClient(swisstopo.Config{}, queue, nil)
	router := NewServer(eng, geo, queue, WithTerrain(svc)).Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/terrain", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Cache    terrain.CacheStats `json:"cache"`
		HitRatio float64            `json:"hit_ratio"`
		Stored   int                `json:"stored"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Cache.Hits)
	assert.Equal(t, int64(1), resp.Cache.Misses)
	assert.Equal(t, 1, resp.Cache.Entries)
	assert.InDelta(t, 0.5, resp.HitRatio, 1e-9)
	assert.Zero(t, resp.Stored)

	// Without the terrain option the route does not exist.
	bare := NewServer(eng, geo, queue).Router()
	w = httptest.NewRecorder()
	bare.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/terrain", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	eng := engine.New(flatProfile(600), fixedHeight(600))
	router := newTestRouter(t, eng, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-1234")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1234", w.Header().Get("X-Request-Id"))
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: bad frequency", core.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("%w: HTTP 503", core.ErrExternalService), http.StatusBadGateway},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, toHTTPStatus(tc.err), "%v", tc.err)
	}
}
