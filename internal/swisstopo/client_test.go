package swisstopo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	queue := fetch.NewQueue(fetch.WithDispatchDelays(time.Millisecond, time.Millisecond))
	return NewClient(Config{
		ProfileURL:  srv.URL + "/profile",
		HeightURL:   srv.URL + "/height",
		SearchURL:   srv.URL + "/search",
		TileURLBase: srv.URL + "/tiles",
	}, queue, nil)
}

func TestProfileParsesAndFallsBack(t *testing.T) {
	var gotQuery map[string][]string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/profile", r.URL.Path)
		gotQuery = r.URL.Query()
		w.Write([]byte(`[
			{"dist": 0,    "alts": {"COMB": 430.7, "DTM2": 430.1}},
			{"dist": 500,  "alts": {"COMB": null, "DTM2": 501.2}},
			{"dist": 750,  "alts": {}},
			{"dist": 1000, "alts": {"DTM25": 460.0}}
		]`))
	}))

	samples, err := client.Profile(context.Background(),
		model.PlanarPoint{E: 600000, N: 200000},
		model.PlanarPoint{E: 601000, N: 201000},
		120,
	)
	require.NoError(t, err)

	require.Len(t, samples, 3, "the sample without any altitude must be dropped")
	assert.Equal(t, 430.7, samples[0].TerrainElevationMeters, "COMB preferred when present")
	assert.Equal(t, 501.2, samples[1].TerrainElevationMeters, "DTM2 fallback on null COMB")
	assert.Equal(t, 460.0, samples[2].TerrainElevationMeters, "DTM25 as last resort")
	assert.Equal(t, 1000.0, samples[2].DistanceMeters)

	assert.Equal(t, []string{"21781"}, gotQuery["sr"])
	assert.Equal(t, []string{"120"}, gotQuery["nb_points"])
	require.Len(t, gotQuery["geom"], 1)
	assert.Contains(t, gotQuery["geom"][0], `"type":"LineString"`)
	assert.Contains(t, gotQuery["geom"][0], "600000.000000")
	assert.Contains(t, gotQuery["geom"][0], "201000.000000")
}

func TestProfileNoUsableSamples(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"dist": 0, "alts": {}}, {"dist": 100, "alts": {"COMB": null}}]`))
	}))

	_, err := client.Profile(context.Background(), model.PlanarPoint{}, model.PlanarPoint{E: 100}, 10)
	require.ErrorIs(t, err, core.ErrExternalService)
}

func TestProfileClampsSampleCount(t *testing.T) {
	var nbPoints string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nbPoints = r.URL.Query().Get("nb_points")
		w.Write([]byte(`[{"dist": 0, "alts": {"COMB": 1.0}}, {"dist": 10, "alts": {"COMB": 2.0}}]`))
	}))

	_, err := client.Profile(context.Background(), model.PlanarPoint{}, model.PlanarPoint{E: 10}, 0)
	require.NoError(t, err)
	assert.Equal(t, "2", nbPoints)
}

func TestHeightParsesStringEncodedValue(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/height", r.URL.Path)
		assert.Equal(t, "601234.5", r.URL.Query().Get("easting"))
		assert.Equal(t, "198765.25", r.URL.Query().Get("northing"))
		w.Write([]byte(`{"height": "430.6"}`))
	}))

	h, err := client.Height(context.Background(), model.PlanarPoint{E: 601234.5, N: 198765.25})
	require.NoError(t, err)
	assert.Equal(t, 430.6, h)
}

func TestHeightRejectsNonNumeric(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"height": "n/a"}`))
	}))

	_, err := client.Height(context.Background(), model.PlanarPoint{E: 600000, N: 200000})
	require.ErrorIs(t, err, core.ErrExternalService)
}

func TestHeightMapsHTTPFailure(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "try later", http.StatusServiceUnavailable)
	}))

	_, err := client.Height(context.Background(), model.PlanarPoint{E: 600000, N: 200000})
	require.ErrorIs(t, err, core.ErrExternalService)
	assert.Contains(t, err.Error(), "503")
}

func TestSearchStripsMarkupAndRanksByDistance(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "bern", r.URL.Query().Get("searchText"))
		assert.Equal(t, "locations", r.URL.Query().Get("type"))
		w.Write([]byte(`{"results": [
			{"attrs": {"label": "<b>Zürich</b> (ZH)", "lat": 47.3769, "lon": 8.5417}},
			{"attrs": {"label": "<b>Bern</b> <i>Hauptstadt</i>", "lat": 46.9481, "lon": 7.4474}},
			{"attrs": {"label": "<b>Genève</b>", "lat": 46.2044, "lon": 6.1432}}
		]}`))
	}))

	origin := model.GeoPoint{Lat: 46.95108, Lng: 7.438637} // near Bern
	results, err := client.Search(context.Background(), "bern", &origin, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "Bern Hauptstadt", results[0].Label)
	assert.Equal(t, "Zürich (ZH)", results[1].Label)
	assert.Equal(t, "Genève", results[2].Label)
	assert.Less(t, results[0].DistanceKm, 1.0)
	assert.InDelta(t, 96, results[1].DistanceKm, 3)

	limited, err := client.Search(context.Background(), "bern", &origin, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// Without a reference point the service order is preserved and no
	// distances are attached.
	unranked, err := client.Search(context.Background(), "bern", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, "Zürich (ZH)", unranked[0].Label)
	assert.Zero(t, unranked[0].DistanceKm)
}

func TestTileFetchAndURL(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tiles/25/94/132.jpeg", r.URL.Path)
		w.Write([]byte{0xFF, 0xD8, 0xFF}) // JPEG magic
	}))

	body, err := client.Tile(context.Background(), 25, 94, 132)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, body)

	url := NewClient(Config{}, nil, nil).TileURL(25, 94, 132)
	assert.Equal(t, "https://wmts.geo.admin.ch/1.0.0/ch.swisstopo.pixelkarte-farbe/default/current/21781/25/94/132.jpeg", url)
}
