// Package swisstopo is the gateway to the Swiss federal geodata
// services: elevation profiles, point heights, location search and map
// tiles. All calls go through the fetch queue, so upstream pacing is
// enforced no matter who asks.
package swisstopo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/internal/logging"
	"github.com/RX12/RF-LOS-CH/model"
)

// The LV03 spatial reference identifier used on every API call.
const srLV03 = "21781"

// altPreference is the elevation model fallback order inside profile
// responses: the combined model where available, then the terrain
// models.
var altPreference = []string{"COMB", "DTM2", "DTM25"}

// Config points the client at the upstream services. Zero values fall
// back to the public endpoints.
type Config struct {
	ProfileURL  string
	HeightURL   string
	SearchURL   string
	TileURLBase string
}

// DefaultConfig returns the public geo.admin.ch endpoints.
func DefaultConfig() Config {
	return Config{
		ProfileURL:  "https://api3.geo.admin.ch/rest/services/profile.json",
		HeightURL:   "https://api3.geo.admin.ch/rest/services/height",
		SearchURL:   "https://api3.geo.admin.ch/rest/services/api/SearchServer",
		TileURLBase: "https://wmts.geo.admin.ch/1.0.0/ch.swisstopo.pixelkarte-farbe/default/current/21781",
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ProfileURL == "" {
		c.ProfileURL = def.ProfileURL
	}
	if c.HeightURL == "" {
		c.HeightURL = def.HeightURL
	}
	if c.SearchURL == "" {
		c.SearchURL = def.SearchURL
	}
	if c.TileURLBase == "" {
		c.TileURLBase = def.TileURLBase
	}
	return c
}

// Client issues geodata requests through the shared fetch queue.
type Client struct {
	cfg   Config
	queue *fetch.Queue
	log   logging.Logger
}

// NewClient builds a client on top of the given queue.
func NewClient(cfg Config, queue *fetch.Queue, log logging.Logger) *Client {
	if log == nil {
		log = logging.Noop()
	}
	return &Client{cfg: cfg.withDefaults(), queue: queue, log: log}
}

// Profile fetches an elevation profile along the straight LV03 segment
// from a to b, sampled at nbPoints positions. Samples without a usable
// altitude in any elevation model are dropped.
func (c *Client) Profile(ctx context.Context, a, b model.PlanarPoint, nbPoints int) ([]model.ElevationSample, error) {
	if nbPoints < 2 {
		nbPoints = 2
	}

	geom := fmt.Sprintf(`{"type":"LineString","coordinates":[[%f,%f],[%f,%f]]}`, a.E, a.N, b.E, b.N)
	vals := url.Values{}
	vals.Set("geom", geom)
	vals.Set("sr", srLV03)
	vals.Set("nb_points", strconv.Itoa(nbPoints))

	body, err := c.get(ctx, c.cfg.ProfileURL+"?"+vals.Encode(), fetch.CategoryProfile)
	if err != nil {
		return nil, err
	}

	var points []struct {
		Dist float64             `json:"dist"`
		Alts map[string]*float64 `json:"alts"`
	}
	if err := json.Unmarshal(body, &points); err != nil {
		return nil, fmt.Errorf("%w: decode profile response: %v", core.ErrExternalService, err)
	}

	samples := make([]model.ElevationSample, 0, len(points))
	for _, p := range points {
		alt, ok := pickAltitude(p.Alts)
		if !ok {
			continue
		}
		samples = append(samples, model.ElevationSample{
			DistanceMeters:         p.Dist,
			TerrainElevationMeters: alt,
		})
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: profile response carried no usable samples", core.ErrExternalService)
	}
	return samples, nil
}

// Height fetches the terrain height at one LV03 position. The service
// encodes the height as a JSON string.
func (c *Client) Height(ctx context.Context, p model.PlanarPoint) (float64, error) {
	vals := url.Values{}
	vals.Set("easting", strconv.FormatFloat(p.E, 'f', -1, 64))
	vals.Set("northing", strconv.FormatFloat(p.N, 'f', -1, 64))

	body, err := c.get(ctx, c.cfg.HeightURL+"?"+vals.Encode(), fetch.CategoryHeight)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Height string `json:"height"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("%w: decode height response: %v", core.ErrExternalService, err)
	}
	h, err := strconv.ParseFloat(strings.TrimSpace(resp.Height), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: height %q is not numeric", core.ErrExternalService, resp.Height)
	}
	return h, nil
}

// Search resolves a free-text location query. Results are stripped of
// the service's highlighting markup; a non-nil origin ranks them by
// distance from it, and limit > 0 truncates the list.
func (c *Client) Search(ctx context.Context, text string, origin *model.GeoPoint, limit int) ([]model.SearchResult, error) {
	vals := url.Values{}
	vals.Set("searchText", text)
	vals.Set("type", "locations")
	vals.Set("sr", srLV03)

	body, err := c.get(ctx, c.cfg.SearchURL+"?"+vals.Encode(), fetch.CategorySearch)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Results []struct {
			Attrs struct {
				Label string  `json:"label"`
				Lat   float64 `json:"lat"`
				Lon   float64 `json:"lon"`
			} `json:"attrs"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", core.ErrExternalService, err)
	}

	out := make([]model.SearchResult, 0, len(resp.Results))
	for _, r := range resp.Results {
		pos := model.GeoPoint{Lat: r.Attrs.Lat, Lng: r.Attrs.Lon}
		sr := model.SearchResult{Label: stripMarkup(r.Attrs.Label), Position: pos}
		if origin != nil {
			sr.DistanceKm = core.DistanceMeters(*origin, pos) / 1000
		}
		out = append(out, sr)
	}
	if origin != nil {
		sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Tile fetches one LV03 pixelkarte tile image.
func (c *Client) Tile(ctx context.Context, zoom, row, col int) ([]byte, error) {
	return c.get(ctx, c.TileURL(zoom, row, col), fetch.CategoryTile)
}

// TileURL returns the upstream URL of one tile.
func (c *Client) TileURL(zoom, row, col int) string {
	return fmt.Sprintf("%s/%d/%d/%d.jpeg", c.cfg.TileURLBase, zoom, row, col)
}

// get enqueues one GET and maps every failure mode onto
// core.ErrExternalService.
func (c *Client) get(ctx context.Context, rawURL string, cat fetch.Category) ([]byte, error) {
	res := <-c.queue.Enqueue(ctx, fetch.Request{URL: rawURL, Category: cat})
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %s request: %v", core.ErrExternalService, cat, res.Err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s request returned HTTP %d", core.ErrExternalService, cat, res.StatusCode)
	}
	return res.Body, nil
}

// pickAltitude applies the elevation model fallback order.
func pickAltitude(alts map[string]*float64) (float64, bool) {
	for _, name := range altPreference {
		if v := alts[name]; v != nil {
			return *v, true
		}
	}
	return 0, false
}

var markupReplacer = strings.NewReplacer("<b>", "", "</b>", "", "<i>", "", "</i>", "")

func stripMarkup(s string) string {
	return strings.TrimSpace(markupReplacer.Replace(s))
}
