// Package config carries the process-level knobs shared by the server
// and CLI entrypoints. Values come from LOS_* environment variables;
// ApplyDefaults normalises zero fields so partially built configs
// (tests, flag overrides layered on top) stay usable.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/engine"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/internal/swisstopo"
	"github.com/RX12/RF-LOS-CH/internal/terrain"
)

// DefaultHTTPTimeout bounds a single upstream geodata request.
const DefaultHTTPTimeout = 15 * time.Second

// Config is the resolved process configuration.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// Upstream geodata endpoints.
	ProfileURL  string
	HeightURL   string
	SearchURL   string
	TileURLBase string

	// Fetch queue pacing.
	TileDispatchDelay   time.Duration
	LookupDispatchDelay time.Duration
	RateWindowSpan      time.Duration
	HTTPTimeout         time.Duration

	// Heatmap grid geometry.
	HeatmapRadiusMeters float64
	HeatmapStepMeters   float64

	// DisableCenterFallback keeps heatmaps baseline-less when the
	// center height lookup fails instead of borrowing the first
	// fetched point.
	DisableCenterFallback bool

	ErrorLogSize int

	// TerrainDBPath enables height-cache persistence when non-empty.
	TerrainDBPath      string
	TerrainTTL         time.Duration
	TerrainMatchRadius float64
}

// Load reads the configuration from the environment, falling back to
// defaults for anything unset or unparsable.
func Load() *Config {
	cfg := &Config{
		HTTPAddr:    os.Getenv("LOS_HTTP_ADDR"),
		MetricsAddr: os.Getenv("LOS_METRICS_ADDR"),

		ProfileURL:  os.Getenv("LOS_PROFILE_URL"),
		HeightURL:   os.Getenv("LOS_HEIGHT_URL"),
		SearchURL:   os.Getenv("LOS_SEARCH_URL"),
		TileURLBase: os.Getenv("LOS_TILE_URL_BASE"),

		TileDispatchDelay:   envDuration("LOS_TILE_DELAY"),
		LookupDispatchDelay: envDuration("LOS_LOOKUP_DELAY"),
		RateWindowSpan:      envDuration("LOS_RATE_WINDOW"),
		HTTPTimeout:         envDuration("LOS_HTTP_TIMEOUT"),

		HeatmapRadiusMeters: envFloat("LOS_HEATMAP_RADIUS_M"),
		HeatmapStepMeters:   envFloat("LOS_HEATMAP_STEP_M"),

		DisableCenterFallback: envDisabled("LOS_CENTER_FALLBACK"),

		ErrorLogSize: envInt("LOS_ERROR_LOG_SIZE"),

		TerrainDBPath:      os.Getenv("LOS_TERRAIN_DB"),
		TerrainTTL:         envDuration("LOS_TERRAIN_TTL"),
		TerrainMatchRadius: envFloat("LOS_TERRAIN_MATCH_RADIUS_M"),
	}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero field with its default. Calling it on
// an already complete config is a no-op.
func (c *Config) ApplyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}

	endpoints := swisstopo.DefaultConfig()
	if c.ProfileURL == "" {
		c.ProfileURL = endpoints.ProfileURL
	}
	if c.HeightURL == "" {
		c.HeightURL = endpoints.HeightURL
	}
	if c.SearchURL == "" {
		c.SearchURL = endpoints.SearchURL
	}
	if c.TileURLBase == "" {
		c.TileURLBase = endpoints.TileURLBase
	}

	if c.TileDispatchDelay <= 0 {
		c.TileDispatchDelay = fetch.DefaultTileDispatchDelay
	}
	if c.LookupDispatchDelay <= 0 {
		c.LookupDispatchDelay = fetch.DefaultLookupDispatchDelay
	}
	if c.RateWindowSpan <= 0 {
		c.RateWindowSpan = fetch.DefaultRateWindowSpan
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}

	if c.HeatmapRadiusMeters <= 0 {
		c.HeatmapRadiusMeters = core.DefaultHeatmapRadiusMeters
	}
	if c.HeatmapStepMeters <= 0 {
		c.HeatmapStepMeters = core.DefaultHeatmapStepMeters
	}

	if c.ErrorLogSize <= 0 {
		c.ErrorLogSize = engine.DefaultErrorLogSize
	}

	if c.TerrainTTL <= 0 {
		c.TerrainTTL = terrain.DefaultTTL
	}
	if c.TerrainMatchRadius <= 0 {
		c.TerrainMatchRadius = terrain.DefaultMatchRadiusMeters
	}
}

// Swisstopo returns the upstream endpoint set in client form.
func (c *Config) Swisstopo() swisstopo.Config {
	return swisstopo.Config{
		ProfileURL:  c.ProfileURL,
		HeightURL:   c.HeightURL,
		SearchURL:   c.SearchURL,
		TileURLBase: c.TileURLBase,
	}
}

// Grid returns the configured heatmap geometry.
func (c *Config) Grid() core.HeatmapGrid {
	return core.HeatmapGrid{RadiusMeters: c.HeatmapRadiusMeters, StepMeters: c.HeatmapStepMeters}
}

func envDuration(key string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func envFloat(key string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// envDisabled reports whether an on-by-default feature flag is
// explicitly switched off.
func envDisabled(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "false", "0", "off", "no":
		return true
	default:
		return false
	}
}
