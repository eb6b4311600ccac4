package config

import (
	"testing"
	"time"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{
		"LOS_HTTP_ADDR", "LOS_METRICS_ADDR", "LOS_PROFILE_URL",
		"LOS_TILE_DELAY", "LOS_LOOKUP_DELAY", "LOS_HEATMAP_RADIUS_M",
		"LOS_CENTER_FALLBACK", "LOS_TERRAIN_DB",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr = %q, want :9090", cfg.MetricsAddr)
	}
	if cfg.ProfileURL == "" || cfg.HeightURL == "" || cfg.SearchURL == "" || cfg.TileURLBase == "" {
		t.Error("upstream endpoints must default to the public services")
	}
	if cfg.TileDispatchDelay != fetch.DefaultTileDispatchDelay {
		t.Errorf("TileDispatchDelay = %v, want %v", cfg.TileDispatchDelay, fetch.DefaultTileDispatchDelay)
	}
	if cfg.LookupDispatchDelay != fetch.DefaultLookupDispatchDelay {
		t.Errorf("LookupDispatchDelay = %v, want %v", cfg.LookupDispatchDelay, fetch.DefaultLookupDispatchDelay)
	}
	if cfg.HeatmapRadiusMeters != core.DefaultHeatmapRadiusMeters {
		t.Errorf("HeatmapRadiusMeters = %v, want %v", cfg.HeatmapRadiusMeters, core.DefaultHeatmapRadiusMeters)
	}
	if cfg.DisableCenterFallback {
		t.Error("center fallback must default to enabled")
	}
	if cfg.TerrainDBPath != "" {
		t.Errorf("TerrainDBPath = %q, want persistence off by default", cfg.TerrainDBPath)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LOS_HTTP_ADDR", ":7070")
	t.Setenv("LOS_PROFILE_URL", "http://localhost:9999/profile.json")
	t.Setenv("LOS_LOOKUP_DELAY", "250ms")
	t.Setenv("LOS_HEATMAP_STEP_M", "15")
	t.Setenv("LOS_CENTER_FALLBACK", "false")
	t.Setenv("LOS_TERRAIN_DB", "/tmp/heights.db")
	t.Setenv("LOS_ERROR_LOG_SIZE", "10")

	cfg := Load()
	if cfg.HTTPAddr != ":7070" {
		t.Errorf("HTTPAddr = %q, want :7070", cfg.HTTPAddr)
	}
	if cfg.ProfileURL != "http://localhost:9999/profile.json" {
		t.Errorf("ProfileURL = %q", cfg.ProfileURL)
	}
	if cfg.LookupDispatchDelay != 250*time.Millisecond {
		t.Errorf("LookupDispatchDelay = %v, want 250ms", cfg.LookupDispatchDelay)
	}
	if cfg.HeatmapStepMeters != 15 {
		t.Errorf("HeatmapStepMeters = %v, want 15", cfg.HeatmapStepMeters)
	}
	if !cfg.DisableCenterFallback {
		t.Error("LOS_CENTER_FALLBACK=false should disable the fallback")
	}
	if cfg.TerrainDBPath != "/tmp/heights.db" {
		t.Errorf("TerrainDBPath = %q", cfg.TerrainDBPath)
	}
	if cfg.ErrorLogSize != 10 {
		t.Errorf("ErrorLogSize = %d, want 10", cfg.ErrorLogSize)
	}
}

func TestLoadIgnoresUnparsableValues(t *testing.T) {
	t.Setenv("LOS_LOOKUP_DELAY", "soon")
	t.Setenv("LOS_HEATMAP_RADIUS_M", "wide")
	t.Setenv("LOS_ERROR_LOG_SIZE", "many")

	cfg := Load()
	if cfg.LookupDispatchDelay != fetch.DefaultLookupDispatchDelay {
		t.Errorf("LookupDispatchDelay = %v, want default on parse failure", cfg.LookupDispatchDelay)
	}
	if cfg.HeatmapRadiusMeters != core.DefaultHeatmapRadiusMeters {
		t.Errorf("HeatmapRadiusMeters = %v, want default on parse failure", cfg.HeatmapRadiusMeters)
	}
	if cfg.ErrorLogSize <= 0 {
		t.Errorf("ErrorLogSize = %d, want positive default", cfg.ErrorLogSize)
	}
}

func TestApplyDefaultsIsIdempotent(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()
	snapshot := *cfg
	cfg.ApplyDefaults()
	if *cfg != snapshot {
		t.Error("second ApplyDefaults changed an already complete config")
	}
}

func TestGridConversion(t *testing.T) {
	cfg := &Config{HeatmapRadiusMeters: 60, HeatmapStepMeters: 20}
	cfg.ApplyDefaults()
	grid := cfg.Grid()
	if grid.RadiusMeters != 60 || grid.StepMeters != 20 {
		t.Errorf("grid = %+v, want 60/20", grid)
	}
	if err := grid.Validate(); err != nil {
		t.Fatalf("configured grid invalid: %v", err)
	}
}
