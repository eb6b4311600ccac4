package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/config"
	"github.com/RX12/RF-LOS-CH/internal/engine"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/internal/logging"
	"github.com/RX12/RF-LOS-CH/internal/swisstopo"
	"github.com/RX12/RF-LOS-CH/internal/terrain"
	"github.com/RX12/RF-LOS-CH/model"
)

var (
	jsonOut bool

	txLat, txLng, txHeight float64
	rxLat, rxLng, rxHeight float64
	freqGHz                float64
	sampleCount            int
	gridRadius, gridStep   float64

	refLat, refLng float64
	searchLimit    int

	lat, lng          float64
	easting, northing float64
)

var rootCmd = &cobra.Command{
	Use:   "los-cli",
	Short: "Line-of-sight analysis against the Swiss federal geodata services",
	Long: `Runs terrain-aware RF line-of-sight analysis for ground links in
Switzerland directly against the public geodata services, with the same
rate-limited fetch queue the server uses.`,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one obstruction analysis between two positions",
	Run:   runAnalyze,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Resolve a place name to coordinates",
	Args:  cobra.MinimumNArgs(1),
	Run:   runSearch,
}

var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Look up the terrain height at one position",
	Run:   runHeight,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of text")

	analyzeCmd.Flags().Float64Var(&txLat, "tx-lat", 0, "Transmitter latitude (WGS84 degrees)")
	analyzeCmd.Flags().Float64Var(&txLng, "tx-lng", 0, "Transmitter longitude (WGS84 degrees)")
	analyzeCmd.Flags().Float64Var(&txHeight, "tx-height", 10, "Transmitter antenna height above ground (m)")
	analyzeCmd.Flags().Float64Var(&rxLat, "rx-lat", 0, "Receiver latitude (WGS84 degrees)")
	analyzeCmd.Flags().Float64Var(&rxLng, "rx-lng", 0, "Receiver longitude (WGS84 degrees)")
	analyzeCmd.Flags().Float64Var(&rxHeight, "rx-height", 10, "Receiver antenna height above ground (m)")
	analyzeCmd.Flags().Float64Var(&freqGHz, "freq", 5.8, "Link frequency (GHz)")
	analyzeCmd.Flags().IntVar(&sampleCount, "samples", 0, "Elevation samples along the path (0 = one per 50 m)")
	analyzeCmd.Flags().Float64Var(&gridRadius, "radius", 0, "Heatmap radius around the receiver in metres (0 = configured default)")
	analyzeCmd.Flags().Float64Var(&gridStep, "step", 0, "Heatmap grid step in metres (0 = configured default)")
	for _, name := range []string{"tx-lat", "tx-lng", "rx-lat", "rx-lng"} {
		_ = analyzeCmd.MarkFlagRequired(name)
	}

	searchCmd.Flags().Float64Var(&refLat, "lat", 0, "Reference latitude for distance ranking")
	searchCmd.Flags().Float64Var(&refLng, "lng", 0, "Reference longitude for distance ranking")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "Maximum number of results (0 = all)")

	heightCmd.Flags().Float64Var(&lat, "lat", 0, "Latitude (WGS84 degrees)")
	heightCmd.Flags().Float64Var(&lng, "lng", 0, "Longitude (WGS84 degrees)")
	heightCmd.Flags().Float64Var(&easting, "easting", 0, "LV03 easting (m)")
	heightCmd.Flags().Float64Var(&northing, "northing", 0, "LV03 northing (m)")

	rootCmd.AddCommand(analyzeCmd, searchCmd, heightCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runAnalyze(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	log := cliLogger()
	geo, _ := buildGateway(cfg, log)

	var store *terrain.Store
	if cfg.TerrainDBPath != "" {
		s, err := terrain.OpenStore(cfg.TerrainDBPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: terrain store unavailable: %v\n", err)
		} else {
			store = s
			defer store.Close()
		}
	}
	heights := terrain.NewService(geo, terrain.NewCache(cfg.TerrainMatchRadius, cfg.TerrainTTL), store, log)
	if _, err := heights.Warm(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: terrain cache warm-up failed: %v\n", err)
	}

	eng := engine.New(geo, heights,
		engine.WithLogger(log),
		engine.WithGrid(cfg.Grid()),
		engine.WithCenterFallback(!cfg.DisableCenterFallback),
	)

	req := model.AnalysisRequest{
		Tx:                  model.LinkEndpoint{Position: model.GeoPoint{Lat: txLat, Lng: txLng}, HeightAboveGround: txHeight},
		Rx:                  model.LinkEndpoint{Position: model.GeoPoint{Lat: rxLat, Lng: rxLng}, HeightAboveGround: rxHeight},
		FrequencyGHz:        freqGHz,
		SampleCount:         sampleCount,
		HeatmapRadiusMeters: gridRadius,
		HeatmapStepMeters:   gridStep,
	}

	res, err := eng.Analyze(ctx, req)
	if err != nil {
		fatal(err)
	}

	if jsonOut {
		emitJSON(res)
		return
	}
	printAnalysis(req, res)
}

func runSearch(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	geo, _ := buildGateway(cfg, cliLogger())

	var origin *model.GeoPoint
	latSet, lngSet := cmd.Flags().Changed("lat"), cmd.Flags().Changed("lng")
	if latSet != lngSet {
		fatal(fmt.Errorf("supply both --lat and --lng, or neither"))
	}
	if latSet {
		origin = &model.GeoPoint{Lat: refLat, Lng: refLng}
	}

	results, err := geo.Search(ctx, strings.Join(args, " "), origin, searchLimit)
	if err != nil {
		fatal(err)
	}

	if jsonOut {
		emitJSON(results)
		return
	}
	if len(results) == 0 {
		fmt.Println("no matches")
		return
	}
	for _, r := range results {
		if origin != nil {
			fmt.Printf("%-40s %9.5f,%9.5f  %6.1f km\n", r.Label, r.Position.Lat, r.Position.Lng, r.DistanceKm)
		} else {
			fmt.Printf("%-40s %9.5f,%9.5f\n", r.Label, r.Position.Lat, r.Position.Lng)
		}
	}
}

func runHeight(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := config.Load()
	geo, _ := buildGateway(cfg, cliLogger())

	var p model.PlanarPoint
	switch {
	case cmd.Flags().Changed("easting") && cmd.Flags().Changed("northing"):
		p = model.PlanarPoint{E: easting, N: northing}
	case cmd.Flags().Changed("lat") && cmd.Flags().Changed("lng"):
		p = core.ToPlanar(model.GeoPoint{Lat: lat, Lng: lng})
	default:
		fatal(fmt.Errorf("supply --lat/--lng or --easting/--northing"))
	}

	h, err := geo.Height(ctx, p)
	if err != nil {
		fatal(err)
	}

	if jsonOut {
		emitJSON(map[string]float64{"height_m": h, "easting": p.E, "northing": p.N})
		return
	}
	fmt.Printf("%.1f m at LV03 %.2f / %.2f\n", h, p.E, p.N)
}

// buildGateway assembles the rate-limited geodata client the commands
// share.
func buildGateway(cfg *config.Config, log logging.Logger) (*swisstopo.Client, *fetch.Queue) {
	queue := fetch.NewQueue(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		fetch.WithLogger(log),
		fetch.WithDispatchDelays(cfg.TileDispatchDelay, cfg.LookupDispatchDelay),
		fetch.WithRateWindowSpan(cfg.RateWindowSpan),
	)
	return swisstopo.NewClient(cfg.Swisstopo(), queue, log), queue
}

// cliLogger keeps structured logs off stdout so command output stays
// parseable.
func cliLogger() logging.Logger {
	level := os.Getenv("LOS_LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	return logging.New(logging.Config{Level: level, Output: os.Stderr})
}

func printAnalysis(req model.AnalysisRequest, res *model.AnalysisResult) {
	fmt.Printf("Link: %.5f,%.5f (+%.0f m) -> %.5f,%.5f (+%.0f m) at %.2f GHz\n",
		req.Tx.Position.Lat, req.Tx.Position.Lng, req.Tx.HeightAboveGround,
		req.Rx.Position.Lat, req.Rx.Position.Lng, req.Rx.HeightAboveGround,
		req.FrequencyGHz,
	)
	fmt.Printf("Direct distance: %.2f km, %d profile samples, FSPL %.1f dB\n",
		res.DirectDistanceKm, len(res.Profile.Samples), res.Profile.FSPLdB)

	if res.Profile.IsObstructed {
		fmt.Printf("OBSTRUCTED: terrain penetrates the clearance boundary by %.1f m\n",
			-res.Profile.ReportedMarginMeters)
	} else {
		fmt.Printf("Clear: %.1f m of margin above the 60%% Fresnel boundary\n",
			res.Profile.ReportedMarginMeters)
	}

	hm := res.Heatmap
	counts := map[model.HeatmapClass]int{}
	for _, p := range hm.Points {
		if p.EstimatedMarginMeters != nil {
			counts[p.Classification]++
		}
	}
	fmt.Printf("Relocation heatmap (radius %.0f m, step %.0f m): %d clear / %d marginal / %d obstructed",
		hm.RadiusMeters, hm.StepMeters,
		counts[model.HeatmapClear], counts[model.HeatmapMarginal], counts[model.HeatmapObstructed])
	if hm.MissingPoints > 0 {
		fmt.Printf(", %d missing", hm.MissingPoints)
	}
	fmt.Printf(" (baseline: %s)\n", hm.Baseline)
}

func emitJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
