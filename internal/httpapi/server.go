// Package httpapi exposes the analysis engine and the geodata gateway
// as a JSON API. Error sentinels map onto HTTP statuses at this
// boundary; everything below it speaks wrapped errors.
package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/RX12/RF-LOS-CH/core"
	"github.com/RX12/RF-LOS-CH/internal/engine"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/internal/logging"
	"github.com/RX12/RF-LOS-CH/internal/observability"
	"github.com/RX12/RF-LOS-CH/internal/swisstopo"
	"github.com/RX12/RF-LOS-CH/internal/terrain"
	"github.com/RX12/RF-LOS-CH/model"
)

// Server wires the engine, the swisstopo client and the fetch queue
// into the HTTP surface.
type Server struct {
	engine  *engine.Engine
	geo     *swisstopo.Client
	queue   *fetch.Queue
	terrain *terrain.Service

	log       logging.Logger
	collector *observability.HTTPCollector
}

// Option customises server construction.
type Option func(*Server)

// WithLogger attaches a logger used for request logging.
func WithLogger(log logging.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithHTTPCollector attaches request metrics middleware.
func WithHTTPCollector(col *observability.HTTPCollector) Option {
	return func(s *Server) { s.collector = col }
}

// WithTerrain exposes the terrain cache's counters on the diagnostics
// surface.
func WithTerrain(svc *terrain.Service) Option {
	return func(s *Server) { s.terrain = svc }
}

// NewServer builds the API server over its collaborators.
func NewServer(eng *engine.Engine, geo *swisstopo.Client, queue *fetch.Queue, opts ...Option) *Server {
	s := &Server{
		engine: eng,
		geo:    geo,
		queue:  queue,
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router assembles the gin engine with the full middleware chain and
// route table. Prometheus metrics are served elsewhere, on their own
// listener.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(s.log), RequestLog(), Tracing())
	if s.collector != nil {
		r.Use(s.collector.Middleware())
	}

	r.GET("/healthz", s.health)

	api := r.Group("/api/v1")
	{
		api.POST("/analysis", s.runAnalysis)
		api.POST("/invalidate", s.invalidate)
		api.GET("/profile", s.latestProfile)
		api.GET("/heatmap", s.latestHeatmap)
		api.GET("/search", s.search)
		api.GET("/height", s.height)
		api.GET("/tiles/:zoom/:row/:col", s.tile)
		api.GET("/queue", s.queueStats)
		api.GET("/errors", s.recentErrors)
		if s.terrain != nil {
			api.GET("/terrain", s.terrainStats)
		}
	}
	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// runAnalysis executes one full analysis round and returns its result,
// superseded or not.
func (s *Server) runAnalysis(c *gin.Context) {
	var req model.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: decode analysis request: %v", core.ErrInvalidInput, err))
		return
	}

	res, err := s.engine.Analyze(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) invalidate(c *gin.Context) {
	s.engine.Invalidate()
	c.JSON(http.StatusOK, gin.H{"invalidated": true})
}

func (s *Server) latestProfile(c *gin.Context) {
	profile, ok := s.engine.LatestProfile()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no committed profile"})
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (s *Server) latestHeatmap(c *gin.Context) {
	heatmap, ok := s.engine.LatestHeatmap()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no committed heatmap"})
		return
	}
	c.JSON(http.StatusOK, heatmap)
}

func (s *Server) search(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		writeError(c, fmt.Errorf("%w: search query q is required", core.ErrInvalidInput))
		return
	}

	var origin *model.GeoPoint
	if latS, lngS := c.Query("lat"), c.Query("lng"); latS != "" || lngS != "" {
		lat, errLat := strconv.ParseFloat(latS, 64)
		lng, errLng := strconv.ParseFloat(lngS, 64)
		if errLat != nil || errLng != nil {
			writeError(c, fmt.Errorf("%w: lat and lng must both be numeric", core.ErrInvalidInput))
			return
		}
		origin = &model.GeoPoint{Lat: lat, Lng: lng}
	}

	limit := 0
	if limitS := c.Query("limit"); limitS != "" {
		n, err := strconv.Atoi(limitS)
		if err != nil || n < 0 {
			writeError(c, fmt.Errorf("%w: limit %q is not a valid count", core.ErrInvalidInput, limitS))
			return
		}
		limit = n
	}

	results, err := s.geo.Search(c.Request.Context(), query, origin, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) height(c *gin.Context) {
	p, err := planarFromQuery(c)
	if err != nil {
		writeError(c, err)
		return
	}

	h, err := s.geo.Height(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"height_m": h, "easting": p.E, "northing": p.N})
}

func (s *Server) tile(c *gin.Context) {
	zoom, errZ := strconv.Atoi(c.Param("zoom"))
	row, errR := strconv.Atoi(c.Param("row"))
	col, errC := strconv.Atoi(c.Param("col"))
	if errZ != nil || errR != nil || errC != nil {
		writeError(c, fmt.Errorf("%w: tile coordinates must be integers", core.ErrInvalidInput))
		return
	}

	img, err := s.geo.Tile(c.Request.Context(), zoom, row, col)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", img)
}

func (s *Server) queueStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.queue.Stats())
}

func (s *Server) recentErrors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"errors": s.engine.RecentErrors()})
}

func (s *Server) terrainStats(c *gin.Context) {
	stats := s.terrain.CacheStats()
	stored, err := s.terrain.StoredCount(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cache":     stats,
		"hit_ratio": stats.HitRatio(),
		"stored":    stored,
	})
}

// planarFromQuery resolves a position from either native LV03
// easting/northing parameters or a WGS84 lat/lng pair.
func planarFromQuery(c *gin.Context) (model.PlanarPoint, error) {
	if eS, nS := c.Query("easting"), c.Query("northing"); eS != "" || nS != "" {
		e, errE := strconv.ParseFloat(eS, 64)
		n, errN := strconv.ParseFloat(nS, 64)
		if errE != nil || errN != nil {
			return model.PlanarPoint{}, fmt.Errorf("%w: easting and northing must both be numeric", core.ErrInvalidInput)
		}
		return model.PlanarPoint{E: e, N: n}, nil
	}

	latS, lngS := c.Query("lat"), c.Query("lng")
	if latS == "" && lngS == "" {
		return model.PlanarPoint{}, fmt.Errorf("%w: supply lat/lng or easting/northing", core.ErrInvalidInput)
	}
	lat, errLat := strconv.ParseFloat(latS, 64)
	lng, errLng := strconv.ParseFloat(lngS, 64)
	if errLat != nil || errLng != nil {
		return model.PlanarPoint{}, fmt.Errorf("%w: lat and lng must both be numeric", core.ErrInvalidInput)
	}
	return core.ToPlanar(model.GeoPoint{Lat: lat, Lng: lng}), nil
}
