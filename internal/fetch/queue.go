// Package fetch serializes outbound geodata requests. Upstream terrain
// services throttle aggressively, so every HTTP call the module makes
// goes through one FIFO queue that dispatches a single request at a
// time, paced per request class.
package fetch

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/RX12/RF-LOS-CH/internal/logging"
)

const tracerName = "github.com/RX12/RF-LOS-CH/internal/fetch"

// Category identifies what a queued request is fetching. It selects
// the dispatch class and labels the queue's telemetry.
type Category string

const (
	CategoryTile    Category = "tile"
	CategoryProfile Category = "profile"
	CategoryHeight  Category = "height"
	CategorySearch  Category = "search"
)

// Class is a dispatch pacing class. Map tiles are cheap for the
// upstream and run on a fast cadence; everything else counts as a
// lookup and is paced conservatively.
type Class string

const (
	ClassTile   Class = "tile"
	ClassLookup Class = "lookup"
)

// Class returns the pacing class for the category.
func (c Category) Class() Class {
	if c == CategoryTile {
		return ClassTile
	}
	return ClassLookup
}

// Default pacing: at most one tile per 100 ms and one lookup per
// 500 ms, tuned to stay under the upstream's throttling threshold.
const (
	DefaultTileDispatchDelay   = 100 * time.Millisecond
	DefaultLookupDispatchDelay = 500 * time.Millisecond
	DefaultRateWindowSpan      = 60 * time.Second
)

// Request is one outbound HTTP GET to enqueue.
type Request struct {
	URL      string
	Category Category
}

// Result is the terminal outcome of a dispatched request. Err is set
// for transport-level failures only; HTTP error statuses come back
// with Err nil and the status code set, interpretation is left to the
// caller.
type Result struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Stats is a point-in-time snapshot of the queue, exposed over the
// status API.
type Stats struct {
	Depth         int              `json:"depth"`
	Draining      bool             `json:"draining"`
	WindowCounts  map[Category]int `json:"window_counts"`
	WindowSeconds float64          `json:"window_seconds"`
}

// MetricsRecorder receives queue telemetry. A nil recorder is valid.
type MetricsRecorder interface {
	ObserveDispatch(category, outcome string, queuedFor time.Duration)
	SetQueueDepth(depth int)
	SetRateWindowCount(category string, count int)
}

type pending struct {
	ctx      context.Context
	req      Request
	enqueued time.Time
	out      chan Result
}

// Queue is the serializing fetch queue. Enqueue may be called from any
// goroutine; requests are dispatched strictly in arrival order by a
// single drain goroutine that exists only while work is pending.
type Queue struct {
	client  *http.Client
	log     logging.Logger
	metrics MetricsRecorder
	window  *RateWindow

	tileLimiter   *rate.Limiter
	lookupLimiter *rate.Limiter

	mu       sync.Mutex
	backlog  []pending
	draining bool
}

// Option customises queue construction.
type Option func(*Queue)

// WithHTTPClient substitutes the HTTP client used for dispatches.
func WithHTTPClient(c *http.Client) Option {
	return func(q *Queue) {
		if c != nil {
			q.client = c
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log logging.Logger) Option {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// WithMetrics attaches a telemetry recorder.
func WithMetrics(m MetricsRecorder) Option {
	return func(q *Queue) { q.metrics = m }
}

// WithDispatchDelays overrides the per-class pacing delays.
func WithDispatchDelays(tile, lookup time.Duration) Option {
	return func(q *Queue) {
		if tile > 0 {
			q.tileLimiter = rate.NewLimiter(rate.Every(tile), 1)
		}
		if lookup > 0 {
			q.lookupLimiter = rate.NewLimiter(rate.Every(lookup), 1)
		}
	}
}

// WithRateWindowSpan overrides the span of the trailing dispatch-count
// window.
func WithRateWindowSpan(span time.Duration) Option {
	return func(q *Queue) {
		if span > 0 {
			q.window = NewRateWindow(span)
		}
	}
}

// NewQueue constructs an idle queue with default pacing.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		client:        &http.Client{Timeout: 30 * time.Second},
		log:           logging.Noop(),
		window:        NewRateWindow(DefaultRateWindowSpan),
		tileLimiter:   rate.NewLimiter(rate.Every(DefaultTileDispatchDelay), 1),
		lookupLimiter: rate.NewLimiter(rate.Every(DefaultLookupDispatchDelay), 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends the request and returns a channel that will carry
// exactly one Result. The channel is buffered, so the caller may
// abandon it without leaking the drain goroutine. Once enqueued a
// request is always dispatched; cancelling ctx fails the HTTP call at
// dispatch time but does not remove the entry from the queue.
func (q *Queue) Enqueue(ctx context.Context, req Request) <-chan Result {
	if ctx == nil {
		ctx = context.Background()
	}
	out := make(chan Result, 1)

	q.mu.Lock()
	q.backlog = append(q.backlog, pending{
		ctx:      ctx,
		req:      req,
		enqueued: time.Now(),
		out:      out,
	})
	depth := len(q.backlog)
	startDrain := !q.draining
	if startDrain {
		q.draining = true
	}
	q.mu.Unlock()

	if q.metrics != nil {
		q.metrics.SetQueueDepth(depth)
	}
	if startDrain {
		go q.drain()
	}
	return out
}

// Stats reports the queue's current depth, drain state and trailing
// dispatch counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	depth := len(q.backlog)
	draining := q.draining
	q.mu.Unlock()

	return Stats{
		Depth:         depth,
		Draining:      draining,
		WindowCounts:  q.window.Counts(),
		WindowSeconds: q.window.Span().Seconds(),
	}
}

// drain dispatches backlog entries one at a time until the queue is
// empty, then exits. Exactly one drain goroutine runs at a time; the
// draining flag hands the role off atomically with the emptiness
// check.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.backlog) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		head := q.backlog[0]
		q.backlog = q.backlog[1:]
		depth := len(q.backlog)
		q.mu.Unlock()

		if q.metrics != nil {
			q.metrics.SetQueueDepth(depth)
		}
		q.dispatch(head)
	}
}

func (q *Queue) dispatch(p pending) {
	// Pacing is owed even when the caller has gone away; the upstream
	// budget is spent by the dispatch, not by who reads the result.
	if err := q.limiterFor(p.req.Category.Class()).Wait(context.Background()); err != nil {
		p.out <- Result{Err: err}
		return
	}

	waited := time.Since(p.enqueued)

	ctx, span := otel.Tracer(tracerName).Start(p.ctx, "fetch.dispatch")
	span.SetAttributes(
		attribute.String("fetch.category", string(p.req.Category)),
		attribute.String("fetch.url", p.req.URL),
		attribute.Int64("fetch.queued_ms", waited.Milliseconds()),
	)
	res := q.do(ctx, p.req)
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	span.End()

	q.window.Observe(p.req.Category)

	outcome := "ok"
	switch {
	case res.Err != nil:
		outcome = "error"
	case res.StatusCode >= 400:
		outcome = "http_error"
	}
	if q.metrics != nil {
		q.metrics.ObserveDispatch(string(p.req.Category), outcome, waited)
		for cat, n := range q.window.Counts() {
			q.metrics.SetRateWindowCount(string(cat), n)
		}
	}
	if res.Err != nil {
		q.log.Warn(p.ctx, "fetch dispatch failed",
			logging.String("category", string(p.req.Category)),
			logging.String("url", p.req.URL),
			logging.Err(res.Err),
		)
	} else {
		q.log.Debug(p.ctx, "fetch dispatched",
			logging.String("category", string(p.req.Category)),
			logging.Int("status", res.StatusCode),
			logging.Duration("queued_for", waited),
		)
	}

	p.out <- res
}

func (q *Queue) do(ctx context.Context, r Request) Result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Result{Err: err}
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Err: err}
	}
	return Result{StatusCode: resp.StatusCode, Body: body}
}

func (q *Queue) limiterFor(c Class) *rate.Limiter {
	if c == ClassTile {
		return q.tileLimiter
	}
	return q.lookupLimiter
}
