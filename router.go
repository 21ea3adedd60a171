package fibload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Computer is the part of the Dispatcher the Router depends on.
type Computer interface {
	Fibonacci(ctx context.Context, n int) (int64, error)
}

// RouterConfig holds the server side toggles.
type RouterConfig struct {
	// SkipBodyConsumption leaves POST bodies unread. Diagnostic mode only.
	SkipBodyConsumption bool

	// BufferSize is the read buffer used while verifying bodies.
	BufferSize int
}

// Router serves GET|POST /<n>.
type Router struct {
	fib     Computer
	metrics *Metrics
	cfg     RouterConfig
	logger  *slog.Logger
}

// NewRouter creates the fibonacci endpoint. metrics may be nil.
func NewRouter(fib Computer, metrics *Metrics, cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 32 * 1024
	}
	return &Router{fib: fib, metrics: metrics, cfg: cfg, logger: logger}
}

// ParseN extracts n from a path of the form "/<n>". Only unsigned decimal
// digits are accepted.
func ParseN(path string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(path, "/"), 10, 31)
	if err != nil {
		return 0, &ParseError{Path: path, Err: err}
	}
	return int(n), nil
}

// matches reports whether path is a single non-empty segment.
func matches(path string) bool {
	return len(path) > 1 && path[0] == '/' && !strings.Contains(path[1:], "/")
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !matches(r.URL.Path) {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	n, err := ParseN(r.URL.Path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rt.metrics.RequestServed()
	start := time.Now()
	defer func() { rt.metrics.ObserveLatency(time.Since(start)) }()

	if n <= 2 {
		if r.Method == http.MethodPost && !rt.cfg.SkipBodyConsumption {
			drained, err := io.Copy(io.Discard, r.Body)
			rt.metrics.BodyConsumed(int(drained))
			if err != nil {
				rt.logger.Warn("failed to drain base case body", "n", n, "bytes", drained, "err", err)
			}
		}
		rt.reply(w, 1)
		return
	}

	result, err := rt.compute(r, n)
	if err != nil {
		rt.metrics.RequestFailed()
		rt.fail(w, n, err)
		return
	}
	rt.reply(w, result)
}

// compute joins the two child fetches with verification of the inbound body.
// The result is only returned once all of them have finished successfully.
func (rt *Router) compute(r *http.Request, n int) (int64, error) {
	var result int64
	g, ctx := errgroup.WithContext(r.Context())

	if r.Method == http.MethodPost && !rt.cfg.SkipBodyConsumption {
		expected := TotalBytes(n)
		rt.metrics.PayloadExpected(expected)
		g.Go(func() error {
			return rt.verify(r.Body, n, expected)
		})
	}
	g.Go(func() error {
		v, err := rt.fib.Fibonacci(ctx, n)
		result = v
		return err
	})

	if err := g.Wait(); err != nil {
		return 0, err
	}
	return result, nil
}

func (rt *Router) verify(body io.Reader, n int, expected int64) error {
	v := NewVerifier(expected)
	buf := make([]byte, rt.cfg.BufferSize)
	err := v.Consume(body, buf, rt.metrics.BodyConsumed)
	rt.logger.Debug("read payload", "n", n, "bytes", v.Count())
	return err
}

func (rt *Router) reply(w http.ResponseWriter, v int64) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, strconv.FormatInt(v, 10))
}

func (rt *Router) fail(w http.ResponseWriter, n int, err error) {
	var (
		content *ContentMismatchError
		length  *LengthMismatchError
		tr      *TransportError
	)
	switch {
	case errors.As(err, &content):
		rt.logger.Error("payload content mismatch",
			"n", n,
			"index", content.Index,
			"expected_total", content.ExpectedTotal,
			"expected", content.Expected,
			"actual", content.Actual,
			"chunk_pos", content.ChunkPos)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.As(err, &length):
		rt.logger.Error("payload length mismatch",
			"n", n,
			"expected", length.Expected,
			"received", length.Actual)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	case errors.As(err, &tr):
		rt.logger.Error("child request failed", "n", n, "url", tr.URL, "status", tr.StatusCode, "err", tr.Err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		rt.logger.Error("request failed", "n", n, "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
