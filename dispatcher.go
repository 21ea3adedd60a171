package fibload

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Transport issues one child request and returns the integer in its response
// body. body is nil for GET requests.
type Transport interface {
	Fetch(ctx context.Context, method, url string, body io.Reader) (int64, error)
}

// Dispatcher computes fib(n) by asking peers for fib(n-1) and fib(n-2).
type Dispatcher struct {
	transport Transport
	peers     *Rotation
	scheme    string
	usePost   bool
	logger    *slog.Logger
}

// DispatcherConfig holds the knobs the dispatcher needs from Config.
type DispatcherConfig struct {
	UseTLS  bool
	UsePost bool
}

// NewDispatcher creates a dispatcher sending child requests through t to
// addresses chosen by peers.
func NewDispatcher(t Transport, peers *Rotation, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	scheme := "http"
	if cfg.UseTLS {
		scheme = "https"
	}
	return &Dispatcher{
		transport: t,
		peers:     peers,
		scheme:    scheme,
		usePost:   cfg.UsePost,
		logger:    logger,
	}
}

// Fibonacci returns fib(n). For n <= 2 it answers 1 without any request;
// otherwise the two children are fetched concurrently and summed. The first
// failing child cancels its sibling and fails the whole computation.
func (d *Dispatcher) Fibonacci(ctx context.Context, n int) (int64, error) {
	if n <= 2 {
		return 1, nil
	}

	var left, right int64
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := d.Fetch(ctx, n-1)
		left = v
		return err
	})
	g.Go(func() error {
		v, err := d.Fetch(ctx, n-2)
		right = v
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return left + right, nil
}

// Fetch asks the next peer for fib(n). In POST mode the request carries the
// payload for n, which the peer recomputes and verifies on its own.
func (d *Dispatcher) Fetch(ctx context.Context, n int) (int64, error) {
	url := d.scheme + "://" + d.peers.Next() + "/" + strconv.Itoa(n)

	if !d.usePost {
		return d.transport.Fetch(ctx, http.MethodGet, url, nil)
	}
	return d.transport.Fetch(ctx, http.MethodPost, url, NewWriter(n, d.logger))
}
