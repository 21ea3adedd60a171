package main

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexshd/fibload"
)

// serve runs the fibonacci server, and optionally the metrics server, until
// ctx is cancelled.
func serve(ctx context.Context, cfg *fibload.Config) error {
	logger := fibload.NewLogger(cfg.Logging)
	logBuildInfo(logger)

	if cfg.Mode.UsePost {
		logger.Info("using POST calls with request body")
	}
	if cfg.Mode.SkipServerBodyConsumption {
		logger.Warn("POST bodies won't be consumed on the server to find possible problems in this case")
	}

	metrics := fibload.NewMetrics()
	transport := fibload.NewHTTPTransport(fibload.HTTPTransportConfig{
		UseTLS:              cfg.Mode.UseTLS,
		DisablePool:         cfg.Mode.DisableConnectionPool,
		ConnectTimeout:      cfg.Client.ConnectTimeout,
		MaxIdleConnsPerHost: cfg.Client.MaxIdleConnsPerHost,
		BufferSize:          cfg.Client.BufferSize,
	})
	defer transport.CloseIdleConnections()

	dispatcher := fibload.NewDispatcher(transport, cfg.NewRotation(), fibload.DispatcherConfig{
		UseTLS:  cfg.Mode.UseTLS,
		UsePost: cfg.Mode.UsePost,
	}, logger)
	router := fibload.NewRouter(dispatcher, metrics, fibload.RouterConfig{
		SkipBodyConsumption: cfg.Mode.SkipServerBodyConsumption,
		BufferSize:          cfg.Client.BufferSize,
	}, logger)

	server, err := fibload.NewServer(cfg.ListenAddr(), router, cfg.Mode.UseTLS, cfg.Server.ShutdownTimeout, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx)
	})
	g.Go(func() error {
		metrics.Report(ctx, logger.With("logger", "metrics"), cfg.Metrics.ReportInterval)
		return nil
	})

	if cfg.Metrics.Enabled {
		ms := fibload.NewMetricsServer(cfg.Metrics.Port, metrics, logger)
		g.Go(func() error {
			return ms.Start(ctx)
		})
		g.Go(func() error {
			<-ctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return ms.Stop(stopCtx)
		})
	}

	return g.Wait()
}
