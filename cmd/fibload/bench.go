package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/alexshd/fibload"
)

func newBenchCmd(configPath *string) *cobra.Command {
	var (
		target string
		n      int
		levels []int
		bench  = fibload.DefaultBenchConfig()
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a running fibload server and fit its scalability curve",
		Example: `# Request fib(20) from the local server at 1, 2, 4 and 8 concurrent clients
fibload bench --n 20 --levels 1,2,4,8 --duration 20s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logger := fibload.NewLogger(cfg.Logging)

			if target == "" {
				target = fmt.Sprintf("%s://127.0.0.1:%d", cfg.Scheme(), cfg.Server.Port)
			}
			bench.Levels = levels

			transport := fibload.NewHTTPTransport(fibload.HTTPTransportConfig{
				UseTLS:              cfg.Mode.UseTLS,
				DisablePool:         cfg.Mode.DisableConnectionPool,
				ConnectTimeout:      cfg.Client.ConnectTimeout,
				MaxIdleConnsPerHost: cfg.Client.MaxIdleConnsPerHost,
				BufferSize:          cfg.Client.BufferSize,
			})
			defer transport.CloseIdleConnections()

			logger.Info("starting bench",
				"target", target,
				"n", n,
				"calls_per_request", fibload.CallCount(n),
				"levels", levels,
				"post", cfg.Mode.UsePost)

			op := fibload.FibonacciOperation(transport, target, n, cfg.Mode.UsePost)
			results, err := fibload.Run(cmd.Context(), op, bench)
			for _, r := range results {
				stats := fibload.CalculateStatistics(r)
				attrs := []any{
					"N", r.N,
					"ops", r.Operations,
					"throughput", fmt.Sprintf("%.2f/s", r.Throughput),
					"errors", r.Errors,
					"p50", stats.P50,
					"p95", stats.P95,
					"p99", stats.P99,
				}
				if r.FirstError != nil {
					attrs = append(attrs, "first_error", r.FirstError)
				}
				logger.Info("level", attrs...)
			}
			if err != nil {
				return err
			}

			usl, err := fibload.FitUSL(results)
			if err != nil {
				logger.Warn("cannot fit scalability curve", "err", err)
				return nil
			}
			peak := "unbounded"
			if p := usl.PeakConcurrency(); !math.IsInf(p, 1) {
				peak = fmt.Sprintf("%.1f", p)
			}
			logger.Info("usl",
				"lambda", fmt.Sprintf("%.3f", usl.Lambda),
				"alpha", fmt.Sprintf("%.4f", usl.Alpha),
				"beta", fmt.Sprintf("%.6f", usl.Beta),
				"r2", fmt.Sprintf("%.3f", usl.RSquared),
				"peak_concurrency", peak)
			for _, finding := range fibload.CheckScalability(results, usl, fibload.DefaultScalabilityThresholds()) {
				logger.Warn("scalability", "finding", finding)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&target, "target", "", "base URL of the server (default http(s)://127.0.0.1:<port>)")
	f.IntVar(&n, "n", 15, "fibonacci parameter of each root request")
	f.IntSliceVar(&levels, "levels", bench.Levels, "concurrency levels")
	f.DurationVar(&bench.Duration, "duration", bench.Duration, "measurement time per level")
	f.DurationVar(&bench.Warmup, "warmup", bench.Warmup, "warmup time per level")
	f.Int("port", 8888, "server port used for the default target")
	return cmd
}
