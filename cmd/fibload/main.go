// Command fibload runs a self-referential HTTP load generator: a server that
// computes Fibonacci numbers by calling itself on many loopback addresses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alexshd/fibload"
)

// flagKeys maps command line flags to config keys. Only flags the user set
// override the file and environment.
var flagKeys = map[string]string{
	"ssl":                  "mode.use_tls",
	"post":                 "mode.use_post",
	"disable-pool":         "mode.disable_connection_pool",
	"no-consume-on-server": "mode.skip_server_body_consumption",
	"port":                 "server.port",
	"listen":               "server.listen_address",
	"peers":                "peers.count",
	"metrics":              "metrics.enabled",
	"metrics-port":         "metrics.port",
	"log-level":            "logging.level",
	"no-color":             "logging.no_color",
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fibload: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		printInfo  bool
	)

	root := &cobra.Command{
		Use:   "fibload",
		Short: "Self-referential HTTP fibonacci load generator",
		Long: "fibload starts a server answering GET|POST /<n> with fib(n). Each request for n > 2\n" +
			"fans out to /<n-1> and /<n-2> on the next loopback peers (127.0.0.1-127.0.0.250),\n" +
			"so one request produces an exponential tree of dependent HTTP exchanges.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if printInfo {
				fibload.PrintInfo(cmd.OutOrStdout())
				return nil
			}
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	f.String("log-level", "info", "log level: debug, info, warn, error")
	f.Bool("no-color", false, "disable colored log output")
	f.BoolP("ssl", "s", false, "use https with a self-signed certificate")
	f.Bool("post", false, "use POST with a generated request body")

	sf := root.Flags()
	sf.BoolVarP(&printInfo, "print-info", "p", false, "print number of calls and upload sizes, then exit")
	sf.Bool("disable-pool", false, "disable the connection pool on the client")
	sf.Bool("no-consume-on-server", false, "don't consume POST bodies on the server")
	sf.Int("port", 8888, "port every peer listens on")
	sf.String("listen", "", "address to bind, empty for all interfaces")
	sf.Int("peers", fibload.MaxPeers, "number of loopback peer addresses to rotate over")
	sf.Bool("metrics", false, "serve Prometheus metrics")
	sf.Int("metrics-port", 9888, "port of the metrics server")

	root.AddCommand(newBenchCmd(&configPath))
	return root
}

// loadConfig merges the config file, environment and explicitly set flags.
func loadConfig(path string, flags *pflag.FlagSet) (*fibload.Config, error) {
	overrides := map[string]any{}
	flags.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			overrides[key] = f.Value.String()
		}
	})
	return fibload.LoadConfig(path, overrides)
}

// logBuildInfo logs the versions of the libraries the binary was built with.
func logBuildInfo(logger *slog.Logger) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	logger.Info("build", "go", info.GoVersion, "module", info.Main.Path, "version", info.Main.Version)
	for _, dep := range info.Deps {
		logger.Debug("dependency", "path", dep.Path, "version", dep.Version)
	}
}
