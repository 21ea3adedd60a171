package fibload

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix for environment variables overriding the config.
const EnvPrefix = "FIBLOAD_"

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Peers   PeersConfig   `koanf:"peers"`
	Mode    ModeConfig    `koanf:"mode"`
	Client  ClientConfig  `koanf:"client"`
	Metrics MetricsConfig `koanf:"metrics"`
	Logging LoggingConfig `koanf:"logging"`
}

// ServerConfig holds the listener settings.
type ServerConfig struct {
	// Port is shared by every synthetic peer
	Port int `koanf:"port"`

	// ListenAddress is the host to bind; empty binds all interfaces so that
	// every loopback peer address reaches the same process
	ListenAddress string `koanf:"listen_address"`

	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// PeersConfig describes the synthetic peer pool.
type PeersConfig struct {
	Prefix string `koanf:"prefix"`
	Count  int    `koanf:"count"`
}

// ModeConfig holds the load generator toggles.
type ModeConfig struct {
	UseTLS                    bool `koanf:"use_tls"`
	UsePost                   bool `koanf:"use_post"`
	DisableConnectionPool     bool `koanf:"disable_connection_pool"`
	SkipServerBodyConsumption bool `koanf:"skip_server_body_consumption"`
}

// ClientConfig holds outbound HTTP client settings.
type ClientConfig struct {
	ConnectTimeout      time.Duration `koanf:"connect_timeout"`
	MaxIdleConnsPerHost int           `koanf:"max_idle_conns_per_host"`
	BufferSize          int           `koanf:"buffer_size"`
}

// MetricsConfig holds the metrics server and log reporter settings.
type MetricsConfig struct {
	Enabled        bool          `koanf:"enabled"`
	Port           int           `koanf:"port"`
	ReportInterval time.Duration `koanf:"report_interval"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level   string `koanf:"level"`
	NoColor bool   `koanf:"no_color"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8888,
			ShutdownTimeout: 10 * time.Second,
		},
		Peers: PeersConfig{
			Prefix: "127.0.0.",
			Count:  MaxPeers,
		},
		Client: ClientConfig{
			ConnectTimeout:      120 * time.Second,
			MaxIdleConnsPerHost: 128,
			BufferSize:          32 * 1024,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			Port:           9888,
			ReportInterval: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig merges defaults, the TOML file at path (optional), FIBLOAD_*
// environment variables and overrides, in that order, then validates.
// overrides maps dotted keys such as "mode.use_post" to values.
func LoadConfig(path string, overrides map[string]any) (*Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Double underscores (__) keep a literal underscore in a field name
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		return strings.ReplaceAll(s, "%UNDERSCORE%", "_")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load flag overrides: %w", err)
		}
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration once at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive, got: %s", c.Server.ShutdownTimeout)
	}

	if c.Peers.Count < 1 || c.Peers.Count > MaxPeers {
		return fmt.Errorf("invalid peers.count: %d (must be 1-%d)", c.Peers.Count, MaxPeers)
	}
	if !strings.HasSuffix(c.Peers.Prefix, ".") {
		return fmt.Errorf("peers.prefix must end with '.', got: %q", c.Peers.Prefix)
	}

	if c.Client.ConnectTimeout <= 0 {
		return fmt.Errorf("client.connect_timeout must be positive, got: %s", c.Client.ConnectTimeout)
	}
	if c.Client.BufferSize <= 0 {
		return fmt.Errorf("client.buffer_size must be positive, got: %d", c.Client.BufferSize)
	}
	if c.Client.MaxIdleConnsPerHost < 0 {
		return fmt.Errorf("client.max_idle_conns_per_host must not be negative, got: %d", c.Client.MaxIdleConnsPerHost)
	}

	if c.Metrics.ReportInterval <= 0 {
		return fmt.Errorf("metrics.report_interval must be positive, got: %s", c.Metrics.ReportInterval)
	}
	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics.port: %d (must be 1-65535)", c.Metrics.Port)
		}
		if c.Metrics.Port == c.Server.Port {
			return fmt.Errorf("metrics.port cannot be same as server.port")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got: %s", c.Logging.Level)
	}
	return nil
}

// ListenAddr returns the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.ListenAddress, c.Server.Port)
}

// Scheme returns the URL scheme used for child requests.
func (c *Config) Scheme() string {
	if c.Mode.UseTLS {
		return "https"
	}
	return "http"
}

// NewRotation builds the peer pool described by the config.
func (c *Config) NewRotation() *Rotation {
	return NewRotation(LoopbackHosts(c.Peers.Prefix, c.Peers.Count), c.Server.Port)
}
