package config

import (
	"fmt"
	"os"
	"time"

	"callpilot/internal/core/domain"
	"callpilot/pkg/tracing"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		Path         string        `yaml:"path"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"signal"`

	Controller struct {
		Quality struct {
			Enabled      bool          `yaml:"enabled"`
			AdaptiveMode string        `yaml:"adaptive_mode"`
			MinQuality   string        `yaml:"min_quality"`
			MaxQuality   string        `yaml:"max_quality"`
			Cooldown     time.Duration `yaml:"cooldown"`
		} `yaml:"quality"`

		Layout struct {
			Initial                   string `yaml:"initial"`
			AfterScreenShare          string `yaml:"after_screen_share"`
			SpeakerCenterYieldsToGrid bool   `yaml:"speaker_center_yields_to_grid"`
			MaxVisibleTiles           int    `yaml:"max_visible_tiles"`
			MaxStripTiles             int    `yaml:"max_strip_tiles"`
		} `yaml:"layout"`

		Network struct {
			HysteresisFactor float64 `yaml:"hysteresis_factor"`
		} `yaml:"network"`

		Breaker struct {
			FailureThreshold int           `yaml:"failure_threshold"`
			SuccessThreshold int           `yaml:"success_threshold"`
			OpenTimeout      time.Duration `yaml:"open_timeout"`
		} `yaml:"breaker"`
	} `yaml:"controller"`

	Monitoring struct {
		PrometheusEnabled bool   `yaml:"prometheus_enabled"`
		MetricsPath       string `yaml:"metrics_path"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing tracing.Config `yaml:"tracing"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	RateLimiting struct {
		Enabled           bool    `yaml:"enabled"`
		MessagesPerSecond float64 `yaml:"messages_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limiting"`
}

// QualitySettings parses the controller.quality section.
func (c *Config) QualitySettings() (domain.QualitySettings, error) {
	q := c.Controller.Quality
	mode, err := domain.ParseAdaptiveMode(q.AdaptiveMode)
	if err != nil {
		return domain.QualitySettings{}, fmt.Errorf("controller.quality.adaptive_mode: %w", err)
	}
	minQ, err := domain.ParseQualityTier(q.MinQuality)
	if err != nil {
		return domain.QualitySettings{}, fmt.Errorf("controller.quality.min_quality: %w", err)
	}
	maxQ, err := domain.ParseQualityTier(q.MaxQuality)
	if err != nil {
		return domain.QualitySettings{}, fmt.Errorf("controller.quality.max_quality: %w", err)
	}

	settings := domain.QualitySettings{
		Enabled:      q.Enabled,
		AdaptiveMode: mode,
		MinQuality:   minQ,
		MaxQuality:   maxQ,
	}
	if err := settings.Validate(); err != nil {
		return domain.QualitySettings{}, fmt.Errorf("controller.quality: %w", err)
	}
	return settings, nil
}

// Layouts parses the initial and post screen share layouts.
func (c *Config) Layouts() (initial, afterShare domain.LayoutVariant, err error) {
	initial, err = domain.ParseLayoutVariant(c.Controller.Layout.Initial)
	if err != nil {
		return 0, 0, fmt.Errorf("controller.layout.initial: %w", err)
	}
	afterShare, err = domain.ParseLayoutVariant(c.Controller.Layout.AfterScreenShare)
	if err != nil {
		return 0, 0, fmt.Errorf("controller.layout.after_screen_share: %w", err)
	}
	if err := domain.ValidateLayoutDefaults(initial, afterShare); err != nil {
		return 0, 0, fmt.Errorf("controller.layout: %w", err)
	}
	return initial, afterShare, nil
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.Path == "" {
		return fmt.Errorf("signal.path must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}

	// Controller
	if _, err := c.QualitySettings(); err != nil {
		return err
	}
	if c.Controller.Quality.Cooldown < 0 {
		return fmt.Errorf("controller.quality.cooldown must be >= 0")
	}
	if _, _, err := c.Layouts(); err != nil {
		return err
	}
	if c.Controller.Layout.MaxVisibleTiles <= 0 {
		return fmt.Errorf("controller.layout.max_visible_tiles must be > 0")
	}
	if c.Controller.Layout.MaxStripTiles <= 0 {
		return fmt.Errorf("controller.layout.max_strip_tiles must be > 0")
	}
	if h := c.Controller.Network.HysteresisFactor; h < 0 || h > 1 {
		return fmt.Errorf("controller.network.hysteresis_factor must be within [0, 1]")
	}
	if c.Controller.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("controller.breaker.failure_threshold must be > 0")
	}
	if c.Controller.Breaker.SuccessThreshold <= 0 {
		return fmt.Errorf("controller.breaker.success_threshold must be > 0")
	}
	if c.Controller.Breaker.OpenTimeout <= 0 {
		return fmt.Errorf("controller.breaker.open_timeout must be > 0")
	}

	// Monitoring
	if c.Monitoring.PrometheusEnabled && c.Monitoring.MetricsPath == "" {
		return fmt.Errorf("monitoring.metrics_path must not be empty when prometheus_enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel must not be empty when redis.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
		// fall back to defaults
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 15 * time.Second

	cfg.Signal.Path = "/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second

	cfg.Controller.Quality.Enabled = true
	cfg.Controller.Quality.AdaptiveMode = "balanced"
	cfg.Controller.Quality.MinQuality = "240p"
	cfg.Controller.Quality.MaxQuality = "1080p"
	cfg.Controller.Quality.Cooldown = 10 * time.Second

	cfg.Controller.Layout.Initial = "responsive-grid"
	cfg.Controller.Layout.AfterScreenShare = "responsive-grid"
	cfg.Controller.Layout.MaxVisibleTiles = 25
	cfg.Controller.Layout.MaxStripTiles = 8

	cfg.Controller.Network.HysteresisFactor = 0.15

	cfg.Controller.Breaker.FailureThreshold = 5
	cfg.Controller.Breaker.SuccessThreshold = 1
	cfg.Controller.Breaker.OpenTimeout = 15 * time.Second

	cfg.Monitoring.PrometheusEnabled = true
	cfg.Monitoring.MetricsPath = "/metrics"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing = tracing.DefaultConfig()

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "callpilot:decisions"

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.MessagesPerSecond = 20
	cfg.RateLimiting.Burst = 40

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CALLPILOT_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("CALLPILOT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if mode := os.Getenv("CALLPILOT_ADAPTIVE_MODE"); mode != "" {
		c.Controller.Quality.AdaptiveMode = mode
	}
	if addr := os.Getenv("CALLPILOT_REDIS_ADDRESS"); addr != "" {
		c.Redis.Enabled = true
		c.Redis.Address = addr
	}
}
