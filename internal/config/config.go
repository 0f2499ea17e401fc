package config

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/compare-engine/internal/cost"
	"github.com/sells-group/compare-engine/internal/diff"
	"github.com/sells-group/compare-engine/internal/geo"
	"github.com/sells-group/compare-engine/internal/resilience"
	"github.com/sells-group/compare-engine/internal/source"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig                `yaml:"log" mapstructure:"log"`
	Server    ServerConfig             `yaml:"server" mapstructure:"server"`
	Sources   []source.Spec            `yaml:"sources" mapstructure:"sources"`
	Load      LoadConfig               `yaml:"load" mapstructure:"load"`
	Schema    SchemaConfig             `yaml:"schema" mapstructure:"schema"`
	Viewport  geo.ViewportConfig       `yaml:"viewport" mapstructure:"viewport"`
	Compare   CompareConfig            `yaml:"compare" mapstructure:"compare"`
	Analysis  AnalysisConfig           `yaml:"analysis" mapstructure:"analysis"`
	Anthropic AnthropicConfig          `yaml:"anthropic" mapstructure:"anthropic"`
	Breaker   resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
	Retry     resilience.RetryPolicy   `yaml:"retry" mapstructure:"retry"`
	Session   SessionConfig            `yaml:"session" mapstructure:"session"`
	Cost      cost.Rates               `yaml:"cost" mapstructure:"cost"`
	Cache     CacheConfig              `yaml:"cache" mapstructure:"cache"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// LoadConfig controls how sources are read.
type LoadConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// SchemaConfig selects the domain schema and optional override files.
type SchemaConfig struct {
	Type string `yaml:"type" mapstructure:"type"`
	Path string `yaml:"path" mapstructure:"path"`
}

// CompareConfig configures the diff engine.
type CompareConfig struct {
	ExcludePattern string `yaml:"exclude_pattern" mapstructure:"exclude_pattern"`
	// MaxFields caps the differences sent in analysis prompts; 0 keeps all.
	MaxFields int `yaml:"max_fields" mapstructure:"max_fields"`
}

// Analysis backends.
const (
	BackendAuto      = "auto"
	BackendAnthropic = "anthropic"
	BackendEndpoint  = "endpoint"
	BackendLocal     = "local"
)

// AnalysisConfig selects and tunes the comparison text backend.
type AnalysisConfig struct {
	Backend     string        `yaml:"backend" mapstructure:"backend"`
	EndpointURL string        `yaml:"endpoint_url" mapstructure:"endpoint_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
}

// CacheConfig enables the Redis analysis cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr     string        `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// SessionConfig bounds in-memory selection sessions.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPARE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	vp := geo.DefaultViewportConfig()
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("load.concurrency", 4)
	v.SetDefault("schema.type", "solar_developer")
	v.SetDefault("schema.path", "")
	v.SetDefault("viewport.default_lat", vp.DefaultLat)
	v.SetDefault("viewport.default_lng", vp.DefaultLng)
	v.SetDefault("viewport.default_zoom", vp.DefaultZoom)
	v.SetDefault("viewport.point_zoom", vp.PointZoom)
	v.SetDefault("viewport.max_zoom", vp.MaxZoom)
	v.SetDefault("viewport.padding_ratio", vp.PaddingRatio)
	v.SetDefault("viewport.padding_pixels", vp.PaddingPixels)
	v.SetDefault("viewport.min_span_deg", vp.MinSpanDeg)
	v.SetDefault("viewport.map_width", vp.MapWidth)
	v.SetDefault("viewport.map_height", vp.MapHeight)
	v.SetDefault("compare.exclude_pattern", diff.DefaultExcludePattern)
	v.SetDefault("compare.max_fields", 40)
	v.SetDefault("analysis.backend", BackendAuto)
	v.SetDefault("analysis.endpoint_url", "")
	v.SetDefault("analysis.timeout", "30s")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.cooldown", "30s")
	v.SetDefault("breaker.probes", 1)
	v.SetDefault("retry.attempts", 3)
	v.SetDefault("retry.base", "500ms")
	v.SetDefault("retry.max", "10s")
	v.SetDefault("retry.factor", 2.0)
	v.SetDefault("retry.jitter", 0.25)
	v.SetDefault("session.idle_timeout", "2h")
	v.SetDefault("session.sweep_interval", "5m")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.ttl", "24h")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// AnalysisBackend resolves "auto" (or empty) to anthropic when a key is set,
// then endpoint when a URL is set, else local.
func (c *Config) AnalysisBackend() string {
	b := strings.ToLower(strings.TrimSpace(c.Analysis.Backend))
	if b != "" && b != BackendAuto {
		return b
	}
	switch {
	case c.Anthropic.Key != "":
		return BackendAnthropic
	case c.Analysis.EndpointURL != "":
		return BackendEndpoint
	default:
		return BackendLocal
	}
}

// Validate checks the settings a mode depends on. Modes: "serve" runs the
// API, "query" runs one-shot CLI commands against the sources.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
	case "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(c.Sources) == 0 {
		errs = append(errs, "at least one entry in sources is required")
	}
	for i, s := range c.Sources {
		if s.Path == "" && s.URL == "" {
			errs = append(errs, "sources["+strconv.Itoa(i)+"] needs a path or url")
		}
	}
	if c.Cache.RedisDB < 0 {
		errs = append(errs, "cache.redis_db must be >= 0")
	}
	if c.Load.Concurrency < 0 {
		errs = append(errs, "load.concurrency must be >= 0")
	}

	if _, err := regexp.Compile(c.Compare.ExcludePattern); err != nil {
		errs = append(errs, "compare.exclude_pattern does not compile: "+err.Error())
	}

	vp := c.Viewport
	if vp.MaxZoom <= 0 {
		errs = append(errs, "viewport.max_zoom must be > 0")
	}
	if vp.DefaultZoom < 0 || vp.DefaultZoom > vp.MaxZoom {
		errs = append(errs, "viewport.default_zoom must be between 0 and viewport.max_zoom")
	}
	if vp.PointZoom < 0 || vp.PointZoom > vp.MaxZoom {
		errs = append(errs, "viewport.point_zoom must be between 0 and viewport.max_zoom")
	}
	if vp.DefaultLat < -90 || vp.DefaultLat > 90 || vp.DefaultLng < -180 || vp.DefaultLng > 180 {
		errs = append(errs, "viewport default center is out of range")
	}
	if vp.PaddingRatio < 0 {
		errs = append(errs, "viewport.padding_ratio must be >= 0")
	}

	switch c.AnalysisBackend() {
	case BackendAnthropic:
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required for the anthropic backend")
		}
	case BackendEndpoint:
		if c.Analysis.EndpointURL == "" {
			errs = append(errs, "analysis.endpoint_url is required for the endpoint backend")
		}
	case BackendLocal:
	default:
		errs = append(errs, "analysis.backend must be one of auto, anthropic, endpoint, local")
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
