package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/cropsense/internal/agro"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = eris.New("config: invalid")

// Config holds the full application configuration.
type Config struct {
	Rasters  RastersConfig  `yaml:"rasters" mapstructure:"rasters"`
	Classify ClassifyConfig `yaml:"classify" mapstructure:"classify"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// RastersConfig locates the layers. Catalog, when set, is a YAML manifest;
// otherwise the default file names are looked up in DataDir.
type RastersConfig struct {
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`
	Catalog string `yaml:"catalog" mapstructure:"catalog"`
}

// ClassifyConfig holds the NDVI encoding and stage thresholds.
type ClassifyConfig struct {
	NDVIScale        float64 `yaml:"ndvi_scale" mapstructure:"ndvi_scale"`
	EarlyMax         float64 `yaml:"early_max" mapstructure:"early_max"`
	ActiveMax        float64 `yaml:"active_max" mapstructure:"active_max"`
	NeighborFallback bool    `yaml:"neighbor_fallback" mapstructure:"neighbor_fallback"`
}

// Thresholds returns the stage thresholds.
func (c ClassifyConfig) Thresholds() agro.Thresholds {
	return agro.Thresholds{EarlyMax: c.EarlyMax, ActiveMax: c.ActiveMax}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	RateLimit      float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests/sec per client, 0 disables
	Burst          int      `yaml:"burst" mapstructure:"burst"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// BatchConfig configures batch runs.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig selects the outcome history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // none, sqlite, postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// FetchConfig configures dataset downloads.
type FetchConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int `yaml:"max_retries" mapstructure:"max_retries"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var storeDrivers = []string{"none", "sqlite", "postgres"}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// Optional .env; real environment variables win.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CROPSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("rasters.data_dir", "data")
	v.SetDefault("rasters.catalog", "")
	v.SetDefault("classify.ndvi_scale", agro.DefaultNDVIScale)
	v.SetDefault("classify.early_max", agro.DefaultEarlyMax)
	v.SetDefault("classify.active_max", agro.DefaultActiveMax)
	v.SetDefault("classify.neighbor_fallback", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Modes accepted by Validate; one per command that needs configuration.
const (
	ModeServe   = "serve"
	ModeSample  = "sample"
	ModeBatch   = "batch"
	ModeLayers  = "layers"
	ModeHistory = "history"
)

// Validate checks the settings a command needs. All problems are reported
// together in one error wrapping ErrInvalid.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case ModeServe, ModeSample, ModeBatch:
		problems = append(problems, c.validateClassify()...)
		if c.Rasters.DataDir == "" && c.Rasters.Catalog == "" {
			problems = append(problems, "one of rasters.data_dir or rasters.catalog is required")
		}
	case ModeLayers:
		if c.Rasters.DataDir == "" && c.Rasters.Catalog == "" {
			problems = append(problems, "one of rasters.data_dir or rasters.catalog is required")
		}
		if c.Fetch.TimeoutSecs <= 0 {
			problems = append(problems, "fetch.timeout_secs must be > 0")
		}
		if c.Fetch.MaxRetries < 0 {
			problems = append(problems, "fetch.max_retries must be >= 0")
		}
	case ModeHistory:
		if c.Store.Driver == "none" {
			problems = append(problems, "store.driver must be sqlite or postgres to read history")
		}
	default:
		return eris.Wrapf(ErrInvalid, "unknown mode %q", mode)
	}

	if mode == ModeServe {
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimit < 0 || c.Server.Burst < 0 {
			problems = append(problems, "server.rate_limit and server.burst must be >= 0")
		}
	}
	if mode == ModeBatch && (c.Batch.Concurrency < 1 || c.Batch.Concurrency > 256) {
		problems = append(problems, "batch.concurrency must be between 1 and 256")
	}

	if !slices.Contains(storeDrivers, c.Store.Driver) {
		problems = append(problems, fmt.Sprintf("store.driver %q must be one of %s", c.Store.Driver, strings.Join(storeDrivers, ", ")))
	} else if c.Store.Driver != "none" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	if len(problems) > 0 {
		return eris.Wrap(ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) validateClassify() []string {
	var problems []string
	if c.Classify.NDVIScale <= 0 {
		problems = append(problems, fmt.Sprintf("classify.ndvi_scale must be > 0, got %v", c.Classify.NDVIScale))
	}
	if err := c.Classify.Thresholds().Validate(); err != nil {
		problems = append(problems, "classify.early_max and classify.active_max must satisfy 0 <= early_max < active_max <= 1")
	}
	return problems
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
