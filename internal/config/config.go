package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data   DataConfig   `yaml:"data" mapstructure:"data"`
	Model  ModelConfig  `yaml:"model" mapstructure:"model"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	OneMap OneMapConfig `yaml:"onemap" mapstructure:"onemap"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// DataConfig selects where reference datasets are read from.
type DataConfig struct {
	Dir          string `yaml:"dir" mapstructure:"dir"`
	Source       string `yaml:"source" mapstructure:"source"`                 // "csv" or "postgres"
	EliteTopRows int    `yaml:"elite_top_rows" mapstructure:"elite_top_rows"` // 0 = schema version's rule
}

// ModelConfig pairs a schema version with its trained artifact.
type ModelConfig struct {
	Version      string `yaml:"version" mapstructure:"version"`
	ArtifactPath string `yaml:"artifact_path" mapstructure:"artifact_path"`
	RemoteURL    string `yaml:"remote_url" mapstructure:"remote_url"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures estimate history and the Postgres reference tables.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// OneMapConfig configures the address geocoder.
type OneMapConfig struct {
	BaseURL    string  `yaml:"base_url" mapstructure:"base_url"`
	Email      string  `yaml:"email" mapstructure:"email"`
	Password   string  `yaml:"password" mapstructure:"password"`
	TokenCache string  `yaml:"token_cache" mapstructure:"token_cache"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Retries    int     `yaml:"retries" mapstructure:"retries"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RESALE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.elite_top_rows", 0)
	v.SetDefault("model.version", "v2")
	v.SetDefault("model.artifact_path", "./data/model.yaml")
	v.SetDefault("model.remote_url", "")
	v.SetDefault("model.timeout_secs", 5)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "./estimates.db")
	v.SetDefault("onemap.base_url", "https://developers.onemap.sg")
	v.SetDefault("onemap.email", "")
	v.SetDefault("onemap.password", "")
	v.SetDefault("onemap.token_cache", "")
	v.SetDefault("onemap.rate_limit", 4)
	v.SetDefault("onemap.retries", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
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

// Validate checks the settings a command needs. mode is "estimate", "serve",
// "import" or "check".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Data.Source {
	case "csv":
		if c.Data.Dir == "" {
			errs = append(errs, "data.dir is required")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" && mode != "import" {
			errs = append(errs, "store.database_url is required for data.source=postgres")
		}
	default:
		errs = append(errs, "data.source must be csv or postgres")
	}
	if c.Data.EliteTopRows < 0 {
		errs = append(errs, "data.elite_top_rows must be >= 0")
	}

	switch mode {
	case "estimate", "serve":
		if c.Model.Version == "" {
			errs = append(errs, "model.version is required")
		}
		if c.Model.ArtifactPath == "" {
			errs = append(errs, "model.artifact_path is required")
		}
	case "import":
		if c.Data.Dir == "" {
			errs = append(errs, "data.dir is required")
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be positive")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for store.driver=postgres")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
