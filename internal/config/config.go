package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/recon-cli/internal/policy"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig       `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Oracle     OracleConfig      `yaml:"oracle" mapstructure:"oracle"`
	Executor   ExecutorConfig    `yaml:"executor" mapstructure:"executor"`
	Thresholds policy.Thresholds `yaml:"thresholds" mapstructure:"thresholds"`
	Server     ServerConfig      `yaml:"server" mapstructure:"server"`
	Log        LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the Claude oracle.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	// MaxSources caps how many source values go into one batch prompt.
	MaxSources int `yaml:"max_sources" mapstructure:"max_sources"`
}

// OracleConfig selects the equivalence oracle and how calls to it are
// guarded.
type OracleConfig struct {
	Provider            string  `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec          float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst               int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts         int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs           int     `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	MaxBackoffMs        int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int     `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// ExecutorConfig bounds a reconciliation run.
type ExecutorConfig struct {
	BatchSize   int `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	// RunTimeoutSecs caps a whole run; 0 means no cap.
	RunTimeoutSecs int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
}

// ServerConfig configures the session API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	th := policy.Default()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "recon.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.max_sources", 100)
	v.SetDefault("oracle.provider", "claude")
	v.SetDefault("oracle.timeout_secs", 60)
	v.SetDefault("oracle.rate_per_sec", 2.0)
	v.SetDefault("oracle.burst", 3)
	v.SetDefault("oracle.max_attempts", 3)
	v.SetDefault("oracle.backoff_ms", 500)
	v.SetDefault("oracle.max_backoff_ms", 10000)
	v.SetDefault("oracle.breaker_threshold", 5)
	v.SetDefault("oracle.breaker_cooldown_secs", 30)
	v.SetDefault("executor.batch_size", 5)
	v.SetDefault("executor.concurrency", 3)
	v.SetDefault("executor.run_timeout_secs", 0)
	v.SetDefault("thresholds.exact_tolerance", th.ExactTolerance)
	v.SetDefault("thresholds.near_tolerance", th.NearTolerance)
	v.SetDefault("thresholds.confidence_floor", th.ConfidenceFloor)
	v.SetDefault("thresholds.high_risk_ratio", th.HighRiskRatio)
	v.SetDefault("thresholds.medium_risk_ratio", th.MediumRiskRatio)
	v.SetDefault("thresholds.accuracy_target", th.AccuracyTarget)
	v.SetDefault("thresholds.coverage_target", th.CoverageTarget)
	v.SetDefault("thresholds.recommendation_min_count", th.RecommendationMinCount)
	v.SetDefault("thresholds.confirm_boost", th.ConfirmBoost)
	v.SetDefault("thresholds.edit_reset_confidence", th.EditResetConfidence)
	v.SetDefault("thresholds.candidate_floor", th.CandidateFloor)
	v.SetDefault("thresholds.tie_epsilon", th.TieEpsilon)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Thresholds = cfg.Thresholds.WithDefaults()

	return &cfg, nil
}

// Validate checks the keys a command needs. mode is "reconcile" (anything
// that may call the oracle), "serve", or "store" (store-only commands).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}

	if mode == "reconcile" || mode == "serve" {
		switch c.Oracle.Provider {
		case "claude":
			if c.Anthropic.Key == "" {
				problems = append(problems, "anthropic.key is required for the claude oracle")
			}
		case "heuristic":
		default:
			problems = append(problems, fmt.Sprintf("oracle.provider %q is not supported", c.Oracle.Provider))
		}
		if c.Executor.BatchSize <= 0 {
			problems = append(problems, "executor.batch_size must be positive")
		}
		if c.Executor.Concurrency <= 0 {
			problems = append(problems, "executor.concurrency must be positive")
		}
		t := c.Thresholds
		if t.ExactTolerance > t.NearTolerance {
			problems = append(problems, "thresholds.exact_tolerance must not exceed thresholds.near_tolerance")
		}
		if t.ConfidenceFloor > 1 {
			problems = append(problems, "thresholds.confidence_floor must be at most 1")
		}
	}

	if mode == "serve" && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		problems = append(problems, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
