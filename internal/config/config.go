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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Review    ReviewConfig    `yaml:"review" mapstructure:"review"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Selection SelectionConfig `yaml:"selection" mapstructure:"selection"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ReviewConfig holds the screening criteria of the review protocol.
type ReviewConfig struct {
	Languages        []string `yaml:"languages" mapstructure:"languages"`
	YearMin          int      `yaml:"year_min" mapstructure:"year_min"`
	YearMax          int      `yaml:"year_max" mapstructure:"year_max"`
	MinAbstractWords int      `yaml:"min_abstract_words" mapstructure:"min_abstract_words"`
}

// DedupConfig tunes the near-duplicate detector. The thresholds trade
// precision against recall; perfect duplicate recall is not a goal.
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	FuzzyThreshold      float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	MinTitleTokens      int     `yaml:"min_title_tokens" mapstructure:"min_title_tokens"`
	BlockPrefixTokens   int     `yaml:"block_prefix_tokens" mapstructure:"block_prefix_tokens"`
	Workers             int     `yaml:"workers" mapstructure:"workers"`
}

// SelectionConfig configures the eligibility decision.
type SelectionConfig struct {
	InclusionThreshold float64 `yaml:"inclusion_threshold" mapstructure:"inclusion_threshold"`
}

// ScorerConfig configures the relevance scorer.
type ScorerConfig struct {
	LexiconPath string `yaml:"lexicon_path" mapstructure:"lexicon_path"`
}

// ExportConfig configures snapshot exports.
type ExportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the read-only stats API.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
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
	v.SetEnvPrefix("REVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "review.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("review.languages", []string{"en"})
	v.SetDefault("review.year_min", 2015)
	v.SetDefault("review.year_max", 2025)
	v.SetDefault("review.min_abstract_words", 50)
	v.SetDefault("dedup.similarity_threshold", 0.9)
	v.SetDefault("dedup.fuzzy_threshold", 0.95)
	v.SetDefault("dedup.min_title_tokens", 3)
	v.SetDefault("dedup.block_prefix_tokens", 2)
	v.SetDefault("dedup.workers", 4)
	v.SetDefault("selection.inclusion_threshold", 4.0)
	v.SetDefault("export.dir", "exports")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20)

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

// Validate checks that the configured thresholds are usable.
func (c *Config) Validate() error {
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return eris.Errorf("config: dedup.similarity_threshold must be in (0,1] (got %v)", c.Dedup.SimilarityThreshold)
	}
	if c.Dedup.FuzzyThreshold <= 0 || c.Dedup.FuzzyThreshold > 1 {
		return eris.Errorf("config: dedup.fuzzy_threshold must be in (0,1] (got %v)", c.Dedup.FuzzyThreshold)
	}
	if c.Selection.InclusionThreshold < 0 || c.Selection.InclusionThreshold > 10 {
		return eris.Errorf("config: selection.inclusion_threshold must be in [0,10] (got %v)", c.Selection.InclusionThreshold)
	}
	if c.Review.YearMin > c.Review.YearMax {
		return eris.Errorf("config: review.year_min %d exceeds year_max %d", c.Review.YearMin, c.Review.YearMax)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
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
