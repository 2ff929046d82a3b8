package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application settings. Values come from defaults, an
// optional yaml file, and SCREENING_* environment variables, in that order.
type Config struct {
	ListenAddr string `mapstructure:"listen-addr"`
	ReportsDir string `mapstructure:"reports-dir"`

	Google  GoogleConfig   `mapstructure:"google"`
	Gmail   GmailConfig    `mapstructure:"gmail"`
	Scoring ScoringConfig  `mapstructure:"scoring"`
	Role    RoleConfig     `mapstructure:"role"`
	Review  ReviewConfig   `mapstructure:"review"`
	Store   StoreConfig    `mapstructure:"store"`
	Pipe    PipelineConfig `mapstructure:"pipeline"`
}

type GoogleConfig struct {
	Project        string `mapstructure:"project"`
	Location       string `mapstructure:"location"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
}

type GmailConfig struct {
	CredentialsFile string `mapstructure:"credentials-file"`
	TokenFile       string `mapstructure:"token-file"`
}

// ScoringConfig carries the score weights. SemanticWeight + KeywordWeight +
// ExperienceWeight should not exceed 100; the total is clamped regardless.
type ScoringConfig struct {
	SemanticWeight   float64 `mapstructure:"semantic-weight"`
	KeywordWeight    float64 `mapstructure:"keyword-weight"`
	ExperienceWeight float64 `mapstructure:"experience-weight"`
	DefaultReqYears  float64 `mapstructure:"default-required-years"`
	SkillThreshold   float64 `mapstructure:"skill-match-threshold"`
}

type RoleConfig struct {
	MatchThreshold float64 `mapstructure:"match-threshold"`
}

type ReviewConfig struct {
	Cap         int           `mapstructure:"cap"`
	MaxRetries  int           `mapstructure:"max-retries"`
	BackoffBase time.Duration `mapstructure:"backoff-base"`
	MinInterval time.Duration `mapstructure:"min-interval"`
}

type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type PipelineConfig struct {
	Workers     int           `mapstructure:"workers"`
	DefaultTopN int           `mapstructure:"default-top-n"`
	JobTimeout  time.Duration `mapstructure:"job-timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen-addr", ":8080")
	v.SetDefault("reports-dir", "Reports")

	v.SetDefault("google.location", "us-central1")
	v.SetDefault("google.model", "gemini-1.5-flash")
	v.SetDefault("google.embedding-model", "text-embedding-004")

	v.SetDefault("gmail.credentials-file", "credentials.json")
	v.SetDefault("gmail.token-file", "token.json")

	v.SetDefault("scoring.semantic-weight", 40.0)
	v.SetDefault("scoring.keyword-weight", 30.0)
	v.SetDefault("scoring.experience-weight", 30.0)
	v.SetDefault("scoring.default-required-years", 2.0)
	v.SetDefault("scoring.skill-match-threshold", 0.45)

	v.SetDefault("role.match-threshold", 0.6)

	v.SetDefault("review.cap", 15)
	v.SetDefault("review.max-retries", 3)
	v.SetDefault("review.backoff-base", 2*time.Second)
	v.SetDefault("review.min-interval", time.Second)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.path", "jobs.db")

	v.SetDefault("pipeline.workers", 5)
	v.SetDefault("pipeline.default-top-n", 5)
	v.SetDefault("pipeline.job-timeout", 15*time.Minute)
}

// Load reads configuration from the given file (optional) plus environment.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("SCREENING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName("screening-agent")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Scoring.SemanticWeight+c.Scoring.KeywordWeight+c.Scoring.ExperienceWeight > 100 {
		return fmt.Errorf("scoring weights sum above 100: %.0f",
			c.Scoring.SemanticWeight+c.Scoring.KeywordWeight+c.Scoring.ExperienceWeight)
	}
	if c.Review.Cap <= 0 {
		return fmt.Errorf("review.cap must be positive, got %d", c.Review.Cap)
	}
	if c.Pipe.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipe.Workers)
	}
	switch c.Store.Backend {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}
	return nil
}
