package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mathquest-quiz-service/internal/domain"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Mode string `yaml:"mode"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		Lives        int    `yaml:"lives"`
		EasySeconds  int    `yaml:"easySeconds"`
		MediumSecs   int    `yaml:"mediumSeconds"`
		HardSeconds  int    `yaml:"hardSeconds"`
		BankCacheTTL string `yaml:"bankCacheTtl"`
	} `yaml:"quiz"`
	Resilience struct {
		Database BreakerConfig `yaml:"database"`
		Network  BreakerConfig `yaml:"network"`
	} `yaml:"resilience"`
}

type BreakerConfig struct {
	FailureThreshold int    `yaml:"failureThreshold"`
	RecoveryTimeout  string `yaml:"recoveryTimeout"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Duration parses a duration string or returns the fallback if empty or
// malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Lives returns the configured life count, defaulting to three.
func (c Config) Lives() int {
	if c.Quiz.Lives > 0 {
		return c.Quiz.Lives
	}
	return 3
}

// TimeLimitSeconds returns the per-question limit for a difficulty.
func (c Config) TimeLimitSeconds(d domain.Difficulty) int {
	pick := func(configured, fallback int) int {
		if configured > 0 {
			return configured
		}
		return fallback
	}
	switch d {
	case domain.DifficultyMedium:
		return pick(c.Quiz.MediumSecs, 12)
	case domain.DifficultyHard:
		return pick(c.Quiz.HardSeconds, 10)
	default:
		return pick(c.Quiz.EasySeconds, 15)
	}
}

// DatabaseBreaker returns the database-class breaker settings with the
// documented defaults of 3 failures / 30s recovery.
func (c Config) DatabaseBreaker() (int, time.Duration) {
	threshold := c.Resilience.Database.FailureThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return threshold, Duration(c.Resilience.Database.RecoveryTimeout, 30*time.Second)
}

// NetworkBreaker returns the network-class breaker settings with the
// documented defaults of 5 failures / 60s recovery.
func (c Config) NetworkBreaker() (int, time.Duration) {
	threshold := c.Resilience.Network.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return threshold, Duration(c.Resilience.Network.RecoveryTimeout, time.Minute)
}
