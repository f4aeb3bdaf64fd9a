package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// #region config
// Config holds everything the binaries read from the environment.
type Config struct {
	DBPath          string        `validate:"required"`
	CodecAddr       string        `validate:"required,hostname_port"`
	PatternKBPath   string        `validate:"required"`
	JudgeTimeout    time.Duration `validate:"gt=0"`
	PassThreshold   float64       `validate:"gte=0,lte=10"`
	LogLevel        string        `validate:"oneof=debug info warn warning error"`
	LogFormat       string        `validate:"oneof=text json"`
	LearningEnabled bool
	SeedFile        string
	MinPatternUses  int    `validate:"gte=0"`
	MetricsAddr     string `validate:"omitempty,hostname_port"`
}
// #endregion config

// #region load
// Load reads a .env file if one exists, then the environment. Unset variables
// take their defaults; malformed ones are an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBPath:        getEnvOrDefault("ADAPTIVE_DB", "adaptive_eval.db"),
		CodecAddr:     getEnvOrDefault("CODEC_ADDR", "localhost:50051"),
		PatternKBPath: getEnvOrDefault("PATTERN_KB_PATH", "data/patterns.json"),
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     getEnvOrDefault("LOG_FORMAT", "text"),
		SeedFile:      os.Getenv("SEED_FILE"),
		MetricsAddr:   os.Getenv("METRICS_ADDR"),
	}

	var err error
	if cfg.JudgeTimeout, err = time.ParseDuration(getEnvOrDefault("JUDGE_TIMEOUT", "60s")); err != nil {
		return nil, fmt.Errorf("JUDGE_TIMEOUT: %w", err)
	}
	if cfg.PassThreshold, err = strconv.ParseFloat(getEnvOrDefault("PASS_THRESHOLD", "7.0"), 64); err != nil {
		return nil, fmt.Errorf("PASS_THRESHOLD: %w", err)
	}
	if cfg.LearningEnabled, err = strconv.ParseBool(getEnvOrDefault("LEARNING_ENABLED", "true")); err != nil {
		return nil, fmt.Errorf("LEARNING_ENABLED: %w", err)
	}
	if cfg.MinPatternUses, err = strconv.Atoi(getEnvOrDefault("MIN_PATTERN_USES", "3")); err != nil {
		return nil, fmt.Errorf("MIN_PATTERN_USES: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
// #endregion load
