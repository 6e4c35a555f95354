package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"traderiser/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Trading Parameters
	DefaultLeverage    int
	BalanceClampFactor float64 // Share of a subscriber's balance a copied trade may consume

	// Simulation
	PriceSeed    int64 // 0 = time-seeded
	EvalInterval time.Duration

	// Reference data
	PairsFile string

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // "std" or "zap"
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Trading Parameters
	cfg.DefaultLeverage, err = getEnvAsIntRequired("DEFAULT_LEVERAGE", 500)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid DEFAULT_LEVERAGE: %v", err))
	} else if cfg.DefaultLeverage <= 0 {
		errs = append(errs, "DEFAULT_LEVERAGE must be positive")
	}

	cfg.BalanceClampFactor, err = getEnvAsFloatRequired("BALANCE_CLAMP_FACTOR", 0.95)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BALANCE_CLAMP_FACTOR: %v", err))
	} else if cfg.BalanceClampFactor <= 0 || cfg.BalanceClampFactor > 1 {
		errs = append(errs, "BALANCE_CLAMP_FACTOR must be between 0.0 (exclusive) and 1.0")
	}

	// Simulation
	cfg.PriceSeed = int64(getEnvAsInt("PRICE_SEED", 0))

	evalIntervalSeconds, err := getEnvAsIntRequired("EVAL_INTERVAL_SECONDS", 30)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EVAL_INTERVAL_SECONDS: %v", err))
	} else if evalIntervalSeconds <= 0 {
		errs = append(errs, "EVAL_INTERVAL_SECONDS must be positive")
	}
	cfg.EvalInterval = time.Duration(evalIntervalSeconds) * time.Second

	// Reference data
	cfg.PairsFile = getEnv("PAIRS_FILE", "./pairs.yaml")
	if cfg.PairsFile == "" {
		errs = append(errs, "PAIRS_FILE must be set")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/traderiser.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "std"))
	if cfg.LogFormat != "std" && cfg.LogFormat != "zap" {
		errs = append(errs, fmt.Sprintf("invalid LOG_FORMAT '%s' (want 'std' or 'zap')", cfg.LogFormat))
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Log warning? For non-required fields, default is often acceptable.
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
