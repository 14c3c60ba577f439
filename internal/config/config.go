package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database       DatabaseConfig
	Server         ServerConfig
	App            AppConfig
	Ledger         LedgerConfig
	Oracle         OracleConfig
	Settlement     SettlementConfig
	Reconciliation ReconciliationConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret string
}

// LedgerConfig holds external token service settings. Amounts are atomic
// units (1 token = 100,000 atomic units).
type LedgerConfig struct {
	Network          string
	TokenMintAddress string
	SigningKey       string
	TreasuryAddress  string
	MinTransfer      int64
	MaxTransfer      int64
	BatchSize        int
	QueryTimeout     time.Duration
	TransferTimeout  time.Duration

	RetryMaxAttempts       int
	RetryBaseDelay         time.Duration
	RetryMaxDelay          time.Duration
	RetryBackoffMultiplier float64

	BreakerFailureThreshold int
	BreakerTimeout          time.Duration
}

// OracleConfig holds sports-results provider settings
type OracleConfig struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
}

// SettlementConfig holds settlement engine settings
type SettlementConfig struct {
	CreatorRewardPct  float64
	PlatformFeePct    float64
	MaxEntriesPerUser int
	SweepInterval     time.Duration
}

// ReconciliationConfig holds balance reconciliation settings
type ReconciliationConfig struct {
	Tolerance     int64
	SweepInterval time.Duration
	SweepRate     float64
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "matchpool"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		App: AppConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Ledger: LedgerConfig{
			Network:          getEnv("LEDGER_NETWORK", "devnet"),
			TokenMintAddress: getEnv("LEDGER_TOKEN_MINT", ""),
			SigningKey:       getEnv("LEDGER_SIGNING_KEY", ""),
			TreasuryAddress:  getEnv("LEDGER_TREASURY_ADDRESS", ""),
			MinTransfer:      getEnvInt64("LEDGER_MIN_TRANSFER", 1),
			MaxTransfer:      getEnvInt64("LEDGER_MAX_TRANSFER", 10_000_000_000),
			BatchSize:        getEnvInt("LEDGER_BATCH_SIZE", 10),
			QueryTimeout:     getEnvDuration("LEDGER_QUERY_TIMEOUT", 10*time.Second),
			TransferTimeout:  getEnvDuration("LEDGER_TRANSFER_TIMEOUT", 45*time.Second),

			RetryMaxAttempts:       getEnvInt("LEDGER_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelay:         getEnvDuration("LEDGER_RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:          getEnvDuration("LEDGER_RETRY_MAX_DELAY", 10*time.Second),
			RetryBackoffMultiplier: getEnvFloat("LEDGER_RETRY_MULTIPLIER", 2.0),

			BreakerFailureThreshold: getEnvInt("LEDGER_BREAKER_THRESHOLD", 5),
			BreakerTimeout:          getEnvDuration("LEDGER_BREAKER_TIMEOUT", 30*time.Second),
		},
		Oracle: OracleConfig{
			BaseURL:           getEnv("ORACLE_BASE_URL", "https://api.football-data.org/v4"),
			APIKey:            getEnv("ORACLE_API_KEY", ""),
			RequestsPerSecond: getEnvFloat("ORACLE_RATE", 5),
		},
		Settlement: SettlementConfig{
			CreatorRewardPct:  getEnvFloat("CREATOR_REWARD_PCT", 0.02),
			PlatformFeePct:    getEnvFloat("PLATFORM_FEE_PCT", 0.03),
			MaxEntriesPerUser: getEnvInt("MAX_ENTRIES_PER_USER", 3),
			SweepInterval:     getEnvDuration("SETTLEMENT_SWEEP_INTERVAL", 1*time.Minute),
		},
		Reconciliation: ReconciliationConfig{
			Tolerance:     getEnvInt64("RECONCILIATION_TOLERANCE", 0),
			SweepInterval: getEnvDuration("RECONCILIATION_SWEEP_INTERVAL", 15*time.Minute),
			SweepRate:     getEnvFloat("RECONCILIATION_SWEEP_RATE", 2),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Settlement.CreatorRewardPct < 0 || config.Settlement.PlatformFeePct < 0 ||
		config.Settlement.CreatorRewardPct+config.Settlement.PlatformFeePct >= 1 {
		return nil, fmt.Errorf("invalid fee percentages: creator=%f platform=%f",
			config.Settlement.CreatorRewardPct, config.Settlement.PlatformFeePct)
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
