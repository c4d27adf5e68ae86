package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the trader process.
type Config struct {
	Port string

	// Longport brokerage
	LongportBaseURL     string
	LongportPushURL     string
	LongportAppKey      string
	LongportAppSecret   string
	LongportAccessToken string

	// Trade API ceiling
	TradeCallsPerWindow int
	TradeWindowSeconds  int

	// Paths
	TradingConfigPath    string
	StrategiesConfigPath string
	AuditDBPath          string

	// Feed
	QuotePollMs int
	UseMockFeed bool

	// Auth
	JWTSecret string
	APIKey    string

	// Localization of cooldown day boundaries, e.g. "Asia/Hong_Kong".
	Timezone string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:                 getEnv("PORT", "8080"),
		LongportBaseURL:      getEnv("LONGPORT_BASE_URL", "https://openapi.longportapp.com"),
		LongportPushURL:      getEnv("LONGPORT_PUSH_URL", "wss://openapi-push.longportapp.com/v2"),
		LongportAppKey:       os.Getenv("LONGPORT_APP_KEY"),
		LongportAppSecret:    os.Getenv("LONGPORT_APP_SECRET"),
		LongportAccessToken:  os.Getenv("LONGPORT_ACCESS_TOKEN"),
		TradeCallsPerWindow:  getEnvInt("TRADE_CALLS_PER_WINDOW", 30),
		TradeWindowSeconds:   getEnvInt("TRADE_WINDOW_SECONDS", 30),
		TradingConfigPath:    getEnv("TRADING_CONFIG_PATH", "./config/trading.yaml"),
		StrategiesConfigPath: getEnv("STRATEGIES_CONFIG_PATH", "./config/strategies.yaml"),
		AuditDBPath:          getEnv("AUDIT_DB_PATH", "./data/audit.db"),
		QuotePollMs:          getEnvInt("QUOTE_POLL_MS", 1000),
		UseMockFeed:          getEnv("USE_MOCK_FEED", "false") == "true",
		JWTSecret:            getEnv("JWT_SECRET", "dev-secret"),
		APIKey:               os.Getenv("API_KEY"),
		Timezone:             getEnv("TIMEZONE", "Asia/Hong_Kong"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
