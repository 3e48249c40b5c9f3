package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/webclinic017/GDA-v2/pkg/crypto"
)

// Config holds environment-driven settings for the bot process.
// Strategy parameters live in a separate YAML file (see Params).
type Config struct {
	Port      string
	EnableAPI bool

	// Binance Futures (USDT)
	BinanceTestnet    bool
	BinanceUSDTKey    string
	BinanceUSDTSecret string

	// Telegram
	TelegramToken       string
	TelegramChatIDs     []string // all users
	TelegramOperatorIDs []string // dev / operator users

	// Execution
	DryRun bool

	// Files
	ParamsPath string
	LedgerPath string
	DataDir    string
	DBPath     string

	// Run mode: "schedule" (default), "once" or "status"
	RunMode string

	// Auth for the status API
	JWTSecret        string
	APIPasswordHash  string
	APIRequestsPerS  float64
	APIRequestsBurst int

	// Localization
	Language string // "en" or "zh"
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the bot still starts when .env is missing.
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		Port:                getEnv("PORT", "8080"),
		EnableAPI:           getEnv("ENABLE_API", "false") == "true",
		BinanceTestnet:      getEnv("BINANCE_TESTNET", "false") == "true",
		BinanceUSDTKey:      os.Getenv("BINANCE_USDT_KEY"),
		BinanceUSDTSecret:   os.Getenv("BINANCE_USDT_SECRET"),
		TelegramToken:       os.Getenv("TELEGRAM_TOKEN"),
		TelegramChatIDs:     splitAndTrim(os.Getenv("TELEGRAM_CHAT_IDS")),
		TelegramOperatorIDs: splitAndTrim(os.Getenv("TELEGRAM_OPERATOR_IDS")),
		DryRun:              getEnv("DRY_RUN", "false") == "true",
		ParamsPath:          getEnv("PARAMS_PATH", "./params.yaml"),
		LedgerPath:          getEnv("LEDGER_PATH", dataDir+"/positions.json"),
		DataDir:             dataDir,
		DBPath:              getEnv("DB_PATH", dataDir+"/journal.db"),
		RunMode:             strings.ToLower(getEnv("RUN_MODE", "schedule")),
		JWTSecret:           getEnv("JWT_SECRET", "dev-secret"),
		APIPasswordHash:     os.Getenv("API_PASSWORD_HASH"),
		APIRequestsPerS:     getEnvFloat("API_RATE_LIMIT", 20),
		APIRequestsBurst:    getEnvInt("API_RATE_BURST", 50),
		Language:            getEnv("LANGUAGE", "en"),
	}, nil
}

// Unseal replaces sealed secrets with their plaintext. The keyring is only
// loaded when at least one value is sealed.
func (c *Config) Unseal() error {
	fields := map[string]*string{
		"BINANCE_USDT_KEY":    &c.BinanceUSDTKey,
		"BINANCE_USDT_SECRET": &c.BinanceUSDTSecret,
		"TELEGRAM_TOKEN":      &c.TelegramToken,
		"JWT_SECRET":          &c.JWTSecret,
	}
	var keys *crypto.Keyring
	for name, ptr := range fields {
		if !crypto.IsSealed(*ptr) {
			continue
		}
		if keys == nil {
			k, err := crypto.LoadKeyring()
			if err != nil {
				return err
			}
			keys = k
		}
		plain, err := keys.Open(*ptr)
		if err != nil {
			return fmt.Errorf("unseal %s: %w", name, err)
		}
		*ptr = plain
	}
	return nil
}

// OperatorChats returns the operator chat ids, falling back to all users.
func (c *Config) OperatorChats() []string {
	if len(c.TelegramOperatorIDs) > 0 {
		return c.TelegramOperatorIDs
	}
	return c.TelegramChatIDs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitAndTrim(val string) []string {
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
