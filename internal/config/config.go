package config

import (
	"flag"
	"os"
	"sync"
)

const (
	defaultDatabaseDSN  = "market.db"
	defaultPriceAPIBase = "https://api.coingecko.com/api/v3"
	defaultFXAPIBase    = "https://open.er-api.com/v6"
	defaultLogLevel     = "info"
)

type Config struct {
	BotToken       string
	AdminUsernames string
	DatabaseDSN    string
	PriceAPIBase   string
	FXAPIBase      string
	LogLevel       string
}

var (
	once      sync.Once
	singleton *Config
)

// New returns the process configuration. Flags and environment variables are
// parsed only once; environment variables win over flags.
func New() (*Config, error) {
	once.Do(func() {
		cfg := Config{}

		flag.StringVar(&cfg.DatabaseDSN, "d", defaultDatabaseDSN, "sqlite database path")
		flag.StringVar(&cfg.PriceAPIBase, "p", defaultPriceAPIBase, "crypto price api base url")
		flag.StringVar(&cfg.FXAPIBase, "f", defaultFXAPIBase, "currency fx api base url")
		flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

		flag.Parse()

		cfg.BotToken = os.Getenv("TELEGRAM_APITOKEN")
		cfg.AdminUsernames = os.Getenv("ADMIN_USERNAMES")

		if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
			cfg.DatabaseDSN = dsn
		}
		if base := os.Getenv("PRICE_API_BASE"); base != "" {
			cfg.PriceAPIBase = base
		}
		if base := os.Getenv("FX_API_BASE"); base != "" {
			cfg.FXAPIBase = base
		}
		if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
			cfg.LogLevel = lvl
		}

		singleton = &cfg
	})

	return singleton, nil
}
