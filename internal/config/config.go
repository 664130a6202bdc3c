// Package config содержит логику чтения конфигурации сервиса продаж бинго-карточек.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/bingo-sales/internal/commission"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	NATSURL     string `env:"NATS_URL"`
	AuthSecret  string `env:"AUTH_SECRET"`
	// AuthDisabled отключает проверку токенов. Без секрета сервис запускается только с этим флагом.
	AuthDisabled bool `env:"AUTH_DISABLED"`

	CommissionScheme            string          `env:"COMMISSION_SCHEME" envDefault:"flat"`
	CommissionFlatFee           decimal.Decimal `env:"COMMISSION_FLAT_FEE" envDefault:"3"`
	CommissionLeaderOnSubseller bool            `env:"COMMISSION_LEADER_ON_SUBSELLER" envDefault:"false"`
	CommissionSellerRate        decimal.Decimal `env:"COMMISSION_SELLER_RATE" envDefault:"0.25"`
	CommissionLeaderRate        decimal.Decimal `env:"COMMISSION_LEADER_RATE" envDefault:"0.10"`
	CommissionSubleaderRate     decimal.Decimal `env:"COMMISSION_SUBLEADER_RATE" envDefault:"0.10"`

	DefaultSaleAmount decimal.Decimal `env:"DEFAULT_SALE_AMOUNT" envDefault:"20"`
	CounterWorkers    int             `env:"COUNTER_WORKERS" envDefault:"4"`

	// IssueToken содержит права через запятую: сервис выпускает токен, печатает его и завершается.
	IssueToken    string
	IssueTokenTTL time.Duration
}

// Commission возвращает параметры политики комиссии.
func (c *Config) Commission() commission.Config {
	return commission.Config{
		Scheme:            c.CommissionScheme,
		FlatFee:           c.CommissionFlatFee,
		LeaderOnSubseller: c.CommissionLeaderOnSubseller,
		SellerRate:        c.CommissionSellerRate,
		LeaderRate:        c.CommissionLeaderRate,
		SubleaderRate:     c.CommissionSubleaderRate,
	}
}

// TokenCaps возвращает права для выпуска токена.
func (c *Config) TokenCaps() []string {
	var caps []string
	for _, p := range strings.Split(c.IssueToken, ",") {
		if p = strings.TrimSpace(p); p != "" {
			caps = append(caps, p)
		}
	}
	return caps
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNATSURL := cfg.NATSURL
	envAuthSecret := cfg.AuthSecret
	envAuthDisabled := cfg.AuthDisabled

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NATSURL, "n", "", "NATS server URL, in-process event bus when empty")
	flag.StringVar(&cfg.AuthSecret, "s", "", "HMAC secret for access tokens")
	flag.BoolVar(&cfg.AuthDisabled, "insecure", false, "disable access token checks, every request gets admin rights")
	flag.StringVar(&cfg.IssueToken, "t", "", "issue an access token with comma-separated capabilities and exit")
	flag.DurationVar(&cfg.IssueTokenTTL, "ttl", 24*time.Hour, "lifetime of the issued token")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNATSURL != "" {
		cfg.NATSURL = envNATSURL
	}
	if envAuthSecret != "" {
		cfg.AuthSecret = envAuthSecret
	}
	if envAuthDisabled {
		cfg.AuthDisabled = true
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.AuthSecret == "" && !cfg.AuthDisabled {
		return nil, errors.New("AUTH_SECRET is required, set AUTH_DISABLED=true or -insecure to run without authorization")
	}
	if cfg.IssueToken != "" && cfg.AuthSecret == "" {
		return nil, errors.New("AUTH_SECRET is required to issue tokens")
	}
	if cfg.CounterWorkers <= 0 {
		return nil, fmt.Errorf("COUNTER_WORKERS must be positive, got %d", cfg.CounterWorkers)
	}
	if cfg.DefaultSaleAmount.IsNegative() {
		return nil, fmt.Errorf("DEFAULT_SALE_AMOUNT must not be negative, got %s", cfg.DefaultSaleAmount)
	}

	return cfg, nil
}
