// Package config содержит логику чтения конфигурации сервиса бронирования.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	defaultRunAddress          = "localhost:8080"
	defaultBookingTTL          = 15 * time.Minute
	defaultExpirySweepInterval = 30 * time.Second
)

// Config содержит параметры конфигурации сервиса бронирования.
type Config struct {
	RunAddress            string        `env:"RUN_ADDRESS"`
	DatabaseURI           string        `env:"DATABASE_URI"`
	PaymentGatewayAddress string        `env:"PAYMENT_GATEWAY_ADDRESS"`
	RedisAddress          string        `env:"REDIS_ADDRESS"`
	BookingTTL            time.Duration `env:"BOOKING_TTL"`
	ExpirySweepInterval   time.Duration `env:"EXPIRY_SWEEP_INTERVAL"`
	RoomCacheTTL          time.Duration `env:"ROOM_CACHE_TTL" envDefault:"30s"`
	PaymentRetryMax       int           `env:"PAYMENT_RETRY_MAX" envDefault:"3"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envCfg := *cfg

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.PaymentGatewayAddress, "p", "", "payment gateway address")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for room search cache")
	flag.DurationVar(&cfg.BookingTTL, "t", defaultBookingTTL, "how long an unpaid booking holds the room")
	flag.DurationVar(&cfg.ExpirySweepInterval, "s", defaultExpirySweepInterval, "interval between expired booking sweeps")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.PaymentGatewayAddress != "" {
		cfg.PaymentGatewayAddress = envCfg.PaymentGatewayAddress
	}
	if envCfg.RedisAddress != "" {
		cfg.RedisAddress = envCfg.RedisAddress
	}
	if envCfg.BookingTTL != 0 {
		cfg.BookingTTL = envCfg.BookingTTL
	}
	if envCfg.ExpirySweepInterval != 0 {
		cfg.ExpirySweepInterval = envCfg.ExpirySweepInterval
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}

	switch {
	case cfg.BookingTTL <= 0:
		return nil, fmt.Errorf("booking ttl must be positive, got %s", cfg.BookingTTL)
	case cfg.ExpirySweepInterval <= 0:
		return nil, fmt.Errorf("expiry sweep interval must be positive, got %s", cfg.ExpirySweepInterval)
	case cfg.RoomCacheTTL < 0:
		return nil, fmt.Errorf("room cache ttl must not be negative, got %s", cfg.RoomCacheTTL)
	}

	return cfg, nil
}
