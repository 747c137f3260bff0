// Package config loads service configuration from the environment and
// an optional .env file.
package config

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Port     string
	LogLevel string

	DatabaseDSN     string
	DBConnRetries   int
	DBConnRetryWait time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers []string
	OrderTopic   string

	QueueKey          string
	WorkerConcurrency int

	Sources            []string
	FeePct             decimal.Decimal
	DefaultSlippagePct decimal.Decimal
	QuoteTimeout       time.Duration
}

// Load reads configuration, applying defaults for anything unset.
func Load() *Config {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig() // .env is optional

	viper.SetDefault("PORT", "3000")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_CONN_RETRIES", 10)
	viper.SetDefault("DB_CONN_RETRY_WAIT", "2s")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("ORDER_TOPIC", "dexroute.order.events")
	viper.SetDefault("QUEUE_KEY", "dexroute:orders")
	viper.SetDefault("WORKER_CONCURRENCY", 10)
	viper.SetDefault("SOURCES", "Raydium,Meteora")
	viper.SetDefault("FEE_PCT", "0.003")
	viper.SetDefault("DEFAULT_SLIPPAGE_PCT", "0.005")
	viper.SetDefault("QUOTE_TIMEOUT", "2s")

	return &Config{
		Port:               viper.GetString("PORT"),
		LogLevel:           viper.GetString("LOG_LEVEL"),
		DatabaseDSN:        viper.GetString("DATABASE_DSN"),
		DBConnRetries:      viper.GetInt("DB_CONN_RETRIES"),
		DBConnRetryWait:    viper.GetDuration("DB_CONN_RETRY_WAIT"),
		RedisAddr:          viper.GetString("REDIS_ADDR"),
		RedisPassword:      viper.GetString("REDIS_PASSWORD"),
		RedisDB:            viper.GetInt("REDIS_DB"),
		KafkaBrokers:       splitList(viper.GetString("KAFKA_BROKERS")),
		OrderTopic:         viper.GetString("ORDER_TOPIC"),
		QueueKey:           viper.GetString("QUEUE_KEY"),
		WorkerConcurrency:  viper.GetInt("WORKER_CONCURRENCY"),
		Sources:            splitList(viper.GetString("SOURCES")),
		FeePct:             mustDecimal(viper.GetString("FEE_PCT"), "0.003"),
		DefaultSlippagePct: mustDecimal(viper.GetString("DEFAULT_SLIPPAGE_PCT"), "0.005"),
		QuoteTimeout:       viper.GetDuration("QUOTE_TIMEOUT"),
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mustDecimal(s, fallback string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.RequireFromString(fallback)
	}
	return d
}
