// Package config provides configuration parsing and validation for the alert engine.
package config

import (
	"fmt"
	"time"
)

// Config holds all configuration parameters for the alert engine.
type Config struct {
	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers empty disables the outbound event feed.
	KafkaBrokers string
	AlertsTopic  string

	StockScanInterval  time.Duration
	ExpiryScanHour     int
	ExpiryWindowDays   int
	OrderScanStartHour int
	OrderScanEndHour   int

	NotificationTTL time.Duration
	QueueCap        int
	SyncOnStart     bool
}

// FeedEnabled reports whether the Kafka event feed is configured.
func (c *Config) FeedEnabled() bool {
	return c.KafkaBrokers != ""
}

// Validate checks that all required configuration fields are set and have valid values.
// Returns an error if validation fails, nil otherwise.
func (c *Config) Validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres-dsn cannot be empty")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("redis-addr cannot be empty")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("redis-db cannot be negative")
	}
	if c.KafkaBrokers != "" && c.AlertsTopic == "" {
		return fmt.Errorf("alerts-topic cannot be empty when kafka-brokers is set")
	}
	if c.StockScanInterval <= 0 {
		return fmt.Errorf("stock-scan-interval must be > 0")
	}
	if c.ExpiryScanHour < 0 || c.ExpiryScanHour > 23 {
		return fmt.Errorf("expiry-scan-hour must be between 0 and 23")
	}
	if c.ExpiryWindowDays < 1 || c.ExpiryWindowDays > 365 {
		return fmt.Errorf("expiry-window-days must be between 1 and 365")
	}
	if c.OrderScanStartHour < 0 || c.OrderScanStartHour > 23 {
		return fmt.Errorf("order-scan-start-hour must be between 0 and 23")
	}
	if c.OrderScanEndHour < 0 || c.OrderScanEndHour > 23 {
		return fmt.Errorf("order-scan-end-hour must be between 0 and 23")
	}
	if c.OrderScanStartHour > c.OrderScanEndHour {
		return fmt.Errorf("order-scan-start-hour cannot be after order-scan-end-hour")
	}
	if c.NotificationTTL <= 0 {
		return fmt.Errorf("notification-ttl must be > 0")
	}
	if c.QueueCap <= 0 {
		return fmt.Errorf("queue-cap must be > 0")
	}
	return nil
}
