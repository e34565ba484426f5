package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

const (
	BrokerNone  = "none"
	BrokerKafka = "kafka"
	BrokerMQTT  = "mqtt"

	LogFormatJSON    = "json"
	LogFormatConsole = "console"

	defaultDatabaseURL      = "sqlite:///tmp/tablebook.db"
	defaultKafkaTopicPrefix = "tablebook."
	defaultMQTTTopicPrefix  = "tablebook"
	defaultMQTTClientID     = "tablebookd"
	defaultPaymentCurrency  = "USD"
	defaultHTTPTimeout      = 10 * time.Second
	defaultSweepInterval    = time.Minute
	defaultLogLevel         = "info"
	minSweepInterval        = time.Second
)

// Config aggregates runtime settings for tablebookd.
type Config struct {
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Broker           string
	KafkaBrokers     []string
	KafkaTopicPrefix string
	MQTTBroker       string
	MQTTClientID     string
	MQTTUsername     string
	MQTTPassword     string
	MQTTTopicPrefix  string

	PaymentBaseURL  string
	PaymentAPIKey   string
	PaymentCurrency string
	NotifyBaseURL   string
	NotifyAPIKey    string
	HTTPTimeout     time.Duration
	HTTPRetryCount  int

	SweepInterval time.Duration

	LogLevel  string
	LogFormat string

	// Policy carries the booking knobs; zero fields fall back to booking defaults.
	Policy booking.Policy
}

// Validate fills defaults and ensures the configuration is usable.
func (cfg *Config) Validate() error {
	cfg.DatabaseURL = defaultIfEmpty(cfg.DatabaseURL, defaultDatabaseURL)
	cfg.Broker = strings.ToLower(defaultIfEmpty(cfg.Broker, BrokerNone))
	cfg.KafkaTopicPrefix = defaultIfEmpty(cfg.KafkaTopicPrefix, defaultKafkaTopicPrefix)
	cfg.MQTTTopicPrefix = defaultIfEmpty(cfg.MQTTTopicPrefix, defaultMQTTTopicPrefix)
	cfg.MQTTClientID = defaultIfEmpty(cfg.MQTTClientID, defaultMQTTClientID)
	cfg.PaymentCurrency = defaultIfEmpty(cfg.PaymentCurrency, defaultPaymentCurrency)
	cfg.LogLevel = strings.ToLower(defaultIfEmpty(cfg.LogLevel, defaultLogLevel))
	cfg.LogFormat = strings.ToLower(defaultIfEmpty(cfg.LogFormat, LogFormatJSON))
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.HTTPRetryCount < 0 {
		return fmt.Errorf("http retry count must not be negative")
	}
	if cfg.SweepInterval < minSweepInterval {
		return fmt.Errorf("sweep interval must be at least %s", minSweepInterval)
	}
	if cfg.RedisDB < 0 {
		return fmt.Errorf("redis db must not be negative")
	}
	switch cfg.Broker {
	case BrokerNone:
	case BrokerKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return fmt.Errorf("kafka brokers are required when broker is %s", BrokerKafka)
		}
	case BrokerMQTT:
		if strings.TrimSpace(cfg.MQTTBroker) == "" {
			return fmt.Errorf("mqtt broker is required when broker is %s", BrokerMQTT)
		}
	default:
		return fmt.Errorf("unsupported broker %q", cfg.Broker)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case LogFormatJSON, LogFormatConsole:
	default:
		return fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}
	if cfg.Policy.ModificationLimit < 0 {
		return fmt.Errorf("modification limit must not be negative")
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

// ParseList splits a comma-delimited list, dropping blanks.
func ParseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	normalized := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return normalized
}
