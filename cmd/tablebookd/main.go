package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/MarkoPoloResearchLab/tablebook/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL            = "database-url"
	flagRedisAddr              = "redis-addr"
	flagRedisPassword          = "redis-password"
	flagRedisDB                = "redis-db"
	flagBroker                 = "broker"
	flagKafkaBrokers           = "kafka-brokers"
	flagKafkaTopicPrefix       = "kafka-topic-prefix"
	flagMQTTBroker             = "mqtt-broker"
	flagMQTTClientID           = "mqtt-client-id"
	flagMQTTUsername           = "mqtt-username"
	flagMQTTPassword           = "mqtt-password"
	flagMQTTTopicPrefix        = "mqtt-topic-prefix"
	flagPaymentBaseURL         = "payment-base-url"
	flagPaymentAPIKey          = "payment-api-key"
	flagPaymentCurrency        = "payment-currency"
	flagNotifyBaseURL          = "notify-base-url"
	flagNotifyAPIKey           = "notify-api-key"
	flagHTTPTimeout            = "http-timeout"
	flagHTTPRetryCount         = "http-retry-count"
	flagSweepInterval          = "sweep-interval"
	flagLogLevel               = "log-level"
	flagLogFormat              = "log-format"
	flagTurnBuffer             = "turn-buffer"
	flagCleaningInterval       = "cleaning-interval"
	flagNoShowGrace            = "no-show-grace"
	flagModificationLimit      = "modification-limit"
	flagWaitlistResponseWindow = "waitlist-response-window"
	flagCacheTTL               = "cache-ttl"
	envPrefix                  = "TABLEBOOK"
	serviceName                = "tablebookd"
)

var boundFlags = []string{
	flagDatabaseURL, flagRedisAddr, flagRedisPassword, flagRedisDB,
	flagBroker, flagKafkaBrokers, flagKafkaTopicPrefix,
	flagMQTTBroker, flagMQTTClientID, flagMQTTUsername, flagMQTTPassword, flagMQTTTopicPrefix,
	flagPaymentBaseURL, flagPaymentAPIKey, flagPaymentCurrency, flagNotifyBaseURL, flagNotifyAPIKey,
	flagHTTPTimeout, flagHTTPRetryCount, flagSweepInterval, flagLogLevel, flagLogFormat,
	flagTurnBuffer, flagCleaningInterval, flagNoShowGrace, flagModificationLimit, flagWaitlistResponseWindow, flagCacheTTL,
}

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &config.Config{}
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Restaurant reservation scheduling and table assignment engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, "", "PostgreSQL URL or SQLite path (default sqlite:///tmp/tablebook.db)")
	flags.String(flagRedisAddr, "", "Redis address for the availability cache; empty disables caching")
	flags.String(flagRedisPassword, "", "Redis password")
	flags.Int(flagRedisDB, 0, "Redis database number")
	flags.String(flagBroker, config.BrokerNone, "event broker: none, kafka or mqtt")
	flags.String(flagKafkaBrokers, "", "comma-separated Kafka broker addresses")
	flags.String(flagKafkaTopicPrefix, "", "prefix for Kafka topics")
	flags.String(flagMQTTBroker, "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	flags.String(flagMQTTClientID, "", "MQTT client id")
	flags.String(flagMQTTUsername, "", "MQTT username")
	flags.String(flagMQTTPassword, "", "MQTT password")
	flags.String(flagMQTTTopicPrefix, "", "prefix for MQTT topics")
	flags.String(flagPaymentBaseURL, "", "deposit provider base URL; empty rejects bookings that need a deposit")
	flags.String(flagPaymentAPIKey, "", "deposit provider API key")
	flags.String(flagPaymentCurrency, "", "deposit currency (default USD)")
	flags.String(flagNotifyBaseURL, "", "notification service base URL; empty logs notifications instead")
	flags.String(flagNotifyAPIKey, "", "notification service API key")
	flags.Duration(flagHTTPTimeout, 0, "timeout for collaborator HTTP calls")
	flags.Int(flagHTTPRetryCount, 0, "retries for collaborator HTTP calls")
	flags.Duration(flagSweepInterval, 0, "interval between no-show and waitlist sweeps")
	flags.String(flagLogLevel, "", "log level: debug, info, warn or error")
	flags.String(flagLogFormat, "", "log format: json or console")
	flags.Duration(flagTurnBuffer, 0, "gap kept between consecutive seatings at a table")
	flags.Duration(flagCleaningInterval, 0, "time a table spends cleaning after a party leaves")
	flags.Duration(flagNoShowGrace, 0, "how long after the start time a reservation becomes a no-show")
	flags.Int(flagModificationLimit, 0, "maximum modifications per reservation")
	flags.Duration(flagWaitlistResponseWindow, 0, "how long a notified waitlist guest has to accept")
	flags.Duration(flagCacheTTL, 0, "availability cache TTL (clamped to 60s-300s)")

	cmd.AddCommand(newMigrateCommand(cfg), newWorkerCommand(cfg), newAvailabilityCommand(cfg))
	return cmd
}

func loadConfig(cmd *cobra.Command, cfg *config.Config) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for _, flagName := range boundFlags {
		if err := v.BindPFlag(flagName, cmd.Flags().Lookup(flagName)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = v.GetString(flagDatabaseURL)
	cfg.RedisAddr = v.GetString(flagRedisAddr)
	cfg.RedisPassword = v.GetString(flagRedisPassword)
	cfg.RedisDB = v.GetInt(flagRedisDB)
	cfg.Broker = v.GetString(flagBroker)
	cfg.KafkaBrokers = config.ParseList(v.GetString(flagKafkaBrokers))
	cfg.KafkaTopicPrefix = v.GetString(flagKafkaTopicPrefix)
	cfg.MQTTBroker = v.GetString(flagMQTTBroker)
	cfg.MQTTClientID = v.GetString(flagMQTTClientID)
	cfg.MQTTUsername = v.GetString(flagMQTTUsername)
	cfg.MQTTPassword = v.GetString(flagMQTTPassword)
	cfg.MQTTTopicPrefix = v.GetString(flagMQTTTopicPrefix)
	cfg.PaymentBaseURL = v.GetString(flagPaymentBaseURL)
	cfg.PaymentAPIKey = v.GetString(flagPaymentAPIKey)
	cfg.PaymentCurrency = v.GetString(flagPaymentCurrency)
	cfg.NotifyBaseURL = v.GetString(flagNotifyBaseURL)
	cfg.NotifyAPIKey = v.GetString(flagNotifyAPIKey)
	cfg.HTTPTimeout = v.GetDuration(flagHTTPTimeout)
	cfg.HTTPRetryCount = v.GetInt(flagHTTPRetryCount)
	cfg.SweepInterval = v.GetDuration(flagSweepInterval)
	cfg.LogLevel = v.GetString(flagLogLevel)
	cfg.LogFormat = v.GetString(flagLogFormat)
	cfg.Policy.TurnBuffer = v.GetDuration(flagTurnBuffer)
	cfg.Policy.CleaningInterval = v.GetDuration(flagCleaningInterval)
	cfg.Policy.NoShowGrace = v.GetDuration(flagNoShowGrace)
	cfg.Policy.ModificationLimit = v.GetInt(flagModificationLimit)
	cfg.Policy.WaitlistResponseWindow = v.GetDuration(flagWaitlistResponseWindow)
	cfg.Policy.CacheTTL = v.GetDuration(flagCacheTTL)

	return cfg.Validate()
}
