package main

import (
	"context"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/internal/broadcast"
	"github.com/MarkoPoloResearchLab/tablebook/internal/cache/rediscache"
	"github.com/MarkoPoloResearchLab/tablebook/internal/config"
	"github.com/MarkoPoloResearchLab/tablebook/internal/notify"
	"github.com/MarkoPoloResearchLab/tablebook/internal/oplog"
	"github.com/MarkoPoloResearchLab/tablebook/internal/payment"
	"github.com/MarkoPoloResearchLab/tablebook/internal/scheduler"
	"github.com/MarkoPoloResearchLab/tablebook/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime holds the wired service and everything that must be closed with it.
type runtime struct {
	logger    *zap.Logger
	db        *gorm.DB
	service   *booking.Service
	scheduler *scheduler.Scheduler
	closers   []func() error
}

func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *runtime, err error) {
	rt := &runtime{logger: logger}
	defer func() {
		if err != nil {
			rt.close()
		}
	}()

	db, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, cleanup)
	if driver == driverSQLite {
		if err := migrateSchema(db); err != nil {
			return nil, err
		}
	}

	options := []booking.ServiceOption{
		booking.WithOperationLogger(oplog.New(logger)),
		booking.WithPolicy(cfg.Policy),
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		rt.closers = append(rt.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		options = append(options, booking.WithAvailabilityCache(rediscache.New(client)))
	}

	sinks, err := buildSinks(cfg)
	if err != nil {
		return nil, err
	}
	bus := broadcast.NewBus(logger.Named("broadcast"), sinks...)
	rt.closers = append(rt.closers, bus.Close)
	options = append(options, booking.WithEventPublisher(bus))

	if cfg.PaymentBaseURL != "" {
		options = append(options, booking.WithPaymentGateway(payment.New(payment.Options{
			BaseURL:    cfg.PaymentBaseURL,
			APIKey:     cfg.PaymentAPIKey,
			Currency:   cfg.PaymentCurrency,
			Timeout:    cfg.HTTPTimeout,
			RetryCount: cfg.HTTPRetryCount,
		}, logger.Named("payment"))))
	}
	if cfg.NotifyBaseURL != "" {
		options = append(options, booking.WithNotifier(notify.New(notify.Options{
			BaseURL:    cfg.NotifyBaseURL,
			APIKey:     cfg.NotifyAPIKey,
			Timeout:    cfg.HTTPTimeout,
			RetryCount: cfg.HTTPRetryCount,
		}, logger.Named("notify"))))
	} else {
		options = append(options, booking.WithNotifier(notify.NewLogNotifier(logger.Named("notify"))))
	}

	rt.scheduler = scheduler.New(logger.Named("scheduler"))
	options = append(options, booking.WithTaskScheduler(rt.scheduler))

	clock := func() time.Time { return time.Now().UTC() }
	service, err := booking.NewService(gormstore.New(db), clock, options...)
	if err != nil {
		return nil, fmt.Errorf("booking service init: %w", err)
	}
	rt.service = service
	return rt, nil
}

func buildSinks(cfg *config.Config) ([]broadcast.Sink, error) {
	switch cfg.Broker {
	case config.BrokerKafka:
		writer := broadcast.NewKafkaWriter(cfg.KafkaBrokers)
		return []broadcast.Sink{broadcast.NewKafkaSink(writer, cfg.KafkaTopicPrefix)}, nil
	case config.BrokerMQTT:
		client, err := broadcast.NewMQTTClient(broadcast.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
		})
		if err != nil {
			return nil, err
		}
		return []broadcast.Sink{broadcast.NewMQTTSink(client, cfg.MQTTTopicPrefix, 1)}, nil
	default:
		return nil, nil
	}
}

// close stops pending cleaning tasks before tearing down their dependencies.
func (rt *runtime) close() {
	if rt.scheduler != nil {
		rt.scheduler.Close()
	}
	for index := len(rt.closers) - 1; index >= 0; index-- {
		if err := rt.closers[index](); err != nil {
			rt.logger.Warn("shutdown", zap.Error(err))
		}
	}
	rt.closers = nil
}
