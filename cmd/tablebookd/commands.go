package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/internal/config"
	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	flagRestaurant = "restaurant"
	flagStartsAt   = "starts-at"
	flagPartySize  = "party-size"
	flagDuration   = "duration"
	flagVIP        = "vip"
	flagOnce       = "once"
)

func newMigrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, cleanup, _, err := openDatabase(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := migrateSchema(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newWorkerCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Sweep no-shows, lapsed waitlist entries, stale cleaning and due refunds on an interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			once, err := cmd.Flags().GetBool(flagOnce)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, serviceName)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			rt, err := newRuntime(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			if once {
				return sweep(ctx, rt.service, logger)
			}
			return runWorker(ctx, rt.service, cfg.SweepInterval, logger)
		},
	}
	cmd.Flags().Bool(flagOnce, false, "run one sweep and exit")
	return cmd
}

// sweeper is the part of booking.Service the worker drives.
type sweeper interface {
	SweepNoShows(ctx context.Context) ([]booking.ReservationID, error)
	ExpireWaitlist(ctx context.Context) ([]booking.WaitlistEntryID, error)
	SweepCleaning(ctx context.Context) ([]booking.TableID, error)
	SettleRefunds(ctx context.Context) ([]booking.ReservationID, error)
}

func runWorker(ctx context.Context, service sweeper, interval time.Duration, logger *zap.Logger) error {
	logger.Info("worker starting", zap.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := sweep(ctx, service, logger); err != nil {
			logger.Error("sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
			return nil
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, service sweeper, logger *zap.Logger) error {
	noShows, noShowErr := service.SweepNoShows(ctx)
	if len(noShows) > 0 {
		logger.Info("marked no-shows", zap.Int("count", len(noShows)))
	}
	expired, expireErr := service.ExpireWaitlist(ctx)
	if len(expired) > 0 {
		logger.Info("expired waitlist entries", zap.Int("count", len(expired)))
	}
	cleaned, cleaningErr := service.SweepCleaning(ctx)
	if len(cleaned) > 0 {
		logger.Info("returned cleaned tables", zap.Int("count", len(cleaned)))
	}
	refunded, refundErr := service.SettleRefunds(ctx)
	if len(refunded) > 0 {
		logger.Info("settled refunds", zap.Int("count", len(refunded)))
	}
	return errors.Join(noShowErr, expireErr, cleaningErr, refundErr)
}

func newAvailabilityCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability",
		Short: "Print table availability for a party as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := availabilityQuery(cmd)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.LogLevel, cfg.LogFormat, serviceName)
			if err != nil {
				return fmt.Errorf("logger init: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			rt, err := newRuntime(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer rt.close()

			snapshot, err := rt.service.GetAvailability(cmd.Context(), query)
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(snapshot)
		},
	}
	cmd.Flags().String(flagRestaurant, "", "restaurant id (required)")
	cmd.Flags().String(flagStartsAt, "", "requested start time, RFC 3339 (required)")
	cmd.Flags().Int(flagPartySize, 0, "party size (required)")
	cmd.Flags().Duration(flagDuration, 0, "override the estimated dining duration")
	cmd.Flags().Bool(flagVIP, false, "prefer VIP tables")
	return cmd
}

func availabilityQuery(cmd *cobra.Command) (booking.AvailabilityQuery, error) {
	flags := cmd.Flags()
	rawRestaurant, _ := flags.GetString(flagRestaurant)
	rawStartsAt, _ := flags.GetString(flagStartsAt)
	partySize, _ := flags.GetInt(flagPartySize)
	duration, _ := flags.GetDuration(flagDuration)
	vip, _ := flags.GetBool(flagVIP)

	restaurantID, err := booking.NewRestaurantID(rawRestaurant)
	if err != nil {
		return booking.AvailabilityQuery{}, fmt.Errorf("%s: %w", flagRestaurant, err)
	}
	startsAt, err := time.Parse(time.RFC3339, rawStartsAt)
	if err != nil {
		return booking.AvailabilityQuery{}, fmt.Errorf("%s: %w", flagStartsAt, err)
	}
	return booking.AvailabilityQuery{
		RestaurantID: restaurantID,
		StartsAt:     startsAt.UTC(),
		PartySize:    partySize,
		Duration:     duration,
		VIP:          vip,
	}, nil
}
