package oplog

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// rejections are caller mistakes or lost races; they are logged at warn.
var rejections = []error{
	booking.ErrValidation,
	booking.ErrNotFound,
	booking.ErrNoAvailability,
	booking.ErrConflict,
	booking.ErrPolicyViolation,
	booking.ErrState,
	booking.ErrForbidden,
	booking.ErrPayment,
}

// ZapLogger implements booking.OperationLogger on a zap logger.
type ZapLogger struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapLogger{logger: logger.Named("booking")}
}

func (logger *ZapLogger) LogOperation(_ context.Context, entry booking.OperationLog) {
	level := levelFor(entry.Error)
	checked := logger.logger.Check(level, entry.Operation)
	if checked == nil {
		return
	}
	checked.Write(fields(entry)...)
}

func levelFor(err error) zapcore.Level {
	if err == nil {
		return zapcore.InfoLevel
	}
	for _, sentinel := range rejections {
		if errors.Is(err, sentinel) {
			return zapcore.WarnLevel
		}
	}
	return zapcore.ErrorLevel
}

func fields(entry booking.OperationLog) []zap.Field {
	result := []zap.Field{zap.String("status", entry.Status)}
	if !entry.RestaurantID.IsZero() {
		result = append(result, zap.String("restaurant_id", entry.RestaurantID.String()))
	}
	if !entry.ReservationID.IsZero() {
		result = append(result, zap.String("reservation_id", entry.ReservationID.String()))
	}
	if entry.WaitlistEntryID.String() != "" {
		result = append(result, zap.String("waitlist_entry_id", entry.WaitlistEntryID.String()))
	}
	if len(entry.TableIDs) > 0 {
		tableIDs := make([]string, 0, len(entry.TableIDs))
		for _, tableID := range entry.TableIDs {
			tableIDs = append(tableIDs, tableID.String())
		}
		result = append(result, zap.Strings("table_ids", tableIDs))
	}
	if entry.PartySize > 0 {
		result = append(result, zap.Int("party_size", entry.PartySize))
	}
	if entry.Amount != 0 {
		result = append(result, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	if entry.Duration > 0 {
		result = append(result, zap.Duration("duration", entry.Duration))
	}
	if entry.Error != nil {
		result = append(result, zap.Error(entry.Error))
		var operationError booking.OperationError
		if errors.As(entry.Error, &operationError) {
			result = append(result, zap.String("error_code", operationError.Operation()+"."+operationError.Subject()+"."+operationError.Code()))
		}
	}
	return result
}
