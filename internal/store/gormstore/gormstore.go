package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	pgUniqueViolationCode     = "23505"
	pgSerializationFailure    = "40001"
	pgDeadlockDetected        = "40P01"
	sqliteBusyCode            = 5
	sqliteLockedCode          = 6
	sqliteConstraintCode      = 19
	emptyJSONArray            = "[]"
	emptyJSONObject           = "{}"
	errorOperationStore       = "store"
	errorSubjectTransaction   = "transaction"
	errorSubjectRestaurant    = "restaurant"
	errorSubjectTable         = "table"
	errorSubjectReservation   = "reservation"
	errorSubjectModification  = "modification"
	errorSubjectWaitlist      = "waitlist"
	errorSubjectTurnTime      = "turn_time"
	errorCodeCommit           = "commit"
	errorCodeCreate           = "create"
	errorCodeDuplicate        = "duplicate"
	errorCodeGet              = "get"
	errorCodeInvalid          = "invalid"
	errorCodeList             = "list"
	errorCodeLock             = "lock"
	errorCodeSave             = "save"
	errorCodeUpdate           = "update"
	errorCodeVersion          = "version"
	errorCodeEncode           = "encode"
	errorCodeConfirmationCode = "confirmation_code"
)

var terminalReservationStatuses = []string{
	booking.ReservationStatusCompleted.String(),
	booking.ReservationStatusCancelled.String(),
	booking.ReservationStatusNoShow.String(),
}

var queuedWaitlistStatuses = []string{
	booking.WaitlistStatusWaiting.String(),
	booking.WaitlistStatusNotified.String(),
}

// Store implements booking.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithTx executes fn within a transaction. Serialization failures and
// deadlocks reported at commit surface as booking.ErrConflict.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore booking.Store) error) error {
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
	if isRetryable(err) && !errors.Is(err, booking.ErrConflict) {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, fmt.Errorf("%w: %w", booking.ErrConflict, err))
	}
	return err
}

func (store *Store) SaveRestaurant(ctx context.Context, restaurant booking.Restaurant) error {
	model, err := restaurantModel(restaurant)
	if err != nil {
		return wrapStoreError(errorSubjectRestaurant, errorCodeEncode, err)
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "restaurant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "time_zone", "hours", "deposit_policy", "late_window_seconds",
				"late_fee_percent", "average_turn_time_minutes", "updated_at",
			}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectRestaurant, errorCodeSave, mapWriteError(err))
	}
	return nil
}

func (store *Store) GetRestaurant(ctx context.Context, restaurantID booking.RestaurantID) (booking.Restaurant, error) {
	var model Restaurant
	err := store.db.WithContext(ctx).Where("restaurant_id = ?", restaurantID.String()).Take(&model).Error
	if err != nil {
		return booking.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeGet, mapReadError(err, "restaurant", restaurantID.String()))
	}
	restaurant, err := mapRestaurant(model)
	if err != nil {
		return booking.Restaurant{}, wrapStoreError(errorSubjectRestaurant, errorCodeInvalid, err)
	}
	return restaurant, nil
}

// LockRestaurant takes the restaurant row's write lock by bumping its lock
// version. Postgres holds the row lock and SQLite the database write lock
// until the transaction ends.
func (store *Store) LockRestaurant(ctx context.Context, restaurantID booking.RestaurantID) error {
	result := store.db.WithContext(ctx).
		Model(&Restaurant{}).
		Where("restaurant_id = ?", restaurantID.String()).
		UpdateColumn("lock_version", gorm.Expr("lock_version + 1"))
	if result.Error != nil {
		return wrapStoreError(errorSubjectRestaurant, errorCodeLock, mapWriteError(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRestaurant, errorCodeLock, fmt.Errorf("%w: restaurant %s", booking.ErrNotFound, restaurantID))
	}
	return nil
}

func (store *Store) CreateTable(ctx context.Context, table booking.Table) error {
	model, err := tableModel(table)
	if err != nil {
		return wrapStoreError(errorSubjectTable, errorCodeEncode, err)
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectTable, errorCodeCreate, mapWriteError(err))
	}
	return nil
}

func (store *Store) GetTable(ctx context.Context, tableID booking.TableID) (booking.Table, error) {
	var model DiningTable
	err := store.db.WithContext(ctx).Where("table_id = ?", tableID.String()).Take(&model).Error
	if err != nil {
		return booking.Table{}, wrapStoreError(errorSubjectTable, errorCodeGet, mapReadError(err, "table", tableID.String()))
	}
	table, err := mapTable(model)
	if err != nil {
		return booking.Table{}, wrapStoreError(errorSubjectTable, errorCodeInvalid, err)
	}
	return table, nil
}

func (store *Store) ListTables(ctx context.Context, restaurantID booking.RestaurantID) ([]booking.Table, error) {
	var rows []DiningTable
	err := store.db.WithContext(ctx).
		Where("restaurant_id = ? AND deleted_at IS NULL", restaurantID.String()).
		Order("label ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTable, errorCodeList, err)
	}
	tables := make([]booking.Table, 0, len(rows))
	for _, row := range rows {
		table, err := mapTable(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTable, errorCodeInvalid, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (store *Store) ListTablesInStatus(ctx context.Context, status booking.TableStatus, changedBefore time.Time) ([]booking.Table, error) {
	var rows []DiningTable
	err := store.db.WithContext(ctx).
		Where("status = ? AND status_changed_at < ? AND deleted_at IS NULL", status.String(), changedBefore.UTC()).
		Order("status_changed_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectTable, errorCodeList, err)
	}
	tables := make([]booking.Table, 0, len(rows))
	for _, row := range rows {
		table, err := mapTable(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectTable, errorCodeInvalid, err)
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func (store *Store) UpdateTable(ctx context.Context, table booking.Table) error {
	model, err := tableModel(table)
	if err != nil {
		return wrapStoreError(errorSubjectTable, errorCodeEncode, err)
	}
	result := store.db.WithContext(ctx).
		Model(&DiningTable{}).
		Where("table_id = ?", model.TableID).
		Select("*").
		Updates(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectTable, errorCodeUpdate, mapWriteError(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTable, errorCodeUpdate, fmt.Errorf("%w: table %s", booking.ErrNotFound, table.ID))
	}
	return nil
}

func (store *Store) CreateReservation(ctx context.Context, reservation booking.Reservation) error {
	model, err := reservationModel(reservation)
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeEncode, err)
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, fmt.Errorf("%w: reservation %s or its confirmation code exists", booking.ErrConflict, reservation.ID))
	}
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeCreate, mapWriteError(err))
	}
	return nil
}

func (store *Store) GetReservation(ctx context.Context, reservationID booking.ReservationID) (booking.Reservation, error) {
	var model Reservation
	err := store.db.WithContext(ctx).Where("reservation_id = ?", reservationID.String()).Take(&model).Error
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeGet, mapReadError(err, "reservation", reservationID.String()))
	}
	reservation, err := mapReservation(model)
	if err != nil {
		return booking.Reservation{}, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
	}
	return reservation, nil
}

func (store *Store) UpdateReservation(ctx context.Context, reservation booking.Reservation, expectedVersion int64) error {
	model, err := reservationModel(reservation)
	if err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeEncode, err)
	}
	result := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("reservation_id = ? AND version = ?", model.ReservationID, expectedVersion).
		Select("*").
		Updates(&model)
	if isUniqueViolation(result.Error) {
		return wrapStoreError(errorSubjectReservation, errorCodeDuplicate, fmt.Errorf("%w: %w", booking.ErrConflict, result.Error))
	}
	if result.Error != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, mapWriteError(result.Error))
	}
	if result.RowsAffected == 1 {
		return nil
	}
	var count int64
	if err := store.db.WithContext(ctx).Model(&Reservation{}).Where("reservation_id = ?", model.ReservationID).Count(&count).Error; err != nil {
		return wrapStoreError(errorSubjectReservation, errorCodeVersion, err)
	}
	if count == 0 {
		return wrapStoreError(errorSubjectReservation, errorCodeUpdate, fmt.Errorf("%w: reservation %s", booking.ErrNotFound, reservation.ID))
	}
	return wrapStoreError(errorSubjectReservation, errorCodeVersion, fmt.Errorf("%w: reservation %s is no longer at version %d", booking.ErrConflict, reservation.ID, expectedVersion))
}

func (store *Store) ListActiveReservations(ctx context.Context, restaurantID booking.RestaurantID, from time.Time, to time.Time) ([]booking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("restaurant_id = ? AND status NOT IN ? AND starts_at < ?", restaurantID.String(), terminalReservationStatuses, to.UTC()).
		Where("(ends_at > ? OR status = ?)", from.UTC(), booking.ReservationStatusSeated.String()).
		Order("starts_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) ListOverdueReservations(ctx context.Context, cutoff time.Time) ([]booking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("status = ? AND starts_at < ?", booking.ReservationStatusConfirmed.String(), cutoff.UTC()).
		Order("starts_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) ListPendingRefunds(ctx context.Context) ([]booking.Reservation, error) {
	var rows []Reservation
	err := store.db.WithContext(ctx).
		Where("deposit_refund_due_cents > 0").
		Order("updated_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectReservation, errorCodeList, err)
	}
	return mapReservations(rows)
}

func (store *Store) ConfirmationCodeExists(ctx context.Context, restaurantID booking.RestaurantID, serviceDate string, code string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Reservation{}).
		Where("restaurant_id = ? AND service_date = ? AND confirmation_code = ?", restaurantID.String(), serviceDate, code).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectReservation, errorCodeConfirmationCode, err)
	}
	return count > 0, nil
}

func (store *Store) AppendModification(ctx context.Context, record booking.ModificationRecord) error {
	model, err := modificationModel(record)
	if err != nil {
		return wrapStoreError(errorSubjectModification, errorCodeEncode, err)
	}
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectModification, errorCodeCreate, mapWriteError(err))
	}
	return nil
}

func (store *Store) ListModifications(ctx context.Context, reservationID booking.ReservationID) ([]booking.ModificationRecord, error) {
	var rows []ModificationRecord
	err := store.db.WithContext(ctx).
		Where("reservation_id = ?", reservationID.String()).
		Order("created_at ASC").
		Order("record_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectModification, errorCodeList, err)
	}
	records := make([]booking.ModificationRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapModification(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectModification, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func (store *Store) CreateWaitlistEntry(ctx context.Context, entry booking.WaitlistEntry) error {
	model := waitlistModel(entry)
	if err := store.db.WithContext(ctx).Create(&model).Error; err != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeCreate, mapWriteError(err))
	}
	return nil
}

func (store *Store) GetWaitlistEntry(ctx context.Context, entryID booking.WaitlistEntryID) (booking.WaitlistEntry, error) {
	var model WaitlistEntry
	err := store.db.WithContext(ctx).Where("entry_id = ?", entryID.String()).Take(&model).Error
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeGet, mapReadError(err, "waitlist entry", entryID.String()))
	}
	entry, err := mapWaitlistEntry(model)
	if err != nil {
		return booking.WaitlistEntry{}, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
	}
	return entry, nil
}

func (store *Store) UpdateWaitlistEntry(ctx context.Context, entry booking.WaitlistEntry) error {
	model := waitlistModel(entry)
	result := store.db.WithContext(ctx).
		Model(&WaitlistEntry{}).
		Where("entry_id = ?", model.EntryID).
		Select("*").
		Updates(&model)
	if result.Error != nil {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, mapWriteError(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectWaitlist, errorCodeUpdate, fmt.Errorf("%w: waitlist entry %s", booking.ErrNotFound, entry.ID))
	}
	return nil
}

func (store *Store) ListQueuedWaitlist(ctx context.Context, restaurantID booking.RestaurantID, serviceDate string) ([]booking.WaitlistEntry, error) {
	var rows []WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("restaurant_id = ? AND service_date = ? AND status IN ?", restaurantID.String(), serviceDate, queuedWaitlistStatuses).
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWaitlist, errorCodeList, err)
	}
	return mapWaitlistEntries(rows)
}

func (store *Store) ListLapsedWaitlist(ctx context.Context, now time.Time) ([]booking.WaitlistEntry, error) {
	var rows []WaitlistEntry
	err := store.db.WithContext(ctx).
		Where("(status = ? AND response_deadline < ?) OR (status = ? AND window_end <= ?)",
			booking.WaitlistStatusNotified.String(), now.UTC(),
			booking.WaitlistStatusWaiting.String(), now.UTC()).
		Order("restaurant_id ASC").
		Order("position ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectWaitlist, errorCodeList, err)
	}
	return mapWaitlistEntries(rows)
}

func (store *Store) GetTurnTimeStat(ctx context.Context, key booking.TurnTimeKey) (booking.TurnTimeStat, bool, error) {
	var model TurnTimeStat
	err := store.db.WithContext(ctx).
		Where("restaurant_id = ? AND party_key = ? AND weekday = ? AND meal_period = ?",
			key.RestaurantID.String(), key.PartyKey, int(key.Weekday), string(key.MealPeriod)).
		Take(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return booking.TurnTimeStat{}, false, nil
	}
	if err != nil {
		return booking.TurnTimeStat{}, false, wrapStoreError(errorSubjectTurnTime, errorCodeGet, err)
	}
	return booking.TurnTimeStat{Key: key, Samples: model.Samples, AverageMinutes: model.AverageMinutes}, true, nil
}

func (store *Store) SaveTurnTimeStat(ctx context.Context, stat booking.TurnTimeStat) error {
	model := TurnTimeStat{
		RestaurantID:   stat.Key.RestaurantID.String(),
		PartyKey:       stat.Key.PartyKey,
		Weekday:        int(stat.Key.Weekday),
		MealPeriod:     string(stat.Key.MealPeriod),
		Samples:        stat.Samples,
		AverageMinutes: stat.AverageMinutes,
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "restaurant_id"}, {Name: "party_key"}, {Name: "weekday"}, {Name: "meal_period"}},
			DoUpdates: clause.AssignmentColumns([]string{"samples", "average_minutes"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectTurnTime, errorCodeSave, mapWriteError(err))
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return booking.WrapError(errorOperationStore, subject, code, err)
}

func mapReadError(err error, kind string, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %s", booking.ErrNotFound, kind, id)
	}
	return err
}

func mapWriteError(err error) error {
	if isUniqueViolation(err) || isRetryable(err) {
		return fmt.Errorf("%w: %w", booking.ErrConflict, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		primary := sqliteErr.Code() & 0xFF
		return primary == sqliteBusyCode || primary == sqliteLockedCode
	}
	return false
}

func encodeJSON(value any, empty string) (datatypes.JSON, error) {
	if value == nil {
		return datatypes.JSON([]byte(empty)), nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return datatypes.JSON([]byte(empty)), nil
	}
	return datatypes.JSON(raw), nil
}

func decodeJSON(raw datatypes.JSON, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
