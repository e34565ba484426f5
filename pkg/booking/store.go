package booking

import (
	"context"
	"time"
)

// Store is the persistence contract used by Service. Implementations must
// give WithTx ACID semantics; every mutating Service operation runs inside a
// single WithTx call. Lookups of missing rows return ErrNotFound, and lost
// races (stale versions, unique violations, serialization failures) return
// ErrConflict.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error

	SaveRestaurant(ctx context.Context, restaurant Restaurant) error
	GetRestaurant(ctx context.Context, restaurantID RestaurantID) (Restaurant, error)
	// LockRestaurant serializes writers for one restaurant until the enclosing transaction ends.
	LockRestaurant(ctx context.Context, restaurantID RestaurantID) error

	CreateTable(ctx context.Context, table Table) error
	GetTable(ctx context.Context, tableID TableID) (Table, error)
	// ListTables returns the tables that are not soft-deleted.
	ListTables(ctx context.Context, restaurantID RestaurantID) ([]Table, error)
	UpdateTable(ctx context.Context, table Table) error
	// ListTablesInStatus returns tables of every restaurant whose status is
	// status and last changed before changedBefore.
	ListTablesInStatus(ctx context.Context, status TableStatus, changedBefore time.Time) ([]Table, error)

	CreateReservation(ctx context.Context, reservation Reservation) error
	GetReservation(ctx context.Context, reservationID ReservationID) (Reservation, error)
	// UpdateReservation writes the reservation if its stored version still equals expectedVersion.
	UpdateReservation(ctx context.Context, reservation Reservation, expectedVersion int64) error
	// ListActiveReservations returns non-terminal reservations that may occupy tables in [from, to).
	ListActiveReservations(ctx context.Context, restaurantID RestaurantID, from time.Time, to time.Time) ([]Reservation, error)
	// ListOverdueReservations returns confirmed reservations starting before cutoff.
	ListOverdueReservations(ctx context.Context, cutoff time.Time) ([]Reservation, error)
	// ListPendingRefunds returns reservations with a refund still due.
	ListPendingRefunds(ctx context.Context) ([]Reservation, error)
	ConfirmationCodeExists(ctx context.Context, restaurantID RestaurantID, serviceDate string, code string) (bool, error)

	AppendModification(ctx context.Context, record ModificationRecord) error
	ListModifications(ctx context.Context, reservationID ReservationID) ([]ModificationRecord, error)

	CreateWaitlistEntry(ctx context.Context, entry WaitlistEntry) error
	GetWaitlistEntry(ctx context.Context, entryID WaitlistEntryID) (WaitlistEntry, error)
	UpdateWaitlistEntry(ctx context.Context, entry WaitlistEntry) error
	// ListQueuedWaitlist returns waiting and notified entries ordered by position.
	ListQueuedWaitlist(ctx context.Context, restaurantID RestaurantID, serviceDate string) ([]WaitlistEntry, error)
	// ListLapsedWaitlist returns notified entries past their deadline and waiting entries whose window ended.
	ListLapsedWaitlist(ctx context.Context, now time.Time) ([]WaitlistEntry, error)

	GetTurnTimeStat(ctx context.Context, key TurnTimeKey) (TurnTimeStat, bool, error)
	SaveTurnTimeStat(ctx context.Context, stat TurnTimeStat) error
}
