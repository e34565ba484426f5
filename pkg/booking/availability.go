package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// AvailabilityQuery asks which tables are free for a party at a start time.
type AvailabilityQuery struct {
	RestaurantID RestaurantID
	StartsAt     time.Time
	PartySize    int
	// Duration overrides the turn-time estimate when positive.
	Duration time.Duration
	VIP      bool
}

func (query AvailabilityQuery) validate() error {
	if query.RestaurantID.IsZero() {
		return validationError("restaurant id is required")
	}
	if query.StartsAt.IsZero() {
		return validationError("start time is required")
	}
	if query.PartySize <= 0 {
		return validationError("party size must be positive, got %d", query.PartySize)
	}
	if query.Duration < 0 {
		return validationError("duration must not be negative")
	}
	return nil
}

// TableSlot is one table's availability for the requested window.
type TableSlot struct {
	TableID       TableID        `json:"table_id"`
	Label         string         `json:"label"`
	Capacity      int            `json:"capacity"`
	MinCapacity   int            `json:"min_capacity"`
	Position      Position       `json:"position"`
	VIP           bool           `json:"vip"`
	Fits          bool           `json:"fits"`
	Available     bool           `json:"available"`
	OccupiedBy    *ReservationID `json:"occupied_by,omitempty"`
	OccupiedUntil *time.Time     `json:"occupied_until,omitempty"`
}

// AvailabilitySnapshot is the Availability Index output for one query.
type AvailabilitySnapshot struct {
	RestaurantID RestaurantID  `json:"restaurant_id"`
	ServiceDate  string        `json:"service_date"`
	StartsAt     time.Time     `json:"starts_at"`
	PartySize    int           `json:"party_size"`
	Duration     time.Duration `json:"duration"`
	WindowStart  time.Time     `json:"window_start"`
	WindowEnd    time.Time     `json:"window_end"`
	Open         bool          `json:"open"`
	Tables       []TableSlot   `json:"tables"`
	Assignment   *Assignment   `json:"assignment,omitempty"`
}

// Available reports whether the party can be seated.
func (snapshot AvailabilitySnapshot) Available() bool {
	return snapshot.Open && snapshot.Assignment != nil
}

// BusyInterval is one occupied stretch of a table's day.
type BusyInterval struct {
	ReservationID ReservationID     `json:"reservation_id"`
	Status        ReservationStatus `json:"status"`
	Start         time.Time         `json:"start"`
	End           time.Time         `json:"end"`
}

// TableSchedule lists a table's occupied intervals for a service date.
type TableSchedule struct {
	TableID     TableID        `json:"table_id"`
	ServiceDate string         `json:"service_date"`
	Status      TableStatus    `json:"status"`
	Busy        []BusyInterval `json:"busy"`
}

// AvailabilityCacheKey returns the cache key for a query.
func AvailabilityCacheKey(query AvailabilityQuery) string {
	return fmt.Sprintf("availability:%s:%s:%d:%d:%t",
		query.RestaurantID.String(),
		query.StartsAt.UTC().Format(time.RFC3339),
		query.PartySize,
		int64(query.Duration/time.Minute),
		query.VIP,
	)
}

// GetAvailability computes table availability for a query. Results may come
// from the availability cache; bookings always re-validate against the store.
func (service *Service) GetAvailability(ctx context.Context, query AvailabilityQuery) (AvailabilitySnapshot, error) {
	if err := query.validate(); err != nil {
		return AvailabilitySnapshot{}, err
	}
	restaurant, err := service.store.GetRestaurant(ctx, query.RestaurantID)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	serviceDate, err := restaurant.LocalDate(query.StartsAt)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	key := AvailabilityCacheKey(query)
	if service.cache != nil {
		snapshot, found, cacheErr := service.cache.Get(ctx, key)
		if cacheErr != nil {
			service.logOperation(ctx, OperationLog{Operation: "read_cache", RestaurantID: query.RestaurantID, Error: cacheErr})
		} else if found {
			return snapshot, nil
		}
	}
	bucket := CacheBucket{RestaurantID: query.RestaurantID, ServiceDate: serviceDate}
	result, err, _ := service.flights.Do(key, func() (any, error) {
		generation := service.buckets.current(bucket)
		snapshot, evaluateErr := service.evaluate(ctx, service.store, restaurant, query, ReservationID{})
		if evaluateErr != nil {
			return AvailabilitySnapshot{}, evaluateErr
		}
		if service.cache != nil {
			if _, setErr := service.buckets.fill(bucket, generation, func() error {
				return service.cache.Set(ctx, key, bucket, snapshot, service.policy.CacheTTL)
			}); setErr != nil {
				service.logOperation(ctx, OperationLog{Operation: "write_cache", RestaurantID: query.RestaurantID, Error: setErr})
			}
		}
		return snapshot, nil
	})
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	return result.(AvailabilitySnapshot), nil
}

// GetTableAvailability lists the occupied intervals of one table on a
// restaurant-local date (YYYY-MM-DD).
func (service *Service) GetTableAvailability(ctx context.Context, tableID TableID, serviceDate string) (TableSchedule, error) {
	if tableID.IsZero() {
		return TableSchedule{}, validationError("table id is required")
	}
	table, err := service.store.GetTable(ctx, tableID)
	if err != nil {
		return TableSchedule{}, err
	}
	restaurant, err := service.store.GetRestaurant(ctx, table.RestaurantID)
	if err != nil {
		return TableSchedule{}, err
	}
	location, err := restaurant.Location()
	if err != nil {
		return TableSchedule{}, err
	}
	dayStart, err := time.ParseInLocation(dateLayout, serviceDate, location)
	if err != nil {
		return TableSchedule{}, validationError("service date %q: %v", serviceDate, err)
	}
	dayEnd := dayStart.AddDate(0, 0, 1)
	reservations, err := service.store.ListActiveReservations(ctx, table.RestaurantID, dayStart, dayEnd)
	if err != nil {
		return TableSchedule{}, err
	}
	now := service.nowFn()
	busy := make([]BusyInterval, 0)
	for _, reservation := range reservations {
		if !reservation.UsesTable(tableID) {
			continue
		}
		end := reservation.occupiedUntil(now)
		if !reservation.StartsAt.Before(dayEnd) || !end.After(dayStart) {
			continue
		}
		busy = append(busy, BusyInterval{
			ReservationID: reservation.ID,
			Status:        reservation.Status,
			Start:         reservation.StartsAt,
			End:           end,
		})
	}
	sort.Slice(busy, func(left, right int) bool {
		return busy[left].Start.Before(busy[right].Start)
	})
	return TableSchedule{TableID: tableID, ServiceDate: serviceDate, Status: table.Status, Busy: busy}, nil
}

// evaluate runs the Availability Index and Table Matcher against store,
// ignoring the occupancy of the given reservation.
func (service *Service) evaluate(ctx context.Context, store Store, restaurant Restaurant, query AvailabilityQuery, ignore ReservationID) (AvailabilitySnapshot, error) {
	duration := query.Duration
	if duration <= 0 {
		estimate, err := service.estimateTurnTime(ctx, store, restaurant, query.PartySize, query.StartsAt)
		if err != nil {
			return AvailabilitySnapshot{}, err
		}
		duration = estimate
	}
	serviceDate, err := restaurant.LocalDate(query.StartsAt)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	open, err := restaurant.IsOpenAt(query.StartsAt)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	windowStart := query.StartsAt.Add(-service.policy.TurnBuffer)
	windowEnd := query.StartsAt.Add(duration + service.policy.TurnBuffer)

	tables, err := store.ListTables(ctx, restaurant.ID)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	reservations, err := store.ListActiveReservations(ctx, restaurant.ID, windowStart, windowEnd)
	if err != nil {
		return AvailabilitySnapshot{}, err
	}
	snapshot := AvailabilitySnapshot{
		RestaurantID: restaurant.ID,
		ServiceDate:  serviceDate,
		StartsAt:     query.StartsAt,
		PartySize:    query.PartySize,
		Duration:     duration,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		Open:         open,
		Tables:       buildTableSlots(tables, reservations, windowStart, windowEnd, query.PartySize, service.nowFn(), service.policy.CleaningInterval, ignore),
	}
	if !open {
		return snapshot, nil
	}
	assignment, err := MatchTables(snapshot.Tables, query.PartySize, query.VIP, service.policy)
	if err != nil && !errors.Is(err, ErrNoAvailability) {
		return AvailabilitySnapshot{}, err
	}
	if err == nil {
		snapshot.Assignment = &assignment
	}
	return snapshot, nil
}

// buildTableSlots marks each table free or busy for [windowStart, windowEnd).
func buildTableSlots(tables []Table, reservations []Reservation, windowStart time.Time, windowEnd time.Time, partySize int, now time.Time, cleaningInterval time.Duration, ignore ReservationID) []TableSlot {
	slots := make([]TableSlot, 0, len(tables))
	for _, table := range tables {
		if table.DeletedAt != nil {
			continue
		}
		slot := TableSlot{
			TableID:     table.ID,
			Label:       table.Label,
			Capacity:    table.Capacity,
			MinCapacity: table.MinCapacity,
			Position:    table.Position,
			VIP:         table.VIP,
			Fits:        table.Fits(partySize),
			Available:   true,
		}
		switch table.Status {
		case TableStatusMaintenance:
			slot.Available = false
		case TableStatusCleaning:
			readyAt := now.Add(cleaningInterval)
			if windowStart.Before(readyAt) {
				slot.Available = false
				slot.OccupiedUntil = &readyAt
			}
		}
		for _, reservation := range reservations {
			if reservation.ID == ignore || reservation.Status.IsTerminal() || !reservation.UsesTable(table.ID) {
				continue
			}
			end := reservation.occupiedUntil(now)
			if !reservation.StartsAt.Before(windowEnd) || !end.After(windowStart) {
				continue
			}
			slot.Available = false
			if slot.OccupiedUntil == nil || end.After(*slot.OccupiedUntil) {
				occupiedBy := reservation.ID
				occupiedUntil := end
				slot.OccupiedBy = &occupiedBy
				slot.OccupiedUntil = &occupiedUntil
			}
		}
		slots = append(slots, slot)
	}
	return slots
}
