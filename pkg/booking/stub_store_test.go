package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type memoryState struct {
	restaurants   map[RestaurantID]Restaurant
	tables        map[TableID]Table
	reservations  map[ReservationID]Reservation
	modifications []ModificationRecord
	waitlist      map[WaitlistEntryID]WaitlistEntry
	turnTimes     map[TurnTimeKey]TurnTimeStat
}

func newMemoryState() *memoryState {
	return &memoryState{
		restaurants:  make(map[RestaurantID]Restaurant),
		tables:       make(map[TableID]Table),
		reservations: make(map[ReservationID]Reservation),
		waitlist:     make(map[WaitlistEntryID]WaitlistEntry),
		turnTimes:    make(map[TurnTimeKey]TurnTimeStat),
	}
}

func (state *memoryState) clone() *memoryState {
	copied := newMemoryState()
	for key, value := range state.restaurants {
		copied.restaurants[key] = value
	}
	for key, value := range state.tables {
		copied.tables[key] = value
	}
	for key, value := range state.reservations {
		copied.reservations[key] = value
	}
	copied.modifications = append([]ModificationRecord(nil), state.modifications...)
	for key, value := range state.waitlist {
		copied.waitlist[key] = value
	}
	for key, value := range state.turnTimes {
		copied.turnTimes[key] = value
	}
	return copied
}

type memoryShared struct {
	txMu            sync.Mutex
	mu              sync.RWMutex
	state           *memoryState
	failWrite       error
	failTableUpdate error
	commits         int
}

// memoryStore keeps committed state in memory. Transactions are serialized
// and work on a copy that replaces the committed state only on success.
type memoryStore struct {
	shared *memoryShared
	tx     *memoryState
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{shared: &memoryShared{state: newMemoryState()}}
}

func (store *memoryStore) read(fn func(state *memoryState)) {
	if store.tx != nil {
		fn(store.tx)
		return
	}
	store.shared.mu.RLock()
	defer store.shared.mu.RUnlock()
	fn(store.shared.state)
}

func (store *memoryStore) write(fn func(state *memoryState) error) error {
	if store.shared.failWrite != nil {
		return store.shared.failWrite
	}
	if store.tx != nil {
		return fn(store.tx)
	}
	store.shared.mu.Lock()
	defer store.shared.mu.Unlock()
	return fn(store.shared.state)
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if store.tx != nil {
		return fn(ctx, store)
	}
	store.shared.txMu.Lock()
	defer store.shared.txMu.Unlock()
	store.shared.mu.RLock()
	working := store.shared.state.clone()
	store.shared.mu.RUnlock()
	if err := fn(ctx, &memoryStore{shared: store.shared, tx: working}); err != nil {
		return err
	}
	store.shared.mu.Lock()
	store.shared.state = working
	store.shared.commits++
	store.shared.mu.Unlock()
	return nil
}

func (store *memoryStore) SaveRestaurant(_ context.Context, restaurant Restaurant) error {
	return store.write(func(state *memoryState) error {
		state.restaurants[restaurant.ID] = restaurant
		return nil
	})
}

func (store *memoryStore) GetRestaurant(_ context.Context, restaurantID RestaurantID) (Restaurant, error) {
	var (
		restaurant Restaurant
		ok         bool
	)
	store.read(func(state *memoryState) {
		restaurant, ok = state.restaurants[restaurantID]
	})
	if !ok {
		return Restaurant{}, fmt.Errorf("%w: restaurant %s", ErrNotFound, restaurantID)
	}
	return restaurant, nil
}

func (store *memoryStore) LockRestaurant(ctx context.Context, restaurantID RestaurantID) error {
	_, err := store.GetRestaurant(ctx, restaurantID)
	return err
}

func (store *memoryStore) CreateTable(_ context.Context, table Table) error {
	return store.write(func(state *memoryState) error {
		if _, exists := state.tables[table.ID]; exists {
			return fmt.Errorf("%w: table %s exists", ErrConflict, table.ID)
		}
		state.tables[table.ID] = table
		return nil
	})
}

func (store *memoryStore) GetTable(_ context.Context, tableID TableID) (Table, error) {
	var (
		table Table
		ok    bool
	)
	store.read(func(state *memoryState) {
		table, ok = state.tables[tableID]
	})
	if !ok {
		return Table{}, fmt.Errorf("%w: table %s", ErrNotFound, tableID)
	}
	return table, nil
}

func (store *memoryStore) ListTables(_ context.Context, restaurantID RestaurantID) ([]Table, error) {
	tables := make([]Table, 0)
	store.read(func(state *memoryState) {
		for _, table := range state.tables {
			if table.RestaurantID == restaurantID && table.DeletedAt == nil {
				tables = append(tables, table)
			}
		}
	})
	sort.Slice(tables, func(left, right int) bool { return tables[left].Label < tables[right].Label })
	return tables, nil
}

func (store *memoryStore) UpdateTable(_ context.Context, table Table) error {
	if store.shared.failTableUpdate != nil {
		return store.shared.failTableUpdate
	}
	return store.write(func(state *memoryState) error {
		if _, ok := state.tables[table.ID]; !ok {
			return fmt.Errorf("%w: table %s", ErrNotFound, table.ID)
		}
		state.tables[table.ID] = table
		return nil
	})
}

func (store *memoryStore) ListTablesInStatus(_ context.Context, status TableStatus, changedBefore time.Time) ([]Table, error) {
	tables := make([]Table, 0)
	store.read(func(state *memoryState) {
		for _, table := range state.tables {
			if table.Status == status && table.DeletedAt == nil && table.StatusChangedAt.Before(changedBefore) {
				tables = append(tables, table)
			}
		}
	})
	sort.Slice(tables, func(left, right int) bool { return tables[left].ID.String() < tables[right].ID.String() })
	return tables, nil
}

func (store *memoryStore) CreateReservation(_ context.Context, reservation Reservation) error {
	return store.write(func(state *memoryState) error {
		if _, exists := state.reservations[reservation.ID]; exists {
			return fmt.Errorf("%w: reservation %s exists", ErrConflict, reservation.ID)
		}
		state.reservations[reservation.ID] = reservation
		return nil
	})
}

func (store *memoryStore) GetReservation(_ context.Context, reservationID ReservationID) (Reservation, error) {
	var (
		reservation Reservation
		ok          bool
	)
	store.read(func(state *memoryState) {
		reservation, ok = state.reservations[reservationID]
	})
	if !ok {
		return Reservation{}, fmt.Errorf("%w: reservation %s", ErrNotFound, reservationID)
	}
	return reservation, nil
}

func (store *memoryStore) UpdateReservation(_ context.Context, reservation Reservation, expectedVersion int64) error {
	return store.write(func(state *memoryState) error {
		stored, ok := state.reservations[reservation.ID]
		if !ok {
			return fmt.Errorf("%w: reservation %s", ErrNotFound, reservation.ID)
		}
		if stored.Version != expectedVersion {
			return fmt.Errorf("%w: reservation %s version %d, expected %d", ErrConflict, reservation.ID, stored.Version, expectedVersion)
		}
		state.reservations[reservation.ID] = reservation
		return nil
	})
}

func (store *memoryStore) ListActiveReservations(_ context.Context, restaurantID RestaurantID, from time.Time, to time.Time) ([]Reservation, error) {
	reservations := make([]Reservation, 0)
	store.read(func(state *memoryState) {
		for _, reservation := range state.reservations {
			if reservation.RestaurantID != restaurantID || reservation.Status.IsTerminal() {
				continue
			}
			if !reservation.StartsAt.Before(to) {
				continue
			}
			if reservation.Status != ReservationStatusSeated && !reservation.EndsAt().After(from) {
				continue
			}
			reservations = append(reservations, reservation)
		}
	})
	sort.Slice(reservations, func(left, right int) bool {
		return reservations[left].StartsAt.Before(reservations[right].StartsAt)
	})
	return reservations, nil
}

func (store *memoryStore) ListOverdueReservations(_ context.Context, cutoff time.Time) ([]Reservation, error) {
	reservations := make([]Reservation, 0)
	store.read(func(state *memoryState) {
		for _, reservation := range state.reservations {
			if reservation.Status == ReservationStatusConfirmed && reservation.StartsAt.Before(cutoff) {
				reservations = append(reservations, reservation)
			}
		}
	})
	sort.Slice(reservations, func(left, right int) bool {
		return reservations[left].StartsAt.Before(reservations[right].StartsAt)
	})
	return reservations, nil
}

func (store *memoryStore) ListPendingRefunds(_ context.Context) ([]Reservation, error) {
	reservations := make([]Reservation, 0)
	store.read(func(state *memoryState) {
		for _, reservation := range state.reservations {
			if reservation.Deposit.RefundDueCents > 0 {
				reservations = append(reservations, reservation)
			}
		}
	})
	sort.Slice(reservations, func(left, right int) bool {
		return reservations[left].ID.String() < reservations[right].ID.String()
	})
	return reservations, nil
}

func (store *memoryStore) ConfirmationCodeExists(_ context.Context, restaurantID RestaurantID, serviceDate string, code string) (bool, error) {
	exists := false
	store.read(func(state *memoryState) {
		for _, reservation := range state.reservations {
			if reservation.RestaurantID == restaurantID && reservation.ServiceDate == serviceDate && reservation.ConfirmationCode == code {
				exists = true
			}
		}
	})
	return exists, nil
}

func (store *memoryStore) AppendModification(_ context.Context, record ModificationRecord) error {
	return store.write(func(state *memoryState) error {
		state.modifications = append(state.modifications, record)
		return nil
	})
}

func (store *memoryStore) ListModifications(_ context.Context, reservationID ReservationID) ([]ModificationRecord, error) {
	records := make([]ModificationRecord, 0)
	store.read(func(state *memoryState) {
		for _, record := range state.modifications {
			if record.ReservationID == reservationID {
				records = append(records, record)
			}
		}
	})
	return records, nil
}

func (store *memoryStore) CreateWaitlistEntry(_ context.Context, entry WaitlistEntry) error {
	return store.write(func(state *memoryState) error {
		state.waitlist[entry.ID] = entry
		return nil
	})
}

func (store *memoryStore) GetWaitlistEntry(_ context.Context, entryID WaitlistEntryID) (WaitlistEntry, error) {
	var (
		entry WaitlistEntry
		ok    bool
	)
	store.read(func(state *memoryState) {
		entry, ok = state.waitlist[entryID]
	})
	if !ok {
		return WaitlistEntry{}, fmt.Errorf("%w: waitlist entry %s", ErrNotFound, entryID)
	}
	return entry, nil
}

func (store *memoryStore) UpdateWaitlistEntry(_ context.Context, entry WaitlistEntry) error {
	return store.write(func(state *memoryState) error {
		if _, ok := state.waitlist[entry.ID]; !ok {
			return fmt.Errorf("%w: waitlist entry %s", ErrNotFound, entry.ID)
		}
		state.waitlist[entry.ID] = entry
		return nil
	})
}

func (store *memoryStore) ListQueuedWaitlist(_ context.Context, restaurantID RestaurantID, serviceDate string) ([]WaitlistEntry, error) {
	entries := make([]WaitlistEntry, 0)
	store.read(func(state *memoryState) {
		for _, entry := range state.waitlist {
			if entry.RestaurantID == restaurantID && entry.Date == serviceDate && entry.Status.IsQueued() {
				entries = append(entries, entry)
			}
		}
	})
	sort.Slice(entries, func(left, right int) bool { return entries[left].Position < entries[right].Position })
	return entries, nil
}

func (store *memoryStore) ListLapsedWaitlist(_ context.Context, now time.Time) ([]WaitlistEntry, error) {
	entries := make([]WaitlistEntry, 0)
	store.read(func(state *memoryState) {
		for _, entry := range state.waitlist {
			if entryLapsed(entry, now) {
				entries = append(entries, entry)
			}
		}
	})
	sort.Slice(entries, func(left, right int) bool { return entries[left].Position < entries[right].Position })
	return entries, nil
}

func (store *memoryStore) GetTurnTimeStat(_ context.Context, key TurnTimeKey) (TurnTimeStat, bool, error) {
	var (
		stat TurnTimeStat
		ok   bool
	)
	store.read(func(state *memoryState) {
		stat, ok = state.turnTimes[key]
	})
	return stat, ok, nil
}

func (store *memoryStore) SaveTurnTimeStat(_ context.Context, stat TurnTimeStat) error {
	return store.write(func(state *memoryState) error {
		state.turnTimes[stat.Key] = stat
		return nil
	})
}

func (store *memoryStore) mustReservation(test *testing.T, reservationID ReservationID) Reservation {
	test.Helper()
	reservation, err := store.GetReservation(context.Background(), reservationID)
	if err != nil {
		test.Fatalf("reservation %s: %v", reservationID, err)
	}
	return reservation
}

func (store *memoryStore) mustTable(test *testing.T, tableID TableID) Table {
	test.Helper()
	table, err := store.GetTable(context.Background(), tableID)
	if err != nil {
		test.Fatalf("table %s: %v", tableID, err)
	}
	return table
}

func (store *memoryStore) mustEntry(test *testing.T, entryID WaitlistEntryID) WaitlistEntry {
	test.Helper()
	entry, err := store.GetWaitlistEntry(context.Background(), entryID)
	if err != nil {
		test.Fatalf("waitlist entry %s: %v", entryID, err)
	}
	return entry
}

// queuedPositions returns positions of queued entries in join order.
func (store *memoryStore) queuedPositions(test *testing.T, restaurantID RestaurantID, serviceDate string) []int {
	test.Helper()
	entries, err := store.ListQueuedWaitlist(context.Background(), restaurantID, serviceDate)
	if err != nil {
		test.Fatalf("list waitlist: %v", err)
	}
	sort.SliceStable(entries, func(left, right int) bool { return entries[left].JoinedAt.Before(entries[right].JoinedAt) })
	positions := make([]int, len(entries))
	for index, entry := range entries {
		positions[index] = entry.Position
	}
	return positions
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(now time.Time) *manualClock {
	return &manualClock{now: now}
}

func (clock *manualClock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

func (clock *manualClock) Set(now time.Time) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = now
}

func (clock *manualClock) Advance(step time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(step)
}

type stubPayments struct {
	mu          sync.Mutex
	captureErr  error
	declined    bool
	refundErr   error
	captures    []AmountCents
	refunds     []AmountCents
	refundedRef []string
}

func (payments *stubPayments) AuthorizeOrCapture(_ context.Context, amount AmountCents, reference string) (PaymentResult, error) {
	payments.mu.Lock()
	defer payments.mu.Unlock()
	if payments.captureErr != nil {
		return PaymentResult{}, payments.captureErr
	}
	if payments.declined {
		return PaymentResult{Success: false}, nil
	}
	payments.captures = append(payments.captures, amount)
	return PaymentResult{Success: true, ExternalRef: "pay-" + reference}, nil
}

func (payments *stubPayments) Refund(_ context.Context, externalRef string, amount AmountCents) error {
	payments.mu.Lock()
	defer payments.mu.Unlock()
	if payments.refundErr != nil {
		return payments.refundErr
	}
	payments.refunds = append(payments.refunds, amount)
	payments.refundedRef = append(payments.refundedRef, externalRef)
	return nil
}

type sentNotification struct {
	kind      string
	recipient string
	payload   map[string]string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (notifier *recordingNotifier) Send(_ context.Context, kind string, recipient string, payload map[string]string) error {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	notifier.sent = append(notifier.sent, sentNotification{kind: kind, recipient: recipient, payload: payload})
	return nil
}

func (notifier *recordingNotifier) kinds() []string {
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	kinds := make([]string, len(notifier.sent))
	for index, message := range notifier.sent {
		kinds[index] = message.kind
	}
	return kinds
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (publisher *recordingPublisher) Publish(_ context.Context, event Event) error {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	publisher.events = append(publisher.events, event)
	return publisher.err
}

func (publisher *recordingPublisher) types() []EventType {
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	types := make([]EventType, len(publisher.events))
	for index, event := range publisher.events {
		types[index] = event.Type
	}
	return types
}

func (publisher *recordingPublisher) count(eventType EventType) int {
	count := 0
	for _, recorded := range publisher.types() {
		if recorded == eventType {
			count++
		}
	}
	return count
}

type memoryCache struct {
	mu          sync.Mutex
	entries     map[string]AvailabilitySnapshot
	buckets     map[CacheBucket][]string
	gets        int
	invalidated []CacheBucket
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]AvailabilitySnapshot), buckets: make(map[CacheBucket][]string)}
}

func (cache *memoryCache) Get(_ context.Context, key string) (AvailabilitySnapshot, bool, error) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.gets++
	snapshot, ok := cache.entries[key]
	return snapshot, ok, nil
}

func (cache *memoryCache) Set(_ context.Context, key string, bucket CacheBucket, snapshot AvailabilitySnapshot, _ time.Duration) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[key] = snapshot
	cache.buckets[bucket] = append(cache.buckets[bucket], key)
	return nil
}

func (cache *memoryCache) InvalidateBucket(_ context.Context, bucket CacheBucket) error {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	for _, key := range cache.buckets[bucket] {
		delete(cache.entries, key)
	}
	delete(cache.buckets, bucket)
	cache.invalidated = append(cache.invalidated, bucket)
	return nil
}

type manualScheduler struct {
	mu    sync.Mutex
	tasks map[string]func()
	delay map[string]time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{tasks: make(map[string]func()), delay: make(map[string]time.Duration)}
}

func (scheduler *manualScheduler) Schedule(key string, delay time.Duration, task func()) {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	scheduler.tasks[key] = task
	scheduler.delay[key] = delay
}

func (scheduler *manualScheduler) Cancel(key string) bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	_, ok := scheduler.tasks[key]
	delete(scheduler.tasks, key)
	delete(scheduler.delay, key)
	return ok
}

func (scheduler *manualScheduler) pending(key string) bool {
	scheduler.mu.Lock()
	defer scheduler.mu.Unlock()
	_, ok := scheduler.tasks[key]
	return ok
}

func (scheduler *manualScheduler) fire(key string) bool {
	scheduler.mu.Lock()
	task, ok := scheduler.tasks[key]
	delete(scheduler.tasks, key)
	delete(scheduler.delay, key)
	scheduler.mu.Unlock()
	if ok {
		task()
	}
	return ok
}

type recorderLogger struct {
	mu      sync.Mutex
	entries []OperationLog
}

func (logger *recorderLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recorderLogger) find(operation string) []OperationLog {
	logger.mu.Lock()
	defer logger.mu.Unlock()
	found := make([]OperationLog, 0)
	for _, entry := range logger.entries {
		if entry.Operation == operation {
			found = append(found, entry)
		}
	}
	return found
}

// fixture wires a Service over a memory store with recording collaborators.
type fixture struct {
	store      *memoryStore
	clock      *manualClock
	payments   *stubPayments
	notifier   *recordingNotifier
	publisher  *recordingPublisher
	cache      *memoryCache
	scheduler  *manualScheduler
	logger     *recorderLogger
	service    *Service
	restaurant Restaurant
	ids        int
	idMu       sync.Mutex
}

var (
	testAdmin = Principal{ID: "host-1", Role: RoleAdmin}
	testGuest = Principal{ID: "guest-1", Role: RoleGuest}
	// Monday 2026-03-02 09:00 UTC.
	testNow = time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)
)

func at(hour int, minute int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, 0, 0, time.UTC)
}

func newFixture(test *testing.T, options ...ServiceOption) *fixture {
	test.Helper()
	fx := &fixture{
		store:     newMemoryStore(test),
		clock:     newManualClock(testNow),
		payments:  &stubPayments{},
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
		cache:     newMemoryCache(),
		scheduler: newManualScheduler(),
		logger:    &recorderLogger{},
	}
	base := []ServiceOption{
		WithPaymentGateway(fx.payments),
		WithNotifier(fx.notifier),
		WithEventPublisher(fx.publisher),
		WithAvailabilityCache(fx.cache),
		WithTaskScheduler(fx.scheduler),
		WithOperationLogger(fx.logger),
		WithIDGenerator(fx.nextID),
	}
	service, err := NewService(fx.store, fx.clock.Now, append(base, options...)...)
	if err != nil {
		test.Fatalf("new service: %v", err)
	}
	fx.service = service
	hours := make([]OpeningRange, 0, 7)
	for day := time.Sunday; day <= time.Saturday; day++ {
		hours = append(hours, OpeningRange{Weekday: day, OpenMinute: 11 * 60, CloseMinute: 23 * 60})
	}
	fx.restaurant = Restaurant{
		ID:           mustRestaurantID(test, "bistro"),
		Name:         "Bistro",
		TimeZone:     "UTC",
		Hours:        hours,
		Cancellation: DefaultCancellationPolicy(),
	}
	if err := fx.store.SaveRestaurant(context.Background(), fx.restaurant); err != nil {
		test.Fatalf("save restaurant: %v", err)
	}
	return fx
}

func (fx *fixture) nextID() string {
	fx.idMu.Lock()
	defer fx.idMu.Unlock()
	fx.ids++
	return fmt.Sprintf("id-%03d", fx.ids)
}

func (fx *fixture) updateRestaurant(test *testing.T, mutate func(restaurant *Restaurant)) {
	test.Helper()
	mutate(&fx.restaurant)
	if err := fx.store.SaveRestaurant(context.Background(), fx.restaurant); err != nil {
		test.Fatalf("save restaurant: %v", err)
	}
}

func (fx *fixture) addTable(test *testing.T, label string, capacity int, x float64, y float64, vip bool) TableID {
	test.Helper()
	tableID := mustTableID(test, label)
	table := Table{
		ID:           tableID,
		RestaurantID: fx.restaurant.ID,
		Label:        label,
		Capacity:     capacity,
		Position:     Position{X: x, Y: y},
		VIP:          vip,
		Status:       TableStatusAvailable,
	}
	if err := fx.store.CreateTable(context.Background(), table); err != nil {
		test.Fatalf("create table: %v", err)
	}
	return tableID
}

func (fx *fixture) book(test *testing.T, startsAt time.Time, partySize int) Reservation {
	test.Helper()
	reservation, err := fx.service.CreateReservation(context.Background(), testGuest, fx.request(startsAt, partySize))
	if err != nil {
		test.Fatalf("create reservation at %s for %d: %v", startsAt.Format(time.RFC3339), partySize, err)
	}
	return reservation
}

func (fx *fixture) request(startsAt time.Time, partySize int) ReservationRequest {
	return ReservationRequest{
		RestaurantID: fx.restaurant.ID,
		Guest:        Guest{Name: "Ada", Email: "ada@example.com"},
		StartsAt:     startsAt,
		PartySize:    partySize,
	}
}

func mustRestaurantID(test *testing.T, raw string) RestaurantID {
	test.Helper()
	id, err := NewRestaurantID(raw)
	if err != nil {
		test.Fatalf("restaurant id: %v", err)
	}
	return id
}

func mustTableID(test *testing.T, raw string) TableID {
	test.Helper()
	id, err := NewTableID(raw)
	if err != nil {
		test.Fatalf("table id: %v", err)
	}
	return id
}

func mustReservationID(test *testing.T, raw string) ReservationID {
	test.Helper()
	id, err := NewReservationID(raw)
	if err != nil {
		test.Fatalf("reservation id: %v", err)
	}
	return id
}

func expectError(test *testing.T, err error, target error) {
	test.Helper()
	if !errors.Is(err, target) {
		test.Fatalf("expected %v, got %v", target, err)
	}
}
