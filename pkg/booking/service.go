package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Policy holds the scheduling knobs shared by every restaurant.
type Policy struct {
	TurnBuffer             time.Duration
	CombinationSlack       int
	AdjacencyThreshold     float64
	MaxCombinationSize     int
	CheckInEarly           time.Duration
	NoShowGrace            time.Duration
	CleaningInterval       time.Duration
	ModificationLimit      int
	ModificationLeadTime   time.Duration
	WaitlistResponseWindow time.Duration
	CacheTTL               time.Duration
}

const (
	minCacheTTL = 60 * time.Second
	maxCacheTTL = 300 * time.Second
)

// DefaultPolicy returns the documented defaults.
func DefaultPolicy() Policy {
	return Policy{
		TurnBuffer:             15 * time.Minute,
		CombinationSlack:       2,
		AdjacencyThreshold:     1.5,
		MaxCombinationSize:     3,
		CheckInEarly:           30 * time.Minute,
		NoShowGrace:            30 * time.Minute,
		CleaningInterval:       10 * time.Minute,
		ModificationLimit:      3,
		ModificationLeadTime:   2 * time.Hour,
		WaitlistResponseWindow: 30 * time.Minute,
		CacheTTL:               120 * time.Second,
	}
}

func (policy Policy) withDefaults() Policy {
	defaults := DefaultPolicy()
	if policy.TurnBuffer <= 0 {
		policy.TurnBuffer = defaults.TurnBuffer
	}
	if policy.CombinationSlack < 0 {
		policy.CombinationSlack = defaults.CombinationSlack
	}
	if policy.AdjacencyThreshold <= 0 {
		policy.AdjacencyThreshold = defaults.AdjacencyThreshold
	}
	if policy.MaxCombinationSize < 2 {
		policy.MaxCombinationSize = defaults.MaxCombinationSize
	}
	if policy.CheckInEarly <= 0 {
		policy.CheckInEarly = defaults.CheckInEarly
	}
	if policy.NoShowGrace <= 0 {
		policy.NoShowGrace = defaults.NoShowGrace
	}
	if policy.CleaningInterval <= 0 {
		policy.CleaningInterval = defaults.CleaningInterval
	}
	if policy.ModificationLimit <= 0 {
		policy.ModificationLimit = defaults.ModificationLimit
	}
	if policy.ModificationLeadTime <= 0 {
		policy.ModificationLeadTime = defaults.ModificationLeadTime
	}
	if policy.WaitlistResponseWindow <= 0 {
		policy.WaitlistResponseWindow = defaults.WaitlistResponseWindow
	}
	switch {
	case policy.CacheTTL <= 0:
		policy.CacheTTL = defaults.CacheTTL
	case policy.CacheTTL < minCacheTTL:
		policy.CacheTTL = minCacheTTL
	case policy.CacheTTL > maxCacheTTL:
		policy.CacheTTL = maxCacheTTL
	}
	return policy
}

// Service contains the scheduling and assignment logic over a Store.
type Service struct {
	store      Store
	nowFn      func() time.Time
	logger     OperationLogger
	payments   PaymentGateway
	notifier   Notifier
	publisher  EventPublisher
	cache      AvailabilityCache
	scheduler  TaskScheduler
	policy     Policy
	idFn       func() string
	codeFn     func() (string, error)
	flights    singleflight.Group
	promotions keyedMutex
	buckets    bucketGenerations
}

// NewService wires a Service.
func NewService(store Store, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:     store,
		nowFn:     now,
		notifier:  noopNotifier{},
		publisher: noopPublisher{},
		policy:    DefaultPolicy(),
		idFn:      uuid.NewString,
		codeFn:    randomConfirmationCode,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// Policy returns the effective scheduling policy.
func (service *Service) Policy() Policy {
	return service.policy
}

// notification is a guest message queued until the transaction commits.
type notification struct {
	kind      string
	recipient string
	payload   map[string]string
}

// FreedCapacity describes tables released by a committed transition. The
// Waitlist Coordinator offers them to the first queued party that fits.
type FreedCapacity struct {
	RestaurantID RestaurantID
	ServiceDate  string
	TableIDs     []TableID
	SlotStart    time.Time
	SlotEnd      time.Time
}

// effects collects side effects that may only run after a commit.
type effects struct {
	events           []Event
	buckets          []CacheBucket
	notifications    []notification
	cancelCleaning   []TableID
	scheduleCleaning []TableID
	promotions       []FreedCapacity
}

func (pending *effects) event(event Event) {
	pending.events = append(pending.events, event)
}

func (pending *effects) invalidate(restaurantID RestaurantID, serviceDate string) {
	bucket := CacheBucket{RestaurantID: restaurantID, ServiceDate: serviceDate}
	for _, existing := range pending.buckets {
		if existing == bucket {
			return
		}
	}
	pending.buckets = append(pending.buckets, bucket)
}

func (pending *effects) release(freed FreedCapacity) {
	if len(freed.TableIDs) == 0 {
		return
	}
	pending.promotions = append(pending.promotions, freed)
}

func (pending *effects) notify(kind string, guest Guest, payload map[string]string) {
	recipient := guest.Recipient()
	if recipient == "" {
		return
	}
	pending.notifications = append(pending.notifications, notification{kind: kind, recipient: recipient, payload: payload})
}

// mutate runs fn in one store transaction and applies the collected side
// effects once it commits.
func (service *Service) mutate(ctx context.Context, fn func(ctx context.Context, txStore Store, pending *effects) error) error {
	pending := &effects{}
	err := service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
		*pending = effects{}
		return fn(ctx, txStore, pending)
	})
	if err != nil {
		return err
	}
	service.apply(ctx, pending)
	return nil
}

// apply runs post-commit side effects. Failures are logged, never returned:
// the transaction they describe has already committed.
func (service *Service) apply(ctx context.Context, pending *effects) {
	for _, tableID := range pending.cancelCleaning {
		if service.scheduler != nil {
			service.scheduler.Cancel(cleaningTaskKey(tableID))
		}
	}
	for _, tableID := range pending.scheduleCleaning {
		service.scheduleCleaning(tableID)
	}
	if service.cache != nil {
		for _, bucket := range pending.buckets {
			if err := service.buckets.invalidate(bucket, func() error {
				return service.cache.InvalidateBucket(ctx, bucket)
			}); err != nil {
				service.logOperation(ctx, OperationLog{Operation: "invalidate_cache", RestaurantID: bucket.RestaurantID, Error: err})
			}
		}
	}
	for _, event := range pending.events {
		if event.ID == "" {
			event.ID = service.idFn()
		}
		if event.OccurredAt.IsZero() {
			event.OccurredAt = service.nowFn()
		}
		if err := service.publisher.Publish(ctx, event); err != nil {
			service.logOperation(ctx, OperationLog{Operation: "publish_" + string(event.Type), RestaurantID: event.RestaurantID, Error: err})
		}
	}
	for _, message := range pending.notifications {
		if err := service.notifier.Send(ctx, message.kind, message.recipient, message.payload); err != nil {
			service.logOperation(ctx, OperationLog{Operation: "notify_" + message.kind, Error: err})
		}
	}
	for _, request := range pending.promotions {
		if _, _, err := service.promote(ctx, request); err != nil {
			service.logOperation(ctx, OperationLog{Operation: operationPromote, RestaurantID: request.RestaurantID, Error: err})
		}
	}
}

// keyedMutex serializes work per key; the zero value is ready to use.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is free and returns its unlock function.
func (keyed *keyedMutex) Lock(key string) func() {
	keyed.mu.Lock()
	if keyed.locks == nil {
		keyed.locks = make(map[string]*keyedLock)
	}
	lock, ok := keyed.locks[key]
	if !ok {
		lock = &keyedLock{}
		keyed.locks[key] = lock
	}
	lock.refs++
	keyed.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		keyed.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(keyed.locks, key)
		}
		keyed.mu.Unlock()
	}
}

// bucketGenerations counts invalidations per cache bucket. A fill that read
// the store under an older generation must not write its snapshot back.
type bucketGenerations struct {
	mu     sync.Mutex
	writes keyedMutex
	values map[CacheBucket]uint64
}

func (generations *bucketGenerations) current(bucket CacheBucket) uint64 {
	generations.mu.Lock()
	defer generations.mu.Unlock()
	return generations.values[bucket]
}

// invalidate bumps the generation of bucket and runs drop while no fill of
// the bucket can write.
func (generations *bucketGenerations) invalidate(bucket CacheBucket, drop func() error) error {
	unlock := generations.writes.Lock(bucket.RestaurantID.String() + "|" + bucket.ServiceDate)
	defer unlock()
	generations.mu.Lock()
	if generations.values == nil {
		generations.values = make(map[CacheBucket]uint64)
	}
	generations.values[bucket]++
	generations.mu.Unlock()
	return drop()
}

// fill runs write only if bucket is still at generation. It reports whether
// write ran.
func (generations *bucketGenerations) fill(bucket CacheBucket, generation uint64, write func() error) (bool, error) {
	unlock := generations.writes.Lock(bucket.RestaurantID.String() + "|" + bucket.ServiceDate)
	defer unlock()
	if generations.current(bucket) != generation {
		return false, nil
	}
	return true, write()
}
