package booking

import (
	"context"
	"time"
)

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing booking operation.
type OperationLog struct {
	Operation       string
	RestaurantID    RestaurantID
	ReservationID   ReservationID
	WaitlistEntryID WaitlistEntryID
	TableIDs        []TableID
	PartySize       int
	Amount          AmountCents
	Duration        time.Duration
	Status          string
	Error           error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithPaymentGateway wires the payment collaborator used for deposits.
func WithPaymentGateway(payments PaymentGateway) ServiceOption {
	return func(service *Service) {
		service.payments = payments
	}
}

// WithNotifier wires the notification collaborator.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		if notifier != nil {
			service.notifier = notifier
		}
	}
}

// WithEventPublisher wires the event bus.
func WithEventPublisher(publisher EventPublisher) ServiceOption {
	return func(service *Service) {
		if publisher != nil {
			service.publisher = publisher
		}
	}
}

// WithAvailabilityCache enables cached availability reads.
func WithAvailabilityCache(cache AvailabilityCache) ServiceOption {
	return func(service *Service) {
		service.cache = cache
	}
}

// WithTaskScheduler enables the delayed cleaning-to-available transition.
func WithTaskScheduler(scheduler TaskScheduler) ServiceOption {
	return func(service *Service) {
		service.scheduler = scheduler
	}
}

// WithPolicy overrides the scheduling policy; zero fields keep their defaults.
func WithPolicy(policy Policy) ServiceOption {
	return func(service *Service) {
		service.policy = policy.withDefaults()
	}
}

// WithIDGenerator replaces the uuid-based id generator.
func WithIDGenerator(generate func() string) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.idFn = generate
		}
	}
}

// WithCodeGenerator replaces the random confirmation code generator.
func WithCodeGenerator(generate func() (string, error)) ServiceOption {
	return func(service *Service) {
		if generate != nil {
			service.codeFn = generate
		}
	}
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}
