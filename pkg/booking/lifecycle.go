package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// reservedStatusHorizon bounds how far ahead a confirmed booking marks its
// tables as reserved.
const reservedStatusHorizon = 24 * time.Hour

// ReservationRequest describes a new booking.
type ReservationRequest struct {
	RestaurantID RestaurantID
	Guest        Guest
	StartsAt     time.Time
	PartySize    int
	// Duration overrides the turn-time estimate when positive.
	Duration        time.Duration
	Occasion        string
	VIP             bool
	SpecialRequests string
}

func (request ReservationRequest) validate(now time.Time) error {
	if request.RestaurantID.IsZero() {
		return validationError("restaurant id is required")
	}
	if request.PartySize <= 0 {
		return validationError("party size must be positive, got %d", request.PartySize)
	}
	if request.StartsAt.IsZero() {
		return validationError("start time is required")
	}
	if request.StartsAt.Before(now) {
		return validationError("start time %s is in the past", request.StartsAt.Format(time.RFC3339))
	}
	if request.Duration < 0 {
		return validationError("duration must not be negative")
	}
	return request.Guest.Validate()
}

// CreateReservation books tables for a party. Availability is re-checked
// against the store inside the transaction, the deposit is captured before
// commit, and the reservation is returned confirmed.
func (service *Service) CreateReservation(ctx context.Context, principal Principal, request ReservationRequest) (Reservation, error) {
	var created Reservation
	var captures []Deposit
	operationError := func() error {
		if err := authorizeBooker(principal, &request.Guest); err != nil {
			return err
		}
		if err := request.validate(service.nowFn()); err != nil {
			return err
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			reservation, err := service.createInTx(ctx, txStore, pending, request, actorOf(principal), &captures)
			if err != nil {
				return err
			}
			created = reservation
			return nil
		})
	}()
	if operationError != nil {
		created = Reservation{}
	}
	service.releaseUncommittedCaptures(ctx, captures, created.Deposit)
	service.logOperation(ctx, OperationLog{
		Operation:     operationCreate,
		RestaurantID:  request.RestaurantID,
		ReservationID: created.ID,
		TableIDs:      created.TableIDs(),
		PartySize:     request.PartySize,
		Amount:        created.Deposit.AmountCents,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return created, nil
}

// authorizeBooker lets guests book only for themselves.
func authorizeBooker(principal Principal, guest *Guest) error {
	if principal.IsAdmin() {
		return nil
	}
	if guest.UserID == "" {
		guest.UserID = principal.ID
		return nil
	}
	return AuthorizeOwnerOrAdmin(principal, guest.UserID)
}

// createInTx books inside txStore. Every successful deposit capture is
// appended to captures so the caller can refund it if the transaction does
// not commit.
func (service *Service) createInTx(ctx context.Context, txStore Store, pending *effects, request ReservationRequest, actor string, captures *[]Deposit) (Reservation, error) {
	if err := txStore.LockRestaurant(ctx, request.RestaurantID); err != nil {
		return Reservation{}, err
	}
	restaurant, err := txStore.GetRestaurant(ctx, request.RestaurantID)
	if err != nil {
		return Reservation{}, err
	}
	open, err := restaurant.IsOpenAt(request.StartsAt)
	if err != nil {
		return Reservation{}, err
	}
	if !open {
		return Reservation{}, validationError("restaurant %s is not seating at %s", restaurant.ID, request.StartsAt.Format(time.RFC3339))
	}
	snapshot, err := service.evaluate(ctx, txStore, restaurant, AvailabilityQuery{
		RestaurantID: request.RestaurantID,
		StartsAt:     request.StartsAt,
		PartySize:    request.PartySize,
		Duration:     request.Duration,
		VIP:          request.VIP,
	}, ReservationID{})
	if err != nil {
		return Reservation{}, err
	}
	if snapshot.Assignment == nil {
		return Reservation{}, fmt.Errorf("%w: no table for party of %d at %s", ErrNoAvailability, request.PartySize, request.StartsAt.Format(time.RFC3339))
	}
	code, err := service.uniqueConfirmationCode(ctx, txStore, restaurant.ID, snapshot.ServiceDate)
	if err != nil {
		return Reservation{}, err
	}
	reservationID, err := NewReservationID(service.idFn())
	if err != nil {
		return Reservation{}, err
	}
	now := service.nowFn()
	reservation := Reservation{
		ID:                reservationID,
		RestaurantID:      restaurant.ID,
		Guest:             request.Guest,
		TableID:           snapshot.Assignment.Primary(),
		CombinedTableIDs:  snapshot.Assignment.Combined(),
		StartsAt:          request.StartsAt,
		ServiceDate:       snapshot.ServiceDate,
		EstimatedDuration: snapshot.Duration,
		PartySize:         request.PartySize,
		Status:            ReservationStatusPending,
		ConfirmationCode:  code,
		Deposit:           DepositFor(restaurant.Deposit, request.PartySize, request.Occasion),
		Occasion:          strings.TrimSpace(request.Occasion),
		VIP:               request.VIP,
		SpecialRequests:   strings.TrimSpace(request.SpecialRequests),
		CreatedAt:         now,
		UpdatedAt:         now,
		Version:           1,
	}
	if err := txStore.CreateReservation(ctx, reservation); err != nil {
		return Reservation{}, err
	}
	if err := service.appendModification(ctx, txStore, nil, reservation, modificationReasonCreated, actor); err != nil {
		return Reservation{}, err
	}
	if err := service.captureDeposit(ctx, &reservation); err != nil {
		return Reservation{}, err
	}
	if reservation.Deposit.CapturedAt != nil {
		*captures = append(*captures, reservation.Deposit)
	}
	reservation.Status = ReservationStatusConfirmed
	if err := service.saveReservation(ctx, txStore, &reservation); err != nil {
		return Reservation{}, err
	}
	if err := service.refreshTables(ctx, txStore, pending, restaurant.ID, reservation.TableIDs()); err != nil {
		return Reservation{}, err
	}
	invalidateReservation(pending, restaurant, reservation)
	pending.event(Event{Type: EventReservationCreated, RestaurantID: restaurant.ID, Reservation: reservationPayload(reservation)})
	pending.notify(NotificationReservationConfirmed, reservation.Guest, reservationNotice(restaurant, reservation))
	return reservation, nil
}

func (service *Service) captureDeposit(ctx context.Context, reservation *Reservation) error {
	if !reservation.Deposit.Required || reservation.Deposit.AmountCents <= 0 {
		return nil
	}
	if service.payments == nil {
		return fmt.Errorf("%w: deposit of %d cents required but no payment gateway is configured", ErrPayment, reservation.Deposit.AmountCents)
	}
	result, err := service.payments.AuthorizeOrCapture(ctx, reservation.Deposit.AmountCents, reservation.ID.String())
	if err != nil {
		return WrapError("payment", "deposit", "capture", fmt.Errorf("%w: %w", ErrPayment, err))
	}
	if !result.Success {
		return fmt.Errorf("%w: deposit of %d cents declined", ErrPayment, reservation.Deposit.AmountCents)
	}
	capturedAt := service.nowFn()
	reservation.Deposit.ExternalRef = result.ExternalRef
	reservation.Deposit.CapturedAt = &capturedAt
	return nil
}

// releaseUncommittedCaptures refunds deposits captured by transaction attempts
// that did not commit. committed is the deposit of the stored reservation, if
// any.
func (service *Service) releaseUncommittedCaptures(ctx context.Context, captures []Deposit, committed Deposit) {
	for _, deposit := range captures {
		if committed.CapturedAt != nil && deposit.ExternalRef == committed.ExternalRef {
			continue
		}
		err := service.payments.Refund(ctx, deposit.ExternalRef, deposit.AmountCents)
		service.logOperation(ctx, OperationLog{
			Operation: operationReleaseCapture,
			Amount:    deposit.AmountCents,
			Error:     WrapError("payment", "deposit", "release", wrapPaymentError(err)),
		})
	}
}

func wrapPaymentError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPayment, err)
}

// CheckIn seats a confirmed reservation. Arrivals more than the early window
// before the start are refused; arrivals after the no-show grace are on the
// no-show path and are refused as a state error.
func (service *Service) CheckIn(ctx context.Context, principal Principal, reservationID ReservationID) (Reservation, error) {
	var seated Reservation
	operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
		reservation, restaurant, err := loadForUpdate(ctx, txStore, principal, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationStatusConfirmed {
			return stateError("reservation %s is %s, not confirmed", reservation.ID, reservation.Status)
		}
		now := service.nowFn()
		if now.Before(reservation.StartsAt.Add(-service.policy.CheckInEarly)) {
			return policyError("check-in opens %s before the %s start", service.policy.CheckInEarly, reservation.StartsAt.Format(time.RFC3339))
		}
		if now.After(reservation.StartsAt.Add(service.policy.NoShowGrace)) {
			return stateError("check-in window for reservation %s closed at %s", reservation.ID, reservation.StartsAt.Add(service.policy.NoShowGrace).Format(time.RFC3339))
		}
		reservation.Status = ReservationStatusSeated
		reservation.SeatedAt = &now
		if err := service.saveReservation(ctx, txStore, &reservation); err != nil {
			return err
		}
		for _, tableID := range reservation.TableIDs() {
			if err := service.transitionTable(ctx, txStore, pending, tableID, TableStatusOccupied); err != nil {
				return err
			}
		}
		if err := joinTables(ctx, txStore, reservation.TableIDs(), true); err != nil {
			return err
		}
		pending.cancelCleaning = append(pending.cancelCleaning, reservation.TableIDs()...)
		invalidateReservation(pending, restaurant, reservation)
		pending.event(Event{Type: EventReservationSeated, RestaurantID: restaurant.ID, Reservation: reservationPayload(reservation)})
		seated = reservation
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationCheckIn,
		RestaurantID:  seated.RestaurantID,
		ReservationID: reservationID,
		TableIDs:      seated.TableIDs(),
		PartySize:     seated.PartySize,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return seated, nil
}

// CompleteDining closes a seated reservation, feeds the actual duration into
// turn-time analytics and sends its tables to cleaning.
func (service *Service) CompleteDining(ctx context.Context, principal Principal, reservationID ReservationID) (Reservation, error) {
	var completed Reservation
	operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
		reservation, restaurant, err := loadForUpdate(ctx, txStore, principal, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationStatusSeated {
			return stateError("reservation %s is %s, not seated", reservation.ID, reservation.Status)
		}
		now := service.nowFn()
		reservation.Status = ReservationStatusCompleted
		reservation.CompletedAt = &now
		if reservation.SeatedAt != nil && now.After(*reservation.SeatedAt) {
			reservation.ActualDuration = now.Sub(*reservation.SeatedAt)
		}
		if err := service.saveReservation(ctx, txStore, &reservation); err != nil {
			return err
		}
		if err := recordTurnTime(ctx, txStore, restaurant, reservation, reservation.ActualDuration); err != nil {
			return err
		}
		for _, tableID := range reservation.TableIDs() {
			if err := service.transitionTable(ctx, txStore, pending, tableID, TableStatusCleaning); err != nil {
				return err
			}
		}
		if err := joinTables(ctx, txStore, reservation.TableIDs(), false); err != nil {
			return err
		}
		pending.scheduleCleaning = append(pending.scheduleCleaning, reservation.TableIDs()...)
		invalidateReservation(pending, restaurant, reservation)
		pending.event(Event{Type: EventReservationCompleted, RestaurantID: restaurant.ID, Reservation: reservationPayload(reservation)})
		pending.notify(NotificationReviewRequest, reservation.Guest, reservationNotice(restaurant, reservation))
		pending.release(freedBy(reservation, now, service.policy.TurnBuffer))
		completed = reservation
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:     operationComplete,
		RestaurantID:  completed.RestaurantID,
		ReservationID: reservationID,
		TableIDs:      completed.TableIDs(),
		PartySize:     completed.PartySize,
		Duration:      completed.ActualDuration,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return completed, nil
}

// CancelReservation cancels a pending or confirmed reservation, keeps the
// cancellation fee and refunds the rest of a captured deposit.
func (service *Service) CancelReservation(ctx context.Context, principal Principal, reservationID ReservationID, reason string) (Reservation, error) {
	var cancelled Reservation
	operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
		reservation, restaurant, err := loadForUpdate(ctx, txStore, principal, reservationID)
		if err != nil {
			return err
		}
		if reservation.Status != ReservationStatusPending && reservation.Status != ReservationStatusConfirmed {
			return stateError("reservation %s is %s and cannot be cancelled", reservation.ID, reservation.Status)
		}
		now := service.nowFn()
		previous := reservation
		fee := CancellationFee(restaurant.Cancellation, reservation.Deposit, reservation.StartsAt, now)
		if err := service.settleDeposit(&reservation, fee); err != nil {
			return err
		}
		reservation.Status = ReservationStatusCancelled
		if err := service.saveReservation(ctx, txStore, &reservation); err != nil {
			return err
		}
		auditReason := "cancelled"
		if trimmed := strings.TrimSpace(reason); trimmed != "" {
			auditReason = "cancelled: " + trimmed
		}
		if err := service.appendModification(ctx, txStore, &previous, reservation, auditReason, actorOf(principal)); err != nil {
			return err
		}
		if err := service.refreshTables(ctx, txStore, pending, restaurant.ID, reservation.TableIDs()); err != nil {
			return err
		}
		invalidateReservation(pending, restaurant, reservation)
		pending.event(Event{Type: EventReservationCancelled, RestaurantID: restaurant.ID, Reservation: reservationPayload(reservation)})
		pending.notify(NotificationReservationCancelled, reservation.Guest, reservationNotice(restaurant, reservation))
		pending.release(freedBy(reservation, now, service.policy.TurnBuffer))
		cancelled = reservation
		return nil
	})
	if operationError == nil && cancelled.Deposit.RefundDueCents > 0 {
		if refunded, refundErr := service.issueRefund(ctx, cancelled.ID); refundErr == nil {
			cancelled = refunded
		}
	}
	service.logOperation(ctx, OperationLog{
		Operation:     operationCancel,
		RestaurantID:  cancelled.RestaurantID,
		ReservationID: reservationID,
		TableIDs:      cancelled.TableIDs(),
		PartySize:     cancelled.PartySize,
		Amount:        cancelled.Deposit.RefundedCents,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return cancelled, nil
}

// settleDeposit records the fee and how much of a captured deposit is owed
// back. The refund itself is issued once the cancellation has committed.
func (service *Service) settleDeposit(reservation *Reservation, fee AmountCents) error {
	reservation.Deposit.FeeCents = fee
	if reservation.Deposit.CapturedAt == nil {
		return nil
	}
	due := reservation.Deposit.AmountCents - fee - reservation.Deposit.RefundedCents
	if due <= 0 {
		reservation.Deposit.RefundDueCents = 0
		return nil
	}
	if service.payments == nil {
		return fmt.Errorf("%w: refund of %d cents due but no payment gateway is configured", ErrPayment, due)
	}
	reservation.Deposit.RefundDueCents = due
	return nil
}

// issueRefund pays out the refund due on a reservation and then moves it to
// the refunded total. A failed refund stays due for SettleRefunds.
func (service *Service) issueRefund(ctx context.Context, reservationID ReservationID) (Reservation, error) {
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	due := reservation.Deposit.RefundDueCents
	refundErr := func() error {
		if due <= 0 {
			return nil
		}
		if service.payments == nil {
			return fmt.Errorf("%w: no payment gateway is configured", ErrPayment)
		}
		if err := service.payments.Refund(ctx, reservation.Deposit.ExternalRef, due); err != nil {
			return WrapError("payment", "deposit", "refund", wrapPaymentError(err))
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			current, err := txStore.GetReservation(ctx, reservationID)
			if err != nil {
				return err
			}
			if current.Deposit.RefundDueCents != due {
				reservation = current
				return nil
			}
			current.Deposit.RefundedCents += due
			current.Deposit.RefundDueCents = 0
			if err := service.saveReservation(ctx, txStore, &current); err != nil {
				return err
			}
			reservation = current
			return nil
		})
	}()
	if due > 0 {
		service.logOperation(ctx, OperationLog{
			Operation:     operationRefund,
			RestaurantID:  reservation.RestaurantID,
			ReservationID: reservationID,
			Amount:        due,
			Error:         refundErr,
		})
	}
	if refundErr != nil {
		return Reservation{}, refundErr
	}
	return reservation, nil
}

// SettleRefunds retries every refund still due and returns the reservations
// it settled. Payment failures and lost races are left for the next pass.
func (service *Service) SettleRefunds(ctx context.Context) ([]ReservationID, error) {
	pendingRefunds, err := service.store.ListPendingRefunds(ctx)
	if err != nil {
		return nil, err
	}
	settled := make([]ReservationID, 0, len(pendingRefunds))
	for _, reservation := range pendingRefunds {
		if err := ctx.Err(); err != nil {
			return settled, err
		}
		refunded, refundErr := service.issueRefund(ctx, reservation.ID)
		switch {
		case refundErr == nil:
			if refunded.Deposit.RefundDueCents == 0 {
				settled = append(settled, reservation.ID)
			}
		case errors.Is(refundErr, ErrPayment), errors.Is(refundErr, ErrConflict):
			continue
		default:
			return settled, refundErr
		}
	}
	return settled, nil
}

// MarkNoShow closes a confirmed reservation whose guest never arrived. The
// whole deposit is kept.
func (service *Service) MarkNoShow(ctx context.Context, principal Principal, reservationID ReservationID) (Reservation, error) {
	var marked Reservation
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may mark no-shows", ErrForbidden)
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			reservation, err := service.markNoShowInTx(ctx, txStore, pending, principal, reservationID)
			if err != nil {
				return err
			}
			marked = reservation
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationNoShow,
		RestaurantID:  marked.RestaurantID,
		ReservationID: reservationID,
		TableIDs:      marked.TableIDs(),
		PartySize:     marked.PartySize,
		Amount:        marked.Deposit.FeeCents,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return marked, nil
}

func (service *Service) markNoShowInTx(ctx context.Context, txStore Store, pending *effects, principal Principal, reservationID ReservationID) (Reservation, error) {
	reservation, restaurant, err := loadForUpdate(ctx, txStore, principal, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if reservation.Status != ReservationStatusConfirmed {
		return Reservation{}, stateError("reservation %s is %s, not confirmed", reservation.ID, reservation.Status)
	}
	now := service.nowFn()
	deadline := reservation.StartsAt.Add(service.policy.NoShowGrace)
	if !now.After(deadline) {
		return Reservation{}, policyError("reservation %s is inside its grace period until %s", reservation.ID, deadline.Format(time.RFC3339))
	}
	if reservation.Deposit.CapturedAt != nil {
		reservation.Deposit.FeeCents = reservation.Deposit.AmountCents
	}
	reservation.Status = ReservationStatusNoShow
	if err := service.saveReservation(ctx, txStore, &reservation); err != nil {
		return Reservation{}, err
	}
	if err := service.refreshTables(ctx, txStore, pending, restaurant.ID, reservation.TableIDs()); err != nil {
		return Reservation{}, err
	}
	invalidateReservation(pending, restaurant, reservation)
	pending.event(Event{Type: EventReservationNoShow, RestaurantID: restaurant.ID, Reservation: reservationPayload(reservation)})
	pending.release(freedBy(reservation, now, service.policy.TurnBuffer))
	return reservation, nil
}

// SweepNoShows marks every confirmed reservation past its grace period as a
// no-show and returns the ids it marked. Reservations that changed
// concurrently are skipped.
func (service *Service) SweepNoShows(ctx context.Context) ([]ReservationID, error) {
	cutoff := service.nowFn().Add(-service.policy.NoShowGrace)
	overdue, err := service.store.ListOverdueReservations(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	marked := make([]ReservationID, 0, len(overdue))
	for _, reservation := range overdue {
		if err := ctx.Err(); err != nil {
			return marked, err
		}
		_, markErr := service.MarkNoShow(ctx, SystemPrincipal, reservation.ID)
		switch {
		case markErr == nil:
			marked = append(marked, reservation.ID)
		case errors.Is(markErr, ErrState), errors.Is(markErr, ErrConflict), errors.Is(markErr, ErrPolicyViolation):
			continue
		default:
			return marked, markErr
		}
	}
	return marked, nil
}

// SweepCleaning returns to service every table that has been cleaning for
// longer than the cleaning interval. It covers cleaning tasks lost with a
// restarted process.
func (service *Service) SweepCleaning(ctx context.Context) ([]TableID, error) {
	cutoff := service.nowFn().Add(-service.policy.CleaningInterval)
	stale, err := service.store.ListTablesInStatus(ctx, TableStatusCleaning, cutoff)
	if err != nil {
		return nil, err
	}
	finished := make([]TableID, 0, len(stale))
	for _, table := range stale {
		if err := ctx.Err(); err != nil {
			return finished, err
		}
		_, finishErr := service.FinishCleaning(ctx, SystemPrincipal, table.ID)
		switch {
		case finishErr == nil:
			finished = append(finished, table.ID)
		case errors.Is(finishErr, ErrState), errors.Is(finishErr, ErrConflict), errors.Is(finishErr, ErrNotFound):
			continue
		default:
			return finished, finishErr
		}
	}
	return finished, nil
}

// FinishCleaning returns a cleaned table to service.
func (service *Service) FinishCleaning(ctx context.Context, principal Principal, tableID TableID) (Table, error) {
	var finished Table
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may change table status", ErrForbidden)
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			table, err := txStore.GetTable(ctx, tableID)
			if err != nil {
				return err
			}
			if err := txStore.LockRestaurant(ctx, table.RestaurantID); err != nil {
				return err
			}
			table, err = txStore.GetTable(ctx, tableID)
			if err != nil {
				return err
			}
			if table.Status != TableStatusCleaning {
				return stateError("table %s is %s, not cleaning", table.ID, table.Status)
			}
			reservations, err := service.upcomingReservations(ctx, txStore, table.RestaurantID)
			if err != nil {
				return err
			}
			if err := service.transitionTable(ctx, txStore, pending, tableID, derivedTableStatus(table.ID, reservations, service.nowFn())); err != nil {
				return err
			}
			restaurant, err := txStore.GetRestaurant(ctx, table.RestaurantID)
			if err != nil {
				return err
			}
			serviceDate, err := restaurant.LocalDate(service.nowFn())
			if err != nil {
				return err
			}
			pending.cancelCleaning = append(pending.cancelCleaning, tableID)
			pending.invalidate(restaurant.ID, serviceDate)
			finished, err = txStore.GetTable(ctx, tableID)
			return err
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:    operationFinishCleaning,
		RestaurantID: finished.RestaurantID,
		TableIDs:     []TableID{tableID},
		Error:        operationError,
	})
	if operationError != nil {
		return Table{}, operationError
	}
	return finished, nil
}

func cleaningTaskKey(tableID TableID) string {
	return "cleaning:" + tableID.String()
}

func (service *Service) scheduleCleaning(tableID TableID) {
	if service.scheduler == nil {
		return
	}
	service.scheduler.Schedule(cleaningTaskKey(tableID), service.policy.CleaningInterval, func() {
		_, err := service.FinishCleaning(context.Background(), SystemPrincipal, tableID)
		if err != nil && !errors.Is(err, ErrState) {
			service.logOperation(context.Background(), OperationLog{Operation: operationFinishCleaning, TableIDs: []TableID{tableID}, Error: err})
		}
	})
}

// loadForUpdate reads a reservation, checks the caller may act on it, and
// takes the restaurant lock before re-reading it.
func loadForUpdate(ctx context.Context, txStore Store, principal Principal, reservationID ReservationID) (Reservation, Restaurant, error) {
	if reservationID.IsZero() {
		return Reservation{}, Restaurant{}, validationError("reservation id is required")
	}
	reservation, err := txStore.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, Restaurant{}, err
	}
	if err := AuthorizeOwnerOrAdmin(principal, reservation.Guest.UserID); err != nil {
		return Reservation{}, Restaurant{}, err
	}
	if err := txStore.LockRestaurant(ctx, reservation.RestaurantID); err != nil {
		return Reservation{}, Restaurant{}, err
	}
	reservation, err = txStore.GetReservation(ctx, reservationID)
	if err != nil {
		return Reservation{}, Restaurant{}, err
	}
	restaurant, err := txStore.GetRestaurant(ctx, reservation.RestaurantID)
	if err != nil {
		return Reservation{}, Restaurant{}, err
	}
	return reservation, restaurant, nil
}

// saveReservation bumps the version and writes the reservation with a
// compare-and-set on the version it was read at.
func (service *Service) saveReservation(ctx context.Context, txStore Store, reservation *Reservation) error {
	expectedVersion := reservation.Version
	reservation.Version = expectedVersion + 1
	reservation.UpdatedAt = service.nowFn()
	return txStore.UpdateReservation(ctx, *reservation, expectedVersion)
}

func (service *Service) appendModification(ctx context.Context, txStore Store, previous *Reservation, current Reservation, reason string, actor string) error {
	record := ModificationRecord{
		ID:            service.idFn(),
		ReservationID: current.ID,
		NewValues:     SnapshotOf(current),
		Reason:        reason,
		Actor:         actor,
		CreatedAt:     service.nowFn(),
	}
	if previous != nil {
		previousValues := SnapshotOf(*previous)
		record.PreviousValues = &previousValues
	}
	return txStore.AppendModification(ctx, record)
}

func (service *Service) transitionTable(ctx context.Context, txStore Store, pending *effects, tableID TableID, to TableStatus) error {
	table, err := txStore.GetTable(ctx, tableID)
	if err != nil {
		return err
	}
	if table.Status == to {
		return nil
	}
	from := table.Status
	table.Status = to
	table.StatusChangedAt = service.nowFn()
	if err := txStore.UpdateTable(ctx, table); err != nil {
		return err
	}
	pending.event(Event{
		Type:         EventTableStatusChanged,
		RestaurantID: table.RestaurantID,
		Table:        &TablePayload{TableID: table.ID, From: from, To: to},
	})
	return nil
}

// joinTables records which tables are physically pushed together for a
// seated combination, or separates them again.
func joinTables(ctx context.Context, txStore Store, tableIDs []TableID, joined bool) error {
	if len(tableIDs) < 2 {
		return nil
	}
	for _, tableID := range tableIDs {
		table, err := txStore.GetTable(ctx, tableID)
		if err != nil {
			return err
		}
		table.CombinedWith = nil
		if joined {
			for _, other := range tableIDs {
				if other != tableID {
					table.CombinedWith = append(table.CombinedWith, other)
				}
			}
		}
		if err := txStore.UpdateTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

// refreshTables recomputes the derived status of tables whose assignments
// changed. Occupied, cleaning and maintenance are left to their own transitions.
func (service *Service) refreshTables(ctx context.Context, txStore Store, pending *effects, restaurantID RestaurantID, tableIDs []TableID) error {
	if len(tableIDs) == 0 {
		return nil
	}
	reservations, err := service.upcomingReservations(ctx, txStore, restaurantID)
	if err != nil {
		return err
	}
	now := service.nowFn()
	for _, tableID := range tableIDs {
		table, err := txStore.GetTable(ctx, tableID)
		if err != nil {
			return err
		}
		switch table.Status {
		case TableStatusOccupied, TableStatusCleaning, TableStatusMaintenance:
			continue
		}
		if err := service.transitionTable(ctx, txStore, pending, tableID, derivedTableStatus(tableID, reservations, now)); err != nil {
			return err
		}
	}
	return nil
}

func (service *Service) upcomingReservations(ctx context.Context, txStore Store, restaurantID RestaurantID) ([]Reservation, error) {
	now := service.nowFn()
	return txStore.ListActiveReservations(ctx, restaurantID, now, now.Add(reservedStatusHorizon))
}

func derivedTableStatus(tableID TableID, reservations []Reservation, now time.Time) TableStatus {
	for _, reservation := range reservations {
		if reservation.Status == ReservationStatusConfirmed && reservation.UsesTable(tableID) && reservation.occupiedUntil(now).After(now) {
			return TableStatusReserved
		}
	}
	return TableStatusAvailable
}

// invalidateReservation drops cached availability for every local date the
// reservation's buffered window touches.
func invalidateReservation(pending *effects, restaurant Restaurant, reservation Reservation) {
	for _, at := range []time.Time{reservation.StartsAt, reservation.EndsAt()} {
		serviceDate, err := restaurant.LocalDate(at)
		if err != nil {
			continue
		}
		pending.invalidate(restaurant.ID, serviceDate)
	}
}

func freedBy(reservation Reservation, now time.Time, buffer time.Duration) FreedCapacity {
	slotStart := reservation.StartsAt
	if now.After(slotStart) {
		slotStart = now
	}
	slotEnd := reservation.EndsAt()
	if !slotEnd.After(slotStart) {
		slotEnd = slotStart.Add(buffer)
	}
	return FreedCapacity{
		RestaurantID: reservation.RestaurantID,
		ServiceDate:  reservation.ServiceDate,
		TableIDs:     reservation.TableIDs(),
		SlotStart:    slotStart,
		SlotEnd:      slotEnd,
	}
}

func reservationNotice(restaurant Restaurant, reservation Reservation) map[string]string {
	return map[string]string{
		"restaurant":        restaurant.Name,
		"reservation_id":    reservation.ID.String(),
		"confirmation_code": reservation.ConfirmationCode,
		"starts_at":         reservation.StartsAt.Format(time.RFC3339),
		"party_size":        strconv.Itoa(reservation.PartySize),
		"status":            reservation.Status.String(),
	}
}

func actorOf(principal Principal) string {
	if principal.ID == "" {
		return string(principal.Role)
	}
	return string(principal.Role) + ":" + principal.ID
}
