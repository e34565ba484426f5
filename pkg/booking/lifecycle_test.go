package booking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCreateReservationConfirmsAndAssignsTable(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t4", 4, 0, 0, false)

	reservation := fx.book(test, at(19, 0), 3)

	if reservation.Status != ReservationStatusConfirmed {
		test.Fatalf("expected confirmed, got %s", reservation.Status)
	}
	if reservation.TableID != tableID {
		test.Fatalf("expected table %s, got %s", tableID, reservation.TableID)
	}
	if reservation.EstimatedDuration != 75*time.Minute {
		test.Fatalf("expected default turn time for 3, got %s", reservation.EstimatedDuration)
	}
	if len(reservation.ConfirmationCode) != confirmationCodeLength {
		test.Fatalf("unexpected confirmation code %q", reservation.ConfirmationCode)
	}
	if reservation.Guest.UserID != testGuest.ID {
		test.Fatalf("expected booking owned by %s, got %q", testGuest.ID, reservation.Guest.UserID)
	}
	stored := fx.store.mustReservation(test, reservation.ID)
	if stored.Version != reservation.Version || stored.Status != ReservationStatusConfirmed {
		test.Fatalf("stored reservation mismatch: %+v", stored)
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusReserved {
		test.Fatalf("expected reserved table, got %s", status)
	}
	records, err := fx.service.ListModifications(context.Background(), testGuest, reservation.ID)
	if err != nil {
		test.Fatalf("list modifications: %v", err)
	}
	if len(records) != 1 || records[0].Reason != modificationReasonCreated || records[0].PreviousValues != nil {
		test.Fatalf("expected audit seed, got %+v", records)
	}
	if fx.publisher.count(EventReservationCreated) != 1 || fx.publisher.count(EventTableStatusChanged) != 1 {
		test.Fatalf("unexpected events %v", fx.publisher.types())
	}
	if kinds := fx.notifier.kinds(); len(kinds) != 1 || kinds[0] != NotificationReservationConfirmed {
		test.Fatalf("expected confirmation notice, got %v", kinds)
	}
	if len(fx.cache.invalidated) == 0 || fx.cache.invalidated[0].ServiceDate != "2026-03-02" {
		test.Fatalf("expected bucket invalidation, got %v", fx.cache.invalidated)
	}
}

func TestBookedSingleTableRejectsSecondParty(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t4", 4, 0, 0, false)

	fx.book(test, at(19, 0), 4)
	_, err := fx.service.CreateReservation(context.Background(), testGuest, fx.request(at(19, 0), 2))
	expectError(test, err, ErrNoAvailability)
}

func TestAdjacentTwoTopsCombineForPartyOfFour(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	first := fx.addTable(test, "t1", 2, 0, 0, false)
	second := fx.addTable(test, "t2", 2, 1, 0, false)

	reservation := fx.book(test, at(19, 0), 4)

	if len(reservation.TableIDs()) != 2 || !reservation.UsesTable(first) || !reservation.UsesTable(second) {
		test.Fatalf("expected both tables combined, got %v", reservation.TableIDs())
	}
	snapshot, err := fx.service.GetAvailability(context.Background(), AvailabilityQuery{RestaurantID: fx.restaurant.ID, StartsAt: at(21, 0), PartySize: 4})
	if err != nil {
		test.Fatalf("availability: %v", err)
	}
	if snapshot.Assignment == nil || snapshot.Assignment.TotalCapacity != 4 {
		test.Fatalf("expected combination of capacity 4 later in the evening, got %+v", snapshot.Assignment)
	}
}

func TestLateCancellationKeepsHalfTheDeposit(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t4", 4, 0, 0, false)
	fx.updateRestaurant(test, func(restaurant *Restaurant) {
		restaurant.Deposit = DepositPolicy{Required: true, AmountCents: 5000}
	})
	reservation := fx.book(test, at(19, 0), 2)
	if reservation.Deposit.CapturedAt == nil || reservation.Deposit.AmountCents != 5000 {
		test.Fatalf("expected captured deposit, got %+v", reservation.Deposit)
	}

	fx.clock.Set(at(9, 0))
	cancelled, err := fx.service.CancelReservation(context.Background(), testGuest, reservation.ID, "plans changed")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if cancelled.Deposit.FeeCents != 2500 || cancelled.Deposit.RefundedCents != 2500 {
		test.Fatalf("expected fee 2500 and refund 2500, got %+v", cancelled.Deposit)
	}
	if len(fx.payments.refunds) != 1 || fx.payments.refunds[0] != 2500 {
		test.Fatalf("expected one refund of 2500, got %v", fx.payments.refunds)
	}
	if cancelled.Status != ReservationStatusCancelled {
		test.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if status := fx.store.mustTable(test, reservation.TableID).Status; status != TableStatusAvailable {
		test.Fatalf("expected table released, got %s", status)
	}
}

func TestCancellationFeeTiers(test *testing.T) {
	test.Parallel()
	captured := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	deposit := Deposit{Required: true, AmountCents: 5000, CapturedAt: &captured}
	start := at(19, 0)
	policy := DefaultCancellationPolicy()
	testCases := []struct {
		name     string
		now      time.Time
		expected AmountCents
	}{
		{name: "early", now: start.Add(-48 * time.Hour), expected: 0},
		{name: "late window", now: start.Add(-10 * time.Hour), expected: 2500},
		{name: "at start", now: start, expected: 5000},
		{name: "inside grace", now: start.Add(10 * time.Minute), expected: 5000},
	}
	for _, testCase := range testCases {
		if fee := CancellationFee(policy, deposit, start, testCase.now); fee != testCase.expected {
			test.Fatalf("%s: expected fee %d, got %d", testCase.name, testCase.expected, fee)
		}
	}
	if fee := CancellationFee(policy, Deposit{AmountCents: 5000}, start, start); fee != 0 {
		test.Fatalf("expected no fee without capture, got %d", fee)
	}
}

func TestCheckInWindowSeatsEarlyArrivalAndRejectsLate(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	fx.addTable(test, "t2", 4, 10, 0, false)
	early := fx.book(test, at(19, 0), 2)
	late := fx.book(test, at(19, 0), 2)

	fx.clock.Set(at(18, 40))
	seated, err := fx.service.CheckIn(context.Background(), testGuest, early.ID)
	if err != nil {
		test.Fatalf("check-in 20 minutes early: %v", err)
	}
	if seated.Status != ReservationStatusSeated || seated.SeatedAt == nil {
		test.Fatalf("expected seated, got %+v", seated)
	}
	if status := fx.store.mustTable(test, seated.TableID).Status; status != TableStatusOccupied {
		test.Fatalf("expected occupied table, got %s", status)
	}

	fx.clock.Set(at(19, 40))
	_, err = fx.service.CheckIn(context.Background(), testGuest, late.ID)
	expectError(test, err, ErrState)
	if status := fx.store.mustReservation(test, late.ID).Status; status != ReservationStatusConfirmed {
		test.Fatalf("late arrival must stay confirmed for the no-show sweep, got %s", status)
	}
}

func TestCheckInTooEarlyIsPolicyViolation(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	reservation := fx.book(test, at(19, 0), 2)

	fx.clock.Set(at(18, 0))
	_, err := fx.service.CheckIn(context.Background(), testGuest, reservation.ID)
	expectError(test, err, ErrPolicyViolation)
}

func TestOperationsRequireOwnerOrAdmin(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	reservation := fx.book(test, at(19, 0), 2)
	stranger := Principal{ID: "guest-2", Role: RoleGuest}

	_, err := fx.service.CancelReservation(context.Background(), stranger, reservation.ID, "")
	expectError(test, err, ErrForbidden)
	_, err = fx.service.ListModifications(context.Background(), stranger, reservation.ID)
	expectError(test, err, ErrForbidden)
	_, err = fx.service.MarkNoShow(context.Background(), testGuest, reservation.ID)
	expectError(test, err, ErrForbidden)

	request := fx.request(at(20, 0), 2)
	request.Guest.UserID = "guest-3"
	_, err = fx.service.CreateReservation(context.Background(), stranger, request)
	expectError(test, err, ErrForbidden)

	if _, err := fx.service.CancelReservation(context.Background(), testAdmin, reservation.ID, "host"); err != nil {
		test.Fatalf("admin cancel: %v", err)
	}
}

func TestCompleteDiningSchedulesCleaningAndRecordsTurnTime(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t1", 4, 0, 0, false)
	reservation := fx.book(test, at(19, 0), 2)

	fx.clock.Set(at(19, 0))
	if _, err := fx.service.CheckIn(context.Background(), testGuest, reservation.ID); err != nil {
		test.Fatalf("check-in: %v", err)
	}
	fx.clock.Set(at(20, 10))
	completed, err := fx.service.CompleteDining(context.Background(), testAdmin, reservation.ID)
	if err != nil {
		test.Fatalf("complete: %v", err)
	}
	if completed.ActualDuration != 70*time.Minute {
		test.Fatalf("expected 70m actual duration, got %s", completed.ActualDuration)
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusCleaning {
		test.Fatalf("expected cleaning, got %s", status)
	}
	key := cleaningTaskKey(tableID)
	if !fx.scheduler.pending(key) {
		test.Fatalf("expected cleaning task for %s", tableID)
	}
	stat, found, err := fx.store.GetTurnTimeStat(context.Background(), TurnTimeKey{
		RestaurantID: fx.restaurant.ID,
		PartyKey:     2,
		Weekday:      time.Monday,
		MealPeriod:   MealPeriodDinner,
	})
	if err != nil || !found || stat.Samples != 1 || stat.AverageMinutes != 70 {
		test.Fatalf("expected one 70 minute sample, got %+v found=%v err=%v", stat, found, err)
	}
	if kinds := fx.notifier.kinds(); kinds[len(kinds)-1] != NotificationReviewRequest {
		test.Fatalf("expected review request, got %v", kinds)
	}

	fx.clock.Set(at(20, 20))
	if !fx.scheduler.fire(key) {
		test.Fatalf("cleaning task vanished")
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusAvailable {
		test.Fatalf("expected available after cleaning, got %s", status)
	}
}

func TestCheckInCancelsPendingCleaning(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t1", 4, 0, 0, false)
	first := fx.book(test, at(12, 0), 2)
	second := fx.book(test, at(14, 0), 2)

	fx.clock.Set(at(12, 0))
	if _, err := fx.service.CheckIn(context.Background(), testGuest, first.ID); err != nil {
		test.Fatalf("check-in first: %v", err)
	}
	fx.clock.Set(at(13, 40))
	if _, err := fx.service.CompleteDining(context.Background(), testGuest, first.ID); err != nil {
		test.Fatalf("complete first: %v", err)
	}
	fx.clock.Set(at(13, 45))
	if _, err := fx.service.CheckIn(context.Background(), testGuest, second.ID); err != nil {
		test.Fatalf("check-in second: %v", err)
	}
	if fx.scheduler.pending(cleaningTaskKey(tableID)) {
		test.Fatalf("expected cleaning task cancelled on reseat")
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusOccupied {
		test.Fatalf("expected occupied, got %s", status)
	}
}

func TestCombinedTablesJoinWhileSeated(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	first := fx.addTable(test, "t1", 2, 0, 0, false)
	second := fx.addTable(test, "t2", 2, 1, 0, false)
	reservation := fx.book(test, at(19, 0), 4)

	fx.clock.Set(at(19, 0))
	if _, err := fx.service.CheckIn(context.Background(), testGuest, reservation.ID); err != nil {
		test.Fatalf("check-in: %v", err)
	}
	joined := fx.store.mustTable(test, first)
	if len(joined.CombinedWith) != 1 || joined.CombinedWith[0] != second {
		test.Fatalf("expected %s combined with %s, got %v", first, second, joined.CombinedWith)
	}
	fx.clock.Set(at(20, 0))
	if _, err := fx.service.CompleteDining(context.Background(), testGuest, reservation.ID); err != nil {
		test.Fatalf("complete: %v", err)
	}
	if combined := fx.store.mustTable(test, first).CombinedWith; len(combined) != 0 {
		test.Fatalf("expected tables separated, got %v", combined)
	}
}

func TestPaymentFailureRollsBackReservation(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t1", 4, 0, 0, false)
	fx.updateRestaurant(test, func(restaurant *Restaurant) {
		restaurant.Deposit = DepositPolicy{Required: true, AmountCents: 2000}
	})
	fx.payments.captureErr = errors.New("card declined")

	_, err := fx.service.CreateReservation(context.Background(), testGuest, fx.request(at(19, 0), 2))
	expectError(test, err, ErrPayment)

	active, listErr := fx.store.ListActiveReservations(context.Background(), fx.restaurant.ID, at(0, 0), at(23, 59))
	if listErr != nil {
		test.Fatalf("list: %v", listErr)
	}
	if len(active) != 0 {
		test.Fatalf("expected no reservation after failed capture, got %d", len(active))
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusAvailable {
		test.Fatalf("expected table untouched, got %s", status)
	}
	if len(fx.publisher.types()) != 0 || len(fx.notifier.kinds()) != 0 {
		test.Fatalf("expected no side effects, got events %v notices %v", fx.publisher.types(), fx.notifier.kinds())
	}

	fx.payments.captureErr = nil
	fx.payments.declined = true
	_, err = fx.service.CreateReservation(context.Background(), testGuest, fx.request(at(19, 0), 2))
	expectError(test, err, ErrPayment)
}

func TestRefundFailureLeavesRefundDueForRetry(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t1", 4, 0, 0, false)
	fx.updateRestaurant(test, func(restaurant *Restaurant) {
		restaurant.Deposit = DepositPolicy{Required: true, AmountCents: 2000}
	})
	reservation := fx.book(test, at(19, 0), 2)
	fx.payments.refundErr = errors.New("gateway down")

	cancelled, err := fx.service.CancelReservation(context.Background(), testGuest, reservation.ID, "")
	if err != nil {
		test.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != ReservationStatusCancelled || cancelled.Deposit.RefundDueCents != 1000 || cancelled.Deposit.RefundedCents != 0 {
		test.Fatalf("expected cancelled with 1000 due, got %s %+v", cancelled.Status, cancelled.Deposit)
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusAvailable {
		test.Fatalf("expected table released, got %s", status)
	}
	failed := fx.logger.find(operationRefund)
	if len(failed) != 1 || !errors.Is(failed[0].Error, ErrPayment) {
		test.Fatalf("expected one failed refund log, got %+v", failed)
	}

	fx.payments.refundErr = nil
	settled, err := fx.service.SettleRefunds(context.Background())
	if err != nil {
		test.Fatalf("settle: %v", err)
	}
	if len(settled) != 1 || settled[0] != reservation.ID {
		test.Fatalf("expected %s settled, got %v", reservation.ID, settled)
	}
	stored := fx.store.mustReservation(test, reservation.ID)
	if stored.Deposit.RefundedCents != 1000 || stored.Deposit.RefundDueCents != 0 {
		test.Fatalf("expected 1000 refunded and nothing due, got %+v", stored.Deposit)
	}
	if len(fx.payments.refunds) != 1 || fx.payments.refundedRef[0] != reservation.Deposit.ExternalRef {
		test.Fatalf("expected one refund against %s, got %v %v", reservation.Deposit.ExternalRef, fx.payments.refunds, fx.payments.refundedRef)
	}

	again, err := fx.service.SettleRefunds(context.Background())
	if err != nil || len(again) != 0 || len(fx.payments.refunds) != 1 {
		test.Fatalf("expected nothing left to settle, got %v err=%v refunds=%v", again, err, fx.payments.refunds)
	}
}

func TestFailedCreateRefundsCapturedDeposit(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	fx.updateRestaurant(test, func(restaurant *Restaurant) {
		restaurant.Deposit = DepositPolicy{Required: true, AmountCents: 5000}
	})
	fx.store.shared.failTableUpdate = errors.New("disk full")

	_, err := fx.service.CreateReservation(context.Background(), testGuest, fx.request(at(19, 0), 2))
	if err == nil {
		test.Fatalf("expected create to fail")
	}
	if len(fx.payments.captures) != 1 || fx.payments.captures[0] != 5000 {
		test.Fatalf("expected one capture of 5000, got %v", fx.payments.captures)
	}
	if len(fx.payments.refunds) != 1 || fx.payments.refunds[0] != 5000 {
		test.Fatalf("expected the capture refunded in full, got %v", fx.payments.refunds)
	}
	if !strings.HasPrefix(fx.payments.refundedRef[0], "pay-") {
		test.Fatalf("expected refund against the capture reference, got %q", fx.payments.refundedRef[0])
	}
	active, listErr := fx.store.ListActiveReservations(context.Background(), fx.restaurant.ID, at(0, 0), at(23, 59))
	if listErr != nil || len(active) != 0 {
		test.Fatalf("expected no reservation, got %d err=%v", len(active), listErr)
	}
	released := fx.logger.find(operationReleaseCapture)
	if len(released) != 1 || released[0].Error != nil || released[0].Amount != 5000 {
		test.Fatalf("expected one clean release log, got %+v", released)
	}
}

func TestCancelRollbackDoesNotRefundTwice(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	fx.updateRestaurant(test, func(restaurant *Restaurant) {
		restaurant.Deposit = DepositPolicy{Required: true, AmountCents: 5000}
	})
	reservation := fx.book(test, at(19, 0), 2)

	fx.store.shared.failTableUpdate = errors.New("disk full")
	if _, err := fx.service.CancelReservation(context.Background(), testGuest, reservation.ID, ""); err == nil {
		test.Fatalf("expected cancel to fail")
	}
	if len(fx.payments.refunds) != 0 {
		test.Fatalf("expected no refund for a rolled back cancel, got %v", fx.payments.refunds)
	}
	if stored := fx.store.mustReservation(test, reservation.ID); stored.Status != ReservationStatusConfirmed || stored.Deposit.RefundDueCents != 0 {
		test.Fatalf("expected reservation untouched, got %s %+v", stored.Status, stored.Deposit)
	}

	fx.store.shared.failTableUpdate = nil
	cancelled, err := fx.service.CancelReservation(context.Background(), testGuest, reservation.ID, "")
	if err != nil {
		test.Fatalf("retry cancel: %v", err)
	}
	if len(fx.payments.refunds) != 1 || fx.payments.refunds[0] != 2500 {
		test.Fatalf("expected exactly one refund of 2500, got %v", fx.payments.refunds)
	}
	if cancelled.Deposit.RefundedCents != 2500 || cancelled.Deposit.RefundDueCents != 0 {
		test.Fatalf("expected 2500 refunded and nothing due, got %+v", cancelled.Deposit)
	}
}

func TestSweepCleaningReturnsStaleCleaningTables(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t1", 4, 0, 0, false)
	reservation := fx.book(test, at(19, 0), 2)

	fx.clock.Set(at(19, 0))
	if _, err := fx.service.CheckIn(context.Background(), testGuest, reservation.ID); err != nil {
		test.Fatalf("check-in: %v", err)
	}
	fx.clock.Set(at(20, 10))
	if _, err := fx.service.CompleteDining(context.Background(), testGuest, reservation.ID); err != nil {
		test.Fatalf("complete: %v", err)
	}
	if changed := fx.store.mustTable(test, tableID).StatusChangedAt; !changed.Equal(at(20, 10)) {
		test.Fatalf("expected status change at 20:10, got %s", changed)
	}

	fx.clock.Set(at(20, 15))
	finished, err := fx.service.SweepCleaning(context.Background())
	if err != nil || len(finished) != 0 {
		test.Fatalf("expected nothing stale yet, got %v err=%v", finished, err)
	}

	fx.clock.Set(at(20, 21))
	finished, err = fx.service.SweepCleaning(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if len(finished) != 1 || finished[0] != tableID {
		test.Fatalf("expected %s finished, got %v", tableID, finished)
	}
	if status := fx.store.mustTable(test, tableID).Status; status != TableStatusAvailable {
		test.Fatalf("expected available, got %s", status)
	}
	if fx.scheduler.pending(cleaningTaskKey(tableID)) {
		test.Fatalf("expected in-process cleaning task cancelled")
	}
}

func TestCreateReservationValidation(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	testCases := []struct {
		name    string
		request ReservationRequest
		target  error
	}{
		{name: "zero party", request: fx.request(at(19, 0), 0), target: ErrValidation},
		{name: "past start", request: fx.request(at(8, 0), 2), target: ErrValidation},
		{name: "closed", request: fx.request(at(23, 30), 2), target: ErrValidation},
		{name: "no guest", request: ReservationRequest{RestaurantID: fx.restaurant.ID, StartsAt: at(19, 0), PartySize: 2}, target: ErrValidation},
		{name: "unknown restaurant", request: ReservationRequest{RestaurantID: mustRestaurantID(test, "nowhere"), Guest: Guest{Email: "a@b.c"}, StartsAt: at(19, 0), PartySize: 2}, target: ErrNotFound},
		{name: "too large", request: fx.request(at(19, 0), 12), target: ErrNoAvailability},
	}
	for _, testCase := range testCases {
		principal := testAdmin
		if testCase.name == "no guest" {
			principal = Principal{Role: RoleGuest}
		}
		_, err := fx.service.CreateReservation(context.Background(), principal, testCase.request)
		if !errors.Is(err, testCase.target) {
			test.Fatalf("%s: expected %v, got %v", testCase.name, testCase.target, err)
		}
	}
}

func TestConcurrentCreatesNeverDoubleBook(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)

	const attempts = 12
	var (
		wait      sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		wait.Add(1)
		go func(offset int) {
			defer wait.Done()
			// Starts staggered by five minutes all overlap the same buffered window.
			startsAt := at(19, 0).Add(time.Duration(offset%6) * 5 * time.Minute)
			_, err := fx.service.CreateReservation(context.Background(), testGuest, fx.request(startsAt, 2))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}(attempt)
	}
	wait.Wait()

	if successes != 1 {
		test.Fatalf("expected exactly one booking, got %d", successes)
	}
	for _, err := range failures {
		if !errors.Is(err, ErrNoAvailability) && !errors.Is(err, ErrConflict) {
			test.Fatalf("unexpected failure %v", err)
		}
	}
	assertNoDoubleBooking(test, fx)
}

// assertNoDoubleBooking checks every pair of active reservations sharing a table.
func assertNoDoubleBooking(test *testing.T, fx *fixture) {
	test.Helper()
	active, err := fx.store.ListActiveReservations(context.Background(), fx.restaurant.ID, at(0, 0), at(23, 59).Add(24*time.Hour))
	if err != nil {
		test.Fatalf("list: %v", err)
	}
	buffer := fx.service.Policy().TurnBuffer
	for left := 0; left < len(active); left++ {
		for right := left + 1; right < len(active); right++ {
			a, b := active[left], active[right]
			shared := false
			for _, tableID := range a.TableIDs() {
				if b.UsesTable(tableID) {
					shared = true
				}
			}
			if !shared {
				continue
			}
			if a.StartsAt.Add(-buffer).Before(b.EndsAt().Add(buffer)) && b.StartsAt.Add(-buffer).Before(a.EndsAt().Add(buffer)) {
				test.Fatalf("reservations %s and %s overlap on a shared table", a.ID, b.ID)
			}
		}
	}
}

func TestStaleVersionIsConflict(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	reservation := fx.book(test, at(19, 0), 2)

	stale := reservation
	stale.Version = reservation.Version - 1
	err := fx.store.WithTx(context.Background(), func(ctx context.Context, txStore Store) error {
		return fx.service.saveReservation(ctx, txStore, &stale)
	})
	expectError(test, err, ErrConflict)
}

func TestMarkNoShowAndSweep(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	fx.addTable(test, "t2", 4, 10, 0, false)
	fx.updateRestaurant(test, func(restaurant *Restaurant) {
		restaurant.Deposit = DepositPolicy{Required: true, AmountCents: 3000}
	})
	manual := fx.book(test, at(12, 0), 2)
	swept := fx.book(test, at(12, 0), 2)

	fx.clock.Set(at(12, 20))
	_, err := fx.service.MarkNoShow(context.Background(), testAdmin, manual.ID)
	expectError(test, err, ErrPolicyViolation)

	fx.clock.Set(at(12, 31))
	marked, err := fx.service.MarkNoShow(context.Background(), testAdmin, manual.ID)
	if err != nil {
		test.Fatalf("mark no-show: %v", err)
	}
	if marked.Status != ReservationStatusNoShow || marked.Deposit.FeeCents != 3000 {
		test.Fatalf("expected forfeited deposit, got %+v", marked)
	}
	if len(fx.payments.refunds) != 0 {
		test.Fatalf("no-show must not refund, got %v", fx.payments.refunds)
	}

	ids, err := fx.service.SweepNoShows(context.Background())
	if err != nil {
		test.Fatalf("sweep: %v", err)
	}
	if len(ids) != 1 || ids[0] != swept.ID {
		test.Fatalf("expected sweep to mark %s, got %v", swept.ID, ids)
	}
	if fx.publisher.count(EventReservationNoShow) != 2 {
		test.Fatalf("expected two no-show events, got %v", fx.publisher.types())
	}
}

func TestTerminalReservationsRejectTransitions(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	fx.addTable(test, "t1", 4, 0, 0, false)
	reservation := fx.book(test, at(19, 0), 2)
	if _, err := fx.service.CancelReservation(context.Background(), testGuest, reservation.ID, ""); err != nil {
		test.Fatalf("cancel: %v", err)
	}

	_, err := fx.service.CancelReservation(context.Background(), testGuest, reservation.ID, "")
	expectError(test, err, ErrState)
	fx.clock.Set(at(19, 0))
	_, err = fx.service.CheckIn(context.Background(), testGuest, reservation.ID)
	expectError(test, err, ErrState)
	_, err = fx.service.CompleteDining(context.Background(), testGuest, reservation.ID)
	expectError(test, err, ErrState)
}

func TestFinishCleaningRequiresCleaningTable(test *testing.T) {
	test.Parallel()
	fx := newFixture(test)
	tableID := fx.addTable(test, "t1", 4, 0, 0, false)

	_, err := fx.service.FinishCleaning(context.Background(), testAdmin, tableID)
	expectError(test, err, ErrState)
	_, err = fx.service.FinishCleaning(context.Background(), testGuest, tableID)
	expectError(test, err, ErrForbidden)
}
