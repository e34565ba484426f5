package booking

import (
	"context"
	"strings"
	"time"
)

// ModificationRequest lists the fields to change; nil fields keep their value.
type ModificationRequest struct {
	StartsAt        *time.Time
	PartySize       *int
	Duration        *time.Duration
	SpecialRequests *string
	Reason          string
}

func (request ModificationRequest) empty() bool {
	return request.StartsAt == nil && request.PartySize == nil && request.Duration == nil && request.SpecialRequests == nil
}

// ModifyReservation changes time, party size or requests of a pending or
// confirmed reservation. A changed time or party re-runs table matching
// without the reservation's own occupancy; when nothing fits the returned
// *AlternativesError lists the nearest start times that would.
func (service *Service) ModifyReservation(ctx context.Context, principal Principal, reservationID ReservationID, request ModificationRequest) (Reservation, error) {
	var modified Reservation
	operationError := func() error {
		if request.empty() {
			return validationError("modification changes nothing")
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			reservation, err := service.modifyInTx(ctx, txStore, pending, principal, reservationID, request)
			if err != nil {
				return err
			}
			modified = reservation
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:     operationModify,
		RestaurantID:  modified.RestaurantID,
		ReservationID: reservationID,
		TableIDs:      modified.TableIDs(),
		PartySize:     modified.PartySize,
		Error:         operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return modified, nil
}

func (service *Service) modifyInTx(ctx context.Context, txStore Store, pending *effects, principal Principal, reservationID ReservationID, request ModificationRequest) (Reservation, error) {
	reservation, restaurant, err := loadForUpdate(ctx, txStore, principal, reservationID)
	if err != nil {
		return Reservation{}, err
	}
	if reservation.Status != ReservationStatusPending && reservation.Status != ReservationStatusConfirmed {
		return Reservation{}, stateError("reservation %s is %s and cannot be modified", reservation.ID, reservation.Status)
	}
	if reservation.ModificationCount >= service.policy.ModificationLimit {
		return Reservation{}, policyError("reservation %s reached the limit of %d modifications", reservation.ID, service.policy.ModificationLimit)
	}
	now := service.nowFn()
	if reservation.StartsAt.Sub(now) < service.policy.ModificationLeadTime {
		return Reservation{}, policyError("reservation %s starts within %s", reservation.ID, service.policy.ModificationLeadTime)
	}

	previous := reservation
	startsAt := reservation.StartsAt
	if request.StartsAt != nil {
		startsAt = *request.StartsAt
	}
	partySize := reservation.PartySize
	if request.PartySize != nil {
		partySize = *request.PartySize
	}
	var duration time.Duration
	if request.Duration != nil {
		duration = *request.Duration
	}
	if partySize <= 0 {
		return Reservation{}, validationError("party size must be positive, got %d", partySize)
	}
	if duration < 0 {
		return Reservation{}, validationError("duration must not be negative")
	}
	if startsAt.Before(now) {
		return Reservation{}, validationError("start time %s is in the past", startsAt.Format(time.RFC3339))
	}

	rematch := !startsAt.Equal(reservation.StartsAt) || partySize != reservation.PartySize || request.Duration != nil
	if rematch {
		query := AvailabilityQuery{
			RestaurantID: restaurant.ID,
			StartsAt:     startsAt,
			PartySize:    partySize,
			Duration:     duration,
			VIP:          reservation.VIP,
		}
		snapshot, err := service.evaluate(ctx, txStore, restaurant, query, reservation.ID)
		if err != nil {
			return Reservation{}, err
		}
		if !snapshot.Available() {
			alternatives, err := service.findAlternatives(ctx, txStore, restaurant, query, reservation.ID, now)
			if err != nil {
				return Reservation{}, err
			}
			return Reservation{}, &AlternativesError{Requested: startsAt, Alternatives: alternatives}
		}
		reservation.StartsAt = startsAt
		reservation.ServiceDate = snapshot.ServiceDate
		reservation.PartySize = partySize
		reservation.EstimatedDuration = snapshot.Duration
		reservation.TableID = snapshot.Assignment.Primary()
		reservation.CombinedTableIDs = snapshot.Assignment.Combined()
	}
	if request.SpecialRequests != nil {
		reservation.SpecialRequests = strings.TrimSpace(*request.SpecialRequests)
	}
	reservation.ModificationCount++
	if err := service.saveReservation(ctx, txStore, &reservation); err != nil {
		return Reservation{}, err
	}
	reason := strings.TrimSpace(request.Reason)
	if reason == "" {
		reason = "modified"
	}
	if err := service.appendModification(ctx, txStore, &previous, reservation, reason, actorOf(principal)); err != nil {
		return Reservation{}, err
	}
	if rematch {
		touched := append(previous.TableIDs(), reservation.TableIDs()...)
		if err := service.refreshTables(ctx, txStore, pending, restaurant.ID, uniqueTableIDs(touched)); err != nil {
			return Reservation{}, err
		}
		pending.release(freedBy(previous, now, service.policy.TurnBuffer))
	}
	invalidateReservation(pending, restaurant, previous)
	invalidateReservation(pending, restaurant, reservation)
	pending.event(Event{Type: EventReservationModified, RestaurantID: restaurant.ID, Reservation: reservationPayload(reservation)})
	pending.notify(NotificationReservationModified, reservation.Guest, reservationNotice(restaurant, reservation))
	return reservation, nil
}

// findAlternatives walks outward from the requested start in fixed steps and
// returns the nearest seatable start times, earlier first on ties.
func (service *Service) findAlternatives(ctx context.Context, txStore Store, restaurant Restaurant, query AvailabilityQuery, ignore ReservationID, now time.Time) ([]time.Time, error) {
	alternatives := make([]time.Time, 0, alternativeResultLimit)
	steps := int(alternativeSearchSpan / alternativeSearchStep)
	for step := 1; step <= steps; step++ {
		offset := time.Duration(step) * alternativeSearchStep
		for _, candidate := range []time.Time{query.StartsAt.Add(-offset), query.StartsAt.Add(offset)} {
			if candidate.Before(now) {
				continue
			}
			open, err := restaurant.IsOpenAt(candidate)
			if err != nil {
				return nil, err
			}
			if !open {
				continue
			}
			candidateQuery := query
			candidateQuery.StartsAt = candidate
			snapshot, err := service.evaluate(ctx, txStore, restaurant, candidateQuery, ignore)
			if err != nil {
				return nil, err
			}
			if snapshot.Available() {
				alternatives = append(alternatives, candidate)
				if len(alternatives) == alternativeResultLimit {
					return alternatives, nil
				}
			}
		}
	}
	return alternatives, nil
}

// ListModifications returns the audit trail of a reservation, oldest first.
func (service *Service) ListModifications(ctx context.Context, principal Principal, reservationID ReservationID) ([]ModificationRecord, error) {
	if reservationID.IsZero() {
		return nil, validationError("reservation id is required")
	}
	reservation, err := service.store.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := AuthorizeOwnerOrAdmin(principal, reservation.Guest.UserID); err != nil {
		return nil, err
	}
	return service.store.ListModifications(ctx, reservationID)
}

func uniqueTableIDs(ids []TableID) []TableID {
	seen := make(map[TableID]struct{}, len(ids))
	unique := make([]TableID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
