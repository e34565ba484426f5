package booking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// WaitlistRequest queues a party for a restaurant-local date and time window.
type WaitlistRequest struct {
	RestaurantID RestaurantID
	WindowStart  time.Time
	WindowEnd    time.Time
	PartySize    int
	Guest        Guest
}

func (request WaitlistRequest) validate(now time.Time) error {
	if request.RestaurantID.IsZero() {
		return validationError("restaurant id is required")
	}
	if request.PartySize <= 0 {
		return validationError("party size must be positive, got %d", request.PartySize)
	}
	if request.WindowStart.IsZero() || request.WindowEnd.IsZero() {
		return validationError("requested window is required")
	}
	if !request.WindowEnd.After(request.WindowStart) {
		return validationError("requested window must end after it starts")
	}
	if !request.WindowEnd.After(now) {
		return validationError("requested window has already passed")
	}
	return request.Guest.Validate()
}

// JoinWaitlist appends a party to the end of the queue for its date.
func (service *Service) JoinWaitlist(ctx context.Context, principal Principal, request WaitlistRequest) (WaitlistEntry, error) {
	var joined WaitlistEntry
	operationError := func() error {
		if err := authorizeBooker(principal, &request.Guest); err != nil {
			return err
		}
		now := service.nowFn()
		if err := request.validate(now); err != nil {
			return err
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			if err := txStore.LockRestaurant(ctx, request.RestaurantID); err != nil {
				return err
			}
			restaurant, err := txStore.GetRestaurant(ctx, request.RestaurantID)
			if err != nil {
				return err
			}
			serviceDate, err := restaurant.LocalDate(request.WindowStart)
			if err != nil {
				return err
			}
			queued, err := txStore.ListQueuedWaitlist(ctx, restaurant.ID, serviceDate)
			if err != nil {
				return err
			}
			position := 1
			for _, entry := range queued {
				if entry.Position >= position {
					position = entry.Position + 1
				}
			}
			waitMinutes, err := service.estimateWait(ctx, txStore, restaurant, request, position)
			if err != nil {
				return err
			}
			entryID, err := NewWaitlistEntryID(service.idFn())
			if err != nil {
				return err
			}
			entry := WaitlistEntry{
				ID:                   entryID,
				RestaurantID:         restaurant.ID,
				Date:                 serviceDate,
				WindowStart:          request.WindowStart,
				WindowEnd:            request.WindowEnd,
				PartySize:            request.PartySize,
				Guest:                request.Guest,
				Position:             position,
				Status:               WaitlistStatusWaiting,
				EstimatedWaitMinutes: waitMinutes,
				JoinedAt:             now,
			}
			if err := txStore.CreateWaitlistEntry(ctx, entry); err != nil {
				return err
			}
			pending.event(Event{Type: EventWaitlistJoined, RestaurantID: restaurant.ID, Waitlist: waitlistPayload(entry)})
			joined = entry
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:       operationJoinWaitlist,
		RestaurantID:    request.RestaurantID,
		WaitlistEntryID: joined.ID,
		PartySize:       request.PartySize,
		Error:           operationError,
	})
	if operationError != nil {
		return WaitlistEntry{}, operationError
	}
	return joined, nil
}

// estimateWait is position × average turn time ÷ tables that can seat the party.
func (service *Service) estimateWait(ctx context.Context, txStore Store, restaurant Restaurant, request WaitlistRequest, position int) (int, error) {
	turnTime, err := service.estimateTurnTime(ctx, txStore, restaurant, request.PartySize, request.WindowStart)
	if err != nil {
		return 0, err
	}
	tables, err := txStore.ListTables(ctx, restaurant.ID)
	if err != nil {
		return 0, err
	}
	fitting := 0
	for _, table := range tables {
		if table.Status != TableStatusMaintenance && table.Capacity >= request.PartySize {
			fitting++
		}
	}
	if fitting < 1 {
		fitting = 1
	}
	return position * int(turnTime/time.Minute) / fitting, nil
}

// LeaveWaitlist cancels a queued entry and closes the gap it leaves.
func (service *Service) LeaveWaitlist(ctx context.Context, principal Principal, entryID WaitlistEntryID) (WaitlistEntry, error) {
	var left WaitlistEntry
	operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
		entry, err := loadEntryForUpdate(ctx, txStore, principal, entryID)
		if err != nil {
			return err
		}
		if !entry.Status.IsQueued() {
			return stateError("waitlist entry %s is %s", entry.ID, entry.Status)
		}
		entry.Status = WaitlistStatusCancelled
		if err := dequeue(ctx, txStore, entry); err != nil {
			return err
		}
		pending.event(Event{Type: EventWaitlistLeft, RestaurantID: entry.RestaurantID, Waitlist: waitlistPayload(entry)})
		left = entry
		return nil
	})
	service.logOperation(ctx, OperationLog{
		Operation:       operationLeaveWaitlist,
		RestaurantID:    left.RestaurantID,
		WaitlistEntryID: entryID,
		PartySize:       left.PartySize,
		Error:           operationError,
	})
	if operationError != nil {
		return WaitlistEntry{}, operationError
	}
	return left, nil
}

// NotifyWaitlistEntry offers a table to a waiting party and starts its response deadline.
func (service *Service) NotifyWaitlistEntry(ctx context.Context, principal Principal, entryID WaitlistEntryID) (WaitlistEntry, error) {
	var notified WaitlistEntry
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may notify waitlist entries", ErrForbidden)
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			entry, err := loadEntryForUpdate(ctx, txStore, principal, entryID)
			if err != nil {
				return err
			}
			restaurant, err := txStore.GetRestaurant(ctx, entry.RestaurantID)
			if err != nil {
				return err
			}
			entry, err = service.offerInTx(ctx, txStore, pending, restaurant, entry, entry.WindowStart, nil)
			if err != nil {
				return err
			}
			notified = entry
			return nil
		})
	}()
	service.logOperation(ctx, OperationLog{
		Operation:       operationNotifyWaitlist,
		RestaurantID:    notified.RestaurantID,
		WaitlistEntryID: entryID,
		PartySize:       notified.PartySize,
		Error:           operationError,
	})
	if operationError != nil {
		return WaitlistEntry{}, operationError
	}
	return notified, nil
}

func (service *Service) offerInTx(ctx context.Context, txStore Store, pending *effects, restaurant Restaurant, entry WaitlistEntry, offeredAt time.Time, tableIDs []TableID) (WaitlistEntry, error) {
	if entry.Status != WaitlistStatusWaiting {
		return WaitlistEntry{}, stateError("waitlist entry %s is %s, not waiting", entry.ID, entry.Status)
	}
	now := service.nowFn()
	deadline := now.Add(service.policy.WaitlistResponseWindow)
	entry.Status = WaitlistStatusNotified
	entry.NotifiedAt = &now
	entry.ResponseDeadline = &deadline
	if err := txStore.UpdateWaitlistEntry(ctx, entry); err != nil {
		return WaitlistEntry{}, err
	}
	tables := make([]string, 0, len(tableIDs))
	for _, tableID := range tableIDs {
		tables = append(tables, tableID.String())
	}
	pending.event(Event{Type: EventWaitlistPromoted, RestaurantID: entry.RestaurantID, Waitlist: waitlistPayload(entry)})
	pending.notify(NotificationWaitlistOffer, entry.Guest, map[string]string{
		"restaurant":        restaurant.Name,
		"waitlist_entry_id": entry.ID.String(),
		"offered_at":        offeredAt.Format(time.RFC3339),
		"respond_by":        deadline.Format(time.RFC3339),
		"party_size":        strconv.Itoa(entry.PartySize),
		"tables":            strings.Join(tables, ","),
	})
	return entry, nil
}

// ExpireWaitlist expires notified entries past their response deadline and
// waiting entries whose window has ended, returning the expired ids.
func (service *Service) ExpireWaitlist(ctx context.Context) ([]WaitlistEntryID, error) {
	now := service.nowFn()
	lapsed, err := service.store.ListLapsedWaitlist(ctx, now)
	if err != nil {
		return nil, err
	}
	expired := make([]WaitlistEntryID, 0, len(lapsed))
	for _, candidate := range lapsed {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			entry, err := loadEntryForUpdate(ctx, txStore, SystemPrincipal, candidate.ID)
			if err != nil {
				return err
			}
			if !entryLapsed(entry, now) {
				return stateError("waitlist entry %s is no longer lapsed", entry.ID)
			}
			entry.Status = WaitlistStatusExpired
			if err := dequeue(ctx, txStore, entry); err != nil {
				return err
			}
			pending.event(Event{Type: EventWaitlistExpired, RestaurantID: entry.RestaurantID, Waitlist: waitlistPayload(entry)})
			return nil
		})
		service.logOperation(ctx, OperationLog{
			Operation:       operationExpireWaitlist,
			RestaurantID:    candidate.RestaurantID,
			WaitlistEntryID: candidate.ID,
			PartySize:       candidate.PartySize,
			Error:           operationError,
		})
		switch {
		case operationError == nil:
			expired = append(expired, candidate.ID)
		case errors.Is(operationError, ErrState), errors.Is(operationError, ErrConflict):
			continue
		default:
			return expired, operationError
		}
	}
	return expired, nil
}

func entryLapsed(entry WaitlistEntry, now time.Time) bool {
	switch entry.Status {
	case WaitlistStatusNotified:
		return entry.ResponseDeadline != nil && now.After(*entry.ResponseDeadline)
	case WaitlistStatusWaiting:
		return !entry.WindowEnd.After(now)
	default:
		return false
	}
}

// PromoteWaitlist offers freed tables to the first waiting party that fits
// them. It reports whether an entry was notified.
func (service *Service) PromoteWaitlist(ctx context.Context, principal Principal, freed FreedCapacity) (WaitlistEntry, bool, error) {
	if !principal.IsAdmin() {
		return WaitlistEntry{}, false, fmt.Errorf("%w: only staff may promote the waitlist", ErrForbidden)
	}
	if freed.RestaurantID.IsZero() || len(freed.TableIDs) == 0 {
		return WaitlistEntry{}, false, validationError("freed capacity needs a restaurant and tables")
	}
	if !freed.SlotEnd.After(freed.SlotStart) {
		return WaitlistEntry{}, false, validationError("freed slot must end after it starts")
	}
	return service.promote(ctx, freed)
}

func (service *Service) promote(ctx context.Context, freed FreedCapacity) (WaitlistEntry, bool, error) {
	unlock := service.promotions.Lock(freed.RestaurantID.String())
	defer unlock()

	var promoted WaitlistEntry
	found := false
	operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
		found = false
		if err := txStore.LockRestaurant(ctx, freed.RestaurantID); err != nil {
			return err
		}
		restaurant, err := txStore.GetRestaurant(ctx, freed.RestaurantID)
		if err != nil {
			return err
		}
		serviceDate := freed.ServiceDate
		if serviceDate == "" {
			serviceDate, err = restaurant.LocalDate(freed.SlotStart)
			if err != nil {
				return err
			}
		}
		tables := make([]Table, 0, len(freed.TableIDs))
		for _, tableID := range freed.TableIDs {
			table, err := txStore.GetTable(ctx, tableID)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if table.RestaurantID != restaurant.ID || table.DeletedAt != nil || table.Status == TableStatusMaintenance {
				continue
			}
			tables = append(tables, table)
		}
		if len(tables) == 0 {
			return nil
		}
		queued, err := txStore.ListQueuedWaitlist(ctx, restaurant.ID, serviceDate)
		if err != nil {
			return err
		}
		for _, entry := range queued {
			if entry.Status != WaitlistStatusWaiting {
				continue
			}
			if !entry.WindowStart.Before(freed.SlotEnd) || !entry.WindowEnd.After(freed.SlotStart) {
				continue
			}
			offeredAt := entry.WindowStart
			if freed.SlotStart.After(offeredAt) {
				offeredAt = freed.SlotStart
			}
			assignment, ok, err := service.matchFreed(ctx, txStore, restaurant, tables, entry.PartySize, offeredAt)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			entry, err = service.offerInTx(ctx, txStore, pending, restaurant, entry, offeredAt, assignment.TableIDs)
			if err != nil {
				return err
			}
			promoted = entry
			found = true
			return nil
		}
		return nil
	})
	if found || operationError != nil {
		service.logOperation(ctx, OperationLog{
			Operation:       operationPromote,
			RestaurantID:    freed.RestaurantID,
			WaitlistEntryID: promoted.ID,
			TableIDs:        freed.TableIDs,
			PartySize:       promoted.PartySize,
			Error:           operationError,
		})
	}
	if operationError != nil {
		return WaitlistEntry{}, false, operationError
	}
	return promoted, found, nil
}

// matchFreed checks whether the freed tables alone can seat a party at offeredAt.
func (service *Service) matchFreed(ctx context.Context, txStore Store, restaurant Restaurant, tables []Table, partySize int, offeredAt time.Time) (Assignment, bool, error) {
	duration, err := service.estimateTurnTime(ctx, txStore, restaurant, partySize, offeredAt)
	if err != nil {
		return Assignment{}, false, err
	}
	windowStart := offeredAt.Add(-service.policy.TurnBuffer)
	windowEnd := offeredAt.Add(duration + service.policy.TurnBuffer)
	reservations, err := txStore.ListActiveReservations(ctx, restaurant.ID, windowStart, windowEnd)
	if err != nil {
		return Assignment{}, false, err
	}
	slots := buildTableSlots(tables, reservations, windowStart, windowEnd, partySize, service.nowFn(), service.policy.CleaningInterval, ReservationID{})
	for index := range slots {
		// A table still being cleaned is usable once the offer is accepted.
		if !slots[index].Available && slots[index].OccupiedBy == nil {
			slots[index].Available = tableStatusOf(tables, slots[index].TableID) == TableStatusCleaning
		}
	}
	assignment, err := MatchTables(slots, partySize, false, service.policy)
	if errors.Is(err, ErrNoAvailability) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, err
	}
	return assignment, true, nil
}

func tableStatusOf(tables []Table, tableID TableID) TableStatus {
	for _, table := range tables {
		if table.ID == tableID {
			return table.Status
		}
	}
	return ""
}

// AcceptWaitlistOffer turns a notified entry into a confirmed reservation at
// startsAt, which must lie inside the entry's requested window.
func (service *Service) AcceptWaitlistOffer(ctx context.Context, principal Principal, entryID WaitlistEntryID, startsAt time.Time) (Reservation, error) {
	var accepted Reservation
	var acceptedEntry WaitlistEntry
	var captures []Deposit
	operationError := service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
		entry, err := loadEntryForUpdate(ctx, txStore, principal, entryID)
		if err != nil {
			return err
		}
		if entry.Status != WaitlistStatusNotified {
			return stateError("waitlist entry %s is %s, not notified", entry.ID, entry.Status)
		}
		now := service.nowFn()
		if entry.ResponseDeadline != nil && now.After(*entry.ResponseDeadline) {
			return stateError("offer for waitlist entry %s expired at %s", entry.ID, entry.ResponseDeadline.Format(time.RFC3339))
		}
		if startsAt.Before(entry.WindowStart) || !startsAt.Before(entry.WindowEnd) {
			return validationError("start %s is outside the requested window", startsAt.Format(time.RFC3339))
		}
		reservation, err := service.createInTx(ctx, txStore, pending, ReservationRequest{
			RestaurantID: entry.RestaurantID,
			Guest:        entry.Guest,
			StartsAt:     startsAt,
			PartySize:    entry.PartySize,
		}, actorOf(principal), &captures)
		if err != nil {
			return err
		}
		reservationID := reservation.ID
		entry.Status = WaitlistStatusSeated
		entry.ReservationID = &reservationID
		if err := dequeue(ctx, txStore, entry); err != nil {
			return err
		}
		pending.event(Event{Type: EventWaitlistLeft, RestaurantID: entry.RestaurantID, Waitlist: waitlistPayload(entry)})
		accepted = reservation
		acceptedEntry = entry
		return nil
	})
	if operationError != nil {
		accepted = Reservation{}
	}
	service.releaseUncommittedCaptures(ctx, captures, accepted.Deposit)
	service.logOperation(ctx, OperationLog{
		Operation:       operationAcceptOffer,
		RestaurantID:    acceptedEntry.RestaurantID,
		ReservationID:   accepted.ID,
		WaitlistEntryID: entryID,
		TableIDs:        accepted.TableIDs(),
		PartySize:       accepted.PartySize,
		Error:           operationError,
	})
	if operationError != nil {
		return Reservation{}, operationError
	}
	return accepted, nil
}

func loadEntryForUpdate(ctx context.Context, txStore Store, principal Principal, entryID WaitlistEntryID) (WaitlistEntry, error) {
	if entryID.String() == "" {
		return WaitlistEntry{}, validationError("waitlist entry id is required")
	}
	entry, err := txStore.GetWaitlistEntry(ctx, entryID)
	if err != nil {
		return WaitlistEntry{}, err
	}
	if err := AuthorizeOwnerOrAdmin(principal, entry.Guest.UserID); err != nil {
		return WaitlistEntry{}, err
	}
	if err := txStore.LockRestaurant(ctx, entry.RestaurantID); err != nil {
		return WaitlistEntry{}, err
	}
	return txStore.GetWaitlistEntry(ctx, entryID)
}

// dequeue persists an entry that left the queue and renumbers the remaining
// entries 1..N in join order.
func dequeue(ctx context.Context, txStore Store, entry WaitlistEntry) error {
	entry.Position = 0
	if err := txStore.UpdateWaitlistEntry(ctx, entry); err != nil {
		return err
	}
	queued, err := txStore.ListQueuedWaitlist(ctx, entry.RestaurantID, entry.Date)
	if err != nil {
		return err
	}
	sort.SliceStable(queued, func(left, right int) bool {
		if !queued[left].JoinedAt.Equal(queued[right].JoinedAt) {
			return queued[left].JoinedAt.Before(queued[right].JoinedAt)
		}
		return queued[left].Position < queued[right].Position
	})
	for index, remaining := range queued {
		if remaining.Position == index+1 {
			continue
		}
		remaining.Position = index + 1
		if err := txStore.UpdateWaitlistEntry(ctx, remaining); err != nil {
			return err
		}
	}
	return nil
}
