package gormstore

import (
	"time"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
)

func restaurantModel(restaurant booking.Restaurant) (Restaurant, error) {
	hours, err := encodeJSON(restaurant.Hours, emptyJSONArray)
	if err != nil {
		return Restaurant{}, err
	}
	deposit, err := encodeJSON(restaurant.Deposit, emptyJSONObject)
	if err != nil {
		return Restaurant{}, err
	}
	return Restaurant{
		RestaurantID:           restaurant.ID.String(),
		Name:                   restaurant.Name,
		TimeZone:               restaurant.TimeZone,
		Hours:                  hours,
		DepositPolicy:          deposit,
		LateWindowSeconds:      int64(restaurant.Cancellation.LateWindow / time.Second),
		LateFeePercent:         restaurant.Cancellation.LateFeePercent,
		AverageTurnTimeMinutes: restaurant.AverageTurnTimeMinutes,
	}, nil
}

func mapRestaurant(model Restaurant) (booking.Restaurant, error) {
	restaurantID, err := booking.NewRestaurantID(model.RestaurantID)
	if err != nil {
		return booking.Restaurant{}, err
	}
	restaurant := booking.Restaurant{
		ID:       restaurantID,
		Name:     model.Name,
		TimeZone: model.TimeZone,
		Cancellation: booking.CancellationPolicy{
			LateWindow:     time.Duration(model.LateWindowSeconds) * time.Second,
			LateFeePercent: model.LateFeePercent,
		},
		AverageTurnTimeMinutes: model.AverageTurnTimeMinutes,
	}
	if err := decodeJSON(model.Hours, &restaurant.Hours); err != nil {
		return booking.Restaurant{}, err
	}
	if err := decodeJSON(model.DepositPolicy, &restaurant.Deposit); err != nil {
		return booking.Restaurant{}, err
	}
	if len(restaurant.Hours) == 0 {
		restaurant.Hours = nil
	}
	if len(restaurant.Deposit.SpecialOccasions) == 0 {
		restaurant.Deposit.SpecialOccasions = nil
	}
	return restaurant, nil
}

func tableModel(table booking.Table) (DiningTable, error) {
	combined, err := encodeJSON(table.CombinedWith, emptyJSONArray)
	if err != nil {
		return DiningTable{}, err
	}
	return DiningTable{
		TableID:         table.ID.String(),
		RestaurantID:    table.RestaurantID.String(),
		Label:           table.Label,
		Capacity:        table.Capacity,
		MinCapacity:     table.MinCapacity,
		PositionX:       table.Position.X,
		PositionY:       table.Position.Y,
		VIP:             table.VIP,
		Status:          table.Status.String(),
		StatusChangedAt: table.StatusChangedAt.UTC(),
		CombinedWith:    combined,
		DeletedAt:       utcPointer(table.DeletedAt),
	}, nil
}

func mapTable(model DiningTable) (booking.Table, error) {
	tableID, err := booking.NewTableID(model.TableID)
	if err != nil {
		return booking.Table{}, err
	}
	restaurantID, err := booking.NewRestaurantID(model.RestaurantID)
	if err != nil {
		return booking.Table{}, err
	}
	status, err := booking.ParseTableStatus(model.Status)
	if err != nil {
		return booking.Table{}, err
	}
	table := booking.Table{
		ID:              tableID,
		RestaurantID:    restaurantID,
		Label:           model.Label,
		Capacity:        model.Capacity,
		MinCapacity:     model.MinCapacity,
		Position:        booking.Position{X: model.PositionX, Y: model.PositionY},
		VIP:             model.VIP,
		Status:          status,
		StatusChangedAt: model.StatusChangedAt.UTC(),
		DeletedAt:       utcPointer(model.DeletedAt),
	}
	if err := decodeJSON(model.CombinedWith, &table.CombinedWith); err != nil {
		return booking.Table{}, err
	}
	if len(table.CombinedWith) == 0 {
		table.CombinedWith = nil
	}
	return table, nil
}

func reservationModel(reservation booking.Reservation) (Reservation, error) {
	combined, err := encodeJSON(reservation.CombinedTableIDs, emptyJSONArray)
	if err != nil {
		return Reservation{}, err
	}
	return Reservation{
		ReservationID:         reservation.ID.String(),
		RestaurantID:          reservation.RestaurantID.String(),
		UserID:                reservation.Guest.UserID,
		GuestName:             reservation.Guest.Name,
		GuestEmail:            reservation.Guest.Email,
		GuestPhone:            reservation.Guest.Phone,
		TableID:               reservation.TableID.String(),
		CombinedTableIDs:      combined,
		StartsAt:              reservation.StartsAt.UTC(),
		EndsAt:                reservation.EndsAt().UTC(),
		ServiceDate:           reservation.ServiceDate,
		EstimatedSeconds:      int64(reservation.EstimatedDuration / time.Second),
		PartySize:             reservation.PartySize,
		Status:                reservation.Status.String(),
		ConfirmationCode:      reservation.ConfirmationCode,
		ModificationCount:     reservation.ModificationCount,
		DepositRequired:       reservation.Deposit.Required,
		DepositAmountCents:    reservation.Deposit.AmountCents.Int64(),
		DepositExternalRef:    reservation.Deposit.ExternalRef,
		DepositCapturedAt:     utcPointer(reservation.Deposit.CapturedAt),
		DepositFeeCents:       reservation.Deposit.FeeCents.Int64(),
		DepositRefundedCents:  reservation.Deposit.RefundedCents.Int64(),
		DepositRefundDueCents: reservation.Deposit.RefundDueCents.Int64(),
		Occasion:              reservation.Occasion,
		VIP:                   reservation.VIP,
		SpecialRequests:       reservation.SpecialRequests,
		SeatedAt:              utcPointer(reservation.SeatedAt),
		CompletedAt:           utcPointer(reservation.CompletedAt),
		ActualDurationSeconds: int64(reservation.ActualDuration / time.Second),
		CreatedAt:             reservation.CreatedAt.UTC(),
		UpdatedAt:             reservation.UpdatedAt.UTC(),
		Version:               reservation.Version,
	}, nil
}

func mapReservation(model Reservation) (booking.Reservation, error) {
	reservationID, err := booking.NewReservationID(model.ReservationID)
	if err != nil {
		return booking.Reservation{}, err
	}
	restaurantID, err := booking.NewRestaurantID(model.RestaurantID)
	if err != nil {
		return booking.Reservation{}, err
	}
	status, err := booking.ParseReservationStatus(model.Status)
	if err != nil {
		return booking.Reservation{}, err
	}
	reservation := booking.Reservation{
		ID:           reservationID,
		RestaurantID: restaurantID,
		Guest: booking.Guest{
			UserID: model.UserID,
			Name:   model.GuestName,
			Email:  model.GuestEmail,
			Phone:  model.GuestPhone,
		},
		StartsAt:          model.StartsAt.UTC(),
		ServiceDate:       model.ServiceDate,
		EstimatedDuration: time.Duration(model.EstimatedSeconds) * time.Second,
		PartySize:         model.PartySize,
		Status:            status,
		ConfirmationCode:  model.ConfirmationCode,
		ModificationCount: model.ModificationCount,
		Deposit: booking.Deposit{
			Required:       model.DepositRequired,
			AmountCents:    booking.AmountCents(model.DepositAmountCents),
			ExternalRef:    model.DepositExternalRef,
			CapturedAt:     utcPointer(model.DepositCapturedAt),
			FeeCents:       booking.AmountCents(model.DepositFeeCents),
			RefundedCents:  booking.AmountCents(model.DepositRefundedCents),
			RefundDueCents: booking.AmountCents(model.DepositRefundDueCents),
		},
		Occasion:        model.Occasion,
		VIP:             model.VIP,
		SpecialRequests: model.SpecialRequests,
		SeatedAt:        utcPointer(model.SeatedAt),
		CompletedAt:     utcPointer(model.CompletedAt),
		ActualDuration:  time.Duration(model.ActualDurationSeconds) * time.Second,
		CreatedAt:       model.CreatedAt.UTC(),
		UpdatedAt:       model.UpdatedAt.UTC(),
		Version:         model.Version,
	}
	if model.TableID != "" {
		tableID, err := booking.NewTableID(model.TableID)
		if err != nil {
			return booking.Reservation{}, err
		}
		reservation.TableID = tableID
	}
	if err := decodeJSON(model.CombinedTableIDs, &reservation.CombinedTableIDs); err != nil {
		return booking.Reservation{}, err
	}
	if len(reservation.CombinedTableIDs) == 0 {
		reservation.CombinedTableIDs = nil
	}
	return reservation, nil
}

func mapReservations(rows []Reservation) ([]booking.Reservation, error) {
	reservations := make([]booking.Reservation, 0, len(rows))
	for _, row := range rows {
		reservation, err := mapReservation(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectReservation, errorCodeInvalid, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

func modificationModel(record booking.ModificationRecord) (ModificationRecord, error) {
	newValues, err := encodeJSON(record.NewValues, emptyJSONObject)
	if err != nil {
		return ModificationRecord{}, err
	}
	model := ModificationRecord{
		RecordID:      record.ID,
		ReservationID: record.ReservationID.String(),
		NewValues:     newValues,
		Reason:        record.Reason,
		Actor:         record.Actor,
		CreatedAt:     record.CreatedAt.UTC(),
	}
	if record.PreviousValues != nil {
		previousValues, err := encodeJSON(record.PreviousValues, emptyJSONObject)
		if err != nil {
			return ModificationRecord{}, err
		}
		model.PreviousValues = previousValues
	}
	return model, nil
}

func mapModification(model ModificationRecord) (booking.ModificationRecord, error) {
	reservationID, err := booking.NewReservationID(model.ReservationID)
	if err != nil {
		return booking.ModificationRecord{}, err
	}
	record := booking.ModificationRecord{
		ID:            model.RecordID,
		ReservationID: reservationID,
		Reason:        model.Reason,
		Actor:         model.Actor,
		CreatedAt:     model.CreatedAt.UTC(),
	}
	if err := decodeJSON(model.NewValues, &record.NewValues); err != nil {
		return booking.ModificationRecord{}, err
	}
	if len(model.PreviousValues) > 0 && string(model.PreviousValues) != "null" {
		var previous booking.ReservationSnapshot
		if err := decodeJSON(model.PreviousValues, &previous); err != nil {
			return booking.ModificationRecord{}, err
		}
		record.PreviousValues = &previous
	}
	return record, nil
}

func waitlistModel(entry booking.WaitlistEntry) WaitlistEntry {
	var reservationID *string
	if entry.ReservationID != nil {
		value := entry.ReservationID.String()
		reservationID = &value
	}
	return WaitlistEntry{
		EntryID:              entry.ID.String(),
		RestaurantID:         entry.RestaurantID.String(),
		ServiceDate:          entry.Date,
		WindowStart:          entry.WindowStart.UTC(),
		WindowEnd:            entry.WindowEnd.UTC(),
		PartySize:            entry.PartySize,
		UserID:               entry.Guest.UserID,
		GuestName:            entry.Guest.Name,
		GuestEmail:           entry.Guest.Email,
		GuestPhone:           entry.Guest.Phone,
		Position:             entry.Position,
		Status:               entry.Status.String(),
		EstimatedWaitMinutes: entry.EstimatedWaitMinutes,
		JoinedAt:             entry.JoinedAt.UTC(),
		NotifiedAt:           utcPointer(entry.NotifiedAt),
		ResponseDeadline:     utcPointer(entry.ResponseDeadline),
		ReservationID:        reservationID,
	}
}

func mapWaitlistEntry(model WaitlistEntry) (booking.WaitlistEntry, error) {
	entryID, err := booking.NewWaitlistEntryID(model.EntryID)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	restaurantID, err := booking.NewRestaurantID(model.RestaurantID)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	status, err := booking.ParseWaitlistStatus(model.Status)
	if err != nil {
		return booking.WaitlistEntry{}, err
	}
	entry := booking.WaitlistEntry{
		ID:           entryID,
		RestaurantID: restaurantID,
		Date:         model.ServiceDate,
		WindowStart:  model.WindowStart.UTC(),
		WindowEnd:    model.WindowEnd.UTC(),
		PartySize:    model.PartySize,
		Guest: booking.Guest{
			UserID: model.UserID,
			Name:   model.GuestName,
			Email:  model.GuestEmail,
			Phone:  model.GuestPhone,
		},
		Position:             model.Position,
		Status:               status,
		EstimatedWaitMinutes: model.EstimatedWaitMinutes,
		JoinedAt:             model.JoinedAt.UTC(),
		NotifiedAt:           utcPointer(model.NotifiedAt),
		ResponseDeadline:     utcPointer(model.ResponseDeadline),
	}
	if model.ReservationID != nil {
		reservationID, err := booking.NewReservationID(*model.ReservationID)
		if err != nil {
			return booking.WaitlistEntry{}, err
		}
		entry.ReservationID = &reservationID
	}
	return entry, nil
}

func mapWaitlistEntries(rows []WaitlistEntry) ([]booking.WaitlistEntry, error) {
	entries := make([]booking.WaitlistEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapWaitlistEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectWaitlist, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
