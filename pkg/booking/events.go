package booking

import "time"

// EventType names a domain event published after a committed mutation.
type EventType string

const (
	EventReservationCreated   EventType = "reservation.created"
	EventReservationModified  EventType = "reservation.modified"
	EventReservationCancelled EventType = "reservation.cancelled"
	EventReservationSeated    EventType = "reservation.seated"
	EventReservationCompleted EventType = "reservation.completed"
	EventReservationNoShow    EventType = "reservation.no_show"
	EventTableStatusChanged   EventType = "table.status_changed"
	EventWaitlistJoined       EventType = "waitlist.joined"
	EventWaitlistLeft         EventType = "waitlist.left"
	EventWaitlistExpired      EventType = "waitlist.expired"
	EventWaitlistPromoted     EventType = "waitlist.promoted"
)

const (
	publicChannel           = "public"
	restaurantChannelPrefix = "restaurant."
)

// Event is the envelope delivered to external consumers. Payloads never
// carry guest contact details because events also go to the public channel.
type Event struct {
	ID           string              `json:"id"`
	Type         EventType           `json:"type"`
	RestaurantID RestaurantID        `json:"restaurant_id"`
	OccurredAt   time.Time           `json:"occurred_at"`
	Reservation  *ReservationPayload `json:"reservation,omitempty"`
	Table        *TablePayload       `json:"table,omitempty"`
	Waitlist     *WaitlistPayload    `json:"waitlist,omitempty"`
}

// Channels returns the restaurant-scoped and public channel names for the event.
func (event Event) Channels() []string {
	return []string{restaurantChannelPrefix + event.RestaurantID.String(), publicChannel}
}

// ReservationPayload summarizes a reservation change.
type ReservationPayload struct {
	ReservationID     ReservationID     `json:"reservation_id"`
	Status            ReservationStatus `json:"status"`
	StartsAt          time.Time         `json:"starts_at"`
	PartySize         int               `json:"party_size"`
	TableIDs          []TableID         `json:"table_ids"`
	ModificationCount int               `json:"modification_count"`
}

// TablePayload describes a table status transition.
type TablePayload struct {
	TableID TableID     `json:"table_id"`
	From    TableStatus `json:"from"`
	To      TableStatus `json:"to"`
}

// WaitlistPayload summarizes a waitlist change.
type WaitlistPayload struct {
	EntryID   WaitlistEntryID `json:"entry_id"`
	Status    WaitlistStatus  `json:"status"`
	Position  int             `json:"position"`
	PartySize int             `json:"party_size"`
	Date      string          `json:"date"`
}

func reservationPayload(reservation Reservation) *ReservationPayload {
	return &ReservationPayload{
		ReservationID:     reservation.ID,
		Status:            reservation.Status,
		StartsAt:          reservation.StartsAt,
		PartySize:         reservation.PartySize,
		TableIDs:          reservation.TableIDs(),
		ModificationCount: reservation.ModificationCount,
	}
}

func waitlistPayload(entry WaitlistEntry) *WaitlistPayload {
	return &WaitlistPayload{
		EntryID:   entry.ID,
		Status:    entry.Status,
		Position:  entry.Position,
		PartySize: entry.PartySize,
		Date:      entry.Date,
	}
}
