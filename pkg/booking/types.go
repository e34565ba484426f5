package booking

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// AmountCents is an integer currency in cents.
type AmountCents int64

// Int64 exposes the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Percent returns percent% of the amount, rounded down to the cent.
func (amount AmountCents) Percent(percent int) AmountCents {
	return AmountCents(int64(amount) * int64(percent) / 100)
}

// RestaurantID identifies a restaurant.
type RestaurantID struct {
	value string
}

// TableID identifies a physical table.
type TableID struct {
	value string
}

// ReservationID identifies a reservation.
type ReservationID struct {
	value string
}

// WaitlistEntryID identifies a waitlist entry.
type WaitlistEntryID struct {
	value string
}

// NewRestaurantID validates and normalizes a restaurant id.
func NewRestaurantID(raw string) (RestaurantID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RestaurantID{}, validationError("empty restaurant id")
	}
	return RestaurantID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id RestaurantID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id RestaurantID) IsZero() bool {
	return id.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id RestaurantID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *RestaurantID) UnmarshalText(text []byte) error {
	parsed, err := NewRestaurantID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewTableID validates and normalizes a table id.
func NewTableID(raw string) (TableID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return TableID{}, validationError("empty table id")
	}
	return TableID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id TableID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id TableID) IsZero() bool {
	return id.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id TableID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *TableID) UnmarshalText(text []byte) error {
	parsed, err := NewTableID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewReservationID validates and normalizes a reservation id.
func NewReservationID(raw string) (ReservationID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ReservationID{}, validationError("empty reservation id")
	}
	return ReservationID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ReservationID) String() string {
	return id.value
}

// IsZero reports whether the id was never set.
func (id ReservationID) IsZero() bool {
	return id.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (id ReservationID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ReservationID) UnmarshalText(text []byte) error {
	parsed, err := NewReservationID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// NewWaitlistEntryID validates and normalizes a waitlist entry id.
func NewWaitlistEntryID(raw string) (WaitlistEntryID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return WaitlistEntryID{}, validationError("empty waitlist entry id")
	}
	return WaitlistEntryID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id WaitlistEntryID) String() string {
	return id.value
}

// MarshalText implements encoding.TextMarshaler.
func (id WaitlistEntryID) MarshalText() ([]byte, error) {
	return []byte(id.value), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *WaitlistEntryID) UnmarshalText(text []byte) error {
	parsed, err := NewWaitlistEntryID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// TableStatus is the physical status of a table.
type TableStatus string

const (
	TableStatusAvailable   TableStatus = "available"
	TableStatusReserved    TableStatus = "reserved"
	TableStatusOccupied    TableStatus = "occupied"
	TableStatusCleaning    TableStatus = "cleaning"
	TableStatusMaintenance TableStatus = "maintenance"
)

// String returns the persisted value.
func (status TableStatus) String() string {
	return string(status)
}

// ParseTableStatus validates a persisted table status.
func ParseTableStatus(raw string) (TableStatus, error) {
	switch TableStatus(raw) {
	case TableStatusAvailable, TableStatusReserved, TableStatusOccupied, TableStatusCleaning, TableStatusMaintenance:
		return TableStatus(raw), nil
	default:
		return "", validationError("unknown table status %q", raw)
	}
}

// ReservationStatus defines the reservation lifecycle.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusSeated    ReservationStatus = "seated"
	ReservationStatusCompleted ReservationStatus = "completed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
	ReservationStatusNoShow    ReservationStatus = "no_show"
)

// String returns the persisted value.
func (status ReservationStatus) String() string {
	return string(status)
}

// IsTerminal reports whether the status can no longer change.
func (status ReservationStatus) IsTerminal() bool {
	switch status {
	case ReservationStatusCompleted, ReservationStatusCancelled, ReservationStatusNoShow:
		return true
	default:
		return false
	}
}

// ParseReservationStatus validates a persisted reservation status.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	switch ReservationStatus(raw) {
	case ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusSeated,
		ReservationStatusCompleted, ReservationStatusCancelled, ReservationStatusNoShow:
		return ReservationStatus(raw), nil
	default:
		return "", validationError("unknown reservation status %q", raw)
	}
}

// ActiveReservationStatuses lists the statuses that occupy tables.
func ActiveReservationStatuses() []ReservationStatus {
	return []ReservationStatus{ReservationStatusPending, ReservationStatusConfirmed, ReservationStatusSeated}
}

// WaitlistStatus defines the waitlist entry lifecycle.
type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "waiting"
	WaitlistStatusNotified  WaitlistStatus = "notified"
	WaitlistStatusSeated    WaitlistStatus = "seated"
	WaitlistStatusCancelled WaitlistStatus = "cancelled"
	WaitlistStatusExpired   WaitlistStatus = "expired"
)

// String returns the persisted value.
func (status WaitlistStatus) String() string {
	return string(status)
}

// IsQueued reports whether the entry still holds a position.
func (status WaitlistStatus) IsQueued() bool {
	return status == WaitlistStatusWaiting || status == WaitlistStatusNotified
}

// ParseWaitlistStatus validates a persisted waitlist status.
func ParseWaitlistStatus(raw string) (WaitlistStatus, error) {
	switch WaitlistStatus(raw) {
	case WaitlistStatusWaiting, WaitlistStatusNotified, WaitlistStatusSeated, WaitlistStatusCancelled, WaitlistStatusExpired:
		return WaitlistStatus(raw), nil
	default:
		return "", validationError("unknown waitlist status %q", raw)
	}
}

// Position is a table's location on the floor plan.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the euclidean distance between two positions.
func (position Position) DistanceTo(other Position) float64 {
	return math.Hypot(position.X-other.X, position.Y-other.Y)
}

// OpeningRange is one service period. CloseMinute may exceed 1440 for
// periods that run past midnight.
type OpeningRange struct {
	Weekday     time.Weekday `json:"weekday"`
	OpenMinute  int          `json:"open_minute"`
	CloseMinute int          `json:"close_minute"`
}

// DepositPolicy decides whether a booking needs a deposit.
type DepositPolicy struct {
	Required                   bool        `json:"required"`
	AmountCents                AmountCents `json:"amount_cents"`
	SpecialOccasions           []string    `json:"special_occasions"`
	SpecialOccasionAmountCents AmountCents `json:"special_occasion_amount_cents"`
	LargePartyThreshold        int         `json:"large_party_threshold"`
	LargePartyAmountCents      AmountCents `json:"large_party_amount_cents"`
}

// CancellationPolicy prices late cancellations.
type CancellationPolicy struct {
	LateWindow     time.Duration `json:"late_window"`
	LateFeePercent int           `json:"late_fee_percent"`
}

// Restaurant carries the scheduling policy of one venue.
type Restaurant struct {
	ID                     RestaurantID
	Name                   string
	TimeZone               string
	Hours                  []OpeningRange
	Deposit                DepositPolicy
	Cancellation           CancellationPolicy
	AverageTurnTimeMinutes int
}

// Location resolves the restaurant time zone, defaulting to UTC.
func (restaurant Restaurant) Location() (*time.Location, error) {
	if strings.TrimSpace(restaurant.TimeZone) == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(restaurant.TimeZone)
	if err != nil {
		return nil, validationError("restaurant %s time zone %q: %v", restaurant.ID, restaurant.TimeZone, err)
	}
	return location, nil
}

// IsOpenAt reports whether a seating may start at the given instant.
func (restaurant Restaurant) IsOpenAt(at time.Time) (bool, error) {
	location, err := restaurant.Location()
	if err != nil {
		return false, err
	}
	local := at.In(location)
	minute := local.Hour()*60 + local.Minute()
	previousDay := (local.Weekday() + 6) % 7
	for _, period := range restaurant.Hours {
		if period.Weekday == local.Weekday() && minute >= period.OpenMinute && minute < period.CloseMinute {
			return true, nil
		}
		if period.Weekday == previousDay && period.CloseMinute > minutesPerDay && minute+minutesPerDay < period.CloseMinute {
			return true, nil
		}
	}
	return false, nil
}

// LocalDate returns the restaurant-local calendar date of an instant.
func (restaurant Restaurant) LocalDate(at time.Time) (string, error) {
	location, err := restaurant.Location()
	if err != nil {
		return "", err
	}
	return at.In(location).Format(dateLayout), nil
}

const minutesPerDay = 24 * 60

// Guest identifies who the booking is for: a registered user or a contact bundle.
type Guest struct {
	UserID string `json:"user_id,omitempty"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// Validate ensures the guest can be contacted or identified.
func (guest Guest) Validate() error {
	if strings.TrimSpace(guest.UserID) == "" && strings.TrimSpace(guest.Email) == "" && strings.TrimSpace(guest.Phone) == "" {
		return validationError("guest needs a user id, email or phone")
	}
	return nil
}

// Recipient returns the best address for notifications.
func (guest Guest) Recipient() string {
	switch {
	case guest.Email != "":
		return guest.Email
	case guest.Phone != "":
		return guest.Phone
	default:
		return guest.UserID
	}
}

// Table is one physical table on a floor plan. StatusChangedAt records when
// Status last changed.
type Table struct {
	ID              TableID
	RestaurantID    RestaurantID
	Label           string
	Capacity        int
	MinCapacity     int
	Position        Position
	VIP             bool
	Status          TableStatus
	StatusChangedAt time.Time
	CombinedWith    []TableID
	DeletedAt       *time.Time
}

// Fits reports whether the table alone can seat the party.
func (table Table) Fits(partySize int) bool {
	return table.Capacity >= partySize && table.MinCapacity <= partySize
}

// Deposit holds the money side of a reservation. RefundDueCents is owed back
// to the guest but not yet confirmed refunded by the payment collaborator.
type Deposit struct {
	Required       bool
	AmountCents    AmountCents
	ExternalRef    string
	CapturedAt     *time.Time
	FeeCents       AmountCents
	RefundedCents  AmountCents
	RefundDueCents AmountCents
}

// Reservation is a booking of one or more tables.
type Reservation struct {
	ID                ReservationID
	RestaurantID      RestaurantID
	Guest             Guest
	TableID           TableID
	CombinedTableIDs  []TableID
	StartsAt          time.Time
	ServiceDate       string
	EstimatedDuration time.Duration
	PartySize         int
	Status            ReservationStatus
	ConfirmationCode  string
	ModificationCount int
	Deposit           Deposit
	Occasion          string
	VIP               bool
	SpecialRequests   string
	SeatedAt          *time.Time
	CompletedAt       *time.Time
	ActualDuration    time.Duration
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
}

// EndsAt returns the planned end of the reservation.
func (reservation Reservation) EndsAt() time.Time {
	return reservation.StartsAt.Add(reservation.EstimatedDuration)
}

// TableIDs returns the primary table followed by any combined tables.
func (reservation Reservation) TableIDs() []TableID {
	ids := make([]TableID, 0, 1+len(reservation.CombinedTableIDs))
	if !reservation.TableID.IsZero() {
		ids = append(ids, reservation.TableID)
	}
	return append(ids, reservation.CombinedTableIDs...)
}

// UsesTable reports whether the reservation holds the given table.
func (reservation Reservation) UsesTable(tableID TableID) bool {
	for _, id := range reservation.TableIDs() {
		if id == tableID {
			return true
		}
	}
	return false
}

// occupiedUntil returns when the tables are released; a seated party that
// overstays keeps its tables until now.
func (reservation Reservation) occupiedUntil(now time.Time) time.Time {
	end := reservation.EndsAt()
	if reservation.Status == ReservationStatusSeated && now.After(end) {
		return now
	}
	return end
}

// WaitlistEntry is queued demand for a date when no table was free.
type WaitlistEntry struct {
	ID                   WaitlistEntryID
	RestaurantID         RestaurantID
	Date                 string
	WindowStart          time.Time
	WindowEnd            time.Time
	PartySize            int
	Guest                Guest
	Position             int
	Status               WaitlistStatus
	EstimatedWaitMinutes int
	JoinedAt             time.Time
	NotifiedAt           *time.Time
	ResponseDeadline     *time.Time
	ReservationID        *ReservationID
}

// ReservationSnapshot captures the mutable fields of a reservation for the audit trail.
type ReservationSnapshot struct {
	StartsAt          time.Time         `json:"starts_at"`
	EstimatedDuration time.Duration     `json:"estimated_duration"`
	PartySize         int               `json:"party_size"`
	TableIDs          []TableID         `json:"table_ids"`
	Status            ReservationStatus `json:"status"`
	SpecialRequests   string            `json:"special_requests,omitempty"`
}

// SnapshotOf captures the audit-relevant state of a reservation.
func SnapshotOf(reservation Reservation) ReservationSnapshot {
	return ReservationSnapshot{
		StartsAt:          reservation.StartsAt,
		EstimatedDuration: reservation.EstimatedDuration,
		PartySize:         reservation.PartySize,
		TableIDs:          reservation.TableIDs(),
		Status:            reservation.Status,
		SpecialRequests:   reservation.SpecialRequests,
	}
}

// ModificationRecord is one append-only audit line.
type ModificationRecord struct {
	ID             string
	ReservationID  ReservationID
	PreviousValues *ReservationSnapshot
	NewValues      ReservationSnapshot
	Reason         string
	Actor          string
	CreatedAt      time.Time
}

// MealPeriod buckets turn-time samples by service.
type MealPeriod string

const (
	MealPeriodBreakfast MealPeriod = "breakfast"
	MealPeriodLunch     MealPeriod = "lunch"
	MealPeriodDinner    MealPeriod = "dinner"
)

// TurnTimeKey addresses one rolling-average bucket.
type TurnTimeKey struct {
	RestaurantID RestaurantID
	PartyKey     int
	Weekday      time.Weekday
	MealPeriod   MealPeriod
}

// TurnTimeStat is the rolling average of actual dining minutes for a bucket.
type TurnTimeStat struct {
	Key            TurnTimeKey
	Samples        int
	AverageMinutes float64
}

// Role is the capability class of a principal.
type Role string

const (
	RoleGuest  Role = "guest"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Principal is the authenticated caller supplied by the identity collaborator.
type Principal struct {
	ID   string
	Role Role
}

// SystemPrincipal is used by background sweeps.
var SystemPrincipal = Principal{ID: "system", Role: RoleSystem}

// IsAdmin reports whether the principal may act on any booking.
func (principal Principal) IsAdmin() bool {
	return principal.Role == RoleAdmin || principal.Role == RoleSystem
}

// AuthorizeOwnerOrAdmin is the uniform capability check applied before any
// operation on an existing booking.
func AuthorizeOwnerOrAdmin(principal Principal, ownerUserID string) error {
	if principal.IsAdmin() {
		return nil
	}
	if principal.ID != "" && principal.ID == ownerUserID {
		return nil
	}
	return fmt.Errorf("%w: principal %q is neither owner nor admin", ErrForbidden, principal.ID)
}
