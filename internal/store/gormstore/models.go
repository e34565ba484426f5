package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Restaurant mirrors the restaurants table.
type Restaurant struct {
	RestaurantID           string         `gorm:"primaryKey"`
	Name                   string         `gorm:"not null"`
	TimeZone               string         `gorm:"not null"`
	Hours                  datatypes.JSON `gorm:"not null"`
	DepositPolicy          datatypes.JSON `gorm:"not null"`
	LateWindowSeconds      int64          `gorm:"not null"`
	LateFeePercent         int            `gorm:"not null"`
	AverageTurnTimeMinutes int            `gorm:"not null"`
	LockVersion            int64          `gorm:"not null;default:0"`
	UpdatedAt              time.Time      `gorm:"not null"`
}

func (Restaurant) TableName() string { return "restaurants" }

// DiningTable mirrors the dining_tables table.
type DiningTable struct {
	TableID         string         `gorm:"primaryKey"`
	RestaurantID    string         `gorm:"not null;index:idx_tables_restaurant_label,priority:1"`
	Label           string         `gorm:"not null;index:idx_tables_restaurant_label,priority:2"`
	Capacity        int            `gorm:"not null"`
	MinCapacity     int            `gorm:"not null"`
	PositionX       float64        `gorm:"not null"`
	PositionY       float64        `gorm:"not null"`
	VIP             bool           `gorm:"column:vip;not null"`
	Status          string         `gorm:"not null;index:idx_tables_status_changed,priority:1"`
	StatusChangedAt time.Time      `gorm:"not null;index:idx_tables_status_changed,priority:2"`
	CombinedWith    datatypes.JSON `gorm:"not null"`
	DeletedAt       *time.Time     `gorm:""`
}

func (DiningTable) TableName() string { return "dining_tables" }

// Reservation mirrors the reservations table. EndsAt is denormalized from
// StartsAt and the estimated duration so overlap queries stay indexable.
type Reservation struct {
	ReservationID         string         `gorm:"primaryKey"`
	RestaurantID          string         `gorm:"not null;index:idx_reservations_restaurant_start,priority:1;uniqueIndex:uniq_reservations_code,priority:1"`
	UserID                string         `gorm:"not null;index"`
	GuestName             string         `gorm:"not null"`
	GuestEmail            string         `gorm:"not null"`
	GuestPhone            string         `gorm:"not null"`
	TableID               string         `gorm:"not null"`
	CombinedTableIDs      datatypes.JSON `gorm:"not null"`
	StartsAt              time.Time      `gorm:"not null;index:idx_reservations_restaurant_start,priority:2"`
	EndsAt                time.Time      `gorm:"not null"`
	ServiceDate           string         `gorm:"not null;uniqueIndex:uniq_reservations_code,priority:2"`
	EstimatedSeconds      int64          `gorm:"not null"`
	PartySize             int            `gorm:"not null"`
	Status                string         `gorm:"not null;index"`
	ConfirmationCode      string         `gorm:"not null;uniqueIndex:uniq_reservations_code,priority:3"`
	ModificationCount     int            `gorm:"not null"`
	DepositRequired       bool           `gorm:"not null"`
	DepositAmountCents    int64          `gorm:"not null"`
	DepositExternalRef    string         `gorm:"not null"`
	DepositCapturedAt     *time.Time     `gorm:""`
	DepositFeeCents       int64          `gorm:"not null"`
	DepositRefundedCents  int64          `gorm:"not null"`
	DepositRefundDueCents int64          `gorm:"not null;default:0;index"`
	Occasion              string         `gorm:"not null"`
	VIP                   bool           `gorm:"column:vip;not null"`
	SpecialRequests       string         `gorm:"not null"`
	SeatedAt              *time.Time     `gorm:""`
	CompletedAt           *time.Time     `gorm:""`
	ActualDurationSeconds int64          `gorm:"not null"`
	CreatedAt             time.Time      `gorm:"not null;autoCreateTime:false"`
	UpdatedAt             time.Time      `gorm:"not null;autoUpdateTime:false"`
	Version               int64          `gorm:"not null"`
}

func (Reservation) TableName() string { return "reservations" }

// ModificationRecord mirrors the append-only reservation_modifications table.
type ModificationRecord struct {
	RecordID       string         `gorm:"primaryKey"`
	ReservationID  string         `gorm:"not null;index:idx_modifications_reservation_created,priority:1"`
	PreviousValues datatypes.JSON `gorm:""`
	NewValues      datatypes.JSON `gorm:"not null"`
	Reason         string         `gorm:"not null"`
	Actor          string         `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null;autoCreateTime:false;index:idx_modifications_reservation_created,priority:2"`
}

func (ModificationRecord) TableName() string { return "reservation_modifications" }

// WaitlistEntry mirrors the waitlist_entries table.
type WaitlistEntry struct {
	EntryID              string     `gorm:"primaryKey"`
	RestaurantID         string     `gorm:"not null;index:idx_waitlist_restaurant_date,priority:1"`
	ServiceDate          string     `gorm:"not null;index:idx_waitlist_restaurant_date,priority:2"`
	WindowStart          time.Time  `gorm:"not null"`
	WindowEnd            time.Time  `gorm:"not null"`
	PartySize            int        `gorm:"not null"`
	UserID               string     `gorm:"not null"`
	GuestName            string     `gorm:"not null"`
	GuestEmail           string     `gorm:"not null"`
	GuestPhone           string     `gorm:"not null"`
	Position             int        `gorm:"not null"`
	Status               string     `gorm:"not null;index"`
	EstimatedWaitMinutes int        `gorm:"not null"`
	JoinedAt             time.Time  `gorm:"not null"`
	NotifiedAt           *time.Time `gorm:""`
	ResponseDeadline     *time.Time `gorm:""`
	ReservationID        *string    `gorm:""`
}

func (WaitlistEntry) TableName() string { return "waitlist_entries" }

// TurnTimeStat mirrors the turn_time_stats table.
type TurnTimeStat struct {
	RestaurantID   string  `gorm:"primaryKey"`
	PartyKey       int     `gorm:"primaryKey;autoIncrement:false"`
	Weekday        int     `gorm:"primaryKey;autoIncrement:false"`
	MealPeriod     string  `gorm:"primaryKey"`
	Samples        int     `gorm:"not null"`
	AverageMinutes float64 `gorm:"not null"`
}

func (TurnTimeStat) TableName() string { return "turn_time_stats" }

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{
		&Restaurant{},
		&DiningTable{},
		&Reservation{},
		&ModificationRecord{},
		&WaitlistEntry{},
		&TurnTimeStat{},
	}
}
