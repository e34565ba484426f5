package booking

import (
	"context"
	"math"
	"time"
)

var defaultTurnTimeMinutes = map[int]int{
	1: 45,
	2: 60,
	3: 75,
	4: 90,
	5: 90,
	6: 105,
	7: 105,
	8: 120,
}

// PartyKey buckets a party size into 1..8, where 8 means eight or more.
func PartyKey(partySize int) int {
	switch {
	case partySize < 1:
		return 1
	case partySize > turnTimeMaxPartyKey:
		return turnTimeMaxPartyKey
	default:
		return partySize
	}
}

// MealPeriodAt classifies a restaurant-local time.
func MealPeriodAt(local time.Time) MealPeriod {
	minute := local.Hour()*60 + local.Minute()
	switch {
	case minute < breakfastEndsMinute:
		return MealPeriodBreakfast
	case minute < lunchEndsMinute:
		return MealPeriodLunch
	default:
		return MealPeriodDinner
	}
}

// DefaultTurnTime is the fallback duration when no history exists.
func DefaultTurnTime(partySize int) time.Duration {
	return time.Duration(defaultTurnTimeMinutes[PartyKey(partySize)]) * time.Minute
}

func turnTimeKeyFor(restaurant Restaurant, partySize int, startsAt time.Time) (TurnTimeKey, error) {
	location, err := restaurant.Location()
	if err != nil {
		return TurnTimeKey{}, err
	}
	local := startsAt.In(location)
	return TurnTimeKey{
		RestaurantID: restaurant.ID,
		PartyKey:     PartyKey(partySize),
		Weekday:      local.Weekday(),
		MealPeriod:   MealPeriodAt(local),
	}, nil
}

// EstimateTurnTime returns the expected dining duration for a party starting at startsAt.
func (service *Service) EstimateTurnTime(ctx context.Context, restaurantID RestaurantID, partySize int, startsAt time.Time) (time.Duration, error) {
	if partySize <= 0 {
		return 0, validationError("party size must be positive, got %d", partySize)
	}
	restaurant, err := service.store.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return 0, err
	}
	return service.estimateTurnTime(ctx, service.store, restaurant, partySize, startsAt)
}

func (service *Service) estimateTurnTime(ctx context.Context, store Store, restaurant Restaurant, partySize int, startsAt time.Time) (time.Duration, error) {
	if restaurant.AverageTurnTimeMinutes > 0 {
		return time.Duration(restaurant.AverageTurnTimeMinutes) * time.Minute, nil
	}
	key, err := turnTimeKeyFor(restaurant, partySize, startsAt)
	if err != nil {
		return 0, err
	}
	stat, found, err := store.GetTurnTimeStat(ctx, key)
	if err != nil {
		return 0, err
	}
	if found && stat.Samples >= turnTimeMinSamples && stat.AverageMinutes > 0 {
		return time.Duration(math.Round(stat.AverageMinutes)) * time.Minute, nil
	}
	return DefaultTurnTime(partySize), nil
}

// recordTurnTime folds one completed seating into its rolling bucket.
func recordTurnTime(ctx context.Context, store Store, restaurant Restaurant, reservation Reservation, actual time.Duration) error {
	if actual <= 0 {
		return nil
	}
	key, err := turnTimeKeyFor(restaurant, reservation.PartySize, reservation.StartsAt)
	if err != nil {
		return err
	}
	stat, found, err := store.GetTurnTimeStat(ctx, key)
	if err != nil {
		return err
	}
	if !found {
		stat = TurnTimeStat{Key: key}
	}
	stat = stat.withSample(actual.Minutes())
	return store.SaveTurnTimeStat(ctx, stat)
}

// withSample updates the average over at most the last turnTimeRollingWindow samples.
func (stat TurnTimeStat) withSample(minutes float64) TurnTimeStat {
	weight := stat.Samples + 1
	if weight > turnTimeRollingWindow {
		weight = turnTimeRollingWindow
	}
	stat.AverageMinutes += (minutes - stat.AverageMinutes) / float64(weight)
	stat.Samples = weight
	return stat
}
