package booking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// TableSpec describes a table to add to a floor plan.
type TableSpec struct {
	RestaurantID RestaurantID
	Label        string
	Capacity     int
	MinCapacity  int
	Position     Position
	VIP          bool
}

func (spec TableSpec) validate() error {
	if spec.RestaurantID.IsZero() {
		return validationError("restaurant id is required")
	}
	if strings.TrimSpace(spec.Label) == "" {
		return validationError("table label is required")
	}
	if spec.Capacity <= 0 {
		return validationError("table capacity must be positive, got %d", spec.Capacity)
	}
	if spec.MinCapacity < 0 || spec.MinCapacity > spec.Capacity {
		return validationError("table min capacity %d outside 0..%d", spec.MinCapacity, spec.Capacity)
	}
	return nil
}

func validateRestaurant(restaurant Restaurant) error {
	if strings.TrimSpace(restaurant.Name) == "" {
		return validationError("restaurant name is required")
	}
	if _, err := restaurant.Location(); err != nil {
		return err
	}
	for _, period := range restaurant.Hours {
		if period.Weekday < time.Sunday || period.Weekday > time.Saturday {
			return validationError("opening range weekday %d is invalid", period.Weekday)
		}
		if period.OpenMinute < 0 || period.OpenMinute >= minutesPerDay {
			return validationError("opening minute %d outside 0..1439", period.OpenMinute)
		}
		if period.CloseMinute <= period.OpenMinute || period.CloseMinute > 2*minutesPerDay {
			return validationError("closing minute %d must follow opening minute %d", period.CloseMinute, period.OpenMinute)
		}
	}
	if restaurant.Cancellation.LateFeePercent < 0 || restaurant.Cancellation.LateFeePercent > 100 {
		return validationError("late fee percent %d outside 0..100", restaurant.Cancellation.LateFeePercent)
	}
	if restaurant.AverageTurnTimeMinutes < 0 {
		return validationError("average turn time must not be negative")
	}
	return nil
}

// RegisterRestaurant creates or replaces a restaurant's scheduling policy.
// A zero cancellation policy gets the default late window and fee.
func (service *Service) RegisterRestaurant(ctx context.Context, principal Principal, restaurant Restaurant) (Restaurant, error) {
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may edit floor plans", ErrForbidden)
		}
		if restaurant.ID.IsZero() {
			restaurantID, err := NewRestaurantID(service.idFn())
			if err != nil {
				return err
			}
			restaurant.ID = restaurantID
		}
		restaurant.Name = strings.TrimSpace(restaurant.Name)
		if restaurant.Cancellation == (CancellationPolicy{}) {
			restaurant.Cancellation = DefaultCancellationPolicy()
		}
		if err := validateRestaurant(restaurant); err != nil {
			return err
		}
		return service.store.WithTx(ctx, func(ctx context.Context, txStore Store) error {
			return txStore.SaveRestaurant(ctx, restaurant)
		})
	}()
	service.logOperation(ctx, OperationLog{Operation: operationFloorPlan, RestaurantID: restaurant.ID, Error: operationError})
	if operationError != nil {
		return Restaurant{}, operationError
	}
	return restaurant, nil
}

// AddTable places a new available table on a restaurant's floor plan.
func (service *Service) AddTable(ctx context.Context, principal Principal, spec TableSpec) (Table, error) {
	var added Table
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may edit floor plans", ErrForbidden)
		}
		if err := spec.validate(); err != nil {
			return err
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			if err := txStore.LockRestaurant(ctx, spec.RestaurantID); err != nil {
				return err
			}
			restaurant, err := txStore.GetRestaurant(ctx, spec.RestaurantID)
			if err != nil {
				return err
			}
			tables, err := txStore.ListTables(ctx, restaurant.ID)
			if err != nil {
				return err
			}
			label := strings.TrimSpace(spec.Label)
			for _, existing := range tables {
				if strings.EqualFold(existing.Label, label) {
					return fmt.Errorf("%w: table label %q already used", ErrConflict, label)
				}
			}
			tableID, err := NewTableID(service.idFn())
			if err != nil {
				return err
			}
			added = Table{
				ID:              tableID,
				RestaurantID:    restaurant.ID,
				Label:           label,
				Capacity:        spec.Capacity,
				MinCapacity:     spec.MinCapacity,
				Position:        spec.Position,
				VIP:             spec.VIP,
				Status:          TableStatusAvailable,
				StatusChangedAt: service.nowFn(),
			}
			if err := txStore.CreateTable(ctx, added); err != nil {
				return err
			}
			return service.invalidateToday(pending, restaurant)
		})
	}()
	service.logOperation(ctx, OperationLog{Operation: operationFloorPlan, RestaurantID: spec.RestaurantID, TableIDs: []TableID{added.ID}, PartySize: spec.Capacity, Error: operationError})
	if operationError != nil {
		return Table{}, operationError
	}
	return added, nil
}

// RetireTable soft-deletes a table that no upcoming booking depends on.
func (service *Service) RetireTable(ctx context.Context, principal Principal, tableID TableID) (Table, error) {
	var retired Table
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may edit floor plans", ErrForbidden)
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			table, restaurant, err := loadTableForUpdate(ctx, txStore, tableID)
			if err != nil {
				return err
			}
			if table.DeletedAt != nil {
				return stateError("table %s is already retired", table.ID)
			}
			now := service.nowFn()
			upcoming, err := txStore.ListActiveReservations(ctx, table.RestaurantID, now, farFuture(now))
			if err != nil {
				return err
			}
			for _, reservation := range upcoming {
				if reservation.UsesTable(table.ID) {
					return stateError("table %s is held by reservation %s", table.ID, reservation.ID)
				}
			}
			table.DeletedAt = &now
			if err := txStore.UpdateTable(ctx, table); err != nil {
				return err
			}
			retired = table
			return service.invalidateToday(pending, restaurant)
		})
	}()
	service.logOperation(ctx, OperationLog{Operation: operationFloorPlan, RestaurantID: retired.RestaurantID, TableIDs: []TableID{tableID}, Error: operationError})
	if operationError != nil {
		return Table{}, operationError
	}
	return retired, nil
}

// SetTableMaintenance takes a table out of service or returns it. Occupied
// tables cannot be taken out.
func (service *Service) SetTableMaintenance(ctx context.Context, principal Principal, tableID TableID, maintenance bool) (Table, error) {
	var updated Table
	operationError := func() error {
		if !principal.IsAdmin() {
			return fmt.Errorf("%w: only staff may change table status", ErrForbidden)
		}
		return service.mutate(ctx, func(ctx context.Context, txStore Store, pending *effects) error {
			table, restaurant, err := loadTableForUpdate(ctx, txStore, tableID)
			if err != nil {
				return err
			}
			target := TableStatusMaintenance
			if maintenance {
				if table.Status == TableStatusOccupied {
					return stateError("table %s is occupied", table.ID)
				}
			} else {
				if table.Status != TableStatusMaintenance {
					return stateError("table %s is %s, not in maintenance", table.ID, table.Status)
				}
				reservations, err := service.upcomingReservations(ctx, txStore, table.RestaurantID)
				if err != nil {
					return err
				}
				target = derivedTableStatus(table.ID, reservations, service.nowFn())
			}
			if err := service.transitionTable(ctx, txStore, pending, table.ID, target); err != nil {
				return err
			}
			if maintenance {
				pending.cancelCleaning = append(pending.cancelCleaning, table.ID)
			}
			updated, err = txStore.GetTable(ctx, table.ID)
			if err != nil {
				return err
			}
			return service.invalidateToday(pending, restaurant)
		})
	}()
	service.logOperation(ctx, OperationLog{Operation: operationFloorPlan, RestaurantID: updated.RestaurantID, TableIDs: []TableID{tableID}, Error: operationError})
	if operationError != nil {
		return Table{}, operationError
	}
	return updated, nil
}

func loadTableForUpdate(ctx context.Context, txStore Store, tableID TableID) (Table, Restaurant, error) {
	if tableID.IsZero() {
		return Table{}, Restaurant{}, validationError("table id is required")
	}
	table, err := txStore.GetTable(ctx, tableID)
	if err != nil {
		return Table{}, Restaurant{}, err
	}
	if err := txStore.LockRestaurant(ctx, table.RestaurantID); err != nil {
		return Table{}, Restaurant{}, err
	}
	restaurant, err := txStore.GetRestaurant(ctx, table.RestaurantID)
	if err != nil {
		return Table{}, Restaurant{}, err
	}
	table, err = txStore.GetTable(ctx, tableID)
	if err != nil {
		return Table{}, Restaurant{}, err
	}
	return table, restaurant, nil
}

func (service *Service) invalidateToday(pending *effects, restaurant Restaurant) error {
	serviceDate, err := restaurant.LocalDate(service.nowFn())
	if err != nil {
		return err
	}
	pending.invalidate(restaurant.ID, serviceDate)
	return nil
}

func farFuture(now time.Time) time.Time {
	return now.AddDate(1, 0, 0)
}
