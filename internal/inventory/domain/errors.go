package domain

import "fmt"

// NotFoundError is returned when an inventory or reservation cannot be
// resolved by id or business key.
type NotFoundError struct {
	Entity string
	Ref    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Ref)
}

type InvalidQuantityError struct {
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be positive, got %d", e.Quantity)
}

type InsufficientStockError struct {
	InventoryID int64
	Available   int
	Requested   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock on inventory %d: available %d, requested %d", e.InventoryID, e.Available, e.Requested)
}

type InsufficientReservedStockError struct {
	InventoryID int64
	Reserved    int
	Requested   int
}

func (e *InsufficientReservedStockError) Error() string {
	return fmt.Sprintf("insufficient reserved stock on inventory %d: reserved %d, requested %d", e.InventoryID, e.Reserved, e.Requested)
}

// StateTransitionError covers every illegal reservation transition:
// already completed, already cancelled, expired, wrong expected status.
type StateTransitionError struct {
	ReservationID int64
	Status        ReservationStatus
	Reason        string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("reservation %d in status %s: %s", e.ReservationID, e.Status, e.Reason)
}
