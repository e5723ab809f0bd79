package domain

import "time"

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a time-bounded hold on inventory for one order line.
// At most one reservation exists per (OrderID, InventoryID) pair.
type Reservation struct {
	ID          int64
	InventoryID int64
	OrderID     string
	ProductID   string
	Quantity    int
	Status      ReservationStatus
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

func NewReservation(inventoryID int64, orderID, productID string, qty int, ttl time.Duration, now time.Time) Reservation {
	return Reservation{
		InventoryID: inventoryID,
		OrderID:     orderID,
		ProductID:   productID,
		Quantity:    qty,
		Status:      ReservationActive,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
	}
}

// IsExpired reports whether the hold's deadline has passed, independent of status.
func (r *Reservation) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r *Reservation) IsActive(now time.Time) bool {
	return r.Status == ReservationActive && !r.IsExpired(now)
}

// MarkCompleted finalizes the hold. Legal only while ACTIVE and unexpired.
func (r *Reservation) MarkCompleted(now time.Time) error {
	switch r.Status {
	case ReservationCompleted:
		return &StateTransitionError{ReservationID: r.ID, Status: r.Status, Reason: "already completed"}
	case ReservationCancelled:
		return &StateTransitionError{ReservationID: r.ID, Status: r.Status, Reason: "already cancelled"}
	}
	if r.IsExpired(now) {
		return &StateTransitionError{ReservationID: r.ID, Status: r.Status, Reason: "reservation expired"}
	}
	r.Status = ReservationCompleted
	return nil
}

// MarkCancelled releases the hold. Expiry does not block cancellation; it is
// the normal path by which expired holds are resolved.
func (r *Reservation) MarkCancelled() error {
	switch r.Status {
	case ReservationCompleted:
		return &StateTransitionError{ReservationID: r.ID, Status: r.Status, Reason: "already completed"}
	case ReservationCancelled:
		return &StateTransitionError{ReservationID: r.ID, Status: r.Status, Reason: "already cancelled"}
	}
	r.Status = ReservationCancelled
	return nil
}
