package application

import (
	"context"
	"errors"

	"github.com/commerce-core/stock-reservation-saga/internal/order/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

// ErrRedeliver tells the consumer to leave the message uncommitted: the
// update would otherwise be lost, so duplicate processing is the better
// trade.
var ErrRedeliver = errors.New("leave message for redelivery")

// ValidationError rejects a malformed order request at the service boundary.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// OrderReservation links an order to a hold the inventory domain granted it.
type OrderReservation struct {
	ReservationID int64
	ProductID     string
}

type Repository interface {
	// CreateWithOutbox persists the order, its items and the outbox events in
	// one transaction.
	CreateWithOutbox(ctx context.Context, o domain.Order, evts []outbox.Event) error
	GetByID(ctx context.Context, id string) (domain.Order, error)
	GetByNumber(ctx context.Context, number string) (domain.Order, error)
	// UpdateStatusWithOutbox persists the order's status and the outbox events
	// in one transaction.
	UpdateStatusWithOutbox(ctx context.Context, o domain.Order, evts []outbox.Event) error
	AddReservation(ctx context.Context, orderNumber string, reservationID int64, productID string) error
	Reservations(ctx context.Context, orderNumber string) ([]OrderReservation, error)
}
