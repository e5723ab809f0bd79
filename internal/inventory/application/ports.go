package application

import (
	"context"
	"errors"
	"time"

	"github.com/commerce-core/stock-reservation-saga/internal/inventory/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

// ErrVersionConflict is reported by the store when an optimistic write loses
// the race on the inventory version counter.
var ErrVersionConflict = errors.New("inventory version conflict")

// ErrRetryable marks failures the caller should resolve through message
// redelivery rather than acknowledging.
var ErrRetryable = errors.New("retryable failure")

type Store interface {
	GetInventory(ctx context.Context, id int64) (domain.Inventory, error)
	GetInventoryByProduct(ctx context.Context, productID string) (domain.Inventory, error)
	GetReservation(ctx context.Context, id int64) (domain.Reservation, error)
	// FindReservation returns nil when no reservation exists for the pair.
	FindReservation(ctx context.Context, orderID string, inventoryID int64) (*domain.Reservation, error)
	NextReservationID(ctx context.Context) (int64, error)

	// CreateReservationTx commits the version-checked inventory update, the new
	// reservation, its history row and the outbox event in one transaction.
	CreateReservationTx(ctx context.Context, inv domain.Inventory, res domain.Reservation, hist domain.History, evt outbox.Event) error
	// FinalizeReservationTx commits the inventory update, the reservation's
	// terminal status, the history row and the outbox event in one transaction.
	FinalizeReservationTx(ctx context.Context, inv domain.Inventory, res domain.Reservation, hist domain.History, evt outbox.Event) error
	AdjustInventoryTx(ctx context.Context, inv domain.Inventory, hist domain.History) error
	EnqueueEvent(ctx context.Context, evt outbox.Event) error
}

// ExpiryIndex orders outstanding reservations by deadline. Members are
// reservation ids rendered as strings, scored by expiry epoch seconds.
type ExpiryIndex interface {
	Add(ctx context.Context, reservationID int64, expiresAt time.Time) error
	Remove(ctx context.Context, member string) error
	Due(ctx context.Context, now time.Time, limit int64) ([]string, error)
}

type CancelPublisher interface {
	PublishCancel(ctx context.Context, reservationID int64, reason string) error
}

type LeaderLock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// IsDomainError reports whether err is a business-rule failure. Domain
// failures are acknowledged by consumers; everything else is redelivered.
func IsDomainError(err error) bool {
	var (
		notFound     *domain.NotFoundError
		invalidQty   *domain.InvalidQuantityError
		insufficient *domain.InsufficientStockError
		reserved     *domain.InsufficientReservedStockError
		transition   *domain.StateTransitionError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &invalidQty) ||
		errors.As(err, &insufficient) ||
		errors.As(err, &reserved) ||
		errors.As(err, &transition)
}
