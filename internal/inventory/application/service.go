package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/commerce-core/stock-reservation-saga/internal/inventory/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

const aggregateType = "inventory"

type Topics struct {
	ReservationCreated   string
	ReservationFailed    string
	ReservationConfirmed string
	ReservationCancelled string
}

type Config struct {
	ReservationTTL time.Duration
	MaxRetries     int
	Topics         Topics
}

// Service is the reservation manager: it owns every mutation of the
// inventory and reservation aggregates and emits the saga events through
// the outbox.
type Service struct {
	log   *slog.Logger
	store Store
	index ExpiryIndex
	cfg   Config
	now   func() time.Time
}

func NewService(log *slog.Logger, store Store, index ExpiryIndex, cfg Config) *Service {
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = 15 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &Service{
		log:   log,
		store: store,
		index: index,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateReservation places a hold on stock for one order line. A redelivered
// request for an existing (order, inventory) pair returns the stored
// reservation without touching stock or emitting anything.
func (s *Service) CreateReservation(ctx context.Context, orderID, productID string, qty int, traceparent string) (domain.Reservation, error) {
	inv, err := s.store.GetInventoryByProduct(ctx, productID)
	if err != nil {
		return domain.Reservation{}, s.failCreate(ctx, orderID, productID, traceparent, err)
	}

	existing, err := s.store.FindReservation(ctx, orderID, inv.ID)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("%w: find reservation: %v", ErrRetryable, err)
	}
	if existing != nil {
		// Re-register the expiry entry: the previous delivery may have
		// committed the reservation and then crashed before indexing it.
		if existing.Status == domain.ReservationActive {
			if err := s.index.Add(ctx, existing.ID, existing.ExpiresAt); err != nil {
				return domain.Reservation{}, fmt.Errorf("%w: expiry index add: %v", ErrRetryable, err)
			}
		}
		s.log.Info("duplicate reservation request", "order_id", orderID, "reservation_id", existing.ID)
		return *existing, nil
	}

	var res domain.Reservation
	err = s.withRetry(ctx, func(ctx context.Context) error {
		inv, err := s.store.GetInventoryByProduct(ctx, productID)
		if err != nil {
			return err
		}
		// A concurrent delivery of the same request may have inserted the
		// reservation since the check above; a lost version race is the
		// signal to look again rather than insert a second row.
		dup, err := s.store.FindReservation(ctx, orderID, inv.ID)
		if err != nil {
			return err
		}
		if dup != nil {
			res = *dup
			return nil
		}
		before := inv.AvailableQuantity
		if err := inv.ReserveStock(qty); err != nil {
			return err
		}

		id, err := s.store.NextReservationID(ctx)
		if err != nil {
			return err
		}
		res = domain.NewReservation(inv.ID, orderID, productID, qty, s.cfg.ReservationTTL, s.now())
		res.ID = id

		hist := domain.NewHistory(inv.ID, domain.ChangeReserve, qty, before, inv.AvailableQuantity,
			"stock reserved", strconv.FormatInt(id, 10))
		evt := s.event(orderID, "ReservationCreated", s.cfg.Topics.ReservationCreated, orderID, traceparent,
			domain.ReservationCreated{
				ReservationID: res.ID,
				OrderID:       orderID,
				ProductID:     productID,
				Quantity:      qty,
				ExpiresAt:     res.ExpiresAt,
			})
		return s.store.CreateReservationTx(ctx, inv, res, hist, evt)
	})
	if err != nil {
		return domain.Reservation{}, s.failCreate(ctx, orderID, productID, traceparent, err)
	}

	if res.Status == domain.ReservationActive {
		if err := s.index.Add(ctx, res.ID, res.ExpiresAt); err != nil {
			// Without the entry the scanner never resolves a hold whose
			// order goes silent. Redelivery re-runs only this Add: the
			// duplicate check above short-circuits past the committed
			// reservation.
			s.log.Error("expiry index add failed", "reservation_id", res.ID, "err", err)
			return domain.Reservation{}, fmt.Errorf("%w: expiry index add: %v", ErrRetryable, err)
		}
	}
	s.log.Info("reservation created", "reservation_id", res.ID, "order_id", orderID, "product_id", productID, "quantity", qty)
	return res, nil
}

// failCreate turns a business failure into a reservation-failed event so the
// order saga can compensate. Transient failures pass through untouched and
// stay eligible for redelivery.
func (s *Service) failCreate(ctx context.Context, orderID, productID, traceparent string, cause error) error {
	if !IsDomainError(cause) {
		if errors.Is(cause, ErrRetryable) {
			return cause
		}
		return fmt.Errorf("%w: %v", ErrRetryable, cause)
	}
	evt := s.event(orderID, "ReservationFailed", s.cfg.Topics.ReservationFailed, orderID, traceparent,
		domain.ReservationFailed{OrderID: orderID, ProductID: productID, Reason: cause.Error()})
	if err := s.store.EnqueueEvent(ctx, evt); err != nil {
		return fmt.Errorf("%w: enqueue reservation-failed: %v", ErrRetryable, err)
	}
	s.log.Warn("reservation failed", "order_id", orderID, "product_id", productID, "reason", cause.Error())
	return cause
}

// ConfirmReservation converts an active hold into a permanent deduction.
// Retrying a completed reservation is a no-op; confirming a cancelled one is
// an error.
func (s *Service) ConfirmReservation(ctx context.Context, reservationID int64, traceparent string) error {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	switch res.Status {
	case domain.ReservationCompleted:
		s.log.Info("reservation already completed", "reservation_id", reservationID)
		return nil
	case domain.ReservationCancelled:
		return &domain.StateTransitionError{ReservationID: reservationID, Status: res.Status, Reason: "cannot complete a cancelled reservation"}
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		r, err := s.store.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		inv, err := s.store.GetInventory(ctx, r.InventoryID)
		if err != nil {
			return err
		}
		before := inv.AvailableQuantity
		if err := inv.ConfirmReservedStock(r.Quantity); err != nil {
			return err
		}
		if err := r.MarkCompleted(s.now()); err != nil {
			return err
		}
		hist := domain.NewHistory(inv.ID, domain.ChangeDecrease, r.Quantity, before, inv.AvailableQuantity,
			"reservation confirmed", strconv.FormatInt(r.ID, 10))
		evt := s.event(r.OrderID, "ReservationConfirmed", s.cfg.Topics.ReservationConfirmed, r.OrderID, traceparent,
			domain.ReservationConfirmed{ReservationID: r.ID, OrderID: r.OrderID})
		return s.store.FinalizeReservationTx(ctx, inv, r, hist, evt)
	})
	if err != nil {
		return s.classify(err)
	}

	s.removeFromIndex(ctx, reservationID)
	s.log.Info("reservation confirmed", "reservation_id", reservationID)
	return nil
}

// CancelReservation releases an active hold back to available stock. Expired
// holds cancel normally; a completed reservation cannot be cancelled.
func (s *Service) CancelReservation(ctx context.Context, reservationID int64, reason, traceparent string) error {
	res, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	switch res.Status {
	case domain.ReservationCancelled:
		s.log.Info("reservation already cancelled", "reservation_id", reservationID)
		return nil
	case domain.ReservationCompleted:
		return &domain.StateTransitionError{ReservationID: reservationID, Status: res.Status, Reason: "cannot cancel a completed reservation"}
	}

	err = s.withRetry(ctx, func(ctx context.Context) error {
		r, err := s.store.GetReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		inv, err := s.store.GetInventory(ctx, r.InventoryID)
		if err != nil {
			return err
		}
		before := inv.AvailableQuantity
		if err := inv.ReleaseReservedStock(r.Quantity); err != nil {
			return err
		}
		if err := r.MarkCancelled(); err != nil {
			return err
		}
		hist := domain.NewHistory(inv.ID, domain.ChangeRelease, r.Quantity, before, inv.AvailableQuantity,
			"reservation cancelled: "+reason, strconv.FormatInt(r.ID, 10))
		evt := s.event(r.OrderID, "ReservationCancelled", s.cfg.Topics.ReservationCancelled, r.OrderID, traceparent,
			domain.ReservationCancelledEvent{ReservationID: r.ID, OrderID: r.OrderID, Reason: reason})
		return s.store.FinalizeReservationTx(ctx, inv, r, hist, evt)
	})
	if err != nil {
		return s.classify(err)
	}

	s.removeFromIndex(ctx, reservationID)
	s.log.Info("reservation cancelled", "reservation_id", reservationID, "reason", reason)
	return nil
}

// IncreaseStock handles restocks outside the saga flow.
func (s *Service) IncreaseStock(ctx context.Context, productID string, qty int, reason, referenceID string) error {
	return s.adjust(ctx, productID, qty, domain.ChangeIncrease, reason, referenceID)
}

// DecreaseStock handles manual write-offs outside the saga flow.
func (s *Service) DecreaseStock(ctx context.Context, productID string, qty int, reason, referenceID string) error {
	return s.adjust(ctx, productID, qty, domain.ChangeDecrease, reason, referenceID)
}

func (s *Service) adjust(ctx context.Context, productID string, qty int, change domain.ChangeType, reason, referenceID string) error {
	err := s.withRetry(ctx, func(ctx context.Context) error {
		inv, err := s.store.GetInventoryByProduct(ctx, productID)
		if err != nil {
			return err
		}
		before := inv.AvailableQuantity
		var mutate func(int) error
		if change == domain.ChangeIncrease {
			mutate = inv.IncreaseStock
		} else {
			mutate = inv.DecreaseStock
		}
		if err := mutate(qty); err != nil {
			return err
		}
		hist := domain.NewHistory(inv.ID, change, qty, before, inv.AvailableQuantity, reason, referenceID)
		return s.store.AdjustInventoryTx(ctx, inv, hist)
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

// withRetry reruns op while the store reports an optimistic-lock conflict,
// up to the configured bound. Every other error aborts immediately.
func (s *Service) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		err = op(ctx)
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
		s.log.Warn("optimistic lock conflict", "attempt", attempt)
	}
	return fmt.Errorf("%w: retries exhausted: %v", ErrRetryable, err)
}

func (s *Service) classify(err error) error {
	if IsDomainError(err) || errors.Is(err, ErrRetryable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRetryable, err)
}

func (s *Service) removeFromIndex(ctx context.Context, reservationID int64) {
	if err := s.index.Remove(ctx, strconv.FormatInt(reservationID, 10)); err != nil {
		s.log.Error("expiry index remove failed", "reservation_id", reservationID, "err", err)
	}
}

func (s *Service) event(aggregateID, eventType, topic, key, traceparent string, payload any) outbox.Event {
	b, _ := json.Marshal(payload)
	return outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Topic:         topic,
		Key:           key,
		Payload:       b,
		Headers:       map[string]string{"source": "inventory-service"},
		Traceparent:   traceparent,
	}
}
