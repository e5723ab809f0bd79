package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/commerce-core/stock-reservation-saga/internal/order/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/outbox"
)

const aggregateType = "order"

type Topics struct {
	ReservationRequest string
	ReservationConfirm string
	ReservationCancel  string
}

// Service is the order-side half of the reservation saga: it opens the saga
// on order creation and reacts to reservation and payment outcomes.
type Service struct {
	log    *slog.Logger
	repo   Repository
	topics Topics
}

func NewService(log *slog.Logger, repo Repository, topics Topics) *Service {
	return &Service{log: log, repo: repo, topics: topics}
}

// CreateOrder persists the order as PENDING and queues one
// reservation-request per line item in the same transaction. Each item's
// reservation proceeds independently.
func (s *Service) CreateOrder(ctx context.Context, customer string, items []domain.Item, traceparent string) (domain.Order, error) {
	if len(items) == 0 {
		return domain.Order{}, &ValidationError{Msg: "order must have at least one item"}
	}
	for _, item := range items {
		if item.Quantity <= 0 {
			return domain.Order{}, &ValidationError{Msg: fmt.Sprintf("invalid quantity %d for product %s", item.Quantity, item.ProductID)}
		}
	}

	o := domain.NewOrder(customer, items)
	evts := make([]outbox.Event, 0, len(items))
	for _, item := range items {
		evts = append(evts, s.event(o.OrderNumber, "ReservationRequested", s.topics.ReservationRequest, o.OrderNumber, traceparent,
			domain.ReservationRequested{OrderID: o.OrderNumber, ProductID: item.ProductID, Quantity: item.Quantity}))
	}
	if err := s.repo.CreateWithOutbox(ctx, o, evts); err != nil {
		return domain.Order{}, err
	}
	s.log.Info("order created", "order_number", o.OrderNumber, "items", len(items))
	return o, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.repo.GetByID(ctx, id)
}

// OnReservationCreated records the hold so later payment outcomes can
// confirm or cancel it. The upsert makes redelivery harmless.
func (s *Service) OnReservationCreated(ctx context.Context, ev domain.ReservationCreated) error {
	if err := s.repo.AddReservation(ctx, ev.OrderID, ev.ReservationID, ev.ProductID); err != nil {
		return fmt.Errorf("%w: record reservation: %v", ErrRedeliver, err)
	}
	s.log.Info("reservation recorded", "order_number", ev.OrderID, "reservation_id", ev.ReservationID)
	return nil
}

// OnReservationFailed cancels the order. A missing or already-terminal order
// means the compensation is already done, so the message is acknowledged.
func (s *Service) OnReservationFailed(ctx context.Context, ev domain.ReservationFailed) error {
	return s.cancelOrder(ctx, ev.OrderID, "재고 예약 실패: "+ev.Reason, "ORDER_CANCELLED")
}

// OnPaymentCompleted confirms the order and asks the inventory domain to
// finalize every recorded hold. A missing order is redelivered: the row may
// simply not be visible yet.
func (s *Service) OnPaymentCompleted(ctx context.Context, ev domain.PaymentCompleted) error {
	o, err := s.repo.GetByNumber(ctx, ev.OrderID)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("%w: order %s not visible yet", ErrRedeliver, ev.OrderID)
		}
		return fmt.Errorf("%w: load order: %v", ErrRedeliver, err)
	}
	if o.Status == domain.StatusConfirmed {
		s.log.Info("order already confirmed", "order_number", o.OrderNumber)
		return nil
	}
	if err := o.Confirm(); err != nil {
		// Paid but no longer confirmable (e.g. cancelled meanwhile); the
		// refund flow lives in the payment domain.
		s.log.Warn("payment completed for unconfirmable order", "order_number", o.OrderNumber, "status", o.Status, "err", err)
		return nil
	}

	reservations, err := s.repo.Reservations(ctx, o.OrderNumber)
	if err != nil {
		return fmt.Errorf("%w: load reservations: %v", ErrRedeliver, err)
	}
	evts := make([]outbox.Event, 0, len(reservations))
	for _, r := range reservations {
		evts = append(evts, s.event(o.OrderNumber, "ReservationConfirmRequested", s.topics.ReservationConfirm, o.OrderNumber, "",
			domain.ReservationConfirmRequested{ReservationID: r.ReservationID}))
	}
	if err := s.repo.UpdateStatusWithOutbox(ctx, o, evts); err != nil {
		return fmt.Errorf("%w: confirm order: %v", ErrRedeliver, err)
	}
	s.log.Info("order confirmed", "order_number", o.OrderNumber, "reservations", len(reservations))
	return nil
}

// OnPaymentFailed cancels the order and releases its holds, with the same
// idempotent-acknowledge behavior as reservation failure.
func (s *Service) OnPaymentFailed(ctx context.Context, ev domain.PaymentFailed) error {
	return s.cancelOrder(ctx, ev.OrderID, "결제 실패: "+ev.Reason, "PAYMENT_FAILED")
}

func (s *Service) cancelOrder(ctx context.Context, orderNumber, orderReason, cancelReason string) error {
	o, err := s.repo.GetByNumber(ctx, orderNumber)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			s.log.Warn("cancel requested for unknown order", "order_number", orderNumber)
			return nil
		}
		return fmt.Errorf("%w: load order: %v", ErrRedeliver, err)
	}
	if err := o.Cancel(orderReason); err != nil {
		var transition *domain.TransitionError
		if errors.As(err, &transition) {
			s.log.Info("order already resolved, cancel skipped", "order_number", orderNumber, "status", o.Status)
			return nil
		}
		return err
	}

	reservations, err := s.repo.Reservations(ctx, o.OrderNumber)
	if err != nil {
		return fmt.Errorf("%w: load reservations: %v", ErrRedeliver, err)
	}
	evts := make([]outbox.Event, 0, len(reservations))
	for _, r := range reservations {
		evts = append(evts, s.event(o.OrderNumber, "ReservationCancelRequested", s.topics.ReservationCancel,
			strconv.FormatInt(r.ReservationID, 10), "",
			domain.ReservationCancelRequested{ReservationID: r.ReservationID, Reason: cancelReason}))
	}
	if err := s.repo.UpdateStatusWithOutbox(ctx, o, evts); err != nil {
		return fmt.Errorf("%w: cancel order: %v", ErrRedeliver, err)
	}
	s.log.Info("order cancelled", "order_number", o.OrderNumber, "reason", orderReason)
	return nil
}

func (s *Service) event(orderNumber, eventType, topic, key, traceparent string, payload any) outbox.Event {
	b, _ := json.Marshal(payload)
	return outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   orderNumber,
		Type:          eventType,
		Topic:         topic,
		Key:           key,
		Payload:       b,
		Headers:       map[string]string{"source": "order-service"},
		Traceparent:   traceparent,
	}
}
