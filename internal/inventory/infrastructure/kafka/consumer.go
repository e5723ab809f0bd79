package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/commerce-core/stock-reservation-saga/internal/inventory/application"
	"github.com/commerce-core/stock-reservation-saga/internal/inventory/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/idempotency"
	"github.com/commerce-core/stock-reservation-saga/pkg/tracing"
)

type Topics struct {
	ReservationRequest string
	ReservationConfirm string
	ReservationCancel  string
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dedup interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type reservationService interface {
	CreateReservation(ctx context.Context, orderID, productID string, qty int, traceparent string) (domain.Reservation, error)
	ConfirmReservation(ctx context.Context, reservationID int64, traceparent string) error
	CancelReservation(ctx context.Context, reservationID int64, reason, traceparent string) error
}

// Consumer drives the reservation manager from the three inbound topics.
// Group offset commits are cumulative per partition, so fetching past a
// failed message would acknowledge it as soon as a later offset commits.
// A transient failure therefore blocks the partition and retries the same
// message in place; only business-rule rejections are acknowledged.
type Consumer struct {
	log     *slog.Logger
	reader  messageReader
	topics  Topics
	svc     reservationService
	idem    dedup
	tracer  trace.Tracer
	backoff time.Duration
	maxWait time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, group string, topics Topics, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: group,
		GroupTopics: []string{
			topics.ReservationRequest,
			topics.ReservationConfirm,
			topics.ReservationCancel,
		},
	})
	return &Consumer{
		log:     log,
		reader:  r,
		topics:  topics,
		svc:     svc,
		idem:    idem,
		tracer:  otel.Tracer("inventory-consumer"),
		backoff: time.Second,
		maxWait: 30 * time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			return err
		}
	}
}

// process resolves one message to a committed offset. It returns only when
// the message has been handled (or rejected by a domain rule, or seen
// before) and committed, or when the context is cancelled mid-retry.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	wait := c.backoff

	for {
		seen, err := c.idem.Seen(ctx, key)
		switch {
		case err != nil:
			c.log.Error("idempotency check failed", "err", err)

		case seen:
			c.log.Info("duplicate message skipped", "key", key)
			return c.commit(ctx, msg)

		default:
			msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
			msgCtx, span := c.tracer.Start(msgCtx, "Consume "+msg.Topic)
			handleErr := c.handle(msgCtx, msg)
			span.End()

			if handleErr == nil || application.IsDomainError(handleErr) {
				if handleErr != nil {
					c.log.Warn("message rejected by domain rule", "topic", msg.Topic, "err", handleErr)
				}
				if err := c.idem.Mark(ctx, key); err != nil {
					c.log.Error("idempotency mark failed", "err", err)
				}
				return c.commit(ctx, msg)
			}
			c.log.Error("handler failed, retrying in place", "topic", msg.Topic, "err", handleErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if wait < c.maxWait {
			wait *= 2
		}
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) error {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		// The offset is redelivered after a restart; the dedup mark absorbs it.
		c.log.Error("offset commit failed", "topic", msg.Topic, "offset", msg.Offset, "err", err)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	traceparent := tracing.HeaderValue(msg.Headers, tracing.TraceparentHeader)

	switch msg.Topic {
	case c.topics.ReservationRequest:
		var ev struct {
			OrderID   string `json:"orderId"`
			ProductID string `json:"productId"`
			Quantity  int    `json:"quantity"`
		}
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal reservation-request failed", "err", err)
			return nil
		}
		_, err := c.svc.CreateReservation(ctx, ev.OrderID, ev.ProductID, ev.Quantity, traceparent)
		return err

	case c.topics.ReservationConfirm:
		var ev struct {
			ReservationID int64 `json:"reservationId"`
		}
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal reservation-confirm failed", "err", err)
			return nil
		}
		return c.svc.ConfirmReservation(ctx, ev.ReservationID, traceparent)

	case c.topics.ReservationCancel:
		var ev struct {
			ReservationID int64  `json:"reservationId"`
			Reason        string `json:"reason"`
		}
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal reservation-cancel failed", "err", err)
			return nil
		}
		return c.svc.CancelReservation(ctx, ev.ReservationID, ev.Reason, traceparent)
	}

	c.log.Warn("message on unexpected topic", "topic", msg.Topic)
	return nil
}
