package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/commerce-core/stock-reservation-saga/internal/order/application"
	"github.com/commerce-core/stock-reservation-saga/internal/order/domain"
	"github.com/commerce-core/stock-reservation-saga/pkg/idempotency"
	"github.com/commerce-core/stock-reservation-saga/pkg/tracing"
)

type Topics struct {
	ReservationCreated string
	ReservationFailed  string
	PaymentCompleted   string
	PaymentFailed      string
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

type sagaService interface {
	OnReservationCreated(ctx context.Context, ev domain.ReservationCreated) error
	OnReservationFailed(ctx context.Context, ev domain.ReservationFailed) error
	OnPaymentCompleted(ctx context.Context, ev domain.PaymentCompleted) error
	OnPaymentFailed(ctx context.Context, ev domain.PaymentFailed) error
}

// Consumer feeds reservation and payment outcomes into the saga service.
// Group offset commits are cumulative per partition, so fetching past a
// failed message would acknowledge it as soon as a later offset commits.
// A redeliverable failure therefore blocks the partition and retries the
// same message in place until it succeeds or the context ends.
type Consumer struct {
	log     *slog.Logger
	reader  messageReader
	topics  Topics
	svc     sagaService
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
			topics.ReservationCreated,
			topics.ReservationFailed,
			topics.PaymentCompleted,
			topics.PaymentFailed,
		},
	})
	return &Consumer{
		log:     log,
		reader:  r,
		topics:  topics,
		svc:     svc,
		idem:    idem,
		tracer:  otel.Tracer("order-consumer"),
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
// the message has been handled (or rejected as a duplicate) and committed,
// or when the context is cancelled mid-retry.
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

			if handleErr == nil || !errors.Is(handleErr, application.ErrRedeliver) {
				if handleErr != nil {
					c.log.Error("handler failed", "topic", msg.Topic, "err", handleErr)
				}
				if err := c.idem.Mark(ctx, key); err != nil {
					c.log.Error("idempotency mark failed", "err", err)
				}
				return c.commit(ctx, msg)
			}
			c.log.Warn("handler asked for redelivery, retrying in place", "topic", msg.Topic, "err", handleErr)
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
	switch msg.Topic {
	case c.topics.ReservationCreated:
		var ev domain.ReservationCreated
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal reservation-created failed", "err", err)
			return nil
		}
		return c.svc.OnReservationCreated(ctx, ev)

	case c.topics.ReservationFailed:
		var ev domain.ReservationFailed
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal reservation-failed failed", "err", err)
			return nil
		}
		return c.svc.OnReservationFailed(ctx, ev)

	case c.topics.PaymentCompleted:
		var ev domain.PaymentCompleted
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal payment-completed failed", "err", err)
			return nil
		}
		return c.svc.OnPaymentCompleted(ctx, ev)

	case c.topics.PaymentFailed:
		var ev domain.PaymentFailed
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal payment-failed failed", "err", err)
			return nil
		}
		return c.svc.OnPaymentFailed(ctx, ev)
	}

	c.log.Warn("message on unexpected topic", "topic", msg.Topic)
	return nil
}
