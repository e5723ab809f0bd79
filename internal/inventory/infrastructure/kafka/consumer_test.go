package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/commerce-core/stock-reservation-saga/internal/inventory/application"
	"github.com/commerce-core/stock-reservation-saga/internal/inventory/domain"
)

var errDrained = errors.New("no more messages")

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		return kafka.Message{}, errDrained
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type fakeDedup struct {
	marked map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{marked: map[string]bool{}}
}

func (d *fakeDedup) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (d *fakeDedup) Seen(_ context.Context, key string) (bool, error) {
	return d.marked[key], nil
}

func (d *fakeDedup) Mark(_ context.Context, key string) error {
	d.marked[key] = true
	return nil
}

type fakeManager struct {
	createCalls int
	failures    int
	createErr   error
	confirmed   []int64
}

func (m *fakeManager) CreateReservation(_ context.Context, orderID, productID string, qty int, _ string) (domain.Reservation, error) {
	m.createCalls++
	if m.createErr != nil {
		return domain.Reservation{}, m.createErr
	}
	if m.createCalls <= m.failures {
		return domain.Reservation{}, fmt.Errorf("%w: store unavailable", application.ErrRetryable)
	}
	return domain.Reservation{ID: 1, OrderID: orderID, ProductID: productID, Quantity: qty}, nil
}

func (m *fakeManager) ConfirmReservation(_ context.Context, reservationID int64, _ string) error {
	m.confirmed = append(m.confirmed, reservationID)
	return nil
}

func (m *fakeManager) CancelReservation(context.Context, int64, string, string) error {
	return nil
}

func testConsumer(reader *fakeReader, svc reservationService, idem dedup) *Consumer {
	return &Consumer{
		log:     slog.New(slog.DiscardHandler),
		reader:  reader,
		topics:  Topics{ReservationRequest: "reservation-request", ReservationConfirm: "reservation-confirm", ReservationCancel: "reservation-cancel"},
		svc:     svc,
		idem:    idem,
		tracer:  otel.Tracer("test"),
		backoff: time.Millisecond,
		maxWait: 4 * time.Millisecond,
	}
}

func TestTransientFailureRetriesInPlaceBeforeAdvancing(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reservation-request", Partition: 0, Offset: 9, Value: []byte(`{"orderId":"ORD-1","productId":"P1","quantity":2}`)},
		{Topic: "reservation-confirm", Partition: 0, Offset: 10, Value: []byte(`{"reservationId":7}`)},
	}}
	mgr := &fakeManager{failures: 2}
	c := testConsumer(reader, mgr, newFakeDedup())

	require.ErrorIs(t, c.Run(context.Background()), errDrained)

	// The request at offset 9 is handled to completion before offset 10 is
	// touched; committing 10 first would acknowledge 9 via the cumulative
	// group offset.
	assert.Equal(t, 3, mgr.createCalls)
	assert.Equal(t, []int64{9, 10}, reader.committed)
	assert.Equal(t, []int64{7}, mgr.confirmed)
}

func TestDomainRejectionIsAcknowledged(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reservation-request", Partition: 0, Offset: 9, Value: []byte(`{"orderId":"ORD-1","productId":"P1","quantity":200}`)},
	}}
	mgr := &fakeManager{createErr: &domain.InsufficientStockError{InventoryID: 1, Available: 10, Requested: 200}}
	idem := newFakeDedup()
	c := testConsumer(reader, mgr, idem)

	require.ErrorIs(t, c.Run(context.Background()), errDrained)

	// A business rejection already produced its reservation-failed event;
	// redelivering it would be pointless.
	assert.Equal(t, 1, mgr.createCalls)
	assert.Equal(t, []int64{9}, reader.committed)
	assert.True(t, idem.marked[idem.Key("reservation-request", 0, 9)])
}

func TestTransientFailureBlocksUntilContextEnds(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reservation-request", Partition: 0, Offset: 9, Value: []byte(`{"orderId":"ORD-1","productId":"P1","quantity":2}`)},
	}}
	mgr := &fakeManager{failures: 1 << 30}
	c := testConsumer(reader, mgr, newFakeDedup())

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)

	assert.Empty(t, reader.committed, "an unresolved message must never be acknowledged")
}

func TestMalformedPayloadIsAcknowledged(t *testing.T) {
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: "reservation-request", Partition: 0, Offset: 9, Value: []byte(`{not json`)},
	}}
	mgr := &fakeManager{}
	c := testConsumer(reader, mgr, newFakeDedup())

	require.ErrorIs(t, c.Run(context.Background()), errDrained)

	assert.Zero(t, mgr.createCalls)
	assert.Equal(t, []int64{9}, reader.committed, "a poison message must not block the partition")
}
