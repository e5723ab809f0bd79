package kafka

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/segmentio/kafka-go"
)

type Writer struct {
	*kafka.Writer
}

func NewWriter(brokers []string) *Writer {
	return &Writer{
		Writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

func (w *Writer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return w.Writer.WriteMessages(ctx, msgs...)
}

// CancelProducer publishes reservation-cancel requests for the expiry
// scanner, keyed by reservation id.
type CancelProducer struct {
	writer *Writer
	topic  string
}

func NewCancelProducer(writer *Writer, topic string) *CancelProducer {
	return &CancelProducer{writer: writer, topic: topic}
}

func (p *CancelProducer) PublishCancel(ctx context.Context, reservationID int64, reason string) error {
	payload, err := json.Marshal(struct {
		ReservationID int64  `json:"reservationId"`
		Reason        string `json:"reason"`
	}{ReservationID: reservationID, Reason: reason})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(reservationID, 10)),
		Value: payload,
	})
}
