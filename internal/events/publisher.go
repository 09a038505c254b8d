package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"retail-order-service/internal/entity"
)

const (
	OrderCreated   = "created"
	OrderApproved  = "approved"
	OrderRejected  = "rejected"
	OrderPaid      = "payment-added"
	OrderCancelled = "cancelled"
)

// OrderEvent is the message body published for every committed lifecycle change.
type OrderEvent struct {
	Event      string        `json:"event"`
	OccurredAt time.Time     `json:"occurred_at"`
	Order      *entity.Order `json:"order"`
}

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event string, order *entity.Order) error {
	msg, err := NewMessage(event, order, time.Now().UTC())
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// NewMessage keys by order id so every event of one order lands on one partition, in order.
func NewMessage(event string, order *entity.Order, at time.Time) (kafka.Message, error) {
	orderJSON, err := json.Marshal(OrderEvent{Event: event, OccurredAt: at, Order: order})
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:     []byte(fmt.Sprintf("order-%s", order.ID)),
		Value:   orderJSON,
		Headers: []kafka.Header{{Key: "event", Value: []byte(event)}},
	}, nil
}

// NopPublisher drops events; used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, *entity.Order) error { return nil }
