package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rl1809/ticket-marketplace/internal/core/domain"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type TicketEvent struct {
	Type            domain.NotificationKind `json:"type"`
	TicketID        string                  `json:"ticketId"`
	EventID         string                  `json:"eventId"`
	BuyerID         string                  `json:"userId"`
	PaymentIntentID string                  `json:"paymentIntentId"`
	Amount          decimal.Decimal         `json:"amount"`
	Currency        string                  `json:"currency"`
	Tickets         []domain.LineItem       `json:"tickets"`
	OccurredAt      time.Time               `json:"occurredAt"`
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// Notify publishes keyed by ticket id so events for one ticket stay ordered.
func (p *KafkaPublisher) Notify(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(TicketEvent{
		Type:            n.Kind,
		TicketID:        n.Ticket.ID,
		EventID:         n.Ticket.EventID,
		BuyerID:         n.Ticket.BuyerID,
		PaymentIntentID: n.Ticket.PaymentIntentID,
		Amount:          n.Ticket.Amount,
		Currency:        n.Ticket.Currency,
		Tickets:         n.Ticket.LineItems,
		OccurredAt:      time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal ticket event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.Ticket.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
