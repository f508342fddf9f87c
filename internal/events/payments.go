// Package events publishes integration messages to the payments worker over
// RabbitMQ. The checkout core only sees the PaymentDispatcher interface; the
// provider protocol itself lives on the consumer side of the queue.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

const PaymentIntentQueue = "payment.intent"

// PaymentIntent is the message contract consumed by the payments worker.
type PaymentIntent struct {
	EventType   string              `json:"event_type"`
	OrderID     string              `json:"order_id"`
	UserID      string              `json:"user_id"`
	Currency    string              `json:"currency"`
	AmountMinor int64               `json:"amount_minor"`
	Title       string              `json:"title"`
	PhotoURL    string              `json:"photo_url,omitempty"`
	Lines       []PaymentIntentLine `json:"lines"`
	Timestamp   time.Time           `json:"timestamp"`
}

type PaymentIntentLine struct {
	ListingID  string `json:"listing_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// Declare the queue so publish never fails on missing infra.
	if _, err := ch.QueueDeclare(PaymentIntentQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare %s: %w", PaymentIntentQueue, err)
	}

	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// CreateAndSendInvoice dispatches a payment intent for a pending order.
func (p *Publisher) CreateAndSendInvoice(ctx context.Context, order domain.Order, title, photoURL string) error {
	ev := PaymentIntent{
		EventType:   "PaymentIntent",
		OrderID:     order.ID,
		UserID:      order.UserID,
		Currency:    order.Currency,
		AmountMinor: order.AmountMinor,
		Title:       title,
		PhotoURL:    photoURL,
		Timestamp:   time.Now().UTC(),
	}
	for _, l := range order.Lines {
		ev.Lines = append(ev.Lines, PaymentIntentLine{
			ListingID:  l.ListingID,
			VariantID:  l.VariantID,
			Qty:        l.Qty,
			PriceMinor: l.PriceMinor,
		})
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal PaymentIntent: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return p.ch.PublishWithContext(
		pubCtx,
		"",
		PaymentIntentQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}
