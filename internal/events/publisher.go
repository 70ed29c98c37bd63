package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
)

// RoutingKey maps an event type such as APPOINTMENT_BOOKED to
// "appointment.booked".
func RoutingKey(eventType string) string {
	head, tail, ok := strings.Cut(strings.ToLower(eventType), "_")
	if !ok {
		return head
	}
	return head + "." + tail
}

// Publisher sends audit events to a topic exchange. It satisfies
// audit.Recorder.
type Publisher struct {
	exchange string

	mu      sync.Mutex
	channel *amqp.Channel
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Publisher{exchange: exchange, channel: ch}, nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

func (p *Publisher) Record(ctx context.Context, ev audit.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.CreatedAt,
		Type:         ev.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.channel.Close()
}
