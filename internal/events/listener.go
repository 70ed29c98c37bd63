package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jreinaldodasilva/topsmile-sub003/internal/audit"
)

// Invalidator drops cached availability for a provider.
type Invalidator interface {
	InvalidateProvider(providerID uuid.UUID)
}

// Listener consumes appointment events from every instance and invalidates
// the local slot cache for the affected provider.
type Listener struct {
	channel     *amqp.Channel
	exchange    string
	invalidator Invalidator
	logger      zerolog.Logger
}

func NewListener(conn *amqp.Connection, exchange string, inv Invalidator, logger zerolog.Logger) (*Listener, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = ch.Close()
		return nil, err
	}

	return &Listener{
		channel:     ch,
		exchange:    exchange,
		invalidator: inv,
		logger:      logger.With().Str("component", "events.listener").Logger(),
	}, nil
}

// Start binds a private queue to appointment.* and consumes it until ctx
// is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	queue, err := l.channel.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := l.channel.QueueBind(queue.Name, "appointment.*", l.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	msgs, err := l.channel.Consume(
		queue.Name,
		"",    // consumer
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	l.logger.Info().Str("queue", queue.Name).Msg("listening for appointment events")

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					l.logger.Warn().Msg("event delivery channel closed")
					return
				}
				l.handle(msg.Body)
			}
		}
	}()

	return nil
}

func (l *Listener) handle(body []byte) {
	var ev audit.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		l.logger.Warn().Err(err).Msg("discarding malformed event")
		return
	}
	if ev.ProviderID == nil {
		return
	}
	l.invalidator.InvalidateProvider(*ev.ProviderID)
	l.logger.Debug().
		Str("event_type", ev.Type).
		Str("provider_id", ev.ProviderID.String()).
		Msg("slot cache invalidated")
}

func (l *Listener) Stop() error {
	if l == nil || l.channel == nil {
		return nil
	}
	return l.channel.Close()
}
