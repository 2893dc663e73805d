// Package fanout republishes console alerts on a RabbitMQ topic exchange for
// downstream consumers (mobile push, paging).
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
)

const (
	AlertRoutingKey = "console.alert.v1"
	producer        = "chatra-operator-console"
)

// Meta mirrors the envelope metadata used across the event bus.
type Meta struct {
	ID       string    `json:"id"`
	Producer string    `json:"producer"`
	Time     time.Time `json:"time"`
	Type     string    `json:"type"`
}

type Envelope struct {
	Meta Meta         `json:"meta"`
	Data notify.Alert `json:"data"`
}

// channel is the subset of *amqp091.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp091.Connection
	open     func() (channel, error)
	exchange string
	log      *slog.Logger
}

func New(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &Publisher{
		conn:     conn,
		open:     func() (channel, error) { return conn.Channel() },
		exchange: exchange,
		log:      logger.With("component", "fanout"),
	}, nil
}

// Alert implements notify.Sink.
func (p *Publisher) Alert(ctx context.Context, a notify.Alert) error {
	body, err := json.Marshal(Envelope{
		Meta: Meta{ID: a.ID, Producer: producer, Time: a.At, Type: AlertRoutingKey},
		Data: a,
	})
	if err != nil {
		return err
	}

	ch, err := p.open()
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx, p.exchange, AlertRoutingKey, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     a.ID,
		CorrelationId: a.SessionID,
		Timestamp:     a.At,
		Body:          body,
	})
	if err == nil {
		p.log.Debug("published", slog.String("key", AlertRoutingKey), slog.String("exchange", p.exchange))
	}
	return err
}

func (p *Publisher) Close() error {
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
