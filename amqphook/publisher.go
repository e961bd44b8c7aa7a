package amqphook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher delivers an encoded event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
	Close() error
}

var _ Publisher = (*AMQPPublisher)(nil)

// dialTimeout bounds the initial broker connection.
const dialTimeout = 10 * time.Second

// AMQPPublisher publishes onto a durable topic exchange.
type AMQPPublisher struct {
	exchange string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// Dial connects to the broker at amqpURL and declares exchange as a
// durable topic exchange.
func Dial(amqpURL, exchange string) (*AMQPPublisher, error) {
	u, err := url.Parse(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("amqphook: parse url: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return nil, errors.New("amqphook: url scheme must be amqp or amqps")
	}
	if exchange == "" {
		return nil, errors.New("amqphook: exchange is required")
	}

	conn, err := amqp091.DialConfig(amqpURL, amqp091.Config{Dial: amqp091.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("amqphook: dial: %w", err)
	}

	p := &AMQPPublisher{exchange: exchange, conn: conn}
	if err := p.reopen(); err != nil {
		_ = conn.Close() //nolint:errcheck // best-effort
		return nil, err
	}
	return p, nil
}

// reopen replaces the channel and redeclares the exchange. Callers hold mu
// or own p exclusively.
func (p *AMQPPublisher) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqphook: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		p.exchange, // name
		"topic",    // type
		true,       // durable
		false,      // autoDelete
		false,      // internal
		false,      // noWait
		nil,        // args
	); err != nil {
		_ = ch.Close() //nolint:errcheck // best-effort
		return fmt.Errorf("amqphook: declare exchange %s: %w", p.exchange, err)
	}
	if p.channel != nil {
		_ = p.channel.Close() //nolint:errcheck // best-effort
	}
	p.channel = ch
	return nil
}

// Publish implements Publisher. A failed publish reopens the channel and
// retries once.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	if reErr := p.reopen(); reErr != nil {
		return errors.Join(err, reErr)
	}
	if err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg); err != nil {
		return fmt.Errorf("amqphook: publish %s: %w", routingKey, err)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
