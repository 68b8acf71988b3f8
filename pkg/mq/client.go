package mq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/multierr"

	"github.com/bistrohq/bistro-backend/pkg/config"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

// Message is a single broker publish.
type Message struct {
	RoutingKey  string
	MessageID   string
	ContentType string
	Headers     map[string]any
	Body        []byte
	Timestamp   time.Time
}

// Client publishes to one durable topic exchange with publisher confirms enabled.
type Client struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	acks     <-chan amqp.Confirmation
	exchange string
	timeout  time.Duration

	mu sync.Mutex
}

// Dial connects, declares the exchange and puts the channel in confirm mode.
func Dial(ctx context.Context, cfg config.RabbitMQConfig, logg *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("rabbitmq exchange is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	acks := ch.NotifyPublish(make(chan amqp.Confirmation, 1))

	timeout := cfg.ConfirmTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "exchange", cfg.Exchange), "rabbitmq connection established")
	}

	return &Client{conn: conn, ch: ch, acks: acks, exchange: cfg.Exchange, timeout: timeout}, nil
}

// Exchange returns the exchange messages are published to.
func (c *Client) Exchange() string {
	return c.exchange
}

// Ping reports whether the connection is still open.
func (c *Client) Ping(context.Context) error {
	if c == nil || c.conn == nil || c.conn.IsClosed() {
		return errors.New("rabbitmq connection is closed")
	}
	return nil
}

// Publish sends msg persistently and waits for the broker ack. Calls are serialised
// so each confirmation pairs with its publish.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	contentType := msg.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	if err := c.ch.PublishWithContext(ctx, c.exchange, msg.RoutingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  contentType,
		MessageId:    msg.MessageID,
		Timestamp:    ts,
		Headers:      amqp.Table(msg.Headers),
		Body:         msg.Body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", msg.RoutingKey, err)
	}

	select {
	case conf, ok := <-c.acks:
		if !ok {
			return errors.New("rabbitmq confirm channel closed")
		}
		if !conf.Ack {
			return fmt.Errorf("publish %s: nack from broker", msg.RoutingKey)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	var err error
	if c.ch != nil {
		err = multierr.Append(err, c.ch.Close())
	}
	if c.conn != nil {
		err = multierr.Append(err, c.conn.Close())
	}
	return err
}
