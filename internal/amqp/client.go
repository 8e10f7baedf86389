package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

type (
	SyncHandler   func(context.Context, *DealSyncMessage) error
	DeleteHandler func(context.Context, *DealDeleteMessage) error
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu          sync.Mutex
	conn        *amqp091.Connection
	channel     *amqp091.Channel
	lastFailure time.Time

	state        int32
	failureCount int64
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on a direct exchange
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	// one unacked message at a time keeps sheet writes ordered
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	return nil
}

// PublishDealSync announces that a deal was created or updated.
func (c *Client) PublishDealSync(ctx context.Context, id, version int64) error {
	body, err := NewDealSyncMessage(id, version).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeDealSync, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published deal sync message",
		"id", id,
		"version", version,
		"exchange", c.exchangeName,
		"queue", c.queueName)
	return nil
}

// PublishDealDelete announces that a deal was deleted.
func (c *Client) PublishDealDelete(ctx context.Context, id int64, stockNumber string) error {
	body, err := NewDealDeleteMessage(id, stockNumber).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeDealDelete, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published deal delete message",
		"id", id,
		"stock_number", stockNumber,
		"queue", c.queueName)
	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", msgType)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		Type:         msgType,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	}

	ch := c.currentChannel()
	if ch == nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: channel not open", msgType)
	}
	err := ch.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, msg)
	if err != nil && isConnectionError(err) {
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting before publish", "error", err)
		if rerr := c.connect(); rerr != nil {
			c.recordFailure()
			return fmt.Errorf("reconnect: %w", rerr)
		}
		err = c.currentChannel().PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, msg)
	}
	if err != nil {
		c.recordFailure()
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	c.recordSuccess()
	return nil
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// ConsumeMessages dispatches deliveries to the handlers until ctx is done,
// reconnecting with exponential backoff when the broker connection drops.
func (c *Client) ConsumeMessages(ctx context.Context, onSync SyncHandler, onDelete DeleteHandler) error {
	attempt := 0
	for {
		err := c.consume(ctx, onSync, onDelete, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		slog.WarnContext(ctx, "AMQP consumer disconnected, retrying",
			"error", err, "attempt", attempt+1, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		attempt++

		if rerr := c.connect(); rerr != nil {
			slog.ErrorContext(ctx, "AMQP reconnect failed", "error", rerr)
		}
	}
}

func (c *Client) consume(ctx context.Context, onSync SyncHandler, onDelete DeleteHandler, connected func()) error {
	msgs, err := c.currentChannel().Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	connected()

	slog.InfoContext(ctx, "Started consuming deal messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			handleDelivery(ctx, delivery, onSync, onDelete)
		}
	}
}

// handleDelivery acks handled messages, drops malformed ones and requeues
// messages whose handler failed.
func handleDelivery(ctx context.Context, d amqp091.Delivery, onSync SyncHandler, onDelete DeleteHandler) {
	var (
		err error
		id  int64
	)

	switch d.Type {
	case TypeDealDelete:
		msg, perr := DealDeleteMessageFromJSON(d.Body)
		if perr != nil {
			reject(ctx, d, perr)
			return
		}
		id = msg.ID
		err = onDelete(ctx, msg)
	case TypeDealSync, "":
		msg, perr := DealSyncMessageFromJSON(d.Body)
		if perr != nil {
			reject(ctx, d, perr)
			return
		}
		id = msg.ID
		err = onSync(ctx, msg)
	default:
		reject(ctx, d, fmt.Errorf("unknown message type %q", d.Type))
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle message", "type", d.Type, "id", id, "error", err)
		if nerr := d.Nack(false, true); nerr != nil {
			slog.ErrorContext(ctx, "Failed to nack message", "error", nerr)
		}
		return
	}

	if aerr := d.Ack(false); aerr != nil {
		slog.ErrorContext(ctx, "Failed to ack message", "error", aerr)
		return
	}
	slog.InfoContext(ctx, "Successfully processed message", "type", d.Type, "id", id)
}

func reject(ctx context.Context, d amqp091.Delivery, cause error) {
	slog.ErrorContext(ctx, "Dropping malformed message", "type", d.Type, "error", cause)
	if err := d.Nack(false, false); err != nil {
		slog.ErrorContext(ctx, "Failed to nack message", "error", err)
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff doubles from one second and caps at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	return min(d, maxBackoff)
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel/connection is not open", "message channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
