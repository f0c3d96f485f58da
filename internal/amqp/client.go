package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
	dialAttempts   = 3
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// connect dials and declares the topology. Caller must not hold mu.
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
	stale := handles(c.conn, c.channel)
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	closeAll(stale)
	return nil
}

// detach forgets the current connection and channel and returns them for closing.
func (c *Client) detach() []io.Closer {
	c.mu.Lock()
	defer c.mu.Unlock()
	stale := handles(c.conn, c.channel)
	c.conn, c.channel = nil, nil
	return stale
}

// handles lists the non-nil handles, channel before its connection.
func handles(conn *amqp091.Connection, ch *amqp091.Channel) []io.Closer {
	var out []io.Closer
	if ch != nil {
		out = append(out, ch)
	}
	if conn != nil {
		out = append(out, conn)
	}
	return out
}

// closeAll closes every handle. Errors are logged since a dead connection often fails to close cleanly.
func closeAll(closers []io.Closer) {
	for _, cl := range closers {
		if err := cl.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
			slog.Debug("Closing stale AMQP handle", "error", err)
		}
	}
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// Direct exchange: the routing key is the queue name.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// reconnect re-dials with exponential backoff until it succeeds, ctx ends or attempts run out.
func (c *Client) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}
		if lastErr = c.connect(); lastErr == nil {
			slog.InfoContext(ctx, "Reconnected to AMQP", "attempt", attempt+1)
			return nil
		}
		slog.WarnContext(ctx, "AMQP reconnect failed", "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil || c.channel.IsClosed() {
		return nil
	}
	return c.channel
}

// PublishLedgerEvent publishes a ledger.entry message.
func (c *Client) PublishLedgerEvent(ctx context.Context, msg *LedgerEventMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeLedgerEntry, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published ledger event",
		"entity", msg.Entity,
		"entity_id", msg.EntityID,
		"action", msg.Action,
		"shop_id", msg.ShopID)
	return nil
}

// PublishDebtReminder publishes a debt.reminder message.
func (c *Client) PublishDebtReminder(ctx context.Context, msg *DebtReminderMessage) error {
	msg.Kind = TypeDebtReminder
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.publish(ctx, TypeDebtReminder, body); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Published debt reminder", "debt_id", msg.DebtID, "shop_id", msg.ShopID)
	return nil
}

func (c *Client) publish(ctx context.Context, msgType string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: circuit breaker is open", msgType)
	}

	ch := c.currentChannel()
	if ch == nil {
		if err := c.reconnect(ctx); err != nil {
			c.recordFailure()
			return fmt.Errorf("publish %s: %w", msgType, err)
		}
		ch = c.currentChannel()
		if ch == nil {
			c.recordFailure()
			return fmt.Errorf("publish %s: no channel", msgType)
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := ch.PublishWithContext(pubCtx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Type:         msgType,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		c.recordFailure()
		if isConnectionError(err) {
			closeAll(c.detach())
		}
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	c.recordSuccess()
	return nil
}

// Handlers receives decoded messages. A nil handler acks and drops its message type.
type Handlers struct {
	Ledger   func(context.Context, *LedgerEventMessage) error
	Reminder func(context.Context, *DebtReminderMessage) error
}

// Consume delivers messages to handlers until ctx is done.
// Undecodable messages are rejected without requeue; handler failures are requeued.
func (c *Client) Consume(ctx context.Context, h Handlers) error {
	ch := c.currentChannel()
	if ch == nil {
		return errors.New("start consuming: channel closed")
	}
	if err := ch.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			c.dispatch(ctx, delivery, h)
		}
	}
}

type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func (c *Client) dispatch(ctx context.Context, d amqp091.Delivery, h Handlers) {
	handle(ctx, d.Type, d.Body, d, h)
}

func handle(ctx context.Context, msgType string, body []byte, a acker, h Handlers) {
	var err error
	switch msgType {
	case TypeLedgerEntry, "":
		msg, decodeErr := LedgerEventMessageFromJSON(body)
		if decodeErr != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal ledger event", "error", decodeErr)
			a.Nack(false, false)
			return
		}
		if h.Ledger != nil {
			err = h.Ledger(ctx, msg)
		}
	case TypeDebtReminder:
		msg, decodeErr := DebtReminderMessageFromJSON(body)
		if decodeErr != nil {
			slog.ErrorContext(ctx, "Failed to unmarshal debt reminder", "error", decodeErr)
			a.Nack(false, false)
			return
		}
		if h.Reminder != nil {
			err = h.Reminder(ctx, msg)
		}
	default:
		slog.WarnContext(ctx, "Unknown message type", "type", msgType)
		a.Nack(false, false)
		return
	}

	if err != nil {
		slog.ErrorContext(ctx, "Failed to handle message", "type", msgType, "error", err)
		a.Nack(false, true)
		return
	}
	a.Ack(false)
}

func (c *Client) isCircuitOpen() bool {
	switch atomic.LoadInt32(&c.state) {
	case StateOpen:
		c.mu.Lock()
		elapsed := time.Since(c.lastFailure)
		c.mu.Unlock()
		if elapsed > openTimeout {
			atomic.StoreInt32(&c.state, StateHalfOpen)
			return false
		}
		return true
	default:
		return false
	}
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// exponentialBackoff returns 1s, 2s, 4s… capped at 30s.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "closed network connection", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	stale := c.detach()
	var err error
	for _, cl := range stale {
		err = cl.Close()
	}
	return err
}
