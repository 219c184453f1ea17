package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialTimeout = 3 * time.Second
	redialBackoff      = 5 * time.Second
)

// ErrBrokerUnavailable is returned without dialing while another dial is
// in flight or the last one failed less than redialBackoff ago.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Publisher sends space notifications to a durable topic exchange.  The
// connection is opened on first use and reopened after the broker drops
// it, so a broker outage only costs the messages sent while it lasts.
type Publisher struct {
	url      string
	exchange string
	log      *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	dialing bool
	retryAt time.Time
}

func NewPublisher(url, exchange string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, exchange: exchange, log: log.With("component", "publisher")}
}

// Publish sends payload as text/plain with the topic mapped to a routing
// key.  The dial is bounded by the ctx deadline.
func (p *Publisher) Publish(ctx context.Context, topic, payload string) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Transient,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{"topic": topic},
		Body:         []byte(payload),
	}
	if err := ch.PublishWithContext(ctx, p.exchange, RoutingKey(topic), false, false, pub); err != nil {
		p.drop(ch)
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// channel returns the open channel or dials a new one.  The lock is not
// held across the dial.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	if p.dialing || time.Now().Before(p.retryAt) {
		p.mu.Unlock()
		return nil, ErrBrokerUnavailable
	}
	p.closeLocked()
	p.dialing = true
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialing = false
	if err != nil {
		p.retryAt = time.Now().Add(redialBackoff)
		return nil, err
	}
	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker", "exchange", p.exchange)
	return ch, nil
}

func (p *Publisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := defaultDialTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("dial broker: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("exchange declare: %w", err)
	}
	return conn, ch, nil
}

// drop closes the connection behind ch if it is still the current one.
func (p *Publisher) drop(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.closeLocked()
	}
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close drops the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}
