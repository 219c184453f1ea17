package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/service"
)

const maxBackoff = 30 * time.Second

// Reporter applies one sensor observation.
type Reporter interface {
	ReportResourceState(ctx context.Context, spaceID uint64, state model.SpaceState) (service.SpaceReport, error)
}

// Consumer feeds sensor reports from a durable queue into a Reporter.
type Consumer struct {
	url      string
	exchange string
	queue    string
	reporter Reporter
	timeout  time.Duration
	log      *slog.Logger
}

func NewConsumer(url, exchange, queue string, r Reporter, timeout time.Duration, log *slog.Logger) *Consumer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Consumer{
		url:      url,
		exchange: exchange,
		queue:    queue,
		reporter: r,
		timeout:  timeout,
		log:      log.With("component", "report-consumer"),
	}
}

// Run consumes until ctx is done.  Dial failures back off exponentially up
// to 30s; a dropped connection is re-established.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", "err", err)
	}
	if err := ch.ExchangeDeclare(c.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(c.queue, SensorBindingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming sensor reports", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				c.log.Warn("sensor report rejected", "routing_key", d.RoutingKey, "err", err)
				_ = d.Nack(false, false) // no requeue, a bad report would loop forever
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one report and applies it.  The space id falls back to
// the one named by the routing key.
func (c *Consumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	var rep SpaceReport
	if err := json.Unmarshal(body, &rep); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if rep.SpaceID == 0 {
		rep.SpaceID = SpaceFromRoutingKey(routingKey)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	res, err := c.reporter.ReportResourceState(ctx, rep.SpaceID, model.SpaceState(rep.State))
	if err != nil {
		return err
	}
	c.log.Debug("sensor report applied", "space_id", rep.SpaceID, "state", rep.State,
		"auto_checked_in", res.AutoCheckedIn != nil)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
