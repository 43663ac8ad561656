package alert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const deliveryTimeout = 10 * time.Second

// Notifier delivers an alert to an external sink.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, a Alert) error {
	slog.Warn("air quality alert", "kind", a.Kind, "value", a.Value, "threshold", a.Threshold, "reading_ts", a.ReadingTS)
	return nil
}

// AMQPNotifier publishes alerts as JSON to a topic exchange, routed by kind.
type AMQPNotifier struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPNotifier(url string, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPNotifier{conn: conn, ch: ch, exchange: exchange}, nil
}

func (n *AMQPNotifier) Notify(ctx context.Context, a Alert) error {
	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}

	// amqp channels are not safe for concurrent publishes.
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.ch.PublishWithContext(ctx, n.exchange, "alert."+string(a.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    a.RaisedAt,
		Body:         body,
	})
}

func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	var errs []error
	if n.ch != nil {
		errs = append(errs, n.ch.Close())
	}
	if n.conn != nil {
		errs = append(errs, n.conn.Close())
	}
	return errors.Join(errs...)
}

// Dispatcher fans alerts out to every notifier in the background. Delivery
// failures are logged and never reach the request that triggered them.
type Dispatcher struct {
	notifiers []Notifier
	wg        sync.WaitGroup
}

func NewDispatcher(notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers}
}

func (d *Dispatcher) Dispatch(alerts []Alert) {
	for _, a := range alerts {
		for _, n := range d.notifiers {
			d.wg.Add(1)
			go func(n Notifier, a Alert) {
				defer d.wg.Done()

				ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
				defer cancel()

				if err := n.Notify(ctx, a); err != nil {
					slog.Error("alert delivery failed", "kind", a.Kind, "notifier", fmt.Sprintf("%T", n), "error", err)
				}
			}(n, a)
		}
	}
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("alert deliveries still pending at shutdown")
	}
}
