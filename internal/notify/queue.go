package notify

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

// Routing keys of queued delivery commands.
const (
	KeyPush     = "notify.push"
	KeyRichMenu = "notify.rich_menu"
)

// Command is a queued delivery.
type Command struct {
	To       string `json:"to"`
	Text     string `json:"text,omitempty"`
	MenuID   string `json:"menu_id,omitempty"`
	RetryKey string `json:"retry_key,omitempty"`
}

// QueueDispatcher hands deliveries to RabbitMQ for cmd/notifier to perform.
type QueueDispatcher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string

	mu sync.Mutex // guards ch publishes
}

// NewQueueDispatcher connects and declares the topic exchange.
func NewQueueDispatcher(url, exchange string) (*QueueDispatcher, error) {
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
	return &QueueDispatcher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (q *QueueDispatcher) Send(ctx context.Context, m Message) error {
	return q.publish(ctx, KeyPush, Command{To: m.To, Text: m.Text, RetryKey: m.RetryKey})
}

func (q *QueueDispatcher) SetChannelMenu(ctx context.Context, to, menuID string) error {
	return q.publish(ctx, KeyRichMenu, Command{To: to, MenuID: menuID})
}

func (q *QueueDispatcher) publish(ctx context.Context, key string, cmd Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return &Error{Op: key, Status: 400, Err: err}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	err = q.ch.PublishWithContext(ctx, q.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return &Error{Op: key, Err: err}
	}
	return nil
}

// Close releases the channel and connection.
func (q *QueueDispatcher) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// ErrBadCommand marks a queued message that can never be delivered.
var ErrBadCommand = errors.New("notify: bad command")

// Worker performs queued deliveries with a Dispatcher, usually a LineClient.
type Worker struct {
	d        Dispatcher
	attempts uint
	timeout  time.Duration
	log      *slog.Logger

	initialInterval time.Duration
}

// NewWorker returns a worker retrying each command up to attempts times.
func NewWorker(d Dispatcher, attempts int, timeout time.Duration, log *slog.Logger) *Worker {
	if attempts < 1 {
		attempts = 1
	}
	return &Worker{d: d, attempts: uint(attempts), timeout: timeout, log: log, initialInterval: 200 * time.Millisecond}
}

// Handle performs one queued command.
func (w *Worker) Handle(ctx context.Context, key string, body []byte) error {
	var cmd Command
	if err := json.Unmarshal(body, &cmd); err != nil {
		return fmt.Errorf("%w: %v", ErrBadCommand, err)
	}
	if cmd.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrBadCommand)
	}
	var fn func(context.Context) error
	switch key {
	case KeyPush:
		if cmd.Text == "" {
			return fmt.Errorf("%w: empty text", ErrBadCommand)
		}
		m := Message{To: cmd.To, Text: cmd.Text, RetryKey: cmd.RetryKey}
		fn = func(ctx context.Context) error { return w.d.Send(ctx, m) }
	case KeyRichMenu:
		if cmd.MenuID == "" {
			return fmt.Errorf("%w: empty menu id", ErrBadCommand)
		}
		fn = func(ctx context.Context) error { return w.d.SetChannelMenu(ctx, cmd.To, cmd.MenuID) }
	default:
		return fmt.Errorf("%w: unknown routing key %q", ErrBadCommand, key)
	}
	return Retry(ctx, w.attempts, w.timeout, w.initialInterval, fn)
}

// ConsumerConfig describes the queue the worker reads.
type ConsumerConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// Run consumes commands until ctx is canceled. Delivered and undeliverable
// commands are acked; a command interrupted by shutdown is requeued.
func (w *Worker) Run(ctx context.Context, cfg ConsumerConfig) error {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "notify.*", cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 8
	}
	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, q.Name, "members-notifier", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	w.log.Info("notifier consuming", "queue", q.Name, "exchange", cfg.Exchange)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.settle(ctx, d)
		}
	}
}

func (w *Worker) settle(ctx context.Context, d amqp.Delivery) {
	err := w.Handle(ctx, d.RoutingKey, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case ctx.Err() != nil:
		_ = d.Nack(false, true)
	default:
		w.log.Warn("queued notification dropped", "key", d.RoutingKey, "error", err)
		_ = d.Ack(false)
	}
}
