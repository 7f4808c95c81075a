package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/metrics"
)

// BestEffort runs deliveries in the background so they never block or fail
// the caller. Each attempt gets its own timeout; temporary failures are
// retried with exponential backoff up to a fixed number of attempts.
// Failures are logged and counted, never returned.
type BestEffort struct {
	d        Dispatcher
	timeout  time.Duration
	attempts uint
	log      *slog.Logger
	metrics  *metrics.Metrics

	initialInterval time.Duration
	wg              sync.WaitGroup
}

// NewBestEffort wraps d. attempts below 1 is treated as 1.
func NewBestEffort(d Dispatcher, timeout time.Duration, attempts int, log *slog.Logger, m *metrics.Metrics) *BestEffort {
	if attempts < 1 {
		attempts = 1
	}
	return &BestEffort{
		d:               d,
		timeout:         timeout,
		attempts:        uint(attempts),
		log:             log,
		metrics:         m,
		initialInterval: 200 * time.Millisecond,
	}
}

// Send pushes text to the member. ctx only contributes values such as the
// request id; its cancellation does not stop the delivery.
func (b *BestEffort) Send(ctx context.Context, to, text string) {
	m := Message{To: to, Text: text, RetryKey: uuid.NewString()}
	b.run(ctx, "push", to, func(ctx context.Context) error {
		return b.d.Send(ctx, m)
	})
}

// SetChannelMenu switches the member's channel menu.
func (b *BestEffort) SetChannelMenu(ctx context.Context, to, menuID string) {
	if menuID == "" {
		return
	}
	b.run(ctx, "rich_menu", to, func(ctx context.Context) error {
		return b.d.SetChannelMenu(ctx, to, menuID)
	})
}

// Wait blocks until every started delivery has finished.
func (b *BestEffort) Wait() {
	b.wg.Wait()
}

func (b *BestEffort) run(ctx context.Context, kind, to string, fn func(context.Context) error) {
	base := context.WithoutCancel(ctx)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		err := Retry(base, b.attempts, b.timeout, b.initialInterval, fn)
		if err != nil {
			b.log.WarnContext(base, "notification not delivered",
				"kind", kind, "to", to, "error", apperr.Delivery(kind, err))
			b.metrics.Delivery(kind, "failed")
			return
		}
		b.metrics.Delivery(kind, "delivered")
	}()
}

// Retry calls fn until it succeeds, fails permanently or attempts run out.
// Every attempt runs under its own timeout derived from ctx.
func Retry(ctx context.Context, attempts uint, timeout, initial time.Duration, fn func(context.Context) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initial
	bo.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := fn(actx); err != nil {
			if !IsTemporary(err) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(attempts),
	)
	return err
}
