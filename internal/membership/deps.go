// Package membership coordinates member onboarding, identity linking, store
// check-ins and the visit analytics shown on the membership card.
//
// The workflows call several independent systems in a fixed order and never
// pretend to be atomic across them. Once an irreversible side effect has
// happened (a payment customer exists, a row is committed) the remaining
// steps run on a context detached from the caller, and any partial state is
// logged and published as an event for out-of-band reconciliation.
package membership

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/diewo77/go-members/internal/apperr"
	"github.com/diewo77/go-members/internal/events"
	"github.com/diewo77/go-members/internal/identity"
	"github.com/diewo77/go-members/internal/metrics"
	"github.com/diewo77/go-members/internal/payment"
	"github.com/diewo77/go-members/internal/store"
)

// DefaultCheckInWindow is the duplicate check-in window used when none is configured.
const DefaultCheckInWindow = time.Hour

// Notifier delivers best-effort messages. Implementations must not block the
// caller or report failures; *notify.BestEffort does both.
type Notifier interface {
	Send(ctx context.Context, to, text string)
	SetChannelMenu(ctx context.Context, to, menuID string)
}

// Deps are the collaborators shared by every workflow. They are built once
// at startup and passed to each constructor.
type Deps struct {
	Identity identity.Verifier
	Payments payment.Provisioner
	Store    store.UserStore
	Notifier Notifier
	Events   events.Publisher
	Logger   *slog.Logger
	Metrics  *metrics.Metrics

	// Now and NewID default to time.Now and random UUIDs.
	Now   func() time.Time
	NewID func() string

	CheckInWindow time.Duration
	Location      *time.Location // used to format visit dates; defaults to UTC
	MemberMenuID  string         // channel menu switched to after linking
}

type core struct {
	identity identity.Verifier
	payments payment.Provisioner
	store    store.UserStore
	notifier Notifier
	events   events.Publisher
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
	window   time.Duration
	loc      *time.Location
	menuID   string
}

func newCore(d Deps) core {
	c := core{
		identity: d.Identity,
		payments: d.Payments,
		store:    d.Store,
		notifier: d.Notifier,
		events:   d.Events,
		log:      d.Logger,
		metrics:  d.Metrics,
		now:      d.Now,
		newID:    d.NewID,
		window:   d.CheckInWindow,
		loc:      d.Location,
		menuID:   d.MemberMenuID,
	}
	if c.notifier == nil {
		c.notifier = nopNotifier{}
	}
	if c.events == nil {
		c.events = events.Nop{}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.newID == nil {
		c.newID = uuid.NewString
	}
	if c.window <= 0 {
		c.window = DefaultCheckInWindow
	}
	if c.loc == nil {
		c.loc = time.UTC
	}
	return c
}

// finish records the outcome of one operation. Caller-facing rejections are
// logged at debug; payment, storage and unclassified failures at error with
// every identifier the caller passed.
func (c *core) finish(ctx context.Context, op string, started time.Time, err error, attrs ...any) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	c.metrics.Operation(op, outcome, c.now().Sub(started))
	if err == nil {
		return
	}
	attrs = append(attrs, "op", op, "kind", outcome, "error", err)
	if apperr.KindOf(err).Public() {
		c.log.DebugContext(ctx, "operation rejected", attrs...)
		return
	}
	c.log.ErrorContext(ctx, "operation failed", attrs...)
}

func (c *core) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = c.now().UTC()
	if err := c.events.Publish(ctx, e); err != nil {
		c.log.WarnContext(ctx, "event not published", "type", e.Type, "error", err)
	}
}

type nopNotifier struct{}

func (nopNotifier) Send(context.Context, string, string)           {}
func (nopNotifier) SetChannelMenu(context.Context, string, string) {}
