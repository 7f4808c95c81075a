// Package notify delivers best-effort messages to members on the messaging channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Message is a text push to one member.
type Message struct {
	To   string // messaging identity
	Text string
	// RetryKey identifies one logical send across retries so the platform
	// can drop duplicates. Empty disables deduplication.
	RetryKey string
}

// Dispatcher talks to the messaging platform.
type Dispatcher interface {
	Send(ctx context.Context, m Message) error
	// SetChannelMenu switches the member's channel menu.
	SetChannelMenu(ctx context.Context, to, menuID string) error
}

// Error is a failed delivery. Status is the HTTP status, or 0 when the
// request never got a response.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("notify %s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("notify %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary reports whether retrying may succeed: transport failures,
// throttling and server errors.
func (e *Error) Temporary() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsTemporary reports whether err is worth retrying. Unclassified errors are.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary()
	}
	return true
}

// LogDispatcher only logs. Used in development and when delivery is disabled.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d LogDispatcher) Send(ctx context.Context, m Message) error {
	d.Logger.InfoContext(ctx, "notify send", "to", m.To, "text", m.Text)
	return nil
}

func (d LogDispatcher) SetChannelMenu(ctx context.Context, to, menuID string) error {
	d.Logger.InfoContext(ctx, "notify set menu", "to", to, "menu_id", menuID)
	return nil
}
