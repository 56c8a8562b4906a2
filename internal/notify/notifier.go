// Package notify delivers trade alerts to chat channels. Delivery never
// fails the caller: a channel that is down is logged and skipped.
package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// Alert kinds, usable in the notify.events allow-list.
const (
	EventBuy              = "buy"
	EventSell             = "sell"
	EventAllocationFailed = "allocation_failed"
	EventSummary          = "summary"
	EventError            = "error"
)

// Sender is one chat channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier forwards alerts whose kind is allowed to every Sender at once.
type Notifier struct {
	senders []Sender
	allow   map[string]struct{} // nil allows every kind
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every kind.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	n := &Notifier{
		senders: senders,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, e := range events {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if n.allow == nil {
			n.allow = make(map[string]struct{})
		}
		n.allow[e] = struct{}{}
	}
	return n
}

func (n *Notifier) allowed(event string) bool {
	if n.allow == nil {
		return true
	}
	_, ok := n.allow[event]
	return ok
}

// Notify sends the alert to all senders in parallel and waits for them, so
// one slow channel does not add its latency to the others. Failures are
// logged per sender.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) {
	if !n.allowed(event) {
		n.logger.DebugContext(ctx, "alert filtered", slog.String("event", event))
		return
	}

	var wg sync.WaitGroup
	for _, s := range n.senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Send(ctx, title, message); err != nil {
				n.logger.ErrorContext(ctx, "alert not delivered",
					slog.String("sender", s.Name()),
					slog.String("event", event),
					slog.String("title", title),
					slog.String("error", err.Error()),
				)
			}
		}()
	}
	wg.Wait()
}
