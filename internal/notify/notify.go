// Package notify sends templated notifications without ever blocking or
// failing the operation that triggered them.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/digimarket/internal/domain"
)

// Sender accepts a notification for delivery. It never reports failure to
// the caller.
type Sender interface {
	Send(ctx context.Context, n domain.Notification)
}

type publisher interface {
	Publish(ctx context.Context, key string, v any) error
}

const sendTimeout = 5 * time.Second

// Async publishes notifications from background goroutines detached from
// the request context.
type Async struct {
	pub    publisher
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewAsync(pub publisher, logger *slog.Logger) *Async {
	return &Async{pub: pub, logger: logger}
}

func (a *Async) Send(ctx context.Context, n domain.Notification) {
	if n.To == "" {
		a.logger.Debug("notification skipped without recipient", "template", n.Template)
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		if err := a.pub.Publish(ctx, n.To, n); err != nil {
			a.logger.Error("failed to publish notification", "error", err, "template", n.Template, "to", n.To)
			return
		}
		a.logger.Debug("notification published", "template", n.Template, "to", n.To)
	}()
}

// Wait blocks until in-flight sends finish.
func (a *Async) Wait() {
	a.wg.Wait()
}

// Log only records notifications. It stands in when no broker is
// configured.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, n domain.Notification) {
	l.logger.Info("notification", "template", n.Template, "to", n.To, "data", n.Data)
}
