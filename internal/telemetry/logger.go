package telemetry

import (
	"io"
	"log/slog"
	"strings"

	"github.com/joao-fontenele/digimarket/internal/config"
)

// NewLogger builds the process logger from the Log config. JSON is the
// default; "text" is meant for local development.
func NewLogger(w io.Writer, cfg config.Log, service string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", service)
}
