package alert

import (
	"context"
	"log/slog"
)

// Alert is a non-fatal operator notification: a business anomaly worth a
// human look that must not fail the operation that detected it.
type Alert struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	UserID  string         `json:"user_id,omitempty"`
	Email   string         `json:"email,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Alert kinds raised by the reconciler and the seat manager.
const (
	KindDoubleCheckout = "double_checkout"
	KindFanoutFailure  = "team_fanout_failure"
)

// Reporter delivers alerts to an operator channel. Delivery is
// fire-and-forget: implementations swallow their own failures and must
// never block the caller beyond a bounded time.
type Reporter interface {
	Report(ctx context.Context, a Alert)
}

// LogReporter writes alerts to a structured logger. The default reporter
// when no external channel is configured.
type LogReporter struct {
	log *slog.Logger
}

// NewLogReporter returns a Reporter backed by log.
func NewLogReporter(log *slog.Logger) *LogReporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogReporter{log: log}
}

func (r *LogReporter) Report(ctx context.Context, a Alert) {
	r.log.WarnContext(ctx, a.Message,
		slog.String("alert_kind", a.Kind),
		slog.String("user_id", a.UserID),
		slog.String("email", a.Email),
		slog.Any("fields", a.Fields),
	)
}

// Discard is a Reporter that drops every alert. Useful in tests.
type Discard struct{}

func (Discard) Report(context.Context, Alert) {}
