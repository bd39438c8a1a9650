// Package audit emits the structured-log audit lines spec.md §6 requires:
// one INFO line per security-relevant event, tagged with event_type plus
// whatever fields that event names. NAAS has no separate audit sink (no
// device-inventory database exists to write one into) — audit.Log
// deliberately has the same shape as Credo's ports.LogAudit, minus the
// publisher side, since a structured logger IS the publisher here.
package audit

import (
	"context"
	"log/slog"
)

// Log emits one audit line. attrs are slog key/value pairs in addition to
// the mandatory event_type attribute.
func Log(ctx context.Context, logger *slog.Logger, eventType string, attrs ...any) {
	if logger == nil {
		return
	}
	args := append([]any{"event_type", eventType}, attrs...)
	logger.InfoContext(ctx, eventType, args...)
}
