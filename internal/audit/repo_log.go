package audit

import (
	"context"
	"log/slog"
)

// LogRepo writes events to a structured logger under the "audit" message.
type LogRepo struct {
	log *slog.Logger
}

func NewLogRepo(log *slog.Logger) *LogRepo {
	if log == nil {
		log = slog.Default()
	}
	return &LogRepo{log: log}
}

func (r *LogRepo) Append(ctx context.Context, e Event) error {
	r.log.InfoContext(ctx, "audit",
		"event_id", e.ID,
		"type", string(e.Type),
		"call_sid", e.CallSID,
		"to", e.To,
		"status", e.Status,
		"message", e.Message,
		"created_at", e.CreatedAt,
	)
	return nil
}
