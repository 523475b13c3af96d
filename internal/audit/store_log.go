package audit

import (
	"context"
	"log/slog"
)

// LogStore writes events to the structured log. It is the default sink when
// Kafka is not configured.
type LogStore struct {
	logger *slog.Logger
}

func NewLogStore(logger *slog.Logger) *LogStore {
	return &LogStore{logger: logger}
}

func (s *LogStore) Append(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "audit event",
		"action", string(event.Action),
		"subject_id", event.SubjectID,
		"holder_id", event.HolderID,
		"outcome", event.Outcome,
		"reason", event.Reason,
		"request_id", event.RequestID,
		"timestamp", event.Timestamp,
	)
	return nil
}
