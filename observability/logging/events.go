package logging

import (
	"log/slog"
	"sort"

	"custodyledger/core/events"
	"custodyledger/core/types"
)

type typedEvent interface {
	Event() *types.Event
}

// EventLogger writes each committed event as one structured log line.
type EventLogger struct {
	Logger *slog.Logger
}

func (l EventLogger) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	args := []any{slog.String("event", evt.EventType())}
	if typed, ok := evt.(typedEvent); ok {
		if payload := typed.Event(); payload != nil {
			if payload.TxID != "" {
				args = append(args, slog.String("tx", payload.TxID))
			}
			keys := make([]string, 0, len(payload.Attributes))
			for key := range payload.Attributes {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				args = append(args, slog.String(key, payload.Attributes[key]))
			}
		}
	}
	logger.Info("ledger event", args...)
}
