package tracelog

import (
	"context"
	"time"
)

// ModelCalls journals one KindModelCall event per text-generation call made
// under a traced context. Calls outside a run are not recorded.
type ModelCalls struct {
	Journal *Journal
}

func (m ModelCalls) Before(context.Context, string, string) {}

func (m ModelCalls) After(ctx context.Context, raw string, err error, elapsed time.Duration) {
	traceID := TraceID(ctx)
	if m.Journal == nil || traceID == "" {
		return
	}
	ev := Event{
		TraceID:   traceID,
		Source:    "llm",
		Kind:      KindModelCall,
		Status:    "completed",
		ElapsedMs: elapsed.Milliseconds(),
		Fields:    map[string]any{"response_bytes": len(raw)},
	}
	if err != nil {
		ev.Status = "failed"
		ev.Error = err.Error()
	}
	if err := m.Journal.Append(ev); err != nil {
		Logger(ctx).Warn("journal append failed", "kind", ev.Kind, "error", err)
	}
}
