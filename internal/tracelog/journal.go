package tracelog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind classifies a journal event.
type Kind string

const (
	KindRunStarted   Kind = "run_started"
	KindRunFinished  Kind = "run_finished"
	KindRunFailed    Kind = "run_failed"
	KindStepStarted  Kind = "step_started"
	KindStepFinished Kind = "step_finished"
	KindModelCall    Kind = "model_call"
	KindFrontend     Kind = "frontend"
)

// Event is one journal line. Step, Status, ElapsedMs and Error are set by the
// kinds they apply to; Stage is a caller-defined label for frontend events.
type Event struct {
	At        time.Time      `json:"at"`
	TraceID   string         `json:"trace_id"`
	Source    string         `json:"source"`
	Kind      Kind           `json:"kind"`
	Stage     string         `json:"stage,omitempty"`
	Step      string         `json:"step,omitempty"`
	Status    string         `json:"status,omitempty"`
	ElapsedMs int64          `json:"elapsed_ms,omitempty"`
	Error     string         `json:"error,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

var (
	ErrNoTraceID = errors.New("tracelog: trace id is required")
	ErrNoKind    = errors.New("tracelog: event kind is required")
)

// Journal appends run-scoped events to <dir>/<trace id>.jsonl.
type Journal struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

func DefaultDir() string {
	return filepath.Join("tmp", "run_logs")
}

// NewJournal creates dir when missing. An empty dir selects DefaultDir.
func NewJournal(dir string) (*Journal, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	return &Journal{dir: dir, now: time.Now}, nil
}

// fileName maps a trace id onto a safe file name. Runs of other characters
// collapse to one underscore.
func fileName(traceID string) string {
	var b strings.Builder
	lastSub := false
	for _, r := range strings.TrimSpace(traceID) {
		ok := r == '.' || r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		switch {
		case ok:
			b.WriteRune(r)
			lastSub = false
		case !lastSub:
			b.WriteByte('_')
			lastSub = true
		}
	}
	name := strings.Trim(b.String(), ".")
	if name == "" {
		name = "unknown"
	}
	return name + ".jsonl"
}

// Append writes ev as one line. A zero At is stamped with the current time.
func (j *Journal) Append(ev Event) error {
	if j == nil {
		return nil
	}
	ev.TraceID = strings.TrimSpace(ev.TraceID)
	if ev.TraceID == "" {
		return ErrNoTraceID
	}
	if ev.Kind == "" {
		return ErrNoKind
	}
	if ev.At.IsZero() {
		ev.At = j.now().UTC()
	}
	if len(ev.Fields) == 0 {
		ev.Fields = nil
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	raw = append(raw, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(filepath.Join(j.dir, fileName(ev.TraceID)), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if _, err := f.Write(raw); err != nil {
		_ = f.Close()
		return fmt.Errorf("write journal: %w", err)
	}
	return f.Close()
}

// Read returns the events of a trace in append order. With limit > 0 only the
// last limit events are returned. Undecodable lines are skipped and a missing
// journal yields an empty slice.
func (j *Journal) Read(traceID string, limit int) ([]Event, error) {
	if j == nil {
		return []Event{}, nil
	}
	f, err := os.Open(filepath.Join(j.dir, fileName(traceID)))
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	out := make([]Event, 0, 16)
	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var ev Event
			if json.Unmarshal(line, &ev) == nil {
				out = append(out, ev)
				if limit > 0 && len(out) > limit {
					out = out[1:]
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal: %w", err)
		}
	}
	return out, nil
}
