package llm

import (
	"context"
	"sync"
)

// FakeEngine replays scripted replies for offline runs and tests. When the
// script is exhausted the last reply repeats.
type FakeEngine struct {
	mu      sync.Mutex
	replies []FakeReply
	calls   int
	systems []string
	users   []string
}

type FakeReply struct {
	Text  string
	Err   error
	Panic any
}

func NewFakeEngine(replies ...FakeReply) *FakeEngine {
	return &FakeEngine{replies: replies}
}

func (f *FakeEngine) Name() string { return "FakeLLM" }
func (f *FakeEngine) Close() error { return nil }

func (f *FakeEngine) Generate(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.systems = append(f.systems, system)
	f.users = append(f.users, user)
	var r FakeReply
	switch {
	case len(f.replies) == 0:
		r = FakeReply{Err: ErrEmptyResponse}
	case f.calls <= len(f.replies):
		r = f.replies[f.calls-1]
	default:
		r = f.replies[len(f.replies)-1]
	}
	f.mu.Unlock()

	if r.Panic != nil {
		panic(r.Panic)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return r.Text, r.Err
}

func (f *FakeEngine) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastUser returns the user content of the most recent call.
func (f *FakeEngine) LastUser() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.users) == 0 {
		return ""
	}
	return f.users[len(f.users)-1]
}
