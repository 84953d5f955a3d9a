package service

import (
	"context"
	"sort"
	"time"
)

const (
	HealthOK       = "healthy"
	HealthDegraded = "degraded"
)

type HealthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Stats      map[string]any    `json:"stats,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Health probes every configured check and snapshots every stat. Any failing
// check degrades the report; stats never do.
func (p *Planner) Health(ctx context.Context) HealthReport {
	rep := HealthReport{Status: HealthOK, Components: map[string]string{"graph": "ok"}, Timestamp: time.Now().UTC()}
	names := make([]string, 0, len(p.checks))
	for name := range p.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.checks[name](ctx)
		cancel()
		if err != nil {
			rep.Components[name] = err.Error()
			rep.Status = HealthDegraded
			continue
		}
		rep.Components[name] = "ok"
	}
	for name, stat := range p.stats {
		if rep.Stats == nil {
			rep.Stats = make(map[string]any, len(p.stats))
		}
		rep.Stats[name] = stat()
	}
	return rep
}
