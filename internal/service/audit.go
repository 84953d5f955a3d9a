package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"tripplanner/internal/planstore"
	"tripplanner/internal/tracelog"
)

// ErrUnavailable is returned by operations whose backend was not configured.
var ErrUnavailable = errors.New("service: backend not configured")

// RequestInfo describes the inbound call that an audit entry is written for.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	Path      string
	Method    string
}

type requestInfoKey struct{}

func WithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFrom returns the details stored by WithRequestInfo, if any.
func RequestInfoFrom(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// record writes e with the request details found in ctx. Audit failures are
// logged; they never fail the call being audited.
func (p *Planner) record(ctx context.Context, e planstore.AuditEntry) {
	if p.audit == nil {
		return
	}
	info := RequestInfoFrom(ctx)
	e.IPAddress, e.UserAgent, e.RequestPath, e.RequestMethod = info.IPAddress, info.UserAgent, info.Path, info.Method
	if err := p.audit.Record(ctx, e); err != nil {
		tracelog.Logger(ctx).Warn("audit record failed", "action", e.Action, "error", err)
	}
}

func encode(ctx context.Context, v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		tracelog.Logger(ctx).Warn("audit encode failed", "error", err)
		return nil
	}
	return raw
}

// AuditTrail lists audit entries, newest first.
func (p *Planner) AuditTrail(ctx context.Context, f planstore.AuditFilter) ([]planstore.AuditEntry, error) {
	if p.audit == nil {
		return nil, ErrUnavailable
	}
	return p.audit.List(ctx, f)
}

// CacheSelector picks the provider cache entries to drop: one exact key, or
// every key under a prefix. An empty selector clears the whole cache.
type CacheSelector struct {
	Key    string `json:"key,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// InvalidateCache drops the selected entries and reports how many were removed.
func (p *Planner) InvalidateCache(ctx context.Context, sel CacheSelector, userID string) (int, error) {
	if p.cache == nil {
		return 0, ErrUnavailable
	}
	sel.Key, sel.Prefix = strings.TrimSpace(sel.Key), strings.TrimSpace(sel.Prefix)
	var (
		n   int
		err error
	)
	if sel.Key != "" {
		var found bool
		found, err = p.cache.Delete(ctx, sel.Key)
		if found {
			n = 1
		}
	} else {
		n, err = p.cache.Clear(ctx, sel.Prefix)
	}
	after := map[string]any{"removed": n}
	if err != nil {
		after["error"] = err.Error()
	}
	resource := sel.Key
	if resource == "" {
		resource = sel.Prefix + ":*"
	}
	p.record(ctx, planstore.AuditEntry{
		UserID:       userID,
		Action:       planstore.ActionCacheClear,
		ResourceType: planstore.ResourceCacheEntry,
		ResourceID:   resource,
		After:        encode(ctx, after),
	})
	if err != nil {
		return n, err
	}
	tracelog.Logger(ctx).Info("provider cache invalidated", "selector", resource, "removed", n)
	return n, nil
}
