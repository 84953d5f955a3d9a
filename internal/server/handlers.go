// Package server exposes the planner over HTTP and websocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"tripplanner/internal/planning"
	"tripplanner/internal/planstore"
	"tripplanner/internal/provider"
	"tripplanner/internal/service"
	"tripplanner/internal/tracelog"
	"tripplanner/internal/trip"
)

const (
	ServiceName = "trip-planner"
	Version     = "2.0.0"

	maxRequestBytes = 1 << 20
)

// Planner is the part of service.Planner the handlers use.
type Planner interface {
	Plan(ctx context.Context, req trip.Request, userID string) (service.Result, error)
	PlanWithObserver(ctx context.Context, req trip.Request, userID string, obs planning.Observer) (service.Result, error)
	Status(ctx context.Context, traceID string) (planstore.Record, error)
	Health(ctx context.Context) service.HealthReport
	Journal() *tracelog.Journal
	Route(ctx context.Context, req trip.RouteRequest) (trip.Route, error)
	Geocode(ctx context.Context, address, city string) (trip.Location, error)
	InvalidateCache(ctx context.Context, sel service.CacheSelector, userID string) (int, error)
	AuditTrail(ctx context.Context, f planstore.AuditFilter) ([]planstore.AuditEntry, error)
}

type Handlers struct {
	planner Planner
}

func NewHandlers(p Planner) *Handlers {
	return &Handlers{planner: p}
}

// Mux returns the routed handlers wrapped in CORS.
func (s *Handlers) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/trip/plan", s.handlePlan)
	mux.HandleFunc("/trip/plan/ws", s.handlePlanWS)
	mux.HandleFunc("/trip/status/", s.handleStatus)
	mux.HandleFunc("/trip/health", s.handleHealth)
	mux.HandleFunc("/trip/route", s.handleRoute)
	mux.HandleFunc("/trip/geocode", s.handleGeocode)
	mux.HandleFunc("/debug/run-logs", s.handleRunLogs)
	mux.HandleFunc("/debug/frontend-trace", s.handleFrontendTrace)
	mux.HandleFunc("/debug/cache", s.handleCache)
	mux.HandleFunc("/debug/audit", s.handleAudit)
	return withCORS(mux)
}

type planResponse struct {
	Success           bool            `json:"success"`
	Message           string          `json:"message"`
	Data              *trip.Itinerary `json:"data,omitempty"`
	TraceID           string          `json:"trace_id,omitempty"`
	ExecutionTimeMs   int64           `json:"execution_time_ms"`
	FallbackActivated bool            `json:"fallback_activated"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Detail  string `json:"detail"`
	TraceID string `json:"trace_id,omitempty"`
}

func (s *Handlers) handlePlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := decodeRequest(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: err.Error()})
		return
	}
	res, err := s.planner.Plan(withRequestInfo(r.Context(), r), req, userID(r))
	if err != nil {
		status, detail := classify(err)
		writeJSON(w, status, errorResponse{Detail: detail, TraceID: res.TraceID})
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		Success:           true,
		Message:           "旅行计划生成成功",
		Data:              res.Itinerary,
		TraceID:           res.TraceID,
		ExecutionTimeMs:   res.ExecutionTimeMs,
		FallbackActivated: res.FallbackActivated,
	})
}

func (s *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	traceID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/trip/status/"))
	if traceID == "" || strings.Contains(traceID, "/") {
		http.Error(w, "trace_id is required", http.StatusBadRequest)
		return
	}
	rec, err := s.planner.Status(r.Context(), traceID)
	if errors.Is(err, planstore.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Detail: "run not found", TraceID: traceID})
		return
	}
	if err != nil {
		log.Printf("status lookup %s failed: %v", traceID, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "服务器内部错误，请稍后重试", TraceID: traceID})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type healthResponse struct {
	service.HealthReport
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rep := s.planner.Health(r.Context())
	status := http.StatusOK
	if rep.Status != service.HealthOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{HealthReport: rep, Service: ServiceName, Version: Version})
}

func (s *Handlers) handleRunLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	traceID := strings.TrimSpace(r.URL.Query().Get("trace_id"))
	if traceID == "" {
		http.Error(w, "trace_id is required", http.StatusBadRequest)
		return
	}
	journal := s.planner.Journal()
	if journal == nil {
		http.Error(w, "run logs are not enabled", http.StatusServiceUnavailable)
		return
	}
	limit, err := queryLimit(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events, err := journal.Read(traceID, limit)
	if err != nil {
		log.Printf("run logs %s: %v", traceID, err)
		http.Error(w, "failed to read logs", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []tracelog.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"trace_id": traceID, "events": events})
}

type frontendTraceRequest struct {
	Timestamp string         `json:"timestamp"`
	TraceID   string         `json:"trace_id"`
	Stage     string         `json:"stage"`
	Level     string         `json:"level"`
	Fields    map[string]any `json:"fields"`
}

func (s *Handlers) handleFrontendTrace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var in frontendTraceRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&in); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	traceID := strings.TrimSpace(in.TraceID)
	stage := strings.TrimSpace(in.Stage)
	if traceID == "" || stage == "" {
		http.Error(w, "trace_id and stage are required", http.StatusBadRequest)
		return
	}
	fields := map[string]any{}
	for k, v := range in.Fields {
		fields[k] = v
	}
	if lvl := strings.TrimSpace(in.Level); lvl != "" {
		fields["level"] = lvl
	}
	if ts := strings.TrimSpace(in.Timestamp); ts != "" {
		fields["frontend_timestamp"] = ts
	}
	journal := s.planner.Journal()
	if journal == nil {
		http.Error(w, "run logs are not enabled", http.StatusServiceUnavailable)
		return
	}
	err := journal.Append(tracelog.Event{TraceID: traceID, Source: "frontend", Kind: tracelog.KindFrontend, Stage: stage, Fields: fields})
	if err != nil {
		log.Printf("frontend trace %s: %v", traceID, err)
		http.Error(w, "failed to record trace", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func decodeRequest(body io.Reader) (trip.Request, error) {
	var req trip.Request
	if err := json.NewDecoder(io.LimitReader(body, maxRequestBytes)).Decode(&req); err != nil {
		return trip.Request{}, errors.New("invalid json: " + err.Error())
	}
	return req, nil
}

// classify maps a planner error to an HTTP status and a client-facing detail.
func classify(err error) (int, string) {
	var verr *trip.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, verr.Error()
	}
	return http.StatusInternalServerError, "生成旅行计划失败: " + err.Error()
}

// lookupStatus maps a route or geocode error to an HTTP status.
func lookupStatus(err error) int {
	var verr *trip.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, provider.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func queryLimit(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(name + " must be a non-negative integer")
	}
	return n, nil
}

// withRequestInfo attaches the caller details the audit log records.
func withRequestInfo(ctx context.Context, r *http.Request) context.Context {
	return service.WithRequestInfo(ctx, service.RequestInfo{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Path:      r.URL.Path,
		Method:    r.Method,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-User-ID")
		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}
