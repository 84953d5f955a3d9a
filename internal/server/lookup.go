package server

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"tripplanner/internal/planstore"
	"tripplanner/internal/service"
	"tripplanner/internal/trip"
)

func (s *Handlers) handleRoute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	req := trip.RouteRequest{
		Origin:          q.Get("origin"),
		Destination:     q.Get("destination"),
		OriginCity:      q.Get("origin_city"),
		DestinationCity: q.Get("destination_city"),
		Mode:            q.Get("route_type"),
	}
	route, err := s.planner.Route(r.Context(), req)
	if err != nil {
		status := lookupStatus(err)
		if status >= http.StatusInternalServerError {
			log.Printf("route %q -> %q: %v", req.Origin, req.Destination, err)
		}
		writeJSON(w, status, errorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": route})
}

func (s *Handlers) handleGeocode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	address := r.URL.Query().Get("address")
	loc, err := s.planner.Geocode(r.Context(), address, r.URL.Query().Get("city"))
	if err != nil {
		status := lookupStatus(err)
		if status >= http.StatusInternalServerError {
			log.Printf("geocode %q: %v", address, err)
		}
		writeJSON(w, status, errorResponse{Detail: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": loc})
}

// handleCache drops provider cache entries: ?key= removes one entry,
// ?prefix= every entry under it, neither the whole cache.
func (s *Handlers) handleCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sel := service.CacheSelector{Key: r.URL.Query().Get("key"), Prefix: r.URL.Query().Get("prefix")}
	if strings.TrimSpace(sel.Key) != "" && strings.TrimSpace(sel.Prefix) != "" {
		http.Error(w, "key and prefix are mutually exclusive", http.StatusBadRequest)
		return
	}
	n, err := s.planner.InvalidateCache(withRequestInfo(r.Context(), r), sel, userID(r))
	if errors.Is(err, service.ErrUnavailable) {
		http.Error(w, "cache is not enabled", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		log.Printf("cache invalidation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"removed": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": n})
}

func (s *Handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit, err := queryLimit(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.planner.AuditTrail(r.Context(), planstore.AuditFilter{
		UserID:     strings.TrimSpace(r.URL.Query().Get("user_id")),
		ResourceID: strings.TrimSpace(r.URL.Query().Get("resource_id")),
		Limit:      limit,
	})
	if errors.Is(err, service.ErrUnavailable) {
		http.Error(w, "audit log is not enabled", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		log.Printf("audit list failed: %v", err)
		http.Error(w, "failed to read audit log", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
