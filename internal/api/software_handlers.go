package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.GetPool().Ping(r.Context()); err != nil {
		http.Error(w, "Database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":           "ok",
		"tracked_sessions": s.registry.Len(),
	})
}

func (s *Server) ListSoftwareHandler(w http.ResponseWriter, r *http.Request) {
	software, err := s.store.ListSoftware(r.Context())
	if err != nil {
		http.Error(w, "Failed to retrieve software", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(software)
}

func (s *Server) GetSoftwareUsageHandler(w http.ResponseWriter, r *http.Request) {
	softwareID := chi.URLParam(r, "softwareId")

	usage, err := s.store.GetSoftwareUsage(r.Context(), softwareID)
	if err != nil {
		http.Error(w, "Failed to retrieve usage", http.StatusInternalServerError)
		return
	}
	if usage == nil {
		http.Error(w, "Software not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(usage)
}
