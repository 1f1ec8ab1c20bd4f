// Package httpapi exposes the read-only query surface plus health and
// metrics endpoints. The UI layer consumes this; nothing here writes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/incident-feed/internal/domain"
	"github.com/couchcryptid/incident-feed/internal/store"
)

const maxListLimit = 500

// Server serves the query API over one store handle.
type Server struct {
	httpServer *http.Server
	store      *store.Store
	logger     *slog.Logger
}

// NewServer wires the routes. The store is the readiness dependency: if it
// answers a ping, the service can serve queries.
func NewServer(addr string, st *store.Store, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		store:  st,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/incidents", s.handleListIncidents)
	mux.HandleFunc("GET /api/incidents/{id}", s.handleGetIncident)
	mux.HandleFunc("GET /api/items", s.handleListItems)
	mux.HandleFunc("GET /api/sources", s.handleListSources)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", slog.String("addr", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown drains connections within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Conn().PingContext(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseIncidentFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	incidents, err := s.store.ListIncidents(r.Context(), filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	out := make([]incidentJSON, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, toIncidentJSON(inc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": out})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inc, err := s.store.GetIncident(r.Context(), id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	if inc == nil {
		writeError(w, http.StatusNotFound, errors.New("incident not found"))
		return
	}
	items, err := s.store.IncidentItems(r.Context(), id)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := incidentDetailJSON{incidentJSON: toIncidentJSON(*inc)}
	resp.Items = make([]itemJSON, 0, len(items))
	for _, it := range items {
		resp.Items = append(resp.Items, toItemJSON(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimitParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var items []domain.Item
	if term := strings.TrimSpace(q.Get("q")); term != "" {
		items, err = s.store.SearchItems(r.Context(), term, limit)
	} else {
		items, err = s.store.RecentItems(r.Context(), limit)
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	out := make([]itemJSON, 0, len(items))
	for _, it := range items {
		out = append(out, toItemJSON(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	healthBySource, err := s.store.ListSourceHealth(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	out := make([]sourceJSON, 0, len(sources))
	for _, src := range sources {
		out = append(out, toSourceJSON(src, healthBySource[src.ID]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	bucket := r.URL.Query().Get("bucket")
	if bucket == "" {
		bucket = "day"
	}
	var since time.Time
	switch bucket {
	case "hour":
		since = domain.Now().Add(-48 * time.Hour)
	case "day":
		since = domain.Now().Add(-30 * 24 * time.Hour)
	default:
		writeError(w, http.StatusBadRequest, errors.New("bucket must be hour or day"))
		return
	}

	stats, err := s.store.CategoryStats(r.Context(), since, bucket)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	items, incidents, err := s.store.Counts(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsJSON{
		Bucket:         bucket,
		TotalItems:     items,
		TotalIncidents: incidents,
		Buckets:        stats,
	})
}

func parseIncidentFilter(r *http.Request) (store.IncidentFilter, error) {
	q := r.URL.Query()
	var f store.IncidentFilter

	var err error
	if f.Since, err = parseTimeParam(q.Get("since"), "since"); err != nil {
		return f, err
	}
	if f.Until, err = parseTimeParam(q.Get("until"), "until"); err != nil {
		return f, err
	}
	f.Categories = q["category"]
	f.Query = strings.TrimSpace(q.Get("q"))

	if raw := q.Get("bbox"); raw != "" {
		box, err := domain.ParseBBox(raw)
		if err != nil {
			return f, err
		}
		f.BBox = &box
	}
	if raw := q.Get("min_severity"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 || v > 100 {
			return f, errors.New("min_severity must be an integer between 0 and 100")
		}
		f.MinSeverity = v
	}
	if f.Limit, err = parseLimitParam(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseLimitParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	if v > maxListLimit {
		v = maxListLimit
	}
	return v, nil
}

func parseTimeParam(raw, name string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be RFC 3339")
	}
	return t.UTC(), nil
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("query failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()))
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response write
}
