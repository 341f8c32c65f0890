// Package server is the thin read-only HTTP query layer over a published
// store. It exposes viewport, search, and statistics endpoints for a web map
// front end; all heavy lifting happened at import time.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/dat2sqlite-go/internal/logger"
	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

const (
	maxPointsPerViewport = 10000
	maxRoadsPerViewport  = 5000
)

// Server serves the query API over one opened store.
type Server struct {
	store *store.Store
	addr  string
}

// New creates a server for the given store.
func New(st *store.Store, addr string) *Server {
	return &Server{store: st, addr: addr}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/roads", s.handleRoads).Methods(http.MethodGet)
	r.HandleFunc("/api/points", s.handlePoints).Methods(http.MethodGet)
	r.HandleFunc("/api/search", s.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/api/motorways", s.handleMotorways).Methods(http.MethodGet)
	r.HandleFunc("/api/roads/{lcd:[0-9]+}", s.handleRoadDetails).Methods(http.MethodGet)
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := logger.Get()

	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Serving query API", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Get().Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseBBox reads west/south/east/north query parameters.
func parseBBox(r *http.Request) (store.BBox, error) {
	var b store.BBox
	for name, dst := range map[string]*float64{
		"west":  &b.West,
		"south": &b.South,
		"east":  &b.East,
		"north": &b.North,
	} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return b, fmt.Errorf("missing query parameter %q", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return b, fmt.Errorf("invalid %s: %q", name, raw)
		}
		*dst = v
	}
	if b.East < b.West || b.North < b.South {
		return b, fmt.Errorf("bounding box is inverted")
	}
	return b, nil
}

// parseCodes reads a comma-separated list of integer codes, e.g. types=1,2.
func parseCodes(raw string) ([]int64, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int64
	for _, part := range strings.Split(raw, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid code %q", part)
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "healthy",
		"total_points": stats.TotalPoints,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRoads(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBox(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	types, err := parseCodes(r.URL.Query().Get("types"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	features, err := s.store.RoadsInBBox(bbox, types, maxRoadsPerViewport)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(features),
		"features": emptyIfNil(features),
	})
}

func (s *Server) handlePoints(w http.ResponseWriter, r *http.Request) {
	bbox, err := parseBBox(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	categories, err := parseCodes(r.URL.Query().Get("categories"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	features := s.store.PointsInBBox(bbox, categories, maxPointsPerViewport)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(features),
		"features": emptyIfNil(features),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter \"q\"")
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = v
	}
	results, err := s.store.Search(q, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(results),
		"results": emptyIfNil(results),
	})
}

func (s *Server) handleMotorways(w http.ResponseWriter, r *http.Request) {
	motorways, err := s.store.Motorways()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":     len(motorways),
		"motorways": emptyIfNil(motorways),
	})
}

func (s *Server) handleRoadDetails(w http.ResponseWriter, r *http.Request) {
	lcd, err := strconv.ParseInt(mux.Vars(r)["lcd"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid road identifier")
		return
	}
	detail, err := s.store.RoadDetails(lcd)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("road %d not found", lcd))
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// emptyIfNil keeps JSON arrays as [] instead of null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
