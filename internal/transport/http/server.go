// Package transporthttp serves the dashboard API: post and trend
// queries, run history, manual scrape control and a live event stream.
package transporthttp

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Server struct {
	posts   PostReader
	trends  TrendReader
	runs    RunReader
	control Controller
	events  EventSource
	logger  *slog.Logger
}

func NewServer(
	posts PostReader,
	trends TrendReader,
	runs RunReader,
	control Controller,
	events EventSource,
	logger *slog.Logger,
) *Server {
	return &Server{
		posts:   posts,
		trends:  trends,
		runs:    runs,
		control: control,
		events:  events,
		logger:  logger,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/posts", s.handleListPosts)
	mux.HandleFunc("GET /api/posts/stats", s.handlePostStats)
	mux.HandleFunc("GET /api/posts/activity", s.handleHourlyActivity)
	mux.HandleFunc("GET /api/trends", s.handleListTrends)
	mux.HandleFunc("GET /api/trends/timeline", s.handleTrendTimeline)
	mux.HandleFunc("GET /api/sources/stats", s.handleSourceStats)
	mux.HandleFunc("GET /api/sources/runs", s.handleRecentRuns)
	mux.HandleFunc("POST /api/scraper/run/{source}", s.handleTriggerScrape)
	mux.HandleFunc("GET /api/scraper/status", s.handleSchedulerStatus)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.withLogging(withCORS(mux))
}

// withCORS lets the dashboard frontend call the API from any origin.
// Preflight requests are answered before routing, so method-qualified
// patterns never see OPTIONS.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encode response failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// intParam parses an integer query parameter, falling back to def and
// clamping to [lo, hi]. hi <= 0 means no upper bound.
func intParam(q url.Values, key string, def, lo, hi int) int {
	raw := q.Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n < lo {
		return lo
	}
	if hi > 0 && n > hi {
		return hi
	}
	return n
}

// nonNil keeps empty collections encoding as [] instead of null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
