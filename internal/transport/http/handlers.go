package transporthttp

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/scheduler"
)

const (
	defaultPostLimit  = 50
	maxPostLimit      = 200
	defaultTrendLimit = 30
	maxTrendLimit     = 100
	defaultRunLimit   = 20
	maxRunLimit       = 100
	defaultHours      = 24
	maxHours          = 168

	// maxBodyPreview caps post bodies in list responses; full text stays
	// in the store.
	maxBodyPreview = 300
)

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.PostFilter{
		Source:    q.Get("source"),
		Search:    q.Get("search"),
		Subreddit: q.Get("subreddit"),
		Sort:      q.Get("sort"),
		Order:     q.Get("order"),
		Limit:     intParam(q, "limit", defaultPostLimit, 1, maxPostLimit),
		Offset:    intParam(q, "offset", 0, 0, 0),
	}
	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filter.Since = &ts
	}

	posts, err := s.posts.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]domain.Post, len(posts))
	for i, p := range posts {
		p.Body = truncate(p.Body, maxBodyPreview)
		out[i] = p
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePostStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.posts.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHourlyActivity(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query(), "hours", defaultHours, 1, maxHours)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	buckets, err := s.posts.HourlyActivity(r.Context(), since)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(buckets))
}

// trendDTO mirrors TrendingTopic without the is_active flag; every
// topic in a listing is active by construction.
type trendDTO struct {
	ID            int64     `json:"id"`
	Source        string    `json:"source"`
	Topic         string    `json:"topic"`
	MentionCount  int       `json:"mention_count"`
	AvgEngagement float64   `json:"avg_engagement"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

func (s *Server) handleListTrends(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source := q.Get("source")
	limit := intParam(q, "limit", defaultTrendLimit, 1, maxTrendLimit)

	topics, err := s.trends.ListActive(r.Context(), source, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]trendDTO, len(topics))
	for i, t := range topics {
		out[i] = trendDTO{
			ID:            t.ID,
			Source:        t.Source,
			Topic:         t.Topic,
			MentionCount:  t.MentionCount,
			AvgEngagement: t.AvgEngagement,
			FirstSeen:     t.FirstSeen,
			LastSeen:      t.LastSeen,
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTrendTimeline(w http.ResponseWriter, r *http.Request) {
	hours := intParam(r.URL.Query(), "hours", defaultHours, 1, maxHours)
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	points, err := s.trends.Timeline(r.Context(), since)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(points))
}

func (s *Server) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.runs.SourceStats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(stats))
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r.URL.Query(), "limit", defaultRunLimit, 1, maxRunLimit)

	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(runs))
}

func (s *Server) handleTriggerScrape(w http.ResponseWriter, r *http.Request) {
	source := r.PathValue("source")

	result, err := s.control.RunSource(source)
	switch {
	case errors.Is(err, scheduler.ErrUnknownSource):
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source: %s", source))
		return
	case errors.Is(err, scheduler.ErrCycleRunning):
		s.writeError(w, http.StatusConflict, fmt.Sprintf("cycle already running for %s", source))
		return
	case errors.Is(err, scheduler.ErrNotStarted):
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not started")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"source":           result.Source,
		"items":            len(result.Items),
		"errors":           nonNil(result.Errors),
		"duration_seconds": math.Round(result.Duration.Seconds()*100) / 100,
	})
}

func (s *Server) handleSchedulerStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.control.Status())
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
