package transporthttp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pulsefeed/internal/broadcast"
	"pulsefeed/internal/domain"
	"pulsefeed/internal/scheduler"
	"pulsefeed/internal/transport/http/mocks"
)

type ServerTestSuite struct {
	suite.Suite

	ctrl        *gomock.Controller
	posts       *mocks.MockPostReader
	trends      *mocks.MockTrendReader
	runs        *mocks.MockRunReader
	control     *mocks.MockController
	broadcaster *broadcast.Broadcaster
	handler     http.Handler
}

func (s *ServerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.posts = mocks.NewMockPostReader(s.ctrl)
	s.trends = mocks.NewMockTrendReader(s.ctrl)
	s.runs = mocks.NewMockRunReader(s.ctrl)
	s.control = mocks.NewMockController(s.ctrl)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.broadcaster = broadcast.New(4, logger)
	s.handler = NewServer(s.posts, s.trends, s.runs, s.control, s.broadcaster, logger).Routes()
}

func (s *ServerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestServerTestSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (s *ServerTestSuite) get(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func (s *ServerTestSuite) postReq(target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	return rec
}

func (s *ServerTestSuite) TestHealth() {
	rec := s.get("/health")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("application/json", rec.Header().Get("Content-Type"))
	s.JSONEq(`{"status":"ok"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestCORSPreflight() {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/posts", nil))

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func (s *ServerTestSuite) TestListPosts_AppliesDefaults() {
	s.posts.EXPECT().
		List(gomock.Any(), domain.PostFilter{Limit: 50}).
		Return([]domain.Post{{ID: 1, Source: "reddit", Title: "go 1.25 released"}}, nil)

	rec := s.get("/api/posts")

	s.Equal(http.StatusOK, rec.Code)

	var posts []domain.Post
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &posts))
	s.Require().Len(posts, 1)
	s.Equal("go 1.25 released", posts[0].Title)
}

func (s *ServerTestSuite) TestListPosts_ParsesQuery() {
	var got domain.PostFilter
	s.posts.EXPECT().
		List(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, filter domain.PostFilter) ([]domain.Post, error) {
			got = filter
			return nil, nil
		})

	rec := s.get("/api/posts?source=reddit&search=bitcoin&subreddit=golang&sort=score&order=asc&limit=500&offset=10&since=2026-08-20T00:00:00Z")

	s.Equal(http.StatusOK, rec.Code)
	s.Equal("reddit", got.Source)
	s.Equal("bitcoin", got.Search)
	s.Equal("golang", got.Subreddit)
	s.Equal("score", got.Sort)
	s.Equal("asc", got.Order)
	s.Equal(200, got.Limit, "limit above cap is clamped")
	s.Equal(10, got.Offset)
	s.Require().NotNil(got.Since)
	s.Equal(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC), got.Since.UTC())
}

func (s *ServerTestSuite) TestListPosts_RejectsBadSince() {
	rec := s.get("/api/posts?since=yesterday")

	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"since must be RFC3339"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestListPosts_TruncatesBodies() {
	long := strings.Repeat("x", 450)
	s.posts.EXPECT().
		List(gomock.Any(), gomock.Any()).
		Return([]domain.Post{{ID: 1, Body: long}}, nil)

	rec := s.get("/api/posts")

	var posts []domain.Post
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &posts))
	s.Require().Len(posts, 1)
	s.Len(posts[0].Body, 300)
}

func (s *ServerTestSuite) TestListPosts_StoreError() {
	s.posts.EXPECT().
		List(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection reset"))

	rec := s.get("/api/posts")

	s.Equal(http.StatusInternalServerError, rec.Code)
	s.JSONEq(`{"error":"connection reset"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestPostStats() {
	s.posts.EXPECT().Stats(gomock.Any()).Return(&domain.PostStats{
		TotalPosts:    120,
		PostsToday:    7,
		AvgEngagement: 33.4,
		PerSource: map[string]domain.SourceBreakdown{
			"reddit": {Count: 100, AvgEngagement: 35.1},
			"news":   {Count: 20, AvgEngagement: 25.0},
		},
	}, nil)

	rec := s.get("/api/posts/stats")

	s.Equal(http.StatusOK, rec.Code)

	var stats domain.PostStats
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	s.Equal(120, stats.TotalPosts)
	s.Equal(7, stats.PostsToday)
	s.Equal(35.1, stats.PerSource["reddit"].AvgEngagement)
}

func (s *ServerTestSuite) TestHourlyActivity_ClampsHours() {
	var got time.Time
	s.posts.EXPECT().
		HourlyActivity(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, since time.Time) ([]domain.ActivityBucket, error) {
			got = since
			return nil, nil
		})

	rec := s.get("/api/posts/activity?hours=9000")

	s.Equal(http.StatusOK, rec.Code)
	s.WithinDuration(time.Now().UTC().Add(-168*time.Hour), got, 2*time.Second)
	s.JSONEq(`[]`, rec.Body.String(), "empty result encodes as an array")
}

func (s *ServerTestSuite) TestListTrends_HidesActiveFlag() {
	now := time.Now().UTC()
	s.trends.EXPECT().
		ListActive(gomock.Any(), "", 30).
		Return([]domain.TrendingTopic{{
			ID:            4,
			Source:        "reddit",
			Topic:         "bitcoin",
			MentionCount:  9,
			AvgEngagement: 112.5,
			FirstSeen:     now,
			LastSeen:      now,
			IsActive:      true,
		}}, nil)

	rec := s.get("/api/trends")

	s.Equal(http.StatusOK, rec.Code)

	var raw []map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &raw))
	s.Require().Len(raw, 1)
	s.Equal("bitcoin", raw[0]["topic"])
	s.Equal(float64(9), raw[0]["mention_count"])
	s.NotContains(raw[0], "is_active")
}

func (s *ServerTestSuite) TestListTrends_ForwardsSourceAndLimit() {
	s.trends.EXPECT().
		ListActive(gomock.Any(), "twitter", 5).
		Return(nil, nil)

	rec := s.get("/api/trends?source=twitter&limit=5")

	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`[]`, rec.Body.String())
}

func (s *ServerTestSuite) TestTrendTimeline() {
	s.trends.EXPECT().
		Timeline(gomock.Any(), gomock.Any()).
		Return([]domain.TrendPoint{
			{Topic: "bitcoin", Source: "reddit", MentionCount: 9, AvgEngagement: 80.0},
		}, nil)

	rec := s.get("/api/trends/timeline?hours=48")

	s.Equal(http.StatusOK, rec.Code)

	var points []domain.TrendPoint
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &points))
	s.Require().Len(points, 1)
	s.Equal("bitcoin", points[0].Topic)
}

func (s *ServerTestSuite) TestSourceStats() {
	last := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	s.runs.EXPECT().SourceStats(gomock.Any()).Return([]domain.SourceStats{
		{Source: "reddit", TotalRuns: 3, SuccessRate: 67, LastRun: &last, TotalItems: 41},
	}, nil)

	rec := s.get("/api/sources/stats")

	s.Equal(http.StatusOK, rec.Code)

	var stats []domain.SourceStats
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	s.Require().Len(stats, 1)
	s.Equal(float64(67), stats[0].SuccessRate)
}

func (s *ServerTestSuite) TestRecentRuns_LimitClamped() {
	s.runs.EXPECT().
		Recent(gomock.Any(), 100).
		Return([]domain.ScrapeRun{{ID: 1, Source: "news", Status: domain.RunSuccess}}, nil)

	rec := s.get("/api/sources/runs?limit=1000")

	s.Equal(http.StatusOK, rec.Code)

	var runs []domain.ScrapeRun
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &runs))
	s.Require().Len(runs, 1)
	s.Equal(domain.RunSuccess, runs[0].Status)
}

func (s *ServerTestSuite) TestTriggerScrape_Success() {
	s.control.EXPECT().RunSource("reddit").Return(domain.ScrapeResult{
		Source:   "reddit",
		Items:    []domain.Item{{SourceID: "a"}, {SourceID: "b"}, {SourceID: "c"}},
		Duration: 1234 * time.Millisecond,
	}, nil)

	rec := s.postReq("/api/scraper/run/reddit")

	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("reddit", body["source"])
	s.Equal(float64(3), body["items"])
	s.Equal([]any{}, body["errors"])
	s.Equal(1.23, body["duration_seconds"])
}

func (s *ServerTestSuite) TestTriggerScrape_UnknownSource() {
	s.control.EXPECT().
		RunSource("bogus").
		Return(domain.ScrapeResult{}, fmt.Errorf("%w: bogus", scheduler.ErrUnknownSource))

	rec := s.postReq("/api/scraper/run/bogus")

	s.Equal(http.StatusBadRequest, rec.Code)
	s.JSONEq(`{"error":"unknown source: bogus"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestTriggerScrape_Busy() {
	s.control.EXPECT().
		RunSource("reddit").
		Return(domain.ScrapeResult{}, scheduler.ErrCycleRunning)

	rec := s.postReq("/api/scraper/run/reddit")

	s.Equal(http.StatusConflict, rec.Code)
	s.JSONEq(`{"error":"cycle already running for reddit"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestTriggerScrape_SchedulerDown() {
	s.control.EXPECT().
		RunSource("reddit").
		Return(domain.ScrapeResult{}, scheduler.ErrNotStarted)

	rec := s.postReq("/api/scraper/run/reddit")

	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.JSONEq(`{"error":"scheduler not started"}`, rec.Body.String())
}

func (s *ServerTestSuite) TestSchedulerStatus() {
	next := time.Date(2026, 8, 24, 12, 30, 0, 0, time.UTC)
	s.control.EXPECT().Status().Return(scheduler.Status{
		Running: true,
		Jobs: []scheduler.JobStatus{
			{ID: "scrape_reddit", NextRun: next},
			{ID: "scrape_news", NextRun: next.Add(5 * time.Minute)},
		},
	})

	rec := s.get("/api/scraper/status")

	s.Equal(http.StatusOK, rec.Code)

	var status scheduler.Status
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &status))
	s.True(status.Running)
	s.Require().Len(status.Jobs, 2)
	s.Equal("scrape_reddit", status.Jobs[0].ID)
	s.Equal(next, status.Jobs[0].NextRun.UTC())
}

func (s *ServerTestSuite) TestEvents_StreamsPublishedEvents() {
	ts := httptest.NewServer(s.handler)
	defer ts.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(ts.URL + "/api/events")
	s.Require().NoError(err)
	defer resp.Body.Close()

	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("text/event-stream", resp.Header.Get("Content-Type"))

	s.broadcaster.Publish(domain.CycleEvent{
		Event:  domain.EventScrapeComplete,
		Source: "reddit",
		Items:  25,
		New:    4,
		Errors: 0,
	})

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	s.Require().NoError(err)
	s.Equal("event: message\n", line)

	line, err = reader.ReadString('\n')
	s.Require().NoError(err)
	s.Require().True(strings.HasPrefix(line, "data: "))

	var event domain.CycleEvent
	s.Require().NoError(json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &event))
	s.Equal(domain.EventScrapeComplete, event.Event)
	s.Equal("reddit", event.Source)
	s.Equal(25, event.Items)
	s.Equal(4, event.New)
}

func (s *ServerTestSuite) TestEvents_ReleasesSubscriptionOnDisconnect() {
	ts := httptest.NewServer(s.handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/events")
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		return s.broadcaster.Subscribers() == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp.Body.Close()

	s.Require().Eventually(func() bool {
		return s.broadcaster.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func (s *ServerTestSuite) TestEvents_SubscriberLimit() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	single := broadcast.New(1, logger)
	handler := NewServer(s.posts, s.trends, s.runs, s.control, single, logger).Routes()

	ts := httptest.NewServer(handler)
	defer ts.Close()

	first, err := http.Get(ts.URL + "/api/events")
	s.Require().NoError(err)
	defer first.Body.Close()
	s.Equal(http.StatusOK, first.StatusCode)

	second, err := http.Get(ts.URL + "/api/events")
	s.Require().NoError(err)
	defer second.Body.Close()

	s.Equal(http.StatusServiceUnavailable, second.StatusCode)

	var body map[string]string
	s.Require().NoError(json.NewDecoder(second.Body).Decode(&body))
	s.Equal("too many event subscribers", body["error"])
}
