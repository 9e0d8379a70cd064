package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/scheduler/mocks"
)

type SchedulerTestSuite struct {
	suite.Suite
	ctrl        *gomock.Controller
	reconciler  *mocks.MockReconciler
	trends      *mocks.MockTrendEngine
	runs        *mocks.MockRunLog
	txManager   *mocks.MockTransactionManager
	broadcaster *mocks.MockBroadcaster

	scheduler *Scheduler
}

func (s *SchedulerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.reconciler = mocks.NewMockReconciler(s.ctrl)
	s.trends = mocks.NewMockTrendEngine(s.ctrl)
	s.runs = mocks.NewMockRunLog(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.broadcaster = mocks.NewMockBroadcaster(s.ctrl)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	s.scheduler = New(s.reconciler, s.trends, s.runs, s.txManager, s.broadcaster, nil, logger)
}

func (s *SchedulerTestSuite) TearDownTest() {
	s.scheduler.Stop()
	s.ctrl.Finish()
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) newScraper(name string) *mocks.MockScraper {
	scraper := mocks.NewMockScraper(s.ctrl)
	scraper.EXPECT().Name().Return(name).AnyTimes()
	return scraper
}

func (s *SchedulerTestSuite) waitFor(done chan struct{}) {
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.FailNow("cycle did not complete in time")
	}
}

func (s *SchedulerTestSuite) TestStart_RunsCycleStepsInOrder() {
	items := []domain.Item{
		{Source: "reddit", SourceID: "a"},
		{Source: "reddit", SourceID: "b"},
	}
	result := domain.ScrapeResult{
		Source:   "reddit",
		Items:    items,
		Errors:   []string{"r/stocks: connection refused"},
		Duration: 1234 * time.Millisecond,
	}

	scraper := s.newScraper("reddit")
	scraper.EXPECT().Scrape(gomock.Any()).Return(result)

	gomock.InOrder(
		s.reconciler.EXPECT().Upsert(gomock.Any(), items).Return(1, nil),
		s.trends.EXPECT().Recompute(gomock.Any()).Return(nil),
		s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, run *domain.ScrapeRun) error {
				s.Equal("reddit", run.Source)
				s.Equal(domain.RunPartial, run.Status)
				s.Equal(2, run.ItemsScraped)
				s.Equal(1, run.ItemsNew)
				s.Equal("r/stocks: connection refused", run.ErrorMessage)
				s.Equal(1.23, run.DurationSeconds)
				s.False(run.StartedAt.IsZero())
				s.False(run.FinishedAt.IsZero())
				return nil
			},
		),
	)

	done := make(chan struct{})
	expected := domain.CycleEvent{
		Event:  domain.EventScrapeComplete,
		Source: "reddit",
		Items:  2,
		New:    1,
		Errors: 1,
	}
	s.broadcaster.EXPECT().Publish(expected).Do(func(domain.CycleEvent) { close(done) })

	s.scheduler.Register(scraper, time.Hour)
	s.scheduler.Start(context.Background())

	s.waitFor(done)
}

func (s *SchedulerTestSuite) TestStart_TimerFiresRepeatedly() {
	var cycles atomic.Int32

	scraper := s.newScraper("news")
	scraper.EXPECT().Scrape(gomock.Any()).DoAndReturn(
		func(context.Context) domain.ScrapeResult {
			cycles.Add(1)
			return domain.ScrapeResult{Source: "news"}
		},
	).AnyTimes()

	s.reconciler.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()
	s.trends.EXPECT().Recompute(gomock.Any()).Return(nil).AnyTimes()
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.broadcaster.EXPECT().Publish(gomock.Any()).AnyTimes()

	s.scheduler.Register(scraper, 30*time.Millisecond)
	s.scheduler.Start(context.Background())

	s.Eventually(func() bool { return cycles.Load() >= 3 }, 5*time.Second, 10*time.Millisecond)
}

func (s *SchedulerTestSuite) TestRunSource_ReturnsScrapeResult() {
	result := domain.ScrapeResult{
		Source:   "twitter",
		Items:    []domain.Item{{Source: "twitter", SourceID: "t1"}},
		Errors:   []string{"nitter.poast.org: timeout"},
		Duration: 700 * time.Millisecond,
	}

	scraper := s.newScraper("twitter")
	scraper.EXPECT().Scrape(gomock.Any()).Return(result).AnyTimes()

	s.reconciler.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(1, nil).AnyTimes()
	s.trends.EXPECT().Recompute(gomock.Any()).Return(nil).AnyTimes()
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	first := make(chan struct{})
	s.broadcaster.EXPECT().Publish(gomock.Any()).Do(func(domain.CycleEvent) {
		select {
		case <-first:
		default:
			close(first)
		}
	}).AnyTimes()

	s.scheduler.Register(scraper, time.Hour)
	s.scheduler.Start(context.Background())
	s.waitFor(first)

	got, err := s.scheduler.RunSource("twitter")

	s.NoError(err)
	s.Equal("twitter", got.Source)
	s.Len(got.Items, 1)
	s.Equal([]string{"nitter.poast.org: timeout"}, got.Errors)
}

func (s *SchedulerTestSuite) TestRunSource_UnknownSource() {
	_, err := s.scheduler.RunSource("myspace")

	s.ErrorIs(err, ErrUnknownSource)
}

func (s *SchedulerTestSuite) TestRunSource_NotStarted() {
	s.scheduler.Register(s.newScraper("reddit"), time.Hour)

	_, err := s.scheduler.RunSource("reddit")

	s.ErrorIs(err, ErrNotStarted)
}

func (s *SchedulerTestSuite) TestRunSource_RejectsOverlappingCycle() {
	inFlight := make(chan struct{})
	release := make(chan struct{})

	scraper := s.newScraper("reddit")
	scraper.EXPECT().Scrape(gomock.Any()).DoAndReturn(
		func(context.Context) domain.ScrapeResult {
			close(inFlight)
			<-release
			return domain.ScrapeResult{Source: "reddit"}
		},
	)

	s.reconciler.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()
	s.trends.EXPECT().Recompute(gomock.Any()).Return(nil).AnyTimes()
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.broadcaster.EXPECT().Publish(gomock.Any()).AnyTimes()

	s.scheduler.Register(scraper, time.Hour)
	s.scheduler.Start(context.Background())

	<-inFlight
	_, err := s.scheduler.RunSource("reddit")
	close(release)

	s.ErrorIs(err, ErrCycleRunning)
}

func (s *SchedulerTestSuite) TestCycle_PersistFailureStillBroadcasts() {
	result := domain.ScrapeResult{
		Source: "reddit",
		Items:  []domain.Item{{Source: "reddit", SourceID: "a"}},
	}

	scraper := s.newScraper("reddit")
	scraper.EXPECT().Scrape(gomock.Any()).Return(result)

	s.reconciler.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(0, errors.New("db down"))

	done := make(chan struct{})
	expected := domain.CycleEvent{
		Event:  domain.EventScrapeComplete,
		Source: "reddit",
		Items:  1,
		New:    0,
		Errors: 0,
	}
	s.broadcaster.EXPECT().Publish(expected).Do(func(domain.CycleEvent) { close(done) })

	s.scheduler.Register(scraper, time.Hour)
	s.scheduler.Start(context.Background())

	s.waitFor(done)
}

func (s *SchedulerTestSuite) TestCycle_ForwardsEventToPublisher() {
	publisher := mocks.NewMockPublisher(s.ctrl)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	sched := New(s.reconciler, s.trends, s.runs, s.txManager, s.broadcaster, publisher, logger)
	defer sched.Stop()

	scraper := s.newScraper("news")
	scraper.EXPECT().Scrape(gomock.Any()).Return(domain.ScrapeResult{Source: "news"})

	s.reconciler.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(0, nil)
	s.trends.EXPECT().Recompute(gomock.Any()).Return(nil)
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)
	s.broadcaster.EXPECT().Publish(gomock.Any())

	done := make(chan struct{})
	expected := domain.CycleEvent{Event: domain.EventScrapeComplete, Source: "news"}
	publisher.EXPECT().Publish(gomock.Any(), expected).DoAndReturn(
		func(context.Context, domain.CycleEvent) error {
			close(done)
			return nil
		},
	)

	sched.Register(scraper, time.Hour)
	sched.Start(context.Background())

	s.waitFor(done)
}

func (s *SchedulerTestSuite) TestStatus_ReflectsLifecycle() {
	scraper := s.newScraper("reddit")
	scraper.EXPECT().Scrape(gomock.Any()).Return(domain.ScrapeResult{Source: "reddit"}).AnyTimes()

	s.reconciler.EXPECT().Upsert(gomock.Any(), gomock.Any()).Return(0, nil).AnyTimes()
	s.trends.EXPECT().Recompute(gomock.Any()).Return(nil).AnyTimes()
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	s.broadcaster.EXPECT().Publish(gomock.Any()).AnyTimes()

	s.scheduler.Register(scraper, time.Hour)

	st := s.scheduler.Status()
	s.False(st.Running)
	s.Empty(st.Jobs)

	s.scheduler.Start(context.Background())

	st = s.scheduler.Status()
	s.True(st.Running)
	s.Require().Len(st.Jobs, 1)
	s.Equal("scrape_reddit", st.Jobs[0].ID)

	s.Eventually(func() bool {
		jobs := s.scheduler.Status().Jobs
		return len(jobs) == 1 && jobs[0].NextRun.After(time.Now().UTC().Add(30*time.Minute))
	}, 5*time.Second, 10*time.Millisecond)

	s.scheduler.Stop()

	st = s.scheduler.Status()
	s.False(st.Running)
	s.Empty(st.Jobs)
}
