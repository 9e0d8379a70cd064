package transporthttp

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"pulsefeed/internal/broadcast"
	"pulsefeed/internal/domain"
	"pulsefeed/internal/scheduler"
)

type PostReader interface {
	List(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error)
	Stats(ctx context.Context) (*domain.PostStats, error)
	HourlyActivity(ctx context.Context, since time.Time) ([]domain.ActivityBucket, error)
}

type TrendReader interface {
	ListActive(ctx context.Context, source string, limit int) ([]domain.TrendingTopic, error)
	Timeline(ctx context.Context, since time.Time) ([]domain.TrendPoint, error)
}

type RunReader interface {
	Recent(ctx context.Context, limit int) ([]domain.ScrapeRun, error)
	SourceStats(ctx context.Context) ([]domain.SourceStats, error)
}

// Controller is the scheduler surface exposed over HTTP.
type Controller interface {
	RunSource(name string) (domain.ScrapeResult, error)
	Status() scheduler.Status
}

// EventSource hands out live event subscriptions for streaming.
type EventSource interface {
	Subscribe() (*broadcast.Subscription, error)
}
