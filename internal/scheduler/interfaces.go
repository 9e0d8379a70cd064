package scheduler

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"pulsefeed/internal/domain"
)

// Scraper is one registered content source. Scrape never fails as a
// whole; sub-unit failures are collected inside the result.
type Scraper interface {
	Name() string
	Scrape(ctx context.Context) domain.ScrapeResult
}

type Reconciler interface {
	Upsert(ctx context.Context, items []domain.Item) (int, error)
}

type TrendEngine interface {
	Recompute(ctx context.Context) error
}

type RunLog interface {
	Record(ctx context.Context, run *domain.ScrapeRun) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Broadcaster delivers completion events to in-process subscribers.
type Broadcaster interface {
	Publish(event domain.CycleEvent)
}

// Publisher forwards completion events to an external broker.
type Publisher interface {
	Publish(ctx context.Context, event domain.CycleEvent) error
	Close() error
}
