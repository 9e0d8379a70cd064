package trends

import (
	"context"
	"time"

	"pulsefeed/internal/domain"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

// PostReader loads the post titles feeding the trend computation.
type PostReader interface {
	TitleStatsSince(ctx context.Context, since time.Time) ([]domain.TitleStat, error)
}

// TopicStore persists trending topics.
type TopicStore interface {
	DeactivateAll(ctx context.Context) error
	UpsertActive(ctx context.Context, topic *domain.TrendingTopic) error
}

// TransactionManager scopes the deactivate-then-upsert swap to a single
// transaction so readers never observe a half-replaced topic set.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
