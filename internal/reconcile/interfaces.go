package reconcile

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"pulsefeed/internal/domain"
)

// PostStore is the slice of the post store the reconciler writes through.
type PostStore interface {
	ExistingIDs(ctx context.Context, source string, sourceIDs []string) (map[string]struct{}, error)
	Upsert(ctx context.Context, post *domain.Post) error
}
