package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pulsefeed/internal/domain"
)

const maxBodyRunes = 2000

// Reconciler merges scraped items into the durable post store. It is the
// only writer of posts.
type Reconciler struct {
	posts  PostStore
	logger *slog.Logger
}

func New(posts PostStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{posts: posts, logger: logger}
}

// Upsert persists all items and returns how many rows were newly
// inserted. New-vs-update detection is an explicit read-check against the
// store, so the count never depends on driver row-count semantics. A
// batch may contain the same key twice: the later occurrence wins and the
// key counts as new at most once.
func (r *Reconciler) Upsert(ctx context.Context, items []domain.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	existing, err := r.lookupExisting(ctx, items)
	if err != nil {
		return 0, fmt.Errorf("lookup existing posts: %w", err)
	}

	now := time.Now().UTC()
	newCount := 0

	for i := range items {
		item := &items[i]

		if err := r.posts.Upsert(ctx, toPost(item, now)); err != nil {
			return 0, fmt.Errorf("upsert post %s/%s: %w", item.Source, item.SourceID, err)
		}

		key := postKey(item.Source, item.SourceID)
		if _, ok := existing[key]; !ok {
			existing[key] = struct{}{}
			newCount++
		}
	}

	r.logger.Debug("reconciled batch", "items", len(items), "new", newCount)

	return newCount, nil
}

func (r *Reconciler) lookupExisting(ctx context.Context, items []domain.Item) (map[string]struct{}, error) {
	bySource := make(map[string][]string)
	for _, item := range items {
		bySource[item.Source] = append(bySource[item.Source], item.SourceID)
	}

	existing := make(map[string]struct{})
	for source, ids := range bySource {
		found, err := r.posts.ExistingIDs(ctx, source, ids)
		if err != nil {
			return nil, err
		}
		for id := range found {
			existing[postKey(source, id)] = struct{}{}
		}
	}

	return existing, nil
}

func postKey(source, sourceID string) string {
	return source + "\x00" + sourceID
}

func toPost(item *domain.Item, scrapedAt time.Time) *domain.Post {
	return &domain.Post{
		Source:          item.Source,
		SourceID:        item.SourceID,
		SourceURL:       item.SourceURL,
		Author:          item.Author,
		Title:           item.Title,
		Body:            truncate(item.Body, maxBodyRunes),
		Subreddit:       item.Subreddit,
		Category:        item.Category,
		Score:           item.Score,
		NumComments:     item.NumComments,
		EngagementScore: domain.Engagement(item.Score, item.NumComments),
		PublishedAt:     item.PublishedAt,
		ScrapedAt:       scrapedAt,
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
