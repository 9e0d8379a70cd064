package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pulsefeed/internal/domain"
)

const timelineLimit = 20

type TrendStore struct {
	db *sqlx.DB
}

func NewTrendStore(db *sqlx.DB) *TrendStore {
	return &TrendStore{db: db}
}

// DeactivateAll flips every topic inactive. Rows are kept so historical
// mention counts stay queryable.
func (s *TrendStore) DeactivateAll(ctx context.Context) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `UPDATE trending_topics SET is_active = FALSE`)
	return err
}

// UpsertActive activates a topic for the current window. first_seen is
// written once and preserved on every later recomputation.
func (s *TrendStore) UpsertActive(ctx context.Context, topic *domain.TrendingTopic) error {
	query := `
		INSERT INTO trending_topics (
			source, topic, mention_count, avg_engagement,
			first_seen, last_seen, is_active
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (source, topic) DO UPDATE SET
			mention_count = EXCLUDED.mention_count,
			avg_engagement = EXCLUDED.avg_engagement,
			last_seen = EXCLUDED.last_seen,
			is_active = TRUE`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		topic.Source,
		topic.Topic,
		topic.MentionCount,
		topic.AvgEngagement,
		topic.FirstSeen,
		topic.LastSeen,
	)
	return err
}

// ListActive returns currently trending topics, most mentioned first,
// optionally restricted to one source.
func (s *TrendStore) ListActive(ctx context.Context, source string, limit int) ([]domain.TrendingTopic, error) {
	query := `
		SELECT id, source, topic, mention_count, avg_engagement,
		       first_seen, last_seen, is_active
		FROM trending_topics
		WHERE is_active = TRUE`

	args := []interface{}{}
	if source != "" {
		args = append(args, source)
		query += fmt.Sprintf(" AND source = $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY mention_count DESC LIMIT $%d", len(args))

	var topics []domain.TrendingTopic
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &topics, query, args...)
	return topics, err
}

// Timeline returns the strongest active topics seen since the cutoff.
func (s *TrendStore) Timeline(ctx context.Context, since time.Time) ([]domain.TrendPoint, error) {
	query := `
		SELECT topic, source, mention_count, avg_engagement
		FROM trending_topics
		WHERE is_active = TRUE AND last_seen >= $1
		ORDER BY mention_count DESC
		LIMIT $2`

	var points []domain.TrendPoint
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &points, query, since, timelineLimit)
	return points, err
}
