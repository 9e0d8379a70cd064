package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pulsefeed/internal/domain"
)

const defaultListLimit = 50

type PostStore struct {
	db *sqlx.DB
}

func NewPostStore(db *sqlx.DB) *PostStore {
	return &PostStore{db: db}
}

// Upsert inserts the post or, when (source, source_id) already exists,
// refreshes only the volatile fields. Title, body and published_at are
// write-once.
func (s *PostStore) Upsert(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO posts (
			source, source_id, source_url, author, title, body,
			subreddit, category, score, num_comments, engagement_score,
			published_at, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (source, source_id) DO UPDATE SET
			score = EXCLUDED.score,
			num_comments = EXCLUDED.num_comments,
			engagement_score = EXCLUDED.engagement_score,
			scraped_at = EXCLUDED.scraped_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		post.Source,
		post.SourceID,
		post.SourceURL,
		post.Author,
		post.Title,
		post.Body,
		post.Subreddit,
		post.Category,
		post.Score,
		post.NumComments,
		post.EngagementScore,
		post.PublishedAt,
		post.ScrapedAt,
	)
	return err
}

// ExistingIDs returns which of the given source-local ids are already
// stored for source.
func (s *PostStore) ExistingIDs(ctx context.Context, source string, sourceIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return existing, nil
	}

	query := `SELECT source_id FROM posts WHERE source = $1 AND source_id = ANY($2)`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, source, pq.Array(sourceIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}

	return existing, rows.Err()
}

func (s *PostStore) List(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	query := `
		SELECT id, source, source_id, source_url, author, title, body,
		       subreddit, category, score, num_comments, engagement_score,
		       published_at, scraped_at
		FROM posts`

	var conds []string
	var args []interface{}

	if filter.Source != "" {
		args = append(args, filter.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR body ILIKE $%d)", len(args), len(args)))
	}
	if filter.Subreddit != "" {
		args = append(args, filter.Subreddit)
		conds = append(conds, fmt.Sprintf("subreddit = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conds = append(conds, fmt.Sprintf("published_at >= $%d", len(args)))
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	query += " ORDER BY " + sortColumn(filter.Sort) + " " + sortDirection(filter.Order)

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var posts []domain.Post
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &posts, query, args...)
	return posts, err
}

// sortColumn whitelists user-supplied sort keys; anything unrecognized
// falls back to publication time.
func sortColumn(sort string) string {
	switch sort {
	case "score", "engagement_score":
		return sort
	default:
		return "published_at"
	}
}

func sortDirection(order string) string {
	if order == "asc" {
		return "ASC"
	}
	return "DESC"
}

func (s *PostStore) Stats(ctx context.Context) (*domain.PostStats, error) {
	ex := GetExecutor(ctx, s.db)

	now := time.Now().UTC()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var totals struct {
		Total int             `db:"total"`
		Today int             `db:"today"`
		Avg   sql.NullFloat64 `db:"avg"`
	}
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE scraped_at >= $1) AS today,
			AVG(engagement_score) AS avg
		FROM posts`
	if err := sqlx.GetContext(ctx, ex, &totals, query, todayStart); err != nil {
		return nil, err
	}

	stats := &domain.PostStats{
		TotalPosts:    totals.Total,
		PostsToday:    totals.Today,
		AvgEngagement: round1(totals.Avg.Float64),
		PerSource:     make(map[string]domain.SourceBreakdown),
	}

	rows, err := ex.QueryContext(ctx, `
		SELECT source, COUNT(*), AVG(engagement_score)
		FROM posts
		GROUP BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			source string
			count  int
			avg    sql.NullFloat64
		)
		if err := rows.Scan(&source, &count, &avg); err != nil {
			return nil, err
		}
		stats.PerSource[source] = domain.SourceBreakdown{
			Count:         count,
			AvgEngagement: round1(avg.Float64),
		}
	}

	return stats, rows.Err()
}

// HourlyActivity returns per-source post counts bucketed by publication
// hour, oldest bucket first.
func (s *PostStore) HourlyActivity(ctx context.Context, since time.Time) ([]domain.ActivityBucket, error) {
	query := `
		SELECT source, date_trunc('hour', published_at) AS hour, COUNT(*) AS count
		FROM posts
		WHERE published_at >= $1
		GROUP BY source, hour
		ORDER BY hour`

	var buckets []domain.ActivityBucket
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &buckets, query, since)
	return buckets, err
}

// TitleStatsSince streams the projection the trend engine works from.
func (s *PostStore) TitleStatsSince(ctx context.Context, since time.Time) ([]domain.TitleStat, error) {
	query := `SELECT source, title, engagement_score FROM posts WHERE published_at >= $1`

	var stats []domain.TitleStat
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &stats, query, since)
	return stats, err
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
