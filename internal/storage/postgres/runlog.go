package postgres

import (
	"context"
	"database/sql"
	"math"

	"github.com/jmoiron/sqlx"

	"pulsefeed/internal/domain"
)

type RunLogStore struct {
	db *sqlx.DB
}

func NewRunLogStore(db *sqlx.DB) *RunLogStore {
	return &RunLogStore{db: db}
}

// Record appends one run to the log. Runs are immutable once written.
func (s *RunLogStore) Record(ctx context.Context, run *domain.ScrapeRun) error {
	query := `
		INSERT INTO scrape_runs (
			source, status, items_scraped, items_new, error_message,
			duration_seconds, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		run.Source,
		run.Status,
		run.ItemsScraped,
		run.ItemsNew,
		run.ErrorMessage,
		run.DurationSeconds,
		run.StartedAt,
		run.FinishedAt,
	)
	return err
}

func (s *RunLogStore) Recent(ctx context.Context, limit int) ([]domain.ScrapeRun, error) {
	query := `
		SELECT id, source, status, items_scraped, items_new, error_message,
		       duration_seconds, started_at, finished_at
		FROM scrape_runs
		ORDER BY started_at DESC
		LIMIT $1`

	var runs []domain.ScrapeRun
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &runs, query, limit)
	return runs, err
}

// SourceStats aggregates the run log per source. The success rate is a
// whole percentage of runs that finished with status success.
func (s *RunLogStore) SourceStats(ctx context.Context) ([]domain.SourceStats, error) {
	query := `
		SELECT
			source,
			COUNT(*) AS total_runs,
			COUNT(*) FILTER (WHERE status = 'success') AS success_count,
			MAX(started_at) AS last_run,
			COALESCE(SUM(items_new), 0) AS total_items
		FROM scrape_runs
		GROUP BY source`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SourceStats
	for rows.Next() {
		var (
			st      domain.SourceStats
			success int
			lastRun sql.NullTime
		)
		if err := rows.Scan(&st.Source, &st.TotalRuns, &success, &lastRun, &st.TotalItems); err != nil {
			return nil, err
		}

		total := st.TotalRuns
		if total < 1 {
			total = 1
		}
		st.SuccessRate = math.Round(float64(success) / float64(total) * 100)

		if lastRun.Valid {
			t := lastRun.Time
			st.LastRun = &t
		}
		out = append(out, st)
	}

	return out, rows.Err()
}
