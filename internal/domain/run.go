package domain

import "time"

type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunFailed  RunStatus = "failed"
)

// DeriveStatus classifies a finished cycle from its fetch-side outcome:
// failed when nothing came back and something went wrong, partial when
// errors occurred alongside items, success otherwise.
func DeriveStatus(itemCount, errorCount int) RunStatus {
	if itemCount == 0 && errorCount > 0 {
		return RunFailed
	}
	if errorCount > 0 {
		return RunPartial
	}
	return RunSuccess
}

// ScrapeRun is one row of the append-only run log, immutable once written.
type ScrapeRun struct {
	ID              int64     `db:"id" json:"id"`
	Source          string    `db:"source" json:"source"`
	Status          RunStatus `db:"status" json:"status"`
	ItemsScraped    int       `db:"items_scraped" json:"items_scraped"`
	ItemsNew        int       `db:"items_new" json:"items_new"`
	ErrorMessage    string    `db:"error_message" json:"error_message"`
	DurationSeconds float64   `db:"duration_seconds" json:"duration_seconds"`
	StartedAt       time.Time `db:"started_at" json:"started_at"`
	FinishedAt      time.Time `db:"finished_at" json:"finished_at"`
}

// SourceStats aggregates the run log per source.
type SourceStats struct {
	Source      string     `db:"source" json:"source"`
	TotalRuns   int        `db:"total_runs" json:"total_runs"`
	SuccessRate float64    `db:"success_rate" json:"success_rate"`
	LastRun     *time.Time `db:"last_run" json:"last_run"`
	TotalItems  int        `db:"total_items" json:"total_items"`
}
