package domain

import "time"

type Post struct {
	ID              int64     `db:"id" json:"id"`
	Source          string    `db:"source" json:"source"`
	SourceID        string    `db:"source_id" json:"source_id"`
	SourceURL       string    `db:"source_url" json:"source_url"`
	Author          string    `db:"author" json:"author"`
	Title           string    `db:"title" json:"title"`
	Body            string    `db:"body" json:"body"`
	Subreddit       *string   `db:"subreddit" json:"subreddit"`
	Category        string    `db:"category" json:"category"`
	Score           int       `db:"score" json:"score"`
	NumComments     int       `db:"num_comments" json:"num_comments"`
	EngagementScore float64   `db:"engagement_score" json:"engagement_score"`
	PublishedAt     time.Time `db:"published_at" json:"published_at"`
	ScrapedAt       time.Time `db:"scraped_at" json:"scraped_at"`
}

// Engagement derives the popularity metric stored on every post. It is
// recomputed on every sighting, not only on insert.
func Engagement(score, numComments int) float64 {
	return float64(score) + 2*float64(numComments)
}

// PostFilter narrows and orders post listings.
type PostFilter struct {
	Source    string
	Search    string
	Subreddit string
	Sort      string
	Order     string
	Limit     int
	Offset    int
	Since     *time.Time
}

type SourceBreakdown struct {
	Count         int     `json:"count"`
	AvgEngagement float64 `json:"avg_engagement"`
}

type PostStats struct {
	TotalPosts    int                        `json:"total_posts"`
	PostsToday    int                        `json:"posts_today"`
	AvgEngagement float64                    `json:"avg_engagement"`
	PerSource     map[string]SourceBreakdown `json:"per_source"`
}

// ActivityBucket is the per-source post count for one hour.
type ActivityBucket struct {
	Source string    `db:"source" json:"source"`
	Hour   time.Time `db:"hour" json:"hour"`
	Count  int       `db:"count" json:"count"`
}

// TitleStat is the projection of a post the trend engine reads.
type TitleStat struct {
	Source          string  `db:"source"`
	Title           string  `db:"title"`
	EngagementScore float64 `db:"engagement_score"`
}
