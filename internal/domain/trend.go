package domain

import "time"

// TrendingTopic is keyed uniquely by (Source, Topic). Topics are never
// deleted; a topic that stops trending is deactivated and its historical
// mention counts stay queryable.
type TrendingTopic struct {
	ID            int64     `db:"id" json:"id"`
	Source        string    `db:"source" json:"source"`
	Topic         string    `db:"topic" json:"topic"`
	MentionCount  int       `db:"mention_count" json:"mention_count"`
	AvgEngagement float64   `db:"avg_engagement" json:"avg_engagement"`
	FirstSeen     time.Time `db:"first_seen" json:"first_seen"`
	LastSeen      time.Time `db:"last_seen" json:"last_seen"`
	IsActive      bool      `db:"is_active" json:"is_active"`
}

// TrendPoint is a timeline entry for charting.
type TrendPoint struct {
	Topic         string  `db:"topic" json:"topic"`
	Source        string  `db:"source" json:"source"`
	MentionCount  int     `db:"mention_count" json:"mention_count"`
	AvgEngagement float64 `db:"avg_engagement" json:"avg_engagement"`
}
