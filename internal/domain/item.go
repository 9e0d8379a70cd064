package domain

import "time"

// Item is a single piece of content normalized from any source.
// Identity within a source is (Source, SourceID); items carry no other identity.
type Item struct {
	Source      string
	SourceID    string
	SourceURL   string
	Author      string
	Title       string
	Body        string
	Score       int
	NumComments int
	PublishedAt time.Time
	Category    string
	Subreddit   *string
}

// ScrapeResult is the outcome of one adapter cycle. Sub-unit failures are
// collected into Errors; the cycle itself never fails.
type ScrapeResult struct {
	Source   string
	Items    []Item
	Errors   []string
	Duration time.Duration
}

// CycleEvent is delivered to live subscribers after every finished cycle.
type CycleEvent struct {
	Event  string `json:"event"`
	Source string `json:"source"`
	Items  int    `json:"items"`
	New    int    `json:"new"`
	Errors int    `json:"errors"`
}

const EventScrapeComplete = "scrape_complete"
