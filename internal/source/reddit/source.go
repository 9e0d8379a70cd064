package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/ratelimit"
)

const (
	SourceName = "reddit"

	defaultBaseURL = "https://www.reddit.com"
	userAgent      = "PulseFeed/1.0 (research dashboard)"
	maxBodyRunes   = 2000
)

// Config holds reddit source configuration.
type Config struct {
	BaseURL      string
	Subreddits   []string
	Sort         string
	Limit        int
	RequestDelay time.Duration
}

// Source scrapes the public reddit JSON listing API, one request per
// configured subreddit.
type Source struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	baseURL    string
	subreddits []string
	sort       string
	limit      int
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(cfg.RequestDelay),
		baseURL:    baseURL,
		subreddits: cfg.Subreddits,
		sort:       cfg.Sort,
		limit:      cfg.Limit,
		logger:     logger.With("source", SourceName),
	}
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return SourceName
}

// Scrape fetches every configured subreddit. A failing subreddit is
// reported in Errors; the remaining subreddits are still fetched.
func (s *Source) Scrape(ctx context.Context) domain.ScrapeResult {
	start := time.Now()
	var items []domain.Item
	var errs []string

	for _, sub := range s.subreddits {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("r/%s: %v", sub, err))
			continue
		}

		batch, err := s.fetchSubreddit(ctx, sub)
		if err != nil {
			s.logger.Warn("subreddit scrape failed", "subreddit", sub, "error", err)
			errs = append(errs, fmt.Sprintf("r/%s: %v", sub, err))
			continue
		}

		items = append(items, batch...)
		s.logger.Info("fetched subreddit", "subreddit", sub, "posts", len(batch))
	}

	return domain.ScrapeResult{
		Source:   SourceName,
		Items:    items,
		Errors:   errs,
		Duration: time.Since(start),
	}
}

func (s *Source) fetchSubreddit(ctx context.Context, sub string) ([]domain.Item, error) {
	url := fmt.Sprintf("%s/r/%s/%s.json?limit=%d&raw_json=1", s.baseURL, sub, s.sort, s.limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var listing listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return s.transform(sub, listing), nil
}

func (s *Source) transform(sub string, listing listingResponse) []domain.Item {
	items := make([]domain.Item, 0, len(listing.Data.Children))

	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Title == "" || post.ID == "" {
			continue
		}

		author := post.Author
		if author == "" {
			author = "[deleted]"
		}

		subreddit := sub
		items = append(items, domain.Item{
			Source:      SourceName,
			SourceID:    post.ID,
			SourceURL:   defaultBaseURL + post.Permalink,
			Author:      author,
			Title:       post.Title,
			Body:        truncate(post.Selftext, maxBodyRunes),
			Score:       post.Score,
			NumComments: post.NumComments,
			PublishedAt: time.Unix(int64(post.CreatedUTC), 0).UTC(),
			Subreddit:   &subreddit,
		})
	}

	return items
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
