package twitter

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/ratelimit"
)

const (
	SourceName = "twitter"

	userAgent     = "PulseFeed/1.0 (research dashboard)"
	maxTitleRunes = 200

	// Nitter instances throttle aggressively, so the pacing floor is
	// higher than for other sources.
	minRequestDelay = 3 * time.Second
)

// Config holds twitter source configuration.
type Config struct {
	Queries      []string
	Instances    []string
	RequestDelay time.Duration
}

// Source scrapes tweet search results through Nitter instances (public
// HTML frontends). Instances go down often, so each query walks the
// configured list in order and settles on the first one that answers.
type Source struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	queries    []string
	instances  []string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	delay := cfg.RequestDelay
	if delay < minRequestDelay {
		delay = minRequestDelay
	}
	return &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(delay),
		queries:    cfg.Queries,
		instances:  cfg.Instances,
		logger:     logger.With("source", SourceName),
	}
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return SourceName
}

// Scrape runs every configured query. A query only contributes an error
// when every instance failed for it; other queries still run.
func (s *Source) Scrape(ctx context.Context) domain.ScrapeResult {
	start := time.Now()
	var items []domain.Item
	var errs []string

	for _, query := range s.queries {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("twitter/%s: %v", query, err))
			continue
		}

		batch, err := s.fetchQuery(ctx, query)
		if err != nil {
			s.logger.Warn("query scrape failed", "query", query, "error", err)
			errs = append(errs, fmt.Sprintf("twitter/%s: %v", query, err))
			continue
		}

		items = append(items, batch...)
		s.logger.Info("fetched query", "query", query, "tweets", len(batch))
	}

	return domain.ScrapeResult{
		Source:   SourceName,
		Items:    items,
		Errors:   errs,
		Duration: time.Since(start),
	}
}

// fetchQuery tries each instance in preference order until one works.
func (s *Source) fetchQuery(ctx context.Context, query string) ([]domain.Item, error) {
	var lastErr error
	for _, instance := range s.instances {
		items, err := s.scrapeInstance(ctx, instance, query)
		if err != nil {
			lastErr = err
			s.logger.Debug("nitter instance failed",
				"instance", instance,
				"query", query,
				"error", err,
			)
			continue
		}
		return items, nil
	}

	if lastErr == nil {
		return nil, errors.New("no nitter instances configured")
	}
	return nil, fmt.Errorf("all nitter instances failed: %w", lastErr)
}

func (s *Source) scrapeInstance(ctx context.Context, instance, query string) ([]domain.Item, error) {
	searchURL := fmt.Sprintf("%s/search?f=tweets&q=%s",
		strings.TrimRight(instance, "/"), url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, instance)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	now := time.Now().UTC()
	var items []domain.Item

	doc.Find(".timeline-item").Each(func(_ int, sel *goquery.Selection) {
		username := strings.TrimSpace(sel.Find(".username").First().Text())
		if username == "" {
			username = "unknown"
		}

		content := strings.TrimSpace(sel.Find(".tweet-content").First().Text())
		if content == "" {
			return
		}

		tweetPath, _ := sel.Find(".tweet-link").First().Attr("href")

		comments, likes := 0, 0
		sel.Find(".tweet-stat .icon-container").Each(func(i int, stat *goquery.Selection) {
			txt := strings.ReplaceAll(strings.TrimSpace(stat.Text()), ",", "")
			n, err := strconv.Atoi(txt)
			if err != nil || n < 0 {
				return
			}
			switch i {
			case 0:
				comments = n
			case 1:
				likes = n
			}
		})

		sourceURL := ""
		if tweetPath != "" {
			sourceURL = "https://x.com" + tweetPath
		}

		items = append(items, domain.Item{
			Source:      SourceName,
			SourceID:    tweetID(tweetPath, username, content),
			SourceURL:   sourceURL,
			Author:      username,
			Title:       truncate(content, maxTitleRunes),
			Body:        content,
			Score:       likes,
			NumComments: comments,
			PublishedAt: now,
			Category:    query,
		})
	})

	return items, nil
}

// tweetID derives a stable source-local id from the tweet permalink,
// falling back to author plus a content prefix when the link is missing.
func tweetID(path, username, content string) string {
	src := path
	if src == "" {
		src = username + ":" + truncate(content, 80)
	}
	sum := md5.Sum([]byte(src))
	return hex.EncodeToString(sum[:])[:16]
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
