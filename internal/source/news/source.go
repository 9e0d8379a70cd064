package news

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"pulsefeed/internal/domain"
	"pulsefeed/internal/ratelimit"
)

const (
	SourceName = "news"

	userAgent     = "PulseFeed/1.0 (research dashboard)"
	minTitleRunes = 15
)

// site describes how to pull headlines out of one front page.
type site struct {
	name     string
	url      string
	selector string
	baseURL  string
}

// siteTable holds the extraction recipe per supported site.
var siteTable = map[string]site{
	"hackernews": {
		url:      "https://news.ycombinator.com/",
		selector: ".titleline > a",
	},
	"reuters": {
		url:      "https://www.reuters.com/",
		selector: "a[data-testid='Heading']",
		baseURL:  "https://www.reuters.com",
	},
	"ap_news": {
		url:      "https://apnews.com/",
		selector: "a.Link[href*='/article/']",
		baseURL:  "https://apnews.com",
	},
}

// Config holds news source configuration.
type Config struct {
	Sites        []string
	RequestDelay time.Duration
}

// Source scrapes configured news front pages with per-site CSS selectors.
type Source struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	sites      []site
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	logger = logger.With("source", SourceName)

	sites := make([]site, 0, len(cfg.Sites))
	for _, name := range cfg.Sites {
		st, ok := siteTable[name]
		if !ok {
			logger.Warn("unknown news site, skipping", "site", name)
			continue
		}
		st.name = name
		sites = append(sites, st)
	}

	return &Source{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratelimit.New(cfg.RequestDelay),
		sites:      sites,
		logger:     logger,
	}
}

// Name returns the source identifier.
func (s *Source) Name() string {
	return SourceName
}

// Scrape fetches every configured site. A failing site is reported in
// Errors; the remaining sites are still fetched.
func (s *Source) Scrape(ctx context.Context) domain.ScrapeResult {
	start := time.Now()
	var items []domain.Item
	var errs []string

	for _, st := range s.sites {
		if err := s.limiter.Wait(ctx); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", st.name, err))
			continue
		}

		batch, err := s.fetchSite(ctx, st)
		if err != nil {
			s.logger.Warn("site scrape failed", "site", st.name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", st.name, err))
			continue
		}

		items = append(items, batch...)
		s.logger.Info("fetched site", "site", st.name, "articles", len(batch))
	}

	return domain.ScrapeResult{
		Source:   SourceName,
		Items:    items,
		Errors:   errs,
		Duration: time.Since(start),
	}
}

func (s *Source) fetchSite(ctx context.Context, st site) ([]domain.Item, error) {
	doc, err := s.fetchDocument(ctx, st.url)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	seen := make(map[string]struct{})
	var items []domain.Item

	doc.Find(st.selector).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Text())
		link, _ := sel.Attr("href")

		// Headlines below a minimum length or without whitespace are
		// navigation links, not articles.
		if title == "" || utf8.RuneCountInString(title) < minTitleRunes || !strings.Contains(title, " ") {
			return
		}

		if link != "" && !strings.HasPrefix(link, "http") && st.baseURL != "" {
			link = st.baseURL + link
		}

		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}

		items = append(items, domain.Item{
			Source:      SourceName,
			SourceID:    hashID(link, title),
			SourceURL:   link,
			Author:      st.name,
			Title:       title,
			PublishedAt: now,
			Category:    st.name,
		})
	})

	return items, nil
}

func (s *Source) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
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
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}

// hashID derives a stable source-local id from the article link, falling
// back to the title when a link is missing.
func hashID(link, title string) string {
	src := link
	if src == "" {
		src = title
	}
	sum := md5.Sum([]byte(src))
	return hex.EncodeToString(sum[:])[:16]
}
