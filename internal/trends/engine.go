package trends

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"pulsefeed/internal/config"
	"pulsefeed/internal/domain"
)

// topicsPerSource caps how many keywords each source may contribute.
const topicsPerSource = 20

// Engine recomputes the trending topic set from recent post titles.
type Engine struct {
	posts       PostReader
	topics      TopicStore
	txManager   TransactionManager
	window      time.Duration
	minMentions int
	logger      *slog.Logger
}

func New(
	posts PostReader,
	topics TopicStore,
	txManager TransactionManager,
	cfg config.TrendsConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		posts:       posts,
		topics:      topics,
		txManager:   txManager,
		window:      cfg.Window,
		minMentions: cfg.MinMentions,
		logger:      logger,
	}
}

// Recompute rebuilds trending topics from posts published inside the
// window. The previous topic set is deactivated, not deleted, so history
// stays queryable. A topic must reach the mention threshold to activate.
func (e *Engine) Recompute(ctx context.Context) error {
	since := time.Now().UTC().Add(-e.window)

	return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		stats, err := e.posts.TitleStatsSince(txCtx, since)
		if err != nil {
			return fmt.Errorf("load posts in window: %w", err)
		}

		bySource := collectKeywords(stats)

		if err := e.topics.DeactivateAll(txCtx); err != nil {
			return fmt.Errorf("deactivate topics: %w", err)
		}

		now := time.Now().UTC()
		active := 0

		for source, counts := range bySource {
			for _, kc := range counts.top(topicsPerSource) {
				if kc.count < e.minMentions {
					continue
				}

				topic := &domain.TrendingTopic{
					Source:        source,
					Topic:         kc.keyword,
					MentionCount:  kc.count,
					AvgEngagement: round1(kc.engagementSum / float64(kc.count)),
					FirstSeen:     now,
					LastSeen:      now,
					IsActive:      true,
				}

				if err := e.topics.UpsertActive(txCtx, topic); err != nil {
					return fmt.Errorf("upsert topic %s/%s: %w", source, kc.keyword, err)
				}
				active++
			}
		}

		e.logger.Debug("recomputed trending topics",
			"sources", len(bySource),
			"active_topics", active,
		)
		return nil
	})
}

type keywordCount struct {
	keyword       string
	count         int
	engagementSum float64
}

type sourceCounts struct {
	// order remembers first appearance so equal counts rank
	// deterministically.
	order []string
	byKw  map[string]*keywordCount
}

func collectKeywords(stats []domain.TitleStat) map[string]*sourceCounts {
	bySource := make(map[string]*sourceCounts)

	for _, st := range stats {
		sc := bySource[st.Source]
		if sc == nil {
			sc = &sourceCounts{byKw: make(map[string]*keywordCount)}
			bySource[st.Source] = sc
		}

		for _, kw := range ExtractKeywords(st.Title) {
			kc := sc.byKw[kw]
			if kc == nil {
				kc = &keywordCount{keyword: kw}
				sc.byKw[kw] = kc
				sc.order = append(sc.order, kw)
			}
			kc.count++
			kc.engagementSum += st.EngagementScore
		}
	}
	return bySource
}

// top returns the n most frequent keywords, ties kept in first-appearance
// order.
func (sc *sourceCounts) top(n int) []*keywordCount {
	ranked := make([]*keywordCount, 0, len(sc.order))
	for _, kw := range sc.order {
		ranked = append(ranked, sc.byKw[kw])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].count > ranked[j].count
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
