// Package news collects recent headlines per asset and ranks them as
// potential catalysts.
package news

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

// ErrUnavailable is returned when every configured source failed.
var ErrUnavailable = errors.New("catalysts unavailable")

// Source is a single headline provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol, name string) ([]models.CatalystItem, error)
}

// impactKeywords weight headline terms. Matching is case-insensitive and the
// strongest match wins.
var impactKeywords = []struct {
	term   string
	weight float64
}{
	{"listing", 3},
	{"lists", 3},
	{"listed", 3},
	{"etf", 3},
	{"acquisition", 2.5},
	{"partnership", 2.5},
	{"partners", 2.5},
	{"mainnet", 2},
	{"launch", 2},
	{"hack", 2},
	{"exploit", 2},
	{"airdrop", 1.5},
	{"upgrade", 1.5},
	{"integration", 1.5},
	{"burn", 1},
	{"roadmap", 1},
}

// Impact scores a headline from 1 (plain mention) upwards.
func Impact(title string) float64 {
	lower := strings.ToLower(title)
	best := 1.0
	for _, kw := range impactKeywords {
		if kw.weight > best && strings.Contains(lower, kw.term) {
			best = kw.weight
		}
	}
	return best
}

// Rank sorts items by impact, then engagement, then recency, all descending.
func Rank(items []models.CatalystItem) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		if a.Engagement != b.Engagement {
			return a.Engagement > b.Engagement
		}
		return a.PublishedAt.After(b.PublishedAt)
	})
}

// Collector merges every source's headlines for an asset.
type Collector struct {
	sources []Source
	maxAge  time.Duration
	now     func() time.Time
}

// NewCollector drops headlines older than maxAge (0 keeps everything).
func NewCollector(maxAge time.Duration, sources ...Source) *Collector {
	var kept []Source
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Collector{sources: kept, maxAge: maxAge, now: time.Now}
}

func (c *Collector) Enabled() bool {
	return c != nil && len(c.sources) > 0
}

// FetchCatalysts returns ranked headlines; item 0 is the best catalyst.
// An empty result with no error means nothing notable was found.
func (c *Collector) FetchCatalysts(ctx context.Context, symbol, name string) ([]models.CatalystItem, error) {
	if !c.Enabled() {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		items    []models.CatalystItem
		failures int
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range c.sources {
		src := src
		g.Go(func() error {
			got, err := src.Fetch(gctx, symbol, name)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("News source %s failed for %s: %v", src.Name(), symbol, err)
				failures++
				return nil
			}
			items = append(items, got...)
			return nil
		})
	}
	_ = g.Wait()

	if failures == len(c.sources) {
		return nil, fmt.Errorf("%w for %s", ErrUnavailable, symbol)
	}

	items = c.filter(items)
	Rank(items)
	return items, nil
}

func (c *Collector) filter(items []models.CatalystItem) []models.CatalystItem {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	cutoff := time.Time{}
	if c.maxAge > 0 {
		cutoff = c.now().Add(-c.maxAge)
	}
	for _, it := range items {
		if strings.TrimSpace(it.Title) == "" {
			continue
		}
		if !cutoff.IsZero() && !it.PublishedAt.IsZero() && it.PublishedAt.Before(cutoff) {
			continue
		}
		key := it.URL
		if key == "" {
			key = strings.ToLower(it.Title)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
