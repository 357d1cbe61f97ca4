// Package sentiment aggregates social sentiment from several providers into
// one normalized summary per asset.
package sentiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

// ErrUnavailable is returned when sources are configured but none answered.
var ErrUnavailable = errors.New("sentiment unavailable")

// Reading is one provider's view of an asset. Score is normalized to [0,1]
// and is nil when the provider had no opinion.
type Reading struct {
	Source        string
	Score         *float64
	Mentions      int
	Engagement    float64
	InfluencerHit bool
}

// Source is a single sentiment provider.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (Reading, error)
}

// Aggregator averages normalized scores across sources.
type Aggregator struct {
	sources []Source
}

func NewAggregator(sources ...Source) *Aggregator {
	var kept []Source
	for _, s := range sources {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Aggregator{sources: kept}
}

// Enabled reports whether any source is configured.
func (a *Aggregator) Enabled() bool {
	return a != nil && len(a.sources) > 0
}

// Sources lists the configured source names.
func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

// FetchSentiment queries every source concurrently. A failing source is
// logged and left out; the call fails only when every source failed.
// With no sources configured, or when the sources that answered carry no
// score, the summary is returned with Available=false and a nil error.
func (a *Aggregator) FetchSentiment(ctx context.Context, symbol string) (models.SentimentSummary, error) {
	if !a.Enabled() {
		return models.SentimentSummary{Label: models.SentimentNeutral}, nil
	}

	var (
		mu       sync.Mutex
		readings []Reading
		failures []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range a.sources {
		src := src
		g.Go(func() error {
			r, err := src.Fetch(gctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Warn("Sentiment source %s failed for %s: %v", src.Name(), symbol, err)
				failures = append(failures, src.Name())
				return nil
			}
			r.Source = src.Name()
			readings = append(readings, r)
			return nil
		})
	}
	_ = g.Wait()

	if len(readings) == 0 {
		return models.SentimentSummary{}, fmt.Errorf("%w for %s: %s failed", ErrUnavailable, symbol, strings.Join(failures, ", "))
	}
	sort.Slice(readings, func(i, j int) bool { return readings[i].Source < readings[j].Source })
	summary := Aggregate(readings)
	if !summary.Available {
		logger.Debug("No sentiment score for %s from %d source(s)", symbol, len(readings))
	}
	return summary, nil
}

// Aggregate combines readings: scores are averaged, mentions and engagement
// summed, and the influencer flag is set if any source saw one.
func Aggregate(readings []Reading) models.SentimentSummary {
	summary := models.SentimentSummary{
		Label:   models.SentimentNeutral,
		Sources: make(map[string]float64),
	}
	var total float64
	var n int
	for _, r := range readings {
		summary.Mentions += r.Mentions
		summary.Engagement += r.Engagement
		summary.InfluencerHit = summary.InfluencerHit || r.InfluencerHit
		if r.Score == nil {
			continue
		}
		s := clamp01(*r.Score)
		summary.Sources[r.Source] = s
		total += s
		n++
	}
	if n == 0 {
		return summary
	}
	summary.Available = true
	summary.Score = total / float64(n)
	summary.Label = Label(summary.Score)
	return summary
}

// Label maps a score to Bullish, Bearish or Neutral.
func Label(score float64) string {
	switch {
	case score >= 0.6:
		return models.SentimentBullish
	case score <= 0.4:
		return models.SentimentBearish
	default:
		return models.SentimentNeutral
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func score(v float64) *float64 {
	v = clamp01(v)
	return &v
}
