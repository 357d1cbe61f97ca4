package scanner

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/cryptoscan/internal/indicators"
	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/metrics"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

// Tier 2 rejection reasons.
const (
	ReasonSuppressed           = "suppressed"
	ReasonSentimentUnavailable = "sentiment_unavailable"
	ReasonSentiment            = "sentiment"
	ReasonMentions             = "mentions"
	ReasonEngagement           = "engagement"
	ReasonInfluencer           = "influencer"
	ReasonMeme                 = "meme"
)

// Tier2Config wires the deep scorer. Nil providers disable their feature.
type Tier2Config struct {
	Thresholds models.FilterThresholds
	Params     indicators.Params
	Score      ScoreParams
	Risk       RiskParams

	// Refiner supplies higher-resolution history; RefineBars is the lookback.
	Refiner    HistoryProvider
	RefineBars int

	Sentiment SentimentProvider
	Catalysts CatalystProvider
	Dedup     Suppressor
	Metrics   *metrics.Registry
	Workers   int
	Now       func() time.Time
}

// Tier2 re-checks indicators against the stricter Tier 2 bands, enriches
// Tier 1 results with sentiment and catalysts, applies the social gates,
// scores, and claims symbols in the duplicate cache.
type Tier2 struct {
	cfg Tier2Config
}

func NewTier2(cfg Tier2Config) *Tier2 {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.RefineBars <= 0 {
		cfg.RefineBars = 2 * cfg.Params.MinBars()
	}
	return &Tier2{cfg: cfg}
}

// Run evaluates candidates concurrently, orders the survivors by engagement
// then 24h volume, and claims up to MaxAlertsPerScan symbols. Only claimed
// candidates are returned.
func (t *Tier2) Run(ctx context.Context, candidates []models.ScanResult) []models.AlertCandidate {
	type outcome struct {
		alert models.AlertCandidate
		rej   *Rejection
	}
	outcomes := make([]outcome, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Workers)
	for i := range candidates {
		i := i
		g.Go(func() error {
			outcomes[i].alert, outcomes[i].rej = t.Evaluate(gctx, candidates[i])
			return nil
		})
	}
	_ = g.Wait()

	var accepted []models.AlertCandidate
	for _, o := range outcomes {
		if o.rej == nil {
			accepted = append(accepted, o.alert)
			continue
		}
		if o.rej.Reason == ReasonSuppressed {
			t.cfg.Metrics.IncSuppressed()
		} else {
			t.cfg.Metrics.Reject("tier2", o.rej.Reason)
		}
		logger.Debug("Tier 2: %v", o.rej)
	}

	SortByAttention(accepted)

	limit := t.cfg.Thresholds.MaxAlertsPerScan
	var claimed []models.AlertCandidate
	for _, a := range accepted {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		if t.cfg.Dedup != nil && !t.cfg.Dedup.TryMark(ctx, a.Symbol()) {
			t.cfg.Metrics.IncSuppressed()
			logger.Debug("Tier 2: %s claimed elsewhere, skipping", a.Symbol())
			continue
		}
		claimed = append(claimed, a)
	}
	t.cfg.Metrics.AddTier2(len(claimed))
	return claimed
}

// SortByAttention orders candidates by sentiment engagement, then 24h
// volume, both descending. Ties keep their input order.
func SortByAttention(cands []models.AlertCandidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Sentiment.Engagement != b.Sentiment.Engagement {
			return a.Sentiment.Engagement > b.Sentiment.Engagement
		}
		return a.Snapshot.Volume24h > b.Snapshot.Volume24h
	})
}

// Evaluate enriches and scores one candidate without claiming it.
func (t *Tier2) Evaluate(ctx context.Context, r models.ScanResult) (models.AlertCandidate, *Rejection) {
	symbol := r.Symbol()
	if t.cfg.Dedup != nil && t.cfg.Dedup.ShouldSuppress(ctx, symbol) {
		return models.AlertCandidate{}, &Rejection{symbol, ReasonSuppressed, "alerted within suppression window"}
	}

	refined := false
	if ind, ok := t.refine(ctx, r); ok {
		r.Indicators = ind
		refined = true
	}
	if rej := tier2Gates(t.cfg.Thresholds).check(symbol, r.Indicators); rej != nil {
		if refined {
			rej.Detail = "refined " + rej.Detail
		}
		return models.AlertCandidate{}, rej
	}

	sentiment, sentimentOn, err := t.fetchSentiment(ctx, symbol)
	if err != nil {
		return models.AlertCandidate{}, &Rejection{symbol, ReasonSentimentUnavailable, err.Error()}
	}
	if rej := t.socialGates(r.Snapshot, sentiment, sentimentOn); rej != nil {
		return models.AlertCandidate{}, rej
	}

	return models.AlertCandidate{
		ScanResult: r,
		Sentiment:  sentiment,
		Catalyst:   t.fetchCatalysts(ctx, r.Snapshot),
		Score:      ScoreCandidate(r, sentiment, t.cfg.Thresholds, t.cfg.Score),
		Risk:       ComputeRisk(r.Snapshot.Price, r.Indicators, t.cfg.Risk),
		Refined:    refined,
		CreatedAt:  t.cfg.Now(),
	}, nil
}

// refine recomputes indicators from the higher-resolution provider. Tier 1
// values are kept when the provider fails or returns too little history.
func (t *Tier2) refine(ctx context.Context, r models.ScanResult) (models.IndicatorSet, bool) {
	if t.cfg.Refiner == nil {
		return models.IndicatorSet{}, false
	}
	symbol := r.Symbol()
	candles, err := t.cfg.Refiner.FetchHistory(ctx, r.Snapshot, t.cfg.RefineBars)
	if err != nil {
		logger.Debug("Refinement for %s unavailable, using Tier 1 indicators: %v", symbol, err)
		return models.IndicatorSet{}, false
	}
	ind, err := indicators.Compute(candles, r.Snapshot.Volume24h, t.cfg.Params)
	if err != nil {
		logger.Debug("Refinement for %s skipped: %v", symbol, err)
		return models.IndicatorSet{}, false
	}
	return ind, true
}

// fetchSentiment reports whether sentiment gating is active. It is inactive
// when no provider is configured or no provider produced a score; an error
// from a configured provider rejects the asset.
func (t *Tier2) fetchSentiment(ctx context.Context, symbol string) (models.SentimentSummary, bool, error) {
	if t.cfg.Sentiment == nil {
		return models.SentimentSummary{Label: models.SentimentNeutral}, false, nil
	}
	s, err := t.cfg.Sentiment.FetchSentiment(ctx, symbol)
	if err != nil {
		return models.SentimentSummary{}, false, fmt.Errorf("sentiment: %w", err)
	}
	return s, s.Available, nil
}

func (t *Tier2) fetchCatalysts(ctx context.Context, snap models.MarketSnapshot) models.CatalystSummary {
	if t.cfg.Catalysts == nil {
		return models.CatalystSummary{}
	}
	items, err := t.cfg.Catalysts.FetchCatalysts(ctx, snap.Symbol, snap.Name)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("Catalysts for %s unavailable: %v", snap.Symbol, err)
		}
		return models.CatalystSummary{}
	}
	if len(items) == 0 {
		return models.CatalystSummary{}
	}
	best := items[0]
	return models.CatalystSummary{Best: &best, Count: len(items)}
}

func (t *Tier2) socialGates(snap models.MarketSnapshot, s models.SentimentSummary, sentimentOn bool) *Rejection {
	th := t.cfg.Thresholds
	symbol := snap.Symbol

	if sentimentOn {
		switch {
		case s.Score < th.SentimentMin:
			return &Rejection{symbol, ReasonSentiment, fmt.Sprintf("sentiment %.2f below %g", s.Score, th.SentimentMin)}
		case s.Mentions < th.MentionsMin:
			return &Rejection{symbol, ReasonMentions, fmt.Sprintf("%d mentions below %d", s.Mentions, th.MentionsMin)}
		case s.Engagement < th.EngagementMin:
			return &Rejection{symbol, ReasonEngagement, fmt.Sprintf("engagement %g below %g", s.Engagement, th.EngagementMin)}
		case th.RequireInfluencer && !s.InfluencerHit:
			return &Rejection{symbol, ReasonInfluencer, "no influencer mention"}
		}
	}

	if IsMeme(snap, th.MemeKeywords) {
		if snap.Volume24h <= th.VolumeMin {
			return &Rejection{symbol, ReasonMeme, fmt.Sprintf("meme asset volume %g not above %g", snap.Volume24h, th.VolumeMin)}
		}
		if !sentimentOn || s.Score < th.SentimentMin {
			return &Rejection{symbol, ReasonMeme, "meme asset without confirmed sentiment"}
		}
	}
	return nil
}

// IsMeme reports whether the asset's name or symbol contains a meme keyword.
func IsMeme(snap models.MarketSnapshot, keywords []string) bool {
	name := strings.ToLower(snap.Name)
	symbol := strings.ToLower(snap.Symbol)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(name, kw) || strings.Contains(symbol, kw) {
			return true
		}
	}
	return false
}
