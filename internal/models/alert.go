package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentiment labels derived from the aggregated score.
const (
	SentimentBullish = "Bullish"
	SentimentNeutral = "Neutral"
	SentimentBearish = "Bearish"
)

// Confidence labels for the AI score.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

type SentimentSummary struct {
	Available     bool               `json:"available"`
	Score         float64            `json:"score"`
	Label         string             `json:"label"`
	Mentions      int                `json:"mentions"`
	Engagement    float64            `json:"engagement"`
	InfluencerHit bool               `json:"influencer_hit"`
	Sources       map[string]float64 `json:"sources,omitempty"`
}

type CatalystItem struct {
	Source      string    `json:"source"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Impact      float64   `json:"impact"`
	Engagement  float64   `json:"engagement"`
	PublishedAt time.Time `json:"published_at"`
}

// CatalystSummary carries the best-ranked catalyst, if any.
type CatalystSummary struct {
	Best  *CatalystItem `json:"best,omitempty"`
	Count int           `json:"count"`
}

// Summary renders the catalyst as `source: "title"`.
func (c CatalystSummary) Summary() string {
	if c.Best == nil {
		return "No strong catalyst detected."
	}
	source := c.Best.Source
	if source == "" {
		source = "News"
	}
	title := c.Best.Title
	if title == "" {
		title = "Update"
	}
	return source + ": \"" + title + "\""
}

type AIScore struct {
	Score      float64  `json:"score"`
	Confidence string   `json:"confidence"`
	Narrative  string   `json:"narrative"`
	Reasons    []string `json:"reasons"`
}

type RiskPanel struct {
	Entry        float64 `json:"entry"`
	StopLoss     float64 `json:"stop_loss"`
	TakeProfit   float64 `json:"take_profit"`
	PositionSize float64 `json:"position_size"`
	Notional     float64 `json:"notional"`
	ATRBased     bool    `json:"atr_based"`
}

// AlertCandidate is a Tier 2 accepted result, ready for the notifier.
type AlertCandidate struct {
	ScanResult
	Sentiment SentimentSummary `json:"sentiment"`
	Catalyst  CatalystSummary  `json:"catalyst"`
	Score     AIScore          `json:"ai_score"`
	Risk      RiskPanel        `json:"risk"`
	Refined   bool             `json:"refined"`
	CreatedAt time.Time        `json:"created_at"`
}

type AlertRecord struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
	Notified  bool      `json:"notified"`
	Payload   []byte    `json:"payload,omitempty"`
}

// NewAlertRecord builds the persisted form of a candidate with a fresh ID.
func NewAlertRecord(c AlertCandidate, notified bool) (AlertRecord, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("failed to marshal alert payload: %w", err)
	}
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return AlertRecord{
		ID:        uuid.New().String(),
		Symbol:    c.Symbol(),
		Timestamp: created,
		Score:     c.Score.Score,
		Notified:  notified,
		Payload:   payload,
	}, nil
}
