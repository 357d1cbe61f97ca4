package sentiment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
)

const SantimentBaseURL = "https://api.santiment.net"

const santimentQuery = `query($slug: String!, $from: DateTime!, $to: DateTime!) {
  sentiment: getMetric(metric: "sentiment_weighted_total") {
    timeseriesData(slug: $slug, from: $from, to: $to, interval: "1d") { value }
  }
  volume: getMetric(metric: "social_volume_total") {
    timeseriesData(slug: $slug, from: $from, to: $to, interval: "1d") { value }
  }
}`

// Santiment reads weighted sentiment (roughly -1..1) and social volume.
type Santiment struct {
	http  *httpclient.Client
	slugs map[string]string
	now   func() time.Time
}

type santimentRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type santimentPoint struct {
	Value *float64 `json:"value"`
}

type santimentResponse struct {
	Data struct {
		Sentiment struct {
			TimeseriesData []santimentPoint `json:"timeseriesData"`
		} `json:"sentiment"`
		Volume struct {
			TimeseriesData []santimentPoint `json:"timeseriesData"`
		} `json:"volume"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// NewSantiment creates the source. slugs maps uppercase tickers to Santiment
// project slugs; unmapped tickers fall back to the lowercase ticker.
func NewSantiment(hc *httpclient.Client, slugs map[string]string) *Santiment {
	normalized := make(map[string]string, len(slugs))
	for k, v := range slugs {
		normalized[strings.ToUpper(k)] = v
	}
	return &Santiment{http: hc, slugs: normalized, now: time.Now}
}

// APIKeyHeaders builds the Santiment authorization header.
func APIKeyHeaders(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Apikey " + apiKey}
}

func (s *Santiment) Name() string { return "santiment" }

func (s *Santiment) slug(symbol string) string {
	if slug, ok := s.slugs[strings.ToUpper(symbol)]; ok {
		return slug
	}
	return strings.ToLower(symbol)
}

func (s *Santiment) Fetch(ctx context.Context, symbol string) (Reading, error) {
	to := s.now().UTC()
	req := httpclient.Request{
		Method: http.MethodPost,
		Path:   "/graphql",
		Body: santimentRequest{
			Query: santimentQuery,
			Variables: map[string]interface{}{
				"slug": s.slug(symbol),
				"from": to.Add(-24 * time.Hour).Format(time.RFC3339),
				"to":   to.Format(time.RFC3339),
			},
		},
	}
	var resp santimentResponse
	if err := s.http.Do(ctx, req, &resp); err != nil {
		return Reading{}, fmt.Errorf("santiment %s: %w", symbol, err)
	}
	if len(resp.Errors) > 0 {
		return Reading{}, fmt.Errorf("santiment %s: %s", symbol, resp.Errors[0].Message)
	}

	var r Reading
	if v, ok := lastValue(resp.Data.Sentiment.TimeseriesData); ok {
		r.Score = score((v + 1) / 2)
	}
	if v, ok := lastValue(resp.Data.Volume.TimeseriesData); ok {
		r.Mentions = int(v)
	}
	return r, nil
}

func lastValue(points []santimentPoint) (float64, bool) {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Value != nil {
			return *points[i].Value, true
		}
	}
	return 0, false
}
