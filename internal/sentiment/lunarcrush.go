package sentiment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
)

const LunarCrushBaseURL = "https://lunarcrush.com/api4"

// LunarCrush reads the Galaxy Score (0-100) and social activity for a coin.
type LunarCrush struct {
	http *httpclient.Client
}

type lunarCoinResponse struct {
	Data struct {
		GalaxyScore  *float64 `json:"galaxy_score"`
		SocialVolume *float64 `json:"social_volume_24h"`
		Interactions *float64 `json:"interactions_24h"`
	} `json:"data"`
}

// NewLunarCrush expects hc to carry the bearer token header.
func NewLunarCrush(hc *httpclient.Client) *LunarCrush {
	return &LunarCrush{http: hc}
}

// BearerHeaders builds the authorization header for an API key.
func BearerHeaders(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

func (l *LunarCrush) Name() string { return "lunarcrush" }

func (l *LunarCrush) Fetch(ctx context.Context, symbol string) (Reading, error) {
	var resp lunarCoinResponse
	path := "/public/coins/" + url.PathEscape(strings.ToLower(symbol)) + "/v1"
	if err := l.http.GetJSON(ctx, path, nil, &resp); err != nil {
		return Reading{}, fmt.Errorf("lunarcrush %s: %w", symbol, err)
	}

	var r Reading
	if resp.Data.GalaxyScore != nil {
		r.Score = score(*resp.Data.GalaxyScore / 100)
	}
	if resp.Data.SocialVolume != nil {
		r.Mentions = int(*resp.Data.SocialVolume)
	}
	if resp.Data.Interactions != nil {
		r.Engagement = *resp.Data.Interactions
	}
	return r, nil
}
