package sentiment

import (
	"context"
	"fmt"
	"strings"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
)

const RedditBaseURL = "https://www.reddit.com"

// RedditEngagementCap is the engagement at which the Reddit score saturates.
const RedditEngagementCap = 500.0

// Reddit counts the last day's posts mentioning a ticker. The score is the
// summed upvotes and comments, capped at RedditEngagementCap.
type Reddit struct {
	http        *httpclient.Client
	influencers map[string]bool
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Author      string  `json:"author"`
				Title       string  `json:"title"`
				Score       float64 `json:"score"`
				NumComments float64 `json:"num_comments"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// NewReddit creates the source. A post by any of influencers sets the
// influencer flag.
func NewReddit(hc *httpclient.Client, influencers []string) *Reddit {
	set := make(map[string]bool, len(influencers))
	for _, name := range influencers {
		set[strings.ToLower(name)] = true
	}
	return &Reddit{http: hc, influencers: set}
}

// UserAgentHeaders returns the User-Agent Reddit requires.
func UserAgentHeaders(ua string) map[string]string {
	if ua == "" {
		ua = "cryptoscan/1.0"
	}
	return map[string]string{"User-Agent": ua}
}

func (r *Reddit) Name() string { return "reddit" }

func (r *Reddit) Fetch(ctx context.Context, symbol string) (Reading, error) {
	var listing redditListing
	query := map[string]string{
		"q":     "$" + strings.ToUpper(symbol) + " OR " + strings.ToUpper(symbol) + " crypto",
		"sort":  "new",
		"t":     "day",
		"limit": "100",
	}
	if err := r.http.GetJSON(ctx, "/search.json", query, &listing); err != nil {
		return Reading{}, fmt.Errorf("reddit %s: %w", symbol, err)
	}

	var reading Reading
	for _, child := range listing.Data.Children {
		post := child.Data
		reading.Mentions++
		reading.Engagement += post.Score + post.NumComments
		if r.influencers[strings.ToLower(post.Author)] {
			reading.InfluencerHit = true
		}
	}
	reading.Score = score(reading.Engagement / RedditEngagementCap)
	return reading, nil
}
