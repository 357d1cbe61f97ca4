package news

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

const (
	NewsAPIBaseURL     = "https://newsapi.org"
	CryptoPanicBaseURL = "https://cryptopanic.com"
)

// NewsAPI searches newsapi.org headlines.
type NewsAPI struct {
	http     *httpclient.Client
	pageSize int
}

type newsAPIResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// NewNewsAPI expects hc to carry the X-Api-Key header.
func NewNewsAPI(hc *httpclient.Client) *NewsAPI {
	return &NewsAPI{http: hc, pageSize: 20}
}

func NewsAPIHeaders(apiKey string) map[string]string {
	return map[string]string{"X-Api-Key": apiKey}
}

func (n *NewsAPI) Name() string { return "newsapi" }

func (n *NewsAPI) Fetch(ctx context.Context, symbol, name string) ([]models.CatalystItem, error) {
	q := fmt.Sprintf("%q", strings.ToUpper(symbol))
	if name != "" {
		q = fmt.Sprintf("%q OR %s", name, q)
	}
	query := map[string]string{
		"q":        q,
		"language": "en",
		"sortBy":   "publishedAt",
		"pageSize": fmt.Sprintf("%d", n.pageSize),
	}
	var resp newsAPIResponse
	if err := n.http.GetJSON(ctx, "/v2/everything", query, &resp); err != nil {
		return nil, fmt.Errorf("newsapi %s: %w", symbol, err)
	}
	if resp.Status != "" && resp.Status != "ok" {
		return nil, fmt.Errorf("newsapi %s: %s", symbol, resp.Message)
	}

	items := make([]models.CatalystItem, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		source := a.Source.Name
		if source == "" {
			source = "News"
		}
		items = append(items, models.CatalystItem{
			Source:      source,
			Title:       a.Title,
			URL:         a.URL,
			Impact:      Impact(a.Title),
			PublishedAt: a.PublishedAt,
		})
	}
	return items, nil
}

// CryptoPanic reads community-voted crypto headlines.
type CryptoPanic struct {
	http  *httpclient.Client
	token string
}

type cryptoPanicResponse struct {
	Results []struct {
		Title       string    `json:"title"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"published_at"`
		Source      struct {
			Title string `json:"title"`
		} `json:"source"`
		Votes struct {
			Positive  float64 `json:"positive"`
			Important float64 `json:"important"`
			Liked     float64 `json:"liked"`
		} `json:"votes"`
	} `json:"results"`
}

func NewCryptoPanic(hc *httpclient.Client, token string) *CryptoPanic {
	return &CryptoPanic{http: hc, token: token}
}

func (c *CryptoPanic) Name() string { return "cryptopanic" }

// Fetch returns headlines tagged with the ticker. Posts voted important get
// one extra point of impact.
func (c *CryptoPanic) Fetch(ctx context.Context, symbol, _ string) ([]models.CatalystItem, error) {
	query := map[string]string{
		"auth_token": c.token,
		"currencies": strings.ToUpper(symbol),
		"public":     "true",
	}
	var resp cryptoPanicResponse
	if err := c.http.GetJSON(ctx, "/api/v1/posts/", query, &resp); err != nil {
		return nil, fmt.Errorf("cryptopanic %s: %w", symbol, err)
	}

	items := make([]models.CatalystItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		source := r.Source.Title
		if source == "" {
			source = "CryptoPanic"
		}
		impact := Impact(r.Title)
		if r.Votes.Important > 0 {
			impact++
		}
		items = append(items, models.CatalystItem{
			Source:      source,
			Title:       r.Title,
			URL:         r.URL,
			Impact:      impact,
			Engagement:  r.Votes.Positive + r.Votes.Important + r.Votes.Liked,
			PublishedAt: r.PublishedAt,
		})
	}
	return items, nil
}
