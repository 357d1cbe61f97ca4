package telegram

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

const (
	DefaultTradingViewBase = "https://www.tradingview.com/symbols"
	defaultNewsURL         = "https://news.google.com/"
)

// Formatter renders alerts as MarkdownV2 text.
type Formatter struct {
	TradingViewBase string
	Location        *time.Location
}

// FormatMoney abbreviates a dollar amount with K/M/B suffixes.
func FormatMoney(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.2fK", v/1e3)
	default:
		return fmt.Sprintf("$%.2f", v)
	}
}

// FormatAlert renders one candidate.
func (f Formatter) FormatAlert(c models.AlertCandidate) string {
	symbol := c.Symbol()
	var b strings.Builder

	fmt.Fprintf(&b, "🚨 *New Signal: %s*\n\n", escapeMarkdownV2("$"+symbol))

	fmt.Fprintf(&b, "📈 Price: %s \\| Change: %s\n",
		escapeMarkdownV2(fmt.Sprintf("$%.6f", c.Snapshot.Price)),
		escapeMarkdownV2(fmt.Sprintf("%+.2f%%", c.Snapshot.PriceChangePct24h)))

	score := escapeMarkdownV2(fmt.Sprintf("%.1f/10", c.Score.Score))
	if c.Score.Confidence != "" {
		fmt.Fprintf(&b, "📊 AI Score: %s \\(%s Confidence\\)\n", score, escapeMarkdownV2(c.Score.Confidence))
	} else {
		fmt.Fprintf(&b, "📊 AI Score: %s\n", score)
	}

	reason := c.Score.Narrative
	if reason == "" {
		reason = "Signal detected"
	}
	fmt.Fprintf(&b, "🧠 Reason: \"%s\"\n", escapeMarkdownV2(reason))

	stopKind := "ATR"
	if !c.Risk.ATRBased {
		stopKind = "fixed"
	}
	fmt.Fprintf(&b, "📍 Risk: SL \\= %s \\| TP \\= %s \\| Position Size: %s \\(%s\\)\n",
		escapeMarkdownV2(fmt.Sprintf("$%.6f", c.Risk.StopLoss)),
		escapeMarkdownV2(fmt.Sprintf("$%.6f", c.Risk.TakeProfit)),
		escapeMarkdownV2(fmt.Sprintf("%.4f units, %s", c.Risk.PositionSize, FormatMoney(c.Risk.Notional))),
		escapeMarkdownV2(stopKind))

	fmt.Fprintf(&b, "📡 Sentiment: %s\n", escapeMarkdownV2(sentimentLine(c.Sentiment)))
	fmt.Fprintf(&b, "📰 Catalyst: %s\n\n", escapeMarkdownV2(c.Catalyst.Summary()))

	fmt.Fprintf(&b, "🔗 [TradingView Chart](%s)\n", escapeLinkURL(f.tradingViewURL(symbol)))
	newsURL := defaultNewsURL
	if c.Catalyst.Best != nil && c.Catalyst.Best.URL != "" {
		newsURL = c.Catalyst.Best.URL
	}
	fmt.Fprintf(&b, "🔗 [News Source](%s)\n", escapeLinkURL(newsURL))
	fmt.Fprintf(&b, "🔗 [Reddit Thread](%s)\n\n", escapeLinkURL(redditURL(symbol)))

	fmt.Fprintf(&b, "🕒 %s", escapeMarkdownV2(f.timestamp(c.CreatedAt)))
	return b.String()
}

func (f Formatter) tradingViewURL(symbol string) string {
	base := f.TradingViewBase
	if base == "" {
		base = DefaultTradingViewBase
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(symbol) + "USD/"
}

func (f Formatter) timestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	loc := f.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04 MST")
}

func redditURL(symbol string) string {
	return "https://www.reddit.com/search/?q=" + url.QueryEscape("$"+symbol)
}

func sentimentLine(s models.SentimentSummary) string {
	if !s.Available {
		return "n/a"
	}
	label := s.Label
	if label == "" {
		label = models.SentimentNeutral
	}
	if len(s.Sources) == 0 {
		return label
	}
	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%s %.2f (%s)", label, s.Score, strings.Join(names, " + "))
}
