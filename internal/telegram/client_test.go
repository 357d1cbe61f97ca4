package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/cryptoscan/internal/models"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	failures int
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func (f *fakeBot) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeBot) StopReceivingUpdates() {}

type staticStatus string

func (s staticStatus) Status(context.Context) string { return string(s) }

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{`back\slash`, `back\\slash`},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestEscapeLinkURL(t *testing.T) {
	got := escapeLinkURL(`https://x.test/a_(b)\c`)
	want := `https://x.test/a_(b\)\\c`
	if got != want {
		t.Errorf("escapeLinkURL = %q, want %q", got, want)
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second, Formatter{})
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestNotify_RetriesThenSucceeds(t *testing.T) {
	fb := &fakeBot{failures: 2}
	c := newClient(fb, 42, 3, time.Millisecond, Formatter{})

	if err := c.Notify(context.Background(), sampleCandidate()); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(fb.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fb.sent))
	}
	msg := fb.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("unexpected message config: chat=%d mode=%q", msg.ChatID, msg.ParseMode)
	}
	if !strings.Contains(msg.Text, "New Signal: $ALP") {
		t.Errorf("alert text missing header: %q", msg.Text)
	}
}

func TestNotify_GivesUp(t *testing.T) {
	fb := &fakeBot{failures: 10}
	c := newClient(fb, 42, 2, time.Millisecond, Formatter{})
	if err := c.Notify(context.Background(), sampleCandidate()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if fb.failures != 8 {
		t.Errorf("made %d attempts, want 2", 10-fb.failures)
	}
}

func TestNotify_CancelledDuringBackoff(t *testing.T) {
	fb := &fakeBot{failures: 10}
	c := newClient(fb, 42, 5, time.Hour, Formatter{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Notify(ctx, sampleCandidate())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSendErrorAndRecovery(t *testing.T) {
	fb := &fakeBot{}
	c := newClient(fb, 1, 1, time.Millisecond, Formatter{})
	ctx := context.Background()

	if err := c.SendError(ctx, errors.New("coingecko: 503")); err != nil {
		t.Fatalf("SendError: %v", err)
	}
	if err := c.SendRecovery(ctx, 3); err != nil {
		t.Fatalf("SendRecovery: %v", err)
	}
	if !strings.Contains(fb.sent[0].Text, "coingecko: 503") {
		t.Errorf("error text = %q", fb.sent[0].Text)
	}
	if !strings.Contains(fb.sent[1].Text, "after 3 consecutive") {
		t.Errorf("recovery text = %q", fb.sent[1].Text)
	}
}

func commandMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		Text: text,
		Chat: &tgbotapi.Chat{ID: 7},
		Entities: []tgbotapi.MessageEntity{
			{Type: "bot_command", Offset: 0, Length: len(text)},
		},
	}
}

func TestHandleCommand(t *testing.T) {
	fb := &fakeBot{}
	c := newClient(fb, 1, 1, time.Millisecond, Formatter{})
	ctx := context.Background()

	c.handleCommand(ctx, commandMessage("/ping"))
	c.handleCommand(ctx, commandMessage("/status"))
	c.SetStatusProvider(staticStatus("last scan: 3 alerts"))
	c.handleCommand(ctx, commandMessage("/status"))
	c.handleCommand(ctx, commandMessage("/unknown"))

	var texts []string
	for _, m := range fb.sent {
		texts = append(texts, m.Text)
		if m.ChatID != 7 {
			t.Errorf("reply sent to chat %d, want 7", m.ChatID)
		}
	}
	want := []string{"Pong", "Status unavailable", "last scan: 3 alerts"}
	if strings.Join(texts, "|") != strings.Join(want, "|") {
		t.Errorf("replies = %q, want %q", texts, want)
	}
}

func sampleCandidate() models.AlertCandidate {
	return models.AlertCandidate{
		ScanResult: models.ScanResult{
			Snapshot: models.MarketSnapshot{
				ID: "alpha", Symbol: "ALP", Name: "Alpha",
				Price: 1.25, PriceChangePct24h: 5.5,
				Volume24h: 40_000_000, MarketCap: 500_000_000,
			},
		},
		Sentiment: models.SentimentSummary{
			Available: true, Score: 0.72, Label: models.SentimentBullish,
			Sources: map[string]float64{"reddit": 0.6, "lunarcrush": 0.84},
		},
		Catalyst: models.CatalystSummary{
			Best:  &models.CatalystItem{Source: "CoinDesk", Title: "Alpha lists on Binance", URL: "https://coindesk.test/alpha"},
			Count: 3,
		},
		Score: models.AIScore{Score: 8.5, Confidence: models.ConfidenceHigh, Narrative: "RSI 61.8 in band; EMA 5>13>50"},
		Risk: models.RiskPanel{
			StopLoss: 1.1, TakeProfit: 1.55, PositionSize: 666.6667, Notional: 833.33, ATRBased: true,
		},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}
}
