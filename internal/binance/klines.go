// Package binance provides 15-minute kline history used to refine Tier 2
// candidates.
package binance

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/models"
)

const defaultTimeout = 15 * time.Second

// Binance error codes worth another attempt. Code 0 means the body was not
// a Binance error document, typically a gateway 5xx page.
const (
	codeUnparsed     = 0
	codeUnknown      = -1000
	codeDisconnected = -1001
	codeTooMany      = -1003
	codeTimeout      = -1007
	codeOverloaded   = -1008
)

// Options configures the kline source.
type Options struct {
	// BaseURL overrides the REST endpoint; empty keeps the library default.
	BaseURL        string
	Interval       string
	QuoteAsset     string
	RequestsPerSec float64
	// Timeout bounds each attempt; zero means 15s.
	Timeout  time.Duration
	Retry    httpclient.RetryPolicy
	Observer httpclient.Observer
	// Now is used to spot the still-open last kline; nil means time.Now.
	Now func() time.Time
}

// KlineSource fetches candles for <SYMBOL><QUOTE> pairs.
type KlineSource struct {
	client   *binance.Client
	interval string
	quote    string
	limiter  *rate.Limiter
	timeout  time.Duration
	policy   httpclient.RetryPolicy
	observer httpclient.Observer
	now      func() time.Time
}

func NewKlineSource(opts Options) *KlineSource {
	// Public market data needs no credentials.
	client := binance.NewClient("", "")
	if opts.BaseURL != "" {
		client.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.Interval == "" {
		opts.Interval = "15m"
	}
	if opts.QuoteAsset == "" {
		opts.QuoteAsset = "USDT"
	}
	s := &KlineSource{
		client:   client,
		interval: opts.Interval,
		quote:    strings.ToUpper(opts.QuoteAsset),
		timeout:  opts.Timeout,
		policy:   opts.Retry.WithDefaults(),
		observer: opts.Observer,
		now:      opts.Now,
	}
	if s.timeout <= 0 {
		s.timeout = defaultTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.RequestsPerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSec), 1)
	}
	return s
}

// Pair returns the exchange symbol for a canonical ticker.
func (s *KlineSource) Pair(symbol string) string {
	return strings.ToUpper(symbol) + s.quote
}

// FetchHistory returns up to lookback closed candles (max 1000) for snap,
// oldest first. A kline still open at call time is dropped, so the result
// may hold one candle fewer than requested.
func (s *KlineSource) FetchHistory(ctx context.Context, snap models.MarketSnapshot, lookback int) ([]models.Candle, error) {
	if lookback <= 0 {
		return nil, nil
	}
	if lookback > 1000 {
		lookback = 1000
	}

	pair := s.Pair(snap.Symbol)
	klines, err := s.fetchKlines(ctx, pair, lookback)
	if err != nil {
		return nil, err
	}
	if n := len(klines); n > 0 && klines[n-1].CloseTime > s.now().UnixMilli() {
		klines = klines[:n-1]
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		c, err := toCandle(k)
		if err != nil {
			s.observe("malformed")
			return nil, fmt.Errorf("kline for %s: %w: %v", pair, httpclient.ErrMalformed, err)
		}
		candles = append(candles, c)
	}
	s.observe("ok")
	return candles, nil
}

func (s *KlineSource) fetchKlines(ctx context.Context, pair string, limit int) ([]*binance.Kline, error) {
	b := s.policy.NewBackOff()
	for attempt := 1; ; attempt++ {
		klines, err := s.attempt(ctx, pair, limit)
		if err == nil {
			return klines, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("failed to fetch klines for %s: %w", pair, ctx.Err())
		}
		if !s.retryable(err) {
			s.observe("error")
			return nil, fmt.Errorf("failed to fetch klines for %s: %w", pair, err)
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			s.observe("exhausted")
			return nil, fmt.Errorf("failed to fetch klines for %s: %w after %d attempts: %v", pair, httpclient.ErrTransient, attempt, err)
		}
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeTooMany {
			s.observe("rate_limited")
		} else {
			s.observe("retry")
		}
		logger.Debug("binance klines %s attempt %d failed (%v), retrying in %v", pair, attempt, err, wait)
		if err := sleepContext(ctx, wait); err != nil {
			return nil, fmt.Errorf("failed to fetch klines for %s: %w", pair, err)
		}
	}
}

func (s *KlineSource) attempt(ctx context.Context, pair string, limit int) ([]*binance.Kline, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.client.NewKlinesService().
		Symbol(pair).
		Interval(s.interval).
		Limit(limit).
		Do(actx)
}

func (s *KlineSource) retryable(err error) bool {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case codeUnparsed, codeUnknown, codeDisconnected, codeTooMany, codeTimeout, codeOverloaded:
			return true
		}
		return false
	}
	return s.policy.Retryable(err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toCandle(k *binance.Kline) (models.Candle, error) {
	var c models.Candle
	values := []struct {
		raw string
		dst *float64
	}{
		{k.Open, &c.Open},
		{k.High, &c.High},
		{k.Low, &c.Low},
		{k.Close, &c.Close},
		{k.Volume, &c.Volume},
	}
	for _, v := range values {
		f, err := strconv.ParseFloat(v.raw, 64)
		if err != nil {
			return models.Candle{}, err
		}
		*v.dst = f
	}
	c.OpenTime = time.UnixMilli(k.OpenTime).UTC()
	return c, nil
}

func (s *KlineSource) observe(outcome string) {
	if s.observer != nil {
		s.observer.ProviderRequest("binance", outcome)
	}
}
