package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/rewired-gh/cryptoscan/internal/binance"
	"github.com/rewired-gh/cryptoscan/internal/coingecko"
	"github.com/rewired-gh/cryptoscan/internal/config"
	"github.com/rewired-gh/cryptoscan/internal/dedup"
	"github.com/rewired-gh/cryptoscan/internal/httpclient"
	"github.com/rewired-gh/cryptoscan/internal/logger"
	"github.com/rewired-gh/cryptoscan/internal/metrics"
	"github.com/rewired-gh/cryptoscan/internal/news"
	"github.com/rewired-gh/cryptoscan/internal/scanner"
	"github.com/rewired-gh/cryptoscan/internal/sentiment"
	"github.com/rewired-gh/cryptoscan/internal/storage"
	"github.com/rewired-gh/cryptoscan/internal/telegram"
)

// app holds everything a scan needs, built once from the configuration.
type app struct {
	cfg      *config.Config
	location *time.Location
	metrics  *metrics.Registry
	store    *storage.Storage
	scanner  *scanner.Scanner
	telegram *telegram.Client
	closers  []func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	if configPath != "" {
		logger.Info("Configuration loaded from %s", configPath)
	}
	return cfg, nil
}

// newApp wires providers, storage, dedup and the notifier. With dryRun the
// Telegram client is not created and alerts are only logged and persisted.
func newApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New()}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return nil, err
	}
	a.location = loc

	store, err := storage.New(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	a.metrics.SetHealthCheck(store.Ping)

	cache, err := a.newDedup(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	cg := coingecko.NewClient(
		httpclient.New(cfg.CoinGecko.HTTP.Client("coingecko", cfg.CoinGecko.BaseURL, coingeckoHeaders(cfg.CoinGecko.APIKey), a.metrics)),
		coingecko.Options{
			VsCurrency: cfg.CoinGecko.VsCurrency,
			PerPage:    cfg.CoinGecko.PerPage,
			Pages:      cfg.CoinGecko.Pages,
		},
	)

	var klines *binance.KlineSource
	if cfg.Binance.Enabled {
		klines = binance.NewKlineSource(binance.Options{
			BaseURL:        cfg.Binance.BaseURL,
			Interval:       cfg.Binance.Interval,
			QuoteAsset:     cfg.Binance.QuoteAsset,
			RequestsPerSec: cfg.Binance.HTTP.RequestsPerSec,
			Timeout:        cfg.Binance.HTTP.Timeout,
			Retry:          cfg.Binance.HTTP.RetryPolicy(),
			Observer:       a.metrics,
		})
	}

	var history scanner.HistoryProvider = cg
	var refiner scanner.HistoryProvider
	switch {
	case cfg.Scanner.HistorySource == config.HistoryBinance:
		history = klines
	case klines != nil:
		refiner = klines
	}
	logger.Info("Tier 1 history from %s, Tier 2 refinement %s", cfg.Scanner.HistorySource, enabledString(refiner != nil))

	th := cfg.FilterThresholds()
	tier1 := scanner.NewTier1(th, cfg.IndicatorParams(), cfg.Scanner.Workers)
	tier2Cfg := scanner.Tier2Config{
		Thresholds: th,
		Params:     tier1.Params(),
		Score:      cfg.ScoreParams(),
		Risk:       cfg.RiskParams(),
		Refiner:    refiner,
		RefineBars: cfg.Binance.RefineBars,
		Dedup:      cache,
		Metrics:    a.metrics,
		Workers:    cfg.Scanner.Workers,
	}

	if agg := a.newSentiment(); agg.Enabled() {
		tier2Cfg.Sentiment = agg
		logger.Info("Sentiment sources: %v", agg.Sources())
	} else {
		logger.Warn("No sentiment source configured, sentiment gates disabled")
	}
	if collector := a.newNews(); collector.Enabled() {
		tier2Cfg.Catalysts = collector
	} else {
		logger.Info("No news source configured, catalysts disabled")
	}

	scanCfg := scanner.Config{
		Thresholds:   th,
		Tier1:        tier1,
		Tier2:        scanner.NewTier2(tier2Cfg),
		Markets:      cg,
		History:      history,
		Store:        store,
		Metrics:      a.metrics,
		HistoryBars:  cfg.Scanner.HistoryBars,
		FetchWorkers: cfg.Scanner.FetchWorkers,
	}

	if cfg.Telegram.Enabled && !dryRun {
		tg, err := telegram.NewClient(
			cfg.Telegram.BotToken,
			cfg.Telegram.ChatID,
			cfg.Telegram.MaxRetries,
			cfg.Telegram.RetryDelayBase,
			telegram.Formatter{TradingViewBase: cfg.Telegram.TradingViewBase, Location: loc},
		)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		a.telegram = tg
		scanCfg.Notifier = tg
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	sc, err := scanner.New(scanCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.scanner = sc
	if a.telegram != nil {
		a.telegram.SetStatusProvider(sc)
	}
	return a, nil
}

func (a *app) newDedup(ctx context.Context) (*dedup.Cache, error) {
	window := a.cfg.Thresholds.DupSuppressionWindow
	switch a.cfg.Dedup.Backend {
	case config.DedupMemory:
		logger.Info("Duplicate suppression in memory (window %v)", window)
		return dedup.New(window), nil
	case config.DedupRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Dedup.RedisAddr,
			Password: a.cfg.Dedup.RedisPassword,
			DB:       a.cfg.Dedup.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		logger.Info("Duplicate suppression in redis at %s (window %v)", a.cfg.Dedup.RedisAddr, window)
		return dedup.New(window, dedup.WithStore(dedup.NewRedisStore(client, a.cfg.Dedup.RedisPrefix))), nil
	default:
		logger.Info("Duplicate suppression in %s storage (window %v)", a.cfg.Storage.Driver, window)
		return dedup.New(window, dedup.WithStore(a.store)), nil
	}
}

func (a *app) newSentiment() *sentiment.Aggregator {
	sc := a.cfg.Sentiment
	var sources []sentiment.Source
	if sc.LunarCrush.APIKey != "" {
		sources = append(sources, sentiment.NewLunarCrush(httpclient.New(
			sc.HTTP.Client("lunarcrush", sc.LunarCrush.BaseURL, sentiment.BearerHeaders(sc.LunarCrush.APIKey), a.metrics))))
	}
	if sc.Santiment.APIKey != "" {
		sources = append(sources, sentiment.NewSantiment(httpclient.New(
			sc.HTTP.Client("santiment", sc.Santiment.BaseURL, sentiment.APIKeyHeaders(sc.Santiment.APIKey), a.metrics)),
			sc.Santiment.Slugs))
	}
	if sc.Reddit.Enabled {
		sources = append(sources, sentiment.NewReddit(httpclient.New(
			sc.HTTP.Client("reddit", sc.Reddit.BaseURL, sentiment.UserAgentHeaders(sc.Reddit.UserAgent), a.metrics)),
			sc.Reddit.Influencers))
	}
	return sentiment.NewAggregator(sources...)
}

func (a *app) newNews() *news.Collector {
	nc := a.cfg.News
	var sources []news.Source
	if nc.NewsAPI.APIKey != "" {
		sources = append(sources, news.NewNewsAPI(httpclient.New(
			nc.HTTP.Client("newsapi", nc.NewsAPI.BaseURL, news.NewsAPIHeaders(nc.NewsAPI.APIKey), a.metrics))))
	}
	if nc.CryptoPanic.Token != "" {
		sources = append(sources, news.NewCryptoPanic(httpclient.New(
			nc.HTTP.Client("cryptopanic", nc.CryptoPanic.BaseURL, nil, a.metrics)),
			nc.CryptoPanic.Token))
	}
	return news.NewCollector(nc.MaxAge, sources...)
}

func coingeckoHeaders(apiKey string) map[string]string {
	if apiKey == "" {
		return nil
	}
	return coingecko.AuthHeaders(apiKey)
}

func enabledString(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

// Close releases storage and connections in reverse order.
func (a *app) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
