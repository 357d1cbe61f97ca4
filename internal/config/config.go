package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/rewired-gh/cryptoscan/internal/httpclient"
	"github.com/rewired-gh/cryptoscan/internal/indicators"
	"github.com/rewired-gh/cryptoscan/internal/models"
	"github.com/rewired-gh/cryptoscan/internal/scanner"
)

// EnvPrefix prefixes every environment override, e.g. CRYPTOSCAN_TELEGRAM_BOT_TOKEN.
const EnvPrefix = "CRYPTOSCAN"

// History sources for Tier 1.
const (
	HistoryCoinGecko = "coingecko"
	HistoryBinance   = "binance"
)

// Dedup backends.
const (
	DedupMemory  = "memory"
	DedupStorage = "storage"
	DedupRedis   = "redis"
)

// Config represents the complete application configuration
type Config struct {
	Scanner    ScannerConfig    `mapstructure:"scanner"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Indicators IndicatorsConfig `mapstructure:"indicators"`
	Scoring    ScoringConfig    `mapstructure:"scoring"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	CoinGecko  CoinGeckoConfig  `mapstructure:"coingecko"`
	Binance    BinanceConfig    `mapstructure:"binance"`
	Sentiment  SentimentConfig  `mapstructure:"sentiment"`
	News       NewsConfig       `mapstructure:"news"`
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Schedule   ScheduleConfig   `mapstructure:"schedule"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ScannerConfig controls the scan loop.
type ScannerConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	CycleTimeout  time.Duration `mapstructure:"cycle_timeout"`
	HistoryBars   int           `mapstructure:"history_bars"`
	HistorySource string        `mapstructure:"history_source"`
	Workers       int           `mapstructure:"workers"`
	FetchWorkers  int           `mapstructure:"fetch_workers"`
}

// ThresholdsConfig mirrors models.FilterThresholds.
type ThresholdsConfig struct {
	PriceMin             float64       `mapstructure:"price_min"`
	PriceMax             float64       `mapstructure:"price_max"`
	VolumeMin            float64       `mapstructure:"volume_min"`
	MarketCapMin         float64       `mapstructure:"market_cap_min"`
	MarketCapMax         float64       `mapstructure:"market_cap_max"`
	ChangePctMin         float64       `mapstructure:"change_pct_min"`
	ChangePctMax         float64       `mapstructure:"change_pct_max"`
	RSIMin               float64       `mapstructure:"rsi_min"`
	RSIMax               float64       `mapstructure:"rsi_max"`
	RVOLMin              float64       `mapstructure:"rvol_min"`
	VWAPProximityMaxPct  float64       `mapstructure:"vwap_proximity_max_pct"`
	Tier2RSIMin          float64       `mapstructure:"tier2_rsi_min"`
	Tier2RSIMax          float64       `mapstructure:"tier2_rsi_max"`
	Tier2RVOLMin         float64       `mapstructure:"tier2_rvol_min"`
	PumpWindow           int           `mapstructure:"pump_window"`
	PumpSpikePct         float64       `mapstructure:"pump_spike_pct"`
	PumpVolumeCap        float64       `mapstructure:"pump_volume_cap"`
	PumpShrinkingCheck   bool          `mapstructure:"pump_shrinking_check"`
	SentimentMin         float64       `mapstructure:"sentiment_min"`
	MentionsMin          int           `mapstructure:"mentions_min"`
	EngagementMin        float64       `mapstructure:"engagement_min"`
	RequireInfluencer    bool          `mapstructure:"require_influencer"`
	MemeKeywords         []string      `mapstructure:"meme_keywords"`
	DupSuppressionWindow time.Duration `mapstructure:"dup_suppression_window"`
	MaxAlertsPerScan     int           `mapstructure:"max_alerts_per_scan"`
}

type IndicatorsConfig struct {
	RSIPeriod    int `mapstructure:"rsi_period"`
	ATRPeriod    int `mapstructure:"atr_period"`
	EMAFast      int `mapstructure:"ema_fast"`
	EMAMid       int `mapstructure:"ema_mid"`
	EMASlow      int `mapstructure:"ema_slow"`
	VWAPWindow   int `mapstructure:"vwap_window"` // 0 = cumulative
	RVOLLookback int `mapstructure:"rvol_lookback"`
}

type WeightsConfig struct {
	Momentum   float64 `mapstructure:"momentum"`
	RSI        float64 `mapstructure:"rsi"`
	EMA        float64 `mapstructure:"ema"`
	VWAP       float64 `mapstructure:"vwap"`
	RVOL       float64 `mapstructure:"rvol"`
	Sentiment  float64 `mapstructure:"sentiment"`
	Influencer float64 `mapstructure:"influencer"`
	Liquidity  float64 `mapstructure:"liquidity"`
	MarketCap  float64 `mapstructure:"market_cap"`
}

// ScoringConfig holds the AI score rule weights and bands.
type ScoringConfig struct {
	Weights          WeightsConfig `mapstructure:"weights"`
	MomentumMin      float64       `mapstructure:"momentum_min"`
	MomentumMax      float64       `mapstructure:"momentum_max"`
	SentimentBullish float64       `mapstructure:"sentiment_bullish"`
	LiquidityMin     float64       `mapstructure:"liquidity_min"`
	MarketCapSafeMin float64       `mapstructure:"market_cap_safe_min"`
	MarketCapSafeMax float64       `mapstructure:"market_cap_safe_max"`
}

type RiskConfig struct {
	ATRStopMult       float64 `mapstructure:"atr_stop_mult"`
	ATRTargetMult     float64 `mapstructure:"atr_target_mult"`
	FallbackStopPct   float64 `mapstructure:"fallback_stop_pct"`
	FallbackTargetPct float64 `mapstructure:"fallback_target_pct"`
	AccountEquity     float64 `mapstructure:"account_equity"`
	RiskPerTradePct   float64 `mapstructure:"risk_per_trade_pct"`
}

// DedupConfig selects where alert marks live.
type DedupConfig struct {
	Backend       string `mapstructure:"backend"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

// HTTPConfig is the transport policy of one provider.
type HTTPConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	RequestsPerSec  float64       `mapstructure:"requests_per_sec"`
	Burst           int           `mapstructure:"burst"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	RetryInitial    time.Duration `mapstructure:"retry_initial"`
	RetryMax        time.Duration `mapstructure:"retry_max"`
	MaxRetryAfter   time.Duration `mapstructure:"max_retry_after"`
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// RetryPolicy overlays the configured retry fields on the default policy.
func (h HTTPConfig) RetryPolicy() httpclient.RetryPolicy {
	policy := httpclient.DefaultRetryPolicy()
	if h.MaxAttempts > 0 {
		policy.MaxAttempts = h.MaxAttempts
	}
	if h.RetryInitial > 0 {
		policy.InitialInterval = h.RetryInitial
	}
	if h.RetryMax > 0 {
		policy.MaxInterval = h.RetryMax
	}
	if h.MaxRetryAfter > 0 {
		policy.MaxRetryAfter = h.MaxRetryAfter
	}
	return policy
}

// Client builds the httpclient configuration for a provider.
func (h HTTPConfig) Client(name, baseURL string, headers map[string]string, observer httpclient.Observer) httpclient.Config {
	return httpclient.Config{
		Name:            name,
		BaseURL:         baseURL,
		Timeout:         h.Timeout,
		RequestsPerSec:  h.RequestsPerSec,
		Burst:           h.Burst,
		Headers:         headers,
		Retry:           h.RetryPolicy(),
		BreakerFailures: h.BreakerFailures,
		BreakerCooldown: h.BreakerCooldown,
		Observer:        observer,
	}
}

type CoinGeckoConfig struct {
	BaseURL    string     `mapstructure:"base_url"`
	APIKey     string     `mapstructure:"api_key"`
	VsCurrency string     `mapstructure:"vs_currency"`
	PerPage    int        `mapstructure:"per_page"`
	Pages      int        `mapstructure:"pages"`
	HTTP       HTTPConfig `mapstructure:"http"`
}

// BinanceConfig configures kline history. When enabled it refines Tier 2
// indicators, and it can also serve Tier 1 via scanner.history_source.
type BinanceConfig struct {
	Enabled    bool       `mapstructure:"enabled"`
	BaseURL    string     `mapstructure:"base_url"`
	Interval   string     `mapstructure:"interval"`
	QuoteAsset string     `mapstructure:"quote_asset"`
	RefineBars int        `mapstructure:"refine_bars"`
	HTTP       HTTPConfig `mapstructure:"http"`
}

type LunarCrushConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type SantimentConfig struct {
	APIKey  string            `mapstructure:"api_key"`
	BaseURL string            `mapstructure:"base_url"`
	Slugs   map[string]string `mapstructure:"slugs"`
}

type RedditConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	BaseURL     string   `mapstructure:"base_url"`
	UserAgent   string   `mapstructure:"user_agent"`
	Influencers []string `mapstructure:"influencers"`
}

// SentimentConfig lists the social sources. A source without credentials
// is disabled; with none enabled the sentiment gates are off.
type SentimentConfig struct {
	LunarCrush LunarCrushConfig `mapstructure:"lunarcrush"`
	Santiment  SantimentConfig  `mapstructure:"santiment"`
	Reddit     RedditConfig     `mapstructure:"reddit"`
	HTTP       HTTPConfig       `mapstructure:"http"`
}

type NewsAPIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type CryptoPanicConfig struct {
	Token   string `mapstructure:"token"`
	BaseURL string `mapstructure:"base_url"`
}

type NewsConfig struct {
	MaxAge      time.Duration     `mapstructure:"max_age"`
	NewsAPI     NewsAPIConfig     `mapstructure:"newsapi"`
	CryptoPanic CryptoPanicConfig `mapstructure:"cryptopanic"`
	HTTP        HTTPConfig        `mapstructure:"http"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken        string        `mapstructure:"bot_token"`
	ChatID          string        `mapstructure:"chat_id"`
	Enabled         bool          `mapstructure:"enabled"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	TradingViewBase string        `mapstructure:"tradingview_base"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	Driver    string        `mapstructure:"driver"`
	DSN       string        `mapstructure:"dsn"`
	Retention time.Duration `mapstructure:"retention"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ScheduleConfig limits scanning to [StartHour, EndHour) local time. A window
// with StartHour > EndHour wraps past midnight.
type ScheduleConfig struct {
	Timezone  string `mapstructure:"timezone"`
	StartHour int    `mapstructure:"start_hour"`
	EndHour   int    `mapstructure:"end_hour"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, the config file at
// path (skipped when path is empty) and CRYPTOSCAN_* environment variables.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setHTTPDefaults(v *viper.Viper, prefix string, rps float64) {
	v.SetDefault(prefix+".timeout", "15s")
	v.SetDefault(prefix+".requests_per_sec", rps)
	v.SetDefault(prefix+".burst", 1)
	v.SetDefault(prefix+".max_attempts", 3)
	v.SetDefault(prefix+".retry_initial", "500ms")
	v.SetDefault(prefix+".retry_max", "10s")
	v.SetDefault(prefix+".max_retry_after", "60s")
	v.SetDefault(prefix+".breaker_failures", 5)
	v.SetDefault(prefix+".breaker_cooldown", "2m")
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("scanner.poll_interval", "15m")
	v.SetDefault("scanner.cycle_timeout", "10m")
	v.SetDefault("scanner.history_bars", 100)
	v.SetDefault("scanner.history_source", HistoryCoinGecko)
	v.SetDefault("scanner.workers", 8)
	v.SetDefault("scanner.fetch_workers", 4)

	th := models.DefaultThresholds()
	v.SetDefault("thresholds.price_min", th.PriceMin)
	v.SetDefault("thresholds.price_max", th.PriceMax)
	v.SetDefault("thresholds.volume_min", th.VolumeMin)
	v.SetDefault("thresholds.market_cap_min", th.MarketCapMin)
	v.SetDefault("thresholds.market_cap_max", th.MarketCapMax)
	v.SetDefault("thresholds.change_pct_min", th.ChangePctMin)
	v.SetDefault("thresholds.change_pct_max", th.ChangePctMax)
	v.SetDefault("thresholds.rsi_min", th.RSIMin)
	v.SetDefault("thresholds.rsi_max", th.RSIMax)
	v.SetDefault("thresholds.rvol_min", th.RVOLMin)
	v.SetDefault("thresholds.vwap_proximity_max_pct", th.VWAPProximityMaxPct)
	v.SetDefault("thresholds.tier2_rsi_min", th.Tier2RSIMin)
	v.SetDefault("thresholds.tier2_rsi_max", th.Tier2RSIMax)
	v.SetDefault("thresholds.tier2_rvol_min", th.Tier2RVOLMin)
	v.SetDefault("thresholds.pump_window", th.PumpWindow)
	v.SetDefault("thresholds.pump_spike_pct", th.PumpSpikePct)
	v.SetDefault("thresholds.pump_volume_cap", th.PumpVolumeCap)
	v.SetDefault("thresholds.pump_shrinking_check", th.PumpShrinkingCheck)
	v.SetDefault("thresholds.sentiment_min", th.SentimentMin)
	v.SetDefault("thresholds.mentions_min", th.MentionsMin)
	v.SetDefault("thresholds.engagement_min", th.EngagementMin)
	v.SetDefault("thresholds.require_influencer", th.RequireInfluencer)
	v.SetDefault("thresholds.meme_keywords", th.MemeKeywords)
	v.SetDefault("thresholds.dup_suppression_window", th.DupSuppressionWindow)
	v.SetDefault("thresholds.max_alerts_per_scan", th.MaxAlertsPerScan)

	ip := indicators.DefaultParams()
	v.SetDefault("indicators.rsi_period", ip.RSIPeriod)
	v.SetDefault("indicators.atr_period", ip.ATRPeriod)
	v.SetDefault("indicators.ema_fast", ip.EMAFast)
	v.SetDefault("indicators.ema_mid", ip.EMAMid)
	v.SetDefault("indicators.ema_slow", ip.EMASlow)
	v.SetDefault("indicators.vwap_window", ip.VWAPWindow)
	v.SetDefault("indicators.rvol_lookback", ip.RVOLLookback)

	sp := scanner.DefaultScoreParams()
	v.SetDefault("scoring.weights.momentum", sp.Weights.Momentum)
	v.SetDefault("scoring.weights.rsi", sp.Weights.RSI)
	v.SetDefault("scoring.weights.ema", sp.Weights.EMA)
	v.SetDefault("scoring.weights.vwap", sp.Weights.VWAP)
	v.SetDefault("scoring.weights.rvol", sp.Weights.RVOL)
	v.SetDefault("scoring.weights.sentiment", sp.Weights.Sentiment)
	v.SetDefault("scoring.weights.influencer", sp.Weights.Influencer)
	v.SetDefault("scoring.weights.liquidity", sp.Weights.Liquidity)
	v.SetDefault("scoring.weights.market_cap", sp.Weights.MarketCap)
	v.SetDefault("scoring.momentum_min", sp.MomentumMin)
	v.SetDefault("scoring.momentum_max", sp.MomentumMax)
	v.SetDefault("scoring.sentiment_bullish", sp.SentimentBullish)
	v.SetDefault("scoring.liquidity_min", sp.LiquidityMin)
	v.SetDefault("scoring.market_cap_safe_min", sp.MarketCapSafeMin)
	v.SetDefault("scoring.market_cap_safe_max", sp.MarketCapSafeMax)

	rp := scanner.DefaultRiskParams()
	v.SetDefault("risk.atr_stop_mult", rp.ATRStopMult)
	v.SetDefault("risk.atr_target_mult", rp.ATRTargetMult)
	v.SetDefault("risk.fallback_stop_pct", rp.FallbackStopPct)
	v.SetDefault("risk.fallback_target_pct", rp.FallbackTargetPct)
	v.SetDefault("risk.account_equity", rp.AccountEquity)
	v.SetDefault("risk.risk_per_trade_pct", rp.RiskPerTradePct)

	v.SetDefault("dedup.backend", DedupStorage)
	v.SetDefault("dedup.redis_addr", "localhost:6379")
	v.SetDefault("dedup.redis_password", "")
	v.SetDefault("dedup.redis_db", 0)
	v.SetDefault("dedup.redis_prefix", "cryptoscan:alert:")

	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.api_key", "")
	v.SetDefault("coingecko.vs_currency", "usd")
	v.SetDefault("coingecko.per_page", 250)
	v.SetDefault("coingecko.pages", 2)
	// The public tier allows roughly 30 calls per minute.
	setHTTPDefaults(v, "coingecko.http", 0.5)

	v.SetDefault("binance.enabled", true)
	v.SetDefault("binance.base_url", "")
	v.SetDefault("binance.interval", "15m")
	v.SetDefault("binance.quote_asset", "USDT")
	v.SetDefault("binance.refine_bars", 100)
	setHTTPDefaults(v, "binance.http", 10)

	v.SetDefault("sentiment.lunarcrush.api_key", "")
	v.SetDefault("sentiment.lunarcrush.base_url", "https://lunarcrush.com/api4")
	v.SetDefault("sentiment.santiment.api_key", "")
	v.SetDefault("sentiment.santiment.base_url", "https://api.santiment.net")
	v.SetDefault("sentiment.santiment.slugs", map[string]string{
		"btc": "bitcoin",
		"eth": "ethereum",
		"sol": "solana",
	})
	v.SetDefault("sentiment.reddit.enabled", false)
	v.SetDefault("sentiment.reddit.base_url", "https://www.reddit.com")
	v.SetDefault("sentiment.reddit.user_agent", "cryptoscan/1.0")
	v.SetDefault("sentiment.reddit.influencers", []string{})
	setHTTPDefaults(v, "sentiment.http", 2)

	v.SetDefault("news.max_age", "48h")
	v.SetDefault("news.newsapi.api_key", "")
	v.SetDefault("news.newsapi.base_url", "https://newsapi.org")
	v.SetDefault("news.cryptopanic.token", "")
	v.SetDefault("news.cryptopanic.base_url", "https://cryptopanic.com")
	setHTTPDefaults(v, "news.http", 1)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")
	v.SetDefault("telegram.tradingview_base", "https://www.tradingview.com/symbols")

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "./data/cryptoscan.db")
	v.SetDefault("storage.retention", "720h")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("schedule.start_hour", 0)
	v.SetDefault("schedule.end_hour", 24)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid. Missing provider
// credentials are not errors; the provider is simply disabled.
func (c *Config) Validate() error {
	if c.Scanner.PollInterval < time.Minute {
		return fmt.Errorf("scanner.poll_interval must be at least 1 minute")
	}
	if c.Scanner.CycleTimeout <= 0 {
		return fmt.Errorf("scanner.cycle_timeout must be positive")
	}
	if c.Scanner.HistoryBars < c.IndicatorParams().MinBars() {
		return fmt.Errorf("scanner.history_bars must be at least %d", c.IndicatorParams().MinBars())
	}
	switch c.Scanner.HistorySource {
	case HistoryCoinGecko, HistoryBinance:
	default:
		return fmt.Errorf("scanner.history_source must be one of: coingecko, binance")
	}
	if c.Scanner.Workers < 1 || c.Scanner.FetchWorkers < 1 {
		return fmt.Errorf("scanner.workers and scanner.fetch_workers must be at least 1")
	}

	if err := c.FilterThresholds().Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	ind := c.Indicators
	for name, p := range map[string]int{
		"rsi_period":    ind.RSIPeriod,
		"atr_period":    ind.ATRPeriod,
		"ema_fast":      ind.EMAFast,
		"ema_mid":       ind.EMAMid,
		"ema_slow":      ind.EMASlow,
		"rvol_lookback": ind.RVOLLookback,
	} {
		if p < 1 {
			return fmt.Errorf("indicators.%s must be at least 1", name)
		}
	}
	if !(ind.EMAFast < ind.EMAMid && ind.EMAMid < ind.EMASlow) {
		return fmt.Errorf("indicators must satisfy ema_fast < ema_mid < ema_slow")
	}
	if ind.VWAPWindow < 0 {
		return fmt.Errorf("indicators.vwap_window must not be negative")
	}

	if c.Scoring.MomentumMax <= c.Scoring.MomentumMin {
		return fmt.Errorf("scoring.momentum_min must be below scoring.momentum_max")
	}
	if c.Risk.ATRStopMult <= 0 || c.Risk.ATRTargetMult <= 0 {
		return fmt.Errorf("risk multipliers must be positive")
	}
	if c.Risk.AccountEquity < 0 || c.Risk.RiskPerTradePct < 0 || c.Risk.RiskPerTradePct > 100 {
		return fmt.Errorf("risk.account_equity must not be negative and risk.risk_per_trade_pct must be within 0-100")
	}

	switch c.Dedup.Backend {
	case DedupMemory, DedupStorage:
	case DedupRedis:
		if c.Dedup.RedisAddr == "" {
			return fmt.Errorf("dedup.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("dedup.backend must be one of: memory, storage, redis")
	}

	if c.CoinGecko.BaseURL == "" {
		return fmt.Errorf("coingecko.base_url is required")
	}
	if c.Scanner.HistorySource == HistoryBinance && !c.Binance.Enabled {
		return fmt.Errorf("binance.enabled must be true when scanner.history_source is binance")
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	switch c.Storage.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if c.Schedule.StartHour < 0 || c.Schedule.StartHour > 23 || c.Schedule.EndHour < 0 || c.Schedule.EndHour > 24 {
		return fmt.Errorf("schedule hours must satisfy 0 <= start_hour <= 23 and 0 <= end_hour <= 24")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// FilterThresholds returns the thresholds section as the domain type.
func (c *Config) FilterThresholds() models.FilterThresholds {
	t := c.Thresholds
	return models.FilterThresholds{
		PriceMin:             t.PriceMin,
		PriceMax:             t.PriceMax,
		VolumeMin:            t.VolumeMin,
		MarketCapMin:         t.MarketCapMin,
		MarketCapMax:         t.MarketCapMax,
		ChangePctMin:         t.ChangePctMin,
		ChangePctMax:         t.ChangePctMax,
		RSIMin:               t.RSIMin,
		RSIMax:               t.RSIMax,
		RVOLMin:              t.RVOLMin,
		VWAPProximityMaxPct:  t.VWAPProximityMaxPct,
		Tier2RSIMin:          t.Tier2RSIMin,
		Tier2RSIMax:          t.Tier2RSIMax,
		Tier2RVOLMin:         t.Tier2RVOLMin,
		PumpWindow:           t.PumpWindow,
		PumpSpikePct:         t.PumpSpikePct,
		PumpVolumeCap:        t.PumpVolumeCap,
		PumpShrinkingCheck:   t.PumpShrinkingCheck,
		SentimentMin:         t.SentimentMin,
		MentionsMin:          t.MentionsMin,
		EngagementMin:        t.EngagementMin,
		RequireInfluencer:    t.RequireInfluencer,
		MemeKeywords:         t.MemeKeywords,
		DupSuppressionWindow: t.DupSuppressionWindow,
		MaxAlertsPerScan:     t.MaxAlertsPerScan,
	}
}

// IndicatorParams returns the indicator periods. Pump settings are filled in
// from the thresholds by the Tier 1 filter.
func (c *Config) IndicatorParams() indicators.Params {
	i := c.Indicators
	return indicators.Params{
		RSIPeriod:    i.RSIPeriod,
		ATRPeriod:    i.ATRPeriod,
		EMAFast:      i.EMAFast,
		EMAMid:       i.EMAMid,
		EMASlow:      i.EMASlow,
		VWAPWindow:   i.VWAPWindow,
		RVOLLookback: i.RVOLLookback,
	}
}

func (c *Config) ScoreParams() scanner.ScoreParams {
	s := c.Scoring
	return scanner.ScoreParams{
		Weights: scanner.Weights{
			Momentum:   s.Weights.Momentum,
			RSI:        s.Weights.RSI,
			EMA:        s.Weights.EMA,
			VWAP:       s.Weights.VWAP,
			RVOL:       s.Weights.RVOL,
			Sentiment:  s.Weights.Sentiment,
			Influencer: s.Weights.Influencer,
			Liquidity:  s.Weights.Liquidity,
			MarketCap:  s.Weights.MarketCap,
		},
		MomentumMin:      s.MomentumMin,
		MomentumMax:      s.MomentumMax,
		SentimentBullish: s.SentimentBullish,
		LiquidityMin:     s.LiquidityMin,
		MarketCapSafeMin: s.MarketCapSafeMin,
		MarketCapSafeMax: s.MarketCapSafeMax,
	}
}

func (c *Config) RiskParams() scanner.RiskParams {
	r := c.Risk
	return scanner.RiskParams{
		ATRStopMult:       r.ATRStopMult,
		ATRTargetMult:     r.ATRTargetMult,
		FallbackStopPct:   r.FallbackStopPct,
		FallbackTargetPct: r.FallbackTargetPct,
		AccountEquity:     r.AccountEquity,
		RiskPerTradePct:   r.RiskPerTradePct,
	}
}

// Location resolves the schedule timezone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Active reports whether t falls inside the scan window.
func (s ScheduleConfig) Active(t time.Time, loc *time.Location) bool {
	if loc != nil {
		t = t.In(loc)
	}
	h := t.Hour()
	switch {
	case s.StartHour == s.EndHour || (s.StartHour == 0 && s.EndHour >= 24):
		return true
	case s.StartHour < s.EndHour:
		return h >= s.StartHour && h < s.EndHour
	default:
		return h >= s.StartHour || h < s.EndHour
	}
}
