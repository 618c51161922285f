package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // pricing.timezone must resolve on hosts without zoneinfo

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/rewired-gh/nightrate/internal/classifier"
	"github.com/rewired-gh/nightrate/internal/feeds"
	"github.com/rewired-gh/nightrate/internal/models"
	"github.com/rewired-gh/nightrate/internal/pricing"
)

// Config represents the complete application configuration
type Config struct {
	Pricing       PricingConfig    `mapstructure:"pricing"`
	Classifier    ClassifierConfig `mapstructure:"classifier"`
	Ingest        IngestConfig     `mapstructure:"ingest"`
	CuratedEvents []CuratedEvent   `mapstructure:"curated_events"`
	Storage       StorageConfig    `mapstructure:"storage"`
	Redis         RedisConfig      `mapstructure:"redis"`
	Telegram      TelegramConfig   `mapstructure:"telegram"`
	Metrics       MetricsConfig    `mapstructure:"metrics"`
	Logging       LoggingConfig    `mapstructure:"logging"`
}

// PricingConfig holds the pricing calibration
type PricingConfig struct {
	BaseWeekday       float64 `mapstructure:"base_weekday"`
	BaseWeekend       float64 `mapstructure:"base_weekend"`
	MinPrice          float64 `mapstructure:"min_price"`
	MaxPrice          float64 `mapstructure:"max_price"`
	WeekendMultiplier float64 `mapstructure:"weekend_multiplier"`
	SundayDiscount    float64 `mapstructure:"sunday_discount"`
	MarketWeight      float64 `mapstructure:"market_weight"`
	// SeasonMultipliers overrides months of the built-in table, keyed by
	// month name ("june", "jun") or number ("6").
	SeasonMultipliers     map[string]float64 `mapstructure:"season_multipliers"`
	ConfidenceBase        float64            `mapstructure:"confidence_base"`
	ConfidenceMarketBonus float64            `mapstructure:"confidence_market_bonus"`
	ConfidenceEventBonus  float64            `mapstructure:"confidence_event_bonus"`
	Currency              string             `mapstructure:"currency"`
	Timezone              string             `mapstructure:"timezone"`
}

// ClassifierConfig holds overrides for the event classifier tables
type ClassifierConfig struct {
	ImpactMultipliers map[string]float64  `mapstructure:"impact_multipliers"` // keyed "2".."10"
	Keywords          map[string][]string `mapstructure:"keywords"`           // keyed by category
}

// IngestConfig holds event ingestion configuration
type IngestConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Interval    time.Duration `mapstructure:"interval"`
	Concurrency int           `mapstructure:"concurrency"`
	LockTTL     time.Duration `mapstructure:"lock_ttl"`
	Feeds       []FeedConfig  `mapstructure:"feeds"`
}

// FeedConfig declares one ingestion feed. Type is "http" or "static".
type FeedConfig struct {
	Name              string              `mapstructure:"name"`
	Type              string              `mapstructure:"type"`
	URL               string              `mapstructure:"url"`
	Timeout           time.Duration       `mapstructure:"timeout"`
	MaxRetries        int                 `mapstructure:"max_retries"`
	RetryDelayBase    time.Duration       `mapstructure:"retry_delay_base"`
	RequestsPerSecond float64             `mapstructure:"requests_per_second"`
	Events            []StaticEventConfig `mapstructure:"events"`
}

// StaticEventConfig is one candidate of a static feed
type StaticEventConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Start       string `mapstructure:"start"`
	End         string `mapstructure:"end"`
	Capacity    int    `mapstructure:"capacity"`
}

// CuratedEvent is a hand-maintained event seeded at startup
type CuratedEvent struct {
	Name       string  `mapstructure:"name"`
	Start      string  `mapstructure:"start"`
	End        string  `mapstructure:"end"`
	Category   string  `mapstructure:"category"`
	Impact     int     `mapstructure:"impact"`
	Multiplier float64 `mapstructure:"multiplier"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	Driver       string        `mapstructure:"driver"`
	DSN          string        `mapstructure:"dsn"`
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
}

// RedisConfig holds the optional ingestion run-lock backend
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken        string        `mapstructure:"bot_token"`
	ChatID          string        `mapstructure:"chat_id"`
	Enabled         bool          `mapstructure:"enabled"`
	DailyReportHour int           `mapstructure:"daily_report_hour"` // -1 disables the report
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
// Environment variables use the NIGHTRATE_ prefix with dots replaced by underscores,
// e.g. NIGHTRATE_TELEGRAM_BOT_TOKEN.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set config file
	v.SetConfigFile(path)

	// Set defaults
	setDefaults(v)

	// Enable environment variable override
	v.SetEnvPrefix("NIGHTRATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	// Pricing defaults
	v.SetDefault("pricing.base_weekday", 80)
	v.SetDefault("pricing.base_weekend", 105)
	v.SetDefault("pricing.min_price", 70)
	v.SetDefault("pricing.max_price", 250)
	v.SetDefault("pricing.weekend_multiplier", 1.15)
	v.SetDefault("pricing.sunday_discount", 0.95)
	v.SetDefault("pricing.market_weight", 0.3)
	v.SetDefault("pricing.confidence_base", 0.7)
	v.SetDefault("pricing.confidence_market_bonus", 0.2)
	v.SetDefault("pricing.confidence_event_bonus", 0.1)
	v.SetDefault("pricing.currency", "€")
	v.SetDefault("pricing.timezone", "Europe/Rome")

	// Ingest defaults
	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.interval", "6h")
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.lock_ttl", "10m")

	v.SetDefault("curated_events", defaultCuratedEvents())

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.dsn", "./data/nightrate.db")
	v.SetDefault("storage.query_timeout", "5s")
	v.SetDefault("storage.max_open_conns", 10)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "nightrate:lock:")

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.daily_report_hour", 7)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Metrics defaults
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// defaultCuratedEvents is the 2026 Milan calendar.
func defaultCuratedEvents() []map[string]interface{} {
	return []map[string]interface{}{
		{"name": "Olimpiadi Invernali Milano-Cortina", "start": "2026-02-06", "end": "2026-02-22", "category": "olympics", "impact": 10, "multiplier": 2.8},
		{"name": "Paralimpiadi Invernali", "start": "2026-03-06", "end": "2026-03-15", "category": "olympics", "impact": 8, "multiplier": 2.0},
		{"name": "Salone del Mobile Milano", "start": "2026-04-21", "end": "2026-04-26", "category": "fair", "impact": 10, "multiplier": 2.3},
		{"name": "Milano Fashion Week Uomo FW", "start": "2026-01-16", "end": "2026-01-20", "category": "fashion", "impact": 7, "multiplier": 1.4},
		{"name": "Milano Fashion Week Uomo SS", "start": "2026-06-19", "end": "2026-06-23", "category": "fashion", "impact": 7, "multiplier": 1.4},
		{"name": "HOMI Milano", "start": "2026-01-22", "end": "2026-01-25", "category": "fair", "impact": 5, "multiplier": 1.2},
		{"name": "MICAM Milano", "start": "2026-02-22", "end": "2026-02-24", "category": "fair", "impact": 6, "multiplier": 1.3},
		{"name": "LINEAPELLE", "start": "2026-02-11", "end": "2026-02-13", "category": "fair", "impact": 5, "multiplier": 1.2},
		{"name": "TUTTOFOOD", "start": "2026-05-11", "end": "2026-05-14", "category": "fair", "impact": 6, "multiplier": 1.4},
	}
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Pricing config
	if _, err := c.PricingConfig(); err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("pricing.timezone: %w", err)
	}

	// Validate Classifier config
	if _, err := c.ClassifierConfig(); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}

	// Validate Ingest config
	if c.Ingest.Enabled && c.Ingest.Interval < 1*time.Minute {
		return fmt.Errorf("ingest.interval must be at least 1 minute")
	}
	if c.Ingest.Concurrency < 1 {
		return fmt.Errorf("ingest.concurrency must be at least 1")
	}
	names := make(map[string]bool)
	for i, f := range c.Ingest.Feeds {
		if f.Name == "" {
			return fmt.Errorf("ingest.feeds[%d].name is required", i)
		}
		if names[f.Name] {
			return fmt.Errorf("ingest.feeds[%d].name %q is duplicated", i, f.Name)
		}
		names[f.Name] = true
		switch f.Type {
		case "http":
			if f.URL == "" {
				return fmt.Errorf("ingest.feeds[%d].url is required for http feeds", i)
			}
		case "static":
		default:
			return fmt.Errorf("ingest.feeds[%d].type must be one of: http, static", i)
		}
	}

	// Validate curated events
	if _, err := c.CuratedSeed(); err != nil {
		return err
	}

	// Validate Storage config
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "postgres" {
		return fmt.Errorf("storage.driver must be one of: sqlite, postgres")
	}
	if c.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn is required")
	}
	if c.Storage.QueryTimeout <= 0 {
		return fmt.Errorf("storage.query_timeout must be positive")
	}

	// Validate Redis config
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
		if _, err := strconv.ParseInt(c.Telegram.ChatID, 10, 64); err != nil {
			return fmt.Errorf("telegram.chat_id must be numeric")
		}
	}
	if c.Telegram.DailyReportHour < -1 || c.Telegram.DailyReportHour > 23 {
		return fmt.Errorf("telegram.daily_report_hour must be between 0 and 23, or -1 to disable")
	}

	// Validate Metrics config
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr is required when metrics are enabled")
	}

	// Validate Logging config
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

// PricingConfig converts the pricing section into a validated engine configuration.
func (c *Config) PricingConfig() (pricing.Config, error) {
	p := c.Pricing
	season := pricing.DefaultSeason()
	for key, v := range p.SeasonMultipliers {
		m, err := parseMonth(key)
		if err != nil {
			return pricing.Config{}, fmt.Errorf("season_multipliers: %w", err)
		}
		season[m] = decimal.NewFromFloat(v)
	}

	cfg := pricing.Config{
		BaseWeekday:           decimal.NewFromFloat(p.BaseWeekday),
		BaseWeekend:           decimal.NewFromFloat(p.BaseWeekend),
		MinPrice:              decimal.NewFromFloat(p.MinPrice),
		MaxPrice:              decimal.NewFromFloat(p.MaxPrice),
		WeekendMultiplier:     decimal.NewFromFloat(p.WeekendMultiplier),
		SundayDiscount:        decimal.NewFromFloat(p.SundayDiscount),
		MarketWeight:          decimal.NewFromFloat(p.MarketWeight),
		SeasonMultipliers:     season,
		ConfidenceBase:        p.ConfidenceBase,
		ConfidenceMarketBonus: p.ConfidenceMarketBonus,
		ConfidenceEventBonus:  p.ConfidenceEventBonus,
		Currency:              p.Currency,
	}
	if err := cfg.Validate(); err != nil {
		return pricing.Config{}, err
	}
	return cfg, nil
}

// Location returns the operator's time zone, used for "today" and the daily report.
func (c *Config) Location() (*time.Location, error) {
	if c.Pricing.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Pricing.Timezone)
}

func parseMonth(key string) (time.Month, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if n, err := strconv.Atoi(key); err == nil {
		if n < 1 || n > 12 {
			return 0, fmt.Errorf("month %d out of range", n)
		}
		return time.Month(n), nil
	}
	if len(key) >= 3 {
		for m := time.January; m <= time.December; m++ {
			if strings.HasPrefix(strings.ToLower(m.String()), key) {
				return m, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown month %q", key)
}

// ClassifierConfig converts the classifier overrides and checks them by building a classifier.
func (c *Config) ClassifierConfig() (classifier.Config, error) {
	out := classifier.Config{}

	if len(c.Classifier.ImpactMultipliers) > 0 {
		out.Multipliers = make(map[int]decimal.Decimal, len(c.Classifier.ImpactMultipliers))
		for key, v := range c.Classifier.ImpactMultipliers {
			impact, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return classifier.Config{}, fmt.Errorf("impact_multipliers: key %q is not an impact score", key)
			}
			out.Multipliers[impact] = decimal.NewFromFloat(v)
		}
	}

	if len(c.Classifier.Keywords) > 0 {
		out.Keywords = make(map[models.Category][]string, len(c.Classifier.Keywords))
		for cat, words := range c.Classifier.Keywords {
			out.Keywords[models.Category(strings.ToLower(cat))] = words
		}
	}

	if _, err := classifier.New(out); err != nil {
		return classifier.Config{}, err
	}
	return out, nil
}

// CuratedSeed converts curated_events into validated events.
func (c *Config) CuratedSeed() ([]models.Event, error) {
	events := make([]models.Event, 0, len(c.CuratedEvents))
	for i, ce := range c.CuratedEvents {
		start, err := models.ParseDate(ce.Start)
		if err != nil {
			return nil, fmt.Errorf("curated_events[%d].start: %w", i, err)
		}
		end, err := models.ParseDate(ce.End)
		if err != nil {
			return nil, fmt.Errorf("curated_events[%d].end: %w", i, err)
		}
		e := models.Event{
			Name:        ce.Name,
			StartDate:   start,
			EndDate:     end,
			Category:    models.Category(ce.Category),
			ImpactScore: ce.Impact,
			Multiplier:  decimal.NewFromFloat(ce.Multiplier),
			Source:      models.SourceCurated,
		}
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("curated_events[%d]: %w", i, err)
		}
		events = append(events, e)
	}
	return events, nil
}

// BuildFeeds instantiates the configured feeds in declaration order.
func (c *Config) BuildFeeds() ([]feeds.Feed, error) {
	out := make([]feeds.Feed, 0, len(c.Ingest.Feeds))
	for i, f := range c.Ingest.Feeds {
		switch f.Type {
		case "http":
			cc := feeds.DefaultClientConfig()
			if f.Timeout > 0 {
				cc.Timeout = f.Timeout
			}
			if f.MaxRetries > 0 {
				cc.MaxRetries = f.MaxRetries
			}
			if f.RetryDelayBase > 0 {
				cc.RetryDelayBase = f.RetryDelayBase
			}
			if f.RequestsPerSecond > 0 {
				cc.RequestsPerSecond = f.RequestsPerSecond
			}
			out = append(out, feeds.NewHTTPFeed(f.Name, f.URL, cc))
		case "static":
			raws := make([]models.RawEvent, 0, len(f.Events))
			for j, se := range f.Events {
				raw := models.RawEvent{Name: se.Name, Description: se.Description, Capacity: se.Capacity}
				if se.Start != "" {
					d, err := models.ParseDate(se.Start)
					if err != nil {
						return nil, fmt.Errorf("ingest.feeds[%d].events[%d].start: %w", i, j, err)
					}
					raw.Start = &d
				}
				if se.End != "" {
					d, err := models.ParseDate(se.End)
					if err != nil {
						return nil, fmt.Errorf("ingest.feeds[%d].events[%d].end: %w", i, j, err)
					}
					raw.End = &d
				}
				raws = append(raws, raw)
			}
			out = append(out, feeds.NewStaticFeed(f.Name, raws))
		default:
			return nil, fmt.Errorf("ingest.feeds[%d].type %q is not supported", i, f.Type)
		}
	}
	return out, nil
}
