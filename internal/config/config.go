// Package config loads and validates the pipeline's YAML configuration
// and maps it onto the per-stage engine settings.
package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"market-etl-lab/internal/calendar"
	"market-etl-lab/internal/domain"
	"market-etl-lab/internal/etl"
	"market-etl-lab/internal/logging"
)

var validate = validator.New()

// ResampleRuleConfig declares one output timeframe.
type ResampleRuleConfig struct {
	Label       string   `yaml:"label" validate:"required"`
	Granularity Duration `yaml:"granularity" validate:"required"`
	Anchor      Duration `yaml:"anchor"`
}

// PipelineConfig holds the per-stage settings for one symbol. The
// top-level pipeline block supplies the defaults; a symbols entry
// replaces the whole block for that symbol.
type PipelineConfig struct {
	SourceTimezone     string               `yaml:"source_timezone"`
	NaivePolicy        string               `yaml:"naive_policy" default:"assume_utc" validate:"oneof=assume_utc require_source"`
	DedupePolicy       string               `yaml:"dedupe_policy" default:"keep_last" validate:"oneof=keep_first keep_last max_volume"`
	RepairStrategy     string               `yaml:"repair_strategy" default:"forward_fill" validate:"oneof=forward_fill backward_fill interpolate"`
	ToleranceFactor    float64              `yaml:"tolerance_factor" default:"1.5" validate:"gte=1"`
	MaxInvalidFraction float64              `yaml:"max_invalid_fraction" default:"0.2" validate:"gte=0,lte=1"`
	PriceTolerance     float64              `yaml:"price_tolerance" default:"0.000000001" validate:"gte=0"`
	NominalInterval    Duration             `yaml:"nominal_interval"`
	StrictVolume       bool                 `yaml:"strict_volume_aggregation"`
	ColumnMapping      map[string][]string  `yaml:"column_mapping"`
	ResampleRules      []ResampleRuleConfig `yaml:"resample_rules" validate:"dive"`
}

// CalendarConfig describes the trading session. An empty open/close pair
// means an always-open market.
type CalendarConfig struct {
	Timezone string   `yaml:"timezone" default:"UTC"`
	Open     string   `yaml:"open"`  // local wall clock, "09:30"
	Close    string   `yaml:"close"` // local wall clock, "16:00"
	Weekend  []string `yaml:"weekend"`
	Holidays []string `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
}

// StorageConfig selects where cleaned series and reports are persisted.
type StorageConfig struct {
	Backend       string `yaml:"backend" default:"memory" validate:"oneof=memory postgres clickhouse"`
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickHouseDSN string `yaml:"clickhouse_dsn"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":9090"`
}

// Config is the full process configuration.
type Config struct {
	Logging  logging.Config            `yaml:"logging"`
	Metrics  MetricsConfig             `yaml:"metrics"`
	Storage  StorageConfig             `yaml:"storage"`
	Calendar CalendarConfig            `yaml:"calendar"`
	Workers  int                       `yaml:"workers" default:"4" validate:"gte=1"`
	Pipeline PipelineConfig            `yaml:"pipeline"`
	Symbols  map[string]PipelineConfig `yaml:"symbols"`
}

// Load reads, defaults and validates a YAML configuration file. Unknown
// keys are rejected so typos fail fast instead of silently falling back
// to defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes configuration from raw YAML bytes.
func Parse(b []byte) (*Config, error) {
	var c Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply config defaults: %w", err)
	}
	if err := validate.Struct(&c); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides connection secrets
// with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	return c, nil
}

// Default returns the configuration a zero-byte YAML file would produce.
func Default() *Config {
	c, err := Parse([]byte("{}"))
	if err != nil {
		panic(err) // tag defaults are static, cannot fail
	}
	return c
}

// EngineConfig maps the symbol's pipeline block (or the top-level one if
// the symbol has no entry) onto the engine's per-stage configuration.
func (c *Config) EngineConfig(symbol string) (etl.Config, error) {
	block := c.Pipeline
	if override, ok := c.Symbols[symbol]; ok {
		block = override
	}

	cfg := etl.DefaultConfig()
	if block.ColumnMapping != nil {
		cfg.Schema.ColumnMap = block.ColumnMapping
	}
	cfg.Schema.PriceTolerance = block.PriceTolerance
	cfg.Schema.MaxInvalidFraction = block.MaxInvalidFraction
	cfg.Time.NaivePolicy = block.NaivePolicy
	cfg.Time.MaxInvalidFraction = block.MaxInvalidFraction
	cfg.Time.NominalInterval = block.NominalInterval.Std()
	cfg.Dedupe.Policy = block.DedupePolicy
	cfg.Gaps.ToleranceFactor = block.ToleranceFactor
	cfg.Repair.Strategy = block.RepairStrategy
	cfg.Resample.StrictVolume = block.StrictVolume

	if block.SourceTimezone != "" {
		loc, err := time.LoadLocation(block.SourceTimezone)
		if err != nil {
			return etl.Config{}, fmt.Errorf("symbol %s: source timezone: %w", symbol, err)
		}
		cfg.Time.SourceTimezone = loc
	}

	cfg.Resample.Rules = make([]domain.ResampleRule, 0, len(block.ResampleRules))
	for _, r := range block.ResampleRules {
		cfg.Resample.Rules = append(cfg.Resample.Rules, domain.ResampleRule{
			Label:       r.Label,
			Granularity: r.Granularity.Std(),
			Anchor:      r.Anchor.Std(),
		})
	}

	if err := cfg.Validate(); err != nil {
		return etl.Config{}, fmt.Errorf("symbol %s: %w", symbol, err)
	}
	return cfg, nil
}

// BuildCalendar constructs the trading calendar the gap classifier
// consults. No session window configured means an always-open market.
func (c *Config) BuildCalendar() (calendar.Calendar, error) {
	cc := c.Calendar
	if cc.Open == "" && cc.Close == "" {
		return calendar.AlwaysOpen{}, nil
	}

	loc, err := time.LoadLocation(cc.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar timezone: %w", err)
	}
	open, err := parseWallClock(cc.Open)
	if err != nil {
		return nil, fmt.Errorf("calendar open: %w", err)
	}
	close, err := parseWallClock(cc.Close)
	if err != nil {
		return nil, fmt.Errorf("calendar close: %w", err)
	}

	var opts []calendar.SessionOption
	if len(cc.Weekend) > 0 {
		days, err := parseWeekdays(cc.Weekend)
		if err != nil {
			return nil, err
		}
		opts = append(opts, calendar.WithWeekend(days...))
	}
	if len(cc.Holidays) > 0 {
		days := make([]time.Time, 0, len(cc.Holidays))
		for _, h := range cc.Holidays {
			d, err := time.ParseInLocation("2006-01-02", h, loc)
			if err != nil {
				return nil, fmt.Errorf("calendar holiday %q: %w", h, err)
			}
			days = append(days, d)
		}
		opts = append(opts, calendar.WithHolidays(days...))
	}

	return calendar.NewSession(loc, open, close, opts...)
}

// SymbolNames returns the configured per-symbol overrides in no
// particular order.
func (c *Config) SymbolNames() []string {
	names := make([]string, 0, len(c.Symbols))
	for name := range c.Symbols {
		names = append(names, name)
	}
	return names
}

func parseWallClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func parseWeekdays(names []string) ([]time.Weekday, error) {
	days := make([]time.Weekday, 0, len(names))
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", n)
		}
		days = append(days, d)
	}
	return days, nil
}
