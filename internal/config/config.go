package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"optionchain/internal/retry"
)

// Server controls the HTTP surface.
type Server struct {
	Port              string   `mapstructure:"port"`
	RequestTimeoutSec int      `mapstructure:"request_timeout_sec"` // per-request budget for read endpoints
	CORSOrigins       []string `mapstructure:"cors_origins"`
}

// Source describes the upstream origin and the live pipeline around it.
type Source struct {
	Name          string `mapstructure:"name"`
	BaseURL       string `mapstructure:"base_url"`        // landing page, also the Referer for the chain page
	ChainPagePath string `mapstructure:"chain_page_path"` // secondary landing page that hands out more cookies
	APIPath       string `mapstructure:"api_path"`        // data endpoint, queried with ?symbol=
	Symbol        string `mapstructure:"symbol"`

	HTTPTimeoutSec     int `mapstructure:"http_timeout_sec"`     // single HTTP round trip
	PipelineTimeoutSec int `mapstructure:"pipeline_timeout_sec"` // whole live attempt, session + fetch + normalize

	// Optional decorators around the live provider; 0 disables each.
	MinRequestIntervalSec int `mapstructure:"min_request_interval_sec"`
	MaxRequestsPerMinute  int `mapstructure:"max_requests_per_minute"` // wins over min interval when set
	Burst                 int `mapstructure:"burst"`
	CacheTTLSeconds       int `mapstructure:"cache_ttl_sec"`
}

// RetryPolicy is one step's attempt budget.
type RetryPolicy struct {
	MaxAttempts    int `mapstructure:"max_attempts"`
	InitialDelayMs int `mapstructure:"initial_delay_ms"`
}

func (r RetryPolicy) Policy() retry.Policy {
	return retry.Policy{MaxAttempts: r.MaxAttempts, InitialDelay: time.Duration(r.InitialDelayMs) * time.Millisecond}
}

// Retry holds a budget per network step.
type Retry struct {
	Landing   RetryPolicy `mapstructure:"landing"`
	ChainPage RetryPolicy `mapstructure:"chain_page"`
	Fetch     RetryPolicy `mapstructure:"fetch"`
}

// JitterRange is a half-open [MinMs, MaxMs) random delay.
type JitterRange struct {
	MinMs int `mapstructure:"min_ms"`
	MaxMs int `mapstructure:"max_ms"`
}

func (j JitterRange) Bounds() (time.Duration, time.Duration) {
	return time.Duration(j.MinMs) * time.Millisecond, time.Duration(j.MaxMs) * time.Millisecond
}

// Jitter holds the pauses inside the session handshake.
type Jitter struct {
	AfterLanding   JitterRange `mapstructure:"after_landing"`
	AfterChainPage JitterRange `mapstructure:"after_chain_page"`
}

// Synthetic shapes the fallback data.
type Synthetic struct {
	Underlying      string  `mapstructure:"underlying"`
	UnderlyingValue float64 `mapstructure:"underlying_value"`
	BaseStrike      float64 `mapstructure:"base_strike"`
	StrikeStep      float64 `mapstructure:"strike_step"`
	NumStrikes      int     `mapstructure:"num_strikes"`
	Seed            int64   `mapstructure:"seed"`
	ExpiryLabel     string  `mapstructure:"expiry_label"`
}

// Store selects the persistence backend.
type Store struct {
	Driver        string `mapstructure:"driver"` // memory | postgres | redis
	PostgresDSN   string `mapstructure:"postgres_dsn"`
	Table         string `mapstructure:"table"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisKey      string `mapstructure:"redis_key"`
}

// Scheduler drives the periodic refresh.
type Scheduler struct {
	Enabled     bool `mapstructure:"enabled"`
	IntervalSec int  `mapstructure:"interval_sec"`
	RunOnStart  bool `mapstructure:"run_on_start"`
}

// Logging configures zap.
type Logging struct {
	Level  string `mapstructure:"level"`  // debug | info | warn | error
	Format string `mapstructure:"format"` // json | console
}

type Config struct {
	Server    Server    `mapstructure:"server"`
	Source    Source    `mapstructure:"source"`
	Retry     Retry     `mapstructure:"retry"`
	Jitter    Jitter    `mapstructure:"jitter"`
	Synthetic Synthetic `mapstructure:"synthetic"`
	Store     Store     `mapstructure:"store"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Logging   Logging   `mapstructure:"logging"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10, CORSOrigins: []string{"*"}},
		Source: Source{
			Name:               "NSE",
			BaseURL:            "https://www.nseindia.com",
			ChainPagePath:      "/option-chain",
			APIPath:            "/api/option-chain-indices",
			Symbol:             "NIFTY",
			HTTPTimeoutSec:     30,
			PipelineTimeoutSec: 60,
			Burst:              1,
		},
		Retry: Retry{
			Landing:   RetryPolicy{MaxAttempts: 5, InitialDelayMs: 1000},
			ChainPage: RetryPolicy{MaxAttempts: 3, InitialDelayMs: 1500},
			Fetch:     RetryPolicy{MaxAttempts: 4, InitialDelayMs: 2000},
		},
		Jitter: Jitter{
			AfterLanding:   JitterRange{MinMs: 2000, MaxMs: 3000},
			AfterChainPage: JitterRange{MinMs: 2000, MaxMs: 4000},
		},
		Synthetic: Synthetic{
			Underlying:      "NIFTY",
			UnderlyingValue: 24784.2,
			BaseStrike:      24000,
			StrikeStep:      50,
			NumStrikes:      20,
			Seed:            12345,
			ExpiryLabel:     "29-May-2025",
		},
		Store: Store{
			Driver:   "memory",
			Table:    "option_chain_snapshots",
			RedisKey: "optionchain:snapshots",
		},
		Scheduler: Scheduler{Enabled: true, IntervalSec: 300, RunOnStart: true},
		Logging:   Logging{Level: "info", Format: "json"},
	}
}

// Load reads config from path (JSON or YAML, by extension). If path is empty,
// ./config.{json,yaml} is used when present; otherwise defaults apply.
// OPTIONCHAIN_<SECTION>_<KEY> environment variables override file values.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix("OPTIONCHAIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// defaults + env
		case path != "" && errors.Is(err, os.ErrNotExist):
			// explicit path that does not exist: same as no file
		default:
			return Default(), fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// maxRetryAttempts caps every step's budget; the backoff doubles per attempt.
const maxRetryAttempts = 10

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Source.BaseURL) == "" {
		return fmt.Errorf("config: source.base_url is empty")
	}
	if strings.TrimSpace(c.Source.Symbol) == "" {
		return fmt.Errorf("config: source.symbol is empty")
	}
	if c.Source.PipelineTimeoutSec <= 0 {
		return fmt.Errorf("config: source.pipeline_timeout_sec must be > 0")
	}
	for name, j := range map[string]JitterRange{"after_landing": c.Jitter.AfterLanding, "after_chain_page": c.Jitter.AfterChainPage} {
		if j.MinMs < 0 || j.MaxMs < j.MinMs {
			return fmt.Errorf("config: jitter.%s range [%d,%d) is invalid", name, j.MinMs, j.MaxMs)
		}
	}
	for name, p := range map[string]RetryPolicy{"landing": c.Retry.Landing, "chain_page": c.Retry.ChainPage, "fetch": c.Retry.Fetch} {
		if p.MaxAttempts < 1 || p.MaxAttempts > maxRetryAttempts {
			return fmt.Errorf("config: retry.%s.max_attempts must be in [1,%d]", name, maxRetryAttempts)
		}
		if p.InitialDelayMs < 0 {
			return fmt.Errorf("config: retry.%s.initial_delay_ms must be >= 0", name)
		}
	}
	if c.Synthetic.NumStrikes > 1 && c.Synthetic.StrikeStep == 0 {
		return fmt.Errorf("config: synthetic.strike_step must be non-zero")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("config: store.postgres_dsn is required for the postgres driver")
		}
	case "redis":
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("config: store.redis_addr is required for the redis driver")
		}
	default:
		return fmt.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Scheduler.Enabled && c.Scheduler.IntervalSec <= 0 {
		return fmt.Errorf("config: scheduler.interval_sec must be > 0")
	}
	return nil
}

func (c Config) PipelineTimeout() time.Duration {
	return time.Duration(c.Source.PipelineTimeoutSec) * time.Second
}

func (c Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalSec) * time.Second
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout_sec", d.Server.RequestTimeoutSec)
	v.SetDefault("server.cors_origins", d.Server.CORSOrigins)

	v.SetDefault("source.name", d.Source.Name)
	v.SetDefault("source.base_url", d.Source.BaseURL)
	v.SetDefault("source.chain_page_path", d.Source.ChainPagePath)
	v.SetDefault("source.api_path", d.Source.APIPath)
	v.SetDefault("source.symbol", d.Source.Symbol)
	v.SetDefault("source.http_timeout_sec", d.Source.HTTPTimeoutSec)
	v.SetDefault("source.pipeline_timeout_sec", d.Source.PipelineTimeoutSec)
	v.SetDefault("source.min_request_interval_sec", d.Source.MinRequestIntervalSec)
	v.SetDefault("source.max_requests_per_minute", d.Source.MaxRequestsPerMinute)
	v.SetDefault("source.burst", d.Source.Burst)
	v.SetDefault("source.cache_ttl_sec", d.Source.CacheTTLSeconds)

	for name, p := range map[string]RetryPolicy{"landing": d.Retry.Landing, "chain_page": d.Retry.ChainPage, "fetch": d.Retry.Fetch} {
		v.SetDefault("retry."+name+".max_attempts", p.MaxAttempts)
		v.SetDefault("retry."+name+".initial_delay_ms", p.InitialDelayMs)
	}
	for name, j := range map[string]JitterRange{"after_landing": d.Jitter.AfterLanding, "after_chain_page": d.Jitter.AfterChainPage} {
		v.SetDefault("jitter."+name+".min_ms", j.MinMs)
		v.SetDefault("jitter."+name+".max_ms", j.MaxMs)
	}

	v.SetDefault("synthetic.underlying", d.Synthetic.Underlying)
	v.SetDefault("synthetic.underlying_value", d.Synthetic.UnderlyingValue)
	v.SetDefault("synthetic.base_strike", d.Synthetic.BaseStrike)
	v.SetDefault("synthetic.strike_step", d.Synthetic.StrikeStep)
	v.SetDefault("synthetic.num_strikes", d.Synthetic.NumStrikes)
	v.SetDefault("synthetic.seed", d.Synthetic.Seed)
	v.SetDefault("synthetic.expiry_label", d.Synthetic.ExpiryLabel)

	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.postgres_dsn", d.Store.PostgresDSN)
	v.SetDefault("store.table", d.Store.Table)
	v.SetDefault("store.redis_addr", d.Store.RedisAddr)
	v.SetDefault("store.redis_password", d.Store.RedisPassword)
	v.SetDefault("store.redis_db", d.Store.RedisDB)
	v.SetDefault("store.redis_key", d.Store.RedisKey)

	v.SetDefault("scheduler.enabled", d.Scheduler.Enabled)
	v.SetDefault("scheduler.interval_sec", d.Scheduler.IntervalSec)
	v.SetDefault("scheduler.run_on_start", d.Scheduler.RunOnStart)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// applyEnv honours the conventional unprefixed variables used by hosting platforms.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" && cfg.Store.PostgresDSN == "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" && cfg.Store.RedisPassword == "" {
		cfg.Store.RedisPassword = v
	}
}
