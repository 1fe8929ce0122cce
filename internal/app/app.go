package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"optionchain/internal/config"
	"optionchain/internal/httpx"
	"optionchain/internal/provider"
	"optionchain/internal/provider/cache"
	"optionchain/internal/provider/fallback"
	"optionchain/internal/provider/nse"
	"optionchain/internal/provider/ratelimit"
	"optionchain/internal/provider/synthetic"
	"optionchain/internal/retry"
	"optionchain/internal/store"
)

// Pipeline is the wired acquisition stack shared by the server and the CLI.
type Pipeline struct {
	Store    store.Store
	Live     *nse.Provider
	Resolver *fallback.Resolver
}

// New opens the store and builds the live provider and resolver from cfg.
// Callers own the returned Pipeline and must Close it.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*Pipeline, error) {
	if log == nil {
		log = zap.NewNop()
	}
	live, err := NewLive(cfg, log)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Store, log.With(zap.String("component", "store")))
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Store: st,
		Live:  live,
		Resolver: &fallback.Resolver{
			Live:       Decorate(live, cfg.Source),
			Store:      st,
			Synthetic:  NewSynthetic(cfg.Synthetic),
			Underlying: cfg.Source.Symbol,
			Timeout:    cfg.PipelineTimeout(),
			Log:        log.With(zap.String("component", "resolver")),
		},
	}, nil
}

func (p *Pipeline) Close() error {
	if p.Store == nil {
		return nil
	}
	return p.Store.Close()
}

// NewLive builds the session bootstrapper and chain client on one HTTP transport.
func NewLive(cfg config.Config, log *zap.Logger) (*nse.Provider, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "nse"))
	hc := httpx.New(time.Duration(cfg.Source.HTTPTimeoutSec) * time.Second)
	exec := &retry.Executor{Log: log}

	client, err := nse.NewClient(
		nse.WithHTTPClient(hc),
		nse.WithBaseURL(cfg.Source.BaseURL),
		nse.WithAPIPath(cfg.Source.APIPath),
		nse.WithSymbol(cfg.Source.Symbol),
		nse.WithRetry(exec, cfg.Retry.Fetch.Policy()),
		nse.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("nse client: %w", err)
	}

	session := nse.NewBootstrapper(hc)
	session.BaseURL = cfg.Source.BaseURL
	session.ChainPagePath = cfg.Source.ChainPagePath
	session.Landing = cfg.Retry.Landing.Policy()
	session.ChainPage = cfg.Retry.ChainPage.Policy()
	session.AfterLanding = jitter(cfg.Jitter.AfterLanding)
	session.AfterChainPage = jitter(cfg.Jitter.AfterChainPage)
	session.Retry = exec
	session.Log = log

	return &nse.Provider{Session: session, Client: client, Log: log}, nil
}

func jitter(j config.JitterRange) nse.Jitter {
	lo, hi := j.Bounds()
	return nse.Jitter{Min: lo, Max: hi}
}

// Decorate wraps p with the rate limit and cache configured for src.
// A token bucket wins over the minimum interval when both are set.
func Decorate(p provider.Provider, src config.Source) provider.Provider {
	switch {
	case src.MaxRequestsPerMinute > 0:
		burst := src.Burst
		if burst <= 0 {
			burst = 1
		}
		p = &ratelimit.TokenBucketProvider{P: p, TB: ratelimit.PerMinute(src.MaxRequestsPerMinute, burst)}
	case src.MinRequestIntervalSec > 0:
		p = &ratelimit.MinInterval{P: p, Interval: time.Duration(src.MinRequestIntervalSec) * time.Second}
	}
	if src.CacheTTLSeconds > 0 {
		p = &cache.Provider{P: p, TTL: time.Duration(src.CacheTTLSeconds) * time.Second}
	}
	return p
}

func NewSynthetic(cfg config.Synthetic) *synthetic.Generator {
	return synthetic.New(synthetic.Config{
		Underlying:      cfg.Underlying,
		UnderlyingValue: cfg.UnderlyingValue,
		BaseStrike:      cfg.BaseStrike,
		StrikeStep:      cfg.StrikeStep,
		NumStrikes:      cfg.NumStrikes,
		Seed:            cfg.Seed,
		ExpiryLabel:     cfg.ExpiryLabel,
	})
}
