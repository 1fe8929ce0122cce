package nse

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"optionchain/internal/provider"
	"optionchain/internal/retry"
)

// Handshake steps reported in SessionAcquisitionError.
const (
	StepLanding        = "landing page"
	StepLandingPause   = "pause after landing page"
	StepChainPage      = "option chain page"
	StepChainPagePause = "pause after option chain page"
)

// Jitter is a half-open [Min, Max) random pause.
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

func (j Jitter) pick(randN func(n int64) int64) time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	return j.Min + time.Duration(randN(int64(j.Max-j.Min)))
}

// Bootstrapper acquires the cookies the data endpoint requires by walking the
// landing page and then the option chain page, pausing between steps.
// Zero-valued collaborators fall back to the wall clock, math/rand/v2 and a no-op logger.
type Bootstrapper struct {
	HTTP          HTTPClient
	BaseURL       string
	ChainPagePath string

	Landing   retry.Policy // default 5 attempts from 1s
	ChainPage retry.Policy // default 3 attempts from 1.5s

	AfterLanding   Jitter
	AfterChainPage Jitter

	Retry *retry.Executor
	Log   *zap.Logger
	Sleep func(ctx context.Context, d time.Duration) error
	RandN func(n int64) int64
}

// NewBootstrapper returns a Bootstrapper with the exchange defaults.
func NewBootstrapper(hc HTTPClient) *Bootstrapper {
	return &Bootstrapper{
		HTTP:           hc,
		BaseURL:        DefaultBaseURL,
		ChainPagePath:  DefaultChainPagePath,
		Landing:        retry.Policy{MaxAttempts: 5, InitialDelay: time.Second},
		ChainPage:      retry.Policy{MaxAttempts: 3, InitialDelay: 1500 * time.Millisecond},
		AfterLanding:   Jitter{Min: 2 * time.Second, Max: 3 * time.Second},
		AfterChainPage: Jitter{Min: 2 * time.Second, Max: 4 * time.Second},
	}
}

// Bootstrap returns browser headers carrying every Set-Cookie value seen during
// the handshake, with Referer set to the option chain page.
func (b *Bootstrapper) Bootstrap(ctx context.Context) (http.Header, error) {
	log := b.Log
	if log == nil {
		log = zap.NewNop()
	}
	hc := b.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	root := strings.TrimRight(b.BaseURL, "/")
	if root == "" {
		root = DefaultBaseURL
	}
	referer := root + "/"
	chainPage := root + b.ChainPagePath

	log.Info("visiting landing page", zap.String("url", root))
	landingHeader := Headers(map[string]string{"Referer": referer})
	first, err := retry.Do(ctx, b.Retry, b.Landing, StepLanding, func(ctx context.Context) (response, error) {
		return get(ctx, hc, root, landingHeader, false)
	})
	if err != nil {
		return nil, &provider.SessionAcquisitionError{Step: StepLanding, Err: err}
	}
	cookies := first.Cookies
	if len(cookies) == 0 {
		log.Warn("no cookies received from landing page")
	} else {
		log.Debug("landing page cookies received", zap.Int("count", len(cookies)))
	}

	if err := b.pause(ctx, log, b.AfterLanding); err != nil {
		return nil, &provider.SessionAcquisitionError{Step: StepLandingPause, Err: err}
	}

	log.Info("visiting option chain page", zap.String("url", chainPage))
	chainHeader := Headers(map[string]string{"Cookie": strings.Join(cookies, "; "), "Referer": referer})
	second, err := retry.Do(ctx, b.Retry, b.ChainPage, StepChainPage, func(ctx context.Context) (response, error) {
		return get(ctx, hc, chainPage, chainHeader, false)
	})
	if err != nil {
		return nil, &provider.SessionAcquisitionError{Step: StepChainPage, Err: err}
	}
	if len(second.Cookies) > 0 {
		cookies = append(cookies, second.Cookies...)
		log.Debug("option chain page cookies received", zap.Int("count", len(second.Cookies)))
	}

	if err := b.pause(ctx, log, b.AfterChainPage); err != nil {
		return nil, &provider.SessionAcquisitionError{Step: StepChainPagePause, Err: err}
	}

	return Headers(map[string]string{"Cookie": strings.Join(cookies, "; "), "Referer": chainPage}), nil
}

func (b *Bootstrapper) pause(ctx context.Context, log *zap.Logger, j Jitter) error {
	randN := b.RandN
	if randN == nil {
		randN = rand.Int64N
	}
	sleep := b.Sleep
	if sleep == nil {
		sleep = retry.SleepContext
	}
	d := j.pick(randN)
	log.Debug("pausing", zap.Duration("delay", d))
	return sleep(ctx, d)
}
