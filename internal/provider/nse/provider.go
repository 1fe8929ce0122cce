package nse

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"optionchain/internal/provider"
)

// Provider is the live pipeline: session handshake, fetch, normalize.
type Provider struct {
	Session *Bootstrapper
	Client  *Client
	Log     *zap.Logger
	Now     func() time.Time
}

func (p *Provider) Name() string { return "nse" }

// Fetch runs one live acquisition. Errors are the typed errors of each stage.
func (p *Provider) Fetch(ctx context.Context) (provider.Snapshot, error) {
	raw, err := p.FetchRaw(ctx)
	if err != nil {
		return provider.Snapshot{}, err
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	snap, err := Normalize(raw, p.Client.Symbol(), now().UTC())
	if err != nil {
		return provider.Snapshot{}, err
	}
	p.logger().Info("option chain normalized",
		zap.String("underlying", snap.Underlying),
		zap.Float64("underlying_value", snap.UnderlyingValue),
		zap.String("expiry", snap.Options[0].ExpiryDate),
		zap.Int("strikes", len(snap.Options)),
	)
	return snap, nil
}

// FetchRaw runs the handshake and returns the undecoded chain document.
func (p *Provider) FetchRaw(ctx context.Context) (json.RawMessage, error) {
	header, err := p.Session.Bootstrap(ctx)
	if err != nil {
		return nil, err
	}
	return p.Client.FetchChain(ctx, header)
}

func (p *Provider) logger() *zap.Logger {
	if p.Log == nil {
		return zap.NewNop()
	}
	return p.Log
}
