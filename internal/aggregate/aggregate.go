package aggregate

import (
	"math"
	"time"

	"optionchain/internal/provider"
)

// Summary is the chain-level view of one snapshot.
type Summary struct {
	Underlying      string        `json:"underlying"`
	UnderlyingValue float64       `json:"underlyingValue"`
	Expiry          string        `json:"expiryDate"`
	Timestamp       time.Time     `json:"timestamp"`
	Kind            provider.Kind `json:"kind"`
	Strikes         int           `json:"strikes"`

	TotalCallOI     float64 `json:"totalCallOI"`
	TotalPutOI      float64 `json:"totalPutOI"`
	TotalCallVolume float64 `json:"totalCallVolume"`
	TotalPutVolume  float64 `json:"totalPutVolume"`

	// PCR is put OI over call OI; 0 when there is no call OI.
	PCR float64 `json:"pcr"`

	ATMStrike       float64 `json:"atmStrike"`
	MaxPainStrike   float64 `json:"maxPainStrike"`
	MaxCallOIStrike float64 `json:"maxCallOIStrike"`
	MaxPutOIStrike  float64 `json:"maxPutOIStrike"`
}

// Summarize computes totals and the reference strikes of s.
// Ties between strikes resolve to the lower strike. An empty chain yields
// only the header fields.
func Summarize(s provider.Snapshot) Summary {
	out := Summary{
		Underlying:      s.Underlying,
		UnderlyingValue: s.UnderlyingValue,
		Timestamp:       s.Timestamp,
		Kind:            s.Kind(),
		Strikes:         len(s.Options),
	}
	if len(s.Options) == 0 {
		return out
	}
	out.Expiry = s.Options[0].ExpiryDate

	var (
		atmDist             = math.Inf(1)
		maxCallOI, maxPutOI = math.Inf(-1), math.Inf(-1)
	)
	for _, o := range s.Options {
		out.TotalCallOI += o.CallOI
		out.TotalPutOI += o.PutOI
		out.TotalCallVolume += o.CallVolume
		out.TotalPutVolume += o.PutVolume

		if d := math.Abs(o.StrikePrice - s.UnderlyingValue); d < atmDist || (d == atmDist && o.StrikePrice < out.ATMStrike) {
			atmDist, out.ATMStrike = d, o.StrikePrice
		}
		if o.CallOI > maxCallOI || (o.CallOI == maxCallOI && o.StrikePrice < out.MaxCallOIStrike) {
			maxCallOI, out.MaxCallOIStrike = o.CallOI, o.StrikePrice
		}
		if o.PutOI > maxPutOI || (o.PutOI == maxPutOI && o.StrikePrice < out.MaxPutOIStrike) {
			maxPutOI, out.MaxPutOIStrike = o.PutOI, o.StrikePrice
		}
	}
	if out.TotalCallOI > 0 {
		out.PCR = out.TotalPutOI / out.TotalCallOI
	}
	out.MaxPainStrike = MaxPain(s.Options)
	return out
}

// MaxPain returns the listed strike at which option writers pay out the least
// if the underlying settles there.
func MaxPain(options []provider.OptionQuote) float64 {
	best, bestPayout := 0.0, math.Inf(1)
	for _, settle := range options {
		payout := 0.0
		for _, o := range options {
			if settle.StrikePrice > o.StrikePrice {
				payout += o.CallOI * (settle.StrikePrice - o.StrikePrice)
			} else if settle.StrikePrice < o.StrikePrice {
				payout += o.PutOI * (o.StrikePrice - settle.StrikePrice)
			}
		}
		if payout < bestPayout || (payout == bestPayout && settle.StrikePrice < best) {
			best, bestPayout = settle.StrikePrice, payout
		}
	}
	return best
}
