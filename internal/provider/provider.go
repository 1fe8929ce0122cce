package provider

import (
	"context"
	"fmt"
	"time"
)

// OptionQuote is one strike's two-sided market snapshot.
// Every numeric field is 0 when the source omits the side or the value.
type OptionQuote struct {
	StrikePrice float64 `json:"strikePrice"`
	ExpiryDate  string  `json:"expiryDate"`

	CallOI         float64 `json:"callOI"`
	CallChangeInOI float64 `json:"callChangeInOI"`
	CallVolume     float64 `json:"callVolume"`
	CallIV         float64 `json:"callIV"`
	CallLTP        float64 `json:"callLTP"`
	CallNetChange  float64 `json:"callNetChange"`
	CallBidQty     float64 `json:"callBidQty"`
	CallBidPrice   float64 `json:"callBidPrice"`
	CallAskPrice   float64 `json:"callAskPrice"`
	CallAskQty     float64 `json:"callAskQty"`

	PutOI         float64 `json:"putOI"`
	PutChangeInOI float64 `json:"putChangeInOI"`
	PutVolume     float64 `json:"putVolume"`
	PutIV         float64 `json:"putIV"`
	PutLTP        float64 `json:"putLTP"`
	PutNetChange  float64 `json:"putNetChange"`
	PutBidQty     float64 `json:"putBidQty"`
	PutBidPrice   float64 `json:"putBidPrice"`
	PutAskPrice   float64 `json:"putAskPrice"`
	PutAskQty     float64 `json:"putAskQty"`
}

// Snapshot is one point-in-time capture of an option chain.
// Options are sorted ascending by strike with no duplicates.
type Snapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	Underlying      string        `json:"underlying"`
	UnderlyingValue float64       `json:"underlyingValue"`
	Options         []OptionQuote `json:"options"`

	IsMockData   bool   `json:"isMockData,omitempty"`
	IsRecentData bool   `json:"isRecentData,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorTime    string `json:"errorTime,omitempty"`
}

// Kind labels where a snapshot came from.
type Kind string

const (
	KindLive      Kind = "live"
	KindRecent    Kind = "recent"
	KindSynthetic Kind = "synthetic"
)

func (s Snapshot) Kind() Kind {
	switch {
	case s.IsMockData:
		return KindSynthetic
	case s.IsRecentData:
		return KindRecent
	default:
		return KindLive
	}
}

// Validate reports the first broken snapshot invariant, if any.
func (s Snapshot) Validate() error {
	if len(s.Options) == 0 {
		return fmt.Errorf("snapshot has no options")
	}
	if s.IsMockData && s.IsRecentData {
		return fmt.Errorf("snapshot is labelled both mock and recent")
	}
	for i := 1; i < len(s.Options); i++ {
		prev, cur := s.Options[i-1].StrikePrice, s.Options[i].StrikePrice
		if cur == prev {
			return fmt.Errorf("duplicate strike %v", cur)
		}
		if cur < prev {
			return fmt.Errorf("strikes not ascending at index %d (%v after %v)", i, cur, prev)
		}
	}
	return nil
}

// Clone returns a copy that shares no slice memory with s.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Options = append([]OptionQuote(nil), s.Options...)
	return out
}

// Provider produces one option-chain snapshot per call.
type Provider interface {
	Name() string
	Fetch(ctx context.Context) (Snapshot, error)
}
