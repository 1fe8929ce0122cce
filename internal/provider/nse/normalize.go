package nse

import (
	"bytes"
	"cmp"
	"encoding/json"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"optionchain/internal/provider"
)

// Normalize turns the raw option chain document into a Snapshot restricted to
// the nearest expiry, sorted by strike.
//
// The nearest expiry is the first entry of records.expiryDates as served; the
// exchange lists them chronologically and no date parsing is attempted.
func Normalize(raw []byte, underlying string, now time.Time) (provider.Snapshot, error) {
	// {
	//   "records": {"expiryDates": ["29-May-2025", ...], "underlyingValue": 24784.2, ...},
	//   "filtered": {"data": [{"strikePrice": 24000, "expiryDate": "29-May-2025", "CE": {...}, "PE": {...}}, ...]}
	// }
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil || doc == nil {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "payload is not a JSON object"}
	}

	records, ok := doc["records"].(map[string]any)
	if !ok {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "missing required data structures (records)"}
	}
	filtered, ok := doc["filtered"].(map[string]any)
	if !ok {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "missing required data structures (filtered)"}
	}

	expiries, _ := records["expiryDates"].([]any)
	if len(expiries) == 0 {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "no expiry dates found"}
	}
	nearest, ok := expiries[0].(string)
	if !ok || nearest == "" {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "first expiry date is not a string"}
	}

	rows, _ := filtered["data"].([]any)
	if len(rows) == 0 {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "no option data found"}
	}

	options := make([]provider.OptionQuote, 0, len(rows))
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		if expiry, _ := row["expiryDate"].(string); expiry != nearest {
			continue
		}
		strike, ok := parseNumber(row, "strikePrice")
		if !ok {
			continue
		}
		ce, _ := row["CE"].(map[string]any)
		pe, _ := row["PE"].(map[string]any)
		options = append(options, provider.OptionQuote{
			StrikePrice: strike,
			ExpiryDate:  nearest,

			CallOI:         number(ce, "openInterest"),
			CallChangeInOI: number(ce, "changeinOpenInterest"),
			CallVolume:     number(ce, "totalTradedVolume"),
			CallIV:         number(ce, "impliedVolatility"),
			CallLTP:        number(ce, "lastPrice"),
			CallNetChange:  number(ce, "change"),
			CallBidQty:     number(ce, "bidQty"),
			CallBidPrice:   number(ce, "bidprice"),
			CallAskPrice:   number(ce, "askPrice"),
			CallAskQty:     number(ce, "askQty"),

			PutOI:         number(pe, "openInterest"),
			PutChangeInOI: number(pe, "changeinOpenInterest"),
			PutVolume:     number(pe, "totalTradedVolume"),
			PutIV:         number(pe, "impliedVolatility"),
			PutLTP:        number(pe, "lastPrice"),
			PutNetChange:  number(pe, "change"),
			PutBidQty:     number(pe, "bidQty"),
			PutBidPrice:   number(pe, "bidprice"),
			PutAskPrice:   number(pe, "askPrice"),
			PutAskQty:     number(pe, "askQty"),
		})
	}
	if len(options) == 0 {
		return provider.Snapshot{}, &provider.SchemaValidationError{Reason: "no option data found for the nearest expiry date " + nearest}
	}

	slices.SortStableFunc(options, func(a, b provider.OptionQuote) int {
		return cmp.Compare(a.StrikePrice, b.StrikePrice)
	})
	// keep the first row seen for a strike
	options = slices.CompactFunc(options, func(a, b provider.OptionQuote) bool {
		return a.StrikePrice == b.StrikePrice
	})

	return provider.Snapshot{
		Timestamp:       now,
		Underlying:      underlying,
		UnderlyingValue: number(records, "underlyingValue"),
		Options:         options,
	}, nil
}

// number reads m[key] as a float64; absent, null and non-numeric values read as 0.
func number(m map[string]any, key string) float64 {
	if v, ok := parseNumber(m, key); ok {
		return v
	}
	return 0
}

func parseNumber(m map[string]any, key string) (float64, bool) {
	if m == nil {
		return 0, false
	}
	switch v := m[key].(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
