package nse

import "net/http"

const (
	// DefaultBaseURL is the exchange origin; the landing page lives at its root.
	DefaultBaseURL = "https://www.nseindia.com"
	// DefaultChainPagePath is the human-facing option chain page visited for extra cookies.
	DefaultChainPagePath = "/option-chain"
	// DefaultAPIPath is the JSON endpoint serving index option chains.
	DefaultAPIPath = "/api/option-chain-indices"
	// DefaultSymbol is the index queried when none is configured.
	DefaultSymbol = "NIFTY"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// browserHeaders mimic a desktop Chrome navigation. Accept-Encoding lists only
// what decodeBody understands.
var browserHeaders = [][2]string{
	{"User-Agent", userAgent},
	{"Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
	{"Accept-Language", "en-US,en;q=0.9"},
	{"Accept-Encoding", "gzip, deflate, zstd"},
	{"Connection", "keep-alive"},
	{"Upgrade-Insecure-Requests", "1"},
	{"Cache-Control", "max-age=0"},
	{"Referer", DefaultBaseURL + "/"},
	{"Sec-Fetch-Dest", "document"},
	{"Sec-Fetch-Mode", "navigate"},
	{"Sec-Fetch-Site", "same-origin"},
	{"Sec-Fetch-User", "?1"},
	{"Sec-Ch-Ua", `"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`},
	{"Sec-Ch-Ua-Mobile", "?0"},
	{"Sec-Ch-Ua-Platform", `"Windows"`},
	{"Pragma", "no-cache"},
	{"Priority", "u=0, i"},
	{"Cookie", ""},
}

// Headers returns a fresh browser-like header set with overrides applied on top.
// Callers typically override Cookie and Referer.
func Headers(overrides map[string]string) http.Header {
	h := make(http.Header, len(browserHeaders)+len(overrides))
	for _, kv := range browserHeaders {
		h.Set(kv[0], kv[1])
	}
	for k, v := range overrides {
		h.Set(k, v)
	}
	return h
}
