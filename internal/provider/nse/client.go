package nse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"optionchain/internal/provider"
	"optionchain/internal/retry"
)

// maxBodyBytes caps how much of a single response is read.
const maxBodyBytes = 32 << 20

// errBodyPreview caps the body excerpt carried by HTTPStatusError.
const errBodyPreview = 256

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=nse_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches the raw option chain document.
type Client struct {
	// baseURL is the exchange origin.
	baseURL string
	// apiPath is the data endpoint path under baseURL.
	apiPath string
	// symbol is sent as the symbol query parameter.
	symbol string
	// httpClient performs the requests.
	httpClient HTTPClient
	// header is merged under the session header of every request.
	header http.Header
	// policy bounds the attempts of one FetchChain call.
	policy retry.Policy
	// exec carries the retry logger and sleeper.
	exec *retry.Executor
	log  *zap.Logger
}

// ClientOption is a configuration option for Client.
type ClientOption func(*Client)

// WithBaseURL sets the exchange origin.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithAPIPath sets the data endpoint path.
func WithAPIPath(path string) ClientOption {
	return func(c *Client) {
		c.apiPath = path
	}
}

// WithSymbol sets the index symbol to query.
func WithSymbol(symbol string) ClientOption {
	return func(c *Client) {
		c.symbol = symbol
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader adds headers to every request. Session headers win on conflict.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithRetry sets the attempt budget and the executor driving it.
func WithRetry(exec *retry.Executor, policy retry.Policy) ClientOption {
	return func(c *Client) {
		c.exec = exec
		c.policy = policy
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// NewClient creates a Client with the exchange defaults: NIFTY, four attempts from 2s.
func NewClient(options ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiPath:    DefaultAPIPath,
		symbol:     DefaultSymbol,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		policy:     retry.Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second},
		log:        zap.NewNop(),
	}
	for _, option := range options {
		option(c)
	}
	if _, err := url.Parse(c.baseURL); err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if strings.TrimSpace(c.symbol) == "" {
		return nil, fmt.Errorf("symbol is empty")
	}
	return c, nil
}

// Symbol returns the configured index symbol.
func (c *Client) Symbol() string { return c.symbol }

// ChainURL is the data endpoint with the symbol query applied.
func (c *Client) ChainURL() string {
	q := url.Values{}
	q.Set("symbol", c.symbol)
	return c.baseURL + c.apiPath + "?" + q.Encode()
}

// FetchChain GETs the option chain with the session header and returns the
// decoded body verbatim. Failures after the retry budget are *provider.FetchError.
func (c *Client) FetchChain(ctx context.Context, header http.Header) (json.RawMessage, error) {
	target := c.ChainURL()
	merged := c.header.Clone()
	for key, values := range header {
		merged[key] = append([]string(nil), values...)
	}

	c.log.Debug("fetching option chain", zap.String("url", target))
	res, err := retry.Do(ctx, c.exec, c.policy, "fetch option chain", func(ctx context.Context) (response, error) {
		return get(ctx, c.httpClient, target, merged, true)
	})
	if err != nil {
		return nil, &provider.FetchError{URL: target, Err: err}
	}
	c.log.Debug("option chain fetched", zap.Int("bytes", len(res.Body)))
	return json.RawMessage(res.Body), nil
}

// response is what one GET yields to the pipeline.
type response struct {
	Body    []byte
	Cookies []string // raw Set-Cookie values, in header order
}

// get performs one GET. Non-2xx statuses are errors so the caller's retry policy applies.
func get(ctx context.Context, hc HTTPClient, target string, header http.Header, readBody bool) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return response{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header = header.Clone()

	res, err := hc.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("performing request: %w", err)
	}
	defer res.Body.Close()

	out := response{Cookies: res.Header.Values("Set-Cookie")}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		preview, _ := decodeBody(res)
		if len(preview) > errBodyPreview {
			preview = preview[:errBodyPreview]
		}
		return response{}, &provider.HTTPStatusError{StatusCode: res.StatusCode, URL: target, Body: strings.TrimSpace(string(preview))}
	}
	if !readBody {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxBodyBytes))
		return out, nil
	}
	out.Body, err = decodeBody(res)
	if err != nil {
		return response{}, fmt.Errorf("reading body: %w", err)
	}
	return out, nil
}

// decodeBody reads the body and undoes Content-Encoding. Requests carry an
// explicit Accept-Encoding, so net/http does not decompress on its own.
func decodeBody(res *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	switch enc := strings.ToLower(strings.TrimSpace(res.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return raw, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer zr.Close()
		return io.ReadAll(io.LimitReader(zr, maxBodyBytes))
	case "deflate":
		// Most servers send zlib-wrapped deflate; some send a raw stream.
		if zr, err := zlib.NewReader(bytes.NewReader(raw)); err == nil {
			defer zr.Close()
			return io.ReadAll(io.LimitReader(zr, maxBodyBytes))
		}
		fr := flate.NewReader(bytes.NewReader(raw))
		defer fr.Close()
		return io.ReadAll(io.LimitReader(fr, maxBodyBytes))
	case "zstd":
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		return dec.DecodeAll(raw, nil)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
