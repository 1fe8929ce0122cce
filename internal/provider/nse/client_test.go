package nse_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"optionchain/internal/provider"
	"optionchain/internal/provider/nse"
	"optionchain/internal/retry"
)

const chainBody = `{"records":{"expiryDates":["a"]},"filtered":{"data":[{"strikePrice":1,"expiryDate":"a"}]}}`

// noWait is a retry executor that records delays instead of sleeping.
func noWait(delays *[]time.Duration) *retry.Executor {
	return &retry.Executor{Sleep: func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}}
}

func TestFetchChain(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "https://www.nseindia.com/api/option-chain-indices?symbol=NIFTY", req.URL.String())
			require.Equal(t, "nsit=1; nseappid=2", req.Header.Get("Cookie"))
			require.Equal(t, "https://www.nseindia.com/option-chain", req.Header.Get("Referer"))
			require.Equal(t, "extra", req.Header.Get("X-Extra"))

			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(bytes.NewBufferString(chainBody)),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new client
	client, err := nse.NewClient(nse.WithHTTPClient(httpClient), nse.WithHeader(http.Header{"X-Extra": {"extra"}}))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call FetchChain with a session header
	header := nse.Headers(map[string]string{"Cookie": "nsit=1; nseappid=2", "Referer": "https://www.nseindia.com/option-chain"})
	raw, err := client.FetchChain(t.Context(), header)

	// Assert: the body is returned verbatim
	require.NoError(t, err)
	require.JSONEq(t, chainBody, string(raw))
}

func TestFetchChain_DecodesGzip(t *testing.T) {
	t.Parallel()

	// Arrange: a gzip-encoded body
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(chainBody))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Encoding": {"gzip"}},
			Body:       io.NopCloser(&buf),
		}, nil).
		Times(1)

	client, err := nse.NewClient(nse.WithHTTPClient(httpClient))
	require.NoError(t, err)

	// Act
	raw, err := client.FetchChain(t.Context(), nse.Headers(nil))

	// Assert
	require.NoError(t, err)
	require.JSONEq(t, chainBody, string(raw))
}

func TestFetchChain_DecodesZstd(t *testing.T) {
	t.Parallel()

	// Arrange: a zstd-encoded body
	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll([]byte(chainBody), nil)
	require.NoError(t, enc.Close())

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Encoding": {"zstd"}},
			Body:       io.NopCloser(bytes.NewReader(compressed)),
		}, nil).
		Times(1)

	client, err := nse.NewClient(nse.WithHTTPClient(httpClient))
	require.NoError(t, err)

	raw, err := client.FetchChain(t.Context(), nse.Headers(nil))
	require.NoError(t, err)
	require.JSONEq(t, chainBody, string(raw))
}

func TestFetchChain_RetriesThenFetchError(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: the origin rejects every attempt
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Body:       io.NopCloser(bytes.NewBufferString(`{"message":"unauthorized"}`)),
			}, nil
		}).
		Times(4)

	var delays []time.Duration
	client, err := nse.NewClient(
		nse.WithHTTPClient(httpClient),
		nse.WithRetry(noWait(&delays), retry.Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second}),
	)
	require.NoError(t, err)

	// Act
	raw, err := client.FetchChain(t.Context(), nse.Headers(nil))

	// Assert: four attempts, 2s/4s/8s between them, typed error chain
	require.Nil(t, raw)
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}, delays)

	var fetchErr *provider.FetchError
	require.True(t, errors.As(err, &fetchErr))
	require.Contains(t, fetchErr.URL, "symbol=NIFTY")

	var statusErr *provider.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "unauthorized")
}

func TestFetchChain_RecoversAfterTransportError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	gomock.InOrder(
		httpClient.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection reset")),
		httpClient.EXPECT().Do(gomock.Any()).Return(&http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString(chainBody)),
		}, nil),
	)

	var delays []time.Duration
	client, err := nse.NewClient(
		nse.WithHTTPClient(httpClient),
		nse.WithRetry(noWait(&delays), retry.Policy{MaxAttempts: 4, InitialDelay: 2 * time.Second}),
	)
	require.NoError(t, err)

	raw, err := client.FetchChain(t.Context(), nse.Headers(nil))
	require.NoError(t, err)
	require.NotEmpty(t, raw)
	require.Equal(t, []time.Duration{2 * time.Second}, delays)
}

func TestFetchChain_WithSymbolAndBaseURL(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, "http://localhost:8080/api/option-chain-indices?symbol=BANKNIFTY", req.URL.String())
			return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewBufferString(chainBody))}, nil
		}).
		Times(1)

	client, err := nse.NewClient(
		nse.WithHTTPClient(httpClient),
		nse.WithBaseURL("http://localhost:8080/"),
		nse.WithSymbol("BANKNIFTY"),
	)
	require.NoError(t, err)
	require.Equal(t, "BANKNIFTY", client.Symbol())

	_, err = client.FetchChain(t.Context(), nse.Headers(nil))
	require.NoError(t, err)
}

func TestNewClient_ErrInvalidBaseURL(t *testing.T) {
	t.Parallel()

	client, err := nse.NewClient(nse.WithBaseURL(string([]rune{0x7f})))
	require.Error(t, err)
	require.Nil(t, client)
}

func TestNewClient_ErrEmptySymbol(t *testing.T) {
	t.Parallel()

	client, err := nse.NewClient(nse.WithSymbol(" "))
	require.Error(t, err)
	require.Nil(t, client)
}
