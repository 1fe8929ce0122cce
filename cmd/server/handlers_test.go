package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"optionchain/internal/aggregate"
	"optionchain/internal/notify"
	"optionchain/internal/provider"
	"optionchain/internal/provider/fallback"
	"optionchain/internal/store"
)

type fakeResolver struct{ res fallback.Result }

func (f fakeResolver) Resolve(context.Context) fallback.Result { return f.res }

type failingStore struct{}

func (failingStore) Latest(context.Context) (*provider.Snapshot, error) {
	return nil, errors.New("connection refused")
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (h *recordingHub) Broadcast(msg notify.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.msgs = append(h.msgs, msg)
}

func sampleSnapshot() provider.Snapshot {
	return provider.Snapshot{
		Timestamp:       time.Date(2025, 5, 23, 10, 0, 0, 0, time.UTC),
		Underlying:      "NIFTY",
		UnderlyingValue: 24830,
		Options: []provider.OptionQuote{
			{StrikePrice: 24800, ExpiryDate: "29-May-2025", CallOI: 400, PutOI: 600},
			{StrikePrice: 24900, ExpiryDate: "29-May-2025", CallOI: 800, PutOI: 200},
		},
	}
}

func newTestAPI(res fallback.Result, st latestReader, hub broadcaster) http.Handler {
	a := &api{resolver: fakeResolver{res: res}, store: st, hub: hub, log: zap.NewNop(), readTimeout: time.Second}
	return a.routes([]string{"*"}, nil)
}

func do(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequestWithContext(t.Context(), http.MethodGet, path, http.NoBody)
	for k, v := range header {
		req.Header[k] = v
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestScrape_Live(t *testing.T) {
	t.Parallel()

	// Arrange
	hub := &recordingHub{}
	h := newTestAPI(fallback.Result{Message: fallback.MessageLive, Snapshot: sampleSnapshot()}, store.NewMemory(), hub)

	// Act
	rr := do(t, h, "/api/scrape-option-chain", nil)

	// Assert
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	require.NotContains(t, raw, "error")
	require.NotContains(t, raw, "isMockData")
	require.NotContains(t, raw, "isRecentData")

	var got scrapeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, fallback.MessageLive, got.Message)
	require.Len(t, got.Data.Options, 2)

	require.Len(t, hub.msgs, 1)
	require.Equal(t, "snapshot", hub.msgs[0].Type)
	require.Equal(t, fallback.MessageLive, hub.msgs[0].Message)
}

func TestScrape_SyntheticStillOK(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot()
	snap.IsMockData = true
	snap.Error = "fetch https://example/api: http 403"
	snap.ErrorTime = "2025-05-23T10:00:00Z"
	h := newTestAPI(fallback.Result{Message: fallback.MessageSynthetic, Snapshot: snap}, store.NewMemory(), nil)

	rr := do(t, h, "/api/scrape-option-chain", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var got scrapeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, fallback.MessageSynthetic, got.Message)
	require.True(t, got.IsMockData)
	require.False(t, got.IsRecentData)
	require.Equal(t, snap.Error, got.Error)
	require.True(t, got.Data.IsMockData)
}

func TestScrape_RecentLabels(t *testing.T) {
	t.Parallel()

	snap := sampleSnapshot()
	snap.IsRecentData = true
	snap.Error = "session: landing page: timeout"
	h := newTestAPI(fallback.Result{Message: fallback.MessageRecent, Snapshot: snap}, store.NewMemory(), nil)

	rr := do(t, h, "/api/scrape-option-chain", nil)

	var got scrapeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, fallback.MessageRecent, got.Message)
	require.True(t, got.IsRecentData)
	require.False(t, got.IsMockData)
	require.Equal(t, snap.Error, got.Error)
}

func TestLatest(t *testing.T) {
	t.Parallel()

	// Arrange
	st := store.NewMemory()
	h := newTestAPI(fallback.Result{}, st, nil)

	// Act + Assert: empty store
	rr := do(t, h, "/api/option-chain/latest", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	var e errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))
	require.NotEmpty(t, e.Error)

	// Act + Assert: after one append
	_, err := st.Append(t.Context(), sampleSnapshot())
	require.NoError(t, err)

	rr = do(t, h, "/api/option-chain/latest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got provider.Snapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, "NIFTY", got.Underlying)
	require.Len(t, got.Options, 2)
}

func TestLatest_StoreError(t *testing.T) {
	t.Parallel()

	h := newTestAPI(fallback.Result{}, failingStore{}, nil)

	rr := do(t, h, "/api/option-chain/latest", nil)

	require.Equal(t, http.StatusBadGateway, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

func TestSummary(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	_, err := st.Append(t.Context(), sampleSnapshot())
	require.NoError(t, err)
	h := newTestAPI(fallback.Result{}, st, nil)

	rr := do(t, h, "/api/option-chain/summary", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var got aggregate.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Equal(t, 2, got.Strikes)
	require.Equal(t, 24800.0, got.ATMStrike)
	require.Equal(t, 1200.0, got.TotalCallOI)
	require.Equal(t, provider.KindLive, got.Kind)
}

func TestGzipNegotiation(t *testing.T) {
	t.Parallel()

	h := newTestAPI(fallback.Result{Message: fallback.MessageLive, Snapshot: sampleSnapshot()}, store.NewMemory(), nil)

	rr := do(t, h, "/api/scrape-option-chain", http.Header{"Accept-Encoding": {"gzip, deflate"}})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "gzip", rr.Header().Get("Content-Encoding"))
	zr, err := gzip.NewReader(rr.Body)
	require.NoError(t, err)
	var got scrapeResponse
	require.NoError(t, json.NewDecoder(zr).Decode(&got))
	require.Equal(t, fallback.MessageLive, got.Message)
}

func TestHealthzAndCORS(t *testing.T) {
	t.Parallel()

	h := newTestAPI(fallback.Result{}, store.NewMemory(), nil)

	rr := do(t, h, "/healthz", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", rr.Body.String())

	rr = do(t, h, "/api/option-chain/latest", http.Header{"Origin": {"https://app.example"}})
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestRecoverPanic(t *testing.T) {
	t.Parallel()

	h := recoverPanic(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := do(t, h, "/", nil)

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "internal server error")
}
