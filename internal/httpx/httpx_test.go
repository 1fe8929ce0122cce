package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"optionchain/internal/httpx"
)

func TestDo_SendsCallerHeadersOnly(t *testing.T) {
	t.Parallel()

	// Arrange
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "Mozilla/5.0 test")
	req.Header.Set("Cookie", "a=1; b=2")

	// Act
	resp, err := httpx.New(5 * time.Second).Do(req)

	// Assert
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "Mozilla/5.0 test", got.Get("User-Agent"))
	require.Equal(t, "a=1; b=2", got.Get("Cookie"))
}

func TestDo_LeavesCompressionToCaller(t *testing.T) {
	t.Parallel()

	var enc string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc = r.Header.Get("Accept-Encoding")
	}))
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL, http.NoBody)
	require.NoError(t, err)

	resp, err := httpx.New(5 * time.Second).Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Empty(t, enc)
}

func TestNew_Timeout(t *testing.T) {
	t.Parallel()

	c := httpx.New(3 * time.Second)
	require.Equal(t, 3*time.Second, c.HTTP.Timeout)
	require.Nil(t, c.HTTP.Jar)
}
