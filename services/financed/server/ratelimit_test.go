package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	nativecommon "campusfi/native/common"
)

func TestClientIDIgnoresHeadersFromUntrustedPeers(t *testing.T) {
	limiter := NewRateLimiter(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:4000"
	req.Header.Set("X-Real-IP", "10.0.0.7")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	require.Equal(t, "192.0.2.1", limiter.clientID(req))
}

func TestClientIDBehindTrustedProxy(t *testing.T) {
	trusted, err := ParseTrustedProxies([]string{"192.0.2.0/24", " 198.51.100.4 ", ""})
	require.NoError(t, err)
	require.Len(t, trusted, 2)
	limiter := NewRateLimiter(nil, trusted)

	cases := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "real ip", headers: map[string]string{"X-Real-IP": " 10.0.0.7 "}, remote: "192.0.2.1:4000", want: "10.0.0.7"},
		{name: "forwarded", headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, remote: "198.51.100.4:4000", want: "203.0.113.9"},
		{name: "bad forwarded", headers: map[string]string{"X-Forwarded-For": "garbage"}, remote: "192.0.2.1:4000", want: "192.0.2.1"},
		{name: "untrusted peer", headers: map[string]string{"X-Real-IP": "10.0.0.7"}, remote: "203.0.113.50:4000", want: "203.0.113.50"},
		{name: "remote addr", remote: "192.0.2.1:4000", want: "192.0.2.1"},
		{name: "no port", remote: "pipe", want: "pipe"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			require.Equal(t, tc.want, limiter.clientID(req))
		})
	}
}

func TestParseTrustedProxiesRejectsGarbage(t *testing.T) {
	for _, entry := range []string{"10.0.0.0/33", "proxy.local"} {
		_, err := ParseTrustedProxies([]string{entry})
		require.True(t, errors.Is(err, nativecommon.ErrInvalidConfiguration), "%s: got %v", entry, err)
	}
}

func TestSpoofedHeadersShareTheBucket(t *testing.T) {
	limiter := NewRateLimiter(map[string]RateLimit{"quote": {RequestsPerMinute: 1, Burst: 1}}, nil)
	h := limiter.Middleware("quote")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(remote, spoof string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Real-IP", spoof)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusNoContent, call("192.0.2.1:4000", "10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, call("192.0.2.1:4001", "10.0.0.2"))
	require.Equal(t, http.StatusNoContent, call("192.0.2.2:4000", "10.0.0.1"))

	unlimited := limiter.Middleware("mutate")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		unlimited.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimiterEvictsIdleVisitors(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := NewRateLimiter(nil, nil)
	limiter.now = func() time.Time { return now }
	cfg := RateLimit{RequestsPerMinute: 60, Burst: 1}

	first := limiter.limiter("quote|a", cfg)
	require.Same(t, first, limiter.limiter("quote|a", cfg))
	limiter.limiter("quote|b", cfg)
	require.Len(t, limiter.visitors, 2)

	now = now.Add(11 * time.Minute)
	limiter.limiter("quote|b", cfg)
	require.Len(t, limiter.visitors, 1)
	require.NotSame(t, first, limiter.limiter("quote|a", cfg))
}
