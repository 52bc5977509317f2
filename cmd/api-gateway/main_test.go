package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func upstream(name string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, name+" "+r.URL.Path+"?"+r.URL.RawQuery)
	}))
}

func get(t *testing.T, u string) (int, string) {
	t.Helper()
	res, err := http.Get(u)
	require.NoError(t, err)
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, string(b)
}

func TestGatewayRoutes(t *testing.T) {
	story, live := upstream("story"), upstream("live")
	defer story.Close()
	defer live.Close()

	h, err := newHandler(story.URL, live.URL, []string{"*"}, zap.NewNop())
	require.NoError(t, err)
	gw := httptest.NewServer(h)
	defer gw.Close()

	status, body := get(t, gw.URL+"/api/v1/stories?limit=5")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "story /v1/stories?limit=5", body)

	status, body = get(t, gw.URL+"/live/poll?sid=abc")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "live /live/poll?sid=abc", body)

	status, _ = get(t, gw.URL+"/other")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGatewayUpstreamDown(t *testing.T) {
	story := upstream("story")
	story.Close()

	h, err := newHandler(story.URL, "http://127.0.0.1:1", []string{"*"}, zap.NewNop())
	require.NoError(t, err)
	gw := httptest.NewServer(h)
	defer gw.Close()

	status, body := get(t, gw.URL+"/api/v1/stories")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.JSONEq(t, `{"error":"upstream unavailable"}`, body)
}

func TestGatewayCORSPreflight(t *testing.T) {
	story, live := upstream("story"), upstream("live")
	defer story.Close()
	defer live.Close()

	h, err := newHandler(story.URL, live.URL, []string{"https://app.example"}, zap.NewNop())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/bets", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestInvalidUpstream(t *testing.T) {
	_, err := newHandler("not a url", "http://live", nil, zap.NewNop())
	assert.Error(t, err)
}
