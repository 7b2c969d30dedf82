package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifyTokenReuseDeliversPayload(t *testing.T) {
	received := make(chan map[string]interface{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
	}))
	t.Cleanup(srv.Close)

	alerts := NewAlertService(zap.NewNop().Sugar(), srv.URL)
	alerts.NotifyTokenReuse(context.Background(), map[string]interface{}{
		"event":  "refresh_token_reuse",
		"reason": "refresh token already used",
	})

	select {
	case payload := <-received:
		assert.Equal(t, "refresh_token_reuse", payload["event"])
	case <-time.After(2 * time.Second):
		t.Fatal("alert webhook was never called")
	}
}

func TestNotifyTokenReuseSurvivesRequestCancellation(t *testing.T) {
	received := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		received <- struct{}{}
	}))
	t.Cleanup(srv.Close)

	alerts := NewAlertService(zap.NewNop().Sugar(), srv.URL)

	// The refresh handler responds 401 right away, cancelling the request
	// context before the webhook POST goes out.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	alerts.NotifyTokenReuse(ctx, map[string]interface{}{"event": "refresh_token_reuse"})

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("alert was dropped with the request context")
	}
}

func TestNotifyTokenReuseWithoutWebhookConfigured(t *testing.T) {
	alerts := NewAlertService(zap.NewNop().Sugar(), "")

	// Must not panic or block.
	alerts.NotifyTokenReuse(context.Background(), map[string]interface{}{"event": "refresh_token_reuse"})
}
