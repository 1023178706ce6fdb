package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhumphrey11/moda-trading/internal/notifier"
)

func TestWebhook_Send(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Auth"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	wh := New(srv.URL, map[string]string{"X-Auth": "secret"})
	event := notifier.Event{
		Kind:       notifier.EventTradeExecuted,
		Symbol:     "AAPL",
		Detail:     map[string]any{"quantity": 7},
		OccurredAt: time.Now(),
	}
	require.NoError(t, wh.Send(event))

	assert.Equal(t, "trade_executed", received["event"])
	assert.Equal(t, "AAPL", received["symbol"])
}

func TestWebhook_SendBatch(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
	}))
	defer srv.Close()

	wh := New(srv.URL, nil)
	events := []notifier.Event{
		{Kind: notifier.EventSignalGenerated, Symbol: "AAPL"},
		{Kind: notifier.EventSignalGenerated, Symbol: "MSFT"},
	}
	require.NoError(t, wh.SendBatch(events))
	assert.Equal(t, float64(2), received["count"])
}

func TestWebhook_SendBatchEmpty(t *testing.T) {
	wh := New("http://127.0.0.1:0", nil)
	assert.NoError(t, wh.SendBatch(nil))
}

func TestWebhook_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := New(srv.URL, nil)
	assert.Error(t, wh.Send(notifier.Event{Kind: notifier.EventTradeExecuted}))
}

func TestWebhook_InitRequiresURL(t *testing.T) {
	wh := &Webhook{}
	err := wh.Init(notifier.Config{Type: "webhook", Params: map[string]any{}})
	assert.Error(t, err)

	err = wh.Init(notifier.Config{Type: "webhook", Params: map[string]any{"url": "https://example.com/hook"}})
	assert.NoError(t, err)
}
