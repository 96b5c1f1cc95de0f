package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/seti-park/Skyscanner/internal/config"
	"github.com/seti-park/Skyscanner/internal/logger"
)

type fakeBotAPI struct {
	calls  int32
	status int

	mu   sync.Mutex
	sent map[string]any
}

func (f *fakeBotAPI) lastSent() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *fakeBotAPI) start(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&f.calls, 1)
		if r.URL.Path != "/bot123:abc/sendMessage" {
			http.NotFound(w, r)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sent = body
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if f.status != 0 {
			w.WriteHeader(f.status)
			_, _ = io.WriteString(w, `{"ok":false,"error_code":401,"description":"Unauthorized"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":42,"date":1759500000,
			"chat":{"id":-100200,"type":"group"},"text":"ok"}}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTelegram(t *testing.T, api string) *Telegram {
	t.Helper()
	tg, err := NewTelegram(config.TelegramConfig{
		Token:   "123:abc",
		ChatID:  "-100200",
		API:     api,
		Timeout: 5 * time.Second,
	}, logger.NewNop())
	require.NoError(t, err)
	return tg
}

func TestTelegramSend(t *testing.T) {
	f := &fakeBotAPI{}
	srv := f.start(t)
	tg := newTestTelegram(t, srv.URL)

	res := tg.Send(context.Background(), Message{Text: "✈️ 2 qualifying flights", Flights: 2})
	require.True(t, res.Delivered)
	require.Equal(t, 42, res.MessageID)
	require.NoError(t, res.Err)
	require.EqualValues(t, 1, atomic.LoadInt32(&f.calls))

	sent := f.lastSent()
	require.Equal(t, "-100200", sent["chat_id"])
	require.Equal(t, "✈️ 2 qualifying flights", sent["text"])
}

func TestTelegramSendFailureIsReported(t *testing.T) {
	f := &fakeBotAPI{status: http.StatusUnauthorized}
	srv := f.start(t)
	tg := newTestTelegram(t, srv.URL)

	res := tg.Send(context.Background(), Message{Text: "hello"})
	require.False(t, res.Delivered)
	require.Error(t, res.Err)
	// single attempt, no retry
	require.EqualValues(t, 1, atomic.LoadInt32(&f.calls))
}

func TestTelegramSendUnreachable(t *testing.T) {
	tg := newTestTelegram(t, "http://127.0.0.1:1")

	res := tg.Send(context.Background(), Message{Text: "hello"})
	require.False(t, res.Delivered)
	require.Error(t, res.Err)
}

func TestTelegramSendCancelled(t *testing.T) {
	f := &fakeBotAPI{}
	srv := f.start(t)
	tg := newTestTelegram(t, srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := tg.Send(ctx, Message{Text: "hello"})
	require.False(t, res.Delivered)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Zero(t, atomic.LoadInt32(&f.calls))
}

func TestTelegramTruncatesLongText(t *testing.T) {
	f := &fakeBotAPI{}
	srv := f.start(t)
	tg := newTestTelegram(t, srv.URL)

	res := tg.Send(context.Background(), Message{Text: strings.Repeat("가", maxMessageRunes+10)})
	require.True(t, res.Delivered)

	text, _ := f.lastSent()["text"].(string)
	require.Len(t, []rune(text), maxMessageRunes)
	require.True(t, strings.HasSuffix(text, "..."))
}

func TestNewTelegramRequiresCredentials(t *testing.T) {
	_, err := NewTelegram(config.TelegramConfig{Token: "123:abc"}, logger.NewNop())
	require.Error(t, err)
}
