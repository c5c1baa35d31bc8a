package telegram

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"tgpoll/pkg/botapi"
	"tgpoll/pkg/bus"
	"tgpoll/pkg/channel"
	"tgpoll/pkg/config"
	"tgpoll/pkg/poller"
)

const testToken = "123456:test-token"

const getMeOK = `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Echo","username":"echo_bot"}}`

type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// fakeBotAPI answers getMe, replays scripted getUpdates bodies, and records
// sendMessage calls. Once the script runs out getUpdates hangs until the
// request is abandoned.
type fakeBotAPI struct {
	mu      sync.Mutex
	updates []string
	sent    []sentMessage
	actions int
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	var reply string
	switch method {
	case botapi.MethodGetMe:
		reply = getMeOK
	case botapi.MethodGetUpdates:
		if len(f.updates) > 0 {
			reply = f.updates[0]
			f.updates = f.updates[1:]
		}
	case botapi.MethodSendChatAction:
		f.actions++
		reply = `{"ok":true,"result":true}`
	case botapi.MethodSendMessage:
		var msg sentMessage
		_ = json.Unmarshal(body, &msg)
		f.sent = append(f.sent, msg)
		reply = `{"ok":true,"result":{"message_id":99,"date":0,"chat":{"id":7,"type":"private"},"text":"ok"}}`
	}
	f.mu.Unlock()

	if reply == "" {
		<-r.Context().Done()
		return
	}
	_, _ = io.WriteString(w, reply)
}

func (f *fakeBotAPI) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func newTestAdapter(t *testing.T, fake *fakeBotAPI, allowFrom []string, eventBus *bus.Bus) *Adapter {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	adapter, err := NewAdapter(config.TelegramConfig{
		Token:     testToken,
		APIServer: srv.URL,
		AllowFrom: allowFrom,
	}, Options{
		Polling:    poller.Options{Timeout: time.Second},
		HTTPClient: srv.Client(),
		Bus:        eventBus,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return adapter
}

func TestNewAdapterRequiresToken(t *testing.T) {
	_, err := NewAdapter(config.TelegramConfig{Token: "  "}, Options{})
	require.Error(t, err)
}

func TestAdapterRunEchoesAllowedMessages(t *testing.T) {
	fake := &fakeBotAPI{updates: []string{
		`{"ok":true,"result":[
		  {"update_id":10,"message":{"message_id":1,"date":0,"from":{"id":1,"is_bot":false,"first_name":"A"},"chat":{"id":7,"type":"private"},"text":"ping"}},
		  {"update_id":11,"message":{"message_id":2,"date":0,"from":{"id":2,"is_bot":false,"first_name":"B"},"chat":{"id":8,"type":"private"},"text":"blocked"}},
		  {"update_id":12,"callback_query":{"id":"cb","from":{"id":1,"is_bot":false,"first_name":"A"},"chat_instance":"x"}}
		]}`,
	}}

	eventBus := bus.New()
	t.Cleanup(eventBus.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, unsubscribe := eventBus.SubscribeEvents(ctx, 16)
	defer unsubscribe()

	adapter := newTestAdapter(t, fake, []string{"1"}, eventBus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- adapter.Run(ctx, channel.Echo)
	}()

	var got []bus.Event
	deadline := time.After(3 * time.Second)
	for len(got) < 5 {
		select {
		case event := <-events:
			got = append(got, event)
		case <-deadline:
			t.Fatalf("timed out waiting for events, got %+v", got)
		}
	}

	require.Equal(t, bus.EventChannelStarted, got[0].Type)
	require.Equal(t, "echo_bot", got[0].Payload["bot"])
	require.Equal(t, bus.EventUpdateReceived, got[1].Type)
	require.Equal(t, 10, got[1].UpdateID)
	require.Equal(t, bus.EventReplySent, got[2].Type)
	require.Equal(t, "telegram:7", got[2].SessionKey)
	require.Equal(t, 11, got[3].UpdateID)
	require.Equal(t, 12, got[4].UpdateID)
	require.Equal(t, string(botapi.UpdateCallbackQuery), got[4].Payload["kind"])

	require.Equal(t, []sentMessage{{ChatID: 7, Text: "ping"}}, fake.sentMessages())

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("adapter did not stop after cancel")
	}
}

func TestAdapterRunReturnsPollingFailure(t *testing.T) {
	fake := &fakeBotAPI{updates: []string{`<html>bad gateway</html>`}}
	adapter := newTestAdapter(t, fake, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := adapter.Run(ctx, channel.Echo)
	require.Error(t, err)
	require.Equal(t, botapi.KindMalformedResponse, botapi.KindOf(err))
}

func TestAllowFromSet(t *testing.T) {
	allowed := allowFromSet([]string{" 123 ", "", "456", "123"})
	if len(allowed) != 2 {
		t.Fatalf("allowFromSet len = %d, want 2", len(allowed))
	}
	if _, ok := allowed["123"]; !ok {
		t.Fatal("allowFromSet missing 123")
	}
	if _, ok := allowed["456"]; !ok {
		t.Fatal("allowFromSet missing 456")
	}
}

func TestSenderAllowed(t *testing.T) {
	adapter := &Adapter{allowFrom: map[string]struct{}{"1": {}}}
	if !adapter.senderAllowed("1") {
		t.Fatal("expected sender 1 to be allowed")
	}
	if adapter.senderAllowed("2") {
		t.Fatal("expected sender 2 to be denied")
	}

	adapter.allowFrom = nil
	if !adapter.senderAllowed("any") {
		t.Fatal("expected sender to be allowed when allowlist empty")
	}
}

func TestSessionKey(t *testing.T) {
	if got := sessionKey(" 42 "); got != "telegram:42" {
		t.Fatalf("sessionKey = %q, want %q", got, "telegram:42")
	}
}

func TestPreviewText(t *testing.T) {
	long := strings.Repeat("a", messagePreviewLimit+20)
	got := previewText(long)
	if len(got) != messagePreviewLimit+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("previewText long = %q", got)
	}

	cyrillic := strings.Repeat("ж", messagePreviewLimit+5)
	got = previewText(cyrillic)
	if !utf8.ValidString(got) {
		t.Fatalf("previewText split a rune: %q", got)
	}
	if want := strings.Repeat("ж", messagePreviewLimit) + "..."; got != want {
		t.Fatalf("previewText multibyte length = %d runes, want %d", utf8.RuneCountInString(got), messagePreviewLimit+3)
	}

	if got := previewText(" привет "); got != "привет" {
		t.Fatalf("previewText short = %q", got)
	}
}
