package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"tgpoll/pkg/bus"
	"tgpoll/pkg/channel"
	"tgpoll/pkg/config"

	"github.com/stretchr/testify/require"
)

// scriptedAdapter plays the role of a transport: it announces itself, feeds
// scripted messages through the handler, and then waits for cancellation.
type scriptedAdapter struct {
	name    string
	bus     *bus.Bus
	inbound []bus.InboundMessage
	// release gates the channel_started event when set.
	release chan struct{}
	failErr error

	mu       sync.Mutex
	outbound []bus.OutboundMessage
	done     chan struct{}
}

func (a *scriptedAdapter) Name() string {
	return a.name
}

func (a *scriptedAdapter) Run(ctx context.Context, handler channel.Handler) error {
	if a.release != nil {
		select {
		case <-a.release:
		case <-ctx.Done():
			return nil
		}
	}
	a.bus.PublishEvent(ctx, bus.Event{Type: bus.EventChannelStarted, Channel: a.name, Payload: map[string]string{"bot": "echo_bot"}})

	for _, inbound := range a.inbound {
		a.bus.PublishEvent(ctx, bus.Event{Type: bus.EventUpdateReceived, Channel: a.name, UpdateID: inbound.UpdateID})

		outbound, err := handler(ctx, inbound)
		if err != nil {
			return err
		}
		if outbound.Content != "" {
			a.bus.PublishEvent(ctx, bus.Event{Type: bus.EventReplySent, Channel: a.name, UpdateID: inbound.UpdateID})
		}

		a.mu.Lock()
		a.outbound = append(a.outbound, outbound)
		a.mu.Unlock()
	}

	close(a.done)

	if a.failErr != nil {
		return a.failErr
	}
	<-ctx.Done()
	return nil
}

func (a *scriptedAdapter) outbounds() []bus.OutboundMessage {
	a.mu.Lock()
	defer a.mu.Unlock()

	outbound := make([]bus.OutboundMessage, len(a.outbound))
	copy(outbound, a.outbound)
	return outbound
}

func newTestService(t *testing.T, adapter *scriptedAdapter, echo bool) (*Service, int) {
	t.Helper()

	port := freeTCPPort(t)
	cfg := &config.Config{Gateway: config.GatewayConfig{Host: "127.0.0.1", Port: port, Echo: echo}}

	svc, err := NewService(cfg, []channel.Adapter{adapter}, adapter.bus, slog.Default().With("component", "gateway.service.test"))
	require.NoError(t, err)
	return svc, port
}

func TestGatewayServiceRunE2EEchoAndStatus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.New()
	t.Cleanup(eventBus.Close)

	adapter := &scriptedAdapter{
		name: "telegram",
		bus:  eventBus,
		inbound: []bus.InboundMessage{
			{Channel: "telegram", ChatID: "100", SessionKey: "telegram:100", Content: "one", UpdateID: 10},
			{Channel: "telegram", ChatID: "100", SessionKey: "telegram:100", Content: "two", UpdateID: 11},
			{Channel: "telegram", ChatID: "200", SessionKey: "telegram:200", Content: "three", UpdateID: 12},
		},
		done: make(chan struct{}),
	}
	svc, port := newTestService(t, adapter, true)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	select {
	case <-adapter.done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for adapter scripted messages")
	}

	outbounds := adapter.outbounds()
	require.Len(t, outbounds, 3)
	require.Equal(t, "one", outbounds[0].Content)
	require.Equal(t, "two", outbounds[1].Content)
	require.Equal(t, "three", outbounds[2].Content)
	require.Equal(t, "telegram:200", outbounds[2].SessionKey)

	healthURL := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		status, ok := fetchStatus(healthURL)
		return ok && status.UpdatesSeen == 3 && status.LastUpdateID == 12 && status.RepliesSent == 3
	}, 2*time.Second, 25*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceReadyzFollowsChannelLifecycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.New()
	t.Cleanup(eventBus.Close)

	adapter := &scriptedAdapter{
		name:    "telegram",
		bus:     eventBus,
		release: make(chan struct{}),
		done:    make(chan struct{}),
	}
	svc, port := newTestService(t, adapter, false)

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()

	readyURL := fmt.Sprintf("http://127.0.0.1:%d/readyz", port)
	require.Equal(t, http.StatusServiceUnavailable, waitHTTPStatus(t, readyURL, 2*time.Second))

	close(adapter.release)
	require.Eventually(t, func() bool {
		return waitHTTPStatus(t, readyURL, time.Second) == http.StatusOK
	}, 2*time.Second, 25*time.Millisecond)

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for service run to exit")
	}
}

func TestGatewayServiceRunReturnsChannelFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := bus.New()
	t.Cleanup(eventBus.Close)

	adapter := &scriptedAdapter{
		name:    "telegram",
		bus:     eventBus,
		failErr: errors.New("poll telegram updates: remote error"),
		done:    make(chan struct{}),
	}
	svc, _ := newTestService(t, adapter, true)

	select {
	case err := <-runAsync(ctx, svc):
		require.ErrorContains(t, err, "run telegram channel")
		require.ErrorContains(t, err, "remote error")
	case <-time.After(3 * time.Second):
		t.Fatal("service did not return the channel failure")
	}

	require.False(t, svc.isReady())
}

func runAsync(ctx context.Context, svc *Service) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx)
	}()
	return errCh
}

func fetchStatus(url string) (statusResponse, bool) {
	response, err := http.Get(url)
	if err != nil {
		return statusResponse{}, false
	}
	defer response.Body.Close()

	var status statusResponse
	if err := json.NewDecoder(response.Body).Decode(&status); err != nil {
		return statusResponse{}, false
	}
	return status, true
}

func waitHTTPStatus(t *testing.T, url string, timeout time.Duration) int {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		response, err := http.Get(url)
		if err == nil {
			statusCode := response.StatusCode
			require.NoError(t, response.Body.Close())
			return statusCode
		}

		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s: %v", url, err)
		}

		time.Sleep(25 * time.Millisecond)
	}
}

func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return addr.Port
}
