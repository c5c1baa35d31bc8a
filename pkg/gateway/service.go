package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tgpoll/pkg/bus"
	"tgpoll/pkg/channel"
	"tgpoll/pkg/config"
	"tgpoll/pkg/logger"
)

type Service struct {
	cfg      *config.Config
	log      *slog.Logger
	bus      *bus.Bus
	handler  channel.Handler
	channels []channel.Adapter

	mu            sync.RWMutex
	startedAt     time.Time
	channelStates map[string]channelState
	stats         updateStats
}

type channelState struct {
	Running bool   `json:"running"`
	Bot     string `json:"bot,omitempty"`
	Error   string `json:"error,omitempty"`
}

type updateStats struct {
	UpdatesSeen   int64     `json:"updates_seen"`
	RepliesSent   int64     `json:"replies_sent"`
	ReplyFailures int64     `json:"reply_failures"`
	LastUpdateID  int       `json:"last_update_id,omitempty"`
	LastUpdateAt  time.Time `json:"-"`
}

type statusResponse struct {
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	LastUpdateAt  string                  `json:"last_update_at,omitempty"`
	Channels      map[string]channelState `json:"channels"`
	updateStats
}

// NewService wires adapters to the configured reply handler. Events published
// on eventBus feed the status endpoints.
func NewService(cfg *config.Config, adapters []channel.Adapter, eventBus *bus.Bus, log *slog.Logger) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(adapters) == 0 {
		return nil, errors.New("at least one channel adapter is required")
	}
	if eventBus == nil {
		return nil, errors.New("event bus is required")
	}
	if log == nil {
		log = slog.Default()
	}

	handler := channel.Silent
	if cfg.Gateway.Echo {
		handler = channel.Echo
	}

	channelStates := make(map[string]channelState, len(adapters))
	for _, adapter := range adapters {
		channelStates[adapter.Name()] = channelState{}
	}

	return &Service{
		cfg:           cfg,
		log:           logger.Component(log, "gateway.service"),
		bus:           eventBus,
		handler:       handler,
		channels:      adapters,
		channelStates: channelStates,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	events, unsubscribe := s.bus.SubscribeEvents(ctx, 0)
	defer unsubscribe()
	go func() {
		for event := range events {
			s.recordEvent(event)
		}
	}()

	serverErrors := make(chan error, 1)
	go s.runHealthServer(ctx, serverErrors)

	errCh := make(chan error, len(s.channels))
	for _, adapter := range s.channels {
		s.setChannelState(adapter.Name(), channelState{Running: true})

		go func() {
			err := adapter.Run(ctx, s.handleInbound)
			s.setChannelState(adapter.Name(), channelState{Running: false, Error: errorString(err)})
			s.bus.PublishEvent(context.Background(), bus.Event{
				Type:    bus.EventChannelStopped,
				Channel: adapter.Name(),
				Error:   errorString(err),
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("run %s channel: %w", adapter.Name(), err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErrors:
		return err
	case err := <-errCh:
		return err
	}
}

func (s *Service) handleInbound(ctx context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	outbound, err := s.handler(ctx, inbound)
	if err != nil {
		return bus.OutboundMessage{
			Channel:    inbound.Channel,
			ChatID:     inbound.ChatID,
			SessionKey: inbound.SessionKey,
			Error:      err.Error(),
		}, err
	}

	s.log.Debug("Handled message", "channel", inbound.Channel, "update_id", inbound.UpdateID, "reply", outbound.Content != "")
	return outbound, nil
}

func (s *Service) recordEvent(event bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case bus.EventChannelStarted:
		state := s.channelStates[event.Channel]
		state.Bot = event.Payload["bot"]
		s.channelStates[event.Channel] = state
	case bus.EventUpdateReceived:
		s.stats.UpdatesSeen++
		if event.UpdateID > s.stats.LastUpdateID {
			s.stats.LastUpdateID = event.UpdateID
		}
		s.stats.LastUpdateAt = event.At
	case bus.EventReplySent:
		s.stats.RepliesSent++
	case bus.EventReplyFailed:
		s.stats.ReplyFailures++
	case bus.EventChannelStopped:
		if event.Error != "" {
			s.log.Warn("Channel stopped", "channel", event.Channel, "error", event.Error)
		}
	}
}

func (s *Service) runHealthServer(ctx context.Context, errCh chan<- error) {
	addr := s.cfg.Gateway.Addr()
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Gateway status server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("start status server: %w", err)
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondStatus(w, http.StatusOK, "ok")
}

func (s *Service) handleReady(w http.ResponseWriter, _ *http.Request) {
	statusCode := http.StatusOK
	status := "ready"
	if !s.isReady() {
		statusCode = http.StatusServiceUnavailable
		status = "not_ready"
	}

	s.respondStatus(w, statusCode, status)
}

func (s *Service) respondStatus(w http.ResponseWriter, statusCode int, status string) {
	payload := s.currentStatus(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write status response", "error", err)
	}
}

func (s *Service) currentStatus(status string) statusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uptime := int64(0)
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}

	channels := make(map[string]channelState, len(s.channelStates))
	for name, state := range s.channelStates {
		channels[name] = state
	}

	lastUpdateAt := ""
	if !s.stats.LastUpdateAt.IsZero() {
		lastUpdateAt = s.stats.LastUpdateAt.Format(time.RFC3339)
	}

	return statusResponse{
		Status:        status,
		UptimeSeconds: uptime,
		LastUpdateAt:  lastUpdateAt,
		Channels:      channels,
		updateStats:   s.stats,
	}
}

// isReady reports whether at least one channel is running with a resolved bot
// identity.
func (s *Service) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, state := range s.channelStates {
		if state.Running && state.Bot != "" && state.Error == "" {
			return true
		}
	}

	return false
}

func (s *Service) setChannelState(name string, state channelState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if state.Running {
		state.Bot = s.channelStates[name].Bot
	}
	s.channelStates[name] = state
}

func errorString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
