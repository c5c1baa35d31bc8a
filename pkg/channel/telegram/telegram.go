package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"

	"tgpoll/pkg/bot"
	"tgpoll/pkg/botapi"
	"tgpoll/pkg/bus"
	"tgpoll/pkg/channel"
	"tgpoll/pkg/config"
	"tgpoll/pkg/logger"
	"tgpoll/pkg/poller"
)

const channelName = "telegram"
const messagePreviewLimit = 240
const typingRefreshInterval = 4 * time.Second

// Options wires the adapter to its poll loop and surroundings.
type Options struct {
	Polling    poller.Options
	HTTPClient *http.Client
	// Bus receives channel events. Nil disables them.
	Bus    *bus.Bus
	Logger *slog.Logger
}

// Adapter bridges Telegram updates into gateway inbound/outbound messages.
type Adapter struct {
	cfg       config.TelegramConfig
	opts      Options
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, opts Options) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}
	cfg.Token = token

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		opts:      opts,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       logger.Component(log, "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in bus events and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run bootstraps the bot, then consumes its update stream until ctx ends or
// polling fails.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	b, err := bot.New(ctx, a.cfg.Token, bot.Options{
		APIServer:  a.cfg.APIServer,
		HTTPClient: a.opts.HTTPClient,
		Logger:     a.log,
	})
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	a.log.Info("Telegram channel started", "bot", b.Username)
	a.opts.Bus.PublishEvent(ctx, bus.Event{
		Type:    bus.EventChannelStarted,
		Channel: channelName,
		Payload: map[string]string{"bot": b.Username},
	})

	updates := b.Updates(ctx, a.opts.Polling)
	defer func() { _ = updates.Close() }()

	for update, err := range updates.All(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("poll telegram updates: %w", err)
		}

		a.handleUpdate(ctx, b, handler, update)
	}

	return nil
}

func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, handler channel.Handler, update telego.Update) {
	kind := botapi.UpdateKindOf(update)
	a.opts.Bus.PublishEvent(ctx, bus.Event{
		Type:     bus.EventUpdateReceived,
		Channel:  channelName,
		UpdateID: update.UpdateID,
		Payload:  map[string]string{"kind": string(kind)},
	})

	message := update.Message
	if message == nil {
		a.log.Debug("Ignoring non-message update", "update_id", update.UpdateID, "kind", kind)
		return
	}

	content := strings.TrimSpace(message.Text)
	if content == "" {
		return
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return
	}

	chatID := strconv.FormatInt(message.Chat.ID, 10)
	inbound := bus.InboundMessage{
		Channel:    channelName,
		SenderID:   senderID,
		ChatID:     chatID,
		SessionKey: sessionKey(chatID),
		Content:    content,
		UpdateID:   update.UpdateID,
		Metadata: map[string]string{
			"message_id": strconv.Itoa(message.MessageID),
		},
	}
	a.log.Info("Received message", "update_id", update.UpdateID, "chat_id", chatID, "sender_id", senderID, "content", previewText(content))

	stopTyping := a.startTypingIndicator(ctx, b, message.Chat.ID)

	outbound, err := handler(ctx, inbound)
	stopTyping()
	if err != nil {
		a.log.Error("Failed to process inbound message", "update_id", update.UpdateID, "error", err)
		outbound = bus.OutboundMessage{Error: err.Error()}
	}

	responseText := strings.TrimSpace(outbound.Content)
	if responseText == "" {
		responseText = strings.TrimSpace(outbound.Error)
	}
	if responseText == "" {
		return
	}
	a.log.Info("Sending message", "chat_id", chatID, "content", previewText(responseText))

	event := bus.Event{
		Type:       bus.EventReplySent,
		Channel:    channelName,
		ChatID:     chatID,
		SessionKey: inbound.SessionKey,
		UpdateID:   update.UpdateID,
	}
	if _, err := b.Reply(ctx, message.Chat.ID, responseText); err != nil {
		a.log.Error("Failed to send telegram message", "chat_id", chatID, "kind", botapi.KindOf(err).String(), "error", err)
		event.Type = bus.EventReplyFailed
		event.Error = err.Error()
	}
	a.opts.Bus.PublishEvent(ctx, event)
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// sessionKey maps one Telegram chat to one conversation namespace.
func sessionKey(chatID string) string {
	return "telegram:" + strings.TrimSpace(chatID)
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text, cut after
// messagePreviewLimit runes.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)

	runes := 0
	for i := range trimmed {
		if runes == messagePreviewLimit {
			return trimmed[:i] + "..."
		}
		runes++
	}

	return trimmed
}

// startTypingIndicator sends an initial typing action and refreshes it periodically
// until the returned cancel function is called.
func (a *Adapter) startTypingIndicator(ctx context.Context, b *bot.Bot, chatID int64) context.CancelFunc {
	typingCtx, cancel := context.WithCancel(ctx)

	sendTyping := func() {
		if err := b.Typing(typingCtx, chatID); err != nil && typingCtx.Err() == nil {
			a.log.Debug("Failed to send typing indicator", "chat_id", chatID, "error", err)
		}
	}

	sendTyping()

	go func() {
		ticker := time.NewTicker(typingRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-typingCtx.Done():
				return
			case <-ticker.C:
				sendTyping()
			}
		}
	}()

	return cancel
}
