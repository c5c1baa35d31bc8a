// Package bot bootstraps a Telegram bot identity and exposes its update stream.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"tgpoll/pkg/botapi"
	"tgpoll/pkg/logger"
	"tgpoll/pkg/poller"
	"tgpoll/pkg/stream"
	"tgpoll/pkg/version"
)

const (
	bootstrapTimeout = 5 * time.Second
	sendTimeout      = 10 * time.Second
)

// Options configures bot construction.
type Options struct {
	// APIServer overrides the Bot API base URL.
	APIServer string
	// HTTPClient is shared by every call the bot makes.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Bot is a bootstrapped bot: its identity is known and its client carries the
// final user agent.
type Bot struct {
	ID        int64
	Username  string
	Name      string
	UserAgent string

	client *botapi.Client
	log    *slog.Logger
}

// New resolves the bot identity with getMe. Any failure aborts construction.
func New(ctx context.Context, token string, opts Options) (*Bot, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	clientOpts := []botapi.Option{botapi.WithLogger(log)}
	if opts.APIServer != "" {
		clientOpts = append(clientOpts, botapi.WithBaseURL(opts.APIServer))
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, botapi.WithHTTPClient(opts.HTTPClient))
	}

	client, err := botapi.NewClient(token, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialize bot api client: %w", err)
	}

	me, err := client.GetMe(ctx, bootstrapTimeout)
	if err != nil {
		return nil, fmt.Errorf("bootstrap bot identity: %w", err)
	}

	username := strings.TrimSpace(me.Username)
	if username == "" {
		return nil, errors.New("bootstrap bot identity: bot has no username")
	}

	userAgent := version.UserAgent(username)
	b := &Bot{
		ID:        me.ID,
		Username:  username,
		Name:      me.FirstName,
		UserAgent: userAgent,
		client:    client.WithUserAgent(userAgent),
		log:       logger.Component(log, "bot").With("bot", username),
	}
	b.log.Info("Bot identity resolved", "bot_id", b.ID, "name", b.Name)

	return b, nil
}

// Client returns the Bot API client bound to this bot.
func (b *Bot) Client() *botapi.Client {
	return b.client
}

// Updates starts a poll loop for this bot. The checkpoint key defaults to the
// bot username.
func (b *Bot) Updates(ctx context.Context, opts poller.Options) *stream.Stream[telego.Update] {
	if opts.Key == "" {
		opts.Key = b.Username
	}
	if opts.Logger == nil {
		opts.Logger = b.log
	}

	return poller.New(b.client, opts).Updates(ctx)
}

// Reply sends text to chatID.
func (b *Bot) Reply(ctx context.Context, chatID int64, text string) (*telego.Message, error) {
	message, err := b.client.SendMessage(ctx, tu.Message(tu.ID(chatID), text), sendTimeout)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}

	return message, nil
}

// Typing shows the typing indicator in chatID.
func (b *Bot) Typing(ctx context.Context, chatID int64) error {
	if err := b.client.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping), sendTimeout); err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}

	return nil
}
