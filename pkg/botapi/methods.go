package botapi

import (
	"context"
	"time"

	"github.com/mymmrac/telego"
)

const (
	MethodGetMe          = "getMe"
	MethodGetUpdates     = "getUpdates"
	MethodSendMessage    = "sendMessage"
	MethodSendChatAction = "sendChatAction"
)

// GetMe returns the identity of the bot owning the token.
func (c *Client) GetMe(ctx context.Context, timeout time.Duration) (*telego.User, error) {
	user, err := Do[telego.User](ctx, c, MethodGetMe, nil, timeout)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetUpdates performs one getUpdates round-trip.
//
// timeout bounds the whole HTTP exchange and should exceed params.Timeout so a
// server-side long-poll expiry is not mistaken for a hung connection.
func (c *Client) GetUpdates(ctx context.Context, params *telego.GetUpdatesParams, timeout time.Duration) ([]telego.Update, error) {
	return Do[[]telego.Update](ctx, c, MethodGetUpdates, params, timeout)
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, params *telego.SendMessageParams, timeout time.Duration) (*telego.Message, error) {
	message, err := Do[telego.Message](ctx, c, MethodSendMessage, params, timeout)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// SendChatAction shows a transient status such as "typing" in a chat.
func (c *Client) SendChatAction(ctx context.Context, params *telego.SendChatActionParams, timeout time.Duration) error {
	_, err := Do[bool](ctx, c, MethodSendChatAction, params, timeout)
	return err
}
