// Package channel defines the contract between transports and the gateway.
package channel

import (
	"context"

	"tgpoll/pkg/bus"
)

// Handler processes one inbound channel message and returns an outbound reply.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external transport (for example Telegram) into the gateway.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}

// Echo replies with the inbound text.
func Echo(_ context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	return bus.OutboundMessage{
		Channel:    inbound.Channel,
		ChatID:     inbound.ChatID,
		SessionKey: inbound.SessionKey,
		Content:    inbound.Content,
	}, nil
}

// Silent accepts every message without replying.
func Silent(_ context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	return bus.OutboundMessage{
		Channel:    inbound.Channel,
		ChatID:     inbound.ChatID,
		SessionKey: inbound.SessionKey,
	}, nil
}
