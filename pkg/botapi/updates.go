package botapi

import (
	"slices"
	"strings"

	"github.com/mymmrac/telego"
)

// UpdateKind names the populated content field of an update, using the same
// strings getUpdates accepts in allowed_updates.
type UpdateKind string

const (
	UpdateUnknown            UpdateKind = ""
	UpdateMessage            UpdateKind = "message"
	UpdateEditedMessage      UpdateKind = "edited_message"
	UpdateChannelPost        UpdateKind = "channel_post"
	UpdateEditedChannelPost  UpdateKind = "edited_channel_post"
	UpdateInlineQuery        UpdateKind = "inline_query"
	UpdateChosenInlineResult UpdateKind = "chosen_inline_result"
	UpdateCallbackQuery      UpdateKind = "callback_query"
	UpdateShippingQuery      UpdateKind = "shipping_query"
	UpdatePreCheckoutQuery   UpdateKind = "pre_checkout_query"
	UpdatePoll               UpdateKind = "poll"
	UpdatePollAnswer         UpdateKind = "poll_answer"
	UpdateMyChatMember       UpdateKind = "my_chat_member"
	UpdateChatMember         UpdateKind = "chat_member"
	UpdateChatJoinRequest    UpdateKind = "chat_join_request"
)

var knownUpdateKinds = []UpdateKind{
	UpdateMessage,
	UpdateEditedMessage,
	UpdateChannelPost,
	UpdateEditedChannelPost,
	UpdateInlineQuery,
	UpdateChosenInlineResult,
	UpdateCallbackQuery,
	UpdateShippingQuery,
	UpdatePreCheckoutQuery,
	UpdatePoll,
	UpdatePollAnswer,
	UpdateMyChatMember,
	UpdateChatMember,
	UpdateChatJoinRequest,
}

// UpdateKindOf reports which content variant update carries.
func UpdateKindOf(update telego.Update) UpdateKind {
	switch {
	case update.Message != nil:
		return UpdateMessage
	case update.EditedMessage != nil:
		return UpdateEditedMessage
	case update.ChannelPost != nil:
		return UpdateChannelPost
	case update.EditedChannelPost != nil:
		return UpdateEditedChannelPost
	case update.InlineQuery != nil:
		return UpdateInlineQuery
	case update.ChosenInlineResult != nil:
		return UpdateChosenInlineResult
	case update.CallbackQuery != nil:
		return UpdateCallbackQuery
	case update.ShippingQuery != nil:
		return UpdateShippingQuery
	case update.PreCheckoutQuery != nil:
		return UpdatePreCheckoutQuery
	case update.Poll != nil:
		return UpdatePoll
	case update.PollAnswer != nil:
		return UpdatePollAnswer
	case update.MyChatMember != nil:
		return UpdateMyChatMember
	case update.ChatMember != nil:
		return UpdateChatMember
	case update.ChatJoinRequest != nil:
		return UpdateChatJoinRequest
	default:
		return UpdateUnknown
	}
}

// NormalizeAllowedUpdates trims, lowercases and de-duplicates allowed_updates
// filters while keeping their first-seen order.
//
// Unknown names are passed through; the server decides whether to accept them.
func NormalizeAllowedUpdates(kinds []string) []string {
	if len(kinds) == 0 {
		return nil
	}

	normalized := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		value := strings.ToLower(strings.TrimSpace(kind))
		if value == "" || slices.Contains(normalized, value) {
			continue
		}
		normalized = append(normalized, value)
	}

	if len(normalized) == 0 {
		return nil
	}

	return normalized
}

// IsKnownUpdateKind reports whether kind is one of the variants UpdateKindOf can return.
func IsKnownUpdateKind(kind string) bool {
	return slices.Contains(knownUpdateKinds, UpdateKind(kind))
}
