package telegram

import (
	"context"
	"fmt"
	"strconv"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
)

// Sender is the outbound half of the Bot API used by the notifier and the update handler.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard *InlineKeyboardMarkup) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error
	EditMessageReplyMarkup(ctx context.Context, chatID, messageID int64, keyboard *InlineKeyboardMarkup) error
}

// Notifier delivers ticket notices to the operator group and texts to requesters.
// Requester ids are Telegram private chat ids.
type Notifier struct {
	sender         Sender
	operatorChatID int64
}

func NewNotifier(sender Sender, operatorChatID int64) *Notifier {
	return &Notifier{sender: sender, operatorChatID: operatorChatID}
}

func (n *Notifier) NotifyUser(ctx context.Context, requesterID, text string) error {
	chatID, err := strconv.ParseInt(requesterID, 10, 64)
	if err != nil {
		return fmt.Errorf("requester id %q is not a chat id: %w", requesterID, err)
	}
	return n.sender.SendMessage(ctx, chatID, text, nil)
}

func (n *Notifier) NotifyOperators(ctx context.Context, notice service.OperatorNotice) error {
	var text string
	switch notice.Kind {
	case service.NoticeAddendum:
		text = renderAddendum(notice.Ticket, notice.Addendum)
	default:
		text = renderNewTicket(notice.Ticket)
	}
	return n.sender.SendMessage(ctx, n.operatorChatID, text, ticketKeyboard(notice.Ticket.Code))
}
