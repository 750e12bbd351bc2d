package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/conversation"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
)

// Conversation drives the user side.
type Conversation interface {
	Advance(ctx context.Context, userID string, ev conversation.Event) (conversation.Reply, error)
}

// TicketOperator is the operator side of the ticket service.
type TicketOperator interface {
	Lock(ctx context.Context, code, operatorID string) (*service.LockResult, error)
	Reply(ctx context.Context, code, operatorID, text string) (*model.Ticket, error)
	ListOpen(ctx context.Context) ([]model.Ticket, error)
	GetByCode(ctx context.Context, code string) (*model.Ticket, error)
}

// Handler routes updates: private chats go to the conversation, the operator group chat
// drives the lock protocol.
type Handler struct {
	sender         Sender
	conversation   Conversation
	tickets        TicketOperator
	operatorChatID int64
	pending        *pendingReplies
	logger         *slog.Logger
}

func NewHandler(sender Sender, conv Conversation, tickets TicketOperator, operatorChatID int64, logger *slog.Logger) *Handler {
	return &Handler{
		sender:         sender,
		conversation:   conv,
		tickets:        tickets,
		operatorChatID: operatorChatID,
		pending:        newPendingReplies(),
		logger:         logger,
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, u *Update) error {
	if q := u.CallbackQuery; q != nil {
		if q.From == nil || q.Message == nil || q.Message.Chat == nil {
			return nil
		}
		if q.Message.Chat.ID == h.operatorChatID {
			return h.handleOperatorCallback(ctx, q)
		}
		if q.Message.Chat.Type == chatTypePrivate {
			return h.handleUserCallback(ctx, q)
		}
		return nil
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return nil
	}
	if msg.Chat.ID == h.operatorChatID {
		return h.handleOperatorMessage(ctx, msg)
	}
	if msg.Chat.Type == chatTypePrivate {
		return h.handleUserMessage(ctx, msg)
	}
	return nil
}

func (h *Handler) handleUserMessage(ctx context.Context, msg *Message) error {
	ev := conversation.Text(msg.Text)
	if cmd, _ := splitCommand(msg.Text); cmd == "/start" {
		ev = conversation.Restart()
	}
	return h.advance(ctx, msg.Chat.ID, ev)
}

func (h *Handler) handleUserCallback(ctx context.Context, q *CallbackQuery) error {
	if err := h.sender.AnswerCallbackQuery(ctx, q.ID, "", false); err != nil {
		h.logger.Debug("failed to answer callback", "error", err)
	}
	if !conversation.IsChoice(q.Data) {
		return nil
	}
	// Drop the pressed keyboard so an old question cannot be answered twice.
	if err := h.sender.EditMessageReplyMarkup(ctx, q.Message.Chat.ID, q.Message.MessageID, nil); err != nil {
		h.logger.Debug("failed to clear keyboard", "error", err)
	}
	return h.advance(ctx, q.Message.Chat.ID, conversation.Choice(q.Data))
}

func (h *Handler) advance(ctx context.Context, chatID int64, ev conversation.Event) error {
	userID := strconv.FormatInt(chatID, 10)
	reply, err := h.conversation.Advance(ctx, userID, ev)
	if err != nil {
		if errors.Is(err, errs.ErrValidation) || errors.Is(err, errs.ErrSessionExpired) {
			h.logger.Debug("conversation step rejected", "requester_id", userID, "error", err)
		} else {
			h.logger.Error("conversation step failed", "requester_id", userID, "error", err)
		}
	}
	return h.sender.SendMessage(ctx, chatID, reply.Text, userKeyboard(reply.Buttons))
}

func (h *Handler) handleOperatorMessage(ctx context.Context, msg *Message) error {
	op := msg.From
	cmd, args := splitCommand(msg.Text)
	switch cmd {
	case "/tiket":
		return h.listOpen(ctx)
	case "/balas":
		code, text, _ := strings.Cut(args, " ")
		if code == "" || strings.TrimSpace(text) == "" {
			return h.sender.SendMessage(ctx, h.operatorChatID, msgBalasUsage, nil)
		}
		return h.reply(ctx, op, code, text)
	case "/batal":
		if _, ok := h.pending.take(op.ID); !ok {
			return h.sender.SendMessage(ctx, h.operatorChatID, msgNothingToCancel, nil)
		}
		return h.sender.SendMessage(ctx, h.operatorChatID, msgReplyCancelled, nil)
	case "":
		if code, ok := h.pending.get(op.ID); ok {
			return h.reply(ctx, op, code, msg.Text)
		}
	}
	// Ordinary group chatter.
	return nil
}

func (h *Handler) handleOperatorCallback(ctx context.Context, q *CallbackQuery) error {
	switch {
	case strings.HasPrefix(q.Data, callbackLock):
		return h.lock(ctx, q, strings.TrimPrefix(q.Data, callbackLock))
	case strings.HasPrefix(q.Data, callbackReply):
		return h.startReply(ctx, q, strings.TrimPrefix(q.Data, callbackReply))
	default:
		h.logger.Warn("unknown operator callback", "data", q.Data)
		return h.sender.AnswerCallbackQuery(ctx, q.ID, "", false)
	}
}

func (h *Handler) lock(ctx context.Context, q *CallbackQuery, code string) error {
	opID := operatorID(q.From)
	res, err := h.tickets.Lock(ctx, code, opID)
	if err != nil {
		h.logDenial("lock", code, opID, err)
		return h.sender.AnswerCallbackQuery(ctx, q.ID, denialText(err, code), true)
	}
	if res.AlreadyOwned {
		return h.sender.AnswerCallbackQuery(ctx, q.ID, fmt.Sprintf(msgAlreadyOwned, code), false)
	}
	if err := h.sender.AnswerCallbackQuery(ctx, q.ID, fmt.Sprintf(msgLocked, code), false); err != nil {
		h.logger.Debug("failed to answer callback", "error", err)
	}
	return h.sender.SendMessage(ctx, h.operatorChatID,
		fmt.Sprintf(msgLockedAnnounce, code, displayName(q.From)), replyKeyboard(code))
}

// startReply arms the interaction token: the operator's next message in the group is the reply.
func (h *Handler) startReply(ctx context.Context, q *CallbackQuery, code string) error {
	opID := operatorID(q.From)
	t, err := h.tickets.GetByCode(ctx, code)
	if err == nil {
		err = canReply(*t, opID)
	}
	if err != nil {
		h.logDenial("start reply", code, opID, err)
		return h.sender.AnswerCallbackQuery(ctx, q.ID, denialText(err, code), true)
	}

	h.pending.set(q.From.ID, code)
	if err := h.sender.AnswerCallbackQuery(ctx, q.ID, "", false); err != nil {
		h.logger.Debug("failed to answer callback", "error", err)
	}
	return h.sender.SendMessage(ctx, h.operatorChatID, fmt.Sprintf(msgReplyPrompt, displayName(q.From), code), nil)
}

func (h *Handler) reply(ctx context.Context, op *User, code, text string) error {
	opID := operatorID(op)
	_, err := h.tickets.Reply(ctx, code, opID, text)
	if err != nil {
		h.logDenial("reply", code, opID, err)
		// Keep the token when a resend could succeed.
		if !errors.Is(err, errs.ErrDeliveryFailed) && !errors.Is(err, errs.ErrStoreUnavailable) && !errors.Is(err, errs.ErrValidation) {
			h.pending.take(op.ID)
		}
		return h.sender.SendMessage(ctx, h.operatorChatID, denialText(err, code), nil)
	}
	h.pending.take(op.ID)
	return h.sender.SendMessage(ctx, h.operatorChatID, fmt.Sprintf(msgReplySent, code), nil)
}

func (h *Handler) listOpen(ctx context.Context) error {
	tickets, err := h.tickets.ListOpen(ctx)
	if err != nil {
		h.logger.Error("failed to list open tickets", "error", err)
		return h.sender.SendMessage(ctx, h.operatorChatID, denialText(err, ""), nil)
	}
	if len(tickets) == 0 {
		return h.sender.SendMessage(ctx, h.operatorChatID, msgNoOpenTickets, nil)
	}
	if err := h.sender.SendMessage(ctx, h.operatorChatID, fmt.Sprintf(msgOpenTickets, len(tickets)), nil); err != nil {
		return err
	}
	if len(tickets) > maxListedTickets {
		tickets = tickets[:maxListedTickets]
	}
	for _, t := range tickets {
		if err := h.sender.SendMessage(ctx, h.operatorChatID, renderOpenTicket(t), ticketKeyboard(t.Code)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) logDenial(action, code, opID string, err error) {
	if errs.IsLockViolation(err) || errors.Is(err, errs.ErrTicketNotFound) || errors.Is(err, errs.ErrValidation) {
		h.logger.Info("operator action denied", "action", action, "code", code, "operator_id", opID, "error", err)
		return
	}
	h.logger.Error("operator action failed", "action", action, "code", code, "operator_id", opID, "error", err)
}

// canReply mirrors the reply preconditions so the Balas button refuses early.
func canReply(t model.Ticket, opID string) error {
	switch {
	case t.Status == model.TicketStatusReplied:
		return errs.ErrAlreadyReplied
	case t.Status == model.TicketStatusPending:
		return errs.ErrNotLocked
	case t.LockedBy != opID:
		return errs.ErrWrongOwner
	}
	return nil
}

func operatorID(u *User) string {
	return strconv.FormatInt(u.ID, 10)
}

func displayName(u *User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}

// splitCommand returns the command (without any @botname suffix) and its arguments, or
// an empty command for plain text.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, args, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

// pendingReplies maps an operator to the ticket their next group message answers.
type pendingReplies struct {
	mu    sync.Mutex
	codes map[int64]string
}

func newPendingReplies() *pendingReplies {
	return &pendingReplies{codes: make(map[int64]string)}
}

func (p *pendingReplies) set(operator int64, code string) {
	p.mu.Lock()
	p.codes[operator] = code
	p.mu.Unlock()
}

func (p *pendingReplies) get(operator int64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	code, ok := p.codes[operator]
	return code, ok
}

func (p *pendingReplies) take(operator int64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	code, ok := p.codes[operator]
	delete(p.codes, operator)
	return code, ok
}
