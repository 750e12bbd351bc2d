package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/biztime"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/content"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/kafka"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/recordstore"
)

const (
	codePrefix       = "K"
	maxCodeAttempts  = 3
	maxAppendRetries = 2
)

// NoticeKind tells the operator channel how to render a notice.
type NoticeKind int

const (
	NoticeNewTicket NoticeKind = iota
	NoticeAddendum
)

// OperatorNotice is what the operator channel receives about a submission.
type OperatorNotice struct {
	Kind     NoticeKind
	Ticket   model.Ticket
	Addendum string
}

// Notifier is the outbound side of the messaging channel.
type Notifier interface {
	NotifyUser(ctx context.Context, requesterID, text string) error
	NotifyOperators(ctx context.Context, n OperatorNotice) error
}

// TicketServicer is what the conversation, the bot router and the HTTP API depend on.
type TicketServicer interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	Lock(ctx context.Context, code, operatorID string) (*LockResult, error)
	Reply(ctx context.Context, code, operatorID, text string) (*model.Ticket, error)
	ListOpen(ctx context.Context) ([]model.Ticket, error)
	GetByCode(ctx context.Context, code string) (*model.Ticket, error)
}

type SubmitRequest struct {
	RequesterID string
	Alias       string
	Age         int
	Zone        string
	Text        string
}

type SubmitResult struct {
	Ticket   model.Ticket
	Appended bool
}

type TicketService struct {
	store    recordstore.Store
	notifier Notifier
	events   kafka.TicketEventProducer
	texts    content.Texts
	logger   *slog.Logger
	now      func() time.Time
}

func NewTicketService(
	store recordstore.Store,
	notifier Notifier,
	events kafka.TicketEventProducer,
	texts content.Texts,
	logger *slog.Logger,
) *TicketService {
	return &TicketService{
		store:    store,
		notifier: notifier,
		events:   events,
		texts:    texts,
		logger:   logger,
		now:      biztime.Now,
	}
}

// Submit files a question for the requester. An open PENDING ticket of the same requester
// absorbs it as an addendum; otherwise a new ticket is created.
func (s *TicketService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, errs.Invalid("question", "empty")
	}
	if req.RequesterID == "" {
		return nil, errs.Invalid("requester_id", "empty")
	}

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		open, err := s.findPending(ctx, req.RequesterID)
		if err != nil {
			return nil, err
		}
		if open == nil {
			break
		}
		res, ok, err := s.appendTo(ctx, *open, text)
		if err != nil {
			return nil, err
		}
		if ok {
			return res, nil
		}
		// The ticket left PENDING (locked) or changed between read and write; resolve again.
		s.logger.Info("addendum lost race, re-resolving", "code", open.Code, "requester_id", req.RequesterID)
	}
	return s.create(ctx, req, text)
}

// findPending returns the most recent PENDING ticket of requesterID.
func (s *TicketService) findPending(ctx context.Context, requesterID string) (*model.Ticket, error) {
	rows, err := s.store.AllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("find pending ticket: %w", err)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		if r.Get(model.ColRequesterID) == requesterID && model.TicketStatus(r.Get(model.ColStatus)) == model.TicketStatusPending {
			t := model.TicketFromRow(r)
			return &t, nil
		}
	}
	return nil, nil
}

func (s *TicketService) appendTo(ctx context.Context, t model.Ticket, text string) (*SubmitResult, bool, error) {
	question := t.Question + "\n\n+ (" + biztime.Format(s.now()) + ") " + text
	ok, err := s.store.UpdateRangeIf(ctx, t.RowID,
		[]model.Cell{
			{Col: model.ColStatus, Value: string(model.TicketStatusPending)},
			{Col: model.ColQuestion, Value: t.Question},
		},
		[]model.Cell{{Col: model.ColQuestion, Value: question}},
	)
	if err != nil {
		return nil, false, fmt.Errorf("append to %s: %w", t.Code, err)
	}
	if !ok {
		return nil, false, nil
	}
	t.Question = question

	s.logger.Info("question appended to open ticket", "code", t.Code, "requester_id", t.RequesterID)
	if err := s.notifier.NotifyOperators(ctx, OperatorNotice{Kind: NoticeAddendum, Ticket: t, Addendum: text}); err != nil {
		s.logger.Warn("failed to notify operators of addendum", "code", t.Code, "error", err)
	}
	s.publish(kafka.EventTicketAppended, t)
	return &SubmitResult{Ticket: t, Appended: true}, true, nil
}

func (s *TicketService) create(ctx context.Context, req SubmitRequest, text string) (*SubmitResult, error) {
	created := s.now()
	t := model.Ticket{
		CreatedAt:   biztime.Format(created),
		Alias:       req.Alias,
		Age:         req.Age,
		Zone:        req.Zone,
		Question:    text,
		Status:      model.TicketStatusPending,
		RequesterID: req.RequesterID,
	}

	var err error
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		t.Code = NewCode(created.Add(time.Duration(attempt) * time.Second))
		t.RowID, err = s.store.Append(ctx, t.Row())
		if !errors.Is(err, recordstore.ErrDuplicate) {
			break
		}
		s.logger.Warn("ticket code collision", "code", t.Code, "attempt", attempt+1)
	}
	if err != nil {
		return nil, fmt.Errorf("create ticket: %w", err)
	}

	s.logger.Info("ticket created", "code", t.Code, "requester_id", t.RequesterID, "zone", t.Zone)
	if err := s.notifier.NotifyOperators(ctx, OperatorNotice{Kind: NoticeNewTicket, Ticket: t}); err != nil {
		s.logger.Warn("failed to notify operators of new ticket", "code", t.Code, "error", err)
	}
	s.publish(kafka.EventTicketCreated, t)
	return &SubmitResult{Ticket: t}, nil
}

// ListOpen returns PENDING tickets, newest first.
func (s *TicketService) ListOpen(ctx context.Context) ([]model.Ticket, error) {
	rows, err := s.store.AllRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	var out []model.Ticket
	for _, r := range rows {
		if model.TicketStatus(r.Get(model.ColStatus)) == model.TicketStatusPending {
			out = append(out, model.TicketFromRow(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].RowID > out[j].RowID
	})
	return out, nil
}

func (s *TicketService) GetByCode(ctx context.Context, code string) (*model.Ticket, error) {
	row, err := s.store.FindByColumn(ctx, model.ColCode, code)
	if err != nil {
		return nil, fmt.Errorf("get ticket %s: %w", code, err)
	}
	if row == nil {
		return nil, errs.ErrTicketNotFound
	}
	t := model.TicketFromRow(*row)
	return &t, nil
}

// NewCode derives a ticket code from its creation time: "K" + unix seconds.
func NewCode(t time.Time) string {
	return codePrefix + strconv.FormatInt(t.Unix(), 10)
}

// publish fires the event detached from the request; it must outlive a cancelled request.
func (s *TicketService) publish(event string, t model.Ticket) {
	if s.events == nil {
		return
	}
	payload := ticketEventPayload(t)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.events.ProduceTicketEvent(ctx, event, payload)
	}()
}

func ticketEventPayload(t model.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"code":         t.Code,
		"status":       string(t.Status),
		"zone":         t.Zone,
		"age":          t.Age,
		"locked_by":    t.LockedBy,
		"requester_id": t.RequesterID,
		"created_at":   t.CreatedAt,
	}
}
