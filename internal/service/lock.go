package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/kafka"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
)

type LockResult struct {
	Ticket model.Ticket
	// AlreadyOwned is set when the operator re-locked a ticket they already hold.
	AlreadyOwned bool
}

// Lock claims a PENDING ticket for operatorID. Locking a ticket the same operator already
// holds succeeds without writing.
func (s *TicketService) Lock(ctx context.Context, code, operatorID string) (*LockResult, error) {
	if operatorID == "" {
		return nil, errs.Invalid("operator_id", "empty")
	}
	t, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if res, err := lockPrecheck(*t, operatorID); res != nil || err != nil {
		return res, err
	}

	ok, err := s.store.UpdateRangeIf(ctx, t.RowID,
		[]model.Cell{{Col: model.ColStatus, Value: string(model.TicketStatusPending)}},
		[]model.Cell{
			{Col: model.ColStatus, Value: string(model.TicketStatusLocked)},
			{Col: model.ColLockedBy, Value: operatorID},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", code, err)
	}
	if !ok {
		// Someone moved the ticket between read and write; report what they did.
		t, err = s.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if res, err := lockPrecheck(*t, operatorID); res != nil || err != nil {
			return res, err
		}
		return nil, fmt.Errorf("lock %s: %w", code, errs.ErrLockedByOther)
	}

	t.Status = model.TicketStatusLocked
	t.LockedBy = operatorID
	s.logger.Info("ticket locked", "code", code, "operator_id", operatorID)

	if t.RequesterID != "" && s.texts.TicketLocked != "" {
		if err := s.notifier.NotifyUser(ctx, t.RequesterID, fmt.Sprintf(s.texts.TicketLocked, code)); err != nil {
			s.logger.Warn("failed to tell requester ticket is being handled", "code", code, "error", err)
		}
	}
	s.publish(kafka.EventTicketLocked, *t)
	return &LockResult{Ticket: *t}, nil
}

// lockPrecheck resolves every non-PENDING case. It returns nil, nil when the ticket is
// still PENDING and the lock must be written.
func lockPrecheck(t model.Ticket, operatorID string) (*LockResult, error) {
	switch t.Status {
	case model.TicketStatusReplied:
		return nil, errs.ErrAlreadyReplied
	case model.TicketStatusLocked:
		if t.LockedBy == operatorID {
			return &LockResult{Ticket: t, AlreadyOwned: true}, nil
		}
		return nil, errs.ErrLockedByOther
	case model.TicketStatusPending:
		return nil, nil
	default:
		return nil, fmt.Errorf("ticket %s has unknown status %q: %w", t.Code, t.Status, errs.ErrStoreUnavailable)
	}
}

// Reply delivers text to the requester and only then marks the ticket REPLIED. A failed
// delivery leaves the ticket LOCKED so the operator can retry.
func (s *TicketService) Reply(ctx context.Context, code, operatorID, text string) (*model.Ticket, error) {
	if operatorID == "" {
		return nil, errs.Invalid("operator_id", "empty")
	}
	t, err := s.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := replyPrecheck(*t, operatorID); err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Invalid("reply", "empty")
	}

	if err := s.notifier.NotifyUser(ctx, t.RequesterID, fmt.Sprintf(s.texts.ReplyToUser, code, text)); err != nil {
		s.logger.Warn("reply delivery failed", "code", code, "operator_id", operatorID, "error", err)
		return nil, fmt.Errorf("reply %s: %w: %v", code, errs.ErrDeliveryFailed, err)
	}

	ok, err := s.store.UpdateRangeIf(ctx, t.RowID,
		[]model.Cell{
			{Col: model.ColStatus, Value: string(model.TicketStatusLocked)},
			{Col: model.ColLockedBy, Value: operatorID},
		},
		[]model.Cell{
			{Col: model.ColStatus, Value: string(model.TicketStatusReplied)},
			{Col: model.ColReply, Value: text},
			{Col: model.ColLockedBy, Value: operatorID},
		},
	)
	if err != nil {
		s.logger.Error("reply delivered but ticket not updated", "code", code, "operator_id", operatorID, "error", err)
		return nil, fmt.Errorf("reply %s: %w: %v", code, errs.ErrReplyNotRecorded, err)
	}
	if !ok {
		s.logger.Error("reply delivered but ticket changed underneath", "code", code, "operator_id", operatorID)
		cur, gerr := s.GetByCode(ctx, code)
		if gerr != nil {
			return nil, gerr
		}
		if err := replyPrecheck(*cur, operatorID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("reply %s: %w", code, errs.ErrWrongOwner)
	}

	t.Status = model.TicketStatusReplied
	t.Reply = text
	s.logger.Info("ticket replied", "code", code, "operator_id", operatorID)
	s.publish(kafka.EventTicketReplied, *t)
	return t, nil
}

func replyPrecheck(t model.Ticket, operatorID string) error {
	switch {
	case t.Status == model.TicketStatusReplied:
		return errs.ErrAlreadyReplied
	case t.Status == model.TicketStatusPending:
		return errs.ErrNotLocked
	case t.Status != model.TicketStatusLocked:
		return fmt.Errorf("ticket %s has unknown status %q: %w", t.Code, t.Status, errs.ErrStoreUnavailable)
	case t.LockedBy != operatorID:
		return errs.ErrWrongOwner
	}
	return nil
}

