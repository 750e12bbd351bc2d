// Package conversation is the per-user state machine: it collects alias, zone and age,
// hands questions to the ticket service and runs the risk quiz.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/biztime"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/content"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/recordstore"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/session"
)

const maxAgeDigits = 3

// Submitter is the part of the ticket service the conversation needs.
type Submitter interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
}

type Machine struct {
	sessions session.Store
	tickets  Submitter
	risks    recordstore.RiskLog
	content  *content.Content
	logger   *slog.Logger
	now      func() time.Time
}

func NewMachine(
	sessions session.Store,
	tickets Submitter,
	risks recordstore.RiskLog,
	c *content.Content,
	logger *slog.Logger,
) *Machine {
	return &Machine{
		sessions: sessions,
		tickets:  tickets,
		risks:    risks,
		content:  c,
		logger:   logger,
		now:      biztime.Now,
	}
}

// Advance applies ev to the user's session and returns what to send back. The reply is
// always usable; a non-nil error says why the step did not advance (validation, expired
// session, store failure) and is for logging.
func (m *Machine) Advance(ctx context.Context, userID string, ev Event) (Reply, error) {
	texts := m.content.Texts

	if ev.Kind == EventRestart {
		if err := m.sessions.Clear(ctx, userID); err != nil {
			return Reply{Text: texts.SubmitFailed}, fmt.Errorf("clear session: %w", err)
		}
		sess := session.New(userID).Restart()
		if err := m.sessions.Save(ctx, sess); err != nil {
			return Reply{Text: texts.SubmitFailed}, fmt.Errorf("save session: %w", err)
		}
		return Reply{Text: texts.Welcome}, nil
	}

	sess, err := m.sessions.Get(ctx, userID)
	if err != nil {
		return Reply{Text: texts.SubmitFailed}, fmt.Errorf("load session: %w", err)
	}

	next, reply, stepErr := m.step(ctx, sess, ev)
	if err := m.sessions.Save(ctx, next); err != nil {
		return reply, errors.Join(stepErr, fmt.Errorf("save session: %w", err))
	}
	return reply, stepErr
}

func (m *Machine) step(ctx context.Context, s session.Session, ev Event) (session.Session, Reply, error) {
	switch s.Mode {
	case session.ModeAwaitingAlias:
		return m.onAlias(s, ev)
	case session.ModeAwaitingZone:
		return m.onZone(s, ev)
	case session.ModeAwaitingAge:
		return m.onAge(s, ev)
	case session.ModeAwaitingQuestion:
		return m.onQuestion(ctx, s, ev)
	case session.ModeAwaitingRiskAnswer:
		return m.onRiskAnswer(ctx, s, ev)
	default:
		return m.onMenu(s, ev)
	}
}

func (m *Machine) onAlias(s session.Session, ev Event) (session.Session, Reply, error) {
	if ev.Kind != EventText || strings.TrimSpace(ev.Text) == "" {
		return s, Reply{Text: m.content.Texts.Welcome}, errs.Invalid("alias", "empty")
	}
	s.Alias = ev.Text
	s.Mode = session.ModeAwaitingZone
	return s, Reply{
		Text:    fmt.Sprintf(m.content.Texts.AskZone, s.Alias),
		Buttons: m.zoneButtons(),
	}, nil
}

func (m *Machine) onZone(s session.Session, ev Event) (session.Session, Reply, error) {
	zone, ok := strings.CutPrefix(ev.Data, zonePrefix)
	if ev.Kind != EventChoice || !ok || !m.content.HasZone(zone) {
		return s, Reply{Text: m.content.Texts.InvalidZone, Buttons: m.zoneButtons()}, errs.Invalid("zone", "not a listed zone")
	}
	s.Zone = zone
	s.Mode = session.ModeAwaitingAge
	return s, Reply{Text: m.content.Texts.AskAge}, nil
}

func (m *Machine) onAge(s session.Session, ev Event) (session.Session, Reply, error) {
	age, err := parseAge(ev)
	if err != nil {
		return s, Reply{Text: m.content.Texts.InvalidAge}, err
	}
	s.Age = age
	s.Mode = session.ModeNone
	return s, m.menu(m.content.Texts.Menu), nil
}

// parseAge accepts digits only; zero is rejected since it is indistinguishable from unset.
func parseAge(ev Event) (int, error) {
	text := strings.TrimSpace(ev.Text)
	if ev.Kind != EventText || text == "" || len(text) > maxAgeDigits {
		return 0, errs.Invalid("age", "not a number")
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, errs.Invalid("age", "not a number")
		}
	}
	age, _ := strconv.Atoi(text)
	if age == 0 {
		return 0, errs.Invalid("age", "must be positive")
	}
	return age, nil
}

func (m *Machine) onMenu(s session.Session, ev Event) (session.Session, Reply, error) {
	if ev.Kind == EventChoice {
		switch ev.Data {
		case ChoiceSubmit:
			if !s.HasIdentity() {
				return m.expired(s)
			}
			s.Mode = session.ModeAwaitingQuestion
			return s, Reply{Text: m.content.Texts.AskQuestion}, nil
		case ChoiceRisk:
			if !s.HasIdentity() {
				return m.expired(s)
			}
			s.Mode = session.ModeAwaitingRiskAnswer
			s.RiskIndex, s.RiskScore = 0, 0
			return s, m.riskQuestion(s.RiskIndex), nil
		}
	}
	if !s.HasIdentity() {
		// First contact, or a session lost to a restart or TTL: start the flow.
		s = s.Restart()
		return s, Reply{Text: m.content.Texts.Welcome}, nil
	}
	return s, m.menu(m.content.Texts.Menu), nil
}

func (m *Machine) onQuestion(ctx context.Context, s session.Session, ev Event) (session.Session, Reply, error) {
	if ev.Kind == EventChoice {
		return m.onMenu(s, ev)
	}
	if !s.HasIdentity() {
		return m.expired(s)
	}
	if strings.TrimSpace(ev.Text) == "" {
		return s, Reply{Text: m.content.Texts.EmptyQuestion}, errs.Invalid("question", "empty")
	}

	res, err := m.tickets.Submit(ctx, service.SubmitRequest{
		RequesterID: s.UserID,
		Alias:       s.Alias,
		Age:         s.Age,
		Zone:        s.Zone,
		Text:        ev.Text,
	})
	if err != nil {
		if errors.Is(err, errs.ErrValidation) {
			return s, Reply{Text: m.content.Texts.EmptyQuestion}, err
		}
		// Stay in AWAITING_QUESTION so the user can resend once the store is back.
		m.logger.Error("ticket submission failed", "requester_id", s.UserID, "error", err)
		return s, Reply{Text: m.content.Texts.SubmitFailed}, err
	}

	// A completed submission ends the session. A follow-up after fresh onboarding still
	// lands on the open ticket, since dedup keys on the requester, not on session fields.
	text := fmt.Sprintf(m.content.Texts.TicketCreated, res.Ticket.Code)
	if res.Appended {
		text = fmt.Sprintf(m.content.Texts.TicketAppended, res.Ticket.Code)
	}
	return session.New(s.UserID), Reply{Text: text}, nil
}

func (m *Machine) onRiskAnswer(ctx context.Context, s session.Session, ev Event) (session.Session, Reply, error) {
	if !s.HasIdentity() {
		return m.expired(s)
	}
	if s.RiskIndex < 0 || s.RiskIndex >= len(m.content.RiskQuestions) {
		// The question set shrank under a live session.
		s.RiskIndex, s.RiskScore = 0, 0
	}
	yes, ok := m.riskAnswer(ev)
	if !ok {
		if ev.Kind == EventChoice && (ev.Data == ChoiceSubmit || ev.Data == ChoiceRisk) {
			return m.onMenu(s, ev)
		}
		r := m.riskQuestion(s.RiskIndex)
		r.Text = m.content.Texts.RiskInvalidAnswer + "\n\n" + r.Text
		return s, r, errs.Invalid("risk_answer", "not yes or no")
	}

	if yes {
		s.RiskScore++
	}
	s.RiskIndex++
	if s.RiskIndex < len(m.content.RiskQuestions) {
		return s, m.riskQuestion(s.RiskIndex), nil
	}

	score := s.RiskScore
	class := model.RiskLow
	text := fmt.Sprintf(m.content.Texts.RiskResultLow, score)
	if score >= m.content.RiskHighThreshold {
		class = model.RiskHigh
		text = fmt.Sprintf(m.content.Texts.RiskResultHigh, score)
	}
	s.Mode = session.ModeNone
	s.RiskIndex, s.RiskScore = 0, 0

	err := m.risks.AppendRisk(ctx, model.RiskEntry{
		Timestamp:      biztime.Format(m.now()),
		Alias:          s.Alias,
		Age:            s.Age,
		Score:          score,
		Classification: class,
		Zone:           s.Zone,
	})
	if err != nil {
		m.logger.Error("risk log append failed", "requester_id", s.UserID, "error", err)
		return s, m.menu(text + "\n\n" + m.content.Texts.RiskFailed), err
	}
	return s, m.menu(text), nil
}

// riskAnswer accepts the yes/no buttons and their labels typed as text.
func (m *Machine) riskAnswer(ev Event) (yes, ok bool) {
	switch ev.Kind {
	case EventChoice:
		switch ev.Data {
		case ChoiceYes:
			return true, true
		case ChoiceNo:
			return false, true
		}
	case EventText:
		text := strings.TrimSpace(ev.Text)
		switch {
		case strings.EqualFold(text, m.content.Texts.RiskYes):
			return true, true
		case strings.EqualFold(text, m.content.Texts.RiskNo):
			return false, true
		}
	}
	return false, false
}

// expired resets a session that lost part of its identity.
func (m *Machine) expired(s session.Session) (session.Session, Reply, error) {
	return s.Restart(), Reply{Text: m.content.Texts.SessionExpired}, errs.ErrSessionExpired
}

func (m *Machine) menu(text string) Reply {
	return Reply{
		Text: text,
		Buttons: [][]Button{
			{{Text: m.content.Texts.MenuSubmit, Data: ChoiceSubmit}},
			{{Text: m.content.Texts.MenuRisk, Data: ChoiceRisk}},
		},
	}
}

func (m *Machine) riskQuestion(i int) Reply {
	return Reply{
		Text: fmt.Sprintf("%d/%d. %s", i+1, len(m.content.RiskQuestions), m.content.RiskQuestions[i]),
		Buttons: [][]Button{{
			{Text: m.content.Texts.RiskYes, Data: ChoiceYes},
			{Text: m.content.Texts.RiskNo, Data: ChoiceNo},
		}},
	}
}

// zoneButtons lays the zones out two per row.
func (m *Machine) zoneButtons() [][]Button {
	var rows [][]Button
	for i, z := range m.content.Zones {
		b := Button{Text: z, Data: ZoneChoice(z)}
		if i%2 == 0 {
			rows = append(rows, []Button{b})
		} else {
			rows[len(rows)-1] = append(rows[len(rows)-1], b)
		}
	}
	return rows
}
