package conversation

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temanhiv-blip/teman-hiv-bot/internal/content"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/errs"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/logger"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/model"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/service"
	"github.com/temanhiv-blip/teman-hiv-bot/internal/session"
)

type mockSubmitter struct {
	SubmitFunc func(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error)
	calls      []service.SubmitRequest
}

func (m *mockSubmitter) Submit(ctx context.Context, req service.SubmitRequest) (*service.SubmitResult, error) {
	m.calls = append(m.calls, req)
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, req)
	}
	return &service.SubmitResult{Ticket: model.Ticket{Code: "K1700000000"}}, nil
}

type mockRiskLog struct {
	entries []model.RiskEntry
	err     error
}

func (m *mockRiskLog) AppendRisk(_ context.Context, e model.RiskEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

type fixture struct {
	machine  *Machine
	sessions *session.MemoryStore
	tickets  *mockSubmitter
	risks    *mockRiskLog
	content  *content.Content
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sessions: session.NewMemoryStore(),
		tickets:  &mockSubmitter{},
		risks:    &mockRiskLog{},
		content:  content.Default(),
	}
	f.machine = NewMachine(f.sessions, f.tickets, f.risks, f.content, logger.Nop())
	return f
}

func (f *fixture) advance(t *testing.T, ev Event) (Reply, error) {
	t.Helper()
	reply, err := f.machine.Advance(context.Background(), "555", ev)
	assert.NotEmpty(t, reply.Text, "reply text is always set")
	return reply, err
}

func (f *fixture) session(t *testing.T) session.Session {
	t.Helper()
	s, err := f.sessions.Get(context.Background(), "555")
	require.NoError(t, err)
	return s
}

// onboard walks a user through alias, zone and age.
func (f *fixture) onboard(t *testing.T) {
	t.Helper()
	_, err := f.advance(t, Restart())
	require.NoError(t, err)
	_, err = f.advance(t, Text("Budi"))
	require.NoError(t, err)
	_, err = f.advance(t, Choice(ZoneChoice("Awayan")))
	require.NoError(t, err)
	_, err = f.advance(t, Text("30"))
	require.NoError(t, err)
}

func TestAdvance_Onboarding(t *testing.T) {
	f := newFixture(t)

	reply, err := f.advance(t, Restart())
	require.NoError(t, err)
	assert.Equal(t, f.content.Texts.Welcome, reply.Text)
	assert.Equal(t, session.ModeAwaitingAlias, f.session(t).Mode)

	reply, err = f.advance(t, Text("Bunga Mawar"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Bunga Mawar")
	require.NotEmpty(t, reply.Buttons)
	assert.Equal(t, ZoneChoice("Awayan"), reply.Buttons[0][0].Data)
	assert.Equal(t, session.ModeAwaitingZone, f.session(t).Mode)

	_, err = f.advance(t, Choice(ZoneChoice("Halong")))
	require.NoError(t, err)
	assert.Equal(t, session.ModeAwaitingAge, f.session(t).Mode)

	reply, err = f.advance(t, Text("25"))
	require.NoError(t, err)
	assert.Equal(t, f.content.Texts.Menu, reply.Text)
	require.Len(t, reply.Buttons, 2)
	assert.Equal(t, ChoiceSubmit, reply.Buttons[0][0].Data)

	s := f.session(t)
	assert.Equal(t, session.ModeNone, s.Mode)
	assert.Equal(t, "Bunga Mawar", s.Alias)
	assert.Equal(t, "Halong", s.Zone)
	assert.Equal(t, 25, s.Age)
}

func TestAdvance_AliasRequiresText(t *testing.T) {
	f := newFixture(t)
	_, err := f.advance(t, Restart())
	require.NoError(t, err)

	_, err = f.advance(t, Text("   "))
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, session.ModeAwaitingAlias, f.session(t).Mode)
}

func TestAdvance_ZoneMustBeListedChoice(t *testing.T) {
	f := newFixture(t)
	_, _ = f.advance(t, Restart())
	_, _ = f.advance(t, Text("Budi"))

	for _, ev := range []Event{Text("Awayan"), Choice(ZoneChoice("Jakarta")), Choice(ChoiceSubmit)} {
		reply, err := f.advance(t, ev)
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.Equal(t, f.content.Texts.InvalidZone, reply.Text)
		assert.NotEmpty(t, reply.Buttons, "zones are offered again")
	}
	assert.Equal(t, session.ModeAwaitingZone, f.session(t).Mode)
	assert.Empty(t, f.session(t).Zone)
}

func TestAdvance_AgeValidation(t *testing.T) {
	cases := []string{"abc", "25 tahun", "-5", "0", "2.5", "", "1000"}
	for _, input := range cases {
		t.Run(input, func(t *testing.T) {
			f := newFixture(t)
			_, _ = f.advance(t, Restart())
			_, _ = f.advance(t, Text("Budi"))
			_, _ = f.advance(t, Choice(ZoneChoice("Awayan")))

			reply, err := f.advance(t, Text(input))
			assert.ErrorIs(t, err, errs.ErrValidation)
			assert.Equal(t, f.content.Texts.InvalidAge, reply.Text)
			s := f.session(t)
			assert.Equal(t, session.ModeAwaitingAge, s.Mode, "no state change")
			assert.Zero(t, s.Age)
		})
	}
}

func TestAdvance_SubmitQuestion(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	reply, err := f.advance(t, Choice(ChoiceSubmit))
	require.NoError(t, err)
	assert.Equal(t, f.content.Texts.AskQuestion, reply.Text)
	assert.Equal(t, session.ModeAwaitingQuestion, f.session(t).Mode)

	reply, err = f.advance(t, Text("apakah aman?"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "K1700000000")

	require.Len(t, f.tickets.calls, 1)
	assert.Equal(t, service.SubmitRequest{
		RequesterID: "555",
		Alias:       "Budi",
		Age:         30,
		Zone:        "Awayan",
		Text:        "apakah aman?",
	}, f.tickets.calls[0])

	assert.Empty(t, reply.Buttons)

	s := f.session(t)
	assert.Equal(t, session.ModeNone, s.Mode)
	assert.False(t, s.HasIdentity(), "a completed submission clears the session")
	assert.Empty(t, s.Alias)

	reply, err = f.advance(t, Choice(ChoiceSubmit))
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
	assert.Equal(t, f.content.Texts.SessionExpired, reply.Text)
	assert.Equal(t, session.ModeAwaitingAlias, f.session(t).Mode)
	require.Len(t, f.tickets.calls, 1)
}

func TestAdvance_AddendumReply(t *testing.T) {
	f := newFixture(t)
	f.tickets.SubmitFunc = func(_ context.Context, _ service.SubmitRequest) (*service.SubmitResult, error) {
		return &service.SubmitResult{Ticket: model.Ticket{Code: "K1700000000"}, Appended: true}, nil
	}
	f.onboard(t)
	_, _ = f.advance(t, Choice(ChoiceSubmit))

	reply, err := f.advance(t, Text("satu lagi"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf(f.content.Texts.TicketAppended, "K1700000000"), reply.Text)
	assert.Equal(t, session.ModeNone, f.session(t).Mode)
}

func TestAdvance_SubmitStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.tickets.SubmitFunc = func(_ context.Context, _ service.SubmitRequest) (*service.SubmitResult, error) {
		return nil, errs.ErrStoreUnavailable
	}
	f.onboard(t)
	_, _ = f.advance(t, Choice(ChoiceSubmit))

	reply, err := f.advance(t, Text("apakah aman?"))
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
	assert.Equal(t, f.content.Texts.SubmitFailed, reply.Text)
	assert.Equal(t, session.ModeAwaitingQuestion, f.session(t).Mode)
}

func TestAdvance_EmptyQuestion(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	_, _ = f.advance(t, Choice(ChoiceSubmit))

	reply, err := f.advance(t, Text("  "))
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, f.content.Texts.EmptyQuestion, reply.Text)
	assert.Empty(t, f.tickets.calls)
}

func TestAdvance_SessionExpiredGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// A session that reached AWAITING_QUESTION but lost its zone.
	require.NoError(t, f.sessions.Save(ctx, session.Session{
		UserID: "555",
		Mode:   session.ModeAwaitingQuestion,
		Alias:  "Budi",
		Age:    30,
	}))

	reply, err := f.advance(t, Text("apakah aman?"))
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
	assert.Equal(t, f.content.Texts.SessionExpired, reply.Text)
	assert.Empty(t, f.tickets.calls, "no ticket is created")

	s := f.session(t)
	assert.Equal(t, session.ModeAwaitingAlias, s.Mode)
	assert.Empty(t, s.Alias)
}

func TestAdvance_MenuWithoutIdentity(t *testing.T) {
	f := newFixture(t)

	_, err := f.advance(t, Choice(ChoiceSubmit))
	assert.ErrorIs(t, err, errs.ErrSessionExpired)
	assert.Equal(t, session.ModeAwaitingAlias, f.session(t).Mode)

	f2 := newFixture(t)
	reply, err := f2.advance(t, Text("halo"))
	require.NoError(t, err)
	assert.Equal(t, f2.content.Texts.Welcome, reply.Text, "first contact starts the flow")
}

func TestAdvance_FreeTextShowsMenu(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	reply, err := f.advance(t, Text("halo"))
	require.NoError(t, err)
	assert.Equal(t, f.content.Texts.Menu, reply.Text)
	assert.Empty(t, f.tickets.calls)
}

func TestAdvance_RestartClearsSession(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)

	_, err := f.advance(t, Restart())
	require.NoError(t, err)
	s := f.session(t)
	assert.Equal(t, session.ModeAwaitingAlias, s.Mode)
	assert.False(t, s.HasIdentity())
}

func TestAdvance_RiskQuiz(t *testing.T) {
	tests := []struct {
		name  string
		yes   int
		class model.RiskClass
	}{
		{"all no", 0, model.RiskLow},
		{"below threshold", 2, model.RiskLow},
		{"at threshold", 3, model.RiskHigh},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.onboard(t)

			reply, err := f.advance(t, Choice(ChoiceRisk))
			require.NoError(t, err)
			assert.Contains(t, reply.Text, f.content.RiskQuestions[0])

			n := len(f.content.RiskQuestions)
			for i := 0; i < n; i++ {
				ev := Choice(ChoiceNo)
				if i < tt.yes {
					ev = Choice(ChoiceYes)
				}
				reply, err = f.advance(t, ev)
				require.NoError(t, err)
			}

			require.Len(t, f.risks.entries, 1)
			e := f.risks.entries[0]
			assert.Equal(t, tt.yes, e.Score)
			assert.Equal(t, tt.class, e.Classification)
			assert.Equal(t, "Budi", e.Alias)
			assert.Equal(t, "Awayan", e.Zone)
			assert.NotEmpty(t, e.Timestamp)

			s := f.session(t)
			assert.Equal(t, session.ModeNone, s.Mode)
			assert.Zero(t, s.RiskIndex)
			assert.Empty(t, f.tickets.calls, "risk quiz never touches tickets")
		})
	}
}

func TestAdvance_RiskInvalidAnswer(t *testing.T) {
	f := newFixture(t)
	f.onboard(t)
	_, _ = f.advance(t, Choice(ChoiceRisk))

	reply, err := f.advance(t, Text("mungkin"))
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, reply.Text, f.content.Texts.RiskInvalidAnswer)
	assert.Zero(t, f.session(t).RiskIndex)

	_, err = f.advance(t, Text("ya"))
	require.NoError(t, err, "typed labels are accepted")
	s := f.session(t)
	assert.Equal(t, 1, s.RiskIndex)
	assert.Equal(t, 1, s.RiskScore)
}

func TestAdvance_RiskLogFailure(t *testing.T) {
	f := newFixture(t)
	f.risks.err = errors.New("store down")
	f.onboard(t)
	_, _ = f.advance(t, Choice(ChoiceRisk))

	var (
		reply Reply
		err   error
	)
	for range f.content.RiskQuestions {
		reply, err = f.advance(t, Choice(ChoiceNo))
	}
	assert.Error(t, err)
	assert.Contains(t, reply.Text, f.content.Texts.RiskFailed)
	assert.Equal(t, session.ModeNone, f.session(t).Mode)
}

func TestIsChoice(t *testing.T) {
	assert.True(t, IsChoice(ChoiceSubmit))
	assert.True(t, IsChoice(ZoneChoice("Awayan")))
	assert.False(t, IsChoice("lock:K1"))
}
