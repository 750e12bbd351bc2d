package session

import (
	"context"
	"time"
)

type Mode string

const (
	ModeNone               Mode = "NONE"
	ModeAwaitingAlias      Mode = "AWAITING_ALIAS"
	ModeAwaitingZone       Mode = "AWAITING_ZONE"
	ModeAwaitingAge        Mode = "AWAITING_AGE"
	ModeAwaitingQuestion   Mode = "AWAITING_QUESTION"
	ModeAwaitingRiskAnswer Mode = "AWAITING_RISK_ANSWER"
)

// Session is one user's conversational state. It lives only in the session store; a lost
// session is recovered by the SessionExpired guard, not by reading tickets back.
type Session struct {
	UserID    string    `json:"user_id"`
	Mode      Mode      `json:"mode"`
	Alias     string    `json:"alias,omitempty"`
	Zone      string    `json:"zone,omitempty"`
	Age       int       `json:"age,omitempty"`
	RiskIndex int       `json:"risk_index,omitempty"`
	RiskScore int       `json:"risk_score,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New is the state of a user seen for the first time.
func New(userID string) Session {
	return Session{UserID: userID, Mode: ModeNone}
}

// HasIdentity reports whether alias, zone and age have all been collected.
func (s Session) HasIdentity() bool {
	return s.Alias != "" && s.Zone != "" && s.Age > 0
}

// Restart clears every field and waits for a new alias.
func (s Session) Restart() Session {
	return Session{UserID: s.UserID, Mode: ModeAwaitingAlias}
}

// Store is the session repository keyed by user identity.
type Store interface {
	// Get returns the user's session, or New(userID) on first contact.
	Get(ctx context.Context, userID string) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context, userID string) error
}
