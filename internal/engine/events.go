package engine

import (
	"github.com/google/uuid"

	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
)

// Event type discriminators. Every broadcast payload carries one of these in
// its top-level "type" field.
const (
	EventRoundState  = "ROUND_STATE"
	EventRoundResult = "ROUND_RESULT"
	EventBetPlaced   = "BET_PLACED"
	EventPayout      = "PAYOUT"
)

// UserInfo is the public projection of a user included in broadcasts. It
// never carries the password hash.
type UserInfo struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
}

// PublicUser builds the broadcast projection of a user record.
func PublicUser(u *model.User) UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, Balance: u.Balance}
}

// RoundStateEvent announces a phase change. Exactly one of BettingMs or
// SpinningMs is set, telling clients how long the phase lasts.
type RoundStateEvent struct {
	Type       string           `json:"type"`
	State      model.RoundState `json:"state"`
	RoundID    uuid.UUID        `json:"roundId"`
	BettingMs  int64            `json:"bettingMs,omitempty"`
	SpinningMs int64            `json:"spinningMs,omitempty"`
}

// RoundResultEvent carries the final outcome of a round.
type RoundResultEvent struct {
	Type    string       `json:"type"`
	RoundID uuid.UUID    `json:"roundId"`
	Result  slot.Outcome `json:"result"`
}

// BetPlacedEvent is pushed to every session when any bet is accepted, so
// bystanders see live wagering.
type BetPlacedEvent struct {
	Type    string    `json:"type"`
	RoundID uuid.UUID `json:"roundId"`
	User    UserInfo  `json:"user"`
	Amount  int64     `json:"amount"`
}

// PayoutEvent is pushed after a winning bet has been durably settled.
type PayoutEvent struct {
	Type       string    `json:"type"`
	RoundID    uuid.UUID `json:"roundId"`
	User       UserInfo  `json:"user"`
	Amount     int64     `json:"amount"`
	Multiplier int       `json:"multiplier"`
	Symbol     string    `json:"symbol,omitempty"`
}
