package hub

import (
	"github.com/google/uuid"

	"github.com/reelroom/reelroom/internal/engine"
	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
)

// Session-scoped event types. Round lifecycle events are defined next to the
// engine that emits them; these cover the connection handshake and replies.
const (
	EventWelcome     = "WELCOME"
	EventOnlineUsers = "ONLINE_USERS"
	EventUserBalance = "USER_BALANCE"
	EventBetAccepted = "BET_ACCEPTED"
	EventError       = "ERROR"
)

// ActionPlaceBet is the only inbound action clients may send.
const ActionPlaceBet = "PLACE_BET"

type inboundMessage struct {
	Type   string `json:"type"`
	Amount int64  `json:"amount,omitempty"`
}

// WelcomeEvent is sent once to each session right after a successful
// upgrade, so late joiners can render the machine mid-round.
type WelcomeEvent struct {
	Type     string           `json:"type"`
	User     engine.UserInfo  `json:"user"`
	State    model.RoundState `json:"state"`
	RoundID  string           `json:"roundId,omitempty"`
	Paytable []slot.Symbol    `json:"paytable"`
}

// OnlineUsersEvent is the roster push, broadcast whenever a session joins or
// leaves or a balance changes.
type OnlineUsersEvent struct {
	Type  string            `json:"type"`
	Users []engine.UserInfo `json:"users"`
	Count int               `json:"count"`
}

// UserBalanceEvent tells one user their authoritative balance.
type UserBalanceEvent struct {
	Type string          `json:"type"`
	User engine.UserInfo `json:"user"`
}

// BetAcceptedEvent is the private acknowledgement of a PLACE_BET.
type BetAcceptedEvent struct {
	Type    string    `json:"type"`
	BetID   uuid.UUID `json:"betId"`
	RoundID uuid.UUID `json:"roundId"`
	Amount  int64     `json:"amount"`
}

// ErrorEvent carries a human-readable rejection. The connection stays open.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
