// Package model holds the domain records shared between the round engine,
// the persistence layer and the HTTP/websocket surfaces.
package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/reelroom/reelroom/internal/slot"
)

// Role controls access to the admin endpoints.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is a registered player. Balance is whole currency units and is never
// allowed to go negative; every mutation is paired with a ledger entry.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
	Balance      int64
	CreatedAt    time.Time
}

// RoundState is the lifecycle phase of a game round.
type RoundState string

const (
	RoundIdle     RoundState = "IDLE"
	RoundBetting  RoundState = "BETTING"
	RoundSpinning RoundState = "SPINNING"
	RoundResult   RoundState = "RESULT"
)

// Round is one complete betting/spin/result cycle. Result is nil until the
// round reaches RESULT. Only the round engine creates or transitions rounds.
type Round struct {
	ID         uuid.UUID
	State      RoundState
	Result     *slot.Outcome
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Bet is a single wager by one user in one round. At most one bet exists per
// (user, round) pair; Amount is immutable after acceptance and Payout is
// written exactly once at settlement.
type Bet struct {
	ID        uuid.UUID
	UserID    int64
	RoundID   uuid.UUID
	Amount    int64
	Payout    *int64
	CreatedAt time.Time
}

// LedgerType classifies a balance-affecting transaction.
type LedgerType string

const (
	LedgerBet      LedgerType = "BET"
	LedgerPayout   LedgerType = "PAYOUT"
	LedgerPurchase LedgerType = "PURCHASE"
	LedgerCredit   LedgerType = "CREDIT"
)

// LedgerEntry is one append-only record of a balance mutation. ActorID is the
// user that caused the mutation (the bettor, or the admin issuing a credit).
type LedgerEntry struct {
	ID          int64
	Type        LedgerType
	Amount      int64
	Description string
	UserID      int64
	ActorID     int64
	CreatedAt   time.Time
}

// Item is a shop catalog entry.
type Item struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Price       int64
}
