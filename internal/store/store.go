// Package store provides the Postgres persistence layer: users and balances,
// rounds, bets, the transaction ledger and the shop catalog.
//
// All repositories resolve the active transaction from the context via the
// transaction manager's context getter, so calls made inside a
// trm.Manager.Do closure automatically join the ambient transaction.
package store

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
)

// psql builds queries with Postgres-style $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// UserStore manages registered users and their balances.
type UserStore interface {
	Create(ctx context.Context, user *model.User) (int64, error)
	ByID(ctx context.Context, id int64) (*model.User, error)
	// ByIDForUpdate locks the user row for the rest of the enclosing
	// transaction, so concurrent balance mutations serialize instead of
	// losing updates.
	ByIDForUpdate(ctx context.Context, id int64) (*model.User, error)
	ByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateBalance(ctx context.Context, id int64, balance int64) error
	List(ctx context.Context) ([]*model.User, error)
}

// RoundStore persists round lifecycle records. Only the round engine calls
// the mutating methods.
type RoundStore interface {
	Create(ctx context.Context, startedAt time.Time) (*model.Round, error)
	SetState(ctx context.Context, id uuid.UUID, state model.RoundState) error
	Finish(ctx context.Context, id uuid.UUID, result slot.Outcome, finishedAt time.Time) error
}

// BetStore persists wagers. The bets table carries a UNIQUE (user_id,
// round_id) constraint as a storage-level backstop for the one-bet-per-round
// invariant.
type BetStore interface {
	Create(ctx context.Context, bet *model.Bet) error
	Exists(ctx context.Context, userID int64, roundID uuid.UUID) (bool, error)
	ForRound(ctx context.Context, roundID uuid.UUID) ([]*model.Bet, error)
	SetPayout(ctx context.Context, id uuid.UUID, payout int64) error
}

// LedgerStore records balance-affecting transactions for auditability.
type LedgerStore interface {
	Record(ctx context.Context, entry *model.LedgerEntry) error
	ForUser(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error)
}

// ItemStore manages the shop catalog and user inventories.
type ItemStore interface {
	List(ctx context.Context) ([]*model.Item, error)
	ByID(ctx context.Context, id int64) (*model.Item, error)
	// Grant adds one unit of the item to the user's inventory and returns
	// the new quantity.
	Grant(ctx context.Context, userID, itemID int64) (int, error)
}
