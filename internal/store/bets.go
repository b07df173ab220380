package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelroom/reelroom/internal/model"
)

const (
	betsTable       = "bets"
	colUserID       = "user_id"
	colRoundID      = "round_id"
	colAmount       = "amount"
	colPayout       = "payout"
	colBetCreatedAt = "created_at"
)

// Bets is the Postgres-backed BetStore.
type Bets struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewBets creates the bet repository on top of the shared pool.
func NewBets(db *pgxpool.Pool) *Bets {
	return &Bets{db: db, getter: trmpgx.DefaultCtxGetter}
}

func (r *Bets) Create(ctx context.Context, bet *model.Bet) error {
	query := psql.Insert(betsTable).
		Columns(colID, colUserID, colRoundID, colAmount).
		Values(bet.ID, bet.UserID, bet.RoundID, bet.Amount)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.getter.DefaultTrOrDB(ctx, r.db).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

func (r *Bets) Exists(ctx context.Context, userID int64, roundID uuid.UUID) (bool, error) {
	query := psql.Select("1").
		From(betsTable).
		Where(sq.Eq{colUserID: userID, colRoundID: roundID}).
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, err
	}

	rows, err := r.getter.DefaultTrOrDB(ctx, r.db).Query(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("check bet: %w", err)
	}
	defer rows.Close()

	return rows.Next(), rows.Err()
}

func (r *Bets) ForRound(ctx context.Context, roundID uuid.UUID) ([]*model.Bet, error) {
	query := psql.Select(colID, colUserID, colRoundID, colAmount, colPayout, colBetCreatedAt).
		From(betsTable).
		Where(sq.Eq{colRoundID: roundID}).
		OrderBy(colBetCreatedAt + " ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.getter.DefaultTrOrDB(ctx, r.db).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select bets: %w", err)
	}
	defer rows.Close()

	var bets []*model.Bet
	for rows.Next() {
		var bet model.Bet
		if err := rows.Scan(&bet.ID, &bet.UserID, &bet.RoundID, &bet.Amount, &bet.Payout, &bet.CreatedAt); err != nil {
			return nil, err
		}
		bets = append(bets, &bet)
	}
	return bets, rows.Err()
}

func (r *Bets) SetPayout(ctx context.Context, id uuid.UUID, payout int64) error {
	query := psql.Update(betsTable).
		Set(colPayout, payout).
		Where(sq.Eq{colID: id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.getter.DefaultTrOrDB(ctx, r.db).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("set payout: %w", err)
	}
	return nil
}
