package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelroom/reelroom/internal/model"
	"github.com/reelroom/reelroom/internal/slot"
)

const (
	roundsTable   = "rounds"
	colState      = "state"
	colResult     = "result"
	colStartedAt  = "started_at"
	colFinishedAt = "finished_at"
)

// Rounds is the Postgres-backed RoundStore.
type Rounds struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewRounds creates the round repository on top of the shared pool.
func NewRounds(db *pgxpool.Pool) *Rounds {
	return &Rounds{db: db, getter: trmpgx.DefaultCtxGetter}
}

func (r *Rounds) Create(ctx context.Context, startedAt time.Time) (*model.Round, error) {
	round := &model.Round{
		ID:        uuid.New(),
		State:     model.RoundBetting,
		StartedAt: startedAt,
	}

	query := psql.Insert(roundsTable).
		Columns(colID, colState, colStartedAt).
		Values(round.ID, round.State, round.StartedAt)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	if _, err := r.getter.DefaultTrOrDB(ctx, r.db).Exec(ctx, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("insert round: %w", err)
	}
	return round, nil
}

func (r *Rounds) SetState(ctx context.Context, id uuid.UUID, state model.RoundState) error {
	query := psql.Update(roundsTable).
		Set(colState, state).
		Where(sq.Eq{colID: id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.getter.DefaultTrOrDB(ctx, r.db).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update round state: %w", err)
	}
	return nil
}

func (r *Rounds) Finish(ctx context.Context, id uuid.UUID, result slot.Outcome, finishedAt time.Time) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	query := psql.Update(roundsTable).
		Set(colState, model.RoundResult).
		Set(colResult, payload).
		Set(colFinishedAt, finishedAt).
		Where(sq.Eq{colID: id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.getter.DefaultTrOrDB(ctx, r.db).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("finish round: %w", err)
	}
	return nil
}
