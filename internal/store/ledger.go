package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelroom/reelroom/internal/model"
)

const (
	ledgerTable        = "ledger"
	colType            = "type"
	colDescription     = "description"
	colActorID         = "actor_id"
	colLedgerCreatedAt = "created_at"
)

// Ledger is the Postgres-backed LedgerStore. The table is append-only.
type Ledger struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewLedger creates the ledger repository on top of the shared pool.
func NewLedger(db *pgxpool.Pool) *Ledger {
	return &Ledger{db: db, getter: trmpgx.DefaultCtxGetter}
}

func (r *Ledger) Record(ctx context.Context, entry *model.LedgerEntry) error {
	query := psql.Insert(ledgerTable).
		Columns(colType, colAmount, colDescription, colUserID, colActorID).
		Values(entry.Type, entry.Amount, entry.Description, entry.UserID, entry.ActorID).
		Suffix("RETURNING " + colID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if err := r.getter.DefaultTrOrDB(ctx, r.db).QueryRow(ctx, sqlStr, args...).Scan(&entry.ID); err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

func (r *Ledger) ForUser(ctx context.Context, userID int64, limit int) ([]*model.LedgerEntry, error) {
	query := psql.Select(colID, colType, colAmount, colDescription, colUserID, colActorID, colLedgerCreatedAt).
		From(ledgerTable).
		Where(sq.Eq{colUserID: userID}).
		OrderBy(colLedgerCreatedAt + " DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.getter.DefaultTrOrDB(ctx, r.db).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Amount, &e.Description, &e.UserID, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
