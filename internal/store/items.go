package store

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	trmpgx "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reelroom/reelroom/internal/model"
)

const (
	itemsTable     = "items"
	userItemsTable = "user_items"
	colCode        = "code"
	colName        = "name"
	colItemDesc    = "description"
	colPrice       = "price"
)

// Items is the Postgres-backed ItemStore.
type Items struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewItems creates the shop repository on top of the shared pool.
func NewItems(db *pgxpool.Pool) *Items {
	return &Items{db: db, getter: trmpgx.DefaultCtxGetter}
}

func (r *Items) List(ctx context.Context) ([]*model.Item, error) {
	query := psql.Select(colID, colCode, colName, colItemDesc, colPrice).
		From(itemsTable).
		OrderBy(colPrice + " ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.getter.DefaultTrOrDB(ctx, r.db).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*model.Item
	for rows.Next() {
		var item model.Item
		if err := rows.Scan(&item.ID, &item.Code, &item.Name, &item.Description, &item.Price); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *Items) ByID(ctx context.Context, id int64) (*model.Item, error) {
	query := psql.Select(colID, colCode, colName, colItemDesc, colPrice).
		From(itemsTable).
		Where(sq.Eq{colID: id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var item model.Item
	err = r.getter.DefaultTrOrDB(ctx, r.db).QueryRow(ctx, sqlStr, args...).
		Scan(&item.ID, &item.Code, &item.Name, &item.Description, &item.Price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select item: %w", err)
	}
	return &item, nil
}

func (r *Items) Grant(ctx context.Context, userID, itemID int64) (int, error) {
	// Upsert keeps one row per (user, item) with a running quantity.
	sqlStr := `INSERT INTO user_items (user_id, item_id, quantity)
		VALUES ($1, $2, 1)
		ON CONFLICT (user_id, item_id)
		DO UPDATE SET quantity = user_items.quantity + 1
		RETURNING quantity`

	var quantity int
	if err := r.getter.DefaultTrOrDB(ctx, r.db).QueryRow(ctx, sqlStr, userID, itemID).Scan(&quantity); err != nil {
		return 0, fmt.Errorf("grant item: %w", err)
	}
	return quantity, nil
}
