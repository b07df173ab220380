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
	usersTable       = "users"
	colID            = "id"
	colUsername      = "username"
	colPasswordHash  = "password_hash"
	colRole          = "role"
	colBalance       = "balance"
	colUserCreatedAt = "created_at"
)

// Users is the Postgres-backed UserStore.
type Users struct {
	db     *pgxpool.Pool
	getter *trmpgx.CtxGetter
}

// NewUsers creates the user repository on top of the shared pool.
func NewUsers(db *pgxpool.Pool) *Users {
	return &Users{db: db, getter: trmpgx.DefaultCtxGetter}
}

func (r *Users) Create(ctx context.Context, user *model.User) (int64, error) {
	query := psql.Insert(usersTable).
		Columns(colUsername, colPasswordHash, colRole, colBalance).
		Values(user.Username, user.PasswordHash, user.Role, user.Balance).
		Suffix("RETURNING " + colID)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := r.getter.DefaultTrOrDB(ctx, r.db).QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (r *Users) ByID(ctx context.Context, id int64) (*model.User, error) {
	return r.selectOne(ctx, sq.Eq{colID: id}, "")
}

func (r *Users) ByIDForUpdate(ctx context.Context, id int64) (*model.User, error) {
	return r.selectOne(ctx, sq.Eq{colID: id}, "FOR UPDATE")
}

func (r *Users) ByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.selectOne(ctx, sq.Eq{colUsername: username}, "")
}

func (r *Users) selectOne(ctx context.Context, pred any, suffix string) (*model.User, error) {
	query := psql.Select(colID, colUsername, colPasswordHash, colRole, colBalance, colUserCreatedAt).
		From(usersTable).
		Where(pred)
	if suffix != "" {
		query = query.Suffix(suffix)
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var user model.User
	err = r.getter.DefaultTrOrDB(ctx, r.db).QueryRow(ctx, sqlStr, args...).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user: %w", err)
	}
	return &user, nil
}

func (r *Users) UpdateBalance(ctx context.Context, id int64, balance int64) error {
	query := psql.Update(usersTable).
		Set(colBalance, balance).
		Where(sq.Eq{colID: id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.getter.DefaultTrOrDB(ctx, r.db).Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return nil
}

func (r *Users) List(ctx context.Context) ([]*model.User, error) {
	query := psql.Select(colID, colUsername, colPasswordHash, colRole, colBalance, colUserCreatedAt).
		From(usersTable).
		OrderBy(colUsername + " ASC")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.getter.DefaultTrOrDB(ctx, r.db).Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		var user model.User
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Balance, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}
