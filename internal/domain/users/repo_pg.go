package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehq/care/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type userRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const userCols = `id, external_id, username, first_name, last_name, email, phone_number,
	user_type, district_id, state_id, is_superuser, is_active, created_date, modified_date`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.PhoneNumber,
		&u.UserType, &u.DistrictID, &u.StateID, &u.IsSuperuser, &u.IsActive, &u.CreatedDate, &u.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &u, err
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (username, first_name, last_name, email, phone_number,
			user_type, district_id, state_id, is_superuser, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING id, external_id, created_date, modified_date`,
		u.Username, u.FirstName, u.LastName, u.Email, u.PhoneNumber,
		u.UserType, u.DistrictID, u.StateID, u.IsSuperuser, u.IsActive,
	).Scan(&u.ID, &u.ExternalID, &u.CreatedDate, &u.ModifiedDate)
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(r.conn(ctx).QueryRow(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username))
}

func (r *userRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE users SET is_active = $2, modified_date = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set user %d active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
