package facility

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type facilityRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &facilityRepoPG{pool: pool} }

func (r *facilityRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const facilityCols = `f.id, f.external_id, f.name, f.facility_type, f.phone_number, f.address,
	f.district_id, f.state_id, f.is_public, f.created_by, f.created_date, f.modified_date`

func scanFacility(row pgx.Row) (*Facility, error) {
	var f Facility
	err := row.Scan(&f.ID, &f.ExternalID, &f.Name, &f.FacilityType, &f.PhoneNumber, &f.Address,
		&f.DistrictID, &f.StateID, &f.IsPublic, &f.CreatedBy, &f.CreatedDate, &f.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &f, err
}

func (r *facilityRepoPG) Create(ctx context.Context, f *Facility) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO facility (name, facility_type, phone_number, address, district_id, state_id, is_public, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, external_id, created_date, modified_date`,
		f.Name, f.FacilityType, f.PhoneNumber, f.Address, f.DistrictID, f.StateID, f.IsPublic, f.CreatedBy,
	).Scan(&f.ID, &f.ExternalID, &f.CreatedDate, &f.ModifiedDate)
}

func (r *facilityRepoPG) Update(ctx context.Context, f *Facility) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE facility SET name=$2, facility_type=$3, phone_number=$4, address=$5,
			district_id=$6, state_id=$7, is_public=$8, modified_date=NOW()
		WHERE id = $1
		RETURNING modified_date`,
		f.ID, f.Name, f.FacilityType, f.PhoneNumber, f.Address, f.DistrictID, f.StateID, f.IsPublic,
	).Scan(&f.ModifiedDate)
}

func (r *facilityRepoPG) GetByID(ctx context.Context, id int64) (*Facility, error) {
	return scanFacility(r.conn(ctx).QueryRow(ctx,
		`SELECT `+facilityCols+` FROM facility f WHERE f.id = $1 AND NOT f.deleted`, id))
}

func (r *facilityRepoPG) GetVisible(ctx context.Context, scope Scope, externalID uuid.UUID) (*Facility, error) {
	where, args := scope.Where("f", 2)
	args = append([]interface{}{externalID}, args...)
	return scanFacility(r.conn(ctx).QueryRow(ctx,
		`SELECT `+facilityCols+` FROM facility f WHERE f.external_id = $1 AND NOT f.deleted AND `+where, args...))
}

func (r *facilityRepoPG) List(ctx context.Context, scope Scope, filter ListFilter, limit, offset int) ([]*Facility, int, error) {
	where, args := scope.Where("f", 1)
	clauses := []string{"NOT f.deleted", where}
	if filter.Name != "" {
		args = append(args, filter.Name)
		clauses = append(clauses, fmt.Sprintf("f.name ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if filter.ExcludeUser != "" {
		args = append(args, filter.ExcludeUser)
		clauses = append(clauses, fmt.Sprintf(`NOT EXISTS (
			SELECT 1 FROM facility_user xu JOIN users u ON u.id = xu.user_id
			WHERE xu.facility_id = f.id AND u.username = $%d)`, len(args)))
	}
	cond := strings.Join(clauses, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM facility f WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count facilities: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM facility f WHERE %s ORDER BY f.created_date DESC, f.id DESC LIMIT $%d OFFSET $%d`,
		facilityCols, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()
	var items []*Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	return items, total, rows.Err()
}

func (r *facilityRepoPG) AddMember(ctx context.Context, facilityID int64, username, role string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO facility_user (facility_id, user_id, role)
		SELECT $1, u.id, $3 FROM users u WHERE u.username = $2
		ON CONFLICT (facility_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		facilityID, username, role)
	if err != nil {
		return fmt.Errorf("add member %q: %w", username, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *facilityRepoPG) AddMemberByID(ctx context.Context, facilityID, userID int64, role string) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO facility_user (facility_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (facility_id, user_id) DO UPDATE SET role = EXCLUDED.role`,
		facilityID, userID, role)
	return err
}

func (r *facilityRepoPG) Members(ctx context.Context, facilityID int64, username string, limit, offset int) ([]*Member, int, error) {
	cond := `fu.facility_id = $1 AND u.is_active`
	args := []interface{}{facilityID}
	if username != "" {
		args = append(args, username)
		cond += ` AND u.username = $2`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM facility_user fu JOIN users u ON u.id = fu.user_id WHERE `+cond, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count members: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`
		SELECT u.id, u.external_id, u.username, u.first_name, u.last_name, u.user_type, fu.role
		FROM facility_user fu JOIN users u ON u.id = fu.user_id
		WHERE %s ORDER BY u.username LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var items []*Member
	for rows.Next() {
		var m Member
		var userType auth.UserType
		if err := rows.Scan(&m.UserID, &m.ExternalID, &m.Username, &m.FirstName, &m.LastName, &userType, &m.Role); err != nil {
			return nil, 0, err
		}
		m.UserType = userType.String()
		items = append(items, &m)
	}
	return items, total, rows.Err()
}

func (r *facilityRepoPG) MemberRole(ctx context.Context, userID, facilityID int64) (string, error) {
	var role string
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT role FROM facility_user WHERE user_id = $1 AND facility_id = $2`, userID, facilityID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return role, err
}

func (r *facilityRepoPG) FacilityArea(ctx context.Context, facilityID int64) (*int64, *int64, error) {
	var district, state *int64
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT district_id, state_id FROM facility WHERE id = $1`, facilityID,
	).Scan(&district, &state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrNotFound
	}
	return district, state, err
}
