package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Facilities(ctx context.Context) ([]FacilityRef, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT f.id, f.name, COALESCE(d.name, '')
		FROM facility f LEFT JOIN district d ON d.id = f.district_id
		WHERE NOT f.deleted
		ORDER BY f.id`)
	if err != nil {
		return nil, fmt.Errorf("list facilities: %w", err)
	}
	defer rows.Close()
	var out []FacilityRef
	for rows.Next() {
		var f FacilityRef
		if err := rows.Scan(&f.ID, &f.Name, &f.District); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *repoPG) LatestAdmissions(ctx context.Context, facilityID int64) ([]Admission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT latest.admitted_to, latest.suggestion, latest.created_date
		FROM (
			SELECT DISTINCT ON (c.patient_id) c.patient_id, c.admitted_to, c.suggestion, c.created_date
			FROM patient_consultation c
			WHERE c.facility_id = $1
			ORDER BY c.patient_id, c.created_date DESC, c.id DESC
		) latest
		JOIN patient p ON p.id = latest.patient_id
		WHERE p.is_active`, facilityID)
	if err != nil {
		return nil, fmt.Errorf("latest admissions: %w", err)
	}
	defer rows.Close()
	var out []Admission
	for rows.Next() {
		var a Admission
		if err := rows.Scan(&a.AdmittedTo, &a.Suggestion, &a.CreatedDate); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const snapshotCols = `s.id, s.external_id, s.facility_id, s.s_type, s.data, s.created_date, s.modified_date`

func scanSnapshot(row pgx.Row) (*Snapshot, error) {
	var s Snapshot
	err := row.Scan(&s.ID, &s.ExternalID, &s.FacilityID, &s.SType, &s.Data, &s.CreatedDate, &s.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) SnapshotOn(ctx context.Context, facilityID int64, sType string, day Day) (*Snapshot, error) {
	return scanSnapshot(r.conn(ctx).QueryRow(ctx, `SELECT `+snapshotCols+`
		FROM facility_related_summary s
		WHERE s.facility_id = $1 AND s.s_type = $2 AND s.created_date >= $3 AND s.created_date < $4
		ORDER BY s.created_date DESC, s.id DESC
		LIMIT 1`, facilityID, sType, day.Start, day.End))
}

func (r *repoPG) Insert(ctx context.Context, s *Snapshot) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO facility_related_summary (facility_id, s_type, data, created_date, modified_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, external_id`,
		s.FacilityID, s.SType, s.Data, s.CreatedDate, s.ModifiedDate,
	).Scan(&s.ID, &s.ExternalID)
}

func (r *repoPG) Update(ctx context.Context, s *Snapshot) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE facility_related_summary SET data = $2, created_date = $3, modified_date = $4
		WHERE id = $1`, s.ID, s.Data, s.CreatedDate, s.ModifiedDate)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, scope facility.Scope, sType string, f ListFilter, limit, offset int) ([]*Snapshot, int, error) {
	args := []interface{}{sType}
	conds := []string{"s.s_type = $1", "NOT f.deleted"}
	where, scopeArgs := scope.Where("f", len(args)+1)
	conds = append(conds, where)
	args = append(args, scopeArgs...)
	if f.Facility != uuid.Nil {
		args = append(args, f.Facility)
		conds = append(conds, fmt.Sprintf("f.external_id = $%d", len(args)))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		conds = append(conds, fmt.Sprintf("s.created_date >= $%d", len(args)))
	}
	if !f.Until.IsZero() {
		args = append(args, f.Until)
		conds = append(conds, fmt.Sprintf("s.created_date < $%d", len(args)))
	}
	from := ` FROM facility_related_summary s JOIN facility f ON f.id = s.facility_id WHERE ` +
		strings.Join(conds, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count summaries: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s%s
		ORDER BY s.created_date DESC, s.id DESC LIMIT $%d OFFSET $%d`,
		snapshotCols, from, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list summaries: %w", err)
	}
	defer rows.Close()
	var items []*Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Latest(ctx context.Context, scope facility.Scope, sType string, facilityExtID uuid.UUID) (*Snapshot, error) {
	where, scopeArgs := scope.Where("f", 3)
	args := append([]interface{}{sType, facilityExtID}, scopeArgs...)
	return scanSnapshot(r.conn(ctx).QueryRow(ctx, `SELECT `+snapshotCols+`
		FROM facility_related_summary s JOIN facility f ON f.id = s.facility_id
		WHERE s.s_type = $1 AND f.external_id = $2 AND NOT f.deleted AND `+where+`
		ORDER BY s.created_date DESC, s.id DESC
		LIMIT 1`, args...))
}
