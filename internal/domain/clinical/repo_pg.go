package clinical

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carehq/care/internal/domain/users"
	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type allergyRepoPG struct{ pool *pgxpool.Pool }

func NewAllergyRepoPG(pool *pgxpool.Pool) AllergyRepository { return &allergyRepoPG{pool: pool} }

func (r *allergyRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const allergyCols = `a.id, a.external_id, a.patient_id, a.encounter_id, e.external_id,
	a.clinical_status, a.verification_status, a.category, a.criticality,
	a.code, a.onset, a.last_occurrence, a.recorded_date, a.note,
	a.created_by, cu.external_id, cu.username, cu.first_name, cu.last_name, cu.user_type,
	a.updated_by, uu.external_id, uu.username, uu.first_name, uu.last_name, uu.user_type,
	a.created_date, a.modified_date`

const allergyFrom = ` FROM allergy_intolerance a
	JOIN encounter e ON e.id = a.encounter_id
	LEFT JOIN users cu ON cu.id = a.created_by
	LEFT JOIN users uu ON uu.id = a.updated_by`

// userCols receives the nullable columns of a LEFT JOINed user.
type userCols struct {
	id                    *uuid.UUID
	username, first, last *string
	userType              *int16
}

func (u *userCols) summary() *users.Summary {
	if u.id == nil {
		return nil
	}
	s := &users.Summary{ID: *u.id}
	if u.username != nil {
		s.Username = *u.username
	}
	if u.first != nil {
		s.FirstName = *u.first
	}
	if u.last != nil {
		s.LastName = *u.last
	}
	if u.userType != nil {
		s.UserType = auth.UserType(*u.userType).String()
	}
	return s
}

func scanAllergy(row pgx.Row) (*AllergyIntolerance, error) {
	var a AllergyIntolerance
	var cu, uu userCols
	err := row.Scan(&a.ID, &a.ExternalID, &a.PatientID, &a.EncounterID, &a.Encounter,
		&a.ClinicalStatus, &a.VerificationStatus, &a.Category, &a.Criticality,
		&a.Code, &a.Onset, &a.LastOccurrence, &a.RecordedDate, &a.Note,
		&a.CreatedByID, &cu.id, &cu.username, &cu.first, &cu.last, &cu.userType,
		&a.UpdatedByID, &uu.id, &uu.username, &uu.first, &uu.last, &uu.userType,
		&a.CreatedDate, &a.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.CreatedBy = cu.summary()
	a.UpdatedBy = uu.summary()
	return &a, nil
}

func (r *allergyRepoPG) Create(ctx context.Context, a *AllergyIntolerance) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO allergy_intolerance (patient_id, encounter_id,
			clinical_status, verification_status, category, criticality,
			code, onset, last_occurrence, recorded_date, note, created_by, updated_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING id, external_id, created_date, modified_date`,
		a.PatientID, a.EncounterID,
		a.ClinicalStatus, a.VerificationStatus, a.Category, a.Criticality,
		a.Code, a.Onset, a.LastOccurrence, a.RecordedDate, a.Note, a.CreatedByID, a.UpdatedByID,
	).Scan(&a.ID, &a.ExternalID, &a.CreatedDate, &a.ModifiedDate)
}

func (r *allergyRepoPG) Get(ctx context.Context, patientID int64, externalID uuid.UUID) (*AllergyIntolerance, error) {
	return scanAllergy(r.conn(ctx).QueryRow(ctx, `SELECT `+allergyCols+allergyFrom+`
		WHERE a.patient_id = $1 AND a.external_id = $2 AND NOT a.deleted`, patientID, externalID))
}

func (r *allergyRepoPG) List(ctx context.Context, patientID int64, clinicalStatus string, limit, offset int) ([]*AllergyIntolerance, int, error) {
	cond := `a.patient_id = $1 AND NOT a.deleted`
	args := []interface{}{patientID}
	if clinicalStatus != "" {
		args = append(args, clinicalStatus)
		cond += ` AND a.clinical_status = $2`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM allergy_intolerance a WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count allergies: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(`SELECT %s%s WHERE %s
		ORDER BY a.modified_date DESC, a.id DESC LIMIT $%d OFFSET $%d`,
		allergyCols, allergyFrom, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list allergies: %w", err)
	}
	defer rows.Close()
	var items []*AllergyIntolerance
	for rows.Next() {
		a, err := scanAllergy(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *allergyRepoPG) Update(ctx context.Context, a *AllergyIntolerance) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE allergy_intolerance SET clinical_status=$2, verification_status=$3, category=$4,
			criticality=$5, code=$6, onset=$7, last_occurrence=$8, recorded_date=$9, note=$10,
			updated_by=$11, modified_date=NOW()
		WHERE id = $1 AND NOT deleted
		RETURNING modified_date`,
		a.ID, a.ClinicalStatus, a.VerificationStatus, a.Category,
		a.Criticality, a.Code, a.Onset, a.LastOccurrence, a.RecordedDate, a.Note, a.UpdatedByID,
	).Scan(&a.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *allergyRepoPG) Delete(ctx context.Context, id, deletedBy int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE allergy_intolerance SET deleted = TRUE, updated_by = $2, modified_date = NOW()
		WHERE id = $1 AND NOT deleted`, id, deletedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
