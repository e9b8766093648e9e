package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
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

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// =========== Patient ===========

const patientCols = `p.id, p.external_id, p.name, p.gender, p.year_of_birth, p.phone_number,
	p.facility_id, f.external_id, p.is_active, p.created_by, p.created_date, p.modified_date`

const patientFrom = ` FROM patient p JOIN facility f ON f.id = p.facility_id`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &p.Gender, &p.YearOfBirth, &p.PhoneNumber,
		&p.FacilityID, &p.Facility, &p.IsActive, &p.CreatedBy, &p.CreatedDate, &p.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &p, err
}

func (r *patientRepoPG) CreatePatient(ctx context.Context, p *Patient) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (name, gender, year_of_birth, phone_number, facility_id, is_active, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING id, external_id, created_date, modified_date`,
		p.Name, p.Gender, p.YearOfBirth, p.PhoneNumber, p.FacilityID, p.IsActive, p.CreatedBy,
	).Scan(&p.ID, &p.ExternalID, &p.CreatedDate, &p.ModifiedDate)
}

func (r *patientRepoPG) GetPatient(ctx context.Context, externalID uuid.UUID) (*Patient, error) {
	return scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+patientFrom+` WHERE p.external_id = $1`, externalID))
}

func (r *patientRepoPG) ListPatients(ctx context.Context, facilityID int64, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient WHERE facility_id = $1`, facilityID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count patients: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+patientFrom+`
		WHERE p.facility_id = $1 ORDER BY p.created_date DESC LIMIT $2 OFFSET $3`, facilityID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

func (r *patientRepoPG) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE patient SET is_active = $2, modified_date = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =========== Encounter ===========

const encounterCols = `e.id, e.external_id, e.patient_id, p.external_id, e.facility_id, f.external_id,
	e.status, e.encounter_class, e.created_by, e.created_date, e.modified_date`

const encounterFrom = ` FROM encounter e
	JOIN patient p ON p.id = e.patient_id
	JOIN facility f ON f.id = e.facility_id`

func scanEncounter(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(&e.ID, &e.ExternalID, &e.PatientID, &e.Patient, &e.FacilityID, &e.Facility,
		&e.Status, &e.EncounterClass, &e.CreatedBy, &e.CreatedDate, &e.ModifiedDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrEncounterNotFound
	}
	return &e, err
}

func (r *patientRepoPG) CreateEncounter(ctx context.Context, e *Encounter) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter (patient_id, facility_id, status, encounter_class, created_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, external_id, created_date, modified_date`,
		e.PatientID, e.FacilityID, e.Status, e.EncounterClass, e.CreatedBy,
	).Scan(&e.ID, &e.ExternalID, &e.CreatedDate, &e.ModifiedDate)
}

func (r *patientRepoPG) GetEncounter(ctx context.Context, externalID uuid.UUID) (*Encounter, error) {
	return scanEncounter(r.conn(ctx).QueryRow(ctx,
		`SELECT `+encounterCols+encounterFrom+` WHERE e.external_id = $1`, externalID))
}

func (r *patientRepoPG) UpdateEncounterStatus(ctx context.Context, e *Encounter) error {
	return r.conn(ctx).QueryRow(ctx, `
		UPDATE encounter SET status = $2, modified_date = NOW() WHERE id = $1
		RETURNING modified_date`, e.ID, e.Status,
	).Scan(&e.ModifiedDate)
}

// =========== Consultation ===========

const consultationCols = `c.id, c.external_id, c.patient_id, p.external_id, c.facility_id, f.external_id,
	c.admitted_to, c.suggestion, c.created_by, c.created_date, c.modified_date`

func (r *patientRepoPG) CreateConsultation(ctx context.Context, c *Consultation) error {
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_consultation (patient_id, facility_id, admitted_to, suggestion, created_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id, external_id, created_date, modified_date`,
		c.PatientID, c.FacilityID, c.AdmittedTo, c.Suggestion, c.CreatedBy,
	).Scan(&c.ID, &c.ExternalID, &c.CreatedDate, &c.ModifiedDate)
}

func (r *patientRepoPG) ListConsultations(ctx context.Context, patientID int64, limit, offset int) ([]*Consultation, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_consultation WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count consultations: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+consultationCols+`
		FROM patient_consultation c
		JOIN patient p ON p.id = c.patient_id
		JOIN facility f ON f.id = c.facility_id
		WHERE c.patient_id = $1 ORDER BY c.created_date DESC LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		var c Consultation
		if err := rows.Scan(&c.ID, &c.ExternalID, &c.PatientID, &c.Patient, &c.FacilityID, &c.Facility,
			&c.AdmittedTo, &c.Suggestion, &c.CreatedBy, &c.CreatedDate, &c.ModifiedDate); err != nil {
			return nil, 0, err
		}
		items = append(items, &c)
	}
	return items, total, rows.Err()
}
