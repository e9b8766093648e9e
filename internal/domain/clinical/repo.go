package clinical

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("allergy intolerance not found")

// AllergyRepository defines the persistence interface for allergies. Soft
// deleted rows are invisible to every read.
type AllergyRepository interface {
	Create(ctx context.Context, a *AllergyIntolerance) error
	Get(ctx context.Context, patientID int64, externalID uuid.UUID) (*AllergyIntolerance, error)
	// List orders by most recently modified first.
	List(ctx context.Context, patientID int64, clinicalStatus string, limit, offset int) ([]*AllergyIntolerance, int, error)
	Update(ctx context.Context, a *AllergyIntolerance) error
	Delete(ctx context.Context, id, deletedBy int64) error
}
