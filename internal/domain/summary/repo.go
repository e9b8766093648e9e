package summary

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/carehq/care/internal/domain/facility"
)

var ErrNotFound = errors.New("summary not found")

// ListFilter narrows a snapshot listing. Zero values do not filter.
type ListFilter struct {
	Facility uuid.UUID
	From     time.Time
	Until    time.Time
}

// Repository defines persistence for summary snapshots and the reads the
// job aggregates from.
type Repository interface {
	// Facilities returns every facility that is not deleted, ordered by id.
	Facilities(ctx context.Context) ([]FacilityRef, error)
	// LatestAdmissions returns the newest consultation of each active
	// patient of the facility.
	LatestAdmissions(ctx context.Context, facilityID int64) ([]Admission, error)
	// SnapshotOn returns the facility's snapshot created within day, or
	// ErrNotFound.
	SnapshotOn(ctx context.Context, facilityID int64, sType string, day Day) (*Snapshot, error)
	Insert(ctx context.Context, s *Snapshot) error
	// Update rewrites data and both timestamps of an existing snapshot.
	Update(ctx context.Context, s *Snapshot) error

	// List returns snapshots of facilities within scope, newest first.
	List(ctx context.Context, scope facility.Scope, sType string, f ListFilter, limit, offset int) ([]*Snapshot, int, error)
	// Latest returns the newest snapshot of a facility within scope.
	Latest(ctx context.Context, scope facility.Scope, sType string, facilityExtID uuid.UUID) (*Snapshot, error)
}
