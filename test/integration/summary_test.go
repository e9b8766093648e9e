package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/domain/patient"
	"github.com/carehq/care/internal/domain/summary"
	"github.com/carehq/care/internal/platform/auth"
)

func snapshotOf(t *testing.T, ctx context.Context, repo summary.Repository, facilityID int64) *summary.Snapshot {
	t.Helper()
	s, err := repo.SnapshotOn(ctx, facilityID, summary.TypePatient, summary.DayOf(time.Now(), time.UTC))
	if err != nil {
		t.Fatalf("snapshot for facility %d: %v", facilityID, err)
	}
	return s
}

func TestPatientSummary_Lifecycle(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()

	a := createArea(t, ctx, pool)
	f := createFacility(t, ctx, pool, a)
	var icu []*patient.Patient
	for i := 0; i < 3; i++ {
		p := createPatient(t, ctx, pool, f)
		admit(t, ctx, pool, p, patient.AdmittedIsolation, "")
		admit(t, ctx, pool, p, patient.AdmittedICU, "")
		icu = append(icu, p)
	}
	home := createPatient(t, ctx, pool, f)
	admit(t, ctx, pool, home, 0, patient.SuggestionHomeIsolation)

	repo := summary.NewRepoPG(pool)
	job := summary.NewJob(repo, summary.JobOptions{Location: time.UTC, Logger: zerolog.Nop()})

	if _, err := job.Run(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first := snapshotOf(t, ctx, repo, f.ID)
	d := first.Data
	if d.TotalICU != 3 || d.TotalIsolation != 0 || d.TotalHomeQuarantine != 1 || d.TodayICU != 3 {
		t.Fatalf("unexpected counts after first run: %+v", d)
	}
	if d.FacilityName != f.Name || d.ModifiedDate == "" {
		t.Errorf("expected facility name and stamp, got %+v", d)
	}

	if _, err := job.Run(ctx); err != nil {
		t.Fatalf("second run: %v", err)
	}
	again := snapshotOf(t, ctx, repo, f.ID)
	if again.ID != first.ID || !again.ModifiedDate.Equal(first.ModifiedDate) {
		t.Fatal("an unchanged second run must not rewrite the snapshot")
	}

	if err := patient.NewRepoPG(pool).SetActive(ctx, icu[0].ID, false); err != nil {
		t.Fatalf("discharge: %v", err)
	}
	if _, err := job.Run(ctx); err != nil {
		t.Fatalf("third run: %v", err)
	}
	updated := snapshotOf(t, ctx, repo, f.ID)
	if updated.ID != first.ID {
		t.Fatal("expected the day's snapshot to be updated in place")
	}
	if updated.Data.TotalICU != 2 || !updated.ModifiedDate.After(first.ModifiedDate) {
		t.Errorf("expected 2 ICU patients and a newer modification time, got %+v", updated)
	}

	var rows int
	if err := pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM facility_related_summary WHERE facility_id = $1`, f.ID).Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("expected one snapshot row, got %d", rows)
	}
}

func TestPatientSummary_ZeroConsultations(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()

	f := createFacility(t, ctx, pool, createArea(t, ctx, pool))
	repo := summary.NewRepoPG(pool)
	if _, err := summary.NewJob(repo, summary.JobOptions{Logger: zerolog.Nop()}).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	s := snapshotOf(t, ctx, repo, f.ID)
	if !s.Data.SameCounts(summary.Data{FacilityName: f.Name, District: s.Data.District}) {
		t.Errorf("expected all-zero counts, got %+v", s.Data)
	}
}

func TestPatientSummary_Visibility(t *testing.T) {
	pool := requireDB(t)
	ctx := context.Background()

	home, away := createArea(t, ctx, pool), createArea(t, ctx, pool)
	mine := createFacility(t, ctx, pool, home)
	other := createFacility(t, ctx, pool, away)
	repo := summary.NewRepoPG(pool)
	if _, err := summary.NewJob(repo, summary.JobOptions{Logger: zerolog.Nop()}).Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	districtAdmin := createUser(t, ctx, pool, auth.UserTypeDistrictAdmin, home)
	scope := facility.ScopeFor(districtAdmin.Principal(), auth.UserTypeDistrictAdmin)
	if _, err := repo.Latest(ctx, scope, summary.TypePatient, mine.ExternalID); err != nil {
		t.Errorf("district admin should see own district: %v", err)
	}
	if _, err := repo.Latest(ctx, scope, summary.TypePatient, other.ExternalID); !errors.Is(err, summary.ErrNotFound) {
		t.Errorf("district admin must not see another district, got %v", err)
	}

	staff := createUser(t, ctx, pool, auth.UserTypeStaff, home)
	if err := facility.NewRepoPG(pool).AddMemberByID(ctx, other.ID, staff.ID, auth.RoleStaff); err != nil {
		t.Fatalf("add member: %v", err)
	}
	items, total, err := repo.List(ctx, facility.ScopeFor(staff.Principal(), auth.UserTypeDistrictAdmin),
		summary.TypePatient, summary.ListFilter{}, 50, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].FacilityID != other.ID {
		t.Errorf("staff should only see member facilities, got total=%d", total)
	}
}
