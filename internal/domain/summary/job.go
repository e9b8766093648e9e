package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/carehq/care/internal/platform/telemetry"
)

// CacheNamespace prefixes cached summary responses.
const CacheNamespace = "summary"

const lockName = "patient-summary"

// Locker hands out the run lock. The Redis locker satisfies it.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (unlock func(context.Context) error, ok bool, err error)
}

// CacheInvalidator drops cached responses by key prefix.
type CacheInvalidator interface {
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// localLocker is the in-process run lock used when no Redis is configured.
type localLocker struct{ mu sync.Mutex }

func (l *localLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) error { l.mu.Unlock(); return nil }, true, nil
}

type JobOptions struct {
	Location *time.Location
	// LegacyTodayCounts reports all-time counts in the today_* fields.
	LegacyTodayCounts bool
	Locker            Locker
	LockTTL           time.Duration
	Cache             CacheInvalidator
	Logger            zerolog.Logger
	Now               func() time.Time
}

// Job maintains one PatientSummary snapshot per facility per day.
type Job struct {
	repo   Repository
	opts   JobOptions
	logger zerolog.Logger
}

func NewJob(repo Repository, opts JobOptions) *Job {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Locker == nil {
		opts.Locker = &localLocker{}
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 55 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Job{repo: repo, opts: opts, logger: opts.Logger.With().Str("job", "patient_summary").Logger()}
}

// Result reports what a run did.
type Result struct {
	Facilities int
	Inserted   int
	Updated    int
	Unchanged  int
	// Skipped is set when another run held the lock.
	Skipped bool
}

func (r Result) Written() int { return r.Inserted + r.Updated }

// Run summarises every facility in turn. The first store error aborts the
// run; facilities already written stay written.
func (j *Job) Run(ctx context.Context) (Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "summary.patient")
	defer span.End()

	var res Result
	unlock, ok, err := j.opts.Locker.TryLock(ctx, lockName, j.opts.LockTTL)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("patient summary: %w", err)
	}
	if !ok {
		res.Skipped = true
		span.SetAttributes(attribute.Bool("summary.skipped", true))
		j.logger.Warn().Msg("patient summary already running, skipped")
		return res, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			j.logger.Error().Err(err).Msg("release summary lock")
		}
	}()

	res, err = j.summarise(ctx)
	span.SetAttributes(
		attribute.Int("summary.facilities", res.Facilities),
		attribute.Int("summary.written", res.Written()),
	)
	if res.Written() > 0 {
		j.invalidate(ctx)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	j.logger.Info().
		Int("facilities", res.Facilities).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Msg("patient summary complete")
	return res, nil
}

func (j *Job) summarise(ctx context.Context) (Result, error) {
	var res Result
	facilities, err := j.repo.Facilities(ctx)
	if err != nil {
		return res, fmt.Errorf("patient summary: %w", err)
	}
	for _, f := range facilities {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		written, inserted, err := j.facility(ctx, f)
		if err != nil {
			return res, fmt.Errorf("patient summary: facility %d: %w", f.ID, err)
		}
		res.Facilities++
		switch {
		case inserted:
			res.Inserted++
		case written:
			res.Updated++
		default:
			res.Unchanged++
		}
	}
	return res, nil
}

// facility brings one facility's snapshot for today up to date.
func (j *Job) facility(ctx context.Context, f FacilityRef) (written, inserted bool, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "summary.facility")
	defer span.End()
	span.SetAttributes(attribute.Int64("facility.id", f.ID))

	now := j.opts.Now()
	today := DayOf(now, j.opts.Location)

	admissions, err := j.repo.LatestAdmissions(ctx, f.ID)
	if err != nil {
		return false, false, err
	}
	total, todays := Tally(admissions, today, j.opts.LegacyTodayCounts)
	fresh := NewData(f, total, todays)

	existing, err := j.repo.SnapshotOn(ctx, f.ID, TypePatient, today)
	switch {
	case errors.Is(err, ErrNotFound):
		s := &Snapshot{
			FacilityID:   f.ID,
			SType:        TypePatient,
			Data:         fresh.Stamped(now.In(j.opts.Location)),
			CreatedDate:  now,
			ModifiedDate: now,
		}
		if err := j.repo.Insert(ctx, s); err != nil {
			return false, false, err
		}
		j.logger.Debug().Int64("facility_id", f.ID).Int("icu", total.ICU).Msg("summary inserted")
		return true, true, nil
	case err != nil:
		return false, false, err
	}

	if existing.Data.SameCounts(fresh) {
		return false, false, nil
	}
	existing.Data = fresh.Stamped(now.In(j.opts.Location))
	existing.CreatedDate = now
	existing.ModifiedDate = now
	if err := j.repo.Update(ctx, existing); err != nil {
		return false, false, err
	}
	j.logger.Debug().Int64("facility_id", f.ID).Int("icu", total.ICU).Msg("summary updated")
	return true, false, nil
}

func (j *Job) invalidate(ctx context.Context) {
	if j.opts.Cache == nil {
		return
	}
	n, err := j.opts.Cache.DeletePrefix(context.WithoutCancel(ctx), CacheNamespace+":")
	if err != nil {
		j.logger.Error().Err(err).Msg("clear summary cache")
		return
	}
	j.logger.Debug().Int("keys", n).Msg("summary cache cleared")
}
