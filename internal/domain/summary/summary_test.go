package summary

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/domain/patient"
	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/internal/platform/middleware"
)

// =========== Mocks ===========

type mockFacility struct {
	ref        FacilityRef
	externalID uuid.UUID
	districtID *int64
	stateID    *int64
	members    map[int64]bool
}

type mockRepo struct {
	facilities []*mockFacility
	admissions map[int64][]Admission
	snapshots  []*Snapshot
	nextID     int64

	inserts, updates int
	// failFacility makes LatestAdmissions fail for that facility id.
	failFacility int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{admissions: make(map[int64][]Admission)}
}

func (m *mockRepo) facility(id int64) *mockFacility {
	for _, f := range m.facilities {
		if f.ref.ID == id {
			return f
		}
	}
	return nil
}

func (m *mockRepo) Facilities(context.Context) ([]FacilityRef, error) {
	out := make([]FacilityRef, 0, len(m.facilities))
	for _, f := range m.facilities {
		out = append(out, f.ref)
	}
	return out, nil
}

func (m *mockRepo) LatestAdmissions(_ context.Context, facilityID int64) ([]Admission, error) {
	if facilityID == m.failFacility {
		return nil, errors.New("connection reset")
	}
	return m.admissions[facilityID], nil
}

func (m *mockRepo) SnapshotOn(_ context.Context, facilityID int64, sType string, day Day) (*Snapshot, error) {
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		s := m.snapshots[i]
		if s.FacilityID == facilityID && s.SType == sType && day.Contains(s.CreatedDate) {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Insert(_ context.Context, s *Snapshot) error {
	m.nextID++
	s.ID, s.ExternalID = m.nextID, uuid.New()
	cp := *s
	m.snapshots = append(m.snapshots, &cp)
	m.inserts++
	return nil
}

func (m *mockRepo) Update(_ context.Context, s *Snapshot) error {
	for i, existing := range m.snapshots {
		if existing.ID == s.ID {
			cp := *s
			m.snapshots[i] = &cp
			m.updates++
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) visible(scope facility.Scope, facilityID int64) *mockFacility {
	f := m.facility(facilityID)
	if f == nil || !scope.Contains(f.districtID, f.stateID, f.members[scope.MemberID]) {
		return nil
	}
	return f
}

func (m *mockRepo) List(_ context.Context, scope facility.Scope, sType string, lf ListFilter, limit, offset int) ([]*Snapshot, int, error) {
	var out []*Snapshot
	for _, s := range m.snapshots {
		f := m.visible(scope, s.FacilityID)
		if f == nil || s.SType != sType {
			continue
		}
		if lf.Facility != uuid.Nil && f.externalID != lf.Facility {
			continue
		}
		if !lf.From.IsZero() && s.CreatedDate.Before(lf.From) {
			continue
		}
		if !lf.Until.IsZero() && !s.CreatedDate.Before(lf.Until) {
			continue
		}
		cp := *s
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedDate.After(out[j].CreatedDate) })
	total := len(out)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, total, nil
}

func (m *mockRepo) Latest(ctx context.Context, scope facility.Scope, sType string, facilityExtID uuid.UUID) (*Snapshot, error) {
	items, _, _ := m.List(ctx, scope, sType, ListFilter{Facility: facilityExtID}, 1, 0)
	if len(items) == 0 {
		return nil, ErrNotFound
	}
	return items[0], nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func int64p(v int64) *int64 { return &v }

func admitted(code int, created time.Time) Admission {
	return Admission{AdmittedTo: &code, CreatedDate: created}
}

var ist = time.FixedZone("IST", 5*3600+1800)

// =========== Tally ===========

func TestTally_Categories(t *testing.T) {
	day := DayOf(time.Date(2024, 5, 10, 12, 0, 0, 0, ist), ist)
	yesterday := day.Start.Add(-time.Hour)
	admissions := []Admission{
		admitted(patient.AdmittedICU, day.Start),
		admitted(patient.AdmittedICU, yesterday),
		admitted(patient.AdmittedVentilator, day.Start.Add(3*time.Hour)),
		admitted(patient.AdmittedIsolation, yesterday),
		{Suggestion: patient.SuggestionHomeIsolation, CreatedDate: day.Start.Add(time.Minute)},
		{Suggestion: "A", CreatedDate: day.Start},
		admitted(9, day.Start),
	}

	total, today := Tally(admissions, day, false)
	if want := (Counts{ICU: 2, Ventilator: 1, Isolation: 1, HomeQuarantine: 1}); total != want {
		t.Errorf("total: got %+v want %+v", total, want)
	}
	if want := (Counts{ICU: 1, Ventilator: 1, HomeQuarantine: 1}); today != want {
		t.Errorf("today: got %+v want %+v", today, want)
	}
}

func TestTally_LegacyTodayRepeatsTotals(t *testing.T) {
	day := DayOf(time.Date(2024, 5, 10, 12, 0, 0, 0, ist), ist)
	admissions := []Admission{
		admitted(patient.AdmittedICU, day.Start.AddDate(0, 0, -3)),
		admitted(patient.AdmittedICU, day.Start.Add(time.Hour)),
	}
	total, today := Tally(admissions, day, true)
	if total.ICU != 2 || today.ICU != 2 {
		t.Fatalf("expected legacy today to equal total, got total=%+v today=%+v", total, today)
	}
	_, today = Tally(admissions, day, false)
	if today.ICU != 1 {
		t.Fatalf("expected 1 ICU admission today, got %d", today.ICU)
	}
}

func TestDayOf_UsesLocation(t *testing.T) {
	// 20:00 UTC is already the next day in IST.
	day := DayOf(time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC), ist)
	if day.Start.Day() != 11 || day.Start.Location() != ist {
		t.Fatalf("unexpected day start %v", day.Start)
	}
	if !day.Contains(day.Start) || day.Contains(day.End) {
		t.Error("day must be half open")
	}
}

func TestData_SameCountsIgnoresStamp(t *testing.T) {
	a := Data{FacilityName: "General", TotalICU: 3}.Stamped(time.Date(2024, 5, 10, 9, 59, 0, 0, ist))
	b := Data{FacilityName: "General", TotalICU: 3}
	if a.ModifiedDate != "10-05-2024 09:59" {
		t.Errorf("unexpected stamp %q", a.ModifiedDate)
	}
	if !a.SameCounts(b) {
		t.Error("expected equal counts")
	}
	b.TotalICU = 2
	if a.SameCounts(b) {
		t.Error("expected changed counts")
	}
}

// =========== Job ===========

type jobFixture struct {
	repo  *mockRepo
	clock *clock
	cache *middleware.InMemoryCacheStore
	job   *Job
}

func newJobFixture(legacy bool) *jobFixture {
	repo := newMockRepo()
	repo.facilities = []*mockFacility{
		{ref: FacilityRef{ID: 1, Name: "General", District: "Ernakulam"}, externalID: uuid.New()},
	}
	clk := &clock{t: time.Date(2024, 5, 10, 8, 59, 0, 0, ist)}
	cache := middleware.NewInMemoryCacheStore()
	return &jobFixture{
		repo:  repo,
		clock: clk,
		cache: cache,
		job: NewJob(repo, JobOptions{
			Location:          ist,
			LegacyTodayCounts: legacy,
			Cache:             cache,
			Logger:            zerolog.Nop(),
			Now:               clk.now,
		}),
	}
}

func (fx *jobFixture) run(t *testing.T) Result {
	t.Helper()
	res, err := fx.job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

func TestJob_ZeroConsultationsInsertsZeroSnapshot(t *testing.T) {
	fx := newJobFixture(false)
	res := fx.run(t)
	if res.Inserted != 1 || fx.repo.inserts != 1 {
		t.Fatalf("expected one insert, got %+v", res)
	}
	s := fx.repo.snapshots[0]
	want := Data{FacilityName: "General", District: "Ernakulam", ModifiedDate: "10-05-2024 08:59"}
	if s.Data != want {
		t.Errorf("got %+v want %+v", s.Data, want)
	}
	if s.SType != TypePatient || s.FacilityID != 1 {
		t.Errorf("unexpected snapshot %+v", s)
	}
}

func TestJob_UnchangedSecondRunDoesNotWrite(t *testing.T) {
	fx := newJobFixture(false)
	fx.repo.admissions[1] = []Admission{admitted(patient.AdmittedICU, fx.clock.t)}
	fx.run(t)
	fx.clock.t = fx.clock.t.Add(time.Hour)
	res := fx.run(t)
	if res.Unchanged != 1 || res.Written() != 0 {
		t.Fatalf("expected unchanged run, got %+v", res)
	}
	if fx.repo.inserts != 1 || fx.repo.updates != 0 {
		t.Fatalf("expected no second write, got inserts=%d updates=%d", fx.repo.inserts, fx.repo.updates)
	}
	if fx.repo.snapshots[0].Data.ModifiedDate != "10-05-2024 08:59" {
		t.Error("stamp must not move without a change")
	}
}

func TestJob_CountChangeUpdatesInPlace(t *testing.T) {
	fx := newJobFixture(false)
	earlier := fx.clock.t.Add(-48 * time.Hour)
	fx.repo.admissions[1] = []Admission{
		admitted(patient.AdmittedICU, earlier),
		admitted(patient.AdmittedICU, earlier),
		admitted(patient.AdmittedICU, earlier),
	}
	fx.run(t)
	if got := fx.repo.snapshots[0].Data.TotalICU; got != 3 {
		t.Fatalf("expected total_patients_icu=3, got %d", got)
	}

	fx.repo.admissions[1] = fx.repo.admissions[1][:2]
	fx.clock.t = fx.clock.t.Add(time.Hour)
	res := fx.run(t)
	if res.Updated != 1 {
		t.Fatalf("expected update, got %+v", res)
	}
	if len(fx.repo.snapshots) != 1 {
		t.Fatalf("expected one snapshot per day, got %d", len(fx.repo.snapshots))
	}
	s := fx.repo.snapshots[0]
	if s.Data.TotalICU != 2 || s.Data.ModifiedDate != "10-05-2024 09:59" {
		t.Errorf("unexpected data after update: %+v", s.Data)
	}
	if !s.CreatedDate.Equal(fx.clock.t) || !s.ModifiedDate.Equal(fx.clock.t) {
		t.Error("expected refreshed timestamps")
	}
}

func TestJob_NewDayStartsNewSnapshot(t *testing.T) {
	fx := newJobFixture(false)
	fx.run(t)
	fx.clock.t = fx.clock.t.Add(24 * time.Hour)
	res := fx.run(t)
	if res.Inserted != 1 || len(fx.repo.snapshots) != 2 {
		t.Fatalf("expected a second day's snapshot, got %+v and %d rows", res, len(fx.repo.snapshots))
	}
}

func TestJob_LegacyTodayCounts(t *testing.T) {
	for _, tt := range []struct {
		legacy bool
		want   int
	}{{false, 0}, {true, 1}} {
		fx := newJobFixture(tt.legacy)
		fx.repo.admissions[1] = []Admission{admitted(patient.AdmittedVentilator, fx.clock.t.AddDate(0, 0, -2))}
		fx.run(t)
		if got := fx.repo.snapshots[0].Data.TodayVentilator; got != tt.want {
			t.Errorf("legacy=%v: today_patients_ventilator=%d, want %d", tt.legacy, got, tt.want)
		}
	}
}

func TestJob_StoreErrorAbortsRun(t *testing.T) {
	fx := newJobFixture(false)
	fx.repo.facilities = append(fx.repo.facilities,
		&mockFacility{ref: FacilityRef{ID: 2, Name: "Broken"}},
		&mockFacility{ref: FacilityRef{ID: 3, Name: "Never reached"}},
	)
	fx.repo.failFacility = 2
	res, err := fx.job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "facility 2") {
		t.Fatalf("expected error naming facility 2, got %v", err)
	}
	if res.Inserted != 1 || len(fx.repo.snapshots) != 1 || fx.repo.snapshots[0].FacilityID != 1 {
		t.Fatalf("expected only the first facility written, got %+v", res)
	}
}

type busyLocker struct{}

func (busyLocker) TryLock(context.Context, string, time.Duration) (func(context.Context) error, bool, error) {
	return nil, false, nil
}

func TestJob_SkipsWhenLockHeld(t *testing.T) {
	repo := newMockRepo()
	repo.facilities = []*mockFacility{{ref: FacilityRef{ID: 1}}}
	job := NewJob(repo, JobOptions{Locker: busyLocker{}, Logger: zerolog.Nop()})
	res, err := job.Run(context.Background())
	if err != nil || !res.Skipped {
		t.Fatalf("expected skipped run, got %+v, %v", res, err)
	}
	if repo.inserts != 0 {
		t.Fatal("a skipped run must not write")
	}
}

func TestLocalLocker(t *testing.T) {
	var l localLocker
	unlock, ok, _ := l.TryLock(context.Background(), lockName, time.Minute)
	if !ok {
		t.Fatal("expected first lock")
	}
	if _, ok, _ := l.TryLock(context.Background(), lockName, time.Minute); ok {
		t.Fatal("expected second lock to fail while held")
	}
	_ = unlock(context.Background())
	if _, ok, _ := l.TryLock(context.Background(), lockName, time.Minute); !ok {
		t.Fatal("expected lock after release")
	}
}

func TestJob_ClearsCacheAfterWrite(t *testing.T) {
	fx := newJobFixture(false)
	ctx := context.Background()
	key := middleware.CacheKey(CacheNamespace, 7, "/api/v1/facility_summary/patient")
	_ = fx.cache.Set(ctx, key, []byte(`{}`), time.Minute)

	fx.run(t)
	if _, ok, _ := fx.cache.Get(ctx, key); ok {
		t.Fatal("expected cached summary to be cleared after a write")
	}

	_ = fx.cache.Set(ctx, key, []byte(`{}`), time.Minute)
	fx.run(t)
	if _, ok, _ := fx.cache.Get(ctx, key); !ok {
		t.Fatal("an unchanged run must keep the cache")
	}
}

// =========== Handler ===========

type apiFixture struct {
	repo      *mockRepo
	h         *Handler
	e         *echo.Echo
	north     *mockFacility // district 1, state 1
	south     *mockFacility // district 2, state 1
	elsewhere *mockFacility // district 3, state 2
}

func newAPIFixture() *apiFixture {
	repo := newMockRepo()
	north := &mockFacility{ref: FacilityRef{ID: 1, Name: "North"}, externalID: uuid.New(),
		districtID: int64p(1), stateID: int64p(1), members: map[int64]bool{50: true}}
	south := &mockFacility{ref: FacilityRef{ID: 2, Name: "South"}, externalID: uuid.New(),
		districtID: int64p(2), stateID: int64p(1)}
	elsewhere := &mockFacility{ref: FacilityRef{ID: 3, Name: "Elsewhere"}, externalID: uuid.New(),
		districtID: int64p(3), stateID: int64p(2)}
	repo.facilities = []*mockFacility{north, south, elsewhere}

	base := time.Date(2024, 5, 10, 9, 0, 0, 0, ist)
	for day := 0; day < 2; day++ {
		for _, f := range repo.facilities {
			_ = repo.Insert(context.Background(), &Snapshot{
				FacilityID:  f.ref.ID,
				SType:       TypePatient,
				Data:        Data{FacilityName: f.ref.Name, TotalICU: day},
				CreatedDate: base.AddDate(0, 0, day).Add(time.Duration(f.ref.ID) * time.Minute),
			})
		}
	}
	return &apiFixture{repo: repo, h: NewHandler(repo, ist), e: echo.New(), north: north, south: south, elsewhere: elsewhere}
}

func (fx *apiFixture) request(target string, p *auth.Principal, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	c := fx.e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	return c, rec
}

type listBody struct {
	Count   int              `json:"count"`
	Results []map[string]any `json:"results"`
}

func (fx *apiFixture) list(t *testing.T, target string, p *auth.Principal) listBody {
	t.Helper()
	c, rec := fx.request(target, p)
	if err := fx.h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var body listBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body
}

func names(body listBody) map[string]int {
	out := make(map[string]int)
	for _, r := range body.Results {
		data := r["data"].(map[string]any)
		out[data["facility_name"].(string)]++
	}
	return out
}

func TestList_Visibility(t *testing.T) {
	fx := newAPIFixture()
	tests := []struct {
		name string
		p    *auth.Principal
		want []string
	}{
		{"superuser", &auth.Principal{ID: 1, IsSuperuser: true}, []string{"North", "South", "Elsewhere"}},
		{"state lab admin", &auth.Principal{ID: 2, UserType: auth.UserTypeStateLabAdmin, StateID: int64p(1), DistrictID: int64p(1)}, []string{"North", "South"}},
		{"state admin reaches the whole state", &auth.Principal{ID: 5, UserType: auth.UserTypeStateAdmin, StateID: int64p(1), DistrictID: int64p(2)}, []string{"North", "South"}},
		{"district admin", &auth.Principal{ID: 3, UserType: auth.UserTypeDistrictAdmin, DistrictID: int64p(2), StateID: int64p(1)}, []string{"South"}},
		{"district lab admin sees memberships only", &auth.Principal{ID: 4, UserType: auth.UserTypeDistrictLabAdmin, DistrictID: int64p(2)}, nil},
		{"member staff", &auth.Principal{ID: 50, UserType: auth.UserTypeStaff}, []string{"North"}},
		{"non member", &auth.Principal{ID: 51, UserType: auth.UserTypeDoctor}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := names(fx.list(t, "/", tt.p))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v want %v", got, tt.want)
			}
			for _, n := range tt.want {
				if got[n] != 2 {
					t.Errorf("expected both snapshots of %s, got %v", n, got)
				}
			}
		})
	}
}

func TestList_OrderAndShape(t *testing.T) {
	fx := newAPIFixture()
	body := fx.list(t, "/?limit=2", &auth.Principal{ID: 1, IsSuperuser: true})
	if body.Count != 6 || len(body.Results) != 2 {
		t.Fatalf("expected count 6 with 2 results, got %d/%d", body.Count, len(body.Results))
	}
	first := body.Results[0]
	if first["data"].(map[string]any)["facility_name"] != "Elsewhere" {
		t.Errorf("expected newest snapshot first, got %v", first["data"])
	}
	for _, hidden := range []string{"s_type", "facility", "facility_id"} {
		if _, ok := first[hidden]; ok {
			t.Errorf("%s must not be serialized", hidden)
		}
	}
	for _, shown := range []string{"id", "data", "created_date", "modified_date"} {
		if _, ok := first[shown]; !ok {
			t.Errorf("expected %s in response", shown)
		}
	}
}

func TestList_Filters(t *testing.T) {
	fx := newAPIFixture()
	su := &auth.Principal{ID: 1, IsSuperuser: true}

	body := fx.list(t, "/?facility="+fx.south.externalID.String(), su)
	if got := names(body); body.Count != 2 || got["South"] != 2 {
		t.Errorf("facility filter: %v", got)
	}
	body = fx.list(t, "/?start_date=2024-05-11", su)
	if body.Count != 3 {
		t.Errorf("start_date filter: expected 3, got %d", body.Count)
	}
	body = fx.list(t, "/?end_date=2024-05-10", su)
	if body.Count != 3 {
		t.Errorf("end_date filter: expected 3, got %d", body.Count)
	}

	for _, q := range []string{"facility=nope", "start_date=10-05-2024", "start_date=2024-05-11&end_date=2024-05-10"} {
		c, _ := fx.request("/?"+q, su)
		var he *echo.HTTPError
		if err := fx.h.List(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestGet_Latest(t *testing.T) {
	fx := newAPIFixture()
	c, rec := fx.request("/", &auth.Principal{ID: 50, UserType: auth.UserTypeStaff},
		"facility_external_id", fx.north.externalID.String())
	if err := fx.h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var s Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &s); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Data.FacilityName != "North" || s.Data.TotalICU != 1 {
		t.Errorf("expected the latest North snapshot, got %+v", s.Data)
	}
}

func TestGet_NotVisibleOrMissing(t *testing.T) {
	fx := newAPIFixture()
	districtAdmin := &auth.Principal{ID: 3, UserType: auth.UserTypeDistrictAdmin, DistrictID: int64p(2)}
	for _, id := range []string{fx.north.externalID.String(), uuid.New().String(), "bad"} {
		c, _ := fx.request("/", districtAdmin, "facility_external_id", id)
		var he *echo.HTTPError
		if err := fx.h.Get(c); !errors.As(err, &he) || he.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404, got %v", id, err)
		}
	}
}
