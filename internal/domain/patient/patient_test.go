package patient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/platform/auth"
)

type mockRepo struct {
	patients      map[uuid.UUID]*Patient
	encounters    map[uuid.UUID]*Encounter
	consultations []*Consultation
	nextID        int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient), encounters: make(map[uuid.UUID]*Encounter)}
}

func (m *mockRepo) id() int64 { m.nextID++; return m.nextID }

func (m *mockRepo) CreatePatient(_ context.Context, p *Patient) error {
	p.ID, p.ExternalID = m.id(), uuid.New()
	m.patients[p.ExternalID] = p
	return nil
}

func (m *mockRepo) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	if p, ok := m.patients[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (m *mockRepo) ListPatients(_ context.Context, facilityID int64, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	for _, p := range m.patients {
		if p.FacilityID == facilityID {
			out = append(out, p)
		}
	}
	return out, len(out), nil
}

func (m *mockRepo) SetActive(_ context.Context, id int64, active bool) error {
	for _, p := range m.patients {
		if p.ID == id {
			p.IsActive = active
			return nil
		}
	}
	return ErrNotFound
}

func (m *mockRepo) CreateEncounter(_ context.Context, e *Encounter) error {
	e.ID, e.ExternalID = m.id(), uuid.New()
	m.encounters[e.ExternalID] = e
	return nil
}

func (m *mockRepo) GetEncounter(_ context.Context, id uuid.UUID) (*Encounter, error) {
	if e, ok := m.encounters[id]; ok {
		return e, nil
	}
	return nil, ErrEncounterNotFound
}

func (m *mockRepo) UpdateEncounterStatus(_ context.Context, e *Encounter) error { return nil }

func (m *mockRepo) CreateConsultation(_ context.Context, c *Consultation) error {
	c.ID, c.ExternalID = m.id(), uuid.New()
	m.consultations = append(m.consultations, c)
	return nil
}

func (m *mockRepo) ListConsultations(_ context.Context, patientID int64, limit, offset int) ([]*Consultation, int, error) {
	var out []*Consultation
	for _, c := range m.consultations {
		if c.PatientID == patientID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

// directory grants roles per (user, facility) and places every facility in
// district 1.
type directory struct {
	roles map[[2]int64]string
}

func (d *directory) MemberRole(_ context.Context, userID, facilityID int64) (string, error) {
	return d.roles[[2]int64{userID, facilityID}], nil
}

func (d *directory) FacilityArea(context.Context, int64) (*int64, *int64, error) {
	one := int64(1)
	return &one, &one, nil
}

type facilities struct {
	byID map[uuid.UUID]*facility.Facility
}

func (f *facilities) Get(_ context.Context, _ *auth.Principal, id uuid.UUID) (*facility.Facility, error) {
	if fac, ok := f.byID[id]; ok {
		return fac, nil
	}
	return nil, facility.ErrNotFound
}

type fixture struct {
	repo      *mockRepo
	h         *Handler
	e         *echo.Echo
	fac       *facility.Facility
	doctor    *auth.Principal
	volunteer *auth.Principal
}

func newFixture() *fixture {
	fac := &facility.Facility{ID: 10, ExternalID: uuid.New(), Name: "General"}
	dir := &directory{roles: map[[2]int64]string{
		{1, 10}: auth.RoleDoctor,
		{2, 10}: auth.RoleVolunteer,
	}}
	repo := newMockRepo()
	return &fixture{
		repo:      repo,
		h:         NewHandler(NewService(repo), &facilities{byID: map[uuid.UUID]*facility.Facility{fac.ExternalID: fac}}, auth.NewController(dir)),
		e:         echo.New(),
		fac:       fac,
		doctor:    &auth.Principal{ID: 1, UserType: auth.UserTypeDoctor},
		volunteer: &auth.Principal{ID: 2, UserType: auth.UserTypeVolunteer},
	}
}

func (fx *fixture) request(method, body string, p *auth.Principal, params ...string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	c := fx.e.NewContext(req, rec)
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	return c, rec
}

func (fx *fixture) seedPatient(t *testing.T) *Patient {
	t.Helper()
	p := &Patient{Name: "Asha", Gender: 2}
	if err := fx.h.svc.CreatePatient(context.Background(), p, fx.fac, 1); err != nil {
		t.Fatalf("seed patient: %v", err)
	}
	return p
}

func TestCreatePatient(t *testing.T) {
	fx := newFixture()
	body := `{"name":"Ravi","gender":1,"year_of_birth":1980,"facility":"` + fx.fac.ExternalID.String() + `"}`
	c, rec := fx.request(http.MethodPost, body, fx.doctor)
	if err := fx.h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"facility":"`+fx.fac.ExternalID.String()) {
		t.Errorf("expected facility external id in body: %s", rec.Body.String())
	}
}

func TestCreatePatient_VolunteerDenied(t *testing.T) {
	fx := newFixture()
	body := `{"name":"Ravi","gender":1,"facility":"` + fx.fac.ExternalID.String() + `"}`
	c, _ := fx.request(http.MethodPost, body, fx.volunteer)
	if err := fx.h.CreatePatient(c); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestCreatePatient_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", `{"gender":1}`},
		{"bad gender", `{"name":"x","gender":7}`},
		{"future birth year", `{"name":"x","gender":1,"year_of_birth":3000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture()
			body := strings.TrimSuffix(tt.body, "}") + `,"facility":"` + fx.fac.ExternalID.String() + `"}`
			c, _ := fx.request(http.MethodPost, body, fx.doctor)
			err := fx.h.CreatePatient(c)
			var he *echo.HTTPError
			if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %v", err)
			}
		})
	}
}

func TestGetPatient_NotFound(t *testing.T) {
	fx := newFixture()
	c, _ := fx.request(http.MethodGet, "", fx.doctor, "external_id", uuid.NewString())
	err := fx.h.GetPatient(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestSetActive_Discharge(t *testing.T) {
	fx := newFixture()
	p := fx.seedPatient(t)
	c, rec := fx.request(http.MethodPatch, `{"is_active":false}`, fx.doctor, "external_id", p.ExternalID.String())
	if err := fx.h.SetActive(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK || p.IsActive {
		t.Fatalf("expected patient to be inactive, code=%d", rec.Code)
	}
}

func TestEncounter_CreateDefaultsAndClose(t *testing.T) {
	fx := newFixture()
	p := fx.seedPatient(t)
	c, rec := fx.request(http.MethodPost, `{}`, fx.doctor, "external_id", p.ExternalID.String())
	if err := fx.h.CreateEncounter(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var enc *Encounter
	for _, e := range fx.repo.encounters {
		enc = e
	}
	if enc.Status != StatusInProgress || enc.FacilityID != fx.fac.ID || enc.Closed() {
		t.Fatalf("unexpected encounter: %+v", enc)
	}

	c, _ = fx.request(http.MethodPatch, `{"status":"completed"}`, fx.doctor, "external_id", enc.ExternalID.String())
	if err := fx.h.UpdateEncounter(c); err != nil {
		t.Fatalf("close encounter: %v", err)
	}
	if !enc.Closed() {
		t.Fatal("expected encounter to be closed")
	}

	c, _ = fx.request(http.MethodPatch, `{"status":"in_progress"}`, fx.doctor, "external_id", enc.ExternalID.String())
	if err := fx.h.UpdateEncounter(c); !errors.Is(err, auth.ErrPermissionDenied) {
		t.Fatalf("expected closed encounter to reject updates, got %v", err)
	}
}

func TestCreateConsultation(t *testing.T) {
	fx := newFixture()
	p := fx.seedPatient(t)
	body := `{"patient":"` + p.ExternalID.String() + `","admitted_to":2,"suggestion":"A"}`
	c, rec := fx.request(http.MethodPost, body, fx.doctor)
	if err := fx.h.CreateConsultation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if got := fx.repo.consultations[0]; got.FacilityID != fx.fac.ID || *got.AdmittedTo != AdmittedICU {
		t.Errorf("unexpected consultation: %+v", got)
	}
}

func TestCreateConsultation_BadSuggestion(t *testing.T) {
	fx := newFixture()
	p := fx.seedPatient(t)
	body := `{"patient":"` + p.ExternalID.String() + `","suggestion":"ZZ"}`
	c, _ := fx.request(http.MethodPost, body, fx.doctor)
	err := fx.h.CreateConsultation(c)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestEncounterClosed(t *testing.T) {
	for status, want := range map[string]bool{
		StatusInProgress: false, StatusPlanned: false, StatusDischarged: false,
		StatusCompleted: true, StatusCancelled: true, StatusEnteredInError: true,
	} {
		if got := (&Encounter{Status: status}).Closed(); got != want {
			t.Errorf("%s: Closed() = %v, want %v", status, got, want)
		}
	}
}
