package users

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/platform/auth"
)

type mockRepo struct {
	byName map[string]*User
	nextID int64
}

func newMockRepo() *mockRepo {
	return &mockRepo{byName: make(map[string]*User)}
}

func (m *mockRepo) Create(_ context.Context, u *User) error {
	m.nextID++
	u.ID = m.nextID
	m.byName[u.Username] = u
	return nil
}

func (m *mockRepo) GetByUsername(_ context.Context, username string) (*User, error) {
	u, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (m *mockRepo) SetActive(_ context.Context, id int64, active bool) error {
	for _, u := range m.byName {
		if u.ID == id {
			u.IsActive = active
			return nil
		}
	}
	return ErrNotFound
}

func TestLoader_ActiveUser(t *testing.T) {
	repo := newMockRepo()
	district := int64(4)
	repo.Create(context.Background(), &User{
		Username: "dadmin", UserType: auth.UserTypeDistrictAdmin, DistrictID: &district, IsActive: true,
	})

	p, err := NewLoader(repo).LoadPrincipal(context.Background(), "dadmin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.UserType != auth.UserTypeDistrictAdmin || !p.InDistrict(&district) {
		t.Errorf("unexpected principal: %+v", p)
	}
}

func TestLoader_InactiveOrMissing(t *testing.T) {
	repo := newMockRepo()
	repo.Create(context.Background(), &User{Username: "gone", IsActive: false})
	l := NewLoader(repo)

	for _, name := range []string{"gone", "nobody"} {
		if _, err := l.LoadPrincipal(context.Background(), name); !errors.Is(err, auth.ErrUnknownUser) {
			t.Errorf("%s: expected ErrUnknownUser, got %v", name, err)
		}
	}
}

func TestHandler_SetActive_RequiresSuperuser(t *testing.T) {
	repo := newMockRepo()
	repo.Create(context.Background(), &User{Username: "nurse", IsActive: true})

	e := echo.New()
	var denied error
	e.HTTPErrorHandler = func(err error, c echo.Context) { denied = err }
	admin := &auth.Principal{ID: 9, UserType: auth.UserTypeStateAdmin}
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(auth.WithPrincipal(c.Request().Context(), admin)))
			return next(c)
		}
	})
	NewHandler(repo).RegisterRoutes(api)

	req := httptest.NewRequest(http.MethodPatch, "/api/users/nurse/active", strings.NewReader(`{"is_active":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	e.ServeHTTP(httptest.NewRecorder(), req)

	if !errors.Is(denied, auth.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", denied)
	}
	if !repo.byName["nurse"].IsActive {
		t.Error("user must stay active")
	}
}

func TestHandler_SetActive_Deactivates(t *testing.T) {
	repo := newMockRepo()
	repo.Create(context.Background(), &User{Username: "nurse", IsActive: true})
	h := NewHandler(repo)

	e := echo.New()
	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"is_active":false}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{ID: 1, IsSuperuser: true}))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("username")
	c.SetParamValues("nurse")

	if err := h.SetActive(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if repo.byName["nurse"].IsActive {
		t.Error("expected user to be deactivated")
	}
}

func TestHandler_CurrentUser(t *testing.T) {
	repo := newMockRepo()
	repo.Create(context.Background(), &User{Username: "doc", UserType: auth.UserTypeDoctor, IsActive: true})
	h := NewHandler(repo)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), &auth.Principal{ID: 1, Username: "doc"}))
	rec := httptest.NewRecorder()

	if err := h.CurrentUser(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"username":"doc"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"id":1`) {
		t.Error("internal id must not be exposed")
	}
}
