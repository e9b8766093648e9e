package facility

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/pkg/pagination"
)

type Handler struct {
	svc   *Service
	authz *auth.Controller
}

func NewHandler(svc *Service, authz *auth.Controller) *Handler {
	return &Handler{svc: svc, authz: authz}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/facility")
	g.GET("", h.List)
	g.POST("", h.Create)
	g.GET("/:external_id", h.Get)
	g.PUT("/:external_id", h.Update)
	g.GET("/:external_id/get_users", h.GetUsers)
	g.POST("/:external_id/users", h.AddUser)
}

type facilityRequest struct {
	Name         string `json:"name"`
	FacilityType int    `json:"facility_type"`
	PhoneNumber  string `json:"phone_number"`
	Address      string `json:"address"`
	DistrictID   *int64 `json:"district"`
	StateID      *int64 `json:"state"`
	IsPublic     bool   `json:"is_public"`
}

func (r *facilityRequest) apply(f *Facility) {
	f.Name = r.Name
	f.FacilityType = r.FacilityType
	f.PhoneNumber = r.PhoneNumber
	f.Address = r.Address
	f.DistrictID = r.DistrictID
	f.StateID = r.StateID
	f.IsPublic = r.IsPublic
}

// errorResponse maps service errors onto HTTP errors.
func errorResponse(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{verr.Field: verr.Message})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found.")
	case errors.Is(err, ErrUserNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"username": "user not found"})
	default:
		return err
	}
}

// load resolves :external_id against the caller's visible facilities.
func (h *Handler) load(c echo.Context) (*Facility, error) {
	id, err := uuid.Parse(c.Param("external_id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	ctx := c.Request().Context()
	f, err := h.svc.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return nil, errorResponse(err)
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	filter := ListFilter{Name: c.QueryParam("name"), ExcludeUser: c.QueryParam("exclude_user")}
	items, total, err := h.svc.List(ctx, auth.PrincipalFromContext(ctx), filter, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Facility{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	f, err := h.load(c)
	if err != nil {
		return err
	}
	if err := h.authz.Authorize(c.Request().Context(), auth.CanReadFacilityObj, f); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) Create(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanCreateFacility, nil); err != nil {
		return err
	}
	var req facilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var f Facility
	req.apply(&f)
	if err := h.svc.Create(ctx, &f, auth.PrincipalFromContext(ctx)); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusCreated, &f)
}

func (h *Handler) Update(c echo.Context) error {
	f, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanUpdateFacilityObj, f); err != nil {
		return err
	}
	var req facilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.apply(f)
	if err := h.svc.Update(ctx, f); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) GetUsers(c echo.Context) error {
	f, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanListFacilityUsers, f); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Members(ctx, f, c.QueryParam("username"), pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Member{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}

type memberRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) AddUser(c echo.Context) error {
	f, err := h.load(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanUpdateFacilityObj, f); err != nil {
		return err
	}
	var req memberRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.AddMember(ctx, f, req.Username, req.Role); err != nil {
		return errorResponse(err)
	}
	return c.NoContent(http.StatusCreated)
}
