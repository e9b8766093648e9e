package summary

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/pkg/pagination"
)

const dateLayout = "2006-01-02"

// Handler serves the read-only patient summary API.
type Handler struct {
	repo Repository
	loc  *time.Location
}

// NewHandler interprets start_date and end_date filters as calendar days
// in loc.
func NewHandler(repo Repository, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{repo: repo, loc: loc}
}

// RegisterRoutes mounts the summary routes; mw typically carries the
// response cache.
func (h *Handler) RegisterRoutes(api *echo.Group, mw ...echo.MiddlewareFunc) {
	g := api.Group("/facility_summary/patient", mw...)
	g.GET("", h.List)
	g.GET("/:facility_external_id", h.Get)
}

// scope limits summaries by the caller's tier. District reach starts at
// DistrictAdmin here, above the facility listing threshold.
func scope(c echo.Context) facility.Scope {
	return facility.ScopeFor(auth.PrincipalFromContext(c.Request().Context()), auth.UserTypeDistrictAdmin)
}

func (h *Handler) filter(c echo.Context) (ListFilter, error) {
	var f ListFilter
	if v := c.QueryParam("facility"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, map[string]string{"facility": "must be a valid UUID"})
		}
		f.Facility = id
	}
	if v := c.QueryParam("start_date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, map[string]string{"start_date": "expected YYYY-MM-DD"})
		}
		f.From = d
	}
	if v := c.QueryParam("end_date"); v != "" {
		d, err := time.ParseInLocation(dateLayout, v, h.loc)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, map[string]string{"end_date": "expected YYYY-MM-DD"})
		}
		f.Until = d.AddDate(0, 0, 1)
	}
	if !f.From.IsZero() && !f.Until.IsZero() && !f.From.Before(f.Until) {
		return f, echo.NewHTTPError(http.StatusBadRequest, map[string]string{"end_date": "must not be before start_date"})
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	f, err := h.filter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.repo.List(c.Request().Context(), scope(c), TypePatient, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Snapshot{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}

// Get returns the latest snapshot of one facility.
func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("facility_external_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	s, err := h.repo.Latest(c.Request().Context(), scope(c), TypePatient, id)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s)
}
