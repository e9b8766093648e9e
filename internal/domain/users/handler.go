package users

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/platform/auth"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/users")
	g.GET("/getcurrentuser", h.CurrentUser)
	g.PATCH("/:username/active", h.SetActive, auth.RequireSuperuser())
}

func (h *Handler) CurrentUser(c echo.Context) error {
	p := auth.PrincipalFromContext(c.Request().Context())
	if p == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	u, err := h.repo.GetByUsername(c.Request().Context(), p.Username)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

// SetActive deactivates or reactivates an account. Deactivated users keep
// their records but drop out of facility user listings and cannot sign in.
func (h *Handler) SetActive(c echo.Context) error {
	var req activeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsActive == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "is_active is required")
	}

	ctx := c.Request().Context()
	u, err := h.repo.GetByUsername(ctx, c.Param("username"))
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	if err != nil {
		return err
	}
	if err := h.repo.SetActive(ctx, u.ID, *req.IsActive); err != nil {
		return err
	}
	u.IsActive = *req.IsActive
	return c.JSON(http.StatusOK, u)
}
