package patient

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/domain/facility"
	"github.com/carehq/care/internal/platform/auth"
	"github.com/carehq/care/pkg/pagination"
)

// Facilities resolves facility external ids the caller can see.
type Facilities interface {
	Get(ctx context.Context, p *auth.Principal, externalID uuid.UUID) (*facility.Facility, error)
}

type Handler struct {
	svc        *Service
	facilities Facilities
	authz      *auth.Controller
}

func NewHandler(svc *Service, facilities Facilities, authz *auth.Controller) *Handler {
	return &Handler{svc: svc, facilities: facilities, authz: authz}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/patient", h.ListPatients)
	api.POST("/patient", h.CreatePatient)
	api.GET("/patient/:external_id", h.GetPatient)
	api.PATCH("/patient/:external_id/active", h.SetActive)
	api.POST("/patient/:external_id/encounter", h.CreateEncounter)
	api.GET("/patient/:external_id/consultation", h.ListConsultations)
	api.GET("/encounter/:external_id", h.GetEncounter)
	api.PATCH("/encounter/:external_id", h.UpdateEncounter)
	api.POST("/consultation", h.CreateConsultation)
}

func errorResponse(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{verr.Field: verr.Message})
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrEncounterNotFound), errors.Is(err, facility.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found.")
	default:
		return err
	}
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	return id, nil
}

// loadPatient resolves :external_id and checks capability on it.
func (h *Handler) loadPatient(c echo.Context, capability auth.Capability) (*Patient, error) {
	id, err := parseID(c.Param("external_id"))
	if err != nil {
		return nil, err
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatient(ctx, id)
	if err != nil {
		return nil, errorResponse(err)
	}
	if err := h.authz.Authorize(ctx, capability, p); err != nil {
		return nil, err
	}
	return p, nil
}

type patientRequest struct {
	Name        string    `json:"name"`
	Gender      int       `json:"gender"`
	YearOfBirth *int      `json:"year_of_birth"`
	PhoneNumber string    `json:"phone_number"`
	Facility    uuid.UUID `json:"facility"`
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req patientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	principal := auth.PrincipalFromContext(ctx)
	f, err := h.facilities.Get(ctx, principal, req.Facility)
	if errors.Is(err, facility.ErrNotFound) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"facility": "facility not found"})
	}
	if err != nil {
		return err
	}
	if err := h.authz.Authorize(ctx, auth.CanWritePatientObj, f); err != nil {
		return err
	}
	p := &Patient{Name: req.Name, Gender: req.Gender, YearOfBirth: req.YearOfBirth, PhoneNumber: req.PhoneNumber}
	if err := h.svc.CreatePatient(ctx, p, f, principal.ID); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	id, err := uuid.Parse(c.QueryParam("facility"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"facility": "a facility id is required"})
	}
	ctx := c.Request().Context()
	f, err := h.facilities.Get(ctx, auth.PrincipalFromContext(ctx), id)
	if err != nil {
		return errorResponse(err)
	}
	if err := h.authz.Authorize(ctx, auth.CanViewClinicalData, f); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.loadPatient(c, auth.CanViewClinicalData)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

type activeRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *Handler) SetActive(c echo.Context) error {
	p, err := h.loadPatient(c, auth.CanWritePatientObj)
	if err != nil {
		return err
	}
	var req activeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.IsActive == nil {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"is_active": "this field is required"})
	}
	if err := h.svc.SetActive(c.Request().Context(), p, *req.IsActive); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, p)
}

type encounterRequest struct {
	Status         string `json:"status"`
	EncounterClass string `json:"encounter_class"`
}

func (h *Handler) CreateEncounter(c echo.Context) error {
	p, err := h.loadPatient(c, auth.CanWritePatientObj)
	if err != nil {
		return err
	}
	var req encounterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	e := &Encounter{Status: req.Status, EncounterClass: req.EncounterClass}
	if err := h.svc.CreateEncounter(ctx, e, p, auth.PrincipalFromContext(ctx).ID); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) loadEncounter(c echo.Context) (*Encounter, error) {
	id, err := parseID(c.Param("external_id"))
	if err != nil {
		return nil, err
	}
	e, err := h.svc.GetEncounter(c.Request().Context(), id)
	if err != nil {
		return nil, errorResponse(err)
	}
	return e, nil
}

func (h *Handler) GetEncounter(c echo.Context) error {
	e, err := h.loadEncounter(c)
	if err != nil {
		return err
	}
	if err := h.authz.Authorize(c.Request().Context(), auth.CanViewClinicalData, e); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) UpdateEncounter(c echo.Context) error {
	e, err := h.loadEncounter(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanUpdateEncounterObj, e); err != nil {
		return err
	}
	var req encounterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.UpdateEncounterStatus(ctx, e, req.Status); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, e)
}

type consultationRequest struct {
	Patient    uuid.UUID `json:"patient"`
	AdmittedTo *int      `json:"admitted_to"`
	Suggestion string    `json:"suggestion"`
}

func (h *Handler) CreateConsultation(c echo.Context) error {
	var req consultationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.GetPatient(ctx, req.Patient)
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"patient": "patient not found"})
	}
	if err != nil {
		return err
	}
	if err := h.authz.Authorize(ctx, auth.CanWritePatientObj, p); err != nil {
		return err
	}
	cons := &Consultation{AdmittedTo: req.AdmittedTo, Suggestion: req.Suggestion}
	if err := h.svc.CreateConsultation(ctx, cons, p, auth.PrincipalFromContext(ctx).ID); err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusCreated, cons)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	p, err := h.loadPatient(c, auth.CanViewClinicalData)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListConsultations(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	if items == nil {
		items = []*Consultation{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}
