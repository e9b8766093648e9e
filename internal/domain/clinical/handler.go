package clinical

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carehq/care/internal/domain/patient"
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
	g := api.Group("/patient/:patient_external_id/allergy_intolerance")
	g.GET("", h.ListAllergies)
	g.POST("", h.CreateAllergy)
	g.POST("/upsert", h.UpsertAllergies)
	g.GET("/:external_id", h.GetAllergy)
	g.PUT("/:external_id", h.UpdateAllergy)
	g.DELETE("/:external_id", h.DeleteAllergy)
}

func errorResponse(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{verr.Field: verr.Message})
	case errors.Is(err, ErrNotFound), errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Not found.")
	default:
		return err
	}
}

// patient resolves :patient_external_id.
func (h *Handler) patient(c echo.Context) (*patient.Patient, error) {
	id, err := uuid.Parse(c.Param("patient_external_id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	pat, err := h.svc.Patient(c.Request().Context(), id)
	if err != nil {
		return nil, errorResponse(err)
	}
	return pat, nil
}

func allergyID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("external_id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, "Not found.")
	}
	return id, nil
}

func actor(ctx context.Context) int64 {
	if p := auth.PrincipalFromContext(ctx); p != nil {
		return p.ID
	}
	return 0
}

// create authorizes a write on the patient, then stores the allergy.
func (h *Handler) create(ctx context.Context, pat *patient.Patient, req *AllergyRequest) (*AllergyIntolerance, error) {
	if err := h.authz.Authorize(ctx, auth.CanWritePatientObj, pat); err != nil {
		return nil, err
	}
	if req.Encounter == uuid.Nil {
		return nil, &ValidationError{Field: "encounter", Message: "this field is required"}
	}
	enc, err := h.svc.Encounter(ctx, pat, req.Encounter)
	if err != nil {
		return nil, err
	}
	return h.svc.Create(ctx, enc, req, actor(ctx))
}

// update authorizes against the encounter named in the body, which must be
// open, then applies the change.
func (h *Handler) update(ctx context.Context, pat *patient.Patient, id uuid.UUID, req *AllergyRequest) (*AllergyIntolerance, error) {
	existing, err := h.svc.Get(ctx, pat, id)
	if err != nil {
		return nil, err
	}
	if req.Encounter == uuid.Nil {
		return nil, &ValidationError{Field: "encounter", Message: "this field is required"}
	}
	enc, err := h.svc.Encounter(ctx, pat, req.Encounter)
	if err != nil {
		return nil, err
	}
	if err := h.authz.Authorize(ctx, auth.CanUpdateEncounterObj, enc); err != nil {
		return nil, err
	}
	return h.svc.Update(ctx, existing, req, actor(ctx))
}

func (h *Handler) ListAllergies(c echo.Context) error {
	pat, err := h.patient(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanViewClinicalData, pat); err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(ctx, pat, c.QueryParam("clinical_status"), pg.Limit, pg.Offset)
	if err != nil {
		return errorResponse(err)
	}
	if items == nil {
		items = []*AllergyIntolerance{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(c, items, total, pg))
}

func (h *Handler) GetAllergy(c echo.Context) error {
	pat, err := h.patient(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanViewClinicalData, pat); err != nil {
		return err
	}
	id, err := allergyID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(ctx, pat, id)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CreateAllergy(c echo.Context) error {
	pat, err := h.patient(c)
	if err != nil {
		return err
	}
	var req AllergyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.create(c.Request().Context(), pat, &req)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) UpdateAllergy(c echo.Context) error {
	pat, err := h.patient(c)
	if err != nil {
		return err
	}
	id, err := allergyID(c)
	if err != nil {
		return err
	}
	var req AllergyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.update(c.Request().Context(), pat, id, &req)
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAllergy(c echo.Context) error {
	pat, err := h.patient(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.authz.Authorize(ctx, auth.CanWritePatientObj, pat); err != nil {
		return err
	}
	id, err := allergyID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.Get(ctx, pat, id)
	if err != nil {
		return errorResponse(err)
	}
	if err := h.svc.Delete(ctx, a, actor(ctx)); err != nil {
		return errorResponse(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// UpsertAllergies creates datapoints without an id and updates those with
// one. Either every datapoint is written or none is.
func (h *Handler) UpsertAllergies(c echo.Context) error {
	pat, err := h.patient(c)
	if err != nil {
		return err
	}
	var req UpsertRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if len(req.Datapoints) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"datapoints": "at least one datapoint is required"})
	}

	results := make([]*AllergyIntolerance, 0, len(req.Datapoints))
	err = h.svc.Atomically(c.Request().Context(), func(ctx context.Context) error {
		for i := range req.Datapoints {
			dp := &req.Datapoints[i]
			var (
				a   *AllergyIntolerance
				err error
			)
			if dp.ID != nil {
				a, err = h.update(ctx, pat, *dp.ID, dp)
			} else {
				a, err = h.create(ctx, pat, dp)
			}
			if err != nil {
				var verr *ValidationError
				if errors.As(err, &verr) {
					return &ValidationError{Field: fmt.Sprintf("datapoints[%d].%s", i, verr.Field), Message: verr.Message}
				}
				return err
			}
			results = append(results, a)
		}
		return nil
	})
	if err != nil {
		return errorResponse(err)
	}
	return c.JSON(http.StatusOK, results)
}
