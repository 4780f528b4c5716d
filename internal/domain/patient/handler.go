package patient

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hhemr/hhemr/internal/platform/auth"
	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/pkg/pagination"
	"github.com/hhemr/hhemr/pkg/validation"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleQAReviewer, auth.RoleScheduler))
	readGroup.GET("/patients", h.ListPatients)
	readGroup.GET("/patients/:id", h.GetPatient)
	readGroup.GET("/patients/:id/insurance", h.ListPatientInsurance)
	readGroup.GET("/patients/:id/discharge-summaries", h.ListPatientDischarges)
	readGroup.GET("/patient-insurance", h.ListInsurance)
	readGroup.GET("/patient-insurance/:id", h.GetInsurance)
	readGroup.GET("/discharge-summaries", h.ListDischarges)
	readGroup.GET("/discharge-summaries/:id", h.GetDischarge)

	intakeGroup := api.Group("", auth.RequireRole(auth.RoleScheduler))
	intakeGroup.POST("/patients", h.CreatePatient)
	intakeGroup.PUT("/patients/:id", h.UpdatePatient)
	intakeGroup.DELETE("/patients/:id", h.DeletePatient)
	intakeGroup.POST("/patient-insurance", h.CreateInsurance)
	intakeGroup.PUT("/patient-insurance/:id", h.UpdateInsurance)
	intakeGroup.DELETE("/patient-insurance/:id", h.DeleteInsurance)

	clinicalGroup := api.Group("", auth.RequireRole(auth.RoleClinician))
	clinicalGroup.POST("/discharge-summaries", h.CreateDischarge)
	clinicalGroup.PUT("/discharge-summaries/:id", h.UpdateDischarge)
	clinicalGroup.DELETE("/discharge-summaries/:id", h.DeleteDischarge)
}

var constraintFields = map[string]string{
	"patient_provider_id_fkey":                  "providerId",
	"patient_physician_id_fkey":                 "physicianId",
	"patient_mrn_key":                           "mrn",
	"patient_insurance_patient_id_fkey":         "patientId",
	"patient_insurance_payer_id_fkey":           "payerId",
	"patient_insurance_patient_id_priority_key": "priority",
	"discharge_summary_patient_id_fkey":         "patientId",
	"discharge_summary_physician_id_fkey":       "physicianId",
}

func toHTTPError(err error, resource string) error {
	if _, ok := validation.AsErrors(err); ok {
		return err
	}
	field := constraintFields[db.ConstraintName(err)]
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, resource+" not found")
	case errors.Is(err, db.ErrDuplicate):
		if field != "" {
			return echo.NewHTTPError(http.StatusConflict, field+" is already in use")
		}
		return echo.NewHTTPError(http.StatusConflict, resource+" already exists")
	case errors.Is(err, db.ErrReference):
		if field != "" {
			return validation.Errors{field: "does not reference an existing record"}
		}
		return echo.NewHTTPError(http.StatusConflict, resource+" is still referenced")
	case errors.Is(err, db.ErrCheck):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func deleteError(err error, resource string) error {
	if errors.Is(err, db.ErrReference) {
		return echo.NewHTTPError(http.StatusConflict, resource+" is still referenced")
	}
	return toHTTPError(err, resource)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// patientParam reads the required ?patientId= filter.
func patientParam(c echo.Context) (uuid.UUID, error) {
	v := c.QueryParam("patientId")
	if v == "" {
		return uuid.Nil, validation.Errors{"patientId": "is required"}
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.Nil, validation.Errors{"patientId": "must be a valid UUID"}
	}
	return id, nil
}

func listJSON(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": data})
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "patient")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "patient")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "patient")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return deleteError(err, "patient")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListPatients filters by ?providerId=, ?status= and ?q= (name or MRN).
func (h *Handler) ListPatients(c echo.Context) error {
	f := Filter{Status: c.QueryParam("status"), Query: c.QueryParam("q")}
	if v := c.QueryParam("providerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return validation.Errors{"providerId": "must be a valid UUID"}
		}
		f.ProviderID = &id
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err, "patient")
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) ListPatientInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.listInsurance(c, id)
}

func (h *Handler) ListPatientDischarges(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	return h.listDischarges(c, id)
}

// -- Insurance Handlers --

func (h *Handler) CreateInsurance(c echo.Context) error {
	var ins Insurance
	if err := c.Bind(&ins); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreateInsurance(c.Request().Context(), &ins); err != nil {
		return toHTTPError(err, "insurance")
	}
	return c.JSON(http.StatusCreated, ins)
}

func (h *Handler) GetInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ins, err := h.svc.GetInsurance(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "insurance")
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) UpdateInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var ins Insurance
	if err := c.Bind(&ins); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ins.ID = id
	if err := h.svc.UpdateInsurance(c.Request().Context(), &ins); err != nil {
		return toHTTPError(err, "insurance")
	}
	return c.JSON(http.StatusOK, ins)
}

func (h *Handler) DeleteInsurance(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteInsurance(c.Request().Context(), id); err != nil {
		return deleteError(err, "insurance")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListInsurance(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	return h.listInsurance(c, id)
}

func (h *Handler) listInsurance(c echo.Context, patientID uuid.UUID) error {
	items, err := h.svc.ListInsurance(c.Request().Context(), patientID)
	if err != nil {
		return toHTTPError(err, "insurance")
	}
	if items == nil {
		items = []*Insurance{}
	}
	return listJSON(c, items)
}

// -- Discharge Summary Handlers --

func (h *Handler) CreateDischarge(c echo.Context) error {
	var d DischargeSummary
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.CreateDischarge(c.Request().Context(), &d); err != nil {
		return toHTTPError(err, "discharge summary")
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDischarge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDischarge(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "discharge summary")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDischarge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d DischargeSummary
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	d.ID = id
	if err := h.svc.UpdateDischarge(c.Request().Context(), &d); err != nil {
		return toHTTPError(err, "discharge summary")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDischarge(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDischarge(c.Request().Context(), id); err != nil {
		return deleteError(err, "discharge summary")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListDischarges(c echo.Context) error {
	id, err := patientParam(c)
	if err != nil {
		return err
	}
	return h.listDischarges(c, id)
}

func (h *Handler) listDischarges(c echo.Context, patientID uuid.UUID) error {
	items, err := h.svc.ListDischarges(c.Request().Context(), patientID)
	if err != nil {
		return toHTTPError(err, "discharge summary")
	}
	if items == nil {
		items = []*DischargeSummary{}
	}
	return listJSON(c, items)
}
