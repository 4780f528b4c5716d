package scheduling

import (
	"errors"
	"net/http"
	"time"

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
	readGroup.GET("/patient-schedules", h.List)
	readGroup.GET("/patient-schedules/:id", h.Get)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleScheduler))
	writeGroup.POST("/patient-schedules", h.Create)
	writeGroup.PUT("/patient-schedules/:id", h.Update)
	writeGroup.DELETE("/patient-schedules/:id", h.Delete)

	// Caregivers check in and out of visits themselves.
	statusGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleScheduler))
	statusGroup.PUT("/patient-schedules/:id/status", h.UpdateStatus)
}

var constraintFields = map[string]string{
	"patient_schedule_patient_id_fkey":   "patientId",
	"patient_schedule_caregiver_id_fkey": "caregiverId",
	"patient_schedule_provider_id_fkey":  "providerId",
}

func toHTTPError(err error) error {
	if _, ok := validation.AsErrors(err); ok {
		return err
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "patient schedule not found")
	case errors.Is(err, ErrOverlap), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrReference):
		if field := constraintFields[db.ConstraintName(err)]; field != "" {
			return validation.Errors{field: "does not reference an existing record"}
		}
		return echo.NewHTTPError(http.StatusConflict, "patient schedule is still referenced")
	case errors.Is(err, db.ErrCheck):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) Create(c echo.Context) error {
	var ps PatientSchedule
	if err := c.Bind(&ps); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.svc.Create(c.Request().Context(), &ps); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, ps)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ps, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ps)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var ps PatientSchedule
	if err := c.Bind(&ps); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ps.ID = id
	if err := h.svc.Update(c.Request().Context(), &ps); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ps)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, db.ErrReference) {
			return echo.NewHTTPError(http.StatusConflict, "patient schedule has an assessment")
		}
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var u StatusUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ps, err := h.svc.UpdateStatus(c.Request().Context(), id, u)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ps)
}

// List filters by ?patientId=, ?caregiverId=, ?status= and a scheduledStart
// window ?from=&to= given as RFC 3339 timestamps or YYYY-MM-DD dates.
func (h *Handler) List(c echo.Context) error {
	f := Filter{Status: c.QueryParam("status")}
	errs := validation.Errors{}
	for param, dst := range map[string]**uuid.UUID{
		"patientId":   &f.PatientID,
		"caregiverId": &f.CaregiverID,
	} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				errs.Add(param, "must be a valid UUID")
				continue
			}
			*dst = &id
		}
	}
	for param, dst := range map[string]**time.Time{
		"from": &f.From,
		"to":   &f.To,
	} {
		if v := c.QueryParam(param); v != "" {
			t, err := parseTime(v)
			if err != nil {
				errs.Add(param, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
				continue
			}
			*dst = &t
		}
	}
	if len(errs) > 0 {
		return errs
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*PatientSchedule{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func parseTime(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", v)
}
