package assessment

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hhemr/hhemr/internal/platform/auth"
	"github.com/hhemr/hhemr/internal/platform/db"
	"github.com/hhemr/hhemr/internal/platform/versioning"
	"github.com/hhemr/hhemr/pkg/forms"
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
	readGroup.GET("/assessments", h.List)
	readGroup.GET("/assessments/:id", h.Get)
	readGroup.GET("/assessments/:id/qa-history", h.QAHistory)
	readGroup.GET("/sections", h.Sections)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleClinician))
	writeGroup.POST("/assessments", h.Save)
	writeGroup.POST("/assessments/:id/complete", h.Complete)

	qaGroup := api.Group("", auth.RequireRole(auth.RoleQAReviewer))
	qaGroup.PUT("/assessments/:id/qa", h.UpdateQA)
}

// SaveResponse acknowledges a section save.
type SaveResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	ID        uuid.UUID `json:"id"`
	VersionID int       `json:"versionId"`
	QAStatus  string    `json:"qaStatus"`
}

type StatusResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	QAStatus  string `json:"qaStatus"`
	VersionID int    `json:"versionId"`
}

func (h *Handler) Save(c echo.Context) error {
	var req SaveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	expected, err := versioning.ExpectedVersion(c, req.ExpectedVersion)
	if err != nil {
		return err
	}
	req.ExpectedVersion = expected

	a, err := h.svc.SaveSections(c.Request().Context(), &req)
	if err != nil {
		return toHTTPError(err)
	}
	versioning.SetHeaders(c, a.VersionID, a.UpdatedAt)
	return c.JSON(http.StatusOK, SaveResponse{
		Success:   true,
		Message:   "assessment saved",
		ID:        a.ID,
		VersionID: a.VersionID,
		QAStatus:  a.QAStatus,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if versioning.NotModified(c, a.VersionID) {
		return c.NoContent(http.StatusNotModified)
	}
	versioning.SetHeaders(c, a.VersionID, a.UpdatedAt)
	return c.JSON(http.StatusOK, a)
}

// List filters by ?patientScheduleId=, ?patientId=, ?caregiverId= and
// ?qaStatus=.
func (h *Handler) List(c echo.Context) error {
	var f Filter
	errs := validation.Errors{}
	for param, dst := range map[string]**uuid.UUID{
		"patientScheduleId": &f.PatientScheduleID,
		"patientId":         &f.PatientID,
		"caregiverId":       &f.CaregiverID,
	} {
		v := c.QueryParam(param)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			errs.Add(param, "must be a valid UUID")
			continue
		}
		*dst = &id
	}
	if len(errs) > 0 {
		return errs
	}
	f.QAStatus = c.QueryParam("qaStatus")

	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Assessment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) UpdateQA(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var u QAUpdate
	if err := c.Bind(&u); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	a, err := h.svc.UpdateQAStatus(ctx, id, u, auth.UserIDFromContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}
	versioning.SetHeaders(c, a.VersionID, a.UpdatedAt)
	return c.JSON(http.StatusOK, StatusResponse{
		Success:   true,
		Message:   qaMessage(a.QAStatus),
		QAStatus:  a.QAStatus,
		VersionID: a.VersionID,
	})
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	a, err := h.svc.Complete(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return toHTTPError(err)
	}
	versioning.SetHeaders(c, a.VersionID, a.UpdatedAt)
	return c.JSON(http.StatusOK, StatusResponse{
		Success:   true,
		Message:   "assessment completed",
		QAStatus:  a.QAStatus,
		VersionID: a.VersionID,
	})
}

func (h *Handler) QAHistory(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	events, err := h.svc.QAHistory(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if events == nil {
		events = []*QAEvent{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": events})
}

// Sections lists the registered section schemas and their current versions.
func (h *Handler) Sections(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"success": true, "data": forms.All()})
}

func qaMessage(status string) string {
	if status == QAStatusRejected {
		return "assessment rejected"
	}
	return "assessment approved"
}

var constraintFields = map[string]string{
	"assessment_patient_schedule_id_fkey": "patientScheduleId",
	"assessment_patient_id_fkey":          "patientId",
	"assessment_caregiver_id_fkey":        "caregiverId",
	"assessment_provider_id_fkey":         "providerId",
}

func toHTTPError(err error) error {
	if _, ok := validation.AsErrors(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrVersionConflict.Error())
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, db.ErrReference):
		if field := constraintFields[db.ConstraintName(err)]; field != "" {
			return validation.Errors{field: "does not reference an existing record"}
		}
		return echo.NewHTTPError(http.StatusConflict, "assessment is still referenced")
	case errors.Is(err, db.ErrCheck):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
}
