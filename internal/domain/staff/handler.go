package staff

import (
	"errors"
	"net/http"
	"strconv"

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
	readGroup.GET("/providers", h.ListProviders)
	readGroup.GET("/providers/:id", h.GetProvider)
	readGroup.GET("/caregivers", h.ListCaregivers)
	readGroup.GET("/caregivers/:id", h.GetCaregiver)
	readGroup.GET("/physicians", h.ListPhysicians)
	readGroup.GET("/physicians/:id", h.GetPhysician)
	readGroup.GET("/physicians/npi/:npi", h.GetPhysicianByNPI)
	readGroup.GET("/payers", h.ListPayers)
	readGroup.GET("/payers/:id", h.GetPayer)

	// Write endpoints – admin only
	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/providers", h.CreateProvider)
	writeGroup.PUT("/providers/:id", h.UpdateProvider)
	writeGroup.DELETE("/providers/:id", h.DeleteProvider)
	writeGroup.POST("/caregivers", h.CreateCaregiver)
	writeGroup.PUT("/caregivers/:id", h.UpdateCaregiver)
	writeGroup.DELETE("/caregivers/:id", h.DeleteCaregiver)
	writeGroup.POST("/physicians", h.CreatePhysician)
	writeGroup.PUT("/physicians/:id", h.UpdatePhysician)
	writeGroup.DELETE("/physicians/:id", h.DeletePhysician)
	writeGroup.POST("/payers", h.CreatePayer)
	writeGroup.PUT("/payers/:id", h.UpdatePayer)
	writeGroup.DELETE("/payers/:id", h.DeletePayer)
}

// constraintFields names the request field behind each constraint so
// integrity violations come back as field errors.
var constraintFields = map[string]string{
	"provider_npi_key":           "npi",
	"caregiver_provider_id_fkey": "providerId",
	"physician_npi_key":          "npi",
	"payer_payer_code_key":       "payerCode",
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

// deleteError reports a foreign-key violation on delete as a conflict: the row
// is still referenced, not pointing at a missing parent.
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

func bindBody(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

// -- Provider Handlers --

func (h *Handler) CreateProvider(c echo.Context) error {
	var p Provider
	if err := bindBody(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreateProvider(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "provider")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetProvider(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "provider")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Provider
	if err := bindBody(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdateProvider(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "provider")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeleteProvider(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteProvider(c.Request().Context(), id); err != nil {
		return deleteError(err, "provider")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListProviders(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListProviders(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err, "provider")
	}
	if items == nil {
		items = []*Provider{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

// -- Caregiver Handlers --

func (h *Handler) CreateCaregiver(c echo.Context) error {
	var cg Caregiver
	if err := bindBody(c, &cg); err != nil {
		return err
	}
	if err := h.svc.CreateCaregiver(c.Request().Context(), &cg); err != nil {
		return toHTTPError(err, "caregiver")
	}
	return c.JSON(http.StatusCreated, cg)
}

func (h *Handler) GetCaregiver(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	cg, err := h.svc.GetCaregiver(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "caregiver")
	}
	return c.JSON(http.StatusOK, cg)
}

func (h *Handler) UpdateCaregiver(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var cg Caregiver
	if err := bindBody(c, &cg); err != nil {
		return err
	}
	cg.ID = id
	if err := h.svc.UpdateCaregiver(c.Request().Context(), &cg); err != nil {
		return toHTTPError(err, "caregiver")
	}
	return c.JSON(http.StatusOK, cg)
}

func (h *Handler) DeleteCaregiver(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteCaregiver(c.Request().Context(), id); err != nil {
		return deleteError(err, "caregiver")
	}
	return c.NoContent(http.StatusNoContent)
}

// ListCaregivers filters by ?providerId=, ?discipline= and ?active=true.
func (h *Handler) ListCaregivers(c echo.Context) error {
	f := CaregiverFilter{Discipline: c.QueryParam("discipline")}
	if v := c.QueryParam("providerId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return validation.Errors{"providerId": "must be a valid UUID"}
		}
		f.ProviderID = &id
	}
	if v := c.QueryParam("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return validation.Errors{"active": "must be true or false"}
		}
		f.ActiveOnly = active
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCaregivers(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err, "caregiver")
	}
	if items == nil {
		items = []*Caregiver{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

// -- Physician Handlers --

func (h *Handler) CreatePhysician(c echo.Context) error {
	var p Physician
	if err := bindBody(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePhysician(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "physician")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPhysician(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPhysician(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "physician")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) GetPhysicianByNPI(c echo.Context) error {
	p, err := h.svc.GetPhysicianByNPI(c.Request().Context(), c.Param("npi"))
	if err != nil {
		return toHTTPError(err, "physician")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePhysician(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Physician
	if err := bindBody(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePhysician(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "physician")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePhysician(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePhysician(c.Request().Context(), id); err != nil {
		return deleteError(err, "physician")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPhysicians(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPhysicians(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err, "physician")
	}
	if items == nil {
		items = []*Physician{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

// -- Payer Handlers --

func (h *Handler) CreatePayer(c echo.Context) error {
	var p Payer
	if err := bindBody(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePayer(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "payer")
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPayer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPayer(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err, "payer")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePayer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Payer
	if err := bindBody(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePayer(c.Request().Context(), &p); err != nil {
		return toHTTPError(err, "payer")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePayer(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePayer(c.Request().Context(), id); err != nil {
		return deleteError(err, "payer")
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListPayers(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListPayers(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err, "payer")
	}
	if items == nil {
		items = []*Payer{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}
