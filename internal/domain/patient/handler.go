package patient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/patient-service/internal/platform/auth"
	"github.com/ehr/patient-service/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient endpoints under api. The caller's
// authentication middleware must already be on api.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := auth.RequireCapability(auth.ReadPatient)
	write := auth.RequireCapability(auth.WritePatient)
	del := auth.RequireCapability(auth.DeletePatient)

	g := api.Group("/patients")
	g.GET("", h.ListPatients, read)
	g.GET("/search", h.SearchPatients, read)
	g.GET("/:id", h.GetPatient, read)
	g.HEAD("/:id", h.HeadPatient, read)
	g.POST("", h.CreatePatient, write)
	g.PUT("/:id", h.UpdatePatient, write)
	g.DELETE("/:id", h.DeletePatient, del)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var req CreatePatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	resp, err := h.svc.Create(c.Request().Context(), &req)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set("Location", strings.TrimSuffix(c.Request().URL.Path, "/")+"/"+resp.ID.String())
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	resp, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) HeadPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	ok, err := h.svc.Exists(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if !ok {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusOK)
}

func (h *Handler) ListPatients(c echo.Context) error {
	page, err := h.svc.List(c.Request().Context(), pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	mrn := c.QueryParam("mrn")
	if mrn == "" {
		mrn = c.QueryParam("medicalRecordNumber")
	}
	query := c.QueryParam("q")
	if query == "" {
		query = c.QueryParam("query")
	}
	filter := SearchFilter{
		Query:     strings.TrimSpace(query),
		Name:      strings.TrimSpace(c.QueryParam("name")),
		FirstName: strings.TrimSpace(c.QueryParam("firstName")),
		LastName:  strings.TrimSpace(c.QueryParam("lastName")),
		Email:     strings.TrimSpace(c.QueryParam("email")),
		MRN:       strings.TrimSpace(mrn),
		Status:    Status(strings.ToLower(strings.TrimSpace(c.QueryParam("status")))),
	}
	page, err := h.svc.Search(c.Request().Context(), filter, pagination.FromContext(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req UpdatePatientRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	resp, err := h.svc.Update(c.Request().Context(), id, &req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// pathID parses the :id parameter. Ids that are not UUIDs cannot exist, so
// they are reported as not found.
func pathID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	}
	return id, nil
}

// httpError maps service errors to HTTP responses.
func httpError(err error) error {
	var (
		verr *ValidationError
		cerr *ConflictError
		derr *DependencyError
	)
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, echo.Map{
			"message": "validation failed",
			"errors":  verr.Fields,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrNotFound.Error())
	case errors.As(err, &cerr):
		return echo.NewHTTPError(http.StatusConflict, cerr.Error())
	case errors.As(err, &derr):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service temporarily unavailable").SetInternal(err)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, "An unexpected error occurred").SetInternal(err)
}
