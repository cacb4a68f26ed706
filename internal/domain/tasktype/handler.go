package tasktype

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nptracker/nptracker/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/task-types", h.ListTaskTypes)
	api.POST("/task-types", h.CreateTaskType)
	api.GET("/task-types/next-stage", h.NextStage)
	api.GET("/task-types/:id", h.GetTaskType)
	api.PUT("/task-types/:id", h.UpdateTaskType)
	api.DELETE("/task-types/:id", h.DeleteTaskType)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "task type not found")
	case errors.Is(err, ErrDuplicateName):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateTaskType(c echo.Context) error {
	var t TaskType
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateTaskType(c.Request().Context(), &t); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetTaskType(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	t, err := h.svc.GetTaskType(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListTaskTypes(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTaskTypes(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*TaskType{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateTaskType(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var t TaskType
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	t.ID = id
	if err := h.svc.UpdateTaskType(c.Request().Context(), &t); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrDuplicateName) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTaskType(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteTaskType(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// NextStage answers GET /task-types/next-stage?task_name=&interval=.
func (h *Handler) NextStage(c echo.Context) error {
	name := c.QueryParam("task_name")
	if strings.TrimSpace(name) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_name is required")
	}
	return c.JSON(http.StatusOK, h.svc.Describe(c.Request().Context(), name, c.QueryParam("interval")))
}
