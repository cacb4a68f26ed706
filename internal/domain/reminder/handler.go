package reminder

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nptracker/nptracker/pkg/civil"
	"github.com/nptracker/nptracker/pkg/pagination"
)

type Handler struct {
	svc         *Service
	dueSoonDays int
}

// NewHandler serves the reminder API. dueSoonDays is the dashboard window
// used when a request does not give one.
func NewHandler(svc *Service, dueSoonDays int) *Handler {
	return &Handler{svc: svc, dueSoonDays: dueSoonDays}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/reminders", h.ListReminders)
	api.POST("/reminders", h.CreateReminder)
	api.DELETE("/reminders", h.ResetReminders)
	api.GET("/reminders/:id", h.GetReminder)
	api.POST("/reminders/:id/complete", h.CompleteReminder)
	api.POST("/reminders/:id/follow-up", h.FollowUp)
	api.GET("/dashboard", h.Dashboard)
	api.GET("/due-date", h.DueDate)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "reminder not found")
	case errors.Is(err, ErrAlreadyDone), errors.Is(err, ErrAlreadyFollowedUp):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoNextStage):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrInvalidAction), errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
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

func parseDate(c echo.Context, param string, fallback civil.Date) (civil.Date, error) {
	raw := c.QueryParam(param)
	if raw == "" {
		return fallback, nil
	}
	d, err := civil.Parse(raw)
	if err != nil {
		return civil.Date{}, echo.NewHTTPError(http.StatusBadRequest, param+": "+err.Error())
	}
	return d, nil
}

func (h *Handler) CreateReminder(c echo.Context) error {
	var r Reminder
	if err := c.Bind(&r); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateReminder(c.Request().Context(), &r); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetReminder(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}

// ListReminders answers GET /reminders?patient_id=&status=.
func (h *Handler) ListReminders(c echo.Context) error {
	var filter ListFilter
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = id
	}
	filter.Status = Status(c.QueryParam("status"))
	if filter.Status != "" && !filter.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be Pending or Done")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListReminders(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Reminder{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).
		WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CompleteReminder(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	res, err := h.svc.CompleteReminder(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) FollowUp(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req FollowUpRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	r, err := h.svc.FollowUp(c.Request().Context(), id, req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

// ResetReminders deletes every reminder. The caller must pass confirm=true.
func (h *Handler) ResetReminders(c echo.Context) error {
	if c.QueryParam("confirm") != "true" {
		return echo.NewHTTPError(http.StatusBadRequest, "bulk reset requires confirm=true")
	}
	n, err := h.svc.Reset(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": n})
}

// Dashboard answers GET /dashboard?days=&as_of=.
func (h *Handler) Dashboard(c echo.Context) error {
	days := h.dueSoonDays
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be a non-negative integer")
		}
		days = n
	}
	asOf, err := parseDate(c, "as_of", civil.Of(h.svc.now()))
	if err != nil {
		return err
	}
	d, err := h.svc.Dashboard(c.Request().Context(), asOf, days)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, d)
}

// DueDate answers GET /due-date?start=&interval=. A missing start means
// today.
func (h *Handler) DueDate(c echo.Context) error {
	start, err := parseDate(c, "start", civil.Of(h.svc.now()))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.svc.PreviewDueDate(start, c.QueryParam("interval")))
}
