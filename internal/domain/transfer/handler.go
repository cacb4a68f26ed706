package transfer

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/transfer/export", h.Export)
	api.GET("/transfer/template", h.Template)
	api.POST("/transfer/patients", h.ImportPatients)
}

// IsTransferPath reports whether path is served by this handler. Workbook
// requests are exempt from the request timeout.
func IsTransferPath(path string) bool {
	return strings.Contains(path, "/transfer/")
}

func attachment(c echo.Context, filename string, body []byte) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	return c.Blob(http.StatusOK, mimeXLSX, body)
}

func (h *Handler) Export(c echo.Context) error {
	var buf bytes.Buffer
	if err := h.svc.Export(c.Request().Context(), &buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return attachment(c, h.svc.BackupFilename(), buf.Bytes())
}

func (h *Handler) Template(c echo.Context) error {
	var buf bytes.Buffer
	if err := WriteTemplate(&buf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return attachment(c, TemplateFilename, buf.Bytes())
}

// ImportPatients accepts a multipart upload in the "file" field.
func (h *Handler) ImportPatients(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	res, err := h.svc.ImportPatients(c.Request().Context(), src)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingColumns):
			return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, ErrUnreadable):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, res)
}
