package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	return NewHandler(svc, 7), svc, echo.New()
}

func postJSON(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func withID(c echo.Context, id uuid.UUID) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id.String())
	return c
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != code {
		t.Errorf("expected %d, got %v", code, err)
	}
}

func TestHandler_CreateReminder(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","task_name":"Blood check","start_date":"2024-01-31","interval_label":"1 month"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.CreateReminder(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var got map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got["due_date"] != "2024-02-29" || got["status"] != "Pending" {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_CreateReminder_BadDate(t *testing.T) {
	h, _, e := newTestHandler()
	body := `{"patient_id":"` + uuid.New().String() + `","task_name":"Blood check","start_date":"31/01/2024","interval_label":"1 month"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	expectCode(t, h.CreateReminder(e.NewContext(req, rec)), http.StatusBadRequest)
}

func TestHandler_CreateReminder_Errors(t *testing.T) {
	valid := `{"patient_id":"` + uuid.New().String() + `","task_name":"Blood check","start_date":"2024-01-31","interval_label":"9999 years"}`
	tests := []struct {
		name    string
		body    string
		repoErr error
		code    int
	}{
		{"missing task name", `{"patient_id":"` + uuid.New().String() + `","start_date":"2024-01-31","interval_label":"1 month"}`, nil, http.StatusBadRequest},
		{"repository failure", valid, errors.New("date out of range"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, _ := newTestService()
			repo.createErr = tt.repoErr
			h := NewHandler(svc, 7)
			expectCode(t, h.CreateReminder(echo.New().NewContext(postJSON(tt.body), httptest.NewRecorder())), tt.code)
		})
	}
}

func TestHandler_GetReminder_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	expectCode(t, h.GetReminder(withID(e.NewContext(req, rec), uuid.New())), http.StatusNotFound)
}

func TestHandler_CompleteReminder_Twice(t *testing.T) {
	h, svc, e := newTestHandler()
	r := newReminder(uuid.New(), "Blood check", "2024-01-31", "1 month")
	svc.CreateReminder(context.Background(), r)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if err := h.CompleteReminder(withID(e.NewContext(req, rec), r.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var res CompletionResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.CanAdvance || res.NextStage == nil || *res.NextStage != "3 months" {
		t.Errorf("unexpected completion: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	expectCode(t, h.CompleteReminder(withID(e.NewContext(req, rec), r.ID)), http.StatusConflict)
}

func TestHandler_FollowUp(t *testing.T) {
	h, svc, e := newTestHandler()
	r := newReminder(uuid.New(), "Routine review", "2024-01-31", "Monthly")
	svc.CreateReminder(context.Background(), r)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"advance on cyclic task", `{"action":"advance"}`, http.StatusUnprocessableEntity},
		{"unknown action", `{"action":"snooze"}`, http.StatusBadRequest},
		{"repeat", `{"action":"repeat","start_date":"2024-03-01"}`, http.StatusCreated},
		{"second follow-up", `{"action":"repeat"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			err := h.FollowUp(withID(e.NewContext(req, rec), r.ID))
			if tt.code == http.StatusCreated {
				if err != nil || rec.Code != tt.code {
					t.Fatalf("expected 201, got %d (%v)", rec.Code, err)
				}
				var got Reminder
				json.Unmarshal(rec.Body.Bytes(), &got)
				if got.DueDate.String() != "2024-04-01" {
					t.Errorf("expected due 2024-04-01, got %s", got.DueDate)
				}
				return
			}
			expectCode(t, err, tt.code)
		})
	}
}

func TestHandler_ListReminders(t *testing.T) {
	h, svc, e := newTestHandler()
	pid := uuid.New()
	svc.CreateReminder(context.Background(), newReminder(pid, "Blood check", "2024-01-31", "1 month"))
	svc.CreateReminder(context.Background(), newReminder(uuid.New(), "Blood check", "2024-01-31", "1 month"))

	req := httptest.NewRequest(http.MethodGet, "/reminders?patient_id="+pid.String()+"&status=Pending", nil)
	rec := httptest.NewRecorder()
	if err := h.ListReminders(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 reminder for the patient, got %d", resp.Total)
	}
}

func TestHandler_ListReminders_BadFilters(t *testing.T) {
	h, _, e := newTestHandler()
	for _, q := range []string{"patient_id=nope", "status=Open"} {
		req := httptest.NewRequest(http.MethodGet, "/reminders?"+q, nil)
		rec := httptest.NewRecorder()
		expectCode(t, h.ListReminders(e.NewContext(req, rec)), http.StatusBadRequest)
	}
}

func TestHandler_ResetReminders_RequiresConfirm(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.CreateReminder(context.Background(), newReminder(uuid.New(), "Blood check", "2024-01-31", "1 month"))

	req := httptest.NewRequest(http.MethodDelete, "/reminders", nil)
	rec := httptest.NewRecorder()
	expectCode(t, h.ResetReminders(e.NewContext(req, rec)), http.StatusBadRequest)

	req = httptest.NewRequest(http.MethodDelete, "/reminders?confirm=true", nil)
	rec = httptest.NewRecorder()
	if err := h.ResetReminders(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"deleted":1`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_Dashboard(t *testing.T) {
	h, svc, e := newTestHandler()
	svc.CreateReminder(context.Background(), newReminder(uuid.New(), "Blood check", "2024-06-01", "2 weeks"))

	tests := []struct {
		query   string
		dueSoon int
	}{
		{"", 1},
		{"?days=3", 0},
		{"?as_of=2024-06-14&days=0", 0},
		{"?as_of=2024-06-14&days=1", 1},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/dashboard"+tt.query, nil)
		rec := httptest.NewRecorder()
		if err := h.Dashboard(e.NewContext(req, rec)); err != nil {
			t.Fatalf("%q: unexpected error: %v", tt.query, err)
		}
		var d Dashboard
		json.Unmarshal(rec.Body.Bytes(), &d)
		if d.DueSoon != tt.dueSoon || d.Total != 1 {
			t.Errorf("%q: expected %d due soon of 1, got %d of %d", tt.query, tt.dueSoon, d.DueSoon, d.Total)
		}
	}
}

func TestHandler_Dashboard_BadParams(t *testing.T) {
	h, _, e := newTestHandler()
	for _, q := range []string{"?days=-1", "?days=soon", "?as_of=yesterday"} {
		req := httptest.NewRequest(http.MethodGet, "/dashboard"+q, nil)
		rec := httptest.NewRecorder()
		expectCode(t, h.Dashboard(e.NewContext(req, rec)), http.StatusBadRequest)
	}
}

func TestHandler_DueDate(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/due-date?start=2024-11-30&interval=3+months", nil)
	rec := httptest.NewRecorder()
	if err := h.DueDate(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p DuePreview
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.DueDate.String() != "2025-02-28" || !p.Parsed {
		t.Errorf("unexpected preview: %s", rec.Body.String())
	}
}
