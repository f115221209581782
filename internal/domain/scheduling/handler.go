package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinicops/console/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.POST("/appointments", h.BookAppointment)
	api.PUT("/appointments/:id", h.UpdateAppointment)
	api.DELETE("/appointments/:id", h.DeleteAppointment)
	api.POST("/appointments/:id/status", h.SetStatus)
	api.POST("/appointments/:id/reschedule", h.Reschedule)
	api.POST("/appointments/:id/recurrence", h.ExpandRecurrence)
	api.POST("/appointments/conflicts", h.FindConflicts)

	api.GET("/psychologists/:id/next-slot", h.NextSlot)
	api.GET("/psychologists/:id/slots", h.ListSlots)
	api.GET("/psychologists/:id/working-hours", h.GetWorkingHours)
	api.PUT("/psychologists/:id/working-hours", h.PutWorkingHours)

	api.GET("/rooms", h.ListRooms)
	api.PUT("/rooms/:id", h.PutRoom)
}

// -- Requests --

type appointmentRequest struct {
	PatientID       string  `json:"patient_id" validate:"required"`
	PsychologistID  string  `json:"psychologist_id" validate:"required"`
	RoomID          *string `json:"room_id" validate:"omitempty,min=1"`
	Date            string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime       string  `json:"start_time" validate:"required,datetime=15:04"`
	EndTime         string  `json:"end_time" validate:"required,datetime=15:04"`
	Status          string  `json:"status" validate:"omitempty,oneof=pending confirmed completed cancelled scheduled"`
	PaymentMethod   string  `json:"payment_method" validate:"max=64"`
	InsuranceType   *string `json:"insurance_type"`
	Value           int64   `json:"value" validate:"gte=0"`
	AppointmentType string  `json:"appointment_type" validate:"omitempty,oneof=presential online"`
	IsRecurring     bool    `json:"is_recurring"`
	RecurrenceType  *string `json:"recurrence_type" validate:"omitempty,oneof=weekly biweekly monthly"`
	Notes           string  `json:"notes" validate:"max=2000"`
	Version         int     `json:"version" validate:"gte=0"`
	Occurrences     int     `json:"occurrences" validate:"gte=0,lte=52"`
}

func (r *appointmentRequest) toAppointment() (Appointment, error) {
	d, err := ParseDate(r.Date)
	if err != nil {
		return Appointment{}, err
	}
	a := Appointment{
		PatientID:       r.PatientID,
		PsychologistID:  r.PsychologistID,
		RoomID:          r.RoomID,
		Date:            d,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		Status:          Status(r.Status),
		PaymentMethod:   r.PaymentMethod,
		InsuranceType:   r.InsuranceType,
		Value:           r.Value,
		AppointmentType: AppointmentType(r.AppointmentType),
		IsRecurring:     r.IsRecurring,
		Notes:           r.Notes,
		Version:         r.Version,
	}
	if r.RecurrenceType != nil {
		rt := RecurrenceType(*r.RecurrenceType)
		a.RecurrenceType = &rt
	}
	return a, nil
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

type rescheduleRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
}

type recurrenceRequest struct {
	Occurrences int `json:"occurrences" validate:"required,gte=1,lte=52"`
}

type conflictRequest struct {
	PsychologistID string `json:"psychologist_id" validate:"required"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime        string `json:"end_time" validate:"required,datetime=15:04"`
}

type workingHoursRequest struct {
	Windows []windowRequest `json:"windows" validate:"dive"`
}

type windowRequest struct {
	DayOfWeek int    `json:"day_of_week" validate:"gte=0,lte=6"`
	StartTime string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   string `json:"end_time" validate:"required,datetime=15:04"`
}

type roomRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// httpError maps engine errors to HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidTimeFormat), errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict), errors.Is(err, ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

// -- Appointments --

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		PsychologistID: c.QueryParam("psychologist_id"),
		PatientID:      c.QueryParam("patient_id"),
	}
	if raw := c.QueryParam("date"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return httpError(err)
		}
		f.Date = d
	}
	if raw := c.QueryParam("status"); raw != "" {
		st, err := ParseStatus(raw)
		if err != nil {
			return httpError(err)
		}
		f.Status = st
	}
	items := h.svc.ListAppointments(f)
	return c.JSON(http.StatusOK, pagination.NewResponse(pagination.Page(items, pg), len(items), pg.Limit, pg.Offset))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	a, err := h.svc.GetAppointment(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) BookAppointment(c echo.Context) error {
	var req appointmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := req.toAppointment()
	if err != nil {
		return httpError(err)
	}
	booked, series, err := h.svc.Book(c.Request().Context(), a, req.Occurrences)
	if err != nil {
		return httpError(err)
	}
	if len(series) > 0 {
		return c.JSON(http.StatusCreated, map[string]interface{}{
			"appointment": booked,
			"series":      series,
		})
	}
	return c.JSON(http.StatusCreated, booked)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	var req appointmentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	a, err := req.toAppointment()
	if err != nil {
		return httpError(err)
	}
	a.ID = c.Param("id")
	updated, err := h.svc.Update(c.Request().Context(), a)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	if err := h.svc.Remove(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	st, err := ParseStatus(req.Status)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.SetStatus(c.Request().Context(), c.Param("id"), st)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	var req rescheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := ParseDate(req.Date)
	if err != nil {
		return httpError(err)
	}
	a, err := h.svc.Reschedule(c.Request().Context(), c.Param("id"), d, req.StartTime, req.EndTime)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ExpandRecurrence(c echo.Context) error {
	var req recurrenceRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	created, err := h.svc.ExpandRecurrence(c.Request().Context(), c.Param("id"), req.Occurrences)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) FindConflicts(c echo.Context) error {
	var req conflictRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	d, err := ParseDate(req.Date)
	if err != nil {
		return httpError(err)
	}
	hits, err := h.svc.FindOverlapping(req.PsychologistID, d, req.StartTime, req.EndTime)
	if err != nil {
		return httpError(err)
	}
	if hits == nil {
		hits = []Appointment{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"conflict":     len(hits) > 0,
		"appointments": hits,
	})
}

// -- Slots --

func (h *Handler) NextSlot(c echo.Context) error {
	slot, ok := h.svc.NextSlot(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusOK, map[string]interface{}{"found": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"found": true, "slot": slot})
}

func (h *Handler) ListSlots(c echo.Context) error {
	var from Date
	if raw := c.QueryParam("from"); raw != "" {
		d, err := ParseDate(raw)
		if err != nil {
			return httpError(err)
		}
		from = d
	}
	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > DefaultSearchDays {
			return echo.NewHTTPError(http.StatusBadRequest, "days must be between 1 and "+strconv.Itoa(DefaultSearchDays))
		}
		days = n
	}
	slots := h.svc.Slots(c.Param("id"), from, days)
	if slots == nil {
		slots = []Slot{}
	}
	return c.JSON(http.StatusOK, slots)
}

// -- Working hours --

func (h *Handler) GetWorkingHours(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.WorkingHours(c.Param("id")))
}

func (h *Handler) PutWorkingHours(c echo.Context) error {
	var req workingHoursRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	windows := make([]WorkingWindow, 0, len(req.Windows))
	for _, w := range req.Windows {
		windows = append(windows, WorkingWindow{
			DayOfWeek: time.Weekday(w.DayOfWeek),
			StartTime: w.StartTime,
			EndTime:   w.EndTime,
		})
	}
	saved, err := h.svc.SetWorkingHours(c.Request().Context(), c.Param("id"), windows)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// -- Rooms --

func (h *Handler) ListRooms(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Rooms())
}

func (h *Handler) PutRoom(c echo.Context) error {
	var req roomRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	r, err := h.svc.PutRoom(c.Request().Context(), Room{ID: c.Param("id"), Name: req.Name})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, r)
}
