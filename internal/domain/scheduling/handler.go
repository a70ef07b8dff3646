package scheduling

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/apptsched/internal/platform/auth"
	"github.com/ehr/apptsched/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Read endpoints – admin, scheduler, viewer
	readGroup := api.Group("", auth.RequireRole("admin", "scheduler", "viewer"))
	readGroup.GET("/providers", h.ListProviders)
	readGroup.GET("/providers/:id", h.GetProvider)
	readGroup.GET("/appointments", h.ListAppointments)
	readGroup.GET("/appointments/:id", h.GetAppointment)

	// Write endpoints – admin, scheduler
	writeGroup := api.Group("", auth.RequireRole("admin", "scheduler"))
	writeGroup.POST("/providers", h.RegisterProvider)
	writeGroup.PUT("/providers/:id/availability", h.ReviseAvailability)
	writeGroup.POST("/appointments", h.ScheduleAppointment)
}

// -- Wire types --

// clockSlot is a time slot as exchanged over HTTP ("HH:MM" strings).
type clockSlot struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type registerProviderRequest struct {
	ID                   string      `json:"id"`
	Availability         []clockSlot `json:"availability"`
	MaxDailyAppointments *int        `json:"max_daily_appointments"`
}

type reviseAvailabilityRequest struct {
	Availability []clockSlot `json:"availability"`
}

type scheduleRequest struct {
	ID                string     `json:"id"`
	Duration          int        `json:"duration"`
	PreferredRange    *clockSlot `json:"preferred_range"`
	PreferredProvider string     `json:"preferred_provider"`
}

type bookingResponse struct {
	RequestID string    `json:"request_id"`
	TimeSlot  clockSlot `json:"time_slot"`
}

type providerResponse struct {
	ID                   string            `json:"id"`
	Availability         []clockSlot       `json:"availability"`
	FreeSlots            []clockSlot       `json:"free_slots"`
	MaxDailyAppointments int               `json:"max_daily_appointments"`
	RemainingCapacity    int               `json:"remaining_capacity"`
	Scheduled            []bookingResponse `json:"scheduled"`
}

type appointmentResponse struct {
	RequestID  string            `json:"request_id"`
	ProviderID string            `json:"provider_id"`
	TimeSlot   clockSlot         `json:"time_slot"`
	Status     AppointmentStatus `json:"status"`
}

func toTimeSlots(in []clockSlot) ([]TimeSlot, error) {
	out := make([]TimeSlot, 0, len(in))
	for i, cs := range in {
		ts, err := cs.toTimeSlot()
		if err != nil {
			return nil, fmt.Errorf("availability[%d]: %w", i, err)
		}
		out = append(out, ts)
	}
	return out, nil
}

func (cs clockSlot) toTimeSlot() (TimeSlot, error) {
	start, err := ParseClock(cs.Start)
	if err != nil {
		return TimeSlot{}, err
	}
	end, err := ParseClock(cs.End)
	if err != nil {
		return TimeSlot{}, err
	}
	if start >= end {
		return TimeSlot{}, fmt.Errorf("%w: start %s must be before end %s", ErrInvalidInput, cs.Start, cs.End)
	}
	return TimeSlot{Start: start, End: end}, nil
}

func fromCalendar(cal Calendar) []clockSlot {
	out := make([]clockSlot, 0, len(cal))
	for _, s := range cal {
		out = append(out, clockSlot{Start: FormatClock(s.Start), End: FormatClock(s.End)})
	}
	return out
}

func toProviderResponse(v ProviderView) providerResponse {
	scheduled := make([]bookingResponse, 0, len(v.Scheduled))
	for _, b := range v.Scheduled {
		scheduled = append(scheduled, bookingResponse{
			RequestID: b.RequestID,
			TimeSlot:  clockSlot{Start: FormatClock(b.Start), End: FormatClock(b.End)},
		})
	}
	return providerResponse{
		ID:                   v.ID,
		Availability:         fromCalendar(v.Availability),
		FreeSlots:            fromCalendar(v.Free),
		MaxDailyAppointments: v.MaxDailyAppointments,
		RemainingCapacity:    v.RemainingCapacity,
		Scheduled:            scheduled,
	}
}

func toAppointmentResponse(a *Appointment) appointmentResponse {
	return appointmentResponse{
		RequestID:  a.RequestID,
		ProviderID: a.ProviderID,
		TimeSlot:   clockSlot{Start: FormatClock(a.Start), End: FormatClock(a.End)},
		Status:     a.Status,
	}
}

// httpError maps scheduling errors onto HTTP statuses.
func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownProvider), errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNoSlot), errors.Is(err, ErrDuplicateRequest):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// -- Provider Handlers --

func (h *Handler) RegisterProvider(c echo.Context) error {
	var req registerProviderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "id is required")
	}
	if req.MaxDailyAppointments == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "max_daily_appointments is required")
	}
	slots, err := toTimeSlots(req.Availability)
	if err != nil {
		return httpError(err)
	}

	view, err := h.svc.RegisterProvider(c.Request().Context(), req.ID, slots, *req.MaxDailyAppointments)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":  "Provider added successfully.",
		"provider": toProviderResponse(view),
	})
}

func (h *Handler) GetProvider(c echo.Context) error {
	view, err := h.svc.GetProvider(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toProviderResponse(view))
}

// ListProviders returns providers sorted by id, or in scheduling order when
// called with ?order=availability.
func (h *Handler) ListProviders(c echo.Context) error {
	ctx := c.Request().Context()
	views := h.svc.ListProviders(ctx)

	if c.QueryParam("order") == "availability" {
		byID := make(map[string]ProviderView, len(views))
		for _, v := range views {
			byID[v.ID] = v
		}
		ranked := make([]providerResponse, 0, len(views))
		for _, id := range h.svc.ProviderRanking(ctx) {
			if v, ok := byID[id]; ok {
				ranked = append(ranked, toProviderResponse(v))
			}
		}
		return c.JSON(http.StatusOK, ranked)
	}

	out := make([]providerResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toProviderResponse(v))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ReviseAvailability(c echo.Context) error {
	var req reviseAvailabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	slots, err := toTimeSlots(req.Availability)
	if err != nil {
		return httpError(err)
	}

	cancelled, err := h.svc.ReviseProviderAvailability(c.Request().Context(), c.Param("id"), slots)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":   "Availability updated, affected appointments cancelled.",
		"cancelled": cancelled,
	})
}

// -- Appointment Handlers --

func (h *Handler) ScheduleAppointment(c echo.Context) error {
	var req scheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Duration <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "duration must be a positive number of minutes")
	}

	window := TimeSlot{Start: 0, End: DayMinutes}
	if req.PreferredRange != nil {
		ts, err := req.PreferredRange.toTimeSlot()
		if err != nil {
			return httpError(err)
		}
		window = ts
	}

	appt, err := h.svc.ScheduleAppointment(c.Request().Context(), Request{
		RequestID:           req.ID,
		Duration:            req.Duration,
		PreferredStart:      window.Start,
		PreferredEnd:        window.End,
		PreferredProviderID: req.PreferredProvider,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, toAppointmentResponse(appt))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	appt, err := h.svc.GetAppointment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, toAppointmentResponse(appt))
}

func (h *Handler) ListAppointments(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAppointments(c.Request().Context(),
		AppointmentStatus(c.QueryParam("status")), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}

	out := make([]appointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAppointmentResponse(a))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"scheduled": out,
		"total":     total,
		"limit":     pg.Limit,
		"offset":    pg.Offset,
		"has_more":  pg.HasNext(total),
	})
}
