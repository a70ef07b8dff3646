package scheduling

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by the scheduling engine and service.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrNoSlot              = errors.New("no available time slot")
	ErrCapacityExhausted   = errors.New("provider capacity exhausted")
	ErrDuplicateRequest    = errors.New("request already scheduled")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// AppointmentStatus is the lifecycle state of a stored appointment.
type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "Scheduled"
	StatusCancelled AppointmentStatus = "Cancelled"
)

// Valid reports whether the status is one the store understands.
func (s AppointmentStatus) Valid() bool {
	return s == StatusScheduled || s == StatusCancelled
}

// Appointment is the record kept by the appointment store.
type Appointment struct {
	RequestID  string            `db:"request_id" json:"request_id"`
	ProviderID string            `db:"provider_id" json:"provider_id"`
	Start      int               `db:"start_minute" json:"start"`
	End        int               `db:"end_minute" json:"end"`
	Status     AppointmentStatus `db:"status" json:"status"`
	CreatedAt  time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at" json:"updated_at"`
}

// Booking is an appointment as seen from the provider that holds it.
type Booking struct {
	RequestID string `json:"request_id"`
	Start     int    `json:"start"`
	End       int    `json:"end"`
}

// Request asks the engine for one appointment. An empty PreferredProviderID
// lets the engine pick the most available provider.
type Request struct {
	RequestID           string
	Duration            int
	PreferredStart      int
	PreferredEnd        int
	PreferredProviderID string
}

func (r Request) validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("%w: request id is required", ErrInvalidInput)
	}
	if r.Duration <= 0 || r.Duration > DayMinutes {
		return fmt.Errorf("%w: duration must be between 1 and 1440 minutes", ErrInvalidInput)
	}
	window := TimeSlot{Start: r.PreferredStart, End: r.PreferredEnd}
	if !window.Valid() {
		return fmt.Errorf("%w: preferred range start must be before its end", ErrInvalidInput)
	}
	return nil
}

// Assignment is the result of a successful scheduling request.
type Assignment struct {
	RequestID  string
	ProviderID string
	Start      int
	End        int
}

// ProviderView is a point-in-time copy of a provider's state.
type ProviderView struct {
	ID                   string
	Availability         Calendar
	Free                 Calendar
	MaxDailyAppointments int
	RemainingCapacity    int
	Scheduled            []Booking
}
