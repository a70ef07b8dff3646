package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	engine       *Engine
	appointments AppointmentStore
	logger       zerolog.Logger
	events       EventPublisher

	// request ids currently being scheduled
	inflight sync.Map
}

func NewService(engine *Engine, appts AppointmentStore, logger zerolog.Logger) *Service {
	return &Service{engine: engine, appointments: appts, logger: logger}
}

// -- Provider --

func (s *Service) RegisterProvider(ctx context.Context, id string, availability []TimeSlot, maxDaily int) (ProviderView, error) {
	view, err := s.engine.RegisterProvider(id, availability, maxDaily)
	if err != nil {
		return ProviderView{}, err
	}
	s.logger.Info().
		Str("provider_id", id).
		Int("max_daily_appointments", maxDaily).
		Int("slots", len(view.Availability)).
		Msg("provider registered")
	s.publish(ctx, EventProviderRegistered, id, "", struct {
		Availability         []slotPayload `json:"availability"`
		MaxDailyAppointments int           `json:"max_daily_appointments"`
	}{slotsPayload(view.Availability), view.MaxDailyAppointments})
	return view, nil
}

func (s *Service) GetProvider(_ context.Context, id string) (ProviderView, error) {
	return s.engine.Provider(id)
}

func (s *Service) ListProviders(_ context.Context) []ProviderView {
	return s.engine.Providers()
}

// ProviderRanking lists provider ids in the order an unconstrained request
// would try them.
func (s *Service) ProviderRanking(_ context.Context) []string {
	return s.engine.Ranking()
}

// ReviseProviderAvailability applies a new availability to a provider and
// marks every appointment that no longer fits as cancelled.
func (s *Service) ReviseProviderAvailability(ctx context.Context, providerID string, availability []TimeSlot) ([]string, error) {
	cancelled, err := s.engine.ReviseAvailability(providerID, availability)
	if err != nil {
		return nil, err
	}
	if cancelled == nil {
		cancelled = []string{}
	}

	if err := s.appointments.MarkCancelled(ctx, cancelled); err != nil {
		s.logger.Error().Err(err).
			Str("provider_id", providerID).
			Strs("cancelled", cancelled).
			Msg("availability revised but cancellations were not recorded")
		return cancelled, fmt.Errorf("record cancellations: %w", err)
	}

	s.logger.Info().
		Str("provider_id", providerID).
		Int("slots", len(availability)).
		Strs("cancelled", cancelled).
		Msg("provider availability revised")

	for _, id := range cancelled {
		s.publish(ctx, EventAppointmentCancelled, providerID, id, nil)
	}
	if view, err := s.engine.Provider(providerID); err == nil {
		s.publish(ctx, EventAvailabilityRevised, providerID, "", revisedPayload{
			Availability:      slotsPayload(view.Availability),
			RemainingCapacity: view.RemainingCapacity,
			Cancelled:         cancelled,
		})
	}
	return cancelled, nil
}

// -- Appointment --

// ScheduleAppointment assigns the request and records it in the store. An
// empty request id is replaced by a generated one.
func (s *Service) ScheduleAppointment(ctx context.Context, req Request) (*Appointment, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if _, busy := s.inflight.LoadOrStore(req.RequestID, struct{}{}); busy {
		return nil, fmt.Errorf("%w: %s is already being scheduled", ErrDuplicateRequest, req.RequestID)
	}
	defer s.inflight.Delete(req.RequestID)

	existing, err := s.appointments.Get(ctx, req.RequestID)
	switch {
	case err == nil && existing.Status == StatusScheduled:
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRequest, req.RequestID)
	case err != nil && !errors.Is(err, ErrAppointmentNotFound):
		return nil, err
	}

	assigned, err := s.engine.ScheduleAppointment(req)
	if err != nil {
		if errors.Is(err, ErrCapacityExhausted) {
			s.logger.Error().Err(err).
				Str("request_id", req.RequestID).
				Msg("capacity exhausted while holding provider lock")
		}
		return nil, err
	}

	appt := &Appointment{
		RequestID:  assigned.RequestID,
		ProviderID: assigned.ProviderID,
		Start:      assigned.Start,
		End:        assigned.End,
		Status:     StatusScheduled,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.appointments.Save(ctx, appt); err != nil {
		released := s.engine.ReleaseAppointment(assigned.ProviderID, assigned.RequestID)
		s.logger.Error().Err(err).
			Str("request_id", assigned.RequestID).
			Str("provider_id", assigned.ProviderID).
			Bool("released", released).
			Msg("failed to record appointment")
		return nil, fmt.Errorf("record appointment: %w", err)
	}

	// A revision between the engine commit and Save found no record to
	// cancel. Once the record exists any later revision marks it itself.
	if !s.engine.Holds(appt.ProviderID, appt.RequestID) {
		if err := s.appointments.MarkCancelled(ctx, []string{appt.RequestID}); err != nil {
			s.logger.Error().Err(err).
				Str("request_id", appt.RequestID).
				Str("provider_id", appt.ProviderID).
				Msg("appointment cancelled while being recorded, cancellation not stored")
			return nil, fmt.Errorf("record cancellation: %w", err)
		}
		appt.Status = StatusCancelled
		s.logger.Warn().
			Str("request_id", appt.RequestID).
			Str("provider_id", appt.ProviderID).
			Msg("appointment cancelled by a revision while being recorded")
		return appt, nil
	}

	s.logger.Info().
		Str("request_id", appt.RequestID).
		Str("provider_id", appt.ProviderID).
		Str("start", FormatClock(appt.Start)).
		Str("end", FormatClock(appt.End)).
		Msg("appointment scheduled")
	s.publish(ctx, EventAppointmentScheduled, appt.ProviderID, appt.RequestID, slotPayload{
		Start: FormatClock(appt.Start),
		End:   FormatClock(appt.End),
	})
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, requestID string) (*Appointment, error) {
	return s.appointments.Get(ctx, requestID)
}

func (s *Service) ListAppointments(ctx context.Context, status AppointmentStatus, limit, offset int) ([]*Appointment, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return s.appointments.List(ctx, status, limit, offset)
}
