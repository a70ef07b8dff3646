package scheduling

import (
	"context"
	"sync"
	"time"
)

type appointmentStoreMemory struct {
	mu      sync.RWMutex
	records map[string]*Appointment
	order   []string
}

// NewAppointmentStoreMemory returns an AppointmentStore that lives for the
// process lifetime.
func NewAppointmentStoreMemory() AppointmentStore {
	return &appointmentStoreMemory{records: make(map[string]*Appointment)}
}

func (s *appointmentStoreMemory) Save(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	rec := *a
	if _, exists := s.records[a.RequestID]; !exists {
		s.order = append(s.order, a.RequestID)
	}
	s.records[a.RequestID] = &rec
	return nil
}

func (s *appointmentStoreMemory) Get(_ context.Context, requestID string) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[requestID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *rec
	return &out, nil
}

func (s *appointmentStoreMemory) List(_ context.Context, status AppointmentStatus, limit, offset int) ([]*Appointment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Appointment
	for _, id := range s.order {
		rec := s.records[id]
		if status != "" && rec.Status != status {
			continue
		}
		out := *rec
		matched = append(matched, &out)
	}

	total := len(matched)
	if offset >= total {
		return []*Appointment{}, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *appointmentStoreMemory) MarkCancelled(_ context.Context, requestIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, id := range requestIDs {
		if rec, ok := s.records[id]; ok {
			rec.Status = StatusCancelled
			rec.UpdatedAt = now
		}
	}
	return nil
}
