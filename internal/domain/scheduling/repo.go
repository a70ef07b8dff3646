package scheduling

import (
	"context"
)

// AppointmentStore keeps appointment records outside the scheduling engine.
// The engine never reads it; the service writes assignments and
// cancellations to it.
type AppointmentStore interface {
	// Save inserts or replaces the record keyed by RequestID.
	Save(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, requestID string) (*Appointment, error)
	// List returns records in insertion order. An empty status matches all.
	List(ctx context.Context, status AppointmentStatus, limit, offset int) ([]*Appointment, int, error)
	MarkCancelled(ctx context.Context, requestIDs []string) error
}
