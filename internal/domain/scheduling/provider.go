package scheduling

import (
	"fmt"
	"sync"
)

// Provider owns one provider's calendar, capacity counter and bookings.
// Every read-then-write sequence on these fields must hold mu; the methods
// below assume the caller already does.
type Provider struct {
	mu sync.Mutex

	id           string
	availability Calendar // as registered or last revised
	free         Calendar // availability minus booked intervals
	maxDaily     int
	booked       []Booking
	remaining    int

	// retired is set when a re-registration replaced this provider. A scan
	// still holding the old reference skips it.
	retired bool
}

func newProvider(id string, availability Calendar, maxDaily int) *Provider {
	return &Provider{
		id:           id,
		availability: availability,
		free:         availability.Clone(),
		maxDaily:     maxDaily,
		remaining:    maxDaily,
	}
}

func (p *Provider) ID() string { return p.id }

// findLeastFragmentingSlot searches the free calendar; see Calendar.LeastFragmentingSlot.
func (p *Provider) findLeastFragmentingSlot(duration, preferredStart, preferredEnd int) (int, int, bool) {
	return p.free.LeastFragmentingSlot(duration, preferredStart, preferredEnd)
}

// schedule commits [start, start+duration) out of the free slot at index.
// A rejected call leaves the provider untouched.
func (p *Provider) schedule(requestID string, start, duration, index int) (Booking, error) {
	if p.remaining <= 0 {
		return Booking{}, fmt.Errorf("%w: provider %s", ErrCapacityExhausted, p.id)
	}
	end := start + duration
	if index < 0 || index >= len(p.free) || !p.free[index].Contains(start, end) {
		return Booking{}, fmt.Errorf("%w: slot %d of provider %s cannot hold %s-%s",
			ErrInvalidInput, index, p.id, FormatClock(start), FormatClock(end))
	}
	for _, b := range p.booked {
		if b.RequestID == requestID {
			return Booking{}, fmt.Errorf("%w: %s on provider %s", ErrDuplicateRequest, requestID, p.id)
		}
	}

	b := Booking{RequestID: requestID, Start: start, End: end}
	p.booked = append(p.booked, b)
	p.remaining--
	p.free = p.free.split(index, start, end)
	return b, nil
}

// revise replaces the availability and drops every booking that no longer
// fits inside one of its slots. The ids of dropped bookings are returned.
func (p *Provider) revise(availability Calendar) []string {
	var kept []Booking
	var cancelled []string
	for _, b := range p.booked {
		if availability.Contains(b.Start, b.End) {
			kept = append(kept, b)
			continue
		}
		cancelled = append(cancelled, b.RequestID)
	}

	p.availability = availability
	p.booked = kept
	p.free = availability.carve(kept)
	p.remaining = p.maxDaily - len(kept)
	return cancelled
}

// release removes a booking and returns its interval to the free calendar.
func (p *Provider) release(requestID string) bool {
	for i, b := range p.booked {
		if b.RequestID != requestID {
			continue
		}
		p.booked = append(p.booked[:i:i], p.booked[i+1:]...)
		p.free = p.availability.carve(p.booked)
		p.remaining = p.maxDaily - len(p.booked)
		return true
	}
	return false
}

func (p *Provider) snapshot() ProviderView {
	scheduled := make([]Booking, len(p.booked))
	copy(scheduled, p.booked)
	return ProviderView{
		ID:                   p.id,
		Availability:         p.availability.Clone(),
		Free:                 p.free.Clone(),
		MaxDailyAppointments: p.maxDaily,
		RemainingCapacity:    p.remaining,
		Scheduled:            scheduled,
	}
}
