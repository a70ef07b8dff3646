package scheduling

import (
	"fmt"
	"sort"
	"sync"
)

// Engine holds the provider registry and the availability index. Provider
// state is guarded by each provider's own lock; mu only guards the registry
// map. No operation holds two provider locks at once.
type Engine struct {
	mu        sync.RWMutex
	providers map[string]*Provider
	index     *AvailabilityIndex
}

// NewEngine creates an engine with empty registries.
func NewEngine() *Engine {
	return &Engine{
		providers: make(map[string]*Provider),
		index:     NewAvailabilityIndex(),
	}
}

// RegisterProvider creates a provider, replacing any provider registered
// under the same id.
func (e *Engine) RegisterProvider(id string, availability []TimeSlot, maxDaily int) (ProviderView, error) {
	if id == "" {
		return ProviderView{}, fmt.Errorf("%w: provider id is required", ErrInvalidInput)
	}
	if maxDaily < 0 {
		return ProviderView{}, fmt.Errorf("%w: max daily appointments must not be negative", ErrInvalidInput)
	}
	cal, err := NewCalendar(availability)
	if err != nil {
		return ProviderView{}, err
	}

	p := newProvider(id, cal, maxDaily)

	e.mu.Lock()
	old := e.providers[id]
	e.providers[id] = p
	e.mu.Unlock()

	if old != nil {
		old.mu.Lock()
		old.retired = true
		e.index.Remove(old)
		old.mu.Unlock()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	e.index.Update(p, p.remaining)
	return p.snapshot(), nil
}

func (e *Engine) lookup(id string) (*Provider, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.providers[id]
	return p, ok
}

// ScheduleAppointment assigns the request to a provider. With a preferred
// provider only that provider is tried. Otherwise providers are tried in
// descending capacity order and the first one with a fitting slot wins.
func (e *Engine) ScheduleAppointment(req Request) (Assignment, error) {
	if err := req.validate(); err != nil {
		return Assignment{}, err
	}

	if req.PreferredProviderID != "" {
		p, ok := e.lookup(req.PreferredProviderID)
		if !ok {
			return Assignment{}, fmt.Errorf("%w: %s", ErrUnknownProvider, req.PreferredProviderID)
		}
		a, ok, err := e.tryProvider(p, req)
		if err != nil {
			return Assignment{}, err
		}
		if !ok {
			return Assignment{}, fmt.Errorf("%w: within preferred range for provider %s", ErrNoSlot, p.id)
		}
		return a, nil
	}

	// Buckets are copied as the walk reaches them. A provider that moves to
	// a bucket the walk already passed is picked up by the next pass; the
	// scan ends once a pass meets no unvisited provider.
	visited := make(map[*Provider]struct{})
	for {
		fresh := false
		for _, capacity := range e.index.Capacities() {
			for _, p := range e.index.Bucket(capacity) {
				if _, done := visited[p]; done {
					continue
				}
				visited[p] = struct{}{}
				fresh = true

				a, ok, err := e.tryProvider(p, req)
				if err != nil {
					return Assignment{}, err
				}
				if ok {
					return a, nil
				}
			}
		}
		if !fresh {
			return Assignment{}, fmt.Errorf("%w: within preferred range", ErrNoSlot)
		}
	}
}

// tryProvider runs the slot search and the commit as one critical section on
// p. A provider that is full or retired by the time the lock is acquired is
// skipped.
func (e *Engine) tryProvider(p *Provider, req Request) (Assignment, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.retired || p.remaining <= 0 {
		return Assignment{}, false, nil
	}
	start, index, ok := p.findLeastFragmentingSlot(req.Duration, req.PreferredStart, req.PreferredEnd)
	if !ok {
		return Assignment{}, false, nil
	}
	b, err := p.schedule(req.RequestID, start, req.Duration, index)
	if err != nil {
		return Assignment{}, false, err
	}
	e.index.Update(p, p.remaining)

	return Assignment{
		RequestID:  b.RequestID,
		ProviderID: p.id,
		Start:      b.Start,
		End:        b.End,
	}, true, nil
}

// ReviseAvailability replaces a provider's availability and returns the
// request ids of the bookings that no longer fit. The caller marks them
// cancelled in its appointment store.
func (e *Engine) ReviseAvailability(providerID string, availability []TimeSlot) ([]string, error) {
	cal, err := NewCalendar(availability)
	if err != nil {
		return nil, err
	}

	for {
		p, ok := e.lookup(providerID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerID)
		}

		p.mu.Lock()
		if p.retired {
			// replaced between lookup and lock; revise the new registration
			p.mu.Unlock()
			continue
		}
		cancelled := p.revise(cal)
		e.index.Update(p, p.remaining)
		p.mu.Unlock()
		return cancelled, nil
	}
}

// ReleaseAppointment hands a booking back to the provider. It is used to undo
// an assignment the caller failed to record.
func (e *Engine) ReleaseAppointment(providerID, requestID string) bool {
	p, ok := e.lookup(providerID)
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retired || !p.release(requestID) {
		return false
	}
	e.index.Update(p, p.remaining)
	return true
}

// Holds reports whether the provider currently registered under providerID
// still holds the booking for requestID.
func (e *Engine) Holds(providerID, requestID string) bool {
	p, ok := e.lookup(providerID)
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.retired {
		return false
	}
	for _, b := range p.booked {
		if b.RequestID == requestID {
			return true
		}
	}
	return false
}

// Provider returns a snapshot of one provider.
func (e *Engine) Provider(id string) (ProviderView, error) {
	p, ok := e.lookup(id)
	if !ok {
		return ProviderView{}, fmt.Errorf("%w: %s", ErrUnknownProvider, id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(), nil
}

// Providers returns snapshots of all registered providers sorted by id.
func (e *Engine) Providers() []ProviderView {
	e.mu.RLock()
	providers := make([]*Provider, 0, len(e.providers))
	for _, p := range e.providers {
		providers = append(providers, p)
	}
	e.mu.RUnlock()

	sort.Slice(providers, func(i, j int) bool { return providers[i].id < providers[j].id })

	views := make([]ProviderView, 0, len(providers))
	for _, p := range providers {
		p.mu.Lock()
		views = append(views, p.snapshot())
		p.mu.Unlock()
	}
	return views
}

// Ranking returns the ids of schedulable providers in the order an
// unconstrained request would try them.
func (e *Engine) Ranking() []string {
	providers := e.index.MostAvailable()
	ids := make([]string, 0, len(providers))
	for _, p := range providers {
		ids = append(ids, p.id)
	}
	return ids
}
