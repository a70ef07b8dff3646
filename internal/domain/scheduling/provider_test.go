package scheduling

import (
	"errors"
	"reflect"
	"testing"
)

func newTestProvider(t *testing.T, maxDaily int, slots ...TimeSlot) *Provider {
	t.Helper()
	cal, err := NewCalendar(slots)
	if err != nil {
		t.Fatalf("NewCalendar: %v", err)
	}
	return newProvider("p-test", cal, maxDaily)
}

func TestProvider_ScheduleSplitsSlot(t *testing.T) {
	p := newTestProvider(t, 3, TimeSlot{Start: 540, End: 720})

	b, err := p.schedule("r1", 600, 30, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != (Booking{RequestID: "r1", Start: 600, End: 630}) {
		t.Errorf("unexpected booking %+v", b)
	}
	want := Calendar{{Start: 540, End: 600}, {Start: 630, End: 720}}
	if !reflect.DeepEqual(p.free, want) {
		t.Errorf("free = %v, want %v", p.free, want)
	}
	if p.remaining != 2 {
		t.Errorf("remaining = %d, want 2", p.remaining)
	}
	if len(p.availability) != 1 || p.availability[0] != (TimeSlot{Start: 540, End: 720}) {
		t.Errorf("declared availability must not change, got %v", p.availability)
	}
}

func TestProvider_ScheduleConsumesWholeSlot(t *testing.T) {
	p := newTestProvider(t, 2, TimeSlot{Start: 540, End: 570}, TimeSlot{Start: 600, End: 660})

	if _, err := p.schedule("r1", 540, 30, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Calendar{{Start: 600, End: 660}}
	if !reflect.DeepEqual(p.free, want) {
		t.Errorf("free = %v, want %v", p.free, want)
	}
}

func TestProvider_ScheduleCapacityExhausted(t *testing.T) {
	p := newTestProvider(t, 0, TimeSlot{Start: 540, End: 600})

	_, err := p.schedule("r1", 540, 30, 0)
	if !errors.Is(err, ErrCapacityExhausted) {
		t.Fatalf("expected ErrCapacityExhausted, got %v", err)
	}
	if len(p.booked) != 0 || len(p.free) != 1 || p.remaining != 0 {
		t.Error("rejected schedule must leave the provider untouched")
	}
}

func TestProvider_ScheduleStaleIndex(t *testing.T) {
	p := newTestProvider(t, 2, TimeSlot{Start: 540, End: 600})

	for _, tc := range []struct {
		name  string
		start int
		index int
	}{
		{"index out of range", 540, 3},
		{"negative index", 540, -1},
		{"interval outside slot", 580, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.schedule("r1", tc.start, 30, tc.index)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if p.remaining != 2 || len(p.booked) != 0 {
				t.Error("rejected schedule must leave the provider untouched")
			}
		})
	}
}

func TestProvider_ScheduleDuplicateRequestID(t *testing.T) {
	p := newTestProvider(t, 3, TimeSlot{Start: 540, End: 720})
	if _, err := p.schedule("r1", 540, 30, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := p.schedule("r1", 570, 30, 0)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}
	if p.remaining != 2 {
		t.Errorf("remaining = %d, want 2", p.remaining)
	}
}

// ---------- Revision ----------

func TestProvider_ReviseCancelsUncontained(t *testing.T) {
	p := newTestProvider(t, 3, TimeSlot{Start: 540, End: 720})
	mustSchedule(t, p, "keep", 540, 30)
	mustSchedule(t, p, "drop", 600, 30)

	cancelled := p.revise(Calendar{{Start: 540, End: 600}, {Start: 660, End: 720}})

	if !reflect.DeepEqual(cancelled, []string{"drop"}) {
		t.Errorf("cancelled = %v, want [drop]", cancelled)
	}
	if p.remaining != 2 {
		t.Errorf("remaining = %d, want 2", p.remaining)
	}
	want := Calendar{{Start: 570, End: 600}, {Start: 660, End: 720}}
	if !reflect.DeepEqual(p.free, want) {
		t.Errorf("free = %v, want %v", p.free, want)
	}
}

func TestProvider_ReviseWithCurrentAvailabilityIsIdempotent(t *testing.T) {
	p := newTestProvider(t, 3, TimeSlot{Start: 540, End: 720})
	mustSchedule(t, p, "a", 540, 30)
	mustSchedule(t, p, "b", 660, 60)
	freeBefore := p.free.Clone()

	cancelled := p.revise(p.availability.Clone())

	if len(cancelled) != 0 {
		t.Errorf("expected no cancellations, got %v", cancelled)
	}
	if !reflect.DeepEqual(p.free, freeBefore) {
		t.Errorf("free = %v, want %v", p.free, freeBefore)
	}
	if p.remaining != 1 {
		t.Errorf("remaining = %d, want 1", p.remaining)
	}
}

func TestProvider_ReleaseRestoresSlot(t *testing.T) {
	p := newTestProvider(t, 2, TimeSlot{Start: 540, End: 600})
	mustSchedule(t, p, "r1", 540, 30)

	if !p.release("r1") {
		t.Fatal("expected release to succeed")
	}
	if p.release("r1") {
		t.Error("second release must report false")
	}
	want := Calendar{{Start: 540, End: 600}}
	if !reflect.DeepEqual(p.free, want) {
		t.Errorf("free = %v, want %v", p.free, want)
	}
	if p.remaining != 2 {
		t.Errorf("remaining = %d, want 2", p.remaining)
	}
}

func TestProvider_SnapshotIsCopy(t *testing.T) {
	p := newTestProvider(t, 2, TimeSlot{Start: 540, End: 600})
	mustSchedule(t, p, "r1", 540, 30)

	v := p.snapshot()
	v.Free[0].Start = 0
	v.Scheduled[0].RequestID = "changed"

	if p.free[0].Start != 570 || p.booked[0].RequestID != "r1" {
		t.Error("mutating a snapshot must not change the provider")
	}
}

func mustSchedule(t *testing.T, p *Provider, id string, start, duration int) {
	t.Helper()
	_, index, ok := p.findLeastFragmentingSlot(duration, start, start+duration)
	if !ok {
		t.Fatalf("no slot for %s at %d", id, start)
	}
	if _, err := p.schedule(id, start, duration, index); err != nil {
		t.Fatalf("schedule %s: %v", id, err)
	}
}
