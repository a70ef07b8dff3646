package scheduling

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DayMinutes is the length of the single scheduling day.
const DayMinutes = 24 * 60

// TimeSlot is a half-open interval [Start, End) in minutes since midnight.
type TimeSlot struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s TimeSlot) Duration() int { return s.End - s.Start }

// Valid reports whether 0 <= Start < End <= DayMinutes.
func (s TimeSlot) Valid() bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= DayMinutes
}

// Contains reports whether [start, end) lies entirely inside the slot.
func (s TimeSlot) Contains(start, end int) bool {
	return s.Start <= start && end <= s.End
}

// Overlaps reports whether [start, end) shares at least one minute with the slot.
func (s TimeSlot) Overlaps(start, end int) bool {
	return s.Start < end && start < s.End
}

func (s TimeSlot) String() string {
	return FormatClock(s.Start) + "-" + FormatClock(s.End)
}

// Calendar is a sequence of free slots kept sorted by Start with no two
// entries overlapping (End[i] <= Start[i+1]).
type Calendar []TimeSlot

// NewCalendar validates and sorts the given slots. Touching slots are kept as
// separate entries; overlapping slots are rejected.
func NewCalendar(slots []TimeSlot) (Calendar, error) {
	cal := make(Calendar, len(slots))
	copy(cal, slots)
	for _, s := range cal {
		if !s.Valid() {
			return nil, fmt.Errorf("%w: slot %d-%d must satisfy 0 <= start < end <= %d",
				ErrInvalidInput, s.Start, s.End, DayMinutes)
		}
	}
	sort.SliceStable(cal, func(i, j int) bool { return cal[i].Start < cal[j].Start })
	for i := 1; i < len(cal); i++ {
		if cal[i-1].End > cal[i].Start {
			return nil, fmt.Errorf("%w: slots %s and %s overlap", ErrInvalidInput, cal[i-1], cal[i])
		}
	}
	return cal, nil
}

// Ordered reports whether the calendar is sorted and free of overlaps.
func (c Calendar) Ordered() bool {
	for i := 1; i < len(c); i++ {
		if c[i-1].Start > c[i].Start || c[i-1].End > c[i].Start {
			return false
		}
	}
	return true
}

func (c Calendar) Clone() Calendar {
	if c == nil {
		return nil
	}
	out := make(Calendar, len(c))
	copy(out, c)
	return out
}

// Contains reports whether [start, end) fits entirely inside one slot.
func (c Calendar) Contains(start, end int) bool {
	for _, s := range c {
		if s.Contains(start, end) {
			return true
		}
	}
	return false
}

// Overlaps reports whether [start, end) touches any free minute of the calendar.
func (c Calendar) Overlaps(start, end int) bool {
	for _, s := range c {
		if s.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// LeastFragmentingSlot returns the first slot, in ascending start order, whose
// intersection with [preferredStart, preferredEnd) can hold duration minutes,
// together with the start minute that keeps the larger leftover fragment in
// one piece. The appointment is anchored to the left edge of the intersection
// when the left leftover is not larger than the right one, otherwise to the
// right edge.
func (c Calendar) LeastFragmentingSlot(duration, preferredStart, preferredEnd int) (start, index int, ok bool) {
	if duration <= 0 {
		return 0, -1, false
	}
	for i, s := range c {
		if s.End <= preferredStart || s.Start >= preferredEnd {
			continue
		}
		adjustedStart := max(s.Start, preferredStart)
		adjustedEnd := min(s.End, preferredEnd)
		if adjustedEnd-adjustedStart < duration {
			continue
		}
		left := adjustedStart - s.Start
		right := s.End - adjustedEnd
		if left <= right {
			return adjustedStart, i, true
		}
		return adjustedEnd - duration, i, true
	}
	return 0, -1, false
}

// split replaces the slot at index with the remainders left on either side of
// [start, end). Both remainders bracket the consumed range, so order is kept.
func (c Calendar) split(index, start, end int) Calendar {
	slot := c[index]
	var remainders []TimeSlot
	if slot.Start < start {
		remainders = append(remainders, TimeSlot{Start: slot.Start, End: start})
	}
	if end < slot.End {
		remainders = append(remainders, TimeSlot{Start: end, End: slot.End})
	}
	out := make(Calendar, 0, len(c)-1+len(remainders))
	out = append(out, c[:index]...)
	out = append(out, remainders...)
	out = append(out, c[index+1:]...)
	return out
}

// carve subtracts the booked intervals from the calendar. Bookings are
// expected not to overlap each other.
func (c Calendar) carve(bookings []Booking) Calendar {
	sorted := make([]Booking, len(bookings))
	copy(sorted, bookings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make(Calendar, 0, len(c)+len(sorted))
	for _, s := range c {
		cursor := s.Start
		for _, b := range sorted {
			if !s.Overlaps(b.Start, b.End) {
				continue
			}
			if b.Start > cursor {
				out = append(out, TimeSlot{Start: cursor, End: b.Start})
			}
			cursor = max(cursor, b.End)
		}
		if cursor < s.End {
			out = append(out, TimeSlot{Start: cursor, End: s.End})
		}
	}
	return out
}

// ParseClock converts an "HH:MM" wall-clock string into minutes since
// midnight. "24:00" is accepted as the end of the day.
func ParseClock(value string) (int, error) {
	hh, mm, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found || !isTwoDigits(hh) || !isTwoDigits(mm) {
		return 0, fmt.Errorf("%w: time %q must be formatted HH:MM", ErrInvalidInput, value)
	}
	hours, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid hour in %q", ErrInvalidInput, value)
	}
	minutes, err := strconv.Atoi(mm)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid minute in %q", ErrInvalidInput, value)
	}
	if hours == 24 && minutes == 0 {
		return DayMinutes, nil
	}
	if hours < 0 || hours > 23 || minutes < 0 || minutes > 59 {
		return 0, fmt.Errorf("%w: time %q is out of range", ErrInvalidInput, value)
	}
	return hours*60 + minutes, nil
}

func isTwoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}

// FormatClock converts minutes since midnight back to "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
