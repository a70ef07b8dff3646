package scheduling

import (
	"errors"
	"testing"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{RequestID: "R1", Duration: 30, PreferredStart: 540, PreferredEnd: 600}, false},
		{"whole day", Request{RequestID: "R1", Duration: DayMinutes, PreferredStart: 0, PreferredEnd: DayMinutes}, false},
		{"missing id", Request{Duration: 30, PreferredStart: 540, PreferredEnd: 600}, true},
		{"zero duration", Request{RequestID: "R1", PreferredStart: 540, PreferredEnd: 600}, true},
		{"longer than a day", Request{RequestID: "R1", Duration: DayMinutes + 1, PreferredStart: 0, PreferredEnd: DayMinutes}, true},
		{"empty range", Request{RequestID: "R1", Duration: 30, PreferredStart: 600, PreferredEnd: 600}, true},
		{"range past midnight", Request{RequestID: "R1", Duration: 30, PreferredStart: 1400, PreferredEnd: 1500}, true},
		{"negative start", Request{RequestID: "R1", Duration: 30, PreferredStart: -10, PreferredEnd: 60}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Errorf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestAppointmentStatus_Valid(t *testing.T) {
	if !StatusScheduled.Valid() || !StatusCancelled.Valid() {
		t.Error("expected known statuses to be valid")
	}
	for _, s := range []AppointmentStatus{"", "scheduled", "Pending"} {
		if s.Valid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}
