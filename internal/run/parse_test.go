package run

import "testing"

// TestParseReps verifies that any text yields a non-negative count.
func TestParseReps(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 0},
		{"12", 12},
		{" 1 2 ", 12},
		{"10 reps", 10},
		{"-5", 5},
		{"007", 7},
		{"０８", 8},
		{"3.5", 35},
		{"99999999999999999999999", MaxReps},
		{"10000", MaxReps},
		{"9999", 9999},
	}
	for _, tt := range tests {
		if got := ParseReps(tt.in); got != tt.want {
			t.Errorf("ParseReps(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// TestParseLoad verifies decimal comma and point handling.
func TestParseLoad(t *testing.T) {
	tests := []struct {
		in   string
		want *float64
	}{
		{"", nil},
		{"kg", nil},
		{",", nil},
		{"20", f64(20)},
		{"12,5", f64(12.5)},
		{"12.5 kg", f64(12.5)},
		{"1.2.3", f64(1.23)},
		{",5", f64(0.5)},
		{"２０", f64(20)},
	}
	for _, tt := range tests {
		got := ParseLoad(tt.in)
		switch {
		case got == nil && tt.want == nil:
		case got == nil || tt.want == nil:
			t.Errorf("ParseLoad(%q) = %v, want %v", tt.in, got, tt.want)
		case *got != *tt.want:
			t.Errorf("ParseLoad(%q) = %v, want %v", tt.in, *got, *tt.want)
		}
	}
}

func f64(v float64) *float64 { return &v }
