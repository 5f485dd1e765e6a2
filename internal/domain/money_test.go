package domain

import (
	"errors"
	"testing"
)

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{50000, "500"},
		{49999, "499.99"},
		{1250, "12.5"},
		{5, "0.05"},
		{0, "0"},
		{-1050, "-10.5"},
	}

	for _, tt := range tests {
		if got := FormatAmount(tt.minor); got != tt.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tt.minor, got, tt.want)
		}
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "500", want: 50000},
		{raw: "500.0", want: 50000},
		{raw: "500.00", want: 50000},
		{raw: "499.99", want: 49999},
		{raw: "1,000.50", want: 100050},
		{raw: " 12.5 ", want: 1250},
		{raw: "10.000", want: 1000},
		{raw: "10.001", wantErr: true},
		{raw: "", wantErr: true},
		{raw: "-5", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "5.", wantErr: true},
		{raw: ".5", wantErr: true},
		{raw: "1e3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAmount) {
					t.Fatalf("expected ErrInvalidAmount, got %v (value %d)", err, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseAmount(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, minor := range []int64{0, 1, 10, 99, 100, 12345, 50000, 999999} {
		parsed, err := ParseAmount(FormatAmount(minor))
		if err != nil {
			t.Fatalf("parse %d: %v", minor, err)
		}
		if parsed != minor {
			t.Fatalf("round trip %d -> %d", minor, parsed)
		}
	}
}
