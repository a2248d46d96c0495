package units

import (
	"math"
	"testing"
)

func TestConvertDistance(t *testing.T) {
	tests := []struct {
		name       string
		distanceCM float64
		units      string
		expected   float64
	}{
		{"100 cm to m", 100, M, 1.0},
		{"100 cm to mm", 100, MM, 1000},
		{"100 cm to cm", 100, CM, 100},
		{"254 cm to in", 254, IN, 100},
		{"30.48 cm to ft", 30.48, FEET, 1},
		{"unknown units default to cm", 42, "furlong", 42},
		{"0 cm to ft", 0, FEET, 0},
		{"max range 800 cm to ft", 800, FEET, 26.2467},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertDistance(tt.distanceCM, tt.units)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ConvertDistance(%f, %s) = %f, want %f", tt.distanceCM, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mm", MM, true},
		{"valid cm", CM, true},
		{"valid m", M, true},
		{"valid in", IN, true},
		{"valid ft", FEET, true},
		{"invalid unit", "yd", false},
		{"empty string", "", false},
		{"case sensitive", "CM", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValid(tt.unit)
			if result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "mm, cm, m, in, ft" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}

func TestPrecision(t *testing.T) {
	for unit, want := range map[string]int{CM: 0, MM: 0, M: 2, IN: 1, FEET: 1} {
		if got := Precision(unit); got != want {
			t.Errorf("Precision(%s) = %d, want %d", unit, got, want)
		}
	}
}
