// Package units provides shared constants and validation for distance units
package units

import "strings"

// Unit constants
const (
	MM   = "mm"
	CM   = "cm"
	M    = "m"
	IN   = "in"
	FEET = "ft"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MM, CM, M, IN, FEET}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return strings.Join(ValidUnits, ", ")
}

// ConvertDistance converts a distance from centimetres to the target units.
// The sensor and the database report distances in cm.
func ConvertDistance(distanceCM float64, targetUnits string) float64 {
	switch targetUnits {
	case MM:
		return distanceCM * 10
	case M:
		return distanceCM / 100
	case IN:
		return distanceCM / 2.54
	case FEET:
		return distanceCM / 30.48
	default:
		return distanceCM
	}
}

// Precision is the number of decimals worth printing for a distance in
// unit, given the sensor's 1 cm resolution.
func Precision(unit string) int {
	switch unit {
	case M:
		return 2
	case IN, FEET:
		return 1
	default:
		return 0
	}
}
