package calib

import "strings"

// Variation selects the systematic shift baked into a table at load time.
type Variation int

const (
	Nominal Variation = iota
	Up
	Down
)

// ParseVariation maps "up" and "down" to their variations; anything else is
// nominal.
func ParseVariation(s string) Variation {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "up":
		return Up
	case "down":
		return Down
	default:
		return Nominal
	}
}

func (v Variation) String() string {
	switch v {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "nominal"
	}
}

// Multiplier is the number of standard deviations the table is shifted by.
func (v Variation) Multiplier() float64 {
	switch v {
	case Up:
		return 1
	case Down:
		return -1
	default:
		return 0
	}
}

// Shift is the sign with which the variation is applied to a cell error.
// Efficiency tables for the trigger are shifted against the error.
type Shift int

const (
	ShiftAdd      Shift = 1
	ShiftSubtract Shift = -1
)

func (s Shift) factor(v Variation) float64 {
	if s == ShiftSubtract {
		return -v.Multiplier()
	}
	return v.Multiplier()
}
