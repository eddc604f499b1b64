package sensors

import "math"

// UnitPreferences selects the display units the helm wants to see.
// Zero values fall back to the metric defaults.
type UnitPreferences struct {
	Temperature string `yaml:"temperature" json:"temperature"` // "celsius" or "fahrenheit"
	Depth       string `yaml:"depth" json:"depth"`             // "meters" or "feet"
	Speed       string `yaml:"speed" json:"speed"`             // "knots", "mps" or "kmh"
	Pressure    string `yaml:"pressure" json:"pressure"`       // "kpa" or "psi"
	Volume      string `yaml:"volume" json:"volume"`           // "liters" or "gallons"
}

const (
	kelvinOffset    = 273.15
	metersPerFoot   = 0.3048
	mpsPerKnot      = 0.514444
	pascalsPerPSI   = 6894.757
	litersPerGallon = 3.785411784
)

// Display converts an SI value into the preferred display unit and
// returns the converted value with its unit symbol. Unknown units pass
// through unchanged.
func Display(value float64, siUnit string, prefs UnitPreferences) (float64, string) {
	switch siUnit {
	case "K":
		if prefs.Temperature == "fahrenheit" {
			return (value-kelvinOffset)*9/5 + 32, "°F"
		}
		return value - kelvinOffset, "°C"
	case "m":
		if prefs.Depth == "feet" {
			return value / metersPerFoot, "ft"
		}
		return value, "m"
	case "m/s":
		switch prefs.Speed {
		case "mps":
			return value, "m/s"
		case "kmh":
			return value * 3.6, "km/h"
		default:
			return value / mpsPerKnot, "kn"
		}
	case "Pa":
		if prefs.Pressure == "psi" {
			return value / pascalsPerPSI, "psi"
		}
		return value / 1000, "kPa"
	case "L":
		if prefs.Volume == "gallons" {
			return value / litersPerGallon, "gal"
		}
		return value, "L"
	case "L/h":
		if prefs.Volume == "gallons" {
			return value / litersPerGallon, "gal/h"
		}
		return value, "L/h"
	case "ratio":
		return value * 100, "%"
	case "rad":
		return value * 180 / math.Pi, "°"
	case "rad/s":
		return value * 180 / math.Pi, "°/s"
	default:
		return value, siUnit
	}
}
