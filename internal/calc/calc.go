// Package calc holds the pure conversions from raw vibrating-wire readings to
// engineering values.
package calc

import (
	"fmt"
	"strconv"
	"time"
)

const (
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
)

// Display precisions used by the readout screens and the CLI.
const (
	FrequencyDecimals   = 2
	TemperatureDecimals = 1
	DigitsDecimals      = 2
	LoadDecimals        = 2
	GaugeFactorDecimals = 4
)

// FinalLoad converts the frequency delta from the calibration baseline into
// load units using the sensor's gauge factor.
func FinalLoad(currentReading, initialReading, gaugeFactor float64) float64 {
	return (currentReading - initialReading) * gaugeFactor
}

// Digits returns f²/1000.
func Digits(currentReading float64) float64 {
	return (currentReading * currentReading) / 1000
}

func CelsiusToFahrenheit(celsius float64) float64 {
	return (celsius*9)/5 + 32
}

func FahrenheitToCelsius(fahrenheit float64) float64 {
	return ((fahrenheit - 32) * 5) / 9
}

// DisplayTemperature converts a device temperature (always Celsius) into the
// preferred unit. Unknown units fall back to Celsius.
func DisplayTemperature(celsius float64, unit string) float64 {
	if unit == UnitFahrenheit {
		return CelsiusToFahrenheit(celsius)
	}
	return celsius
}

// FormatNumber renders value with a fixed number of decimals.
func FormatNumber(value float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return strconv.FormatFloat(value, 'f', decimals, 64)
}

// FormatTimestamp renders t in local time as "2006-01-02 15:04:05".
func FormatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

// FormatTemperature renders a Celsius temperature in the preferred unit with
// its unit suffix.
func FormatTemperature(celsius float64, unit string) string {
	if unit != UnitFahrenheit {
		unit = UnitCelsius
	}
	return fmt.Sprintf("%s °%s", FormatNumber(DisplayTemperature(celsius, unit), TemperatureDecimals), unit)
}
