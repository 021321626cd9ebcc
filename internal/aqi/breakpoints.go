// Package aqi computes the US EPA Air Quality Index from pollutant concentrations.
package aqi

// MaxIndex is the ceiling of the index scale. Concentrations beyond the last
// published breakpoint are reported at this value.
const MaxIndex = 500

// Pollutant identifies one of the six pollutants that contribute to the index.
type Pollutant string

const (
	PM25 Pollutant = "pm2_5"
	PM10 Pollutant = "pm10"
	O3   Pollutant = "o3"
	NO2  Pollutant = "no2"
	SO2  Pollutant = "so2"
	CO   Pollutant = "co"
)

// Pollutants lists every pollutant in evaluation order.
var Pollutants = []Pollutant{PM25, PM10, O3, NO2, SO2, CO}

// Breakpoint is one linear segment of a pollutant's index curve.
// Concentrations are in the unit the table is published in (see Unit).
type Breakpoint struct {
	ConcLow   float64
	ConcHigh  float64
	IndexLow  int
	IndexHigh int
}

// Table maps each pollutant to its ascending, non-overlapping segments.
type Table map[Pollutant][]Breakpoint

// Unit describes how a µg/m³ reading is converted before table lookup.
type Unit struct {
	Name string
	// Divisor converts µg/m³ into Name. A divisor of 1 means no conversion.
	Divisor float64
}

// Units holds the conversion applied to each pollutant. The upstream API
// reports every pollutant in µg/m³ while the EPA publishes gas breakpoints in
// ppb or ppm (at 25°C, 1 atm).
var Units = map[Pollutant]Unit{
	PM25: {Name: "µg/m³", Divisor: 1},
	PM10: {Name: "µg/m³", Divisor: 1},
	O3:   {Name: "ppb", Divisor: 2.00},
	NO2:  {Name: "ppb", Divisor: 1.88},
	SO2:  {Name: "ppb", Divisor: 2.62},
	CO:   {Name: "ppm", Divisor: 1145},
}

// EPA is the breakpoint table used by Compute.
var EPA = Table{
	PM25: {
		{ConcLow: 0, ConcHigh: 12, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 12.1, ConcHigh: 35.4, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 35.5, ConcHigh: 55.4, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 55.5, ConcHigh: 150.4, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 150.5, ConcHigh: 250.4, IndexLow: 201, IndexHigh: 300},
		{ConcLow: 250.5, ConcHigh: 500.4, IndexLow: 301, IndexHigh: 500},
	},
	PM10: {
		{ConcLow: 0, ConcHigh: 54, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 55, ConcHigh: 154, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 155, ConcHigh: 254, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 255, ConcHigh: 354, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 355, ConcHigh: 424, IndexLow: 201, IndexHigh: 300},
		{ConcLow: 425, ConcHigh: 604, IndexLow: 301, IndexHigh: 500},
	},
	O3: {
		{ConcLow: 0, ConcHigh: 54, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 55, ConcHigh: 70, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 71, ConcHigh: 85, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 86, ConcHigh: 105, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 106, ConcHigh: 200, IndexLow: 201, IndexHigh: 300},
	},
	NO2: {
		{ConcLow: 0, ConcHigh: 53, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 54, ConcHigh: 100, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 101, ConcHigh: 360, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 361, ConcHigh: 649, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 650, ConcHigh: 1249, IndexLow: 201, IndexHigh: 300},
	},
	SO2: {
		{ConcLow: 0, ConcHigh: 35, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 36, ConcHigh: 75, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 76, ConcHigh: 185, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 186, ConcHigh: 304, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 305, ConcHigh: 604, IndexLow: 201, IndexHigh: 300},
	},
	CO: {
		{ConcLow: 0, ConcHigh: 4.4, IndexLow: 0, IndexHigh: 50},
		{ConcLow: 4.5, ConcHigh: 9.4, IndexLow: 51, IndexHigh: 100},
		{ConcLow: 9.5, ConcHigh: 12.4, IndexLow: 101, IndexHigh: 150},
		{ConcLow: 12.5, ConcHigh: 15.4, IndexLow: 151, IndexHigh: 200},
		{ConcLow: 15.5, ConcHigh: 30.4, IndexLow: 201, IndexHigh: 300},
	},
}
