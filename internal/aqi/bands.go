package aqi

// Level is a machine-readable severity level.
type Level string

const (
	LevelGood               Level = "GOOD"
	LevelModerate           Level = "MODERATE"
	LevelUnhealthySensitive Level = "UNHEALTHY_FOR_SENSITIVE_GROUPS"
	LevelUnhealthy          Level = "UNHEALTHY"
	LevelVeryUnhealthy      Level = "VERY_UNHEALTHY"
	LevelHazardous          Level = "HAZARDOUS"
)

// Band is one severity band of the index scale. A band covers every index up
// to and including Max; the last band is open-ended.
type Band struct {
	Level       Level  `json:"level"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Max         int    `json:"max"`
}

// Bands is ordered by Max ascending. The last entry catches everything above
// the previous band.
var Bands = []Band{
	{
		Level:       LevelGood,
		Label:       "Good",
		Description: "Air quality is satisfactory, and air pollution poses little or no risk.",
		Color:       "green",
		Max:         50,
	},
	{
		Level:       LevelModerate,
		Label:       "Moderate",
		Description: "Air quality is acceptable. However, there may be a risk for some people, particularly those who are unusually sensitive to air pollution.",
		Color:       "yellow",
		Max:         100,
	},
	{
		Level:       LevelUnhealthySensitive,
		Label:       "Unhealthy for Sensitive Groups",
		Description: "Members of sensitive groups may experience health effects. The general public is less likely to be affected.",
		Color:       "orange",
		Max:         150,
	},
	{
		Level:       LevelUnhealthy,
		Label:       "Unhealthy",
		Description: "Some members of the general public may experience health effects; members of sensitive groups may experience more serious health effects.",
		Color:       "red",
		Max:         200,
	},
	{
		Level:       LevelVeryUnhealthy,
		Label:       "Very Unhealthy",
		Description: "Health alert: The risk of health effects is increased for everyone.",
		Color:       "purple",
		Max:         300,
	},
	{
		Level:       LevelHazardous,
		Label:       "Hazardous",
		Description: "Health warning of emergency conditions: everyone is more likely to be affected.",
		Color:       "maroon",
		Max:         MaxIndex,
	},
}

// Describe returns the band an index falls into. Every int maps to exactly
// one band: negatives fall into the first, anything above the scale into the last.
func Describe(index int) Band {
	for _, b := range Bands[:len(Bands)-1] {
		if index <= b.Max {
			return b
		}
	}
	return Bands[len(Bands)-1]
}
