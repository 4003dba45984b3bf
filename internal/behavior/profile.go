// Package behavior holds the timing profiles used to vary interaction
// patterns across submit attempts, and the injectable random and clock
// sources every delay is drawn from.
package behavior

import "time"

// Range is an inclusive delay interval.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Ms builds a Range from millisecond bounds.
func Ms(min, max int) Range {
	return Range{Min: time.Duration(min) * time.Millisecond, Max: time.Duration(max) * time.Millisecond}
}

// Contains reports whether d lies within the range.
func (r Range) Contains(d time.Duration) bool {
	return d >= r.Min && d <= r.Max
}

// Profile is a named bucket of interaction timings.
type Profile struct {
	Name string

	// MouseSpeed scales the number of cursor waypoints; higher is faster.
	MouseSpeed float64

	Click  Range
	Hover  Range
	Scroll Range
	Typing Range
	Dwell  Range

	// VerifyFields re-reads typed values before submitting.
	VerifyFields bool
	// RandomizeOrder lets the synthesizer shuffle independent steps.
	RandomizeOrder bool
	// ScrollBefore scrolls around the page before approaching a control.
	ScrollBefore bool
	// ExtraHover adds a second hover pass before clicking.
	ExtraHover bool
}

// attemptsPerProfile is the width of each profile bucket. A default
// budget of 10 attempts walks through every profile once.
const attemptsPerProfile = 2

var profiles = []Profile{
	{
		Name:         "careful_reading",
		MouseSpeed:   0.5,
		Click:        Ms(600, 1200),
		Hover:        Ms(300, 600),
		Scroll:       Ms(400, 900),
		Typing:       Ms(90, 180),
		Dwell:        Ms(800, 1600),
		VerifyFields: true,
	},
	{
		Name:         "normal_reading",
		MouseSpeed:   0.8,
		Click:        Ms(400, 800),
		Hover:        Ms(200, 400),
		Scroll:       Ms(300, 700),
		Typing:       Ms(70, 150),
		Dwell:        Ms(500, 1200),
		VerifyFields: true,
	},
	{
		Name:         "verification",
		MouseSpeed:   1.0,
		Click:        Ms(300, 600),
		Hover:        Ms(150, 300),
		Scroll:       Ms(250, 600),
		Typing:       Ms(60, 130),
		Dwell:        Ms(400, 900),
		ScrollBefore: true,
		ExtraHover:   true,
	},
	{
		Name:           "focused_fast",
		MouseSpeed:     1.2,
		Click:          Ms(200, 500),
		Hover:          Ms(50, 150),
		Scroll:         Ms(150, 400),
		Typing:         Ms(50, 110),
		Dwell:          Ms(250, 600),
		RandomizeOrder: true,
	},
}

var variedProfile = Profile{
	Name:           "varied",
	MouseSpeed:     0.9,
	Click:          Ms(250, 900),
	Hover:          Ms(100, 500),
	Scroll:         Ms(200, 800),
	Typing:         Ms(50, 150),
	Dwell:          Ms(300, 1400),
	ScrollBefore:   true,
	RandomizeOrder: true,
}

// ForAttempt maps an attempt number to its profile. The mapping is pure:
// the same attempt always yields the same bucket. Attempts below 1 are
// treated as the first attempt.
func ForAttempt(attempt int) Profile {
	if attempt < 1 {
		attempt = 1
	}
	if i := (attempt - 1) / attemptsPerProfile; i < len(profiles) {
		return profiles[i]
	}
	return variedProfile
}

// Default is the profile used outside the retry loop, for login and extraction.
func Default() Profile {
	return ForAttempt(1)
}
