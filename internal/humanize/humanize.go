// Package humanize turns single page operations into sequences of small,
// randomly timed steps: curved cursor paths, per-character typing with
// occasional corrections, scrolling and reading pauses.
package humanize

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/sirupsen/logrus"
)

// ScrollPattern selects how Scroll moves the page.
type ScrollPattern int

const (
	// ScrollExplore scrolls down a little and partly back, like skimming.
	ScrollExplore ScrollPattern = iota
	// ScrollToTop returns to the top of the page.
	ScrollToTop
	// ScrollFull walks the whole page down and back to the top.
	ScrollFull
)

func (p ScrollPattern) String() string {
	switch p {
	case ScrollExplore:
		return "explore"
	case ScrollToTop:
		return "top"
	case ScrollFull:
		return "full"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

const (
	typoChance = 0.05
	typoKeys   = "qwertyuiopasdfghjklzxcvbnm"
	minSteps   = 10
	maxSteps   = 40
)

var (
	stepDelay        = behavior.Ms(8, 24)
	punctuationPause = behavior.Ms(100, 300)
)

// Synthesizer drives a browser.Driver with human-like timing. It is not
// safe for concurrent use; a session owns exactly one.
type Synthesizer struct {
	driver  browser.Driver
	src     behavior.Source
	logger  *logrus.Entry
	profile behavior.Profile
	cursor  browser.Point
}

// New creates a Synthesizer using the default profile.
func New(driver browser.Driver, src behavior.Source, logger *logrus.Entry) *Synthesizer {
	return &Synthesizer{
		driver:  driver,
		src:     src,
		logger:  logger,
		profile: behavior.Default(),
		cursor:  browser.Point{X: 200, Y: 200},
	}
}

// UseProfile switches the timing bucket for subsequent operations.
func (s *Synthesizer) UseProfile(p behavior.Profile) {
	s.profile = p
}

// Profile returns the active timing bucket.
func (s *Synthesizer) Profile() behavior.Profile {
	return s.profile
}

// Cursor returns the last position the cursor was moved to.
func (s *Synthesizer) Cursor() browser.Point {
	return s.cursor
}

// MoveTo moves the cursor along a curved path to a jittered point inside
// the element and returns that point.
func (s *Synthesizer) MoveTo(ctx context.Context, selector string) (browser.Point, error) {
	box, err := s.driver.ElementBox(ctx, selector)
	if err != nil {
		return browser.Point{}, fmt.Errorf("locate %s: %w", selector, err)
	}

	target := box.Center()
	target.X += s.src.Jitter(box.Width * 0.3)
	target.Y += s.src.Jitter(box.Height * 0.3)

	if err := s.moveAlong(ctx, s.path(s.cursor, target)); err != nil {
		return browser.Point{}, err
	}
	return target, nil
}

func (s *Synthesizer) moveAlong(ctx context.Context, points []browser.Point) error {
	scale := 1 / s.profile.MouseSpeed
	delay := behavior.Range{
		Min: scaleDuration(stepDelay.Min, scale),
		Max: scaleDuration(stepDelay.Max, scale),
	}
	for _, p := range points {
		if err := s.driver.MouseMove(ctx, p); err != nil {
			return fmt.Errorf("mouse move: %w", err)
		}
		s.cursor = p
		if err := s.src.Pause(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// path returns the waypoints of a cubic Bézier curve from a to b with two
// randomly displaced control points. The last waypoint is exactly b.
func (s *Synthesizer) path(a, b browser.Point) []browser.Point {
	steps := int(math.Round(25 / s.profile.MouseSpeed))
	if steps < minSteps {
		steps = minSteps
	}
	if steps > maxSteps {
		steps = maxSteps
	}

	dist := math.Hypot(b.X-a.X, b.Y-a.Y)
	spread := math.Max(dist*0.2, 20)
	c1 := browser.Point{
		X: a.X + (b.X-a.X)*0.3 + s.src.Jitter(spread),
		Y: a.Y + (b.Y-a.Y)*0.3 + s.src.Jitter(spread),
	}
	c2 := browser.Point{
		X: a.X + (b.X-a.X)*0.7 + s.src.Jitter(spread),
		Y: a.Y + (b.Y-a.Y)*0.7 + s.src.Jitter(spread),
	}

	points := make([]browser.Point, 0, steps)
	for i := 1; i <= steps; i++ {
		t := float64(i) / float64(steps)
		u := 1 - t
		points = append(points, browser.Point{
			X: u*u*u*a.X + 3*u*u*t*c1.X + 3*u*t*t*c2.X + t*t*t*b.X,
			Y: u*u*u*a.Y + 3*u*u*t*c1.Y + 3*u*t*t*c2.Y + t*t*t*b.Y,
		})
	}
	points[len(points)-1] = b
	return points
}

// Click approaches the element, hovers and clicks it.
func (s *Synthesizer) Click(ctx context.Context, selector string) error {
	if s.profile.ScrollBefore {
		if err := s.Scroll(ctx, ScrollExplore); err != nil {
			return err
		}
	}

	target, err := s.MoveTo(ctx, selector)
	if err != nil {
		return err
	}
	if err := s.src.Pause(ctx, s.profile.Hover); err != nil {
		return err
	}

	if s.profile.ExtraHover {
		nudge := browser.Point{X: target.X + s.src.Jitter(3), Y: target.Y + s.src.Jitter(3)}
		if err := s.driver.MouseMove(ctx, nudge); err != nil {
			return fmt.Errorf("mouse move: %w", err)
		}
		s.cursor = nudge
		target = nudge
		if err := s.src.Pause(ctx, s.profile.Hover); err != nil {
			return err
		}
	}

	if err := s.driver.MouseClick(ctx, target); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return s.src.Pause(ctx, s.profile.Click)
}

// Type focuses the field, clears it and types text one character at a
// time. Occasionally a wrong key is typed and corrected with Backspace.
func (s *Synthesizer) Type(ctx context.Context, selector, text string) error {
	if err := s.Click(ctx, selector); err != nil {
		return err
	}
	if err := s.driver.SetValue(ctx, selector, ""); err != nil {
		return fmt.Errorf("clear %s: %w", selector, err)
	}

	for _, r := range text {
		if s.src.Chance(typoChance) {
			wrong := string(typoKeys[s.src.Intn(len(typoKeys))])
			if err := s.key(ctx, selector, wrong); err != nil {
				return err
			}
			if err := s.key(ctx, selector, browser.KeyBackspace); err != nil {
				return err
			}
		}

		if err := s.key(ctx, selector, string(r)); err != nil {
			return err
		}
		if r == ' ' || r == '.' || r == ',' {
			if err := s.src.Pause(ctx, punctuationPause); err != nil {
				return err
			}
		}
	}

	if s.profile.VerifyFields {
		return s.verify(ctx, selector, text)
	}
	return nil
}

func (s *Synthesizer) key(ctx context.Context, selector, k string) error {
	if err := s.driver.SendKeys(ctx, selector, k); err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return s.src.Pause(ctx, s.profile.Typing)
}

// verify re-reads the field and sets it directly when the typed value was
// mangled by the page.
func (s *Synthesizer) verify(ctx context.Context, selector, want string) error {
	var got string
	script := fmt.Sprintf(`(() => { const el = document.querySelector(%s); return el ? el.value : ''; })()`, browser.JSString(selector))
	if err := s.driver.Evaluate(ctx, script, &got); err != nil {
		return fmt.Errorf("verify %s: %w", selector, err)
	}
	if got == want {
		return nil
	}

	s.logger.WithField("selector", selector).Warn("Typed value mismatch, setting value directly")
	return s.driver.SetValue(ctx, selector, want)
}

// Scroll moves the page according to pattern.
func (s *Synthesizer) Scroll(ctx context.Context, pattern ScrollPattern) error {
	switch pattern {
	case ScrollExplore:
		down := 2 + s.src.Intn(3)
		for i := 0; i < down; i++ {
			if err := s.scrollBy(ctx, 100+s.src.Intn(200)); err != nil {
				return err
			}
		}
		return s.scrollBy(ctx, -(50 + s.src.Intn(100)))

	case ScrollToTop:
		if err := s.driver.Evaluate(ctx, `window.scrollTo({ top: 0, behavior: 'smooth' })`, nil); err != nil {
			return fmt.Errorf("scroll: %w", err)
		}
		return s.src.Pause(ctx, s.profile.Scroll)

	case ScrollFull:
		for i := 1; i <= 4; i++ {
			script := fmt.Sprintf(`window.scrollTo({ top: document.body.scrollHeight * %d / 4, behavior: 'smooth' })`, i)
			if err := s.driver.Evaluate(ctx, script, nil); err != nil {
				return fmt.Errorf("scroll: %w", err)
			}
			if err := s.src.Pause(ctx, s.profile.Scroll); err != nil {
				return err
			}
		}
		return s.Scroll(ctx, ScrollToTop)

	default:
		return fmt.Errorf("unknown scroll pattern %s", pattern)
	}
}

func (s *Synthesizer) scrollBy(ctx context.Context, dy int) error {
	script := fmt.Sprintf(`window.scrollBy({ top: %d, behavior: 'smooth' })`, dy)
	if err := s.driver.Evaluate(ctx, script, nil); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return s.src.Pause(ctx, s.profile.Scroll)
}

// Dwell pauses as if reading the page.
func (s *Synthesizer) Dwell(ctx context.Context) error {
	return s.src.Pause(ctx, s.profile.Dwell)
}

// Wander makes a few small cursor movements around the current position.
func (s *Synthesizer) Wander(ctx context.Context) error {
	moves := 2 + s.src.Intn(3)
	for i := 0; i < moves; i++ {
		to := browser.Point{
			X: math.Max(0, s.cursor.X+s.src.Jitter(120)),
			Y: math.Max(0, s.cursor.Y+s.src.Jitter(80)),
		}
		if err := s.moveAlong(ctx, s.path(s.cursor, to)); err != nil {
			return err
		}
		if err := s.src.Pause(ctx, s.profile.Hover); err != nil {
			return err
		}
	}
	return nil
}

func scaleDuration(d time.Duration, factor float64) time.Duration {
	return time.Duration(float64(d) * factor)
}
