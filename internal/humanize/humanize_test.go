package humanize

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nexconsult/sri-invoices/internal/behavior"
	"github.com/nexconsult/sri-invoices/internal/browser"
	"github.com/nexconsult/sri-invoices/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDriver struct {
	browser.Driver

	box     browser.Box
	moves   []browser.Point
	clicks  []browser.Point
	keys    []string
	values  map[string]string
	scripts []string
	mangle  bool
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{
		box:    browser.Box{X: 500, Y: 300, Width: 120, Height: 30},
		values: map[string]string{},
	}
}

func (d *recordingDriver) ElementBox(context.Context, string) (browser.Box, error) {
	return d.box, nil
}

func (d *recordingDriver) MouseMove(_ context.Context, p browser.Point) error {
	d.moves = append(d.moves, p)
	return nil
}

func (d *recordingDriver) MouseClick(_ context.Context, p browser.Point) error {
	d.clicks = append(d.clicks, p)
	return nil
}

func (d *recordingDriver) SetValue(_ context.Context, sel, v string) error {
	d.values[sel] = v
	return nil
}

func (d *recordingDriver) SendKeys(_ context.Context, sel, k string) error {
	d.keys = append(d.keys, k)
	if k == browser.KeyBackspace {
		v := d.values[sel]
		if v != "" {
			d.values[sel] = v[:len(v)-1]
		}
		return nil
	}
	d.values[sel] += k
	return nil
}

func (d *recordingDriver) Evaluate(_ context.Context, script string, res interface{}) error {
	d.scripts = append(d.scripts, script)
	if out, ok := res.(*string); ok {
		for sel, v := range d.values {
			if strings.Contains(script, browser.JSString(sel)) {
				if d.mangle {
					v += "?"
				}
				*out = v
			}
		}
	}
	return nil
}

func newSynth(d browser.Driver, r behavior.Rand) (*Synthesizer, *behavior.RecordingClock) {
	clock := behavior.NewRecordingClock(time.Now())
	s := New(d, behavior.Source{Rand: r, Clock: clock}, logger.Discard().WithField("test", true))
	return s, clock
}

func TestPathEndsAtTargetWithBoundedSteps(t *testing.T) {
	s, _ := newSynth(newRecordingDriver(), behavior.NewRand(1))
	from, to := browser.Point{X: 10, Y: 10}, browser.Point{X: 600, Y: 400}

	for _, speed := range []float64{0.3, 0.5, 0.9, 1.2, 5} {
		s.UseProfile(behavior.Profile{MouseSpeed: speed})
		points := s.path(from, to)
		assert.GreaterOrEqual(t, len(points), minSteps)
		assert.LessOrEqual(t, len(points), maxSteps)
		assert.Equal(t, to, points[len(points)-1])
	}
}

func TestMoveToProducesManyWaypoints(t *testing.T) {
	d := newRecordingDriver()
	s, clock := newSynth(d, behavior.NewRand(5))

	target, err := s.MoveTo(context.Background(), "#kc-login")
	require.NoError(t, err)

	assert.Greater(t, len(d.moves), 1)
	assert.Equal(t, target, d.moves[len(d.moves)-1])
	assert.Equal(t, target, s.Cursor())
	assert.InDelta(t, 560, target.X, 120*0.3+1e-9)
	assert.InDelta(t, 315, target.Y, 30*0.3+1e-9)
	assert.Len(t, clock.Sleeps(), len(d.moves))
}

func TestClickHoversThenClicks(t *testing.T) {
	d := newRecordingDriver()
	s, clock := newSynth(d, behavior.NewRand(9))
	p := behavior.ForAttempt(5)
	s.UseProfile(p)

	require.NoError(t, s.Click(context.Background(), "#frmPrincipal\\:btnBuscar"))

	require.Len(t, d.clicks, 1)
	assert.Equal(t, d.moves[len(d.moves)-1], d.clicks[0])

	sleeps := clock.Sleeps()
	assert.True(t, p.Click.Contains(sleeps[len(sleeps)-1]))
	assert.NotEmpty(t, d.scripts, "verification profile scrolls before clicking")
}

func TestTypeWithoutTypos(t *testing.T) {
	d := newRecordingDriver()
	s, clock := newSynth(d, behavior.FixedRand{Float: 0.9, Norm: 0, Int: 0})

	require.NoError(t, s.Type(context.Background(), `input[name="usuario"]`, "ab.c"))

	assert.Equal(t, []string{"a", "b", ".", "c"}, d.keys)
	assert.Equal(t, "ab.c", d.values[`input[name="usuario"]`])

	typing := s.Profile().Typing
	var typed int
	for _, sl := range clock.Sleeps() {
		if sl == (typing.Min+typing.Max)/2 {
			typed++
		}
	}
	assert.GreaterOrEqual(t, typed, 4)
}

func TestTypeCorrectsTypos(t *testing.T) {
	d := newRecordingDriver()
	s, _ := newSynth(d, behavior.FixedRand{Float: 0.01, Int: 3})

	require.NoError(t, s.Type(context.Background(), "#user", "xy"))

	assert.Equal(t, []string{"r", browser.KeyBackspace, "x", "r", browser.KeyBackspace, "y"}, d.keys)
	assert.Equal(t, "xy", d.values["#user"])
}

func TestTypeVerifiesAndRepairsValue(t *testing.T) {
	d := newRecordingDriver()
	d.mangle = true
	s, _ := newSynth(d, behavior.FixedRand{Float: 0.9})
	s.UseProfile(behavior.ForAttempt(1))

	require.NoError(t, s.Type(context.Background(), "#pass", "secret"))
	assert.Equal(t, "secret", d.values["#pass"])
}

func TestTypeDelaysStayInsideProfile(t *testing.T) {
	d := newRecordingDriver()
	s, clock := newSynth(d, behavior.NewRand(11))
	p := behavior.ForAttempt(7)
	s.UseProfile(p)

	require.NoError(t, s.Type(context.Background(), "#f", "abcdefghijklmnopqrstuvwxyz"))

	keys := len(d.keys)
	sleeps := clock.Sleeps()
	require.GreaterOrEqual(t, len(sleeps), keys)
	for _, sl := range sleeps[len(sleeps)-keys:] {
		assert.True(t, p.Typing.Contains(sl), "typing delay %s outside %v", sl, p.Typing)
	}
}

func TestScrollPatterns(t *testing.T) {
	for _, pattern := range []ScrollPattern{ScrollExplore, ScrollToTop, ScrollFull} {
		d := newRecordingDriver()
		s, _ := newSynth(d, behavior.NewRand(2))
		require.NoError(t, s.Scroll(context.Background(), pattern), pattern.String())
		assert.NotEmpty(t, d.scripts, pattern.String())
	}

	s, _ := newSynth(newRecordingDriver(), behavior.NewRand(2))
	assert.Error(t, s.Scroll(context.Background(), ScrollPattern(42)))
}

func TestOperationsStopOnCancelledContext(t *testing.T) {
	d := newRecordingDriver()
	s, _ := newSynth(d, behavior.NewRand(4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Click(ctx, "#x"), context.Canceled)
	assert.ErrorIs(t, s.Dwell(ctx), context.Canceled)
	assert.ErrorIs(t, s.Wander(ctx), context.Canceled)
}
