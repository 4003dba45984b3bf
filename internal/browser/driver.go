// Package browser defines the capability set the automation needs from a
// browser engine and provides the chromedp implementation.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// KeyBackspace is the key sequence that deletes the previous character.
const KeyBackspace = "\b"

// ErrClosed is returned by every Driver call after Close.
var ErrClosed = errors.New("browser driver is closed")

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X float64
	Y float64
}

// Box is an element's bounding box in viewport coordinates.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the middle of the box.
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Driver is the set of page operations the automation is written against.
// Every call is bounded by ctx; implementations must never block past its
// deadline.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until selector matches a visible element.
	WaitVisible(ctx context.Context, selector string) error
	// Exists reports whether selector matches anything right now.
	Exists(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	// SendKeys focuses selector and dispatches text as key events.
	SendKeys(ctx context.Context, selector, text string) error
	// SetValue assigns a form value and fires input and change events.
	SetValue(ctx context.Context, selector, value string) error
	// Evaluate runs script and decodes its JSON result into res (may be nil).
	Evaluate(ctx context.Context, script string, res interface{}) error
	// Text returns the innerText of the first match and whether it exists.
	Text(ctx context.Context, selector string) (string, bool, error)
	OuterHTML(ctx context.Context, selector string) (string, error)
	// ElementBox scrolls selector into view and returns its bounding box.
	ElementBox(ctx context.Context, selector string) (Box, error)
	MouseMove(ctx context.Context, p Point) error
	MouseClick(ctx context.Context, p Point) error
	Location(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
	// Download clicks selector and returns the bytes of the file the click
	// produced, without letting it reach the user's download folder.
	Download(ctx context.Context, selector string) ([]byte, error)
	// Close releases the browser. It is idempotent.
	Close() error
}

// Factory starts a new browser for one session.
type Factory func(ctx context.Context) (Driver, error)

// JSString quotes s as a JavaScript string literal. JSON string syntax is
// a subset of JavaScript's, including the U+2028 and U+2029 escapes.
func JSString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}
