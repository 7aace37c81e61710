// Package timecode converts between caption timecodes and second offsets.
//
// Two input shapes are accepted, MM:SS[.mmm] and HH:MM:SS[.mmm]. The digits after
// the dot are an integer count of milliseconds, so "01:02.5" is 62.005 seconds,
// not 62.5. Format always emits HH:MM:SS.mmm.
package timecode

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"oto-insights-go/internal/services"
)

// FormatError reports a timecode that matches neither accepted shape.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid timecode %q: %s", e.Input, e.Reason)
}

// Is lets errors.Is(err, services.ErrFormat) match.
func (e *FormatError) Is(target error) bool {
	return target == services.ErrFormat
}

// Parse returns the offset in seconds described by text.
func Parse(text string) (float64, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return 0, &FormatError{Input: text, Reason: "empty"}
	}

	clock, frac, hasFrac := strings.Cut(raw, ".")
	millis := 0
	if hasFrac {
		v, err := field(frac)
		if err != nil {
			return 0, &FormatError{Input: text, Reason: "milliseconds: " + err.Error()}
		}
		millis = v
	}

	parts := strings.Split(clock, ":")
	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := field(p)
		if err != nil {
			return 0, &FormatError{Input: text, Reason: err.Error()}
		}
		values[i] = v
	}

	var seconds int
	switch len(values) {
	case 2:
		seconds = values[0]*60 + values[1]
	case 3:
		seconds = values[0]*3600 + values[1]*60 + values[2]
	default:
		return 0, &FormatError{Input: text, Reason: fmt.Sprintf("expected 1 or 2 separators, got %d", len(values)-1)}
	}
	return float64(seconds) + float64(millis)/1000, nil
}

// Format renders seconds as HH:MM:SS.mmm, rounded to the nearest millisecond.
func Format(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	hours := total / 3_600_000
	total %= 3_600_000
	minutes := total / 60_000
	total %= 60_000
	secs := total / 1000
	millis := total % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}

// ParseRange splits a transcript caption range "start-end".
func ParseRange(text string) (float64, float64, error) {
	startText, endText, ok := strings.Cut(strings.TrimSpace(text), "-")
	if !ok {
		return 0, 0, &FormatError{Input: text, Reason: "missing range separator"}
	}
	start, err := Parse(startText)
	if err != nil {
		return 0, 0, err
	}
	end, err := Parse(endText)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// FormatRange renders a transcript caption range.
func FormatRange(start, end float64) string {
	return Format(start) + "-" + Format(end)
}

func field(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("non-numeric field %q", s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", s, err)
	}
	return v, nil
}
