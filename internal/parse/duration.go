package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var spanRe = regexp.MustCompile(`^(\d{1,4}):([0-5]?\d):([0-5]?\d)$`)

// Span parses an elapsed-time string of the form "HH:MM:SS" into a
// duration. Hours are not wall-clock hours and may exceed 23.
func Span(raw string) (time.Duration, error) {
	m := spanRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid time span %q, want HH:MM:SS", raw)
	}

	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])

	return time.Duration(h)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(sec)*time.Second, nil
}

// Efficiency returns the run/total ratio as a percentage. A zero total
// span yields 0 rather than an error; the record is still storable, it
// just never trips an alert.
func Efficiency(total, run string) (float64, error) {
	t, err := Span(total)
	if err != nil {
		return 0, fmt.Errorf("total: %w", err)
	}
	r, err := Span(run)
	if err != nil {
		return 0, fmt.Errorf("run: %w", err)
	}
	if t <= 0 {
		return 0, nil
	}
	return float64(r) / float64(t) * 100, nil
}
