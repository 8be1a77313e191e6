package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MinLoopDelay is applied when a delay specification sums to zero or less
const MinLoopDelay = 60 * time.Second

// DelayPart is one component of a delay specification, inclusive range
type DelayPart struct {
	Min int64
	Max int64
}

// DelaySpec holds days, hours, minutes and seconds components
type DelaySpec [4]DelayPart

// RandSource picks a value in [0, n)
type RandSource interface {
	Int64N(n int64) int64
}

var delayUnits = [4]time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}

// MaxDelayPart caps each component at ten years in its own unit, so a resolved
// delay always fits in a time.Duration.
var MaxDelayPart = [4]int64{3650, 3650 * 24, 3650 * 24 * 60, 3650 * 24 * 60 * 60}

// ParseDelay strictly parses "d|h|m|s" where every part is N or min-max.
// Missing trailing parts are zero.
func ParseDelay(s string) (DelaySpec, error) {
	var spec DelaySpec
	s = strings.TrimSpace(s)
	if s == "" {
		return spec, nil
	}
	parts := strings.Split(s, "|")
	if len(parts) > len(spec) {
		return spec, fmt.Errorf("delay %q: expected at most %d parts, got %d", s, len(spec), len(parts))
	}
	for i, p := range parts {
		part, err := parseDelayPart(p, MaxDelayPart[i])
		if err != nil {
			return spec, fmt.Errorf("delay %q: part %d: %w", s, i+1, err)
		}
		spec[i] = part
	}
	return spec, nil
}

// LenientDelay parses like ParseDelay but turns every invalid part into zero
func LenientDelay(s string) DelaySpec {
	var spec DelaySpec
	for i, p := range strings.Split(strings.TrimSpace(s), "|") {
		if i >= len(spec) {
			break
		}
		if part, err := parseDelayPart(p, MaxDelayPart[i]); err == nil {
			spec[i] = part
		}
	}
	return spec
}

// Resolve picks a value for every part and sums them. Parts outside
// [0, MaxDelayPart] count as zero. Sums of zero or less are floored to MinLoopDelay.
func (d DelaySpec) Resolve(rnd RandSource) time.Duration {
	var total time.Duration
	for i, part := range d {
		if part.Min < 0 || part.Max < part.Min || part.Max > MaxDelayPart[i] {
			continue
		}
		v := part.Min
		if part.Max > part.Min && rnd != nil {
			v = part.Min + rnd.Int64N(part.Max-part.Min+1)
		}
		total += time.Duration(v) * delayUnits[i]
	}
	if total <= 0 {
		return MinLoopDelay
	}
	return total
}

func parseDelayPart(p string, limit int64) (DelayPart, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return DelayPart{}, nil
	}
	first, second, isRange := strings.Cut(p, "-")
	lower, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil || lower < 0 {
		return DelayPart{}, fmt.Errorf("invalid value %q", p)
	}
	if lower > limit {
		return DelayPart{}, fmt.Errorf("value %q exceeds %d", p, limit)
	}
	if !isRange {
		return DelayPart{Min: lower, Max: lower}, nil
	}
	upper, err := strconv.ParseInt(strings.TrimSpace(second), 10, 64)
	if err != nil || upper < 0 {
		return DelayPart{}, fmt.Errorf("invalid range %q", p)
	}
	if upper > limit {
		return DelayPart{}, fmt.Errorf("value %q exceeds %d", p, limit)
	}
	if upper < lower {
		lower, upper = upper, lower
	}
	return DelayPart{Min: lower, Max: upper}, nil
}
