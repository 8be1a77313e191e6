package filter

import (
	"strconv"
	"strings"
)

const (
	DefaultFetch   = 20
	DefaultDisplay = 5
)

// Counts is how many messages to fetch and how many to display after filtering
type Counts struct {
	Fetch   int
	Display int
}

// ParseCounts parses "fetch-display" or a single count used for both.
// Anything unparsable or non-positive yields the defaults.
func ParseCounts(s string) Counts {
	defaults := Counts{Fetch: DefaultFetch, Display: DefaultDisplay}

	s = strings.TrimSpace(s)
	if s == "" {
		return defaults
	}

	fetchPart, displayPart, found := strings.Cut(s, "-")
	fetch, err := strconv.Atoi(strings.TrimSpace(fetchPart))
	if err != nil || fetch <= 0 {
		return defaults
	}
	if !found {
		return Counts{Fetch: fetch, Display: fetch}
	}

	display, err := strconv.Atoi(strings.TrimSpace(displayPart))
	if err != nil || display <= 0 {
		return defaults
	}
	return Counts{Fetch: fetch, Display: display}
}

func (c Counts) String() string {
	if c.Fetch == c.Display {
		return strconv.Itoa(c.Fetch)
	}
	return strconv.Itoa(c.Fetch) + "-" + strconv.Itoa(c.Display)
}
