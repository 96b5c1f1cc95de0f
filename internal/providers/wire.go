package providers

import (
	"strconv"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
)

// ParseISODuration parses the ISO-8601 durations Amadeus uses for itineraries and
// segments, e.g. PT8H30M, PT150M or P1DT2H.
func ParseISODuration(s string) (time.Duration, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "P") || len(s) < 3 {
		return 0, false
	}
	s = s[1:]

	var (
		total  time.Duration
		num    strings.Builder
		inTime bool
		seen   bool
	)
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num.WriteRune(r)
			continue
		case r == 'T':
			if inTime || num.Len() > 0 {
				return 0, false
			}
			inTime = true
			continue
		}

		v, err := strconv.Atoi(num.String())
		if err != nil {
			return 0, false
		}
		num.Reset()

		switch {
		case r == 'D' && !inTime:
			total += time.Duration(v) * 24 * time.Hour
		case r == 'H' && inTime:
			total += time.Duration(v) * time.Hour
		case r == 'M' && inTime:
			total += time.Duration(v) * time.Minute
		case r == 'S' && inTime:
			total += time.Duration(v) * time.Second
		default:
			return 0, false
		}
		seen = true
	}
	if num.Len() > 0 || !seen {
		return 0, false
	}
	return total, true
}

// ParseLocalTime parses an Amadeus timestamp. Amadeus reports airport-local wall
// clock time without an offset; it is stored in UTC so the wall clock survives
// formatting unchanged.
func ParseLocalTime(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04", s, time.UTC); err == nil {
		return t, nil
	}
	// fallback if they ever include a zone
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, errors.Errorf("unsupported time format: %q", s)
}
