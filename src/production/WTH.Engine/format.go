package engine

import (
	"fmt"
	"time"
)

// FormatLocalDateTime renders t as an ISO-8601 local date-time with no offset.
// Seconds are dropped when they and the fraction are zero; the fraction is
// printed in groups of three digits.
func FormatLocalDateTime(t time.Time) string {
	s := t.Format("2006-01-02T15:04")
	if t.Second() == 0 && t.Nanosecond() == 0 {
		return s
	}
	return s + fmt.Sprintf(":%02d", t.Second()) + fraction(t.Nanosecond())
}

// FormatInstant renders t in UTC with seconds always present and a trailing Z
func FormatInstant(t time.Time) string {
	t = t.UTC()
	return t.Format("2006-01-02T15:04:05") + fraction(t.Nanosecond()) + "Z"
}

func fraction(ns int) string {
	switch {
	case ns == 0:
		return ""
	case ns%1_000_000 == 0:
		return fmt.Sprintf(".%03d", ns/1_000_000)
	case ns%1_000 == 0:
		return fmt.Sprintf(".%06d", ns/1_000)
	default:
		return fmt.Sprintf(".%09d", ns)
	}
}
