package conversation

import (
	"fmt"
	"time"
	"unicode/utf8"
)

func formatPrice(cents int64) string {
	if cents%100 == 0 {
		return fmt.Sprintf("$%d", cents/100)
	}
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func formatDate(d Date) string {
	return d.In(time.UTC).Format("Monday, January 2")
}

func formatClock(t time.Time) string {
	return t.Format("3:04 PM")
}

// formatTimeOfDay renders an inexact time without a meridiem.
func formatTimeOfDay(t TimeOfDay) string {
	if !t.Exact {
		return fmt.Sprintf("%d:%02d", t.Hour, t.Minute)
	}
	return time.Date(2000, 1, 1, t.Hour, t.Minute, 0, 0, time.UTC).Format("3:04 PM")
}

func formatServiceWithPrice(s Service) string {
	return fmt.Sprintf("%s (%s)", s.Name, formatPrice(s.PriceCents))
}

func formatServiceDetails(s Service) string {
	if s.DurationMinutes > 0 {
		return fmt.Sprintf("%s %s (%d min)", s.Name, formatPrice(s.PriceCents), s.DurationMinutes)
	}
	return fmt.Sprintf("%s %s", s.Name, formatPrice(s.PriceCents))
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	if limit <= 3 {
		return string(runes[:limit])
	}
	return string(runes[:limit-3]) + "..."
}
