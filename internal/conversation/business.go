package conversation

import (
	"fmt"
	"strings"
	"time"
)

// BusinessProfile holds the facts used to answer non-booking questions.
type BusinessProfile struct {
	Name       string
	Address    string
	Phone      string
	Location   *time.Location
	Open       TimeOfDay
	Close      TimeOfDay
	ClosedDays []time.Weekday
}

// BusinessLocation returns the *time.Location for a timezone name.
// Falls back to UTC if the timezone is invalid or empty.
func BusinessLocation(timezone string) *time.Location {
	if timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NewBusinessProfile builds a profile from configuration strings. open and
// close use 24-hour "HH:MM"; closedDays holds weekday names.
func NewBusinessProfile(name, timezone, address, phone, open, close string, closedDays []string) (BusinessProfile, error) {
	openTime, ok := ParseTime(open, false)
	if !ok {
		return BusinessProfile{}, fmt.Errorf("conversation: invalid opening time %q", open)
	}
	closeTime, ok := ParseTime(close, false)
	if !ok {
		return BusinessProfile{}, fmt.Errorf("conversation: invalid closing time %q", close)
	}
	profile := BusinessProfile{
		Name:     strings.TrimSpace(name),
		Address:  strings.TrimSpace(address),
		Phone:    strings.TrimSpace(phone),
		Location: BusinessLocation(timezone),
		Open:     TimeOfDay{Hour: openTime.Hour, Minute: openTime.Minute, Exact: true},
		Close:    TimeOfDay{Hour: closeTime.Hour, Minute: closeTime.Minute, Exact: true},
	}
	for _, day := range closedDays {
		wd, ok := weekdayNames[strings.ToLower(strings.TrimSpace(day))]
		if !ok {
			return BusinessProfile{}, fmt.Errorf("conversation: unknown weekday %q", day)
		}
		profile.ClosedDays = append(profile.ClosedDays, wd)
	}
	return profile, nil
}

func (p BusinessProfile) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// IsOpenOn reports whether the business opens on the weekday.
func (p BusinessProfile) IsOpenOn(day time.Weekday) bool {
	for _, closed := range p.ClosedDays {
		if closed == day {
			return false
		}
	}
	return true
}

// IsOpenAt reports whether the instant falls within opening hours on an open
// day, in the business's timezone.
func (p BusinessProfile) IsOpenAt(at time.Time) bool {
	local := at.In(p.location())
	if !p.IsOpenOn(local.Weekday()) {
		return false
	}
	minute := local.Hour()*60 + local.Minute()
	return minute >= p.Open.Hour*60+p.Open.Minute && minute < p.Close.Hour*60+p.Close.Minute
}

// HoursSummary renders e.g. "Mon-Sat 9:00 AM-6:00 PM, closed Sun".
func (p BusinessProfile) HoursSummary() string {
	week := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	var ranges, closed []string
	for i := 0; i < len(week); {
		if !p.IsOpenOn(week[i]) {
			closed = append(closed, shortWeekday(week[i]))
			i++
			continue
		}
		j := i
		for j+1 < len(week) && p.IsOpenOn(week[j+1]) {
			j++
		}
		if i == j {
			ranges = append(ranges, shortWeekday(week[i]))
		} else {
			ranges = append(ranges, shortWeekday(week[i])+"-"+shortWeekday(week[j]))
		}
		i = j + 1
	}
	if len(ranges) == 0 {
		return "closed all week"
	}
	summary := fmt.Sprintf("%s %s-%s", strings.Join(ranges, ", "), formatTimeOfDay(p.Open), formatTimeOfDay(p.Close))
	if len(closed) > 0 {
		summary += ", closed " + strings.Join(closed, ", ")
	}
	return summary
}

func shortWeekday(day time.Weekday) string {
	return day.String()[:3]
}
