package conversation

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var monthNames = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may":  time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// Abbreviations that are also everyday English words. They only count as
// dates next to a qualifier ("on sat", "this sun") or a number ("sat 3pm",
// "may 5", "5th of may").
var (
	wordLikeWeekdays = map[string]bool{"sat": true, "sun": true, "wed": true}
	wordLikeMonths   = map[string]bool{"may": true, "mar": true}
)

var (
	monthAlt   = alternation(monthNames)
	weekdayAlt = alternation(weekdayNames)

	isoDatePattern     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2}|\d{4}))?\b`)
	monthDayPattern    = regexp.MustCompile(`\b(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	dayMonthPattern    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(of\s+)?(` + monthAlt + `)\b`)
	weekdayPattern     = regexp.MustCompile(`\b(?:(next|this|on)\s+)?(` + weekdayAlt + `)\b`)
	ordinalDayPattern  = regexp.MustCompile(`\b(\d{1,2})(st|nd|rd|th)\b`)
	relativePattern    = regexp.MustCompile(`\b(day after tomorrow|tomorrow|tmrw|tmr|today|tonight|next week)\b`)

	// "may 3 pm" is a time, "sat 2" is a day.
	meridiemAfter   = regexp.MustCompile(`^\s*(?::\d|a\.?m\b|p\.?m\b|o'?clock\b)`)
	digitAfter      = regexp.MustCompile(`^\s*\d`)
	choiceNounAfter = regexp.MustCompile(`^\s+(?:one|option|choice|slot|time|opening|spot)s?\b`)
)

func alternation[V any](names map[string]V) string {
	keys := make([]string, 0, len(names))
	for k := range names {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return strings.Join(keys, "|")
}

// ResolveDate finds the first recognizable date in text relative to now.
// now must already be in the business time zone.
func ResolveDate(text string, now time.Time) (Date, bool) {
	d, _, ok := findDate(strings.ToLower(text), now, false)
	return d, ok
}

// findDate returns the resolved date and the byte span it was read from.
// While times are being offered a bare ordinal such as "the 2nd" refers to an
// offered slot, not a day of the month.
func findDate(lower string, now time.Time, awaitingTime bool) (Date, []int, bool) {
	today := DateOf(now)

	for _, m := range isoDatePattern.FindAllStringSubmatchIndex(lower, -1) {
		year, _ := strconv.Atoi(lower[m[2]:m[3]])
		month, _ := strconv.Atoi(lower[m[4]:m[5]])
		day, _ := strconv.Atoi(lower[m[6]:m[7]])
		if d, ok := validDate(year, time.Month(month), day); ok {
			return d, m[:2], true
		}
	}

	for _, m := range numericDatePattern.FindAllStringSubmatchIndex(lower, -1) {
		month, _ := strconv.Atoi(lower[m[2]:m[3]])
		day, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := 0
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
			if year < 100 {
				year += 2000
			}
		}
		if d, ok := resolveMonthDay(today, year, time.Month(month), day); ok {
			return d, m[:2], true
		}
	}

	for _, m := range monthDayPattern.FindAllStringSubmatchIndex(lower, -1) {
		name := lower[m[2]:m[3]]
		if wordLikeMonths[name] && meridiemAfter.MatchString(lower[m[5]:]) {
			continue
		}
		day, _ := strconv.Atoi(lower[m[4]:m[5]])
		year := 0
		if m[6] >= 0 {
			year, _ = strconv.Atoi(lower[m[6]:m[7]])
		}
		if d, ok := resolveMonthDay(today, year, monthNames[name], day); ok {
			return d, m[:2], true
		}
	}

	for _, m := range dayMonthPattern.FindAllStringSubmatchIndex(lower, -1) {
		name := lower[m[6]:m[7]]
		if wordLikeMonths[name] && m[4] < 0 {
			continue
		}
		day, _ := strconv.Atoi(lower[m[2]:m[3]])
		if d, ok := resolveMonthDay(today, 0, monthNames[name], day); ok {
			return d, m[:2], true
		}
	}

	if m := relativePattern.FindStringSubmatchIndex(lower); m != nil {
		switch lower[m[2]:m[3]] {
		case "day after tomorrow":
			return today.AddDays(2), m[:2], true
		case "tomorrow", "tmrw", "tmr":
			return today.AddDays(1), m[:2], true
		case "next week":
			return today.AddDays(7), m[:2], true
		default:
			return today, m[:2], true
		}
	}

	for _, m := range weekdayPattern.FindAllStringSubmatchIndex(lower, -1) {
		name := lower[m[4]:m[5]]
		qualified := m[2] >= 0
		if wordLikeWeekdays[name] && !qualified && !digitAfter.MatchString(lower[m[5]:]) {
			continue
		}
		target := weekdayNames[name]
		days := (int(target) - int(today.Weekday()) + 7) % 7
		if days == 0 && qualified && lower[m[2]:m[3]] == "next" {
			days = 7
		}
		return today.AddDays(days), m[:2], true
	}

	if awaitingTime {
		return Date{}, nil, false
	}
	for _, m := range ordinalDayPattern.FindAllStringSubmatchIndex(lower, -1) {
		if choiceNounAfter.MatchString(lower[m[1]:]) {
			continue
		}
		day, _ := strconv.Atoi(lower[m[2]:m[3]])
		d, ok := validDate(today.Year, today.Month, day)
		if ok && d.Before(today) {
			next := today.In(time.UTC).AddDate(0, 1, 0)
			d, ok = validDate(next.Year(), next.Month(), day)
		}
		if ok {
			return d, m[:2], true
		}
	}

	return Date{}, nil, false
}

// resolveMonthDay fills in a missing year, rolling past dates into next year.
func resolveMonthDay(today Date, year int, month time.Month, day int) (Date, bool) {
	if year > 0 {
		return validDate(year, month, day)
	}
	d, ok := validDate(today.Year, month, day)
	if !ok {
		// Feb 29 outside a leap year may still exist next year.
		return validDate(today.Year+1, month, day)
	}
	if d.Before(today) {
		return validDate(today.Year+1, month, day)
	}
	return d, true
}

func validDate(year int, month time.Month, day int) (Date, bool) {
	if month < time.January || month > time.December || day < 1 || day > 31 {
		return Date{}, false
	}
	d := Date{Year: year, Month: month, Day: day}
	if DateOf(d.In(time.UTC)) != d {
		return Date{}, false
	}
	return d, true
}
