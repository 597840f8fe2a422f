package conversation

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	meridiemTimePattern = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s*([ap])\.?m\b\.?`)
	clockTimePattern    = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	noonPattern         = regexp.MustCompile(`\bnoon\b`)
	bareHourPattern     = regexp.MustCompile(`\b(\d{1,2})\b(?:\s*o'?clock\b)?`)
)

// ParseTime extracts a time of day from text. Bare numbers ("3") are only
// read as times when allowBareHour is set, i.e. while slots are on offer.
func ParseTime(text string, allowBareHour bool) (TimeOfDay, bool) {
	return parseTime(strings.ToLower(text), allowBareHour)
}

func parseTime(lower string, allowBareHour bool) (TimeOfDay, bool) {
	if m := meridiemTimePattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return TimeOfDay{}, false
		}
		return TimeOfDay{Hour: to24Hour(hour, m[3] == "p"), Minute: minute, Exact: true}, true
	}

	if noonPattern.MatchString(lower) {
		return TimeOfDay{Hour: 12, Minute: 0, Exact: true}, true
	}

	if m := clockTimePattern.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		// "15:30" and "09:30" are unambiguous 24-hour readings; "3:30" is not.
		exact := hour == 0 || hour > 12 || strings.HasPrefix(m[1], "0")
		return TimeOfDay{Hour: hour, Minute: minute, Exact: exact}, true
	}

	if !allowBareHour {
		return TimeOfDay{}, false
	}
	for _, m := range bareHourPattern.FindAllStringSubmatchIndex(lower, -1) {
		// Skip numbers glued to other punctuation such as "2/3" or "3-4".
		if m[0] > 0 && strings.ContainsRune("/-:$", rune(lower[m[0]-1])) {
			continue
		}
		if m[1] < len(lower) && strings.ContainsRune("/-:", rune(lower[m[1]])) {
			continue
		}
		hour, _ := strconv.Atoi(lower[m[2]:m[3]])
		if hour < 1 || hour > 23 {
			continue
		}
		return TimeOfDay{Hour: hour, Minute: 0, Exact: hour > 12}, true
	}
	return TimeOfDay{}, false
}

func to24Hour(hour int, pm bool) int {
	switch {
	case pm && hour != 12:
		return hour + 12
	case !pm && hour == 12:
		return 0
	default:
		return hour
	}
}
