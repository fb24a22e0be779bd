package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/agentuse/agentuse/internal/codes"
)

var (
	intervalPattern = regexp.MustCompile(`^(\d+)(s|m|h)$`)
	cronFieldsRe    = regexp.MustCompile(`^[\d*/,-]+$`)
	dailyAtRe       = regexp.MustCompile(`(?i)^daily at (\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	weekdayAtRe     = regexp.MustCompile(`(?i)^every weekday at (\d{1,2})(?::(\d{2}))?\s*(am|pm)?$`)
	everyNRe        = regexp.MustCompile(`(?i)^every (\d+) (seconds|minutes|hours|days)$`)
)

// Normalize converts one of the three input forms described in spec §4.7
// (interval, cron, or a small closed set of natural-language phrases) into
// a 6-field cron expression accepted by github.com/robfig/cron/v3 (with
// seconds); a 5-field cron input gets a leading "0" seconds field.
//
// Normalize is total on the grammar: any input outside these forms returns
// a *codes.Error with Kind ScheduleParseError.
func Normalize(expr string) (string, error) {
	trimmed := strings.TrimSpace(expr)
	lower := strings.ToLower(trimmed)

	if m := intervalPattern.FindStringSubmatch(trimmed); m != nil {
		return normalizeInterval(m[1], m[2])
	}

	if cron, ok := normalizeNaturalLanguage(lower); ok {
		return cron, nil
	}

	if looksLikeCron(trimmed) {
		// The runtime always parses with cron.WithSeconds(); a bare
		// 5-field cron expression is padded with a leading "0" seconds
		// field so every normalised expression has a uniform 6-field shape.
		if len(strings.Fields(trimmed)) == 5 {
			return "0 " + trimmed, nil
		}
		return trimmed, nil
	}

	return "", codes.New(codes.ScheduleParseError, fmt.Sprintf("unrecognised schedule expression: %q", expr))
}

func normalizeInterval(numStr, unit string) (string, error) {
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return "", codes.New(codes.ScheduleParseError, "invalid interval number: "+numStr)
	}
	switch unit {
	case "s":
		if n < 1 || n > 59 {
			return "", codes.New(codes.ScheduleParseError, "interval seconds must be 1-59")
		}
		return fmt.Sprintf("*/%d * * * * *", n), nil
	case "m":
		if n < 1 || n > 59 {
			return "", codes.New(codes.ScheduleParseError, "interval minutes must be 1-59")
		}
		return fmt.Sprintf("0 */%d * * * *", n), nil
	case "h":
		if n < 1 || n > 23 {
			return "", codes.New(codes.ScheduleParseError, "interval hours must be 1-23")
		}
		return fmt.Sprintf("0 0 */%d * * *", n), nil
	}
	return "", codes.New(codes.ScheduleParseError, "unrecognised interval unit: "+unit)
}

func normalizeNaturalLanguage(lower string) (string, bool) {
	switch lower {
	case "every minute":
		return "0 * * * * *", true
	case "hourly":
		return "0 0 * * * *", true
	case "daily":
		return "0 0 0 * * *", true
	case "weekly":
		return "0 0 0 * * 0", true
	case "monthly":
		return "0 0 0 1 * *", true
	}

	if m := everyNRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "seconds":
			return fmt.Sprintf("*/%d * * * * *", n), true
		case "minutes":
			return fmt.Sprintf("0 */%d * * * *", n), true
		case "hours":
			return fmt.Sprintf("0 0 */%d * * *", n), true
		case "days":
			return fmt.Sprintf("0 0 0 */%d * *", n), true
		}
	}

	if m := dailyAtRe.FindStringSubmatch(lower); m != nil {
		hour, minute, ok := parseClock(m[1], m[2], m[3])
		if !ok {
			return "", false
		}
		return fmt.Sprintf("0 %d %d * * *", minute, hour), true
	}

	if m := weekdayAtRe.FindStringSubmatch(lower); m != nil {
		hour, minute, ok := parseClock(m[1], m[2], m[3])
		if !ok {
			return "", false
		}
		return fmt.Sprintf("0 %d %d * * 1-5", minute, hour), true
	}

	return "", false
}

func parseClock(hourStr, minuteStr, meridiem string) (hour, minute int, ok bool) {
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, 0, false
	}
	if minuteStr != "" {
		minute, err = strconv.Atoi(minuteStr)
		if err != nil {
			return 0, 0, false
		}
	}
	switch meridiem {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

// looksLikeCron accepts 5- or 6-field space-separated expressions built
// from digits, *, /, ',' and '-'.
func looksLikeCron(expr string) bool {
	fields := strings.Fields(expr)
	if len(fields) != 5 && len(fields) != 6 {
		return false
	}
	for _, f := range fields {
		if !cronFieldsRe.MatchString(f) {
			return false
		}
	}
	return true
}
