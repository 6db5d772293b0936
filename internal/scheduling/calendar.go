package scheduling

import "time"

// Calendar helpers used by the slot generator. All dates are normalized to
// midnight UTC so that (rule, date, start_minute) compares exactly.

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// nextDateForWeekday returns the first calendar date >= from that falls on
// target, wrapping into the next week when target already passed.
func nextDateForWeekday(from time.Time, target time.Weekday) time.Time {
	d := dateOnly(from)
	offset := (int(target) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset)
}

// datesForWeekday returns every date on target within [from, from+horizonDays).
func datesForWeekday(from time.Time, target time.Weekday, horizonDays int) []time.Time {
	var dates []time.Time
	if horizonDays <= 0 {
		return dates
	}

	start := dateOnly(from)
	end := start.AddDate(0, 0, horizonDays)

	for d := nextDateForWeekday(start, target); d.Before(end); d = d.AddDate(0, 0, 7) {
		dates = append(dates, d)
	}
	return dates
}

type minuteWindow struct {
	Start int
	End   int
}

// partitionWindow splits [start, end) into consecutive sub-intervals of
// SlotGranularityMinutes, truncating the final one to end.
func partitionWindow(start, end int) []minuteWindow {
	var parts []minuteWindow
	for m := start; m < end; m += SlotGranularityMinutes {
		sub := minuteWindow{Start: m, End: m + SlotGranularityMinutes}
		if sub.End > end {
			sub.End = end
		}
		parts = append(parts, sub)
	}
	return parts
}

// minuteOfDay returns t's minute within its own day.
func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// slotEnded reports whether a slot on date with the given end minute is
// strictly in the past relative to now. A slot ending exactly at the current
// minute counts as ended. Slot dates live in UTC, so now is normalized to UTC
// before both the day and the minute are taken from it.
func slotEnded(date time.Time, endMinute int, now time.Time) bool {
	now = now.UTC()
	d := dateOnly(date)
	today := dateOnly(now)

	switch {
	case d.Before(today):
		return true
	case d.After(today):
		return false
	default:
		return endMinute <= minuteOfDay(now)
	}
}
