package domain

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on the CLI and in storage.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates. Start and End carry only
// their year, month and day; both are held as midnight UTC.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDateRange builds a range from the calendar dates of start and end.
func NewDateRange(start, end time.Time) (DateRange, error) {
	s, e := dateOf(start), dateOf(end)
	if s.After(e) {
		return DateRange{}, &ArgumentError{
			Arg: "date range",
			Msg: fmt.Sprintf("start (%s) must be <= end (%s)", s.Format(DateLayout), e.Format(DateLayout)),
		}
	}
	return DateRange{Start: s, End: e}, nil
}

// ForDate returns the single-day range [d, d].
func ForDate(d time.Time) DateRange {
	day := dateOf(d)
	return DateRange{Start: day, End: day}
}

// Today returns the range for the current date in loc.
func Today(loc *time.Location) DateRange {
	return ForDate(time.Now().In(loc))
}

// Yesterday returns the range for the previous date in loc.
func Yesterday(loc *time.Location) DateRange {
	return ForDate(time.Now().In(loc).AddDate(0, 0, -1))
}

// ThisWeek returns Monday through Sunday of the current week in loc.
func ThisWeek(loc *time.Location) DateRange {
	today := dateOf(time.Now().In(loc))
	offset := (int(today.Weekday()) + 6) % 7
	monday := today.AddDate(0, 0, -offset)
	return DateRange{Start: monday, End: monday.AddDate(0, 0, 6)}
}

// ForWeek returns Monday through Sunday of ISO week `week` of `year`.
func ForWeek(year, week int) DateRange {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset+7*(week-1))
	return DateRange{Start: monday, End: monday.AddDate(0, 0, 6)}
}

// ParseWeek accepts "2026-W08", "W08" or "8"; the short forms use the current
// year in loc.
func ParseWeek(s string, loc *time.Location) (DateRange, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	year := time.Now().In(loc).Year()
	bad := &ArgumentError{Arg: "week", Msg: fmt.Sprintf("invalid week %q, use YYYY-Wnn, Wnn or n", s)}

	var weekStr string
	switch {
	case strings.Contains(s, "-W"):
		parts := strings.SplitN(s, "-W", 2)
		y, err := strconv.Atoi(parts[0])
		if err != nil {
			return DateRange{}, bad
		}
		year, weekStr = y, parts[1]
	case strings.HasPrefix(s, "W"):
		weekStr = s[1:]
	default:
		weekStr = s
	}

	week, err := strconv.Atoi(weekStr)
	if err != nil || week < 1 || week > 53 {
		return DateRange{}, bad
	}
	return ForWeek(year, week), nil
}

// LastNMonths covers the first day of the month n months back up to yesterday.
func LastNMonths(n int, loc *time.Location) DateRange {
	today := dateOf(time.Now().In(loc))
	start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	start = start.AddDate(0, -n, 0)
	end := today.AddDate(0, 0, -1)
	if end.Before(start) {
		end = start
	}
	return DateRange{Start: start, End: end}
}

// ParseDate parses "today", "yesterday" or YYYY-MM-DD into a single-day range.
func ParseDate(s string, loc *time.Location) (DateRange, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "today":
		return Today(loc), nil
	case "yesterday":
		return Yesterday(loc), nil
	default:
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			return DateRange{}, &ArgumentError{
				Arg: "date",
				Msg: fmt.Sprintf("invalid date %q, use 'today', 'yesterday' or YYYY-MM-DD", s),
			}
		}
		return ForDate(d), nil
	}
}

// StartUTC is midnight UTC of Start.
func (r DateRange) StartUTC() time.Time { return r.Start }

// EndUTC is midnight UTC of the day after End. Queries exclude it.
func (r DateRange) EndUTC() time.Time { return r.End.AddDate(0, 0, 1) }

// Contains reports whether t falls in [StartUTC, EndUTC).
func (r DateRange) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(r.StartUTC()) && t.Before(r.EndUTC())
}

// Days is the number of calendar days in the range.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

// EachDay yields one single-day range per date, in chronological order.
func (r DateRange) EachDay() iter.Seq[DateRange] {
	return func(yield func(DateRange) bool) {
		for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
			if !yield(DateRange{Start: d, End: d}) {
				return
			}
		}
	}
}

func (r DateRange) String() string {
	if r.Start.Equal(r.End) {
		return r.Start.Format(DateLayout)
	}
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}
