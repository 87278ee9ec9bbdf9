package ledger

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// =============================================================================
// DATE - Civil calendar day (entries are keyed by day, not instant)
// =============================================================================

const (
	DateLayout      = "2006-01-02"
	YearMonthLayout = "2006-01"
)

// Date is a calendar day with no time zone. The zero Date means "unset".
type Date struct {
	d civil.Date
}

// NewDate normalizes out-of-range values the way time.Date does, so
// NewDate(2024, 13, 1) is 2025-01-01.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf drops the clock part of t, keeping the calendar day of t's location.
func DateOf(t time.Time) Date {
	return Date{d: civil.DateOf(t)}
}

func ParseDate(s string) (Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Value: s, Reason: "use YYYY-MM-DD"}
	}
	return Date{d: d}, nil
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.d.In(time.UTC) }
func (d Date) Year() int { return d.d.Year }
func (d Date) Month() time.Month { return d.d.Month }
func (d Date) Day() int { return d.d.Day }
func (d Date) IsZero() bool { return d.d == civil.Date{} }
func (d Date) Before(o Date) bool { return d.d.Before(o.d) }
func (d Date) After(o Date) bool { return d.d.After(o.d) }
func (d Date) Equal(o Date) bool { return d.d == o.d }
func (d Date) AddDays(n int) Date { return Date{d: d.d.AddDays(n)} }
func (d Date) YearMonth() YearMonth { return YearMonth{Year: d.Year(), Month: d.Month()} }
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.d.String()
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// YEAR MONTH - Aggregation window
// =============================================================================

type YearMonth struct {
	Year  int
	Month time.Month
}

func ParseYearMonth(s string) (YearMonth, error) {
	t, err := time.Parse(YearMonthLayout, s)
	if err != nil {
		return YearMonth{}, &ValidationError{Field: "month", Value: s, Reason: "use YYYY-MM"}
	}
	return YearMonth{Year: t.Year(), Month: t.Month()}, nil
}

func (ym YearMonth) First() Date { return NewDate(ym.Year, ym.Month, 1) }

func (ym YearMonth) Last() Date {
	return NewDate(ym.Year, ym.Month+1, 1).AddDays(-1)
}

func (ym YearMonth) Range() DateRange { return DateRange{From: ym.First(), To: ym.Last()} }

func (ym YearMonth) Contains(d Date) bool {
	return d.Year() == ym.Year && d.Month() == ym.Month
}

func (ym YearMonth) String() string { return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month)) }

// =============================================================================
// DATE RANGE - Inclusive, zero bounds are open
// =============================================================================

type DateRange struct {
	From Date
	To   Date
}

func (r DateRange) Contains(d Date) bool {
	if !r.From.IsZero() && d.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && d.After(r.To) {
		return false
	}
	return true
}

// IsOpen reports whether neither bound is set.
func (r DateRange) IsOpen() bool { return r.From.IsZero() && r.To.IsZero() }

func (r DateRange) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return &ValidationError{Field: "range", Value: fmt.Sprintf("%s..%s", r.From, r.To), Reason: "end before start"}
	}
	return nil
}
