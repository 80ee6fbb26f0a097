package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MonthKey identifies a calendar year+month as year*12 + (month-1), so keys
// compare and order as plain integers.
type MonthKey int

// NewMonthKey returns the key for a year and month.
func NewMonthKey(year int, month time.Month) MonthKey {
	return MonthKey(year*12 + int(month) - 1)
}

// MonthKeyOf returns the key of the month t falls in, in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return NewMonthKey(t.Year(), t.Month())
}

func (k MonthKey) Year() int {
	return int(k) / 12
}

func (k MonthKey) Month() time.Month {
	return time.Month(int(k)%12 + 1)
}

// String returns the stored form "YYYY-M" with a zero-based month, so
// January 2024 is "2024-0". Backups written by earlier versions of the
// tracker use the same form.
func (k MonthKey) String() string {
	return fmt.Sprintf("%d-%d", k.Year(), int(k.Month())-1)
}

// ParseMonthKey parses the "YYYY-M" form produced by String.
func ParseMonthKey(s string) (MonthKey, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, fmt.Errorf("%w: month key %q", ErrInvalidMonth, s)
	}
	y, err := strconv.Atoi(year)
	if err != nil || y < 1 {
		return 0, fmt.Errorf("%w: month key %q", ErrInvalidMonth, s)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 0 || m > 11 {
		return 0, fmt.Errorf("%w: month key %q", ErrInvalidMonth, s)
	}
	return NewMonthKey(y, time.Month(m+1)), nil
}

func (k MonthKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *MonthKey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: month key %s", ErrInvalidMonth, data)
	}
	parsed, err := ParseMonthKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
