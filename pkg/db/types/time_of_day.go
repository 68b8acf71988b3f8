package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay bounds a TimeOfDay. 24:00 is accepted as an end of day marker.
const MinutesPerDay = 24 * 60

// TimeOfDay is a wall clock time stored as minutes since midnight.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time of day %q (expected HH:MM)", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	t := TimeOfDay(h*60 + m)
	if h < 0 || t > MinutesPerDay {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

// MustTimeOfDay parses s and panics on malformed input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Valid reports whether the value lies within a single day.
func (t TimeOfDay) Valid() bool {
	return t >= 0 && t <= MinutesPerDay
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("TimeOfDay: %w", err)
	}
	parsed, err := ParseTimeOfDay(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*t = TimeOfDay(v)
	case int32:
		*t = TimeOfDay(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return fmt.Errorf("TimeOfDay: %w", err)
		}
		*t = TimeOfDay(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TimeOfDay: %w", err)
		}
		*t = TimeOfDay(n)
	default:
		return fmt.Errorf("TimeOfDay: unsupported Scan type %T", src)
	}
	return nil
}

func (t TimeOfDay) Value() (driver.Value, error) {
	return int64(t), nil
}
