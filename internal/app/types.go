package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Weekday is one of the five school days shown in the grid
type Weekday string

const (
	Monday    Weekday = "Monday"
	Tuesday   Weekday = "Tuesday"
	Wednesday Weekday = "Wednesday"
	Thursday  Weekday = "Thursday"
	Friday    Weekday = "Friday"
)

// Periods is the number of time slots per day
const Periods = 8

// Weekdays lists the school days in display order
var Weekdays = [...]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday}

// ParseWeekday returns the weekday with the given name
func ParseWeekday(name string) (Weekday, error) {
	for _, day := range Weekdays {
		if string(day) == name {
			return day, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDay, name)
}

func dayIndex(day Weekday) int {
	for i, d := range Weekdays {
		if d == day {
			return i
		}
	}
	return -1
}

// Timetable maps a weekday name to its subjects, one per period.
// Missing days and missing periods read as empty subjects.
type Timetable map[string][]string

// Subject returns the subject for day and 0-based period, or "" if unset
func (t Timetable) Subject(day Weekday, period int) string {
	subjects, ok := t[string(day)]
	if !ok || period < 0 || period >= len(subjects) {
		return ""
	}
	return subjects[period]
}

// Equal reports whether both timetables hold the same entries
func (t Timetable) Equal(other Timetable) bool {
	if len(t) != len(other) {
		return false
	}
	for day, subjects := range t {
		o, ok := other[day]
		if !ok || len(o) != len(subjects) {
			return false
		}
		for i := range subjects {
			if subjects[i] != o[i] {
				return false
			}
		}
	}
	return true
}

// MarshalJSON writes the weekdays first in school order, then any other keys sorted
func (t Timetable) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("{}"), nil
	}

	keys := make([]string, 0, len(t))
	for _, day := range Weekdays {
		if _, ok := t[string(day)]; ok {
			keys = append(keys, string(day))
		}
	}
	var extra []string
	for key := range t {
		if _, err := ParseWeekday(key); err != nil {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	keys = append(keys, extra...)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		subjects := t[key]
		if subjects == nil {
			subjects = []string{}
		}
		v, err := json.Marshal(subjects)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Serialize encodes the timetable in its persisted form
func Serialize(t Timetable) ([]byte, error) {
	return json.Marshal(t)
}

// SerializeIndent encodes the timetable for file export
func SerializeIndent(t Timetable) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// Deserialize parses the persisted form. The input must be a JSON object of
// string arrays; anything else is ErrDeserialization.
func Deserialize(data []byte) (Timetable, error) {
	var t Timetable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	if t == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrDeserialization)
	}
	return t, nil
}

// FieldGrid holds the editable field values, one per day and period
type FieldGrid [len(Weekdays)][Periods]string

// Cell returns the field for day and 0-based period
func (g FieldGrid) Cell(day Weekday, period int) string {
	return g[dayIndex(day)][period]
}

// SetCell updates the field for day and 0-based period
func (g *FieldGrid) SetCell(day Weekday, period int, value string) {
	g[dayIndex(day)][period] = value
}

// FieldName is the form field name for day and 0-based period
func FieldName(day Weekday, period int) string {
	return fmt.Sprintf("%s-%d", day, period)
}
