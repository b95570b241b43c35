package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// RecurrenceType names a recurrence rule.
type RecurrenceType string

const (
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"

	// Category markers that are never materialized.
	RecurrenceRepeatable RecurrenceType = "repeatable"
	RecurrenceNotes      RecurrenceType = "notes"
)

// Recurrence is a parsed recurrence spec. Weekdays use 1=Monday..7=Sunday.
type Recurrence struct {
	Type      RecurrenceType
	Weekdays  []int
	MonthDays []int
}

var errRecurrenceType = errors.New("recurrence type missing or not a string")

// ParseRecurrence decodes a stored recurrence. Non-numeric, out-of-range
// and duplicate days are skipped; a fractional number such as 1.5 makes the
// whole spec invalid.
func ParseRecurrence(raw []byte) (Recurrence, error) {
	var doc struct {
		Type      *string `json:"type"`
		Weekdays  []any   `json:"weekdays"`
		MonthDays []any   `json:"monthDays"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Recurrence{}, fmt.Errorf("decode recurrence: %w", err)
	}
	if doc.Type == nil {
		return Recurrence{}, errRecurrenceType
	}

	weekdays, err := parseDays(doc.Weekdays, 7)
	if err != nil {
		return Recurrence{}, fmt.Errorf("weekdays: %w", err)
	}
	monthDays, err := parseDays(doc.MonthDays, 31)
	if err != nil {
		return Recurrence{}, fmt.Errorf("monthDays: %w", err)
	}

	return Recurrence{
		Type:      RecurrenceType(*doc.Type),
		Weekdays:  weekdays,
		MonthDays: monthDays,
	}, nil
}

func parseDays(items []any, limit int) ([]int, error) {
	var out []int
	seen := make(map[int]bool)
	for _, it := range items {
		f, ok := it.(float64)
		if !ok {
			continue
		}
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("day %v is not an integer", f)
		}
		d := int(f)
		if d < 1 || d > limit || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out, nil
}

// Schedulable reports whether the spec produces occurrences at all.
func (r Recurrence) Schedulable() bool {
	switch r.Type {
	case RecurrenceWeekly:
		return len(r.Weekdays) > 0
	case RecurrenceMonthly:
		return len(r.MonthDays) > 0
	default:
		return false
	}
}
