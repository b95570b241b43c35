package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecurrence(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		want        Recurrence
		schedulable bool
	}{
		{
			name:        "weekly drops out of range and duplicates",
			raw:         `{"type":"weekly","weekdays":[1,1,8,0,3,"x"]}`,
			want:        Recurrence{Type: RecurrenceWeekly, Weekdays: []int{1, 3}},
			schedulable: true,
		},
		{
			name: "non-numeric days are skipped",
			raw:  `{"type":"monthly","monthDays":["1",null,true]}`,
			want: Recurrence{Type: RecurrenceMonthly},
		},
		{
			name:        "monthly",
			raw:         `{"type":"monthly","monthDays":[31,15]}`,
			want:        Recurrence{Type: RecurrenceMonthly, MonthDays: []int{31, 15}},
			schedulable: true,
		},
		{
			name: "weekly without days",
			raw:  `{"type":"weekly","weekdays":[]}`,
			want: Recurrence{Type: RecurrenceWeekly},
		},
		{
			name: "repeatable marker",
			raw:  `{"type":"repeatable"}`,
			want: Recurrence{Type: RecurrenceRepeatable},
		},
		{
			name: "unknown type",
			raw:  `{"type":"daily","weekdays":[1]}`,
			want: Recurrence{Type: "daily", Weekdays: []int{1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecurrence([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.schedulable, got.Schedulable())
		})
	}
}

func TestParseRecurrence_Invalid(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"weekdays":[1]}`,
		`{"type":7}`,
		`{"type":"weekly","weekdays":[1.5]}`,
	} {
		_, err := ParseRecurrence([]byte(raw))
		assert.Error(t, err, raw)
	}
}
