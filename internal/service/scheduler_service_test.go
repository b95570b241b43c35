package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "00:05", want: "0 5 0 * * *"},
		{in: " 21:30 ", want: "0 30 21 * * *"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "1:2:3", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := buildDailySpec(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScheduler_RegistersJobs(t *testing.T) {
	s := NewSchedulerService(time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	noop := func(context.Context) error { return nil }

	_, err := s.ScheduleDaily("daily", "00:05", noop)
	require.NoError(t, err)
	_, err = s.ScheduleInterval("tick", time.Hour, noop)
	require.NoError(t, err)

	_, err = s.ScheduleDaily("bad", "25:00", noop)
	assert.Error(t, err)
	_, err = s.ScheduleInterval("bad", 0, noop)
	assert.Error(t, err)

	assert.Equal(t, 2, s.Entries())
}

func TestScheduler_WrapRunsJobWithDeadline(t *testing.T) {
	s := NewSchedulerService(time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var hasDeadline bool
	s.wrap("deadline", func(ctx context.Context) error {
		_, hasDeadline = ctx.Deadline()
		return nil
	})()
	assert.True(t, hasDeadline)
}
