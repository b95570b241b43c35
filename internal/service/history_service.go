package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

// DayCount is the number of tasks completed on one local day.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// HistoryGroup is the completed tasks of one local day.
type HistoryGroup struct {
	Date  string           `json:"date"`
	Tasks []model.TaskView `json:"tasks"`
}

// History is the history view over a trailing window.
type History struct {
	Stats  []DayCount     `json:"stats"`
	Groups []HistoryGroup `json:"groups"`
}

// HistoryService moves same-day completions into history and summarizes
// completed work per day.
type HistoryService struct {
	tx      *repository.TxManager
	tasks   *repository.TaskRepository
	changes *repository.ChangeRepository
	loc     *time.Location
	log     *slog.Logger
	now     func() time.Time
}

func NewHistoryService(
	tx *repository.TxManager,
	tasks *repository.TaskRepository,
	changes *repository.ChangeRepository,
	loc *time.Location,
	log *slog.Logger,
) *HistoryService {
	if loc == nil {
		loc = time.Local
	}
	return &HistoryService{tx: tx, tasks: tasks, changes: changes, loc: loc, log: log, now: time.Now}
}

// MoveCompletedToHistory rewrites completedAt of every task completed at or
// after startOfToday to startOfToday-1. It returns the number of moved tasks
// and opens no transaction when there is nothing to move. The qualifying ids
// are read again inside the transaction, so a task reopened in between stays
// open.
func (s *HistoryService) MoveCompletedToHistory(ctx context.Context, startOfToday int64) (int, error) {
	pending, err := s.tasks.CompletedIDsSince(ctx, startOfToday)
	if err != nil {
		return 0, fmt.Errorf("move to history: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	now := s.now().UnixMilli()
	var moved []string
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ids, err := s.tasks.CompletedIDsSince(ctx, startOfToday)
		if err != nil {
			return err
		}
		if _, err := s.tasks.Backdate(ctx, ids, startOfToday, startOfToday-1, now); err != nil {
			return err
		}
		for _, id := range ids {
			if err := s.changes.Append(ctx, id, model.ChangeComplete, now); err != nil {
				return err
			}
		}
		moved = ids
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("move to history: %w", err)
	}
	if len(moved) > 0 {
		s.log.Info("completed tasks moved to history", slog.Int("moved", len(moved)))
	}
	return len(moved), nil
}

// HistoryStats counts completions per local day from windowStart on,
// ascending by date.
func (s *HistoryService) HistoryStats(ctx context.Context, windowStart int64) ([]DayCount, error) {
	rows, err := s.tasks.ListCompletedSince(ctx, windowStart)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range rows {
		counts[s.dayOf(*t.CompletedAt)]++
	}
	out := make([]DayCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, DayCount{Date: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// History returns stats plus the completed tasks grouped by local day,
// newest day first.
func (s *HistoryService) History(ctx context.Context, windowStart int64) (History, error) {
	stats, err := s.HistoryStats(ctx, windowStart)
	if err != nil {
		return History{}, err
	}
	rows, err := s.tasks.ListCompletedSince(ctx, windowStart)
	if err != nil {
		return History{}, err
	}

	var groups []HistoryGroup
	for _, t := range rows {
		day := s.dayOf(*t.CompletedAt)
		if n := len(groups); n == 0 || groups[n-1].Date != day {
			groups = append(groups, HistoryGroup{Date: day})
		}
		g := &groups[len(groups)-1]
		g.Tasks = append(g.Tasks, t.View())
	}
	return History{Stats: stats, Groups: groups}, nil
}

func (s *HistoryService) dayOf(ms int64) string {
	return time.UnixMilli(ms).In(s.loc).Format(dateLayout)
}

// StartOfDay returns local midnight of t in unix milliseconds.
func StartOfDay(t time.Time, loc *time.Location) int64 {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc).UnixMilli()
}
