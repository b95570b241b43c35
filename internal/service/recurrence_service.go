package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

const (
	dateLayout     = "2006-01-02"
	monthlyHorizon = 28
)

// occurrenceNamespace keys deterministic occurrence ids.
var occurrenceNamespace = uuid.MustParse("6f1c1f1e-4d0b-4bd8-9a59-2f8f2b0c9e41")

// RecurrenceService expands recurring templates into dated occurrences.
type RecurrenceService struct {
	tx      *repository.TxManager
	tasks   *repository.TaskRepository
	search  *repository.SearchRepository
	changes *repository.ChangeRepository
	meta    *repository.MetaRepository
	log     *slog.Logger
	now     func() time.Time
}

func NewRecurrenceService(
	tx *repository.TxManager,
	tasks *repository.TaskRepository,
	search *repository.SearchRepository,
	changes *repository.ChangeRepository,
	meta *repository.MetaRepository,
	log *slog.Logger,
) *RecurrenceService {
	return &RecurrenceService{
		tx:      tx,
		tasks:   tasks,
		search:  search,
		changes: changes,
		meta:    meta,
		log:     log,
		now:     time.Now,
	}
}

// Generate materializes occurrences of every template around today and
// returns how many new tasks were written. Weekly templates cover the whole
// Monday..Sunday week containing today; monthly templates cover today and
// the following 27 days. Occurrence ids are derived from the template id and
// date, so repeated runs never duplicate an occurrence.
func (s *RecurrenceService) Generate(ctx context.Context, today time.Time) (int, error) {
	templates, err := s.tasks.ListTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("generate recurrences: %w", err)
	}

	type planned struct {
		template model.Task
		dates    []string
	}
	var plan []planned
	for _, tpl := range templates {
		rec, err := model.ParseRecurrence([]byte(*tpl.RecurrenceJSON))
		if err != nil {
			s.log.Warn("skip template with invalid recurrence",
				slog.String("template_id", tpl.ID), slog.Any("error", err))
			continue
		}
		if !rec.Schedulable() {
			s.log.Debug("skip unschedulable template",
				slog.String("template_id", tpl.ID), slog.String("type", string(rec.Type)))
			continue
		}
		if dates := OccurrenceDates(rec, today); len(dates) > 0 {
			plan = append(plan, planned{template: tpl, dates: dates})
		}
	}
	if len(plan) == 0 {
		return 0, nil
	}

	now := s.now().UnixMilli()
	created := 0
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		for _, p := range plan {
			for _, day := range p.dates {
				occ := occurrenceOf(p.template, day, now, float64(now+int64(created)))
				inserted, err := s.tasks.InsertIfAbsent(ctx, &occ)
				if err != nil {
					return err
				}
				if !inserted {
					continue
				}
				created++
				if err := s.search.Replace(ctx, occ.ID, indexText(occ)); err != nil {
					return err
				}
				if err := s.changes.Append(ctx, occ.ID, model.ChangeCreate, now); err != nil {
					return err
				}
			}
		}
		return s.meta.Set(ctx, model.MetaRecurrenceGeneratedUntil, horizonEnd(today))
	})
	if err != nil {
		return 0, fmt.Errorf("generate recurrences: %w", err)
	}

	if created > 0 {
		s.log.Info("recurring tasks generated", slog.Int("created", created))
	}
	return created, nil
}

// Reset forgets the recorded horizon and runs generation again.
func (s *RecurrenceService) Reset(ctx context.Context, today time.Time) (int, error) {
	if err := s.meta.Delete(ctx, model.MetaRecurrenceGeneratedUntil); err != nil {
		return 0, err
	}
	return s.Generate(ctx, today)
}

func occurrenceOf(tpl model.Task, day string, now int64, position float64) model.Task {
	d := day
	return model.Task{
		ID:            OccurrenceID(tpl.ID, day),
		Page:          tpl.Page,
		Title:         tpl.Title,
		TitleJSON:     tpl.TitleJSON,
		ContentJSON:   tpl.ContentJSON,
		Position:      position,
		CreatedAt:     now,
		UpdatedAt:     now,
		ScheduledDate: &d,
	}
}

// OccurrenceID is the stable id of a template's occurrence on day
// (yyyy-MM-dd).
func OccurrenceID(templateID, day string) string {
	return uuid.NewHash(sha256.New(), occurrenceNamespace, []byte(templateID+":"+day), 8).String()
}

// OccurrenceDates lists the yyyy-MM-dd days rec matches within the horizon
// that applies to today.
func OccurrenceDates(rec model.Recurrence, today time.Time) []string {
	start := civilDate(today)
	var from, to time.Time
	var match func(time.Time) bool

	switch rec.Type {
	case model.RecurrenceWeekly:
		from = start.AddDate(0, 0, -(isoWeekday(start) - 1))
		to = from.AddDate(0, 0, 6)
		days := toSet(rec.Weekdays)
		match = func(d time.Time) bool { return days[isoWeekday(d)] }
	case model.RecurrenceMonthly:
		from = start
		to = start.AddDate(0, 0, monthlyHorizon-1)
		days := toSet(rec.MonthDays)
		match = func(d time.Time) bool { return days[d.Day()] }
	default:
		return nil
	}

	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if match(d) {
			out = append(out, d.Format(dateLayout))
		}
	}
	return out
}

func horizonEnd(today time.Time) string {
	return civilDate(today).AddDate(0, 0, monthlyHorizon-1).Format(dateLayout)
}

// civilDate drops the clock and zone so day arithmetic ignores DST.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// isoWeekday maps Monday..Sunday to 1..7.
func isoWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

func toSet(xs []int) map[int]bool {
	m := make(map[int]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
