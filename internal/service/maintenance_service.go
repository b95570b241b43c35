package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/onoki/glance/internal/model"
	"github.com/onoki/glance/internal/repository"
)

// MaintenanceConfig holds thresholds and paths used by maintenance.
type MaintenanceConfig struct {
	DatabaseFile       string
	TaskCountWarning   int64
	DatabaseSizeWarnMB int64
	AppVersion         string
	Location           *time.Location
}

// Warning is a condition worth surfacing to the user.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaintenanceService runs the background jobs around the store: recurrence
// generation, history archival, index recovery and health probes. Its
// persisted state lives in a StateStore.
type MaintenanceService struct {
	cfg        MaintenanceConfig
	fs         afero.Fs
	state      *repository.StateStore
	meta       *repository.MetaRepository
	tasks      *TaskService
	search     *SearchService
	recurrence *RecurrenceService
	history    *HistoryService
	log        *slog.Logger
	now        func() time.Time

	reindexMu sync.Mutex
}

func NewMaintenanceService(
	cfg MaintenanceConfig,
	fsys afero.Fs,
	state *repository.StateStore,
	meta *repository.MetaRepository,
	tasks *TaskService,
	search *SearchService,
	recurrence *RecurrenceService,
	history *HistoryService,
	log *slog.Logger,
) *MaintenanceService {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &MaintenanceService{
		cfg:        cfg,
		fs:         fsys,
		state:      state,
		meta:       meta,
		tasks:      tasks,
		search:     search,
		recurrence: recurrence,
		history:    history,
		log:        log,
		now:        time.Now,
	}
}

// RunStartup checks integrity, makes sure the search index is usable,
// records the app version and generates recurring tasks.
func (s *MaintenanceService) RunStartup(ctx context.Context) error {
	if _, err := s.CheckIntegrity(ctx); err != nil {
		s.log.Error("integrity check failed", slog.Any("error", err))
	}
	if err := s.EnsureSearchIndex(ctx); err != nil {
		return err
	}
	if s.cfg.AppVersion != "" {
		if err := s.meta.Set(ctx, model.MetaAppVersion, s.cfg.AppVersion); err != nil {
			return err
		}
	}
	if _, err := s.Generate(ctx); err != nil {
		return err
	}
	return nil
}

// RunDaily is the daily tick: generate, repair the index and report warnings.
func (s *MaintenanceService) RunDaily(ctx context.Context) error {
	if _, err := s.Generate(ctx); err != nil {
		return err
	}
	if err := s.EnsureSearchIndex(ctx); err != nil {
		return err
	}
	warnings, err := s.Warnings(ctx)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		s.log.Warn("maintenance warning", slog.String("code", w.Code), slog.String("message", w.Message))
	}
	return nil
}

// Generate runs recurrence generation for the current day and records the run.
func (s *MaintenanceService) Generate(ctx context.Context) (int, error) {
	now := s.now().In(s.cfg.Location)
	created, err := s.recurrence.Generate(ctx, now)
	if err != nil {
		return 0, err
	}
	_, err = s.state.Update(func(st *repository.MaintenanceState) error {
		st.LastGenerateAt = now.UnixMilli()
		st.LastGenerated = created
		return nil
	})
	return created, err
}

// ResetRecurrence clears the generation horizon and regenerates.
func (s *MaintenanceService) ResetRecurrence(ctx context.Context) (int, error) {
	return s.recurrence.Reset(ctx, s.now().In(s.cfg.Location))
}

// Archive moves today's completions into history.
func (s *MaintenanceService) Archive(ctx context.Context) (int, error) {
	now := s.now()
	moved, err := s.history.MoveCompletedToHistory(ctx, StartOfDay(now, s.cfg.Location))
	if err != nil {
		return 0, err
	}
	_, err = s.state.Update(func(st *repository.MaintenanceState) error {
		st.LastArchiveAt = now.UnixMilli()
		return nil
	})
	return moved, err
}

// EnsureSearchIndex rebuilds the index when its table is missing or an
// earlier rebuild did not finish.
func (s *MaintenanceService) EnsureSearchIndex(ctx context.Context) error {
	exists, err := s.search.IndexExists(ctx)
	if err != nil {
		return err
	}
	st, err := s.state.Load()
	if err != nil {
		return err
	}
	if exists && !st.ReindexInProgress {
		return nil
	}
	s.log.Warn("search index needs rebuild",
		slog.Bool("missing", !exists), slog.Bool("interrupted", st.ReindexInProgress))
	_, err = s.ReindexSearch(ctx)
	return err
}

// ReindexSearch rebuilds the index under the persisted in-progress flag.
// A second caller in this process gets ErrReindexInProgress; a flag left
// behind by a crashed run is taken over.
func (s *MaintenanceService) ReindexSearch(ctx context.Context) (int, error) {
	if !s.reindexMu.TryLock() {
		return 0, model.ErrReindexInProgress
	}
	defer s.reindexMu.Unlock()

	_, err := s.state.Update(func(st *repository.MaintenanceState) error {
		if st.ReindexInProgress {
			s.log.Warn("previous reindex did not finish, restarting")
		}
		st.ReindexInProgress = true
		return nil
	})
	if err != nil {
		return 0, err
	}

	n, rebuildErr := s.search.Rebuild(ctx)

	_, err = s.state.Update(func(st *repository.MaintenanceState) error {
		if rebuildErr == nil {
			st.ReindexInProgress = false
			st.LastReindexAt = s.now().UnixMilli()
		}
		return nil
	})
	if rebuildErr != nil {
		return 0, rebuildErr
	}
	if err != nil {
		return 0, err
	}
	s.log.Info("search index rebuilt", slog.Int("tasks", n))
	return n, nil
}

// CheckIntegrity runs the engine's integrity check and records the outcome.
// It returns "" for a healthy database.
func (s *MaintenanceService) CheckIntegrity(ctx context.Context) (string, error) {
	result, err := s.meta.IntegrityCheck(ctx)
	if err != nil {
		return "", err
	}
	problem := ""
	if !strings.EqualFold(strings.TrimSpace(result), "ok") {
		problem = result
	}
	_, err = s.state.Update(func(st *repository.MaintenanceState) error {
		st.IntegrityError = problem
		st.IntegrityCheckAt = s.now().UnixMilli()
		return nil
	})
	return problem, err
}

// Warnings lists conditions the user should know about.
func (s *MaintenanceService) Warnings(ctx context.Context) ([]Warning, error) {
	var out []Warning

	count, err := s.tasks.Count(ctx)
	if err != nil {
		return nil, err
	}
	if s.cfg.TaskCountWarning > 0 && count >= s.cfg.TaskCountWarning {
		out = append(out, Warning{
			Code:    "task_count",
			Message: fmt.Sprintf("Task count is %d; consider archiving or cleanup.", count),
		})
	}

	if s.cfg.DatabaseFile != "" && s.cfg.DatabaseSizeWarnMB > 0 {
		info, err := s.fs.Stat(s.cfg.DatabaseFile)
		if err == nil {
			if mb := info.Size() / (1024 * 1024); mb >= s.cfg.DatabaseSizeWarnMB {
				out = append(out, Warning{
					Code:    "db_size",
					Message: fmt.Sprintf("Database size is %d MB; consider cleanup.", mb),
				})
			}
		}
	}

	st, err := s.state.Load()
	if err != nil {
		return nil, err
	}
	if st.IntegrityError != "" {
		out = append(out, Warning{
			Code:    "integrity",
			Message: "Database integrity check failed: " + st.IntegrityError,
		})
	}
	return out, nil
}

// Status is a snapshot for the doctor command.
type Status struct {
	SchemaVersion int64                       `json:"schemaVersion"`
	TaskCount     int64                       `json:"taskCount"`
	IndexPresent  bool                        `json:"indexPresent"`
	IndexStale    int                         `json:"indexStale"`
	State         repository.MaintenanceState `json:"state"`
	Warnings      []Warning                   `json:"warnings"`
}

func (s *MaintenanceService) Status(ctx context.Context) (Status, error) {
	version, err := s.meta.SchemaVersion(ctx)
	if err != nil {
		return Status{}, err
	}
	count, err := s.tasks.Count(ctx)
	if err != nil {
		return Status{}, err
	}
	present, err := s.search.IndexExists(ctx)
	if err != nil {
		return Status{}, err
	}
	stale := 0
	if present {
		if stale, err = s.search.StaleEntries(ctx); err != nil {
			return Status{}, err
		}
	}
	st, err := s.state.Load()
	if err != nil {
		return Status{}, err
	}
	warnings, err := s.Warnings(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		SchemaVersion: version,
		TaskCount:     count,
		IndexPresent:  present,
		IndexStale:    stale,
		State:         st,
		Warnings:      warnings,
	}, nil
}
