package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/afero"
	"gorm.io/gorm"

	"github.com/onoki/glance/internal/config"
	"github.com/onoki/glance/internal/repository"
	"github.com/onoki/glance/internal/service"
)

// application is the wired store and its services.
type application struct {
	cfg config.Config
	log *slog.Logger
	loc *time.Location
	db  *gorm.DB

	tasks       *service.TaskService
	search      *service.SearchService
	changes     *service.ChangeService
	recurrence  *service.RecurrenceService
	history     *service.HistoryService
	maintenance *service.MaintenanceService
	digest      *service.DigestService
}

func openApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*application, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	db, err := repository.NewDB(ctx, cfg.Database.Path, repository.DBOptions{
		BusyTimeout: cfg.Database.BusyTimeout,
		Logger:      log,
	})
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}

	tx := repository.NewTxManager(db)
	taskRepo := repository.NewTaskRepository(db)
	searchRepo := repository.NewSearchRepository(db)
	changeRepo := repository.NewChangeRepository(db)
	metaRepo := repository.NewMetaRepository(db)
	fsys := afero.NewOsFs()
	state := repository.NewStateStore(fsys, cfg.StateDir())

	tasks := service.NewTaskService(tx, taskRepo, searchRepo, changeRepo, log)
	recurrence := service.NewRecurrenceService(tx, taskRepo, searchRepo, changeRepo, metaRepo, log)
	tasks.SetGenerator(recurrence)
	search := service.NewSearchService(tx, taskRepo, searchRepo, log)
	history := service.NewHistoryService(tx, taskRepo, changeRepo, loc, log)
	maintenance := service.NewMaintenanceService(service.MaintenanceConfig{
		DatabaseFile:       repository.DatabaseFile(cfg.Database.Path),
		TaskCountWarning:   cfg.Maintenance.TaskCountWarning,
		DatabaseSizeWarnMB: cfg.Maintenance.DBSizeWarnMB,
		AppVersion:         version,
		Location:           loc,
	}, fsys, state, metaRepo, tasks, search, recurrence, history, log)

	return &application{
		cfg:         cfg,
		log:         log,
		loc:         loc,
		db:          db,
		tasks:       tasks,
		search:      search,
		changes:     service.NewChangeService(changeRepo),
		recurrence:  recurrence,
		history:     history,
		maintenance: maintenance,
		digest:      service.NewDigestService(tasks, loc),
	}, nil
}

func (a *application) Close() error {
	return repository.Close(a.db)
}

func (a *application) startOfToday() int64 {
	return service.StartOfDay(time.Now(), a.loc)
}

// historyWindowStart is the lower bound of the configured history window.
func (a *application) historyWindowStart() int64 {
	now := time.Now().In(a.loc)
	return service.StartOfDay(now.AddDate(0, 0, -a.cfg.Maintenance.HistoryDays), a.loc)
}
