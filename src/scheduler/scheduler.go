package scheduler

import (
	"context"
	"fmt"

	"trading-data-viewer/src/config"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/service"
	"trading-data-viewer/src/storage"

	"github.com/robfig/cron/v3"
)

// -----------------------------------------------------------------------------
// Maintenance Scheduler
// -----------------------------------------------------------------------------

// Scheduler manages recurring maintenance: instrument catalog refresh and
// idle connection sweeping.
type Scheduler struct {
	Cron    *cron.Cron
	Config  *config.Config
	Logger  *logger.Logger
	Service *service.DataService
	Pool    *storage.ConnectionPool
	Ctx     context.Context
}

// -----------------------------------------------------------------------------

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, cfg *config.Config, log *logger.Logger,
	svc *service.DataService, pool *storage.ConnectionPool) *Scheduler {

	return &Scheduler{
		Cron:    cron.New(),
		Config:  cfg,
		Logger:  log.Named("scheduler"),
		Service: svc,
		Pool:    pool,
		Ctx:     ctx,
	}
}

// -----------------------------------------------------------------------------

// RegisterAll registers the catalog refresh and idle sweep tasks from the
// configured cron expressions.
func (s *Scheduler) RegisterAll() error {
	if _, err := s.Cron.AddFunc(s.Config.Maintenance.CatalogRefreshCron, s.refreshCatalog); err != nil {
		return fmt.Errorf("register catalog refresh task: %w", err)
	}
	if _, err := s.Cron.AddFunc(s.Config.Maintenance.IdleSweepCron, s.sweepIdle); err != nil {
		return fmt.Errorf("register idle sweep task: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("Scheduler started")
}

// Stop stops the cron scheduler gracefully.
func (s *Scheduler) Stop() {
	s.Cron.Stop()
	s.Logger.Info("Scheduler stopped")
}

// -----------------------------------------------------------------------------
// Tasks
// -----------------------------------------------------------------------------

func (s *Scheduler) refreshCatalog() {
	s.Logger.Debug("Running catalog refresh")
	if err := s.Service.RefreshInstruments(s.Ctx); err != nil {
		s.Logger.Error("Catalog refresh: %v", err)
	}
}

// -----------------------------------------------------------------------------

func (s *Scheduler) sweepIdle() {
	closed := s.Pool.SweepIdle()
	if closed > 0 {
		s.Logger.Info("Idle sweep closed %d connection(s)", closed)
	}
}
