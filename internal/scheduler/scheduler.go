// Package scheduler runs the platform's background jobs: periodic engine
// sync and the daily expired-key sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/health"
	"github.com/modelgate/modelgate/internal/model"
	"github.com/modelgate/modelgate/internal/registry"
	"github.com/robfig/cron/v3"
)

// Prober probes an engine's introspection endpoint.
type Prober interface {
	Probe(ctx context.Context, baseURL, engineType string) health.Result
}

// Reconciler aligns the model registry with a probe report.
type Reconciler interface {
	Reconcile(engine *model.InferenceEngine, reported []string) (registry.Summary, error)
}

// Scheduler owns the cron instance and the jobs it runs.
type Scheduler struct {
	db         db.Service
	prober     Prober
	reconciler Reconciler
	logger     *slog.Logger
	c          *cron.Cron
}

// New creates a Scheduler.
func New(database db.Service, prober Prober, reconciler Reconciler, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		db:         database,
		prober:     prober,
		reconciler: reconciler,
		logger:     logger.With("component", "scheduler"),
		c:          cron.New(),
	}
}

// Start registers the jobs and starts the cron loop. engineSyncSpec is a
// cron spec like "@every 15m".
func (s *Scheduler) Start(engineSyncSpec string) error {
	if _, err := s.c.AddFunc(engineSyncSpec, s.SyncEngines); err != nil {
		return fmt.Errorf("failed to schedule engine sync job: %w", err)
	}
	if _, err := s.c.AddFunc("@daily", s.SweepExpiredKeys); err != nil {
		return fmt.Errorf("failed to schedule expired key sweep: %w", err)
	}
	s.c.Start()
	return nil
}

// Stop stops the cron loop.
func (s *Scheduler) Stop() {
	s.c.Stop()
}

// SyncEngines probes every active engine and reconciles its model registry
// against what the engine reports. Per-engine failures are logged and do
// not stop the sweep.
func (s *Scheduler) SyncEngines() {
	engines, err := s.db.ListActiveEngines()
	if err != nil {
		s.logger.Error("Engine sync: failed to list engines", "error", err)
		return
	}

	for i := range engines {
		engine := &engines[i]
		result := s.prober.Probe(context.Background(), engine.BaseURL, engine.Type)
		if result.Status != health.StatusHealthy || len(result.Models) == 0 {
			s.logger.Warn("Engine sync: skipping engine", "engine", engine.Name, "status", result.Status, "message", result.Message)
			continue
		}
		if _, err := s.reconciler.Reconcile(engine, result.Models); err != nil {
			s.logger.Error("Engine sync: reconciliation failed", "engine", engine.Name, "error", err)
		}
	}
}

// SweepExpiredKeys deactivates keys past their expiry.
func (s *Scheduler) SweepExpiredKeys() {
	n, err := s.db.DeactivateExpiredAPIKeys()
	if err != nil {
		s.logger.Error("Expired key sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("Deactivated expired API keys", "count", n)
	}
}
