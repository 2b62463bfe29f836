// Package registry keeps the local model registry in line with what the
// engines actually serve.
package registry

import (
	"log/slog"
	"strings"

	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/model"
)

// Summary reports what a reconciliation run changed.
type Summary struct {
	Created     int `json:"created"`
	Reactivated int `json:"reactivated"`
	Deactivated int `json:"deactivated"`
}

// Reconciler aligns an engine's registered models with a probe report.
type Reconciler struct {
	db     db.Service
	logger *slog.Logger
}

// New creates a Reconciler.
func New(database db.Service, logger *slog.Logger) *Reconciler {
	return &Reconciler{db: database, logger: logger.With("component", "registry")}
}

// DefaultEndpoint derives the completion endpoint for a model discovered on
// an engine of the given type.
func DefaultEndpoint(engineType, baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if engineType == model.EngineOllama {
		return base + "/api/generate"
	}
	return base + "/v1/chat/completions"
}

// Reconcile applies set-difference semantics between the engine's registered
// models and the ids the engine reports: missing ids are created active,
// known-but-inactive ids are reactivated, and registered models absent from
// the report are deactivated (never deleted). Individual failures are logged
// and do not abort the run.
func (r *Reconciler) Reconcile(engine *model.InferenceEngine, reported []string) (Summary, error) {
	var summary Summary

	existing, err := r.db.ListModelsByEngine(engine.ID)
	if err != nil {
		return summary, err
	}

	known := make(map[string]*model.InferenceModel, len(existing))
	for i := range existing {
		known[existing[i].ApiID] = &existing[i]
	}
	reportedSet := make(map[string]struct{}, len(reported))
	for _, id := range reported {
		reportedSet[id] = struct{}{}
	}

	for _, apiID := range reported {
		current, ok := known[apiID]
		if !ok {
			m := &model.InferenceModel{
				Name:     apiID,
				ApiID:    apiID,
				Endpoint: DefaultEndpoint(engine.Type, engine.BaseURL),
				IsActive: true,
				EngineID: &engine.ID,
			}
			if err := r.db.CreateModel(m); err != nil {
				r.logger.Error("Failed to register discovered model", "engine", engine.Name, "model", apiID, "error", err)
				continue
			}
			summary.Created++
			continue
		}
		if !current.IsActive {
			if err := r.db.SetModelActive(current.ID, true); err != nil {
				r.logger.Error("Failed to reactivate model", "engine", engine.Name, "model", apiID, "error", err)
				continue
			}
			summary.Reactivated++
		}
	}

	for _, m := range existing {
		if _, ok := reportedSet[m.ApiID]; ok {
			continue
		}
		if !m.IsActive {
			continue
		}
		if err := r.db.SetModelActive(m.ID, false); err != nil {
			r.logger.Error("Failed to deactivate vanished model", "engine", engine.Name, "model", m.ApiID, "error", err)
			continue
		}
		summary.Deactivated++
	}

	r.logger.Info("Reconciled engine models",
		"engine", engine.Name,
		"reported", len(reported),
		"created", summary.Created,
		"reactivated", summary.Reactivated,
		"deactivated", summary.Deactivated,
	)
	return summary, nil
}
