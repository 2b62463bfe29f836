package registry

import (
	"testing"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/db"
	"github.com/modelgate/modelgate/internal/logger"
	"github.com/modelgate/modelgate/internal/model"
	"github.com/stretchr/testify/assert"
)

func setupTest(t *testing.T) (db.Service, *Reconciler) {
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Failed to create test db service: %v", err)
	}
	return service, New(service, logger.New(false))
}

func TestDefaultEndpoint(t *testing.T) {
	assert.Equal(t, "http://x:11434/api/generate", DefaultEndpoint(model.EngineOllama, "http://x:11434/"))
	assert.Equal(t, "http://y:8000/v1/chat/completions", DefaultEndpoint(model.EngineVLLM, "http://y:8000"))
	assert.Equal(t, "http://z/v1/chat/completions", DefaultEndpoint("custom", "http://z"))
}

func TestReconcile(t *testing.T) {
	service, reconciler := setupTest(t)

	engine := model.InferenceEngine{Name: "box", Type: model.EngineOllama, BaseURL: "http://x:11434", IsActive: true}
	assert.NoError(t, service.CreateEngine(&engine))

	a := model.InferenceModel{Name: "a", ApiID: "a", Endpoint: "http://x:11434/api/generate", IsActive: true, EngineID: &engine.ID}
	b := model.InferenceModel{Name: "b", ApiID: "b", Endpoint: "http://x:11434/api/generate", IsActive: true, EngineID: &engine.ID}
	assert.NoError(t, service.CreateModel(&a))
	assert.NoError(t, service.CreateModel(&b))

	// The engine now reports {b, c}: a vanished, c is new.
	summary, err := reconciler.Reconcile(&engine, []string{"b", "c"})
	assert.NoError(t, err)
	assert.Equal(t, Summary{Created: 1, Deactivated: 1}, summary)

	models, err := service.ListModelsByEngine(engine.ID)
	assert.NoError(t, err)
	assert.Len(t, models, 3)

	byAPIID := make(map[string]model.InferenceModel)
	for _, m := range models {
		byAPIID[m.ApiID] = m
	}

	assert.False(t, byAPIID["a"].IsActive)
	assert.True(t, byAPIID["b"].IsActive)
	assert.True(t, byAPIID["c"].IsActive)
	assert.Equal(t, "http://x:11434/api/generate", byAPIID["c"].Endpoint)
	assert.Equal(t, engine.ID, *byAPIID["c"].EngineID)
}

func TestReconcileReactivates(t *testing.T) {
	service, reconciler := setupTest(t)

	engine := model.InferenceEngine{Name: "box", Type: model.EngineVLLM, BaseURL: "http://y:8000", IsActive: true}
	assert.NoError(t, service.CreateEngine(&engine))

	dormant := model.InferenceModel{Name: "q", ApiID: "q", Endpoint: "http://y:8000/v1/chat/completions", IsActive: false, EngineID: &engine.ID}
	assert.NoError(t, service.CreateModel(&dormant))

	summary, err := reconciler.Reconcile(&engine, []string{"q"})
	assert.NoError(t, err)
	assert.Equal(t, Summary{Reactivated: 1}, summary)

	reloaded, err := service.GetModel(dormant.ID)
	assert.NoError(t, err)
	assert.True(t, reloaded.IsActive)
}

func TestReconcileScopedToEngine(t *testing.T) {
	service, reconciler := setupTest(t)

	engine := model.InferenceEngine{Name: "box", Type: model.EngineVLLM, BaseURL: "http://y:8000", IsActive: true}
	other := model.InferenceEngine{Name: "other", Type: model.EngineOllama, BaseURL: "http://x:11434", IsActive: true}
	assert.NoError(t, service.CreateEngine(&engine))
	assert.NoError(t, service.CreateEngine(&other))

	foreign := model.InferenceModel{Name: "foreign", ApiID: "foreign", Endpoint: "http://x:11434/api/generate", IsActive: true, EngineID: &other.ID}
	standalone := model.InferenceModel{Name: "manual", ApiID: "manual", Endpoint: "http://z/v1/chat/completions", IsActive: true}
	assert.NoError(t, service.CreateModel(&foreign))
	assert.NoError(t, service.CreateModel(&standalone))

	// An empty-ish report for this engine must not touch other engines'
	// models or standalone ones.
	_, err := reconciler.Reconcile(&engine, []string{"new"})
	assert.NoError(t, err)

	reloadedForeign, _ := service.GetModel(foreign.ID)
	reloadedStandalone, _ := service.GetModel(standalone.ID)
	assert.True(t, reloadedForeign.IsActive)
	assert.True(t, reloadedStandalone.IsActive)
}
