package db

import (
	"errors"
	"fmt"
	"time"

	"github.com/modelgate/modelgate/internal/config"
	"github.com/modelgate/modelgate/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = gorm.ErrRecordNotFound

// EngineHasModelsError is returned by DeleteEngine when the engine still
// owns models. Its message is intended for direct display to the admin.
type EngineHasModelsError struct {
	Count int64
}

func (e *EngineHasModelsError) Error() string {
	return fmt.Sprintf("Cannot delete: %d model(s) are linked to this engine. Remove them first.", e.Count)
}

// Service defines the persistence operations used by the rest of the
// platform. It is an interface so handlers can be tested with mocks.
type Service interface {
	// Users
	ProvisionUser(subject, email, name string) (*model.User, error)

	// Apps
	CreateApp(app *model.App) error
	GetApp(id uint) (*model.App, error)
	ListAppsByUser(userID uint) ([]model.App, error)

	// API keys
	CreateAPIKey(key *model.APIKey) error
	GetAPIKey(id uint) (*model.APIKey, error)
	FindAPIKeyByKey(key string) (*model.APIKey, error)
	ListAPIKeys() ([]model.APIKey, error)
	UpdateAPIKeyName(id uint, name string) error
	SetAPIKeyActive(id uint, active bool) error
	DeleteAPIKey(id uint) error
	TouchAPIKeyLastUsed(id uint) error
	ReplaceAPIKeyModels(keyID uint, modelIDs []uint) error
	GrantModelAccess(keyID, modelID uint) error
	DeactivateExpiredAPIKeys() (int64, error)

	// Models
	CreateModel(m *model.InferenceModel) error
	GetModel(id uint) (*model.InferenceModel, error)
	ListModels() ([]model.InferenceModel, error)
	ListActiveModels() ([]model.InferenceModel, error)
	ListModelsByEngine(engineID uint) ([]model.InferenceModel, error)
	UpdateModel(m *model.InferenceModel) error
	SetModelActive(id uint, active bool) error
	DeleteModel(id uint) error

	// Engines
	CreateEngine(e *model.InferenceEngine) error
	GetEngine(id uint) (*model.InferenceEngine, error)
	ListEngines() ([]model.InferenceEngine, error)
	ListActiveEngines() ([]model.InferenceEngine, error)
	UpdateEngine(e *model.InferenceEngine) error
	SetEngineActive(id uint, active bool) error
	DeleteEngine(id uint) error
	CountModelsByEngine(engineID uint) (int64, error)

	// GetDB exposes the underlying handle for tests.
	GetDB() *gorm.DB
}

type gormService struct {
	db *gorm.DB
}

// NewService initializes the database connection based on the provided
// configuration and returns a Service backed by it.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate the schema
	err = db.AutoMigrate(
		&model.User{},
		&model.App{},
		&model.APIKey{},
		&model.InferenceEngine{},
		&model.InferenceModel{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return &gormService{db: db}, nil
}

func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

// ProvisionUser returns the user for the given identity subject, creating it
// on first sign-in. The first user ever created is promoted to admin.
func (s *gormService) ProvisionUser(subject, email, name string) (*model.User, error) {
	var user model.User
	err := s.db.Where("subject = ?", subject).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up user %s: %w", subject, err)
	}

	var count int64
	if err := s.db.Model(&model.User{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	role := model.RoleUser
	if count == 0 {
		role = model.RoleAdmin
	}

	user = model.User{Subject: subject, Email: email, Name: name, Role: role}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", subject, err)
	}
	return &user, nil
}

func (s *gormService) CreateApp(app *model.App) error {
	return s.db.Create(app).Error
}

func (s *gormService) GetApp(id uint) (*model.App, error) {
	var app model.App
	if err := s.db.Preload("Keys.Models").First(&app, id).Error; err != nil {
		return nil, err
	}
	return &app, nil
}

func (s *gormService) ListAppsByUser(userID uint) ([]model.App, error) {
	var apps []model.App
	err := s.db.Preload("Keys").Where("user_id = ?", userID).Order("created_at desc").Find(&apps).Error
	return apps, err
}

func (s *gormService) CreateAPIKey(key *model.APIKey) error {
	return s.db.Create(key).Error
}

func (s *gormService) GetAPIKey(id uint) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.Preload("Models").Preload("App.User").First(&key, id).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// FindAPIKeyByKey resolves a bearer token to its key row, eagerly loading
// the entitled models (with their engines) and the owning app and user.
func (s *gormService) FindAPIKeyByKey(key string) (*model.APIKey, error) {
	var apiKey model.APIKey
	err := s.db.
		Preload("Models.Engine").
		Preload("App.User").
		Where("key = ?", key).
		First(&apiKey).Error
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}

func (s *gormService) ListAPIKeys() ([]model.APIKey, error) {
	var keys []model.APIKey
	err := s.db.Preload("Models").Preload("App.User").Order("created_at desc").Find(&keys).Error
	return keys, err
}

func (s *gormService) UpdateAPIKeyName(id uint, name string) error {
	result := s.db.Model(&model.APIKey{}).Where("id = ?", id).Update("name", name)
	if result.Error != nil {
		return fmt.Errorf("failed to rename api key %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormService) SetAPIKeyActive(id uint, active bool) error {
	result := s.db.Model(&model.APIKey{}).Where("id = ?", id).Update("active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update api key %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormService) DeleteAPIKey(id uint) error {
	return s.db.Select("Models").Delete(&model.APIKey{Model: gorm.Model{ID: id}}).Error
}

// TouchAPIKeyLastUsed updates the key's last-used timestamp. It is called
// fire-and-forget from the gateway; a missing row is not an error.
func (s *gormService) TouchAPIKeyLastUsed(id uint) error {
	result := s.db.Model(&model.APIKey{}).Where("id = ?", id).UpdateColumn("last_used", time.Now())
	if result.Error != nil {
		return fmt.Errorf("failed to touch api key %d: %w", id, result.Error)
	}
	return nil
}

// ReplaceAPIKeyModels replaces the key's entitlement set with exactly the
// given model ids.
func (s *gormService) ReplaceAPIKeyModels(keyID uint, modelIDs []uint) error {
	var key model.APIKey
	if err := s.db.First(&key, keyID).Error; err != nil {
		return err
	}
	var models []model.InferenceModel
	if len(modelIDs) > 0 {
		if err := s.db.Find(&models, modelIDs).Error; err != nil {
			return fmt.Errorf("failed to load models for key %d: %w", keyID, err)
		}
	}
	return s.db.Model(&key).Association("Models").Replace(models)
}

// GrantModelAccess connects a single model to the key's entitlement set.
func (s *gormService) GrantModelAccess(keyID, modelID uint) error {
	var key model.APIKey
	if err := s.db.First(&key, keyID).Error; err != nil {
		return err
	}
	var m model.InferenceModel
	if err := s.db.First(&m, modelID).Error; err != nil {
		return err
	}
	return s.db.Model(&key).Association("Models").Append(&m)
}

// DeactivateExpiredAPIKeys flips keys past their expiry to inactive and
// returns how many were affected.
func (s *gormService) DeactivateExpiredAPIKeys() (int64, error) {
	result := s.db.Model(&model.APIKey{}).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at < ?", true, time.Now()).
		Update("active", false)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to deactivate expired api keys: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *gormService) CreateModel(m *model.InferenceModel) error {
	return s.db.Create(m).Error
}

func (s *gormService) GetModel(id uint) (*model.InferenceModel, error) {
	var m model.InferenceModel
	if err := s.db.Preload("Engine").First(&m, id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *gormService) ListModels() ([]model.InferenceModel, error) {
	var models []model.InferenceModel
	err := s.db.Preload("Engine").Order("created_at desc").Find(&models).Error
	return models, err
}

func (s *gormService) ListActiveModels() ([]model.InferenceModel, error) {
	var models []model.InferenceModel
	err := s.db.Where("is_active = ?", true).Order("name asc").Find(&models).Error
	return models, err
}

func (s *gormService) ListModelsByEngine(engineID uint) ([]model.InferenceModel, error) {
	var models []model.InferenceModel
	err := s.db.Where("engine_id = ?", engineID).Find(&models).Error
	return models, err
}

func (s *gormService) UpdateModel(m *model.InferenceModel) error {
	return s.db.Save(m).Error
}

func (s *gormService) SetModelActive(id uint, active bool) error {
	result := s.db.Model(&model.InferenceModel{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update model %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormService) DeleteModel(id uint) error {
	return s.db.Delete(&model.InferenceModel{}, id).Error
}

func (s *gormService) CreateEngine(e *model.InferenceEngine) error {
	return s.db.Create(e).Error
}

func (s *gormService) GetEngine(id uint) (*model.InferenceEngine, error) {
	var e model.InferenceEngine
	if err := s.db.First(&e, id).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *gormService) ListEngines() ([]model.InferenceEngine, error) {
	var engines []model.InferenceEngine
	err := s.db.Preload("Models").Order("created_at desc").Find(&engines).Error
	return engines, err
}

func (s *gormService) ListActiveEngines() ([]model.InferenceEngine, error) {
	var engines []model.InferenceEngine
	err := s.db.Where("is_active = ?", true).Find(&engines).Error
	return engines, err
}

func (s *gormService) UpdateEngine(e *model.InferenceEngine) error {
	return s.db.Save(e).Error
}

func (s *gormService) SetEngineActive(id uint, active bool) error {
	result := s.db.Model(&model.InferenceEngine{}).Where("id = ?", id).Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to update engine %d status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteEngine removes an engine. Deletion is refused while the engine still
// owns models; the caller-facing message includes the count.
func (s *gormService) DeleteEngine(id uint) error {
	count, err := s.CountModelsByEngine(id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &EngineHasModelsError{Count: count}
	}
	return s.db.Delete(&model.InferenceEngine{}, id).Error
}

func (s *gormService) CountModelsByEngine(engineID uint) (int64, error) {
	var count int64
	err := s.db.Model(&model.InferenceModel{}).Where("engine_id = ?", engineID).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count models for engine %d: %w", engineID, err)
	}
	return count, nil
}
