package model

import (
	"time"

	"gorm.io/gorm"
)

// APIKey is a bearer secret granting access to a set of entitled models.
// Self-service keys are created inactive with a one year expiry and wait
// for admin approval.
type APIKey struct {
	gorm.Model
	Key       string           `gorm:"type:varchar(255);uniqueIndex;not null" json:"key"`
	Name      string           `gorm:"type:varchar(255)" json:"name"`
	AppID     uint             `gorm:"index;not null" json:"appId"`
	App       *App             `json:"app,omitempty"`
	Active    bool             `gorm:"default:false;not null" json:"active"`
	ExpiresAt *time.Time       `json:"expiresAt,omitempty"`
	LastUsed  *time.Time       `json:"lastUsed,omitempty"`
	Models    []InferenceModel `gorm:"many2many:api_key_models" json:"models,omitempty"`
}

// IsExpired reports whether the key is past its expiry, if one is set.
func (k *APIKey) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*k.ExpiresAt)
}

// EntitledModel returns the entitled model matching the given public api id,
// or nil when the key has no access to it.
func (k *APIKey) EntitledModel(apiID string) *InferenceModel {
	for i := range k.Models {
		if k.Models[i].ApiID == apiID {
			return &k.Models[i]
		}
	}
	return nil
}
