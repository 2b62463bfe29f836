package model

import "gorm.io/gorm"

// Known inference engine types. Anything else is treated as a generic
// endpoint with a /health introspection path.
const (
	EngineOllama = "ollama"
	EngineVLLM   = "vllm"
	EngineSGLang = "sglang"
	EngineOpenAI = "openai"
	EngineCustom = "custom"
)

// InferenceEngine is an upstream inference server hosting zero or more
// models. An engine cannot be deleted while it still owns models.
type InferenceEngine struct {
	gorm.Model
	Name        string           `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Type        string           `gorm:"type:varchar(50);not null" json:"type"`
	BaseURL     string           `gorm:"type:varchar(512);not null" json:"baseUrl"`
	APIKey      string           `gorm:"type:varchar(255)" json:"apiKey,omitempty"`
	IsActive    bool             `gorm:"default:true;not null" json:"isActive"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
	Models      []InferenceModel `gorm:"foreignKey:EngineID" json:"models,omitempty"`
}

// InferenceModel is a registered inference target. ApiID is the identifier
// clients put in the request body; Endpoint is the concrete upstream URL the
// gateway forwards to. EngineID is nullable: a model may be a standalone,
// manually configured endpoint.
type InferenceModel struct {
	gorm.Model
	Name        string           `gorm:"type:varchar(255);not null" json:"name"`
	ApiID       string           `gorm:"type:varchar(255);uniqueIndex;not null" json:"apiId"`
	Endpoint    string           `gorm:"type:varchar(512);not null" json:"endpoint"`
	IsActive    bool             `gorm:"default:true;not null" json:"isActive"`
	EngineID    *uint            `gorm:"index" json:"engineId,omitempty"`
	Engine      *InferenceEngine `json:"engine,omitempty"`
	Description string           `gorm:"type:text" json:"description,omitempty"`
}
