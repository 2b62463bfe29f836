package model

import "gorm.io/gorm"

// App is a named container for API keys, owned by exactly one user.
type App struct {
	gorm.Model
	Name   string   `gorm:"type:varchar(255);not null" json:"name"`
	UserID uint     `gorm:"index;not null" json:"userId"`
	User   *User    `json:"user,omitempty"`
	Keys   []APIKey `gorm:"foreignKey:AppID" json:"keys,omitempty"`
}
