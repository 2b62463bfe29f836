package model

import "gorm.io/gorm"

// User roles. The first user ever provisioned becomes an admin.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an identity provisioned from the external identity provider.
type User struct {
	gorm.Model
	Subject string `gorm:"type:varchar(255);uniqueIndex;not null" json:"subject"`
	Email   string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name    string `gorm:"type:varchar(255)" json:"name"`
	Role    string `gorm:"type:varchar(50);default:'user';not null" json:"role"`
	Apps    []App  `json:"apps,omitempty"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
