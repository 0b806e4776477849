package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;not null"`
	FullName  *string   `json:"full_name"`
	Password  string    `json:"-" gorm:"not null"` // bcrypt hash
	IsActive  bool      `json:"is_active" gorm:"not null"`
	IsAdmin   bool      `json:"is_admin" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"-" gorm:"autoUpdateTime"`
}

// ActiveAdmin reports whether the user counts towards the admin quorum.
func (u *User) ActiveAdmin() bool {
	return u.IsActive && u.IsAdmin
}
