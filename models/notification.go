package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification is the persisted copy of a workflow event delivered to a user.
// The same payload is published to Redis for live websocket delivery.
type Notification struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	UserID    uint           `json:"user_id" gorm:"not null;index"`
	EventType string         `json:"event_type" gorm:"type:varchar(40);not null"`
	Payload   string         `json:"payload" gorm:"type:text"` // JSON-encoded event payload
	Read      bool           `json:"read" gorm:"not null;default:false"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User User `json:"user,omitempty"`
}
