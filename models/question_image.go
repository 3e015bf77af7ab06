package models

import (
	"time"

	"gorm.io/gorm"
)

type ImageCategory string

const (
	ImageMicroscopic ImageCategory = "microscopic"
	ImageGross       ImageCategory = "gross"
	ImageFigure      ImageCategory = "figure"
	ImageTable       ImageCategory = "table"
	ImageExternal    ImageCategory = "external"
)

// QuestionImage stores a reference to an already-hosted image. Upload and
// storage are handled outside this service.
type QuestionImage struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	QuestionID uint           `json:"question_id" gorm:"not null"`
	URL        string         `json:"url" gorm:"not null"`
	Caption    string         `json:"caption"`
	Category   ImageCategory  `json:"category" gorm:"type:varchar(20);not null;default:'figure'"`
	Order      int            `json:"order" gorm:"not null;default:0"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Question Question `json:"question,omitempty"`
}
