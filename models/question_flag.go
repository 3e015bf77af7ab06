package models

import (
	"time"

	"gorm.io/gorm"
)

type ReportType string

const (
	ReportIncorrectAnswer      ReportType = "incorrect_answer"
	ReportUnclearExplanation   ReportType = "unclear_explanation"
	ReportBrokenImage          ReportType = "broken_image"
	ReportInappropriateContent ReportType = "inappropriate_content"
	ReportOther                ReportType = "other"
)

// ValidReportType reports whether s is one of the known report types.
func ValidReportType(s string) bool {
	switch ReportType(s) {
	case ReportIncorrectAnswer, ReportUnclearExplanation, ReportBrokenImage, ReportInappropriateContent, ReportOther:
		return true
	}
	return false
}

type QuestionFlag struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	QuestionID  uint           `json:"question_id" gorm:"not null;index"`
	ReportedBy  uint           `json:"reported_by" gorm:"not null"`
	ReportType  ReportType     `json:"report_type" gorm:"type:varchar(30);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Status      string         `json:"status" gorm:"type:varchar(10);not null;default:'open'"` // open, resolved
	ResolvedBy  *uint          `json:"resolved_by"`
	ResolvedAt  *time.Time     `json:"resolved_at"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Question Question `json:"question,omitempty"`
	Reporter User     `json:"reporter,omitempty" gorm:"foreignKey:ReportedBy"`
}
