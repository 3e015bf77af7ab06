package models

import (
	"time"

	"gorm.io/gorm"
)

type QuestionStatus string

const (
	StatusDraft         QuestionStatus = "draft"
	StatusPendingReview QuestionStatus = "pending_review"
	StatusApproved      QuestionStatus = "approved"
	StatusRejected      QuestionStatus = "rejected"
	StatusFlagged       QuestionStatus = "flagged"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Question struct {
	ID            uint           `json:"id" gorm:"primaryKey"`
	Status        QuestionStatus `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"` // draft, pending_review, approved, rejected, flagged
	CreatedBy     uint           `json:"created_by" gorm:"not null;index"`
	ReviewerID    *uint          `json:"reviewer_id" gorm:"index"` // set only while pending_review
	Title         string         `json:"title" gorm:"not null"`
	Body          string         `json:"body" gorm:"type:text;not null"`
	Explanation   string         `json:"explanation" gorm:"type:text"`
	TeachingPoint string         `json:"teaching_point" gorm:"type:text"`
	Difficulty    Difficulty     `json:"difficulty" gorm:"type:varchar(10);not null;default:'medium'"`
	References    string         `json:"references" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Creator       User            `json:"creator,omitempty" gorm:"foreignKey:CreatedBy"`
	Reviewer      *User           `json:"reviewer,omitempty" gorm:"foreignKey:ReviewerID"`
	Options       []AnswerOption  `json:"options,omitempty" gorm:"foreignKey:QuestionID"`
	Images        []QuestionImage `json:"images,omitempty" gorm:"foreignKey:QuestionID"`
	Categories    []Category      `json:"categories,omitempty" gorm:"many2many:question_categories"`
	Tags          []Tag           `json:"tags,omitempty" gorm:"many2many:question_tags"`
	ReviewActions []ReviewAction  `json:"review_actions,omitempty" gorm:"foreignKey:QuestionID"`
	Flags         []QuestionFlag  `json:"flags,omitempty" gorm:"foreignKey:QuestionID"`
}
