package models

import "time"

// ReviewAction is an append-only audit record of a workflow transition.
// Rows are never updated or deleted, so there is no UpdatedAt/DeletedAt.
type ReviewAction struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	QuestionID  uint      `json:"question_id" gorm:"not null;index"`
	ActorID     uint      `json:"actor_id" gorm:"not null"`
	ActionType  string    `json:"action_type" gorm:"type:varchar(30);not null"`
	Feedback    string    `json:"feedback" gorm:"type:text"`
	ChangesMade string    `json:"changes_made" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}
