package services

import (
	"context"
	"errors"
	"time"

	"pathbank/models"

	"gorm.io/gorm"
)

// GormWorkflowStore is the Postgres-backed WorkflowStore. The compare-and-swap
// semantics of ConditionalUpdateStatus come from conditioning every status
// write on the stored status column and checking the affected row count.
type GormWorkflowStore struct {
	db *gorm.DB
}

func NewGormWorkflowStore(db *gorm.DB) *GormWorkflowStore {
	return &GormWorkflowStore{db: db}
}

func (s *GormWorkflowStore) GetQuestion(ctx context.Context, id uint) (*models.Question, error) {
	var q models.Question
	err := s.db.WithContext(ctx).First(&q, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *GormWorkflowStore) ConditionalUpdateStatus(ctx context.Context, id uint, expected, next models.QuestionStatus, reviewerID *uint) error {
	res := s.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]interface{}{
			"status":      next,
			"reviewer_id": reviewerID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *GormWorkflowStore) AppendReviewAction(ctx context.Context, rec *models.ReviewAction) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *GormWorkflowStore) RecordFlag(ctx context.Context, flag *models.QuestionFlag) error {
	return s.db.WithContext(ctx).Create(flag).Error
}

func (s *GormWorkflowStore) ResolveFlags(ctx context.Context, questionID, resolvedBy uint) ([]uint, error) {
	var reporters []uint
	err := s.db.WithContext(ctx).
		Model(&models.QuestionFlag{}).
		Where("question_id = ? AND status = ?", questionID, "open").
		Pluck("reported_by", &reporters).Error
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.db.WithContext(ctx).
		Model(&models.QuestionFlag{}).
		Where("question_id = ? AND status = ?", questionID, "open").
		Updates(map[string]interface{}{
			"status":      "resolved",
			"resolved_by": resolvedBy,
			"resolved_at": now,
		}).Error
	if err != nil {
		return nil, err
	}
	return reporters, nil
}

func (s *GormWorkflowStore) DeleteDraft(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.StatusDraft).
		Delete(&models.Question{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusConflict
	}
	return nil
}

func (s *GormWorkflowStore) ListReviewersByWorkload(ctx context.Context) ([]ReviewerLoad, error) {
	var loads []ReviewerLoad
	err := s.db.WithContext(ctx).Raw(`
		SELECT u.id AS reviewer_id, u.created_at, COUNT(q.id) AS pending_count
		FROM users u
		LEFT JOIN questions q
			ON q.reviewer_id = u.id
			AND q.status = ?
			AND q.deleted_at IS NULL
		WHERE u.role IN ? AND u.status = ? AND u.deleted_at IS NULL
		GROUP BY u.id, u.created_at`,
		models.StatusPendingReview,
		[]models.Role{models.RoleReviewer, models.RoleAdmin},
		models.UserActive,
	).Scan(&loads).Error
	return loads, err
}

func (s *GormWorkflowStore) InTransaction(ctx context.Context, fn func(WorkflowStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormWorkflowStore{db: tx})
	})
}
