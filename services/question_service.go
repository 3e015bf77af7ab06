package services

import (
	"context"
	"errors"
	"time"

	"pathbank/models"

	"gorm.io/gorm"
)

// actionEdit and actionView are not workflow transitions; they only name
// content access in error values so the UI can report what was attempted.
const (
	actionEdit WorkflowAction = "edit"
	actionView WorkflowAction = "view"
)

// editableStatuses are the only statuses in which question content may be
// written; the update statement is conditioned on them so a transition that
// commits mid-edit can never be overwritten.
var editableStatuses = []models.QuestionStatus{models.StatusDraft, models.StatusRejected}

type QuestionService struct {
	db *gorm.DB
}

func NewQuestionService(db *gorm.DB) *QuestionService {
	return &QuestionService{db: db}
}

type CreateQuestionRequest struct {
	Title         string                `json:"title" binding:"required"`
	Body          string                `json:"body" binding:"required"`
	Explanation   string                `json:"explanation"`
	TeachingPoint string                `json:"teaching_point"`
	Difficulty    models.Difficulty     `json:"difficulty"`
	References    string                `json:"references"`
	Options       []CreateOptionRequest `json:"options" binding:"required,min=2,max=6"`
	Images        []AttachImageRequest  `json:"images"`
	CategoryIDs   []uint                `json:"category_ids"`
	TagIDs        []uint                `json:"tag_ids"`
}

type CreateOptionRequest struct {
	Text      string `json:"text" binding:"required"`
	IsCorrect bool   `json:"is_correct"`
	Order     int    `json:"order" binding:"required"`
}

type AttachImageRequest struct {
	URL      string               `json:"url" binding:"required"`
	Caption  string               `json:"caption"`
	Category models.ImageCategory `json:"category"`
	Order    int                  `json:"order"`
}

type UpdateQuestionRequest struct {
	Title         string                `json:"title"`
	Body          string                `json:"body"`
	Explanation   string                `json:"explanation"`
	TeachingPoint string                `json:"teaching_point"`
	Difficulty    models.Difficulty     `json:"difficulty"`
	References    string                `json:"references"`
	Options       []CreateOptionRequest `json:"options"`
	CategoryIDs   []uint                `json:"category_ids"`
	TagIDs        []uint                `json:"tag_ids"`
}

type ListQuestionsFilter struct {
	Status     models.QuestionStatus
	CategoryID uint
	TagID      uint
	Difficulty models.Difficulty
	Page       int
	PageSize   int
}

// CanEdit reports whether the actor may mutate the question's content:
// only in draft or rejected, and only by an admin or the owning creator.
func CanEdit(q *models.Question, role models.Role, actorID uint) bool {
	if q.Status != models.StatusDraft && q.Status != models.StatusRejected {
		return false
	}
	return role == models.RoleAdmin || (role == models.RoleCreator && actorID == q.CreatedBy)
}

// QuestionVisible reports whether the actor may view the question at all.
// Published questions are visible to every authenticated user; anything
// unpublished only to its owner, reviewers and admins.
func QuestionVisible(q *models.Question, role models.Role, actorID uint) bool {
	if q.Status == models.StatusApproved {
		return true
	}
	if role == models.RoleAdmin || role == models.RoleReviewer {
		return true
	}
	return actorID == q.CreatedBy
}

// CreateQuestion creates a question in draft owned by the creator.
func (s *QuestionService) CreateQuestion(ctx context.Context, creatorID uint, req *CreateQuestionRequest) (*models.Question, error) {
	if err := validateOptions(req.Options); err != nil {
		return nil, err
	}

	difficulty := req.Difficulty
	if difficulty == "" {
		difficulty = models.DifficultyMedium
	}

	question := models.Question{
		Status:        models.StatusDraft,
		CreatedBy:     creatorID,
		Title:         req.Title,
		Body:          req.Body,
		Explanation:   req.Explanation,
		TeachingPoint: req.TeachingPoint,
		Difficulty:    difficulty,
		References:    req.References,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&question).Error; err != nil {
			return err
		}
		for _, optReq := range req.Options {
			option := models.AnswerOption{
				QuestionID: question.ID,
				Text:       optReq.Text,
				IsCorrect:  optReq.IsCorrect,
				Order:      optReq.Order,
			}
			if err := tx.Create(&option).Error; err != nil {
				return err
			}
		}
		for _, imgReq := range req.Images {
			category := imgReq.Category
			if category == "" {
				category = models.ImageFigure
			}
			image := models.QuestionImage{
				QuestionID: question.ID,
				URL:        imgReq.URL,
				Caption:    imgReq.Caption,
				Category:   category,
				Order:      imgReq.Order,
			}
			if err := tx.Create(&image).Error; err != nil {
				return err
			}
		}
		if err := replaceAssociations(tx, &question, req.CategoryIDs, req.TagIDs); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "create question", Err: err}
	}

	return s.GetQuestion(ctx, question.ID)
}

// GetQuestion loads a question with its content associations.
func (s *QuestionService) GetQuestion(ctx context.Context, id uint) (*models.Question, error) {
	var question models.Question
	err := s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order(`answer_options."order"`)
		}).
		Preload("Images", func(db *gorm.DB) *gorm.DB {
			return db.Order(`question_images."order"`)
		}).
		Preload("Categories").
		Preload("Tags").
		First(&question, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// GetQuestionWithHistory additionally loads the audit trail and flags.
func (s *QuestionService) GetQuestionWithHistory(ctx context.Context, id uint) (*models.Question, error) {
	var question models.Question
	err := s.db.WithContext(ctx).
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order(`answer_options."order"`)
		}).
		Preload("Images").
		Preload("Categories").
		Preload("Tags").
		Preload("ReviewActions", func(db *gorm.DB) *gorm.DB {
			return db.Order("review_actions.created_at")
		}).
		Preload("Flags").
		First(&question, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// UpdateQuestion mutates question content. Content is editable only in draft
// or rejected, and only by the owning creator or an admin; a question under
// review or already approved must be pulled back first via a transition. The
// write touches content columns only and is conditioned on the status still
// being editable, so a transition committed by a concurrent request is never
// reverted; the losing edit gets an IllegalTransitionError instead.
func (s *QuestionService) UpdateQuestion(ctx context.Context, id, actorID uint, role models.Role, req *UpdateQuestionRequest) (*models.Question, error) {
	question, err := s.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}

	if question.Status != models.StatusDraft && question.Status != models.StatusRejected {
		return nil, &IllegalTransitionError{Status: question.Status, Action: actionEdit}
	}
	if !CanEdit(question, role, actorID) {
		return nil, &ForbiddenError{Action: actionEdit, Role: role}
	}
	if req.Options != nil {
		if err := validateOptions(req.Options); err != nil {
			return nil, err
		}
	}

	updates := map[string]interface{}{}
	if req.Title != "" {
		updates["title"] = req.Title
	}
	if req.Body != "" {
		updates["body"] = req.Body
	}
	if req.Explanation != "" {
		updates["explanation"] = req.Explanation
	}
	if req.TeachingPoint != "" {
		updates["teaching_point"] = req.TeachingPoint
	}
	if req.Difficulty != "" {
		updates["difficulty"] = req.Difficulty
	}
	if req.References != "" {
		updates["references"] = req.References
	}
	// An options-only or associations-only edit still has to pass the status
	// condition, so the guarded update always runs.
	updates["updated_at"] = time.Now()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Question{}).
			Where("id = ? AND status IN ?", question.ID, editableStatuses).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrStatusConflict
		}

		if req.Options != nil {
			if err := tx.Where("question_id = ?", question.ID).Delete(&models.AnswerOption{}).Error; err != nil {
				return err
			}
			for _, optReq := range req.Options {
				option := models.AnswerOption{
					QuestionID: question.ID,
					Text:       optReq.Text,
					IsCorrect:  optReq.IsCorrect,
					Order:      optReq.Order,
				}
				if err := tx.Create(&option).Error; err != nil {
					return err
				}
			}
		}
		return replaceAssociations(tx, question, req.CategoryIDs, req.TagIDs)
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, s.editConflict(ctx, question.ID)
		}
		return nil, &PersistenceError{Op: "update question", Err: err}
	}

	return s.GetQuestion(ctx, question.ID)
}

// editConflict reports a lost edit race, naming the status the question holds
// now rather than the one read before the race.
func (s *QuestionService) editConflict(ctx context.Context, id uint) error {
	var current models.Question
	err := s.db.WithContext(ctx).Select("status").First(&current, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrQuestionNotFound
	}
	if err != nil {
		return &PersistenceError{Op: "update question", Err: err}
	}
	return &IllegalTransitionError{Status: current.Status, Action: actionEdit}
}

// GetQuestionForActor loads the question the way the actor is allowed to see
// it. Owners, reviewers and admins also get the review history and flags;
// everyone else gets the published content alone.
func (s *QuestionService) GetQuestionForActor(ctx context.Context, id, actorID uint, role models.Role) (*models.Question, error) {
	question, err := s.GetQuestion(ctx, id)
	if err != nil {
		return nil, err
	}
	if !QuestionVisible(question, role, actorID) {
		return nil, &ForbiddenError{Action: actionView, Role: role}
	}
	if role == models.RoleAdmin || role == models.RoleReviewer || actorID == question.CreatedBy {
		return s.GetQuestionWithHistory(ctx, id)
	}
	return question, nil
}

// ListByCreator returns the creator's own questions, optionally filtered by
// status, newest first.
func (s *QuestionService) ListByCreator(ctx context.Context, creatorID uint, status models.QuestionStatus) ([]models.Question, error) {
	query := s.db.WithContext(ctx).Where("created_by = ?", creatorID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var questions []models.Question
	err := query.Preload("Categories").Order("created_at DESC").Find(&questions).Error
	return questions, err
}

// ListReviewQueue returns the questions currently assigned to the reviewer.
func (s *QuestionService) ListReviewQueue(ctx context.Context, reviewerID uint) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.WithContext(ctx).
		Where("status = ? AND reviewer_id = ?", models.StatusPendingReview, reviewerID).
		Preload("Creator").
		Preload("Categories").
		Order("updated_at ASC").
		Find(&questions).Error
	return questions, err
}

// ListFlagged returns all flagged questions with their open flags, for the
// reviewer/admin flag queue.
func (s *QuestionService) ListFlagged(ctx context.Context) ([]models.Question, error) {
	var questions []models.Question
	err := s.db.WithContext(ctx).
		Where("status = ?", models.StatusFlagged).
		Preload("Flags", func(db *gorm.DB) *gorm.DB {
			return db.Where("status = ?", "open")
		}).
		Preload("Flags.Reporter").
		Order("updated_at ASC").
		Find(&questions).Error
	return questions, err
}

// ListPublished returns the public question bank: approved questions with
// optional category/tag/difficulty filters and pagination.
func (s *QuestionService) ListPublished(ctx context.Context, filter ListQuestionsFilter) ([]models.Question, int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.Question{}).
		Where("questions.status = ?", models.StatusApproved)
	if filter.CategoryID != 0 {
		query = query.
			Joins("JOIN question_categories qc ON qc.question_id = questions.id").
			Where("qc.category_id = ?", filter.CategoryID)
	}
	if filter.TagID != 0 {
		query = query.
			Joins("JOIN question_tags qt ON qt.question_id = questions.id").
			Where("qt.tag_id = ?", filter.TagID)
	}
	if filter.Difficulty != "" {
		query = query.Where("questions.difficulty = ?", filter.Difficulty)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var questions []models.Question
	err := query.
		Preload("Options", func(db *gorm.DB) *gorm.DB {
			return db.Order(`answer_options."order"`)
		}).
		Preload("Images").
		Preload("Categories").
		Preload("Tags").
		Order("questions.created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&questions).Error
	return questions, total, err
}

func validateOptions(options []CreateOptionRequest) error {
	correctCount := 0
	for _, opt := range options {
		if opt.IsCorrect {
			correctCount++
		}
	}
	if correctCount != 1 {
		return &ValidationError{Field: "options", Reason: "each question must have exactly one correct answer"}
	}
	return nil
}

func replaceAssociations(tx *gorm.DB, question *models.Question, categoryIDs, tagIDs []uint) error {
	if categoryIDs != nil {
		var categories []models.Category
		if err := tx.Find(&categories, categoryIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(question).Association("Categories").Replace(categories); err != nil {
			return err
		}
	}
	if tagIDs != nil {
		var tags []models.Tag
		if err := tx.Find(&tags, tagIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(question).Association("Tags").Replace(tags); err != nil {
			return err
		}
	}
	return nil
}
