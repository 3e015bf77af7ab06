package services

import (
	"context"
	"errors"
	"strings"

	"pathbank/models"
)

type WorkflowAction string

const (
	ActionSubmitForReview WorkflowAction = "submit_for_review"
	ActionApprove         WorkflowAction = "approve"
	ActionReject          WorkflowAction = "reject"
	ActionRecall          WorkflowAction = "recall"
	ActionResubmit        WorkflowAction = "resubmit"
	ActionFlag            WorkflowAction = "flag"
	ActionResolveKeep     WorkflowAction = "resolve_keep"
	ActionResolveRevise   WorkflowAction = "resolve_revise"
	ActionDelete          WorkflowAction = "delete"
)

// Notification event types emitted as transition side effects.
const (
	EventQuestionSubmitted = "question_submitted"
	EventQuestionApproved  = "question_approved"
	EventQuestionRejected  = "question_rejected"
	EventQuestionFlagged   = "question_flagged"
	EventFlagDismissed     = "flag_dismissed"
	EventRevisionRequested = "revision_requested"
)

// actorRelation is the relationship an actor must have to the question for a
// given transition.
type actorRelation int

const (
	relationOwnerOrAdmin actorRelation = iota
	relationAssignedReviewerOrAdmin
	relationReviewerOrAdmin
	relationAnyAuthenticated
)

type transitionKey struct {
	From   models.QuestionStatus
	Action WorkflowAction
}

type transitionRule struct {
	To               models.QuestionStatus
	Relation         actorRelation
	RequiresFeedback bool
	AssignsReviewer  bool
	ClearsReviewer   bool
	ResolvesFlags    bool
	Removes          bool
}

// transitions is the full legal state-transition graph. Any (status, action)
// pair not present here is an illegal transition; legality checks and the
// transition itself both read from this one table.
var transitions = map[transitionKey]transitionRule{
	{models.StatusDraft, ActionSubmitForReview}: {
		To:              models.StatusPendingReview,
		Relation:        relationOwnerOrAdmin,
		AssignsReviewer: true,
	},
	{models.StatusPendingReview, ActionApprove}: {
		To:             models.StatusApproved,
		Relation:       relationAssignedReviewerOrAdmin,
		ClearsReviewer: true,
	},
	{models.StatusPendingReview, ActionReject}: {
		To:               models.StatusRejected,
		Relation:         relationAssignedReviewerOrAdmin,
		RequiresFeedback: true,
		ClearsReviewer:   true,
	},
	{models.StatusPendingReview, ActionRecall}: {
		To:             models.StatusDraft,
		Relation:       relationOwnerOrAdmin,
		ClearsReviewer: true,
	},
	{models.StatusRejected, ActionResubmit}: {
		To:              models.StatusPendingReview,
		Relation:        relationOwnerOrAdmin,
		AssignsReviewer: true,
	},
	{models.StatusApproved, ActionFlag}: {
		To:       models.StatusFlagged,
		Relation: relationAnyAuthenticated,
	},
	{models.StatusFlagged, ActionResolveKeep}: {
		To:            models.StatusApproved,
		Relation:      relationReviewerOrAdmin,
		ResolvesFlags: true,
	},
	{models.StatusFlagged, ActionResolveRevise}: {
		To:            models.StatusDraft,
		Relation:      relationReviewerOrAdmin,
		ResolvesFlags: true,
	},
	{models.StatusDraft, ActionDelete}: {
		Relation: relationOwnerOrAdmin,
		Removes:  true,
	},
}

// ActionPayload carries the optional inputs of a workflow action.
type ActionPayload struct {
	Feedback    string            `json:"feedback"`
	ChangesMade string            `json:"changes_made"`
	ReviewerID  *uint             `json:"reviewer_id"` // explicit reviewer choice on submit/resubmit
	ReportType  models.ReportType `json:"report_type"`
	Description string            `json:"description"`
}

// TransitionResult reports a committed transition back to the caller.
type TransitionResult struct {
	QuestionID uint                  `json:"question_id"`
	From       models.QuestionStatus `json:"from"`
	To         models.QuestionStatus `json:"to"`
	Action     WorkflowAction        `json:"action"`
	ReviewerID *uint                 `json:"reviewer_id,omitempty"`
	Removed    bool                  `json:"removed,omitempty"`
}

// WorkflowStore is the persistence collaborator of the workflow engine. The
// gorm implementation lives in workflow_store.go; tests use an in-memory fake.
type WorkflowStore interface {
	GetQuestion(ctx context.Context, id uint) (*models.Question, error)
	// ConditionalUpdateStatus writes the new status and reviewer assignment
	// only if the stored status still equals expected; otherwise it returns
	// ErrStatusConflict.
	ConditionalUpdateStatus(ctx context.Context, id uint, expected, next models.QuestionStatus, reviewerID *uint) error
	AppendReviewAction(ctx context.Context, rec *models.ReviewAction) error
	RecordFlag(ctx context.Context, flag *models.QuestionFlag) error
	// ResolveFlags closes all open flags on the question and returns the ids
	// of the users who reported them.
	ResolveFlags(ctx context.Context, questionID, resolvedBy uint) ([]uint, error)
	// DeleteDraft removes the question only if it is still in draft,
	// returning ErrStatusConflict otherwise.
	DeleteDraft(ctx context.Context, id uint) error
	ListReviewersByWorkload(ctx context.Context) ([]ReviewerLoad, error)
	// InTransaction runs fn against a store whose writes commit together or
	// not at all.
	InTransaction(ctx context.Context, fn func(WorkflowStore) error) error
}

// Notifier delivers workflow events. Delivery is best effort: failures are
// the notifier's problem and never surface to the transition caller.
type Notifier interface {
	Notify(ctx context.Context, userID uint, eventType string, payload map[string]interface{})
	NotifyRole(ctx context.Context, role models.Role, eventType string, payload map[string]interface{})
}

// WorkflowService enforces the question publication workflow: which actor may
// move a question between statuses, reviewer assignment, and the audit trail.
// It holds no state between calls.
type WorkflowService struct {
	store    WorkflowStore
	notifier Notifier
}

func NewWorkflowService(store WorkflowStore, notifier Notifier) *WorkflowService {
	return &WorkflowService{store: store, notifier: notifier}
}

// CanDelete reports whether the actor may hard-delete the question: only
// drafts, and only by an admin or the owning creator. Reviewers can never
// delete. Pure; used by the UI to decide whether to render the action.
func CanDelete(q *models.Question, role models.Role, actorID uint) bool {
	if q.Status != models.StatusDraft {
		return false
	}
	return role == models.RoleAdmin || (role == models.RoleCreator && actorID == q.CreatedBy)
}

// CanTransition reports whether the action would be accepted for the question
// in its current status by this actor. Pure; no side effects.
func CanTransition(q *models.Question, role models.Role, actorID uint, action WorkflowAction) bool {
	rule, ok := transitions[transitionKey{q.Status, action}]
	if !ok {
		return false
	}
	return relationSatisfied(rule.Relation, q, role, actorID)
}

// PermittedActions lists every action the actor could currently perform on
// the question, for UI affordance decisions.
func PermittedActions(q *models.Question, role models.Role, actorID uint) []WorkflowAction {
	var actions []WorkflowAction
	for key, rule := range transitions {
		if key.From != q.Status {
			continue
		}
		if relationSatisfied(rule.Relation, q, role, actorID) {
			actions = append(actions, key.Action)
		}
	}
	return actions
}

func relationSatisfied(rel actorRelation, q *models.Question, role models.Role, actorID uint) bool {
	if actorID == 0 {
		return false
	}
	switch rel {
	case relationOwnerOrAdmin:
		return role == models.RoleAdmin || (role == models.RoleCreator && actorID == q.CreatedBy)
	case relationAssignedReviewerOrAdmin:
		if role == models.RoleAdmin {
			return true
		}
		return role == models.RoleReviewer && q.ReviewerID != nil && *q.ReviewerID == actorID
	case relationReviewerOrAdmin:
		return role == models.RoleAdmin || role == models.RoleReviewer
	case relationAnyAuthenticated:
		return true
	}
	return false
}

// ApplyAction validates and performs one workflow transition. The status
// update, reviewer assignment and audit record commit atomically; a request
// that loses a race on the status column gets an IllegalTransitionError.
// Notifications are sent only after the transition has committed.
func (s *WorkflowService) ApplyAction(ctx context.Context, questionID, actorID uint, role models.Role, action WorkflowAction, payload ActionPayload) (*TransitionResult, error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "get question", Err: err}
	}

	rule, ok := transitions[transitionKey{q.Status, action}]
	if !ok {
		return nil, &IllegalTransitionError{Status: q.Status, Action: action}
	}
	if !relationSatisfied(rule.Relation, q, role, actorID) {
		return nil, &ForbiddenError{Action: action, Role: role}
	}
	if rule.RequiresFeedback && strings.TrimSpace(payload.Feedback) == "" {
		return nil, &ValidationError{Field: "feedback", Reason: "feedback is required for " + string(action)}
	}
	if action == ActionFlag && !models.ValidReportType(string(payload.ReportType)) {
		return nil, &ValidationError{Field: "report_type", Reason: "unknown report type"}
	}

	if rule.Removes {
		if err := s.store.DeleteDraft(ctx, q.ID); err != nil {
			if errors.Is(err, ErrStatusConflict) {
				return nil, s.transitionConflict(ctx, q.ID, q.Status, action)
			}
			return nil, &PersistenceError{Op: "delete draft", Err: err}
		}
		return &TransitionResult{QuestionID: q.ID, From: q.Status, Action: action, Removed: true}, nil
	}

	var reviewerID *uint
	if rule.AssignsReviewer {
		reviewerID, err = s.resolveReviewer(ctx, payload.ReviewerID)
		if err != nil {
			return nil, err
		}
	}

	var reporters []uint
	err = s.store.InTransaction(ctx, func(tx WorkflowStore) error {
		if err := tx.ConditionalUpdateStatus(ctx, q.ID, q.Status, rule.To, reviewerID); err != nil {
			return err
		}
		if action == ActionFlag {
			if err := tx.RecordFlag(ctx, &models.QuestionFlag{
				QuestionID:  q.ID,
				ReportedBy:  actorID,
				ReportType:  payload.ReportType,
				Description: payload.Description,
			}); err != nil {
				return err
			}
		}
		if rule.ResolvesFlags {
			var err error
			if reporters, err = tx.ResolveFlags(ctx, q.ID, actorID); err != nil {
				return err
			}
		}
		return tx.AppendReviewAction(ctx, &models.ReviewAction{
			QuestionID:  q.ID,
			ActorID:     actorID,
			ActionType:  string(action),
			Feedback:    payload.Feedback,
			ChangesMade: payload.ChangesMade,
		})
	})
	if err != nil {
		if errors.Is(err, ErrStatusConflict) {
			return nil, s.transitionConflict(ctx, q.ID, q.Status, action)
		}
		return nil, &PersistenceError{Op: string(action), Err: err}
	}

	s.dispatchNotifications(ctx, q, action, payload, reviewerID, reporters)

	return &TransitionResult{
		QuestionID: q.ID,
		From:       q.Status,
		To:         rule.To,
		Action:     action,
		ReviewerID: reviewerID,
	}, nil
}

// resolveReviewer picks the reviewer for a submission: the explicit choice
// when one was given, otherwise the least-loaded active reviewer. An explicit
// choice must itself be an active reviewer, so a submitter cannot park a
// question with an account that can never approve it.
func (s *WorkflowService) resolveReviewer(ctx context.Context, explicit *uint) (*uint, error) {
	loads, err := s.store.ListReviewersByWorkload(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list reviewers", Err: err}
	}
	if explicit != nil {
		for _, load := range loads {
			if load.ReviewerID == *explicit {
				return explicit, nil
			}
		}
		return nil, &ValidationError{Field: "reviewer_id", Reason: "chosen reviewer is not an active reviewer"}
	}
	id, ok := PickReviewer(loads)
	if !ok {
		return nil, &ValidationError{Field: "reviewer", Reason: "no active reviewers available"}
	}
	return &id, nil
}

// transitionConflict reports a lost status race, re-reading the question so
// the error names the status it holds now rather than the stale one read
// before the race. The pre-race status is kept as a fallback when the
// question is gone.
func (s *WorkflowService) transitionConflict(ctx context.Context, id uint, fallback models.QuestionStatus, action WorkflowAction) error {
	status := fallback
	if current, err := s.store.GetQuestion(ctx, id); err == nil {
		status = current.Status
	}
	return &IllegalTransitionError{Status: status, Action: action}
}

func (s *WorkflowService) dispatchNotifications(ctx context.Context, q *models.Question, action WorkflowAction, payload ActionPayload, reviewerID *uint, reporters []uint) {
	if s.notifier == nil {
		return
	}
	base := map[string]interface{}{
		"question_id": q.ID,
		"title":       q.Title,
	}
	switch action {
	case ActionSubmitForReview, ActionResubmit:
		if reviewerID != nil {
			s.notifier.Notify(ctx, *reviewerID, EventQuestionSubmitted, base)
		}
	case ActionApprove:
		s.notifier.Notify(ctx, q.CreatedBy, EventQuestionApproved, base)
	case ActionReject:
		base["feedback"] = payload.Feedback
		s.notifier.Notify(ctx, q.CreatedBy, EventQuestionRejected, base)
	case ActionFlag:
		base["report_type"] = string(payload.ReportType)
		s.notifier.NotifyRole(ctx, models.RoleReviewer, EventQuestionFlagged, base)
		s.notifier.NotifyRole(ctx, models.RoleAdmin, EventQuestionFlagged, base)
	case ActionResolveKeep:
		for _, reporter := range reporters {
			s.notifier.Notify(ctx, reporter, EventFlagDismissed, base)
		}
	case ActionResolveRevise:
		base["feedback"] = payload.Feedback
		s.notifier.Notify(ctx, q.CreatedBy, EventRevisionRequested, base)
	}
}
