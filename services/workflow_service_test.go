package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"pathbank/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorkflowStore is an in-memory WorkflowStore. beforeUpdate, when set,
// runs between the engine's read and its conditional write so tests can
// simulate a concurrent transition winning the race.
type fakeWorkflowStore struct {
	questions    map[uint]*models.Question
	actions      []models.ReviewAction
	flags        []models.QuestionFlag
	loads        []ReviewerLoad
	beforeUpdate func()
}

func newFakeStore(questions ...*models.Question) *fakeWorkflowStore {
	store := &fakeWorkflowStore{questions: make(map[uint]*models.Question)}
	for _, q := range questions {
		store.questions[q.ID] = q
	}
	return store
}

func (s *fakeWorkflowStore) GetQuestion(_ context.Context, id uint) (*models.Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	copied := *q
	return &copied, nil
}

func (s *fakeWorkflowStore) ConditionalUpdateStatus(_ context.Context, id uint, expected, next models.QuestionStatus, reviewerID *uint) error {
	if s.beforeUpdate != nil {
		s.beforeUpdate()
		s.beforeUpdate = nil
	}
	q, ok := s.questions[id]
	if !ok || q.Status != expected {
		return ErrStatusConflict
	}
	q.Status = next
	q.ReviewerID = reviewerID
	return nil
}

func (s *fakeWorkflowStore) AppendReviewAction(_ context.Context, rec *models.ReviewAction) error {
	rec.ID = uint(len(s.actions) + 1)
	rec.CreatedAt = time.Now()
	s.actions = append(s.actions, *rec)
	return nil
}

func (s *fakeWorkflowStore) RecordFlag(_ context.Context, flag *models.QuestionFlag) error {
	flag.ID = uint(len(s.flags) + 1)
	flag.Status = "open"
	s.flags = append(s.flags, *flag)
	return nil
}

func (s *fakeWorkflowStore) ResolveFlags(_ context.Context, questionID, resolvedBy uint) ([]uint, error) {
	var reporters []uint
	for i := range s.flags {
		if s.flags[i].QuestionID == questionID && s.flags[i].Status == "open" {
			s.flags[i].Status = "resolved"
			s.flags[i].ResolvedBy = &resolvedBy
			reporters = append(reporters, s.flags[i].ReportedBy)
		}
	}
	return reporters, nil
}

func (s *fakeWorkflowStore) DeleteDraft(_ context.Context, id uint) error {
	q, ok := s.questions[id]
	if !ok || q.Status != models.StatusDraft {
		return ErrStatusConflict
	}
	delete(s.questions, id)
	return nil
}

func (s *fakeWorkflowStore) ListReviewersByWorkload(_ context.Context) ([]ReviewerLoad, error) {
	return s.loads, nil
}

func (s *fakeWorkflowStore) InTransaction(_ context.Context, fn func(WorkflowStore) error) error {
	return fn(s)
}

type sentNotification struct {
	UserID    uint
	Role      models.Role
	EventType string
	Payload   map[string]interface{}
}

type fakeNotifier struct {
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, userID uint, eventType string, payload map[string]interface{}) {
	n.sent = append(n.sent, sentNotification{UserID: userID, EventType: eventType, Payload: payload})
}

func (n *fakeNotifier) NotifyRole(_ context.Context, role models.Role, eventType string, payload map[string]interface{}) {
	n.sent = append(n.sent, sentNotification{Role: role, EventType: eventType, Payload: payload})
}

const (
	creatorID  = uint(1)
	reviewerID = uint(2)
	adminID    = uint(3)
	plainID    = uint(4)
	otherID    = uint(5)
)

func draftQuestion() *models.Question {
	return &models.Question{ID: 10, Status: models.StatusDraft, CreatedBy: creatorID, Title: "Granuloma morphology"}
}

func pendingQuestion() *models.Question {
	rid := reviewerID
	return &models.Question{ID: 10, Status: models.StatusPendingReview, CreatedBy: creatorID, ReviewerID: &rid}
}

func approvedQuestion() *models.Question {
	return &models.Question{ID: 10, Status: models.StatusApproved, CreatedBy: creatorID}
}

func newService(store *fakeWorkflowStore) (*WorkflowService, *fakeNotifier) {
	notifier := &fakeNotifier{}
	return NewWorkflowService(store, notifier), notifier
}

func singleReviewerLoads() []ReviewerLoad {
	return []ReviewerLoad{{ReviewerID: reviewerID, PendingCount: 0, CreatedAt: time.Unix(1000, 0)}}
}

func TestApplyAction_UnknownQuestion(t *testing.T) {
	svc, _ := newService(newFakeStore())

	_, err := svc.ApplyAction(context.Background(), 99, adminID, models.RoleAdmin, ActionApprove, ActionPayload{})

	assert.ErrorIs(t, err, ErrQuestionNotFound)
}

func TestApplyAction_IllegalPairsLeaveStatusUnchanged(t *testing.T) {
	allActions := []WorkflowAction{
		ActionSubmitForReview, ActionApprove, ActionReject, ActionRecall,
		ActionResubmit, ActionFlag, ActionResolveKeep, ActionResolveRevise, ActionDelete,
	}
	legal := map[models.QuestionStatus][]WorkflowAction{
		models.StatusDraft:         {ActionSubmitForReview, ActionDelete},
		models.StatusPendingReview: {ActionApprove, ActionReject, ActionRecall},
		models.StatusApproved:      {ActionFlag},
		models.StatusRejected:      {ActionResubmit},
		models.StatusFlagged:       {ActionResolveKeep, ActionResolveRevise},
	}

	for status, legalActions := range legal {
		allowed := make(map[WorkflowAction]bool)
		for _, a := range legalActions {
			allowed[a] = true
		}
		for _, action := range allActions {
			if allowed[action] {
				continue
			}
			t.Run(string(status)+"_"+string(action), func(t *testing.T) {
				q := &models.Question{ID: 10, Status: status, CreatedBy: creatorID}
				if status == models.StatusPendingReview {
					rid := reviewerID
					q.ReviewerID = &rid
				}
				store := newFakeStore(q)
				svc, _ := newService(store)

				// Admin passes every permission check, so only state
				// legality can fail here.
				_, err := svc.ApplyAction(context.Background(), q.ID, adminID, models.RoleAdmin, action, ActionPayload{Feedback: "x", ReportType: models.ReportOther})

				var illegal *IllegalTransitionError
				require.ErrorAs(t, err, &illegal)
				assert.Equal(t, status, illegal.Status)
				assert.Equal(t, action, illegal.Action)
				assert.Equal(t, status, store.questions[q.ID].Status, "status must not change on illegal transition")
				assert.Empty(t, store.actions, "no audit entry on illegal transition")
			})
		}
	}
}

func TestApplyAction_ForbiddenIsDistinctFromIllegal(t *testing.T) {
	// U2 is a creator but not the owner of Q1: the pair (draft, submit) is
	// legal, so the failure must be Forbidden, not IllegalTransition.
	store := newFakeStore(draftQuestion())
	svc, _ := newService(store)

	_, err := svc.ApplyAction(context.Background(), 10, otherID, models.RoleCreator, ActionSubmitForReview, ActionPayload{})

	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	var illegal *IllegalTransitionError
	assert.False(t, errors.As(err, &illegal), "must be Forbidden, not IllegalTransition")
	assert.Equal(t, models.StatusDraft, store.questions[10].Status)
}

func TestApplyAction_SubmitAssignsLeastLoadedReviewer(t *testing.T) {
	store := newFakeStore(draftQuestion())
	store.loads = []ReviewerLoad{
		{ReviewerID: 7, PendingCount: 3, CreatedAt: time.Unix(500, 0)},
		{ReviewerID: 8, PendingCount: 1, CreatedAt: time.Unix(900, 0)},
		{ReviewerID: 9, PendingCount: 2, CreatedAt: time.Unix(100, 0)},
	}
	svc, notifier := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, creatorID, models.RoleCreator, ActionSubmitForReview, ActionPayload{})

	require.NoError(t, err)
	require.NotNil(t, result.ReviewerID)
	assert.Equal(t, uint(8), *result.ReviewerID)
	assert.Equal(t, models.StatusPendingReview, store.questions[10].Status)
	require.NotNil(t, store.questions[10].ReviewerID)
	assert.Equal(t, uint(8), *store.questions[10].ReviewerID)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, uint(8), notifier.sent[0].UserID)
	assert.Equal(t, EventQuestionSubmitted, notifier.sent[0].EventType)
}

func TestApplyAction_SubmitWithExplicitReviewer(t *testing.T) {
	store := newFakeStore(draftQuestion())
	store.loads = []ReviewerLoad{
		{ReviewerID: reviewerID, PendingCount: 0, CreatedAt: time.Unix(1000, 0)},
		{ReviewerID: 42, PendingCount: 5, CreatedAt: time.Unix(2000, 0)},
	}
	svc, _ := newService(store)

	// The explicit choice wins even though reviewer 42 carries more load.
	chosen := uint(42)
	result, err := svc.ApplyAction(context.Background(), 10, creatorID, models.RoleCreator, ActionSubmitForReview, ActionPayload{ReviewerID: &chosen})

	require.NoError(t, err)
	require.NotNil(t, result.ReviewerID)
	assert.Equal(t, chosen, *result.ReviewerID)
}

func TestApplyAction_SubmitWithUnknownExplicitReviewer(t *testing.T) {
	// The chosen id is not in the active reviewer set: an inactive account, a
	// plain user, or the submitter themselves. The submission must not park
	// the question with someone who can never approve it.
	store := newFakeStore(draftQuestion())
	store.loads = singleReviewerLoads()
	svc, _ := newService(store)

	chosen := creatorID
	_, err := svc.ApplyAction(context.Background(), 10, creatorID, models.RoleCreator, ActionSubmitForReview, ActionPayload{ReviewerID: &chosen})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "reviewer_id", validation.Field)
	assert.Equal(t, models.StatusDraft, store.questions[10].Status)
	assert.Empty(t, store.actions)
}

func TestApplyAction_SubmitWithNoReviewersAvailable(t *testing.T) {
	store := newFakeStore(draftQuestion())
	svc, _ := newService(store)

	_, err := svc.ApplyAction(context.Background(), 10, creatorID, models.RoleCreator, ActionSubmitForReview, ActionPayload{})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, models.StatusDraft, store.questions[10].Status)
}

func TestApplyAction_RejectRequiresFeedback(t *testing.T) {
	for _, feedback := range []string{"", "   ", "\t\n"} {
		store := newFakeStore(pendingQuestion())
		svc, _ := newService(store)

		_, err := svc.ApplyAction(context.Background(), 10, reviewerID, models.RoleReviewer, ActionReject, ActionPayload{Feedback: feedback})

		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, "feedback", validation.Field)
		assert.Equal(t, models.StatusPendingReview, store.questions[10].Status)
		assert.Empty(t, store.actions)
	}
}

func TestApplyAction_ApproveByAssignedReviewer(t *testing.T) {
	store := newFakeStore(pendingQuestion())
	svc, notifier := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, reviewerID, models.RoleReviewer, ActionApprove, ActionPayload{})

	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.To)
	assert.Equal(t, models.StatusApproved, store.questions[10].Status)
	assert.Nil(t, store.questions[10].ReviewerID, "reviewer must be cleared on approval")

	require.Len(t, store.actions, 1)
	assert.Equal(t, string(ActionApprove), store.actions[0].ActionType)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, creatorID, notifier.sent[0].UserID)
	assert.Equal(t, EventQuestionApproved, notifier.sent[0].EventType)
}

func TestApplyAction_ApproveByUnassignedReviewerForbidden(t *testing.T) {
	store := newFakeStore(pendingQuestion())
	svc, _ := newService(store)

	_, err := svc.ApplyAction(context.Background(), 10, otherID, models.RoleReviewer, ActionApprove, ActionPayload{})

	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Equal(t, models.StatusPendingReview, store.questions[10].Status)
}

func TestApplyAction_ConcurrentApproveLosesRace(t *testing.T) {
	store := newFakeStore(pendingQuestion())
	svc, _ := newService(store)

	// Simulate another reviewer committing an approval between this
	// request's read and its conditional write.
	store.beforeUpdate = func() {
		store.questions[10].Status = models.StatusApproved
		store.questions[10].ReviewerID = nil
		store.actions = append(store.actions, models.ReviewAction{QuestionID: 10, ActorID: adminID, ActionType: string(ActionApprove)})
	}

	_, err := svc.ApplyAction(context.Background(), 10, reviewerID, models.RoleReviewer, ActionApprove, ActionPayload{})

	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.Equal(t, models.StatusApproved, illegal.Status, "the conflict names the status the question holds now")
	assert.Equal(t, models.StatusApproved, store.questions[10].Status)
	assert.Len(t, store.actions, 1, "exactly one audit entry for the winning approval")
}

func TestApplyAction_RecallClearsReviewer(t *testing.T) {
	store := newFakeStore(pendingQuestion())
	svc, _ := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, creatorID, models.RoleCreator, ActionRecall, ActionPayload{})

	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, result.To)
	assert.Nil(t, store.questions[10].ReviewerID)
}

func TestApplyAction_FlagByAuthenticatedUser(t *testing.T) {
	store := newFakeStore(approvedQuestion())
	svc, notifier := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, plainID, models.RoleUser, ActionFlag, ActionPayload{
		ReportType:  models.ReportIncorrectAnswer,
		Description: "distractor B is also correct",
	})

	require.NoError(t, err)
	assert.Equal(t, models.StatusFlagged, result.To)
	assert.Equal(t, models.StatusFlagged, store.questions[10].Status)

	require.Len(t, store.flags, 1)
	assert.Equal(t, plainID, store.flags[0].ReportedBy)
	assert.Equal(t, models.ReportIncorrectAnswer, store.flags[0].ReportType)

	require.Len(t, store.actions, 1)
	assert.Equal(t, string(ActionFlag), store.actions[0].ActionType)

	// Reviewers and admins are told about the new flag.
	require.Len(t, notifier.sent, 2)
	assert.Equal(t, models.RoleReviewer, notifier.sent[0].Role)
	assert.Equal(t, models.RoleAdmin, notifier.sent[1].Role)
}

func TestApplyAction_FlagRequiresKnownReportType(t *testing.T) {
	store := newFakeStore(approvedQuestion())
	svc, _ := newService(store)

	_, err := svc.ApplyAction(context.Background(), 10, plainID, models.RoleUser, ActionFlag, ActionPayload{ReportType: "spite"})

	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, models.StatusApproved, store.questions[10].Status)
}

func TestApplyAction_ResolveKeepNotifiesReporters(t *testing.T) {
	q := &models.Question{ID: 10, Status: models.StatusFlagged, CreatedBy: creatorID}
	store := newFakeStore(q)
	store.flags = []models.QuestionFlag{
		{ID: 1, QuestionID: 10, ReportedBy: plainID, Status: "open"},
		{ID: 2, QuestionID: 10, ReportedBy: otherID, Status: "open"},
	}
	svc, notifier := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, reviewerID, models.RoleReviewer, ActionResolveKeep, ActionPayload{})

	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, result.To)
	for _, flag := range store.flags {
		assert.Equal(t, "resolved", flag.Status)
	}

	require.Len(t, notifier.sent, 2)
	assert.Equal(t, plainID, notifier.sent[0].UserID)
	assert.Equal(t, otherID, notifier.sent[1].UserID)
	assert.Equal(t, EventFlagDismissed, notifier.sent[0].EventType)
}

func TestApplyAction_ResolveReviseReturnsToDraft(t *testing.T) {
	q := &models.Question{ID: 10, Status: models.StatusFlagged, CreatedBy: creatorID}
	store := newFakeStore(q)
	store.flags = []models.QuestionFlag{{ID: 1, QuestionID: 10, ReportedBy: plainID, Status: "open"}}
	svc, notifier := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, adminID, models.RoleAdmin, ActionResolveRevise, ActionPayload{Feedback: "image does not match the stem"})

	require.NoError(t, err)
	assert.Equal(t, models.StatusDraft, result.To)
	assert.Equal(t, "resolved", store.flags[0].Status)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, creatorID, notifier.sent[0].UserID)
	assert.Equal(t, EventRevisionRequested, notifier.sent[0].EventType)
	assert.Equal(t, "image does not match the stem", notifier.sent[0].Payload["feedback"])
}

func TestApplyAction_DeleteDraft(t *testing.T) {
	store := newFakeStore(draftQuestion())
	svc, _ := newService(store)

	result, err := svc.ApplyAction(context.Background(), 10, creatorID, models.RoleCreator, ActionDelete, ActionPayload{})

	require.NoError(t, err)
	assert.True(t, result.Removed)
	assert.NotContains(t, store.questions, uint(10))
}

func TestApplyAction_DeleteByReviewerForbidden(t *testing.T) {
	store := newFakeStore(draftQuestion())
	svc, _ := newService(store)

	_, err := svc.ApplyAction(context.Background(), 10, reviewerID, models.RoleReviewer, ActionDelete, ActionPayload{})

	var forbidden *ForbiddenError
	require.ErrorAs(t, err, &forbidden)
	assert.Contains(t, store.questions, uint(10))
}

func TestApplyAction_RoundTrip(t *testing.T) {
	store := newFakeStore(draftQuestion())
	store.loads = singleReviewerLoads()
	svc, _ := newService(store)
	ctx := context.Background()

	_, err := svc.ApplyAction(ctx, 10, creatorID, models.RoleCreator, ActionSubmitForReview, ActionPayload{})
	require.NoError(t, err)

	_, err = svc.ApplyAction(ctx, 10, reviewerID, models.RoleReviewer, ActionReject, ActionPayload{Feedback: "explanation cites the wrong stain"})
	require.NoError(t, err)

	_, err = svc.ApplyAction(ctx, 10, creatorID, models.RoleCreator, ActionResubmit, ActionPayload{ChangesMade: "fixed the stain reference"})
	require.NoError(t, err)

	result, err := svc.ApplyAction(ctx, 10, reviewerID, models.RoleReviewer, ActionApprove, ActionPayload{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, result.To)
	assert.Equal(t, models.StatusApproved, store.questions[10].Status)
	assert.Nil(t, store.questions[10].ReviewerID)

	require.Len(t, store.actions, 4)
	expected := []WorkflowAction{ActionSubmitForReview, ActionReject, ActionResubmit, ActionApprove}
	for i, action := range expected {
		assert.Equal(t, string(action), store.actions[i].ActionType)
	}
}

func TestCanDelete(t *testing.T) {
	tests := []struct {
		name    string
		status  models.QuestionStatus
		role    models.Role
		actorID uint
		want    bool
	}{
		{"draft owner creator", models.StatusDraft, models.RoleCreator, creatorID, true},
		{"draft admin", models.StatusDraft, models.RoleAdmin, adminID, true},
		{"draft other creator", models.StatusDraft, models.RoleCreator, otherID, false},
		{"draft reviewer", models.StatusDraft, models.RoleReviewer, reviewerID, false},
		{"draft plain user owner id", models.StatusDraft, models.RoleUser, creatorID, false},
		{"pending owner", models.StatusPendingReview, models.RoleCreator, creatorID, false},
		{"pending admin", models.StatusPendingReview, models.RoleAdmin, adminID, false},
		{"approved admin", models.StatusApproved, models.RoleAdmin, adminID, false},
		{"rejected owner", models.StatusRejected, models.RoleCreator, creatorID, false},
		{"flagged reviewer", models.StatusFlagged, models.RoleReviewer, reviewerID, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &models.Question{ID: 10, Status: tt.status, CreatedBy: creatorID}
			assert.Equal(t, tt.want, CanDelete(q, tt.role, tt.actorID))
		})
	}
}

func TestCanTransition(t *testing.T) {
	rid := reviewerID
	pending := &models.Question{ID: 10, Status: models.StatusPendingReview, CreatedBy: creatorID, ReviewerID: &rid}

	assert.True(t, CanTransition(pending, models.RoleReviewer, reviewerID, ActionApprove))
	assert.False(t, CanTransition(pending, models.RoleReviewer, otherID, ActionApprove))
	assert.True(t, CanTransition(pending, models.RoleAdmin, adminID, ActionApprove))
	assert.False(t, CanTransition(pending, models.RoleCreator, creatorID, ActionApprove))
	assert.True(t, CanTransition(pending, models.RoleCreator, creatorID, ActionRecall))
	assert.False(t, CanTransition(pending, models.RoleCreator, creatorID, ActionSubmitForReview))
}

func TestPermittedActions(t *testing.T) {
	q := draftQuestion()

	actions := PermittedActions(q, models.RoleCreator, creatorID)
	assert.ElementsMatch(t, []WorkflowAction{ActionSubmitForReview, ActionDelete}, actions)

	assert.Empty(t, PermittedActions(q, models.RoleReviewer, reviewerID))
	assert.Empty(t, PermittedActions(q, models.RoleCreator, otherID))
}
