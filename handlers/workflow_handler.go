package handlers

import (
	"net/http"
	"strconv"

	"pathbank/models"
	"pathbank/services"

	"github.com/gin-gonic/gin"
)

type WorkflowHandler struct {
	workflowService *services.WorkflowService
	questionService *services.QuestionService
}

func NewWorkflowHandler(workflowService *services.WorkflowService, questionService *services.QuestionService) *WorkflowHandler {
	return &WorkflowHandler{
		workflowService: workflowService,
		questionService: questionService,
	}
}

type applyActionRequest struct {
	Action      services.WorkflowAction `json:"action" binding:"required"`
	Feedback    string                  `json:"feedback"`
	ChangesMade string                  `json:"changes_made"`
	ReviewerID  *uint                   `json:"reviewer_id"`
	ReportType  models.ReportType       `json:"report_type"`
	Description string                  `json:"description"`
}

// ApplyAction drives one workflow transition on a question: submit, approve,
// reject, recall, resubmit, resolve or delete.
func (h *WorkflowHandler) ApplyAction(c *gin.Context) {
	userID, role, ok := currentActor(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var req applyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Flagging has its own rate limited route; accepting it here would let
	// callers sidestep the limiter.
	if req.Action == services.ActionFlag {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "flag a question via POST /api/questions/:id/flag",
			"code":  "validation_error",
		})
		return
	}

	result, err := h.workflowService.ApplyAction(c.Request.Context(), uint(questionID), userID, role, req.Action, services.ActionPayload{
		Feedback:    req.Feedback,
		ChangesMade: req.ChangesMade,
		ReviewerID:  req.ReviewerID,
		ReportType:  req.ReportType,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type flagQuestionRequest struct {
	ReportType  models.ReportType `json:"report_type" binding:"required"`
	Description string            `json:"description"`
}

// FlagQuestion reports a published question. Available to any authenticated
// user; the route is rate limited.
func (h *WorkflowHandler) FlagQuestion(c *gin.Context) {
	userID, role, ok := currentActor(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var req flagQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.workflowService.ApplyAction(c.Request.Context(), uint(questionID), userID, role, services.ActionFlag, services.ActionPayload{
		ReportType:  req.ReportType,
		Description: req.Description,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPermittedActions returns the workflow actions the authenticated user
// could currently perform on the question, plus whether deletion is allowed.
// Used by the UI to decide which buttons to render without side effects.
func (h *WorkflowHandler) GetPermittedActions(c *gin.Context) {
	userID, role, ok := currentActor(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	question, err := h.questionService.GetQuestion(c.Request.Context(), uint(questionID))
	if err != nil {
		writeError(c, err)
		return
	}

	actions := services.PermittedActions(question, role, userID)
	if actions == nil {
		actions = []services.WorkflowAction{}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     question.Status,
		"actions":    actions,
		"can_delete": services.CanDelete(question, role, userID),
		"can_edit":   services.CanEdit(question, role, userID),
	})
}

// DeleteQuestion removes a draft. It routes through the same workflow engine
// so the draft-only rule and ownership checks apply.
func (h *WorkflowHandler) DeleteQuestion(c *gin.Context) {
	userID, role, ok := currentActor(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	_, err = h.workflowService.ApplyAction(c.Request.Context(), uint(questionID), userID, role, services.ActionDelete, services.ActionPayload{})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}
