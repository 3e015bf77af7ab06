package handlers

import (
	"net/http"
	"strconv"

	"pathbank/models"
	"pathbank/services"

	"github.com/gin-gonic/gin"
)

type QuestionHandler struct {
	questionService *services.QuestionService
}

func NewQuestionHandler(questionService *services.QuestionService) *QuestionHandler {
	return &QuestionHandler{
		questionService: questionService,
	}
}

func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	userID, _, ok := currentActor(c)
	if !ok {
		return
	}

	var req services.CreateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.questionService.CreateQuestion(c.Request.Context(), userID, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// GetQuestion returns one question scoped to the viewer: unpublished
// questions only for their owner, reviewers and admins, and the review
// history only for those same viewers.
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	userID, role, ok := currentActor(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	question, err := h.questionService.GetQuestionForActor(c.Request.Context(), uint(questionID), userID, role)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	userID, role, ok := currentActor(c)
	if !ok {
		return
	}

	questionID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid question ID"})
		return
	}

	var req services.UpdateQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.questionService.UpdateQuestion(c.Request.Context(), uint(questionID), userID, role, &req)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// GetMyQuestions lists the authenticated creator's own questions, optionally
// filtered by ?status=.
func (h *QuestionHandler) GetMyQuestions(c *gin.Context) {
	userID, _, ok := currentActor(c)
	if !ok {
		return
	}

	questions, err := h.questionService.ListByCreator(c.Request.Context(), userID, models.QuestionStatus(c.Query("status")))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, questions)
}

// GetReviewQueue lists the questions assigned to the authenticated reviewer.
func (h *QuestionHandler) GetReviewQueue(c *gin.Context) {
	userID, _, ok := currentActor(c)
	if !ok {
		return
	}

	questions, err := h.questionService.ListReviewQueue(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, questions)
}

// GetFlaggedQuestions lists flagged questions with their open flags.
func (h *QuestionHandler) GetFlaggedQuestions(c *gin.Context) {
	questions, err := h.questionService.ListFlagged(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, questions)
}

// GetQuestionBank lists published questions with filters and pagination.
func (h *QuestionHandler) GetQuestionBank(c *gin.Context) {
	filter := services.ListQuestionsFilter{
		Difficulty: models.Difficulty(c.Query("difficulty")),
	}
	if v, err := strconv.ParseUint(c.Query("category_id"), 10, 32); err == nil {
		filter.CategoryID = uint(v)
	}
	if v, err := strconv.ParseUint(c.Query("tag_id"), 10, 32); err == nil {
		filter.TagID = uint(v)
	}
	if v, err := strconv.Atoi(c.Query("page")); err == nil {
		filter.Page = v
	}
	if v, err := strconv.Atoi(c.Query("page_size")); err == nil {
		filter.PageSize = v
	}

	questions, total, err := h.questionService.ListPublished(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"questions": questions, "total": total})
}
