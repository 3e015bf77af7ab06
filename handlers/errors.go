package handlers

import (
	"errors"
	"net/http"

	"pathbank/models"
	"pathbank/services"

	"github.com/gin-gonic/gin"
)

// writeError maps the workflow error taxonomy onto distinct HTTP responses so
// the UI can render "wrong permission" and "already reviewed by someone else"
// differently.
func writeError(c *gin.Context, err error) {
	var forbidden *services.ForbiddenError
	var illegal *services.IllegalTransitionError
	var validation *services.ValidationError
	var persistence *services.PersistenceError

	switch {
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Question not found", "code": "not_found"})
	case errors.As(err, &forbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "forbidden"})
	case errors.As(err, &illegal):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "code": "illegal_transition"})
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation_error"})
	case errors.As(err, &persistence):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong, please try again", "code": "persistence_error"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// currentActor pulls the authenticated user's id and role out of the gin
// context set by the auth middleware.
func currentActor(c *gin.Context) (uint, models.Role, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, "", false
	}
	role, exists := c.Get("role")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, "", false
	}
	return userID.(uint), role.(models.Role), true
}
