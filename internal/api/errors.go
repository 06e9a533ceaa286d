package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meetingbot/core/internal/services"
)

// respondErr maps a services-layer error onto the appropriate HTTP status.
// Anything not recognized here is an unexpected failure, logged and
// returned as a 500 without leaking its message to the client.
func (s *Server) respondErr(c *gin.Context, err error) {
	var ve *services.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, services.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, services.ErrInsufficientCredits):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient credits"})
	default:
		s.log.Error("unhandled api error", "path", c.Request.URL.Path, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
