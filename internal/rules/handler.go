// Package rules is the intake boundary for the external game-rules engine.
// The dice rules themselves live outside this service; all that arrives here
// is the final result driving active -> completed.
package rules

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dicematch/internal/session"
)

type Handler struct {
	machine *session.Machine
}

func NewHandler(machine *session.Machine) *Handler {
	return &Handler{machine: machine}
}

type resultBody struct {
	SessionID string `json:"sessionId" binding:"required"`
	// WinnerID empty means a draw.
	WinnerID string `json:"winnerId"`
}

// POST /internal/result  body: {sessionId, winnerId?}
func (h *Handler) ReportResult(c *gin.Context) {
	var body resultBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.machine.Complete(c.Request.Context(), body.SessionID, session.Result{WinnerID: body.WinnerID})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, session.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.State})
}
