// Package auth mints participant tokens. Real identity lives in an external
// collaborator; this login is the minimal stand-in that binds a participant
// id to a JWT the rest of the service trusts.
package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"dicematch/config"
)

type LoginRequest struct {
	ParticipantID string `json:"participantId" binding:"required"`
}

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

// POST /auth/login  body: {participantId}
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
		return
	}

	claims := jwt.MapClaims{
		"sub": req.ParticipantID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(24 * time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	jwtStr, err := token.SignedString([]byte(config.C.JWT.Secret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "jwt generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jwt": jwtStr})
}
