package pairing

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"dicematch/internal/liveness"
	"dicematch/internal/session"
)

type Handler struct {
	engine  *Engine
	tracker *liveness.Tracker
	store   session.Store
}

func NewHandler(engine *Engine, tracker *liveness.Tracker, store session.Store) *Handler {
	return &Handler{engine: engine, tracker: tracker, store: store}
}

// POST /match/request  body: {mode, kind, targets?}
func (h *Handler) RequestMatch(c *gin.Context) {
	var body matchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := session.Kind(body.Kind)
	switch kind {
	case session.KindOpen:
	case session.KindDirect:
		if len(body.Targets) != 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "direct requires one target"})
			return
		}
	case session.KindRematch:
		if len(body.Targets) != 2 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rematch requires two targets"})
			return
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown kind"})
		return
	}

	res, err := h.engine.RequestMatch(c.Request.Context(), JoinRequest{
		ParticipantID: c.GetString("participantId"),
		Mode:          body.Mode,
		Kind:          kind,
		Targets:       body.Targets,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /match/ready  body: {sessionId}
func (h *Handler) MarkReady(c *gin.Context) {
	var body readyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.engine.Ready(c.Request.Context(), body.SessionID, c.GetString("participantId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.State})
}

// POST /match/heartbeat  body: {sessionId?}
func (h *Handler) Heartbeat(c *gin.Context) {
	var body heartbeatBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pid := c.GetString("participantId")
	sid := body.SessionID
	if sid == "" {
		sid = h.tracker.SessionOf(pid)
	}
	h.tracker.Heartbeat(pid, sid)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /match/leave  body: {sessionId}
func (h *Handler) Leave(c *gin.Context) {
	var body leaveBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s, err := h.engine.Leave(c.Request.Context(), body.SessionID, c.GetString("participantId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": s.State})
}

// GET /session/:id
func (h *Handler) GetSession(c *gin.Context) {
	s, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// writeError maps the error taxonomy onto HTTP statuses. Conflicts are
// expected outcomes; the client should retry against fresh state.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrConflict), errors.Is(err, ErrPairingInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, session.ErrInvariant):
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
