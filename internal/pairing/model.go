package pairing

import "dicematch/internal/session"

// JoinRequest is the ephemeral matchmaking request; it is never persisted
// beyond processing. ParticipantID comes from the auth middleware, not the
// request body.
type JoinRequest struct {
	ParticipantID string
	Mode          string
	Kind          session.Kind
	// Targets holds the invited participant id (direct) or the two prior
	// participant ids (rematch).
	Targets []string
}

type Role string

const (
	RoleHost  Role = "host"  // created the session, waiting for a peer
	RoleGuest Role = "guest" // filled the second slot
)

// MatchResult is the answer to a join request.
type MatchResult struct {
	SessionID string `json:"sessionId"`
	Role      Role   `json:"role"`
}

// HTTP request bodies.

type matchBody struct {
	Mode    string   `json:"mode" binding:"required"`
	Kind    string   `json:"kind" binding:"required"`
	Targets []string `json:"targets"`
}

type readyBody struct {
	SessionID string `json:"sessionId" binding:"required"`
}

type heartbeatBody struct {
	SessionID string `json:"sessionId"`
}

type leaveBody struct {
	SessionID string `json:"sessionId" binding:"required"`
}
