package session

import "time"

// State is the lifecycle phase of a session. Transitions only move forward
// along the graph in transitions; terminal states are never left.
type State string

const (
	StateSearching  State = "searching"
	StateReadyCheck State = "ready_check"
	StateActive     State = "active"
	StateCompleted  State = "completed"
	StateAbandoned  State = "abandoned"
	StateCancelled  State = "cancelled"
)

// Kind controls who may fill the second slot.
type Kind string

const (
	KindOpen    Kind = "open"    // any compatible player
	KindDirect  Kind = "direct"  // one invited participant
	KindRematch Kind = "rematch" // the two prior participants
)

var transitions = map[State][]State{
	StateSearching:  {StateSearching, StateReadyCheck, StateCancelled, StateAbandoned},
	StateReadyCheck: {StateReadyCheck, StateActive, StateAbandoned},
	StateActive:     {StateCompleted, StateAbandoned},
}

// CanMove reports whether s -> to is a legal forward transition.
func (s State) CanMove(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned || s == StateCancelled
}

// Participant is one seat in a session. DisplayName, Wins, Losses and
// SkillBucket are a snapshot taken at join time and never live-updated.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Wins        int       `json:"wins"`
	Losses      int       `json:"losses"`
	SkillBucket int       `json:"skillBucket"`
	Ready       bool      `json:"ready"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// Result records how an active session ended. Empty WinnerID means a draw.
type Result struct {
	WinnerID   string    `json:"winnerId,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}

// Session is the unit of matchmaking and play: up to two participants moving
// through the state graph above. Version is the compare-and-set token bumped
// on every accepted write; it is what makes ConditionalUpdate safe.
type Session struct {
	ID           string        `json:"id"`
	Mode         string        `json:"mode"`
	Kind         Kind          `json:"kind"`
	State        State         `json:"state"`
	Participants []Participant `json:"participants"`
	// Invited holds the pre-authorized participant ids for direct/rematch
	// sessions; empty for open sessions.
	Invited        []string  `json:"invited,omitempty"`
	SkillBucket    int       `json:"skillBucket"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
	Result         *Result   `json:"result,omitempty"`
	Version        int64     `json:"version"`
}

// ParticipantIndex returns the seat index of id, or -1.
func (s *Session) ParticipantIndex(id string) int {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) HasParticipant(id string) bool {
	return s.ParticipantIndex(id) >= 0
}

// Authorized reports whether id may fill a slot given the session kind.
func (s *Session) Authorized(id string) bool {
	if s.Kind == KindOpen {
		return true
	}
	for _, inv := range s.Invited {
		if inv == id {
			return true
		}
	}
	return false
}

func (s *Session) BothReady() bool {
	if len(s.Participants) != 2 {
		return false
	}
	return s.Participants[0].Ready && s.Participants[1].Ready
}

// Touch bumps LastActivityAt and pushes the sweep deadline out by ttl.
func (s *Session) Touch(now time.Time, ttl time.Duration) {
	s.LastActivityAt = now
	s.ExpiresAt = now.Add(ttl)
}

// clone returns a deep copy so stores can hand out mutable snapshots.
func (s *Session) clone() *Session {
	cp := *s
	cp.Participants = append([]Participant(nil), s.Participants...)
	cp.Invited = append([]string(nil), s.Invited...)
	if s.Result != nil {
		r := *s.Result
		cp.Result = &r
	}
	return &cp
}
