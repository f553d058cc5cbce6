package resolvequery

import "catalog-assistant/internal/models"

const (
	ActionQueryResources = "QUERY_ETERNUM_RESOURCES"
	ActionNone           = "NONE"
)

const defaultUserID = "user"

// Request is one inbound message, already scoped to an agent.
type Request struct {
	Text    string
	UserID  string
	RoomID  string
	AgentID string
}

// WithDefaults fills the user and room the way the message route does.
func (r Request) WithDefaults() Request {
	if r.UserID == "" {
		r.UserID = defaultUserID
	}
	if r.RoomID == "" {
		r.RoomID = DefaultRoomID(r.AgentID)
	}
	return r
}

func DefaultRoomID(agentID string) string {
	return "default-room-" + agentID
}

// Result is what Resolve hands back. Handled is false when the gate
// rejected the text and the caller should reply some other way.
type Result struct {
	Action   string
	Handled  bool
	Envelope models.ResponseEnvelope
}

// Input is the job variable payload.
type Input struct {
	Text    string `json:"text"`
	UserID  string `json:"userId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
	AgentID string `json:"agentId,omitempty"`
}

// Output is written back as job variables.
type Output struct {
	Action        string                   `json:"action"`
	FinalResponse *models.ResponseEnvelope `json:"finalResponse"`
}
