package models

import (
	"strconv"
	"time"
)

// CatalogRow is the read-only projection of one row of the resources table.
type CatalogRow struct {
	Name        string  `json:"name"`
	Tier        string  `json:"tier"`
	Description string  `json:"description"`
	Rarity      float64 `json:"rarity"`
	Value       float64 `json:"value"`
	Ticker      string  `json:"ticker"`
	Colour      string  `json:"colour"`
}

// ExecutionResult is what the executor hands to the validator.
// Success=false implies Rows is empty.
type ExecutionResult struct {
	Success      bool         `json:"success"`
	Rows         []CatalogRow `json:"rows"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
}

// ResponseEnvelope is the terminal artifact returned to callers and persisted as memory.
type ResponseEnvelope struct {
	Text    string       `json:"text"`
	Success bool         `json:"success"`
	Data    []CatalogRow `json:"data"`
	Message string       `json:"message"`
}

// MessageRequest is the inbound message body.
type MessageRequest struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
	RoomID string `json:"roomId"`
}

// MessageResponse is the reply to a submitted message.
type MessageResponse struct {
	Action        string           `json:"action"`
	FinalResponse ResponseEnvelope `json:"finalResponse"`
}

// MemoryRecord is one persisted assistant reply.
type MemoryRecord struct {
	ID        string           `json:"id"`
	AgentID   string           `json:"agentId"`
	UserID    string           `json:"userId"`
	RoomID    string           `json:"roomId"`
	Content   ResponseEnvelope `json:"content"`
	CreatedAt time.Time        `json:"createdAt"`
}

// FormatNumber renders a float without trailing zeros (217.92, 1, 1.27).
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
