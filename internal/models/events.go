package models

import "time"

// Event type tags delivered over the subscription stream.
const (
	EventConnected          = "connected"
	EventProcessingStarted  = "processing-started"
	EventProcessingComplete = "processing-complete"
)

// CompletionEvent is the payload pushed to subscribers when a job
// finishes (or, with the started tag, when one is announced). Created
// once per webhook and never mutated afterwards.
type CompletionEvent struct {
	Type           string     `json:"type"`
	ProjectID      string     `json:"projectId"`
	ItemID         string     `json:"itemId"`
	ItemType       ItemType   `json:"itemType"`
	ItemName       string     `json:"itemName,omitempty"`
	Success        bool       `json:"success"`
	ItemsProcessed int        `json:"itemsProcessed,omitempty"`
	TotalBoxes     int        `json:"totalBoxes,omitempty"`
	Error          string     `json:"error,omitempty"`
	Source         ItemSource `json:"source,omitempty"`
	// Synthetic marks events fabricated because no in-flight item could
	// be matched; Strategy names the reconciliation path that fired.
	Synthetic bool   `json:"synthetic,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	// ConnectionID is set only on the connection-acknowledgement event.
	ConnectionID string    `json:"connectionId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
