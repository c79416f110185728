package models

import "time"

// ItemType distinguishes the two kinds of analysis jobs the vision
// workers run.
type ItemType string

const (
	ItemTypeImage ItemType = "image"
	ItemTypeVideo ItemType = "video"
)

// ItemSource records who initiated an upload. It doubles as a
// correlation signal: customer uploads rarely keep a stable client-side
// id across the webhook round trip.
type ItemSource string

const (
	SourceAdminUpload    ItemSource = "admin_upload"
	SourceCustomerUpload ItemSource = "customer_upload"
)

// ProcessingItem is a unit of work believed to be in flight on an
// external worker. The ID is whatever the UI used when it kicked off
// the job; the worker is not guaranteed to echo it back.
type ProcessingItem struct {
	ID        string     `json:"id"`
	Type      ItemType   `json:"type"`
	Name      string     `json:"name"`
	Source    ItemSource `json:"source"`
	StartedAt time.Time  `json:"started_at"`
}

// CompletionNotice is the inbound webhook payload a worker sends when
// an analysis job finishes. Exactly one of ImageID/VideoID is expected.
type CompletionNotice struct {
	ImageID        string `json:"imageId,omitempty"`
	VideoID        string `json:"videoId,omitempty"`
	ProjectID      string `json:"projectId"`
	Success        bool   `json:"success"`
	ItemsProcessed int    `json:"itemsProcessed,omitempty"`
	TotalBoxes     int    `json:"totalBoxes,omitempty"`
	Error          string `json:"error,omitempty"`
	Source         string `json:"source,omitempty"`
	Timestamp      string `json:"timestamp,omitempty"`
}

// ItemType derives the job type from which identifier the worker
// reported. Video wins when both are present, which workers do not send
// in practice.
func (n *CompletionNotice) ItemType() ItemType {
	if n.VideoID != "" {
		return ItemTypeVideo
	}
	return ItemTypeImage
}

// ReportedID returns whichever identifier the worker supplied.
func (n *CompletionNotice) ReportedID() string {
	if n.VideoID != "" {
		return n.VideoID
	}
	return n.ImageID
}
