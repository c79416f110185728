// Handlers for the processing-completion webhooks and the in-flight
// job tracking endpoints.

package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/moveboard/moveboard-go/internal/models"
)

// handleProcessingComplete receives a completion webhook from the
// worker tier, reconciles it against the in-flight registry, and
// delivers the resulting event to live subscribers (or the pending
// buffer when nobody is watching). A correlation miss is never an
// error to the caller: the reconciler always produces an event, flagged
// synthetic when it had to fabricate one.
func (s *Server) handleProcessingComplete(w http.ResponseWriter, r *http.Request) {
	var notice models.CompletionNotice
	if err := json.NewDecoder(r.Body).Decode(&notice); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if notice.ProjectID == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing projectId")
		return
	}
	if notice.ImageID == "" && notice.VideoID == "" {
		RespondWithError(w, http.StatusBadRequest, "Notice must carry imageId or videoId")
		return
	}

	resolution := s.reconciler.Resolve(&notice)

	// Keep the durable processing-state view consistent. Best-effort:
	// the in-memory path is authoritative and a store outage must not
	// fail the webhook.
	if err := s.store.MarkComplete(notice.ProjectID, resolution.Item.ID); err != nil {
		log.Printf("Failed to mark processing state complete for %s: %v", resolution.Item.ID, err)
	}
	if reported := notice.ReportedID(); reported != "" && reported != resolution.Item.ID {
		if err := s.store.MarkComplete(notice.ProjectID, reported); err != nil {
			log.Printf("Failed to mark processing state complete for %s: %v", reported, err)
		}
	}

	event := models.CompletionEvent{
		Type:           models.EventProcessingComplete,
		ProjectID:      notice.ProjectID,
		ItemID:         resolution.Item.ID,
		ItemType:       resolution.Item.Type,
		ItemName:       resolution.Item.Name,
		Success:        notice.Success,
		ItemsProcessed: notice.ItemsProcessed,
		TotalBoxes:     notice.TotalBoxes,
		Error:          notice.Error,
		Source:         resolution.Item.Source,
		Synthetic:      resolution.Synthetic(),
		Strategy:       string(resolution.Strategy),
		Timestamp:      noticeTime(notice.Timestamp),
	}

	delivered := s.app.WsHub().Publish(notice.ProjectID, event)

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"itemId":    event.ItemID,
		"strategy":  event.Strategy,
		"delivered": delivered,
	})
}

// ProcessingAnnouncement is the payload for the announce-only
// processing-started broadcast. It never touches the registry or the
// reconciler; it exists purely so watching tabs can show a spinner.
type ProcessingAnnouncement struct {
	ProjectID string            `json:"projectId"`
	ItemID    string            `json:"itemId"`
	ItemType  models.ItemType   `json:"itemType"`
	ItemName  string            `json:"itemName,omitempty"`
	Source    models.ItemSource `json:"source,omitempty"`
}

func (s *Server) handleProcessingStarted(w http.ResponseWriter, r *http.Request) {
	var payload ProcessingAnnouncement
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.ProjectID == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing projectId")
		return
	}

	delivered := s.app.WsHub().Publish(payload.ProjectID, models.CompletionEvent{
		Type:      models.EventProcessingStarted,
		ProjectID: payload.ProjectID,
		ItemID:    payload.ItemID,
		ItemType:  payload.ItemType,
		ItemName:  payload.ItemName,
		Source:    payload.Source,
		Timestamp: time.Now(),
	})

	RespondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"delivered": delivered,
	})
}

// RegisterProcessingPayload is what the upload UI posts when it hands
// a job to the worker tier. The id chosen here is what the reconciler
// will attempt, but cannot guarantee, to see echoed back.
type RegisterProcessingPayload struct {
	ID     string            `json:"id"`
	Type   models.ItemType   `json:"type"`
	Name   string            `json:"name"`
	Source models.ItemSource `json:"source"`
}

func (s *Server) handleRegisterProcessing(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var payload RegisterProcessingPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.ID == "" {
		RespondWithError(w, http.StatusBadRequest, "Missing item id")
		return
	}
	if payload.Type != models.ItemTypeImage && payload.Type != models.ItemTypeVideo {
		RespondWithError(w, http.StatusBadRequest, "Invalid item type")
		return
	}
	if payload.Source == "" {
		payload.Source = models.SourceAdminUpload
	}

	item := models.ProcessingItem{
		ID:        payload.ID,
		Type:      payload.Type,
		Name:      payload.Name,
		Source:    payload.Source,
		StartedAt: time.Now(),
	}
	s.app.Registry().Register(projectID, item)

	// Mirror into the durable view so a restart doesn't orphan the job.
	if err := s.store.UpsertInFlight(projectID, item); err != nil {
		log.Printf("Failed to persist processing state for %s: %v", item.ID, err)
	}

	// Tell everyone already watching that a job is underway.
	s.app.WsHub().Publish(projectID, models.CompletionEvent{
		Type:      models.EventProcessingStarted,
		ProjectID: projectID,
		ItemID:    item.ID,
		ItemType:  item.Type,
		ItemName:  item.Name,
		Source:    item.Source,
		Timestamp: item.StartedAt,
	})

	RespondWithJSON(w, http.StatusCreated, item)
}

func (s *Server) handleListProcessing(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	items := s.app.Registry().List(projectID)
	RespondWithJSON(w, http.StatusOK, items)
}

// noticeTime parses the worker-supplied timestamp, falling back to the
// arrival time when it is missing or malformed.
func noticeTime(value string) time.Time {
	if value == "" {
		return time.Now()
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now()
	}
	return ts
}
