// To handle all database interactions with the durable processing
// state view. This is our data access layer, keeping SQL queries
// separate from the reconciliation logic that consults it.

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/moveboard/moveboard-go/internal/models"
)

// Store provides all functions to interact with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store instance.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// UpsertInFlight records (or refreshes) a durable row for an in-flight
// item. The in-memory registry stays authoritative for delivery; this
// row is what survives a restart.
func (s *Store) UpsertInFlight(projectID string, item models.ProcessingItem) error {
	query := `
		INSERT INTO processing_state (project_id, item_id, item_type, name, source, status, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, 'processing', ?, NULL)
		ON CONFLICT(project_id, item_id) DO UPDATE SET
			item_type = excluded.item_type,
			name = excluded.name,
			source = excluded.source,
			status = 'processing',
			started_at = excluded.started_at,
			completed_at = NULL;
	`
	_, err := s.db.Exec(query, projectID, item.ID, string(item.Type), item.Name, string(item.Source), item.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert processing state: %w", err)
	}
	return nil
}

// FindInFlight looks up a persisted in-flight item. A missing row is
// an absent result (nil, nil), never an error.
func (s *Store) FindInFlight(projectID, itemID string) (*models.ProcessingItem, error) {
	var item models.ProcessingItem
	var itemType, source string
	err := s.db.QueryRow(`
		SELECT item_id, item_type, name, source, started_at
		FROM processing_state
		WHERE project_id = ? AND item_id = ? AND status = 'processing'
	`, projectID, itemID).Scan(&item.ID, &itemType, &item.Name, &source, &item.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	item.Type = models.ItemType(itemType)
	item.Source = models.ItemSource(source)
	return &item, nil
}

// ListInFlight returns the persisted in-flight items for a project in
// registration order.
func (s *Store) ListInFlight(projectID string) ([]models.ProcessingItem, error) {
	rows, err := s.db.Query(`
		SELECT item_id, item_type, name, source, started_at
		FROM processing_state
		WHERE project_id = ? AND status = 'processing'
		ORDER BY started_at ASC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.ProcessingItem
	for rows.Next() {
		var item models.ProcessingItem
		var itemType, source string
		if err := rows.Scan(&item.ID, &itemType, &item.Name, &source, &item.StartedAt); err != nil {
			return nil, err
		}
		item.Type = models.ItemType(itemType)
		item.Source = models.ItemSource(source)
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListAllInFlight returns every persisted in-flight item grouped by
// project. Used once at startup to rehydrate the registry.
func (s *Store) ListAllInFlight() (map[string][]models.ProcessingItem, error) {
	rows, err := s.db.Query(`
		SELECT project_id, item_id, item_type, name, source, started_at
		FROM processing_state
		WHERE status = 'processing'
		ORDER BY started_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make(map[string][]models.ProcessingItem)
	for rows.Next() {
		var projectID string
		var item models.ProcessingItem
		var itemType, source string
		if err := rows.Scan(&projectID, &item.ID, &itemType, &item.Name, &source, &item.StartedAt); err != nil {
			return nil, err
		}
		item.Type = models.ItemType(itemType)
		item.Source = models.ItemSource(source)
		items[projectID] = append(items[projectID], item)
	}
	return items, rows.Err()
}

// MarkComplete flips a persisted row to complete. Completing a row
// that does not exist is a no-op: the webhook may describe a job this
// view never saw.
func (s *Store) MarkComplete(projectID, itemID string) error {
	_, err := s.db.Exec(`
		UPDATE processing_state
		SET status = 'complete', completed_at = ?
		WHERE project_id = ? AND item_id = ?
	`, time.Now(), projectID, itemID)
	if err != nil {
		return fmt.Errorf("failed to mark processing state complete: %w", err)
	}
	return nil
}

// PruneCompletedBefore deletes completed rows whose completion predates
// the cutoff, and returns how many were removed.
func (s *Store) PruneCompletedBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`
		DELETE FROM processing_state
		WHERE status = 'complete' AND completed_at < ?
	`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}
