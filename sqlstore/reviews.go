package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/invoiceflow"
)

func (s *Store) AppendReview(ctx context.Context, entry *invoiceflow.ReviewEntry) error {
	body := *entry
	body.Decision = nil
	data, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("failed to marshal review entry %s: %w", entry.CheckpointID, err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO reviews (checkpoint_id, instance_id, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?) ON CONFLICT (checkpoint_id) DO NOTHING`,
		entry.CheckpointID, entry.InstanceID, unixNano(entry.CreatedAt), unixNano(entry.UpdatedAt), string(data))
	if err != nil {
		return fmt.Errorf("failed to append review entry %s: %w", entry.CheckpointID, err)
	}
	return nil
}

func (s *Store) ListUndecided(ctx context.Context) ([]*invoiceflow.ReviewEntry, error) {
	rows, err := s.query(ctx,
		`SELECT data FROM reviews WHERE decision IS NULL ORDER BY created_at, checkpoint_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list review entries: %w", err)
	}
	defer rows.Close()

	var result []*invoiceflow.ReviewEntry
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan review entry: %w", err)
		}
		var entry invoiceflow.ReviewEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal review entry: %w", err)
		}
		result = append(result, &entry)
	}
	return result, rows.Err()
}

func (s *Store) MarkDecided(ctx context.Context, checkpointID string, d *invoiceflow.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal decision: %w", err)
	}
	res, err := s.exec(ctx, `UPDATE reviews SET decision = ?, updated_at = ? WHERE checkpoint_id = ?`,
		string(data), unixNano(time.Now()), checkpointID)
	if err != nil {
		return fmt.Errorf("failed to mark review entry %s decided: %w", checkpointID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invoiceflow.ErrCheckpointNotFound
	}
	return nil
}

func (s *Store) DeleteReviews(ctx context.Context, instanceID string) error {
	if _, err := s.exec(ctx, `DELETE FROM reviews WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to delete review entries of %s: %w", instanceID, err)
	}
	return nil
}
