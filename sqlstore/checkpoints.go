package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/invoiceflow"
)

// PutCheckpoint inserts cp. The decision column is written only by
// AttachDecision.
func (s *Store) PutCheckpoint(ctx context.Context, cp *invoiceflow.Checkpoint) error {
	body := *cp
	body.Decision = nil
	data, err := json.Marshal(&body)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint %s: %w", cp.ID, err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO checkpoints (id, instance_id, created_at, data) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		cp.ID, cp.InstanceID, unixNano(cp.CreatedAt), string(data))
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.ID, err)
	}
	return nil
}

func (s *Store) GetCheckpoint(ctx context.Context, id string) (*invoiceflow.Checkpoint, error) {
	var (
		data     string
		decision sql.NullString
	)
	err := s.queryRow(ctx, `SELECT data, decision FROM checkpoints WHERE id = ?`, id).Scan(&data, &decision)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoiceflow.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", id, err)
	}
	return decodeCheckpoint(data, decision)
}

// AttachDecision sets the decision in a single conditional update, so
// concurrent callers race on the row and exactly one wins.
func (s *Store) AttachDecision(ctx context.Context, id string, d *invoiceflow.Decision) (*invoiceflow.Checkpoint, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision: %w", err)
	}
	res, err := s.exec(ctx, `UPDATE checkpoints SET decision = ? WHERE id = ? AND decision IS NULL`, string(data), id)
	if err != nil {
		return nil, fmt.Errorf("failed to attach decision to checkpoint %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetCheckpoint(ctx, id); err != nil {
			return nil, err
		}
		return nil, invoiceflow.ErrAlreadyDecided
	}
	return s.GetCheckpoint(ctx, id)
}

func (s *Store) ListCheckpoints(ctx context.Context, instanceID string) ([]*invoiceflow.Checkpoint, error) {
	rows, err := s.query(ctx,
		`SELECT data, decision FROM checkpoints WHERE instance_id = ? ORDER BY created_at, id`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var result []*invoiceflow.Checkpoint
	for rows.Next() {
		var (
			data     string
			decision sql.NullString
		)
		if err := rows.Scan(&data, &decision); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		cp, err := decodeCheckpoint(data, decision)
		if err != nil {
			return nil, err
		}
		result = append(result, cp)
	}
	return result, rows.Err()
}

func (s *Store) DeleteCheckpoints(ctx context.Context, instanceID string) error {
	if _, err := s.exec(ctx, `DELETE FROM checkpoints WHERE instance_id = ?`, instanceID); err != nil {
		return fmt.Errorf("failed to delete checkpoints of %s: %w", instanceID, err)
	}
	return nil
}

func decodeCheckpoint(data string, decision sql.NullString) (*invoiceflow.Checkpoint, error) {
	var cp invoiceflow.Checkpoint
	if err := json.Unmarshal([]byte(data), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	if decision.Valid {
		d, err := decodeDecision(decision.String)
		if err != nil {
			return nil, err
		}
		cp.Decision = d
	}
	return &cp, nil
}

func decodeDecision(data string) (*invoiceflow.Decision, error) {
	var d invoiceflow.Decision
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}
	return &d, nil
}
