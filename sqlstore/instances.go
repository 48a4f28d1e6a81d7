package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/invoiceflow"
)

func (s *Store) CreateInstance(ctx context.Context, inst *invoiceflow.Instance) error {
	inst.Version = 1
	data, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", inst.ID, err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO instances (id, status, version, created_at, updated_at, data) VALUES (?, ?, ?, ?, ?, ?)`,
		inst.ID, string(inst.Status), inst.Version, unixNano(inst.CreatedAt), unixNano(inst.UpdatedAt), string(data))
	if err != nil {
		return fmt.Errorf("failed to create instance %s: %w", inst.ID, err)
	}
	return nil
}

func (s *Store) GetInstance(ctx context.Context, id string) (*invoiceflow.Instance, error) {
	var data string
	err := s.queryRow(ctx, `SELECT data FROM instances WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, invoiceflow.ErrInstanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read instance %s: %w", id, err)
	}
	return decodeInstance(data)
}

// UpdateInstance writes inst only if the stored version still equals
// inst.Version.
func (s *Store) UpdateInstance(ctx context.Context, inst *invoiceflow.Instance) error {
	expected := inst.Version
	inst.Version++
	data, err := json.Marshal(inst)
	if err != nil {
		inst.Version = expected
		return fmt.Errorf("failed to marshal instance %s: %w", inst.ID, err)
	}
	res, err := s.exec(ctx,
		`UPDATE instances SET status = ?, version = ?, updated_at = ?, data = ? WHERE id = ? AND version = ?`,
		string(inst.Status), inst.Version, unixNano(inst.UpdatedAt), string(data), inst.ID, expected)
	if err != nil {
		inst.Version = expected
		return fmt.Errorf("failed to update instance %s: %w", inst.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	inst.Version = expected
	var one int
	err = s.queryRow(ctx, `SELECT 1 FROM instances WHERE id = ?`, inst.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return invoiceflow.ErrInstanceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read instance %s: %w", inst.ID, err)
	}
	return invoiceflow.ErrVersionConflict
}

func (s *Store) ListInstances(ctx context.Context, opts invoiceflow.ListOptions) ([]*invoiceflow.Instance, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(`SELECT data FROM instances`)
	if opts.Status != "" {
		q.WriteString(` WHERE status = ?`)
		args = append(args, string(opts.Status))
	}
	q.WriteString(` ORDER BY created_at DESC, id DESC`)
	switch {
	case opts.Limit > 0:
		q.WriteString(` LIMIT ?`)
		args = append(args, opts.Limit)
	case opts.Offset > 0:
		q.WriteString(` LIMIT ` + s.dialect.noLimit)
	}
	if opts.Offset > 0 {
		q.WriteString(` OFFSET ?`)
		args = append(args, opts.Offset)
	}

	rows, err := s.query(ctx, q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}
	defer rows.Close()

	result := []*invoiceflow.Instance{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		inst, err := decodeInstance(data)
		if err != nil {
			return nil, err
		}
		result = append(result, inst)
	}
	return result, rows.Err()
}

func (s *Store) CountInstances(ctx context.Context, status invoiceflow.Status) (int, error) {
	q, args := `SELECT COUNT(*) FROM instances`, []any{}
	if status != "" {
		q += ` WHERE status = ?`
		args = append(args, string(status))
	}
	var n int
	if err := s.queryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count instances: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteInstance(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete instance %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return invoiceflow.ErrInstanceNotFound
	}
	return nil
}

func decodeInstance(data string) (*invoiceflow.Instance, error) {
	var inst invoiceflow.Instance
	if err := json.Unmarshal([]byte(data), &inst); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}
	return &inst, nil
}
