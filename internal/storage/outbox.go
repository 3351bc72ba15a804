package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"finsync/internal/core"
	applog "finsync/internal/log"
)

// SaveEntry upserts a pending operation, replacing any earlier entry for
// the same target id. Repeated offline mutations to one record therefore
// collapse to the most recent attempt.
func (r *Repository) SaveEntry(ctx context.Context, entry core.OutboxEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validate outbox entry: %w", err)
	}

	payload, err := marshalPayload(entry)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO outbox (target_id, entity, op, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entity, target_id) DO UPDATE SET
			op = excluded.op,
			payload = excluded.payload,
			created_at = excluded.created_at`,
		entry.TargetID, string(entry.Entity), string(entry.Op), payload, fmtTime(createdAt))
	if err != nil {
		return storageErr("save outbox entry", err)
	}

	slog.InfoContext(ctx, "Outbox entry saved",
		applog.FieldTargetID, entry.TargetID, applog.FieldEntity, entry.Entity, applog.FieldOperation, entry.Op)
	return nil
}

// FetchPending returns every queued operation, oldest first.
func (r *Repository) FetchPending(ctx context.Context) ([]core.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT target_id, entity, op, payload, created_at
		FROM outbox ORDER BY created_at, target_id`)
	if err != nil {
		return nil, storageErr("fetch pending outbox", err)
	}
	defer rows.Close()

	var entries []core.OutboxEntry
	for rows.Next() {
		var (
			entry              core.OutboxEntry
			payload, createdAt string
		)
		if err := rows.Scan(&entry.TargetID, &entry.Entity, &entry.Op, &payload, &createdAt); err != nil {
			return nil, storageErr("scan outbox entry", err)
		}
		if entry.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, storageErr("scan outbox entry", err)
		}
		if err := unmarshalPayload(payload, &entry); err != nil {
			return nil, fmt.Errorf("decode outbox payload for id %d: %w", entry.TargetID, err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("fetch pending outbox", err)
	}
	return entries, nil
}

// DeleteEntry removes the pending operation for a target id, if any.
func (r *Repository) DeleteEntry(ctx context.Context, entity core.EntityKind, targetID int64) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM outbox WHERE entity = ? AND target_id = ?`, string(entity), targetID)
	if err != nil {
		return storageErr("delete outbox entry", err)
	}
	return nil
}

func marshalPayload(entry core.OutboxEntry) (string, error) {
	var (
		data []byte
		err  error
	)
	switch entry.Entity {
	case core.EntityTransaction:
		data, err = json.Marshal(entry.Transaction)
	case core.EntityAccount:
		data, err = json.Marshal(entry.Account)
	default:
		err = fmt.Errorf("unknown entity kind %q", entry.Entity)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalPayload(payload string, entry *core.OutboxEntry) error {
	switch entry.Entity {
	case core.EntityTransaction:
		return json.Unmarshal([]byte(payload), &entry.Transaction)
	case core.EntityAccount:
		return json.Unmarshal([]byte(payload), &entry.Account)
	default:
		return fmt.Errorf("unknown entity kind %q", entry.Entity)
	}
}
