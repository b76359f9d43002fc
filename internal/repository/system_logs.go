package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertSystemLogParams describes one append-only audit entry.
type InsertSystemLogParams struct {
	EntityType string
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Action     string
	PrevState  *string
	NextState  *string
	Metadata   []byte
}

func (q *Queries) InsertSystemLog(ctx context.Context, p InsertSystemLogParams) error {
	_, err := q.db.Exec(ctx, `INSERT INTO system_logs (entity_type, entity_id, actor_id, action, prev_state, next_state, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		p.EntityType, p.EntityID, p.ActorID, p.Action, p.PrevState, p.NextState, p.Metadata)
	if err != nil {
		return fmt.Errorf("insert system log: %w", err)
	}
	return nil
}
