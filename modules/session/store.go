package session

import (
	"context"
	"errors"

	"cinegen-server/modules/workflow"
)

// ErrNotFound - no session with that id
var ErrNotFound = errors.New("session not found")

// Store keeps workflow snapshots so a session survives controller eviction
// (and, with Redis, a process restart).
type Store interface {
	Load(ctx context.Context, id string) (workflow.State, error)
	Save(ctx context.Context, id string, st workflow.State) error
	Delete(ctx context.Context, id string) error
}
