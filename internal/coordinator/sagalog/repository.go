package sagalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("saga log not found")

type Repository interface {
	// Save appends an entry; existing entries are never updated.
	Save(ctx context.Context, entry *SagaLog) error
	// History returns every entry of a saga, oldest first.
	History(ctx context.Context, sagaID string) ([]SagaLog, error)
	// Latest returns the newest entry or ErrNotFound.
	Latest(ctx context.Context, sagaID string) (*SagaLog, error)
}
