package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type SequenceRepository interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const nextSequenceSQL = `INSERT INTO event_sequences (partition_key, last_sequence, updated_at)
VALUES ($1, 1, NOW())
ON CONFLICT (partition_key) DO UPDATE
SET last_sequence = event_sequences.last_sequence + 1,
    updated_at = NOW()
RETURNING last_sequence`

type sequenceRepository struct {
	db rowQuerier
}

func NewSequenceRepository(db rowQuerier) SequenceRepository {
	return &sequenceRepository{db: db}
}

// NextSequence atomically increments and returns the next sequence for a partition.
func (r *sequenceRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	if partitionKey == "" {
		return 0, errors.New("partition key is required")
	}

	var next int64
	if err := r.db.QueryRow(ctx, nextSequenceSQL, partitionKey).Scan(&next); err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}
	return next, nil
}
