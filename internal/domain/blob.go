package domain

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// RoundArchiver exports a settled round's audit trail (price snapshots and
// tile bets) to cold storage. Best-effort: archival failure never blocks
// settlement.
type RoundArchiver interface {
	ArchiveRound(ctx context.Context, roundID uuid.UUID) (int, error)
}
