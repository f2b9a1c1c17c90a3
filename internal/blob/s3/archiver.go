package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/monarena/monarena/internal/domain"
)

// Archiver implements domain.RoundArchiver by exporting a settled round's
// audit trail to cold storage as JSONL. One object per record kind:
//
//	archive/rounds/<number>/round.json
//	archive/rounds/<number>/snapshots.jsonl
//	archive/rounds/<number>/tile_bets.jsonl
//	archive/rounds/<number>/user_bets.jsonl
//
// Deletion of archived rows from the primary store is intentionally not
// performed here; the database remains the source of truth.
type Archiver struct {
	writer    domain.BlobWriter
	rounds    domain.RoundStore
	snapshots domain.SnapshotStore
	tileBets  domain.TileBetStore
	userBets  domain.UserBetStore
}

// NewArchiver creates an Archiver over the given stores.
func NewArchiver(
	writer domain.BlobWriter,
	rounds domain.RoundStore,
	snapshots domain.SnapshotStore,
	tileBets domain.TileBetStore,
	userBets domain.UserBetStore,
) *Archiver {
	return &Archiver{
		writer:    writer,
		rounds:    rounds,
		snapshots: snapshots,
		tileBets:  tileBets,
		userBets:  userBets,
	}
}

// ArchiveRound exports one round and returns the number of records uploaded.
func (a *Archiver) ArchiveRound(ctx context.Context, roundID uuid.UUID) (int, error) {
	round, err := a.rounds.GetByID(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive round query: %w", err)
	}

	prefix := fmt.Sprintf("archive/rounds/%d", round.Number)
	count := 0

	roundJSON, err := json.Marshal(round)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive round marshal: %w", err)
	}
	if err := a.writer.Put(ctx, prefix+"/round.json", bytes.NewReader(roundJSON), "application/json"); err != nil {
		return 0, fmt.Errorf("s3blob: archive round upload: %w", err)
	}
	count++

	snaps, err := a.snapshots.ListByRound(ctx, roundID)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	n, err := putJSONL(ctx, a.writer, prefix+"/snapshots.jsonl", snaps)
	if err != nil {
		return count, err
	}
	count += n

	tileBets, err := a.tileBets.ListByRound(ctx, roundID)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive tile bets query: %w", err)
	}
	n, err = putJSONL(ctx, a.writer, prefix+"/tile_bets.jsonl", tileBets)
	if err != nil {
		return count, err
	}
	count += n

	userBets, err := a.userBets.ListByRound(ctx, roundID)
	if err != nil {
		return count, fmt.Errorf("s3blob: archive user bets query: %w", err)
	}
	n, err = putJSONL(ctx, a.writer, prefix+"/user_bets.jsonl", userBets)
	if err != nil {
		return count, err
	}
	count += n

	return count, nil
}

// putJSONL uploads records as newline-delimited JSON and returns how many
// were written. Empty slices are skipped entirely.
func putJSONL[T any](ctx context.Context, writer domain.BlobWriter, path string, records []T) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: jsonl encode record %d: %w", i, err)
		}
	}

	if err := writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: upload %s: %w", path, err)
	}
	return len(records), nil
}

// Compile-time interface check.
var _ domain.RoundArchiver = (*Archiver)(nil)
