package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
)

// multipartThreshold is the JSONL payload size above which the multipart
// uploader is used instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// ArchiveImpl implements domain.Archiver: it exports aged ticks and
// opportunities as JSONL to blob storage, then prunes the exported rows from
// the primary store. Pruning runs only after the upload succeeded, so a
// failed upload leaves the database intact and the next run retries.
type ArchiveImpl struct {
	writer domain.BlobWriter
	ticks  domain.TickStore
	opps   domain.OpportunityStore
	logger *slog.Logger
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(
	writer domain.BlobWriter,
	ticks domain.TickStore,
	opps domain.OpportunityStore,
	logger *slog.Logger,
) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		ticks:  ticks,
		opps:   opps,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveTicks exports ticks older than the cutoff to
// archive/ticks/YYYY-MM.jsonl, deletes them, and returns the exported count.
func (a *ArchiveImpl) ArchiveTicks(ctx context.Context, before time.Time) (int64, error) {
	ticks, err := a.ticks.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks query: %w", err)
	}
	if len(ticks) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(ticks)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive ticks marshal: %w", err)
	}
	path := archivePath("ticks", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, err
	}

	deleted, err := a.ticks.DeleteBefore(ctx, before)
	if err != nil {
		// Exported but not pruned: the next run re-exports the same rows to
		// the same key, which overwrites harmlessly.
		return int64(len(ticks)), fmt.Errorf("s3blob: prune ticks after archive: %w", err)
	}

	a.logger.Info("ticks archived",
		slog.String("path", path),
		slog.Int("exported", len(ticks)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(ticks)), nil
}

// ArchiveOpportunities exports opportunities older than the cutoff to
// archive/opportunities/YYYY-MM.jsonl, deletes them, and returns the count.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opps.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}
	path := archivePath("opportunities", before)
	if err := a.upload(ctx, path, buf); err != nil {
		return 0, err
	}

	deleted, err := a.opps.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(opps)), fmt.Errorf("s3blob: prune opportunities after archive: %w", err)
	}

	a.logger.Info("opportunities archived",
		slog.String("path", path),
		slog.Int("exported", len(opps)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(opps)), nil
}

func (a *ArchiveImpl) upload(ctx context.Context, path string, buf []byte) error {
	if len(buf) > multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), 0); err != nil {
			return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
		}
		return nil
	}
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive upload %s: %w", path, err)
	}
	return nil
}

// archivePath builds the blob key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/ticks/2026-08.jsonl.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice as newline-delimited JSON, one compact
// object per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
