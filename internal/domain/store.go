package domain

import (
	"context"
	"io"
	"time"
)

// TickStore persists top-of-book observations for historical analysis.
type TickStore interface {
	InsertBatch(ctx context.Context, ticks []Tick) error
	QueryRange(ctx context.Context, symbol Symbol, start, end time.Time) ([]Tick, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	ListBefore(ctx context.Context, before time.Time) ([]Tick, error)
}

// OpportunityStore persists emitted opportunities.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	ListRecent(ctx context.Context, limit int) ([]Opportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]Opportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver exports aged rows to blob storage and prunes them from the
// primary store once the upload has succeeded.
type Archiver interface {
	ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error)
	ArchiveTicks(ctx context.Context, before time.Time) (int64, error)
}
