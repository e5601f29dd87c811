package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// EventArchiveStore is the narrow store surface the archiver needs: a
// time-ranged read of old events and their deletion once archived.
type EventArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Event, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// EventArchiver implements domain.Archiver by querying the event store for
// records older than the retention window, serializing them to JSONL,
// uploading the result to S3, and then deleting the archived rows from the
// primary store. The upload happens before the delete so a failed upload
// never loses data.
type EventArchiver struct {
	writer    domain.BlobWriter
	store     EventArchiveStore
	retention time.Duration
	logger    *slog.Logger
}

// NewEventArchiver creates an EventArchiver with the given retention window.
func NewEventArchiver(writer domain.BlobWriter, store EventArchiveStore, retention time.Duration, logger *slog.Logger) *EventArchiver {
	return &EventArchiver{
		writer:    writer,
		store:     store,
		retention: retention,
		logger:    logger.With("component", "archiver"),
	}
}

// ArchiveEvents moves all events older than the cutoff to cold storage at
// archive/events/YYYY-MM.jsonl and returns the number archived.
func (a *EventArchiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.store.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(events)), fmt.Errorf("s3blob: archive events delete: %w", err)
	}

	a.logger.Info("events archived",
		"path", path, "archived", len(events), "deleted", deleted)
	return int64(len(events)), nil
}

// RunDaily archives on a 24-hour cadence until the context is cancelled. An
// archival failure is logged and retried on the next tick.
func (a *EventArchiver) RunDaily(ctx context.Context) error {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		cutoff := time.Now().UTC().Add(-a.retention)
		if _, err := a.ArchiveEvents(ctx, cutoff); err != nil {
			a.logger.Error("archival run failed", "error", err)
		}

		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/events/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
var _ domain.Archiver = (*EventArchiver)(nil)
