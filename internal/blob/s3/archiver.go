package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// DefaultArchiveBatch caps the rows exported by one archive call.
const DefaultArchiveBatch = 50000

// ArchiveImpl implements domain.Archiver. It exports history rows older than
// a cutoff to JSONL objects and, when purging is enabled, deletes exactly the
// exported rows once the upload succeeded. Rows past a full batch are left
// for the next call.
type ArchiveImpl struct {
	writer      domain.BlobWriter
	reader      domain.BlobReader
	settlements domain.SettlementStore
	audit       domain.AuditStore
	batch       int
	purge       bool
}

// NewArchiver creates an ArchiveImpl. reader may be nil, in which case
// existing objects are overwritten.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, settlements domain.SettlementStore, audit domain.AuditStore, purge bool) *ArchiveImpl {
	return &ArchiveImpl{
		writer:      writer,
		reader:      reader,
		settlements: settlements,
		audit:       audit,
		batch:       DefaultArchiveBatch,
		purge:       purge,
	}
}

// ArchiveSettlements exports settlements older than before to
// archive/settlements/YYYY-MM/<cutoff>.jsonl.
func (a *ArchiveImpl) ArchiveSettlements(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.settlements.ListBefore(ctx, before, a.batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive settlements query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return archiveRows(ctx, a, "settlements", before, rows, func(ctx context.Context) (int64, error) {
		return a.settlements.DeleteIDs(ctx, ids)
	})
}

// ArchiveAudit exports audit entries older than before to
// archive/audit/YYYY-MM/<cutoff>.jsonl.
func (a *ArchiveImpl) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.audit.ListBefore(ctx, before, a.batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return archiveRows(ctx, a, "audit", before, rows, func(ctx context.Context) (int64, error) {
		return a.audit.DeleteIDs(ctx, ids)
	})
}

func archiveRows[T any](ctx context.Context, a *ArchiveImpl, kind string, before time.Time, rows []T, purge func(context.Context) (int64, error)) (int64, error) {
	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s marshal: %w", kind, err)
	}

	path := archivePath(kind, before)
	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive %s: %w", kind, err)
		}
		if exists {
			path = fmt.Sprintf("%s.%d", path, time.Now().UnixNano())
		}
	}

	if int64(len(buf)) > MinPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), MinPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s upload: %w", kind, err)
	}

	count := int64(len(rows))
	var purged int64
	if a.purge {
		if purged, err = purge(ctx); err != nil {
			return count, fmt.Errorf("s3blob: archive %s purge: %w", kind, err)
		}
	}

	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"purged": purged,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s audit log: %w", kind, err)
	}
	return count, nil
}

// archivePath partitions archives by the cutoff's month:
//
//	archive/settlements/2026-03/20260301T000000Z.jsonl
func archivePath(kind string, before time.Time) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, before.Format("2006-01"), before.Format("20060102T150405Z"))
}

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

var _ domain.Archiver = (*ArchiveImpl)(nil)
