package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/curvemarket/internal/domain"
)

// Payloads at or above this size go through the multipart uploader.
const multipartThreshold = 8 * 1024 * 1024

// TransactionArchiveStore is the read surface the archiver needs from the
// settlement log.
type TransactionArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Transaction, error)
}

// BucketArchiveStore is the read surface the archiver needs from the price
// history.
type BucketArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.PriceBucket, error)
}

// ArchiveImpl implements domain.Archiver: it serializes aged settlement and
// price-history rows to JSONL and uploads them, partitioned by the cutoff's
// year-month. It never deletes from the primary store; pruning stays a
// separate step run after the archive has been verified.
type ArchiveImpl struct {
	writer  *Writer
	txs     TransactionArchiveStore
	buckets BucketArchiveStore
}

// NewArchiver creates an ArchiveImpl.
func NewArchiver(writer *Writer, txs TransactionArchiveStore, buckets BucketArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		txs:     txs,
		buckets: buckets,
	}
}

// ArchiveTransactions uploads all settled transactions with a block time
// before the cutoff to archive/transactions/YYYY-MM.jsonl and returns the
// number of archived rows.
func (a *ArchiveImpl) ArchiveTransactions(ctx context.Context, before time.Time) (int64, error) {
	txs, err := a.txs.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions query: %w", err)
	}
	if len(txs) == 0 {
		return 0, nil
	}

	if err := upload(ctx, a.writer, archivePath("transactions", before), txs); err != nil {
		return 0, fmt.Errorf("s3blob: archive transactions: %w", err)
	}
	return int64(len(txs)), nil
}

// ArchiveBuckets uploads all price buckets starting before the cutoff to
// archive/price_buckets/YYYY-MM.jsonl and returns the number of archived
// rows.
func (a *ArchiveImpl) ArchiveBuckets(ctx context.Context, before time.Time) (int64, error) {
	buckets, err := a.buckets.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive buckets query: %w", err)
	}
	if len(buckets) == 0 {
		return 0, nil
	}

	if err := upload(ctx, a.writer, archivePath("price_buckets", before), buckets); err != nil {
		return 0, fmt.Errorf("s3blob: archive buckets: %w", err)
	}
	return int64(len(buckets)), nil
}

func upload[T any](ctx context.Context, w *Writer, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return err
	}
	if int64(len(buf)) >= multipartThreshold {
		return w.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	}
	return w.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff:
//
//	archive/transactions/2026-08.jsonl
//	archive/price_buckets/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serializes a slice as newline-delimited JSON, one compact
// line per record.
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
