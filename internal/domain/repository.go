package domain

import "context"

// AnalysisCache is the persistent fingerprint -> AnalysisRecord mapping. Get
// returns ErrAnalysisNotFound for unknown fingerprints. Put is write-once:
// when a record already exists for the fingerprint the write is a no-op and
// the existing record is returned, so concurrent identical-key writes are
// safe without locking.
type AnalysisCache interface {
	Get(ctx context.Context, fp Fingerprint) (*AnalysisRecord, error)
	Put(ctx context.Context, record AnalysisRecord) (*AnalysisRecord, error)
	Recent(ctx context.Context, limit int) ([]AnalysisRecord, error)
}

// BlobStore persists uploaded image bytes addressed solely by fingerprint.
type BlobStore interface {
	Ingest(data []byte, ext string) (Fingerprint, error)
	Open(fp Fingerprint) ([]byte, string, error)
}
