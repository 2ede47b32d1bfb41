package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"framelens/internal/domain"
	"framelens/internal/infra"
	"framelens/internal/sqlinline"
)

// AnalysisRepositoryPG implements domain.AnalysisCache on PostgreSQL. Records
// are keyed by fingerprint; the insert is ON CONFLICT DO NOTHING so the first
// written record stays authoritative under concurrent identical-key writes.
type AnalysisRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewAnalysisRepository constructs a new analysis cache instance.
func NewAnalysisRepository(sql infra.SQLExecutor) *AnalysisRepositoryPG {
	return &AnalysisRepositoryPG{sql: sql}
}

// Get returns the cached record for a fingerprint, or domain.ErrAnalysisNotFound.
func (r *AnalysisRepositoryPG) Get(ctx context.Context, fp domain.Fingerprint) (*domain.AnalysisRecord, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectAnalysisByFingerprint, fp.String())
	record, err := scanAnalysis(row)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrAnalysisNotFound
		}
		return nil, fmt.Errorf("analysis cache get: %w", err)
	}
	return record, nil
}

// Put stores the record unless one already exists for the fingerprint, then
// re-reads and returns the authoritative row either way.
func (r *AnalysisRepositoryPG) Put(ctx context.Context, record domain.AnalysisRecord) (*domain.AnalysisRecord, error) {
	critique, err := json.Marshal(record.Critique)
	if err != nil {
		return nil, fmt.Errorf("analysis cache put: encode critique: %w", err)
	}
	var exif []byte
	if len(record.ExifContext) > 0 {
		if exif, err = json.Marshal(record.ExifContext); err != nil {
			return nil, fmt.Errorf("analysis cache put: encode exif context: %w", err)
		}
	}
	if _, err := r.sql.Exec(ctx, sqlinline.QInsertAnalysis, record.Fingerprint.String(), critique, exif); err != nil {
		return nil, fmt.Errorf("analysis cache put: %w", err)
	}
	return r.Get(ctx, record.Fingerprint)
}

// Recent lists the most recently created records, newest first.
func (r *AnalysisRepositoryPG) Recent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.sql.Query(ctx, sqlinline.QSelectRecentAnalyses, limit)
	if err != nil {
		return nil, fmt.Errorf("analysis cache recent: %w", err)
	}
	defer rows.Close()

	var records []domain.AnalysisRecord
	for rows.Next() {
		record, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("analysis cache recent: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("analysis cache recent: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row scanner) (*domain.AnalysisRecord, error) {
	var (
		fp        string
		critique  []byte
		exif      []byte
		createdAt time.Time
	)
	if err := row.Scan(&fp, &critique, &exif, &createdAt); err != nil {
		return nil, err
	}
	record := domain.AnalysisRecord{
		Fingerprint: domain.Fingerprint(fp),
		CreatedAt:   createdAt,
	}
	if err := json.Unmarshal(critique, &record.Critique); err != nil {
		return nil, fmt.Errorf("decode critique: %w", err)
	}
	if len(exif) > 0 {
		if err := json.Unmarshal(exif, &record.ExifContext); err != nil {
			return nil, fmt.Errorf("decode exif context: %w", err)
		}
	}
	return &record, nil
}

var _ domain.AnalysisCache = (*AnalysisRepositoryPG)(nil)
