package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"framelens/internal/domain"
	"framelens/internal/infra"
	"framelens/internal/providers/image"
)

// AnalysisProvider produces a critique for a single image.
type AnalysisProvider interface {
	Analyze(ctx context.Context, imageData []byte, mime string, exif map[string]string) (*domain.Critique, error)
}

// InstructionPlanner derives the three editing instructions from a stored
// analysis.
type InstructionPlanner interface {
	Plan(ctx context.Context, record domain.AnalysisRecord) ([3]domain.EditingInstruction, error)
}

// Orchestrator drives the photo pipeline: ingest, coalesced analysis,
// cache-then-compute, and the enhancement fan-out. It is safe for concurrent
// use.
type Orchestrator struct {
	blobs    domain.BlobStore
	cache    domain.AnalysisCache
	critic   AnalysisProvider
	planner  InstructionPlanner
	executor *Executor
	inflight singleflight.Group
	logger   infra.Logger
}

// NewOrchestrator wires the pipeline stages together.
func NewOrchestrator(blobs domain.BlobStore, cache domain.AnalysisCache, critic AnalysisProvider, planner InstructionPlanner, executor *Executor, logger infra.Logger) *Orchestrator {
	return &Orchestrator{
		blobs:    blobs,
		cache:    cache,
		critic:   critic,
		planner:  planner,
		executor: executor,
		logger:   logger,
	}
}

// Analyze ingests the uploaded bytes, then returns the cached analysis for
// their fingerprint or computes one. Concurrent callers holding identical
// bytes coalesce onto a single upstream call keyed by fingerprint; every
// caller receives the same stored record.
func (o *Orchestrator) Analyze(ctx context.Context, data []byte, ext string, exif map[string]string) (*domain.AnalysisRecord, error) {
	fp, err := o.blobs.Ingest(data, ext)
	if err != nil {
		return nil, fmt.Errorf("ingest upload: %w", err)
	}

	if record, err := o.cache.Get(ctx, fp); err == nil {
		o.logger.Debug().Str("fingerprint", fp.String()).Msg("pipeline: analysis cache hit")
		return record, nil
	} else if !errors.Is(err, domain.ErrAnalysisNotFound) {
		return nil, err
	}

	value, err, shared := o.inflight.Do(fp.String(), func() (any, error) {
		// The flight is shared by every caller holding these bytes, so it
		// must not die with the caller that happened to start it. The
		// upstream client carries its own timeout.
		return o.analyzeOnce(context.WithoutCancel(ctx), fp, exif)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		o.logger.Debug().Str("fingerprint", fp.String()).Msg("pipeline: analysis coalesced with concurrent upload")
	}
	return value.(*domain.AnalysisRecord), nil
}

func (o *Orchestrator) analyzeOnce(ctx context.Context, fp domain.Fingerprint, exif map[string]string) (*domain.AnalysisRecord, error) {
	// A flight that queued behind a finished one re-checks the cache before
	// touching the upstream.
	if record, err := o.cache.Get(ctx, fp); err == nil {
		return record, nil
	} else if !errors.Is(err, domain.ErrAnalysisNotFound) {
		return nil, err
	}

	data, mime, err := o.blobs.Open(fp)
	if err != nil {
		return nil, fmt.Errorf("open ingested blob: %w", err)
	}

	critique, err := o.critic.Analyze(ctx, data, mime, exif)
	if err != nil {
		return nil, err
	}

	record, err := o.cache.Put(ctx, domain.AnalysisRecord{
		Fingerprint: fp,
		Critique:    *critique,
		ExifContext: exif,
	})
	if err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	o.logger.Info().Str("fingerprint", fp.String()).Msg("pipeline: analysis stored")
	return record, nil
}

// Analysis returns the stored analysis for a fingerprint without triggering
// any computation.
func (o *Orchestrator) Analysis(ctx context.Context, fp domain.Fingerprint) (*domain.AnalysisRecord, error) {
	return o.cache.Get(ctx, fp)
}

// Enhance runs the three-branch enhancement fan-out for an already analyzed
// photo. A fingerprint with no stored analysis fails with ErrAnalysisNotFound
// before any upstream call is made.
func (o *Orchestrator) Enhance(ctx context.Context, fp domain.Fingerprint) (*domain.EnhancementSet, error) {
	record, err := o.cache.Get(ctx, fp)
	if err != nil {
		return nil, err
	}

	data, mime, err := o.blobs.Open(fp)
	if err != nil {
		return nil, fmt.Errorf("open source blob: %w", err)
	}

	instructions, err := o.planner.Plan(ctx, *record)
	if err != nil {
		return nil, err
	}

	set, err := o.executor.Execute(ctx, fp, image.SourceImage{Data: data, MIME: mime}, instructions)
	if err != nil {
		return nil, err
	}
	o.logger.Info().
		Str("fingerprint", fp.String()).
		Int("succeeded", len(set.Succeeded())).
		Msg("pipeline: enhancement set complete")
	return set, nil
}
