package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"framelens/internal/domain"
	"framelens/internal/infra"
)

// Pipeline is the slice of the orchestrator the HTTP layer drives.
type Pipeline interface {
	Analyze(ctx context.Context, data []byte, ext string, exif map[string]string) (*domain.AnalysisRecord, error)
	Analysis(ctx context.Context, fp domain.Fingerprint) (*domain.AnalysisRecord, error)
	Enhance(ctx context.Context, fp domain.Fingerprint) (*domain.EnhancementSet, error)
}

type App struct {
	Pipeline       Pipeline
	Cache          domain.AnalysisCache
	Blobs          domain.BlobStore
	Log            infra.Logger
	MaxUploadBytes int64
}

func NewApp(pipeline Pipeline, cache domain.AnalysisCache, blobs domain.BlobStore, log infra.Logger, maxUploadBytes int64) *App {
	return &App{
		Pipeline:       pipeline,
		Cache:          cache,
		Blobs:          blobs,
		Log:            log,
		MaxUploadBytes: maxUploadBytes,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{"error": map[string]string{"code": code, "message": message}})
}

// domainError maps the pipeline error taxonomy onto HTTP statuses. Retryable
// upstream conditions surface as 503 so clients know trying again may help;
// non-retryable upstream outcomes surface as 502.
func (a *App) domainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrAnalysisNotFound):
		a.error(w, http.StatusNotFound, "analysis_not_found", "no analysis stored for this fingerprint")
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		a.error(w, http.StatusServiceUnavailable, "upstream_unavailable", "the analysis service is temporarily unavailable")
	case errors.Is(err, domain.ErrUpstreamRejected):
		a.error(w, http.StatusBadGateway, "upstream_rejected", "the analysis service rejected the request")
	case errors.Is(err, domain.ErrMalformedUpstreamResponse):
		a.error(w, http.StatusBadGateway, "malformed_upstream_response", "the analysis service returned an unusable response")
	case errors.Is(err, domain.ErrIncompletePlan):
		a.error(w, http.StatusBadGateway, "incomplete_plan", "could not derive a complete set of editing instructions")
	case errors.Is(err, domain.ErrEnhancementSetFailed):
		a.error(w, http.StatusBadGateway, "enhancement_failed", "every enhancement branch failed")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		a.Log.Error().Err(err).Str("path", r.URL.Path).Msg("handler: unexpected error")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
