package handlers

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"framelens/internal/domain"
	"framelens/pkg/zip"
)

// PhotoUpload accepts a multipart photo, ingests it, and returns the analysis
// for its fingerprint. Re-uploading identical bytes returns the stored record
// without touching the analysis service.
func (a *App) PhotoUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "photo file field required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "could not read upload")
		return
	}
	if len(data) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "uploaded photo is empty")
		return
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")
	record, err := a.Pipeline.Analyze(r.Context(), data, ext, exifFromForm(r))
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, record)
}

// exifFromForm collects exif[Key] form fields into the context map passed
// alongside the image. The values inform the critique prompt only.
func exifFromForm(r *http.Request) map[string]string {
	if r.MultipartForm == nil {
		return nil
	}
	var exif map[string]string
	for key, values := range r.MultipartForm.Value {
		if !strings.HasPrefix(key, "exif[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		name := key[len("exif[") : len(key)-1]
		if name == "" || strings.TrimSpace(values[0]) == "" {
			continue
		}
		if exif == nil {
			exif = make(map[string]string)
		}
		exif[name] = strings.TrimSpace(values[0])
	}
	return exif
}

func (a *App) fingerprintParam(w http.ResponseWriter, r *http.Request) (domain.Fingerprint, bool) {
	fp, err := domain.ParseFingerprint(chi.URLParam(r, "fingerprint"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "fingerprint must be 64 lowercase hex characters")
		return "", false
	}
	return fp, true
}

// PhotoAnalysis returns the stored analysis for a fingerprint.
func (a *App) PhotoAnalysis(w http.ResponseWriter, r *http.Request) {
	fp, ok := a.fingerprintParam(w, r)
	if !ok {
		return
	}
	record, err := a.Pipeline.Analysis(r.Context(), fp)
	if err != nil {
		a.domainError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, record)
}

// PhotoDownload streams the stored original bytes for a fingerprint.
func (a *App) PhotoDownload(w http.ResponseWriter, r *http.Request) {
	fp, ok := a.fingerprintParam(w, r)
	if !ok {
		return
	}
	data, mime, err := a.Blobs.Open(fp)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "no photo stored for this fingerprint")
		return
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type branchResponse struct {
	Variant string               `json:"variant"`
	Status  string               `json:"status"`
	Image   string               `json:"image,omitempty"`
	MIME    string               `json:"mime,omitempty"`
	Report  *domain.ChangeReport `json:"report,omitempty"`
	Error   string               `json:"error,omitempty"`
}

type enhancementResponse struct {
	Fingerprint string           `json:"fingerprint"`
	Succeeded   int              `json:"succeeded"`
	Results     []branchResponse `json:"results"`
}

// PhotoEnhance runs the three-branch enhancement for an analyzed photo. The
// response always carries all three slots; failed branches are marked rather
// than dropped, so a partial outcome is still a 200.
func (a *App) PhotoEnhance(w http.ResponseWriter, r *http.Request) {
	fp, ok := a.fingerprintParam(w, r)
	if !ok {
		return
	}
	set, err := a.Pipeline.Enhance(r.Context(), fp)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	resp := enhancementResponse{
		Fingerprint: fp.String(),
		Succeeded:   len(set.Succeeded()),
		Results:     make([]branchResponse, 0, len(set.Results)),
	}
	for _, result := range set.Results {
		branch := branchResponse{Variant: string(result.Variant)}
		if result.Failed() {
			branch.Status = "failed"
			branch.Error = result.Err.Error()
		} else {
			report := result.Report
			branch.Status = "ok"
			branch.Image = base64.StdEncoding.EncodeToString(result.Image)
			branch.MIME = result.MIME
			branch.Report = &report
		}
		resp.Results = append(resp.Results, branch)
	}
	a.json(w, http.StatusOK, resp)
}

// PhotoEnhancementArchive runs a fresh enhancement and bundles the successful
// variants into a zip download. Enhancement output is never cached, so each
// archive reflects a new run.
func (a *App) PhotoEnhancementArchive(w http.ResponseWriter, r *http.Request) {
	fp, ok := a.fingerprintParam(w, r)
	if !ok {
		return
	}
	set, err := a.Pipeline.Enhance(r.Context(), fp)
	if err != nil {
		a.domainError(w, r, err)
		return
	}

	var assets []zip.Asset
	for _, result := range set.Succeeded() {
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("%s.%s", result.Variant, extForMIME(result.MIME)),
			MIME:     result.MIME,
			Data:     result.Image,
		})
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s-enhancements.zip", fp.String()[:12]))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func extForMIME(mime string) string {
	switch mime {
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "bin"
	}
}
