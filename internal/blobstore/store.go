package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"framelens/internal/domain"
)

// Store is a content-addressed blob store on the local filesystem. Blobs are
// written once under a path derived only from their fingerprint and a
// normalized extension; re-ingesting identical bytes is a no-op. Writes go
// through a temp file plus atomic rename so concurrent first uploads of the
// same content cannot leave a partial blob behind.
type Store struct {
	basePath string
}

// New initializes a Store rooted at basePath.
func New(basePath string) (*Store, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("blobstore: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: ensure base path: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *Store) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// FingerprintBytes computes the content fingerprint for raw image bytes.
func FingerprintBytes(data []byte) domain.Fingerprint {
	sum := sha256.Sum256(data)
	return domain.Fingerprint(hex.EncodeToString(sum[:]))
}

// Ingest fingerprints the bytes and persists them if no blob exists yet for
// that fingerprint. Duplicate content is detected, not rejected: the same
// fingerprint is returned and storage is left untouched.
func (s *Store) Ingest(data []byte, ext string) (domain.Fingerprint, error) {
	if s == nil {
		return "", errors.New("blobstore: no store configured")
	}
	if len(data) == 0 {
		return "", errors.New("blobstore: empty payload")
	}
	fp := FingerprintBytes(data)
	target := s.blobPath(fp, normalizeExt(ext))

	// The fingerprint alone decides existence. A repeat upload of the same
	// bytes under a different claimed extension is still a duplicate.
	if matches, err := filepath.Glob(s.blobPath(fp, "*")); err == nil && len(matches) > 0 {
		return fp, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("blobstore: ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+fp.String()+".*")
	if err != nil {
		return "", fmt.Errorf("blobstore: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: write blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: close blob: %w", err)
	}
	// Rename is atomic; if a concurrent ingest won the race the replaced
	// file holds identical bytes, so either order is fine.
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("blobstore: finalize blob: %w", err)
	}
	return fp, nil
}

// Open reads the blob for a fingerprint and returns its bytes and MIME type.
func (s *Store) Open(fp domain.Fingerprint) ([]byte, string, error) {
	if s == nil {
		return nil, "", errors.New("blobstore: no store configured")
	}
	matches, err := filepath.Glob(s.blobPath(fp, "*"))
	if err != nil || len(matches) == 0 {
		return nil, "", fmt.Errorf("blobstore: blob %s: %w", fp, os.ErrNotExist)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return nil, "", fmt.Errorf("blobstore: read blob: %w", err)
	}
	return data, mimeForExt(strings.TrimPrefix(filepath.Ext(matches[0]), ".")), nil
}

// blobPath fans blobs out by the first two fingerprint characters to keep
// directories small.
func (s *Store) blobPath(fp domain.Fingerprint, ext string) string {
	name := fp.String()
	return filepath.Join(s.basePath, name[:2], name+"."+ext)
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	switch ext {
	case "jpg", "jpeg":
		return "jpg"
	case "png", "webp", "gif", "tiff", "heic":
		return ext
	default:
		return "jpg"
	}
}

func mimeForExt(ext string) string {
	switch ext {
	case "jpg":
		return "image/jpeg"
	case "png", "webp", "gif", "tiff", "heic":
		return "image/" + ext
	default:
		return "application/octet-stream"
	}
}
