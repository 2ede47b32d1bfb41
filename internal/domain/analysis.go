package domain

import (
	"fmt"
	"regexp"
	"time"
)

// Fingerprint is the hex-encoded SHA-256 digest of an image's raw bytes. It is
// the only key used to address stored blobs and cached analyses; filenames and
// client identity never participate in addressing.
type Fingerprint string

var fingerprintRegexp = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ParseFingerprint validates a fingerprint received from an external caller.
func ParseFingerprint(s string) (Fingerprint, error) {
	if !fingerprintRegexp.MatchString(s) {
		return "", fmt.Errorf("invalid fingerprint %q", s)
	}
	return Fingerprint(s), nil
}

func (f Fingerprint) String() string { return string(f) }

// Scores holds the numeric sub-scores of a critique, each on a 1-10 scale.
type Scores struct {
	Exposure     int `json:"exposure"`
	Composition  int `json:"composition"`
	Lighting     int `json:"lighting"`
	Color        int `json:"color"`
	Storytelling int `json:"storytelling"`
}

// Critique is the structured result of a vision-critique call.
type Critique struct {
	OverallImpression string   `json:"overall_impression"`
	Scores            Scores   `json:"scores"`
	Strengths         []string `json:"strengths"`
	Improvements      []string `json:"improvements"`
	Tips              []string `json:"tips"`
}

// AnalysisRecord associates a fingerprint with its critique. Records are
// immutable once written; the first analysis computed for a fingerprint is
// authoritative for all future callers.
type AnalysisRecord struct {
	Fingerprint Fingerprint       `json:"fingerprint"`
	Critique    Critique          `json:"critique"`
	ExifContext map[string]string `json:"exif_context,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
