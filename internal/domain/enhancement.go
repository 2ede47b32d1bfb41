package domain

// Variant enumerates the three enhancement intents. Every enhancement run
// produces exactly one branch per variant, in this order.
type Variant string

const (
	VariantTechnical   Variant = "technical-perfection"
	VariantAtmospheric Variant = "atmospheric-reinterpretation"
	VariantConceptual  Variant = "conceptual-narrative"
)

// Variants lists the required variants in their fixed slot order.
var Variants = [3]Variant{VariantTechnical, VariantAtmospheric, VariantConceptual}

// EditingInstruction is one planned edit derived from an analysis record. It
// lives only for the duration of a single enhancement request.
type EditingInstruction struct {
	Variant Variant `json:"variant"`
	Title   string  `json:"title"`
	Prompt  string  `json:"prompt"`
}

// ChangeReport is the fixed-schema description of what an edit changed,
// produced by the structuring call that follows each generation branch.
type ChangeReport struct {
	Summary     string   `json:"summary"`
	Adjustments []string `json:"adjustments"`
	Mood        string   `json:"mood,omitempty"`
}

// EnhancementResult is the terminal outcome of one branch: either an edited
// image with its change report, or a failure cause. Exactly one of the two
// shapes is populated.
type EnhancementResult struct {
	Variant Variant
	Image   []byte
	MIME    string
	Report  ChangeReport
	Err     error
}

// Failed reports whether the branch ended in failure.
func (r EnhancementResult) Failed() bool { return r.Err != nil }

// EnhancementSet aggregates the three branch outcomes of one enhancement run.
// Slot i always corresponds to Variants[i]. Sets are returned directly to the
// caller and never cached; re-running enhancement may legitimately produce
// different creative output for the same fingerprint.
type EnhancementSet struct {
	Fingerprint Fingerprint
	Results     [3]EnhancementResult
}

// Succeeded returns the successful results in slot order.
func (s EnhancementSet) Succeeded() []EnhancementResult {
	var out []EnhancementResult
	for _, r := range s.Results {
		if !r.Failed() {
			out = append(out, r)
		}
	}
	return out
}
