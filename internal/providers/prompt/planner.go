package prompt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"framelens/internal/domain"
	"framelens/internal/providers/genai"
)

const planSystemPrompt = `You are an expert photo editor planning enhancement passes for a photograph based on a professional critique.

Produce exactly three editing instructions, one per intent:
1. "technical-perfection": fix the technical flaws the critique identified (exposure, sharpness, noise, distracting elements) while preserving the photo's character.
2. "atmospheric-reinterpretation": reinterpret mood and atmosphere (light quality, color grading, tonal palette) beyond a plain correction.
3. "conceptual-narrative": push the image toward a stronger story or concept, leaning on the critique's observations about subject and narrative.

Each instruction must preserve the exact orientation, rotation, and aspect ratio of the original image, and must be self-contained: an image model will receive only the photo and your instruction text.

Respond strictly with JSON:
{"instructions":[{"variant":string,"title":string,"prompt":string}]}
using the three variant identifiers above, in that order.`

type client interface {
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner derives the three editing instructions for an enhancement run from
// a cached analysis record. Deterministic apart from the single upstream
// text-generation call.
type Planner struct {
	client client
}

// NewPlanner constructs a Planner over the given Gemini client.
func NewPlanner(c client) *Planner {
	return &Planner{client: c}
}

type planPayload struct {
	Instructions []struct {
		Variant string `json:"variant"`
		Title   string `json:"title"`
		Prompt  string `json:"prompt"`
	} `json:"instructions"`
}

// Plan returns exactly three instructions in the fixed variant order, or
// ErrIncompletePlan when the model response cannot honor that contract. It
// never pads or duplicates to reach three.
func (p *Planner) Plan(ctx context.Context, record domain.AnalysisRecord) ([3]domain.EditingInstruction, error) {
	var out [3]domain.EditingInstruction

	raw, err := p.client.GenerateJSON(ctx, planSystemPrompt, buildPlanPrompt(record))
	if err != nil {
		return out, err
	}
	payload, err := genai.ParsePayload[planPayload](raw)
	if err != nil {
		return out, fmt.Errorf("%w: decode plan: %v", domain.ErrMalformedUpstreamResponse, err)
	}

	byVariant := make(map[domain.Variant]domain.EditingInstruction, len(payload.Instructions))
	for _, in := range payload.Instructions {
		variant := domain.Variant(strings.ToLower(strings.TrimSpace(in.Variant)))
		prompt := strings.TrimSpace(in.Prompt)
		if degenerate(prompt) {
			continue
		}
		if _, dup := byVariant[variant]; dup {
			return out, fmt.Errorf("%w: duplicate instructions for %s", domain.ErrIncompletePlan, variant)
		}
		byVariant[variant] = domain.EditingInstruction{
			Variant: variant,
			Title:   titleFor(variant, in.Title),
			Prompt:  prompt,
		}
	}

	for i, variant := range domain.Variants {
		instruction, ok := byVariant[variant]
		if !ok {
			return out, fmt.Errorf("%w: missing %s instruction", domain.ErrIncompletePlan, variant)
		}
		out[i] = instruction
	}
	if err := distinct(out); err != nil {
		return out, err
	}
	return out, nil
}

func buildPlanPrompt(record domain.AnalysisRecord) string {
	critique, _ := json.Marshal(record.Critique)
	sb := &strings.Builder{}
	sb.WriteString("CRITIQUE:\n")
	sb.Write(critique)
	return sb.String()
}

// degenerate rejects prompts too short to be a usable editing instruction.
func degenerate(prompt string) bool {
	return len(prompt) < 20
}

func distinct(instructions [3]domain.EditingInstruction) error {
	for i := 0; i < len(instructions); i++ {
		for j := i + 1; j < len(instructions); j++ {
			a := strings.ToLower(strings.Join(strings.Fields(instructions[i].Prompt), " "))
			b := strings.ToLower(strings.Join(strings.Fields(instructions[j].Prompt), " "))
			if a == b {
				return fmt.Errorf("%w: %s and %s share the same instruction",
					domain.ErrIncompletePlan, instructions[i].Variant, instructions[j].Variant)
			}
		}
	}
	return nil
}

var titleCaser = cases.Title(language.English)

func titleFor(variant domain.Variant, title string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return titleCaser.String(strings.ReplaceAll(string(variant), "-", " "))
}
