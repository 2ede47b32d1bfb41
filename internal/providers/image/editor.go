package image

import (
	"context"
	"fmt"
	"strings"

	"framelens/internal/domain"
	"framelens/internal/providers/genai"
)

const editSystemPrompt = `You are an expert photo editor. Generate a visually improved version of the provided photograph following the editing instruction.

- CRITICAL: preserve the EXACT orientation, rotation, and aspect ratio of the original image.
- Do not rotate, flip, or change the perspective.
- Maintain the original subject positioning and framing intent.
- Focus on enhancement, not complete transformation.

Return both the edited image and a short text description listing the specific changes you made.`

const structureSystemPrompt = `Convert the given photo-editing change description into this JSON format:
{"summary":"one sentence describing the edit","adjustments":["specific change",...],"mood":"the mood the edit conveys, if any"}
Respond with JSON only.`

// SourceImage is the original photo a branch edits.
type SourceImage struct {
	Data []byte
	MIME string
}

// Enhanced is one branch's successful output: the edited image and the
// structured report derived from the model's change description.
type Enhanced struct {
	Data   []byte
	MIME   string
	Report domain.ChangeReport
}

type client interface {
	EditImage(ctx context.Context, req genai.EditRequest) (*genai.EditedImage, error)
	GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Editor runs a single editing instruction: one image-generation call, then
// one structuring call that normalizes the change description. No retries;
// the executor reports a failed branch as failed.
type Editor struct {
	client client
}

// NewEditor constructs an Editor over the given Gemini client.
func NewEditor(c client) *Editor {
	return &Editor{client: c}
}

// Enhance applies the instruction to the source image. A branch only counts
// as successful once its change report conforms to the fixed schema.
func (e *Editor) Enhance(ctx context.Context, source SourceImage, instruction domain.EditingInstruction) (*Enhanced, error) {
	edited, err := e.client.EditImage(ctx, genai.EditRequest{
		Image:        source.Data,
		MIME:         source.MIME,
		SystemPrompt: editSystemPrompt,
		Instruction:  instruction.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("%s branch: %w", instruction.Variant, err)
	}
	if strings.TrimSpace(edited.Description) == "" {
		return nil, fmt.Errorf("%s branch: %w: edit response carries no change description",
			instruction.Variant, domain.ErrMalformedUpstreamResponse)
	}

	report, err := e.structure(ctx, edited.Description)
	if err != nil {
		return nil, fmt.Errorf("%s branch: %w", instruction.Variant, err)
	}
	return &Enhanced{Data: edited.Data, MIME: edited.MIME, Report: *report}, nil
}

func (e *Editor) structure(ctx context.Context, description string) (*domain.ChangeReport, error) {
	raw, err := e.client.GenerateJSON(ctx, structureSystemPrompt, "CHANGE DESCRIPTION:\n"+description)
	if err != nil {
		return nil, err
	}
	report, err := genai.ParsePayload[domain.ChangeReport](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode change report: %v", domain.ErrMalformedUpstreamResponse, err)
	}
	if strings.TrimSpace(report.Summary) == "" {
		return nil, fmt.Errorf("%w: change report missing summary", domain.ErrMalformedUpstreamResponse)
	}
	return &report, nil
}
