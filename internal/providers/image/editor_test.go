package image

import (
	"context"
	"errors"
	"strings"
	"testing"

	"framelens/internal/domain"
	"framelens/internal/providers/genai"
)

type stubClient struct {
	edited       *genai.EditedImage
	editErr      error
	structured   string
	structureErr error

	editCalls      int
	structureCalls int
	lastInstr      string
	lastStructured string
}

func (s *stubClient) EditImage(ctx context.Context, req genai.EditRequest) (*genai.EditedImage, error) {
	s.editCalls++
	s.lastInstr = req.Instruction
	return s.edited, s.editErr
}

func (s *stubClient) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.structureCalls++
	s.lastStructured = userPrompt
	return s.structured, s.structureErr
}

func instruction() domain.EditingInstruction {
	return domain.EditingInstruction{
		Variant: domain.VariantTechnical,
		Title:   "Clean It Up",
		Prompt:  "Raise exposure by one stop and remove the dust spots.",
	}
}

func TestEnhanceRunsEditThenStructure(t *testing.T) {
	stub := &stubClient{
		edited: &genai.EditedImage{
			Data:        []byte{0x89, 'P', 'N', 'G'},
			MIME:        "image/png",
			Description: "Raised exposure, removed two dust spots.",
		},
		structured: `{"summary":"Brightened the frame and cleaned the sky.","adjustments":["+1 stop exposure","spot removal"],"mood":"crisp"}`,
	}
	editor := NewEditor(stub)

	enhanced, err := editor.Enhance(context.Background(), SourceImage{Data: []byte{0x01}, MIME: "image/jpeg"}, instruction())
	if err != nil {
		t.Fatalf("enhance: %v", err)
	}
	if stub.editCalls != 1 || stub.structureCalls != 1 {
		t.Fatalf("calls = %d edit / %d structure, want 1/1", stub.editCalls, stub.structureCalls)
	}
	if stub.lastInstr != instruction().Prompt {
		t.Fatalf("instruction not forwarded: %q", stub.lastInstr)
	}
	if !strings.Contains(stub.lastStructured, "removed two dust spots") {
		t.Fatalf("structuring call missing description: %q", stub.lastStructured)
	}
	if enhanced.Report.Summary == "" || len(enhanced.Report.Adjustments) != 2 {
		t.Fatalf("report = %+v", enhanced.Report)
	}
	if enhanced.MIME != "image/png" {
		t.Fatalf("mime = %q", enhanced.MIME)
	}
}

func TestEnhanceFailsWhenEditFails(t *testing.T) {
	stub := &stubClient{editErr: domain.ErrUpstreamUnavailable}
	_, err := NewEditor(stub).Enhance(context.Background(), SourceImage{Data: []byte{0x01}}, instruction())
	if !errors.Is(err, domain.ErrUpstreamUnavailable) {
		t.Fatalf("err = %v, want ErrUpstreamUnavailable", err)
	}
	if stub.structureCalls != 0 {
		t.Fatalf("structuring should not run after a failed edit")
	}
}

func TestEnhanceFailsWithoutChangeDescription(t *testing.T) {
	stub := &stubClient{edited: &genai.EditedImage{Data: []byte{0x01}, MIME: "image/png"}}
	_, err := NewEditor(stub).Enhance(context.Background(), SourceImage{Data: []byte{0x01}}, instruction())
	if !errors.Is(err, domain.ErrMalformedUpstreamResponse) {
		t.Fatalf("err = %v, want ErrMalformedUpstreamResponse", err)
	}
}

func TestEnhanceFailsWhenStructuringBreaksSchema(t *testing.T) {
	stub := &stubClient{
		edited:     &genai.EditedImage{Data: []byte{0x01}, MIME: "image/png", Description: "warmed the scene"},
		structured: `{"adjustments":["warmer white balance"]}`,
	}
	_, err := NewEditor(stub).Enhance(context.Background(), SourceImage{Data: []byte{0x01}}, instruction())
	if !errors.Is(err, domain.ErrMalformedUpstreamResponse) {
		t.Fatalf("err = %v, want ErrMalformedUpstreamResponse", err)
	}
}
