package vision

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"framelens/internal/domain"
	"framelens/internal/providers/genai"
)

const critiqueSystemPrompt = `You are a professional photography critic and mentor. Critique the uploaded photograph objectively and constructively: technical execution (exposure, focus, noise), artistic qualities (subject, composition, lighting, color and tone, storytelling), and how well it follows established best practices.

Respond strictly with JSON matching this schema:
{"overall_impression":string,"scores":{"exposure":int,"composition":int,"lighting":int,"color":int,"storytelling":int},"strengths":string[],"improvements":string[],"tips":string[]}

Scores are integers from 1 to 10. Provide 2-3 strengths, 2-3 specific improvements, and 1-2 practical tips the photographer can apply on their next shoot.`

const bestPracticesContext = `BEST PRACTICES PHOTOGRAPHY:
1. Rule of thirds: subject positioned along grid lines or intersections.
2. Eyes in focus for portraits.
3. Simplified, uncluttered backgrounds.
4. Soft, flattering natural lighting.
5. Leading lines guiding the viewer's eye.
6. Creative perspectives and viewpoints.
7. Shadows and reflections used for depth or drama.
8. Candid, emotionally engaging moments.
9. Subtle editing with natural colors and tones.
10. Harmonious overall composition and balance.`

// exifOrder fixes the rendering order of the settings the critique cares
// about most; remaining keys follow alphabetically.
var exifOrder = []string{"FNumber", "ExposureTime", "ISO", "ISOSpeedRatings", "FocalLength", "Make", "Model"}

type client interface {
	CritiqueImage(ctx context.Context, req genai.CritiqueRequest) (string, error)
}

// Critic produces a structured critique from image bytes and contextual
// metadata via a single vision call. It performs no caching; callers own
// deduplication.
type Critic struct {
	client client
}

// NewCritic constructs a Critic over the given Gemini client.
func NewCritic(c client) *Critic {
	return &Critic{client: c}
}

// Analyze invokes the vision critique once and validates the returned
// structure. Validation failures surface as ErrMalformedUpstreamResponse;
// transport failures keep the client's taxonomy.
func (c *Critic) Analyze(ctx context.Context, image []byte, mime string, exif map[string]string) (*domain.Critique, error) {
	raw, err := c.client.CritiqueImage(ctx, genai.CritiqueRequest{
		Image:        image,
		MIME:         mime,
		SystemPrompt: critiqueSystemPrompt,
		UserPrompt:   buildUserPrompt(exif),
	})
	if err != nil {
		return nil, err
	}

	critique, err := genai.ParsePayload[domain.Critique](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode critique: %v", domain.ErrMalformedUpstreamResponse, err)
	}
	if err := validateCritique(critique); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedUpstreamResponse, err)
	}
	return &critique, nil
}

func buildUserPrompt(exif map[string]string) string {
	sb := &strings.Builder{}
	sb.WriteString(bestPracticesContext)
	if block := RenderExifContext(exif); block != "" {
		sb.WriteString("\n\nAVAILABLE EXIF DATA:\n")
		sb.WriteString(block)
	}
	return sb.String()
}

// RenderExifContext formats the metadata map into the stable text block the
// critique prompt consumes. Extraction itself happens at the boundary; this
// only renders whatever key-values arrived.
func RenderExifContext(exif map[string]string) string {
	if len(exif) == 0 {
		return ""
	}
	ordered := make([]string, 0, len(exif))
	seen := make(map[string]struct{}, len(exif))
	for _, key := range exifOrder {
		if _, ok := exif[key]; ok {
			ordered = append(ordered, key)
			seen[key] = struct{}{}
		}
	}
	var rest []string
	for key := range exif {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	ordered = append(ordered, rest...)

	sb := &strings.Builder{}
	for _, key := range ordered {
		fmt.Fprintf(sb, "- %s: %s\n", key, exif[key])
	}
	return strings.TrimRight(sb.String(), "\n")
}

func validateCritique(c domain.Critique) error {
	if strings.TrimSpace(c.OverallImpression) == "" {
		return fmt.Errorf("critique missing overall impression")
	}
	scores := []struct {
		name  string
		value int
	}{
		{"exposure", c.Scores.Exposure},
		{"composition", c.Scores.Composition},
		{"lighting", c.Scores.Lighting},
		{"color", c.Scores.Color},
		{"storytelling", c.Scores.Storytelling},
	}
	for _, s := range scores {
		if s.value < 1 || s.value > 10 {
			return fmt.Errorf("score %s out of range: %d", s.name, s.value)
		}
	}
	if len(c.Strengths) == 0 {
		return fmt.Errorf("critique missing strengths")
	}
	if len(c.Improvements) == 0 {
		return fmt.Errorf("critique missing improvements")
	}
	return nil
}
