package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"framelens/internal/domain"
	"framelens/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *infra.Logger
}

// Client is a thin facade over the Gemini generateContent API. Adapters above
// it (vision critique, instruction planning, image editing, structuring) own
// their prompts and schemas; the client owns transport, timeouts, and the
// mapping of wire failures onto the domain error taxonomy.
type Client struct {
	apiKey     string
	baseURL    string
	textModel  string
	imageModel string
	httpClient *http.Client
	timeout    time.Duration
	logger     *infra.Logger
}

const defaultUpstreamTimeout = 90 * time.Second

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one will be created.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("genai: api key is required")
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = "gemini-2.5-flash"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: client,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

// TextModel returns the configured text model identifier.
func (c *Client) TextModel() string { return c.textModel }

// ImageModel returns the configured image model identifier.
func (c *Client) ImageModel() string { return c.imageModel }

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature        float64  `json:"temperature,omitempty"`
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// CritiqueRequest carries one vision-critique invocation: the image bytes plus
// the prompts framing the critique.
type CritiqueRequest struct {
	Image        []byte
	MIME         string
	SystemPrompt string
	UserPrompt   string
}

// CritiqueImage sends the image and prompts to the text model and returns the
// raw JSON payload produced by the model.
func (c *Client) CritiqueImage(ctx context.Context, req CritiqueRequest) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: empty image", domain.ErrUpstreamRejected)
	}
	mime := req.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	payload := geminiGenerateContentRequest{
		SystemInstruction: systemContent(req.SystemPrompt),
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image)}},
				{Text: req.UserPrompt},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.4,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	response, err := c.invoke(ctx, c.textModel, payload)
	if err != nil {
		return "", err
	}
	text := firstText(response)
	if text == "" {
		return "", fmt.Errorf("%w: no text candidate in critique response", domain.ErrMalformedUpstreamResponse)
	}
	return text, nil
}

// GenerateJSON sends a text-only prompt and returns the model's JSON payload.
func (c *Client) GenerateJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	payload := geminiGenerateContentRequest{
		SystemInstruction: systemContent(systemPrompt),
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: userPrompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{
			Temperature:      0.7,
			CandidateCount:   1,
			ResponseMimeType: "application/json",
		},
	}
	response, err := c.invoke(ctx, c.textModel, payload)
	if err != nil {
		return "", err
	}
	text := firstText(response)
	if text == "" {
		return "", fmt.Errorf("%w: no text candidate in response", domain.ErrMalformedUpstreamResponse)
	}
	return text, nil
}

// EditRequest carries one image-edit invocation against the image model.
type EditRequest struct {
	Image        []byte
	MIME         string
	SystemPrompt string
	Instruction  string
}

// EditedImage is the normalized result of an image-edit call: the generated
// image plus the model's free-text description of the changes it made.
type EditedImage struct {
	Data        []byte
	MIME        string
	Description string
}

// EditImage asks the image model for an edited version of the photo along
// with a textual change description.
func (c *Client) EditImage(ctx context.Context, req EditRequest) (*EditedImage, error) {
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: empty image", domain.ErrUpstreamRejected)
	}
	mime := req.MIME
	if mime == "" {
		mime = "image/jpeg"
	}
	payload := geminiGenerateContentRequest{
		SystemInstruction: systemContent(req.SystemPrompt),
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{InlineData: &geminiInlineData{MimeType: mime, Data: base64.StdEncoding.EncodeToString(req.Image)}},
				{Text: req.Instruction},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}
	response, err := c.invoke(ctx, c.imageModel, payload)
	if err != nil {
		return nil, err
	}

	edited := &EditedImage{}
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" && len(edited.Data) == 0 {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return nil, fmt.Errorf("%w: decode inline image: %v", domain.ErrMalformedUpstreamResponse, err)
				}
				edited.Data = data
				edited.MIME = part.InlineData.MimeType
			}
			if strings.TrimSpace(part.Text) != "" && edited.Description == "" {
				edited.Description = part.Text
			}
		}
	}
	if len(edited.Data) == 0 {
		return nil, fmt.Errorf("%w: no image in edit response", domain.ErrMalformedUpstreamResponse)
	}
	if edited.MIME == "" {
		edited.MIME = "image/png"
	}
	return edited, nil
}

func (c *Client) invoke(ctx context.Context, model string, payload geminiGenerateContentRequest) (*geminiGenerateContentResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("genai: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("genai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("model", model).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("genai: generateContent")

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, classifyStatus(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var response geminiGenerateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domain.ErrMalformedUpstreamResponse, err)
	}
	if len(response.Candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidates", domain.ErrMalformedUpstreamResponse)
	}
	return &response, nil
}

// classifyStatus maps HTTP statuses onto the domain taxonomy: rate limits,
// timeouts, and server errors are retryable; remaining 4xx are input-caused.
func classifyStatus(status int, message string) error {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		return fmt.Errorf("%w: gemini status %d: %s", domain.ErrUpstreamUnavailable, status, message)
	default:
		return fmt.Errorf("%w: gemini status %d: %s", domain.ErrUpstreamRejected, status, message)
	}
}

func readErrorMessage(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var apiErr geminiErrorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		return apiErr.Error.Message
	}
	return strings.TrimSpace(string(data))
}

func systemContent(prompt string) *geminiContent {
	if strings.TrimSpace(prompt) == "" {
		return nil
	}
	return &geminiContent{Parts: []geminiPart{{Text: prompt}}}
}

func firstText(resp *geminiGenerateContentResponse) string {
	for _, cand := range resp.Candidates {
		for _, part := range cand.Content.Parts {
			if strings.TrimSpace(part.Text) != "" {
				return part.Text
			}
		}
	}
	return ""
}
