package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/phrazzld/adscribe-api/internal/analysis"
	"github.com/phrazzld/adscribe-api/internal/config"
)

// maxImageBytes caps how much of a remote ad image is read before
// sending it inline to the model.
const maxImageBytes = 20 << 20

// Analyzer implements analysis.Analyzer using the Gemini API.
type Analyzer struct {
	client     *genai.Client
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ analysis.Analyzer = (*Analyzer)(nil)

// NewAnalyzer creates a Gemini-backed Analyzer from the LLM config.
func NewAnalyzer(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Analyzer, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, errors.New("gemini API key cannot be empty")
	}
	if cfg.ModelName == "" {
		return nil, errors.New("model name cannot be empty")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Analyzer{
		client:     client,
		model:      cfg.ModelName,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With("component", "gemini_analyzer"),
	}, nil
}

// ExtractAdConcept implements analysis.Analyzer. It downloads the ad
// image, sends it inline with the concept extraction prompt, and
// decodes the JSON response.
func (a *Analyzer) ExtractAdConcept(ctx context.Context, imageURL string) (*analysis.AdConcept, error) {
	imageData, mimeType, err := a.fetchImage(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ad image: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(adConceptUserPrompt),
			genai.NewPartFromBytes(imageData, mimeType),
		}, genai.RoleUser),
	}

	text, err := a.generateJSON(ctx, adConceptSystemPrompt, contents)
	if err != nil {
		return nil, err
	}

	return decodeConcept(text)
}

// ExtractSalesPage implements analysis.Analyzer.
func (a *Analyzer) ExtractSalesPage(ctx context.Context, pageURL string) (*analysis.SalesPage, error) {
	prompt := fmt.Sprintf(
		"Analyze the sales page at this URL: %s and extract information in the exact JSON format specified.",
		pageURL,
	)

	text, err := a.generateJSON(ctx, salesPageSystemPrompt, genai.Text(prompt))
	if err != nil {
		return nil, err
	}

	return decodeSalesPage(text)
}

// generateJSON runs one generation call with a JSON response type and
// returns the response text.
func (a *Analyzer) generateJSON(
	ctx context.Context,
	systemPrompt string,
	contents []*genai.Content,
) (string, error) {
	a.logger.DebugContext(ctx, "calling Gemini API", "model", a.model)

	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini API call failed: %w", err)
	}

	return responseText(resp)
}

// responseText validates a generation response and returns its text. A
// safety block usually arrives with a finish reason and no content, so
// the finish reason is inspected before the content.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates returned", analysis.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", analysis.ErrContentBlocked
	}
	if resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("%w: no content generated", analysis.ErrInvalidResponse)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", analysis.ErrInvalidResponse)
	}
	return text, nil
}

// fetchImage downloads the ad image and reports its MIME type.
func (a *Analyzer) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("unexpected status %d fetching image", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}
	if len(data) == 0 {
		return nil, "", errors.New("image response was empty")
	}

	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" || !strings.HasPrefix(mimeType, "image/") {
		mimeType = http.DetectContentType(data)
	}

	return data, mimeType, nil
}

// decodeConcept parses a model response into an AdConcept, enforcing
// the required fields.
func decodeConcept(text string) (*analysis.AdConcept, error) {
	var concept analysis.AdConcept
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &concept); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidResponse, err)
	}
	if concept.Title == "" || concept.Summary == "" {
		return nil, fmt.Errorf("%w: missing title or summary", analysis.ErrInvalidResponse)
	}
	if concept.Details == nil {
		concept.Details = map[string]interface{}{}
	}
	return &concept, nil
}

// decodeSalesPage parses a model response into a SalesPage, enforcing
// the required fields.
func decodeSalesPage(text string) (*analysis.SalesPage, error) {
	var salesPage analysis.SalesPage
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &salesPage); err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrInvalidResponse, err)
	}
	if salesPage.ProductName == "" {
		return nil, fmt.Errorf("%w: missing product_name", analysis.ErrInvalidResponse)
	}
	return &salesPage, nil
}

// stripCodeFence removes a surrounding markdown code fence, which some
// model responses wrap around JSON output.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
