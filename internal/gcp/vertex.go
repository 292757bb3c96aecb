package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Drying Report Model Prompts ---
const ReportSystemPrompt = "You are a water damage restoration documentation assistant. You write concise, factual drying narratives for insurance adjusters from structured drying logs. You never invent readings, dates or equipment that are not in the log."
const ReportUserPrompt = `You will be provided with a drying log for one restoration job in markdown.

Write a narrative summary for the insurance file:

1. Describe the affected areas, the damage class and how the drying chambers were set up.
2. Summarize the moisture readings for each material, including the dry standard, the first and latest readings and whether the material has reached its dry standard.
3. Explain the dehumidification sizing per chamber using the volumes and chart factors given.
4. List any warnings in the log, such as materials that are not dry or affected rooms without a chamber.

Return ONLY the narrative in markdown. Do not repeat the log tables and do not add a preamble.`

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// VertexClient holds the pre-configured generative models for the app.
type VertexClient struct {
	ReportModel *genai.GenerativeModel
	baseClient  *genai.Client
}

// NewVertexClient creates a new client holding all necessary models.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	reportModel := baseClient.GenerativeModel("gemini-1.5-pro")
	reportModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ReportSystemPrompt)},
	}
	reportModel.GenerationConfig = genai.GenerationConfig{
		// Low temperature keeps the narrative close to the log.
		Temperature: genai.Ptr[float32](0.2),
	}

	return &VertexClient{
		ReportModel: reportModel,
		baseClient:  baseClient,
	}, nil
}

// Narrate asks the report model for a narrative of dryingLog.
func (c *VertexClient) Narrate(ctx context.Context, dryingLog string) (string, error) {
	resp, err := c.ReportModel.GenerateContent(ctx, genai.Text(ReportUserPrompt), genai.Text(dryingLog))
	if err != nil {
		return "", fmt.Errorf("failed to generate narrative from gemini: %w", err)
	}
	text := ExtractText(resp)
	if IsRefusal(text) {
		return "", fmt.Errorf("gemini response indicates refusal to write the narrative")
	}
	return text, nil
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

// ExtractText concatenates the text parts of the first candidate and strips
// a surrounding markdown fence.
func ExtractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}

	contentStr := strings.TrimSpace(b.String())
	contentStr = strings.TrimPrefix(contentStr, "```markdown")
	contentStr = strings.TrimPrefix(contentStr, "```")
	contentStr = strings.TrimSuffix(contentStr, "```")
	return strings.TrimSpace(contentStr)
}

// IsRefusal reports whether model output reads like a refusal.
func IsRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
