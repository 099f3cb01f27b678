// Package analyzer adapts a vision-capable chat model to the forensics.Analyzer port.
package analyzer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"docgate/internal/forensics"
	id "docgate/pkg/domain"
	dErrors "docgate/pkg/domain-errors"
	"docgate/pkg/requestcontext"
)

const defaultMaxTokens = 4096

// chatClient is the subset of the OpenAI client the analyzer uses.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI analyzes documents with an OpenAI-compatible vision model.
type OpenAI struct {
	client    chatClient
	model     string
	maxTokens int
}

// NewOpenAI builds an analyzer. baseURL may be empty for the public API.
func NewOpenAI(apiKey, baseURL, model string, maxTokens int) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return newWithClient(openai.NewClientWithConfig(cfg), model, maxTokens)
}

func newWithClient(client chatClient, model string, maxTokens int) *OpenAI {
	if model == "" {
		model = openai.GPT4o
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &OpenAI{client: client, model: model, maxTokens: maxTokens}
}

// analysisResponse is the JSON object the model is instructed to return.
type analysisResponse struct {
	OverallScore      int                 `json:"overall_score"`
	Scores            forensics.Scores    `json:"scores"`
	TamperingDetected bool                `json:"tampering_detected"`
	TamperRisk        string              `json:"tamper_risk"`
	HasFaceImage      bool                `json:"has_face_image"`
	FaceConfidence    float64             `json:"face_confidence"`
	FaceFeatures      []float64           `json:"face_features"`
	Findings          []forensics.Finding `json:"findings"`
	RecommendedAction string              `json:"recommended_action"`
}

func (a *OpenAI) Analyze(ctx context.Context, req forensics.AnalysisRequest) (*forensics.Report, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: a.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: userParts(req)},
		},
	}
	// Reasoning models take MaxCompletionTokens instead of MaxTokens.
	if isReasoningModel(a.model) {
		chatReq.MaxCompletionTokens = a.maxTokens
	} else {
		chatReq.MaxTokens = a.maxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(ctx, err)
	}
	if len(resp.Choices) == 0 {
		return nil, dErrors.New(dErrors.CodeAnalysisFailed, "analysis returned no choices")
	}

	var out analysisResponse
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAnalysisFailed, "analysis returned malformed JSON")
	}

	report := &forensics.Report{
		DocumentID:        req.DocumentID,
		AnalysisID:        id.NewAnalysisID(),
		OverallScore:      out.OverallScore,
		Scores:            out.Scores,
		TamperingDetected: out.TamperingDetected,
		TamperRisk:        forensics.TamperRisk(strings.ToUpper(out.TamperRisk)),
		HasFaceImage:      out.HasFaceImage,
		FaceConfidence:    out.FaceConfidence,
		FaceFeatures:      out.FaceFeatures,
		Findings:          out.Findings,
		RecommendedAction: out.RecommendedAction,
		AnalyzedAt:        requestcontext.Now(ctx),
	}
	if report.TamperRisk == "" {
		report.TamperRisk = forensics.TamperRiskNone
	}
	if err := report.Validate(); err != nil {
		return nil, err
	}
	return report, nil
}

func userParts(req forensics.AnalysisRequest) []openai.ChatMessagePart {
	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: userPrompt(req.DocumentType, req.MimeType, req.Options.Locale, req.Options.Detailed),
	}}
	encoded := base64.StdEncoding.EncodeToString(req.FileBytes)
	if strings.HasPrefix(req.MimeType, "image/") {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + req.MimeType + ";base64," + encoded,
				Detail: openai.ImageURLDetailHigh,
			},
		})
		return parts
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: fmt.Sprintf("Base64-encoded %s content follows:\n%s", req.MimeType, encoded),
	})
	return parts
}

func isReasoningModel(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// classify maps transport failures onto the timeout and analysis-failed kinds.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "analysis timed out")
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return dErrors.Wrap(err, dErrors.CodeAnalysisFailed,
			fmt.Sprintf("analysis provider returned status %d", apiErr.HTTPStatusCode))
	}
	return dErrors.Wrap(err, dErrors.CodeAnalysisFailed, "analysis request failed")
}
