package openaiapi

import (
	"context"
	"encoding/json"
	"fmt"
	"leadqualdev/config"
	"leadqualdev/modelapi"
	"leadqualdev/session"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SalesBackend exposes the sales model as the session backend: replies,
// end-of-conversation intent classification and the optional conversation
// assessment. It implements session.Backend and session.Assessor.
type SalesBackend struct {
	client *OpenAI
	cfg    config.ModelConfig
}

func NewSalesBackend(client *OpenAI, cfg config.ModelConfig) *SalesBackend {
	return &SalesBackend{client: client, cfg: cfg}
}

// Reply returns the bot's next message. An empty history requests the
// standardized opening, which is served locally without an API call.
func (b *SalesBackend) Reply(ctx context.Context, history []session.Message) (string, session.Usage, error) {
	tracer := otel.Tracer("openaiapi/Reply")
	ctx, span := tracer.Start(ctx, "Reply")
	defer span.End()

	if len(history) == 0 {
		span.AddEvent("Serving standardized opening")
		return modelapi.SALES_OPENING, session.Usage{}, nil
	}

	messages := salesMessages(history)
	span.SetAttributes(attribute.Int("conversation_history_length", len(messages)))

	resp, err := b.client.MakeAPIRequest(ctx, MakeAPIRequestProps{
		RequestInput: ChatRequestInput{
			Model:       b.cfg.Model,
			Messages:    messages,
			MaxTokens:   b.cfg.MaxTokens,
			Temperature: b.cfg.Temperature,
		},
	})
	if err != nil {
		return "", session.Usage{}, err
	}

	content := resp.Choices[0].Message.Content
	if content == "" {
		return "", session.Usage{}, fmt.Errorf("no response received")
	}

	return content, usageOf(resp), nil
}

// Classify asks the sales model for its INTENT_DETECTION assessment over the
// finished conversation and parses the structured judgment out of the reply.
func (b *SalesBackend) Classify(ctx context.Context, history []session.Message) (*session.IntentResult, session.Usage, error) {
	tracer := otel.Tracer("openaiapi/Classify")
	ctx, span := tracer.Start(ctx, "Classify")
	defer span.End()

	messages := salesMessages(history)
	messages = append(messages, ChatCompletionInputMessage{
		Role:    modelapi.USER,
		Content: modelapi.INTENT_REQUEST,
	})

	resp, err := b.client.MakeAPIRequest(ctx, MakeAPIRequestProps{
		RequestInput: ChatRequestInput{
			Model:       b.cfg.Model,
			Messages:    messages,
			MaxTokens:   300,
			Temperature: b.cfg.Temperature,
		},
	})
	if err != nil {
		return nil, session.Usage{}, err
	}

	result, err := extractIntentDetection(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		b.client.logger.Logger(ctx).Error(
			"[OpenAI-API] Could not extract intent detection",
			zap.Error(err),
			zap.String("response", resp.Choices[0].Message.Content),
		)
		return nil, usageOf(resp), err
	}

	span.SetAttributes(
		attribute.String("detected_intent", string(result.Category)),
		attribute.Float64("confidence", result.Confidence),
	)

	return result, usageOf(resp), nil
}

// Assess runs the lightweight conversation-status classification used by
// session.ModelDetector. Temperature is pinned low for consistency.
func (b *SalesBackend) Assess(ctx context.Context, messages []session.Message) (session.Verdict, error) {
	tracer := otel.Tracer("openaiapi/Assess")
	ctx, span := tracer.Start(ctx, "Assess")
	defer span.End()

	latest := ""
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == session.RoleProspect {
			latest = messages[i].Text
			break
		}
	}

	recent := salesMessages(messages)
	if len(recent) > 6 {
		recent = recent[len(recent)-6:]
	}
	historyJSON, err := json.MarshalIndent(recent, "", "  ")
	if err != nil {
		return session.VerdictNonTerminal, fmt.Errorf("could not encode history: %w", err)
	}

	prompt := fmt.Sprintf(modelapi.ASSESSMENT_PROMPT_TEMPLATE, string(historyJSON), latest)

	resp, err := b.client.MakeAPIRequest(ctx, MakeAPIRequestProps{
		RequestInput: ChatRequestInput{
			Model: b.cfg.Model,
			Messages: []ChatCompletionInputMessage{
				{Role: modelapi.SYSTEM, Content: modelapi.ASSESSMENT_SYSTEM_PROMPT},
				{Role: modelapi.USER, Content: prompt},
			},
			MaxTokens:   150,
			Temperature: 0.1,
		},
	})
	if err != nil {
		return session.VerdictNonTerminal, err
	}

	verdict, err := parseAssessment(resp.Choices[0].Message.Content)
	if err != nil {
		span.RecordError(err)
		return session.VerdictNonTerminal, err
	}

	span.SetAttributes(attribute.String("verdict", string(verdict)))
	return verdict, nil
}

// salesMessages converts the session history into the sales model's view:
// system prompt first, prospect turns as user, bot turns as assistant.
func salesMessages(history []session.Message) []ChatCompletionInputMessage {
	messages := make([]ChatCompletionInputMessage, 0, len(history)+1)
	messages = append(messages, ChatCompletionInputMessage{
		Role:    modelapi.SYSTEM,
		Content: modelapi.SALES_SYSTEM_PROMPT,
	})
	for _, msg := range history {
		role := modelapi.USER
		if msg.Role == session.RoleBot {
			role = modelapi.ASSISTANT
		}
		messages = append(messages, ChatCompletionInputMessage{Role: role, Content: msg.Text})
	}
	return messages
}

func usageOf(resp *ChatResponse) session.Usage {
	return session.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
}

type intentDetectionJSON struct {
	DetectedIntent  string          `json:"detected_intent"`
	ConfidenceLevel float64         `json:"confidence_level"`
	Reasoning       string          `json:"reasoning"`
	BestTimeToVisit json.RawMessage `json:"best_time_to_visit"`
}

// extractIntentDetection pulls the INTENT_DETECTION JSON block out of a
// model reply, tolerating markdown fences, surrounding prose and
// comma-separated multi-intent answers.
func extractIntentDetection(text string) (*session.IntentResult, error) {
	if !strings.Contains(text, "INTENT_DETECTION") {
		return nil, fmt.Errorf("no INTENT_DETECTION block in response")
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in INTENT_DETECTION response")
	}

	var parsed intentDetectionJSON
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, fmt.Errorf("invalid INTENT_DETECTION JSON: %w", err)
	}

	category, ok := session.ParseIntent(parsed.DetectedIntent)
	if !ok {
		return nil, fmt.Errorf("unrecognized intent label %q", parsed.DetectedIntent)
	}

	confidence := parsed.ConfidenceLevel
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	// best_time_to_visit may be a string or a JSON null.
	visitTime := ""
	if len(parsed.BestTimeToVisit) > 0 && string(parsed.BestTimeToVisit) != "null" {
		_ = json.Unmarshal(parsed.BestTimeToVisit, &visitTime)
	}

	return &session.IntentResult{
		Category:             category,
		Confidence:           confidence,
		Reasoning:            parsed.Reasoning,
		RecommendedVisitTime: visitTime,
	}, nil
}

type assessmentJSON struct {
	ShouldEnd bool   `json:"should_end"`
	Outcome   string `json:"outcome"`
	Reasoning string `json:"reasoning"`
}

// parseAssessment decodes the three-state conversation verdict, stripping
// markdown code fences when the model wraps its JSON in them.
func parseAssessment(text string) (session.Verdict, error) {
	cleaned := strings.TrimSpace(text)
	if idx := strings.Index(cleaned, "```json"); idx >= 0 {
		cleaned = cleaned[idx+len("```json"):]
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	} else if idx := strings.Index(cleaned, "```"); idx >= 0 {
		cleaned = cleaned[idx+len("```"):]
		if end := strings.Index(cleaned, "```"); end >= 0 {
			cleaned = cleaned[:end]
		}
	}

	var parsed assessmentJSON
	if err := json.Unmarshal([]byte(strings.TrimSpace(cleaned)), &parsed); err != nil {
		return session.VerdictNonTerminal, fmt.Errorf("invalid assessment JSON: %w", err)
	}

	if !parsed.ShouldEnd {
		return session.VerdictNonTerminal, nil
	}
	switch parsed.Outcome {
	case "agreed_to_free_class":
		return session.VerdictAgreed, nil
	case "not_interested":
		return session.VerdictDeclined, nil
	default:
		return session.VerdictNonTerminal, nil
	}
}
