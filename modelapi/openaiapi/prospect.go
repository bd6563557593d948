package openaiapi

import (
	"context"
	"fmt"
	"leadqualdev/config"
	"leadqualdev/modelapi"
	"leadqualdev/session"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// ProspectResponder plays the prospect side of a simulated conversation.
// The system prompt encodes the generated personality profile, so each
// responder is built per conversation.
type ProspectResponder struct {
	client       *OpenAI
	cfg          config.ModelConfig
	systemPrompt string
}

func NewProspectResponder(client *OpenAI, cfg config.ModelConfig, systemPrompt string) *ProspectResponder {
	return &ProspectResponder{client: client, cfg: cfg, systemPrompt: systemPrompt}
}

// Respond produces the prospect's next message. The history is mirrored
// relative to the sales view: bot turns become user input, prospect turns
// become the assistant's own prior output.
func (p *ProspectResponder) Respond(ctx context.Context, history []session.Message) (string, session.Usage, error) {
	tracer := otel.Tracer("openaiapi/Respond")
	ctx, span := tracer.Start(ctx, "Respond")
	defer span.End()

	messages := make([]ChatCompletionInputMessage, 0, len(history)+1)
	messages = append(messages, ChatCompletionInputMessage{
		Role:    modelapi.SYSTEM,
		Content: p.systemPrompt,
	})
	for _, msg := range history {
		role := modelapi.USER
		if msg.Role == session.RoleProspect {
			role = modelapi.ASSISTANT
		}
		messages = append(messages, ChatCompletionInputMessage{Role: role, Content: msg.Text})
	}

	span.SetAttributes(attribute.Int("conversation_history_length", len(messages)))

	resp, err := p.client.MakeAPIRequest(ctx, MakeAPIRequestProps{
		RequestInput: ChatRequestInput{
			Model:       p.cfg.Model,
			Messages:    messages,
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
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
