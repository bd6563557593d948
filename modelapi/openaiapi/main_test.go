package openaiapi

import (
	"context"
	"os"
	"testing"

	"leadqualdev/logger"
	"leadqualdev/modelapi"
	"leadqualdev/session"
)

func TestGetExponentialDelaySeconds(t *testing.T) {
	want := []int{5, 10, 20, 40}
	for retryNumber, expected := range want {
		if got := GetExponentialDelaySeconds(retryNumber); got != expected {
			t.Errorf("GetExponentialDelaySeconds(%d) = %d, want %d", retryNumber, got, expected)
		}
	}
}

func TestSalesMessagesMapping(t *testing.T) {
	history := []session.Message{
		{Role: session.RoleBot, Text: "Hi there!"},
		{Role: session.RoleProspect, Text: "I want to lose weight"},
		{Role: session.RoleBot, Text: "Great goal!"},
	}

	messages := salesMessages(history)
	if len(messages) != 4 {
		t.Fatalf("Expected 4 messages, got %d", len(messages))
	}
	if messages[0].Role != modelapi.SYSTEM || messages[0].Content != modelapi.SALES_SYSTEM_PROMPT {
		t.Error("Expected the sales system prompt first")
	}
	if messages[1].Role != modelapi.ASSISTANT {
		t.Errorf("Expected bot turn as assistant, got %s", messages[1].Role)
	}
	if messages[2].Role != modelapi.USER {
		t.Errorf("Expected prospect turn as user, got %s", messages[2].Role)
	}
	if messages[3].Role != modelapi.ASSISTANT {
		t.Errorf("Expected bot turn as assistant, got %s", messages[3].Role)
	}
}

func TestExtractIntentDetection(t *testing.T) {
	t.Run("plain block", func(t *testing.T) {
		text := `INTENT_DETECTION:
{
  "detected_intent": "weight_loss",
  "confidence_level": 0.85,
  "reasoning": "prospect mentioned losing weight repeatedly",
  "best_time_to_visit": "weekday evening"
}`
		result, err := extractIntentDetection(text)
		if err != nil {
			t.Fatalf("extractIntentDetection failed: %v", err)
		}
		if result.Category != session.IntentWeightLoss {
			t.Errorf("Expected weight_loss, got %s", result.Category)
		}
		if result.Confidence != 0.85 {
			t.Errorf("Expected confidence 0.85, got %f", result.Confidence)
		}
		if result.RecommendedVisitTime != "weekday evening" {
			t.Errorf("Unexpected visit time %q", result.RecommendedVisitTime)
		}
	})

	t.Run("markdown fenced with prose", func(t *testing.T) {
		text := "Here is my INTENT_DETECTION assessment:\n```json\n" +
			`{"detected_intent": "general_fitness", "confidence_level": 0.7, "reasoning": "broad fitness goals", "best_time_to_visit": null}` +
			"\n```\nLet me know if you need anything else."
		result, err := extractIntentDetection(text)
		if err != nil {
			t.Fatalf("extractIntentDetection failed: %v", err)
		}
		if result.Category != session.IntentGeneralFitness {
			t.Errorf("Expected general_fitness, got %s", result.Category)
		}
		if result.RecommendedVisitTime != "" {
			t.Errorf("Expected empty visit time for null, got %q", result.RecommendedVisitTime)
		}
	})

	t.Run("comma separated multi intent", func(t *testing.T) {
		text := `INTENT_DETECTION: {"detected_intent": "weight_loss, general_fitness", "confidence_level": 0.6, "reasoning": "mixed goals"}`
		result, err := extractIntentDetection(text)
		if err != nil {
			t.Fatalf("extractIntentDetection failed: %v", err)
		}
		if result.Category != session.IntentWeightLoss {
			t.Errorf("Expected first label to win, got %s", result.Category)
		}
	})

	t.Run("confidence clamped", func(t *testing.T) {
		text := `INTENT_DETECTION: {"detected_intent": "social_community", "confidence_level": 1.4, "reasoning": "x"}`
		result, err := extractIntentDetection(text)
		if err != nil {
			t.Fatalf("extractIntentDetection failed: %v", err)
		}
		if result.Confidence != 1.0 {
			t.Errorf("Expected confidence clamped to 1.0, got %f", result.Confidence)
		}
	})

	t.Run("unrecognized label", func(t *testing.T) {
		text := `INTENT_DETECTION: {"detected_intent": "wants_a_pony", "confidence_level": 0.9, "reasoning": "x"}`
		if _, err := extractIntentDetection(text); err == nil {
			t.Error("Expected error for unrecognized intent label")
		}
	})

	t.Run("missing marker", func(t *testing.T) {
		text := `{"detected_intent": "weight_loss", "confidence_level": 0.9, "reasoning": "x"}`
		if _, err := extractIntentDetection(text); err == nil {
			t.Error("Expected error when the INTENT_DETECTION marker is absent")
		}
	})

	t.Run("missing json", func(t *testing.T) {
		if _, err := extractIntentDetection("INTENT_DETECTION: sorry, I cannot judge this"); err == nil {
			t.Error("Expected error when no JSON object is present")
		}
	})
}

func TestParseAssessment(t *testing.T) {
	t.Run("agreement", func(t *testing.T) {
		verdict, err := parseAssessment(`{"should_end": true, "outcome": "agreed_to_free_class", "reasoning": "booked a class"}`)
		if err != nil {
			t.Fatalf("parseAssessment failed: %v", err)
		}
		if verdict != session.VerdictAgreed {
			t.Errorf("Expected agreed, got %s", verdict)
		}
	})

	t.Run("decline inside code fence", func(t *testing.T) {
		verdict, err := parseAssessment("```json\n" + `{"should_end": true, "outcome": "not_interested", "reasoning": "firm no"}` + "\n```")
		if err != nil {
			t.Fatalf("parseAssessment failed: %v", err)
		}
		if verdict != session.VerdictDeclined {
			t.Errorf("Expected declined, got %s", verdict)
		}
	})

	t.Run("continue", func(t *testing.T) {
		verdict, err := parseAssessment(`{"should_end": false, "outcome": "continue", "reasoning": "still exploring"}`)
		if err != nil {
			t.Fatalf("parseAssessment failed: %v", err)
		}
		if verdict != session.VerdictNonTerminal {
			t.Errorf("Expected non_terminal, got %s", verdict)
		}
	})

	t.Run("should_end with unknown outcome", func(t *testing.T) {
		verdict, err := parseAssessment(`{"should_end": true, "outcome": "maybe_later", "reasoning": "?"}`)
		if err != nil {
			t.Fatalf("parseAssessment failed: %v", err)
		}
		if verdict != session.VerdictNonTerminal {
			t.Errorf("Expected non_terminal for unknown outcome, got %s", verdict)
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := parseAssessment("the conversation should end"); err == nil {
			t.Error("Expected error for non-JSON assessment")
		}
	})
}

func TestMakeAPIRequest(t *testing.T) {
	apiKey := os.Getenv("OPENAI_SECRET_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_SECRET_KEY not set")
	}
	baseURL := os.Getenv("OPENAI_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	ctx := context.Background()
	LogMiddleware := logger.Connect(logger.LoggerConnectProps{Production: false})

	client := Connect(ctx, OpenAIConnectProps{
		Logger:  LogMiddleware,
		APIKey:  apiKey,
		BaseURL: baseURL,
	})

	resp, err := client.MakeAPIRequest(ctx, MakeAPIRequestProps{
		RequestInput: ChatRequestInput{
			Model: "gpt-4o-mini",
			Messages: []ChatCompletionInputMessage{
				{Role: modelapi.USER, Content: "Reply with the single word: hello"},
			},
			MaxTokens:   10,
			Temperature: 0,
		},
	})
	if err != nil {
		t.Fatalf("MakeAPIRequest failed: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		t.Error("Expected a non-empty completion")
	}
	t.Log(resp.Choices[0].Message.Content)
}
