// Package openaiapi is a hand-rolled client for OpenAI-compatible
// chat-completion endpoints. Setting the base URL pointed at Groq or
// Together works unchanged; only the key and model names differ.
package openaiapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"leadqualdev/httpmiddleware"
	"leadqualdev/logger"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const maxRetries = 3

type ChatCompletionInputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequestInput struct {
	Model       string                       `json:"model"`
	Messages    []ChatCompletionInputMessage `json:"messages"`
	MaxTokens   int                          `json:"max_tokens"`
	Temperature float64                      `json:"temperature"`
}

type ChatResponse struct {
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Usage   UsageBlock `json:"usage"`
}

type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason string          `json:"finish_reason"`
}

type ResponseMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type UsageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type OpenAIConnectProps struct {
	Logger  *logger.LogMiddleware
	APIKey  string
	BaseURL string
}

type OpenAI struct {
	logger    *logger.LogMiddleware
	semaphore *semaphore.Weighted
	apiKey    string
	baseURL   string
}

func Connect(ctx context.Context, args OpenAIConnectProps) *OpenAI {
	tracer := otel.Tracer("openaiapi/Connect")
	_, span := tracer.Start(ctx, "Connect")
	defer span.End()

	maxWorkers := 10
	sem := semaphore.NewWeighted(int64(maxWorkers))

	span.SetAttributes(
		attribute.Int("maxWorkers", maxWorkers),
		attribute.String("api.base_url", args.BaseURL),
	)

	return &OpenAI{
		logger:    args.Logger,
		semaphore: sem,
		apiKey:    args.APIKey,
		baseURL:   strings.TrimRight(args.BaseURL, "/"),
	}
}

type MakeAPIRequestProps struct {
	Retries      int
	RequestInput ChatRequestInput
}

// Used for retry logic.
func GetExponentialDelaySeconds(retryNumber int) int {
	return int(5 * math.Pow(2, float64(retryNumber)))
}

func (o *OpenAI) MakeAPIRequest(ctx context.Context, args MakeAPIRequestProps) (*ChatResponse, error) {
	tracer := otel.Tracer("openaiapi/MakeAPIRequest")
	ctx, span := tracer.Start(ctx, "MakeAPIRequest")
	defer span.End()

	url := o.baseURL + "/chat/completions"

	span.SetAttributes(
		attribute.String("api.url", url),
		attribute.Int("request.max_tokens", args.RequestInput.MaxTokens),
		attribute.String("request.model", args.RequestInput.Model),
	)

	jsonData, err := json.Marshal(args.RequestInput)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("could not generate request body: %w", err)
	}

	if err := o.semaphore.Acquire(ctx, 1); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to acquire semaphore: %w", err)
	}
	defer o.semaphore.Release(1)

	retries := args.Retries
	if retries <= 0 {
		retries = maxRetries
	}
	originalRetries := retries

	for retries > 0 {
		sleepTime := GetExponentialDelaySeconds(originalRetries - retries)

		respBody, err := httpmiddleware.HttpRequest(httpmiddleware.HttpRequestStruct{
			Method: "POST",
			Url:    url,
			Body:   bytes.NewBuffer(jsonData),
			Headers: map[string]string{
				"authorization": "Bearer " + o.apiKey,
				"content-type":  "application/json",
			},
		})

		if err != nil {
			span.RecordError(err)
			o.logger.Logger(ctx).Error(
				"[OpenAI-API] Could not make request. Retrying after sleeping.",
				zap.Error(err),
				zap.Int("retries_left", retries),
				zap.Int("sleep_time", sleepTime),
				zap.String("model", args.RequestInput.Model),
			)
			retries -= 1
			time.Sleep(time.Duration(sleepTime) * time.Second)
			continue
		}

		var messageResponse ChatResponse
		err = json.Unmarshal(respBody, &messageResponse)
		if err != nil || len(messageResponse.Choices) == 0 {
			span.RecordError(err)
			retries -= 1
			o.logger.Logger(ctx).Error(
				"[OpenAI-API] Could not parse response. Retrying after sleeping.",
				zap.Int("retries_left", retries),
				zap.Int("sleep_time", sleepTime),
				zap.Error(err),
				zap.String("response_body", string(respBody)),
			)
			time.Sleep(time.Duration(sleepTime) * time.Second)
			continue
		}

		span.AddEvent("Request successful")
		return &messageResponse, nil
	}

	span.AddEvent("All retries exhausted")
	return nil, fmt.Errorf("chat completion request failed after %d attempts", originalRetries)
}
