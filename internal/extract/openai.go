package extract

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"facturas/internal/logger"
	"facturas/pkg/models"
)

// ChatClient is the subset of the OpenAI client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures both extraction variants.
type OpenAIConfig struct {
	Model           string
	TextMaxTokens   int
	VisionMaxTokens int
	Timeout         time.Duration

	// Breaker settings; zero values take the defaults below.
	BreakerMinRequests  uint32
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration
}

func (c OpenAIConfig) withDefaults() OpenAIConfig {
	if c.Model == "" {
		c.Model = openai.GPT4o
	}
	if c.TextMaxTokens <= 0 {
		c.TextMaxTokens = 1500
	}
	if c.VisionMaxTokens <= 0 {
		c.VisionMaxTokens = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = 5
	}
	if c.BreakerFailureRatio <= 0 {
		c.BreakerFailureRatio = 0.6
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = 30 * time.Second
	}
	return c
}

// NewOpenAIClient builds a client, optionally against a compatible endpoint.
func NewOpenAIClient(apiKey, baseURL string) *openai.Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(cfg)
}

// OpenAIExtractor implements Extractor with chat completions. Calls are not retried;
// repeated backend failures open a circuit breaker and fail fast until it half-opens.
type OpenAIExtractor struct {
	client  ChatClient
	config  OpenAIConfig
	breaker *gobreaker.CircuitBreaker[openai.ChatCompletionResponse]
	log     zerolog.Logger
}

func NewOpenAIExtractor(client ChatClient, config OpenAIConfig) *OpenAIExtractor {
	config = config.withDefaults()
	log := logger.WithComponent("extract")

	breaker := gobreaker.NewCircuitBreaker[openai.ChatCompletionResponse](gobreaker.Settings{
		Name:        "openai-chat",
		MaxRequests: 1,
		Timeout:     config.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.BreakerMinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= config.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
		},
	})

	return &OpenAIExtractor{
		client:  client,
		config:  config,
		breaker: breaker,
		log:     log,
	}
}

// FromText runs the text-assisted variant.
func (e *OpenAIExtractor) FromText(ctx context.Context, text, hint string) (*models.InvoiceRecord, error) {
	const op = "FromText"

	if strings.TrimSpace(text) == "" {
		return nil, WrapExtractionError(VariantText, op, ErrEmptyResponse, "no recognized text to extract from")
	}

	content, err := e.complete(ctx, openai.ChatCompletionRequest{
		Model:     e.config.Model,
		MaxTokens: e.config.TextMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: textPrompt(text, hint)},
		},
	})
	if err != nil {
		return nil, WrapExtractionError(VariantText, op, err, "chat completion failed")
	}

	rec, err := ParseResponse(content)
	if err != nil {
		return nil, WrapExtractionError(VariantText, op, err, "")
	}

	if ApplyHint(rec, hint) {
		e.log.Debug().Str("orden_servicio", rec.OrderNumber).Msg("Patient ID replaced with cedula hint")
	}
	return rec, nil
}

// FromImage runs the vision-only variant.
func (e *OpenAIExtractor) FromImage(ctx context.Context, image []byte, mimeType string) (*models.InvoiceRecord, error) {
	const op = "FromImage"

	if len(image) == 0 {
		return nil, WrapExtractionError(VariantVision, op, ErrEmptyResponse, "no image bytes")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	content, err := e.complete(ctx, openai.ChatCompletionRequest{
		Model:     e.config.Model,
		MaxTokens: e.config.VisionMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: visionPrompt()},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL(image, mimeType),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, WrapExtractionError(VariantVision, op, err, "chat completion failed")
	}

	rec, err := ParseResponse(content)
	if err != nil {
		return nil, WrapExtractionError(VariantVision, op, err, "")
	}
	return rec, nil
}

func (e *OpenAIExtractor) complete(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	start := time.Now()

	resp, err := e.breaker.Execute(func() (openai.ChatCompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return e.client.CreateChatCompletion(callCtx, req)
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}

	e.log.Debug().
		Str("model", req.Model).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Dur("duration", time.Since(start)).
		Msg("Chat completion received")

	return content, nil
}

func dataURL(image []byte, mimeType string) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
}
