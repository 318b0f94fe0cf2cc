package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "boh",
		Subsystem: "ai",
		Name:      "completion_duration_seconds",
		Help:      "Duration of text-generation requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boh",
		Subsystem: "ai",
		Name:      "completion_failures_total",
		Help:      "Number of failed text-generation requests",
	}, []string{"model", "operation"})
)

// OpenAIConfig defines configuration options for the OpenAI assistant.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIAssistant implements Assistant against the OpenAI chat completion API.
type OpenAIAssistant struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIAssistant builds a new assistant using the provided configuration.
func NewOpenAIAssistant(cfg OpenAIConfig) (*OpenAIAssistant, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 512
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIAssistant{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/bondoverhobbies/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_assistant").Logger(),
	}, nil
}

// SuggestConversationStarter drafts a message the user can post in a channel.
func (a *OpenAIAssistant) SuggestConversationStarter(ctx context.Context, input StarterInput) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: starterInstructions + " " + starterFormat},
		{Role: openai.ChatMessageRoleUser, Content: starterPrompt(input)},
	}

	var out struct {
		Prompt string `json:"prompt"`
	}
	if err := a.complete(ctx, "conversation_starter", messages, starterSchema, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Prompt), nil
}

// SupportiveReply answers the latest turn of the support dialogue.
func (a *OpenAIAssistant) SupportiveReply(ctx context.Context, history []Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: supportInstructions + " " + supportFormat,
	})
	for _, turn := range history {
		role := openai.ChatMessageRoleUser
		if turn.Role == RoleModel {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: turn.Content})
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := a.complete(ctx, "supportive_reply", messages, supportSchema, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

// RecommendHobbies suggests hobbies matching the given interests.
func (a *OpenAIAssistant) RecommendHobbies(ctx context.Context, interests string) ([]string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: hobbyInstructions + " " + hobbyFormat},
		{Role: openai.ChatMessageRoleUser, Content: hobbyPrompt(interests)},
	}

	var out struct {
		Hobbies string `json:"hobbies"`
	}
	if err := a.complete(ctx, "recommend_hobbies", messages, hobbySchema, &out); err != nil {
		return nil, err
	}
	return splitHobbies(out.Hobbies), nil
}

func (a *OpenAIAssistant) complete(parent context.Context, operation string, messages []openai.ChatCompletionMessage, schema *jsonschema.Schema, target interface{}) error {
	ctx, span := a.tracer.Start(parent, "openai."+operation, trace.WithAttributes(
		attribute.String("model", a.cfg.Model),
		attribute.Int("messages", len(messages)),
	))
	defer span.End()

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          a.cfg.Model,
		MaxTokens:      a.cfg.MaxTokens,
		Temperature:    a.cfg.Temperature,
		Messages:       messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	aiDuration.WithLabelValues(a.cfg.Model, operation).Observe(time.Since(start).Seconds())
	if err != nil {
		return a.fail(span, operation, fmt.Errorf("openai %s: %w", operation, err))
	}

	if len(resp.Choices) == 0 {
		return a.fail(span, operation, fmt.Errorf("no choices returned from openai"))
	}

	if err := decodeOutput(resp.Choices[0].Message.Content, schema, target); err != nil {
		return a.fail(span, operation, err)
	}

	span.SetAttributes(attribute.Int("usage.total_tokens", resp.Usage.TotalTokens))
	return nil
}

func (a *OpenAIAssistant) fail(span trace.Span, operation string, err error) error {
	aiFailures.WithLabelValues(a.cfg.Model, operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	a.logger.Warn().Err(err).Str("operation", operation).Msg("text generation failed")
	return err
}
