package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/observability"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
	"github.com/noah-isme/bondoverhobbies/pkg/ai"
)

const (
	defaultAssistantTimeout = 20 * time.Second
	starterHistoryLimit     = 50
)

// AssistantService bridges the in-app helpers to the text-generation provider.
// Nothing it receives or returns is persisted.
type AssistantService interface {
	SuggestStarter(ctx context.Context, principal *Principal, communityID, channel string, req dto.ConversationStarterRequest) (dto.ConversationStarterResponse, error)
	SupportChat(ctx context.Context, req dto.SupportChatRequest) (dto.SupportChatResponse, error)
	RecommendHobbies(ctx context.Context, req dto.HobbyRecommendationRequest) (dto.HobbyRecommendationResponse, error)
}

type assistantService struct {
	assistant   ai.Assistant
	communities repository.CommunityRepository
	messages    repository.MessageRepository
	validator   *validator.Validate
	timeout     time.Duration
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewAssistantService constructs the assistant bridge. A nil assistant makes
// every call fail with ErrAssistantUnavailable.
func NewAssistantService(assistant ai.Assistant, communities repository.CommunityRepository, messages repository.MessageRepository, validate *validator.Validate, timeout time.Duration, logger zerolog.Logger) AssistantService {
	if timeout <= 0 {
		timeout = defaultAssistantTimeout
	}
	return &assistantService{
		assistant:   assistant,
		communities: communities,
		messages:    messages,
		validator:   validate,
		timeout:     timeout,
		logger:      logger.With().Str("component", "assistant_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/bondoverhobbies/internal/service/assistant"),
	}
}

func (s *assistantService) SuggestStarter(ctx context.Context, principal *Principal, communityID, channel string, req dto.ConversationStarterRequest) (dto.ConversationStarterResponse, error) {
	if principal == nil {
		return dto.ConversationStarterResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ConversationStarterResponse{}, err
	}

	community, err := s.communities.FindByID(ctx, communityID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ConversationStarterResponse{}, ErrCommunityNotFound
		}
		return dto.ConversationStarterResponse{}, fmt.Errorf("load community: %w", err)
	}
	if !community.HasChannel(channel) {
		return dto.ConversationStarterResponse{}, ErrChannelNotFound
	}

	recent, err := s.messages.ListByChannel(ctx, communityID, channel, repository.MessageCursor{}, starterHistoryLimit)
	if err != nil {
		return dto.ConversationStarterResponse{}, fmt.Errorf("load history: %w", err)
	}
	history := make([]string, 0, len(recent))
	for _, message := range recent {
		history = append(history, fmt.Sprintf("%s: %s", message.SenderName, message.Text))
	}

	interests := req.Interests
	if interests == "" {
		interests = community.Interests
	}

	input := ai.StarterInput{
		Topic:     fmt.Sprintf("%s - #%s", community.Name, channel),
		Interests: interests,
		History:   history,
	}

	var prompt string
	err = s.call(ctx, "conversation_starter", func(callCtx context.Context) error {
		var callErr error
		prompt, callErr = s.assistant.SuggestConversationStarter(callCtx, input)
		return callErr
	})
	if err != nil {
		return dto.ConversationStarterResponse{}, err
	}
	return dto.ConversationStarterResponse{Prompt: prompt}, nil
}

func (s *assistantService) SupportChat(ctx context.Context, req dto.SupportChatRequest) (dto.SupportChatResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.SupportChatResponse{}, err
	}

	turns := make([]ai.Turn, 0, len(req.History))
	for _, turn := range req.History {
		turns = append(turns, ai.Turn{Role: turn.Role, Content: turn.Content})
	}

	var reply string
	err := s.call(ctx, "supportive_reply", func(callCtx context.Context) error {
		var callErr error
		reply, callErr = s.assistant.SupportiveReply(callCtx, turns)
		return callErr
	})
	if err != nil {
		return dto.SupportChatResponse{}, err
	}
	return dto.SupportChatResponse{Response: reply}, nil
}

func (s *assistantService) RecommendHobbies(ctx context.Context, req dto.HobbyRecommendationRequest) (dto.HobbyRecommendationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.HobbyRecommendationResponse{}, err
	}

	var hobbies []string
	err := s.call(ctx, "recommend_hobbies", func(callCtx context.Context) error {
		var callErr error
		hobbies, callErr = s.assistant.RecommendHobbies(callCtx, req.Interests)
		return callErr
	})
	if err != nil {
		return dto.HobbyRecommendationResponse{}, err
	}

	suggestions := make([]dto.HobbySuggestion, 0, len(hobbies))
	for _, name := range hobbies {
		slug := Slugify(name)
		if slug == "" {
			continue
		}
		suggestions = append(suggestions, dto.HobbySuggestion{Name: name, CommunityID: slug})
	}
	return dto.HobbyRecommendationResponse{Hobbies: suggestions}, nil
}

// call runs fn under the configured timeout and folds every failure into
// ErrAssistantUnavailable. There is no retry.
func (s *assistantService) call(ctx context.Context, operation string, fn func(context.Context) error) error {
	if s.assistant == nil {
		observability.AssistantRequests().WithLabelValues(operation, "disabled").Inc()
		return ErrAssistantUnavailable
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	callCtx, span := s.tracer.Start(callCtx, "assistant."+operation, trace.WithAttributes(
		attribute.String("assistant.operation", operation),
	))
	defer span.End()

	if err := fn(callCtx); err != nil {
		outcome := "error"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		observability.AssistantRequests().WithLabelValues(operation, outcome).Inc()
		span.RecordError(err)
		s.logger.Warn().Err(err).Str("operation", operation).Str("outcome", outcome).Msg("assistant call failed")
		return fmt.Errorf("%w: %v", ErrAssistantUnavailable, err)
	}

	observability.AssistantRequests().WithLabelValues(operation, "ok").Inc()
	return nil
}
