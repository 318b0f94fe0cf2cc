package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/models"
	"github.com/noah-isme/bondoverhobbies/internal/observability"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
)

const defaultInterests = "General interests"

// CommunityService exposes the community directory.
type CommunityService interface {
	Get(ctx context.Context, id string) (dto.CommunityResponse, error)
	Watch(ctx context.Context, id string) (*CommunityFeed, error)
	Join(ctx context.Context, principal *Principal, id string, req dto.JoinCommunityRequest) (dto.CommunityResponse, error)
	CreateChannel(ctx context.Context, principal *Principal, id string, req dto.CreateChannelRequest) (dto.ChannelResponse, error)
	ListForUser(ctx context.Context, principal *Principal) ([]dto.CommunityResponse, error)
}

// CommunityFeed is a community snapshot followed by live updates.
type CommunityFeed struct {
	Snapshot dto.CommunityResponse
	sub      *Subscription
}

type communityService struct {
	repo      repository.CommunityRepository
	users     repository.UserRepository
	broker    *Broker
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewCommunityService constructs the community directory service.
func NewCommunityService(repo repository.CommunityRepository, users repository.UserRepository, broker *Broker, validate *validator.Validate, logger zerolog.Logger) CommunityService {
	return &communityService{
		repo:      repo,
		users:     users,
		broker:    broker,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "community_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/bondoverhobbies/internal/service/community"),
	}
}

func (s *communityService) Get(ctx context.Context, id string) (dto.CommunityResponse, error) {
	community, err := s.find(ctx, id)
	if err != nil {
		return dto.CommunityResponse{}, err
	}
	return dto.NewCommunityResponse(community), nil
}

// Watch subscribes before reading the snapshot so no update committed after
// the read is missed.
func (s *communityService) Watch(ctx context.Context, id string) (*CommunityFeed, error) {
	sub := s.broker.Subscribe(communityTopic(id))

	community, err := s.find(ctx, id)
	if err != nil {
		sub.Close()
		return nil, err
	}

	return &CommunityFeed{Snapshot: dto.NewCommunityResponse(community), sub: sub}, nil
}

func (s *communityService) Join(ctx context.Context, principal *Principal, id string, req dto.JoinCommunityRequest) (dto.CommunityResponse, error) {
	if principal == nil {
		return dto.CommunityResponse{}, ErrUnauthenticated
	}

	req.Name = plainText(s.sanitizer, req.Name)
	req.Description = plainText(s.sanitizer, req.Description)
	if err := s.validator.Struct(req); err != nil {
		return dto.CommunityResponse{}, err
	}

	slug := Slugify(id)
	if slug == "" {
		return dto.CommunityResponse{}, ErrCommunityNotFound
	}

	ctx, span := s.tracer.Start(ctx, "community.join", trace.WithAttributes(
		attribute.String("community.id", slug),
		attribute.String("user.uid", principal.UID),
	))
	defer span.End()

	// The profile may not exist yet when the client joins straight after
	// signing in through another node.
	if _, err := s.users.CreateIfAbsent(ctx, ptrTo(defaultProfile(*principal))); err != nil {
		span.RecordError(err)
		return dto.CommunityResponse{}, fmt.Errorf("ensure profile: %w", err)
	}

	name := req.Name
	if name == "" {
		name = displayNameFromSlug(slug)
	}
	seed := models.Community{
		ID:            slug,
		Name:          name,
		Description:   req.Description,
		Interests:     defaultInterests,
		AvatarURL:     fmt.Sprintf("https://picsum.photos/seed/%s/100/100", slug),
		BackgroundURL: fmt.Sprintf("https://picsum.photos/seed/%s-bg/1200/800", slug),
		Channels:      []string{models.DefaultChannel},
	}

	community, _, err := s.repo.Join(ctx, principal.UID, seed)
	if err != nil {
		span.RecordError(err)
		return dto.CommunityResponse{}, fmt.Errorf("join community: %w", err)
	}

	observability.CommunityJoins().Inc()
	s.logger.Info().Str("community_id", community.ID).Str("uid", principal.UID).Msg("user joined community")

	response := dto.NewCommunityResponse(community)
	s.publish(ctx, response)
	return response, nil
}

func (s *communityService) CreateChannel(ctx context.Context, principal *Principal, id string, req dto.CreateChannelRequest) (dto.ChannelResponse, error) {
	if principal == nil {
		return dto.ChannelResponse{}, ErrUnauthenticated
	}
	if err := s.validator.Struct(req); err != nil {
		return dto.ChannelResponse{}, err
	}

	slug := Slugify(req.Name)
	if slug == "" {
		return dto.ChannelResponse{}, ErrInvalidChannelName
	}

	ctx, span := s.tracer.Start(ctx, "community.create_channel", trace.WithAttributes(
		attribute.String("community.id", id),
		attribute.String("channel.slug", slug),
	))
	defer span.End()

	community, err := s.find(ctx, id)
	if err != nil {
		return dto.ChannelResponse{}, err
	}
	if !community.HasMember(principal.UID) {
		return dto.ChannelResponse{}, ErrNotMember
	}
	if community.HasChannel(slug) {
		return dto.ChannelResponse{}, ErrChannelExists
	}

	updated, appended, err := s.repo.AppendChannel(ctx, community.ID, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChannelResponse{}, ErrCommunityNotFound
		}
		span.RecordError(err)
		return dto.ChannelResponse{}, fmt.Errorf("create channel: %w", err)
	}
	if !appended {
		return dto.ChannelResponse{}, ErrChannelExists
	}

	observability.ChannelsCreated().Inc()
	s.publish(ctx, dto.NewCommunityResponse(updated))

	return dto.ChannelResponse{CommunityID: updated.ID, Slug: slug}, nil
}

func (s *communityService) ListForUser(ctx context.Context, principal *Principal) ([]dto.CommunityResponse, error) {
	if principal == nil {
		return nil, ErrUnauthenticated
	}

	user, err := s.users.FindByUID(ctx, principal.UID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []dto.CommunityResponse{}, nil
		}
		return nil, err
	}

	communities, err := s.repo.ListByIDs(ctx, user.Communities)
	if err != nil {
		return nil, err
	}
	return dto.NewCommunityResponseSlice(communities), nil
}

func (s *communityService) find(ctx context.Context, id string) (models.Community, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Community{}, ErrCommunityNotFound
	}

	community, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Community{}, ErrCommunityNotFound
		}
		return models.Community{}, fmt.Errorf("load community: %w", err)
	}
	return community, nil
}

func (s *communityService) publish(ctx context.Context, community dto.CommunityResponse) {
	if err := s.broker.Publish(ctx, communityTopic(community.ID), community); err != nil {
		s.logger.Warn().Err(err).Str("community_id", community.ID).Msg("failed to publish community update")
	}
}

// Next blocks until the next community update arrives.
func (f *CommunityFeed) Next(ctx context.Context) (dto.CommunityResponse, error) {
	for {
		select {
		case <-ctx.Done():
			return dto.CommunityResponse{}, ctx.Err()
		case <-f.sub.Done():
			return dto.CommunityResponse{}, ErrSubscriptionClosed
		case raw := <-f.sub.Events():
			var community dto.CommunityResponse
			if err := decodeEvent(raw, &community); err != nil {
				continue
			}
			return community, nil
		}
	}
}

// Close releases the feed.
func (f *CommunityFeed) Close() {
	f.sub.Close()
}

func displayNameFromSlug(slug string) string {
	words := strings.Split(slug, "-")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func ptrTo[T any](v T) *T {
	return &v
}
