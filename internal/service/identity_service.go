package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/models"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
	"github.com/noah-isme/bondoverhobbies/internal/security"
)

const (
	defaultDisplayName = "Hobbyist"
	avatarSeedURL      = "https://picsum.photos/seed/%s/100/100"
)

// Session event types published on a principal's session topic.
const (
	SessionSignedIn  = "signed_in"
	SessionSignedOut = "signed_out"
)

// Principal is the authenticated identity behind a request.
type Principal struct {
	UID         string
	Email       string
	DisplayName string
	PhotoURL    string
	TokenID     string
	ExpiresAt   time.Time
}

// SessionEvent describes a change of a principal's session state.
type SessionEvent struct {
	Type    string    `json:"type"`
	UID     string    `json:"uid"`
	TokenID string    `json:"token_id"`
	At      time.Time `json:"at"`
}

// IdentityService is the identity-provider collaborator and the profile store.
type IdentityService interface {
	SignUp(ctx context.Context, req dto.SignUpRequest) (dto.SessionResponse, error)
	SignIn(ctx context.Context, req dto.SignInRequest) (dto.SessionResponse, error)
	SignOut(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (Principal, error)
	Watch(uid string) *Subscription
	EnsureProfile(ctx context.Context, principal Principal) (models.User, error)
	GetProfile(ctx context.Context, principal *Principal) (dto.ProfileResponse, error)
	AddHobby(ctx context.Context, principal *Principal, req dto.AddHobbyRequest) (dto.ProfileResponse, error)
}

type identityService struct {
	credentials repository.CredentialRepository
	users       repository.UserRepository
	hasher      *security.PasswordHasher
	tokens      *security.TokenService
	revocations *revocationStore
	broker      *Broker
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// IdentityDependencies groups collaborators of the identity service.
type IdentityDependencies struct {
	Credentials repository.CredentialRepository
	Users       repository.UserRepository
	Hasher      *security.PasswordHasher
	Tokens      *security.TokenService
	Redis       *redis.Client
	ChannelBase string
	Broker      *Broker
	Validator   *validator.Validate
}

// NewIdentityService constructs the identity service.
func NewIdentityService(deps IdentityDependencies, logger zerolog.Logger) IdentityService {
	hasher := deps.Hasher
	if hasher == nil {
		hasher = security.NewPasswordHasher(0)
	}

	return &identityService{
		credentials: deps.Credentials,
		users:       deps.Users,
		hasher:      hasher,
		tokens:      deps.Tokens,
		revocations: newRevocationStore(deps.Redis, deps.ChannelBase),
		broker:      deps.Broker,
		validator:   deps.Validator,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "identity_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/bondoverhobbies/internal/service/identity"),
	}
}

func (s *identityService) SignUp(ctx context.Context, req dto.SignUpRequest) (dto.SessionResponse, error) {
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "identity.signup")
	defer span.End()

	if _, err := s.credentials.FindByEmail(ctx, req.Email); err == nil {
		return dto.SessionResponse{}, ErrEmailTaken
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		return dto.SessionResponse{}, fmt.Errorf("lookup credential: %w", err)
	}

	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, fmt.Errorf("hash password: %w", err)
	}

	uid := uuid.NewString()
	credential := models.Credential{
		UID:          uid,
		Email:        req.Email,
		PasswordHash: hashed,
		DisplayName:  plainText(s.sanitizer, req.DisplayName),
		PhotoURL:     seededAvatar(uid),
	}
	if err := s.credentials.Create(ctx, &credential); err != nil {
		span.RecordError(err)
		if _, lookupErr := s.credentials.FindByEmail(ctx, req.Email); lookupErr == nil {
			return dto.SessionResponse{}, ErrEmailTaken
		}
		return dto.SessionResponse{}, fmt.Errorf("create credential: %w", err)
	}

	principal := principalFromCredential(credential)
	user, err := s.EnsureProfile(ctx, principal)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	s.logger.Info().Str("uid", uid).Msg("account created")
	return s.openSession(ctx, principal, user)
}

func (s *identityService) SignIn(ctx context.Context, req dto.SignInRequest) (dto.SessionResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return dto.SessionResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "identity.signin")
	defer span.End()

	credential, err := s.credentials.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SessionResponse{}, ErrInvalidCredentials
		}
		span.RecordError(err)
		return dto.SessionResponse{}, fmt.Errorf("lookup credential: %w", err)
	}

	if err := s.hasher.Verify(req.Password, credential.PasswordHash); err != nil {
		return dto.SessionResponse{}, ErrInvalidCredentials
	}

	principal := principalFromCredential(credential)
	user, err := s.EnsureProfile(ctx, principal)
	if err != nil {
		span.RecordError(err)
		return dto.SessionResponse{}, err
	}

	return s.openSession(ctx, principal, user)
}

func (s *identityService) openSession(ctx context.Context, principal Principal, user models.User) (dto.SessionResponse, error) {
	token, claims, err := s.tokens.Issue(principal.UID)
	if err != nil {
		return dto.SessionResponse{}, fmt.Errorf("issue token: %w", err)
	}

	s.publishSession(ctx, SessionEvent{Type: SessionSignedIn, UID: principal.UID, TokenID: claims.TokenID})

	return dto.SessionResponse{
		Token:     token,
		ExpiresAt: claims.ExpiresAt,
		User:      dto.NewProfileResponse(user),
	}, nil
}

func (s *identityService) SignOut(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return ErrUnauthenticated
	}

	if err := s.revocations.Revoke(ctx, claims.TokenID, claims.ExpiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}

	s.publishSession(ctx, SessionEvent{Type: SessionSignedOut, UID: claims.Subject, TokenID: claims.TokenID})
	s.logger.Info().Str("uid", claims.Subject).Msg("session ended")
	return nil
}

func (s *identityService) Authenticate(ctx context.Context, token string) (Principal, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Principal{}, ErrUnauthenticated
	}

	revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return Principal{}, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return Principal{}, ErrUnauthenticated
	}

	credential, err := s.credentials.FindByUID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, fmt.Errorf("lookup credential: %w", err)
	}

	principal := principalFromCredential(credential)
	principal.TokenID = claims.TokenID
	principal.ExpiresAt = claims.ExpiresAt
	return principal, nil
}

func (s *identityService) Watch(uid string) *Subscription {
	return s.broker.Subscribe(sessionTopic(uid))
}

// EnsureProfile loads the profile record of principal, creating the default
// record when it does not exist yet. Concurrent first loads converge on a
// single record.
func (s *identityService) EnsureProfile(ctx context.Context, principal Principal) (models.User, error) {
	user, err := s.users.FindByUID(ctx, principal.UID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, fmt.Errorf("load profile: %w", err)
	}

	record := defaultProfile(principal)
	created, err := s.users.CreateIfAbsent(ctx, &record)
	if err != nil {
		return models.User{}, fmt.Errorf("create profile: %w", err)
	}
	if created {
		s.logger.Debug().Str("uid", principal.UID).Msg("default profile created")
	}

	user, err = s.users.FindByUID(ctx, principal.UID)
	if err != nil {
		return models.User{}, fmt.Errorf("load profile: %w", err)
	}
	return user, nil
}

func (s *identityService) GetProfile(ctx context.Context, principal *Principal) (dto.ProfileResponse, error) {
	if principal == nil {
		return dto.ProfileResponse{}, ErrUnauthenticated
	}

	user, err := s.EnsureProfile(ctx, *principal)
	if err != nil {
		return dto.ProfileResponse{}, err
	}
	return dto.NewProfileResponse(user), nil
}

func (s *identityService) AddHobby(ctx context.Context, principal *Principal, req dto.AddHobbyRequest) (dto.ProfileResponse, error) {
	if principal == nil {
		return dto.ProfileResponse{}, ErrUnauthenticated
	}

	req.Name = plainText(s.sanitizer, req.Name)
	if err := s.validator.Struct(req); err != nil {
		return dto.ProfileResponse{}, err
	}

	ctx, span := s.tracer.Start(ctx, "identity.add_hobby", trace.WithAttributes(attribute.String("user.uid", principal.UID)))
	defer span.End()

	if _, err := s.EnsureProfile(ctx, *principal); err != nil {
		span.RecordError(err)
		return dto.ProfileResponse{}, err
	}

	user, err := s.users.AddHobby(ctx, principal.UID, req.Name)
	if err != nil {
		span.RecordError(err)
		return dto.ProfileResponse{}, fmt.Errorf("add hobby: %w", err)
	}
	return dto.NewProfileResponse(user), nil
}

func (s *identityService) publishSession(ctx context.Context, event SessionEvent) {
	if s.broker == nil {
		return
	}
	event.At = time.Now().UTC()
	if err := s.broker.Publish(ctx, sessionTopic(event.UID), event); err != nil {
		s.logger.Warn().Err(err).Str("uid", event.UID).Msg("failed to publish session event")
	}
}

func principalFromCredential(credential models.Credential) Principal {
	return Principal{
		UID:         credential.UID,
		Email:       credential.Email,
		DisplayName: credential.DisplayName,
		PhotoURL:    credential.PhotoURL,
	}
}

func defaultProfile(principal Principal) models.User {
	displayName := strings.TrimSpace(principal.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName
	}
	photoURL := strings.TrimSpace(principal.PhotoURL)
	if photoURL == "" {
		photoURL = seededAvatar(principal.UID)
	}

	return models.User{
		UID:         principal.UID,
		DisplayName: displayName,
		Email:       principal.Email,
		PhotoURL:    photoURL,
		Hobbies:     []string{},
		Communities: []string{},
	}
}

func seededAvatar(uid string) string {
	return fmt.Sprintf(avatarSeedURL, uid)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// revocationStore keeps revoked token ids until the token would have expired.
// Redis is shared by all nodes; without it revocations are node-local.
type revocationStore struct {
	redis  *redis.Client
	prefix string

	mu    sync.Mutex
	local map[string]time.Time
}

func newRevocationStore(client *redis.Client, channelBase string) *revocationStore {
	prefix := "boh"
	if channelBase != "" {
		prefix = channelBase
	}
	return &revocationStore{
		redis:  client,
		prefix: prefix + ":revoked:",
		local:  make(map[string]time.Time),
	}
}

func (r *revocationStore) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	if r.redis != nil {
		return r.redis.Set(ctx, r.prefix+tokenID, "1", ttl).Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for id, expiry := range r.local {
		if now.After(expiry) {
			delete(r.local, id)
		}
	}
	r.local[tokenID] = until
	return nil
}

func (r *revocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if r.redis != nil {
		n, err := r.redis.Exists(ctx, r.prefix+tokenID).Result()
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	expiry, ok := r.local[tokenID]
	return ok && time.Now().Before(expiry), nil
}
