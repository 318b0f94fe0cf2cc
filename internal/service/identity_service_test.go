package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bondoverhobbies/internal/dto"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
	"github.com/noah-isme/bondoverhobbies/internal/security"
)

func TestSignUpCreatesDefaultProfile(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	session, err := stack.identity.SignUp(ctx, dto.SignUpRequest{DisplayName: "Ana", Email: " Ana@Example.com ", Password: "password123"})
	require.NoError(t, err)
	require.NotEmpty(t, session.Token)
	require.Equal(t, "ana@example.com", session.User.Email)
	require.Equal(t, "Ana", session.User.DisplayName)
	require.Equal(t, "https://picsum.photos/seed/"+session.User.UID+"/100/100", session.User.PhotoURL)
	require.Empty(t, session.User.Hobbies)
	require.Empty(t, session.User.Communities)

	principal, err := stack.identity.Authenticate(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, session.User.UID, principal.UID)
}

func TestSignUpValidatesBeforeStoreCalls(t *testing.T) {
	stack := newTestStack(t)

	_, err := stack.identity.SignUp(context.Background(), dto.SignUpRequest{DisplayName: "A", Email: "not-an-email", Password: "short"})
	var validationErrs validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrs)

	fields := map[string]bool{}
	for _, fieldErr := range validationErrs {
		fields[fieldErr.Field()] = true
	}
	require.True(t, fields["DisplayName"])
	require.True(t, fields["Email"])
	require.True(t, fields["Password"])
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.identity.SignUp(ctx, dto.SignUpRequest{DisplayName: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = stack.identity.SignUp(ctx, dto.SignUpRequest{DisplayName: "Ana Two", Email: "ANA@example.com", Password: "password456"})
	require.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignInChecksPassword(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.identity.SignUp(ctx, dto.SignUpRequest{DisplayName: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)

	_, err = stack.identity.SignIn(ctx, dto.SignInRequest{Email: "ana@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = stack.identity.SignIn(ctx, dto.SignInRequest{Email: "ghost@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	session, err := stack.identity.SignIn(ctx, dto.SignInRequest{Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)
	require.Equal(t, "Ana", session.User.DisplayName)
}

func TestSignOutRevokesTokenAndEmitsEvent(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	session, err := stack.identity.SignUp(ctx, dto.SignUpRequest{DisplayName: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)

	watch := stack.identity.Watch(session.User.UID)
	defer watch.Close()

	require.NoError(t, stack.identity.SignOut(ctx, session.Token))

	select {
	case raw := <-watch.Events():
		var event SessionEvent
		require.NoError(t, json.Unmarshal(raw, &event))
		require.Equal(t, SessionSignedOut, event.Type)
		require.Equal(t, session.User.UID, event.UID)
	case <-time.After(time.Second):
		t.Fatal("expected session event")
	}

	_, err = stack.identity.Authenticate(ctx, session.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)

	require.ErrorIs(t, stack.identity.SignOut(ctx, "garbage"), ErrUnauthenticated)
}

func TestRevocationsSharedThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	db := setupServiceDB(t)
	tokens := security.NewTokenService("test-secret", time.Hour)
	deps := IdentityDependencies{
		Credentials: repository.NewCredentialRepository(db),
		Users:       repository.NewUserRepository(db),
		Hasher:      security.NewPasswordHasher(bcrypt.MinCost),
		Tokens:      tokens,
		Redis:       client,
		ChannelBase: "boh-test",
		Broker:      NewBroker(BrokerOptions{}, testLogger()),
		Validator:   testValidator(),
	}
	nodeA := NewIdentityService(deps, testLogger())
	nodeB := NewIdentityService(deps, testLogger())
	ctx := context.Background()

	session, err := nodeA.SignUp(ctx, dto.SignUpRequest{DisplayName: "Ana", Email: "ana@example.com", Password: "password123"})
	require.NoError(t, err)
	require.NoError(t, nodeA.SignOut(ctx, session.Token))

	_, err = nodeB.Authenticate(ctx, session.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)

	claims, err := tokens.Parse(session.Token)
	require.NoError(t, err)
	require.True(t, mr.Exists("boh-test:revoked:"+claims.TokenID))
}

func TestEnsureProfileFallsBackToDefaults(t *testing.T) {
	stack := newTestStack(t)

	user, err := stack.identity.EnsureProfile(context.Background(), Principal{UID: "u-42"})
	require.NoError(t, err)
	require.Equal(t, "Hobbyist", user.DisplayName)
	require.Equal(t, "https://picsum.photos/seed/u-42/100/100", user.PhotoURL)

	again, err := stack.identity.EnsureProfile(context.Background(), Principal{UID: "u-42", DisplayName: "Changed"})
	require.NoError(t, err)
	require.Equal(t, "Hobbyist", again.DisplayName)
}

func TestAddHobbyIsIdempotentAndSanitized(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()
	principal := principalFor("u1")

	_, err := stack.identity.AddHobby(ctx, nil, dto.AddHobbyRequest{Name: "Chess"})
	require.ErrorIs(t, err, ErrUnauthenticated)

	profile, err := stack.identity.AddHobby(ctx, principal, dto.AddHobbyRequest{Name: "<b>Arts & Crafts</b>"})
	require.NoError(t, err)
	require.Equal(t, []string{"Arts & Crafts"}, profile.Hobbies)

	profile, err = stack.identity.AddHobby(ctx, principal, dto.AddHobbyRequest{Name: "Arts & Crafts"})
	require.NoError(t, err)
	require.Equal(t, []string{"Arts & Crafts"}, profile.Hobbies)

	fetched, err := stack.identity.GetProfile(ctx, principal)
	require.NoError(t, err)
	require.Equal(t, []string{"Arts & Crafts"}, fetched.Hobbies)
}
