package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/models"
	"github.com/noah-isme/bondoverhobbies/internal/repository"
	"github.com/noah-isme/bondoverhobbies/internal/security"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Credential{}, &models.User{}, &models.Community{}, &models.ChannelMessage{}, &models.UploadRecord{}))
	return db
}

type testStack struct {
	db          *gorm.DB
	broker      *Broker
	identity    IdentityService
	communities CommunityService
	messages    MessageService
}

func newTestStack(t *testing.T) testStack {
	t.Helper()
	db := setupServiceDB(t)
	broker := NewBroker(BrokerOptions{}, testLogger())
	validate := testValidator()

	users := repository.NewUserRepository(db)
	communityRepo := repository.NewCommunityRepository(db)

	identity := NewIdentityService(IdentityDependencies{
		Credentials: repository.NewCredentialRepository(db),
		Users:       users,
		Hasher:      security.NewPasswordHasher(bcrypt.MinCost),
		Tokens:      security.NewTokenService("test-secret", time.Hour),
		Broker:      broker,
		Validator:   validate,
	}, testLogger())

	return testStack{
		db:          db,
		broker:      broker,
		identity:    identity,
		communities: NewCommunityService(communityRepo, users, broker, validate, testLogger()),
		messages:    NewMessageService(repository.NewMessageRepository(db), communityRepo, broker, validate, testLogger()),
	}
}

func principalFor(uid string) *Principal {
	return &Principal{UID: uid, Email: uid + "@example.com", DisplayName: "User " + uid}
}
