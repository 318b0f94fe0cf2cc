package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

// CredentialRepository stores identity-provider credentials.
type CredentialRepository interface {
	Create(ctx context.Context, credential *models.Credential) error
	FindByEmail(ctx context.Context, email string) (models.Credential, error)
	FindByUID(ctx context.Context, uid string) (models.Credential, error)
}

// UserRepository provides access to user profile records.
type UserRepository interface {
	FindByUID(ctx context.Context, uid string) (models.User, error)
	CreateIfAbsent(ctx context.Context, user *models.User) (bool, error)
	AddHobby(ctx context.Context, uid, name string) (models.User, error)
}

type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository constructs a credential repository backed by GORM.
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

func (r *credentialRepository) Create(ctx context.Context, credential *models.Credential) error {
	return r.db.WithContext(ctx).Create(credential).Error
}

func (r *credentialRepository) FindByEmail(ctx context.Context, email string) (models.Credential, error) {
	var credential models.Credential
	if err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&credential).Error; err != nil {
		return models.Credential{}, err
	}
	return credential, nil
}

func (r *credentialRepository) FindByUID(ctx context.Context, uid string) (models.Credential, error) {
	var credential models.Credential
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&credential).Error; err != nil {
		return models.Credential{}, err
	}
	return credential, nil
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByUID(ctx context.Context, uid string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

// CreateIfAbsent inserts the record unless one with the same uid exists and
// reports whether this call created it.
func (r *userRepository) CreateIfAbsent(ctx context.Context, user *models.User) (bool, error) {
	if user.Hobbies == nil {
		user.Hobbies = []string{}
	}
	if user.Communities == nil {
		user.Communities = []string{}
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *userRepository) AddHobby(ctx context.Context, uid, name string) (models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("uid = ?", uid).First(&user).Error; err != nil {
			return err
		}
		if !user.AddHobby(name) {
			return nil
		}
		return tx.Model(&models.User{}).Where("uid = ?", uid).Update("hobbies", user.Hobbies).Error
	})
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}
