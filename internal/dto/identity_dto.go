package dto

import (
	"time"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

// SignUpRequest creates a new account.
type SignUpRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=255"`
	Email       string `json:"email" validate:"required,email,max=255"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
}

// SignInRequest authenticates an existing account.
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// AddHobbyRequest adds a hobby label to the caller's profile.
type AddHobbyRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=255"`
	Description string `json:"description" validate:"omitempty,max=2000"`
}

// SessionResponse is returned after a successful sign-up or sign-in.
type SessionResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      ProfileResponse `json:"user"`
}

// ProfileResponse is the serialized user profile record.
type ProfileResponse struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	PhotoURL    string    `json:"photo_url"`
	Hobbies     []string  `json:"hobbies"`
	Communities []string  `json:"communities"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewProfileResponse converts a user model into a DTO.
func NewProfileResponse(user models.User) ProfileResponse {
	return ProfileResponse{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		Email:       user.Email,
		PhotoURL:    user.PhotoURL,
		Hobbies:     nonNilStrings(user.Hobbies),
		Communities: nonNilStrings(user.Communities),
		CreatedAt:   user.CreatedAt,
	}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
