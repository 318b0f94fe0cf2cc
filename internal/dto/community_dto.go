package dto

import (
	"time"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

// JoinCommunityRequest carries the display name used when the community does not exist yet.
type JoinCommunityRequest struct {
	Name        string `json:"name" validate:"omitempty,min=2,max=255"`
	Description string `json:"description" validate:"omitempty,max=2000"`
}

// CreateChannelRequest proposes a new channel name.
type CreateChannelRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
}

// CommunityResponse is the serialized representation of a community.
type CommunityResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Interests     string    `json:"interests"`
	AvatarURL     string    `json:"avatar_url"`
	BackgroundURL string    `json:"background_url"`
	Members       []string  `json:"members"`
	Channels      []string  `json:"channels"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChannelResponse is returned after creating a channel.
type ChannelResponse struct {
	CommunityID string `json:"community_id"`
	Slug        string `json:"slug"`
}

// NewCommunityResponse converts a model into a DTO.
func NewCommunityResponse(community models.Community) CommunityResponse {
	return CommunityResponse{
		ID:            community.ID,
		Name:          community.Name,
		Description:   community.Description,
		Interests:     community.Interests,
		AvatarURL:     community.AvatarURL,
		BackgroundURL: community.BackgroundURL,
		Members:       nonNilStrings(community.Members),
		Channels:      nonNilStrings(community.Channels),
		CreatedAt:     community.CreatedAt,
	}
}

// NewCommunityResponseSlice converts a slice of models into DTOs.
func NewCommunityResponseSlice(items []models.Community) []CommunityResponse {
	out := make([]CommunityResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewCommunityResponse(item))
	}
	return out
}
