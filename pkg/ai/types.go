package ai

import (
	"context"
	"errors"
)

// Dialogue roles accepted by SupportiveReply.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// ErrInvalidOutput is returned when the model reply does not match the expected shape.
var ErrInvalidOutput = errors.New("model output does not match schema")

// Turn is one entry of a role-tagged dialogue.
type Turn struct {
	Role    string
	Content string
}

// StarterInput carries the context for a conversation-starter suggestion.
type StarterInput struct {
	Topic     string
	Interests string
	History   []string
}

// Assistant is the text-generation collaborator behind the in-app helpers.
type Assistant interface {
	SuggestConversationStarter(ctx context.Context, input StarterInput) (string, error)
	SupportiveReply(ctx context.Context, history []Turn) (string, error)
	RecommendHobbies(ctx context.Context, interests string) ([]string, error)
}
