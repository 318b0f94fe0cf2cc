package dto

// ConversationStarterRequest optionally overrides the caller's interests.
type ConversationStarterRequest struct {
	Interests string `json:"interests" validate:"omitempty,max=500"`
}

// ConversationStarterResponse holds the suggested draft message.
type ConversationStarterResponse struct {
	Prompt string `json:"prompt"`
}

// SupportTurn is one entry of the support-chat dialogue.
type SupportTurn struct {
	Role    string `json:"role" validate:"required,oneof=user model"`
	Content string `json:"content" validate:"required,max=4000"`
}

// SupportChatRequest carries the running support dialogue.
type SupportChatRequest struct {
	History []SupportTurn `json:"history" validate:"required,min=1,max=50,dive"`
}

// SupportChatResponse is the assistant's reply.
type SupportChatResponse struct {
	Response string `json:"response"`
}

// HobbyRecommendationRequest describes the caller's interests.
type HobbyRecommendationRequest struct {
	Interests string `json:"interests" validate:"required,min=2,max=500"`
}

// HobbyRecommendationResponse lists recommended hobbies with their community ids.
type HobbyRecommendationResponse struct {
	Hobbies []HobbySuggestion `json:"hobbies"`
}

// HobbySuggestion pairs a recommended hobby with the community it maps to.
type HobbySuggestion struct {
	Name        string `json:"name"`
	CommunityID string `json:"community_id"`
}
