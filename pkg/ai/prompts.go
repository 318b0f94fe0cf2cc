package ai

import "strings"

const starterInstructions = "You are an AI communication assistant designed to help users initiate and maintain conversations within online hobby communities. " +
	"The user is new to the community or shy and needs help engaging with other members."

const supportInstructions = "You are a friendly and supportive AI assistant named 'Sparky' for the BondOverHobbies app. " +
	"Your goal is to help users with their mental well-being and to improve their communication skills. " +
	"You are NOT a licensed therapist. If the user seems to be in serious distress, gently advise them to seek help from a qualified professional " +
	"and provide a resource like the National Suicide Prevention Lifeline: 988. " +
	"Based on the conversation, provide a short, kind, and encouraging response. " +
	"You can offer simple tips for managing loneliness, starting conversations, or dealing with social anxiety. " +
	"Keep it positive and brief, but provide a complete and helpful thought."

const hobbyInstructions = "You are an expert hobby recommendation agent. " +
	"Given a user's interests and preferences, you will recommend a list of hobbies that the user might enjoy."

const (
	starterFormat = `Respond with a JSON object of the form {"prompt": "<suggested message>"}.`
	supportFormat = `Respond with a JSON object of the form {"response": "<your reply>"}.`
	hobbyFormat   = `Respond with a JSON object of the form {"hobbies": "<comma-separated list of hobbies>"}.`
)

func starterPrompt(input StarterInput) string {
	var b strings.Builder
	b.WriteString("The community is focused on the following topic: ")
	b.WriteString(input.Topic)
	b.WriteString("\nThe user is interested in: ")
	b.WriteString(input.Interests)
	b.WriteString("\n\nHere's the previous message history (if any):\n")
	for _, line := range input.History {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("\nBased on the topic, the user's interests, and the previous message history, ")
	b.WriteString("suggest a message or conversation prompt that the user can use to start or continue a conversation. ")
	b.WriteString("Make it sound friendly and engaging. Try to ask a question in the prompt to encourage response.")
	return b.String()
}

func hobbyPrompt(interests string) string {
	return "Interests: " + interests + "\nHobbies:"
}

// splitHobbies turns a comma-separated list into trimmed, non-empty names.
func splitHobbies(list string) []string {
	parts := strings.Split(list, ",")
	hobbies := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		hobbies = append(hobbies, name)
	}
	return hobbies
}
