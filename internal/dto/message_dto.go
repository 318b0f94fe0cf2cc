package dto

import (
	"time"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

// Attachment references a blob already stored by the upload endpoint.
type Attachment struct {
	URL      string `json:"url" validate:"required,url,max=1024"`
	Type     string `json:"type" validate:"required,oneof=image video"`
	FileName string `json:"file_name" validate:"omitempty,max=255"`
}

// SendMessageRequest is the payload to append a message to a channel.
type SendMessageRequest struct {
	Text       string      `json:"text" validate:"max=4000"`
	Attachment *Attachment `json:"attachment,omitempty" validate:"omitempty"`
}

// MessageHistoryQuery filters a channel log read.
type MessageHistoryQuery struct {
	CommunityID string     `validate:"required,max=128"`
	Channel     string     `validate:"required,max=128"`
	Before      *time.Time `validate:"-"`
	BeforeID    uint       `validate:"-"`
	Limit       int        `validate:"omitempty,min=1,max=200"`
}

// MessageResponse is the serialized representation of a channel message.
type MessageResponse struct {
	ID           uint        `json:"id"`
	Seq          uint64      `json:"seq"`
	CommunityID  string      `json:"community_id"`
	Channel      string      `json:"channel"`
	Text         string      `json:"text"`
	SenderID     string      `json:"sender_id"`
	SenderName   string      `json:"sender_name"`
	SenderAvatar string      `json:"sender_avatar"`
	Attachment   *Attachment `json:"attachment,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// MessageAck acknowledges an accepted send without echoing the message body.
type MessageAck struct {
	ID        uint      `json:"id"`
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// ChannelFrame is one WebSocket frame sent to channel subscribers.
type ChannelFrame struct {
	Type     string            `json:"type"`
	Messages []MessageResponse `json:"messages,omitempty"`
	Message  *MessageResponse  `json:"message,omitempty"`
	Ack      *MessageAck       `json:"ack,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// Channel frame types.
const (
	FrameSnapshot = "snapshot"
	FrameMessage  = "message"
	FrameAck      = "ack"
	FrameError    = "error"
)

// NewMessageResponse converts a model into a DTO.
func NewMessageResponse(message models.ChannelMessage) MessageResponse {
	response := MessageResponse{
		ID:           message.ID,
		Seq:          message.Seq,
		CommunityID:  message.CommunityID,
		Channel:      message.Channel,
		Text:         message.Text,
		SenderID:     message.SenderID,
		SenderName:   message.SenderName,
		SenderAvatar: message.SenderAvatar,
		Timestamp:    message.CreatedAt,
	}
	if message.AttachmentURL != "" {
		response.Attachment = &Attachment{
			URL:      message.AttachmentURL,
			Type:     message.AttachmentType,
			FileName: message.AttachmentFileName,
		}
	}
	return response
}

// NewMessageResponseSlice converts a slice of models into DTOs.
func NewMessageResponseSlice(messages []models.ChannelMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(messages))
	for _, message := range messages {
		out = append(out, NewMessageResponse(message))
	}
	return out
}
