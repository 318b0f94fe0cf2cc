package models

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultChannel is created together with every community.
const DefaultChannel = "general"

// Attachment types accepted on channel messages.
const (
	AttachmentTypeImage = "image"
	AttachmentTypeVideo = "video"
)

// Community groups members around a hobby; its ID is the slug of its name.
type Community struct {
	ID            string                      `gorm:"primaryKey;size:128" json:"id"`
	Name          string                      `gorm:"size:255;not null" json:"name"`
	Description   string                      `gorm:"type:text" json:"description"`
	Interests     string                      `gorm:"type:text" json:"interests"`
	AvatarURL     string                      `gorm:"size:512" json:"avatar_url"`
	BackgroundURL string                      `gorm:"size:512" json:"background_url"`
	Members       datatypes.JSONSlice[string] `json:"members"`
	Channels      datatypes.JSONSlice[string] `json:"channels"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
}

// AddMember inserts the uid when absent and reports whether the set changed.
func (c *Community) AddMember(uid string) bool {
	var changed bool
	c.Members, changed = addUnique(c.Members, uid)
	return changed
}

// HasMember reports whether uid belongs to the community.
func (c *Community) HasMember(uid string) bool {
	return containsValue(c.Members, uid)
}

// HasChannel reports whether the channel slug exists in the community.
func (c *Community) HasChannel(slug string) bool {
	return containsValue(c.Channels, slug)
}

// ChannelMessage is a single immutable entry in a community channel log.
// Seq numbers the messages of one channel from 1 without gaps.
type ChannelMessage struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	CommunityID        string    `gorm:"size:128;not null;index:idx_channel_log,priority:1;uniqueIndex:idx_channel_seq,priority:1" json:"community_id"`
	Channel            string    `gorm:"size:128;not null;index:idx_channel_log,priority:2;uniqueIndex:idx_channel_seq,priority:2" json:"channel"`
	Seq                uint64    `gorm:"not null;uniqueIndex:idx_channel_seq,priority:3" json:"seq"`
	Text               string    `gorm:"type:text" json:"text"`
	SenderID           string    `gorm:"size:64;index" json:"sender_id"`
	SenderName         string    `gorm:"size:255" json:"sender_name"`
	SenderAvatar       string    `gorm:"size:512" json:"sender_avatar"`
	AttachmentURL      string    `gorm:"size:1024" json:"attachment_url"`
	AttachmentType     string    `gorm:"size:16" json:"attachment_type"`
	AttachmentFileName string    `gorm:"size:255" json:"attachment_file_name"`
	CreatedAt          time.Time `gorm:"index:idx_channel_log,priority:3" json:"created_at"`
}

// UploadRecord stores metadata about attachments pushed to the blob store.
type UploadRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:64;index" json:"user_id"`
	FileName  string    `gorm:"size:255;not null" json:"file_name"`
	URL       string    `gorm:"size:512;not null" json:"url"`
	MimeType  string    `gorm:"size:128;not null" json:"mime_type"`
	SizeBytes int64     `gorm:"not null" json:"size_bytes"`
	Checksum  string    `gorm:"size:128;index" json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}
