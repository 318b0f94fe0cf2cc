package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 500
)

// MessageCursor bounds a backwards page read. The zero value starts at the
// newest message; BeforeID breaks ties between messages sharing Before.
type MessageCursor struct {
	Before   time.Time
	BeforeID uint
}

// MessageRepository persists the append-only channel logs.
type MessageRepository interface {
	Append(ctx context.Context, message *models.ChannelMessage) error
	ListByChannel(ctx context.Context, communityID, channel string, cursor MessageCursor, limit int) ([]models.ChannelMessage, error)
	ListAfter(ctx context.Context, communityID, channel string, afterSeq uint64, limit int) ([]models.ChannelMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository constructs a channel message repository backed by GORM.
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Append assigns the next channel sequence number and the timestamp while
// holding the community row, so both grow with commit order on every node.
func (r *messageRepository) Append(ctx context.Context, message *models.ChannelMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var community models.Community
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").Where("id = ?", message.CommunityID).First(&community).Error; err != nil {
			return err
		}

		var last models.ChannelMessage
		if err := tx.Where("community_id = ? AND channel = ?", message.CommunityID, message.Channel).
			Order("seq DESC").Limit(1).Find(&last).Error; err != nil {
			return err
		}

		createdAt := time.Now().UTC().Truncate(time.Microsecond)
		if !createdAt.After(last.CreatedAt) {
			createdAt = last.CreatedAt.UTC().Add(time.Microsecond)
		}

		message.Seq = last.Seq + 1
		message.CreatedAt = createdAt
		return tx.Create(message).Error
	})
}

// ListByChannel returns the newest messages before the cursor in ascending
// (created_at, id) order.
func (r *messageRepository) ListByChannel(ctx context.Context, communityID, channel string, cursor MessageCursor, limit int) ([]models.ChannelMessage, error) {
	limit = clampPage(limit)

	query := r.db.WithContext(ctx).Where("community_id = ? AND channel = ?", communityID, channel)
	switch {
	case cursor.Before.IsZero():
	case cursor.BeforeID > 0:
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.Before, cursor.Before, cursor.BeforeID)
	default:
		query = query.Where("created_at < ?", cursor.Before)
	}

	var messages []models.ChannelMessage
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListAfter returns messages with a sequence number above afterSeq in
// sequence order.
func (r *messageRepository) ListAfter(ctx context.Context, communityID, channel string, afterSeq uint64, limit int) ([]models.ChannelMessage, error) {
	var messages []models.ChannelMessage
	err := r.db.WithContext(ctx).
		Where("community_id = ? AND channel = ? AND seq > ?", communityID, channel, afterSeq).
		Order("seq ASC").
		Limit(clampPage(limit)).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func clampPage(limit int) int {
	if limit <= 0 {
		return defaultMessagePage
	}
	if limit > maxMessagePage {
		return maxMessagePage
	}
	return limit
}
