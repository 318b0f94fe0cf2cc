package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

// CommunityRepository persists communities and the membership relation.
type CommunityRepository interface {
	FindByID(ctx context.Context, id string) (models.Community, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Community, error)
	Join(ctx context.Context, uid string, seed models.Community) (models.Community, models.User, error)
	AppendChannel(ctx context.Context, id, slug string) (models.Community, bool, error)
}

type communityRepository struct {
	db *gorm.DB
}

// NewCommunityRepository constructs a community repository backed by GORM.
func NewCommunityRepository(db *gorm.DB) CommunityRepository {
	return &communityRepository{db: db}
}

func (r *communityRepository) FindByID(ctx context.Context, id string) (models.Community, error) {
	var community models.Community
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&community).Error; err != nil {
		return models.Community{}, err
	}
	return community, nil
}

func (r *communityRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Community, error) {
	if len(ids) == 0 {
		return []models.Community{}, nil
	}

	var communities []models.Community
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("name ASC").Find(&communities).Error; err != nil {
		return nil, err
	}
	return communities, nil
}

// Join updates both sides of the membership relation in one transaction.
// When the community does not exist it is inserted with the joining member
// already in place; an insert that loses a race to another joiner falls back
// to adding the member to the winner's record.
func (r *communityRepository) Join(ctx context.Context, uid string, seed models.Community) (models.Community, models.User, error) {
	var (
		community models.Community
		user      models.User
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("uid = ?", uid).First(&user).Error; err != nil {
			return err
		}

		record, created, err := r.createWithMember(tx, uid, seed)
		if err != nil {
			return err
		}

		if created {
			community = record
		} else {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", seed.ID).First(&community).Error; err != nil {
				return err
			}
			if community.AddMember(uid) {
				if err := tx.Model(&models.Community{}).Where("id = ?", community.ID).Update("members", community.Members).Error; err != nil {
					return err
				}
			}
		}

		communityAdded := user.AddCommunity(community.ID)
		hobbyAdded := user.AddHobby(community.Name)
		if !communityAdded && !hobbyAdded {
			return nil
		}

		return tx.Model(&models.User{}).Where("uid = ?", uid).Updates(map[string]interface{}{
			"hobbies":     user.Hobbies,
			"communities": user.Communities,
		}).Error
	})
	if err != nil {
		return models.Community{}, models.User{}, err
	}

	return community, user, nil
}

func (r *communityRepository) createWithMember(tx *gorm.DB, uid string, seed models.Community) (models.Community, bool, error) {
	var existing int64
	if err := tx.Model(&models.Community{}).Where("id = ?", seed.ID).Count(&existing).Error; err != nil {
		return models.Community{}, false, err
	}
	if existing > 0 {
		return models.Community{}, false, nil
	}

	record := seed
	record.Members = []string{uid}
	if len(record.Channels) == 0 {
		record.Channels = []string{models.DefaultChannel}
	}

	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if result.Error != nil {
		return models.Community{}, false, result.Error
	}
	return record, result.RowsAffected > 0, nil
}

// AppendChannel adds the slug to the community's channel list and reports
// whether it was appended; false means the slug already existed.
func (r *communityRepository) AppendChannel(ctx context.Context, id, slug string) (models.Community, bool, error) {
	var (
		community models.Community
		appended  bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&community).Error; err != nil {
			return err
		}
		if community.HasChannel(slug) {
			return nil
		}

		community.Channels = append(community.Channels, slug)
		appended = true
		return tx.Model(&models.Community{}).Where("id = ?", id).Update("channels", community.Channels).Error
	})
	if err != nil {
		return models.Community{}, false, err
	}

	return community, appended, nil
}
