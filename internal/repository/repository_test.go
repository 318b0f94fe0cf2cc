package repository

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/bondoverhobbies/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Credential{}, &models.User{}, &models.Community{}, &models.ChannelMessage{}, &models.UploadRecord{}))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, uid string) models.User {
	t.Helper()
	user := models.User{UID: uid, DisplayName: "Member " + uid, Hobbies: []string{}, Communities: []string{}}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestUserRepositoryCreateIfAbsentKeepsFirstRecord(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	created, err := repo.CreateIfAbsent(ctx, &models.User{UID: "u1", DisplayName: "First"})
	require.NoError(t, err)
	require.True(t, created)

	created, err = repo.CreateIfAbsent(ctx, &models.User{UID: "u1", DisplayName: "Second"})
	require.NoError(t, err)
	require.False(t, created)

	user, err := repo.FindByUID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "First", user.DisplayName)
	require.NotNil(t, user.Hobbies)
	require.Empty(t, user.Hobbies)
}

func TestUserRepositoryAddHobbyIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	seedUser(t, db, "u1")
	ctx := context.Background()

	_, err := repo.AddHobby(ctx, "u1", "Pottery")
	require.NoError(t, err)
	user, err := repo.AddHobby(ctx, "u1", "Pottery")
	require.NoError(t, err)
	require.Equal(t, []string{"Pottery"}, []string(user.Hobbies))

	stored, err := repo.FindByUID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []string{"Pottery"}, []string(stored.Hobbies))
}

func TestUserRepositoryFindMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	_, err := repo.FindByUID(context.Background(), "ghost")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCredentialRepositoryFindByEmailNormalizes(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Credential{UID: "u1", Email: "ana@example.com", PasswordHash: "hash"}))

	credential, err := repo.FindByEmail(ctx, "  ANA@example.com ")
	require.NoError(t, err)
	require.Equal(t, "u1", credential.UID)

	byUID, err := repo.FindByUID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "ana@example.com", byUID.Email)

	require.Error(t, repo.Create(ctx, &models.Credential{UID: "u2", Email: "ana@example.com", PasswordHash: "hash"}))
}

func TestCommunityRepositoryJoinCreatesCommunityWithMember(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommunityRepository(db)
	seedUser(t, db, "u1")

	community, user, err := repo.Join(context.Background(), "u1", models.Community{ID: "pottery", Name: "Pottery"})
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, []string(community.Members))
	require.Equal(t, []string{models.DefaultChannel}, []string(community.Channels))
	require.Equal(t, []string{"pottery"}, []string(user.Communities))
	require.Equal(t, []string{"Pottery"}, []string(user.Hobbies))

	stored, err := repo.FindByID(context.Background(), "pottery")
	require.NoError(t, err)
	require.False(t, community.CreatedAt.IsZero())
	require.WithinDuration(t, stored.CreatedAt, community.CreatedAt, time.Millisecond)
	require.Equal(t, []string{"u1"}, []string(stored.Members))
	require.Equal(t, []string{"general"}, []string(stored.Channels))
}

func TestCommunityRepositoryJoinExistingAddsMemberOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommunityRepository(db)
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")
	ctx := context.Background()

	_, _, err := repo.Join(ctx, "u1", models.Community{ID: "chess", Name: "Chess"})
	require.NoError(t, err)

	// The seed name is ignored once the community exists.
	community, user, err := repo.Join(ctx, "u2", models.Community{ID: "chess", Name: "Other"})
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, []string(community.Members))
	require.Equal(t, "Chess", community.Name)
	require.Equal(t, []string{"Chess"}, []string(user.Hobbies))

	community, _, err = repo.Join(ctx, "u2", models.Community{ID: "chess", Name: "Chess"})
	require.NoError(t, err)
	require.Equal(t, []string{"u1", "u2"}, []string(community.Members))

	stored, err := NewUserRepository(db).FindByUID(ctx, "u2")
	require.NoError(t, err)
	require.Equal(t, []string{"chess"}, []string(stored.Communities))
}

func TestCommunityRepositoryJoinRequiresUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommunityRepository(db)

	_, _, err := repo.Join(context.Background(), "ghost", models.Community{ID: "chess", Name: "Chess"})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindByID(context.Background(), "chess")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCommunityRepositoryAppendChannel(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommunityRepository(db)
	seedUser(t, db, "u1")
	ctx := context.Background()

	_, _, err := repo.Join(ctx, "u1", models.Community{ID: "chess", Name: "Chess"})
	require.NoError(t, err)

	community, appended, err := repo.AppendChannel(ctx, "chess", "openings")
	require.NoError(t, err)
	require.True(t, appended)
	require.Equal(t, []string{"general", "openings"}, []string(community.Channels))

	_, appended, err = repo.AppendChannel(ctx, "chess", "openings")
	require.NoError(t, err)
	require.False(t, appended)

	_, _, err = repo.AppendChannel(ctx, "missing", "openings")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCommunityRepositoryListByIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommunityRepository(db)
	require.NoError(t, db.Create(&models.Community{ID: "b", Name: "Baking", Members: []string{}, Channels: []string{"general"}}).Error)
	require.NoError(t, db.Create(&models.Community{ID: "a", Name: "Archery", Members: []string{}, Channels: []string{"general"}}).Error)
	require.NoError(t, db.Create(&models.Community{ID: "c", Name: "Cycling", Members: []string{}, Channels: []string{"general"}}).Error)

	items, err := repo.ListByIDs(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Archery", items[0].Name)

	empty, err := repo.ListByIDs(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func seedCommunity(t *testing.T, db *gorm.DB, id string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Community{ID: id, Name: id, Members: []string{}, Channels: []string{"general", "openings"}}).Error)
}

func TestMessageRepositoryListByChannelOrdersAscending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range []string{"one", "two", "three"} {
		message := models.ChannelMessage{CommunityID: "chess", Channel: "general", Seq: uint64(i + 1), Text: text, SenderID: "u1", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, db.Create(&message).Error)
	}
	tie := models.ChannelMessage{CommunityID: "chess", Channel: "general", Seq: 4, Text: "three-b", SenderID: "u2", CreatedAt: base.Add(2 * time.Minute)}
	require.NoError(t, db.Create(&tie).Error)
	other := models.ChannelMessage{CommunityID: "chess", Channel: "openings", Seq: 1, Text: "elsewhere", SenderID: "u1", CreatedAt: base}
	require.NoError(t, db.Create(&other).Error)

	messages, err := repo.ListByChannel(ctx, "chess", "general", MessageCursor{}, 0)
	require.NoError(t, err)
	require.Len(t, messages, 4)
	texts := make([]string, 0, len(messages))
	for _, message := range messages {
		texts = append(texts, message.Text)
	}
	require.Equal(t, []string{"one", "two", "three", "three-b"}, texts)

	older, err := repo.ListByChannel(ctx, "chess", "general", MessageCursor{Before: base.Add(2 * time.Minute)}, 1)
	require.NoError(t, err)
	require.Len(t, older, 1)
	require.Equal(t, "two", older[0].Text)
}

func TestMessageRepositoryCursorKeepsTimestampTies(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var ids []uint
	for i, text := range []string{"a", "b", "c"} {
		message := models.ChannelMessage{CommunityID: "chess", Channel: "general", Seq: uint64(i + 1), Text: text, SenderID: "u1", CreatedAt: at}
		require.NoError(t, db.Create(&message).Error)
		ids = append(ids, message.ID)
	}

	page, err := repo.ListByChannel(ctx, "chess", "general", MessageCursor{}, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "c", page[0].Text)

	rest, err := repo.ListByChannel(ctx, "chess", "general", MessageCursor{Before: page[0].CreatedAt, BeforeID: page[0].ID}, 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	require.Equal(t, ids[0], rest[0].ID)
	require.Equal(t, ids[1], rest[1].ID)
}

func TestMessageRepositoryAppendAssignsSequence(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	seedCommunity(t, db, "chess")

	var appended []models.ChannelMessage
	for _, text := range []string{"hello", "hi back", "gg"} {
		message := models.ChannelMessage{CommunityID: "chess", Channel: "general", Text: text, SenderID: "u1"}
		require.NoError(t, repo.Append(ctx, &message))
		appended = append(appended, message)
	}
	other := models.ChannelMessage{CommunityID: "chess", Channel: "openings", Text: "e4", SenderID: "u1"}
	require.NoError(t, repo.Append(ctx, &other))

	for i, message := range appended {
		require.Equal(t, uint64(i+1), message.Seq)
		if i > 0 {
			require.True(t, message.CreatedAt.After(appended[i-1].CreatedAt))
		}
	}
	require.Equal(t, uint64(1), other.Seq)

	after, err := repo.ListAfter(ctx, "chess", "general", 1, 10)
	require.NoError(t, err)
	require.Len(t, after, 2)
	require.Equal(t, "hi back", after[0].Text)
	require.Equal(t, "gg", after[1].Text)

	missing := models.ChannelMessage{CommunityID: "nowhere", Channel: "general", Text: "lost"}
	require.ErrorIs(t, repo.Append(ctx, &missing), gorm.ErrRecordNotFound)
}

func TestMessageRepositoryAppendStaysMonotonicWhenClockLags(t *testing.T) {
	db := setupTestDB(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()
	seedCommunity(t, db, "chess")

	// A message stamped by a node whose clock runs ahead.
	ahead := time.Now().UTC().Add(time.Hour).Truncate(time.Microsecond)
	require.NoError(t, db.Create(&models.ChannelMessage{CommunityID: "chess", Channel: "general", Seq: 1, Text: "hello", CreatedAt: ahead}).Error)

	next := models.ChannelMessage{CommunityID: "chess", Channel: "general", Text: "hi back"}
	require.NoError(t, repo.Append(ctx, &next))
	require.Equal(t, uint64(2), next.Seq)
	require.True(t, next.CreatedAt.After(ahead))
}

func TestUploadRepositoryFindByChecksum(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUploadRepository(db)
	ctx := context.Background()

	record := models.UploadRecord{UserID: "u1", FileName: "cat.png", URL: "https://cdn/cat.png", MimeType: "image/png", SizeBytes: 10, Checksum: "abc"}
	require.NoError(t, repo.Create(ctx, &record))

	found, err := repo.FindByChecksum(ctx, "u1", "abc")
	require.NoError(t, err)
	require.Equal(t, "https://cdn/cat.png", found.URL)

	_, err = repo.FindByChecksum(ctx, "u2", "abc")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
