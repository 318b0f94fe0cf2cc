package cloudinary

import (
	"regexp"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)

	store, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret", Folder: "/boh/attachments/"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "boh/attachments", store.folder)
}

func TestBuildPublicID(t *testing.T) {
	pattern := regexp.MustCompile(`^my-board-[0-9a-f]{8}$`)
	require.Regexp(t, pattern, buildPublicID("My Board.png"))
	require.Regexp(t, regexp.MustCompile(`^attachment-[0-9a-f]{8}$`), buildPublicID("???.mp4"))
	require.NotEqual(t, buildPublicID("clip.mp4"), buildPublicID("clip.mp4"))
}
