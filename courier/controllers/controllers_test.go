package controllers

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/courier/sources/docstore"
	"courier/courier/sources/identity"
	"courier/courier/sources/psql"
	"courier/courier/sources/psql/dao"
	"courier/courier/sources/pubsub"
	"courier/courier/sources/push"
	"courier/courier/sources/storage"
	"courier/courier/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDB(t *testing.T) *psql.Database {
	t.Helper()
	db, err := psql.Open(context.Background(), sqlite.Open(filepath.Join(t.TempDir(), "courier.db")), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestAuthController_LoginCreatesThenReusesUser(t *testing.T) {
	db := openDB(t)
	tokens := identity.NewTokens("secret", time.Hour)
	ctrl := NewAuthController(dao.NewUserDAO(db.DB), tokens, zap.NewNop())
	ctx := context.Background()

	first, err := ctrl.Login(ctx, types.LoginRequest{Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "ada", first.Principal.DisplayName)
	assert.NotEmpty(t, first.Principal.ID)

	verified, err := tokens.Verify(first.Token)
	require.NoError(t, err)
	assert.Equal(t, first.Principal.ID, verified.ID)

	name, avatar := "Ada Lovelace", "https://img.test/ada.png"
	second, err := ctrl.Login(ctx, types.LoginRequest{Username: "ada", DisplayName: &name, AvatarURL: &avatar})
	require.NoError(t, err)
	assert.Equal(t, first.Principal.ID, second.Principal.ID)
	assert.Equal(t, "Ada Lovelace", second.Principal.DisplayName)
	assert.Equal(t, avatar, second.Principal.AvatarURL)
}

func TestAuthController_RejectsBlankUsername(t *testing.T) {
	ctrl := NewAuthController(dao.NewUserDAO(openDB(t).DB), identity.NewTokens("secret", time.Hour), zap.NewNop())
	_, err := ctrl.Login(context.Background(), types.LoginRequest{Username: "  "})
	assert.ErrorIs(t, err, ErrInvalidUsername)
}

func TestUserController_UpdateProfile(t *testing.T) {
	db := openDB(t)
	users := dao.NewUserDAO(db.DB)
	ctx := context.Background()
	created, err := users.CreateUser(ctx, "bob", "Bob", nil)
	require.NoError(t, err)

	ctrl := NewUserController(users)
	name := "Robert"
	profile, err := ctrl.UpdateProfile(ctx, created.ID, types.UpdateProfileRequest{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Robert", profile.DisplayName)

	again, err := ctrl.GetUser(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Robert", again.DisplayName)

	_, err = ctrl.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

type recordingBlobs struct{ keys []string }

func (r *recordingBlobs) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string, _ storage.Progress) (int64, error) {
	r.keys = append(r.keys, key)
	return io.Copy(io.Discard, body)
}

func (r *recordingBlobs) URL(_ context.Context, key string) (string, error) {
	return "mem://" + key, nil
}

func TestGatewayController_PostImageNeedsValidCredential(t *testing.T) {
	tokens := identity.NewTokens("secret", time.Hour)
	store := docstore.NewMemoryStore(pubsub.NewLocal(), zap.NewNop())
	blobs := &recordingBlobs{}
	ctrl := NewGatewayController(tokens, store, blobs, push.NewMemoryState(), nil, zap.NewNop())
	ctx := context.Background()

	_, err := ctrl.PostImage(ctx, "garbage", types.File{Name: "a.png", Body: strings.NewReader("x")})
	assert.Error(t, err)

	token, _, err := tokens.Mint(types.Principal{ID: "u1", DisplayName: "Ada"})
	require.NoError(t, err)
	ref, err := ctrl.PostImage(ctx, token, types.File{Name: "a.png", Size: 1, Body: strings.NewReader("x")})
	require.NoError(t, err)
	assert.Equal(t, []string{"u1/a.png"}, blobs.keys)

	doc, err := store.Get(ctx, ref.Path)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "mem://u1/a.png", doc.Data[types.FieldImageURL])
}

func TestGatewayController_OpenGeneratesInstallation(t *testing.T) {
	ctrl := NewGatewayController(identity.NewTokens("secret", time.Hour), docstore.NewMemoryStore(pubsub.NewLocal(), zap.NewNop()), &recordingBlobs{}, push.NewMemoryState(), nil, zap.NewNop())
	client, err := ctrl.Open(context.Background(), ClientOptions{})
	require.NoError(t, err)
	defer client.Close()
	assert.Nil(t, client.CurrentPrincipal())
}
