package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"courier/courier/sources/docstore"
	"courier/courier/sources/identity"
	"courier/courier/sources/pubsub"
	"courier/courier/sources/push"
	"courier/courier/sources/storage"
	"courier/courier/types"
	"courier/courier/utils/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobs) Upload(_ context.Context, key string, body io.Reader, size int64, contentType string, progress storage.Progress) (int64, error) {
	if f.failPut != nil {
		return 0, f.failPut
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	if progress != nil {
		progress(int64(len(raw)), size)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	f.types[key] = contentType
	return int64(len(raw)), nil
}

func (f *fakeBlobs) URL(_ context.Context, key string) (string, error) {
	return "https://blobs.test/" + key, nil
}

type navRecorder struct {
	mu    sync.Mutex
	views []string
}

func (n *navRecorder) Navigate(view string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.views = append(n.views, view)
}

func (n *navRecorder) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.views...)
}

// brokenDocuments fails every call.
type brokenDocuments struct{}

var errBackend = errors.New("backend unavailable")

func (brokenDocuments) Add(context.Context, string, map[string]any) (types.DocumentRef, error) {
	return types.DocumentRef{}, errBackend
}
func (brokenDocuments) Set(context.Context, string, map[string]any, bool) error { return errBackend }
func (brokenDocuments) Delete(context.Context, string) error                    { return errBackend }
func (brokenDocuments) WatchDocument(context.Context, string) (<-chan *types.Document, error) {
	return nil, errBackend
}
func (brokenDocuments) WatchQuery(context.Context, types.Query) (<-chan types.Snapshot, error) {
	return nil, errBackend
}

type harness struct {
	gw      *Gateway
	store   *docstore.MemoryStore
	blobs   *fakeBlobs
	tokens  *identity.Tokens
	session *identity.Session
	nav     *navRecorder
	metrics *metrics.Metrics
	logs    *observer.ObservedLogs
	answer  atomic.Bool
}

func newHarness(t *testing.T, docs Documents) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	h := &harness{
		store:   docstore.NewMemoryStore(pubsub.NewLocal(), log),
		blobs:   newFakeBlobs(),
		tokens:  identity.NewTokens("test-secret", time.Hour),
		nav:     &navRecorder{},
		metrics: metrics.New(),
		logs:    logs,
	}
	var tick atomic.Int64
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	h.store.SetClock(func() time.Time {
		return base.Add(time.Duration(tick.Add(1)) * time.Millisecond)
	})
	h.session = identity.NewSession(h.tokens, log)
	if docs == nil {
		docs = h.store
	}
	prompt := func(context.Context) (bool, error) { return h.answer.Load(), nil }

	h.gw = New(Deps{
		Identity:  h.session,
		Documents: docs,
		Blobs:     h.blobs,
		Push:      push.NewPlatform(push.NewMemoryState(), "install-1", prompt, log),
		Navigator: h.nav,
		Metrics:   h.metrics,
	}, log)
	t.Cleanup(h.gw.Close)
	return h
}

func (h *harness) signIn(t *testing.T, p types.Principal) {
	t.Helper()
	token, _, err := h.tokens.Mint(p)
	require.NoError(t, err)
	h.gw.SignIn(context.Background(), token)
	require.NotNil(t, h.gw.CurrentPrincipal())
}

func (h *harness) messages(t *testing.T) types.Snapshot {
	t.Helper()
	snap, err := h.store.Query(context.Background(), types.Query{Collection: types.MessagesCollection})
	require.NoError(t, err)
	return snap
}

func (h *harness) count(op, outcome string) float64 {
	return testutil.ToFloat64(h.metrics.Counter(op, outcome))
}

var ada = types.Principal{ID: "u1", DisplayName: "Ada", AvatarURL: "https://img.test/ada.png"}

func strPtr(s string) *string { return &s }

func TestSignIn_CachesPrincipalAndNavigatesHome(t *testing.T) {
	h := newHarness(t, nil)
	assert.Nil(t, h.gw.CurrentPrincipal())

	h.signIn(t, ada)
	assert.Equal(t, "u1", h.gw.CurrentPrincipal().ID)
	assert.Equal(t, []string{ViewHome}, h.nav.seen())
	assert.Equal(t, 1.0, h.count(opSignIn, metrics.OutcomeOK))
}

func TestSignIn_CancelledStaysPut(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.SignIn(context.Background(), "")
	h.gw.SignIn(context.Background(), "not-a-token")

	assert.Nil(t, h.gw.CurrentPrincipal())
	assert.Empty(t, h.nav.seen())
	assert.Equal(t, 2.0, h.count(opSignIn, metrics.OutcomeBackend))
	assert.Equal(t, 2, h.logs.FilterMessage("sign_in failed").Len())
}

// lapsedIdentity signs in a principal whose session has already lapsed by
// the time it would be published, so Watch never reports it.
type lapsedIdentity struct {
	expiresIn time.Duration
}

func (l lapsedIdentity) SignIn(context.Context, string) (*types.Principal, error) {
	p := ada
	p.ExpiresAt = time.Now().Add(l.expiresIn)
	return &p, nil
}

func (lapsedIdentity) SignOut(context.Context) error { return nil }

func (lapsedIdentity) Watch(ctx context.Context) <-chan *types.Principal {
	ch := make(chan *types.Principal, 1)
	ch <- nil
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func TestSignIn_UnpublishedPrincipalReturnsAtExpiry(t *testing.T) {
	nav := &navRecorder{}
	gw := New(Deps{
		Identity:  lapsedIdentity{expiresIn: 50 * time.Millisecond},
		Documents: docstore.NewMemoryStore(pubsub.NewLocal(), zap.NewNop()),
		Blobs:     newFakeBlobs(),
		Navigator: nav,
		Metrics:   metrics.New(),
	}, zap.NewNop())
	t.Cleanup(gw.Close)

	done := make(chan struct{})
	go func() {
		defer close(done)
		gw.SignIn(context.Background(), "token")
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sign in waited past the session expiry")
	}
	assert.Nil(t, gw.CurrentPrincipal())
	assert.Equal(t, []string{ViewHome}, nav.seen())
}

func TestSignOut_ClearsPrincipalAndNavigatesToLogin(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)

	h.gw.SignOut(context.Background())
	assert.Nil(t, h.gw.CurrentPrincipal())
	assert.Equal(t, []string{ViewHome, ViewLogin}, h.nav.seen())
}

func TestPostMessage_WithoutPrincipalWritesNothing(t *testing.T) {
	h := newHarness(t, nil)

	ref := h.gw.PostMessage(context.Background(), strPtr("hello"), nil)
	assert.Nil(t, ref)
	assert.Empty(t, h.messages(t))
	assert.Equal(t, 1, h.logs.FilterMessage("post_message skipped").Len())
	assert.Equal(t, 1.0, h.count(opPostMessage, metrics.OutcomeValidation))
}

func TestPostMessage_RequiresTextOrImage(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)

	assert.Nil(t, h.gw.PostMessage(context.Background(), nil, nil))
	assert.Nil(t, h.gw.PostMessage(context.Background(), strPtr(""), strPtr("")))
	assert.Empty(t, h.messages(t))
	assert.Equal(t, 2.0, h.count(opPostMessage, metrics.OutcomeValidation))
}

func TestPostTextMessage_WritesSenderFieldsAndServerTime(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)

	ref := h.gw.PostTextMessage(context.Background(), "hello")
	require.NotNil(t, ref)

	snap := h.messages(t)
	require.Len(t, snap, 1)
	doc := snap[0]
	assert.Equal(t, ref.ID, doc.ID)
	assert.Equal(t, "messages/"+ref.ID, ref.Path)
	assert.Equal(t, "Ada", doc.Data[types.FieldSenderName])
	assert.Equal(t, "u1", doc.Data[types.FieldSenderID])
	assert.Equal(t, "https://img.test/ada.png", doc.Data[types.FieldSenderAvatar])
	assert.Equal(t, "hello", doc.Data[types.FieldText])
	assert.NotContains(t, doc.Data, types.FieldImageURL)

	entry := types.MessageFromDocument(doc)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), entry.Message.CreatedAt.Truncate(time.Second))
}

func TestPostMessage_OmitsMissingAvatar(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, types.Principal{ID: "u2", DisplayName: "Bob"})

	require.NotNil(t, h.gw.PostMessage(context.Background(), nil, strPtr("https://img.test/x.png")))
	doc := h.messages(t)[0]
	assert.NotContains(t, doc.Data, types.FieldSenderAvatar)
	assert.NotContains(t, doc.Data, types.FieldText)
	assert.Equal(t, "https://img.test/x.png", doc.Data[types.FieldImageURL])
}

func TestPostMessage_BackendFailureIsLogged(t *testing.T) {
	h := newHarness(t, brokenDocuments{})
	h.signIn(t, ada)

	assert.Nil(t, h.gw.PostTextMessage(context.Background(), "hello"))
	failures := h.logs.FilterMessage("post_message failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	assert.Equal(t, 1.0, h.count(opPostMessage, metrics.OutcomeBackend))
}

func TestPostImageMessage_UploadsThenPostsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)

	ref := h.gw.PostImageMessage(context.Background(), types.File{
		Name:        "cat.png",
		ContentType: "image/png",
		Size:        4,
		Body:        strings.NewReader("meow"),
	})
	require.NotNil(t, ref)

	assert.Equal(t, []byte("meow"), h.blobs.objects["u1/cat.png"])
	assert.Equal(t, "image/png", h.blobs.types["u1/cat.png"])

	snap := h.messages(t)
	require.Len(t, snap, 1)
	assert.Equal(t, "https://blobs.test/u1/cat.png", snap[0].Data[types.FieldImageURL])
	assert.NotContains(t, snap[0].Data, types.FieldText)
}

func TestPostImageMessage_StripsDirectoriesFromName(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)

	require.NotNil(t, h.gw.PostImageMessage(context.Background(), types.File{Name: "../../etc/cat.png", Size: -1, Body: strings.NewReader("x")}))
	assert.Contains(t, h.blobs.objects, "u1/cat.png")
}

func TestPostImageMessage_FailedUploadPostsNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)
	h.blobs.failPut = errBackend

	assert.Nil(t, h.gw.PostImageMessage(context.Background(), types.File{Name: "cat.png", Body: strings.NewReader("meow")}))
	assert.Empty(t, h.messages(t))
	assert.Equal(t, 1.0, h.count(opPostImageMessage, metrics.OutcomeBackend))
}

func TestPostImageMessage_WithoutPrincipal(t *testing.T) {
	h := newHarness(t, nil)

	assert.Nil(t, h.gw.PostImageMessage(context.Background(), types.File{Name: "cat.png", Body: strings.NewReader("meow")}))
	assert.Empty(t, h.blobs.objects)
}

func TestSubscribeToRecentMessages_NewestFiftyFirst(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)
	for i := 0; i < 60; i++ {
		require.NotNil(t, h.gw.PostTextMessage(context.Background(), fmt.Sprintf("m%02d", i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := h.gw.SubscribeToRecentMessages(ctx)

	window := receive(t, stream)
	require.Len(t, window, RecentMessageLimit)
	assert.Equal(t, "m59", *window[0].Message.Text)
	assert.Equal(t, "m10", *window[49].Message.Text)
	for i := 1; i < len(window); i++ {
		assert.True(t, window[i-1].Message.CreatedAt.After(window[i].Message.CreatedAt))
	}

	require.NotNil(t, h.gw.PostTextMessage(context.Background(), "m60"))
	for {
		window = receive(t, stream)
		if *window[0].Message.Text == "m60" {
			break
		}
	}
	assert.Len(t, window, RecentMessageLimit)
	assert.Equal(t, "m11", *window[49].Message.Text)

	cancel()
	for range stream {
	}
}

func TestSubscribeToRecentMessages_BackendFailureClosesStream(t *testing.T) {
	h := newHarness(t, brokenDocuments{})

	_, ok := <-h.gw.SubscribeToRecentMessages(context.Background())
	assert.False(t, ok)
	assert.Equal(t, 1.0, h.count(opSubscribeRecent, metrics.OutcomeBackend))
}

func TestDocuments_WriteReadDelete(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	docs := h.gw.ReadDocument(ctx, "rooms/general")
	assert.Nil(t, receive(t, docs))

	h.gw.WriteDocument(ctx, "rooms/general", map[string]any{"topic": "hi", "owner": "u1"})
	h.gw.WriteDocument(ctx, "rooms/general", map[string]any{"topic": "hello"})

	var doc *types.Document
	for doc == nil || doc.Data["topic"] != "hello" {
		doc = receive(t, docs)
	}
	assert.Equal(t, "u1", doc.Data["owner"])

	all := receive(t, h.gw.ReadCollection(ctx, "rooms"))
	require.Len(t, all, 1)
	assert.Equal(t, "general", all[0].ID)

	h.gw.DeleteDocument(ctx, "rooms/general")
	for doc != nil {
		doc = receive(t, docs)
	}
}

func TestDocuments_BadPathIsLogged(t *testing.T) {
	h := newHarness(t, nil)

	h.gw.WriteDocument(context.Background(), "rooms", map[string]any{"a": 1})
	assert.Equal(t, 1.0, h.count(opWriteDocument, metrics.OutcomeBackend))

	_, ok := <-h.gw.ReadCollection(context.Background(), "rooms/general")
	assert.False(t, ok)
}

func TestUploadBlob(t *testing.T) {
	h := newHarness(t, nil)

	url := h.gw.UploadBlob(context.Background(), "avatars/u1.png", []types.File{
		{Name: "u1.png", Size: 3, Body: strings.NewReader("png")},
		{Name: "ignored.png", Size: 3, Body: strings.NewReader("nop")},
	}, "image/png")
	assert.Equal(t, "https://blobs.test/avatars/u1.png", url)
	assert.Equal(t, "image/png", h.blobs.types["avatars/u1.png"])
	assert.Len(t, h.blobs.objects, 1)

	assert.Empty(t, h.gw.UploadBlob(context.Background(), "avatars/none.png", nil, "image/png"))
	assert.Equal(t, 1.0, h.count(opUploadBlob, metrics.OutcomeValidation))
}

func TestNotifications_GrantedRegistersToken(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)
	h.answer.Store(true)

	h.gw.RequestNotificationPermission(context.Background())
	h.gw.RegisterDeviceToken(context.Background())
	h.gw.RegisterDeviceToken(context.Background())

	snap, err := h.store.Query(context.Background(), types.Query{Collection: types.TokensCollection})
	require.NoError(t, err)
	require.Len(t, snap, 1)
	assert.Equal(t, map[string]any{types.FieldSenderID: "u1"}, snap[0].Data)
	assert.Equal(t, 2.0, h.count(opRegisterToken, metrics.OutcomeOK))
}

func TestNotifications_DeniedRegistersNothing(t *testing.T) {
	h := newHarness(t, nil)
	h.signIn(t, ada)

	h.gw.RequestNotificationPermission(context.Background())
	assert.Equal(t, 1.0, h.count(opRequestPermission, metrics.OutcomeDenied))
	assert.Equal(t, 1, h.logs.FilterMessage("unable to get permission to notify").Len())

	h.gw.RegisterDeviceToken(context.Background())
	snap, err := h.store.Query(context.Background(), types.Query{Collection: types.TokensCollection})
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.Equal(t, 1.0, h.count(opRegisterToken, metrics.OutcomeValidation))
}

func TestRegisterDeviceToken_WithoutPrincipal(t *testing.T) {
	h := newHarness(t, nil)
	h.answer.Store(true)
	h.gw.RequestNotificationPermission(context.Background())

	h.gw.RegisterDeviceToken(context.Background())
	assert.Equal(t, 1.0, h.count(opRegisterToken, metrics.OutcomeValidation))
}

func TestClose_IsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	h.gw.Close()
	h.gw.Close()
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "stream closed")
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
	}
	var zero T
	return zero
}
