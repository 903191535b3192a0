package routes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"courier/courier/controllers"
	"courier/courier/gateway"
	"courier/courier/sources/identity"
	"courier/courier/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Client frame ops.
const (
	OpWhoAmI              = "whoami"
	OpSignIn              = "sign_in"
	OpSignOut             = "sign_out"
	OpPostMessage         = "post_message"
	OpPostImageMessage    = "post_image_message"
	OpUploadBlob          = "upload_blob"
	OpSubscribeRecent     = "subscribe_recent_messages"
	OpReadDocument        = "read_document"
	OpReadCollection      = "read_collection"
	OpUnsubscribe         = "unsubscribe"
	OpWriteDocument       = "write_document"
	OpDeleteDocument      = "delete_document"
	OpRequestPermission   = "request_notification_permission"
	OpPermissionAnswer    = "permission_answer"
	OpRegisterDeviceToken = "register_device_token"
)

// Server frame types.
const (
	FrameResult           = "result"
	FrameNavigate         = "navigate"
	FrameMessages         = "messages"
	FrameDocument         = "document"
	FrameSnapshot         = "snapshot"
	FramePermissionPrompt = "permission_prompt"
	FrameError            = "error"
)

type ClientFrame struct {
	Op          string         `json:"op"`
	ID          string         `json:"id,omitempty"`
	Credential  string         `json:"credential,omitempty"`
	Text        *string        `json:"text,omitempty"`
	ImageURL    *string        `json:"imageUrl,omitempty"`
	Path        string         `json:"path,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	File        *FileFrame     `json:"file,omitempty"`
	ContentType string         `json:"contentType,omitempty"`
	Granted     bool           `json:"granted,omitempty"`
}

type FileFrame struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

func (f *FileFrame) file() types.File {
	return types.File{
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        int64(len(f.Data)),
		Body:        bytes.NewReader(f.Data),
	}
}

// ServerFrame carries results and pushed updates. Payload holds the value of
// a live stream: messages, a document (absent when it does not exist) or a
// snapshot.
type ServerFrame struct {
	Type      string             `json:"type"`
	ID        string             `json:"id,omitempty"`
	View      string             `json:"view,omitempty"`
	Ref       *types.DocumentRef `json:"ref,omitempty"`
	URL       string             `json:"url,omitempty"`
	Principal *types.Principal   `json:"principal,omitempty"`
	Payload   any                `json:"payload,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// GatewayRoutes serves the gateway over a websocket at /ws, one Gateway per
// connection. An optional "token" query parameter signs the connection in
// up front; "installation" names the push installation.
func GatewayRoutes(ctrl *controllers.GatewayController, tokens *identity.Tokens, insecureOrigins bool, log *zap.Logger) chi.Router {
	r := chi.NewRouter()
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		credential := r.URL.Query().Get("token")
		if credential != "" {
			if _, err := tokens.Verify(credential); err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: insecureOrigins})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusInternalError, "internal error")
		// file frames carry their bytes inline
		conn.SetReadLimit(maxMultipartMemory)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &wsClient{
			ctx:     ctx,
			conn:    conn,
			log:     log,
			answers: make(chan bool, 1),
			ops:     make(chan ClientFrame, 32),
			subs:    make(map[string]context.CancelFunc),
		}
		client, err := ctrl.Open(ctx, controllers.ClientOptions{
			Credential:   credential,
			Installation: r.URL.Query().Get("installation"),
			Navigator: gateway.NavigatorFunc(func(view string) {
				c.send(ServerFrame{Type: FrameNavigate, View: view})
			}),
			Prompt: c.prompt,
		})
		if err != nil {
			conn.Close(websocket.StatusPolicyViolation, "sign in failed")
			return
		}
		c.client = client
		defer client.Close()

		if err := c.serve(ctx); err != nil && websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
			log.Warn("websocket closed", zap.Error(err))
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})
	return r
}

type wsClient struct {
	// ctx lives as long as the connection. Every write uses it: a write
	// whose context ends closes the whole websocket.
	ctx    context.Context
	conn   *websocket.Conn
	client *controllers.Client
	log    *zap.Logger

	writeMu sync.Mutex
	answers chan bool
	ops     chan ClientFrame

	subsMu sync.Mutex
	subs   map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// serve reads frames until the connection drops. Ops run one at a time in
// arrival order; permission answers bypass the queue since an op may be
// waiting for one.
func (c *wsClient) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		c.wg.Wait()
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case f := <-c.ops:
				c.handle(ctx, f)
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var f ClientFrame
		if err := wsjson.Read(ctx, c.conn, &f); err != nil {
			return err
		}
		if f.Op == OpPermissionAnswer {
			select {
			case <-c.answers:
			default:
			}
			c.answers <- f.Granted
			continue
		}
		select {
		case c.ops <- f:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *wsClient) handle(ctx context.Context, f ClientFrame) {
	gw := c.client
	result := ServerFrame{Type: FrameResult, ID: f.ID}

	switch f.Op {
	case OpWhoAmI:
		result.Principal = gw.CurrentPrincipal()
	case OpSignIn:
		gw.SignIn(ctx, f.Credential)
		result.Principal = gw.CurrentPrincipal()
	case OpSignOut:
		gw.SignOut(ctx)
	case OpPostMessage:
		result.Ref = gw.PostMessage(ctx, f.Text, f.ImageURL)
	case OpPostImageMessage:
		if f.File == nil {
			result.Ref = gw.PostImageMessage(ctx, types.File{})
			break
		}
		result.Ref = gw.PostImageMessage(ctx, f.File.file())
	case OpUploadBlob:
		var files []types.File
		if f.File != nil {
			files = append(files, f.File.file())
		}
		result.URL = gw.UploadBlob(ctx, f.Path, files, f.ContentType)
	case OpWriteDocument, OpDeleteDocument:
		if err := checkWritable(f.Path); err != nil {
			c.send(ServerFrame{Type: FrameError, ID: f.ID, Error: err.Error()})
			return
		}
		if f.Op == OpWriteDocument {
			gw.WriteDocument(ctx, f.Path, f.Data)
		} else {
			gw.DeleteDocument(ctx, f.Path)
		}
	case OpRequestPermission:
		gw.RequestNotificationPermission(ctx)
	case OpRegisterDeviceToken:
		gw.RegisterDeviceToken(ctx)
	case OpSubscribeRecent:
		subCtx := c.subscribe(ctx, f.ID)
		forward(c, subCtx, f.ID, FrameMessages, gw.SubscribeToRecentMessages(subCtx))
	case OpReadDocument:
		subCtx := c.subscribe(ctx, f.ID)
		forward(c, subCtx, f.ID, FrameDocument, gw.ReadDocument(subCtx, f.Path))
	case OpReadCollection:
		subCtx := c.subscribe(ctx, f.ID)
		forward(c, subCtx, f.ID, FrameSnapshot, gw.ReadCollection(subCtx, f.Path))
	case OpUnsubscribe:
		c.unsubscribe(f.ID)
	default:
		c.send(ServerFrame{Type: FrameError, ID: f.ID, Error: "unknown op " + f.Op})
		return
	}
	c.send(result)
}

// subscribe registers a stream under id, replacing any earlier one.
func (c *wsClient) subscribe(ctx context.Context, id string) context.Context {
	subCtx, cancel := context.WithCancel(ctx)
	c.subsMu.Lock()
	if prev, ok := c.subs[id]; ok {
		prev()
	}
	c.subs[id] = cancel
	c.subsMu.Unlock()
	return subCtx
}

func (c *wsClient) unsubscribe(id string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	if cancel, ok := c.subs[id]; ok {
		cancel()
		delete(c.subs, id)
	}
}

// forward pushes stream values as frames until subCtx ends. An ended
// stream stops quietly without touching the connection.
func forward[T any](c *wsClient, subCtx context.Context, id, frameType string, stream <-chan T) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for v := range stream {
			if subCtx.Err() != nil {
				continue
			}
			if err := c.send(ServerFrame{Type: frameType, ID: id, Payload: v}); err != nil {
				return
			}
		}
	}()
}

// prompt asks the client for push permission and waits for its answer.
func (c *wsClient) prompt(ctx context.Context) (bool, error) {
	select {
	case <-c.answers:
	default:
	}
	if err := c.send(ServerFrame{Type: FramePermissionPrompt}); err != nil {
		return false, err
	}
	select {
	case granted := <-c.answers:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (c *wsClient) send(f ServerFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	err := wsjson.Write(c.ctx, c.conn, f)
	if err != nil && c.ctx.Err() == nil {
		c.log.Debug("websocket write failed", zap.String("type", f.Type), zap.Error(err))
	}
	return err
}

// Collections the gateway writes itself. Clients reach them only through
// the message and device token ops, which stamp the sender and the time.
var reservedCollections = map[string]bool{
	types.MessagesCollection: true,
	types.TokensCollection:   true,
}

var errReservedCollection = errors.New("collection is written by the gateway only")

func checkWritable(path string) error {
	collection, _, err := types.SplitPath(path)
	if err != nil {
		// the gateway logs malformed paths itself
		return nil
	}
	if reservedCollections[collection] {
		return fmt.Errorf("%w: %s", errReservedCollection, collection)
	}
	return nil
}
