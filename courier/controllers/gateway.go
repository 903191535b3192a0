package controllers

import (
	"context"
	"fmt"

	"courier/courier/gateway"
	"courier/courier/sources/docstore"
	"courier/courier/sources/identity"
	"courier/courier/sources/push"
	"courier/courier/types"
	"courier/courier/utils/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ClientOptions describe one client of the gateway: a websocket connection
// or a single authenticated HTTP request.
type ClientOptions struct {
	// Credential, when set, signs the client in before the gateway starts.
	Credential string
	// Installation keys push permission and token; generated when empty.
	Installation string
	Navigator    gateway.Navigator
	Prompt       push.Prompter
}

// GatewayController hands out one Gateway per client, all sharing the same
// backends.
type GatewayController struct {
	tokens    *identity.Tokens
	documents docstore.Store
	blobs     gateway.Blobs
	pushState push.State
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewGatewayController(tokens *identity.Tokens, documents docstore.Store, blobs gateway.Blobs, pushState push.State, m *metrics.Metrics, log *zap.Logger) *GatewayController {
	return &GatewayController{
		tokens:    tokens,
		documents: documents,
		blobs:     blobs,
		pushState: pushState,
		metrics:   m,
		log:       log,
	}
}

// Client is a gateway bound to its own identity session.
type Client struct {
	*gateway.Gateway
	session *identity.Session
}

func (c *Client) Close() {
	c.Gateway.Close()
	c.session.Stop()
}

// Open starts a gateway for one client. The caller must Close it.
func (c *GatewayController) Open(ctx context.Context, opts ClientOptions) (*Client, error) {
	installation := opts.Installation
	if installation == "" {
		installation = uuid.NewString()
	}
	log := c.log.With(zap.String("installation", installation))

	session := identity.NewSession(c.tokens, log)
	if opts.Credential != "" {
		if _, err := session.SignIn(ctx, opts.Credential); err != nil {
			return nil, fmt.Errorf("sign in: %w", err)
		}
	}

	gw := gateway.New(gateway.Deps{
		Identity:  session,
		Documents: c.documents,
		Blobs:     c.blobs,
		Push:      push.NewPlatform(c.pushState, installation, opts.Prompt, log),
		Navigator: opts.Navigator,
		Metrics:   c.metrics,
	}, log)
	return &Client{Gateway: gw, session: session}, nil
}

// PostImage posts file as an image message from the holder of credential.
func (c *GatewayController) PostImage(ctx context.Context, credential string, file types.File) (*types.DocumentRef, error) {
	gw, err := c.Open(ctx, ClientOptions{Credential: credential})
	if err != nil {
		return nil, err
	}
	defer gw.Close()
	ref := gw.PostImageMessage(ctx, file)
	if ref == nil {
		return nil, fmt.Errorf("image message not posted")
	}
	return ref, nil
}

// UploadBlob stores file at path and returns its retrieval URL.
func (c *GatewayController) UploadBlob(ctx context.Context, credential, path string, file types.File) (string, error) {
	gw, err := c.Open(ctx, ClientOptions{Credential: credential})
	if err != nil {
		return "", err
	}
	defer gw.Close()
	url := gw.UploadBlob(ctx, path, []types.File{file}, file.ContentType)
	if url == "" {
		return "", fmt.Errorf("upload to %s failed", path)
	}
	return url, nil
}
