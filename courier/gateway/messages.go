package gateway

import (
	"context"
	"fmt"
	"path"

	"courier/courier/types"
	"courier/courier/utils/logging"

	"go.uber.org/zap"
)

const (
	opPostMessage      = "post_message"
	opPostImageMessage = "post_image_message"
	opSubscribeRecent  = "subscribe_recent_messages"
)

// PostMessage appends a chat message from the current principal. Empty
// strings count as absent. Returns nil when nothing was written.
func (g *Gateway) PostMessage(ctx context.Context, text, imageURL *string) *types.DocumentRef {
	defer logging.LogDuration(ctx, "gateway.PostMessage")()

	text, imageURL = nonEmpty(text), nonEmpty(imageURL)
	if text == nil && imageURL == nil {
		g.fail(opPostMessage, ErrEmptyMessage)
		return nil
	}
	p := g.principal.Load()
	if p == nil {
		g.fail(opPostMessage, ErrNoPrincipal)
		return nil
	}

	data := map[string]any{
		types.FieldSenderName: p.DisplayName,
		types.FieldSenderID:   p.ID,
		types.FieldCreatedAt:  types.ServerTimestamp,
	}
	if p.AvatarURL != "" {
		data[types.FieldSenderAvatar] = p.AvatarURL
	}
	if text != nil {
		data[types.FieldText] = *text
	}
	if imageURL != nil {
		data[types.FieldImageURL] = *imageURL
	}

	ref, err := g.documents.Add(ctx, types.MessagesCollection, data)
	if err != nil {
		g.fail(opPostMessage, fmt.Errorf("write message: %w", err), zap.String("uid", p.ID))
		return nil
	}
	g.ok(opPostMessage)
	g.log.Info("message posted", zap.String("uid", p.ID), zap.String("id", ref.ID))
	return &ref
}

func (g *Gateway) PostTextMessage(ctx context.Context, text string) *types.DocumentRef {
	return g.PostMessage(ctx, &text, nil)
}

// SubscribeToRecentMessages streams the newest RecentMessageLimit messages,
// newest first. Every emission is the whole window. The channel closes when
// ctx is done, or immediately if the query cannot be started.
func (g *Gateway) SubscribeToRecentMessages(ctx context.Context) <-chan []types.MessageEntry {
	out := make(chan []types.MessageEntry)
	snaps, err := g.documents.WatchQuery(ctx, types.Query{
		Collection: types.MessagesCollection,
		OrderBy:    types.FieldCreatedAt,
		Descending: true,
		Limit:      RecentMessageLimit,
	})
	if err != nil {
		g.fail(opSubscribeRecent, fmt.Errorf("watch messages: %w", err))
		close(out)
		return out
	}
	g.ok(opSubscribeRecent)

	go func() {
		defer close(out)
		for snap := range snaps {
			n := len(snap)
			if n > RecentMessageLimit {
				n = RecentMessageLimit
			}
			window := make([]types.MessageEntry, n)
			for i := range window {
				window[i] = types.MessageFromDocument(snap[i])
			}
			select {
			case out <- window:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// PostImageMessage uploads file under "<uid>/<name>" and posts a message
// carrying its retrieval URL once the upload completes.
func (g *Gateway) PostImageMessage(ctx context.Context, file types.File) *types.DocumentRef {
	p := g.principal.Load()
	if p == nil {
		g.fail(opPostImageMessage, ErrNoPrincipal)
		return nil
	}
	if file.Name == "" || file.Body == nil {
		g.fail(opPostImageMessage, ErrNoFile)
		return nil
	}

	key := p.ID + "/" + path.Base(file.Name)
	url, ok := g.upload(ctx, opPostImageMessage, key, file, file.ContentType)
	if !ok {
		return nil
	}
	g.ok(opPostImageMessage)
	return g.PostMessage(ctx, nil, &url)
}

func nonEmpty(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
