package types

import "time"

const (
	MessagesCollection = "messages"
	TokensCollection   = "fcmTokens"
)

// ChatMessage field names as stored in the messages collection.
const (
	FieldSenderName   = "name"
	FieldSenderAvatar = "profilePicUrl"
	FieldCreatedAt    = "timestamp"
	FieldSenderID     = "uid"
	FieldText         = "text"
	FieldImageURL     = "imageUrl"
)

type ChatMessage struct {
	SenderName      *string   `json:"name,omitempty"`
	SenderAvatarURL *string   `json:"profilePicUrl,omitempty"`
	CreatedAt       time.Time `json:"timestamp"`
	SenderID        *string   `json:"uid,omitempty"`
	Text            *string   `json:"text,omitempty"`
	ImageURL        *string   `json:"imageUrl,omitempty"`
}

// MessageEntry is a chat message keyed by its document id.
type MessageEntry struct {
	ID      string      `json:"id"`
	Message ChatMessage `json:"message"`
}

// MessageFromDocument decodes the stored fields of a messages document.
// Unknown or mistyped fields are ignored.
func MessageFromDocument(doc Document) MessageEntry {
	str := func(key string) *string {
		if v, ok := doc.Data[key].(string); ok {
			return &v
		}
		return nil
	}
	msg := ChatMessage{
		SenderName:      str(FieldSenderName),
		SenderAvatarURL: str(FieldSenderAvatar),
		SenderID:        str(FieldSenderID),
		Text:            str(FieldText),
		ImageURL:        str(FieldImageURL),
	}
	switch ts := doc.Data[FieldCreatedAt].(type) {
	case string:
		if t, err := ParseTimestamp(ts); err == nil {
			msg.CreatedAt = t
		}
	case time.Time:
		msg.CreatedAt = ts
	}
	return MessageEntry{ID: doc.ID, Message: msg}
}
