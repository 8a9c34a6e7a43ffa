package model

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Gamma101/web-chat/internal/backend"
)

const (
	CollMessages = "messages"
	CollUsers    = "users"
)

// Message is one entry of a two-party thread. IDs are backend-assigned
// int64s in creation order. ReplyID, when set, points at an earlier message
// (best effort, not enforced here).
type Message struct {
	ID         int64     `bson:"id" json:"id"`
	CreatedAt  time.Time `bson:"created_at" json:"created_at"`
	Text       string    `bson:"text" json:"text"`
	ImageURL   string    `bson:"image_url" json:"image_url"`
	IsEdited   bool      `bson:"is_edited" json:"is_edited"`
	SenderID   string    `bson:"sender_id" json:"sender_id"`
	ReceiverID string    `bson:"receiver_id" json:"receiver_id"`
	ReplyID    *int64    `bson:"reply_id,omitempty" json:"reply_id,omitempty"`
}

// User's ID equals the auth subject id. Username is the display name for
// directory search; an empty username falls back to an initials label.
type User struct {
	ID           string `bson:"id" json:"id"`
	Email        string `bson:"email" json:"email"`
	Username     string `bson:"username" json:"username"`
	AvatarURL    string `bson:"avatar_url" json:"avatar_url"`
	PasswordHash string `bson:"password_hash" json:"-"`
}

// Initials derives the fallback avatar label: the first two characters of
// the username, or of the email when no username is set, uppercased.
func (u User) Initials() string {
	src := u.Username
	if src == "" {
		src = u.Email
	}
	r := []rune(src)
	if len(r) > 2 {
		r = r[:2]
	}
	return strings.ToUpper(string(r))
}

func (m Message) Doc() backend.Doc {
	d := backend.Doc{
		"text":        m.Text,
		"image_url":   m.ImageURL,
		"is_edited":   m.IsEdited,
		"sender_id":   m.SenderID,
		"receiver_id": m.ReceiverID,
	}
	if m.ID != 0 {
		d["id"] = m.ID
	}
	if !m.CreatedAt.IsZero() {
		d["created_at"] = m.CreatedAt
	}
	if m.ReplyID != nil {
		d["reply_id"] = *m.ReplyID
	}
	return d
}

func MessageFromDoc(d backend.Doc) Message {
	m := Message{
		ID:         docInt64(d, "id"),
		CreatedAt:  docTime(d, "created_at"),
		Text:       docString(d, "text"),
		ImageURL:   docString(d, "image_url"),
		IsEdited:   docBool(d, "is_edited"),
		SenderID:   docString(d, "sender_id"),
		ReceiverID: docString(d, "receiver_id"),
	}
	if _, ok := d["reply_id"]; ok {
		id := docInt64(d, "reply_id")
		m.ReplyID = &id
	}
	return m
}

func (u User) Doc() backend.Doc {
	return backend.Doc{
		"id":            u.ID,
		"email":         u.Email,
		"username":      u.Username,
		"avatar_url":    u.AvatarURL,
		"password_hash": u.PasswordHash,
	}
}

func UserFromDoc(d backend.Doc) User {
	return User{
		ID:           docString(d, "id"),
		Email:        docString(d, "email"),
		Username:     docString(d, "username"),
		AvatarURL:    docString(d, "avatar_url"),
		PasswordHash: docString(d, "password_hash"),
	}
}

func docString(d backend.Doc, key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

func docBool(d backend.Doc, key string) bool {
	if b, ok := d[key].(bool); ok {
		return b
	}
	return false
}

func docInt64(d backend.Doc, key string) int64 {
	switch n := d[key].(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func docTime(d backend.Doc, key string) time.Time {
	switch t := d[key].(type) {
	case time.Time:
		return t
	case primitive.DateTime:
		return t.Time()
	}
	return time.Time{}
}
