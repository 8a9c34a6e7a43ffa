package avatar_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/avatar"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/backend/memory"
	"github.com/Gamma101/web-chat/internal/chat"
	"github.com/Gamma101/web-chat/internal/model"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 32))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func seedUser(t *testing.T, b *memory.Backend, id string) {
	t.Helper()
	_, err := b.Insert(context.Background(), model.CollUsers, backend.Doc{
		"id": id, "email": id + "@example.com", "username": id, "avatar_url": "",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
}

func TestSetAvatarUploadsAndUpdatesRecord(t *testing.T) {
	b := memory.New()
	seedUser(t, b, "u1")
	svc := avatar.NewService(b, b, zap.NewNop().Sugar())

	url, err := svc.Set(context.Background(), "u1", testPNG(t))
	if err != nil {
		t.Fatalf("set avatar: %v", err)
	}
	if url == "" {
		t.Fatalf("expected avatar url")
	}
	doc, err := b.SelectOne(context.Background(), model.CollUsers, backend.Where(backend.C("id", "u1")))
	if err != nil {
		t.Fatalf("select user: %v", err)
	}
	if model.UserFromDoc(doc).AvatarURL != url {
		t.Fatalf("expected avatar_url %q on record", url)
	}
	if _, ok := b.Blob(chat.BlobPath(url)); !ok {
		t.Fatalf("expected avatar blob to exist")
	}
}

func TestSetAvatarReplacesOldBlob(t *testing.T) {
	b := memory.New()
	seedUser(t, b, "u1")
	svc := avatar.NewService(b, b, zap.NewNop().Sugar())
	ctx := context.Background()

	first, err := svc.Set(ctx, "u1", testPNG(t))
	if err != nil {
		t.Fatalf("first set: %v", err)
	}
	second, err := svc.Set(ctx, "u1", testPNG(t))
	if err != nil {
		t.Fatalf("second set: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh object name per upload")
	}
	if _, ok := b.Blob(chat.BlobPath(first)); ok {
		t.Fatalf("expected the replaced blob to be removed")
	}
	if _, ok := b.Blob(chat.BlobPath(second)); !ok {
		t.Fatalf("expected the new blob to exist")
	}
}

func TestSetAvatarRejectsGarbage(t *testing.T) {
	b := memory.New()
	seedUser(t, b, "u1")
	svc := avatar.NewService(b, b, zap.NewNop().Sugar())
	if _, err := svc.Set(context.Background(), "u1", []byte("not an image")); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRemoveAvatar(t *testing.T) {
	b := memory.New()
	seedUser(t, b, "u1")
	svc := avatar.NewService(b, b, zap.NewNop().Sugar())
	ctx := context.Background()

	url, err := svc.Set(ctx, "u1", testPNG(t))
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := svc.Remove(ctx, "u1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	doc, _ := b.SelectOne(ctx, model.CollUsers, backend.Where(backend.C("id", "u1")))
	if model.UserFromDoc(doc).AvatarURL != "" {
		t.Fatalf("expected avatar_url cleared")
	}
	if _, ok := b.Blob(chat.BlobPath(url)); ok {
		t.Fatalf("expected blob removed")
	}
}
