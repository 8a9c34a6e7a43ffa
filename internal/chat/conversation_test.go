package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/backend/memory"
	"github.com/Gamma101/web-chat/internal/chat"
	"github.com/Gamma101/web-chat/internal/model"
)

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newStore(t *testing.T, b *memory.Backend, self, peer string) *chat.ConversationStore {
	t.Helper()
	return chat.NewConversationStore(b, b, b, testLogger(), self, peer)
}

func seedMessage(t *testing.T, b *memory.Backend, sender, receiver, text string, at time.Time) int64 {
	t.Helper()
	d, err := b.Insert(context.Background(), model.CollMessages, backend.Doc{
		"text":        text,
		"image_url":   "",
		"is_edited":   false,
		"sender_id":   sender,
		"receiver_id": receiver,
		"created_at":  at,
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return d["id"].(int64)
}

func TestLoadReturnsPairBothDirectionsSorted(t *testing.T) {
	b := memory.New()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	// storage order deliberately differs from creation order
	seedMessage(t, b, "bob", "alice", "second", base.Add(time.Minute))
	seedMessage(t, b, "alice", "bob", "first", base)
	seedMessage(t, b, "alice", "carol", "other pair", base)
	seedMessage(t, b, "carol", "bob", "other pair too", base)
	seedMessage(t, b, "alice", "bob", "third", base.Add(2*time.Minute))

	s := newStore(t, b, "alice", "bob")
	msgs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Fatalf("position %d: expected %q, got %q", i, w, msgs[i].Text)
		}
	}
	if s.State() != chat.StateLoaded {
		t.Fatalf("expected Loaded state, got %v", s.State())
	}
}

func TestLoadWithMissingIDStaysIdle(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.State() != chat.StateIdle {
		t.Fatalf("expected Idle, got %v", s.State())
	}
	if b.SelectCalls(model.CollMessages) != 0 {
		t.Fatalf("expected no fetch with a missing id")
	}
}

func TestSendBlankIsNoOp(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "bob")
	err := s.Send(context.Background(), "   ", nil, "", nil)
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	docs, _ := b.Select(context.Background(), model.CollMessages, backend.Filter{}, "")
	if len(docs) != 0 {
		t.Fatalf("expected no write, got %d docs", len(docs))
	}
}

func TestSendTextOnly(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "bob")
	if err := s.Send(context.Background(), "hello", nil, "", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Text != "hello" || m.IsEdited || m.ImageURL != "" {
		t.Fatalf("unexpected message %+v", m)
	}
	if m.SenderID != "alice" || m.ReceiverID != "bob" {
		t.Fatalf("unexpected pair %s -> %s", m.SenderID, m.ReceiverID)
	}
}

func TestSendWithImageUploadsFirst(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "bob")
	if err := s.Send(context.Background(), "", []byte{0x89, 0x50}, "image/png", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, _ := s.Load(context.Background())
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ImageURL == "" {
		t.Fatalf("expected image url to be set")
	}
	if _, ok := b.Blob(chat.BlobPath(msgs[0].ImageURL)); !ok {
		t.Fatalf("expected blob to be retrievable")
	}
}

func TestEditChangesOnlyTextAndFlag(t *testing.T) {
	b := memory.New()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	id := seedMessage(t, b, "alice", "bob", "old", at)

	s := newStore(t, b, "alice", "bob")
	if err := s.Edit(context.Background(), id, "new text"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	msgs, _ := s.Load(context.Background())
	m := msgs[0]
	if m.Text != "new text" || !m.IsEdited {
		t.Fatalf("expected edited message, got %+v", m)
	}
	if m.ID != id || !m.CreatedAt.Equal(at) || m.SenderID != "alice" {
		t.Fatalf("edit must not change id, created_at or sender: %+v", m)
	}
}

func TestEditBlankRejected(t *testing.T) {
	b := memory.New()
	id := seedMessage(t, b, "alice", "bob", "old", time.Now().UTC())
	s := newStore(t, b, "alice", "bob")
	if err := s.Edit(context.Background(), id, "  "); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteRemovesMessageAndBlob(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "bob")
	if err := s.Send(context.Background(), "pic", []byte{1, 2}, "image/png", nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	msgs, _ := s.Load(context.Background())
	m := msgs[0]
	path := chat.BlobPath(m.ImageURL)

	if err := s.Delete(context.Background(), m.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	msgs, _ = s.Load(context.Background())
	if len(msgs) != 0 {
		t.Fatalf("expected empty thread after delete, got %d", len(msgs))
	}
	if _, ok := b.Blob(path); ok {
		t.Fatalf("expected blob to be gone after delete")
	}
}

func TestDeleteMissingMessage(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "bob")
	if err := s.Delete(context.Background(), 42); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveReplyMemoized(t *testing.T) {
	b := memory.New()
	id := seedMessage(t, b, "alice", "bob", "original", time.Now().UTC())
	s := newStore(t, b, "alice", "bob")

	before := b.SelectCalls(model.CollMessages)
	m1, ok := s.ResolveReply(context.Background(), id)
	if !ok || m1.Text != "original" {
		t.Fatalf("expected resolved reply, got ok=%v m=%+v", ok, m1)
	}
	m2, ok := s.ResolveReply(context.Background(), id)
	if !ok || m2.Text != "original" {
		t.Fatalf("expected cached reply, got ok=%v", ok)
	}
	fetches := b.SelectCalls(model.CollMessages) - before
	if fetches != 1 {
		t.Fatalf("expected exactly 1 backend fetch, got %d", fetches)
	}
}

func TestResolveReplyMissingStaysAbsent(t *testing.T) {
	b := memory.New()
	s := newStore(t, b, "alice", "bob")
	if _, ok := s.ResolveReply(context.Background(), 999); ok {
		t.Fatalf("expected unresolved reply")
	}
	if len(s.Replies()) != 0 {
		t.Fatalf("missing reply must not be cached")
	}
}

func TestLoadWarmsReplyCache(t *testing.T) {
	b := memory.New()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := seedMessage(t, b, "alice", "bob", "question", at)
	_, err := b.Insert(context.Background(), model.CollMessages, backend.Doc{
		"text":        "answer",
		"image_url":   "",
		"is_edited":   false,
		"sender_id":   "bob",
		"receiver_id": "alice",
		"reply_id":    orig,
		"created_at":  at.Add(time.Minute),
	})
	if err != nil {
		t.Fatalf("seed reply: %v", err)
	}

	s := newStore(t, b, "alice", "bob")
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	replies := s.Replies()
	if got, ok := replies[orig]; !ok || got.Text != "question" {
		t.Fatalf("expected reply cache warmed with original, got %+v", replies)
	}
}

func TestChangeNotificationRefreshesOpenView(t *testing.T) {
	b := memory.New()
	ctx := context.Background()

	// Y has the conversation open; X only writes.
	y := newStore(t, b, "bob", "alice")
	var updates int
	y.OnUpdate(func(msgs []model.Message) { updates++ })
	if err := y.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer y.Close()

	x := newStore(t, b, "alice", "bob")
	if err := x.Send(ctx, "ping", nil, "", nil); err != nil {
		t.Fatalf("send: %v", err)
	}

	msgs := y.Messages()
	if len(msgs) != 1 || msgs[0].Text != "ping" {
		t.Fatalf("expected Y to observe the message without a manual load, got %+v", msgs)
	}
	if updates < 2 { // initial load + notification-driven reload
		t.Fatalf("expected at least 2 updates, got %d", updates)
	}
}

func TestClosedStoreDropsLateResults(t *testing.T) {
	b := memory.New()
	seedMessage(t, b, "alice", "bob", "m", time.Now().UTC())
	s := newStore(t, b, "alice", "bob")
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(s.Messages()) != 1 {
		t.Fatalf("expected initial load to apply, got %d messages", len(s.Messages()))
	}
	s.Close()

	// new writes no longer reach the closed view
	seedMessage(t, b, "alice", "bob", "late", time.Now().UTC())
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("load after close: %v", err)
	}
	if len(s.Messages()) != 1 {
		t.Fatalf("closed store must keep its last state, got %d messages", len(s.Messages()))
	}
	s.Close() // second close is a no-op
}
