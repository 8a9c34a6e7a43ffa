// Package chat holds the conversation synchronization core: materialized
// message threads and the live user directory, kept consistent by
// re-fetching wholesale on every backend change notification.
package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/model"
)

// ConversationStore materializes the ordered thread between self and peer.
// It never patches incrementally: every change notification replaces the
// whole list, trading efficiency for consistency. One store owns one feed
// subscription and one reply cache; both die with Close.
type ConversationStore struct {
	records backend.Records
	blobs   backend.BlobStore
	feed    backend.ChangeFeed
	log     *zap.SugaredLogger

	self string
	peer string

	mu       sync.Mutex
	state    State
	msgs     []model.Message
	replies  map[int64]model.Message
	gen      uint64
	closed   bool
	sub      backend.Subscription
	onUpdate func([]model.Message)
}

func NewConversationStore(records backend.Records, blobs backend.BlobStore, feed backend.ChangeFeed, log *zap.SugaredLogger, self, peer string) *ConversationStore {
	return &ConversationStore{
		records: records,
		blobs:   blobs,
		feed:    feed,
		log:     log,
		self:    self,
		peer:    peer,
		replies: make(map[int64]model.Message),
	}
}

// OnUpdate sets the callback invoked with the fresh thread after every
// successful load. Set it before Open.
func (s *ConversationStore) OnUpdate(fn func([]model.Message)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Open subscribes to the messages feed and performs the initial load. With
// either id missing the store stays Idle and fetches nothing.
func (s *ConversationStore) Open(ctx context.Context) error {
	if s.self == "" || s.peer == "" {
		return nil
	}
	sub, err := s.feed.Subscribe(ctx, model.CollMessages, func() {
		s.Load(context.Background())
	})
	if err != nil {
		return fmt.Errorf("subscribe messages: %w", err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = sub.Unsubscribe()
		return nil
	}
	s.sub = sub
	s.mu.Unlock()

	_, err = s.Load(ctx)
	return err
}

func (s *ConversationStore) pairFilter() backend.Filter {
	return backend.Or(
		[]backend.Cond{backend.C("sender_id", s.self), backend.C("receiver_id", s.peer)},
		[]backend.Cond{backend.C("sender_id", s.peer), backend.C("receiver_id", s.self)},
	)
}

// Load fetches the full thread for the pair, creation time ascending, and
// replaces the store's state with it. Results from a load superseded by a
// newer one (or by Close) are discarded.
func (s *ConversationStore) Load(ctx context.Context) ([]model.Message, error) {
	if s.self == "" || s.peer == "" {
		return nil, nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil
	}
	s.gen++
	gen := s.gen
	s.state = StateLoading
	s.mu.Unlock()

	docs, err := s.records.Select(ctx, model.CollMessages, s.pairFilter(), "created_at")
	if err != nil {
		s.log.Errorw("load conversation failed", "self", s.self, "peer", s.peer, "err", err)
		s.mu.Lock()
		if gen == s.gen && !s.closed {
			// keep the last good value
			s.state = StateLoaded
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: load conversation: %v", apperr.ErrBackend, err)
	}

	msgs := make([]model.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, model.MessageFromDoc(d))
	}
	// warm the reply cache for every referenced message not yet resolved
	for _, m := range msgs {
		if m.ReplyID != nil {
			s.ResolveReply(ctx, *m.ReplyID)
		}
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return msgs, nil
	}
	s.msgs = msgs
	s.state = StateLoaded
	cb := s.onUpdate
	s.mu.Unlock()

	if cb != nil {
		cb(msgs)
	}
	return msgs, nil
}

// Send validates, uploads the image first when present, then inserts the
// message. The thread is not appended locally; the change notification
// triggers the reload that makes the message visible.
func (s *ConversationStore) Send(ctx context.Context, text string, image []byte, imageType string, replyID *int64) error {
	text = strings.TrimSpace(text)
	if text == "" && len(image) == 0 {
		return fmt.Errorf("%w: message needs text or an image", apperr.ErrValidation)
	}

	imageURL := ""
	if len(image) > 0 {
		name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString())
		url, err := s.blobs.Upload(ctx, name, image, imageType)
		if err != nil {
			return fmt.Errorf("%w: upload image: %v", apperr.ErrBackend, err)
		}
		imageURL = url
	}

	msg := model.Message{
		Text:       text,
		ImageURL:   imageURL,
		IsEdited:   false,
		SenderID:   s.self,
		ReceiverID: s.peer,
		ReplyID:    replyID,
	}
	if _, err := s.records.Insert(ctx, model.CollMessages, msg.Doc()); err != nil {
		return fmt.Errorf("%w: send message: %v", apperr.ErrBackend, err)
	}
	return nil
}

// Edit sets the new text and marks the message edited. Everything else
// (id, creation time, sender) is untouched.
func (s *ConversationStore) Edit(ctx context.Context, id int64, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return fmt.Errorf("%w: edited text must not be blank", apperr.ErrValidation)
	}
	err := s.records.Update(ctx, model.CollMessages,
		backend.Where(backend.C("id", id)),
		backend.Doc{"text": newText, "is_edited": true})
	if err != nil {
		return fmt.Errorf("%w: edit message %d: %v", apperr.ErrBackend, id, err)
	}
	return nil
}

// Delete removes the message, cleaning up its image blob first. Blob
// removal is best effort: a failure is logged and the record is deleted
// anyway, accepting the orphaned blob.
func (s *ConversationStore) Delete(ctx context.Context, id int64) error {
	doc, err := s.records.SelectOne(ctx, model.CollMessages, backend.Where(backend.C("id", id)))
	if err != nil {
		return err
	}
	m := model.MessageFromDoc(doc)
	if m.ImageURL != "" {
		if err := s.blobs.Remove(ctx, []string{BlobPath(m.ImageURL)}); err != nil {
			s.log.Warnw("remove message image failed", "id", id, "err", err)
		}
	}
	if err := s.records.Delete(ctx, model.CollMessages, backend.Where(backend.C("id", id))); err != nil {
		return fmt.Errorf("%w: delete message %d: %v", apperr.ErrBackend, id, err)
	}
	return nil
}

// Messages returns a copy of the current thread.
func (s *ConversationStore) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

func (s *ConversationStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close tears down the feed subscription and marks the store dead so late
// load results are dropped. Safe to call more than once.
func (s *ConversationStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		_ = sub.Unsubscribe()
	}
}

// BlobPath extracts the storage path from a public blob URL (the last URL
// segment, which is how objects are named on upload).
func BlobPath(publicURL string) string {
	if i := strings.LastIndex(publicURL, "/"); i >= 0 {
		return publicURL[i+1:]
	}
	return publicURL
}
