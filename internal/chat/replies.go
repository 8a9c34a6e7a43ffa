package chat

import (
	"context"
	"errors"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/model"
)

// ResolveReply returns the message a reply reference points at. A cached
// entry is returned without a fetch; otherwise the message is fetched once
// and memoized for the lifetime of the store. The cache is never evicted —
// a very long conversation grows it without bound, which is accepted for a
// view that dies on navigation.
func (s *ConversationStore) ResolveReply(ctx context.Context, id int64) (model.Message, bool) {
	s.mu.Lock()
	if m, ok := s.replies[id]; ok {
		s.mu.Unlock()
		return m, true
	}
	s.mu.Unlock()

	doc, err := s.records.SelectOne(ctx, model.CollMessages, backend.Where(backend.C("id", id)))
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			s.log.Warnw("resolve reply failed", "reply_id", id, "err", err)
		}
		return model.Message{}, false
	}
	m := model.MessageFromDoc(doc)

	s.mu.Lock()
	if !s.closed {
		s.replies[id] = m
	}
	s.mu.Unlock()
	return m, true
}

// Replies returns a copy of the resolved reply cache, keyed by message id.
func (s *ConversationStore) Replies() map[int64]model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]model.Message, len(s.replies))
	for k, v := range s.replies {
		out[k] = v
	}
	return out
}
