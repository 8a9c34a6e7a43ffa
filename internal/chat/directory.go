package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
	"github.com/Gamma101/web-chat/internal/model"
)

// DirectoryStore holds the browsable list of all users except self,
// reloaded wholesale on every users-collection change notification.
type DirectoryStore struct {
	records backend.Records
	feed    backend.ChangeFeed
	log     *zap.SugaredLogger
	self    string

	mu       sync.Mutex
	state    State
	users    []model.User
	gen      uint64
	closed   bool
	sub      backend.Subscription
	onUpdate func([]model.User)
}

func NewDirectoryStore(records backend.Records, feed backend.ChangeFeed, log *zap.SugaredLogger, self string) *DirectoryStore {
	return &DirectoryStore{records: records, feed: feed, log: log, self: self}
}

func (s *DirectoryStore) OnUpdate(fn func([]model.User)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Open subscribes to the users feed and performs the initial load. Without
// a current user the store stays Idle.
func (s *DirectoryStore) Open(ctx context.Context) error {
	if s.self == "" {
		return nil
	}
	sub, err := s.feed.Subscribe(ctx, model.CollUsers, func() {
		s.Load(context.Background())
	})
	if err != nil {
		return fmt.Errorf("subscribe users: %w", err)
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

// Load fetches all users, drops self, and replaces the list wholesale.
// Stale results (superseded load, closed store) are discarded.
func (s *DirectoryStore) Load(ctx context.Context) ([]model.User, error) {
	if s.self == "" {
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

	docs, err := s.records.Select(ctx, model.CollUsers, backend.Filter{}, "")
	if err != nil {
		s.log.Errorw("load directory failed", "err", err)
		s.mu.Lock()
		if gen == s.gen && !s.closed {
			s.state = StateLoaded
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: load directory: %v", apperr.ErrBackend, err)
	}

	users := make([]model.User, 0, len(docs))
	for _, d := range docs {
		u := model.UserFromDoc(d)
		if u.ID == s.self {
			continue
		}
		users = append(users, u)
	}

	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return users, nil
	}
	s.users = users
	s.state = StateLoaded
	cb := s.onUpdate
	s.mu.Unlock()

	if cb != nil {
		cb(users)
	}
	return users, nil
}

// Filter narrows the last loaded list by a case-insensitive substring
// match on username. It is pure: no fetch, empty query returns everything.
func (s *DirectoryStore) Filter(query string) []model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if query == "" {
		out := make([]model.User, len(s.users))
		copy(out, s.users)
		return out
	}
	q := strings.ToLower(query)
	var out []model.User
	for _, u := range s.users {
		if strings.Contains(strings.ToLower(u.Username), q) {
			out = append(out, u)
		}
	}
	return out
}

func (s *DirectoryStore) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *DirectoryStore) Close() {
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
