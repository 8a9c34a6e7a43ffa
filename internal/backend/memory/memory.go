// Package memory is an in-process implementation of the backend contracts,
// used by tests and by dev mode. Change notifications fan out synchronously
// to subscribers in the calling goroutine.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gamma101/web-chat/internal/apperr"
	"github.com/Gamma101/web-chat/internal/backend"
)

type Backend struct {
	mu      sync.Mutex
	colls   map[string][]backend.Doc
	seq     int64
	blobs   map[string][]byte
	selects map[string]int

	subMu   sync.Mutex
	nextSub int64
	subs    map[string]map[int64]func()
}

func New() *Backend {
	return &Backend{
		colls:   make(map[string][]backend.Doc),
		blobs:   make(map[string][]byte),
		selects: make(map[string]int),
		subs:    make(map[string]map[int64]func()),
	}
}

func cloneDoc(d backend.Doc) backend.Doc {
	out := make(backend.Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

func (b *Backend) Insert(ctx context.Context, collection string, doc backend.Doc) (backend.Doc, error) {
	b.mu.Lock()
	d := cloneDoc(doc)
	if _, ok := d["id"]; !ok {
		b.seq++
		d["id"] = b.seq
	}
	if _, ok := d["created_at"]; !ok {
		d["created_at"] = time.Now().UTC()
	}
	b.colls[collection] = append(b.colls[collection], d)
	b.mu.Unlock()

	b.notify(collection)
	return cloneDoc(d), nil
}

func (b *Backend) Update(ctx context.Context, collection string, filter backend.Filter, patch backend.Doc) error {
	b.mu.Lock()
	changed := false
	for _, d := range b.colls[collection] {
		if filter.Matches(d) {
			for k, v := range patch {
				d[k] = v
			}
			changed = true
		}
	}
	b.mu.Unlock()

	if changed {
		b.notify(collection)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, collection string, filter backend.Filter) error {
	b.mu.Lock()
	kept := b.colls[collection][:0]
	removed := false
	for _, d := range b.colls[collection] {
		if filter.Matches(d) {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	b.colls[collection] = kept
	b.mu.Unlock()

	if removed {
		b.notify(collection)
	}
	return nil
}

func (b *Backend) Select(ctx context.Context, collection string, filter backend.Filter, orderBy string) ([]backend.Doc, error) {
	b.mu.Lock()
	b.selects[collection]++
	var out []backend.Doc
	for _, d := range b.colls[collection] {
		if filter.Matches(d) {
			out = append(out, cloneDoc(d))
		}
	}
	b.mu.Unlock()

	if orderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return fieldLess(out[i][orderBy], out[j][orderBy])
		})
	}
	return out, nil
}

func (b *Backend) SelectOne(ctx context.Context, collection string, filter backend.Filter) (backend.Doc, error) {
	docs, err := b.Select(ctx, collection, filter, "")
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, apperr.ErrNotFound
	}
	return docs[0], nil
}

// SelectCalls reports how many Select/SelectOne calls the collection has
// seen; tests use it to assert memoization.
func (b *Backend) SelectCalls(collection string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selects[collection]
}

func fieldLess(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	case string:
		if bv, ok := b.(string); ok {
			return av < bv
		}
	}
	return false
}

type subscription struct {
	b          *Backend
	collection string
	id         int64
}

func (s *subscription) Unsubscribe() error {
	s.b.subMu.Lock()
	defer s.b.subMu.Unlock()
	delete(s.b.subs[s.collection], s.id)
	return nil
}

func (b *Backend) Subscribe(ctx context.Context, collection string, fn func()) (backend.Subscription, error) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.nextSub++
	if b.subs[collection] == nil {
		b.subs[collection] = make(map[int64]func())
	}
	b.subs[collection][b.nextSub] = fn
	return &subscription{b: b, collection: collection, id: b.nextSub}, nil
}

func (b *Backend) Notify(ctx context.Context, collection string) {
	b.notify(collection)
}

func (b *Backend) notify(collection string) {
	b.subMu.Lock()
	fns := make([]func(), 0, len(b.subs[collection]))
	for _, fn := range b.subs[collection] {
		fns = append(fns, fn)
	}
	b.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *Backend) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.blobs[path] = cp
	return b.PublicURL(path), nil
}

func (b *Backend) Remove(ctx context.Context, paths []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range paths {
		delete(b.blobs, p)
	}
	return nil
}

func (b *Backend) PublicURL(path string) string {
	return fmt.Sprintf("memory://blobs/%s", path)
}

// Blob returns the stored bytes, if any.
func (b *Backend) Blob(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[path]
	return data, ok
}
