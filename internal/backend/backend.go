// Package backend defines the capability contracts the application is built
// on: record CRUD over named collections, a per-collection change feed, and
// blob storage. Production bindings live in the mongo, redisfeed and s3blob
// subpackages; an in-process binding for tests and dev mode lives in memory.
package backend

import "context"

// Doc is a schemaless record, keyed by field name.
type Doc map[string]any

// Records is collection-level CRUD. Implementations assign "id" and
// "created_at" on Insert when the document does not carry them, and notify
// the change feed after every successful write.
type Records interface {
	Insert(ctx context.Context, collection string, doc Doc) (Doc, error)
	Update(ctx context.Context, collection string, filter Filter, patch Doc) error
	Delete(ctx context.Context, collection string, filter Filter) error
	// Select returns all matching documents, sorted ascending by orderBy
	// when it is non-empty.
	Select(ctx context.Context, collection string, filter Filter, orderBy string) ([]Doc, error)
	// SelectOne returns apperr.ErrNotFound when nothing matches.
	SelectOne(ctx context.Context, collection string, filter Filter) (Doc, error)
}

// Subscription is one open change-feed stream.
type Subscription interface {
	Unsubscribe() error
}

// ChangeFeed delivers payload-less change notifications: the callback fires
// on any insert, update or delete in the collection and the receiver
// re-fetches its own scoped view.
type ChangeFeed interface {
	Subscribe(ctx context.Context, collection string, fn func()) (Subscription, error)
}

// Notifier is the publishing side of a change feed.
type Notifier interface {
	Notify(ctx context.Context, collection string)
}

// BlobStore is write-once object storage with public URLs.
type BlobStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	Remove(ctx context.Context, paths []string) error
	PublicURL(path string) string
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, collection string) {
	for _, n := range m {
		n.Notify(ctx, collection)
	}
}

// MultiNotifier fans a notification out to every given notifier.
func MultiNotifier(ns ...Notifier) Notifier {
	return multiNotifier(ns)
}
