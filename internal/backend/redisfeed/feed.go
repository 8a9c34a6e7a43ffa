// Package redisfeed carries change notifications over redis pub/sub, one
// channel per collection. Notifications have no payload: subscribers
// re-fetch their own scoped view.
package redisfeed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Gamma101/web-chat/internal/backend"
)

type Feed struct {
	rdb    *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

func New(rdb *redis.Client, prefix string, log *zap.SugaredLogger) *Feed {
	return &Feed{rdb: rdb, prefix: prefix, log: log}
}

func (f *Feed) channel(collection string) string {
	return fmt.Sprintf("%s:feed:%s", f.prefix, collection)
}

func (f *Feed) Notify(ctx context.Context, collection string) {
	if err := f.rdb.Publish(ctx, f.channel(collection), "").Err(); err != nil {
		f.log.Warnw("publish change notification failed", "collection", collection, "err", err)
	}
}

type subscription struct {
	ps *redis.PubSub
}

func (s *subscription) Unsubscribe() error {
	return s.ps.Close()
}

// Subscribe opens one pub/sub stream for the collection. The stream is not
// re-established on transient disconnects; the owning view keeps its last
// loaded state.
func (f *Feed) Subscribe(ctx context.Context, collection string, fn func()) (backend.Subscription, error) {
	ps := f.rdb.Subscribe(ctx, f.channel(collection))
	// force the SUBSCRIBE to complete so errors surface here
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	ch := ps.Channel()
	go func() {
		for range ch {
			fn()
		}
		f.log.Debugw("change feed closed", "collection", collection)
	}()
	return &subscription{ps: ps}, nil
}
