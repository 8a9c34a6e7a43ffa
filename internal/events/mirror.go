// Package events mirrors change notifications to Kafka for downstream
// consumers (analytics, search indexing). Nothing in this binary consumes
// the topic; the in-process feed stays on redis.
package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type ChangeEvent struct {
	Collection string    `json:"collection"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Mirror struct {
	writer *kafkago.Writer
	log    *zap.SugaredLogger
}

func NewMirror(brokers []string, topic string, log *zap.SugaredLogger) *Mirror {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
		Async:        true,
	}
	return &Mirror{writer: w, log: log}
}

func (m *Mirror) Notify(ctx context.Context, collection string) {
	ev := ChangeEvent{Collection: collection, OccurredAt: time.Now().UTC()}
	payload, _ := json.Marshal(ev)
	err := m.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(collection),
		Value: payload,
	})
	if err != nil {
		m.log.Warnw("mirror change event failed", "collection", collection, "err", err)
	}
}

func (m *Mirror) Close() error {
	return m.writer.Close()
}
