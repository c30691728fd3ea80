// Package redispubsub is a cross-process notify.Notifier backed by Redis
// pub/sub, for deployments where commits land on a different process than
// the transport holding a doc's subscribers.
//
// Grounded on the pack's nodestorage/v2/cache RedisCache (go-redis/v9
// client construction, bson payload encoding) generalized from a document
// cache to a fan-out channel per document.
package redispubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"patches/change"
	"patches/ids"
	"patches/notify"
)

const channelPrefix = "patches:doc:"

// PubSub publishes commit/delete events to a Redis channel per document
// and lets local callers subscribe to the mirrored stream.
type PubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// New wraps an existing *redis.Client. The caller owns the client's
// lifecycle (Close it after the PubSub is done).
func New(client *redis.Client, logger *zap.Logger) *PubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSub{client: client, logger: logger}
}

type wireEvent struct {
	Kind           string         `json:"kind"` // "committed" | "deleted"
	DocID          string         `json:"docId"`
	Changes        []change.Change `json:"changes,omitempty"`
	OriginClientID string         `json:"originClientId,omitempty"`
}

// OnChangesCommitted implements notify.Notifier.
func (p *PubSub) OnChangesCommitted(ctx context.Context, docID ids.DocID, changes []change.Change, originClientID ids.ClientID) {
	p.publish(ctx, docID, wireEvent{
		Kind:           "committed",
		DocID:          docID.String(),
		Changes:        changes,
		OriginClientID: originClientID.String(),
	})
}

// OnDocDeleted implements notify.Notifier.
func (p *PubSub) OnDocDeleted(ctx context.Context, docID ids.DocID, originClientID ids.ClientID) {
	p.publish(ctx, docID, wireEvent{
		Kind:           "deleted",
		DocID:          docID.String(),
		OriginClientID: originClientID.String(),
	})
}

func (p *PubSub) publish(ctx context.Context, docID ids.DocID, evt wireEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("redispubsub: failed to encode event", zap.Error(err))
		return
	}
	if err := p.client.Publish(ctx, channelName(docID), data).Err(); err != nil {
		p.logger.Error("redispubsub: publish failed", zap.String("docId", docID.String()), zap.Error(err))
	}
}

// Listen subscribes to docId's channel and delivers decoded events to
// handler until ctx is cancelled. It is meant to run in its own goroutine.
func (p *PubSub) Listen(ctx context.Context, docID ids.DocID, handler notify.Subscriber) error {
	sub := p.client.Subscribe(ctx, channelName(docID))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var evt wireEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				p.logger.Warn("redispubsub: dropping malformed event", zap.Error(err))
				continue
			}
			deliver(ctx, handler, docID, evt)
		}
	}
}

func deliver(ctx context.Context, handler notify.Subscriber, docID ids.DocID, evt wireEvent) {
	originClientID, _ := parseClientID(evt.OriginClientID)
	switch evt.Kind {
	case "committed":
		handler.HandleChangesCommitted(ctx, notify.ChangesCommittedEvent{
			DocID:          docID,
			Changes:        evt.Changes,
			OriginClientID: originClientID,
		})
	case "deleted":
		handler.HandleDocDeleted(ctx, notify.DocDeletedEvent{
			DocID:          docID,
			OriginClientID: originClientID,
		})
	}
}

func parseClientID(s string) (ids.ClientID, error) {
	if s == "" {
		return ids.ClientID{}, nil
	}
	var c ids.ClientID
	err := c.UnmarshalText([]byte(s))
	if err != nil {
		return ids.ClientID{}, fmt.Errorf("redispubsub: invalid clientId %q: %w", s, err)
	}
	return c, nil
}

func channelName(docID ids.DocID) string {
	return channelPrefix + docID.String()
}
