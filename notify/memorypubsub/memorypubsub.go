// Package memorypubsub is an in-process Notifier: each subscriber for a
// docId receives events asynchronously, through a buffered channel drained
// by a per-subscriber goroutine; an event is dropped, with a warning, when
// that channel is full. This matches the shape (if not the wire format) of
// the pack's crdtpubsub.MemoryPubSub.
package memorypubsub

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"patches/change"
	"patches/ids"
	"patches/notify"
)

// PubSub is a single-process notify.Notifier keyed by docId topic.
type PubSub struct {
	mu     sync.RWMutex
	topics map[string][]*subscription
	logger *zap.Logger
	closed bool
}

type subscription struct {
	id      int64
	handler notify.Subscriber
	events  chan func(context.Context)
	done    chan struct{}
}

// New creates an empty PubSub. logger defaults to zap.NewNop() if nil.
func New(logger *zap.Logger) *PubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PubSub{
		topics: make(map[string][]*subscription),
		logger: logger,
	}
}

// Subscribe registers handler for docId's events. The returned func
// unsubscribes and stops the delivery goroutine.
func (p *PubSub) Subscribe(docID ids.DocID, handler notify.Subscriber) (unsubscribe func()) {
	topic := docID.String()
	sub := &subscription{
		handler: handler,
		events:  make(chan func(context.Context), 64),
		done:    make(chan struct{}),
	}
	go sub.run()

	p.mu.Lock()
	p.topics[topic] = append(p.topics[topic], sub)
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		subs := p.topics[topic]
		for i, s := range subs {
			if s == sub {
				p.topics[topic] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		close(sub.done)
	}
}

func (s *subscription) run() {
	for {
		select {
		case fn := <-s.events:
			fn(context.Background())
		case <-s.done:
			return
		}
	}
}

// OnChangesCommitted implements notify.Notifier.
func (p *PubSub) OnChangesCommitted(ctx context.Context, docID ids.DocID, changes []change.Change, originClientID ids.ClientID) {
	p.publish(docID, func(ctx context.Context, sub *subscription) {
		sub.handler.HandleChangesCommitted(ctx, notify.ChangesCommittedEvent{
			DocID:          docID,
			Changes:        changes,
			OriginClientID: originClientID,
		})
	})
}

// OnDocDeleted implements notify.Notifier.
func (p *PubSub) OnDocDeleted(ctx context.Context, docID ids.DocID, originClientID ids.ClientID) {
	p.publish(docID, func(ctx context.Context, sub *subscription) {
		sub.handler.HandleDocDeleted(ctx, notify.DocDeletedEvent{
			DocID:          docID,
			OriginClientID: originClientID,
		})
	})
}

func (p *PubSub) publish(docID ids.DocID, deliver func(context.Context, *subscription)) {
	topic := docID.String()
	p.mu.RLock()
	subs := append([]*subscription(nil), p.topics[topic]...)
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		p.logger.Warn("memorypubsub: publish after close", zap.String("docId", topic))
		return
	}
	for _, sub := range subs {
		s := sub
		select {
		case s.events <- func(ctx context.Context) { deliver(ctx, s) }:
		default:
			p.logger.Warn("memorypubsub: subscriber queue full, dropping event", zap.String("docId", topic))
		}
	}
}

// Close stops accepting new publishes. Existing subscriber goroutines keep
// running until explicitly unsubscribed.
func (p *PubSub) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
