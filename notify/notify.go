// Package notify defines the onChangesCommitted/onDocDeleted contract of
// spec §6 and ships two implementations: memorypubsub, an in-process
// fan-out for tests and single-process deployments, and redispubsub, a
// cross-process fan-out over Redis.
//
// Grounded on the pack's luvjson/crdtpubsub package (a PubSub interface
// with Memory and, elsewhere in the pack, Redis-backed implementations),
// generalized from publishing encoded CRDT patches to publishing commit
// notifications.
package notify

import (
	"context"

	"patches/change"
	"patches/ids"
)

// Notifier is the event-emission boundary of spec §6. Per spec §5 "Failure
// of notification", a Notifier's delivery is best-effort: it does not
// return an error to the pipeline, since a failed notification must never
// roll back an already-persisted commit; implementations log failures
// internally.
type Notifier interface {
	OnChangesCommitted(ctx context.Context, docID ids.DocID, changes []change.Change, originClientID ids.ClientID)
	OnDocDeleted(ctx context.Context, docID ids.DocID, originClientID ids.ClientID)
}

// ChangesCommittedEvent is the payload delivered to a Subscriber on a
// commit notification.
type ChangesCommittedEvent struct {
	DocID          ids.DocID
	Changes        []change.Change
	OriginClientID ids.ClientID
}

// DocDeletedEvent is the payload delivered to a Subscriber on a delete
// notification.
type DocDeletedEvent struct {
	DocID          ids.DocID
	OriginClientID ids.ClientID
}

// Subscriber receives events for a single subscription. Implementations
// must not block for long inside these callbacks; memorypubsub and
// redispubsub both invoke them on a background goroutine per subscriber.
type Subscriber interface {
	HandleChangesCommitted(ctx context.Context, event ChangesCommittedEvent)
	HandleDocDeleted(ctx context.Context, event DocDeletedEvent)
}

// SubscriberFunc adapts a pair of plain functions to the Subscriber
// interface, mirroring the pack's MessageHandler/SubscriberFunc duality.
type SubscriberFunc struct {
	OnChangesCommitted func(ctx context.Context, event ChangesCommittedEvent)
	OnDocDeleted       func(ctx context.Context, event DocDeletedEvent)
}

func (f SubscriberFunc) HandleChangesCommitted(ctx context.Context, event ChangesCommittedEvent) {
	if f.OnChangesCommitted != nil {
		f.OnChangesCommitted(ctx, event)
	}
}

func (f SubscriberFunc) HandleDocDeleted(ctx context.Context, event DocDeletedEvent) {
	if f.OnDocDeleted != nil {
		f.OnDocDeleted(ctx, event)
	}
}
