// Package version implements the session/offline versioner of spec §4.5:
// given the batch of changes a single commitChanges call just produced, it
// groups them into one or more VersionRecords forming a parentId chain
// under a shared groupId, splitting on createdAt gaps larger than the
// configured session timeout.
//
// Grounded on the pack's eventsync compaction/versioning pass (which
// walks a document's event log and groups runs into checkpoints), reshaped
// from a compaction policy into a session-boundary detector.
package version

import (
	"time"

	"github.com/google/uuid"

	"patches/change"
)

// Options configures the versioner.
type Options struct {
	// SessionTimeout is sessionTimeoutMillis from spec §4.4/§4.5.
	SessionTimeout time.Duration
}

// DefaultOptions returns the literal session timeout spec §8 scenario S5
// exercises (60s).
func DefaultOptions() *Options {
	return &Options{SessionTimeout: 60 * time.Second}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	out := *o
	if out.SessionTimeout == 0 {
		out.SessionTimeout = 60 * time.Second
	}
	return &out
}

// BuildRecords groups changes (the newly-transformed changes from a single
// commitChanges call, already sorted by rev/createdAt ascending) into
// VersionRecords, all tagged with origin and isOffline. The first record
// is always a fresh session (ParentID empty): sessions are never continued
// across separate commitChanges calls, whatever the gap between this batch
// and earlier commits.
func BuildRecords(changes []change.Change, opts *Options, origin change.Origin, isOffline bool) []change.VersionRecord {
	if len(changes) == 0 {
		return nil
	}
	opts = opts.withDefaults()

	groupID := uuid.NewString()
	var records []change.VersionRecord
	var parentID string
	sessionStart := 0

	for i := 1; i <= len(changes); i++ {
		atEnd := i == len(changes)
		splitHere := !atEnd && changes[i].CreatedAt.Sub(changes[i-1].CreatedAt) > opts.SessionTimeout
		if !atEnd && !splitHere {
			continue
		}
		session := changes[sessionStart:i]
		rec := change.VersionRecord{
			ID:        uuid.NewString(),
			DocID:     session[0].DocID,
			GroupID:   groupID,
			ParentID:  parentID,
			Origin:    origin,
			IsOffline: isOffline,
			FromRev:   session[0].Rev,
			ToRev:     session[len(session)-1].Rev,
			StartedAt: session[0].CreatedAt,
			EndedAt:   session[len(session)-1].CreatedAt,
		}
		records = append(records, rec)
		parentID = rec.ID
		sessionStart = i
	}
	return records
}
