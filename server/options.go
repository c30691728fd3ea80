package server

import (
	"time"

	"go.uber.org/zap"

	"patches/version"
)

// PipelineOptions configures a Pipeline (spec §4.4, §4.5).
type PipelineOptions struct {
	// SessionTimeout is sessionTimeoutMillis from spec §4.4/§4.5: the
	// maximum createdAt gap before changes are treated as a new session,
	// and the threshold past which a batch is classified offline.
	SessionTimeout time.Duration

	// ForceCommit, when true, persists changes whose ops transform to
	// empty instead of dropping them (spec §4.4 step 6) — used for
	// `forceCommit` historical-import paths (spec §9 Open Question,
	// resolved in DESIGN.md: forceCommit is an explicit per-call opt-in,
	// never inferred).
	ForceCommit bool

	// Now returns the server's monotonic commit clock. Defaults to
	// time.Now; overridable for deterministic tests.
	Now func() time.Time

	Logger *zap.Logger
}

// DefaultPipelineOptions returns spec-default pipeline options.
func DefaultPipelineOptions() *PipelineOptions {
	return &PipelineOptions{
		SessionTimeout: 60 * time.Second,
		Now:            time.Now,
		Logger:         zap.NewNop(),
	}
}

func (o *PipelineOptions) withDefaults() *PipelineOptions {
	if o == nil {
		return DefaultPipelineOptions()
	}
	out := *o
	if out.SessionTimeout == 0 {
		out.SessionTimeout = 60 * time.Second
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	if out.Logger == nil {
		out.Logger = zap.NewNop()
	}
	return &out
}

func (o *PipelineOptions) versionerOptions() *version.Options {
	return &version.Options{SessionTimeout: o.SessionTimeout}
}
