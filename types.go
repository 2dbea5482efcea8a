package genroute

import "time"

// GenerationRequest describes one content-generation call. Immutable once
// built; the fingerprint doubles as the cache key for the request.
type GenerationRequest struct {
	CallerID string
	Category string
	Prompt   string

	// SourceRefs are the opaque record IDs the generated content depends on
	// (e.g. "tool:42"). They are attached to the cache entry so invalidation
	// can find it when a record changes.
	SourceRefs []string

	// Fingerprint identifies the request for caching. Left empty, it is
	// derived from the normalized prompt, category and policy version.
	Fingerprint string
}

// GenerationResult is produced once per GenerationRequest and immutable
// after return.
type GenerationResult struct {
	Content   string
	ModelUsed string // profile id of the model that produced the content
	TokensIn  int64
	TokensOut int64
	Cost      float64
	Succeeded bool

	// FromCache marks a result served from the content cache; no provider
	// call was made and no quota was spent.
	FromCache bool

	// Attempts lists every chain member tried, in order, annotated with the
	// failure kind where the attempt did not succeed. The successful final
	// attempt carries an empty FailureKind.
	Attempts []Attempt
}

// Attempt records one chain member consulted during a generation.
type Attempt struct {
	ProfileID   string
	Provider    string
	Model       string
	FailureKind string // empty on success
	Err         error  // nil on success and on quota denial
}

// InvalidationEvent describes one "source record changed" notification as it
// passes through the bus. Ephemeral; never stored.
type InvalidationEvent struct {
	SourceRef string
	ChangedAt time.Time
	Evicted   int
}
