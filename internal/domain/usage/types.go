// Package usage provides per-identity usage accounting domain types.
package usage

// Record holds the monotonic counters for one identity. Snapshots are
// value copies; mutation happens only inside the tracker.
type Record struct {
	// Requests counts completed proxied requests.
	Requests int64 `json:"request_count"`
	// Blocked counts requests or responses rejected by policy.
	Blocked int64 `json:"blocked_count"`
	// Redacted counts requests or responses that were sanitized.
	Redacted int64 `json:"redacted_count"`
	// Rejected counts requests refused by the rate limiter.
	Rejected int64 `json:"rejected_count"`
	// TokensSeen accumulates upstream-reported total tokens.
	TokensSeen int64 `json:"tokens_seen"`
}

// Tracker records and exposes per-identity usage counters.
type Tracker interface {
	// RecordRequest increments the request counter and adds tokens.
	RecordRequest(identity string, tokens int64)
	// RecordBlocked increments the blocked counter.
	RecordBlocked(identity string)
	// RecordRedacted increments the redacted counter.
	RecordRedacted(identity string)
	// RecordRejected increments the rate-limit rejection counter.
	RecordRejected(identity string)
	// Snapshot returns a copy of the identity's counters. An identity
	// never seen before returns a zero Record.
	Snapshot(identity string) Record
}
