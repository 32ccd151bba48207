// Package dendrite defines the validator's outbound RPC contract to miners
// (SPEC_FULL.md §6): the validator is always the initiator ("dendrite
// query" in the bittensor vocabulary this system is ported from), never the
// other way around. No concrete transport is bundled here — a real
// deployment supplies a Client backed by whatever axon protocol the
// network uses; this package only fixes the request/response shapes and
// the interface the Submission Registry programs against.
package dendrite

import "context"

// LogicSynapseRequest is sent to a single miner's axon asking it to
// disclose its current submission bundle.
type LogicSynapseRequest struct {
	ValidatorHotkey string
}

// LogicSynapseResponse carries the miner's submission bundle: relative file
// path to file text. An empty or absent map means the miner did not
// respond, or responded with nothing to evaluate.
type LogicSynapseResponse struct {
	Logic map[string]string
}

// ResultSynapseRequest delivers a human-readable scoring summary back to
// the miner's own hotkey, an optional feedback channel.
type ResultSynapseRequest struct {
	Summary string
}

type ResultSynapseResponse struct {
	Acknowledged bool
}

// Client queries miner axons. Implementations own their own timeout and
// connection management; Query must return promptly on ctx cancellation.
type Client interface {
	// Query sends a LogicSynapseRequest to the miner at uid and returns its
	// response. A non-nil error means the miner did not respond (timeout,
	// connection refused, malformed response) — callers treat this as an
	// empty bundle, not a fatal condition.
	Query(ctx context.Context, uid int) (LogicSynapseResponse, error)

	// SendResult delivers feedback to the miner at uid. Best-effort: errors
	// are logged, never fatal.
	SendResult(ctx context.Context, uid int, req ResultSynapseRequest) (ResultSynapseResponse, error)
}
