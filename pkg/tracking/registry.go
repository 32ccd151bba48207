package tracking

import (
	"context"
	"log/slog"
	"time"

	"github.com/coderena/validator/pkg/dendrite"
	"github.com/coderena/validator/pkg/metagraph"
)

// RateLimitBlocks / RateLimitMaxEvals are the spec's defaults (seven days
// at twelve-second block time, three evaluations per window). NewRegistry
// copies them into the Registry's RateLimitBlocks and RateLimitMaxEval
// fields, which callers may override.
const (
	DefaultRateLimitBlocks  = 7 * 24 * 60 * 60 / 12
	DefaultRateLimitMaxEval = 3
)

// DiscoveryTimeout bounds a single miner query; non-responders become
// trackers with an empty bundle and score 0.
const DiscoveryTimeout = 10 * time.Second

// Registry implements the Submission Registry (C3): discovery, validation,
// dedup and rate-limit eligibility over a Store.
type Registry struct {
	Store     *Store
	Metagraph metagraph.Metagraph
	Dendrite  dendrite.Client
	Validator *Validator

	RateLimitBlocks  int
	RateLimitMaxEval int
	SimilarityThresh float64
}

func NewRegistry(store *Store, mg metagraph.Metagraph, client dendrite.Client, validator *Validator) *Registry {
	return &Registry{
		Store:            store,
		Metagraph:        mg,
		Dendrite:         client,
		Validator:        validator,
		RateLimitBlocks:  DefaultRateLimitBlocks,
		RateLimitMaxEval: DefaultRateLimitMaxEval,
		SimilarityThresh: DefaultSimilarityThreshold,
	}
}

// Discover queries every miner UID on the metagraph and updates the Store
// with a TrackingInfo per responder (and an empty-bundle tracker for
// non-responders), in metagraph-UID order.
func (r *Registry) Discover(ctx context.Context) error {
	uids, err := r.Metagraph.UIDs(ctx)
	if err != nil {
		return err
	}

	block, err := r.Metagraph.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	for _, uid := range uids {
		hotkey := r.Metagraph.Hotkey(uid)

		queryCtx, cancel := context.WithTimeout(ctx, DiscoveryTimeout)
		resp, err := r.Dendrite.Query(queryCtx, uid)
		cancel()

		existing, _ := r.Store.Get(hotkey)

		tracker := TrackingInfo{UID: uid, Hotkey: hotkey, BlockSeen: block}
		if existing != nil {
			tracker = *existing
			tracker.UID = uid
			tracker.BlockSeen = block
		}

		if err != nil {
			slog.Debug("miner did not respond to logic synapse", "uid", uid, "error", err)
			tracker.Logic = nil
		} else {
			tracker.Logic = Bundle(resp.Logic)
		}

		if err := r.validateAndClear(ctx, &tracker); err != nil {
			return err
		}

		if err := r.Store.Upsert(tracker); err != nil {
			return err
		}
	}

	return nil
}

// validateAndClear runs Validate and clears Logic (scenario 3, spec.md §8)
// if the bundle is invalid, recording the reason.
func (r *Registry) validateAndClear(ctx context.Context, t *TrackingInfo) error {
	if len(t.Logic) == 0 {
		return nil
	}
	valid, reason, err := r.Validator.Validate(ctx, t.Logic)
	if err != nil {
		return err
	}
	if !valid {
		slog.Info("bundle failed validation", "hotkey", t.Hotkey, "reason", reason)
		t.Logic = nil
	}
	return nil
}

// Eligible reports whether t may be evaluated at block under the
// registry's configured rate-limit window.
func (r *Registry) Eligible(t *TrackingInfo, block int) bool {
	return t.Eligible(block, r.RateLimitBlocks, r.RateLimitMaxEval)
}

// FindDuplicate returns the first previously graded tracker (other than t
// itself) whose bundle is similar to t's per the configured threshold, or
// nil if none matches. graded is the set of trackers already scored this
// run, in evaluation order.
func (r *Registry) FindDuplicate(t *TrackingInfo, graded []TrackingInfo) (*TrackingInfo, error) {
	if len(t.Logic) == 0 {
		return nil, nil
	}
	for i := range graded {
		other := graded[i]
		if other.Hotkey == t.Hotkey || len(other.Logic) == 0 {
			continue
		}
		same, err := Similar(t.Logic, other.Logic, r.SimilarityThresh)
		if err != nil {
			return nil, err
		}
		if same {
			return &graded[i], nil
		}
	}
	return nil, nil
}
