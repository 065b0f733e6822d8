// Package upgrade implements the engine that turns an incomplete (pending)
// timestamp proof into a Bitcoin-complete one: a cache sweep followed by a
// calendar-polling loop, built around the proof tree's own merge algebra.
package upgrade

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"chronoproof/internal/attestation"
	"chronoproof/internal/cache"
	"chronoproof/internal/calendar"
	"chronoproof/internal/proof"
)

// DefaultWaitInterval is used when Options.Wait is set without an explicit
// interval.
const DefaultWaitInterval = 10 * time.Second

// Options configures one Upgrade call.
type Options struct {
	// CalendarURLs, if non-empty, overrides every Pending attestation's
	// own URI: every listed calendar is queried regardless of what a
	// given attestation names.
	CalendarURLs []string

	// Wait keeps polling, sleeping WaitInterval between passes, until
	// the tree is complete or ctx is cancelled.
	Wait bool

	// WaitInterval is the sleep between passes when Wait is set. Zero
	// means DefaultWaitInterval.
	WaitInterval time.Duration
}

// calendarClient is the narrow calendar.Client surface the engine needs.
type calendarClient interface {
	GetTimestamp(ctx context.Context, commitment []byte) (*proof.Timestamp, error)
}

// Engine runs the upgrade algorithm against one long-lived cache and
// whitelist, dispatching calendar HTTP calls through newClient so tests
// can substitute a fake transport without a real listener.
type Engine struct {
	Cache     cache.Cache
	Whitelist *calendar.Whitelist
	Logger    *slog.Logger

	newClient func(baseURL string) calendarClient
}

// New returns an Engine backed by c and gated by wl. wl may be nil, which
// rejects every attestation-supplied URI (only CalendarURLs overrides
// still work).
func New(c cache.Cache, wl *calendar.Whitelist, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Cache:     c,
		Whitelist: wl,
		Logger:    logger,
		newClient: func(baseURL string) calendarClient { return calendar.New(baseURL) },
	}
}

// Run performs an upgrade run against root, returning whether any
// attestation was gained.
func (e *Engine) Run(ctx context.Context, root *proof.Timestamp, opts Options) (bool, error) {
	before := len(root.AllAttestations())

	e.sweepCache(root)

	negative := make(map[string]bool)
	waitInterval := opts.WaitInterval
	if waitInterval <= 0 {
		waitInterval = DefaultWaitInterval
	}

	for !root.IsComplete() {
		gainedThisPass := e.pollPass(ctx, root, opts, negative)
		if ctx.Err() != nil {
			return len(root.AllAttestations()) != before, ctx.Err()
		}
		if gainedThisPass {
			continue
		}
		if !opts.Wait {
			break
		}
		select {
		case <-ctx.Done():
			return len(root.AllAttestations()) != before, ctx.Err()
		case <-time.After(waitInterval):
		}
	}

	return len(root.AllAttestations()) != before, nil
}

// sweepCache merges the cached Timestamp for every sub-timestamp's
// message, where present.
func (e *Engine) sweepCache(root *proof.Timestamp) {
	for _, sub := range root.WalkAll() {
		cached, ok, err := e.Cache.Get(sub.Msg())
		if err != nil {
			e.Logger.Warn("upgrade: cache lookup failed", "msg", hex.EncodeToString(sub.Msg()), "error", err)
			continue
		}
		if !ok {
			continue
		}
		if err := sub.Merge(cached); err != nil {
			e.Logger.Warn("upgrade: cached proof did not merge", "msg", hex.EncodeToString(sub.Msg()), "error", err)
		}
	}
}

// pollPass runs one iteration of the main loop over every directly
// verified sub-timestamp, reporting whether anything was gained.
func (e *Engine) pollPass(ctx context.Context, root *proof.Timestamp, opts Options, negative map[string]bool) bool {
	gainedThisPass := false

	for _, sub := range root.DirectlyVerified() {
		key := hex.EncodeToString(sub.Msg())
		if negative[key] {
			continue
		}

		gainedForMsg := false
		for _, a := range sub.Attestations() {
			pending, ok := a.(attestation.Pending)
			if !ok {
				continue
			}

			for _, url := range e.calendarURLsFor(pending.URI, opts.CalendarURLs) {
				client := e.newClient(url)
				fetched, err := client.GetTimestamp(ctx, sub.Msg())
				if errors.Is(err, calendar.ErrCommitmentNotFound) {
					continue
				}
				if err != nil {
					e.Logger.Info("upgrade: calendar fetch failed", "url", url, "msg", key, "error", err)
					continue
				}

				if putErr := e.Cache.Put(sub.Msg(), fetched); putErr != nil {
					e.Logger.Warn("upgrade: cache write failed", "msg", key, "error", putErr)
				}

				attestationsBefore := len(sub.AllAttestations())
				if err := sub.Merge(fetched); err != nil {
					e.Logger.Warn("upgrade: fetched proof did not merge", "msg", key, "error", err)
					continue
				}
				if len(sub.AllAttestations()) != attestationsBefore {
					gainedForMsg = true
					gainedThisPass = true
				}
			}
		}

		if !gainedForMsg {
			negative[key] = true
		}

		if ctx.Err() != nil {
			return gainedThisPass
		}
	}

	return gainedThisPass
}

// calendarURLsFor determines which calendar base URLs to query for a
// Pending attestation's uri: overrides if the caller supplied any,
// otherwise uri itself gated by the whitelist.
func (e *Engine) calendarURLsFor(uri string, overrides []string) []string {
	if len(overrides) > 0 {
		return overrides
	}
	if e.Whitelist == nil || !e.Whitelist.Allowed(uri) {
		e.Logger.Warn("upgrade: calendar uri not whitelisted, skipping", "uri", uri)
		return nil
	}
	return []string{uri}
}
