// Package dedup guarantees that a logical waste record is durably
// recorded on the backend at most once, under button mashing, slow
// networks, retried requests, and responses lost after the backend
// already applied the write.
//
// Two tables back the guarantee: a transient in-flight lock table
// (fingerprint -> acquire time) and a durable completed log
// (fingerprint -> completion time, 24h retention). The lock table damps
// concurrent and rapid-retry submissions; the completed log is the
// authoritative "already saved" record and survives restarts.
package dedup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/hdjv-envi/wastelog/pkg/statestore"
)

const (
	// LockDuration is how long a lock table entry blocks re-submission
	// before it is considered stale and purged.
	LockDuration = 120 * time.Second

	// Retention is how long a completed submission blocks re-submission.
	Retention = 24 * time.Hour

	// FailureCooldown delays lock release after an explicit failure
	// response from the backend.
	FailureCooldown = 30 * time.Second

	// NetworkCooldown delays lock release after a network-level failure
	// or timeout, where the original request may still be in flight at
	// the backend.
	NetworkCooldown = 60 * time.Second
)

// Completion is the result of a completed-log lookup. HoursSince is the
// floor of whole hours since completion, meaningful only when Completed.
type Completion struct {
	Completed  bool
	HoursSince int
}

// Deduplicator enforces at-most-one durable submission per fingerprint.
type Deduplicator interface {
	// Start loads the persisted completed log.
	Start(ctx context.Context) error

	// Close cancels any pending deferred releases.
	Close()

	// IsCompleted is the authoritative pre-check: a fingerprint
	// completed within the retention window must not be resubmitted.
	// Entries older than the window report not-completed even before
	// they are pruned.
	IsCompleted(fp Fingerprint) Completion

	// TryAcquire attempts the idle-to-locked transition. It purges
	// stale lock entries, then checks and records the lock under one
	// mutex hold, so a concurrent attempt for the same fingerprint
	// cannot interleave between check and set.
	TryAcquire(fp Fingerprint) bool

	// Complete records the fingerprint as durably saved and prunes
	// entries older than the retention window. The lock entry is left
	// to age out: completed-log presence takes precedence on the next
	// check.
	Complete(ctx context.Context, fp Fingerprint) error

	// Release schedules removal of the lock entry after the cooldown,
	// damping manual retries that would race a possibly still-in-flight
	// request.
	Release(fp Fingerprint, after time.Duration)

	// RequestID derives the idempotency key for an upload attempt of
	// this fingerprint made now.
	RequestID(fp Fingerprint) string

	// Reset drops the in-memory tables, used when the backing state was
	// cleared by a forced logout.
	Reset()

	// PendingLocks and CompletedCount expose table sizes for status
	// reporting.
	PendingLocks() int
	CompletedCount() int
}

// Compile-time interface check.
var _ Deduplicator = (*deduplicator)(nil)

type deduplicator struct {
	log   logrus.FieldLogger
	store statestore.Store
	clk   clock.Clock

	mu        sync.Mutex
	locks     map[Fingerprint]time.Time
	completed map[Fingerprint]time.Time
	releases  map[Fingerprint]*clock.Timer
}

// New creates a new Deduplicator.
func New(
	log logrus.FieldLogger,
	store statestore.Store,
	clk clock.Clock,
) Deduplicator {
	return &deduplicator{
		log:       log.WithField("component", "dedup"),
		store:     store,
		clk:       clk,
		locks:     make(map[Fingerprint]time.Time),
		completed: make(map[Fingerprint]time.Time),
		releases:  make(map[Fingerprint]*clock.Timer),
	}
}

// Start loads the persisted completed log.
func (d *deduplicator) Start(ctx context.Context) error {
	entries, err := d.store.ListCompleted(ctx)
	if err != nil {
		return fmt.Errorf("loading completed log: %w", err)
	}

	cutoff := d.clk.Now().Add(-Retention)

	d.mu.Lock()
	for _, entry := range entries {
		if entry.CompletedAt.Before(cutoff) {
			continue
		}

		d.completed[Fingerprint(entry.Fingerprint)] = entry.CompletedAt
	}
	loaded := len(d.completed)
	d.mu.Unlock()

	if err := d.store.DeleteCompletedBefore(ctx, cutoff); err != nil {
		d.log.WithError(err).Warn("Failed to prune completed log")
	}

	d.log.WithField("entries", loaded).Debug("Completed log loaded")

	return nil
}

// Close cancels any pending deferred releases.
func (d *deduplicator) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for fp, timer := range d.releases {
		timer.Stop()
		delete(d.releases, fp)
	}
}

// IsCompleted reports whether the fingerprint completed within the
// retention window.
func (d *deduplicator) IsCompleted(fp Fingerprint) Completion {
	d.mu.Lock()
	defer d.mu.Unlock()

	completedAt, ok := d.completed[fp]
	if !ok {
		return Completion{}
	}

	elapsed := d.clk.Now().Sub(completedAt)
	if elapsed >= Retention {
		return Completion{}
	}

	return Completion{
		Completed:  true,
		HoursSince: int(elapsed / time.Hour),
	}
}

// TryAcquire attempts the idle-to-locked transition for the fingerprint.
func (d *deduplicator) TryAcquire(fp Fingerprint) bool {
	now := d.clk.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, acquired := range d.locks {
		if now.Sub(acquired) > LockDuration {
			delete(d.locks, key)
		}
	}

	if _, held := d.locks[fp]; held {
		return false
	}

	d.locks[fp] = now

	return true
}

// Complete records the fingerprint as durably saved.
func (d *deduplicator) Complete(ctx context.Context, fp Fingerprint) error {
	now := d.clk.Now()
	cutoff := now.Add(-Retention)

	d.mu.Lock()
	d.completed[fp] = now

	for key, completedAt := range d.completed {
		if completedAt.Before(cutoff) {
			delete(d.completed, key)
		}
	}
	d.mu.Unlock()

	if err := d.store.UpsertCompleted(ctx, &statestore.CompletedSubmission{
		Fingerprint: string(fp),
		CompletedAt: now,
	}); err != nil {
		return err
	}

	if err := d.store.DeleteCompletedBefore(ctx, cutoff); err != nil {
		d.log.WithError(err).Warn("Failed to prune completed log")
	}

	return nil
}

// Release schedules removal of the lock entry after the cooldown.
func (d *deduplicator) Release(fp Fingerprint, after time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.releases[fp]; ok {
		timer.Stop()
	}

	d.releases[fp] = d.clk.AfterFunc(after, func() {
		d.mu.Lock()
		defer d.mu.Unlock()

		delete(d.locks, fp)
		delete(d.releases, fp)
	})
}

// RequestID derives the idempotency key for an attempt made now.
func (d *deduplicator) RequestID(fp Fingerprint) string {
	return requestID(fp, d.clk.Now())
}

// Reset drops the in-memory tables.
func (d *deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for fp, timer := range d.releases {
		timer.Stop()
		delete(d.releases, fp)
	}

	d.locks = make(map[Fingerprint]time.Time)
	d.completed = make(map[Fingerprint]time.Time)
}

// PendingLocks returns the number of live lock table entries.
func (d *deduplicator) PendingLocks() int {
	now := d.clk.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0

	for _, acquired := range d.locks {
		if now.Sub(acquired) <= LockDuration {
			count++
		}
	}

	return count
}

// CompletedCount returns the number of completed-log entries inside the
// retention window.
func (d *deduplicator) CompletedCount() int {
	cutoff := d.clk.Now().Add(-Retention)

	d.mu.Lock()
	defer d.mu.Unlock()

	count := 0

	for _, completedAt := range d.completed {
		if !completedAt.Before(cutoff) {
			count++
		}
	}

	return count
}
