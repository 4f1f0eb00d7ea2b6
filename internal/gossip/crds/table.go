/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package crds implements the Cluster Replicated Data Store: the table of
// signed, timestamped records the gossip engine disseminates. It is
// consumed by the engine only through the narrow contract in spec.md §6.2;
// this package is the concrete implementation of that contract, grounded
// on ptp4u/server's sync.Map-backed client table generalized to a
// versioned, cursor-ordered store with wallclock-tie-break-by-value-hash
// conflict resolution.
package crds

import (
	"bytes"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

// Errors returned by Insert / InsertValues. They are transient-per-value
// outcomes, never fatal.
var (
	ErrBadSignature = errors.New("crds: signature verification failed")
	ErrStale        = errors.New("crds: value is stale (duplicate or older wallclock)")
)

// ErrOutOfMemory is the fatal condition raised by AttemptTrim / RemoveOldLabels
// when the table cannot bound its own memory; per spec.md §7 this aborts
// the process.
var ErrOutOfMemory = errors.New("crds: out of memory during trim")

// VersionedValue is the stored form of a CrdsValue: tagged with its content
// hash and a monotonically increasing cursor used by the push scan.
type VersionedValue struct {
	Value                *protocol.CrdsValue
	ValueHash             [32]byte
	TimestampOnInsertion time.Time
	Cursor               uint64
}

// Table is the CRDS: a label-keyed store of VersionedValue, trackable by
// cursor for incremental push scans and by origin for capacity trimming.
type Table struct {
	mu sync.RWMutex

	values map[protocol.Label]*VersionedValue
	cursor uint64

	// originActivity records the most recent insertion time touching each
	// origin, used by AttemptTrim to evict least-recently-active origins.
	originActivity map[protocol.Pubkey]time.Time
	originLabels   map[protocol.Pubkey]map[protocol.Label]struct{}

	Purged *HashTimeQueue
}

// NewTable returns an empty CRDS table.
func NewTable() *Table {
	return &Table{
		values:         make(map[protocol.Label]*VersionedValue),
		originActivity: make(map[protocol.Pubkey]time.Time),
		originLabels:   make(map[protocol.Pubkey]map[protocol.Label]struct{}),
		Purged:         &HashTimeQueue{},
	}
}

// Insert verifies and inserts a single value, rejecting it per invariants 1
// and 2 of spec.md §3: bad signature, or a wallclock no newer than the
// existing same-label record (ties broken deterministically by value hash,
// higher hash wins, so every node converges on the same choice).
func (t *Table) Insert(v *protocol.CrdsValue, now time.Time) error {
	if !v.Verify() {
		return ErrBadSignature
	}
	hash, err := v.ValueHash()
	if err != nil {
		return ErrBadSignature
	}

	label := v.Label()

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.values[label]; ok {
		if !supersedes(v, hash, existing) {
			return ErrStale
		}
		t.Purged.Push(existing.ValueHash, now)
	}

	t.cursor++
	t.values[label] = &VersionedValue{
		Value:                v,
		ValueHash:             hash,
		TimestampOnInsertion: now,
		Cursor:               t.cursor - 1,
	}
	t.originActivity[label.Origin] = now
	labels, ok := t.originLabels[label.Origin]
	if !ok {
		labels = make(map[protocol.Label]struct{})
		t.originLabels[label.Origin] = labels
	}
	labels[label] = struct{}{}
	return nil
}

// supersedes reports whether candidate (with hash candidateHash) should
// replace existing: strictly newer wallclock wins outright; an equal
// wallclock is broken by comparing value hashes so all nodes agree.
func supersedes(candidate *protocol.CrdsValue, candidateHash [32]byte, existing *VersionedValue) bool {
	cw := candidate.WallclockMs()
	ew := existing.Value.WallclockMs()
	if cw != ew {
		return cw > ew
	}
	return bytes.Compare(candidateHash[:], existing.ValueHash[:]) > 0
}

// InsertResult is the three index lists InsertValues returns, matching the
// { inserted, timeouts, failed } shape of spec.md §6.2.
type InsertResult struct {
	Inserted []int
	Timeouts []int
	Failed   []int
}

// InsertValues implements the batch insert contract used by both the push
// (§4.3.1) and pull-response (§4.3.2) handlers. When updateAllOriginTs is
// set, every successfully inserted value's origin has its contact-info
// timestamp refreshed. When recordTimeouts is set, a value that failed
// only because the existing record is older than timeout is force-inserted
// unconditionally (failures on that unconditional insert are ignored) and
// reported as a timeout rather than a failure.
func (t *Table) InsertValues(values []*protocol.CrdsValue, timeout time.Duration, recordTimeouts, updateAllOriginTs bool, now time.Time) InsertResult {
	var res InsertResult
	for i, v := range values {
		err := t.Insert(v, now)
		if err == nil {
			res.Inserted = append(res.Inserted, i)
			if updateAllOriginTs {
				t.UpdateRecordTimestamp(v.ID(), now)
			}
			continue
		}
		if err == ErrStale && recordTimeouts && t.existingOlderThan(v.Label(), now, timeout) {
			_ = t.forceInsert(v, now)
			res.Timeouts = append(res.Timeouts, i)
			continue
		}
		res.Failed = append(res.Failed, i)
	}
	return res
}

func (t *Table) existingOlderThan(label protocol.Label, now time.Time, timeout time.Duration) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	existing, ok := t.values[label]
	if !ok {
		return false
	}
	return now.Sub(existing.TimestampOnInsertion) > timeout
}

// forceInsert inserts v unconditionally, overwriting whatever is at its
// label regardless of staleness rules. Used only by the recordTimeouts path.
func (t *Table) forceInsert(v *protocol.CrdsValue, now time.Time) error {
	hash, err := v.ValueHash()
	if err != nil {
		return err
	}
	label := v.Label()

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.values[label]; ok {
		t.Purged.Push(existing.ValueHash, now)
	}
	t.cursor++
	t.values[label] = &VersionedValue{
		Value:                v,
		ValueHash:             hash,
		TimestampOnInsertion: now,
		Cursor:               t.cursor - 1,
	}
	t.originActivity[label.Origin] = now
	labels, ok := t.originLabels[label.Origin]
	if !ok {
		labels = make(map[protocol.Label]struct{})
		t.originLabels[label.Origin] = labels
	}
	labels[label] = struct{}{}
	return nil
}

// Get returns the stored value for label, if any.
func (t *Table) Get(label protocol.Label) (*VersionedValue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[label]
	return v, ok
}

// UpdateRecordTimestamp refreshes the contact-info activity timestamp for
// origin, used to keep it from being trimmed as inactive.
func (t *Table) UpdateRecordTimestamp(origin protocol.Pubkey, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.originActivity[origin] = now
}

// GetEntriesWithCursor returns up to max entries whose cursor is >= *cursor,
// ordered by cursor ascending, and advances *cursor to one past the last
// entry returned (or leaves it unchanged if nothing matched).
func (t *Table) GetEntriesWithCursor(max int, cursor *uint64) []*VersionedValue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cap := max
	if cap > len(t.values) {
		cap = len(t.values)
	}
	matches := make([]*VersionedValue, 0, cap)
	for _, v := range t.values {
		if v.Cursor >= *cursor {
			matches = append(matches, v)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Cursor < matches[j].Cursor })
	if len(matches) > max {
		matches = matches[:max]
	}
	if len(matches) > 0 {
		*cursor = matches[len(matches)-1].Cursor + 1
	}
	return matches
}

// GetAllEntries returns every stored value, unordered, for callers (like the
// pull-filter builder) that need to scan the whole table rather than a
// cursor-bounded window.
func (t *Table) GetAllEntries() []*VersionedValue {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*VersionedValue, 0, len(t.values))
	for _, v := range t.values {
		out = append(out, v)
	}
	return out
}

// GetContactInfos returns up to max LegacyContactInfo entries, used by
// get_gossip_nodes (§4.4.5) and active-set rotation.
func (t *Table) GetContactInfos(max int) []*VersionedValue {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*VersionedValue, 0, max)
	for label, v := range t.values {
		if label.Kind != protocol.KindLegacyContactInfo {
			continue
		}
		out = append(out, v)
		if len(out) >= max {
			break
		}
	}
	return out
}

// AttemptTrim evicts the least-recently-active origins (and every label
// belonging to them) until at most capacity distinct origins remain,
// enforcing invariant 3 of spec.md §3.
func (t *Table) AttemptTrim(capacity int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.originLabels) <= capacity {
		return nil
	}

	type originAge struct {
		origin protocol.Pubkey
		at     time.Time
	}
	origins := make([]originAge, 0, len(t.originActivity))
	for o, at := range t.originActivity {
		origins = append(origins, originAge{o, at})
	}
	sort.Slice(origins, func(i, j int) bool { return origins[i].at.Before(origins[j].at) })

	toEvict := len(t.originLabels) - capacity
	for i := 0; i < toEvict && i < len(origins); i++ {
		origin := origins[i].origin
		for label := range t.originLabels[origin] {
			delete(t.values, label)
		}
		delete(t.originLabels, origin)
		delete(t.originActivity, origin)
	}
	return nil
}

// RemoveOldLabels drops any non-contact-info label whose insertion
// timestamp is older than now-timeout; contact info is retained (and
// governed instead by AttemptTrim / get_gossip_nodes' activity filter) so a
// quiet-but-alive peer is never forgotten outright.
func (t *Table) RemoveOldLabels(now time.Time, timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-timeout)
	for label, v := range t.values {
		if label.Kind == protocol.KindLegacyContactInfo {
			continue
		}
		if v.TimestampOnInsertion.Before(cutoff) {
			delete(t.values, label)
			if labels, ok := t.originLabels[label.Origin]; ok {
				delete(labels, label)
				if len(labels) == 0 {
					delete(t.originLabels, label.Origin)
					delete(t.originActivity, label.Origin)
				}
			}
		}
	}
	return nil
}

// Len returns the total number of stored values.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.values)
}

// OriginCount returns the number of distinct origins currently tracked,
// the quantity invariant 3 bounds by CrdsUniquePubkeyCapacity.
func (t *Table) OriginCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.originLabels)
}
