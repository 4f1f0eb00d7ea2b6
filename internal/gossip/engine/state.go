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

package engine

import (
	"sync"
	"time"

	"github.com/facebookincubator/gossip/internal/gossip/activeset"
	"github.com/facebookincubator/gossip/internal/gossip/crds"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

// PushQueue is the fourth shared container of §5. Builder is its only
// writer and only reader: it is how the Builder hands its own re-signed
// contact info (republishSelf) back to itself for insertion into the CRDS
// table on the next tick, ahead of the cursor scan that actually fans
// values out to the active set. Processor never touches it — a value the
// Processor accepts into the table is already visible to Builder's own
// cursor scan (§4.4.1) without needing to be separately queued.
type PushQueue struct {
	mu      sync.Mutex
	pending []*protocol.CrdsValue
}

// NewPushQueue returns an empty push queue.
func NewPushQueue() *PushQueue {
	return &PushQueue{}
}

// Enqueue appends v for the next push pass to pick up.
func (q *PushQueue) Enqueue(v *protocol.CrdsValue) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, v)
}

// Drain removes and returns every currently queued value.
func (q *PushQueue) Drain() []*protocol.CrdsValue {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of values currently queued.
func (q *PushQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// sharedState bundles the four containers spec.md §5 names as concurrently
// accessed state, plus the identity and timing knobs every worker needs.
// The lock-ordering rule the workers must respect is: PushQueue before
// Table, and never any other pair of these nested at once. ActiveSet and
// FailedPullHashes are never locked while holding another container's lock.
type sharedState struct {
	table            *crds.Table
	active           *activeset.ActiveSet
	pushQueue        *PushQueue
	failedPullHashes *crds.HashTimeQueue

	selfID protocol.Pubkey
}

func newSharedState(selfID protocol.Pubkey) *sharedState {
	return &sharedState{
		table:            crds.NewTable(),
		active:           activeset.New(),
		pushQueue:        NewPushQueue(),
		failedPullHashes: &crds.HashTimeQueue{},
		selfID:           selfID,
	}
}

// trimFailedPullHashes drops failed-pull-hash entries older than
// FailedInsertsRetention (20 s); the table's own purged-value queue is
// trimmed separately by Builder.trimMemory at 5 × CrdsGossipPullCrdsTimeout.
func (s *sharedState) trimFailedPullHashes(now time.Time) {
	s.failedPullHashes.Trim(now.Add(-protocol.FailedInsertsRetention))
}
