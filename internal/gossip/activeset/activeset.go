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

// Package activeset implements the set of push peers a node fans values
// out to, generalized from ptp4u/server's nested sync.Map client/
// subscription tables (syncMapCli/syncMapSub) into a fixed-capacity,
// periodically-rotated peer set where each entry additionally tracks which
// origins that peer has asked to stop receiving.
package activeset

import (
	"math/rand"
	"sync"

	"github.com/facebookincubator/gossip/internal/gossip/bloom"
	"github.com/facebookincubator/gossip/internal/gossip/crds"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

// prunedBloomSize/FPRate size the per-peer pruned-origin filter; a few
// hundred origins per active-set peer is the expected order of magnitude.
const (
	prunedBloomSize = 1024
	prunedFPRate    = 0.01
)

type entry struct {
	peer   protocol.Pubkey
	pruned *bloom.Filter
}

// ActiveSet is the up-to-NUM_ACTIVE_SET_ENTRIES set of push peers. It is
// safe for concurrent use; Rotate/Prune are writers and GetFanoutPeers is a
// reader per the lock table in spec.md §5.
type ActiveSet struct {
	mu      sync.RWMutex
	entries []*entry
}

// New returns an empty active set.
func New() *ActiveSet {
	return &ActiveSet{}
}

// Rotate replaces the active set with up to NumActiveSetEntries peers drawn
// from candidates, each starting with a fresh (empty) pruned-origin filter.
func (a *ActiveSet) Rotate(candidates []protocol.Pubkey) {
	n := len(candidates)
	if n > protocol.NumActiveSetEntries {
		n = protocol.NumActiveSetEntries
	}

	shuffled := make([]protocol.Pubkey, len(candidates))
	copy(shuffled, candidates)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	entries := make([]*entry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, &entry{
			peer:   shuffled[i],
			pruned: bloom.NewFilter(prunedBloomSize, prunedFPRate),
		})
	}

	a.mu.Lock()
	a.entries = entries
	a.mu.Unlock()
}

// Prune records that peer no longer wants records originating at origin.
func (a *ActiveSet) Prune(peer protocol.Pubkey, origin protocol.Pubkey) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, e := range a.entries {
		if e.peer == peer {
			e.pruned.Add(origin[:])
			return
		}
	}
}

// Peers returns the current active-set membership, for diagnostics and
// tests.
func (a *ActiveSet) Peers() []protocol.Pubkey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]protocol.Pubkey, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.peer
	}
	return out
}

// Len reports the number of peers currently in the active set.
func (a *ActiveSet) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}

// GetFanoutPeers returns the LegacyContactInfo (looked up in table) of every
// active-set peer that has NOT pruned origin; callers take the gossip
// endpoint from it. Peers with no known contact info are skipped.
func (a *ActiveSet) GetFanoutPeers(origin protocol.Pubkey, table *crds.Table) []*protocol.LegacyContactInfo {
	a.mu.RLock()
	snapshot := make([]*entry, len(a.entries))
	copy(snapshot, a.entries)
	a.mu.RUnlock()

	out := make([]*protocol.LegacyContactInfo, 0, len(snapshot))
	for _, e := range snapshot {
		if e.pruned.Contains(origin[:]) {
			continue
		}
		label := protocol.Label{Origin: e.peer, Kind: protocol.KindLegacyContactInfo, Index: 0}
		vv, ok := table.Get(label)
		if !ok {
			continue
		}
		ci, ok := vv.Value.Data.(*protocol.LegacyContactInfo)
		if !ok {
			continue
		}
		out = append(out, ci)
	}
	return out
}
