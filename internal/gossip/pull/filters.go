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

// Package pull implements the bloom-filter pull machinery spec.md treats as
// an out-of-scope collaborator, consumed by the engine only through
// BuildFilters (build_crds_filters) and FilterValues (filter_crds_values).
package pull

import (
	"encoding/binary"

	"github.com/facebookincubator/gossip/internal/gossip/bloom"
	"github.com/facebookincubator/gossip/internal/gossip/crds"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

func hashToUint64(h [32]byte) uint64 {
	return binary.BigEndian.Uint64(h[:8])
}

// BuildFilters shards the CRDS keyspace into up to maxFilters CrdsFilter
// values, each a bloom of the hashes the local node already has in that
// shard (so the peer it mails the filter to can send back the complement)
// plus the locally known failed-pull-hashes (so the peer doesn't waste a
// response resending something we just rejected).
func BuildFilters(table *crds.Table, failedHashes *crds.HashTimeQueue, bloomSize int, maxFilters int) []*protocol.CrdsFilter {
	total := table.Len() + failedHashes.Len()
	if total == 0 {
		total = 1
	}

	numFilters := 1
	for numFilters < maxFilters && total/numFilters > bloomSize {
		numFilters *= 2
	}
	if numFilters > maxFilters {
		numFilters = maxFilters
	}

	maskBits := 0
	for (1 << maskBits) < numFilters {
		maskBits++
	}
	for maskBits > 0 && (1<<maskBits) > maxFilters {
		maskBits--
	}
	numFilters = 1 << maskBits

	filters := make([]*protocol.CrdsFilter, numFilters)
	for i := 0; i < numFilters; i++ {
		var mask uint64
		if maskBits > 0 {
			mask = uint64(i) << (64 - maskBits)
		}
		filters[i] = &protocol.CrdsFilter{
			Mask:     mask,
			MaskBits: uint32(maskBits),
			Bloom:    bloom.NewFilter(bloomSize, 0.1),
		}
	}

	shardOf := func(h uint64) int {
		if maskBits == 0 {
			return 0
		}
		return int(h >> (64 - maskBits))
	}

	for _, v := range table.GetAllEntries() {
		h := hashToUint64(v.ValueHash)
		f := filters[shardOf(h)]
		f.Bloom.Add(v.ValueHash[:])
	}
	for _, e := range failedHashes.GetValues() {
		h := hashToUint64(e.Hash)
		f := filters[shardOf(h)]
		f.Bloom.Add(e.Hash[:])
	}

	return filters
}

// FilterValues returns up to max CrdsValues from table that fall in
// filter's shard of the keyspace, are not already reflected in filter's
// bloom, and whose wallclock does not exceed maxWallclock (the caller must
// not be sent anything newer than the contact info it advertised).
func FilterValues(table *crds.Table, filter *protocol.CrdsFilter, maxWallclock protocol.Wallclock, max int) []*protocol.CrdsValue {
	out := make([]*protocol.CrdsValue, 0, max)

	for _, v := range table.GetAllEntries() {
		if len(out) >= max {
			break
		}
		if v.Value.WallclockMs() > maxWallclock {
			continue
		}
		h := hashToUint64(v.ValueHash)
		if !filter.Matches(h) {
			continue
		}
		if filter.Bloom.Contains(v.ValueHash[:]) {
			continue
		}
		out = append(out, v.Value)
	}
	return out
}
