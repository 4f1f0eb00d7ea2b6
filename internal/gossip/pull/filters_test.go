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

package pull

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/gossip/internal/gossip/bloom"
	"github.com/facebookincubator/gossip/internal/gossip/crds"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

func newSignedValue(t *testing.T, wallclock protocol.Wallclock) *protocol.CrdsValue {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{
		Id: protocol.PubkeyFromPublicKey(pub), Wallclock: wallclock,
	}}
	require.NoError(t, v.Sign(priv))
	return v
}

// TestBuildFiltersCoversCallerMaskBits1 is the filter-construction half of
// scenario S3: 250 entries against a 100-entry bloom target split the
// keyspace into two mask_bits=1 shards (masks 0 and 1<<63), each with a
// fresh bloom sized for 100 entries at fp=0.1.
func TestBuildFiltersCoversCallerMaskBits1(t *testing.T) {
	table := crds.NewTable()
	now := time.Now()
	// Enough entries that BuildFilters must split the keyspace into two
	// shards (mask_bits=1) to keep each shard's bloom under its target size.
	for i := 0; i < 250; i++ {
		v := newSignedValue(t, protocol.Wallclock(now.UnixMilli()))
		require.NoError(t, table.Insert(v, now))
	}

	failed := &crds.HashTimeQueue{}
	filters := BuildFilters(table, failed, 100, 2)
	require.Len(t, filters, 2)

	for i, f := range filters {
		require.Equal(t, uint32(1), f.MaskBits)
		// ceil(-100 * ln(0.1) / ln(2)^2) = ceil(479.25) = 480 bits.
		require.Equal(t, uint64(480), f.Bloom.NumBits())
		if i == 1 {
			require.Equal(t, uint64(1)<<63, f.Mask)
		}
	}
}

func TestBuildFiltersShardsAcrossMultipleFilters(t *testing.T) {
	table := crds.NewTable()
	now := time.Now()
	for i := 0; i < 400; i++ {
		v := newSignedValue(t, protocol.Wallclock(now.UnixMilli()))
		require.NoError(t, table.Insert(v, now))
	}

	failed := &crds.HashTimeQueue{}
	filters := BuildFilters(table, failed, 50, 16)
	require.Greater(t, len(filters), 1)
	require.LessOrEqual(t, len(filters), 16)
}

func TestFilterValuesRespectsMaxWallclockAndBloom(t *testing.T) {
	table := crds.NewTable()
	now := time.Now()

	known := newSignedValue(t, protocol.Wallclock(now.UnixMilli()))
	require.NoError(t, table.Insert(known, now))
	tooNew := newSignedValue(t, protocol.Wallclock(now.Add(time.Hour).UnixMilli()))
	require.NoError(t, table.Insert(tooNew, now))

	filter := &protocol.CrdsFilter{MaskBits: 0, Mask: 0, Bloom: bloom.NewFilterBits(100, 3)}
	out := FilterValues(table, filter, protocol.Wallclock(now.UnixMilli()), 10)

	require.Len(t, out, 1)
	require.Equal(t, known.ID(), out[0].ID())
}

func TestFilterValuesSkipsAlreadyKnownHashes(t *testing.T) {
	table := crds.NewTable()
	now := time.Now()
	v := newSignedValue(t, protocol.Wallclock(now.UnixMilli()))
	require.NoError(t, table.Insert(v, now))

	hash, err := v.ValueHash()
	require.NoError(t, err)

	bf := bloom.NewFilterBits(100, 3)
	bf.Add(hash[:])
	filter := &protocol.CrdsFilter{MaskBits: 0, Mask: 0, Bloom: bf}

	out := FilterValues(table, filter, protocol.Wallclock(now.UnixMilli()), 10)
	require.Empty(t, out)
}
