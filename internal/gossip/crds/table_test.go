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

package crds

import (
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

func newContactInfo(t *testing.T, wallclock protocol.Wallclock) (*protocol.CrdsValue, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{
		Id:        protocol.PubkeyFromPublicKey(pub),
		Gossip:    protocol.NewSocketAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9000}),
		Wallclock: wallclock,
	}}
	require.NoError(t, v.Sign(priv))
	return v, priv
}

func TestTableInsertRejectsBadSignature(t *testing.T) {
	table := NewTable()
	v, _ := newContactInfo(t, protocol.Now())
	v.Signature[0] ^= 0xff
	require.ErrorIs(t, table.Insert(v, time.Now()), ErrBadSignature)
}

func TestTableInsertRejectsStale(t *testing.T) {
	table := NewTable()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	older := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{
		Id: protocol.PubkeyFromPublicKey(pub), Wallclock: protocol.Wallclock(100),
	}}
	require.NoError(t, older.Sign(priv))
	require.NoError(t, table.Insert(older, time.Now()))

	stale := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{
		Id: protocol.PubkeyFromPublicKey(pub), Wallclock: protocol.Wallclock(50),
	}}
	require.NoError(t, stale.Sign(priv))
	require.ErrorIs(t, table.Insert(stale, time.Now()), ErrStale)
}

func TestTableInsertNewerWallclockSupersedes(t *testing.T) {
	table := NewTable()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v1 := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{Id: protocol.PubkeyFromPublicKey(pub), Wallclock: 100}}
	require.NoError(t, v1.Sign(priv))
	require.NoError(t, table.Insert(v1, time.Now()))

	v2 := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{Id: protocol.PubkeyFromPublicKey(pub), ShredVersion: 7, Wallclock: 200}}
	require.NoError(t, v2.Sign(priv))
	require.NoError(t, table.Insert(v2, time.Now()))

	got, ok := table.Get(v2.Label())
	require.True(t, ok)
	require.Equal(t, uint16(7), got.Value.Data.(*protocol.LegacyContactInfo).ShredVersion)
	require.Equal(t, 1, table.Purged.Len())
}

func TestInsertValuesRecordsTimeoutsWhenRequested(t *testing.T) {
	table := NewTable()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	v1 := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{Id: protocol.PubkeyFromPublicKey(pub), Wallclock: 100}}
	require.NoError(t, v1.Sign(priv))
	insertedAt := time.Now().Add(-time.Hour)
	require.NoError(t, table.Insert(v1, insertedAt))

	stale := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{Id: protocol.PubkeyFromPublicKey(pub), Wallclock: 50}}
	require.NoError(t, stale.Sign(priv))

	res := table.InsertValues([]*protocol.CrdsValue{stale}, time.Minute, true, false, time.Now())
	require.Empty(t, res.Inserted)
	require.Equal(t, []int{0}, res.Timeouts)
	require.Empty(t, res.Failed)

	got, ok := table.Get(stale.Label())
	require.True(t, ok)
	require.Equal(t, protocol.Wallclock(50), got.Value.WallclockMs())
}

func TestInsertValuesInsertsWithOrWithoutOriginTimestampFlag(t *testing.T) {
	table := NewTable()
	v, _ := newContactInfo(t, protocol.Now())

	res := table.InsertValues([]*protocol.CrdsValue{v}, time.Minute, false, true, time.Now())
	require.Equal(t, []int{0}, res.Inserted)

	// A second, independent origin inserted without updateAllOriginTs still
	// lands in the table; the flag only controls the timestamp bump.
	v2, _ := newContactInfo(t, protocol.Now())
	res2 := table.InsertValues([]*protocol.CrdsValue{v2}, time.Minute, false, false, time.Now())
	require.Equal(t, []int{0}, res2.Inserted)
}

func TestAttemptTrimEvictsLeastRecentlyActiveOrigins(t *testing.T) {
	table := NewTable()
	now := time.Now()
	for i := 0; i < 5; i++ {
		v, _ := newContactInfo(t, protocol.Now())
		require.NoError(t, table.Insert(v, now.Add(time.Duration(i)*time.Second)))
	}
	require.Equal(t, 5, table.OriginCount())

	require.NoError(t, table.AttemptTrim(3))
	require.Equal(t, 3, table.OriginCount())
}

func TestRemoveOldLabelsKeepsContactInfo(t *testing.T) {
	table := NewTable()
	now := time.Now()

	ci, _ := newContactInfo(t, protocol.Now())
	require.NoError(t, table.Insert(ci, now.Add(-time.Hour)))

	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	slots := &protocol.CrdsValue{Data: &protocol.EpochSlots{Id: protocol.PubkeyFromPublicKey(pub), Wallclock: protocol.Now()}}
	require.NoError(t, slots.Sign(priv))
	require.NoError(t, table.Insert(slots, now.Add(-time.Hour)))

	require.NoError(t, table.RemoveOldLabels(now, time.Minute))

	_, ok := table.Get(ci.Label())
	require.True(t, ok, "contact info must survive RemoveOldLabels")
	_, ok = table.Get(slots.Label())
	require.False(t, ok, "non-contact-info labels older than the cutoff must be removed")
}

func TestGetEntriesWithCursorOrderingAndAdvance(t *testing.T) {
	table := NewTable()
	now := time.Now()
	var labels []protocol.Label
	for i := 0; i < 10; i++ {
		v, _ := newContactInfo(t, protocol.Now())
		require.NoError(t, table.Insert(v, now))
		labels = append(labels, v.Label())
	}

	var cursor uint64
	first := table.GetEntriesWithCursor(4, &cursor)
	require.Len(t, first, 4)
	for i := 1; i < len(first); i++ {
		require.Less(t, first[i-1].Cursor, first[i].Cursor)
	}

	second := table.GetEntriesWithCursor(100, &cursor)
	require.Len(t, second, 6)

	// Rewinding the cursor re-exposes entries on the next call, matching the
	// builder's "returned - considered" rewind accounting.
	cursor -= 2
	third := table.GetEntriesWithCursor(100, &cursor)
	require.Len(t, third, 2)
}
