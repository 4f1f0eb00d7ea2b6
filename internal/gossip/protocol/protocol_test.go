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

package protocol

import (
	"crypto/ed25519"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/gossip/internal/gossip/bloom"
)

func newTestBloom() *bloom.Filter {
	return bloom.NewFilterBits(100, 3)
}

func newSignedContactInfo(t *testing.T, port int) (*CrdsValue, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := &CrdsValue{Data: &LegacyContactInfo{
		Id:        PubkeyFromPublicKey(pub),
		Gossip:    NewSocketAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}),
		Wallclock: Now(),
	}}
	require.NoError(t, v.Sign(priv))
	return v, priv
}

func TestCrdsValueSignVerifyRoundTrip(t *testing.T) {
	v, _ := newSignedContactInfo(t, 8001)
	require.True(t, v.Verify())

	// Tampering with the data invalidates the signature.
	v.Data.(*LegacyContactInfo).ShredVersion = 42
	require.False(t, v.Verify())
}

func TestCrdsValueEncodeDecodeRoundTrip(t *testing.T) {
	v, _ := newSignedContactInfo(t, 8002)
	b, err := EncodeCrdsValue(v)
	require.NoError(t, err)

	got, err := DecodeCrdsValue(b)
	require.NoError(t, err)
	require.True(t, got.Verify())
	require.Equal(t, v.ID(), got.ID())
	require.Equal(t, v.WallclockMs(), got.WallclockMs())
}

func TestLegacyContactInfoSanitizeRejectsZeroID(t *testing.T) {
	c := &LegacyContactInfo{}
	require.Error(t, c.Sanitize())
}

func TestEpochSlotsSanitizeBounds(t *testing.T) {
	e := &EpochSlots{Index: MaxEpochSlots}
	require.Error(t, e.Sanitize())

	e2 := &EpochSlots{Index: 0, Slots: make([]uint64, 2049)}
	require.Error(t, e2.Sanitize())

	e3 := &EpochSlots{Index: 0, Slots: make([]uint64, 10)}
	require.NoError(t, e3.Sanitize())
}

func TestProtocolPushMessageEncodeDecode(t *testing.T) {
	v, _ := newSignedContactInfo(t, 8003)
	from := v.ID()
	msg := NewPushMessage(from, []*CrdsValue{v})

	b, err := Encode(msg)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, KindPushMessage, got.Kind)
	require.Len(t, got.PushValues, 1)
	require.NoError(t, got.Sanitize())
	require.True(t, got.Verify())
}

func TestProtocolPullRequestEncodeDecode(t *testing.T) {
	caller, _ := newSignedContactInfo(t, 8004)
	filter := &CrdsFilter{Mask: 0, MaskBits: 0, Bloom: newTestBloom()}
	req := NewPullRequest(filter, caller)

	b, err := Encode(req)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, KindPullRequest, got.Kind)
	require.NoError(t, got.Sanitize())
	require.True(t, got.Verify())
}

func TestProtocolSanitizeRejectsEmptyValues(t *testing.T) {
	msg := NewPushMessage(Pubkey{}, nil)
	require.Error(t, msg.Sanitize())

	resp := NewPullResponse(Pubkey{}, nil)
	require.Error(t, resp.Sanitize())
}

func TestPingPongRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	ping := &Ping{From: PubkeyFromPublicKey(pub)}
	ping.Token[0] = 0xAB
	ping.Sign(priv)
	require.True(t, ping.Verify())

	pongPub, pongPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pong, err := NewPong(ping, pongPriv)
	require.NoError(t, err)
	require.Equal(t, PubkeyFromPublicKey(pongPub), pong.From)
	require.True(t, pong.Verify())

	msg := NewPongMessage(pong)
	b, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(b)
	require.NoError(t, err)
	require.True(t, got.Verify())
}

func TestPruneDataSanitizeBounds(t *testing.T) {
	pd := &PruneData{}
	require.Error(t, pd.Sanitize())

	pd2 := &PruneData{Prunes: make([]Pubkey, MaxPruneDataNodes+1)}
	require.Error(t, pd2.Sanitize())

	pd3 := &PruneData{Prunes: make([]Pubkey, 1)}
	require.NoError(t, pd3.Sanitize())
}
