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

package packetbuilder

import (
	"crypto/ed25519"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

func newValue(t *testing.T) *protocol.CrdsValue {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	v := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{
		Id: protocol.PubkeyFromPublicKey(pub), Wallclock: protocol.Now(),
	}}
	require.NoError(t, v.Sign(priv))
	return v
}

func TestBuildChunksRespectMaxBytes(t *testing.T) {
	var values []*protocol.CrdsValue
	for i := 0; i < 50; i++ {
		values = append(values, newValue(t))
	}
	endpoint := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8001}

	packets, err := Build(protocol.KindPushMessage, protocol.Pubkey{}, []Group{{Endpoint: endpoint, Values: values}}, 512)
	require.NoError(t, err)
	require.Greater(t, len(packets), 1, "50 contact infos at a 512-byte bound must split into multiple packets")

	for _, pkt := range packets {
		require.LessOrEqual(t, len(pkt.Bytes), 512)
		require.Equal(t, endpoint, pkt.Addr)

		decoded, err := protocol.Decode(pkt.Bytes)
		require.NoError(t, err)
		require.Equal(t, protocol.KindPushMessage, decoded.Kind)
		require.NotEmpty(t, decoded.PushValues)
	}
}

func TestBuildAddressesEachGroupSeparately(t *testing.T) {
	a := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8001}
	b := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8002}
	groups := []Group{
		{Endpoint: a, Values: []*protocol.CrdsValue{newValue(t)}},
		{Endpoint: b, Values: []*protocol.CrdsValue{newValue(t)}},
	}

	packets, err := Build(protocol.KindPullResponse, protocol.Pubkey{}, groups, protocol.PushMessageMaxPayloadSize)
	require.NoError(t, err)
	require.Len(t, packets, 2)
	require.Equal(t, a, packets[0].Addr)
	require.Equal(t, b, packets[1].Addr)
}

func TestBuildRejectsUnsupportedMode(t *testing.T) {
	_, err := Build(protocol.KindPingMessage, protocol.Pubkey{}, nil, 512)
	require.Error(t, err)
}

func TestBuildEmptyGroupProducesNoPackets(t *testing.T) {
	endpoint := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8001}
	packets, err := Build(protocol.KindPushMessage, protocol.Pubkey{}, []Group{{Endpoint: endpoint}}, 512)
	require.NoError(t, err)
	require.Empty(t, packets)
}
