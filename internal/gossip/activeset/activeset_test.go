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

package activeset

import (
	"crypto/ed25519"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/gossip/internal/gossip/crds"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

func newPeer(t *testing.T, port int) (protocol.Pubkey, *protocol.CrdsValue) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id := protocol.PubkeyFromPublicKey(pub)
	v := &protocol.CrdsValue{Data: &protocol.LegacyContactInfo{
		Id:        id,
		Gossip:    protocol.NewSocketAddr(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: port}),
		Wallclock: protocol.Now(),
	}}
	require.NoError(t, v.Sign(priv))
	return id, v
}

func TestRotateCapsAtNumActiveSetEntries(t *testing.T) {
	a := New()
	var candidates []protocol.Pubkey
	for i := 0; i < protocol.NumActiveSetEntries+10; i++ {
		id, _ := newPeer(t, 9000+i)
		candidates = append(candidates, id)
	}
	a.Rotate(candidates)
	require.Equal(t, protocol.NumActiveSetEntries, a.Len())
}

func TestGetFanoutPeersSkipsPrunedOrigin(t *testing.T) {
	table := crds.NewTable()
	peerID, peerInfo := newPeer(t, 9100)
	require.NoError(t, table.Insert(peerInfo, time.Now()))

	a := New()
	a.Rotate([]protocol.Pubkey{peerID})

	origin, _ := newPeer(t, 9101)
	peers := a.GetFanoutPeers(origin, table)
	require.Len(t, peers, 1)
	require.Equal(t, peerID, peers[0].Id)

	a.Prune(peerID, origin)
	peers = a.GetFanoutPeers(origin, table)
	require.Empty(t, peers)
}

func TestGetFanoutPeersSkipsPeersWithNoKnownContactInfo(t *testing.T) {
	table := crds.NewTable()
	a := New()
	unknown, _ := newPeer(t, 9200)
	a.Rotate([]protocol.Pubkey{unknown})

	origin, _ := newPeer(t, 9201)
	require.Empty(t, a.GetFanoutPeers(origin, table))
}
