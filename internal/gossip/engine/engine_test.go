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
	"crypto/sha256"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

// TestEngineInsertsPushedValueAndAnswersPingWithinOneSecond is scenario S6:
// a value carried in a PushMessage is visible in the CRDS table, and a Ping
// sent to the engine is answered with a verifiable Pong, both inside one
// second of real wall-clock time over a real loopback UDP socket.
func TestEngineInsertsPushedValueAndAnswersPingWithinOneSecond(t *testing.T) {
	_, keypair := newIdentity(t)
	cfg := &Config{
		Keypair:         keypair,
		IP:              net.ParseIP("127.0.0.1"),
		Port:            0,
		QueueCapacity:   64,
		BloomFilterSize: 64,
	}
	e, err := New(cfg, stats.Noop{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- e.Start() }()
	defer func() {
		e.Stop()
		select {
		case stopErr := <-done:
			require.NoError(t, stopErr, "Start must return nil after a requested Stop")
		case <-time.After(2 * time.Second):
			t.Fatal("engine did not stop after Stop()")
		}
	}()

	serverAddr := e.conn.LocalAddr().(*net.UDPAddr)

	client, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer client.Close()

	value, valueID, _ := signedContactInfo(t, 9900)
	pushMsg := protocol.NewPushMessage(valueID, []*protocol.CrdsValue{value})
	pushBytes, err := protocol.Encode(pushMsg)
	require.NoError(t, err)
	_, err = client.WriteToUDP(pushBytes, serverAddr)
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	var inserted bool
	for time.Now().Before(deadline) {
		if _, ok := e.state.table.Get(value.Label()); ok {
			inserted = true
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.True(t, inserted, "pushed value must be visible in the CRDS table within one second")

	pingerID, pingerPriv := newIdentity(t)
	ping := &protocol.Ping{From: pingerID}
	ping.Token[0] = 42
	ping.Sign(pingerPriv)
	pingBytes, err := protocol.Encode(protocol.NewPingMessage(ping))
	require.NoError(t, err)

	_, err = client.WriteToUDP(pingBytes, serverAddr)
	require.NoError(t, err)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 2048)
	n, _, err := client.ReadFromUDP(buf)
	require.NoError(t, err, "pong must arrive within one second")

	decoded, err := protocol.Decode(buf[:n])
	require.NoError(t, err)
	require.Equal(t, protocol.KindPongMessage, decoded.Kind)
	require.True(t, decoded.Verify())
	require.Equal(t, sha256.Sum256(ping.Token[:]), decoded.Pong.Hash)
}
