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

// Package engine implements the five cooperating workers (Receiver,
// Verifier, Processor, Builder, Responder) that make up the gossip core,
// the shared mutable state they coordinate around, and the lock discipline
// of spec.md §5. It is grounded on ptp4u/server.Server: a struct owning a
// UDP socket and a fixed worker pool, started with the
// wg.Add(1)-once / any-goroutine-exit pattern.
package engine

import (
	"crypto/ed25519"
	"net"
	"time"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

// Config is the engine's static configuration, populated by cmd/gossipd
// flag parsing the way ptp4u/server.Config is.
type Config struct {
	// Keypair is this node's identity; PublicKey derives Pubkey.
	Keypair ed25519.PrivateKey

	// IP/Port is the local UDP gossip endpoint to bind.
	IP   net.IP
	Port int

	// ShredVersion gates peers per §4.4.5: a non-zero value rejects any
	// peer advertising a different shred version (including 0).
	ShredVersion uint16

	// QueueCapacity bounds the ingress/verified/egress queues (§5: 10000).
	QueueCapacity int

	// BloomFilterSize sizes each CrdsFilter's bloom (tunable, §9 OQ2 notes
	// MAX_NUM_CRDS_VALUES_PULL_RESPONSE itself is flagged "tune").
	BloomFilterSize int

	// MonitoringPort serves /metrics if non-zero.
	MonitoringPort int
}

// Pubkey derives this node's public identity from Keypair.
func (c *Config) Pubkey() protocol.Pubkey {
	return protocol.PubkeyFromPublicKey(c.Keypair.Public().(ed25519.PublicKey))
}

// gossipReadTimeout is the Receiver's blocking-read deadline (§4.1).
const gossipReadTimeout = 1 * time.Second

// pollSleep is the Verifier's cooperative-poll backoff when its ingress
// queue is empty (§4.2).
const pollSleep = 1 * time.Millisecond
