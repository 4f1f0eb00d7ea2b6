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
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
	"github.com/facebookincubator/gossip/internal/gossip/queue"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

// Verifier is the worker of §4.2: decode, sanitize, and verify every
// incoming packet, handing survivors to the Processor. It never blocks on
// a queue receive — only TryDrain plus a short sleep when idle — so the
// exit flag is always checked between batches regardless of how quiet the
// ingress queue is.
type Verifier struct {
	ingest   *queue.Queue[Packet]
	verified *queue.Queue[VerifiedMessage]
	stats    stats.Stats
	exit     *exitFlag
}

func newVerifier(ingest *queue.Queue[Packet], verified *queue.Queue[VerifiedMessage], st stats.Stats, exit *exitFlag) *Verifier {
	return &Verifier{ingest: ingest, verified: verified, stats: st, exit: exit}
}

// Run polls the ingress queue until the exit flag is raised.
func (v *Verifier) Run() {
	for !v.exit.isSet() {
		batch := v.ingest.TryDrain()
		if len(batch) == 0 {
			time.Sleep(pollSleep)
			continue
		}
		for _, pkt := range batch {
			v.process(pkt)
		}
		v.stats.SetQueueDepth("verified", v.verified.Len())
	}
}

func (v *Verifier) process(pkt Packet) {
	msg, err := protocol.Decode(pkt.Bytes)
	if err != nil {
		log.WithError(err).WithField("addr", pkt.Addr).Debug("verifier: decode")
		return
	}
	if err := msg.Sanitize(); err != nil {
		log.WithError(err).WithField("addr", pkt.Addr).Debug("verifier: sanitize")
		return
	}
	if !msg.Verify() {
		log.WithField("addr", pkt.Addr).WithField("kind", msg.Kind).Debug("verifier: bad signature")
		return
	}
	v.verified.Send(VerifiedMessage{From: pkt.Addr, Message: msg})
}
