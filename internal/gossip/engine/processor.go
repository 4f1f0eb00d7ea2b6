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
	"crypto/ed25519"
	"crypto/sha256"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/packetbuilder"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
	"github.com/facebookincubator/gossip/internal/gossip/pull"
	"github.com/facebookincubator/gossip/internal/gossip/queue"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

// Processor is the worker of §4.3: it dispatches every verified message by
// kind, mutating the shared CRDS/ActiveSet/failed-pull-hashes state (never
// the PushQueue) and queuing any reply packets onto the egress queue.
type Processor struct {
	state   *sharedState
	keypair ed25519.PrivateKey
	egress  *queue.Queue[Packet]
	in      *queue.Queue[VerifiedMessage]
	stats   stats.Stats
	exit    *exitFlag
}

func newProcessor(state *sharedState, keypair ed25519.PrivateKey, in *queue.Queue[VerifiedMessage], egress *queue.Queue[Packet], st stats.Stats, exit *exitFlag) *Processor {
	return &Processor{state: state, keypair: keypair, egress: egress, in: in, stats: st, exit: exit}
}

// Run polls the verified-message queue until the exit flag is raised.
func (p *Processor) Run() {
	for !p.exit.isSet() {
		batch := p.in.TryDrain()
		if len(batch) == 0 {
			time.Sleep(pollSleep)
			continue
		}
		for _, vm := range batch {
			p.dispatch(vm)
		}
	}
}

func (p *Processor) dispatch(vm VerifiedMessage) {
	msg := vm.Message
	var err *ProcessError
	switch msg.Kind {
	case protocol.KindPushMessage:
		err = p.handlePushMessage(vm.From, msg)
		p.stats.IncPush()
	case protocol.KindPullResponse:
		err = p.handlePullResponse(msg)
		p.stats.IncPull()
	case protocol.KindPullRequest:
		err = p.handlePullRequest(vm.From, msg)
		p.stats.IncPull()
	case protocol.KindPruneMessage:
		err = p.handlePruneMessage(msg)
		p.stats.IncPrune()
	case protocol.KindPingMessage:
		err = p.handlePingMessage(vm.From, msg)
		p.stats.IncPing()
	case protocol.KindPongMessage:
		p.stats.IncPong()
	}
	if err != nil {
		log.WithFields(log.Fields(err.Context)).WithError(err).WithField("kind", msg.Kind).Error("processor: handle message")
	}

	if trimErr := p.state.table.AttemptTrim(protocol.CrdsUniquePubkeyCapacity); trimErr != nil {
		log.WithError(trimErr).Fatal("processor: opportunistic trim")
	}
}

// handlePushMessage implements §4.3.1: insert the carried values with no
// cross-origin timestamp update, collect the deduplicated set of origins
// whose insert failed (duplicate/stale/already-seen), and prune-back the
// sender for that set via Build-Prune. Our own pubkey is never a prune
// target (invariant 5), so it's dropped here the same way handlePruneMessage
// drops it on the inbound side.
func (p *Processor) handlePushMessage(_ *net.UDPAddr, msg *protocol.Protocol) *ProcessError {
	now := time.Now()
	res := p.state.table.InsertValues(msg.PushValues, protocol.CrdsGossipPushMsgTimeout, false, false, now)

	if len(res.Failed) == 0 {
		return nil
	}
	failedOrigins := make([]protocol.Pubkey, 0, len(res.Failed))
	seen := make(map[protocol.Pubkey]struct{})
	for _, i := range res.Failed {
		origin := msg.PushValues[i].ID()
		if origin == p.state.selfID {
			continue
		}
		if _, ok := seen[origin]; ok {
			continue
		}
		seen[origin] = struct{}{}
		failedOrigins = append(failedOrigins, origin)
	}
	if len(failedOrigins) == 0 {
		return nil
	}

	packets, perr := p.buildPruneMessage(failedOrigins, msg.PushFrom, now)
	if perr != nil {
		return perr
	}
	for _, pkt := range packets {
		p.egress.Send(*pkt)
	}
	return nil
}

// handlePullResponse implements §4.3.2: insert the carried values with
// force-insert-on-timeout semantics, and record the SHA-256 of every
// rejected value so future pull filters don't re-request it.
func (p *Processor) handlePullResponse(msg *protocol.Protocol) *ProcessError {
	now := time.Now()
	res := p.state.table.InsertValues(msg.PullResponseValues, protocol.CrdsGossipPullCrdsTimeout, true, true, now)

	if len(res.Failed) > 0 {
		p.state.trimFailedPullHashes(now)
		for _, i := range res.Failed {
			b, err := protocol.EncodeCrdsValue(msg.PullResponseValues[i])
			if err != nil {
				continue
			}
			p.state.failedPullHashes.Push(sha256.Sum256(b), now)
		}
	}
	return nil
}

// handlePullRequest implements §4.3.3: admit the caller's own contact info
// into the table, then answer with whatever values in our shard of the
// filter's keyspace the caller doesn't already have and isn't newer than
// what the caller itself advertised, chunked into PullResponse packets
// (§4.5) so no outbound datagram exceeds PacketDataSize.
func (p *Processor) handlePullRequest(from *net.UDPAddr, msg *protocol.Protocol) *ProcessError {
	caller := msg.PullRequestCaller
	now := time.Now()
	if err := p.state.table.Insert(caller, now); err == nil {
		p.state.table.UpdateRecordTimestamp(caller.ID(), now)
	}

	values := pull.FilterValues(p.state.table, msg.PullRequestFilter, caller.WallclockMs(), protocol.MaxNumCrdsValuesPullResp)
	if len(values) == 0 {
		return nil
	}

	group := []packetbuilder.Group{{Endpoint: from, Values: values}}
	packets, err := packetbuilder.Build(protocol.KindPullResponse, p.state.selfID, group, protocol.PullResponseMaxPayloadSize)
	if err != nil {
		return newProcessError(ErrSerializationError, map[string]any{"from": from}, err)
	}
	for _, pkt := range packets {
		p.egress.Send(Packet{Addr: pkt.Addr, Bytes: pkt.Bytes})
	}
	return nil
}

// handlePruneMessage implements §4.3.4: a prune is only honored if it is
// addressed to us and not stale.
func (p *Processor) handlePruneMessage(msg *protocol.Protocol) *ProcessError {
	prune := msg.Prune
	if time.Since(prune.Wallclock.Time()) > protocol.CrdsGossipPruneMsgTimeout {
		return newProcessError(ErrPruneMessageTooOld, map[string]any{"from": prune.Pubkey}, nil)
	}
	if prune.Destination != p.state.selfID {
		return newProcessError(ErrBadDestination, map[string]any{"destination": prune.Destination}, nil)
	}
	for _, origin := range prune.Prunes {
		if origin == p.state.selfID {
			continue
		}
		p.state.active.Prune(prune.Pubkey, origin)
	}
	return nil
}

// handlePingMessage implements §4.3.6: answer every ping with a signed pong.
func (p *Processor) handlePingMessage(from *net.UDPAddr, msg *protocol.Protocol) *ProcessError {
	pong, err := protocol.NewPong(msg.Ping, p.keypair)
	if err != nil {
		return newProcessError(ErrSignatureError, nil, err)
	}
	p.sendTo(from, protocol.NewPongMessage(pong))
	return nil
}

// buildPruneMessage implements §4.3.5: resolves destination's advertised
// gossip endpoint from CRDS, then partitions failedOrigins into chunks of
// at most MaxPruneDataNodes, signing and encoding one PruneMessage packet
// per chunk addressed to that endpoint.
func (p *Processor) buildPruneMessage(failedOrigins []protocol.Pubkey, destination protocol.Pubkey, now time.Time) ([]*Packet, *ProcessError) {
	vv, ok := p.state.table.Get(protocol.Label{Origin: destination, Kind: protocol.KindLegacyContactInfo})
	if !ok {
		return nil, newProcessError(ErrCantFindContactInfo, map[string]any{"destination": destination}, nil)
	}
	info, ok := vv.Value.Data.(*protocol.LegacyContactInfo)
	if !ok || !sanitizeSocket(info.Gossip) {
		return nil, newProcessError(ErrInvalidGossipAddress, map[string]any{"destination": destination}, nil)
	}
	endpoint := info.Gossip.UDPAddr()

	var packets []*Packet
	for start := 0; start < len(failedOrigins); start += int(protocol.MaxPruneDataNodes) {
		end := start + protocol.MaxPruneDataNodes
		if end > len(failedOrigins) {
			end = len(failedOrigins)
		}
		pd := &protocol.PruneData{
			Pubkey:      p.state.selfID,
			Prunes:      failedOrigins[start:end],
			Destination: destination,
			Wallclock:   protocol.Now(),
		}
		if err := pd.Sign(p.keypair); err != nil {
			return nil, newProcessError(ErrSignatureError, map[string]any{"destination": destination}, err)
		}
		b, err := protocol.Encode(protocol.NewPruneMessage(p.state.selfID, pd))
		if err != nil {
			return nil, newProcessError(ErrSerializationError, map[string]any{"destination": destination}, err)
		}
		packets = append(packets, &Packet{Addr: endpoint, Bytes: b})
	}
	return packets, nil
}

func (p *Processor) sendTo(addr *net.UDPAddr, env *protocol.Protocol) {
	b, err := protocol.Encode(env)
	if err != nil {
		log.WithError(err).Error("processor: encode reply")
		return
	}
	p.egress.Send(Packet{Addr: addr, Bytes: b})
}
