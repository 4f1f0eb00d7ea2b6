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
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/packetbuilder"
	"github.com/facebookincubator/gossip/internal/gossip/protocol"
	"github.com/facebookincubator/gossip/internal/gossip/pull"
	"github.com/facebookincubator/gossip/internal/gossip/queue"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

// selfRepublishInterval is half of CrdsGossipPullCrdsTimeout (§4.4, step 5):
// how long a node waits before stamping and re-broadcasting its own contact
// info.
const selfRepublishInterval = protocol.CrdsGossipPullCrdsTimeout / 2

// purgedRetentionFactor scales CrdsGossipPullCrdsTimeout for the purged-value
// trim cutoff in §4.4.3 (75 000 ms at the spec's constants).
const purgedRetentionFactor = 5

// Builder is the periodic worker of §4.4: alternates pull-request
// construction, drains the push queue into the table, scans the table for
// new push-worthy values, trims memory, and occasionally rotates the
// active set and re-broadcasts this node's own contact info.
type Builder struct {
	state   *sharedState
	keypair ed25519.PrivateKey
	cfg     *Config
	egress  *queue.Queue[Packet]
	stats   stats.Stats
	exit    *exitFlag

	contactInfo *protocol.CrdsValue

	pushCursor             uint64
	shouldSendPullRequests bool
	lastPushTs             time.Time
}

func newBuilder(state *sharedState, keypair ed25519.PrivateKey, cfg *Config, contactInfo *protocol.CrdsValue, egress *queue.Queue[Packet], st stats.Stats, exit *exitFlag) *Builder {
	return &Builder{
		state:                  state,
		keypair:                keypair,
		cfg:                    cfg,
		egress:                 egress,
		stats:                  st,
		exit:                   exit,
		contactInfo:            contactInfo,
		shouldSendPullRequests: true,
		lastPushTs:             time.Now(),
	}
}

// Run executes the periodic loop of §4.4 until the exit flag is raised,
// targeting GOSSIP_SLEEP_MILLIS between iteration starts.
func (b *Builder) Run() {
	for !b.exit.isSet() {
		start := time.Now()
		b.tick(start)
		elapsed := time.Since(start)
		if elapsed < protocol.GossipSleep {
			time.Sleep(protocol.GossipSleep - elapsed)
		}
	}
}

func (b *Builder) tick(now time.Time) {
	if b.shouldSendPullRequests {
		b.buildPullRequests(now)
	}
	b.shouldSendPullRequests = !b.shouldSendPullRequests

	b.drainPushQueueToTable(now)
	b.buildPushMessages(now)
	b.trimMemory(now)

	if now.Sub(b.lastPushTs) > selfRepublishInterval {
		b.republishSelf(now)
		b.lastPushTs = now
	}
}

// drainPushQueueToTable is the only operation that nests two locks
// (push-queue then CRDS, per §5): pop everything queued and insert it,
// ignoring failures.
func (b *Builder) drainPushQueueToTable(now time.Time) {
	for _, v := range b.state.pushQueue.Drain() {
		_ = b.state.table.Insert(v, now)
	}
}

// buildPushMessages implements §4.4.1.
func (b *Builder) buildPushMessages(now time.Time) {
	const maxFetch = 512

	entries := b.state.table.GetEntriesWithCursor(maxFetch, &b.pushCursor)
	returned := len(entries)
	if returned == 0 {
		return
	}

	considered := 0
	totalBytes := 0
	groups := make(map[string]*packetbuilder.Group)

fetch:
	for _, e := range entries {
		drift := now.Sub(e.Value.WallclockMs().Time())
		if drift < 0 {
			drift = -drift
		}
		if drift > protocol.CrdsGossipPushMsgTimeout {
			considered++
			continue
		}

		size, err := e.Value.SerializedSize()
		if err != nil {
			considered++
			continue
		}
		if totalBytes+size > protocol.MaxBytesPerPush {
			break fetch
		}
		totalBytes += size
		considered++

		origin := e.Value.ID()
		for _, peer := range b.state.active.GetFanoutPeers(origin, b.state.table) {
			ep := peer.Gossip.UDPAddr()
			key := ep.String()
			g, ok := groups[key]
			if !ok {
				g = &packetbuilder.Group{Endpoint: ep}
				groups[key] = g
			}
			g.Values = append(g.Values, e.Value)
		}
	}

	b.pushCursor -= uint64(returned - considered)

	if len(groups) == 0 {
		return
	}
	groupList := make([]packetbuilder.Group, 0, len(groups))
	for _, g := range groups {
		groupList = append(groupList, *g)
	}
	packets, err := packetbuilder.Build(protocol.KindPushMessage, b.state.selfID, groupList, protocol.PushMessageMaxPayloadSize)
	if err != nil {
		log.WithError(err).Error("builder: build push messages")
		return
	}
	for _, pkt := range packets {
		b.egress.Send(Packet{Addr: pkt.Addr, Bytes: pkt.Bytes})
	}
}

// buildPullRequests implements §4.4.2.
func (b *Builder) buildPullRequests(now time.Time) {
	filters := pull.BuildFilters(b.state.table, b.state.failedPullHashes, b.cfg.BloomFilterSize, protocol.MaxNumPullRequests)

	peers := b.getGossipNodes(protocol.MaxNumPullRequests, now)
	if len(peers) == 0 {
		log.WithField("kind", ErrNoPeers).Error("builder: build pull requests")
		return
	}

	b.refreshContactInfo(now)

	for _, f := range filters {
		peer := peers[rand.Intn(len(peers))]
		req := protocol.NewPullRequest(f, b.contactInfo)
		encoded, err := protocol.Encode(req)
		if err != nil {
			log.WithError(err).Error("builder: encode pull request")
			continue
		}
		b.egress.Send(Packet{Addr: peer.Gossip.UDPAddr(), Bytes: encoded})
	}
}

// trimMemory implements §4.4.3. An out-of-memory failure is fatal per §7.
func (b *Builder) trimMemory(now time.Time) {
	start := time.Now()

	b.state.table.Purged.Trim(now.Add(-purgedRetentionFactor * protocol.CrdsGossipPullCrdsTimeout))
	if err := b.state.table.AttemptTrim(protocol.CrdsUniquePubkeyCapacity); err != nil {
		log.WithError(err).Fatal("builder: attempt trim")
	}
	if err := b.state.table.RemoveOldLabels(now, protocol.CrdsGossipPullCrdsTimeout); err != nil {
		log.WithError(err).Fatal("builder: remove old labels")
	}
	b.state.trimFailedPullHashes(now)

	b.stats.ObserveTrimDuration(time.Since(start).Seconds())
}

// rotateActiveSet implements §4.4.4. ActiveSet.Rotate returns no error (it
// only allocates bounded by NumActiveSetEntries), so unlike trimMemory there
// is no failure to check here.
func (b *Builder) rotateActiveSet(now time.Time) {
	peers := b.getGossipNodes(protocol.NumActiveSetEntries, now)
	pubkeys := make([]protocol.Pubkey, len(peers))
	for i, peer := range peers {
		pubkeys[i] = peer.Id
	}
	b.state.active.Rotate(pubkeys)
	b.stats.IncActiveSetRotation()
}

// republishSelf implements §4.4 step 5: stamp and re-sign this node's own
// contact info, queue it for the next drain-to-table pass, and rotate the
// active set.
func (b *Builder) republishSelf(now time.Time) {
	info := b.contactInfo.Data.(*protocol.LegacyContactInfo)
	info.Wallclock = protocol.Wallclock(now.UnixMilli())
	if err := b.contactInfo.Sign(b.keypair); err != nil {
		log.WithError(err).Error("builder: sign contact info")
		return
	}
	b.state.pushQueue.Enqueue(b.contactInfo)
	b.rotateActiveSet(now)
}

func (b *Builder) refreshContactInfo(now time.Time) {
	info := b.contactInfo.Data.(*protocol.LegacyContactInfo)
	info.Wallclock = protocol.Wallclock(now.UnixMilli())
	if err := b.contactInfo.Sign(b.keypair); err != nil {
		log.WithError(err).Error("builder: sign contact info")
	}
}

// getGossipNodes implements §4.4.5.
func (b *Builder) getGossipNodes(maxSize int, now time.Time) []*protocol.LegacyContactInfo {
	entries := b.state.table.GetContactInfos(maxSize)
	out := make([]*protocol.LegacyContactInfo, 0, len(entries))
	for _, e := range entries {
		if now.Sub(e.TimestampOnInsertion) > protocol.GossipActiveTimeout {
			continue
		}
		ci, ok := e.Value.Data.(*protocol.LegacyContactInfo)
		if !ok || ci.Id == b.state.selfID {
			continue
		}
		if b.cfg.ShredVersion != 0 && ci.ShredVersion != b.cfg.ShredVersion {
			continue
		}
		if !sanitizeSocket(ci.Gossip) {
			continue
		}
		out = append(out, ci)
		if len(out) >= maxSize {
			break
		}
	}
	return out
}
