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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
	"github.com/facebookincubator/gossip/internal/gossip/queue"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

// Engine owns the UDP socket, the shared CRDS/ActiveSet/PushQueue/
// failed-pull-hashes state, the three inter-worker queues, and the five
// long-lived workers of spec.md §4-§5.
type Engine struct {
	cfg        *Config
	stats      stats.Stats
	conn       *net.UDPConn
	instanceID string

	state *sharedState
	exit  *exitFlag

	ingress  *queue.Queue[Packet]
	verified *queue.Queue[VerifiedMessage]
	egress   *queue.Queue[Packet]

	receiver  *Receiver
	verifier  *Verifier
	processor *Processor
	builder   *Builder
	responder *Responder
}

// New binds the gossip UDP socket, seeds the CRDS table with this node's
// own contact info, and wires the five workers. It does not start them;
// call Start for that.
func New(cfg *Config, st stats.Stats) (*Engine, error) {
	addr := &net.UDPAddr{IP: cfg.IP, Port: cfg.Port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("engine: listen %s: %w", addr, err)
	}
	tuneSocketBuffers(conn)

	instanceID := uuid.New().String()
	selfID := cfg.Pubkey()
	state := newSharedState(selfID)
	exit := &exitFlag{}

	contactInfo := &protocol.CrdsValue{
		Data: &protocol.LegacyContactInfo{
			Id:           selfID,
			Gossip:       protocol.NewSocketAddr(addr),
			ShredVersion: cfg.ShredVersion,
			Wallclock:    protocol.Now(),
		},
	}
	if err := contactInfo.Sign(cfg.Keypair); err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: sign contact info: %w", err)
	}
	if err := state.table.Insert(contactInfo, time.Now()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("engine: seed contact info: %w", err)
	}

	ingress := queue.New[Packet](cfg.QueueCapacity)
	verified := queue.New[VerifiedMessage](cfg.QueueCapacity)
	egress := queue.New[Packet](cfg.QueueCapacity)

	return &Engine{
		cfg:        cfg,
		stats:      st,
		conn:       conn,
		instanceID: instanceID,
		state:      state,
		exit:      exit,
		ingress:   ingress,
		verified:  verified,
		egress:    egress,
		receiver:  newReceiver(conn, ingress, exit),
		verifier:  newVerifier(ingress, verified, st, exit),
		processor: newProcessor(state, cfg.Keypair, verified, egress, st, exit),
		builder:   newBuilder(state, cfg.Keypair, cfg, contactInfo, egress, st, exit),
		responder: newResponder(conn, egress, st, exit),
	}, nil
}

// Start launches every worker and the monitoring server, and blocks until
// one of them exits. Per spec.md §5 ("join_and_exit"), the unexpected
// return of any single worker sets the exit flag, cascading a clean stop
// of the rest; Start waits for that full cascade before closing the socket
// and returning.
func (e *Engine) Start() error {
	if e.cfg.MonitoringPort != 0 {
		go e.stats.Start(e.cfg.MonitoringPort)
	}

	workers := []struct {
		name string
		run  func()
	}{
		{"receiver", e.receiver.Run},
		{"verifier", e.verifier.Run},
		{"processor", e.processor.Run},
		{"builder", e.builder.Run},
		{"responder", e.responder.Run},
	}

	// wg.Add(1) exactly once, with Done behind a sync.Once so only the
	// first worker to return calls it: wg.Wait unblocks the instant any
	// single worker exits, regardless of how many are still running.
	var wg sync.WaitGroup
	wg.Add(1)
	var firstExit sync.Once

	var all sync.WaitGroup
	all.Add(len(workers))

	for _, w := range workers {
		go func(name string, run func()) {
			defer all.Done()
			defer firstExit.Do(wg.Done)
			run()
			log.WithFields(log.Fields{"worker": name, "instance": e.instanceID}).Warn("engine: worker exited")
		}(w.name, w.run)
	}

	wg.Wait()
	e.exit.set()
	all.Wait()

	if err := e.conn.Close(); err != nil {
		log.WithError(err).Warn("engine: closing socket")
	}
	if e.exit.wasStopped() {
		return nil
	}
	return fmt.Errorf("engine: a worker exited, engine shutting down")
}

// Stop raises the exit flag directly, for graceful shutdown triggered by a
// signal rather than a worker crash. Start returns nil once the resulting
// cascade completes.
func (e *Engine) Stop() {
	e.exit.requestStop()
}
