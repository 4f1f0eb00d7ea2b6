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
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/queue"
	"github.com/facebookincubator/gossip/internal/gossip/stats"
)

// Responder drains the egress queue and writes each packet to the UDP
// socket, the mirror image of Receiver.
type Responder struct {
	conn   *net.UDPConn
	egress *queue.Queue[Packet]
	stats  stats.Stats
	exit   *exitFlag
}

func newResponder(conn *net.UDPConn, egress *queue.Queue[Packet], st stats.Stats, exit *exitFlag) *Responder {
	return &Responder{conn: conn, egress: egress, stats: st, exit: exit}
}

// Run polls the egress queue until the exit flag is raised.
func (r *Responder) Run() {
	for !r.exit.isSet() {
		batch := r.egress.TryDrain()
		if len(batch) == 0 {
			time.Sleep(pollSleep)
			continue
		}
		for _, pkt := range batch {
			if _, err := r.conn.WriteToUDP(pkt.Bytes, pkt.Addr); err != nil {
				log.WithError(err).WithField("addr", pkt.Addr).Debug("responder: write")
			}
		}
		r.stats.SetQueueDepth("egress", r.egress.Len())
	}
}
