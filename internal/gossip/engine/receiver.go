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
	"errors"
	"net"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
	"github.com/facebookincubator/gossip/internal/gossip/queue"
)

// Receiver is the worker of §4.1: it owns the UDP socket and does nothing
// but read datagrams onto the ingress queue, deadlined so it can notice
// exit without blocking forever on a read that never arrives.
type Receiver struct {
	conn   *net.UDPConn
	ingest *queue.Queue[Packet]
	exit   *exitFlag
}

func newReceiver(conn *net.UDPConn, ingest *queue.Queue[Packet], exit *exitFlag) *Receiver {
	return &Receiver{conn: conn, ingest: ingest, exit: exit}
}

// Run reads until the exit flag is raised or the socket is closed.
func (r *Receiver) Run() {
	buf := make([]byte, protocol.PacketDataSize)
	for !r.exit.isSet() {
		if err := r.conn.SetReadDeadline(deadline()); err != nil {
			log.WithError(err).Error("receiver: set read deadline")
			return
		}
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, net.ErrClosed) || os.IsTimeout(err) {
				return
			}
			log.WithError(err).Error("receiver: read")
			continue
		}
		pkt := Packet{Addr: addr, Bytes: append([]byte(nil), buf[:n]...)}
		r.ingest.Send(pkt)
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
