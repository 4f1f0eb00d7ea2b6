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

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// gossipSocketBuffer is the SO_RCVBUF/SO_SNDBUF target for the gossip
// socket. The queue depths downstream (ingress/verified/egress) already
// bound memory, so a generous kernel buffer just absorbs bursts ahead of
// Receiver rather than dropping datagrams under load.
const gossipSocketBuffer = 8 << 20

// tuneSocketBuffers raises the UDP socket's receive and send buffers past
// the kernel default. Failures are logged and ignored: a smaller buffer
// degrades burst tolerance, it doesn't break correctness.
func tuneSocketBuffers(conn *net.UDPConn) {
	raw, err := conn.SyscallConn()
	if err != nil {
		log.WithError(err).Warn("engine: syscall conn unavailable, skipping socket tuning")
		return
	}
	ctrlErr := raw.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, gossipSocketBuffer); err != nil {
			log.WithError(err).Warn("engine: set SO_RCVBUF")
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, gossipSocketBuffer); err != nil {
			log.WithError(err).Warn("engine: set SO_SNDBUF")
		}
	})
	if ctrlErr != nil {
		log.WithError(ctrlErr).Warn("engine: control gossip socket")
	}
}
