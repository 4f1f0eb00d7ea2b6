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

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

// Packet is a raw UDP datagram flowing through the ingress and egress
// queues: an address and an encoded byte payload.
type Packet struct {
	Addr  *net.UDPAddr
	Bytes []byte
}

// VerifiedMessage is a decoded, sanitized, signature-checked Protocol
// envelope flowing from the Verifier to the Processor, tagged with the
// endpoint it arrived from so responses can be addressed back to it.
type VerifiedMessage struct {
	From    *net.UDPAddr
	Message *protocol.Protocol
}
