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

// Package packetbuilder implements the MTU-chunking utility of spec.md
// §4.5: streaming a (endpoint, []CrdsValue) group into ≤max_chunk_bytes
// Protocol envelopes, grounded on ptp4u/server/worker.go's reset-buffer-
// then-fill-then-flush loop shape.
package packetbuilder

import (
	"fmt"
	"net"

	"github.com/facebookincubator/gossip/internal/gossip/protocol"
)

// Group is one destination and the values queued for it.
type Group struct {
	Endpoint *net.UDPAddr
	Values   []*protocol.CrdsValue
}

// Packet is an outbound datagram: an encoded Protocol envelope addressed to
// Addr.
type Packet struct {
	Addr  *net.UDPAddr
	Bytes []byte
}

// envelopeOverhead is the fixed cost of a PushMessage/PullResponse
// envelope before any values are added: one kind-tag byte, one 32-byte
// pubkey, and a 4-byte value-count prefix.
const envelopeOverhead = 1 + protocol.PubkeySize + 4

// Build chunks groups into packets addressed per-group, using mode to pick
// the envelope kind (PushMessage or PullResponse) and maxChunkBytes as the
// hard per-payload bound. It flushes a chunk when adding the next value
// would overflow maxChunkBytes, and once more at the end of each group —
// unlike the literal reference behavior (Open Question 5 in spec.md §9,
// "flush on is_last_iter"), which would flush the final value of every
// group alone in its own packet; that behavior is a source-level smell,
// not an intentional contract, so it is not reproduced here.
func Build(mode protocol.MessageKind, myPubkey protocol.Pubkey, groups []Group, maxChunkBytes int) ([]*Packet, error) {
	if mode != protocol.KindPushMessage && mode != protocol.KindPullResponse {
		return nil, fmt.Errorf("packetbuilder: unsupported mode %s", mode)
	}

	var out []*Packet
	for _, g := range groups {
		chunks, err := chunkGroup(g.Values, maxChunkBytes)
		if err != nil {
			return nil, err
		}
		for _, chunk := range chunks {
			env := envelopeFor(mode, myPubkey, chunk)
			b, err := protocol.Encode(env)
			if err != nil {
				return nil, fmt.Errorf("packetbuilder: encode: %w", err)
			}
			out = append(out, &Packet{Addr: g.Endpoint, Bytes: b})
		}
	}
	return out, nil
}

func envelopeFor(mode protocol.MessageKind, myPubkey protocol.Pubkey, values []*protocol.CrdsValue) *protocol.Protocol {
	if mode == protocol.KindPushMessage {
		return protocol.NewPushMessage(myPubkey, values)
	}
	return protocol.NewPullResponse(myPubkey, values)
}

// chunkGroup partitions values into batches whose estimated wire size
// (envelope overhead plus each value's own length-prefixed size) never
// exceeds maxChunkBytes.
func chunkGroup(values []*protocol.CrdsValue, maxChunkBytes int) ([][]*protocol.CrdsValue, error) {
	if len(values) == 0 {
		return nil, nil
	}

	var chunks [][]*protocol.CrdsValue
	var current []*protocol.CrdsValue
	running := envelopeOverhead

	for _, v := range values {
		size, err := v.SerializedSize()
		if err != nil {
			return nil, fmt.Errorf("packetbuilder: serialized size: %w", err)
		}
		wireSize := size + 4 // length prefix written by the values codec

		if wireSize > maxChunkBytes-envelopeOverhead {
			return nil, fmt.Errorf("packetbuilder: single value of %d bytes exceeds chunk bound %d", wireSize, maxChunkBytes)
		}

		if len(current) > 0 && running+wireSize > maxChunkBytes {
			chunks = append(chunks, current)
			current = nil
			running = envelopeOverhead
		}

		current = append(current, v)
		running += wireSize
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks, nil
}
