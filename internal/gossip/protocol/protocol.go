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

package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageKind tags the variant of a Protocol envelope, the one byte that
// Decode reads before dispatching.
type MessageKind uint8

// Protocol message kinds.
const (
	KindPullRequest MessageKind = iota
	KindPullResponse
	KindPushMessage
	KindPruneMessage
	KindPingMessage
	KindPongMessage
)

func (k MessageKind) String() string {
	switch k {
	case KindPullRequest:
		return "PullRequest"
	case KindPullResponse:
		return "PullResponse"
	case KindPushMessage:
		return "PushMessage"
	case KindPruneMessage:
		return "PruneMessage"
	case KindPingMessage:
		return "PingMessage"
	case KindPongMessage:
		return "PongMessage"
	default:
		return fmt.Sprintf("MessageKind(%d)", uint8(k))
	}
}

// Protocol is the wire-level tagged variant every UDP datagram carries.
// Exactly one of the typed fields is meaningful, selected by Kind.
type Protocol struct {
	Kind MessageKind

	PullRequestFilter  *CrdsFilter
	PullRequestCaller  *CrdsValue
	PullResponseFrom   Pubkey
	PullResponseValues []*CrdsValue
	PushFrom           Pubkey
	PushValues         []*CrdsValue
	PruneFrom          Pubkey
	Prune              *PruneData
	Ping               *Ping
	Pong               *Pong
}

// NewPullRequest builds a PullRequest envelope.
func NewPullRequest(filter *CrdsFilter, caller *CrdsValue) *Protocol {
	return &Protocol{Kind: KindPullRequest, PullRequestFilter: filter, PullRequestCaller: caller}
}

// NewPullResponse builds a PullResponse envelope.
func NewPullResponse(from Pubkey, values []*CrdsValue) *Protocol {
	return &Protocol{Kind: KindPullResponse, PullResponseFrom: from, PullResponseValues: values}
}

// NewPushMessage builds a PushMessage envelope.
func NewPushMessage(from Pubkey, values []*CrdsValue) *Protocol {
	return &Protocol{Kind: KindPushMessage, PushFrom: from, PushValues: values}
}

// NewPruneMessage builds a PruneMessage envelope.
func NewPruneMessage(from Pubkey, prune *PruneData) *Protocol {
	return &Protocol{Kind: KindPruneMessage, PruneFrom: from, Prune: prune}
}

// NewPingMessage builds a PingMessage envelope.
func NewPingMessage(ping *Ping) *Protocol {
	return &Protocol{Kind: KindPingMessage, Ping: ping}
}

// NewPongMessage builds a PongMessage envelope.
func NewPongMessage(pong *Pong) *Protocol {
	return &Protocol{Kind: KindPongMessage, Pong: pong}
}

// maxEpochSlotsTLVs / maxPruneEntries-style sanitize caps for collection
// fields carried directly by the envelope (values lists); per-value
// sanitization is CrdsData.Sanitize's job.
const maxValuesPerMessage = 512

// Sanitize enforces the structural limits of §4.2 on the envelope itself,
// then recurses into the carried data's own Sanitize. A non-nil error means
// "silently drop this message."
func (p *Protocol) Sanitize() error {
	switch p.Kind {
	case KindPullRequest:
		if p.PullRequestFilter == nil || p.PullRequestCaller == nil {
			return fmt.Errorf("pull request: missing filter or caller info")
		}
		return p.PullRequestCaller.Data.Sanitize()
	case KindPullResponse:
		if len(p.PullResponseValues) == 0 {
			return fmt.Errorf("pull response: empty values")
		}
		if len(p.PullResponseValues) > maxValuesPerMessage {
			return fmt.Errorf("pull response: %d values exceeds bound", len(p.PullResponseValues))
		}
		return sanitizeAll(p.PullResponseValues)
	case KindPushMessage:
		if len(p.PushValues) == 0 {
			return fmt.Errorf("push message: empty values")
		}
		if len(p.PushValues) > maxValuesPerMessage {
			return fmt.Errorf("push message: %d values exceeds bound", len(p.PushValues))
		}
		return sanitizeAll(p.PushValues)
	case KindPruneMessage:
		if p.Prune == nil {
			return fmt.Errorf("prune message: missing prune data")
		}
		return p.Prune.Sanitize()
	case KindPingMessage:
		if p.Ping == nil {
			return fmt.Errorf("ping message: missing ping")
		}
		return nil
	case KindPongMessage:
		if p.Pong == nil {
			return fmt.Errorf("pong message: missing pong")
		}
		return nil
	default:
		return fmt.Errorf("sanitize: unknown message kind %d", p.Kind)
	}
}

func sanitizeAll(values []*CrdsValue) error {
	for _, v := range values {
		if err := v.Data.Sanitize(); err != nil {
			return err
		}
	}
	return nil
}

// Verify checks every signature carried by the message: the CrdsValue
// signatures for push/pull-response/pull-request-caller, the PruneData
// signature for prune, and the Ping/Pong signature for liveness checks.
func (p *Protocol) Verify() bool {
	switch p.Kind {
	case KindPullRequest:
		return p.PullRequestCaller.Verify()
	case KindPullResponse:
		return verifyAll(p.PullResponseValues)
	case KindPushMessage:
		return verifyAll(p.PushValues)
	case KindPruneMessage:
		return p.Prune.Verify()
	case KindPingMessage:
		return p.Ping.Verify()
	case KindPongMessage:
		return p.Pong.Verify()
	default:
		return false
	}
}

func verifyAll(values []*CrdsValue) bool {
	for _, v := range values {
		if !v.Verify() {
			return false
		}
	}
	return true
}

// Encode serializes a Protocol envelope to its wire form.
func Encode(p *Protocol) ([]byte, error) {
	var buf bytes.Buffer
	if err := buf.WriteByte(byte(p.Kind)); err != nil {
		return nil, err
	}
	switch p.Kind {
	case KindPullRequest:
		if err := p.PullRequestFilter.marshal(&buf); err != nil {
			return nil, err
		}
		v, err := EncodeCrdsValue(p.PullRequestCaller)
		if err != nil {
			return nil, err
		}
		if err := writeBytes(&buf, v); err != nil {
			return nil, err
		}
	case KindPullResponse:
		if _, err := buf.Write(p.PullResponseFrom[:]); err != nil {
			return nil, err
		}
		if err := writeValues(&buf, p.PullResponseValues); err != nil {
			return nil, err
		}
	case KindPushMessage:
		if _, err := buf.Write(p.PushFrom[:]); err != nil {
			return nil, err
		}
		if err := writeValues(&buf, p.PushValues); err != nil {
			return nil, err
		}
	case KindPruneMessage:
		if _, err := buf.Write(p.PruneFrom[:]); err != nil {
			return nil, err
		}
		if err := p.Prune.marshal(&buf); err != nil {
			return nil, err
		}
	case KindPingMessage:
		if err := marshalPing(&buf, p.Ping); err != nil {
			return nil, err
		}
	case KindPongMessage:
		if err := marshalPong(&buf, p.Pong); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("encode: unknown message kind %d", p.Kind)
	}
	return buf.Bytes(), nil
}

// Decode parses a wire-form Protocol envelope.
func Decode(b []byte) (*Protocol, error) {
	r := bytes.NewReader(b)
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	p := &Protocol{Kind: MessageKind(kindByte)}
	switch p.Kind {
	case KindPullRequest:
		f, err := unmarshalCrdsFilter(r)
		if err != nil {
			return nil, err
		}
		p.PullRequestFilter = f
		vb, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		v, err := DecodeCrdsValue(vb)
		if err != nil {
			return nil, err
		}
		p.PullRequestCaller = v
	case KindPullResponse:
		if _, err := r.Read(p.PullResponseFrom[:]); err != nil {
			return nil, err
		}
		values, err := readValues(r)
		if err != nil {
			return nil, err
		}
		p.PullResponseValues = values
	case KindPushMessage:
		if _, err := r.Read(p.PushFrom[:]); err != nil {
			return nil, err
		}
		values, err := readValues(r)
		if err != nil {
			return nil, err
		}
		p.PushValues = values
	case KindPruneMessage:
		if _, err := r.Read(p.PruneFrom[:]); err != nil {
			return nil, err
		}
		pd, err := unmarshalPruneData(r)
		if err != nil {
			return nil, err
		}
		p.Prune = pd
	case KindPingMessage:
		ping, err := unmarshalPing(r)
		if err != nil {
			return nil, err
		}
		p.Ping = ping
	case KindPongMessage:
		pong, err := unmarshalPong(r)
		if err != nil {
			return nil, err
		}
		p.Pong = pong
	default:
		return nil, fmt.Errorf("decode: unknown message kind %d", p.Kind)
	}
	return p, nil
}

// SerializedSize reports the exact encoded byte length of p.
func SerializedSize(p *Protocol) (int, error) {
	b, err := Encode(p)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

func writeBytes(buf *bytes.Buffer, b []byte) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := buf.Write(b)
	return err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if int(n) > r.Len() {
		return nil, fmt.Errorf("decode: length prefix %d exceeds remaining buffer", n)
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeValues(buf *bytes.Buffer, values []*CrdsValue) error {
	if err := binary.Write(buf, binary.BigEndian, uint32(len(values))); err != nil {
		return err
	}
	for _, v := range values {
		b, err := EncodeCrdsValue(v)
		if err != nil {
			return err
		}
		if err := writeBytes(buf, b); err != nil {
			return err
		}
	}
	return nil
}

func readValues(r *bytes.Reader) ([]*CrdsValue, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > maxValuesPerMessage*2 {
		return nil, fmt.Errorf("decode: %d values exceeds reasonable bound", n)
	}
	values := make([]*CrdsValue, n)
	for i := range values {
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		v, err := DecodeCrdsValue(b)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}
	return values, nil
}
