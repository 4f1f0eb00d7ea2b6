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
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
)

// PruneData is a signed assertion from Pubkey to Destination that Destination
// should stop forwarding records originating at the listed Prunes.
type PruneData struct {
	Pubkey      Pubkey
	Prunes      []Pubkey
	Destination Pubkey
	Wallclock   Wallclock
	Signature   Signature
}

// signedBytes is the canonical encoding Sign/Verify operate over.
func (p *PruneData) signedBytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.Write(p.Pubkey[:]); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint32(len(p.Prunes))); err != nil {
		return nil, err
	}
	for _, pk := range p.Prunes {
		if _, err := buf.Write(pk[:]); err != nil {
			return nil, err
		}
	}
	if _, err := buf.Write(p.Destination[:]); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, uint64(p.Wallclock)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign signs the prune data with priv, which must correspond to p.Pubkey.
func (p *PruneData) Sign(priv ed25519.PrivateKey) error {
	b, err := p.signedBytes()
	if err != nil {
		return err
	}
	sig := ed25519.Sign(priv, b)
	copy(p.Signature[:], sig)
	return nil
}

// Verify checks the signature against p.Pubkey.
func (p *PruneData) Verify() bool {
	b, err := p.signedBytes()
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p.Pubkey[:]), b, p.Signature[:])
}

// Sanitize enforces the structural limits from §4.2: a prune list must be
// non-empty and bounded by MaxPruneDataNodes.
func (p *PruneData) Sanitize() error {
	if len(p.Prunes) == 0 {
		return fmt.Errorf("prune data: empty prune list")
	}
	if len(p.Prunes) > MaxPruneDataNodes {
		return fmt.Errorf("prune data: %d prunes exceeds max %d", len(p.Prunes), MaxPruneDataNodes)
	}
	return nil
}

func (p *PruneData) marshal(buf *bytes.Buffer) error {
	b, err := p.signedBytes()
	if err != nil {
		return err
	}
	if _, err := buf.Write(b); err != nil {
		return err
	}
	_, err = buf.Write(p.Signature[:])
	return err
}

func unmarshalPruneData(r *bytes.Reader) (*PruneData, error) {
	p := &PruneData{}
	if _, err := r.Read(p.Pubkey[:]); err != nil {
		return nil, err
	}
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > MaxPruneDataNodes*4 {
		return nil, fmt.Errorf("prune data: unreasonable prune count %d", n)
	}
	p.Prunes = make([]Pubkey, n)
	for i := range p.Prunes {
		if _, err := r.Read(p.Prunes[i][:]); err != nil {
			return nil, err
		}
	}
	if _, err := r.Read(p.Destination[:]); err != nil {
		return nil, err
	}
	var wc uint64
	if err := binary.Read(r, binary.BigEndian, &wc); err != nil {
		return nil, err
	}
	p.Wallclock = Wallclock(wc)
	if _, err := r.Read(p.Signature[:]); err != nil {
		return nil, err
	}
	return p, nil
}
