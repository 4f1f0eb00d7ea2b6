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
	"crypto/sha256"
)

// PingTokenSize is the length of the random token a Ping carries.
const PingTokenSize = 32

// Ping is a liveness probe: From identifies the sender, Token is random,
// and Signature authenticates (From, Token).
type Ping struct {
	From      Pubkey
	Token     [PingTokenSize]byte
	Signature Signature
}

func (p *Ping) signedBytes() []byte {
	b := make([]byte, 0, PubkeySize+PingTokenSize)
	b = append(b, p.From[:]...)
	b = append(b, p.Token[:]...)
	return b
}

// Sign signs the ping with priv, which must correspond to p.From.
func (p *Ping) Sign(priv ed25519.PrivateKey) {
	sig := ed25519.Sign(priv, p.signedBytes())
	copy(p.Signature[:], sig)
}

// Verify checks the ping's signature against p.From.
func (p *Ping) Verify() bool {
	return ed25519.Verify(ed25519.PublicKey(p.From[:]), p.signedBytes(), p.Signature[:])
}

// Pong answers a Ping: it signs sha256(ping.Token) so that a pong can only
// be produced by whoever holds the private key, in response to a specific
// token, without needing to echo the full ping back.
type Pong struct {
	From      Pubkey
	Hash      [sha256.Size]byte
	Signature Signature
}

// NewPong builds and signs a Pong answering ping, using priv as this node's
// identity key.
func NewPong(ping *Ping, priv ed25519.PrivateKey) (*Pong, error) {
	pub := priv.Public().(ed25519.PublicKey)
	pong := &Pong{
		From: PubkeyFromPublicKey(pub),
		Hash: sha256.Sum256(ping.Token[:]),
	}
	sig := ed25519.Sign(priv, pong.signedBytes())
	copy(pong.Signature[:], sig)
	return pong, nil
}

func (p *Pong) signedBytes() []byte {
	b := make([]byte, 0, PubkeySize+sha256.Size)
	b = append(b, p.From[:]...)
	b = append(b, p.Hash[:]...)
	return b
}

// Verify checks the pong's signature against p.From.
func (p *Pong) Verify() bool {
	return ed25519.Verify(ed25519.PublicKey(p.From[:]), p.signedBytes(), p.Signature[:])
}

func marshalPing(buf *bytes.Buffer, p *Ping) error {
	if _, err := buf.Write(p.From[:]); err != nil {
		return err
	}
	if _, err := buf.Write(p.Token[:]); err != nil {
		return err
	}
	_, err := buf.Write(p.Signature[:])
	return err
}

func unmarshalPing(r *bytes.Reader) (*Ping, error) {
	p := &Ping{}
	if _, err := r.Read(p.From[:]); err != nil {
		return nil, err
	}
	if _, err := r.Read(p.Token[:]); err != nil {
		return nil, err
	}
	if _, err := r.Read(p.Signature[:]); err != nil {
		return nil, err
	}
	return p, nil
}

func marshalPong(buf *bytes.Buffer, p *Pong) error {
	if _, err := buf.Write(p.From[:]); err != nil {
		return err
	}
	if _, err := buf.Write(p.Hash[:]); err != nil {
		return err
	}
	_, err := buf.Write(p.Signature[:])
	return err
}

func unmarshalPong(r *bytes.Reader) (*Pong, error) {
	p := &Pong{}
	if _, err := r.Read(p.From[:]); err != nil {
		return nil, err
	}
	if _, err := r.Read(p.Hash[:]); err != nil {
		return nil, err
	}
	if _, err := r.Read(p.Signature[:]); err != nil {
		return nil, err
	}
	return p, nil
}
