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

// Package protocol implements the wire data model of the gossip engine:
// Pubkey, Wallclock, CrdsValue/CrdsData, the Protocol envelope, PruneData
// and Ping/Pong, plus the binary codec that moves them on and off the wire.
package protocol

import (
	"crypto/ed25519"
	"encoding/hex"
)

// PubkeySize is the length in bytes of an Ed25519 public key.
const PubkeySize = ed25519.PublicKeySize

// Pubkey is a 32-byte Ed25519 public key identifying a cluster member.
type Pubkey [PubkeySize]byte

// String renders the pubkey the way the rest of the engine logs it:
// lowercase hex, stable and comparable across runs.
func (p Pubkey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero reports whether p is the zero pubkey (never a valid identity).
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// PubkeyFromPublicKey narrows an ed25519.PublicKey down to a Pubkey.
func PubkeyFromPublicKey(pub ed25519.PublicKey) Pubkey {
	var pk Pubkey
	copy(pk[:], pub)
	return pk
}
