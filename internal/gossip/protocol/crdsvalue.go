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
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// SignatureSize is the length in bytes of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// Signature is a detached Ed25519 signature over a CrdsValue's canonical
// encoding, or over a PruneData's canonical encoding.
type Signature [SignatureSize]byte

// CrdsValue is a signed, timestamped record: the unit of storage and
// dissemination in the CRDS.
type CrdsValue struct {
	Data      CrdsData
	Signature Signature
}

// ID returns the origin pubkey of the underlying data.
func (v *CrdsValue) ID() Pubkey { return v.Data.ID() }

// WallclockMs returns the issuance time of the underlying data.
func (v *CrdsValue) WallclockMs() Wallclock { return v.Data.WallclockMs() }

// Label returns the value's identity in the CRDS table.
func (v *CrdsValue) Label() Label {
	return Label{Origin: v.Data.ID(), Kind: v.Data.Kind(), Index: v.Data.KindIndex()}
}

// SignedBytes returns the canonical encoding that Sign/Verify operate over:
// the kind tag followed by the data's marshaled body, with no signature
// field, so every node computes the identical byte string regardless of
// language or codec version skew within this spec.
func (v *CrdsValue) SignedBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := buf.WriteByte(byte(v.Data.Kind())); err != nil {
		return nil, err
	}
	if err := v.Data.marshalBody(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sign signs v's canonical bytes with priv and stores the result. priv must
// correspond to v.Data.ID().
func (v *CrdsValue) Sign(priv ed25519.PrivateKey) error {
	b, err := v.SignedBytes()
	if err != nil {
		return err
	}
	sig := ed25519.Sign(priv, b)
	copy(v.Signature[:], sig)
	return nil
}

// Verify checks the signature against the value's own id.
func (v *CrdsValue) Verify() bool {
	b, err := v.SignedBytes()
	if err != nil {
		return false
	}
	id := v.Data.ID()
	return ed25519.Verify(ed25519.PublicKey(id[:]), b, v.Signature[:])
}

// ValueHash is the content hash used for CrdsVersionedValue.ValueHash and
// for the tie-break ordering the CRDS table uses when two values share a
// label and wallclock. blake2b is used here (rather than sha256, which is
// reserved for the failed-pull-hash bucket per spec.md §4.3.2) because this
// hash feeds comparisons on the hot insert path and blake2b-256 is the
// faster of the two on typical server hardware.
func (v *CrdsValue) ValueHash() ([32]byte, error) {
	b, err := v.SignedBytes()
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(append(b, v.Signature[:]...)), nil
}

// SerializedSize reports the exact number of bytes EncodeCrdsValue produces
// for v (not counting the 4-byte length prefix Encode adds per value inside
// an envelope), used by the push/pull byte-budget accounting in the builder.
func (v *CrdsValue) SerializedSize() (int, error) {
	b, err := EncodeCrdsValue(v)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// EncodeCrdsValue serializes a CrdsValue to its wire form.
func EncodeCrdsValue(v *CrdsValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := buf.WriteByte(byte(v.Data.Kind())); err != nil {
		return nil, err
	}
	if err := v.Data.marshalBody(&buf); err != nil {
		return nil, err
	}
	if _, err := buf.Write(v.Signature[:]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCrdsValue parses a wire-form CrdsValue.
func DecodeCrdsValue(b []byte) (*CrdsValue, error) {
	r := bytes.NewReader(b)
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	var data CrdsData
	switch CrdsDataKind(kindByte) {
	case KindLegacyContactInfo:
		data, err = unmarshalLegacyContactInfo(r)
	case KindEpochSlots:
		data, err = unmarshalEpochSlots(r)
	default:
		return nil, fmt.Errorf("crds value: unknown kind %d", kindByte)
	}
	if err != nil {
		return nil, err
	}
	v := &CrdsValue{Data: data}
	if _, err := r.Read(v.Signature[:]); err != nil {
		return nil, fmt.Errorf("crds value: reading signature: %w", err)
	}
	return v, nil
}
