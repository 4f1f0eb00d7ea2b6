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

// Package bloom implements the compact bit-array bloom filter backing a
// CrdsFilter. No third-party bloom filter library appears anywhere in the
// example pack this engine is built from, so this one small, self-contained
// helper is hand-rolled in the pack's own style of tiny single-purpose
// stdlib-only packages (cf. hostendian, leaphash) rather than adapted from
// any one teacher file.
package bloom

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
	"math"
)

// Filter is a fixed-size bit-array bloom filter with a small number of
// independent hash functions derived from double hashing (Kirsch-Mitzenmacher).
type Filter struct {
	bits     []uint64
	numBits  uint64
	numHash  uint32
}

// NewFilter builds a filter sized for numKeys entries at the given target
// false-positive rate, rounded up to at least 64 bits (one word).
func NewFilter(numKeys int, fpRate float64) *Filter {
	if numKeys < 1 {
		numKeys = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.1
	}
	m := optimalNumBits(numKeys, fpRate)
	k := optimalNumHashes(numKeys, m)
	return NewFilterBits(m, k)
}

// NewFilterBits builds a filter with an explicit bit count and hash count,
// used by tests that want a precisely-sized filter (e.g. spec.md S3's
// "fresh 100-bit bloom").
func NewFilterBits(numBits uint64, numHash uint32) *Filter {
	if numBits == 0 {
		numBits = 64
	}
	if numHash == 0 {
		numHash = 1
	}
	words := (numBits + 63) / 64
	return &Filter{
		bits:    make([]uint64, words),
		numBits: numBits,
		numHash: numHash,
	}
}

func optimalNumBits(n int, p float64) uint64 {
	m := -float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)
	if m < 64 {
		m = 64
	}
	return uint64(math.Ceil(m))
}

func optimalNumHashes(n int, m uint64) uint32 {
	k := float64(m) / float64(n) * math.Ln2
	if k < 1 {
		k = 1
	}
	return uint32(math.Round(k))
}

// hashes derives the two base hashes from an unseeded FNV-1a, so a filter
// decoded by Unmarshal (on this or any other node) tests keys the same way
// as the filter that was marshaled.
func (f *Filter) hashes(key []byte) (uint64, uint64) {
	h := fnv.New64a()
	h.Write(key)
	h1 := h.Sum64()
	h.Write([]byte{0xff})
	h2 := h.Sum64()
	return h1, h2
}

// Add inserts key into the filter.
func (f *Filter) Add(key []byte) {
	h1, h2 := f.hashes(key)
	for i := uint32(0); i < f.numHash; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		f.bits[bit/64] |= 1 << (bit % 64)
	}
}

// Contains reports whether key was possibly added (false positives possible,
// false negatives never).
func (f *Filter) Contains(key []byte) bool {
	h1, h2 := f.hashes(key)
	for i := uint32(0); i < f.numHash; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// NumBits returns the filter's bit-array size.
func (f *Filter) NumBits() uint64 { return f.numBits }

// NumHashes returns the number of hash functions used.
func (f *Filter) NumHashes() uint32 { return f.numHash }

// Marshal serializes the filter for the wire: numBits, numHash, then the
// raw words.
func (f *Filter) Marshal(buf *bytes.Buffer) error {
	if err := binary.Write(buf, binary.BigEndian, f.numBits); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, f.numHash); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(f.bits))); err != nil {
		return err
	}
	for _, w := range f.bits {
		if err := binary.Write(buf, binary.BigEndian, w); err != nil {
			return err
		}
	}
	return nil
}

// Unmarshal parses a filter previously written by Marshal.
func Unmarshal(r *bytes.Reader) (*Filter, error) {
	f := &Filter{}
	if err := binary.Read(r, binary.BigEndian, &f.numBits); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &f.numHash); err != nil {
		return nil, err
	}
	var words uint32
	if err := binary.Read(r, binary.BigEndian, &words); err != nil {
		return nil, err
	}
	f.bits = make([]uint64, words)
	for i := range f.bits {
		if err := binary.Read(r, binary.BigEndian, &f.bits[i]); err != nil {
			return nil, err
		}
	}
	return f, nil
}
