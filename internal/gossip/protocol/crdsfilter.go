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

	"github.com/facebookincubator/gossip/internal/gossip/bloom"
)

// CrdsFilter is a compact "records I already have" shard sent in a
// PullRequest: Mask/MaskBits select the slice of the hash keyspace this
// filter covers (a full pull splits the keyspace across several filters),
// and Bloom holds the actual membership test for that slice.
type CrdsFilter struct {
	Mask     uint64
	MaskBits uint32
	Bloom    *bloom.Filter
}

// Matches reports whether hash falls in this filter's shard of the
// keyspace: the top MaskBits bits of hash must equal the top MaskBits bits
// of Mask.
func (f *CrdsFilter) Matches(hash uint64) bool {
	if f.MaskBits == 0 || f.MaskBits >= 64 {
		return f.MaskBits == 0
	}
	shift := 64 - f.MaskBits
	return hash>>shift == f.Mask>>shift
}

func (f *CrdsFilter) marshal(buf *bytes.Buffer) error {
	if err := binary.Write(buf, binary.BigEndian, f.Mask); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, f.MaskBits); err != nil {
		return err
	}
	return f.Bloom.Marshal(buf)
}

func unmarshalCrdsFilter(r *bytes.Reader) (*CrdsFilter, error) {
	f := &CrdsFilter{}
	if err := binary.Read(r, binary.BigEndian, &f.Mask); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &f.MaskBits); err != nil {
		return nil, err
	}
	bf, err := bloom.Unmarshal(r)
	if err != nil {
		return nil, err
	}
	f.Bloom = bf
	return f, nil
}
