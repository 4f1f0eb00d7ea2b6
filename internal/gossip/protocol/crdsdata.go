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
	"net"
)

// CrdsDataKind tags the variant of a CrdsData value, same role as
// MessageType in a PTP header: a one-byte discriminant read before the
// rest of the payload is decoded.
type CrdsDataKind uint8

// Known CrdsData variants. Only the two named in the spec's data model are
// implemented; additional variants slot in the same way.
const (
	KindLegacyContactInfo CrdsDataKind = iota
	KindEpochSlots
)

// MaxEpochSlots bounds EpochSlots.Index; sanitize() rejects values at or
// above it.
const MaxEpochSlots = 255

// CrdsData is any record origin nodes advertise about themselves or others.
type CrdsData interface {
	Kind() CrdsDataKind
	ID() Pubkey
	WallclockMs() Wallclock
	// KindIndex disambiguates multiple values of the same Kind from the
	// same origin (e.g. EpochSlots shards); LegacyContactInfo is
	// singleton-per-origin and always returns 0.
	KindIndex() uint32
	// Sanitize enforces kind-specific structural limits (§4.2); a non-nil
	// error is a silent drop upstream.
	Sanitize() error

	marshalBody(buf *bytes.Buffer) error
}

// Label identifies a CrdsData's slot in the table: origin + kind + index.
type Label struct {
	Origin Pubkey
	Kind   CrdsDataKind
	Index  uint32
}

func (l Label) String() string {
	return fmt.Sprintf("%s/%d/%d", l.Origin, l.Kind, l.Index)
}

// SocketAddr is a fixed-width wire encoding of a UDP endpoint: 16-byte IPv6
// or IPv4-mapped-IPv6 address plus a 16-bit port, matching how the rest of
// the codebase (ptp's PortIdentity-style fixed records) avoids variable
// length fields wherever it can.
type SocketAddr struct {
	IP   [16]byte
	Port uint16
}

// NewSocketAddr builds a SocketAddr from a standard net.UDPAddr.
func NewSocketAddr(addr *net.UDPAddr) SocketAddr {
	var sa SocketAddr
	ip := addr.IP.To16()
	copy(sa.IP[:], ip)
	sa.Port = uint16(addr.Port)
	return sa
}

// UDPAddr converts back to a *net.UDPAddr for socket I/O.
func (s SocketAddr) UDPAddr() *net.UDPAddr {
	ip := make(net.IP, 16)
	copy(ip, s.IP[:])
	return &net.UDPAddr{IP: ip, Port: int(s.Port)}
}

func (s SocketAddr) marshal(buf *bytes.Buffer) error {
	if _, err := buf.Write(s.IP[:]); err != nil {
		return err
	}
	return binary.Write(buf, binary.BigEndian, s.Port)
}

func unmarshalSocketAddr(r *bytes.Reader) (SocketAddr, error) {
	var s SocketAddr
	if _, err := r.Read(s.IP[:]); err != nil {
		return s, err
	}
	if err := binary.Read(r, binary.BigEndian, &s.Port); err != nil {
		return s, err
	}
	return s, nil
}

// LegacyContactInfo is a node's advertisement of itself: identity, gossip
// endpoint, shred version (cluster-epoch tag), and issuance time.
type LegacyContactInfo struct {
	Id           Pubkey
	Gossip       SocketAddr
	ShredVersion uint16
	Wallclock    Wallclock
}

// Kind implements CrdsData.
func (c *LegacyContactInfo) Kind() CrdsDataKind { return KindLegacyContactInfo }

// ID implements CrdsData.
func (c *LegacyContactInfo) ID() Pubkey { return c.Id }

// WallclockMs implements CrdsData.
func (c *LegacyContactInfo) WallclockMs() Wallclock { return c.Wallclock }

// KindIndex implements CrdsData: a node advertises exactly one contact info.
func (c *LegacyContactInfo) KindIndex() uint32 { return 0 }

// Sanitize implements CrdsData.
func (c *LegacyContactInfo) Sanitize() error {
	if c.Id.IsZero() {
		return fmt.Errorf("contact info: zero id")
	}
	return nil
}

func (c *LegacyContactInfo) marshalBody(buf *bytes.Buffer) error {
	if _, err := buf.Write(c.Id[:]); err != nil {
		return err
	}
	if err := c.Gossip.marshal(buf); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, c.ShredVersion); err != nil {
		return err
	}
	return binary.Write(buf, binary.BigEndian, uint64(c.Wallclock))
}

func unmarshalLegacyContactInfo(r *bytes.Reader) (*LegacyContactInfo, error) {
	c := &LegacyContactInfo{}
	if _, err := r.Read(c.Id[:]); err != nil {
		return nil, err
	}
	sa, err := unmarshalSocketAddr(r)
	if err != nil {
		return nil, err
	}
	c.Gossip = sa
	if err := binary.Read(r, binary.BigEndian, &c.ShredVersion); err != nil {
		return nil, err
	}
	var wc uint64
	if err := binary.Read(r, binary.BigEndian, &wc); err != nil {
		return nil, err
	}
	c.Wallclock = Wallclock(wc)
	return c, nil
}

// EpochSlots is a compact report of a shard of slots a node has replayed,
// keyed by Index within the origin's epoch-slot shards.
type EpochSlots struct {
	Id        Pubkey
	Index     uint8
	Slots     []uint64
	Wallclock Wallclock
}

// Kind implements CrdsData.
func (e *EpochSlots) Kind() CrdsDataKind { return KindEpochSlots }

// ID implements CrdsData.
func (e *EpochSlots) ID() Pubkey { return e.Id }

// WallclockMs implements CrdsData.
func (e *EpochSlots) WallclockMs() Wallclock { return e.Wallclock }

// KindIndex implements CrdsData.
func (e *EpochSlots) KindIndex() uint32 { return uint32(e.Index) }

// Sanitize implements CrdsData: the index must stay below MaxEpochSlots and
// the slot list must stay bounded.
func (e *EpochSlots) Sanitize() error {
	if int(e.Index) >= MaxEpochSlots {
		return fmt.Errorf("epoch slots: index %d >= %d", e.Index, MaxEpochSlots)
	}
	if len(e.Slots) > 2048 {
		return fmt.Errorf("epoch slots: %d slot words exceeds bound", len(e.Slots))
	}
	return nil
}

func (e *EpochSlots) marshalBody(buf *bytes.Buffer) error {
	if _, err := buf.Write(e.Id[:]); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, e.Index); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.BigEndian, uint32(len(e.Slots))); err != nil {
		return err
	}
	for _, s := range e.Slots {
		if err := binary.Write(buf, binary.BigEndian, s); err != nil {
			return err
		}
	}
	return binary.Write(buf, binary.BigEndian, uint64(e.Wallclock))
}

func unmarshalEpochSlots(r *bytes.Reader) (*EpochSlots, error) {
	e := &EpochSlots{}
	if _, err := r.Read(e.Id[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.BigEndian, &e.Index); err != nil {
		return nil, err
	}
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	if n > 1<<16 {
		return nil, fmt.Errorf("epoch slots: unreasonable slot count %d", n)
	}
	e.Slots = make([]uint64, n)
	for i := range e.Slots {
		if err := binary.Read(r, binary.BigEndian, &e.Slots[i]); err != nil {
			return nil, err
		}
	}
	var wc uint64
	if err := binary.Read(r, binary.BigEndian, &wc); err != nil {
		return nil, err
	}
	e.Wallclock = Wallclock(wc)
	return e, nil
}
