/*
 * Copyright (C) 2023 ipdata, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

package iptrie

import (
	"fmt"
	"math/bits"
	"net/netip"
	"strings"
)

// Key is a normalized IP address or CIDR prefix: the masked address bits, a
// prefix length, and the address family implied by the address. Host bits
// beyond the prefix length are always zero. Keys are comparable by family,
// prefix length and masked bits only; whether the input carried an explicit
// "/len" is remembered solely for rendering, so that a host key round-trips
// without a mask and a network key always round-trips with one.
type Key struct {
	addr netip.Addr
	bits int
	cidr bool
}

// ParseKey parses an IP address ("10.1.2.3", "2001:db8::1") or a CIDR
// network ("10.0.0.0/8", "2001:db8::/32") into a Key. Surrounding
// whitespace is ignored. CIDR parsing is non-strict: host bits beyond the
// prefix length are silently cleared. A bare address gets the full prefix
// length of its family. IPv4-mapped IPv6 literals are classified as IPv6.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
		}
		p = p.Masked()
		return Key{addr: p.Addr(), bits: p.Bits(), cidr: true}, nil
	}
	a, err := netip.ParseAddr(s)
	if err != nil || a.Zone() != "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidKey, s)
	}
	return Key{addr: a, bits: a.BitLen(), cidr: false}, nil
}

// String renders the canonical textual form: dotted decimal for IPv4,
// compressed lowercase hex for IPv6, with "/len" appended only when the key
// was given in CIDR form.
func (k Key) String() string {
	if !k.cidr {
		return k.addr.String()
	}
	return netip.PrefixFrom(k.addr, k.bits).String()
}

// Bits returns the prefix length.
func (k Key) Bits() int { return k.bits }

// Is6 reports whether the key belongs to the IPv6 family. IPv4-mapped
// addresses ("::ffff:10.0.0.0") count as IPv6.
func (k Key) Is6() bool { return !k.addr.Is4() }

// isValid reports whether the key was produced by a successful parse.
func (k Key) isValid() bool { return k.addr.IsValid() }

// maxBits is the bit width of the key's family: 32 or 128.
func (k Key) maxBits() int { return k.addr.BitLen() }

// bitAt returns the bit at index i, MSB first.
func (k Key) bitAt(i int) uint8 {
	s := k.addr.AsSlice()
	if s[i/8]&(1<<(7-i%8)) == 0 {
		return 0
	}
	return 1
}

// commonPrefixLen returns the number of leading bits shared by both
// addresses. The caller limits the result to the relevant prefix lengths.
func (k Key) commonPrefixLen(o Key) int {
	a := k.addr.AsSlice()
	b := o.addr.AsSlice()
	n := 0
	for i := range a {
		z := bits.LeadingZeros8(a[i] ^ b[i])
		n += z
		if z != 8 {
			break
		}
	}
	return n
}

// truncate returns a copy of the key cut down to n bits, re-masked.
func (k Key) truncate(n int) Key {
	p, _ := k.addr.Prefix(n)
	return Key{addr: p.Addr(), bits: n, cidr: true}
}
