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

// Package iptrie provides a dictionary-like container keyed by IP addresses
// and CIDR prefixes, with longest-prefix-match lookups over both address
// families at once.
//
//	t := iptrie.New[string]()
//	_ = t.Set("192.168.0.0/16", "private-network")
//	v, ok, _ := t.Get("192.168.1.100") // "private-network", true
//	p, ok, _ := t.Parent("192.168.1.100") // "192.168.0.0/16", true
//
// The container is not safe for concurrent mutation; callers needing
// concurrent access must serialize externally.
package iptrie

import (
	"fmt"
	"iter"
)

// Table holds one path-compressed trie per address family and routes every
// operation to the right one based on the parsed key. Values stored under
// IPv4 keys are invisible to IPv6 lookups and vice versa, even for
// IPv4-mapped literals.
type Table[V any] struct {
	v4 trie[V]
	v6 trie[V]
}

// New returns an empty Table.
func New[V any]() *Table[V] {
	return &Table[V]{
		v4: trie[V]{maxBits: 32},
		v6: trie[V]{maxBits: 128},
	}
}

func (t *Table[V]) trieFor(k Key) *trie[V] {
	if k.Is6() {
		return &t.v6
	}
	return &t.v4
}

// Set inserts or overwrites the value for the given address or network.
func (t *Table[V]) Set(key string, value V) error {
	k, err := ParseKey(key)
	if err != nil {
		return err
	}
	t.trieFor(k).insert(k, value)
	return nil
}

// Get returns the value of the most specific stored prefix covering key.
// ok is false when no stored prefix covers it.
func (t *Table[V]) Get(key string) (value V, ok bool, err error) {
	k, err := ParseKey(key)
	if err != nil {
		return value, false, err
	}
	_, value, ok = t.trieFor(k).longest(k)
	return value, ok, nil
}

// GetExact returns the value stored for precisely this prefix. Covering
// ancestors are not considered.
func (t *Table[V]) GetExact(key string) (value V, ok bool, err error) {
	k, err := ParseKey(key)
	if err != nil {
		return value, false, err
	}
	value, ok = t.trieFor(k).exact(k)
	return value, ok, nil
}

// HasKey reports whether an entry exists for precisely this prefix.
func (t *Table[V]) HasKey(key string) (bool, error) {
	k, err := ParseKey(key)
	if err != nil {
		return false, err
	}
	_, ok := t.trieFor(k).exact(k)
	return ok, nil
}

// Contains reports whether any stored prefix covers key. A malformed key is
// still an error, not a "not found".
func (t *Table[V]) Contains(key string) (bool, error) {
	k, err := ParseKey(key)
	if err != nil {
		return false, err
	}
	_, _, ok := t.trieFor(k).longest(k)
	return ok, nil
}

// Delete removes the entry for precisely this prefix. It returns
// ErrKeyNotFound when no exact entry exists.
func (t *Table[V]) Delete(key string) error {
	k, err := ParseKey(key)
	if err != nil {
		return err
	}
	if !t.trieFor(k).remove(k) {
		return fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return nil
}

// Parent returns the canonical string of the most specific stored prefix
// covering key, rendered exactly as it was inserted.
func (t *Table[V]) Parent(key string) (prefix string, ok bool, err error) {
	k, err := ParseKey(key)
	if err != nil {
		return "", false, err
	}
	match, _, ok := t.trieFor(k).longest(k)
	if !ok {
		return "", false, nil
	}
	return match.String(), true, nil
}

// Children returns the canonical strings of every stored prefix strictly
// more specific than key, in preorder. The entry for key itself, if any, is
// excluded.
func (t *Table[V]) Children(key string) ([]string, error) {
	k, err := ParseKey(key)
	if err != nil {
		return nil, err
	}
	var out []string
	t.trieFor(k).descendants(k, func(e Key, _ V) bool {
		if e.bits != k.bits {
			out = append(out, e.String())
		}
		return true
	})
	return out, nil
}

// All iterates over every (prefix, value) entry: IPv4 entries first, then
// IPv6, each family in preorder (0-branch before 1-branch). The order is
// deterministic but not numerically sorted.
func (t *Table[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		ok := true
		t.v4.all(func(k Key, v V) bool {
			ok = yield(k.String(), v)
			return ok
		})
		if !ok {
			return
		}
		t.v6.all(func(k Key, v V) bool {
			return yield(k.String(), v)
		})
	}
}

// Keys iterates over every stored prefix string in All order.
func (t *Table[V]) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for k := range t.All() {
			if !yield(k) {
				return
			}
		}
	}
}

// Values iterates over every stored value in All order.
func (t *Table[V]) Values() iter.Seq[V] {
	return func(yield func(V) bool) {
		for _, v := range t.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Len returns the total number of stored prefixes across both families.
func (t *Table[V]) Len() int { return t.v4.size() + t.v6.size() }

// IsEmpty reports whether the table holds no entries.
func (t *Table[V]) IsEmpty() bool { return t.Len() == 0 }

// Clear discards both family tries, leaving the table empty.
func (t *Table[V]) Clear() {
	t.v4 = trie[V]{maxBits: 32}
	t.v6 = trie[V]{maxBits: 128}
}

// String summarizes the table for debugging.
func (t *Table[V]) String() string {
	return fmt.Sprintf("iptrie.Table(ipv4_prefixes=%d, ipv6_prefixes=%d)", t.v4.size(), t.v6.size())
}
