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

// trie is a binary path-compressed (Patricia) trie over fixed-width bit
// strings of one address family. Each node records the prefix length at
// which its children diverge; runs of non-branching bits are implicit, so
// the height is bounded by the number of stored entries rather than by the
// bit width. A node either stores a value or is a structural branch with
// two children; delete restores that invariant.
type trie[V any] struct {
	root    *node[V]
	maxBits int
	entries int
}

// node is either a stored prefix, a branch point, or both. branch marks
// nodes that exist only to split two subtrees and hold no value.
type node[V any] struct {
	children [2]*node[V]
	key      Key
	value    V
	branch   bool
}

// prefixMatch returns how far the node's key and k agree, capped at the
// lesser of the node's prefix length and limit.
func (n *node[V]) prefixMatch(limit int, k Key) int {
	if n.key.bits < limit {
		limit = n.key.bits
	}
	if m := n.key.commonPrefixLen(k); m < limit {
		return m
	}
	return limit
}

// forEach visits the subtree in preorder (0-branch before 1-branch),
// skipping structural nodes. Returns false if fn aborted the walk.
func (n *node[V]) forEach(fn func(Key, V) bool) bool {
	if !n.branch && !fn(n.key, n.value) {
		return false
	}
	if c := n.children[0]; c != nil && !c.forEach(fn) {
		return false
	}
	if c := n.children[1]; c != nil && !c.forEach(fn) {
		return false
	}
	return true
}

func (t *trie[V]) attach(parent *node[V], bit uint8, n *node[V]) {
	if parent == nil {
		t.root = n
	} else {
		parent.children[bit] = n
	}
}

// walk descends from the root along k's bits, calling fn for every stored
// prefix that covers the first limit bits of k, from shortest to longest.
// fn can stop the walk by returning false.
func (t *trie[V]) walk(limit int, k Key, fn func(n *node[V], match int) bool) {
	for cur := t.root; cur != nil; cur = cur.children[k.bitAt(cur.key.bits)] {
		match := cur.prefixMatch(limit, k)
		if match < cur.key.bits {
			return
		}
		if cur.branch {
			continue
		}
		if !fn(cur, match) || match == t.maxBits {
			return
		}
	}
}

// insert stores value under k, overwriting any existing entry for the same
// prefix. The descent stops at the first node whose prefix diverges from k
// or extends past it; depending on where that happens the new node fills an
// empty slot, overwrites in place, adopts the old subtree as a child, or is
// spliced in next to it below a fresh branch node at the first differing
// bit.
func (t *trie[V]) insert(k Key, value V) {
	var (
		parent *node[V]
		bit    uint8
		match  int
	)
	cur := t.root
	for cur != nil {
		match = cur.prefixMatch(k.bits, k)
		if match != cur.key.bits || cur.key.bits == t.maxBits || cur.key.bits == k.bits {
			break
		}
		bit = k.bitAt(cur.key.bits)
		parent = cur
		cur = cur.children[bit]
	}

	switch {
	case cur == nil:
		t.attach(parent, bit, &node[V]{key: k, value: value})
		t.entries++

	case match == cur.key.bits:
		// Same prefix: overwrite in place. The key is replaced too so
		// the rendered form tracks the latest insert.
		if cur.branch {
			t.entries++
		}
		cur.key = k
		cur.value = value
		cur.branch = false

	case match == k.bits:
		// k covers cur: push the old subtree down one side.
		n := &node[V]{key: k, value: value}
		n.children[cur.key.bitAt(match)] = cur
		t.attach(parent, bit, n)
		t.entries++

	default:
		// Divergence inside both prefixes: splice in a branch node at
		// the first differing bit, with cur and the new node as its
		// children.
		n := &node[V]{key: k, value: value}
		b := &node[V]{key: cur.key.truncate(match), branch: true}
		if k.bitAt(match) == 0 {
			b.children[0], b.children[1] = n, cur
		} else {
			b.children[0], b.children[1] = cur, n
		}
		t.attach(parent, bit, b)
		t.entries++
	}
}

// exact returns the value stored for precisely this prefix, ignoring
// ancestors and descendants.
func (t *trie[V]) exact(k Key) (value V, ok bool) {
	t.walk(k.bits, k, func(n *node[V], match int) bool {
		if match == k.bits && n.key.bits == k.bits {
			value = n.value
			ok = true
			return false
		}
		return true
	})
	return value, ok
}

// longest returns the most specific stored prefix covering k, if any.
func (t *trie[V]) longest(k Key) (match Key, value V, ok bool) {
	t.walk(k.bits, k, func(n *node[V], _ int) bool {
		match = n.key
		value = n.value
		ok = true
		return true
	})
	return match, value, ok
}

// remove deletes the entry stored for exactly k and reports whether it
// existed. Afterwards the structural invariant is restored: a node with two
// children stays as a valueless branch, a node with one child is collapsed
// into it, and a branch parent left with a single child is merged away.
func (t *trie[V]) remove(k Key) bool {
	var (
		grand, parent *node[V]
		bit, prevBit  uint8
		match         int
	)
	cur := t.root
	for cur != nil {
		match = cur.prefixMatch(k.bits, k)
		if match != cur.key.bits || cur.key.bits == k.bits {
			break
		}
		prevBit = bit
		bit = k.bitAt(cur.key.bits)
		grand = parent
		parent = cur
		cur = cur.children[bit]
	}
	if cur == nil || cur.branch || cur.key.bits != k.bits || match != k.bits {
		return false
	}
	t.entries--

	if cur.children[0] != nil && cur.children[1] != nil {
		// Still splits two subtrees: demote to a structural branch and
		// drop the value.
		var zero V
		cur.branch = true
		cur.value = zero
		return true
	}

	if parent != nil && parent.branch && cur.children[0] == nil && cur.children[1] == nil {
		// Deleting a leaf leaves its branch parent with one child:
		// merge the parent away by promoting the sibling.
		sibling := parent.children[1-bit]
		t.attach(grand, prevBit, sibling)
		return true
	}

	// Collapse the node into its only child, if any.
	child := cur.children[0]
	if child == nil {
		child = cur.children[1]
	}
	t.attach(parent, bit, child)
	return true
}

// descendants calls fn for every stored prefix at or below k, in preorder.
func (t *trie[V]) descendants(k Key, fn func(Key, V) bool) {
	cur := t.root
	for cur != nil {
		match := cur.prefixMatch(k.bits, k)
		if match >= k.bits {
			cur.forEach(fn)
			return
		}
		if cur.key.bits >= t.maxBits {
			return
		}
		cur = cur.children[k.bitAt(cur.key.bits)]
	}
}

// all visits every stored prefix in preorder.
func (t *trie[V]) all(fn func(Key, V) bool) {
	if t.root != nil {
		t.root.forEach(fn)
	}
}

func (t *trie[V]) size() int { return t.entries }
