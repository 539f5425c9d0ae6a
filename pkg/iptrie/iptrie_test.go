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
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Table_SetThenGetExact(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("192.168.1.0/24", "local-network"))

	v, ok, err := tbl.GetExact("192.168.1.0/24")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "local-network", v)

	v, ok, err = tbl.Get("192.168.1.100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "local-network", v)
}

func Test_Table_LongestPrefixMatch(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("10.0.0.0/8", "A"))
	require.NoError(t, tbl.Set("10.1.0.0/16", "B"))
	require.NoError(t, tbl.Set("10.1.1.0/24", "C"))

	for _, tt := range []struct {
		addr  string
		want  string
		found bool
	}{
		{"10.1.1.100", "C", true},
		{"10.1.2.100", "B", true},
		{"10.2.0.1", "A", true},
		{"192.168.0.1", "", false},
	} {
		v, ok, err := tbl.Get(tt.addr)
		require.NoError(t, err)
		assert.Equal(t, tt.found, ok, tt.addr)
		assert.Equal(t, tt.want, v, tt.addr)
	}
}

func Test_Table_ExactVsCovering(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("192.168.1.0/24", "net"))

	ok, err := tbl.HasKey("192.168.1.0/24")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = tbl.HasKey("192.168.1.0/25")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = tbl.HasKey("192.168.1.100")
	require.NoError(t, err)
	assert.False(t, ok, "host address has no exact entry")

	ok, err = tbl.Contains("192.168.1.100")
	require.NoError(t, err)
	assert.True(t, ok, "host address is covered by the /24")
}

func Test_Table_DeleteRemovesCoverage(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("192.168.1.0/24", "net"))
	require.NoError(t, tbl.Set("10.0.0.0/8", "ten"))
	require.Equal(t, 2, tbl.Len())

	require.NoError(t, tbl.Delete("192.168.1.0/24"))
	require.Equal(t, 1, tbl.Len())

	ok, err := tbl.Contains("192.168.1.1")
	require.NoError(t, err)
	assert.False(t, ok)

	err = tbl.Delete("192.168.1.0/24")
	require.ErrorIs(t, err, ErrKeyNotFound)
}

func Test_Table_OverwriteKeepsLength(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("10.0.0.0/8", "first"))
	require.NoError(t, tbl.Set("10.0.0.0/8", "second"))
	require.Equal(t, 1, tbl.Len())

	v, ok, err := tbl.GetExact("10.0.0.0/8")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func Test_Table_FamilyIsolation(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("10.0.0.0/8", "v4"))

	// even the IPv4-mapped form lives in the IPv6 trie
	ok, err := tbl.Contains("::ffff:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tbl.Set("::ffff:10.0.0.0/104", "mapped"))
	v, ok, err := tbl.Get("10.1.2.3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v4", v)
	v, ok, err = tbl.Get("::ffff:10.1.2.3")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "mapped", v)
}

func Test_Table_DefaultRoute(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("0.0.0.0/0", "default"))

	v, ok, err := tbl.Get("8.8.8.8")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "default", v)

	require.NoError(t, tbl.Set("8.8.8.0/24", "dns"))
	v, _, err = tbl.Get("8.8.8.8")
	require.NoError(t, err)
	assert.Equal(t, "dns", v)
}

func Test_Table_Parent(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("192.168.0.0/16", "wide"))
	require.NoError(t, tbl.Set("192.168.1.0/24", "narrow"))

	p, ok, err := tbl.Parent("192.168.1.100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.0/24", p)

	p, ok, err = tbl.Parent("192.168.2.100")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "192.168.0.0/16", p)

	_, ok, err = tbl.Parent("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Table_Children(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("10.0.0.0/8", "root"))
	require.NoError(t, tbl.Set("10.1.0.0/16", "one"))
	require.NoError(t, tbl.Set("10.2.0.0/16", "two"))
	require.NoError(t, tbl.Set("192.168.0.0/16", "other"))

	children, err := tbl.Children("10.0.0.0/8")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"10.1.0.0/16", "10.2.0.0/16"}, children)
	assert.NotContains(t, children, "10.0.0.0/8", "the /8 entry itself is excluded")

	children, err = tbl.Children("172.16.0.0/12")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func Test_Table_InvalidKeyPropagates(t *testing.T) {
	tbl := New[string]()

	require.ErrorIs(t, tbl.Set("not-an-ip", "x"), ErrInvalidKey)
	_, _, err := tbl.Get("999.1.1.1")
	require.ErrorIs(t, err, ErrInvalidKey)
	// a malformed string is not silently "not found"
	_, err = tbl.Contains("not-an-ip")
	require.ErrorIs(t, err, ErrInvalidKey)
	_, err = tbl.HasKey("")
	require.ErrorIs(t, err, ErrInvalidKey)
	require.ErrorIs(t, tbl.Delete("10.0.0.0/99"), ErrInvalidKey)
}

func Test_Table_Iteration(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("2001:db8::/32", "docs"))
	require.NoError(t, tbl.Set("10.0.0.0/8", "ten"))
	require.NoError(t, tbl.Set("192.168.1.1", "host"))

	keys := slices.Collect(tbl.Keys())
	require.Len(t, keys, 3)
	// IPv4 entries come before IPv6 entries
	assert.Equal(t, "2001:db8::/32", keys[2])
	// a host key inserted without a mask round-trips without one
	assert.Contains(t, keys, "192.168.1.1")
	assert.Contains(t, keys, "10.0.0.0/8")

	values := slices.Collect(tbl.Values())
	assert.ElementsMatch(t, []string{"docs", "ten", "host"}, values)

	got := map[string]string{}
	for k, v := range tbl.All() {
		got[k] = v
	}
	assert.Equal(t, map[string]string{
		"10.0.0.0/8":    "ten",
		"192.168.1.1":   "host",
		"2001:db8::/32": "docs",
	}, got)

	// restartable: a second pass yields the same sequence
	assert.Equal(t, keys, slices.Collect(tbl.Keys()))
}

func Test_Table_ClearAndEmpty(t *testing.T) {
	tbl := New[int]()
	assert.True(t, tbl.IsEmpty())
	require.NoError(t, tbl.Set("10.0.0.0/8", 1))
	require.NoError(t, tbl.Set("2001:db8::/32", 2))
	assert.False(t, tbl.IsEmpty())
	assert.Equal(t, 2, tbl.Len())

	tbl.Clear()
	assert.True(t, tbl.IsEmpty())
	ok, err := tbl.Contains("10.1.2.3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func Test_Table_GetWithNetworkKey(t *testing.T) {
	tbl := New[string]()
	require.NoError(t, tbl.Set("10.0.0.0/8", "wide"))

	// a network key is covered by any stored prefix that contains it
	v, ok, err := tbl.Get("10.1.0.0/16")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "wide", v)

	// but a wider query is not covered by a narrower entry
	_, ok, err = tbl.Get("0.0.0.0/0")
	require.NoError(t, err)
	assert.False(t, ok)
}
