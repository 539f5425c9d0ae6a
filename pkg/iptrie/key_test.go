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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseKey(t *testing.T) {
	tests := []struct {
		input string
		want  string
		bits  int
		is6   bool
	}{
		{"192.168.1.1", "192.168.1.1", 32, false},
		{"192.168.1.0/24", "192.168.1.0/24", 24, false},
		// non-strict: host bits beyond the mask are cleared, not rejected
		{"192.168.1.100/24", "192.168.1.0/24", 24, false},
		{"10.0.0.0/8", "10.0.0.0/8", 8, false},
		{"0.0.0.0/0", "0.0.0.0/0", 0, false},
		{"2001:db8::1", "2001:db8::1", 128, true},
		{"2001:db8::/32", "2001:db8::/32", 32, true},
		{"2001:0db8:0000:0000:0000:0000:0000:0001", "2001:db8::1", 128, true},
		{"2001:db8::ff00/112", "2001:db8::/112", 112, true},
		{"::/0", "::/0", 0, true},
		{"::ffff:10.0.0.0/104", "::ffff:10.0.0.0/104", 104, true},
		{"  192.168.1.1  ", "192.168.1.1", 32, false},
		{"\t2001:db8::/32\n", "2001:db8::/32", 32, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			k, err := ParseKey(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, k.String())
			assert.Equal(t, tt.bits, k.Bits())
			assert.Equal(t, tt.is6, k.Is6())
			assert.True(t, k.isValid())
		})
	}
}

func Test_ParseKey_Invalid(t *testing.T) {
	for _, input := range []string{
		"",
		"   ",
		"not-an-ip",
		"192.168.1",
		"192.168.1.256",
		"10.0.0.0/33",
		"10.0.0.0/-1",
		"10.0.0.0/",
		"/24",
		"2001:db8::/129",
		"2001:db8::1::2",
		"fe80::1%eth0",
		"1.2.3.4 extra",
	} {
		t.Run(input, func(t *testing.T) {
			_, err := ParseKey(input)
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func Test_Key_HostVsNetworkRendering(t *testing.T) {
	// a host key given without a mask round-trips without one
	host, err := ParseKey("1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", host.String())

	// the same bits given in CIDR form keep the mask
	net, err := ParseKey("1.2.3.4/32")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4/32", net.String())

	// identity ignores the rendering difference
	assert.Equal(t, host.Bits(), net.Bits())
	assert.Equal(t, 32, host.commonPrefixLen(net))
}

func Test_Key_BitOps(t *testing.T) {
	k, err := ParseKey("128.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, uint8(1), k.bitAt(0))
	assert.Equal(t, uint8(0), k.bitAt(1))
	assert.Equal(t, uint8(1), k.bitAt(31))

	a, _ := ParseKey("10.1.0.0/16")
	b, _ := ParseKey("10.2.0.0/16")
	// 10.1 = ...00000001, 10.2 = ...00000010: diverge at bit 14
	assert.Equal(t, 14, a.commonPrefixLen(b))

	tr := a.truncate(8)
	assert.Equal(t, "10.0.0.0/8", tr.String())
}
