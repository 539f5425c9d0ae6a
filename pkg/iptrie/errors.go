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

import "errors"

var (
	// ErrInvalidKey is returned when a key string cannot be parsed as an
	// IPv4/IPv6 address or CIDR network, or its prefix length is out of
	// range for the detected family.
	ErrInvalidKey = errors.New("invalid IP address or network")

	// ErrKeyNotFound is returned by Delete when no entry exists for the
	// exact prefix. Lookups never return it: a missing covering prefix is
	// a normal outcome, not an error.
	ErrKeyNotFound = errors.New("key not found")
)
