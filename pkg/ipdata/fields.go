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

package ipdata

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ValidFields is the set of response fields the API supports.
var ValidFields = map[string]struct{}{
	"ip":             {},
	"is_eu":          {},
	"city":           {},
	"region":         {},
	"region_code":    {},
	"country_name":   {},
	"country_code":   {},
	"continent_name": {},
	"continent_code": {},
	"latitude":       {},
	"longitude":      {},
	"asn":            {},
	"postal":         {},
	"calling_code":   {},
	"flag":           {},
	"emoji_flag":     {},
	"emoji_unicode":  {},
	"carrier":        {},
	"languages":      {},
	"currency":       {},
	"time_zone":      {},
	"threat":         {},
	"count":          {},
	"status":         {},
	"company":        {},
}

// ValidateFields checks every name against ValidFields.
func ValidateFields(fields []string) error {
	var unknown []string
	for _, f := range fields {
		if _, ok := ValidFields[f]; !ok {
			unknown = append(unknown, f)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("the field(s) %s are not supported", strings.Join(unknown, ", "))
	}
	return nil
}

// FieldsExcluding returns all supported fields minus the given ones,
// sorted. It backs the CLI's --exclude flag.
func FieldsExcluding(exclude []string) ([]string, error) {
	if err := ValidateFields(exclude); err != nil {
		return nil, err
	}
	drop := map[string]struct{}{}
	for _, f := range exclude {
		drop[f] = struct{}{}
	}
	var fields []string
	for f := range ValidFields {
		if _, ok := drop[f]; !ok {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields, nil
}

// ASN describes the autonomous system a resource belongs to.
type ASN struct {
	ASN    string `mapstructure:"asn"`
	Name   string `mapstructure:"name"`
	Domain string `mapstructure:"domain"`
	Route  string `mapstructure:"route"`
	Type   string `mapstructure:"type"`
}

// Company describes the organization an IP is allocated to.
type Company struct {
	Name    string `mapstructure:"name"`
	Domain  string `mapstructure:"domain"`
	Network string `mapstructure:"network"`
	Type    string `mapstructure:"type"`
}

// Threat carries the threat-profile booleans for an IP.
type Threat struct {
	IsTor           bool        `mapstructure:"is_tor"`
	IsIcloudRelay   bool        `mapstructure:"is_icloud_relay"`
	IsProxy         bool        `mapstructure:"is_proxy"`
	IsDatacenter    bool        `mapstructure:"is_datacenter"`
	IsAnonymous     bool        `mapstructure:"is_anonymous"`
	IsKnownAttacker bool        `mapstructure:"is_known_attacker"`
	IsKnownAbuser   bool        `mapstructure:"is_known_abuser"`
	IsThreat        bool        `mapstructure:"is_threat"`
	IsBogon         bool        `mapstructure:"is_bogon"`
	Blocklists      []Blocklist `mapstructure:"blocklists"`
}

// Blocklist names one blocklist an IP appears on.
type Blocklist struct {
	Name string `mapstructure:"name"`
	Site string `mapstructure:"site"`
	Type string `mapstructure:"type"`
}

// DecodeField decodes a nested response object (asn, company, threat, ...)
// into a typed struct. Missing or null fields leave out untouched.
func (r Response) DecodeField(name string, out interface{}) error {
	raw, ok := r[name]
	if !ok || raw == nil {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("error decoding field %q: %w", name, err)
	}
	return nil
}
