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

// Package geofeed reads and validates self-published geofeeds as described
// by draft-google-self-published-geofeeds.
//
// Region codes are checked structurally (a known country code, a dash, and
// a 1-3 character alphanumeric subdivision matching the entry's country)
// rather than against the full ISO 3166-2 enumeration, so a well-formed but
// unassigned code like "US-ZZ" passes validation here.
package geofeed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ipdata/ipdata-go/pkg/iptrie"
)

var log = logrus.WithField("component", "geofeed")

// ValidationError reports a geofeed entry that violates the format.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// Entry is one geofeed line. Only the IP range and the country code are
// mandatory; the remaining fields may be empty.
type Entry struct {
	IPRange    string
	Country    string
	Region     string
	City       string
	PostalCode string
}

func (e *Entry) String() string {
	return strings.Join([]string{e.IPRange, e.Country, e.Region, e.City, e.PostalCode}, ",")
}

// Validate checks the entry against the geofeed format rules: the IP range
// must be a single address or a CIDR prefix without host bits set, the
// country a known ISO 3166-1 alpha-2 code, and the region, when present, an
// ISO 3166-2 style code belonging to the same country.
func (e *Entry) Validate() error {
	if err := validateRange(e.IPRange); err != nil {
		return validationErrorf("[%s] does not have a valid IP address or prefix", e)
	}
	if e.Country == "" {
		return validationErrorf("[%s] is missing a country code", e)
	}
	if !ValidCountry(e.Country) {
		return validationErrorf("[%s] (%s) is not a valid ISO 3166-1 alpha 2 country code", e, e.Country)
	}
	if e.Region != "" {
		cc, sub, ok := strings.Cut(e.Region, "-")
		if !ok || !ValidCountry(cc) || len(sub) < 1 || len(sub) > 3 || !alphanumeric(sub) {
			return validationErrorf("[%s] (%s) is not a valid ISO 3166-2 region code", e, e.Region)
		}
		if cc != e.Country {
			return validationErrorf("[%s] the region code provided is in a different country", e)
		}
	}
	return nil
}

// validateRange accepts a bare address or a prefix. Unlike lookup keys,
// geofeed prefixes must already be masked: host bits set are an error.
func validateRange(s string) error {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return err
		}
		if p.Addr() != p.Masked().Addr() {
			return errors.New("host bits set")
		}
		return nil
	}
	_, err := netip.ParseAddr(s)
	return err
}

func alphanumeric(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// Feed reads geofeed entries from a local file or a URL. Comment lines are
// skipped; every non-comment line must have exactly 5 columns. Duplicate
// prefixes are rejected across the whole feed.
type Feed struct {
	source     string
	client     *http.Client
	seen       *iptrie.Table[struct{}]
	totalCount int
}

// FeedOption customizes a Feed.
type FeedOption func(*Feed)

// WithHTTPClient replaces the client used for URL sources.
func WithHTTPClient(hc *http.Client) FeedOption {
	return func(f *Feed) { f.client = hc }
}

// NewFeed returns a Feed over the given source, either a file path or a URL.
func NewFeed(source string, opts ...FeedOption) *Feed {
	f := &Feed{
		source: source,
		client: &http.Client{Timeout: 60 * time.Second},
		seen:   iptrie.New[struct{}](),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// TotalCount returns the number of non-comment lines read so far.
func (f *Feed) TotalCount() int {
	return f.totalCount
}

func (f *Feed) open() (io.ReadCloser, error) {
	if !strings.Contains(f.source, "://") {
		return os.Open(f.source)
	}
	log.WithField("url", f.source).Debug("downloading geofeed")
	resp, err := f.client.Get(f.source)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", f.source, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to get %s: status %s", f.source, resp.Status)
	}
	return resp.Body, nil
}

// Entries iterates over the feed. Format violations (a row without exactly
// 5 columns, a duplicate prefix) are yielded as a *ValidationError and end
// the iteration; per-entry field validation is left to Entry.Validate so a
// report can cover the whole feed.
func (f *Feed) Entries() iter.Seq2[*Entry, error] {
	return func(yield func(*Entry, error) bool) {
		rc, err := f.open()
		if err != nil {
			yield(nil, err)
			return
		}
		defer rc.Close()

		reader := csv.NewReader(rc)
		reader.Comment = '#'
		reader.FieldsPerRecord = -1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			f.totalCount++

			if len(record) != 5 {
				yield(nil, validationErrorf(
					"[%s] is not a valid geofeed entry: expected 5 columns, got %d",
					strings.Join(record, ","), len(record)))
				return
			}
			entry := &Entry{
				IPRange:    record[0],
				Country:    strings.ToUpper(record[1]),
				Region:     strings.ToUpper(record[2]),
				City:       record[3],
				PostalCode: record[4],
			}

			// Prefixes must be unique across the feed. Unparseable
			// ranges fall through so Validate can report them.
			if dup, err := f.seen.HasKey(entry.IPRange); err == nil {
				if dup {
					yield(nil, validationErrorf("duplicate prefixes found %s", entry.IPRange))
					return
				}
				_ = f.seen.Set(entry.IPRange, struct{}{})
			}

			if !yield(entry, nil) {
				return
			}
		}
	}
}
