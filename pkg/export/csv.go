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

package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ipdata/ipdata-go/pkg/ipdata"
)

// nested fields get one CSV column per sub-field, prefixed with the
// field name.
var subFields = map[string][]string{
	"asn":     {"asn", "name", "domain", "route", "type"},
	"company": {"name", "domain", "network", "type"},
	"threat": {
		"is_tor",
		"is_icloud_relay",
		"is_proxy",
		"is_datacenter",
		"is_anonymous",
		"is_known_attacker",
		"is_known_abuser",
		"is_threat",
		"is_bogon",
		"blocklists",
	},
}

// ExpandFields maps the requested API fields to CSV column names,
// expanding nested fields like asn into asn_asn, asn_name and so on.
func ExpandFields(fields []string) []string {
	var columns []string
	for _, field := range fields {
		if subs, ok := subFields[field]; ok {
			for _, sub := range subs {
				columns = append(columns, field+"_"+sub)
			}
			continue
		}
		columns = append(columns, field)
	}
	return columns
}

// CSVWriter writes API responses as CSV rows with nested objects
// flattened into prefixed columns. The header is written before the
// first row.
type CSVWriter struct {
	w           *csv.Writer
	columns     []string
	wroteHeader bool
}

// NewCSVWriter returns a CSVWriter producing one column per expanded
// field, in the given order.
func NewCSVWriter(w io.Writer, fields []string) *CSVWriter {
	return &CSVWriter{
		w:       csv.NewWriter(w),
		columns: ExpandFields(fields),
	}
}

// Write renders one response as a row. Columns with no corresponding
// response value are left empty, and response values with no column are
// dropped.
func (c *CSVWriter) Write(data ipdata.Response) error {
	if !c.wroteHeader {
		if err := c.w.Write(c.columns); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	row := map[string]string{}
	for field, value := range data {
		nested, ok := value.(map[string]interface{})
		if !ok {
			row[field] = render(value)
			continue
		}
		for sub, v := range nested {
			row[field+"_"+sub] = render(v)
		}
	}

	record := make([]string, len(c.columns))
	for i, col := range c.columns {
		record[i] = row[col]
	}
	return c.w.Write(record)
}

// Flush writes buffered rows to the underlying writer.
func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

// render formats a response value for a CSV cell. Lists, like threat
// blocklists, are embedded as compact JSON.
func render(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; keep integers undecorated
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}
