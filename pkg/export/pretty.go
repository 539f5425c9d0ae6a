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
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/ipdata/ipdata-go/pkg/ipdata"
)

// WritePretty renders a response as aligned key/value text, scalar fields
// first and nested objects as indented blocks after them.
func WritePretty(w io.Writer, data ipdata.Response) error {
	if len(data) == 0 {
		return nil
	}

	var scalars, nested []string
	for key, value := range data {
		if _, ok := value.(map[string]interface{}); ok {
			nested = append(nested, key)
			continue
		}
		scalars = append(scalars, key)
	}
	sort.Strings(scalars)
	sort.Strings(nested)

	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, key := range scalars {
		fmt.Fprintf(tw, "%s\t%s\n", key, render(data[key]))
	}
	for _, key := range nested {
		obj := data[key].(map[string]interface{})
		subs := make([]string, 0, len(obj))
		for sub := range obj {
			subs = append(subs, sub)
		}
		sort.Strings(subs)
		fmt.Fprintf(tw, "%s\t\n", key)
		for _, sub := range subs {
			fmt.Fprintf(tw, "  %s\t%s\n", sub, render(obj[sub]))
		}
	}
	return tw.Flush()
}
