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

package main

import (
	"errors"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipdata/ipdata-go/pkg/ipdata"
)

var initOnce sync.Once

func setupCommands() {
	initOnce.Do(initFlags)
}

func Test_LookupFlags(t *testing.T) {
	setupCommands()
	for _, cmd := range []*cobra.Command{rootCmd, lookupCmd} {
		for _, name := range []string{"fields", "exclude", "pretty", "raw"} {
			assert.NotNil(t, cmd.Flags().Lookup(name), "%s is missing --%s", cmd.Name(), name)
		}
	}
	assert.Equal(t, "r", lookupCmd.Flags().Lookup("raw").Shorthand)
	assert.Equal(t, "p", lookupCmd.Flags().Lookup("pretty").Shorthand)
}

func Test_RunLookup_PrettyAndRawConflict(t *testing.T) {
	setupCommands()
	pretty, raw = true, true
	t.Cleanup(func() { pretty, raw = false, false })

	err := runLookup(lookupCmd, nil)
	require.ErrorContains(t, err, "cannot be combined")
}

func Test_WriteBatchResults_DrainsAfterError(t *testing.T) {
	results := make(chan []ipdata.Response)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results <- []ipdata.Response{{"ip": "1.1.1.1"}, {"ip": "8.8.8.8"}}
		results <- []ipdata.Response{{"ip": "9.9.9.9"}}
		close(results)
	}()

	calls := 0
	err := writeBatchResults(results, 3, func(ipdata.Response) error {
		calls++
		return errors.New("disk full")
	})
	// the producer is never left blocked, even though the first write failed
	wg.Wait()
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, calls)
}
