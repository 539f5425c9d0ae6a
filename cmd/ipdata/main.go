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
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ipdata/ipdata-go/pkg/config"
	"github.com/ipdata/ipdata-go/pkg/export"
	"github.com/ipdata/ipdata-go/pkg/geofeed"
	"github.com/ipdata/ipdata-go/pkg/ipdata"
)

var (
	buildVersion = "unknown"
	buildDate    = "unknown"
	cfgFile      string
	envPrefix    = "IPDATA"
	opts         config.Options

	fields      []string
	exclude     []string
	pretty      bool
	raw         bool
	batchOutput string
	batchFormat string
	bulkWorkers int
)

// rootCmd represents the root command; with a bare resource argument it
// behaves like the lookup subcommand.
var rootCmd = &cobra.Command{
	Use:     "ipdata [resource]",
	Short:   "Look up the geolocation and threat profile of any IP address",
	Version: fmt.Sprintf("%s (built %s)", buildVersion, buildDate),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLookup(cmd, args)
	},
	SilenceUsage: true,
}

var lookupCmd = &cobra.Command{
	Use:   "lookup [resource]",
	Short: "Look up an IP address, an ASN, or your own IP when no resource is given",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLookup,
}

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Look up every IP in a file, one per line, using bulk requests",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var initCmd = &cobra.Command{
	Use:   "init <api-key>",
	Short: "Verify an API key and store it in " + "$HOME/" + config.APIKeyFileName,
	Args:  cobra.ExactArgs(1),
	RunE:  runInit,
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show today's request count",
	Args:  cobra.NoArgs,
	RunE:  runUsage,
}

var validateCmd = &cobra.Command{
	Use:   "validate <feed>",
	Short: "Validate a geofeed file or URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

// initConfig use config file and ENV variables if set.
func initConfig() {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	}

	// Read environment variables that match prefix
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	var cfgErr error
	if cfgFile != "" {
		cfgErr = v.ReadInConfig()
	}

	bindFlags(rootCmd, v)

	// initialize logger
	initLogger()

	if cfgErr != nil {
		log.Errorf("Read config error: %v", cfgErr)
	}
}

func initLogger() {
	ll, err := log.ParseLevel(opts.LogLevel)
	if err != nil {
		ll = log.ErrorLevel
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableColors: false, FullTimestamp: true, PadLevelText: true, DisableQuote: true})
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		envVarSuffix := strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		_ = v.BindEnv(f.Name, fmt.Sprintf("%s_%s", envPrefix, envVarSuffix))

		// Apply the viper config value to the flag when the flag is not set and viper has a value
		if !f.Changed && v.IsSet(f.Name) {
			_ = cmd.PersistentFlags().Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func initFlags() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "error", "Log level: debug, info, warning, error")
	rootCmd.PersistentFlags().StringVar(&opts.APIKey, "api-key", "", "API key (overrides $IPDATA_API_KEY and the stored key)")
	rootCmd.PersistentFlags().StringVar(&opts.Endpoint, "endpoint", ipdata.DefaultEndpoint, "API endpoint, e.g. "+ipdata.EUEndpoint+" for EU-only processing")
	rootCmd.PersistentFlags().IntVar(&opts.Timeout, "timeout", 60, "Request timeout in seconds")
	rootCmd.PersistentFlags().IntVar(&opts.RetryLimit, "retry-limit", 7, "Maximum retries per request")

	for _, cmd := range []*cobra.Command{rootCmd, lookupCmd} {
		cmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Response fields to select")
		cmd.Flags().StringSliceVarP(&exclude, "exclude", "e", nil, "Response fields to drop")
		cmd.Flags().BoolVarP(&pretty, "pretty", "p", false, "Aligned text output instead of JSON")
		cmd.Flags().BoolVarP(&raw, "raw", "r", false, "Compact single-line JSON output")
	}
	batchCmd.Flags().StringSliceVarP(&fields, "fields", "f", nil, "Response fields to select")
	batchCmd.Flags().StringSliceVarP(&exclude, "exclude", "e", nil, "Response fields to drop")
	batchCmd.Flags().StringVarP(&batchOutput, "output", "o", "", "Output file (default stdout)")
	batchCmd.Flags().StringVar(&batchFormat, "format", "json", "Output format: json or csv")
	batchCmd.Flags().IntVar(&bulkWorkers, "workers", 4, "Concurrent bulk requests")

	rootCmd.AddCommand(lookupCmd, batchCmd, initCmd, usageCmd, validateCmd)
}

func main() {
	// Initialize flags (command line parameters)
	initFlags()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newClient builds a client from the resolved options. The API key comes
// from the flag or environment first, then from the stored key file.
func newClient() (*ipdata.Client, error) {
	key := opts.APIKey
	if key == "" {
		var err error
		if key, err = config.LoadAPIKey(); err != nil {
			return nil, err
		}
	}
	if key == "" {
		return nil, fmt.Errorf("no API key configured: run \"ipdata init <api-key>\" or set $%s_API_KEY", envPrefix)
	}
	return clientWithKey(key), nil
}

func clientWithKey(key string) *ipdata.Client {
	return ipdata.NewClient(key,
		ipdata.WithEndpoint(opts.Endpoint),
		ipdata.WithTimeout(time.Duration(opts.Timeout)*time.Second),
		ipdata.WithRetryLimit(opts.RetryLimit),
	)
}

// selectedFields resolves --fields and --exclude into the field list sent
// to the API. The flags are mutually exclusive.
func selectedFields() ([]string, error) {
	if len(fields) > 0 && len(exclude) > 0 {
		return nil, fmt.Errorf("--fields and --exclude cannot be combined")
	}
	if len(exclude) > 0 {
		return ipdata.FieldsExcluding(exclude)
	}
	if err := ipdata.ValidateFields(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func runLookup(cmd *cobra.Command, args []string) error {
	resource := ""
	if len(args) == 1 {
		resource = args[0]
	}
	if pretty && raw {
		return fmt.Errorf("--pretty and --raw cannot be combined")
	}
	f, err := selectedFields()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	data, err := client.Lookup(cmd.Context(), resource, f)
	if err != nil {
		return err
	}
	if msg := data.Message(); msg != "" && data.Status() != 200 {
		return fmt.Errorf("lookup failed: %s", msg)
	}
	switch {
	case pretty:
		return export.WritePretty(os.Stdout, data)
	case raw:
		return export.WriteNDJSON(os.Stdout, data)
	}
	return export.WriteJSON(os.Stdout, data)
}

func runInit(cmd *cobra.Command, args []string) error {
	key := args[0]

	// verify the key with a real lookup before storing it
	data, err := clientWithKey(key).Lookup(cmd.Context(), "8.8.8.8", []string{"ip"})
	if err != nil {
		return err
	}
	if data.Status() != 200 {
		return fmt.Errorf("API key rejected: %s", data.Message())
	}

	if err := config.SaveAPIKey(key); err != nil {
		return err
	}
	path, _ := config.APIKeyFilePath()
	fmt.Printf("Success! Your API key has been saved to %s\n", path)
	return nil
}

func runUsage(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	count, err := client.Usage(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("You have made %d requests today. The quota resets at 00:00 UTC.\n", count)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	f, err := selectedFields()
	if err != nil {
		return err
	}
	client, err := newClient()
	if err != nil {
		return err
	}
	resources, err := readResources(args[0])
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		return fmt.Errorf("%s contains no resources to look up", args[0])
	}

	out := io.Writer(os.Stdout)
	if batchOutput != "" {
		file, err := os.Create(batchOutput)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	var write func(ipdata.Response) error
	switch strings.ToLower(batchFormat) {
	case "json":
		write = func(r ipdata.Response) error { return export.WriteNDJSON(out, r) }
	case "csv":
		columns := f
		if len(columns) == 0 {
			columns, _ = ipdata.FieldsExcluding([]string{"count", "status"})
		}
		w := export.NewCSVWriter(out, columns)
		defer func() { _ = w.Flush() }()
		write = w.Write
	default:
		return fmt.Errorf("unknown batch format %q: expected json or csv", batchFormat)
	}

	// Bulk lookups run concurrently in chunks of up to 100 resources.
	// Results funnel through a single channel so the writer never races.
	chunks := make(chan []string)
	results := make(chan []ipdata.Response)
	var wg sync.WaitGroup
	for i := 0; i < bulkWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunks {
				responses, err := client.Bulk(cmd.Context(), chunk, f)
				if err != nil {
					log.WithError(err).Errorf("bulk lookup of %d resources failed", len(chunk))
					continue
				}
				results <- responses
			}
		}()
	}
	go func() {
		for i := 0; i < len(resources); i += ipdata.BulkLimit {
			end := min(i+ipdata.BulkLimit, len(resources))
			chunks <- resources[i:end]
		}
		close(chunks)
		wg.Wait()
		close(results)
	}()

	return writeBatchResults(results, len(resources), write)
}

// writeBatchResults consumes every result batch even after a write error,
// so the producer and workers can always finish sending and exit.
func writeBatchResults(results <-chan []ipdata.Response, total int, write func(ipdata.Response) error) error {
	done := 0
	var writeErr error
	for responses := range results {
		for _, r := range responses {
			if writeErr != nil {
				continue
			}
			if err := write(r); err != nil {
				writeErr = err
			}
		}
		done += len(responses)
		log.Infof("processed %d/%d resources", done, total)
	}
	return writeErr
}

func readResources(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var resources []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			resources = append(resources, line)
		}
	}
	return resources, scanner.Err()
}

func runValidate(_ *cobra.Command, args []string) error {
	feed := geofeed.NewFeed(args[0])
	valid := true
	validCount := 0
	for entry, err := range feed.Entries() {
		if err != nil {
			log.Error(err)
			valid = false
			continue
		}
		if err := entry.Validate(); err != nil {
			log.Error(err)
			valid = false
			continue
		}
		validCount++
	}

	if feed.TotalCount() == 0 {
		return fmt.Errorf("the provided geofeed is empty")
	}

	percentage := float64(validCount) / float64(feed.TotalCount()) * 100
	fmt.Printf("%s has %d (%.2f%%) valid entries.\n", args[0], validCount, percentage)

	if !valid {
		return fmt.Errorf("the provided geofeed has invalid entries")
	}
	fmt.Println("Success! Your geofeed is valid and ready for publishing. Send an email to corrections@ipdata.co with the URL of this feed.")
	return nil
}
