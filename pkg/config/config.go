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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "config")

// APIKeyFileName is the file in the user's home directory holding the
// API key, written by "ipdata init".
const APIKeyFileName = ".ipdata"

// Options carries the settings every command shares.
type Options struct {
	APIKey     string
	Endpoint   string
	Timeout    int
	RetryLimit int
	LogLevel   string
}

// APIKeyFilePath returns the path of the stored API key file.
func APIKeyFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot locate home directory: %w", err)
	}
	return filepath.Join(home, APIKeyFileName), nil
}

// LoadAPIKey reads the stored API key. It returns the empty string when no
// key has been saved yet.
func LoadAPIKey() (string, error) {
	path, err := APIKeyFilePath()
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("cannot read API key file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// SaveAPIKey persists the API key for later runs.
func SaveAPIKey(key string) error {
	path, err := APIKeyFilePath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(key), 0o600); err != nil {
		return fmt.Errorf("cannot write API key file: %w", err)
	}
	log.WithField("path", path).Debug("saved API key")
	return nil
}
