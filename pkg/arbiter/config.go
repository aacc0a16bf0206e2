/*
 * Copyright 2025 SREDiag Authors
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
 */

package arbiter

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/srediag/shm-arbiter/api"
	itransport "github.com/srediag/shm-arbiter/internal/transport"
)

const (
	defaultMemfdName = "shm_manager"
	// the kernel limits memfd names to 249 bytes
	maxMemfdNameLen = 249
)

// Config is used to tune the arbiter.
type Config struct {
	// Address is the listening socket. A leading '@' selects the abstract namespace.
	Address string `yaml:"address"`

	// MemfdName labels every created memfd in /proc/<pid>/fd.
	MemfdName string `yaml:"memfd_name"`

	// FailFast stops the loop on the first rejected request (unknown name,
	// duplicate create, zero size). By default rejected requests are logged and
	// the loop keeps serving.
	FailFast bool `yaml:"fail_fast"`

	// RequestTimeout bounds how long a connection may take to deliver its
	// request. Zero waits forever.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// LogOutput is used to control the log destination.
	LogOutput io.Writer `yaml:"-"`

	// Audit receives registry mutation events. Nil disables auditing.
	Audit api.Audit `yaml:"-"`

	// Registerer receives the arbiter's prometheus collectors. Nil skips registration.
	Registerer prometheus.Registerer `yaml:"-"`
}

// DefaultConfig is used to return a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:   itransport.DefaultAddress,
		MemfdName: defaultMemfdName,
		LogOutput: os.Stdout,
	}
}

// VerifyConfig is used to verify the sanity of configuration.
func VerifyConfig(config *Config) error {
	if config == nil {
		return errors.New("arbiter: nil config")
	}
	if _, err := itransport.ResolveAddr(config.Address); err != nil {
		return err
	}
	if config.MemfdName == "" || len(config.MemfdName) > maxMemfdNameLen {
		return fmt.Errorf("arbiter: memfd name must be 1..%d bytes", maxMemfdNameLen)
	}
	if config.RequestTimeout < 0 {
		return fmt.Errorf("arbiter: negative request timeout %s", config.RequestTimeout)
	}
	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	conf := DefaultConfig()
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	d := yaml.NewDecoder(file)
	d.KnownFields(true)
	if err := d.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("arbiter: decode %s: %w", path, err)
	}
	if err := VerifyConfig(conf); err != nil {
		return nil, err
	}
	return conf, nil
}
