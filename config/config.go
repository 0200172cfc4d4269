/*
Copyright 2025 Quanta Ledger Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_HEALTH_PORT = "5401"
)

var ConfigStore atomic.Value

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"BRIDGE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"BRIDGE_REDIS_DNS"`
}

type ServerConfig struct {
	Port string `json:"port" envconfig:"BRIDGE_SERVER_PORT"`
}

// IdentityConfig declares one ledger credential. Credential material lives at
// CredentialPath and is rotated by replacing the file, never by code changes.
type IdentityConfig struct {
	Name           string `json:"name"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
	Endpoint       string `json:"endpoint"`
	CredentialPath string `json:"credential_path"`
}

type LedgerConfig struct {
	Network          string           `json:"network" envconfig:"BRIDGE_LEDGER_NETWORK"`
	Channel          string           `json:"channel" envconfig:"BRIDGE_LEDGER_CHANNEL"`
	Contract         string           `json:"contract" envconfig:"BRIDGE_LEDGER_CONTRACT"`
	Identities       []IdentityConfig `json:"identities"`
	SubmitTimeoutSec int              `json:"submit_timeout_sec" envconfig:"BRIDGE_LEDGER_SUBMIT_TIMEOUT_SEC"`
}

type DispatcherConfig struct {
	BatchSize            int `json:"batch_size" envconfig:"BRIDGE_DISPATCHER_BATCH_SIZE"`
	PollIntervalSec      int `json:"poll_interval_sec" envconfig:"BRIDGE_DISPATCHER_POLL_INTERVAL_SEC"`
	MaxAttempts          int `json:"max_attempts" envconfig:"BRIDGE_DISPATCHER_MAX_ATTEMPTS"`
	LockTimeoutMin       int `json:"lock_timeout_min" envconfig:"BRIDGE_DISPATCHER_LOCK_TIMEOUT_MIN"`
	ReconcileIntervalMin int `json:"reconcile_interval_min" envconfig:"BRIDGE_DISPATCHER_RECONCILE_INTERVAL_MIN"`
}

type ProjectorConfig struct {
	Name                   string `json:"name" envconfig:"BRIDGE_PROJECTOR_NAME"`
	StalenessThresholdSec  int    `json:"staleness_threshold_sec" envconfig:"BRIDGE_PROJECTOR_STALENESS_THRESHOLD_SEC"`
	LockTTLSec             int    `json:"lock_ttl_sec" envconfig:"BRIDGE_PROJECTOR_LOCK_TTL_SEC"`
	ReconnectMaxElapsedMin int    `json:"reconnect_max_elapsed_min" envconfig:"BRIDGE_PROJECTOR_RECONNECT_MAX_ELAPSED_MIN"`
}

type QueueConfig struct {
	DeadLetterQueue string `json:"dead_letter_queue" envconfig:"BRIDGE_QUEUE_DEAD_LETTER"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"BRIDGE_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Ledger       LedgerConfig     `json:"ledger"`
	Dispatcher   DispatcherConfig `json:"dispatcher"`
	Projector    ProjectorConfig  `json:"projector"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("bridge", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called bridge.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		cnf.ProjectName = "Ledger Bridge"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_HEALTH_PORT
	}

	if cnf.Ledger.Channel == "" {
		cnf.Ledger.Channel = "main"
	}
	if cnf.Ledger.Contract == "" {
		cnf.Ledger.Contract = "assets"
	}
	if cnf.Ledger.SubmitTimeoutSec <= 0 {
		cnf.Ledger.SubmitTimeoutSec = 60
	}

	if cnf.Dispatcher.BatchSize <= 0 {
		cnf.Dispatcher.BatchSize = 50
	}
	if cnf.Dispatcher.PollIntervalSec <= 0 {
		cnf.Dispatcher.PollIntervalSec = 2
	}
	if cnf.Dispatcher.MaxAttempts <= 0 {
		cnf.Dispatcher.MaxAttempts = 5
	}
	// Reclaim eligibility must sit well above worst-case multi-org endorsement
	// latency. Minutes, not seconds.
	if cnf.Dispatcher.LockTimeoutMin <= 0 {
		cnf.Dispatcher.LockTimeoutMin = 5
	}
	if cnf.Dispatcher.ReconcileIntervalMin <= 0 {
		cnf.Dispatcher.ReconcileIntervalMin = 10
	}

	if cnf.Projector.Name == "" {
		cnf.Projector.Name = "read-model-projector"
	}
	if cnf.Projector.StalenessThresholdSec <= 0 {
		cnf.Projector.StalenessThresholdSec = 60
	}
	if cnf.Projector.LockTTLSec <= 0 {
		cnf.Projector.LockTTLSec = 30
	}
	if cnf.Projector.ReconnectMaxElapsedMin <= 0 {
		cnf.Projector.ReconnectMaxElapsedMin = 30
	}

	if cnf.Queue.DeadLetterQueue == "" {
		cnf.Queue.DeadLetterQueue = "bridge:dead_letter"
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
