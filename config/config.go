/*
Copyright 2025 Cloak Finance Authors.

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
	DEFAULT_PORT = "5001"

	// Production fee policy: 1.4% treasury, 0.6% referral.
	DEFAULT_TREASURY_BPS = 140
	DEFAULT_REFERRAL_BPS = 60
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CLOAK_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CLOAK_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CLOAK_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CLOAK_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CLOAK_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CLOAK_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CLOAK_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"CLOAK_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"CLOAK_REDIS_SKIP_TLS_VERIFY"`
}

// ComputeServiceConfig points at the external confidential-compute service.
// Submissions are forwarded to Url by the queue workers; the service calls
// back into POST /compute/callback with terminal results.
type ComputeServiceConfig struct {
	Url     string            `json:"url" envconfig:"CLOAK_COMPUTE_SERVICE_URL"`
	Timeout int               `json:"timeout" envconfig:"CLOAK_COMPUTE_SERVICE_TIMEOUT"`
	Headers map[string]string `json:"headers"`
}

// FeesConfig carries the basis-point split applied to every transfer and the
// treasury account the treasury share settles into.
type FeesConfig struct {
	TreasuryBps uint16 `json:"treasury_bps" envconfig:"CLOAK_FEES_TREASURY_BPS"`
	ReferralBps uint16 `json:"referral_bps" envconfig:"CLOAK_FEES_REFERRAL_BPS"`
	Treasury    string `json:"treasury" envconfig:"CLOAK_FEES_TREASURY"`
}

type QueueConfig struct {
	ComputeQueue     string `json:"compute_queue" envconfig:"CLOAK_QUEUE_COMPUTE"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"CLOAK_QUEUE_WEBHOOK"`
	NumberOfQueues   int    `json:"number_of_queues" envconfig:"CLOAK_QUEUE_NUMBER_OF_QUEUES"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"CLOAK_QUEUE_MAX_RETRY_ATTEMPTS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CLOAK_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CLOAK_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CLOAK_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
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
	ProjectName    string               `json:"project_name" envconfig:"CLOAK_PROJECT_NAME"`
	Server         ServerConfig         `json:"server"`
	DataSource     DataSourceConfig     `json:"data_source"`
	Redis          RedisConfig          `json:"redis"`
	ComputeService ComputeServiceConfig `json:"compute_service"`
	Fees           FeesConfig           `json:"fees"`
	Queue          QueueConfig          `json:"queue"`
	Notification   Notification         `json:"notification"`
	RateLimit      RateLimitConfig      `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("cloak", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called cloak.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Cloak Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.ComputeService.Url = strings.TrimSpace(cnf.ComputeService.Url)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Fees.TreasuryBps == 0 && cnf.Fees.ReferralBps == 0 {
		cnf.Fees.TreasuryBps = DEFAULT_TREASURY_BPS
		cnf.Fees.ReferralBps = DEFAULT_REFERRAL_BPS
		log.Printf("Warning: Fee rates not specified. Setting defaults: %d/%d bps", DEFAULT_TREASURY_BPS, DEFAULT_REFERRAL_BPS)
	}
	if int(cnf.Fees.TreasuryBps)+int(cnf.Fees.ReferralBps) > 10000 {
		return errors.New("combined fee rates exceed 10000 basis points")
	}

	if cnf.Queue.ComputeQueue == "" {
		cnf.Queue.ComputeQueue = "new:computation"
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = "new:webhook"
	}
	if cnf.Queue.NumberOfQueues == 0 {
		cnf.Queue.NumberOfQueues = 1
	}
	if cnf.Queue.MaxRetryAttempts == 0 {
		cnf.Queue.MaxRetryAttempts = 5
	}

	if cnf.ComputeService.Timeout == 0 {
		cnf.ComputeService.Timeout = 30
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}

	// Set default cleanup interval if not specified
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	if mockConfig.Fees.TreasuryBps == 0 && mockConfig.Fees.ReferralBps == 0 {
		mockConfig.Fees.TreasuryBps = DEFAULT_TREASURY_BPS
		mockConfig.Fees.ReferralBps = DEFAULT_REFERRAL_BPS
	}
	if mockConfig.Queue.ComputeQueue == "" {
		mockConfig.Queue.ComputeQueue = "new:computation"
	}
	if mockConfig.Queue.WebhookQueue == "" {
		mockConfig.Queue.WebhookQueue = "new:webhook"
	}
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
