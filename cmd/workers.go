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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/cloakfinance/cloak"
	"github.com/cloakfinance/cloak/config"
	redis_db "github.com/cloakfinance/cloak/internal/redis-db"
	"github.com/cloakfinance/cloak/internal/request"
	"github.com/cloakfinance/cloak/model"
)

// processComputeSubmission forwards a queued submission to the external
// confidential-compute service. Transport errors are retried with
// exponential backoff before the task is handed back to asynq; the
// service's terminal result arrives later through the callback endpoint.
func (b *cloakInstance) processComputeSubmission(ctx context.Context, t *asynq.Task) error {
	ctx, span := otel.Tracer("cloak.compute.worker").Start(ctx, "Forward Compute Submission")
	defer span.End()

	var submission model.ComputeSubmission
	if err := json.Unmarshal(t.Payload(), &submission); err != nil {
		logrus.Error(err)
		return err
	}

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	if cfg.ComputeService.Url == "" {
		log.Printf("No compute service configured, dropping submission %s", submission.CorrelationID)
		return nil
	}

	operation := func() error {
		return forwardSubmission(ctx, cfg, &submission)
	}
	err = backoff.Retry(operation, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(cfg.Queue.MaxRetryAttempts)))
	if err != nil {
		logrus.Infof("Submission %s pushed back for retry due to error: %v", submission.CorrelationID, err)
		return err
	}

	log.Println(" [*] Compute Submission Forwarded", submission.CorrelationID)
	return nil
}

func forwardSubmission(ctx context.Context, cfg *config.Configuration, submission *model.ComputeSubmission) error {
	payload, err := request.ToJsonReq(submission)
	if err != nil {
		return backoff.Permanent(err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ComputeService.Timeout)*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.ComputeService.Url, payload)
	if err != nil {
		return backoff.Permanent(err)
	}
	for key, value := range cfg.ComputeService.Headers {
		req.Header.Set(key, value)
	}

	resp, err := request.Call(req, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("compute service returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 300 {
		// The service rejected the submission outright; retrying the same
		// payload cannot succeed.
		return backoff.Permanent(fmt.Errorf("compute service rejected submission with status %d", resp.StatusCode))
	}
	return nil
}

func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.ComputeQueue] = 3
	queues[cfg.Queue.WebhookQueue] = 1
	return queues
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *cloakInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	mux.HandleFunc(cfg.Queue.ComputeQueue, b.processComputeSubmission)
	mux.HandleFunc(cfg.Queue.WebhookQueue, cloak.ProcessWebhook)
}

// workerCommands defines the "workers" command. The workers drain the
// compute submission queue toward the confidential-compute service and
// deliver webhook notifications.
func workerCommands(b *cloakInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start cloak workers",
		Run: func(cmd *cobra.Command, args []string) {
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			queues := initializeQueues()

			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
