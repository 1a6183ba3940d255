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

package cloak

import (
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"github.com/cloakfinance/cloak/config"
	redis_db "github.com/cloakfinance/cloak/internal/redis-db"
	"github.com/cloakfinance/cloak/model"
)

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// queueComputeSubmission enqueues an outbound confidential-computation
// submission. The task id is the correlation id, so a submission can never
// be queued twice for the same request.
//
// Parameters:
// - submission *model.ComputeSubmission: The submission to forward.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) queueComputeSubmission(submission *model.ComputeSubmission) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(submission)
	if err != nil {
		return err
	}
	taskOptions := []asynq.Option{
		asynq.TaskID(submission.CorrelationID),
		asynq.Queue(cfg.Queue.ComputeQueue),
	}
	task := asynq.NewTask(cfg.Queue.ComputeQueue, payload, taskOptions...)
	info, err := q.Client.Enqueue(task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued compute submission: %+v", submission.CorrelationID)
	return nil
}
