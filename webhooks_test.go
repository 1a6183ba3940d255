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
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"

	"github.com/cloakfinance/cloak/config"
)

func TestSendWebhook(t *testing.T) {
	mr := miniredis.RunT(t)

	mockConfig := &config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	}
	mockConfig.Notification.Webhook.Url = "https://localhost:5001/webhook"
	config.MockConfig(mockConfig)

	err := SendWebhook(NewWebhook{
		Event:   "transfer.applied",
		Payload: newTestTransfer(),
	})
	assert.NoError(t, err)

	// Verify that the task was enqueued
	tasks := mr.Keys()
	assert.NotEmpty(t, tasks)
}

func TestSendWebhookSkipsWithoutURL(t *testing.T) {
	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	err := SendWebhook(NewWebhook{Event: "transfer.applied"})
	assert.NoError(t, err)
	assert.Empty(t, mr.Keys())
}

func TestProcessWebhook(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	mockConfig := &config.Configuration{}
	mockConfig.Notification.Webhook.Url = "http://localhost:5001/webhook"
	config.MockConfig(mockConfig)

	httpmock.RegisterResponder("POST", "http://localhost:5001/webhook",
		httpmock.NewStringResponder(http.StatusOK, "ok"))

	payload, err := json.Marshal(NewWebhook{Event: "aggregation.applied"})
	assert.NoError(t, err)

	task := asynq.NewTask("new:webhook", payload)
	err = ProcessWebhook(context.Background(), task)
	assert.NoError(t, err)

	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestProcessWebhookRetriesOnServerError(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	mockConfig := &config.Configuration{}
	mockConfig.Notification.Webhook.Url = "http://localhost:5001/webhook"
	config.MockConfig(mockConfig)

	httpmock.RegisterResponder("POST", "http://localhost:5001/webhook",
		httpmock.NewStringResponder(http.StatusBadGateway, "bad gateway"))

	payload, err := json.Marshal(NewWebhook{Event: "aggregation.applied"})
	assert.NoError(t, err)

	task := asynq.NewTask("new:webhook", payload)
	err = ProcessWebhook(context.Background(), task)
	assert.Error(t, err)
}
