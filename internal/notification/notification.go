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

package notification

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/internal/request"
)

// SlackNotification posts an error report to the configured Slack webhook.
func SlackNotification(err error) {
	data := json.RawMessage(fmt.Sprintf(`{
		"blocks": [
			{
				"type": "header",
				"text": {
					"type": "plain_text",
					"text": "Error From Cloak 🐞",
					"emoji": true
				}
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Error:*\n%v"
					}
				]
			},
			{
				"type": "section",
				"fields": [
					{
						"type": "mrkdwn",
						"text": "*Time:*\n%v"
					}
				]
			}
		]
	}`, err, time.Now().Format(time.RFC1123)))

	conf, confErr := config.Fetch()
	if confErr != nil {
		logrus.Error(confErr)
		return
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return
	}

	payload, marshalErr := request.ToJsonReq(&data)
	if marshalErr != nil {
		logrus.Error(marshalErr)
		return
	}

	req, reqErr := http.NewRequest("POST", conf.Notification.Slack.WebhookUrl, payload)
	if reqErr != nil {
		logrus.Error(reqErr)
		return
	}

	resp, callErr := request.Call(req, nil)
	if callErr != nil {
		logrus.Error(callErr)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
}

// NotifyError reports an operational error. Errors are logged and, when a
// Slack webhook is configured, fanned out in the background.
func NotifyError(systemError error) {
	logrus.Error(systemError)
	go SlackNotification(systemError)
}
