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
	"fmt"

	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/database"
	redis_db "github.com/cloakfinance/cloak/internal/redis-db"
	"github.com/redis/go-redis/v9"
)

// Cloak represents the main struct for the Cloak application.
type Cloak struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
}

// NewCloak initializes a new instance of Cloak with the provided database datasource.
// It fetches the configuration and initializes the Redis client and the queue.
//
// Parameters:
// - db database.IDataSource: The datasource for database operations.
//
// Returns:
// - *Cloak: A pointer to the newly created Cloak instance.
// - error: An error if any of the initialization steps fail.
func NewCloak(db database.IDataSource) (*Cloak, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)}, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newCloak := &Cloak{datasource: db, queue: newQueue, redis: redisClient.Client()}
	return newCloak, nil
}
