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
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/database"
)

// pqUniqueViolation mimics the driver error Postgres raises on a unique
// index hit.
var pqUniqueViolation = pq.Error{Code: "23505"}

// newTestCloak wires a Cloak instance against a stub database and an
// in-process Redis, so the queue and lock paths run for real while every
// SQL statement is asserted through sqlmock.
func newTestCloak(t *testing.T) (*Cloak, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	datasource := &database.Datasource{Conn: db}
	cl, err := NewCloak(datasource)
	require.NoError(t, err)

	return cl, mock, mr
}
