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

package database

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/cloakfinance/cloak/cache"
	"github.com/cloakfinance/cloak/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		newCache, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("cache unavailable, queries will not be cached: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: newCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "failed to reach database")
	}
	err = createSchema(db)
	if err != nil {
		return nil, err
	}
	err = createEntryTable(db)
	if err != nil {
		return nil, err
	}
	err = createBalanceTable(db)
	if err != nil {
		return nil, err
	}
	err = createTransferTable(db)
	if err != nil {
		return nil, err
	}
	err = createComputationTable(db)
	if err != nil {
		return nil, err
	}
	err = createReferralRewardTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS cloak`)
	return err
}

// createEntryTable creates the ledger entries table. pending_request_id is
// NULL exactly when no confidential computation is in flight for the entry.
func createEntryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cloak.entries (
			id SERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			owner TEXT NOT NULL UNIQUE,
			active BOOLEAN DEFAULT TRUE,
			running_total BIGINT NOT NULL DEFAULT 0,
			aggregate_state BYTEA,
			aggregate_version BIGINT NOT NULL DEFAULT 0,
			pending_request_id TEXT,
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// createTransferTable creates the transfers table. The unique index on
// (sender, replay_nonce) is the unique-use replay guard: it is enforced in
// the same transaction that settles the transfer.
func createTransferTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cloak.transfers (
			id SERIAL PRIMARY KEY,
			transfer_id TEXT NOT NULL UNIQUE,
			entry_id TEXT NOT NULL REFERENCES cloak.entries(entry_id),
			sender TEXT NOT NULL,
			recipient TEXT NOT NULL,
			referral TEXT,
			gross_amount BIGINT NOT NULL,
			net_amount BIGINT NOT NULL,
			treasury_fee BIGINT NOT NULL,
			referral_fee BIGINT NOT NULL,
			replay_nonce BIGINT NOT NULL,
			completed BOOLEAN DEFAULT FALSE,
			delegation_state TEXT NOT NULL DEFAULT 'NONE',
			meta_data JSONB,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (sender, replay_nonce)
		)
	`)
	return err
}

func createComputationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cloak.computations (
			id SERIAL PRIMARY KEY,
			correlation_id TEXT NOT NULL UNIQUE,
			entry_id TEXT NOT NULL REFERENCES cloak.entries(entry_id),
			kind TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'ISSUED',
			threshold BIGINT NOT NULL DEFAULT 0,
			revealed_bool BOOLEAN,
			revealed_count BIGINT,
			issued_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			completed_at TIMESTAMP
		)
	`)
	return err
}

func createBalanceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cloak.balances (
			account_id TEXT PRIMARY KEY,
			balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func createReferralRewardTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cloak.referral_rewards (
			entry_id TEXT NOT NULL REFERENCES cloak.entries(entry_id),
			referral TEXT NOT NULL,
			accrued BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (entry_id, referral)
		)
	`)
	return err
}
