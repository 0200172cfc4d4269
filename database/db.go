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

package database

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "github.com/lib/pq"

	"github.com/google/uuid"
	"github.com/quantaledger/bridge/config"
)

var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
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
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database connection error: %v", err)
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the bridge schema and every table the bridge owns.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS bridge`); err != nil {
		return err
	}
	for _, create := range []func(*sql.DB) error{
		createOutboxCommandTable,
		createCheckpointTable,
		createProcessedEventTable,
		createUserTable,
		createBalanceTable,
		createTransactionRecordTable,
		createCountryStatTable,
	} {
		if err := create(db); err != nil {
			return err
		}
	}
	return nil
}

func GenerateUUIDWithSuffix(module string) string {
	return fmt.Sprintf("%s_%s", module, uuid.New().String())
}

// createOutboxCommandTable creates the command store. Rows are append-only:
// the dispatcher mutates status fields but nothing ever deletes a row.
func createOutboxCommandTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.outbox_commands (
			id BIGSERIAL PRIMARY KEY,
			command_id TEXT NOT NULL UNIQUE,
			tenant_id TEXT NOT NULL,
			service TEXT,
			command_type TEXT NOT NULL,
			idempotency_key TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			attempts INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			worker_token TEXT,
			error_code TEXT,
			error_message TEXT,
			ledger_tx_id TEXT,
			block_number BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			locked_at TIMESTAMP,
			finalized_at TIMESTAMP,
			UNIQUE (tenant_id, idempotency_key)
		)
	`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_outbox_commands_claim
		ON bridge.outbox_commands (status, created_at)
		WHERE status IN ('PENDING', 'LOCKED', 'SUBMITTED')
	`)
	return err
}

func createCheckpointTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.projector_checkpoints (
			projector_name TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			block_number BIGINT NOT NULL DEFAULT 0,
			event_index BIGINT NOT NULL DEFAULT -1,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (projector_name, channel_id)
		)
	`)
	return err
}

// createProcessedEventTable creates the durable half of the idempotency
// guard: one row per applied ledger event, inserted inside the same
// transaction as the read-model writes it covers.
func createProcessedEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.processed_events (
			tx_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			event_index BIGINT NOT NULL,
			processed_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tx_id, event_type, event_index)
		)
	`)
	return err
}

func createUserTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.users (
			user_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			country_code TEXT,
			ledger_tx_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createBalanceTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.balances (
			wallet_id TEXT PRIMARY KEY,
			tenant_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			amount NUMERIC(38, 18) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

func createTransactionRecordTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.transaction_records (
			id BIGSERIAL PRIMARY KEY,
			ledger_tx_id TEXT NOT NULL,
			tenant_id TEXT NOT NULL,
			wallet_id TEXT NOT NULL,
			counterpart TEXT,
			direction TEXT NOT NULL CHECK (direction IN ('DEBIT', 'CREDIT')),
			amount NUMERIC(38, 18) NOT NULL,
			fee NUMERIC(38, 18) NOT NULL DEFAULT 0,
			currency TEXT NOT NULL,
			block_number BIGINT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (ledger_tx_id, wallet_id, direction)
		)
	`)
	return err
}

func createCountryStatTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS bridge.country_stats (
			country_code TEXT PRIMARY KEY,
			country_name TEXT,
			user_count BIGINT NOT NULL DEFAULT 0,
			tx_count BIGINT NOT NULL DEFAULT 0,
			tx_volume NUMERIC(38, 18) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}
