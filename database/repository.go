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
	"context"
	"database/sql"
	"time"

	"github.com/quantaledger/bridge/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	outbox     // Command store claim/finalize operations
	checkpoint // Projector checkpoint operations
	readmodel  // Read-model projection operations
}

// outbox defines methods for the command store. Claim and finalize carry the
// row-level locking semantics that let dispatcher replicas share one table.
type outbox interface {
	InsertCommand(ctx context.Context, cmd *model.OutboxCommand) (*model.OutboxCommand, error)
	ClaimPendingCommands(ctx context.Context, workerToken string, batchSize int, lockTimeout time.Duration) ([]model.OutboxCommand, error)
	MarkCommandSubmitted(ctx context.Context, commandID, workerToken string) (bool, error)
	FinalizeCommandCommitted(ctx context.Context, commandID, workerToken, ledgerTxID string, blockNumber uint64) (bool, error)
	MarkCommandFailed(ctx context.Context, commandID, workerToken, errorCode, errorMessage string) (bool, error)
	MarkCommandTerminal(ctx context.Context, commandID, workerToken, errorCode, errorMessage string) (bool, error)
	GetCommand(ctx context.Context, commandID string) (*model.OutboxCommand, error)
	GetDeadLetteredCommands(ctx context.Context, limit, offset int) ([]model.OutboxCommand, error)
	GetStuckSubmittedCommands(ctx context.Context, olderThan time.Duration, limit int) ([]model.OutboxCommand, error)
	ResolveStuckCommandCommitted(ctx context.Context, commandID, ledgerTxID string, blockNumber uint64) error
	ResolveStuckCommandPending(ctx context.Context, commandID string) error
}

// checkpoint defines methods for the projector's durable cursor.
type checkpoint interface {
	GetCheckpoint(ctx context.Context, projector, channel string) (*model.ProjectorCheckpoint, error)
	CheckpointFreshness(ctx context.Context, projector, channel string) (time.Duration, error)
}

// readmodel defines the projector's apply surface. ApplyEvent runs the given
// function and the checkpoint advance in a single transaction; the *InTx
// helpers are only valid inside that function.
type readmodel interface {
	ApplyEvent(ctx context.Context, projector, channel string, ev model.LedgerEvent, apply func(tx *sql.Tx) error) error
	IsEventProcessed(ctx context.Context, ev model.LedgerEvent) (bool, error)
	InsertUserInTx(tx *sql.Tx, user *model.UserRecord) error
	UpsertBalanceInTx(tx *sql.Tx, balance *model.Balance) error
	AdjustBalanceInTx(tx *sql.Tx, walletID string, delta string) error
	InsertTransactionRecordInTx(tx *sql.Tx, rec *model.TransactionRecord) error
	InitCountryStatInTx(tx *sql.Tx, code, name string) error
	BumpCountryStatInTx(tx *sql.Tx, code string, users, txs int64, volume string) error
	GetBalance(ctx context.Context, walletID string) (*model.Balance, error)
	GetTransactionRecords(ctx context.Context, walletID string, limit, offset int) ([]model.TransactionRecord, error)
	GetCountryStat(ctx context.Context, code string) (*model.CountryStat, error)
}
