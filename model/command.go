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

package model

import (
	"encoding/json"
	"time"
)

// CommandType is the closed enumeration of ledger mutations the bridge knows
// how to submit. Producers, the dispatcher routing table and the ledger
// handler signatures must stay in lockstep; an unknown type is a deployment
// defect, not a per-row anomaly.
type CommandType string

const (
	CommandCreateUser         CommandType = "CREATE_USER"
	CommandTransferFunds      CommandType = "TRANSFER_FUNDS"
	CommandCreateWallet       CommandType = "CREATE_WALLET"
	CommandBootstrapSystem    CommandType = "BOOTSTRAP_SYSTEM"
	CommandUpdateGlobalParams CommandType = "UPDATE_GLOBAL_PARAMS"
	CommandPauseSystem        CommandType = "PAUSE_SYSTEM"
	CommandResumeSystem       CommandType = "RESUME_SYSTEM"
	CommandInitCountryData    CommandType = "INIT_COUNTRY_DATA"
)

// AllCommandTypes lists every member of the enumeration. Routing and
// validation tables are checked exhaustively against this slice in tests.
func AllCommandTypes() []CommandType {
	return []CommandType{
		CommandCreateUser,
		CommandTransferFunds,
		CommandCreateWallet,
		CommandBootstrapSystem,
		CommandUpdateGlobalParams,
		CommandPauseSystem,
		CommandResumeSystem,
		CommandInitCountryData,
	}
}

// CommandStatus is the outbox row state machine:
// PENDING → LOCKED → SUBMITTED → COMMITTED, or PENDING/LOCKED → FAILED once
// the retry budget is exhausted. LOCKED reverts to PENDING when the owning
// worker's lock times out.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "PENDING"
	CommandStatusLocked    CommandStatus = "LOCKED"
	CommandStatusSubmitted CommandStatus = "SUBMITTED"
	CommandStatusCommitted CommandStatus = "COMMITTED"
	CommandStatusFailed    CommandStatus = "FAILED"
)

// Terminal reports whether a row in this status is never re-claimed.
func (s CommandStatus) Terminal() bool {
	return s == CommandStatusCommitted || s == CommandStatusFailed
}

// OutboxCommand is one intended ledger mutation written by an upstream
// service. Rows are append-only from the producer's perspective; only the
// dispatcher mutates them, and nothing deletes them.
type OutboxCommand struct {
	ID             int64           `json:"id"`
	CommandID      string          `json:"command_id"`
	TenantID       string          `json:"tenant_id"`
	Service        string          `json:"service"`
	CommandType    CommandType     `json:"command_type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	Status         CommandStatus   `json:"status"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	WorkerToken    string          `json:"worker_token,omitempty"`
	ErrorCode      string          `json:"error_code,omitempty"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	LedgerTxID     string          `json:"ledger_tx_id,omitempty"`
	BlockNumber    uint64          `json:"block_number,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	LockedAt       *time.Time      `json:"locked_at,omitempty"`
	FinalizedAt    *time.Time      `json:"finalized_at,omitempty"`
}
