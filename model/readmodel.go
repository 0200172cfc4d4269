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
	"time"

	"github.com/shopspring/decimal"
)

// Balance is a derived running-balance row. Mutated only by the projector,
// read by downstream query services.
type Balance struct {
	WalletID  string          `json:"wallet_id"`
	TenantID  string          `json:"tenant_id"`
	Currency  string          `json:"currency"`
	Amount    decimal.Decimal `json:"amount"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TransactionRecord is one append-only transaction-history row. A single
// money-movement event produces one or more of these plus the paired balance
// mutations, all inside the same transaction as the checkpoint advance.
type TransactionRecord struct {
	ID          int64           `json:"id"`
	LedgerTxID  string          `json:"ledger_tx_id"`
	TenantID    string          `json:"tenant_id"`
	WalletID    string          `json:"wallet_id"`
	Counterpart string          `json:"counterpart,omitempty"`
	Direction   string          `json:"direction"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Currency    string          `json:"currency"`
	BlockNumber uint64          `json:"block_number"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CountryStat aggregates per-country activity. Initialized by the
// COUNTRY_DATA_INITIALIZED event and updated as money moves.
type CountryStat struct {
	CountryCode string          `json:"country_code"`
	CountryName string          `json:"country_name,omitempty"`
	UserCount   int64           `json:"user_count"`
	TxCount     int64           `json:"tx_count"`
	TxVolume    decimal.Decimal `json:"tx_volume"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UserRecord is the projector-maintained user read model row.
type UserRecord struct {
	UserID      string    `json:"user_id"`
	TenantID    string    `json:"tenant_id"`
	CountryCode string    `json:"country_code"`
	LedgerTxID  string    `json:"ledger_tx_id"`
	CreatedAt   time.Time `json:"created_at"`
}
