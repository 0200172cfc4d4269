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

package bridge

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/quantaledger/bridge/model"
)

// eventHandler applies one ledger event inside the projector's transaction.
// Handlers read payload fields leniently with defaults: the ledger handlers
// evolve ahead of projector deployments, and an unexpected payload shape must
// never wedge the stream.
type eventHandler func(tx *sql.Tx, ev model.LedgerEvent, env model.PayloadEnvelope) error

func (p *Projector) handlerFor(eventType string) (eventHandler, bool) {
	switch eventType {
	case model.EventUserCreated:
		return p.applyUserCreated, true
	case model.EventWalletCreated:
		return p.applyWalletCreated, true
	case model.EventFundsTransferred:
		return p.applyFundsTransferred, true
	case model.EventCountryDataInit:
		return p.applyCountryDataInit, true
	case model.EventSystemBootstrapped:
		return p.applySystemBootstrapped, true
	case model.EventGlobalParamsUpdated, model.EventSystemPaused, model.EventSystemResumed:
		// Governance facts with no read-model representation. Acknowledged so
		// the checkpoint advances past them.
		return p.applyNoop, true
	default:
		return nil, false
	}
}

func (p *Projector) applyNoop(_ *sql.Tx, _ model.LedgerEvent, _ model.PayloadEnvelope) error {
	return nil
}

func (p *Projector) applyUserCreated(tx *sql.Tx, ev model.LedgerEvent, env model.PayloadEnvelope) error {
	userID := env.String("user_id", "")
	if userID == "" {
		return fmt.Errorf("user creation event %s carries no user_id", ev.TxID)
	}
	country := env.String("country_code", "")

	err := p.ds.InsertUserInTx(tx, &model.UserRecord{
		UserID:      userID,
		TenantID:    env.String("tenant_id", ""),
		CountryCode: country,
		LedgerTxID:  ev.TxID,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	if country != "" {
		return p.ds.BumpCountryStatInTx(tx, country, 1, 0, "0")
	}
	return nil
}

func (p *Projector) applyWalletCreated(tx *sql.Tx, ev model.LedgerEvent, env model.PayloadEnvelope) error {
	walletID := env.String("wallet_id", "")
	if walletID == "" {
		return fmt.Errorf("wallet creation event %s carries no wallet_id", ev.TxID)
	}
	return p.ds.UpsertBalanceInTx(tx, &model.Balance{
		WalletID: walletID,
		TenantID: env.String("tenant_id", ""),
		Currency: env.String("currency", "USD"),
		Amount:   decimal.Zero,
	})
}

// applyFundsTransferred writes the paired balance mutations and both history
// rows in the surrounding transaction, so a crash mid-event can never leave a
// debit without its credit.
func (p *Projector) applyFundsTransferred(tx *sql.Tx, ev model.LedgerEvent, env model.PayloadEnvelope) error {
	from := env.String("from_wallet", "")
	to := env.String("to_wallet", "")
	if from == "" || to == "" {
		return fmt.Errorf("transfer event %s missing wallet references", ev.TxID)
	}

	amount, err := decimal.NewFromString(env.String("amount", "0"))
	if err != nil {
		return fmt.Errorf("transfer event %s: bad amount: %w", ev.TxID, err)
	}
	fee, err := decimal.NewFromString(env.String("fee", "0"))
	if err != nil {
		return fmt.Errorf("transfer event %s: bad fee: %w", ev.TxID, err)
	}
	currency := env.String("currency", "USD")
	tenantID := env.String("tenant_id", "")

	if err := p.ds.AdjustBalanceInTx(tx, from, amount.Add(fee).Neg().String()); err != nil {
		return err
	}
	if err := p.ds.AdjustBalanceInTx(tx, to, amount.String()); err != nil {
		return err
	}
	if fee.IsPositive() {
		if err := p.ds.AdjustBalanceInTx(tx, feesPoolWallet, fee.String()); err != nil {
			return err
		}
	}

	debit := model.TransactionRecord{
		LedgerTxID:  ev.TxID,
		TenantID:    tenantID,
		WalletID:    from,
		Counterpart: to,
		Direction:   "DEBIT",
		Amount:      amount,
		Fee:         fee,
		Currency:    currency,
		BlockNumber: ev.Ordinate.Block,
	}
	if err := p.ds.InsertTransactionRecordInTx(tx, &debit); err != nil {
		return err
	}
	credit := model.TransactionRecord{
		LedgerTxID:  ev.TxID,
		TenantID:    tenantID,
		WalletID:    to,
		Counterpart: from,
		Direction:   "CREDIT",
		Amount:      amount,
		Currency:    currency,
		BlockNumber: ev.Ordinate.Block,
	}
	if err := p.ds.InsertTransactionRecordInTx(tx, &credit); err != nil {
		return err
	}

	if country := env.String("country_code", ""); country != "" {
		return p.ds.BumpCountryStatInTx(tx, country, 0, 1, amount.String())
	}
	return nil
}

func (p *Projector) applyCountryDataInit(tx *sql.Tx, ev model.LedgerEvent, env model.PayloadEnvelope) error {
	code := env.String("country_code", "")
	if code == "" {
		return fmt.Errorf("country init event %s carries no country_code", ev.TxID)
	}
	return p.ds.InitCountryStatInTx(tx, code, env.String("country_name", ""))
}

// applySystemBootstrapped seeds the fees pool balance so later fee credits
// have a row to adjust.
func (p *Projector) applySystemBootstrapped(tx *sql.Tx, ev model.LedgerEvent, env model.PayloadEnvelope) error {
	logrus.Infof("ledger bootstrapped for network %s at %s", env.String("network", "unknown"), ev.Ordinate)
	return p.ds.UpsertBalanceInTx(tx, &model.Balance{
		WalletID: feesPoolWallet,
		TenantID: "system",
		Currency: "USD",
		Amount:   decimal.Zero,
	})
}

const feesPoolWallet = "fees_pool"
