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
	"errors"

	"github.com/quantaledger/bridge/model"
)

// ApplyEvent applies one ledger event to the read model. The processed-event
// marker, the handler's writes and the checkpoint advance all commit in one
// transaction, so a crash between any of them leaves no partial state. An
// event already marked processed still advances the checkpoint (so replay
// after a checkpoint-write race converges) but its handler does not run.
func (d Datasource) ApplyEvent(ctx context.Context, projector, channel string, ev model.LedgerEvent, apply func(tx *sql.Tx) error) error {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO bridge.processed_events (tx_id, event_type, block_number, event_index)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tx_id, event_type, event_index) DO NOTHING
	`, ev.TxID, ev.Type, ev.Ordinate.Block, ev.Ordinate.Index)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if inserted == 1 {
		if err := apply(tx); err != nil {
			return err
		}
	}

	if err := advanceCheckpointInTx(ctx, tx, projector, channel, ev.Ordinate); err != nil {
		return err
	}
	return tx.Commit()
}

// advanceCheckpointInTx moves the cursor forward, never backward. Replayed
// events carry ordinates at or behind the stored position and leave it
// untouched.
func advanceCheckpointInTx(ctx context.Context, tx *sql.Tx, projector, channel string, pos model.Ordinate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bridge.projector_checkpoints (projector_name, channel_id, block_number, event_index, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (projector_name, channel_id) DO UPDATE
		SET block_number = EXCLUDED.block_number,
			event_index = EXCLUDED.event_index,
			updated_at = NOW()
		WHERE (bridge.projector_checkpoints.block_number, bridge.projector_checkpoints.event_index)
			< (EXCLUDED.block_number, EXCLUDED.event_index)
	`, projector, channel, pos.Block, pos.Index)
	return err
}

// IsEventProcessed consults only the durable tier of the idempotency guard.
// The projector fronts this with a cache lookup; a cache miss falls through
// to here.
func (d Datasource) IsEventProcessed(ctx context.Context, ev model.LedgerEvent) (bool, error) {
	var one int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT 1 FROM bridge.processed_events
		WHERE tx_id = $1 AND event_type = $2 AND event_index = $3
	`, ev.TxID, ev.Type, ev.Ordinate.Index).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d Datasource) InsertUserInTx(tx *sql.Tx, user *model.UserRecord) error {
	_, err := tx.Exec(`
		INSERT INTO bridge.users (user_id, tenant_id, country_code, ledger_tx_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, user.UserID, user.TenantID, user.CountryCode, user.LedgerTxID, user.CreatedAt)
	return err
}

func (d Datasource) UpsertBalanceInTx(tx *sql.Tx, balance *model.Balance) error {
	_, err := tx.Exec(`
		INSERT INTO bridge.balances (wallet_id, tenant_id, currency, amount, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (wallet_id) DO UPDATE
		SET amount = EXCLUDED.amount, updated_at = NOW()
	`, balance.WalletID, balance.TenantID, balance.Currency, balance.Amount.String())
	return err
}

// AdjustBalanceInTx applies a signed delta in SQL rather than read-modify-
// write, so concurrent projector transactions cannot lose updates.
func (d Datasource) AdjustBalanceInTx(tx *sql.Tx, walletID string, delta string) error {
	res, err := tx.Exec(`
		UPDATE bridge.balances
		SET amount = amount + $1::NUMERIC, updated_at = NOW()
		WHERE wallet_id = $2
	`, delta, walletID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New("no balance row for wallet " + walletID)
	}
	return nil
}

func (d Datasource) InsertTransactionRecordInTx(tx *sql.Tx, rec *model.TransactionRecord) error {
	_, err := tx.Exec(`
		INSERT INTO bridge.transaction_records
		(ledger_tx_id, tenant_id, wallet_id, counterpart, direction, amount, fee, currency, block_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (ledger_tx_id, wallet_id, direction) DO NOTHING
	`, rec.LedgerTxID, rec.TenantID, rec.WalletID, rec.Counterpart, rec.Direction,
		rec.Amount.String(), rec.Fee.String(), rec.Currency, rec.BlockNumber)
	return err
}

func (d Datasource) InitCountryStatInTx(tx *sql.Tx, code, name string) error {
	_, err := tx.Exec(`
		INSERT INTO bridge.country_stats (country_code, country_name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (country_code) DO UPDATE
		SET country_name = EXCLUDED.country_name, updated_at = NOW()
	`, code, name)
	return err
}

// BumpCountryStatInTx increments per-country aggregates. The row is created
// on first touch so events arriving ahead of COUNTRY_DATA_INITIALIZED are
// not lost.
func (d Datasource) BumpCountryStatInTx(tx *sql.Tx, code string, users, txs int64, volume string) error {
	_, err := tx.Exec(`
		INSERT INTO bridge.country_stats (country_code, user_count, tx_count, tx_volume, updated_at)
		VALUES ($1, $2, $3, $4::NUMERIC, NOW())
		ON CONFLICT (country_code) DO UPDATE
		SET user_count = bridge.country_stats.user_count + EXCLUDED.user_count,
			tx_count = bridge.country_stats.tx_count + EXCLUDED.tx_count,
			tx_volume = bridge.country_stats.tx_volume + EXCLUDED.tx_volume,
			updated_at = NOW()
	`, code, users, txs, volume)
	return err
}

func (d Datasource) GetBalance(ctx context.Context, walletID string) (*model.Balance, error) {
	var b model.Balance
	err := d.Conn.QueryRowContext(ctx, `
		SELECT wallet_id, tenant_id, currency, amount, updated_at
		FROM bridge.balances WHERE wallet_id = $1
	`, walletID).Scan(&b.WalletID, &b.TenantID, &b.Currency, &b.Amount, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (d Datasource) GetTransactionRecords(ctx context.Context, walletID string, limit, offset int) ([]model.TransactionRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, ledger_tx_id, tenant_id, wallet_id, counterpart, direction, amount, fee, currency, block_number, created_at
		FROM bridge.transaction_records
		WHERE wallet_id = $1
		ORDER BY block_number DESC, id DESC
		LIMIT $2 OFFSET $3
	`, walletID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []model.TransactionRecord
	for rows.Next() {
		var rec model.TransactionRecord
		var counterpart sql.NullString
		err := rows.Scan(&rec.ID, &rec.LedgerTxID, &rec.TenantID, &rec.WalletID, &counterpart,
			&rec.Direction, &rec.Amount, &rec.Fee, &rec.Currency, &rec.BlockNumber, &rec.CreatedAt)
		if err != nil {
			return nil, err
		}
		rec.Counterpart = counterpart.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (d Datasource) GetCountryStat(ctx context.Context, code string) (*model.CountryStat, error) {
	var s model.CountryStat
	var name sql.NullString
	err := d.Conn.QueryRowContext(ctx, `
		SELECT country_code, country_name, user_count, tx_count, tx_volume, updated_at
		FROM bridge.country_stats WHERE country_code = $1
	`, code).Scan(&s.CountryCode, &name, &s.UserCount, &s.TxCount, &s.TxVolume, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.CountryName = name.String
	return &s, nil
}
