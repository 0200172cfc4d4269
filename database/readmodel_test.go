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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quantaledger/bridge/model"
)

func testEvent() model.LedgerEvent {
	return model.LedgerEvent{
		Type:     model.EventUserCreated,
		TxID:     "tx_abc",
		Ordinate: model.Ordinate{Block: 5, Index: 0},
		Payload:  []byte(`{"user_id":"u1"}`),
	}
}

func TestApplyEvent_FirstDelivery(t *testing.T) {
	ds, mock := newTestDatasource(t)
	ev := testEvent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WithArgs(ev.TxID, ev.Type, ev.Ordinate.Block, ev.Ordinate.Index).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.projector_checkpoints").
		WithArgs("proj", "main", ev.Ordinate.Block, ev.Ordinate.Index).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ran := false
	err := ds.ApplyEvent(context.Background(), "proj", "main", ev, func(tx *sql.Tx) error {
		ran = true
		return ds.InsertUserInTx(tx, &model.UserRecord{
			UserID: "u1", TenantID: "tenant_1", LedgerTxID: ev.TxID, CreatedAt: time.Now(),
		})
	})
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEvent_Redelivery_SkipsHandler(t *testing.T) {
	ds, mock := newTestDatasource(t)
	ev := testEvent()

	// Marker already present: the handler must not run, but the checkpoint
	// still advances inside the same transaction.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO bridge.projector_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := ds.ApplyEvent(context.Background(), "proj", "main", ev, func(tx *sql.Tx) error {
		t.Fatal("handler must not run for an already-processed event")
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEvent_HandlerFailureRollsBack(t *testing.T) {
	ds, mock := newTestDatasource(t)
	ev := testEvent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	handlerErr := errors.New("no balance row for wallet w1")
	err := ds.ApplyEvent(context.Background(), "proj", "main", ev, func(tx *sql.Tx) error {
		return handlerErr
	})
	assert.ErrorIs(t, err, handlerErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsEventProcessed(t *testing.T) {
	ds, mock := newTestDatasource(t)
	ev := testEvent()

	mock.ExpectQuery("SELECT 1 FROM bridge.processed_events").
		WithArgs(ev.TxID, ev.Type, ev.Ordinate.Index).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))

	processed, err := ds.IsEventProcessed(context.Background(), ev)
	assert.NoError(t, err)
	assert.True(t, processed)

	mock.ExpectQuery("SELECT 1 FROM bridge.processed_events").
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	processed, err = ds.IsEventProcessed(context.Background(), ev)
	assert.NoError(t, err)
	assert.False(t, processed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCheckpoint_Initial(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT block_number, event_index, updated_at").
		WithArgs("proj", "main").
		WillReturnError(sql.ErrNoRows)

	cp, err := ds.GetCheckpoint(context.Background(), "proj", "main")
	assert.NoError(t, err)
	assert.Equal(t, uint64(0), cp.Position.Block)
	assert.Equal(t, int64(-1), cp.Position.Index)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCheckpoint_Existing(t *testing.T) {
	ds, mock := newTestDatasource(t)

	updated := time.Now().Add(-3 * time.Second)
	mock.ExpectQuery("SELECT block_number, event_index, updated_at").
		WithArgs("proj", "main").
		WillReturnRows(sqlmock.NewRows([]string{"block_number", "event_index", "updated_at"}).
			AddRow(uint64(12), int64(4), updated))

	cp, err := ds.GetCheckpoint(context.Background(), "proj", "main")
	assert.NoError(t, err)
	assert.Equal(t, model.Ordinate{Block: 12, Index: 4}, cp.Position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckpointFreshness_NoRow(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT updated_at FROM bridge.projector_checkpoints").
		WillReturnError(sql.ErrNoRows)

	age, err := ds.CheckpointFreshness(context.Background(), "proj", "main")
	assert.NoError(t, err)
	assert.Equal(t, time.Duration(0), age)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBalance(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("SELECT wallet_id, tenant_id, currency, amount, updated_at").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"wallet_id", "tenant_id", "currency", "amount", "updated_at"}).
			AddRow("w1", "tenant_1", "USD", "120.50", time.Now()))

	balance, err := ds.GetBalance(context.Background(), "w1")
	assert.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.RequireFromString("120.50")))
	assert.Equal(t, "USD", balance.Currency)
	assert.NoError(t, mock.ExpectationsWereMet())
}
