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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/quantaledger/bridge/model"
)

func newTestDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Datasource{Conn: db}, mock
}

func outboxRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "command_id", "tenant_id", "service", "command_type", "idempotency_key", "payload",
		"status", "attempts", "max_attempts", "worker_token", "error_code", "error_message",
		"ledger_tx_id", "block_number", "created_at", "locked_at", "finalized_at",
	})
}

func TestInsertCommand(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("INSERT INTO bridge.outbox_commands").
		WithArgs(sqlmock.AnyArg(), "tenant_1", "wallet-service", string(model.CommandCreateUser),
			"idem-1", []byte(`{"user_id":"u1","country_code":"NG"}`), string(model.CommandStatusPending),
			5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	cmd, err := ds.InsertCommand(context.Background(), &model.OutboxCommand{
		TenantID:       "tenant_1",
		Service:        "wallet-service",
		CommandType:    model.CommandCreateUser,
		IdempotencyKey: "idem-1",
		Payload:        []byte(`{"user_id":"u1","country_code":"NG"}`),
	})
	assert.NoError(t, err)
	assert.Equal(t, int64(7), cmd.ID)
	assert.Contains(t, cmd.CommandID, "cmd_")
	assert.Equal(t, model.CommandStatusPending, cmd.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCommand_DuplicateIdempotencyKey(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("INSERT INTO bridge.outbox_commands").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := ds.InsertCommand(context.Background(), &model.OutboxCommand{
		TenantID:       gofakeit.UUID(),
		CommandType:    model.CommandTransferFunds,
		IdempotencyKey: gofakeit.UUID(),
		Payload:        []byte(`{}`),
	})
	assert.ErrorIs(t, err, ErrDuplicateCommand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPendingCommands(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	rows := outboxRows().
		AddRow(int64(1), "cmd_a", "tenant_1", "wallet-service", string(model.CommandCreateUser), "idem-a",
			[]byte(`{"user_id":"u1"}`), string(model.CommandStatusLocked), 0, 5, "worker_x",
			nil, nil, nil, nil, now, now, nil).
		AddRow(int64(2), "cmd_b", "tenant_2", "wallet-service", string(model.CommandTransferFunds), "idem-b",
			[]byte(`{"amount":"5"}`), string(model.CommandStatusLocked), 1, 5, "worker_x",
			"LEDGER_UNREACHABLE", "connection refused", nil, nil, now, now, nil)

	mock.ExpectQuery("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusLocked), "worker_x", sqlmock.AnyArg(), 10).
		WillReturnRows(rows)

	claimed, err := ds.ClaimPendingCommands(context.Background(), "worker_x", 10, 5*time.Minute)
	assert.NoError(t, err)
	assert.Len(t, claimed, 2)
	assert.Equal(t, "cmd_a", claimed[0].CommandID)
	assert.Equal(t, model.CommandStatusLocked, claimed[0].Status)
	assert.Equal(t, "worker_x", claimed[1].WorkerToken)
	assert.Equal(t, "LEDGER_UNREACHABLE", claimed[1].ErrorCode)
	assert.NotNil(t, claimed[0].LockedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimPendingCommands_Empty(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery("UPDATE bridge.outbox_commands").
		WillReturnRows(outboxRows())

	claimed, err := ds.ClaimPendingCommands(context.Background(), "worker_x", 10, 5*time.Minute)
	assert.NoError(t, err)
	assert.Empty(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCommandSubmitted_OwnershipHeld(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusSubmitted), "cmd_a", string(model.CommandStatusLocked), "worker_x").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkCommandSubmitted(context.Background(), "cmd_a", "worker_x")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCommandSubmitted_OwnershipLost(t *testing.T) {
	ds, mock := newTestDatasource(t)

	// Another worker reclaimed the row after a lock timeout; zero rows match
	// the worker-token predicate.
	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.MarkCommandSubmitted(context.Background(), "cmd_a", "worker_dead")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCommandCommitted(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusCommitted), "tx_123", uint64(42), "cmd_a",
			string(model.CommandStatusLocked), string(model.CommandStatusSubmitted), "worker_x").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.FinalizeCommandCommitted(context.Background(), "cmd_a", "worker_x", "tx_123", 42)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCommandFailed(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusFailed), string(model.CommandStatusPending),
			"ENDORSEMENT_INSUFFICIENT", "collected 1 of 2 required endorsements", "cmd_a",
			string(model.CommandStatusLocked), string(model.CommandStatusSubmitted), "worker_x").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkCommandFailed(context.Background(), "cmd_a", "worker_x", "ENDORSEMENT_INSUFFICIENT", "collected 1 of 2 required endorsements")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCommandFailed_RowAlreadySettled(t *testing.T) {
	ds, mock := newTestDatasource(t)

	// The reconciliation sweep finalized the row COMMITTED while this
	// worker's submission was still in flight: the guarded update matches
	// nothing and the terminal state stands.
	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.MarkCommandFailed(context.Background(), "cmd_a", "worker_slow", "LEDGER_UNREACHABLE", "context deadline exceeded")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCommandTerminal(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusFailed), "CONTRACT_VIOLATION", "unknown command type",
			"cmd_a", string(model.CommandStatusLocked), string(model.CommandStatusSubmitted), "worker_x").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := ds.MarkCommandTerminal(context.Background(), "cmd_a", "worker_x", "CONTRACT_VIOLATION", "unknown command type")
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCommandTerminal_RowAlreadySettled(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := ds.MarkCommandTerminal(context.Background(), "cmd_a", "worker_slow", "CONTRACT_VIOLATION", "unknown command type")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStuckSubmittedCommands(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	stale := now.Add(-10 * time.Minute)
	rows := outboxRows().
		AddRow(int64(3), "cmd_c", "tenant_1", nil, string(model.CommandTransferFunds), "idem-c",
			[]byte(`{}`), string(model.CommandStatusSubmitted), 2, 5, "worker_gone",
			nil, nil, nil, nil, now.Add(-time.Hour), stale, nil)

	mock.ExpectQuery("SELECT (.+) FROM bridge.outbox_commands").
		WithArgs(sqlmock.AnyArg(), 100).
		WillReturnRows(rows)

	stuck, err := ds.GetStuckSubmittedCommands(context.Background(), 5*time.Minute, 100)
	assert.NoError(t, err)
	assert.Len(t, stuck, 1)
	assert.Equal(t, "cmd_c", stuck[0].CommandID)
	assert.Equal(t, model.CommandStatusSubmitted, stuck[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveStuckCommandCommitted(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusCommitted), "tx_99", uint64(7), "cmd_c",
			string(model.CommandStatusSubmitted)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.ResolveStuckCommandCommitted(context.Background(), "cmd_c", "tx_99", 7)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveStuckCommandPending(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec("UPDATE bridge.outbox_commands").
		WithArgs(string(model.CommandStatusFailed), string(model.CommandStatusPending),
			"SUBMISSION_LOST", "cmd_c", string(model.CommandStatusSubmitted)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := ds.ResolveStuckCommandPending(context.Background(), "cmd_c")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
