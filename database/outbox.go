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
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/quantaledger/bridge/model"
)

// ErrDuplicateCommand is returned when an insert collides with an existing
// (tenant, idempotency key) pair. The intended effect is already queued.
var ErrDuplicateCommand = errors.New("command with this idempotency key already exists")

const outboxColumns = `id, command_id, tenant_id, service, command_type, idempotency_key, payload,
		status, attempts, max_attempts, worker_token, error_code, error_message,
		ledger_tx_id, block_number, created_at, locked_at, finalized_at`

// InsertCommand records one intended ledger mutation. This is the upstream
// write-path contract; everything else in this file belongs to the
// dispatcher.
func (d Datasource) InsertCommand(ctx context.Context, cmd *model.OutboxCommand) (*model.OutboxCommand, error) {
	if cmd.CommandID == "" {
		cmd.CommandID = GenerateUUIDWithSuffix("cmd")
	}
	if cmd.Status == "" {
		cmd.Status = model.CommandStatusPending
	}
	if cmd.MaxAttempts <= 0 {
		// Matches the dispatcher config default; callers normally pass the
		// configured budget.
		cmd.MaxAttempts = 5
	}
	cmd.CreatedAt = time.Now()

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO bridge.outbox_commands
		(command_id, tenant_id, service, command_type, idempotency_key, payload, status, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		cmd.CommandID,
		cmd.TenantID,
		cmd.Service,
		cmd.CommandType,
		cmd.IdempotencyKey,
		[]byte(cmd.Payload),
		cmd.Status,
		cmd.MaxAttempts,
		cmd.CreatedAt,
	).Scan(&cmd.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateCommand
		}
		return nil, err
	}
	return cmd, nil
}

// ClaimPendingCommands atomically claims up to batchSize rows for a worker.
// Eligible rows are PENDING, or LOCKED longer than lockTimeout (the owning
// worker is presumed dead). FOR UPDATE SKIP LOCKED lets concurrent claimers
// partition the table without ever returning overlapping sets.
func (d Datasource) ClaimPendingCommands(ctx context.Context, workerToken string, batchSize int, lockTimeout time.Duration) ([]model.OutboxCommand, error) {
	staleBefore := time.Now().Add(-lockTimeout)

	query := fmt.Sprintf(`
		UPDATE bridge.outbox_commands
		SET status = $1, worker_token = $2, locked_at = NOW()
		WHERE id IN (
			SELECT id FROM bridge.outbox_commands
			WHERE (status = 'PENDING' OR (status = 'LOCKED' AND locked_at < $3))
			  AND attempts < max_attempts
			ORDER BY created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, outboxColumns)

	rows, err := d.Conn.QueryContext(ctx, query, model.CommandStatusLocked, workerToken, staleBefore, batchSize)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var commands []model.OutboxCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

// MarkCommandSubmitted transitions LOCKED → SUBMITTED, but only while this
// worker still owns the row. A false return means another worker reclaimed
// it and this worker must stand down.
func (d Datasource) MarkCommandSubmitted(ctx context.Context, commandID, workerToken string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bridge.outbox_commands
		SET status = $1
		WHERE command_id = $2 AND status = $3 AND worker_token = $4
	`, model.CommandStatusSubmitted, commandID, model.CommandStatusLocked, workerToken)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// FinalizeCommandCommitted records the commit outcome with the same
// optimistic ownership check. Zero rows affected means a concurrent worker
// took over after a perceived timeout; the caller discards its own result
// rather than double-reporting.
func (d Datasource) FinalizeCommandCommitted(ctx context.Context, commandID, workerToken, ledgerTxID string, blockNumber uint64) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bridge.outbox_commands
		SET status = $1, ledger_tx_id = $2, block_number = $3, finalized_at = NOW(),
			error_code = NULL, error_message = NULL
		WHERE command_id = $4 AND status IN ($5, $6) AND worker_token = $7
	`, model.CommandStatusCommitted, ledgerTxID, blockNumber, commandID,
		model.CommandStatusLocked, model.CommandStatusSubmitted, workerToken)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// MarkCommandFailed increments the attempt counter and stores the
// stringified error. Below max_attempts the row returns to PENDING for
// another try; at the limit it dead-letters as FAILED. The same ownership
// check as FinalizeCommandCommitted applies: a worker whose submission
// outlived its lock must not regress a row a successor or the
// reconciliation sweep already settled.
func (d Datasource) MarkCommandFailed(ctx context.Context, commandID, workerToken, errorCode, errorMessage string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bridge.outbox_commands
		SET status = CASE WHEN attempts + 1 >= max_attempts THEN $1 ELSE $2 END,
			attempts = attempts + 1,
			error_code = $3,
			error_message = $4,
			worker_token = NULL,
			locked_at = NULL
		WHERE command_id = $5 AND status IN ($6, $7) AND worker_token = $8
	`, model.CommandStatusFailed, model.CommandStatusPending, errorCode, errorMessage,
		commandID, model.CommandStatusLocked, model.CommandStatusSubmitted, workerToken)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// MarkCommandTerminal dead-letters a row immediately, regardless of its
// remaining retry budget. Contract violations land here: retrying a
// malformed payload burns infrastructure for nothing. Ownership-checked
// like every other post-claim transition.
func (d Datasource) MarkCommandTerminal(ctx context.Context, commandID, workerToken, errorCode, errorMessage string) (bool, error) {
	res, err := d.Conn.ExecContext(ctx, `
		UPDATE bridge.outbox_commands
		SET status = $1, attempts = attempts + 1, error_code = $2, error_message = $3,
			worker_token = NULL, locked_at = NULL, finalized_at = NOW()
		WHERE command_id = $4 AND status IN ($5, $6) AND worker_token = $7
	`, model.CommandStatusFailed, errorCode, errorMessage,
		commandID, model.CommandStatusLocked, model.CommandStatusSubmitted, workerToken)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

func (d Datasource) GetCommand(ctx context.Context, commandID string) (*model.OutboxCommand, error) {
	row := d.Conn.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM bridge.outbox_commands WHERE command_id = $1
	`, outboxColumns), commandID)
	return scanCommand(row)
}

// GetDeadLetteredCommands lists FAILED rows with their full error history
// for operator remediation.
func (d Datasource) GetDeadLetteredCommands(ctx context.Context, limit, offset int) ([]model.OutboxCommand, error) {
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM bridge.outbox_commands
		WHERE status = 'FAILED'
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, outboxColumns), limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var commands []model.OutboxCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

// GetStuckSubmittedCommands finds rows whose submission outcome is ambiguous:
// SUBMITTED longer than olderThan with no recorded commit. The reconciliation
// sweep resolves these against the ledger by idempotency key.
func (d Datasource) GetStuckSubmittedCommands(ctx context.Context, olderThan time.Duration, limit int) ([]model.OutboxCommand, error) {
	cutoff := time.Now().Add(-olderThan)
	rows, err := d.Conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM bridge.outbox_commands
		WHERE status = 'SUBMITTED' AND locked_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`, outboxColumns), cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var commands []model.OutboxCommand
	for rows.Next() {
		cmd, err := scanCommand(rows)
		if err != nil {
			return nil, err
		}
		commands = append(commands, *cmd)
	}
	return commands, rows.Err()
}

// ResolveStuckCommandCommitted finalizes an ambiguous row the sweep found
// already committed on the ledger. No worker-token check: the owning worker
// is gone, that is why the sweep is here.
func (d Datasource) ResolveStuckCommandCommitted(ctx context.Context, commandID, ledgerTxID string, blockNumber uint64) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE bridge.outbox_commands
		SET status = $1, ledger_tx_id = $2, block_number = $3, finalized_at = NOW(),
			error_code = NULL, error_message = NULL
		WHERE command_id = $4 AND status = $5
	`, model.CommandStatusCommitted, ledgerTxID, blockNumber, commandID, model.CommandStatusSubmitted)
	return err
}

// ResolveStuckCommandPending returns an ambiguous row the ledger has no
// commit for back to the claimable pool.
func (d Datasource) ResolveStuckCommandPending(ctx context.Context, commandID string) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE bridge.outbox_commands
		SET status = CASE WHEN attempts + 1 >= max_attempts THEN $1 ELSE $2 END,
			attempts = attempts + 1,
			error_code = $3,
			error_message = 'submission outcome lost; no commit found on ledger',
			worker_token = NULL,
			locked_at = NULL
		WHERE command_id = $4 AND status = $5
	`, model.CommandStatusFailed, model.CommandStatusPending, "SUBMISSION_LOST", commandID, model.CommandStatusSubmitted)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCommand(row rowScanner) (*model.OutboxCommand, error) {
	var cmd model.OutboxCommand
	var service, workerToken, errorCode, errorMessage, ledgerTxID sql.NullString
	var blockNumber sql.NullInt64
	var lockedAt, finalizedAt sql.NullTime
	var payload []byte

	err := row.Scan(
		&cmd.ID,
		&cmd.CommandID,
		&cmd.TenantID,
		&service,
		&cmd.CommandType,
		&cmd.IdempotencyKey,
		&payload,
		&cmd.Status,
		&cmd.Attempts,
		&cmd.MaxAttempts,
		&workerToken,
		&errorCode,
		&errorMessage,
		&ledgerTxID,
		&blockNumber,
		&cmd.CreatedAt,
		&lockedAt,
		&finalizedAt,
	)
	if err != nil {
		return nil, err
	}

	cmd.Payload = payload
	cmd.Service = service.String
	cmd.WorkerToken = workerToken.String
	cmd.ErrorCode = errorCode.String
	cmd.ErrorMessage = errorMessage.String
	cmd.LedgerTxID = ledgerTxID.String
	if blockNumber.Valid {
		cmd.BlockNumber = uint64(blockNumber.Int64)
	}
	if lockedAt.Valid {
		cmd.LockedAt = &lockedAt.Time
	}
	if finalizedAt.Valid {
		cmd.FinalizedAt = &finalizedAt.Time
	}
	return &cmd, nil
}
