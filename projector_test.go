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
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/model"
)

// mapCache is an in-memory stand-in for the Redis cache tier.
type mapCache struct {
	mu    sync.Mutex
	items map[string]interface{}
}

func newMapCache() *mapCache {
	return &mapCache{items: make(map[string]interface{})}
}

func (c *mapCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *mapCache) Get(_ context.Context, key string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	if !ok {
		return nil
	}
	if b, ok := data.(*bool); ok {
		*b, _ = v.(bool)
	}
	return nil
}

func (c *mapCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func newTestProjector(t *testing.T) (*Projector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &Projector{
		ds:      database.Datasource{Conn: db},
		cache:   newMapCache(),
		name:    "read-model-projector",
		channel: "main",
	}, mock
}

func userCreatedEvent() model.LedgerEvent {
	return model.LedgerEvent{
		Type:     model.EventUserCreated,
		TxID:     "tx_abc",
		Ordinate: model.Ordinate{Block: 5, Index: 0},
		Payload:  json.RawMessage(`{"user_id":"u1","tenant_id":"tenant_1","country_code":"NG"}`),
	}
}

func TestProjector_HandleEvent_AppliesOnce(t *testing.T) {
	p, mock := newTestProjector(t)
	ev := userCreatedEvent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.users").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.country_stats").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.projector_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.handleEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())

	// Second delivery is answered by the cache tier: no database traffic.
	require.NoError(t, p.handleEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjector_HandleEvent_RedeliveryAfterRestart(t *testing.T) {
	p, mock := newTestProjector(t)
	ev := userCreatedEvent()

	// Cold cache, but the durable marker already exists: the handler is
	// skipped while the checkpoint still advances.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO bridge.projector_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.handleEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjector_HandleEvent_UnknownTypeAdvancesCheckpoint(t *testing.T) {
	p, mock := newTestProjector(t)
	ev := model.LedgerEvent{
		Type:     "QUANTUM_SETTLEMENT",
		TxID:     "tx_future",
		Ordinate: model.Ordinate{Block: 9, Index: 2},
		Payload:  json.RawMessage(`{"anything":"goes"}`),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.projector_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.handleEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjector_HandleEvent_UndecodablePayloadIsSkipped(t *testing.T) {
	p, mock := newTestProjector(t)
	ev := model.LedgerEvent{
		Type:     model.EventUserCreated,
		TxID:     "tx_mangled",
		Ordinate: model.Ordinate{Block: 3, Index: 1},
		Payload:  json.RawMessage(`{"user_id":`),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.projector_checkpoints").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, p.handleEvent(context.Background(), ev))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProjector_HandleEvent_HandlerFailureSurfaces(t *testing.T) {
	p, mock := newTestProjector(t)
	ev := userCreatedEvent()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO bridge.processed_events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO bridge.users").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := p.handleEvent(context.Background(), ev)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
