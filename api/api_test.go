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

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/model"
)

func newTestRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://test"},
		Redis:      config.RedisConfig{Dns: "redis://localhost:6379"},
	})
	return NewAPI(database.Datasource{Conn: db}).Router(), mock
}

func TestEnqueueCommand(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("INSERT INTO bridge.outbox_commands").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	body, _ := json.Marshal(map[string]interface{}{
		"tenant_id":       "tenant_1",
		"service":         "wallet-service",
		"command_type":    "CREATE_USER",
		"idempotency_key": "idem-1",
		"payload":         map[string]string{"user_id": "u1", "country_code": "NG"},
	})
	req := httptest.NewRequest(http.MethodPost, "/commands", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)

	var cmd model.OutboxCommand
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cmd))
	assert.Contains(t, cmd.CommandID, "cmd_")
	assert.Equal(t, model.CommandStatusPending, cmd.Status)
	assert.Equal(t, 5, cmd.MaxAttempts, "retry budget comes from dispatcher config")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnqueueCommand_ConfiguredRetryBudget(t *testing.T) {
	router, mock := newTestRouter(t)
	config.MockConfig(&config.Configuration{
		DataSource: config.DataSourceConfig{Dns: "postgres://test"},
		Redis:      config.RedisConfig{Dns: "redis://localhost:6379"},
		Dispatcher: config.DispatcherConfig{MaxAttempts: 3},
	})

	mock.ExpectQuery("INSERT INTO bridge.outbox_commands").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))

	body := `{"tenant_id":"t1","command_type":"CREATE_USER","idempotency_key":"idem-2","payload":{"user_id":"u1","country_code":"NG"}}`
	req := httptest.NewRequest(http.MethodPost, "/commands", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusCreated, resp.Code)

	var cmd model.OutboxCommand
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &cmd))
	assert.Equal(t, 3, cmd.MaxAttempts)
}

func TestEnqueueCommand_MissingFields(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/commands", bytes.NewBufferString(`{"tenant_id":"t1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestEnqueueCommand_DuplicateIdempotencyKey(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("INSERT INTO bridge.outbox_commands").
		WillReturnError(&pq.Error{Code: "23505"})

	body := `{"tenant_id":"t1","command_type":"TRANSFER_FUNDS","idempotency_key":"idem-1","payload":{}}`
	req := httptest.NewRequest(http.MethodPost, "/commands", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCommand_NotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM bridge.outbox_commands").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	req := httptest.NewRequest(http.MethodGet, "/commands/cmd_missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestGetBalance(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM bridge.balances").
		WithArgs("w1").
		WillReturnRows(sqlmock.NewRows([]string{"wallet_id", "tenant_id", "currency", "amount", "updated_at"}).
			AddRow("w1", "tenant_1", "USD", "42.75", time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/balances/w1", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)

	var balance model.Balance
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &balance))
	assert.Equal(t, "w1", balance.WalletID)
	assert.Equal(t, "42.75", balance.Amount.String())
}

func TestGetBalance_NotFound(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT (.+) FROM bridge.balances").
		WillReturnRows(sqlmock.NewRows([]string{"wallet_id"}))

	req := httptest.NewRequest(http.MethodGet, "/balances/w_missing", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHealth_FreshCheckpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT updated_at FROM bridge.projector_checkpoints").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"healthy"`)
}

func TestHealth_StaleCheckpoint(t *testing.T) {
	router, mock := newTestRouter(t)

	mock.ExpectQuery("SELECT updated_at FROM bridge.projector_checkpoints").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now().Add(-time.Hour)))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
	assert.Contains(t, resp.Body.String(), `"status":"stale"`)
}
