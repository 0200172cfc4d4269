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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/model"
)

func testCommand(commandType model.CommandType, payload string) *model.OutboxCommand {
	return &model.OutboxCommand{
		CommandID:      "cmd_test",
		TenantID:       "tenant_1",
		CommandType:    commandType,
		IdempotencyKey: "idem-1",
		Payload:        json.RawMessage(payload),
	}
}

func TestBuildInvocation_CreateUser(t *testing.T) {
	cmd := testCommand(model.CommandCreateUser, `{"user_id":"u1","country_code":"NG"}`)

	inv, err := BuildInvocation(cmd, "assets")
	require.NoError(t, err)
	assert.Equal(t, "assets", inv.Contract)
	assert.Equal(t, "CreateUser", inv.Function)
	assert.Equal(t, []string{"u1", "tenant_1", "NG"}, inv.Args)
	assert.Empty(t, inv.IdempotencyKey, "non-idempotent routes must not carry a key")
}

func TestBuildInvocation_CreateWallet(t *testing.T) {
	cmd := testCommand(model.CommandCreateWallet, `{"wallet_id":"w1","user_id":"u1","currency":"USD"}`)

	inv, err := BuildInvocation(cmd, "assets")
	require.NoError(t, err)
	assert.Equal(t, "CreateWallet", inv.Function)
	assert.Equal(t, []string{"w1", "u1", "tenant_1", "USD"}, inv.Args)
}

func TestBuildInvocation_TransferCarriesIdempotencyKey(t *testing.T) {
	cmd := testCommand(model.CommandTransferFunds,
		`{"from_wallet_id":"w1","to_wallet_id":"w2","amount":"25.50","fee":"0.10","currency":"USD"}`)

	inv, err := BuildInvocation(cmd, "assets")
	require.NoError(t, err)
	assert.Equal(t, "TransferFunds", inv.Function)
	assert.Equal(t, []string{"w1", "w2", "25.50", "0.10", "USD", "tenant_1"}, inv.Args)
	assert.Equal(t, "idem-1", inv.IdempotencyKey)
}

func TestBuildInvocation_TransferDefaultsFeeToZero(t *testing.T) {
	cmd := testCommand(model.CommandTransferFunds,
		`{"from_wallet_id":"w1","to_wallet_id":"w2","amount":"10","currency":"USD"}`)

	inv, err := BuildInvocation(cmd, "assets")
	require.NoError(t, err)
	assert.Equal(t, "0", inv.Args[3])
}

func TestBuildInvocation_GovernanceArgs(t *testing.T) {
	inv, err := BuildInvocation(testCommand(model.CommandBootstrapSystem, `{"network":"mainnet"}`), "assets")
	require.NoError(t, err)
	assert.Equal(t, []string{"mainnet"}, inv.Args)

	inv, err = BuildInvocation(testCommand(model.CommandUpdateGlobalParams, `{"key":"max_tx","value":"1000"}`), "assets")
	require.NoError(t, err)
	assert.Equal(t, []string{"max_tx", "1000"}, inv.Args)

	inv, err = BuildInvocation(testCommand(model.CommandPauseSystem, `{}`), "assets")
	require.NoError(t, err)
	assert.Empty(t, inv.Args)

	inv, err = BuildInvocation(testCommand(model.CommandInitCountryData, `{"country_code":"NG","country_name":"Nigeria"}`), "assets")
	require.NoError(t, err)
	assert.Equal(t, []string{"NG", "Nigeria"}, inv.Args)
}

func TestBuildInvocation_MalformedPayloadIsContractViolation(t *testing.T) {
	cmd := testCommand(model.CommandCreateUser, `{"user_id":`)

	_, err := BuildInvocation(cmd, "assets")
	require.Error(t, err)
	assert.Equal(t, ledgererror.ErrContract, ledgererror.CodeOf(err))
	assert.False(t, ledgererror.Retryable(err))
}

func TestBuildInvocation_ValidationFailures(t *testing.T) {
	tests := []struct {
		name        string
		commandType model.CommandType
		payload     string
	}{
		{"missing user id", model.CommandCreateUser, `{"country_code":"NG"}`},
		{"country code too long", model.CommandCreateUser, `{"user_id":"u1","country_code":"NIGERIA"}`},
		{"zero transfer amount", model.CommandTransferFunds, `{"from_wallet_id":"w1","to_wallet_id":"w2","amount":"0","currency":"USD"}`},
		{"negative fee", model.CommandTransferFunds, `{"from_wallet_id":"w1","to_wallet_id":"w2","amount":"10","fee":"-1","currency":"USD"}`},
		{"amount not a number", model.CommandTransferFunds, `{"from_wallet_id":"w1","to_wallet_id":"w2","amount":"ten","currency":"USD"}`},
		{"missing network", model.CommandBootstrapSystem, `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildInvocation(testCommand(tt.commandType, tt.payload), "assets")
			require.Error(t, err)
			assert.Equal(t, ledgererror.ErrContract, ledgererror.CodeOf(err))
		})
	}
}
