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

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/model"
)

type createUserPayload struct {
	UserID      string `json:"user_id"`
	CountryCode string `json:"country_code"`
}

func (p createUserPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.CountryCode, validation.Required, validation.Length(2, 3)),
	)
}

type createWalletPayload struct {
	WalletID string `json:"wallet_id"`
	UserID   string `json:"user_id"`
	Currency string `json:"currency"`
}

func (p createWalletPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.WalletID, validation.Required),
		validation.Field(&p.UserID, validation.Required),
		validation.Field(&p.Currency, validation.Required, validation.Length(3, 10)),
	)
}

type transferFundsPayload struct {
	FromWalletID string `json:"from_wallet_id"`
	ToWalletID   string `json:"to_wallet_id"`
	Amount       string `json:"amount"`
	Fee          string `json:"fee"`
	Currency     string `json:"currency"`
}

func (p transferFundsPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.FromWalletID, validation.Required),
		validation.Field(&p.ToWalletID, validation.Required),
		validation.Field(&p.Amount, validation.Required, validation.By(positiveDecimal)),
		validation.Field(&p.Fee, validation.By(nonNegativeDecimal)),
		validation.Field(&p.Currency, validation.Required),
	)
}

type bootstrapSystemPayload struct {
	Network string `json:"network"`
}

func (p bootstrapSystemPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Network, validation.Required),
	)
}

type updateGlobalParamsPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (p updateGlobalParamsPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Key, validation.Required),
		validation.Field(&p.Value, validation.Required),
	)
}

type initCountryDataPayload struct {
	CountryCode string `json:"country_code"`
	CountryName string `json:"country_name"`
}

func (p initCountryDataPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.CountryCode, validation.Required, validation.Length(2, 3)),
		validation.Field(&p.CountryName, validation.Required),
	)
}

func positiveDecimal(value interface{}) error {
	s, _ := value.(string)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return validation.NewError("validation_decimal", "must be a decimal number")
	}
	if !d.IsPositive() {
		return validation.NewError("validation_decimal_positive", "must be greater than zero")
	}
	return nil
}

func nonNegativeDecimal(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return validation.NewError("validation_decimal", "must be a decimal number")
	}
	if d.IsNegative() {
		return validation.NewError("validation_decimal_non_negative", "must not be negative")
	}
	return nil
}

// BuildInvocation deterministically maps a claimed outbox row to the chaincode
// call it intends. Validation failures and undecodable payloads come back as
// contract violations, which the dispatcher dead-letters without retrying.
func BuildInvocation(cmd *model.OutboxCommand, contract string) (ledger.Invocation, error) {
	route, err := RouteOf(cmd.CommandType)
	if err != nil {
		return ledger.Invocation{}, err
	}

	inv := ledger.Invocation{Contract: contract, Function: route.Function}
	if route.Idempotent {
		inv.IdempotencyKey = cmd.IdempotencyKey
	}

	switch cmd.CommandType {
	case model.CommandCreateUser:
		var p createUserPayload
		if err := decodePayload(cmd.Payload, &p); err != nil {
			return ledger.Invocation{}, err
		}
		inv.Args = []string{p.UserID, cmd.TenantID, p.CountryCode}

	case model.CommandCreateWallet:
		var p createWalletPayload
		if err := decodePayload(cmd.Payload, &p); err != nil {
			return ledger.Invocation{}, err
		}
		inv.Args = []string{p.WalletID, p.UserID, cmd.TenantID, p.Currency}

	case model.CommandTransferFunds:
		var p transferFundsPayload
		if err := decodePayload(cmd.Payload, &p); err != nil {
			return ledger.Invocation{}, err
		}
		fee := p.Fee
		if fee == "" {
			fee = "0"
		}
		inv.Args = []string{p.FromWalletID, p.ToWalletID, p.Amount, fee, p.Currency, cmd.TenantID}

	case model.CommandBootstrapSystem:
		var p bootstrapSystemPayload
		if err := decodePayload(cmd.Payload, &p); err != nil {
			return ledger.Invocation{}, err
		}
		inv.Args = []string{p.Network}

	case model.CommandUpdateGlobalParams:
		var p updateGlobalParamsPayload
		if err := decodePayload(cmd.Payload, &p); err != nil {
			return ledger.Invocation{}, err
		}
		inv.Args = []string{p.Key, p.Value}

	case model.CommandPauseSystem, model.CommandResumeSystem:
		inv.Args = []string{}

	case model.CommandInitCountryData:
		var p initCountryDataPayload
		if err := decodePayload(cmd.Payload, &p); err != nil {
			return ledger.Invocation{}, err
		}
		inv.Args = []string{p.CountryCode, p.CountryName}
	}

	return inv, nil
}

type validatable interface {
	Validate() error
}

func decodePayload(raw json.RawMessage, into validatable) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return ledgererror.New(ledgererror.ErrContract, "malformed command payload", err)
	}
	if err := into.Validate(); err != nil {
		return ledgererror.New(ledgererror.ErrContract, "command payload failed validation", err)
	}
	return nil
}
