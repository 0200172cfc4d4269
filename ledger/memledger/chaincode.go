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

package memledger

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/model"
)

// worldState holds the emulated chaincode state. All access goes through the
// network mutex.
type worldState struct {
	bootstrapped bool
	paused       bool
	users        map[string]userEntry
	wallets      map[string]walletEntry
	balances     map[string]decimal.Decimal
	countries    map[string]string
	params       map[string]string
}

type userEntry struct {
	tenantID    string
	countryCode string
}

type walletEntry struct {
	userID   string
	currency string
}

type eventPayload struct {
	eventType string
	body      json.RawMessage
}

func newWorldState() *worldState {
	return &worldState{
		users:     map[string]userEntry{},
		wallets:   map[string]walletEntry{},
		balances:  map[string]decimal.Decimal{},
		countries: map[string]string{},
		params:    map[string]string{},
	}
}

func reject(format string, args ...interface{}) error {
	return ledgererror.Newf(ledgererror.ErrRejected, format, args...)
}

func badArgs(function string, want int, got int) error {
	return ledgererror.Newf(ledgererror.ErrRejected, "%s expects %d arguments, got %d", function, want, got)
}

// validate is the endorsement-time dry run: same verdicts as apply, no
// mutation.
func (s *worldState) validate(inv ledger.Invocation) error {
	_, err := s.run(inv, false)
	return err
}

// apply commits the invocation and returns the events it emits.
func (s *worldState) apply(inv ledger.Invocation) ([]eventPayload, error) {
	return s.run(inv, true)
}

func (s *worldState) run(inv ledger.Invocation, commit bool) ([]eventPayload, error) {
	args := inv.Args
	switch inv.Function {
	case "CreateUser":
		if len(args) != 3 {
			return nil, badArgs(inv.Function, 3, len(args))
		}
		userID, tenantID, country := args[0], args[1], args[2]
		if s.paused {
			return nil, reject("system is paused")
		}
		if _, exists := s.users[userID]; exists {
			return nil, reject("user %s already exists", userID)
		}
		if commit {
			s.users[userID] = userEntry{tenantID: tenantID, countryCode: country}
		}
		return []eventPayload{marshalEvent(model.EventUserCreated, map[string]string{
			"user_id": userID, "tenant_id": tenantID, "country_code": country,
		})}, nil

	case "CreateWallet":
		if len(args) != 4 {
			return nil, badArgs(inv.Function, 4, len(args))
		}
		walletID, userID, tenantID, currency := args[0], args[1], args[2], args[3]
		if s.paused {
			return nil, reject("system is paused")
		}
		if _, ok := s.users[userID]; !ok {
			return nil, reject("unknown user %s", userID)
		}
		if _, exists := s.wallets[walletID]; exists {
			return nil, reject("wallet %s already exists", walletID)
		}
		if commit {
			s.wallets[walletID] = walletEntry{userID: userID, currency: currency}
			s.balances[walletID] = decimal.Zero
		}
		return []eventPayload{marshalEvent(model.EventWalletCreated, map[string]string{
			"wallet_id": walletID, "user_id": userID, "tenant_id": tenantID, "currency": currency,
		})}, nil

	case "TransferFunds":
		if len(args) != 6 {
			return nil, badArgs(inv.Function, 6, len(args))
		}
		from, to, amountStr, feeStr, currency, tenantID := args[0], args[1], args[2], args[3], args[4], args[5]
		if s.paused {
			return nil, reject("system is paused")
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil || amount.LessThanOrEqual(decimal.Zero) {
			return nil, reject("invalid amount %q", amountStr)
		}
		fee, err := decimal.NewFromString(feeStr)
		if err != nil || fee.IsNegative() {
			return nil, reject("invalid fee %q", feeStr)
		}
		fromBal, ok := s.balances[from]
		if !ok {
			return nil, reject("unknown wallet %s", from)
		}
		if _, ok := s.balances[to]; !ok {
			return nil, reject("unknown wallet %s", to)
		}
		total := amount.Add(fee)
		if fromBal.LessThan(total) {
			return nil, reject("insufficient funds in %s: have %s, need %s", from, fromBal, total)
		}
		if commit {
			s.balances[from] = fromBal.Sub(total)
			s.balances[to] = s.balances[to].Add(amount)
			s.balances["fees_pool"] = s.balances["fees_pool"].Add(fee)
		}
		return []eventPayload{marshalEvent(model.EventFundsTransferred, map[string]string{
			"from_wallet": from, "to_wallet": to, "amount": amount.String(),
			"fee": fee.String(), "currency": currency, "tenant_id": tenantID,
		})}, nil

	case "BootstrapSystem":
		if len(args) != 1 {
			return nil, badArgs(inv.Function, 1, len(args))
		}
		if s.bootstrapped {
			return nil, reject("system already bootstrapped")
		}
		if commit {
			s.bootstrapped = true
			s.balances["fees_pool"] = decimal.Zero
		}
		return []eventPayload{marshalEvent(model.EventSystemBootstrapped, map[string]string{
			"network": args[0],
		})}, nil

	case "UpdateGlobalParams":
		if len(args) != 2 {
			return nil, badArgs(inv.Function, 2, len(args))
		}
		if commit {
			s.params[args[0]] = args[1]
		}
		return []eventPayload{marshalEvent(model.EventGlobalParamsUpdated, map[string]string{
			"key": args[0], "value": args[1],
		})}, nil

	case "PauseSystem":
		if len(args) != 0 {
			return nil, badArgs(inv.Function, 0, len(args))
		}
		if s.paused {
			return nil, reject("system already paused")
		}
		if commit {
			s.paused = true
		}
		return []eventPayload{marshalEvent(model.EventSystemPaused, map[string]string{})}, nil

	case "ResumeSystem":
		if len(args) != 0 {
			return nil, badArgs(inv.Function, 0, len(args))
		}
		if !s.paused {
			return nil, reject("system is not paused")
		}
		if commit {
			s.paused = false
		}
		return []eventPayload{marshalEvent(model.EventSystemResumed, map[string]string{})}, nil

	case "InitCountryData":
		if len(args) != 2 {
			return nil, badArgs(inv.Function, 2, len(args))
		}
		code, name := args[0], args[1]
		if _, exists := s.countries[code]; exists {
			return nil, reject("country %s already initialized", code)
		}
		if commit {
			s.countries[code] = name
		}
		return []eventPayload{marshalEvent(model.EventCountryDataInit, map[string]string{
			"country_code": code, "country_name": name,
		})}, nil

	default:
		return nil, reject("unknown function %s", inv.Function)
	}
}

func marshalEvent(eventType string, body map[string]string) eventPayload {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = json.RawMessage(fmt.Sprintf(`{"marshal_error":%q}`, err.Error()))
	}
	return eventPayload{eventType: eventType, body: raw}
}
