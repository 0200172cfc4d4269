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

package model

import (
	"encoding/json"
	"fmt"
)

// Ordinate identifies a ledger event's position in the network's total order:
// block number first, then the event's index inside the block.
type Ordinate struct {
	Block uint64 `json:"block"`
	Index int64  `json:"index"`
}

// Before reports whether o is strictly earlier than other in the stream order.
func (o Ordinate) Before(other Ordinate) bool {
	if o.Block != other.Block {
		return o.Block < other.Block
	}
	return o.Index < other.Index
}

func (o Ordinate) String() string {
	return fmt.Sprintf("%d/%d", o.Block, o.Index)
}

// LedgerEvent is an immutable fact emitted by a committed ledger transaction.
// The projector treats it as read-only; the payload shape evolves
// independently of projector deployments, so handlers parse it through
// PayloadEnvelope rather than a rigid schema.
type LedgerEvent struct {
	Type     string          `json:"type"`
	TxID     string          `json:"tx_id"`
	Ordinate Ordinate        `json:"ordinate"`
	Payload  json.RawMessage `json:"payload"`
}

// Event types the projector has handlers for. Unknown types are logged and
// skipped so older projectors survive newer ledger handlers.
const (
	EventUserCreated         = "USER_CREATED"
	EventWalletCreated       = "WALLET_CREATED"
	EventFundsTransferred    = "FUNDS_TRANSFERRED"
	EventCountryDataInit     = "COUNTRY_DATA_INITIALIZED"
	EventSystemBootstrapped  = "SYSTEM_BOOTSTRAPPED"
	EventGlobalParamsUpdated = "GLOBAL_PARAMS_UPDATED"
	EventSystemPaused        = "SYSTEM_PAUSED"
	EventSystemResumed       = "SYSTEM_RESUMED"
)

// PayloadEnvelope is a loosely typed view over an event payload. Handlers
// read named optional fields with explicit defaults instead of failing on
// renamed or missing fields.
type PayloadEnvelope map[string]interface{}

// ParseEnvelope decodes a raw payload into an envelope. A nil or empty
// payload yields an empty envelope, not an error.
func ParseEnvelope(raw json.RawMessage) (PayloadEnvelope, error) {
	if len(raw) == 0 {
		return PayloadEnvelope{}, nil
	}
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	if env == nil {
		env = PayloadEnvelope{}
	}
	return env, nil
}

// String returns the named field as a string, or def when the field is
// absent or not a string.
func (e PayloadEnvelope) String(key, def string) string {
	if v, ok := e[key].(string); ok {
		return v
	}
	return def
}

// Number returns the named field as a float64, accepting JSON numbers and
// numeric strings, or def otherwise.
func (e PayloadEnvelope) Number(key string, def float64) float64 {
	switch v := e[key].(type) {
	case float64:
		return v
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return def
}

// Has reports whether the named field is present at all.
func (e PayloadEnvelope) Has(key string) bool {
	_, ok := e[key]
	return ok
}
