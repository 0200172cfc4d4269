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
	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/model"
)

// commandRoute binds a command type to the chaincode function it invokes, the
// identity role allowed to submit it and whether the submission carries an
// idempotency key for ledger-side check-and-set.
type commandRoute struct {
	Function   string
	Role       model.IdentityRole
	Idempotent bool
}

// routingTable is the closed command-to-function map. Governance operations
// route through the privileged identity and a majority endorsement policy;
// user operations route through the ordinary identity and a single
// organization.
var routingTable = map[model.CommandType]commandRoute{
	model.CommandCreateUser:         {Function: "CreateUser", Role: model.RoleOrdinary},
	model.CommandCreateWallet:       {Function: "CreateWallet", Role: model.RoleOrdinary},
	model.CommandTransferFunds:      {Function: "TransferFunds", Role: model.RoleOrdinary, Idempotent: true},
	model.CommandBootstrapSystem:    {Function: "BootstrapSystem", Role: model.RolePrivileged},
	model.CommandUpdateGlobalParams: {Function: "UpdateGlobalParams", Role: model.RolePrivileged},
	model.CommandPauseSystem:        {Function: "PauseSystem", Role: model.RolePrivileged},
	model.CommandResumeSystem:       {Function: "ResumeSystem", Role: model.RolePrivileged},
	model.CommandInitCountryData:    {Function: "InitCountryData", Role: model.RolePrivileged},
}

// privilegedFunctions mirrors the routing table for the endorsement side:
// these functions mutate network-wide state and need a majority of
// organizations to sign off.
var privilegedFunctions = map[string]struct{}{
	"BootstrapSystem":    {},
	"UpdateGlobalParams": {},
	"PauseSystem":        {},
	"ResumeSystem":       {},
	"InitCountryData":    {},
}

// RouteOf resolves a command type to its route. An unknown type is a
// contract violation: the producer and dispatcher enumerations have
// diverged, and retrying cannot fix a deployment defect.
func RouteOf(t model.CommandType) (commandRoute, error) {
	route, ok := routingTable[t]
	if !ok {
		return commandRoute{}, ledgererror.Newf(ledgererror.ErrContract, "unknown command type %q", t)
	}
	return route, nil
}

// EndorsementPolicyFor classifies a chaincode function for the gateway.
func EndorsementPolicyFor(function string) ledger.EndorsementPolicy {
	if _, ok := privilegedFunctions[function]; ok {
		return ledger.PolicyMajority
	}
	return ledger.PolicySingleOrg
}

// SelectIdentity picks the configured identity matching the route's role.
func SelectIdentity(identities []model.LedgerIdentity, role model.IdentityRole) (model.LedgerIdentity, error) {
	for _, id := range identities {
		if id.Role == role {
			return id, nil
		}
	}
	return model.LedgerIdentity{}, ledgererror.Newf(ledgererror.ErrContract, "no identity configured for role %q", role)
}
