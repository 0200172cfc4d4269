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

package main

import (
	"time"

	"github.com/quantaledger/bridge"
	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/ledger/memledger"
	"github.com/quantaledger/bridge/model"
)

// defaultIdentities covers local development where bridge.json declares no
// identities: one ordinary and one privileged credential on the emulated
// network's first organization.
func defaultIdentities() []model.LedgerIdentity {
	return []model.LedgerIdentity{
		{Name: "app-submitter", Role: model.RoleOrdinary, OrganizationID: "org1"},
		{Name: "governance-admin", Role: model.RolePrivileged, OrganizationID: "org1"},
	}
}

func configuredIdentities(cnf *config.Configuration) []model.LedgerIdentity {
	if len(cnf.Ledger.Identities) == 0 {
		return defaultIdentities()
	}
	identities := make([]model.LedgerIdentity, 0, len(cnf.Ledger.Identities))
	for _, id := range cnf.Ledger.Identities {
		identities = append(identities, model.LedgerIdentity{
			Name:           id.Name,
			Role:           model.IdentityRole(id.Role),
			OrganizationID: id.OrganizationID,
			Endpoint:       id.Endpoint,
			CredentialPath: id.CredentialPath,
		})
	}
	return identities
}

// setupLedger builds one gateway per configured identity over the in-process
// network emulator. The dispatcher gets a client per role; the projector and
// reconciler share the ordinary one.
//
// The emulated network lives inside this process: separate dispatcher and
// projector processes each get their own empty ledger, so the cross-process
// flow only works against a real network backend. For local development run
// both roles in one process, or point the gateways at a shared network.
func setupLedger(cnf *config.Configuration) (map[model.IdentityRole]ledger.Client, ledger.Client, error) {
	network := memledger.NewNetwork(cnf.Ledger.Channel)
	timeout := time.Duration(cnf.Ledger.SubmitTimeoutSec) * time.Second

	clients := make(map[model.IdentityRole]ledger.Client)
	for _, identity := range configuredIdentities(cnf) {
		gw := ledger.NewGateway(identity, cnf.Ledger.Channel, network, network, network, bridge.EndorsementPolicyFor, timeout)
		clients[identity.Role] = gw
	}

	ordinary, ok := clients[model.RoleOrdinary]
	if !ok {
		for _, c := range clients {
			ordinary = c
			break
		}
	}
	return clients, ordinary, nil
}
