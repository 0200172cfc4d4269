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

// Package ledger defines the bridge's view of the permissioned network:
// function invocations, commit results, endorsement collection and the
// ordered event stream. The network's consensus internals stay a black box.
package ledger

import (
	"context"

	"github.com/quantaledger/bridge/model"
)

// Invocation is one chaincode call: contract, function and positional string
// arguments derived deterministically from a command payload. IdempotencyKey
// is set for functions with financial side effects; the ledger handler
// performs an atomic check-and-set on it.
type Invocation struct {
	Contract       string
	Function       string
	Args           []string
	IdempotencyKey string
}

// CommitResult reports where a transaction landed in the total order.
type CommitResult struct {
	TxID  string
	Block uint64
}

// EndorsementPolicy is the two-tier policy keyed by function classification.
type EndorsementPolicy int

const (
	// PolicySingleOrg needs one endorsing organization. High-volume user
	// operations run here for throughput.
	PolicySingleOrg EndorsementPolicy = iota
	// PolicyMajority needs endorsements from a majority of participating
	// organizations, so no single organization can mutate global state
	// unilaterally.
	PolicyMajority
)

// PolicyFunc classifies a function name into its endorsement policy.
type PolicyFunc func(function string) EndorsementPolicy

// Client is a single identity's connection to the network. One instance per
// identity; Submit blocks until commit or timeout.
type Client interface {
	// Submit collects the endorsements the function's policy requires, sends
	// the transaction to ordering and waits for commit. The returned error is
	// classified per ledgererror codes.
	Submit(ctx context.Context, inv Invocation) (*CommitResult, error)

	// QueryByIdempotencyKey asks the ledger whether a transaction carrying
	// this key has already committed. Used by the reconciliation sweep for
	// rows whose acknowledgment was lost. A nil result means no commit.
	QueryByIdempotencyKey(ctx context.Context, key string) (*CommitResult, error)

	// Events subscribes to the channel's ordered event stream strictly after
	// the given ordinate. The error channel reports a broken subscription;
	// the caller reconnects with backoff.
	Events(ctx context.Context, channel string, after model.Ordinate) (<-chan model.LedgerEvent, <-chan error, error)

	Close() error
}

// Proposal is a transaction proposal presented to endorsing peers.
type Proposal struct {
	Identity   string
	Org        string
	Invocation Invocation
}

// Endorsement is one organization's attestation over a proposal.
type Endorsement struct {
	Org       string
	Payload   string
	Signature string
}

// Endorser is one reachable peer able to endorse proposals for its
// organization.
type Endorser interface {
	Organization() string
	Endorse(ctx context.Context, prop Proposal) (*Endorsement, error)
}

// Discovery enumerates reachable endorsing peers across every organization
// participating in the channel, not just the submitting identity's own.
type Discovery interface {
	Endorsers(ctx context.Context, channel string) ([]Endorser, error)
	// Organizations returns the full membership of the channel, reachable or
	// not, so majority thresholds are computed over the policy set.
	Organizations(ctx context.Context, channel string) ([]string, error)
}

// Orderer accepts an endorsed transaction into the ordering service and
// reports the commit ordinate.
type Orderer interface {
	Order(ctx context.Context, prop Proposal, endorsements []Endorsement) (*CommitResult, error)
}
