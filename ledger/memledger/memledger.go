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

// Package memledger is a deterministic in-memory stand-in for the
// permissioned network: multi-organization endorsement, an ordering service
// producing (block, index) ordinates, idempotent financial handlers and an
// ordered event stream. Tests and local development run against it; the real
// network is an external collaborator behind the same interfaces.
package memledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/model"
)

type block struct {
	number uint64
	events []model.LedgerEvent
}

type subscription struct {
	ch     chan model.LedgerEvent
	errCh  chan error
	after  model.Ordinate
	closed bool
}

// Network is the emulated multi-organization ledger. Every ordered
// transaction becomes its own block; events inside a block are indexed from
// zero.
type Network struct {
	mu          sync.Mutex
	channel     string
	orgs        []string
	downOrgs    map[string]bool
	blocks      []block
	idempotency map[string]ledger.CommitResult
	state       *worldState
	subs        []*subscription
}

// NewNetwork creates an emulated network with the given organizations.
func NewNetwork(channel string, orgs ...string) *Network {
	if len(orgs) == 0 {
		orgs = []string{"org1", "org2", "org3"}
	}
	return &Network{
		channel:     channel,
		orgs:        orgs,
		downOrgs:    map[string]bool{},
		idempotency: map[string]ledger.CommitResult{},
		state:       newWorldState(),
	}
}

// SetOrgDown makes one organization's peer unreachable, simulating a partial
// network partition.
func (n *Network) SetOrgDown(org string, down bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.downOrgs[org] = down
}

// SeedBalance credits a wallet directly, bypassing endorsement. Test setup
// only.
func (n *Network) SeedBalance(walletID string, amount decimal.Decimal) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.state.balances[walletID] = amount
}

// Height returns the current block height.
func (n *Network) Height() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return uint64(len(n.blocks))
}

// Organizations implements ledger.Discovery.
func (n *Network) Organizations(_ context.Context, _ string) ([]string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.orgs))
	copy(out, n.orgs)
	return out, nil
}

// Endorsers implements ledger.Discovery: one peer per reachable org.
func (n *Network) Endorsers(_ context.Context, _ string) ([]ledger.Endorser, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var peers []ledger.Endorser
	for _, org := range n.orgs {
		peers = append(peers, &peer{network: n, org: org})
	}
	return peers, nil
}

type peer struct {
	network *Network
	org     string
}

func (p *peer) Organization() string { return p.org }

// Endorse simulates chaincode execution against current state without
// committing. An unreachable peer fails with a connectivity error; a handler
// veto fails with a rejection.
func (p *peer) Endorse(_ context.Context, prop ledger.Proposal) (*ledger.Endorsement, error) {
	p.network.mu.Lock()
	defer p.network.mu.Unlock()

	if p.network.downOrgs[p.org] {
		return nil, ledgererror.Newf(ledgererror.ErrUnreachable, "peer for org %s unreachable", p.org)
	}

	if key := prop.Invocation.IdempotencyKey; key != "" {
		if _, seen := p.network.idempotency[key]; seen {
			// Simulated execution is a no-op for an already-applied key; the
			// ordering step resolves it to the original commit.
			return &ledger.Endorsement{Org: p.org, Payload: "duplicate:" + key, Signature: p.org + "/sig"}, nil
		}
	}

	if err := p.network.state.validate(prop.Invocation); err != nil {
		return nil, err
	}

	return &ledger.Endorsement{
		Org:       p.org,
		Payload:   fmt.Sprintf("%s:%s(%d args)", prop.Invocation.Contract, prop.Invocation.Function, len(prop.Invocation.Args)),
		Signature: p.org + "/sig",
	}, nil
}

// Order implements ledger.Orderer: commits the endorsed transaction, cuts a
// block and fans the events out to subscribers. An already-seen idempotency
// key resolves to the original commit without re-applying the effect.
func (n *Network) Order(_ context.Context, prop ledger.Proposal, _ []ledger.Endorsement) (*ledger.CommitResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if key := prop.Invocation.IdempotencyKey; key != "" {
		if prior, seen := n.idempotency[key]; seen {
			result := prior
			return &result, nil
		}
	}

	txID := "tx_" + uuid.New().String()
	payloads, err := n.state.apply(prop.Invocation)
	if err != nil {
		return nil, err
	}

	blockNumber := uint64(len(n.blocks) + 1)
	b := block{number: blockNumber}
	for i, p := range payloads {
		b.events = append(b.events, model.LedgerEvent{
			Type:     p.eventType,
			TxID:     txID,
			Ordinate: model.Ordinate{Block: blockNumber, Index: int64(i)},
			Payload:  p.body,
		})
	}
	n.blocks = append(n.blocks, b)

	result := ledger.CommitResult{TxID: txID, Block: blockNumber}
	if key := prop.Invocation.IdempotencyKey; key != "" {
		n.idempotency[key] = result
	}

	for _, sub := range n.subs {
		if sub.closed {
			continue
		}
		for _, ev := range b.events {
			if sub.after.Before(ev.Ordinate) {
				sub.ch <- ev
			}
		}
	}

	return &result, nil
}

// QueryByIdempotencyKey implements the reconciliation lookup.
func (n *Network) QueryByIdempotencyKey(_ context.Context, key string) (*ledger.CommitResult, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if result, ok := n.idempotency[key]; ok {
		out := result
		return &out, nil
	}
	return nil, nil
}

// Events implements ledger.EventSource. Historical events strictly after the
// given ordinate are replayed first, then live events follow on the same
// channel. The subscription is buffered; a stalled consumer eventually
// blocks ordering, which is acceptable for an emulator.
func (n *Network) Events(ctx context.Context, _ string, after model.Ordinate) (<-chan model.LedgerEvent, <-chan error, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	sub := &subscription{
		ch:    make(chan model.LedgerEvent, 1024),
		errCh: make(chan error, 1),
		after: after,
	}

	for _, b := range n.blocks {
		for _, ev := range b.events {
			if after.Before(ev.Ordinate) {
				sub.ch <- ev
			}
		}
	}

	n.subs = append(n.subs, sub)

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		sub.closed = true
		n.mu.Unlock()
	}()

	return sub.ch, sub.errCh, nil
}
