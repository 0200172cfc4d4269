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

package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/model"
)

// EventSource is the subscription half of the network, implemented by the
// same backend that implements Discovery and Orderer.
type EventSource interface {
	Events(ctx context.Context, channel string, after model.Ordinate) (<-chan model.LedgerEvent, <-chan error, error)
	QueryByIdempotencyKey(ctx context.Context, key string) (*CommitResult, error)
}

// Gateway implements Client for one identity. It collects endorsements via
// ambient peer discovery, enforces the two-tier endorsement policy and
// forwards endorsed transactions to the ordering service.
type Gateway struct {
	identity  model.LedgerIdentity
	channel   string
	discovery Discovery
	orderer   Orderer
	events    EventSource
	policy    PolicyFunc
	timeout   time.Duration
}

// NewGateway wires an identity to the network backends. policy decides per
// function whether a single organization suffices or a majority is required.
func NewGateway(identity model.LedgerIdentity, channel string, discovery Discovery, orderer Orderer, events EventSource, policy PolicyFunc, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gateway{
		identity:  identity,
		channel:   channel,
		discovery: discovery,
		orderer:   orderer,
		events:    events,
		policy:    policy,
		timeout:   timeout,
	}
}

// Submit runs the full endorse-order-commit flow and blocks until commit or
// timeout.
func (g *Gateway) Submit(ctx context.Context, inv Invocation) (*CommitResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prop := Proposal{
		Identity:   g.identity.Name,
		Org:        g.identity.OrganizationID,
		Invocation: inv,
	}

	endorsements, err := g.collectEndorsements(ctx, prop)
	if err != nil {
		return nil, err
	}

	result, err := g.orderer.Order(ctx, prop, endorsements)
	if err != nil {
		if ledgererror.CodeOf(err) != ledgererror.ErrInternal {
			return result, err
		}
		return nil, ledgererror.New(ledgererror.ErrUnreachable, "ordering service submission failed", err)
	}
	return result, nil
}

// collectEndorsements gathers peer endorsements in parallel and checks them
// against the function's policy. Required organizations are counted over the
// channel's full membership, not just the reachable peers, so an unreachable
// organization shows up as an endorsement shortfall rather than a silently
// weakened policy.
func (g *Gateway) collectEndorsements(ctx context.Context, prop Proposal) ([]Endorsement, error) {
	orgs, err := g.discovery.Organizations(ctx, g.channel)
	if err != nil {
		return nil, ledgererror.New(ledgererror.ErrUnreachable, "peer discovery failed", err)
	}

	required := 1
	if g.policy(prop.Invocation.Function) == PolicyMajority {
		required = len(orgs)/2 + 1
	}

	peers, err := g.discovery.Endorsers(ctx, g.channel)
	if err != nil {
		return nil, ledgererror.New(ledgererror.ErrUnreachable, "peer discovery failed", err)
	}

	// One peer per organization is enough; extra peers of the same org add
	// nothing to the policy.
	byOrg := make(map[string]Endorser, len(peers))
	for _, p := range peers {
		if _, ok := byOrg[p.Organization()]; !ok {
			byOrg[p.Organization()] = p
		}
	}

	var (
		mu           sync.Mutex
		endorsements []Endorsement
		rejection    error
		wg           sync.WaitGroup
	)

	for _, peer := range byOrg {
		wg.Add(1)
		go func(p Endorser) {
			defer wg.Done()
			endorsement, err := p.Endorse(ctx, prop)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A peer that answered and said no is a handler verdict, not
				// an availability problem. Remember it; if the policy cannot
				// be met it outranks the endorsement-shortfall error.
				if ledgererror.CodeOf(err) == ledgererror.ErrRejected {
					rejection = err
				} else {
					logrus.Debugf("endorsement from org %s failed: %v", p.Organization(), err)
				}
				return
			}
			endorsements = append(endorsements, *endorsement)
		}(peer)
	}
	wg.Wait()

	if len(endorsements) >= required {
		return endorsements, nil
	}
	if rejection != nil {
		return nil, rejection
	}
	return nil, ledgererror.Newf(ledgererror.ErrEndorsement,
		"collected %d of %d required endorsements for %s", len(endorsements), required, prop.Invocation.Function)
}

// QueryByIdempotencyKey implements the reconciliation lookup.
func (g *Gateway) QueryByIdempotencyKey(ctx context.Context, key string) (*CommitResult, error) {
	result, err := g.events.QueryByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, errors.Wrap(err, "idempotency key lookup failed")
	}
	return result, nil
}

// Events subscribes to the channel's ordered stream after the given ordinate.
func (g *Gateway) Events(ctx context.Context, channel string, after model.Ordinate) (<-chan model.LedgerEvent, <-chan error, error) {
	return g.events.Events(ctx, channel, after)
}

func (g *Gateway) Close() error { return nil }
