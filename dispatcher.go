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
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/internal/breaker"
	"github.com/quantaledger/bridge/internal/ledgererror"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/model"
)

// identitySubmitter pairs one ledger identity's client with its own circuit
// breaker, so a failing endorsement path trips in isolation.
type identitySubmitter struct {
	client  ledger.Client
	breaker *breaker.Breaker
}

// Dispatcher drains the outbox: claim a batch, translate each row into a
// chaincode invocation and submit it through the identity the command's role
// requires. Multiple replicas share one table safely; row claims partition
// the work.
type Dispatcher struct {
	ds           database.IDataSource
	submitters   map[model.IdentityRole]*identitySubmitter
	queue        *Queue
	contract     string
	workerToken  string
	batchSize    int
	pollInterval time.Duration
	lockTimeout  time.Duration
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithPollInterval(interval time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.pollInterval = interval
		}
	}
}

func WithLockTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.lockTimeout = timeout
		}
	}
}

func NewDispatcher(ds database.IDataSource, clients map[model.IdentityRole]ledger.Client, queue *Queue, conf *config.Configuration, opts ...DispatcherOption) *Dispatcher {
	submitters := make(map[model.IdentityRole]*identitySubmitter, len(clients))
	for role, client := range clients {
		submitters[role] = &identitySubmitter{
			client:  client,
			breaker: breaker.New("ledger-"+string(role), breaker.DefaultConfig()),
		}
	}

	d := &Dispatcher{
		ds:           ds,
		submitters:   submitters,
		queue:        queue,
		contract:     conf.Ledger.Contract,
		workerToken:  database.GenerateUUIDWithSuffix("worker"),
		batchSize:    conf.Dispatcher.BatchSize,
		pollInterval: time.Duration(conf.Dispatcher.PollIntervalSec) * time.Second,
		lockTimeout:  time.Duration(conf.Dispatcher.LockTimeoutMin) * time.Minute,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the poll loop. It returns immediately; Stop blocks until
// the in-flight batch finishes.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		logrus.Infof("outbox dispatcher started: worker %s, batch %d, poll %s", d.workerToken, d.batchSize, d.pollInterval)
		for {
			select {
			case <-d.stopCh:
				return
			case <-ticker.C:
				d.ProcessBatch(context.Background())
			}
		}
	}()
}

func (d *Dispatcher) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	logrus.Infof("outbox dispatcher stopped: worker %s", d.workerToken)
}

// ProcessBatch claims and dispatches one batch. Exported for the poll loop
// and for invocation-at-will in tests and tooling.
func (d *Dispatcher) ProcessBatch(ctx context.Context) {
	tracer := otel.Tracer("bridge.dispatcher")
	ctx, span := tracer.Start(ctx, "DispatchBatch")
	defer span.End()

	commands, err := d.ds.ClaimPendingCommands(ctx, d.workerToken, d.batchSize, d.lockTimeout)
	if err != nil {
		span.RecordError(err)
		logrus.Errorf("outbox claim failed: %v", err)
		return
	}
	if len(commands) == 0 {
		return
	}
	logrus.Debugf("worker %s claimed %d commands", d.workerToken, len(commands))

	for i := range commands {
		select {
		case <-d.stopCh:
			// Unsubmitted claims revert to PENDING when the lock times out.
			return
		default:
		}
		d.dispatchOne(ctx, &commands[i])
	}
}

func (d *Dispatcher) dispatchOne(ctx context.Context, cmd *model.OutboxCommand) {
	log := logrus.WithFields(logrus.Fields{
		"command_id":   cmd.CommandID,
		"command_type": cmd.CommandType,
		"tenant_id":    cmd.TenantID,
	})

	route, err := RouteOf(cmd.CommandType)
	if err != nil {
		d.failTerminal(ctx, cmd, err, log)
		return
	}
	inv, err := BuildInvocation(cmd, d.contract)
	if err != nil {
		d.failTerminal(ctx, cmd, err, log)
		return
	}
	sub, ok := d.submitters[route.Role]
	if !ok {
		d.failTerminal(ctx, cmd, ledgererror.Newf(ledgererror.ErrContract, "no ledger client for role %q", route.Role), log)
		return
	}

	// A tripped breaker means the identity's path is known-bad. Leave the row
	// LOCKED; it reverts to PENDING by lock timeout without burning an
	// attempt.
	if sub.breaker.State() == gobreaker.StateOpen {
		log.Debug("skipping command, circuit breaker open")
		return
	}

	// SUBMITTED is recorded before the network call so a crash afterwards
	// leaves an ambiguity marker for the reconciliation sweep instead of a
	// silently re-claimable row.
	marked, err := d.ds.MarkCommandSubmitted(ctx, cmd.CommandID, d.workerToken)
	if err != nil {
		log.Errorf("mark submitted failed: %v", err)
		return
	}
	if !marked {
		log.Warn("lost claim before submission, another worker took over")
		return
	}

	out, err := sub.breaker.Execute(func() (interface{}, error) {
		return sub.client.Submit(ctx, inv)
	})

	switch {
	case err == nil:
		result := out.(*ledger.CommitResult)
		d.finalize(ctx, cmd, result, log)

	case ledgererror.IsDuplicate(err):
		// The intended effect already committed under this idempotency key.
		d.resolveDuplicate(ctx, cmd, sub, log)

	case ledgererror.Retryable(err):
		d.failRetryable(ctx, cmd, err, log)

	default:
		d.failTerminal(ctx, cmd, err, log)
	}
}

func (d *Dispatcher) finalize(ctx context.Context, cmd *model.OutboxCommand, result *ledger.CommitResult, log *logrus.Entry) {
	finalized, err := d.ds.FinalizeCommandCommitted(ctx, cmd.CommandID, d.workerToken, result.TxID, result.Block)
	if err != nil {
		log.Errorf("finalize failed after commit %s: %v", result.TxID, err)
		return
	}
	if !finalized {
		log.Warnf("commit %s recorded by another worker", result.TxID)
		return
	}
	log.Infof("command committed: tx %s block %d", result.TxID, result.Block)
}

func (d *Dispatcher) resolveDuplicate(ctx context.Context, cmd *model.OutboxCommand, sub *identitySubmitter, log *logrus.Entry) {
	result, err := sub.client.QueryByIdempotencyKey(ctx, cmd.IdempotencyKey)
	if err != nil || result == nil {
		log.Warnf("duplicate submission but commit lookup failed: %v", err)
		result = &ledger.CommitResult{}
	}
	if _, err := d.ds.FinalizeCommandCommitted(ctx, cmd.CommandID, d.workerToken, result.TxID, result.Block); err != nil {
		log.Errorf("finalize duplicate failed: %v", err)
		return
	}
	log.Infof("command already committed under idempotency key, finalized from ledger record")
}

func (d *Dispatcher) failRetryable(ctx context.Context, cmd *model.OutboxCommand, cause error, log *logrus.Entry) {
	code := string(ledgererror.CodeOf(cause))
	marked, err := d.ds.MarkCommandFailed(ctx, cmd.CommandID, d.workerToken, code, cause.Error())
	if err != nil {
		log.Errorf("mark failed errored: %v", err)
		return
	}
	if !marked {
		log.Warn("row settled by another worker, discarding failure outcome")
		return
	}
	if cmd.Attempts+1 >= cmd.MaxAttempts {
		log.Errorf("retry budget exhausted: %v", cause)
		d.deadLetter(ctx, cmd, code, cause)
		return
	}
	log.Warnf("submission failed, will retry (%d/%d): %v", cmd.Attempts+1, cmd.MaxAttempts, cause)
}

func (d *Dispatcher) failTerminal(ctx context.Context, cmd *model.OutboxCommand, cause error, log *logrus.Entry) {
	code := string(ledgererror.CodeOf(cause))
	marked, err := d.ds.MarkCommandTerminal(ctx, cmd.CommandID, d.workerToken, code, cause.Error())
	if err != nil {
		log.Errorf("mark terminal errored: %v", err)
		return
	}
	if !marked {
		log.Warn("row settled by another worker, discarding terminal outcome")
		return
	}
	log.Errorf("command failed terminally: %v", cause)
	d.deadLetter(ctx, cmd, code, cause)
}

func (d *Dispatcher) deadLetter(ctx context.Context, cmd *model.OutboxCommand, code string, cause error) {
	if d.queue == nil {
		return
	}
	err := d.queue.EnqueueDeadLetter(ctx, DeadLetterPayload{
		CommandID:    cmd.CommandID,
		TenantID:     cmd.TenantID,
		CommandType:  cmd.CommandType,
		ErrorCode:    code,
		ErrorMessage: cause.Error(),
		Attempts:     cmd.Attempts + 1,
	})
	if err != nil {
		logrus.Errorf("dead letter enqueue failed for %s: %v", cmd.CommandID, err)
	}
}
