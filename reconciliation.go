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

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/ledger"
)

const reconcileSweepLimit = 100

// Reconciler resolves the ambiguity window: rows stuck in SUBMITTED because
// a worker died between sending the transaction and recording the outcome.
// The ledger is the source of truth; a commit found under the row's
// idempotency key finalizes it, no commit returns it to the retry pool.
type Reconciler struct {
	ds        database.IDataSource
	client    ledger.Client
	interval  time.Duration
	olderThan time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewReconciler(ds database.IDataSource, client ledger.Client, conf *config.Configuration) *Reconciler {
	return &Reconciler{
		ds:        ds,
		client:    client,
		interval:  time.Duration(conf.Dispatcher.ReconcileIntervalMin) * time.Minute,
		olderThan: time.Duration(conf.Dispatcher.LockTimeoutMin) * time.Minute,
		stopCh:    make(chan struct{}),
	}
}

func (r *Reconciler) Start() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		logrus.Infof("reconciliation sweep started, interval %s", r.interval)
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.Sweep(context.Background())
			}
		}
	}()
}

func (r *Reconciler) Stop() {
	close(r.stopCh)
	r.wg.Wait()
}

// Sweep resolves one batch of ambiguous rows. Lookup failures leave the row
// untouched for the next pass; ambiguity is only ever resolved against a
// definite answer from the ledger.
func (r *Reconciler) Sweep(ctx context.Context) {
	stuck, err := r.ds.GetStuckSubmittedCommands(ctx, r.olderThan, reconcileSweepLimit)
	if err != nil {
		logrus.Errorf("reconciliation query failed: %v", err)
		return
	}

	for i := range stuck {
		cmd := &stuck[i]
		log := logrus.WithField("command_id", cmd.CommandID)

		result, err := r.client.QueryByIdempotencyKey(ctx, cmd.IdempotencyKey)
		if err != nil {
			log.Warnf("reconciliation lookup failed, leaving row for next sweep: %v", err)
			continue
		}

		if result != nil {
			if err := r.ds.ResolveStuckCommandCommitted(ctx, cmd.CommandID, result.TxID, result.Block); err != nil {
				log.Errorf("resolve committed failed: %v", err)
				continue
			}
			log.Infof("ambiguous submission resolved committed: tx %s block %d", result.TxID, result.Block)
			continue
		}

		if err := r.ds.ResolveStuckCommandPending(ctx, cmd.CommandID); err != nil {
			log.Errorf("resolve pending failed: %v", err)
			continue
		}
		log.Info("ambiguous submission not found on ledger, returned to retry pool")
	}
}
