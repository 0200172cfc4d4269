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
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/internal/cache"
	redlock "github.com/quantaledger/bridge/internal/lock"
	"github.com/quantaledger/bridge/ledger"
	"github.com/quantaledger/bridge/model"
)

const processedCacheTTL = 24 * time.Hour

// Projector consumes the ledger's ordered event stream and folds it into the
// relational read model. Exactly one instance is active per channel at a
// time, guarded by a session-scoped Redis lock; standbys poll for the lock
// and take over when the holder dies.
type Projector struct {
	ds        database.IDataSource
	client    ledger.Client
	locker    *redlock.Locker
	cache     cache.Cache
	name      string
	channel   string
	lockTTL   time.Duration
	reconnect *backoff.ExponentialBackOff
}

func NewProjector(ds database.IDataSource, client ledger.Client, locker *redlock.Locker, ca cache.Cache, conf *config.Configuration) *Projector {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = time.Duration(conf.Projector.ReconnectMaxElapsedMin) * time.Minute

	return &Projector{
		ds:        ds,
		client:    client,
		locker:    locker,
		cache:     ca,
		name:      conf.Projector.Name,
		channel:   conf.Ledger.Channel,
		lockTTL:   time.Duration(conf.Projector.LockTTLSec) * time.Second,
		reconnect: bo,
	}
}

// Start blocks until ctx is cancelled or the subscription is irrecoverably
// broken. It first wins the single-writer lock (waiting in standby as long
// as it takes), then consumes the stream from the durable checkpoint.
func (p *Projector) Start(ctx context.Context) error {
	if err := p.acquireLock(ctx); err != nil {
		return err
	}
	logrus.Infof("projector %s active on channel %s", p.name, p.channel)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lost := p.locker.KeepAlive(runCtx, p.lockTTL)
	go func() {
		select {
		case <-lost:
			logrus.Errorf("projector %s lost its lock, shutting down", p.name)
			cancel()
		case <-runCtx.Done():
		}
	}()
	defer func() {
		unlockCtx, unlockCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer unlockCancel()
		if err := p.locker.Unlock(unlockCtx); err != nil {
			logrus.Warnf("projector %s unlock: %v", p.name, err)
		}
	}()

	return p.run(runCtx)
}

func (p *Projector) acquireLock(ctx context.Context) error {
	for {
		err := p.locker.Lock(ctx, p.lockTTL)
		if err == nil {
			return nil
		}
		logrus.Debugf("projector %s standing by: %v", p.name, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.lockTTL):
		}
	}
}

// run is the reconnect loop. Each (re)subscription resumes strictly after the
// durable checkpoint, so nothing is lost across disconnects; the idempotency
// guard absorbs whatever the ledger redelivers around the boundary.
func (p *Projector) run(ctx context.Context) error {
	for {
		err := p.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			return nil
		}

		wait := p.reconnect.NextBackOff()
		if wait == backoff.Stop {
			return fmt.Errorf("projector %s gave up reconnecting: %w", p.name, err)
		}
		logrus.Warnf("projector %s stream broken, reconnecting in %s: %v", p.name, wait, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (p *Projector) consume(ctx context.Context) error {
	cp, err := p.ds.GetCheckpoint(ctx, p.name, p.channel)
	if err != nil {
		return err
	}
	logrus.Infof("projector %s resuming after %s", p.name, cp.Position)

	events, errs, err := p.client.Events(ctx, p.channel, cp.Position)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream for channel %s closed", p.channel)
			}
			if err := p.handleEvent(ctx, ev); err != nil {
				return err
			}
			p.reconnect.Reset()
		case streamErr := <-errs:
			return streamErr
		}
	}
}

// handleEvent applies one event exactly once. The cache tier answers the
// common redelivery case without a round trip; the durable processed-events
// marker inside ApplyEvent is the guarantee.
func (p *Projector) handleEvent(ctx context.Context, ev model.LedgerEvent) error {
	tracer := otel.Tracer("bridge.projector")
	ctx, span := tracer.Start(ctx, "ProjectEvent")
	defer span.End()

	key := processedEventKey(ev)
	var seen bool
	if err := p.cache.Get(ctx, key, &seen); err != nil {
		logrus.Debugf("processed-event cache lookup failed for %s: %v", key, err)
	}
	if seen {
		logrus.Debugf("skipping already-applied event %s at %s", ev.Type, ev.Ordinate)
		return nil
	}

	handler, known := p.handlerFor(ev.Type)
	if !known {
		// Newer ledger handlers emit types this projector predates. Advance
		// past them; a later deployment can rebuild the read model.
		logrus.Warnf("no handler for event type %s at %s, skipping", ev.Type, ev.Ordinate)
		handler = p.applyNoop
	}

	env, err := model.ParseEnvelope(ev.Payload)
	if err != nil {
		logrus.Errorf("undecodable payload for event %s at %s, advancing past it: %v", ev.Type, ev.Ordinate, err)
		handler = p.applyNoop
		env = model.PayloadEnvelope{}
	}

	err = p.ds.ApplyEvent(ctx, p.name, p.channel, ev, func(tx *sql.Tx) error {
		return handler(tx, ev, env)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("apply %s at %s: %w", ev.Type, ev.Ordinate, err)
	}

	if err := p.cache.Set(ctx, key, true, processedCacheTTL); err != nil {
		logrus.Debugf("processed-event cache store failed for %s: %v", key, err)
	}
	return nil
}

func processedEventKey(ev model.LedgerEvent) string {
	return fmt.Sprintf("bridge:processed:%s:%s:%d", ev.TxID, ev.Type, ev.Ordinate.Index)
}
