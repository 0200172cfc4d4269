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
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantaledger/bridge"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/internal/cache"
	redlock "github.com/quantaledger/bridge/internal/lock"
	redis_db "github.com/quantaledger/bridge/internal/redis-db"
)

// projectorCommands runs the event projector. Any number of instances can be
// started; the Redis lock elects one active consumer per channel and the
// rest stand by.
func projectorCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projector",
		Short: "start the read-model projector",
		Run: func(cmd *cobra.Command, args []string) {
			_, ordinary, err := setupLedger(b.cnf)
			if err != nil {
				log.Fatalf("ledger setup failed: %v", err)
			}

			rds, err := redis_db.NewRedisClient([]string{b.cnf.Redis.Dns})
			if err != nil {
				log.Fatalf("redis setup failed: %v", err)
			}
			ca, err := cache.NewCache()
			if err != nil {
				log.Fatalf("cache setup failed: %v", err)
			}

			lockKey := fmt.Sprintf("bridge:projector:%s:%s", b.cnf.Projector.Name, b.cnf.Ledger.Channel)
			locker := redlock.NewLocker(rds.Client(), lockKey, database.GenerateUUIDWithSuffix("projector"))

			projector := bridge.NewProjector(b.ds, ordinary, locker, ca, b.cnf)

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				quit := make(chan os.Signal, 1)
				signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
				<-quit
				log.Println("shutting down projector")
				cancel()
			}()

			if err := projector.Start(ctx); err != nil && ctx.Err() == nil {
				log.Fatalf("projector stopped: %v", err)
			}
		},
	}

	return cmd
}
