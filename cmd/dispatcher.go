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
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/quantaledger/bridge"
)

// dispatcherCommands runs the outbox dispatcher and the reconciliation sweep
// in one process. Multiple instances can run against the same outbox; row
// claims keep them from stepping on each other.
func dispatcherCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dispatcher",
		Short: "start the outbox dispatcher",
		Run: func(cmd *cobra.Command, args []string) {
			clients, ordinary, err := setupLedger(b.cnf)
			if err != nil {
				log.Fatalf("ledger setup failed: %v", err)
			}

			queue, err := bridge.NewQueue(b.cnf)
			if err != nil {
				log.Fatalf("queue setup failed: %v", err)
			}
			defer func() { _ = queue.Close() }()

			dispatcher := bridge.NewDispatcher(b.ds, clients, queue, b.cnf)
			reconciler := bridge.NewReconciler(b.ds, ordinary, b.cnf)

			dispatcher.Start()
			reconciler.Start()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Println("shutting down dispatcher")
			reconciler.Stop()
			dispatcher.Stop()
		},
	}

	return cmd
}
