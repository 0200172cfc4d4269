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

	"github.com/spf13/cobra"

	"github.com/quantaledger/bridge"
)

// workerCommands starts the dead-letter worker: it drains the queue the
// dispatcher publishes exhausted commands to and fires operator
// notifications.
func workerCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start the dead-letter notification workers",
		Run: func(cmd *cobra.Command, args []string) {
			srv, mux, err := bridge.NewDeadLetterServer(b.cnf)
			if err != nil {
				log.Fatalf("worker setup failed: %v", err)
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run worker server: %v", err)
			}
		},
	}

	return cmd
}
