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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantaledger/bridge/api"
)

// serverCommands starts the HTTP surface: the producer write endpoint, the
// read-model queries and the staleness-aware health check.
func serverCommands(b *bridgeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "start the bridge query and command API",
		Run: func(cmd *cobra.Command, args []string) {
			router := api.NewAPI(b.ds).Router()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%s", b.cnf.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				log.Printf("bridge api listening on %s", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("api server error: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Printf("api shutdown error: %v", err)
			}
		},
	}

	return cmd
}
