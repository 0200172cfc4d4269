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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/quantaledger/bridge/config"
	"github.com/quantaledger/bridge/database"
	"github.com/quantaledger/bridge/internal/notification"
)

// Bridge represents the CLI application, encapsulating the root Cobra command.
type Bridge struct {
	cmd *cobra.Command
}

// bridgeInstance holds the shared runtime pieces commands build on: the
// datasource and the loaded configuration.
type bridgeInstance struct {
	ds  database.IDataSource
	cnf *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and connects the datasource before any
// subcommand runs.
func preRun(app *bridgeInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		db, err := database.NewDataSource(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(fmt.Errorf("error getting datasource: %v", err))
		}

		app.ds = db
		app.cnf = cnf
		return nil
	}
}

// NewCLI assembles the command tree: the query server, the outbox
// dispatcher, the event projector, the dead-letter workers and migrations.
func NewCLI() *Bridge {
	var configFile string
	b := &bridgeInstance{}

	var rootCmd = &cobra.Command{
		Use:   "bridge",
		Short: "CQRS bridge between a relational store and a permissioned ledger",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./bridge.json", "Configuration file for the bridge")
	rootCmd.PersistentPreRunE = preRun(b, &configFile)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(dispatcherCommands(b))
	rootCmd.AddCommand(projectorCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(migrateCommands(b))

	return &Bridge{cmd: rootCmd}
}

func (w Bridge) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
