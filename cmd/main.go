/*
Copyright 2025 Cloak Finance Authors.

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

	"github.com/cloakfinance/cloak"
	"github.com/cloakfinance/cloak/config"
	"github.com/cloakfinance/cloak/database"
	"github.com/cloakfinance/cloak/internal/notification"
)

// Cloak represents the CLI application, encapsulating the root Cobra command.
type Cloak struct {
	cmd *cobra.Command
}

// cloakInstance holds the runtime Cloak instance and its configuration,
// shared by every subcommand.
type cloakInstance struct {
	cloak *cloak.Cloak
	cnf   *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and initializes the Cloak instance before
// any command executes.
func preRun(app *cloakInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("cloak.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newCloak, err := setupCloak(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.cloak = newCloak
		app.cnf = cnf

		return nil
	}
}

// setupCloak connects to the data source and builds the Cloak instance.
func setupCloak(cfg *config.Configuration) (*cloak.Cloak, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newCloak, err := cloak.NewCloak(db)
	if err != nil {
		return nil, fmt.Errorf("error creating cloak: %v", err)
	}
	return newCloak, nil
}

// NewCLI creates the command-line interface for the Cloak application.
func NewCLI() *Cloak {
	var configFile string
	b := &cloakInstance{}

	var rootCmd = &cobra.Command{
		Use:   "cloak",
		Short: "Confidential aggregation ledger",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./cloak.json", "Configuration file for the cloak server")

	rootCmd.PersistentPreRunE = preRun(b)

	rootCmd.AddCommand(serverCommands(b))
	rootCmd.AddCommand(workerCommands(b))
	rootCmd.AddCommand(configCommands())

	return &Cloak{cmd: rootCmd}
}

func (w Cloak) executeCLI() {
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
