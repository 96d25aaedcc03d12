// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

// Package cli implements the passkeyd command-line interface.
package cli

import (
	"github.com/spf13/cobra"
)

var (
	// configFile is the path to the YAML configuration file.
	configFile string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passkeyd",
	Short: "passkeyd - WebAuthn Relying Party server",
	Long: `passkeyd is a WebAuthn Relying Party server implementing passwordless
registration and authentication ceremonies.

It issues challenges, verifies authenticator responses, and manages
credential lifecycle with strict signature-counter replay protection.
Credentials can be held in memory for development or in PostgreSQL for
production.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file (defaults apply when omitted)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
}
