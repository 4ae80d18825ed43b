// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-capsule.
//
// go-capsule is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli wires the capsule service command line: the HTTP server and
// the scheduled passes a cron job invokes.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "capsuled",
	Short: "capsuled - dead-man's-switch capsule release service",
	Long: `capsuled runs the capsule release core: it accepts trustee share
deposits, recombines the capsule secret once enough shares arrive, and
re-encrypts it for each confirmed recipient under a freshly issued
password.

The serve command runs the HTTP API; the pass commands are the scheduled
entry points a cron job invokes:

  release-pass   attempt release for every capsule with deposited shares
  invitations    invite trustees once the grace period has elapsed
  hints          notify owners about long-unconfirmed recipients
  reminders      send periodic owner liveness reminders`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "/etc/capsule/config.yaml",
		"path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(releasePassCmd)
	rootCmd.AddCommand(invitationsCmd)
	rootCmd.AddCommand(hintsCmd)
	rootCmd.AddCommand(remindersCmd)
	rootCmd.AddCommand(versionCmd)
}

// configPath resolves the configuration file path, honoring the
// CAPSULE_CONFIG environment override.
func configPath() string {
	if env := os.Getenv("CAPSULE_CONFIG"); env != "" {
		return env
	}
	return configFile
}
