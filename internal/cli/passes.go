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

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-capsule/internal/tasks"
)

// runPass builds the runtime and executes one scheduled pass.
func runPass(pass func(*tasks.Runner, context.Context) error) error {
	rt, err := buildRuntime()
	if err != nil {
		return err
	}
	defer rt.close()
	return pass(rt.runner, context.Background())
}

// releasePassCmd attempts release for every capsule with deposited shares
var releasePassCmd = &cobra.Command{
	Use:   "release-pass",
	Short: "Attempt release for every capsule with deposited shares",
	Long: `Attempt release for every unreleased capsule holding at least one
deposited share, once the release grace period has elapsed since the first
deposit. Capsules still below the recombination threshold are skipped; data
integrity faults are logged for operator attention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass((*tasks.Runner).ReleasePass)
	},
}

// invitationsCmd sends the one-time trustee invitation round
var invitationsCmd = &cobra.Command{
	Use:   "invitations",
	Short: "Invite trustees of capsules whose collection has started",
	Long: `Send the one-time invitation round for every capsule whose first
share was deposited longer than the grace period ago. Each pass sends at
most one round per capsule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass((*tasks.Runner).InvitationPass)
	},
}

// hintsCmd notifies owners about stale unconfirmed recipients
var hintsCmd = &cobra.Command{
	Use:   "hints",
	Short: "Notify owners about long-unconfirmed recipients",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass((*tasks.Runner).HintPass)
	},
}

// remindersCmd sends periodic owner liveness reminders
var remindersCmd = &cobra.Command{
	Use:   "reminders",
	Short: "Send periodic owner liveness reminders",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPass((*tasks.Runner).ReminderPass)
	},
}
