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
	"fmt"
	"strings"
	"time"

	"github.com/jeremyhahn/go-capsule/internal/config"
	"github.com/jeremyhahn/go-capsule/internal/notify"
	"github.com/jeremyhahn/go-capsule/internal/tasks"
	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	filestore "github.com/jeremyhahn/go-capsule/pkg/capsule/store/file"
	"github.com/jeremyhahn/go-capsule/pkg/capsule/store/memory"
	"github.com/jeremyhahn/go-capsule/pkg/health"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
	"github.com/jeremyhahn/go-capsule/pkg/metrics"
	"github.com/jeremyhahn/go-capsule/pkg/recombine"
	"github.com/jeremyhahn/go-capsule/pkg/tokens"
)

// runtime holds the wired components every command operates on.
type runtime struct {
	cfg      *config.Config
	log      *logging.Logger
	store    capsule.Store
	service  *capsule.Service
	notifier notify.Notifier
	runner   *tasks.Runner
	checker  *health.Checker
}

// buildRuntime loads the configuration and wires store, combiner, service,
// notifier and task runner.
func buildRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}

	debug := verbose || strings.EqualFold(cfg.Logging.Level, "debug")
	log := logging.NewLogger(debug)
	metrics.SetEnabled(cfg.Metrics.Enabled)

	var store capsule.Store
	switch cfg.Storage.Backend {
	case "file":
		store, err = filestore.New(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
	default:
		store = memory.New()
	}

	var combiner recombine.Combiner
	switch cfg.Release.Combiner {
	case "exec":
		combiner = &recombine.ExecCombiner{
			Path:    cfg.Release.ExecPath,
			Timeout: cfg.Release.ExecTimeout.Std(),
		}
	default:
		combiner, err = recombine.NewShamirCombiner(cfg.Release.Threshold)
		if err != nil {
			return nil, err
		}
	}

	issuer, err := tokens.NewIssuerWithClock([]byte(cfg.Tokens.Key), cfg.Tokens.Window.Std(), time.Now)
	if err != nil {
		return nil, err
	}

	service, err := capsule.NewService(&capsule.ServiceConfig{
		Store:          store,
		Combiner:       combiner,
		Tokens:         issuer,
		PasswordLength: cfg.Release.PasswordLength,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	notifier := notify.NewLogNotifier(log)
	runner, err := tasks.NewRunner(&tasks.Config{
		Store:           store,
		Service:         service,
		Notifier:        notifier,
		Logger:          log,
		ReleaseGrace:    cfg.Release.Grace.Std(),
		InvitationGrace: cfg.Schedule.InvitationGrace.Std(),
		HintInactivity:  cfg.Schedule.HintInactivity.Std(),
		RemindInterval:  cfg.Schedule.RemindInterval.Std(),
	})
	if err != nil {
		return nil, err
	}

	checker := health.NewChecker()
	checker.Register("store", health.StoreCheck(store))

	return &runtime{
		cfg:      cfg,
		log:      log,
		store:    store,
		service:  service,
		notifier: notifier,
		runner:   runner,
		checker:  checker,
	}, nil
}

// close releases the runtime's resources.
func (rt *runtime) close() {
	if err := rt.store.Close(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "failed to close store: %v\n", err)
	}
}
