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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-capsule/internal/rest"
	"github.com/jeremyhahn/go-capsule/pkg/ratelimit"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 30 * time.Second

// serveCmd runs the HTTP API server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capsule HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := buildRuntime()
		if err != nil {
			return err
		}
		defer rt.close()

		var jwtCfg *rest.JWTConfig
		if rt.cfg.Auth.Enabled && rt.cfg.Auth.JWT != nil {
			jwtCfg = &rest.JWTConfig{
				Secret:   []byte(rt.cfg.Auth.JWT.Secret),
				Issuer:   rt.cfg.Auth.JWT.Issuer,
				Audience: rt.cfg.Auth.JWT.Audience,
			}
		}

		var limiter *ratelimit.Limiter
		if rt.cfg.RateLimit.Enabled {
			limiter = ratelimit.New(&ratelimit.Config{
				Enabled:           true,
				RequestsPerMinute: rt.cfg.RateLimit.RequestsPerMinute,
				Burst:             rt.cfg.RateLimit.Burst,
			})
			defer limiter.Stop()
		}

		server, err := rest.NewServer(&rest.Config{
			Host:      rt.cfg.Server.Host,
			Port:      rt.cfg.Server.Port,
			Service:   rt.service,
			Notifier:  rt.notifier,
			JWT:       jwtCfg,
			RateLimit: limiter,
			Health:    rt.checker,
			Version:   Version,
			Metrics:   rt.cfg.Metrics.Enabled,
			Logger:    rt.log,
		})
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			rt.log.Info("received signal, shutting down", "signal", sig)
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Stop(ctx)
		}
	},
}
