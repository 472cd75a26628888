package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/hostbridge"
	"pkt.systems/hostbridge/bridgeapi"
	"pkt.systems/hostbridge/core"
	"pkt.systems/hostbridge/internal/appconfig"
	"pkt.systems/hostbridge/schema"
	"pkt.systems/pslog"
)

const stopTimeout = 10 * time.Second

func newLogger(w io.Writer, noColor bool) pslog.Logger {
	return pslog.LoggerFromEnv(
		pslog.WithEnvWriter(w),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, NoColor: noColor}),
	)
}

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	var enableMetrics bool
	var captureLogs bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge in front of the reference scene host",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Bridge.Addr = addr
			}
			if enableMetrics {
				cfg.Metrics.Enabled = true
			}
			if err := appconfig.Validate(cfg); err != nil {
				return err
			}

			ctx := cmd.Context()
			console := core.NewLogBuffer(cfg.Host.ConsoleCapacity)
			logger := pslog.Ctx(ctx)
			if captureLogs {
				logger = newLogger(io.MultiWriter(cmd.ErrOrStderr(), console.Writer(schema.LogInfo)), true)
				ctx = pslog.ContextWithLogger(ctx, logger)
			}

			server, err := hostbridge.New(toServerConfig(cfg), hostbridge.ServerDeps{
				Console: console,
				Logger:  logger,
			}, hostbridge.WithReferenceScene())
			if err != nil {
				return err
			}

			sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := server.Start(context.WithoutCancel(ctx)); err != nil {
				return err
			}
			console.Log(schema.LogInfo, "bridge listening on "+server.Addr())
			go func() {
				<-sigCtx.Done()
				stopServer(logger, server)
			}()

			waitErr := server.Wait()
			stopServer(logger, server)
			return waitErr
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides bridge.addr)")
	cmd.Flags().BoolVar(&enableMetrics, "metrics", false, "serve Prometheus metrics on /metrics")
	cmd.Flags().BoolVar(&captureLogs, "capture-logs", false, "copy bridge log lines into the host console")
	return cmd
}

func stopServer(logger pslog.Logger, server hostbridge.Server) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		logger.Warn("server stop failed", "err", err)
	}
}

func toServerConfig(cfg appconfig.Config) hostbridge.ServerConfig {
	return hostbridge.ServerConfig{
		Bridge: bridgeapi.Config{
			Addr:           cfg.Bridge.Addr,
			MaxSessions:    cfg.Bridge.MaxSessions,
			ReadLimitBytes: cfg.Bridge.ReadLimitBytes,
			WriteTimeout:   time.Duration(cfg.Bridge.WriteTimeoutSeconds) * time.Second,
			PingInterval:   time.Duration(cfg.Bridge.PingIntervalSeconds) * time.Second,
			RateLimit:      cfg.Bridge.RateLimitPerSecond,
			RateBurst:      cfg.Bridge.RateLimitBurst,
			EnableMetrics:  cfg.Metrics.Enabled,
		},
		TickInterval:    time.Duration(cfg.Host.TickIntervalMS) * time.Millisecond,
		ConsoleCapacity: cfg.Host.ConsoleCapacity,
	}
}
