package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xdg/tether/internal/audit"
	"github.com/xdg/tether/internal/auth"
	"github.com/xdg/tether/internal/channel"
	"github.com/xdg/tether/internal/config"
	"github.com/xdg/tether/internal/engine"
	"github.com/xdg/tether/internal/term"
	"github.com/xdg/tether/internal/tlog"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent",
	Long: `Run the tether agent in the foreground.

The agent loads its configuration, opens the credential store, and
listens on the control socket for command requests. It shuts down
cleanly on SIGINT or SIGTERM, killing any still-running commands.`,
	RunE: runAgent,
}

var (
	runConfigPath string
	runDebug      bool
)

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "config file (default "+config.Path()+")")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(runCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(runConfigPath)
	if err != nil {
		return err
	}

	debug := runDebug || cfg.Log.Level == "debug"
	if err := tlog.Configure(cfg.Log.File, debug, false); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}
	defer tlog.Close()
	if !debug {
		tlog.SetLevel(tlog.ParseLevel(cfg.Log.Level))
	}

	execTimeout, err := cfg.ExecTimeout()
	if err != nil {
		return err
	}

	store, err := auth.Open(cfg.Auth.CredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}
	if len(store.Users()) == 0 {
		term.Warn("credential store is empty; add a user with 'tether user add'")
	}

	var auditLog *audit.Logger
	if cfg.Log.Audit != "" {
		logger, f, err := audit.Open(cfg.Log.Audit)
		if err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer f.Close()
		auditLog = logger
	}

	eng := engine.New(engine.Config{
		MaxRunning:     cfg.Command.MaxRunning,
		ExecTimeout:    execTimeout,
		MaxOutputBytes: cfg.Command.MaxOutputBytes,
	}, store, auditLog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		eng.Run(ctx)
	}()

	srv := channel.NewServer(cfg.Listen, eng)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start control channel: %w", err)
	}
	term.Printf("tether agent listening on %s\n", srv.SocketPath())

	<-ctx.Done()
	tlog.Info("shutdown signal received")

	if err := srv.Stop(); err != nil {
		tlog.Warn("stopping control channel: %v", err)
	}
	<-engineDone

	return nil
}

// loadConfig loads from an explicit path when given, otherwise from the
// default location (seeding a default file on first run).
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.LoadFrom(path)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
