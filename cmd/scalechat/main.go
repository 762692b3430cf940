// scalechat: LLM chat gateway.
//
// Commands:
//
//	scalechat serve     start the HTTP/WebSocket/MCP gateway
//	scalechat migrate   apply pending SQLite migrations and exit
//	scalechat version   print build information
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matiasleandrokruk/scalechat/internal/api"
	"github.com/matiasleandrokruk/scalechat/internal/api/handlers"
	"github.com/matiasleandrokruk/scalechat/internal/domain/audit"
	"github.com/matiasleandrokruk/scalechat/internal/domain/chat"
	"github.com/matiasleandrokruk/scalechat/internal/domain/conversation"
	"github.com/matiasleandrokruk/scalechat/internal/domain/session"
	"github.com/matiasleandrokruk/scalechat/internal/infra/config"
	"github.com/matiasleandrokruk/scalechat/internal/infra/eventbus"
	"github.com/matiasleandrokruk/scalechat/internal/infra/logger"
	"github.com/matiasleandrokruk/scalechat/internal/infra/sqlite"
	"github.com/matiasleandrokruk/scalechat/internal/server"
	"github.com/matiasleandrokruk/scalechat/internal/version"
)

const (
	serviceName     = "scalechat"
	shutdownTimeout = 15 * time.Second
)

// usageError marks a command-line parsing failure (exit code 2).
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(runContext(ctx, os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	return runContext(context.Background(), args, out)
}

func runContext(ctx context.Context, args []string, out io.Writer) int {
	root := newRootCmd(out)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	var uerr usageError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &uerr):
		fmt.Fprintln(out, "error:", err) //nolint:errcheck
		return 2
	default:
		fmt.Fprintln(out, "error:", err) //nolint:errcheck
		return 1
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "LLM chat gateway with session routing",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.String()) //nolint:errcheck
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(out)
	root.SetVersionTemplate(version.String() + "\n")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageError{err} })
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	root.AddCommand(newServeCmd(), newMigrateCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(version.Get())
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String()) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print build information as JSON")
	return cmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			db, err := sqlite.NewDB(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck

			applied, err := sqlite.MigrateUp(cmd.Context(), db)
			if err != nil {
				return err
			}
			current, err := sqlite.MigrationVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			log.Info("migrations applied", "applied", applied, "version", current, "database", cfg.DatabasePath)
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema version %d\n", applied, current) //nolint:errcheck
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			if port, _ := cmd.Flags().GetInt("port"); port != 0 {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().Int("port", 0, "listen port (overrides PORT)")
	return cmd
}

// bootstrap loads the dotenv file, the configuration and the root logger.
func bootstrap(cmd *cobra.Command) (config.Config, *slog.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Config{}, nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, log.With("service", serviceName), nil
}

// serve wires every component and blocks until ctx is canceled or the
// listener fails.
func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	db, err := sqlite.NewDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	applied, err := sqlite.MigrateUp(ctx, db)
	if err != nil {
		return err
	}
	log.Info("database ready", "path", cfg.DatabasePath, "migrations_applied", applied)

	bus := eventbus.New()
	auditSvc := audit.NewService(db)
	recorder := audit.NewRecorder(auditSvc, bus, log.With("component", "audit"))

	store := conversation.NewStore(conversation.WithMaxMessages(cfg.HistoryMaxMessages))
	orch := chat.New(store,
		chat.WithLogger(log.With("component", "orchestrator")),
		chat.WithEventBus(bus),
	)
	state, err := orch.Initialize(ctx, cfg.ProviderConfig())
	if err != nil {
		return err
	}
	if state == chat.StateDegraded {
		log.Warn("serving mock responses", "reason", orch.Status().DegradedReason)
	}

	sessions := session.NewManager(
		session.WithLogger(log.With("component", "sessions")),
		session.WithEventBus(bus),
	)

	router := api.NewRouter(api.Deps{
		Chat:     orch,
		Sessions: sessions,
		Events:   auditSvc,
		Info: handlers.ServiceInfo{
			Name:        serviceName,
			Version:     version.Version,
			Environment: cfg.Environment,
			PodName:     cfg.PodName,
			Namespace:   cfg.PodNamespace,
		},
		WS:     handlers.WSConfig{RateLimit: cfg.WSRateLimit, RateBurst: cfg.WSRateBurst},
		Logger: log,
	})

	srvCfg := server.DefaultConfig()
	srvCfg.Host, srvCfg.Port = cfg.Host, cfg.Port
	srv := server.NewServer(router, srvCfg, log.With("component", "server"))
	srv.OnShutdown("sessions", func(context.Context) error {
		sessions.CloseAll()
		return nil
	})
	srv.OnShutdown("conversations", func(context.Context) error {
		orch.Close()
		return nil
	})
	srv.OnShutdown("eventbus", func(context.Context) error {
		bus.Close()
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	// The recorder drains until the bus is closed by the shutdown hook.
	g.Go(func() error { return recorder.Run(context.WithoutCancel(gctx)) })
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("scalechat stopped")
	return nil
}
