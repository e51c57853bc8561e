package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/roompool/internal/app"
	"github.com/vovakirdan/roompool/internal/auth"
	"github.com/vovakirdan/roompool/internal/config"
	applog "github.com/vovakirdan/roompool/internal/log"
	"github.com/vovakirdan/roompool/internal/service/rooms"
	"github.com/vovakirdan/roompool/internal/store/sqlite"
)

type rootOptions struct {
	configPath string
	overrides  config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "roompool",
		Short:        "Pool of private chat rooms handed out for exclusive use",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default ./config.yaml)")
	flags.StringVar(&opts.overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.overrides.DatabasePath, "db", "", "path to the SQLite database")

	root.AddCommand(
		newServeCmd(opts),
		newRegisterCmd(opts),
		newListCmd(opts),
		newTokenCmd(opts),
	)
	return root
}

// load resolves configuration and builds the logger for a command.
func (o *rootOptions) load() (config.Config, *zerolog.Logger, error) {
	bootstrap := applog.New("info", "console")

	cfg, path, err := config.Load(bootstrap, o.configPath)
	if err != nil {
		return cfg, bootstrap, err
	}
	cfg.UpdateFrom(o.overrides)

	logger := applog.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Msg("configuration loaded")
	return cfg, logger, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var serveOverrides config.Config

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pool with its admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			cfg.UpdateFrom(serveOverrides)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, &cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&serveOverrides.Addr, "addr", "", "HTTP listen address")
	f.DurationVar(&serveOverrides.ReadHeaderTimeout, "read-header-timeout", 0, "HTTP read header timeout")
	f.DurationVar(&serveOverrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
	f.StringVar(&serveOverrides.Platform.Driver, "driver", "", "chat platform driver (memory, livekit)")
	return cmd
}

// openRegistry opens the configured database for the offline commands.
func openRegistry(cfg config.Config) (*rooms.Service, func(), error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("init store: %w", err)
	}
	return rooms.New(st), func() { _ = st.Close() }, nil
}

func newRegisterCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "register <space-id>",
		Short: "Register an existing platform space as a private room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			registry, closeStore, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return runRegister(cmd.Context(), registry, args[0], cmd.OutOrStdout())
		},
	}
}

func runRegister(ctx context.Context, registry *rooms.Service, spaceID string, out io.Writer) error {
	rec, err := registry.Register(ctx, spaceID)
	if err != nil {
		return err
	}
	if rec == nil {
		_, err = fmt.Fprintf(out, "%s is already registered\n", spaceID)
		return err
	}
	_, err = fmt.Fprintf(out, "registered %s as private room #%d\n", rec.SpaceID, rec.Number)
	return err
}

func newListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered private rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			registry, closeStore, err := openRegistry(cfg)
			if err != nil {
				return err
			}
			defer closeStore()

			return runList(cmd.Context(), registry, cmd.OutOrStdout())
		},
	}
}

func runList(ctx context.Context, registry *rooms.Service, out io.Writer) error {
	records, err := registry.ListAll(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSPACE\tREGISTERED")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\n", rec.Number, rec.SpaceID, rec.CreatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var subject string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an admin token for the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}

			token, err := auth.NewService(app.JWTConfig(&cfg)).IssueToken(subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "operator name recorded in the token")
	return cmd
}
