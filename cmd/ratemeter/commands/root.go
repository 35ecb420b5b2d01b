package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/ratemeter/internal/app"
	"github.com/florianilch/ratemeter/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand(os.Stdin, os.Stdout).Run(ctx, args)
}

func newRootCommand(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:   "ratemeter",
		Usage:  "Claude subscription usage meter",
		Reader: stdin,
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelWarn.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "storage--type",
				Usage: "credential storage (file|keyring|sqlite)",
				Value: string(app.DefaultConfigStorageType),
			},
			&cli.StringFlag{
				Name:  "storage--dir",
				Usage: "directory for file and sqlite storage",
			},
			&cli.StringFlag{
				Name:  "telemetry--exporter",
				Usage: "log export (none|stdout|otlp-http|otlp-grpc)",
				Value: string(app.DefaultConfigTelemetryExporter),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			importCommand(),
			statusCommand(),
			tokenCommand(),
			watchCommand(),
			serveCommand(),
		},
	}
}

// runWithApp loads config, sets up logging, builds the app and hands it to fn.
func runWithApp(ctx context.Context, cmd *cli.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, observability.Options{
		Level:    cfg.LogLevel,
		Format:   string(cfg.LogFormat),
		Exporter: string(cfg.Telemetry.Exporter),
	})
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			fmt.Fprintln(os.Stderr, "ratemeter: flushing telemetry:", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close store", "error", err)
		}
	}()

	return fn(ctx, application)
}

func stdout(cmd *cli.Command) io.Writer {
	return cmd.Root().Writer
}

func stdin(cmd *cli.Command) io.Reader {
	return cmd.Root().Reader
}
