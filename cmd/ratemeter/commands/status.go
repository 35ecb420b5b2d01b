package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/ratemeter/internal/app"
	"github.com/florianilch/ratemeter/internal/render"
	"github.com/florianilch/ratemeter/internal/usage"
)

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Usage:   "output format (auto|color|plain|json|yaml)",
		Value:   string(render.FormatAuto),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show current usage",
		Flags: []cli.Flag{
			outputFlag(),
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "fetch live usage instead of showing the cached snapshot",
			},
			&cli.BoolFlag{
				Name:  "preview",
				Usage: "show placeholder figures without touching the network",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := render.ParseFormat(cmd.String("output"))
			if err != nil {
				return err
			}

			if cmd.Bool("preview") {
				data := usage.Placeholder(time.Now())
				out := render.Output{Result: app.Result{Data: data, Live: data.Status}}
				return render.Write(stdout(cmd), format, out, time.Now())
			}

			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				service := a.Service()

				var result app.Result
				if cmd.Bool("refresh") {
					result = service.Fetch(ctx)
				} else {
					result = service.Snapshot(ctx)
				}

				out := render.Output{Result: result, User: service.UserInfo(ctx)}
				return render.Write(stdout(cmd), format, out, time.Now())
			})
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a valid access token, refreshing it if needed",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				token, ok := a.Service().Token(ctx)
				if !ok {
					return errors.New("not logged in, run `ratemeter login`")
				}
				fmt.Fprintln(stdout(cmd), token)
				return nil
			})
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "refresh and print usage periodically (SIGUSR1 refreshes now)",
		Flags: []cli.Flag{
			outputFlag(),
			&cli.DurationFlag{
				Name:  "watch--interval",
				Usage: "time between fetches",
				Value: app.DefaultConfigWatchInterval,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			format, err := render.ParseFormat(cmd.String("output"))
			if err != nil {
				return err
			}

			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				triggers, stop := refreshSignals()
				defer stop()

				w := stdout(cmd)
				redraw := format == render.FormatColor || (format == render.FormatAuto && render.IsTerminal(w))

				return a.Watch(ctx, func(ctx context.Context, result app.Result) {
					// A concurrent logout elsewhere wins over a result fetched before it
					if !a.Service().LoggedIn(ctx) {
						result = a.Service().Snapshot(ctx)
					}
					if redraw {
						fmt.Fprint(w, "\033[H\033[2J")
					}
					out := render.Output{Result: result, User: a.Service().UserInfo(ctx)}
					if err := render.Write(w, format, out, time.Now()); err != nil {
						slog.ErrorContext(ctx, "failed to render usage", "error", err)
					}
				}, triggers)
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "serve usage over a local HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
			&cli.DurationFlag{
				Name:  "watch--interval",
				Usage: "time between background fetches",
				Value: app.DefaultConfigWatchInterval,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				triggers, stop := refreshSignals()
				defer stop()

				slog.InfoContext(ctx, "starting")
				if err := a.Serve(ctx, triggers); err != nil {
					return fmt.Errorf("server stopped: %w", err)
				}
				slog.InfoContext(ctx, "stopped gracefully")
				return nil
			})
		},
	}
}
