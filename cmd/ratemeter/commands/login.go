package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/ratemeter/internal/app"
	"github.com/florianilch/ratemeter/internal/credentials"
	"github.com/florianilch/ratemeter/internal/login"
	"github.com/florianilch/ratemeter/internal/tokensource"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in with your Claude account",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-browser",
				Usage: "print the authorization URL without opening a browser",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				var open login.Opener = login.OpenBrowser
				if cmd.Bool("no-browser") {
					open = nil
				}
				flow := login.NewFlow(a.Authorizer(), open)
				return runLogin(ctx, flow, a.Service(), stdin(cmd), stdout(cmd))
			})
		},
	}
}

// runLogin drives flow from lines read on in until a code is accepted, input
// ends or ctx is cancelled.
func runLogin(ctx context.Context, flow *login.Flow, service *app.Service, in io.Reader, out io.Writer) error {
	authURL := flow.Start(ctx)
	fmt.Fprintf(out, "Open this URL in your browser and authorize ratemeter:\n\n  %s\n\n", authURL)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		fmt.Fprint(out, "Paste the code or callback URL: ")

		var line string
		select {
		case <-ctx.Done():
			flow.Cancel()
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				flow.Cancel()
				fmt.Fprintln(out)
				return errors.New("login cancelled")
			}
			line = l
		}

		if strings.TrimSpace(line) == "" {
			continue
		}

		cred, err := flow.Submit(ctx, line)
		switch {
		case errors.Is(err, login.ErrEmptyCode):
			fmt.Fprintln(out, "No authorization code found in that input.")
			continue
		case err != nil:
			var exchangeErr *tokensource.ExchangeError
			if errors.As(err, &exchangeErr) {
				fmt.Fprintf(out, "Login failed: %v\n", exchangeErr)
				continue
			}
			return err
		}

		printLoggedIn(ctx, out, service, cred)
		return nil
	}
}

func printLoggedIn(ctx context.Context, out io.Writer, service *app.Service, cred *credentials.Credential) {
	// The first fetch also stores the account profile
	result := service.Fetch(ctx)

	who := "your account"
	if info := service.UserInfo(ctx); info != nil && info.Email != "" {
		who = info.Email
	}
	fmt.Fprintf(out, "Logged in as %s.\n", who)

	if !cred.HasRefreshToken() {
		fmt.Fprintln(out, "No refresh token was issued; you will need to log in again when the session expires.")
	}
	if result.Live.IsFailure() {
		fmt.Fprintf(out, "Usage is not available yet (%s).\n", result.Live.Label())
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "delete stored credentials, cached usage and account details",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service().Logout(ctx); err != nil {
					return err
				}
				fmt.Fprintln(stdout(cmd), "Logged out.")
				return nil
			})
		},
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:  "import",
		Usage: "reuse the login from Claude Code's credentials file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Usage: "credentials file (default ~/.claude/.credentials.json)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.String("file")
			if path == "" {
				var err error
				if path, err = credentials.ClaudeCodePath(); err != nil {
					return err
				}
			}

			return runWithApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				cred, err := credentials.ReadClaudeCode(path)
				if err != nil {
					return err
				}
				// Cached usage and profile belong to whatever session came before
				if err := a.Service().Logout(ctx); err != nil {
					return err
				}
				if err := a.Repository().Save(ctx, cred); err != nil {
					return fmt.Errorf("saving credentials: %w", err)
				}
				fmt.Fprintf(stdout(cmd), "Imported credentials from %s.\n", path)
				return nil
			})
		},
	}
}
