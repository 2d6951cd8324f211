package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/navauth/authflow"
)

// commandNavigator records where the flow sent the user. A terminal has
// nowhere to go, so it only logs.
type commandNavigator struct{}

func (commandNavigator) Navigate(path string) {
	logger.Debug("flow navigated", slog.String("path", path))
}

func flowCommand(use, short string, mode authflow.Mode) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cl, closeFn, err := bootClient(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			flow := authflow.New(cl.Gateway, cl.Store,
				authflow.WithCSRF(cl.CSRF),
				authflow.WithCookies(cl.Jar),
				authflow.WithNotifier(terminalNotifier{out: out}),
				authflow.WithNavigator(commandNavigator{}),
				authflow.WithTiming(authflow.Timing{
					CountdownSeconds: cfg.Flow.OTPCountdown,
					Tick:             time.Second,
					CloseDelay:       cfg.Flow.CloseDelay,
					SuccessDelay:     cfg.Flow.SuccessDelay,
				}),
				authflow.WithLogger(logger),
			)
			defer flow.Shutdown()

			if err := flow.Open(mode); err != nil {
				return err
			}
			if err := runFlow(ctx, flow, surveyPrompter{}, out); err != nil {
				return err
			}
			if cl.Store.LoggedIn() {
				fmt.Fprintln(out, "You are signed in.")
			} else {
				fmt.Fprintln(out, "Your password was changed. Sign in again with `navauth login`.")
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(
		flowCommand("login", "Sign in with email, password and a one-time code", authflow.ModeLogin),
		flowCommand("signup", "Create an account", authflow.ModeSignup),
		flowCommand("forgot-password", "Reset a forgotten password", authflow.ModeForgot),
	)
}
