package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/navauth/refresh"
	"github.com/jmcleod/navauth/route"
)

var errNotSignedIn = errors.New("not signed in")

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a session is active",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cl, closeFn, err := bootClient(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		out := cmd.OutOrStdout()
		if !cl.Auth.Sync(ctx) {
			fmt.Fprintln(out, "Signed out.")
			return nil
		}
		fmt.Fprintln(out, "Signed in.")
		sess := cl.Store.Session()
		if exp, ok := refresh.Expiry(sess.BearerToken); ok {
			fmt.Fprintf(out, "  token expires: %s\n", exp.Local().Format(time.RFC1123))
		}
		fmt.Fprintf(out, "  remembered:    %t\n", sess.Persisted)
		profile, err := cl.Me(ctx)
		if err != nil {
			logger.Debug("profile unavailable", "error", err)
			return nil
		}
		fmt.Fprintf(out, "  account:       %s %s <%s>\n", profile.FirstName, profile.LastName, profile.Email)
		return nil
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Renew the session using the refresh cookie",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cl, closeFn, err := openClient(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		cl.CSRF.Fetch(ctx)
		res := cl.Refresh.Refresh(ctx)
		if !res.OK {
			return fmt.Errorf("refresh failed: %w", errNotSignedIn)
		}
		if res.Token == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "Session confirmed.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Session renewed.")
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print the current bearer token",
	Long:  `Prints the bearer token for use with other tools. Requires an active session.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cl, closeFn, err := openClient(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		d := route.Protect(cl.Store, cmd.CommandPath())
		if !d.Allow {
			return fmt.Errorf("%w: run `navauth login` and try %s again", errNotSignedIn, d.From)
		}
		fmt.Fprintln(cmd.OutOrStdout(), cl.Store.Token())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cl, closeFn, err := openClient(cfg)
		if err != nil {
			return err
		}
		defer closeFn()

		cl.CSRF.Fetch(ctx)
		if err := cl.Logout(ctx); err != nil {
			logger.Warn("backend logout failed; local session cleared", "error", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, refreshCmd, tokenCmd, logoutCmd)
}
