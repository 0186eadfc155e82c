// intra runs the 42 intranet session core as a local companion server.
//
// Usage:
//
//	intra serve           - Serve the companion HTTP API
//	intra login           - Serve until one login completes, then print it
//	intra authorize-url   - Print the URL that starts a login
//	intra logout          - Remove tokens kept in the OS keychain
//	intra version         - Print the build version
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/app"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/spf13/cobra"
)

var (
	configPath   string
	loginTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "intra",
	Short: "42 intranet session companion",
	Long: `intra logs a user into the 42 intranet with the OAuth2 authorization-code
flow and serves their profile, user lookups and project listings over a
local HTTP API.

Configuration comes from an optional YAML file (--config) and the
environment:

` + app.Usage(),
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the companion HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApplication()
		if err != nil {
			return err
		}
		return application.Run()
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Serve until one login completes, then print the logged-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := newApplication()
		if err != nil {
			return err
		}

		serverErrors, err := application.Start()
		if err != nil {
			return err
		}
		defer func() { _ = application.Shutdown() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, loginTimeout)
		defer cancel()

		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in your browser to log in:\n\n  %s\n\n", application.Sessions().AuthorizationURL())

		go func() {
			if err := <-serverErrors; err != nil && !errors.Is(err, http.ErrServerClosed) {
				application.Logger().Error("server failed", "error", err)
				cancel()
			}
		}()

		login, err := application.WaitForLogin(ctx)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		p := login.Profile
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (id %d, %s)\n", p.Login, p.ID, p.Email)
		if p.Level != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "Level %.2f, wallet %d\n", *p.Level, p.Wallet)
		}
		return nil
	},
}

var authorizeURLCmd = &cobra.Command{
	Use:   "authorize-url",
	Short: "Print the URL that starts a login",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		client := intrasdk.NewClient(intrasdk.Config{
			Credentials: cfg.Credentials(),
			BaseURL:     cfg.APIURL,
		}, intrasdk.NewSessionStore(nil, nil))

		fmt.Fprintln(cmd.OutOrStdout(), client.BuildAuthorizationURL())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove tokens kept in the OS keychain",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(configPath)
		if err != nil {
			return err
		}

		if err := intrasdk.NewKeyringPersister(cfg.KeyringService, "").Delete(); err != nil {
			return fmt.Errorf("remove stored tokens: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stored tokens removed.")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), app.BuildVersion)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "how long to wait for the browser login")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(authorizeURLCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(versionCmd)
}

func newApplication() (*app.Application, error) {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
