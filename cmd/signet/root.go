package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sufield/signet/internal/adapters/outbound/compose"
	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/config"
	"github.com/sufield/signet/internal/debug"
	"github.com/sufield/signet/internal/logging"
)

// errUsage marks command line mistakes cobra does not catch itself.
var errUsage = errors.New("usage error")

// Environment variables read by the CLI in addition to the SIGNET_* config
// overrides.
const (
	envKeychainPassword = "SIGNET_KEYCHAIN_PASSWORD"
	envTeamID           = "SIGNET_TEAM_ID"
)

// opener builds the application for one command.
type opener func(ctx context.Context, g globals, stderr io.Writer, configure func(*compose.Factory)) (*app.Application, error)

type globals struct {
	configPath string
	logLevel   string
	logFormat  string
}

type cli struct {
	stdout io.Writer
	stderr io.Writer
	open   opener

	// configure adjusts the adapter factory before bootstrap.
	configure func(*compose.Factory)

	globals globals
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "signet",
		Short:         "Provision iOS signing credentials and ship builds to the App Store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&c.globals.configPath, "config", "", "configuration file (default "+config.DefaultPath+")")
	pf.StringVar(&c.globals.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.globals.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(
		c.initCommand(),
		c.deployCommand(),
		c.setupCommand(),
		c.statusCommand(),
		c.versionCommand(),
	)
	return root
}

func (c *cli) execute(ctx context.Context, args []string) error {
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)
	return root.ExecuteContext(ctx)
}

// withApp bootstraps the application, runs fn and closes it again.
func (c *cli) withApp(ctx context.Context, fn func(a *app.Application) error) (err error) {
	a, err := c.open(ctx, c.globals, c.stderr, c.configure)
	if err != nil {
		return err
	}
	defer func() {
		// Close must still run hooks after the command context was cancelled.
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil && err == nil {
			err = fmt.Errorf("cleanup: %w", cerr)
		}
	}()
	return fn(a)
}

func openApp(ctx context.Context, g globals, stderr io.Writer, configure func(*compose.Factory)) (*app.Application, error) {
	s, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.logLevel != "" {
		s.LogLevel = g.logLevel
	}
	if g.logFormat != "" {
		s.LogFormat = g.logFormat
	}
	debug.Init()

	logger := logging.New(logging.Config{Level: s.LogLevel, Format: s.LogFormat, Output: stderr})
	if debug.Active.Enabled {
		logger.Debug("debug mode", "faults", debug.Faults.Snapshot())
	}
	factory := compose.NewFactory(s, logger, nil)
	if configure != nil {
		configure(factory)
	}
	return app.Bootstrap(ctx, s, factory, app.Options{Logger: logger})
}

// teamFlag falls back to SIGNET_TEAM_ID.
func teamFlag(team string) (string, error) {
	if team == "" {
		team = os.Getenv(envTeamID)
	}
	if team == "" {
		return "", fmt.Errorf("%w: --team is required", errUsage)
	}
	return team, nil
}

// credentialFlags registers the API key flags shared by init, deploy and
// setup-certificates.
func credentialFlags(cmd *cobra.Command, creds *app.Credentials) {
	f := cmd.Flags()
	f.StringVar(&creds.APIKeyID, "api-key-id", "", "App Store Connect API key id (default from config.env)")
	f.StringVar(&creds.APIIssuerID, "api-issuer-id", "", "App Store Connect API issuer id (default from config.env)")
	f.StringVar(&creds.AppleID, "apple-id", "", "Apple ID e-mail (default from config.env)")
}
