package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sufield/signet/internal/adapters/outbound/keyring"
	"github.com/sufield/signet/internal/app"
)

func (c *cli) initCommand() *cobra.Command {
	var (
		req           app.InitRequest
		storePassword bool
	)
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Create the team directory, install the API key and write config.env",
		Example: "  signet init --team ABCDE12345 --app com.acme.app --scheme Acme --api-key AuthKey_KEY1234567.p8 --store-password",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			team, err := teamFlag(req.TeamID)
			if err != nil {
				return err
			}
			req.TeamID = team
			if storePassword {
				pw, err := keychainPassword(c)
				if err != nil {
					return err
				}
				req.KeychainPassword = pw
			}
			return c.withApp(cmd.Context(), func(a *app.Application) error {
				cfg, err := a.Pipeline.Init(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "Initialized team %s for %s (scheme %q, version %s)\n",
					cfg.TeamID, cfg.AppIdentifier, cfg.Scheme, cfg.MarketingVersion)
				if req.KeychainPassword != "" {
					fmt.Fprintln(c.stdout, "Container password stored in the system keyring")
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TeamID, "team", "", "team id ($"+envTeamID+")")
	f.StringVar(&req.AppIdentifier, "app", "", "bundle identifier")
	f.StringVar(&req.Scheme, "scheme", "", "build scheme")
	f.StringVar(&req.MarketingVersion, "version", "", "initial marketing version")
	f.StringVar(&req.APIKeyFile, "api-key", "", "App Store Connect .p8 key to install")
	f.BoolVar(&storePassword, "store-password", false, "store a container password ($"+envKeychainPassword+" or prompt)")
	credentialFlags(cmd, &req.Credentials)
	return cmd
}

// keychainPassword reads the container password from the environment or,
// on a terminal, from a prompt.
func keychainPassword(c *cli) (string, error) {
	if pw := os.Getenv(envKeychainPassword); pw != "" {
		return pw, nil
	}
	pw, err := keyring.Prompt(os.Stdin, c.stderr, "Container password")
	if errors.Is(err, keyring.ErrNotTerminal) {
		return "", fmt.Errorf("%w: set %s when stdin is not a terminal", errUsage, envKeychainPassword)
	}
	return pw, err
}
