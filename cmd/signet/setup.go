package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sufield/signet/internal/app"
)

func (c *cli) setupCommand() *cobra.Command {
	var req app.SetupRequest
	cmd := &cobra.Command{
		Use:     "setup-certificates",
		Aliases: []string{"setup_certificates"},
		Short:   "Ensure development and distribution certificates and profiles exist",
		Example: "  signet setup-certificates --team ABCDE12345",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			team, err := teamFlag(req.TeamID)
			if err != nil {
				return err
			}
			req.TeamID = team
			req.KeychainPassword = os.Getenv(envKeychainPassword)
			return c.withApp(cmd.Context(), func(a *app.Application) error {
				res, err := a.Pipeline.SetupCertificates(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.stdout, "Signing material ready (run %s)\n", res.RunID)
				t := NewTableWriter([]string{"KIND", "ID", "EXPIRES"})
				for _, cert := range res.Signing.Certificates {
					t.AddRow([]string{string(cert.Kind), cert.ID, cert.ExpiresAt.Format("2006-01-02")})
				}
				for _, p := range res.Signing.Profiles {
					t.AddRow([]string{"profile " + string(p.Profile.Kind), p.Profile.UUID, p.Profile.ExpiresAt.Format("2006-01-02")})
				}
				t.Print(c.stdout)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.TeamID, "team", "", "team id ($"+envTeamID+")")
	cmd.Flags().StringVar(&req.AppIdentifier, "app", "", "bundle identifier (default from config.env)")
	credentialFlags(cmd, &req.Credentials)
	return cmd
}
