package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/signet/internal/app"
)

func (c *cli) deployCommand() *cobra.Command {
	var req app.DeployRequest
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Sign, build, upload and monitor one release",
		Example: `  signet deploy --team ABCDE12345
  signet deploy --team ABCDE12345 --bump minor --enhanced-monitoring
  signet deploy --team ABCDE12345 --version 2.1.0 --build-number 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			team, err := teamFlag(req.TeamID)
			if err != nil {
				return err
			}
			req.TeamID = team
			req.KeychainPassword = os.Getenv(envKeychainPassword)
			return c.withApp(cmd.Context(), func(a *app.Application) error {
				if req.Configuration == "" {
					req.Configuration = a.Settings.BuildConfiguration
				}
				res, err := a.Pipeline.Deploy(cmd.Context(), req)
				if err != nil {
					return err
				}
				printDeploy(c.stdout, res)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TeamID, "team", "", "team id ($"+envTeamID+")")
	f.StringVar(&req.AppIdentifier, "app", "", "bundle identifier (default from config.env)")
	f.StringVar(&req.Scheme, "scheme", "", "build scheme (default from config.env)")
	f.StringVar(&req.Configuration, "configuration", "", "build configuration (default from signet.yaml)")
	f.StringVar(&req.MarketingVersion, "version", "", "marketing version (default from config.env)")
	f.StringVar(&req.VersionBump, "bump", "", "version bump: patch, minor, major, auto or sync")
	f.IntVar(&req.BuildNumber, "build-number", 0, "explicit build number (default: next after the highest known)")
	f.BoolVar(&req.EnhancedMonitoring, "enhanced-monitoring", false, "wait longer for processing to finish")
	credentialFlags(cmd, &req.Credentials)
	return cmd
}

func printDeploy(w io.Writer, res app.DeployResult) {
	r := res.Resolution
	fmt.Fprintf(w, "Deployed %s (%s) run %s\n", r.Version, r.Build, res.RunID)
	if r.LocallyResolved {
		fmt.Fprintln(w, "  version resolved locally; the remote service was unreachable")
	}

	t := NewTableWriter([]string{"STAGE", "RESULT"})
	t.AddRow([]string{"certificates", fmt.Sprintf("%d in use, %d imported", len(res.Signing.Certificates), len(res.Signing.Import.Imported))})
	for _, p := range res.Signing.Profiles {
		action := "reused"
		if p.Created {
			action = "created"
		}
		t.AddRow([]string{"profile " + string(p.Profile.Kind), action + " " + p.Profile.UUID})
	}
	t.AddRow([]string{"artifact", res.Artifact})
	t.AddRow([]string{"upload", fmt.Sprintf("%s after %d attempt(s)", res.Upload.Strategy, res.Upload.Attempts)})
	processing := string(res.Processing.State)
	if res.Processing.TimedOut {
		processing += " (monitoring timed out)"
	}
	t.AddRow([]string{"processing", fmt.Sprintf("%s in %s", processing, res.Processing.Elapsed.Round(time.Second))})
	t.Print(w)
}
