package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sufield/signet/internal/adapters/inbound/statusapi"
	"github.com/sufield/signet/internal/app"
	"github.com/sufield/signet/internal/bg"
	"github.com/sufield/signet/internal/debug"
)

func (c *cli) statusCommand() *cobra.Command {
	var (
		req     app.StatusRequest
		asJSON  bool
		address string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show certificates, profiles and recent deployments of a team",
		Example: `  signet status --team ABCDE12345 --remote
  signet status --team ABCDE12345 --json
  signet status --serve 127.0.0.1:9180`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withApp(ctx, func(a *app.Application) error {
				if address != "" {
					srv, err := statusapi.NewServer(address, statusapi.Handler(a.Pipeline, a.Metrics, nil, a.Logger), a.Logger)
					if err != nil {
						return err
					}
					return serve(ctx, bg.For(debug.Active.SingleThreaded), srv.Serve)
				}

				team, err := teamFlag(req.TeamID)
				if err != nil {
					return err
				}
				req.TeamID = team
				rep, err := a.Pipeline.Status(ctx, req)
				if err != nil {
					return err
				}
				view := statusapi.NewView(rep, time.Now())
				if asJSON {
					enc := json.NewEncoder(c.stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(view)
				}
				printStatus(c.stdout, view)
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.TeamID, "team", "", "team id ($"+envTeamID+")")
	f.BoolVar(&req.Remote, "remote", false, "refresh certificates and profiles from the remote service")
	f.IntVar(&req.Deployments, "deployments", 10, "number of recent deployments to show")
	f.IntVar(&req.AuditLines, "audit", 0, "number of audit log lines to show")
	f.BoolVar(&asJSON, "json", false, "print JSON instead of tables")
	f.StringVar(&address, "serve", "", "serve the status API on this address instead of printing")
	return cmd
}

// serve runs fn through r and waits for it. Under bg.Sync fn runs inline.
func serve(ctx context.Context, r bg.Runner, fn func(context.Context) error) error {
	errc := make(chan error, 1)
	r.Do(func() { errc <- fn(ctx) })
	return <-errc
}

func printStatus(w io.Writer, v statusapi.View) {
	fmt.Fprintf(w, "Team %s", v.TeamID)
	if v.App != "" {
		fmt.Fprintf(w, " (%s)", v.App)
	}
	fmt.Fprintf(w, ", build high-water mark %d\n", v.HighWaterMark)
	if v.RemoteError != "" {
		fmt.Fprintf(w, "Remote listing unavailable: %s\n", v.RemoteError)
	}

	quota := NewTableWriter([]string{"KIND", "USED", "LIMIT"})
	for _, q := range v.Quota {
		quota.AddRow([]string{q.Kind, strconv.Itoa(q.Used), strconv.Itoa(q.Limit)})
	}
	quota.Print(w)

	if len(v.Certificates) > 0 {
		certs := NewTableWriter([]string{"CERTIFICATE", "KIND", "ORIGIN", "EXPIRES"})
		for _, cert := range v.Certificates {
			certs.AddRow([]string{cert.ID, cert.Kind, cert.Origin, expiry(cert.ExpiresAt, cert.Expired)})
		}
		certs.Print(w)
	}
	if len(v.Profiles) > 0 {
		profiles := NewTableWriter([]string{"PROFILE", "KIND", "APP", "EXPIRES"})
		for _, p := range v.Profiles {
			profiles.AddRow([]string{p.UUID, p.Kind, p.AppIdentifier, expiry(p.ExpiresAt, p.Expired)})
		}
		profiles.Print(w)
	}
	if len(v.Deployments) > 0 {
		deploys := NewTableWriter([]string{"WHEN", "VERSION", "BUILD", "UPLOAD", "PROCESSING", "OUTCOME"})
		for _, d := range v.Deployments {
			deploys.AddRow([]string{
				d.Timestamp.Format(time.RFC3339), d.Version, strconv.Itoa(d.Build),
				d.UploadStrategy, d.ProcessingStatus, d.Outcome,
			})
		}
		deploys.Print(w)
	}
	if len(v.Strategies) > 0 {
		strategies := NewTableWriter([]string{"STRATEGY", "OK", "FAILED", "RATE"})
		for _, s := range v.Strategies {
			strategies.AddRow([]string{s.Name, strconv.Itoa(s.Successes), strconv.Itoa(s.Failures), fmt.Sprintf("%.0f%%", s.SuccessRate*100)})
		}
		strategies.Print(w)
	}
	for _, line := range v.AuditTail {
		fmt.Fprintln(w, line)
	}
}

func expiry(t time.Time, expired bool) string {
	s := t.Format("2006-01-02")
	if expired {
		s += " (expired)"
	}
	return s
}
