// Command signet provisions iOS signing credentials and ships builds to the
// App Store. Run `signet --help` for the command list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/sufield/signet/internal/bg"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/shutdown"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command line. A SIGINT or SIGTERM cancels the running
// command; the pipeline then releases its containers and Close runs any
// cleanup hooks still registered.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := shutdown.Default.Watch(ctx, bg.Async{}, func(s os.Signal) {
		fmt.Fprintf(stderr, "received %s, cleaning up\n", s)
		cancel()
	}, os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{stdout: stdout, stderr: stderr, open: openApp}
	return exitCode(c.execute(ctx, args), stderr)
}

// exitCode prints err with its recovery suggestion and maps it to a
// process exit status.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}
	code := exitFailure
	if errors.Is(err, domain.ErrInterrupted) || errors.Is(err, context.Canceled) {
		code = exitInterrupted
	}
	fmt.Fprintln(stderr, "Error:", err)
	if s := domain.Suggestion(err); s != "" {
		fmt.Fprintln(stderr, "Suggestion:", s)
	}
	return code
}
