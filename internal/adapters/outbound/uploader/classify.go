package uploader

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/ports"
)

var (
	unauthorizedMarkers = []string{
		"unable to authenticate", "not_authorized", "401", "invalid api key",
		"authentication credentials are missing or invalid", "-19209",
	}
	conflictMarkers = []string{
		"has already been uploaded", "duplicate", "redundant binary upload",
		"bundle version must be higher", "-19232",
	}
	deliveryPattern = regexp.MustCompile(`(?i)delivery[ -]uuid"?\s*[:=]\s*"?([0-9a-f-]{36})`)
)

// classify maps a failed tool run onto the ports error contract.
func classify(strategy string, res toolexec.Result, err error) error {
	if errors.Is(err, ports.ErrToolUnavailable) {
		return fmt.Errorf("%s: %w", strategy, err)
	}
	var exitErr *toolexec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("%s: %w", strategy, err)
	}
	output := strings.ToLower(string(res.Stdout) + "\n" + string(res.Stderr))
	switch {
	case containsAny(output, unauthorizedMarkers):
		return fmt.Errorf("%s: %w: %v", strategy, ports.ErrUnauthorized, err)
	case containsAny(output, conflictMarkers):
		return fmt.Errorf("%s: %w: %v", strategy, ports.ErrConflict, err)
	default:
		return fmt.Errorf("%s: %w: %v", strategy, ports.ErrTransient, err)
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

func deliveryID(output []byte) string {
	if m := deliveryPattern.FindSubmatch(output); m != nil {
		return string(m[1])
	}
	return ""
}
