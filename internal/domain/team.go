package domain

import (
	"fmt"
	"strings"
)

// TeamID identifies the account-level scope for certificates, profiles and quotas.
type TeamID string

// ParseTeamID validates a 10-character alphanumeric team identifier.
// Lowercase input is normalized to uppercase.
func ParseTeamID(s string) (TeamID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 10 {
		return "", fmt.Errorf("%w: %q", ErrInvalidTeamID, s)
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", ErrInvalidTeamID, s)
		}
	}
	return TeamID(s), nil
}

func (t TeamID) String() string { return string(t) }
