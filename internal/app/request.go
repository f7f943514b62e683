package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

// ErrInvalidRequest marks a use-case request rejected before any work began.
var ErrInvalidRequest = errors.New("invalid request")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Credentials are the remote API key coordinates. Empty fields are filled
// from the team's config.env.
type Credentials struct {
	APIKeyID    string `validate:"required"`
	APIIssuerID string `validate:"required"`
	AppleID     string `validate:"omitempty,email"`
}

// DeployRequest is the input of Pipeline.Deploy.
type DeployRequest struct {
	TeamID        string `validate:"required,len=10,alphanum"`
	AppIdentifier string `validate:"required"`
	Scheme        string `validate:"required"`
	Configuration string `validate:"required"`
	Credentials

	// MarketingVersion overrides the version stored in config.env.
	MarketingVersion string `validate:"required"`
	VersionBump      string `validate:"omitempty,oneof=patch minor major auto sync"`
	BuildNumber      int    `validate:"gte=0"`

	EnhancedMonitoring bool

	// KeychainPassword protects the run's container and new key pairs.
	// Empty means the stored password, or a generated one.
	KeychainPassword string
}

// SetupRequest is the input of Pipeline.SetupCertificates.
type SetupRequest struct {
	TeamID        string `validate:"required,len=10,alphanum"`
	AppIdentifier string `validate:"required"`
	Credentials

	KeychainPassword string
}

// InitRequest is the input of Pipeline.Init.
type InitRequest struct {
	TeamID           string `validate:"required,len=10,alphanum"`
	AppIdentifier    string `validate:"required"`
	Scheme           string
	MarketingVersion string
	APIKeyFile       string `validate:"omitempty,file"`
	Credentials

	KeychainPassword string
}

func validateRequest(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(msgs, ", "))
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func (c Credentials) merged(cfg ports.DeploymentConfig) Credentials {
	c.APIKeyID = orDefault(c.APIKeyID, cfg.APIKeyID)
	c.APIIssuerID = orDefault(c.APIIssuerID, cfg.APIIssuerID)
	c.AppleID = orDefault(c.AppleID, cfg.AppleID)
	return c
}

func (r DeployRequest) merged(cfg ports.DeploymentConfig) DeployRequest {
	r.AppIdentifier = orDefault(r.AppIdentifier, cfg.AppIdentifier)
	r.Scheme = orDefault(r.Scheme, cfg.Scheme)
	r.MarketingVersion = orDefault(r.MarketingVersion, cfg.MarketingVersion)
	r.Credentials = r.Credentials.merged(cfg)
	return r
}

func (r SetupRequest) merged(cfg ports.DeploymentConfig) SetupRequest {
	r.AppIdentifier = orDefault(r.AppIdentifier, cfg.AppIdentifier)
	r.Credentials = r.Credentials.merged(cfg)
	return r
}

// parseTarget validates the team and concrete app identifier of a request.
func parseTarget(team, app string) (domain.TeamID, domain.AppIdentifier, error) {
	t, err := domain.ParseTeamID(team)
	if err != nil {
		return "", domain.AppIdentifier{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	a, err := domain.ParseAppIdentifier(app)
	if err != nil {
		return "", domain.AppIdentifier{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if a.IsWildcard() {
		return "", domain.AppIdentifier{}, fmt.Errorf("%w: app identifier %q is a wildcard", ErrInvalidRequest, app)
	}
	return t, a, nil
}
