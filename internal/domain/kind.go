package domain

import (
	"fmt"
	"strings"
)

// CertificateKind is the closed set of signing certificate kinds.
type CertificateKind string

const (
	CertificateDevelopment  CertificateKind = "development"
	CertificateDistribution CertificateKind = "distribution"
)

// CertificateKinds lists every certificate kind in a stable order.
var CertificateKinds = []CertificateKind{CertificateDevelopment, CertificateDistribution}

// ParseCertificateKind validates s and returns the matching kind.
func ParseCertificateKind(s string) (CertificateKind, error) {
	k := CertificateKind(strings.ToLower(strings.TrimSpace(s)))
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// Validate returns ErrInvalidKind for values outside the enum.
func (k CertificateKind) Validate() error {
	switch k {
	case CertificateDevelopment, CertificateDistribution:
		return nil
	}
	return fmt.Errorf("%w: certificate kind %q", ErrInvalidKind, string(k))
}

// Quota is the platform limit of non-expired certificates of this kind per team.
func (k CertificateKind) Quota() int {
	switch k {
	case CertificateDevelopment:
		return 2
	case CertificateDistribution:
		return 3
	}
	return 0
}

func (k CertificateKind) String() string { return string(k) }

// ProfileKind is the closed set of provisioning profile kinds.
type ProfileKind string

const (
	ProfileDevelopment ProfileKind = "development"
	ProfileAdHoc       ProfileKind = "adhoc"
	ProfileAppStore    ProfileKind = "appstore"
)

// ParseProfileKind validates s and returns the matching kind.
func ParseProfileKind(s string) (ProfileKind, error) {
	k := ProfileKind(strings.ToLower(strings.TrimSpace(s)))
	if err := k.Validate(); err != nil {
		return "", err
	}
	return k, nil
}

// Validate returns ErrInvalidKind for values outside the enum.
func (k ProfileKind) Validate() error {
	switch k {
	case ProfileDevelopment, ProfileAdHoc, ProfileAppStore:
		return nil
	}
	return fmt.Errorf("%w: profile kind %q", ErrInvalidKind, string(k))
}

// CertificateKind returns the certificate kind a profile of this kind must be bound to.
func (k ProfileKind) CertificateKind() CertificateKind {
	if k == ProfileDevelopment {
		return CertificateDevelopment
	}
	return CertificateDistribution
}

// RequiresDevices reports whether profiles of this kind carry a device list.
func (k ProfileKind) RequiresDevices() bool {
	return k == ProfileDevelopment || k == ProfileAdHoc
}

// ExportMethod is the archive export method for this kind.
func (k ProfileKind) ExportMethod() string {
	switch k {
	case ProfileDevelopment:
		return "development"
	case ProfileAdHoc:
		return "ad-hoc"
	}
	return "app-store"
}

func (k ProfileKind) String() string { return string(k) }

// ProfileKindForConfiguration maps a build configuration name to a profile kind:
// debug/development -> development, release/production -> appstore, ad-hoc -> adhoc.
func ProfileKindForConfiguration(configuration string) (ProfileKind, error) {
	c := strings.ToLower(strings.TrimSpace(configuration))
	switch {
	case c == "":
		return "", fmt.Errorf("%w: empty build configuration", ErrInvalidKind)
	case strings.Contains(c, "adhoc"), strings.Contains(c, "ad-hoc"), strings.Contains(c, "ad_hoc"):
		return ProfileAdHoc, nil
	case strings.Contains(c, "debug"), strings.Contains(c, "develop"):
		return ProfileDevelopment, nil
	case strings.Contains(c, "release"), strings.Contains(c, "prod"), strings.Contains(c, "appstore"), strings.Contains(c, "distribution"):
		return ProfileAppStore, nil
	}
	return "", fmt.Errorf("%w: no profile kind for configuration %q", ErrInvalidKind, configuration)
}

// CertificateOrigin records how a certificate came to exist.
type CertificateOrigin string

const (
	OriginAPICreated CertificateOrigin = "api-created"
	OriginImported   CertificateOrigin = "imported"
	OriginManual     CertificateOrigin = "manual"
)

// Validate returns ErrInvalidKind for values outside the enum.
func (o CertificateOrigin) Validate() error {
	switch o {
	case OriginAPICreated, OriginImported, OriginManual:
		return nil
	}
	return fmt.Errorf("%w: certificate origin %q", ErrInvalidKind, string(o))
}
