package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error taxonomy surfaced at the orchestrator boundary.
// Use with errors.Is() for checking; wrap with NewError to attach an
// operation and a recovery suggestion.
var (
	// ErrCertificateLimitExceeded indicates the team is still at quota after one cleanup attempt
	ErrCertificateLimitExceeded = errors.New("certificate limit exceeded")

	// ErrInvalidCertificate indicates a certificate could not be created or is unusable
	ErrInvalidCertificate = errors.New("invalid certificate")

	// ErrContainerCreation indicates the ephemeral credential container could not be created
	ErrContainerCreation = errors.New("credential container creation failed")

	// ErrCertificateImport indicates one or more certificate files failed to import
	ErrCertificateImport = errors.New("certificate import failed")

	// ErrProvisioningProfileCreation indicates a provisioning profile could not be created
	ErrProvisioningProfileCreation = errors.New("provisioning profile creation failed")

	// ErrInvalidIpa indicates the built artifact failed validation before upload
	ErrInvalidIpa = errors.New("invalid ipa")

	// ErrBuildConflict indicates a build number that does not exceed the observed maximum
	ErrBuildConflict = errors.New("build number conflict")

	// ErrUploadFailed indicates every upload strategy failed
	ErrUploadFailed = errors.New("upload failed")

	// ErrAuthentication indicates the remote service rejected the API credential
	ErrAuthentication = errors.New("authentication failed")

	// ErrProcessingMonitoring indicates processing status could not be observed
	ErrProcessingMonitoring = errors.New("processing monitoring failed")

	// ErrInterrupted indicates the run was interrupted by a signal or user abort
	ErrInterrupted = errors.New("run interrupted")
)

// Validation errors for value objects

var (
	// ErrInvalidTeamID indicates a team identifier is not 10 alphanumeric characters
	ErrInvalidTeamID = errors.New("team id must be 10 alphanumeric characters")

	// ErrInvalidAppIdentifier indicates an app identifier is not reverse-DNS
	ErrInvalidAppIdentifier = errors.New("invalid app identifier")

	// ErrInvalidKind indicates an unknown certificate or profile kind
	ErrInvalidKind = errors.New("invalid kind")

	// ErrInvalidVersion indicates a malformed marketing version
	ErrInvalidVersion = errors.New("invalid marketing version")

	// ErrInvalidBuildNumber indicates a build number that is not a positive integer
	ErrInvalidBuildNumber = errors.New("invalid build number")

	// ErrInvalidTransition indicates an illegal container state transition
	ErrInvalidTransition = errors.New("invalid container state transition")

	// ErrCertificateInvalid indicates certificate validation failed
	ErrCertificateInvalid = errors.New("certificate validation failed")

	// ErrProfileInvalid indicates provisioning profile validation failed
	ErrProfileInvalid = errors.New("provisioning profile validation failed")
)

var defaultSuggestions = []struct {
	kind       error
	suggestion string
}{
	{ErrCertificateLimitExceeded, "Revoke an unused certificate in the developer portal, then retry; certificates created by this tool are removed first."},
	{ErrInvalidCertificate, "Check the API key role (Admin or Developer) and retry; remove stale .p12 files from the team certificates directory if they no longer match."},
	{ErrContainerCreation, "Make sure the keychain directory is writable and that no stale signet keychains are locked; pass --keychain-password to override the password."},
	{ErrCertificateImport, "Verify the certificate password and re-export the .p12 files; missing certificates will be created on the next run."},
	{ErrProvisioningProfileCreation, "Confirm the app identifier is registered for the team and that a certificate of the matching kind exists."},
	{ErrInvalidIpa, "Rebuild the artifact and confirm the bundle identifier and code signature match the requested app identifier."},
	{ErrBuildConflict, "Use a build number above the latest uploaded build, or enable versioning.allow_conflicts to let the resolver renumber."},
	{ErrUploadFailed, "Check network access to the distribution service and the API key permissions; rerun to retry every upload strategy."},
	{ErrAuthentication, "Verify the API key id, issuer id and the AuthKey_<id>.p8 file in the team directory."},
	{ErrProcessingMonitoring, "The upload succeeded; check the build's processing state in the distribution console."},
	{ErrInterrupted, "The run was interrupted; temporary keychains were removed. Rerun the command."},
}

// Error is a typed orchestrator error.
// Kind is one of the taxonomy sentinels; Err is the underlying cause.
type Error struct {
	Kind       error
	Op         string
	Suggestion string
	Err        error
}

// NewError wraps err with a taxonomy kind and the kind's default suggestion.
func NewError(kind error, op string, err error) *Error {
	return &Error{
		Kind:       kind,
		Op:         op,
		Suggestion: suggestionFor(kind),
		Err:        err,
	}
}

// WithSuggestion replaces the recovery suggestion.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Suggestion returns the human-readable recovery suggestion carried by err,
// falling back to the default suggestion of the first matching taxonomy kind.
func Suggestion(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Suggestion != "" {
		return typed.Suggestion
	}
	for _, s := range defaultSuggestions {
		if errors.Is(err, s.kind) {
			return s.suggestion
		}
	}
	return ""
}

func suggestionFor(kind error) string {
	for _, s := range defaultSuggestions {
		if s.kind == kind {
			return s.suggestion
		}
	}
	return ""
}

// CertificateImportError reports a partial (or total) import failure.
// It is a degraded success: callers log it and continue.
type CertificateImportError struct {
	Report ImportReport
}

func (e *CertificateImportError) Error() string {
	files := make([]string, 0, len(e.Report.Failed))
	for _, f := range e.Report.Failed {
		files = append(files, f.File)
	}
	return fmt.Sprintf("%s: %d of %d files failed (%s)",
		ErrCertificateImport, len(e.Report.Failed), len(e.Report.Failed)+len(e.Report.Imported), strings.Join(files, ", "))
}

// Is matches ErrCertificateImport.
func (e *CertificateImportError) Is(target error) bool {
	return target == ErrCertificateImport
}
