package domain

// ImportFailure records one file that failed to import.
type ImportFailure struct {
	File string
	Err  error
}

// ImportReport summarizes an import of existing certificate files into a
// container. A non-empty Failed list is a degraded success, not an error.
type ImportReport struct {
	Imported []string
	Failed   []ImportFailure
}

// Degraded reports whether some files failed to import.
func (r ImportReport) Degraded() bool { return len(r.Failed) > 0 }

// Err returns a *CertificateImportError when the report is degraded, nil otherwise.
func (r ImportReport) Err() error {
	if !r.Degraded() {
		return nil
	}
	return &CertificateImportError{Report: r}
}
