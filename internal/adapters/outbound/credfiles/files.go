// Package credfiles implements ports.CredentialFiles over the per-team
// directory layout:
//
//	{root}/{team}/certificates/*.p12, *.cer
//	{root}/{team}/profiles/*.mobileprovision
//	{root}/{team}/config.env
//	{root}/{team}/AuthKey_<id>.p8
package credfiles

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
)

const (
	certificatesDir = "certificates"
	profilesDir     = "profiles"
	configFile      = "config.env"
	apiKeyPattern   = "AuthKey_*.p8"
)

// Files is rooted at the apple_info directory.
type Files struct {
	root string
}

var _ ports.CredentialFiles = (*Files)(nil)

// New returns Files rooted at root.
func New(root string) *Files {
	return &Files{root: root}
}

// TeamDir returns {root}/{team}.
func (f *Files) TeamDir(team domain.TeamID) string {
	return filepath.Join(f.root, string(team))
}

// Init creates the team directory tree.
func (f *Files) Init(team domain.TeamID) error {
	for _, dir := range []string{certificatesDir, profilesDir} {
		if err := os.MkdirAll(filepath.Join(f.TeamDir(team), dir), 0o700); err != nil {
			return fmt.Errorf("credfiles: create %s: %w", dir, err)
		}
	}
	return nil
}

func (f *Files) glob(team domain.TeamID, dir string, patterns ...string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(f.TeamDir(team), dir, p))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}

// CertificateFiles lists *.p12 and *.cer files.
func (f *Files) CertificateFiles(team domain.TeamID) ([]string, error) {
	return f.glob(team, certificatesDir, "*.p12", "*.cer")
}

// KeyPairs lists *.p12 files; the base name is the certificate id.
func (f *Files) KeyPairs(team domain.TeamID) ([]ports.KeyPairFile, error) {
	paths, err := f.glob(team, certificatesDir, "*.p12")
	if err != nil {
		return nil, err
	}
	out := make([]ports.KeyPairFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, ports.KeyPairFile{
			CertificateID: strings.TrimSuffix(filepath.Base(p), ".p12"),
			Path:          p,
		})
	}
	return out, nil
}

// SaveKeyPair writes {team}/certificates/{certID}.p12.
func (f *Files) SaveKeyPair(team domain.TeamID, certID string, key crypto.Signer, der []byte, password string) (string, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return "", fmt.Errorf("credfiles: parse certificate %s: %w", certID, err)
	}
	pfx, err := pkcs12.Modern.Encode(key, cert, nil, password)
	if err != nil {
		return "", fmt.Errorf("credfiles: encode p12 for %s: %w", certID, err)
	}
	if err := f.Init(team); err != nil {
		return "", err
	}
	path := filepath.Join(f.TeamDir(team), certificatesDir, certID+".p12")
	if err := os.WriteFile(path, pfx, 0o600); err != nil {
		return "", fmt.Errorf("credfiles: write %s: %w", path, err)
	}
	return path, nil
}

// VerifyKeyPair decodes a p12 with password, checking that it carries a key.
func VerifyKeyPair(path, password string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if key == nil {
		return nil, fmt.Errorf("%s carries no private key", filepath.Base(path))
	}
	return cert, nil
}

// APIKeyPath returns the single AuthKey_*.p8 file in the team directory.
func (f *Files) APIKeyPath(team domain.TeamID) (string, error) {
	matches, err := filepath.Glob(filepath.Join(f.TeamDir(team), apiKeyPattern))
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("api key for %s: %w", team, ports.ErrNotFound)
	case 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("credfiles: %d API key files in %s, expected exactly one", len(matches), f.TeamDir(team))
}

// InstallAPIKey copies src into the team directory, replacing any other key.
func (f *Files) InstallAPIKey(team domain.TeamID, src string) (string, error) {
	base := filepath.Base(src)
	if ok, _ := filepath.Match(apiKeyPattern, base); !ok {
		return "", fmt.Errorf("credfiles: %s does not match %s", base, apiKeyPattern)
	}
	if err := f.Init(team); err != nil {
		return "", err
	}
	existing, _ := filepath.Glob(filepath.Join(f.TeamDir(team), apiKeyPattern))
	dst := filepath.Join(f.TeamDir(team), base)
	if err := copyFile(src, dst); err != nil {
		return "", err
	}
	for _, old := range existing {
		if old != dst {
			if err := os.Remove(old); err != nil {
				return "", err
			}
		}
	}
	return dst, nil
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("credfiles: open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("credfiles: create %s: %w", dst, err)
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()
	_, err = io.Copy(out, in)
	return err
}
