package keychain

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/sufield/signet/internal/adapters/outbound/credfiles"
	"github.com/sufield/signet/internal/ports"
)

const manifestVersion = 1

// Identity is one imported certificate as recorded in the manifest.
type Identity struct {
	File        string    `json:"file"`
	Subject     string    `json:"subject"`
	Serial      string    `json:"serial"`
	Fingerprint string    `json:"sha256"`
	NotAfter    time.Time `json:"not_after"`
	HasKey      bool      `json:"has_key"`
	Data        []byte    `json:"data"`
}

type manifest struct {
	Version      int        `json:"version"`
	PasswordHash []byte     `json:"password_hash"`
	Identities   []Identity `json:"identities"`
}

// Directory is a file-based SecurityBackend. The container is a single JSON
// file; unlock state lives in this process only.
type Directory struct {
	cost int

	mu       sync.Mutex
	unlocked map[string]bool
}

var _ ports.SecurityBackend = (*Directory)(nil)

// NewDirectory returns a backend hashing passwords at bcrypt.DefaultCost.
func NewDirectory() *Directory {
	return &Directory{cost: bcrypt.DefaultCost, unlocked: make(map[string]bool)}
}

func (d *Directory) CreateContainer(ctx context.Context, path, password string) error {
	if password == "" {
		return errors.New("container password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), d.cost)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.Marshal(manifest{Version: manifestVersion, PasswordHash: hash})
	if err != nil {
		return err
	}
	// O_EXCL makes an existing path an error rather than an overwrite.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (d *Directory) UnlockContainer(ctx context.Context, path, password string) error {
	m, err := readManifest(path)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword(m.PasswordHash, []byte(password)); err != nil {
		return fmt.Errorf("unlock %s: wrong password", filepath.Base(path))
	}
	d.mu.Lock()
	d.unlocked[path] = true
	d.mu.Unlock()
	return nil
}

func (d *Directory) ImportIdentity(ctx context.Context, path, file, filePassword string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.unlocked[path] {
		return fmt.Errorf("import %s: container %s is locked", filepath.Base(file), filepath.Base(path))
	}
	m, err := readManifest(path)
	if err != nil {
		return err
	}
	id, err := readIdentity(file, filePassword)
	if err != nil {
		return fmt.Errorf("import %s: %w", filepath.Base(file), err)
	}
	for _, existing := range m.Identities {
		if existing.Fingerprint == id.Fingerprint {
			return nil
		}
	}
	m.Identities = append(m.Identities, id)
	return writeManifest(path, m)
}

func (d *Directory) DeleteContainer(ctx context.Context, path string) error {
	d.mu.Lock()
	delete(d.unlocked, path)
	d.mu.Unlock()
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("container %s: %w", path, ports.ErrNotFound)
	}
	return err
}

// Identities lists what was imported into the container at path.
func (d *Directory) Identities(path string) ([]Identity, error) {
	m, err := readManifest(path)
	if err != nil {
		return nil, err
	}
	return m.Identities, nil
}

func readIdentity(file, password string) (Identity, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Identity{}, err
	}
	var (
		cert   *x509.Certificate
		hasKey bool
	)
	switch strings.ToLower(filepath.Ext(file)) {
	case ".p12":
		cert, err = credfiles.VerifyKeyPair(file, password)
		hasKey = true
	case ".cer", ".crt", ".pem":
		if block, _ := pem.Decode(data); block != nil {
			data = block.Bytes
		}
		cert, err = x509.ParseCertificate(data)
	default:
		err = fmt.Errorf("unsupported file type %q", filepath.Ext(file))
	}
	if err != nil {
		return Identity{}, err
	}
	sum := sha256.Sum256(cert.Raw)
	return Identity{
		File:        filepath.Base(file),
		Subject:     cert.Subject.CommonName,
		Serial:      cert.SerialNumber.String(),
		Fingerprint: hex.EncodeToString(sum[:]),
		NotAfter:    cert.NotAfter.UTC(),
		HasKey:      hasKey,
		Data:        data,
	}, nil
}

func readManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return manifest{}, fmt.Errorf("container %s: %w", path, ports.ErrNotFound)
	}
	if err != nil {
		return manifest{}, err
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("container %s is corrupt: %w", filepath.Base(path), err)
	}
	if m.Version != manifestVersion {
		return manifest{}, fmt.Errorf("container %s: unsupported version %d", filepath.Base(path), m.Version)
	}
	return m, nil
}

func writeManifest(path string, m manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
