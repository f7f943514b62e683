package keychain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sufield/signet/internal/adapters/outbound/toolexec"
	"github.com/sufield/signet/internal/logging"
	"github.com/sufield/signet/internal/ports"
)

const securityTool = "security"

// Tools allowed to use imported keys without a confirmation prompt.
var trustedApps = []string{"/usr/bin/codesign", "/usr/bin/security", "/usr/bin/productbuild"}

// SecurityCLI is a SecurityBackend over the macOS security tool.
type SecurityCLI struct {
	runner      toolexec.Runner
	logger      *slog.Logger
	lockTimeout time.Duration

	mu        sync.Mutex
	passwords map[string]string // container path -> password, for partition lists
}

var _ ports.SecurityBackend = (*SecurityCLI)(nil)

// NewSecurityCLI returns a backend that runs security through runner.
// Containers lock themselves after lockTimeout of inactivity.
func NewSecurityCLI(runner toolexec.Runner, lockTimeout time.Duration, logger *slog.Logger) *SecurityCLI {
	if lockTimeout <= 0 {
		lockTimeout = 6 * time.Hour
	}
	return &SecurityCLI{
		runner:      runner,
		logger:      logging.OrDiscard(logger).With("component", "keychain"),
		lockTimeout: lockTimeout,
		passwords:   make(map[string]string),
	}
}

func (s *SecurityCLI) run(ctx context.Context, secret string, args ...string) error {
	cmd := toolexec.Command{Name: securityTool, Args: args, Secrets: []string{secret}}
	if _, err := s.runner.Run(ctx, cmd); err != nil {
		return err
	}
	return nil
}

func (s *SecurityCLI) CreateContainer(ctx context.Context, path, password string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("keychain %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	if err := s.run(ctx, password, "create-keychain", "-p", password, path); err != nil {
		return fmt.Errorf("create keychain: %w", err)
	}
	// -l locks on sleep, -u with -t locks after the timeout.
	secs := strconv.Itoa(int(s.lockTimeout / time.Second))
	if err := s.run(ctx, "", "set-keychain-settings", "-lut", secs, path); err != nil {
		return fmt.Errorf("configure keychain: %w", err)
	}
	s.remember(path, password)
	return nil
}

func (s *SecurityCLI) UnlockContainer(ctx context.Context, path, password string) error {
	if err := s.run(ctx, password, "unlock-keychain", "-p", password, path); err != nil {
		return fmt.Errorf("unlock keychain: %w", err)
	}
	s.remember(path, password)
	return nil
}

func (s *SecurityCLI) ImportIdentity(ctx context.Context, path, file, filePassword string) error {
	args := []string{"import", file, "-k", path}
	if filePassword != "" {
		args = append(args, "-P", filePassword)
	}
	for _, app := range trustedApps {
		args = append(args, "-T", app)
	}
	if err := s.run(ctx, filePassword, args...); err != nil {
		return fmt.Errorf("import %s: %w", filepath.Base(file), err)
	}

	// Without a partition list codesign prompts for every key on macOS 10.12+.
	// Certificates alone carry no key, so only identities need it.
	if !strings.EqualFold(filepath.Ext(file), ".p12") {
		return nil
	}
	password, ok := s.password(path)
	if !ok {
		s.logger.Warn("partition list not set, container password unknown", "path", path)
		return nil
	}
	err := s.run(ctx, password, "set-key-partition-list",
		"-S", "apple-tool:,apple:,codesign:", "-s", "-k", password, path)
	if err != nil {
		return fmt.Errorf("set partition list for %s: %w", filepath.Base(file), err)
	}
	return nil
}

func (s *SecurityCLI) DeleteContainer(ctx context.Context, path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		s.forget(path)
		return fmt.Errorf("keychain %s: %w", path, ports.ErrNotFound)
	}
	if err := s.run(ctx, "", "delete-keychain", path); err != nil {
		return fmt.Errorf("delete keychain: %w", err)
	}
	s.forget(path)
	return nil
}

func (s *SecurityCLI) remember(path, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwords[path] = password
}

func (s *SecurityCLI) forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.passwords, path)
}

func (s *SecurityCLI) password(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pw, ok := s.passwords[path]
	return pw, ok
}
