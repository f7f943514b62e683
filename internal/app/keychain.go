package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sufield/signet/internal/assert"
	"github.com/sufield/signet/internal/audit"
	"github.com/sufield/signet/internal/domain"
	"github.com/sufield/signet/internal/ports"
	"github.com/sufield/signet/internal/shutdown"
)

const releaseTimeout = 30 * time.Second

// ContainerHandle is one run's exclusive reference to an ephemeral credential
// container. It is released exactly once, either by the owning run or by the
// shutdown hook registered at creation.
type ContainerHandle struct {
	container *domain.Container
	password  string
	hook      shutdown.ID

	mu       sync.Mutex
	released bool
	imported map[string]bool
}

// Path is the container file path.
func (h *ContainerHandle) Path() string { return h.container.Path() }

// Name is the unique container name.
func (h *ContainerHandle) Name() string { return h.container.Name() }

// State is the current lifecycle state.
func (h *ContainerHandle) State() domain.ContainerState { return h.container.State() }

// Container exposes the lifecycle record.
func (h *ContainerHandle) Container() *domain.Container { return h.container }

// Imported reports whether file was imported into the container.
func (h *ContainerHandle) Imported(file string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.imported[file]
}

// Released reports whether the container has been deleted.
func (h *ContainerHandle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

func (h *ContainerHandle) markImported(file string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.imported[file] = true
}

// KeychainManager creates, populates and deletes ephemeral credential
// containers under one directory.
type KeychainManager struct {
	dir     string
	backend ports.SecurityBackend
	hooks   *shutdown.Hooks
	env     Env
}

// NewKeychainManager returns a manager creating containers in dir.
func NewKeychainManager(dir string, backend ports.SecurityBackend, hooks *shutdown.Hooks, env Env) *KeychainManager {
	if hooks == nil {
		hooks = shutdown.Default
	}
	return &KeychainManager{dir: dir, backend: backend, hooks: hooks, env: env.withDefaults()}
}

// Acquire creates and unlocks a fresh container for scopeID. The cleanup
// hook is registered before the backend is asked to create anything, so an
// interrupt at any later point still removes the container.
func (m *KeychainManager) Acquire(ctx context.Context, scopeID, password string) (*ContainerHandle, error) {
	const op = "acquire credential container"
	if password == "" {
		return nil, domain.NewError(domain.ErrContainerCreation, op, errors.New("empty container password"))
	}
	if err := checkWritable(m.dir); err != nil {
		return nil, domain.NewError(domain.ErrContainerCreation, op, err)
	}

	name := containerName(scopeID)
	path := filepath.Join(m.dir, name+".keychain-db")
	h := &ContainerHandle{
		container: domain.NewContainer(name, path, scopeID),
		password:  password,
		imported:  make(map[string]bool),
	}
	h.hook = m.hooks.Register("keychain "+name, func(ctx context.Context) error {
		return m.Release(ctx, h)
	})

	if err := m.backend.CreateContainer(ctx, path, password); err != nil {
		m.abort(ctx, h)
		return nil, domain.NewError(domain.ErrContainerCreation, op, err)
	}
	m.env.Audit.Record(audit.Event{
		Kind:   audit.KindKeychainCreated,
		Status: "CREATED",
		Detail: map[string]string{"name": name, "scope": scopeID},
	})
	m.env.Logger.Debug("credential container created", "name", name, "path", path)

	if err := m.backend.UnlockContainer(ctx, path, password); err != nil {
		m.abort(ctx, h)
		return nil, domain.NewError(domain.ErrContainerCreation, op, fmt.Errorf("unlock: %w", err))
	}
	if err := h.container.Transition(domain.ContainerUnlocked); err != nil {
		m.abort(ctx, h)
		return nil, domain.NewError(domain.ErrContainerCreation, op, err)
	}
	return h, nil
}

func (m *KeychainManager) abort(ctx context.Context, h *ContainerHandle) {
	m.MarkFailed(h)
	if err := m.Release(ctx, h); err != nil {
		m.env.Logger.Warn("cleanup after failed container creation", "name", h.Name(), "error", err)
	}
}

// ImportExisting imports every file into h. Individual failures are
// collected into the report; the caller treats a degraded report as a
// warning.
func (m *KeychainManager) ImportExisting(ctx context.Context, h *ContainerHandle, files []string, filePassword string) domain.ImportReport {
	var report domain.ImportReport
	for _, f := range files {
		if err := m.importFile(ctx, h, f, filePassword); err != nil {
			report.Failed = append(report.Failed, domain.ImportFailure{File: f, Err: err})
			continue
		}
		report.Imported = append(report.Imported, f)
	}

	e := audit.Event{
		Kind:   audit.KindCertImport,
		Status: "OK",
		Detail: map[string]string{
			"imported": fmt.Sprint(len(report.Imported)),
			"failed":   fmt.Sprint(len(report.Failed)),
		},
	}
	if report.Degraded() {
		e.Level = audit.LevelWarn
		e.Status = "DEGRADED"
		m.env.Logger.Warn("some certificate files failed to import", "error", report.Err())
	}
	m.env.Audit.Record(e)
	return report
}

// Import imports a single identity file into h.
func (m *KeychainManager) Import(ctx context.Context, h *ContainerHandle, file, filePassword string) error {
	if err := m.importFile(ctx, h, file, filePassword); err != nil {
		return domain.NewError(domain.ErrCertificateImport, "import "+filepath.Base(file), err)
	}
	return nil
}

func (m *KeychainManager) importFile(ctx context.Context, h *ContainerHandle, file, filePassword string) error {
	if h.Released() {
		return fmt.Errorf("container %s already released", h.Name())
	}
	pw := filePassword
	if strings.EqualFold(filepath.Ext(file), ".cer") {
		pw = ""
	}
	if err := m.backend.ImportIdentity(ctx, h.Path(), file, pw); err != nil {
		return err
	}
	h.markImported(file)
	return h.container.Transition(domain.ContainerPopulated)
}

// MarkInUse records that a build is signing with h.
func (m *KeychainManager) MarkInUse(h *ContainerHandle) error {
	return h.container.Transition(domain.ContainerInUse)
}

// MarkFailed records a failure of the owning run. No-op once released.
func (m *KeychainManager) MarkFailed(h *ContainerHandle) {
	if h == nil || h.container.State() == domain.ContainerFailed {
		return
	}
	_ = h.container.Transition(domain.ContainerFailed)
}

// Release deletes the container and its companion files. Idempotent. On
// failure the shutdown hook stays registered so a later Run retries.
func (m *KeychainManager) Release(ctx context.Context, h *ContainerHandle) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()

	if err := m.backend.DeleteContainer(ctx, h.Path()); err != nil && !errors.Is(err, ports.ErrNotFound) {
		m.env.Logger.Warn("credential container deletion failed", "name", h.Name(), "error", err)
		return fmt.Errorf("release %s: %w", h.Name(), err)
	}
	if err := removeCompanions(h.Path()); err != nil {
		return fmt.Errorf("release %s: %w", h.Name(), err)
	}

	err := h.container.Transition(domain.ContainerCleaned)
	assert.Invariantf(err == nil, "container %s could not reach cleaned: %v", h.Name(), err)
	h.released = true
	m.hooks.Deregister(h.hook)

	m.env.Audit.Record(audit.Event{
		Kind:   audit.KindKeychainCleaned,
		Status: "CLEANED",
		Detail: map[string]string{"name": h.Name()},
	})
	m.env.Logger.Debug("credential container released", "name", h.Name())
	return nil
}

func containerName(scopeID string) string {
	scope := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '-'
	}, scopeID)
	if len(scope) > 24 {
		scope = scope[:24]
	}
	return "signet-" + scope + "-" + uuid.NewString()
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("container directory: %w", err)
	}
	f, err := os.CreateTemp(dir, ".signet-writable-*")
	if err != nil {
		return fmt.Errorf("container directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// removeCompanions deletes leftovers the security backend may create next to
// the container (e.g. "<name>.keychain-db.sb-*" or a legacy "<name>.keychain").
func removeCompanions(path string) error {
	base := strings.TrimSuffix(path, "-db")
	matches, err := filepath.Glob(base + "*")
	if err != nil {
		return err
	}
	var errs []error
	for _, p := range matches {
		if err := os.RemoveAll(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
